//go:build !windows

package backend

func lineTerminator() string { return "\n" }
