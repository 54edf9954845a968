package backend

var (
	_ Backend = (*persistentBackend)(nil)
	_ Backend = (*PipeBackend)(nil)
)
