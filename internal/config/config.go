// Package config provides CC Director's configuration loading and storage-path
// resolution. Per spec.md §1 this is a provided collaborator at the system
// boundary; the core consumes it only through the ConfigProvider interface.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ConfigProvider is the interface the core consumes. It is intentionally
// small: the core never reads environment variables or config files
// directly, only through this boundary.
type ConfigProvider interface {
	// AppDataDir returns the root directory for session state
	// (<AppData>/CcDirector per spec.md §6.4).
	AppDataDir() string
	// StorageDir returns the root directory for session history entries
	// (<CcStorage>/director/sessions per spec.md §6.4).
	StorageDir() string
	// IpcSocketPath returns the Unix-domain socket path (spec.md §6.3).
	IpcSocketPath() string
	// IpcPipeName returns the Windows named-pipe name (spec.md §6.3).
	IpcPipeName() string
	// AgentExecutable returns the path/name of the agent executable to spawn.
	AgentExecutable() string
	// GracefulShutdownTimeoutMs returns the default graceful-shutdown budget.
	GracefulShutdownTimeoutMs() int
	// Logging returns the logging configuration section.
	Logging() LoggingConfig
}

// LoggingConfig mirrors internal/logging.Config so the config package does
// not need to import internal/logging (keeps the dependency direction
// pointing from logging -> nothing, config -> nothing).
type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// Config is the concrete, viper-backed ConfigProvider implementation.
type Config struct {
	v *viper.Viper

	appDataDir string
	storageDir string
}

const (
	defaultPipeName   = "CC_ClaudeDirector"
	defaultSocketName = "director.sock"
	defaultAgentExe   = "claude"
)

// Load builds a Config from defaults, an optional config file, and
// CCDIRECTOR_-prefixed environment variable overrides, following the same
// viper wiring pattern as the teacher's internal/common/config.
func Load() *Config {
	v := viper.New()
	v.SetEnvPrefix("CCDIRECTOR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("ipc.pipeName", defaultPipeName)
	v.SetDefault("ipc.socketName", defaultSocketName)
	v.SetDefault("agent.executable", defaultAgentExe)
	v.SetDefault("session.gracefulShutdownTimeoutMs", 5000)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetConfigName("cc-director")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".cc_director"))
	}
	_ = v.ReadInConfig() // absence of a config file is not an error; defaults + env apply.

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return &Config{
		v:          v,
		appDataDir: filepath.Join(home, ".cc_director", "CcDirector"),
		storageDir: filepath.Join(home, ".cc_director", "director", "sessions"),
	}
}

func (c *Config) AppDataDir() string { return c.appDataDir }
func (c *Config) StorageDir() string { return c.storageDir }

func (c *Config) IpcSocketPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".cc_director", c.v.GetString("ipc.socketName"))
}

func (c *Config) IpcPipeName() string { return c.v.GetString("ipc.pipeName") }

func (c *Config) AgentExecutable() string { return c.v.GetString("agent.executable") }

func (c *Config) GracefulShutdownTimeoutMs() int {
	return c.v.GetInt("session.gracefulShutdownTimeoutMs")
}

func (c *Config) Logging() LoggingConfig {
	return LoggingConfig{
		Level:      c.v.GetString("logging.level"),
		Format:     c.v.GetString("logging.format"),
		OutputPath: c.v.GetString("logging.outputPath"),
	}
}
