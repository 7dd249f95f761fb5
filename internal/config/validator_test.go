package config

import (
	"errors"
	"runtime"
	"testing"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ccerrors "github.com/standardbeagle/ccindex/internal/errors"
	"github.com/standardbeagle/ccindex/internal/toolchain"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Project = Project{Root: "/work/app", Name: "app"}
	return cfg
}

func TestValidator_ValidConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, ValidateConfig(cfg))
}

func TestValidator_SmartDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.Performance = Performance{}
	cfg.Watch.DebounceMs = 0
	cfg.CodeCompletion.Engine = ""

	require.NoError(t, ValidateConfig(cfg))

	assert.Equal(t, max(1, runtime.NumCPU()-1), cfg.Performance.MaxGoroutines)
	assert.Equal(t, DefaultExecTimeoutMs, cfg.Performance.ExecTimeoutMs)
	assert.Equal(t, DefaultAttachIntervalMs, cfg.Performance.AttachIntervalMs)
	assert.Equal(t, DefaultWatchDebounceMs, cfg.Watch.DebounceMs)
	assert.Equal(t, "native", cfg.CodeCompletion.Engine)
}

func TestValidator_ExplicitValuesKept(t *testing.T) {
	cfg := validConfig()
	cfg.Performance.MaxGoroutines = 3

	require.NoError(t, ValidateConfig(cfg))
	assert.Equal(t, 3, cfg.Performance.MaxGoroutines)
}

func TestValidator_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty root", func(c *Config) { c.Project.Root = "" }},
		{"empty name", func(c *Config) { c.Project.Name = "" }},
		{"unknown engine", func(c *Config) { c.CodeCompletion.Engine = "clangd" }},
		{"negative goroutines", func(c *Config) { c.Performance.MaxGoroutines = -1 }},
		{"negative timeout", func(c *Config) { c.Performance.ExecTimeoutMs = -5 }},
		{"negative attach interval", func(c *Config) { c.Performance.AttachIntervalMs = -1 }},
		{"negative debounce", func(c *Config) { c.Watch.DebounceMs = -1 }},
		{"bad glob", func(c *Config) { c.Exclude = append(c.Exclude, "src/[") }},
		{"compiler without program", func(c *Config) {
			c.Compilers = []toolchain.Compiler{{ID: "gcc"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := ValidateConfig(cfg)
			require.Error(t, err)

			var cfgErr *ccerrors.ConfigError
			assert.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %T", err)
		})
	}
}

func TestValidator_BadGlobUnwraps(t *testing.T) {
	cfg := validConfig()
	cfg.Include = []string{"src/{a,b"}
	err := ValidateConfig(cfg)
	assert.ErrorIs(t, err, doublestar.ErrBadPattern)
}

func TestValidator_DuplicateCompiler(t *testing.T) {
	cfg := validConfig()
	cfg.Compilers = []toolchain.Compiler{
		{ID: "gcc", CPP: "g++"},
		{ID: "gcc", CPP: "g++-13"},
	}
	err := ValidateConfig(cfg)
	assert.ErrorIs(t, err, ccerrors.ErrDuplicateName)
}
