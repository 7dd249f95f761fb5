package config

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/bmatcuk/doublestar/v4"

	ccerrors "github.com/standardbeagle/ccindex/internal/errors"
	"github.com/standardbeagle/ccindex/internal/parser"
)

// Validator validates configuration and sets smart defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies smart defaults
// Returns an error if validation fails
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateProjectConfig(&cfg.Project); err != nil {
		return ccerrors.NewConfigError("project", "", err)
	}

	if err := v.validateCodeCompletionConfig(&cfg.CodeCompletion); err != nil {
		return ccerrors.NewConfigError("codecompletion", "", err)
	}

	if err := v.validatePerformanceConfig(&cfg.Performance); err != nil {
		return ccerrors.NewConfigError("performance", "", err)
	}

	if cfg.Watch.DebounceMs < 0 {
		return ccerrors.NewConfigError("watch.debounce_ms", fmt.Sprint(cfg.Watch.DebounceMs), errors.New("cannot be negative"))
	}

	for _, p := range append(append([]string{}, cfg.Include...), cfg.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return ccerrors.NewConfigError("include/exclude", p, doublestar.ErrBadPattern)
		}
	}

	seen := make(map[string]bool, len(cfg.Compilers))
	for _, c := range cfg.Compilers {
		if seen[c.ID] {
			return ccerrors.NewConfigError("compilers.compiler", c.ID, ccerrors.ErrDuplicateName)
		}
		seen[c.ID] = true
		if c.CPP == "" {
			return ccerrors.NewConfigError("compilers.compiler."+c.ID, "", errors.New("no cpp or c program"))
		}
	}

	v.setSmartDefaults(cfg)
	return nil
}

// validateProjectConfig validates project configuration
func (v *Validator) validateProjectConfig(project *Project) error {
	if project.Root == "" {
		return errors.New("project root cannot be empty")
	}

	if project.Name == "" {
		return errors.New("project name cannot be empty")
	}

	return nil
}

func (v *Validator) validateCodeCompletionConfig(cc *CodeCompletion) error {
	switch parser.Engine(cc.Engine) {
	case "", parser.EngineNative, parser.EngineTreeSitter:
	default:
		return fmt.Errorf("unknown engine %q, expected %q or %q", cc.Engine, parser.EngineNative, parser.EngineTreeSitter)
	}
	return nil
}

// validatePerformanceConfig validates performance configuration
func (v *Validator) validatePerformanceConfig(perf *Performance) error {
	// MaxGoroutines: 0 means auto-detect (will be set by smart defaults)
	if perf.MaxGoroutines < 0 {
		return fmt.Errorf("MaxGoroutines cannot be negative, got %d", perf.MaxGoroutines)
	}

	if perf.ExecTimeoutMs < 0 {
		return fmt.Errorf("ExecTimeoutMs cannot be negative, got %d", perf.ExecTimeoutMs)
	}

	if perf.AttachIntervalMs < 0 {
		return fmt.Errorf("AttachIntervalMs cannot be negative, got %d", perf.AttachIntervalMs)
	}

	return nil
}

// setSmartDefaults applies smart defaults based on system capabilities
func (v *Validator) setSmartDefaults(cfg *Config) {
	// Use cores-1 to leave headroom for the editor, minimum of 1
	if cfg.Performance.MaxGoroutines == 0 {
		cfg.Performance.MaxGoroutines = max(1, runtime.NumCPU()-1)
	}

	if cfg.Performance.ExecTimeoutMs == 0 {
		cfg.Performance.ExecTimeoutMs = DefaultExecTimeoutMs
	}

	if cfg.Performance.AttachIntervalMs == 0 {
		cfg.Performance.AttachIntervalMs = DefaultAttachIntervalMs
	}

	if cfg.Watch.DebounceMs == 0 {
		cfg.Watch.DebounceMs = DefaultWatchDebounceMs
	}

	if cfg.CodeCompletion.Engine == "" {
		cfg.CodeCompletion.Engine = string(parser.EngineNative)
	}
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	validator := NewValidator()
	return validator.ValidateAndSetDefaults(cfg)
}
