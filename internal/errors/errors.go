package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"time"
)

// ErrorType classifies failures across ccindex.
type ErrorType string

const (
	ErrorTypeParse       ErrorType = "parse"
	ErrorTypeEnvironment ErrorType = "environment"
	ErrorTypeRegistry    ErrorType = "registry"

	ErrorTypeFileNotFound ErrorType = "file_not_found"
	ErrorTypePermission   ErrorType = "permission"

	ErrorTypeConfig  ErrorType = "config"
	ErrorTypeProject ErrorType = "project"

	ErrorTypeInternal ErrorType = "internal"
)

// ErrNotReady marks a query against a parser that is still batch parsing.
// It is never surfaced to interactive callers as a failure.
var ErrNotReady = errors.New("parser not ready")

// ErrToolchainFailed wraps a compiler invocation that produced nothing usable.
var ErrToolchainFailed = errors.New("toolchain invocation failed")

// Sentinels wrapped by registry errors.
var (
	ErrParserExists = errors.New("parser already exists")
	ErrNoParser     = errors.New("no parser for project")
	ErrNotParsable  = errors.New("file type is not parsed")
)

// Sentinels for rejected query arguments.
var (
	ErrMissingFile     = errors.New("file is required")
	ErrInvalidPosition = errors.New("position is outside the buffer")
)

// Sentinels wrapped by project and workspace errors.
var (
	ErrMissingName    = errors.New("name is required")
	ErrDuplicateName  = errors.New("duplicate name")
	ErrUnknownTarget  = errors.New("unknown build target")
	ErrNoProjectFile  = errors.New("project has no file")
	ErrUnknownProject = errors.New("unknown project")
)

// ParseError describes a file the parser could not read or scan.
type ParseError struct {
	Type       ErrorType
	FilePath   string
	Line       int
	Underlying error
	Timestamp  time.Time
}

// NewParseError creates a new parse error
func NewParseError(path string, line int, err error) *ParseError {
	return &ParseError{
		Type:       ErrorTypeParse,
		FilePath:   path,
		Line:       line,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at %s:%d: %v", e.FilePath, e.Line, e.Underlying)
	}
	return fmt.Sprintf("parse error in %s: %v", e.FilePath, e.Underlying)
}

func (e *ParseError) Unwrap() error {
	return e.Underlying
}

// EnvironmentError is a toolchain discovery failure. Discovery logs these and
// continues without the failing source.
type EnvironmentError struct {
	Type       ErrorType
	Toolchain  string
	Executable string
	Underlying error
	Timestamp  time.Time
}

// NewEnvironmentError creates a new toolchain discovery error
func NewEnvironmentError(toolchain, executable string, err error) *EnvironmentError {
	return &EnvironmentError{
		Type:       ErrorTypeEnvironment,
		Toolchain:  toolchain,
		Executable: executable,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("%s toolchain %s (%s): %v", e.Type, e.Toolchain, e.Executable, e.Underlying)
}

func (e *EnvironmentError) Unwrap() error {
	return e.Underlying
}

// RegistryError reports a refused registry operation such as a duplicate parser.
type RegistryError struct {
	Type       ErrorType
	Operation  string
	Project    string
	Underlying error
}

// NewRegistryError creates a new registry error
func NewRegistryError(op, project string, err error) *RegistryError {
	return &RegistryError{
		Type:       ErrorTypeRegistry,
		Operation:  op,
		Project:    project,
		Underlying: err,
	}
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("registry %s for project %q: %v", e.Operation, e.Project, e.Underlying)
}

func (e *RegistryError) Unwrap() error {
	return e.Underlying
}

// FileError represents a file-related error
type FileError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewFileError creates a new file error
func NewFileError(op, path string, err error) *FileError {
	errorType := ErrorTypeFileNotFound
	if errors.Is(err, fs.ErrPermission) {
		errorType = ErrorTypePermission
	}

	return &FileError{
		Type:       errorType,
		Path:       path,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

func (e *FileError) Unwrap() error {
	return e.Underlying
}

// ConfigError represents a configuration error
type ConfigError struct {
	Type       ErrorType
	Field      string
	Value      string
	Underlying error
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Type:       ErrorTypeConfig,
		Field:      field,
		Value:      value,
		Underlying: err,
	}
}

// NewProjectError is a ConfigError raised while loading a project file.
func NewProjectError(field, value string, err error) *ConfigError {
	e := NewConfigError(field, value, err)
	e.Type = ErrorTypeProject
	return e
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s error for field %s (value %s): %v", e.Type, e.Field, e.Value, e.Underlying)
}

func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error, or nil when errs holds no failure.
func NewMultiError(errs []error) error {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}
