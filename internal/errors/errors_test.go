package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestParseError(t *testing.T) {
	base := fmt.Errorf("unexpected EOF")
	err := NewParseError("src/a.cpp", 12, base)

	if !strings.Contains(err.Error(), "src/a.cpp:12") {
		t.Errorf("expected position in message, got %q", err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("expected ParseError to unwrap to its cause")
	}

	noLine := NewParseError("src/a.cpp", 0, base)
	if strings.Contains(noLine.Error(), ":0") {
		t.Errorf("line 0 should be omitted, got %q", noLine.Error())
	}
}

func TestEnvironmentError(t *testing.T) {
	err := NewEnvironmentError("gcc", "/usr/bin/g++", fs.ErrNotExist)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Error("expected EnvironmentError to unwrap")
	}
	if !strings.Contains(err.Error(), "/usr/bin/g++") {
		t.Errorf("expected executable in message, got %q", err.Error())
	}

	var target *EnvironmentError
	if !errors.As(fmt.Errorf("wrapped: %w", err), &target) {
		t.Error("expected errors.As to find EnvironmentError")
	}
}

func TestRegistryError(t *testing.T) {
	dup := errors.New("parser already exists")
	err := NewRegistryError("create", "demo", dup)
	if err.Type != ErrorTypeRegistry {
		t.Errorf("unexpected type %s", err.Type)
	}
	if !errors.Is(err, dup) {
		t.Error("expected RegistryError to unwrap")
	}
}

func TestFileErrorClassifiesPermission(t *testing.T) {
	err := NewFileError("read", "/etc/shadow", fs.ErrPermission)
	if err.Type != ErrorTypePermission {
		t.Errorf("expected permission type, got %s", err.Type)
	}
	missing := NewFileError("read", "/nope", fs.ErrNotExist)
	if missing.Type != ErrorTypeFileNotFound {
		t.Errorf("expected not found type, got %s", missing.Type)
	}
}

func TestConfigAndProjectErrors(t *testing.T) {
	cfg := NewConfigError("codecompletion.max_parsers", "-3", errors.New("must be >= 0"))
	if !strings.HasPrefix(cfg.Error(), "config error") {
		t.Errorf("unexpected message %q", cfg.Error())
	}
	proj := NewProjectError("targets", "", errors.New("empty"))
	if proj.Type != ErrorTypeProject || !strings.HasPrefix(proj.Error(), "project error") {
		t.Errorf("unexpected project error %q", proj.Error())
	}
}

func TestMultiError(t *testing.T) {
	if NewMultiError([]error{nil, nil}) != nil {
		t.Error("expected nil for no failures")
	}

	a, b := errors.New("a"), errors.New("b")
	single := NewMultiError([]error{nil, a})
	if single.Error() != "a" {
		t.Errorf("single error should print as itself, got %q", single.Error())
	}

	both := NewMultiError([]error{a, b})
	if !errors.Is(both, b) {
		t.Error("expected MultiError to unwrap each member")
	}
	if !strings.HasPrefix(both.Error(), "2 errors") {
		t.Errorf("unexpected message %q", both.Error())
	}
}
