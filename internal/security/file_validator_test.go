package security

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFileValidator validates the source file validator
func TestFileValidator(t *testing.T) {
	t.Run("SmallFileSkipsValidation", func(t *testing.T) {
		tmpFile := writeTempFile(t, "tiny.h", []byte{0x00, 0x01, 0x02})

		validator := NewFileValidator(1)
		assert.NoError(t, validator.ValidateLargeFile(tmpFile), "files under the threshold are not inspected")
	})

	t.Run("LargeHeader", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("#pragma once\nnamespace big {\n")
		for b.Len() < 4096 {
			b.WriteString("    int value_number_padding;\n")
		}
		b.WriteString("}\n")
		tmpFile := writeTempFile(t, "big.hpp", []byte(b.String()))

		validator := NewFileValidator(1)
		assert.NoError(t, validator.ValidateLargeFile(tmpFile))
	})

	t.Run("BinaryWithSourceExtension", func(t *testing.T) {
		content := bytes.Repeat([]byte{0x7f, 'E', 'L', 'F', 0x02, 0x01, 0x00, 0x00}, 512)
		tmpFile := writeTempFile(t, "disguised.cpp", content)

		validator := NewFileValidator(1)
		err := validator.ValidateLargeFile(tmpFile)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "binary")
	})

	t.Run("TextWithoutCode", func(t *testing.T) {
		content := bytes.Repeat([]byte("lorem ipsum dolor sit amet\n"), 200)
		tmpFile := writeTempFile(t, "notes.c", content)

		validator := NewFileValidator(1)
		err := validator.ValidateLargeFile(tmpFile)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no C/C++ patterns")
	})

	t.Run("OverMaxSize", func(t *testing.T) {
		content := bytes.Repeat([]byte("int x;\n"), 1024)
		tmpFile := writeTempFile(t, "huge.c", content)

		validator := NewFileValidator(1)
		validator.MaxSize = 2048
		err := validator.ValidateLargeFile(tmpFile)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "limit")
	})

	t.Run("MissingFile", func(t *testing.T) {
		validator := NewFileValidator(1)
		assert.Error(t, validator.ValidateLargeFile(filepath.Join(t.TempDir(), "gone.h")))
	})
}

func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}
