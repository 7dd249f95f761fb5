// Package security screens files before the parser loads them.
package security

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/standardbeagle/ccindex/internal/types"
)

// Defaults for NewFileValidator callers that have no configuration.
const (
	DefaultThresholdKB = 256
	DefaultMaxSizeMB   = 16
)

// FileValidator validates large files before loading them fully.
// Generated headers and amalgamations can be megabytes of real code, so
// only files above the threshold are inspected and only their header is read.
type FileValidator struct {
	ValidationThreshold int64 // Files larger than this are validated first
	HeaderSize          int64 // Size of header to read for validation
	MaxSize             int64 // Files larger than this are never loaded; 0 disables
}

func NewFileValidator(thresholdKB int64) *FileValidator {
	return &FileValidator{
		ValidationThreshold: thresholdKB * 1024,
		HeaderSize:          64 * 1024,
		MaxSize:             DefaultMaxSizeMB * 1024 * 1024,
	}
}

// ValidateLargeFile reads only the header of a large file and checks that it
// looks like C or C++ source. Small files always pass.
func (fv *FileValidator) ValidateLargeFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() <= fv.ValidationThreshold {
		return nil
	}
	if fv.MaxSize > 0 && info.Size() > fv.MaxSize {
		return fmt.Errorf("file is %d bytes, over the %d byte limit", info.Size(), fv.MaxSize)
	}

	header := make([]byte, fv.HeaderSize)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	n, err := io.ReadFull(f, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("failed to read header: %w", err)
	}
	header = header[:n]

	if fv.isBinaryData(header) {
		return errors.New("file appears to be binary (source extension on binary file)")
	}
	return fv.validateCodeFile(path, header)
}

// isBinaryData checks if file contains binary data
func (fv *FileValidator) isBinaryData(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return true
	}

	// Control characters other than tab, LF, VT, FF and CR, and DEL.
	nonPrintable := 0
	for _, b := range data {
		if b < 9 || (b > 13 && b < 32) || b == 127 {
			nonPrintable++
		}
	}
	ratio := float64(nonPrintable) / float64(len(data))
	return ratio > 0.3
}

// sourcePatterns are spellings that a real C or C++ header of any size
// carries within its first 64KB.
var sourcePatterns = [][]byte{
	[]byte("#include"),
	[]byte("#define"),
	[]byte("#if"),
	[]byte("#pragma"),
	[]byte("typedef "),
	[]byte("struct "),
	[]byte("class "),
	[]byte("namespace "),
	[]byte("template"),
	[]byte("enum "),
	[]byte("extern "),
	[]byte("static "),
	[]byte("void "),
	[]byte("int "),
}

// validateCodeFile checks if file contains valid code for its extension
func (fv *FileValidator) validateCodeFile(path string, header []byte) error {
	if types.FileTypeOf(path) == types.FileOther {
		return nil
	}
	for _, pattern := range sourcePatterns {
		if bytes.Contains(header, pattern) {
			return nil
		}
	}
	return errors.New("no C/C++ patterns found")
}
