package pdf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/redcap-pdf-autofill/internal/pdf/acroform/acroformtest"
)

func TestValidator_ValidateFile(t *testing.T) {
	validator := NewValidator(1024 * 1024) // 1MB limit
	dir := t.TempDir()

	formPath := acroformtest.New().TextField("name", "").WriteFile(t, dir, "form.pdf")
	garbagePath := filepath.Join(dir, "garbage.pdf")
	require.NoError(t, os.WriteFile(garbagePath, []byte("this is not a pdf at all"), 0o644))

	tests := []struct {
		name        string
		path        string
		expectValid bool
		expectPages int
	}{
		{name: "empty path", path: ""},
		{name: "non-existent file", path: "/non/existent/file.pdf"},
		{name: "directory", path: dir},
		{name: "unparseable content", path: garbagePath},
		{name: "generated form", path: formPath, expectValid: true, expectPages: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validator.ValidateFile(tt.path)
			require.NotNil(t, result)

			assert.Equal(t, tt.path, result.Path)
			assert.Equal(t, tt.expectValid, result.Valid)
			assert.Equal(t, tt.expectPages, result.Pages)
			if !tt.expectValid {
				assert.NotEmpty(t, result.Message, "expected validation message for invalid file")
			}
			assert.Equal(t, tt.expectValid, validator.IsValidPDF(tt.path))
		})
	}
}

func TestValidator_ValidateFileInfo(t *testing.T) {
	validator := NewValidator(1024 * 1024) // 1MB limit
	tempDir := t.TempDir()

	validPDFPath := filepath.Join(tempDir, "valid.pdf")
	largePDFPath := filepath.Join(tempDir, "large.pdf")
	emptyPDFPath := filepath.Join(tempDir, "empty.pdf")
	nonPDFPath := filepath.Join(tempDir, "document.txt")

	require.NoError(t, os.WriteFile(validPDFPath, make([]byte, 1024), 0o644))
	require.NoError(t, os.WriteFile(largePDFPath, make([]byte, 2*1024*1024), 0o644))
	require.NoError(t, os.WriteFile(emptyPDFPath, []byte{}, 0o644))
	require.NoError(t, os.WriteFile(nonPDFPath, []byte("not a pdf"), 0o644))

	tests := []struct {
		name     string
		filePath string
		errorMsg string
	}{
		{name: "valid PDF file", filePath: validPDFPath},
		{name: "large PDF file", filePath: largePDFPath, errorMsg: "file too large"},
		{name: "empty PDF file", filePath: emptyPDFPath, errorMsg: "file is empty"},
		{name: "non-PDF file", filePath: nonPDFPath, errorMsg: "file is not a PDF"},
		{name: "directory", filePath: tempDir, errorMsg: "path is a directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := os.Stat(tt.filePath)
			require.NoError(t, err)

			err = validator.ValidateFileInfo(tt.filePath, info)
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestHasPDFExtension(t *testing.T) {
	assert.True(t, HasPDFExtension("form.pdf"))
	assert.True(t, HasPDFExtension("FORM.PDF"))
	assert.False(t, HasPDFExtension("form.pdf.txt"))
	assert.False(t, HasPDFExtension("form"))
}

func TestNewValidator_DefaultLimit(t *testing.T) {
	assert.Equal(t, int64(DefaultMaxFileSize), NewValidator(0).maxFileSize)
}
