package pdf

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// DefaultMaxFileSize bounds templates accepted for filling
const DefaultMaxFileSize = 100 * 1024 * 1024

// ValidationResult is the outcome of validating one file
type ValidationResult struct {
	Path    string `json:"path"`
	Valid   bool   `json:"valid"`
	Pages   int    `json:"pages,omitempty"`
	Message string `json:"message,omitempty"`
}

// Validator checks that template and output files are readable PDFs
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a new PDF validator with the specified constraints
func NewValidator(maxFileSize int64) *Validator {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Validator{
		maxFileSize: maxFileSize,
	}
}

// ValidateFile performs comprehensive validation on a PDF file.
// Problems with the file are reported in the result, not as an error.
func (v *Validator) ValidateFile(path string) *ValidationResult {
	result := &ValidationResult{Path: path}

	pages, err := v.validatePDFFile(path)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	result.Valid = true
	result.Pages = pages
	return result
}

// ValidateTemplate returns an error describing why path cannot be used as a template
func (v *Validator) ValidateTemplate(path string) error {
	_, err := v.validatePDFFile(path)
	return err
}

// IsValidPDF performs a quick check to see if a file is a valid PDF
func (v *Validator) IsValidPDF(path string) bool {
	_, err := v.validatePDFFile(path)
	return err == nil
}

// validatePDFFile performs detailed validation on a PDF file and returns its page count
func (v *Validator) validatePDFFile(filePath string) (int, error) {
	if filePath == "" {
		return 0, fmt.Errorf("path cannot be empty")
	}

	fileInfo, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return 0, fmt.Errorf("file does not exist: %s", filePath)
	}
	if err != nil {
		return 0, fmt.Errorf("cannot access file: %w", err)
	}

	if err := v.ValidateFileInfo(filePath, fileInfo); err != nil {
		return 0, err
	}

	f, r, err := pdf.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("invalid PDF file: %w", err)
	}
	defer f.Close()

	return r.NumPage(), nil
}

// ValidateFileInfo performs basic validation on file info without opening the PDF
func (v *Validator) ValidateFileInfo(filePath string, fileInfo os.FileInfo) error {
	if fileInfo.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	if !HasPDFExtension(filePath) {
		return fmt.Errorf("file is not a PDF: %s", filePath)
	}

	if fileInfo.Size() == 0 {
		return fmt.Errorf("file is empty: %s", filePath)
	}

	if fileInfo.Size() > v.maxFileSize {
		return fmt.Errorf("file too large: %d bytes (max: %d bytes)",
			fileInfo.Size(), v.maxFileSize)
	}

	return nil
}

// HasPDFExtension reports whether path ends in ".pdf", ignoring case
func HasPDFExtension(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".pdf")
}
