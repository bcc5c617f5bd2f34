// internal/utils/validator/upload.go
package validator

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/feichai0017/numbers2pdf/pkg/logger"
)

const (
	CodeEmptyFileName   = "EMPTY_FILENAME"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeInvalidFileType = "INVALID_FILE_TYPE"
)

// UploadValidator checks uploaded files before conversion.
type UploadValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

type ValidatorConfig struct {
	MaxFileSize int64
	// AllowedExtensions is matched case-insensitively; empty allows all.
	AllowedExtensions []string
}

type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	Extension string `json:"extension"`
}

// Error aggregates the failures of a validation run.
type Error struct {
	Results []*ValidationResult
}

func (e *Error) Error() string {
	var parts []string
	for _, r := range e.Results {
		for _, ve := range r.Errors {
			parts = append(parts, fmt.Sprintf("%s: %s", r.FileInfo.Filename, ve.Message))
		}
	}
	return "invalid upload: " + strings.Join(parts, "; ")
}

func NewUploadValidator(log logger.Logger, config *ValidatorConfig) *UploadValidator {
	if config == nil {
		config = &ValidatorConfig{
			MaxFileSize:       50 * 1024 * 1024,
			AllowedExtensions: []string{".numbers"},
		}
	}
	return &UploadValidator{
		logger: log,
		config: config,
	}
}

// ValidateFile checks one uploaded file header.
func (v *UploadValidator) ValidateFile(file *multipart.FileHeader) *ValidationResult {
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  file.Filename,
			Size:      file.Size,
			Extension: strings.ToLower(filepath.Ext(file.Filename)),
		},
	}

	if strings.TrimSpace(file.Filename) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Code:    CodeEmptyFileName,
			Message: "File name is required",
			Field:   "filename",
		})
	}

	if v.config.MaxFileSize > 0 && file.Size > v.config.MaxFileSize {
		result.Errors = append(result.Errors, ValidationError{
			Code:    CodeFileTooLarge,
			Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}

	if !v.extensionAllowed(result.FileInfo.Extension) {
		result.Errors = append(result.Errors, ValidationError{
			Code:    CodeInvalidFileType,
			Message: fmt.Sprintf("File type %q is not allowed", result.FileInfo.Extension),
			Field:   "extension",
		})
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// ValidateFiles checks every file and returns an *Error if any is invalid.
// Results are in input order.
func (v *UploadValidator) ValidateFiles(files []*multipart.FileHeader) ([]*ValidationResult, error) {
	results := make([]*ValidationResult, len(files))
	var failed []*ValidationResult

	for i, file := range files {
		results[i] = v.ValidateFile(file)
		if !results[i].IsValid {
			failed = append(failed, results[i])
			v.logger.Warn("Upload rejected",
				logger.String("filename", file.Filename),
				logger.Int64("size", file.Size),
				logger.Any("errors", results[i].Errors),
			)
		}
	}

	if len(failed) > 0 {
		return results, &Error{Results: failed}
	}
	return results, nil
}

func (v *UploadValidator) extensionAllowed(ext string) bool {
	if len(v.config.AllowedExtensions) == 0 {
		return true
	}
	for _, allowed := range v.config.AllowedExtensions {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}
