package validator

import (
	"errors"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/numbers2pdf/pkg/logger"
)

func header(name string, size int64) *multipart.FileHeader {
	return &multipart.FileHeader{Filename: name, Size: size}
}

func codes(r *ValidationResult) []string {
	var out []string
	for _, e := range r.Errors {
		out = append(out, e.Code)
	}
	return out
}

func TestValidateFileDefaults(t *testing.T) {
	v := NewUploadValidator(logger.NewNop(), nil)

	ok := v.ValidateFile(header("Budget.numbers", 10))
	assert.True(t, ok.IsValid)
	assert.Equal(t, ".numbers", ok.FileInfo.Extension)

	upper := v.ValidateFile(header("Budget.NUMBERS", 10))
	assert.True(t, upper.IsValid)

	bad := v.ValidateFile(header("notes.txt", 10))
	assert.False(t, bad.IsValid)
	assert.Equal(t, []string{CodeInvalidFileType}, codes(bad))
}

func TestValidateFileSizeAndName(t *testing.T) {
	v := NewUploadValidator(logger.NewNop(), &ValidatorConfig{MaxFileSize: 5})

	big := v.ValidateFile(header("x.numbers", 6))
	assert.Equal(t, []string{CodeFileTooLarge}, codes(big))

	blank := v.ValidateFile(header("  ", 1))
	assert.Contains(t, codes(blank), CodeEmptyFileName)
}

func TestValidateFilesAggregates(t *testing.T) {
	log := logger.NewTestLogger()
	v := NewUploadValidator(log, &ValidatorConfig{AllowedExtensions: []string{".numbers"}})

	results, err := v.ValidateFiles([]*multipart.FileHeader{
		header("A.numbers", 1),
		header("B.xlsx", 1),
	})
	require.Error(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].IsValid)
	assert.False(t, results[1].IsValid)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Results, 1)
	assert.Contains(t, err.Error(), "B.xlsx")
	assert.Len(t, log.EntriesAt("WARN"), 1)
}

func TestValidateFilesAnyExtensionWhenUnrestricted(t *testing.T) {
	v := NewUploadValidator(logger.NewNop(), &ValidatorConfig{})
	_, err := v.ValidateFiles([]*multipart.FileHeader{header("notes.txt", 1)})
	assert.NoError(t, err)
}
