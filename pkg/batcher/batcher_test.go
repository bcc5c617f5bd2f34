package batcher

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/numbers2pdf/internal/models"
)

func readArchive(t *testing.T, data []byte) ([]*zip.File, map[string][]byte) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	contents := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		contents[f.Name] = body
	}
	return zr.File, contents
}

func TestPackageEmpty(t *testing.T) {
	_, err := NewPackager().Package(nil)
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestPackageSingleReturnsFileUnchanged(t *testing.T) {
	x := models.OutputFile{Name: "Budget.pdf", Data: []byte("%PDF-1.3 body")}

	art, err := NewPackager().Package([]models.OutputFile{x})
	require.NoError(t, err)
	assert.Equal(t, x.Name, art.Name)
	assert.Equal(t, x.Data, art.Data)
	assert.Equal(t, models.MediaTypeDocument, art.MediaType)
	assert.Equal(t, "application/pdf", art.MediaType.ContentType())
	assert.Empty(t, art.Duplicates)
}

func TestPackageMultipleBuildsOrderedDeflateArchive(t *testing.T) {
	stamp := time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC)
	outputs := []models.OutputFile{
		{Name: "B.pdf", Data: []byte("bravo")},
		{Name: "A.pdf", Data: []byte("alpha")},
		{Name: "C.pdf", Data: []byte{}},
	}

	art, err := NewPackager(WithClock(func() time.Time { return stamp })).Package(outputs)
	require.NoError(t, err)
	assert.Equal(t, ArchiveName, art.Name)
	assert.Equal(t, models.MediaTypeArchive, art.MediaType)
	assert.Equal(t, "application/zip", art.MediaType.ContentType())
	assert.Empty(t, art.Duplicates)

	files, contents := readArchive(t, art.Data)
	require.Len(t, files, 3)
	for i, f := range files {
		assert.Equal(t, outputs[i].Name, f.Name)
		assert.Equal(t, zip.Deflate, f.Method)
		assert.True(t, f.Modified.Equal(stamp), "entry %s modified %v", f.Name, f.Modified)
	}
	assert.Equal(t, []byte("bravo"), contents["B.pdf"])
	assert.Equal(t, []byte("alpha"), contents["A.pdf"])
	assert.Empty(t, contents["C.pdf"])
}

func TestPackageReportsDuplicateNames(t *testing.T) {
	outputs := []models.OutputFile{
		{Name: "A.pdf", Data: []byte("first")},
		{Name: "A.pdf", Data: []byte("second")},
		{Name: "A.pdf", Data: []byte("third")},
		{Name: "B.pdf", Data: []byte("b")},
	}

	art, err := NewPackager().Package(outputs)
	require.NoError(t, err)
	assert.Equal(t, []string{"A.pdf"}, art.Duplicates)

	files, contents := readArchive(t, art.Data)
	assert.Len(t, files, 4)
	// the map keeps the last entry read, matching extractors that overwrite
	assert.Equal(t, []byte("third"), contents["A.pdf"])
}
