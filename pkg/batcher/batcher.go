package batcher

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/feichai0017/numbers2pdf/internal/models"
)

// ArchiveName is the download name of a multi-file batch.
const ArchiveName = "numbers_converted_pdfs.zip"

// ErrNoFiles is returned when there is nothing to package.
var ErrNoFiles = errors.New("no files to package")

// Packager turns a batch of converted files into one download.
type Packager struct {
	now func() time.Time
}

type Option func(*Packager)

// WithClock sets the clock used for archive entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Packager) {
		p.now = now
	}
}

func NewPackager(opts ...Option) *Packager {
	p := &Packager{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Package returns the single output as-is, or a deflate zip of all outputs
// in input order. Repeated names are written again and reported in
// DownloadArtifact.Duplicates.
func (p *Packager) Package(outputs []models.OutputFile) (*models.DownloadArtifact, error) {
	switch len(outputs) {
	case 0:
		return nil, ErrNoFiles
	case 1:
		return &models.DownloadArtifact{
			Name:      outputs[0].Name,
			Data:      outputs[0].Data,
			MediaType: models.MediaTypeDocument,
		}, nil
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	modified := p.now()
	seen := make(map[string]int, len(outputs))
	var duplicates []string

	for _, out := range outputs {
		seen[out.Name]++
		if seen[out.Name] == 2 {
			duplicates = append(duplicates, out.Name)
		}

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     out.Name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to add %s to archive: %w", out.Name, err)
		}
		if _, err := w.Write(out.Data); err != nil {
			return nil, fmt.Errorf("failed to write %s to archive: %w", out.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return &models.DownloadArtifact{
		Name:       ArchiveName,
		Data:       buf.Bytes(),
		MediaType:  models.MediaTypeArchive,
		Duplicates: duplicates,
	}, nil
}
