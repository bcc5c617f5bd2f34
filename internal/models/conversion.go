package models

import (
	"time"
)

// MediaType classifies a download artifact.
type MediaType string

const (
	MediaTypeDocument MediaType = "document"
	MediaTypeArchive  MediaType = "archive"
)

// ContentType returns the HTTP content type for the media type.
func (m MediaType) ContentType() string {
	switch m {
	case MediaTypeDocument:
		return "application/pdf"
	case MediaTypeArchive:
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}

// InputFile is one uploaded file. Data is carried but never parsed.
type InputFile struct {
	Name string
	Data []byte
}

// OutputFile is the generated placeholder document for one InputFile.
type OutputFile struct {
	Name string
	Data []byte
}

// DownloadArtifact is the single deliverable for a conversion request.
type DownloadArtifact struct {
	Name      string
	Data      []byte
	MediaType MediaType
	// Duplicates lists archive entry names written more than once.
	Duplicates []string
}

// FileRef describes an uploaded file without its content.
type FileRef struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type ConversionStatus string

const (
	StatusPending   ConversionStatus = "pending"
	StatusRunning   ConversionStatus = "running"
	StatusCompleted ConversionStatus = "completed"
	StatusFailed    ConversionStatus = "failed"
	StatusCancelled ConversionStatus = "cancelled"
)

// ConversionTask tracks an asynchronous conversion.
type ConversionTask struct {
	ID           string           `json:"taskId"`
	Status       ConversionStatus `json:"status"`
	FileCount    int              `json:"fileCount"`
	Files        []FileRef        `json:"files,omitempty"`
	ArtifactName string           `json:"artifactName,omitempty"`
	MediaType    MediaType        `json:"mediaType,omitempty"`
	Duplicates   []string         `json:"duplicates,omitempty"`
	Error        string           `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt,omitempty"`
}
