package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/numbers2pdf/internal/models"
	"github.com/feichai0017/numbers2pdf/internal/service/conversion"
	"github.com/feichai0017/numbers2pdf/internal/utils/validator"
	"github.com/feichai0017/numbers2pdf/pkg/batcher"
	"github.com/feichai0017/numbers2pdf/pkg/converters"
	"github.com/feichai0017/numbers2pdf/pkg/logger"
)

// EmptyUploadMessage is shown when the request carries no files.
const EmptyUploadMessage = "Please upload at least one .numbers file."

type ConversionHandler struct {
	service   conversion.ConversionProcessor
	validator *validator.UploadValidator
	logger    logger.Logger
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string                         `json:"error"`
	Message string                         `json:"message"`
	Details []*validator.ValidationResult `json:"details,omitempty"`
}

func NewConversionHandler(service conversion.ConversionProcessor, v *validator.UploadValidator, log logger.Logger) *ConversionHandler {
	return &ConversionHandler{
		service:   service,
		validator: v,
		logger:    log.Named("http"),
	}
}

// Convert converts the uploaded files and streams back the artifact.
func (h *ConversionHandler) Convert(c *gin.Context) {
	files, err := h.readUpload(c)
	if err != nil {
		h.handleError(c, err)
		return
	}

	artifact, err := h.service.ConvertBatch(c.Request.Context(), files)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("X-Converted-Count", strconv.Itoa(len(files)))
	writeArtifact(c, artifact)
}

// Submit queues the uploaded files for the worker.
func (h *ConversionHandler) Submit(c *gin.Context) {
	files, err := h.readUpload(c)
	if err != nil {
		h.handleError(c, err)
		return
	}

	task, err := h.service.SubmitBatch(c.Request.Context(), files)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, task)
}

func (h *ConversionHandler) GetStatus(c *gin.Context) {
	task, err := h.service.GetStatus(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *ConversionHandler) Download(c *gin.Context) {
	artifact, err := h.service.GetArtifact(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	writeArtifact(c, artifact)
}

func (h *ConversionHandler) Cancel(c *gin.Context) {
	taskID := c.Param("taskId")
	if err := h.service.CancelTask(c.Request.Context(), taskID); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Task cancelled successfully",
		"taskId":  taskID,
	})
}

// readUpload collects files from the repeatable "files" field, falling back
// to a single "file" field, in submission order.
func (h *ConversionHandler) readUpload(c *gin.Context) ([]models.InputFile, error) {
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, conversion.ErrEmptyInput
		}
		return nil, &requestError{message: "Invalid form data", err: err}
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		headers = form.File["file"]
	}
	if len(headers) == 0 {
		return nil, conversion.ErrEmptyInput
	}

	if _, err := h.validator.ValidateFiles(headers); err != nil {
		return nil, err
	}

	files := make([]models.InputFile, 0, len(headers))
	for _, header := range headers {
		data, err := readPart(header)
		if err != nil {
			return nil, &requestError{message: "Invalid file upload", err: err}
		}
		files = append(files, models.InputFile{Name: header.Filename, Data: data})
	}
	return files, nil
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", header.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func writeArtifact(c *gin.Context, artifact *models.DownloadArtifact) {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": artifact.Name})
	c.Header("Content-Disposition", disposition)
	if len(artifact.Duplicates) > 0 {
		c.Header("X-Duplicate-Entries", strings.Join(artifact.Duplicates, ","))
	}
	c.Data(http.StatusOK, artifact.MediaType.ContentType(), artifact.Data)
}

type requestError struct {
	message string
	err     error
}

func (e *requestError) Error() string { return e.message + ": " + e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// handleError maps service errors onto HTTP replies.
func (h *ConversionHandler) handleError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	response := ErrorResponse{Error: err.Error(), Message: "Conversion failed"}

	var (
		reqErr  *requestError
		valErr  *validator.Error
		sizeErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &sizeErr):
		status = http.StatusRequestEntityTooLarge
		response.Message = fmt.Sprintf("Upload exceeds %d bytes", sizeErr.Limit)
	case errors.Is(err, conversion.ErrEmptyInput), errors.Is(err, batcher.ErrNoFiles):
		status = http.StatusBadRequest
		response.Message = EmptyUploadMessage
	case errors.Is(err, converters.ErrEmptyFileName):
		status = http.StatusBadRequest
		response.Message = "Every file needs a name"
	case errors.As(err, &valErr):
		status = http.StatusBadRequest
		response.Message = "Invalid upload"
		response.Details = valErr.Results
	case errors.As(err, &reqErr):
		status = http.StatusBadRequest
		response.Message = reqErr.message
	case errors.Is(err, conversion.ErrTaskNotFound):
		status = http.StatusNotFound
		response.Message = "Task not found"
	case errors.Is(err, conversion.ErrTaskNotCompleted):
		status = http.StatusConflict
		response.Message = "Task is not completed"
	case errors.Is(err, conversion.ErrTaskFinished):
		status = http.StatusConflict
		response.Message = "Task has already finished"
	case errors.Is(err, conversion.ErrArtifactExpired):
		status = http.StatusGone
		response.Message = "Artifact has expired"
	case errors.Is(err, conversion.ErrAsyncDisabled):
		status = http.StatusServiceUnavailable
		response.Message = "Asynchronous conversion is not enabled"
	}

	log := logger.FromContext(c.Request.Context(), h.logger)
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
		logger.Error(err),
	}
	if status >= http.StatusInternalServerError {
		log.Error(response.Message, fields...)
	} else {
		log.Warn(response.Message, fields...)
	}

	c.AbortWithStatusJSON(status, response)
}
