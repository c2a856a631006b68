package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/Dheerajkumar69/posture-detection/internal/posture"
	"github.com/Dheerajkumar69/posture-detection/internal/service"
	"github.com/Dheerajkumar69/posture-detection/internal/video"
	"github.com/gin-gonic/gin"
)

// Analyzer is satisfied by *service.AnalysisService.
type Analyzer interface {
	Analyze(ctx context.Context, up service.Upload, mode string) (posture.Report, error)
}

type Handler struct {
	analyzer  Analyzer
	maxUpload int64
}

// errorResponse matches the {"detail": ...} body existing clients parse.
type errorResponse struct {
	Detail string `json:"detail"`
}

func fail(c *gin.Context, code int, detail string) {
	c.AbortWithStatusJSON(code, errorResponse{Detail: detail})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "message": "Posture Analysis API is running"})
}

// Analyze handles POST /analyze with multipart fields "file" and "mode".
func (h *Handler) Analyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, "Upload exceeds the size limit")
			return
		}
		fail(c, http.StatusUnprocessableEntity, "Form field 'file' is required")
		return
	}
	mode, ok := c.GetPostForm("mode")
	if !ok {
		fail(c, http.StatusUnprocessableEntity, "Form field 'mode' is required")
		return
	}

	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusInternalServerError, "Analysis failed: "+err.Error())
		return
	}
	defer f.Close()

	report, err := h.analyzer.Analyze(c.Request.Context(), service.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        f,
	}, mode)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, report)
	case errors.Is(err, posture.ErrUnknownMode):
		fail(c, http.StatusBadRequest, "Mode must be 'squat' or 'desk'")
	case errors.Is(err, service.ErrNotVideo):
		fail(c, http.StatusBadRequest, "File must be a video")
	case errors.Is(err, video.ErrDecode):
		fail(c, http.StatusBadRequest, "Could not open video file")
	default:
		fail(c, http.StatusInternalServerError, "Analysis failed: "+err.Error())
	}
}
