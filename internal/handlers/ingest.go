package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	pkgerrors "github.com/sagewell/transcripta-backend/internal/pkg/errors"
	"github.com/sagewell/transcripta-backend/internal/services"
)

// maxArchiveBytes caps the uploaded archive size (256 MiB).
const maxArchiveBytes = 256 << 20

type IngestHandler struct {
	ingest services.IngestService
}

func NewIngestHandler(ingest services.IngestService) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

// POST /api/ingest/upload
//
// Multipart form: "archive" (zip file), "namespace", "auto_detect",
// "mode" (chunks|mentor_memory), "persona".
func (h *IngestHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("archive")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_archive", err)
		return
	}
	if fileHeader.Size > maxArchiveBytes {
		RespondError(c, http.StatusRequestEntityTooLarge, "archive_too_large", errors.New("archive exceeds size limit"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_archive", err)
		return
	}
	defer file.Close()

	archive, err := io.ReadAll(io.LimitReader(file, maxArchiveBytes+1))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_archive", err)
		return
	}
	if len(archive) > maxArchiveBytes {
		RespondError(c, http.StatusRequestEntityTooLarge, "archive_too_large", errors.New("archive exceeds size limit"))
		return
	}

	autoDetect, _ := strconv.ParseBool(c.PostForm("auto_detect"))

	batch, err := h.ingest.UploadArchive(c.Request.Context(), services.UploadRequest{
		Archive:    archive,
		Namespace:  c.PostForm("namespace"),
		AutoDetect: autoDetect,
		Mode:       c.PostForm("mode"),
		Persona:    c.PostForm("persona"),
	})
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_upload", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"batch": batch})
}

// GET /api/ingest/batches/:id
func (h *IngestHandler) GetBatch(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_batch_id", err)
		return
	}

	status, err := h.ingest.GetStatus(c.Request.Context(), batchID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "batch_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "batch_status_failed", err)
		return
	}

	RespondOK(c, status)
}

// POST /api/ingest/batches/:id/retry
func (h *IngestHandler) RetryBatch(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_batch_id", err)
		return
	}

	batch, reset, err := h.ingest.RetryFailed(c.Request.Context(), batchID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "batch_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "retry_failed", err)
		return
	}

	RespondOK(c, gin.H{"batch": batch, "reset_episodes": reset})
}

type overrideNamespaceRequest struct {
	Namespace          string `json:"namespace" binding:"required"`
	SecondaryNamespace string `json:"secondary_namespace"`
}

// POST /api/ingest/episodes/:id/namespace
func (h *IngestHandler) OverrideNamespace(c *gin.Context) {
	episodeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_episode_id", err)
		return
	}

	var req overrideNamespaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}

	ep, err := h.ingest.OverrideNamespace(c.Request.Context(), episodeID, req.Namespace, req.SecondaryNamespace)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "episode_not_found", err)
			return
		}
		RespondError(c, http.StatusBadRequest, "override_failed", err)
		return
	}

	RespondOK(c, gin.H{"episode": ep})
}
