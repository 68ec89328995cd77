package handlers

import (
	"io"
	"log"
	"net/http"

	"keiri-backend/corpus"
	"keiri-backend/service"

	"github.com/gin-gonic/gin"
)

// Maximum accepted size for an uploaded corpus document.
const maxDocumentSize = 50 * 1024 * 1024 // 50MB

// IndexHandler handles HTTP requests for the vector index lifecycle
type IndexHandler struct {
	judgmentService *service.JudgmentService
	loader          *corpus.Loader
}

// NewIndexHandler creates a new index handler
func NewIndexHandler(judgmentService *service.JudgmentService, loader *corpus.Loader) *IndexHandler {
	return &IndexHandler{
		judgmentService: judgmentService,
		loader:          loader,
	}
}

// Rebuild handles POST /api/index/rebuild. The rebuild is synchronous: the
// corpus is small and the caller wants to know the new index is live.
func (h *IndexHandler) Rebuild(c *gin.Context) {
	meta, err := h.judgmentService.RebuildIndex(c.Request.Context())
	if err != nil {
		pipelineError(c, err)
		return
	}

	log.Printf("Index rebuilt: %d chunks, backend %s", meta.ChunkCount, meta.BackendID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    meta,
	})
}

// Status handles GET /api/index/status
func (h *IndexHandler) Status(c *gin.Context) {
	meta, ok := h.judgmentService.IndexStatus()
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"loaded": false,
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"loaded":   true,
			"metadata": meta,
		},
	})
}

// UploadDocument handles POST /api/corpus/documents. The file is stored for
// the next rebuild; it does not enter the live index.
func (h *IndexHandler) UploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "No file provided")
		return
	}
	if fileHeader.Size > maxDocumentSize {
		badRequest(c, "File too large (max 50MB)")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		badRequest(c, "Failed to open uploaded file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "READ_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	if err := h.loader.AddIndexDocument(c.Request.Context(), fileHeader.Filename, data); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STORE_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	log.Printf("Stored corpus document %s (%d bytes)", fileHeader.Filename, len(data))
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"name": fileHeader.Filename,
			"size": len(data),
		},
	})
}
