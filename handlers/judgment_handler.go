package handlers

import (
	"errors"
	"net/http"

	"keiri-backend/index"
	"keiri-backend/models"
	"keiri-backend/service"

	"github.com/gin-gonic/gin"
)

// JudgmentHandler handles HTTP requests for the judgment pipeline
type JudgmentHandler struct {
	judgmentService *service.JudgmentService
}

// NewJudgmentHandler creates a new judgment handler
func NewJudgmentHandler(judgmentService *service.JudgmentService) *JudgmentHandler {
	return &JudgmentHandler{judgmentService: judgmentService}
}

// ChatTurnPayload is one history entry in a request body.
type ChatTurnPayload struct {
	Role    string `json:"role" binding:"required"`
	Message string `json:"message"`
}

func toConversation(turns []ChatTurnPayload) models.Conversation {
	conv := models.Conversation{}
	for _, t := range turns {
		role := models.RoleUser
		if t.Role == string(models.RoleAssistant) {
			role = models.RoleAssistant
		}
		conv.Turns = append(conv.Turns, models.ChatTurn{Role: role, Message: t.Message})
	}
	return conv
}

// ExtractRequest represents the request body for item extraction
type ExtractRequest struct {
	DocumentText string `json:"document_text" binding:"required"`
}

// ExtractItems handles POST /api/extract
func (h *JudgmentHandler) ExtractItems(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.judgmentService.ExtractItems(c.Request.Context(), req.DocumentText)
	if err != nil {
		pipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"response": result.Response,
			"items":    result.Items,
		},
	})
}

// JudgeRequest represents the request body for asset judgment
type JudgeRequest struct {
	Query        string            `json:"query"`
	DocumentText string            `json:"document_text" binding:"required"`
	History      []ChatTurnPayload `json:"history"`
}

// JudgeAssets handles POST /api/judge
func (h *JudgmentHandler) JudgeAssets(c *gin.Context) {
	var req JudgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.judgmentService.JudgeAssets(c.Request.Context(), service.JudgeRequest{
		Query:        req.Query,
		DocumentText: req.DocumentText,
		Conversation: toConversation(req.History),
	})
	if err != nil {
		pipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"response":       result.Response,
			"records":        result.Records,
			"invalid_titles": result.InvalidTitles,
		},
	})
}

// RefineRequest represents the request body for refinement
type RefineRequest struct {
	Records []models.AssetJudgmentRecord `json:"records" binding:"required"`
	History []ChatTurnPayload            `json:"history"`
}

// Refine handles POST /api/refine
func (h *JudgmentHandler) Refine(c *gin.Context) {
	var req RefineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.judgmentService.Refine(c.Request.Context(), req.Records, toConversation(req.History))
	if err != nil {
		if errors.Is(err, service.ErrNoRecords) {
			badRequest(c, err.Error())
			return
		}
		pipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"response": result.Response,
			"records":  result.Records,
		},
	})
}

// ChatRequest represents the request body for free-form QA
type ChatRequest struct {
	Query        string            `json:"query" binding:"required"`
	DocumentText string            `json:"document_text"`
	History      []ChatTurnPayload `json:"history"`
}

// Chat handles POST /api/chat
func (h *JudgmentHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	resp, err := h.judgmentService.ChatRespond(c.Request.Context(), service.ChatRequest{
		Query:        req.Query,
		DocumentText: req.DocumentText,
		Conversation: toConversation(req.History),
	})
	if err != nil {
		pipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"response": resp,
		},
	})
}

// UsefulLifeRequest represents the request body for useful-life lookup
type UsefulLifeRequest struct {
	Text string `json:"text" binding:"required"`
}

// ExtractUsefulLife handles POST /api/useful-life
func (h *JudgmentHandler) ExtractUsefulLife(c *gin.Context) {
	var req UsefulLifeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	resp, err := h.judgmentService.ExtractUsefulLife(c.Request.Context(), req.Text)
	if err != nil {
		pipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"response": resp,
		},
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "INVALID_REQUEST",
			"message": message,
		},
	})
}

// pipelineError maps service failures onto HTTP statuses. Index availability
// problems are reported as 503 so callers know a rebuild is needed rather
// than retrying blindly.
func pipelineError(c *gin.Context, err error) {
	var incompatible *index.IncompatibleBackendError
	switch {
	case errors.Is(err, service.ErrIndexNotLoaded),
		errors.Is(err, index.ErrIndexNotFound),
		errors.Is(err, index.ErrEmptyIndex):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INDEX_NOT_READY",
				"message": err.Error(),
			},
		})
	case errors.As(err, &incompatible):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INDEX_BACKEND_MISMATCH",
				"message": err.Error(),
			},
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PIPELINE_FAILED",
				"message": err.Error(),
			},
		})
	}
}
