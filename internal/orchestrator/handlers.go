package orchestrator

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wealthops/wealthops-backend/internal/copilot"
	"github.com/wealthops/wealthops-backend/internal/platform/logger"
)

// Handler exposes the orchestrator's HTTP surface.
type Handler struct {
	log    *logger.Logger
	engine *Engine
}

func NewHandler(log *logger.Logger, engine *Engine) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		log:    log.With("component", "OrchestratorHandler"),
		engine: engine,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "agent": "orchestrator"})
}

// QuerySync handles POST /copilot/query.
func (h *Handler) QuerySync(c *gin.Context) {
	var req copilot.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	result := h.engine.ProcessSync(c.Request.Context(), req)
	c.JSON(http.StatusOK, result)
}

// QueryStream handles POST /copilot/query/stream with an SSE response.
func (h *Handler) QueryStream(c *gin.Context) {
	var req copilot.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.engine.ProcessStreaming(c.Request.Context(), req, func(u Update) {
		raw, err := json.Marshal(u)
		if err != nil {
			h.log.Error("encode stream update", "error", err.Error())
			return
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", raw); err != nil {
			// Client went away; the pipeline finishes on its own.
			h.log.Debug("stream write failed", "error", err.Error())
			return
		}
		flusher.Flush()
	})
}
