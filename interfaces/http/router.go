package httpiface

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domain "llm-stream/domain/chat"
	"llm-stream/domain/persistence"
)

type ChatService interface {
	Stream(ctx context.Context, req *domain.Request, onFragment domain.FragmentHandler) error
}

// Router relays streamed exchanges over HTTP. Fragments are re-emitted to the
// downstream client as server-sent events, flushed one event per fragment.
type Router struct {
	service      ChatService
	corsOrigins  []string
	exchangeRepo persistence.ExchangeRepository
	dbManager    persistence.DatabaseManager
	recorder     persistence.ExchangeRecorder
}

func NewRouter(service ChatService, corsOrigins []string) *Router {
	return &Router{
		service:     service,
		corsOrigins: corsOrigins,
	}
}

// NewRouterWithPersistence creates a router that also serves recorded exchanges
func NewRouterWithPersistence(
	service ChatService,
	corsOrigins []string,
	exchangeRepo persistence.ExchangeRepository,
	dbManager persistence.DatabaseManager,
	recorder persistence.ExchangeRecorder,
) *Router {
	return &Router{
		service:      service,
		corsOrigins:  corsOrigins,
		exchangeRepo: exchangeRepo,
		dbManager:    dbManager,
		recorder:     recorder,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(r.corsMiddleware())

	// Health endpoints carry no request ID so monitoring tools can poll them
	router.GET("/live", r.liveness)
	router.GET("/ready", r.readiness)
	router.GET("/health", r.healthCheck)

	api := router.Group("/")
	api.Use(r.requestIDMiddleware())
	api.POST("/chat/completions", r.chatCompletions)

	if r.exchangeRepo != nil {
		api.GET("/exchanges", r.listExchanges)
		api.GET("/exchanges/:exchange-id", r.getExchange)
	}

	return router
}

func (r *Router) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqOrigin := c.GetHeader("Origin")
		if reqOrigin == "" {
			c.Header("Access-Control-Allow-Origin", strings.Join(r.corsOrigins, ", "))
		} else {
			allowOrigin := ""
			if len(r.corsOrigins) == 1 && r.corsOrigins[0] == "*" {
				allowOrigin = "*"
			} else {
				for _, allowed := range r.corsOrigins {
					if allowed == reqOrigin {
						allowOrigin = reqOrigin
						break
					}
				}
			}
			if allowOrigin != "" {
				c.Header("Access-Control-Allow-Origin", allowOrigin)
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (r *Router) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var requestUUID uuid.UUID

		clientRequestID := c.GetHeader("X-Request-ID")
		if clientRequestID != "" {
			if parsed, err := uuid.Parse(clientRequestID); err == nil {
				requestUUID = parsed
			} else {
				requestUUID = uuid.New()
				c.Header("X-Client-Request-ID", clientRequestID)
			}
		} else {
			requestUUID = uuid.New()
		}

		c.Header("X-Request-ID", requestUUID.String())
		c.Set("request_uuid", requestUUID.String())

		c.Next()
	}
}

func (r *Router) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Router) readiness(c *gin.Context) {
	checks := gin.H{}
	ready := true

	if r.dbManager != nil {
		if err := r.dbManager.Health(c.Request.Context()); err != nil {
			checks["db"] = gin.H{"ok": false, "error": err.Error()}
			ready = false
		} else {
			checks["db"] = gin.H{"ok": true}
		}
	}

	if r.recorder != nil {
		rh := r.recorder.Health()
		checks["recorder"] = rh
		if !rh.IsRunning {
			ready = false
		}
	}

	code := http.StatusOK
	status := "ready"
	if !ready {
		code = http.StatusServiceUnavailable
		status = "not_ready"
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (r *Router) healthCheck(c *gin.Context) {
	checks := gin.H{
		"api": "ok",
	}
	overallOK := true

	if r.dbManager != nil {
		if err := r.dbManager.Health(c.Request.Context()); err != nil {
			checks["db"] = gin.H{"ok": false, "error": err.Error()}
			overallOK = false
		} else {
			checks["db"] = gin.H{"ok": true}
		}
	}

	if r.recorder != nil {
		rh := r.recorder.Health()
		checks["recorder"] = rh
		if !rh.IsRunning {
			overallOK = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !overallOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "llm-stream",
		"version":   "1.0.0",
		"checks":    checks,
	})
}

// completionRequest is the inbound JSON shape. An empty model selects the
// configured default.
type completionRequest struct {
	Model       string           `json:"model"`
	Messages    []domain.Message `json:"messages"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

func (cr *completionRequest) toDomain() *domain.Request {
	model := domain.DefaultModel()
	if cr.Model != "" {
		model = domain.Model(cr.Model)
	}
	return &domain.Request{
		Model:       model,
		Messages:    cr.Messages,
		Stream:      true,
		Temperature: cr.Temperature,
		MaxTokens:   cr.MaxTokens,
	}
}

type fragmentEvent struct {
	Content string `json:"content"`
}

func (r *Router) chatCompletions(c *gin.Context) {
	var req completionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Error("Failed to bind request")
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid request format"})
		return
	}

	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Messages cannot be empty"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: "Streaming not supported by server"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	streamCtx := c.Request.Context()
	if requestUUID, exists := c.Get("request_uuid"); exists {
		streamCtx = context.WithValue(streamCtx, "request_uuid", requestUUID)
	}

	fragmentCount := 0
	err := r.service.Stream(streamCtx, req.toDomain(), func(fragment string) error {
		data, err := json.Marshal(fragmentEvent{Content: fragment})
		if err != nil {
			return err
		}
		if _, err := c.Writer.Write([]byte("data: ")); err != nil {
			return err
		}
		if _, err := c.Writer.Write(data); err != nil {
			return err
		}
		if _, err := c.Writer.Write([]byte("\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		fragmentCount++
		return nil
	})
	if err != nil {
		// Headers are already out; the missing terminator tells the client
		// the stream ended abnormally.
		logrus.WithError(err).Error("Streaming failed")
		return
	}

	c.Writer.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()

	requestUUID, _ := c.Get("request_uuid")
	logrus.WithFields(logrus.Fields{
		"request_id":     requestUUID,
		"fragment_count": fragmentCount,
	}).Info("Stream completed")
}

// getExchange retrieves one recorded exchange
func (r *Router) getExchange(c *gin.Context) {
	exchangeIDStr := c.Param("exchange-id")
	exchangeID, err := uuid.Parse(exchangeIDStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid exchange ID format"})
		return
	}

	record, err := r.exchangeRepo.FindByID(c.Request.Context(), exchangeID)
	if err != nil {
		logrus.WithError(err).Errorf("Failed to get exchange %s", exchangeID)
		c.JSON(http.StatusNotFound, gin.H{"error": "Exchange not found"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// listExchanges retrieves the most recent recorded exchanges
func (r *Router) listExchanges(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
		return
	}

	records, err := r.exchangeRepo.FindRecent(c.Request.Context(), limit)
	if err != nil {
		logrus.WithError(err).Error("Failed to list exchanges")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve exchanges"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"exchanges": records, "count": len(records)})
}
