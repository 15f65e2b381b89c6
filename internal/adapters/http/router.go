package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/ports"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/observability/metrics"
)

const maxRequestBodyBytes = 1 << 20

type RouterConfig struct {
	Service          string
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
	HistoryLimit     int
	// DefaultVariant applies when a request names no variant.
	DefaultVariant domain.AgentVariant
}

type Router struct {
	chat    ports.ChatAnswerer
	history ports.ConversationStore
	metrics *metrics.HTTPServerMetrics
	cfg     RouterConfig
	logger  *zap.Logger
}

// NewRouter wires the chat endpoints. history may be nil, which disables
// the chat history endpoint.
func NewRouter(
	chat ports.ChatAnswerer,
	history ports.ConversationStore,
	httpMetrics *metrics.HTTPServerMetrics,
	cfg RouterConfig,
	logger *zap.Logger,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Service == "" {
		cfg.Service = "ragengine"
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return &Router{
		chat:    chat,
		history: history,
		metrics: httpMetrics,
		cfg:     cfg,
		logger:  logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/chat", rt.chatSync)
	mux.HandleFunc("POST /v1/chat/stream", rt.chatStream)
	mux.HandleFunc("GET /v1/chats/{chat_id}/messages", rt.chatMessages)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, rt.cfg.BackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.cfg.Service, handler)
	}
	handler = recoveryMiddleware(rt.logger, handler)
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) chatMessages(w http.ResponseWriter, r *http.Request) {
	if rt.history == nil {
		writeError(w, http.StatusNotFound, "chat history is not enabled")
		return
	}
	chatID := r.PathValue("chat_id")
	if chatID == "" {
		writeError(w, http.StatusBadRequest, "chat id is required")
		return
	}
	messages, err := rt.history.ListRecentMessages(r.Context(), chatID, rt.cfg.HistoryLimit)
	if err != nil {
		rt.logger.Error("chat_history_failed", zap.String("chat_id", chatID), zap.Error(err))
		writeError(w, mapErrorToHTTPStatus(err), "failed to load chat history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat_id": chatID, "messages": messages})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
