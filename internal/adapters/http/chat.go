package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/observability/metrics"
)

type chatRequest struct {
	ChatID      string                     `json:"chat_id"`
	Query       string                     `json:"query"`
	ChatHistory []domain.ChatMessage       `json:"chat_history"`
	DocumentIDs []string                   `json:"document_ids"`
	Config      *domain.RetrievalOverrides `json:"config"`
	Variant     string                     `json:"variant"`
}

func (req chatRequest) toDomain() domain.AgentRequest {
	out := domain.AgentRequest{
		ChatID:      strings.TrimSpace(req.ChatID),
		Query:       req.Query,
		ChatHistory: req.ChatHistory,
		DocumentIDs: req.DocumentIDs,
		Config:      req.Config,
	}
	if strings.TrimSpace(req.Variant) != "" {
		out.Variant = domain.ParseAgentVariant(req.Variant)
	}
	return out
}

func (rt *Router) decodeChatRequest(w http.ResponseWriter, r *http.Request) (domain.AgentRequest, error) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return domain.AgentRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode chat request", err)
	}
	if strings.TrimSpace(req.Query) == "" {
		return domain.AgentRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode chat request", errors.New("query is required"))
	}
	out := req.toDomain()
	if out.Variant == "" {
		out.Variant = rt.cfg.DefaultVariant
	}
	return out, nil
}

// rejectRequest logs the decode failure and answers with a generic 400.
func (rt *Router) rejectRequest(w http.ResponseWriter, r *http.Request, err error) {
	rt.logger.Info("chat_request_rejected",
		zap.String("request_id", requestIDFromContext(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusBadRequest, publicErrorMessage(http.StatusBadRequest))
}

func (rt *Router) chatSync(w http.ResponseWriter, r *http.Request) {
	req, err := rt.decodeChatRequest(w, r)
	if err != nil {
		rt.rejectRequest(w, r, err)
		return
	}

	start := time.Now()
	result, err := rt.chat.Answer(r.Context(), req)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		rt.logger.Error("chat_failed",
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.Int("status", status),
			zap.Error(err),
		)
		writeError(w, status, publicErrorMessage(status))
		return
	}
	rt.recordTurn("chat", result, time.Since(start))
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) recordTurn(endpoint string, result *domain.AgentResult, elapsed time.Duration) {
	if rt.metrics == nil || result == nil {
		return
	}
	obs := metrics.TurnObservation{
		Mode:        string(result.Mode),
		Citations:   len(result.Citations),
		WebSources:  len(result.WebSources),
		Duration:    elapsed,
		InputStatus: string(result.InputVerdict.Status),
		InputCause:  result.InputVerdict.Category,
	}
	if result.OutputVerdict != nil {
		obs.OutputStatus = string(result.OutputVerdict.Status)
		obs.OutputCause = result.OutputVerdict.Category
	}
	rt.metrics.RecordTurn(rt.cfg.Service, endpoint, obs)
}

func publicErrorMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusBadGateway:
		return "the language model failed to produce an answer"
	case http.StatusServiceUnavailable:
		return "an upstream service is temporarily unavailable"
	case http.StatusUnauthorized:
		return "unauthorized"
	default:
		return "internal server error"
	}
}
