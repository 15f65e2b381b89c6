package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/observability/metrics"
)

// chatStream writes every event as one "data: {json}" frame and flushes it
// immediately. Client disconnects cancel the request context, which stops
// the producer.
func (rt *Router) chatStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming is not supported by response writer")
		return
	}
	req, err := rt.decodeChatRequest(w, r)
	if err != nil {
		rt.rejectRequest(w, r, err)
		return
	}

	start := time.Now()
	events, err := rt.chat.AnswerStream(r.Context(), req)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		rt.logger.Error("chat_stream_failed", zap.Int("status", status), zap.Error(err))
		writeError(w, status, publicErrorMessage(status))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	tally := streamTally{}
	writeFailed := false
	for ev := range events {
		tally.observe(ev)
		if rt.metrics != nil {
			rt.metrics.RecordStreamEvent(rt.cfg.Service, string(ev.Type))
		}
		if writeFailed {
			continue
		}
		if err := writeSSE(w, ev); err != nil {
			rt.logger.Warn("sse_write_failed",
				zap.String("request_id", requestIDFromContext(r.Context())),
				zap.Error(err),
			)
			writeFailed = true
			continue
		}
		flusher.Flush()
	}

	if rt.metrics != nil && tally.done {
		rt.metrics.RecordTurn(rt.cfg.Service, "chat_stream", tally.observation(time.Since(start)))
	}
}

func writeSSE(w http.ResponseWriter, ev domain.StreamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal stream event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// streamTally rebuilds a turn summary from the event sequence.
type streamTally struct {
	citations  int
	webSources int
	blocked    bool
	output     bool
	category   string
	failed     bool
	done       bool
}

func (t *streamTally) observe(ev domain.StreamEvent) {
	switch ev.Type {
	case domain.EventCitations:
		if c, ok := ev.Content.([]domain.Citation); ok {
			t.citations = len(c)
		}
	case domain.EventWebSources:
		if s, ok := ev.Content.([]domain.WebSource); ok {
			t.webSources = len(s)
		}
	case domain.EventGuardrailBlocked:
		t.blocked = true
		t.category = ev.Category
		t.output = ev.Category == domain.CategoryHarmfulResponse
	case domain.EventError:
		t.failed = true
	case domain.EventDone:
		t.done = true
	}
}

func (t streamTally) observation(elapsed time.Duration) metrics.TurnObservation {
	obs := metrics.TurnObservation{
		Citations:   t.citations,
		WebSources:  t.webSources,
		Duration:    elapsed,
		InputStatus: string(domain.GuardrailPass),
	}
	switch {
	case t.blocked && !t.output:
		obs.Mode = string(domain.ModeBlocked)
		obs.InputStatus = string(domain.GuardrailBlock)
		obs.InputCause = t.category
	case t.failed:
		obs.Mode = "error"
	case t.citations > 0:
		obs.Mode = string(domain.ModeDocuments)
	case t.webSources > 0:
		obs.Mode = string(domain.ModeWeb)
	default:
		obs.Mode = string(domain.ModeFallback)
	}
	if t.output {
		obs.OutputStatus = string(domain.GuardrailBlock)
		obs.OutputCause = t.category
	}
	return obs
}
