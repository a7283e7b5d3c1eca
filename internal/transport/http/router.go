// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/patternloop/assistant-runtime/internal/broker"
	"github.com/patternloop/assistant-runtime/internal/completion"
	"github.com/patternloop/assistant-runtime/internal/domain"
	"github.com/patternloop/assistant-runtime/internal/gate"
	"github.com/patternloop/assistant-runtime/internal/metrics"
	"github.com/patternloop/assistant-runtime/internal/pipeline"
	"github.com/patternloop/assistant-runtime/internal/repository"
	"github.com/patternloop/assistant-runtime/internal/transport/middleware"
)

const (
	// dashboardPingInterval keeps idle SSE connections alive through
	// proxies that reap silent streams.
	dashboardPingInterval = 5 * time.Second

	chatEventType = "chat_message"
)

// adminFeatures is the set of feature names the gate endpoints accept.
var adminFeatures = map[string]bool{
	gate.FeatureDerive:    true,
	gate.FeatureBroadcast: true,
	gate.FeatureChat:      true,
}

type logEventRequest struct {
	UserID     *string         `json:"user_id"`
	SessionID  *string         `json:"session_id"`
	EventType  string          `json:"event_type"`
	Source     string          `json:"source"`
	Confidence *float64        `json:"confidence"`
	Tags       []string        `json:"tags"`
	Payload    json.RawMessage `json:"payload"`
}

type Deps struct {
	Events      EventStore
	Patterns    PatternLister
	Pipeline    PipelineTrigger
	Gate        FeatureGate
	Modules     ModuleAdmin
	Broker      Streamer
	Completions completion.Provider
	Logger      *slog.Logger
	AdminToken  string
	Version     string
	Commit      string
	BuildDate   string
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("health check hit")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- EVENT LOG ----------------

	r.Post("/events/log", func(w http.ResponseWriter, r *http.Request) {
		reqBody, err := decodeLogEventRequest(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		appended, err := deps.Events.Append(r.Context(), domain.AppendEventParams{
			UserID:     reqBody.UserID,
			SessionID:  reqBody.SessionID,
			EventType:  reqBody.EventType,
			Source:     reqBody.Source,
			Confidence: reqBody.Confidence,
			Tags:       reqBody.Tags,
			Payload:    reqBody.Payload,
		})
		if err != nil {
			var vErr *domain.ValidationError
			if errors.As(err, &vErr) {
				writeError(w, http.StatusBadRequest, vErr.Error())
				return
			}
			if errors.Is(err, domain.ErrStoreUnavailable) {
				logger.Error("event append unavailable", "error", err)
				writeError(w, http.StatusServiceUnavailable, "event store unavailable")
				return
			}
			logger.Error("event append failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to log event")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"ok":         true,
			"id":         appended.ID,
			"created_at": appended.CreatedAt,
		})
	})

	// ---------------- RECENT EVENTS ----------------

	r.Get("/events/recent", func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 50)
		eventType := strings.TrimSpace(r.URL.Query().Get("event_type"))

		items, err := deps.Events.ListRecent(r.Context(), limit, eventType)
		if err != nil {
			if errors.Is(err, domain.ErrStoreUnavailable) {
				writeError(w, http.StatusServiceUnavailable, "event store unavailable")
				return
			}
			logger.Error("list recent events failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list events")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"ok":    true,
			"count": len(items),
			"items": items,
		})
	})

	// ---------------- LEARNING ----------------

	r.Get("/learning/summary", func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 200)
		eventType := strings.TrimSpace(r.URL.Query().Get("event_type"))

		events, err := deps.Events.ListRecent(r.Context(), limit, eventType)
		if err != nil {
			if errors.Is(err, domain.ErrStoreUnavailable) {
				writeError(w, http.StatusServiceUnavailable, "event store unavailable")
				return
			}
			logger.Error("summary read failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to summarize events")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"summary": pipeline.Summarize(events),
		})
	})

	r.Post("/learning/derive", func(w http.ResponseWriter, r *http.Request) {
		subject := strings.TrimSpace(r.URL.Query().Get("user_id"))

		report, err := deps.Pipeline.RunOnce(r.Context(), subject)
		if err != nil {
			if errors.Is(err, domain.ErrStoreUnavailable) {
				writeError(w, http.StatusServiceUnavailable, "store unavailable")
				return
			}
			logger.Error("pipeline trigger failed", "error", err)
			writeError(w, http.StatusInternalServerError, "pipeline run failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"ok":     true,
			"report": report,
		})
	})

	r.Get("/learning/patterns", func(w http.ResponseWriter, r *http.Request) {
		q := repository.PatternQuery{
			Limit:         queryInt(r, "limit", 50),
			Offset:        queryInt(r, "offset", 0),
			Subject:       strings.TrimSpace(r.URL.Query().Get("subject")),
			PatternType:   strings.TrimSpace(r.URL.Query().Get("pattern_type")),
			MinConfidence: queryFloat(r, "min_confidence", 0),
			Order:         strings.TrimSpace(r.URL.Query().Get("order")),
			Direction:     strings.TrimSpace(r.URL.Query().Get("direction")),
		}

		total, items, err := deps.Patterns.List(r.Context(), q)
		if err != nil {
			if errors.Is(err, domain.ErrStoreUnavailable) {
				writeError(w, http.StatusServiceUnavailable, "pattern store unavailable")
				return
			}
			logger.Error("list patterns failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list patterns")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"ok":    true,
			"total": total,
			"count": len(items),
			"items": items,
			"filters": map[string]any{
				"subject":        q.Subject,
				"pattern_type":   q.PatternType,
				"min_confidence": q.MinConfidence,
			},
		})
	})

	// ---------------- STREAMING ----------------

	r.Get("/stream/events", func(w http.ResponseWriter, r *http.Request) {
		sse, ok := newSSEWriter(w)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		sub := deps.Broker.Subscribe(broker.ChannelDashboard, strings.TrimSpace(r.URL.Query().Get("session_id")))
		defer sub.Close()

		sse.start()

		ticker := time.NewTicker(dashboardPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				if err := sse.write(broker.Envelope{
					Type: broker.TypePing,
					TS:   time.Now().UTC().Format(time.RFC3339),
				}); err != nil {
					return
				}
			case env, open := <-sub.C():
				if !open {
					return
				}
				if err := sse.write(env); err != nil {
					return
				}
			}
		}
	})

	r.Get("/stream/chat", func(w http.ResponseWriter, r *http.Request) {
		if !deps.Gate.IsEnabled(gate.FeatureChat) {
			writeError(w, http.StatusServiceUnavailable, "chat streaming is disabled")
			return
		}

		prompt := strings.TrimSpace(r.URL.Query().Get("q"))
		session := strings.TrimSpace(r.URL.Query().Get("session_id"))
		if session == "" {
			session = uuid.NewString()
		}

		sse, ok := newSSEWriter(w)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		// Each chat turn rides a dedicated channel so the broker's
		// backpressure and drain rules apply to chat like any stream.
		sub := deps.Broker.Subscribe("chat:"+uuid.NewString(), "")
		defer sub.Close()

		sse.start()

		go streamChat(r.Context(), deps, logger, sub, completion.Request{
			Prompt:    prompt,
			SessionID: session,
		})

		for {
			select {
			case <-r.Context().Done():
				return
			case env, open := <-sub.C():
				if !open {
					return
				}
				if err := sse.write(env); err != nil {
					return
				}
				if env.Type == broker.TypeChatDone || env.Type == broker.TypeError {
					return
				}
			}
		}
	})

	// ---------------- ADMIN (MASTER TOKEN) ----------------

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(middleware.AdminTokenAuth(deps.AdminToken, logger))

		admin.Post("/features/{feature}/kill", func(w http.ResponseWriter, r *http.Request) {
			feature := chi.URLParam(r, "feature")
			if !adminFeatures[feature] {
				writeError(w, http.StatusNotFound, "unknown feature")
				return
			}
			deps.Gate.Kill(feature)
			writeJSON(w, http.StatusOK, map[string]any{
				"ok":      true,
				"feature": feature,
				"state":   "killed",
			})
		})

		admin.Post("/features/{feature}/disable", func(w http.ResponseWriter, r *http.Request) {
			feature := chi.URLParam(r, "feature")
			if !adminFeatures[feature] {
				writeError(w, http.StatusNotFound, "unknown feature")
				return
			}
			deps.Gate.Disable(feature)
			writeJSON(w, http.StatusOK, map[string]any{
				"ok":      true,
				"feature": feature,
				"state":   "disabled",
			})
		})

		admin.Post("/features/{feature}/enable", func(w http.ResponseWriter, r *http.Request) {
			feature := chi.URLParam(r, "feature")
			if !adminFeatures[feature] {
				writeError(w, http.StatusNotFound, "unknown feature")
				return
			}
			if err := deps.Gate.Enable(feature); err != nil {
				if errors.Is(err, domain.ErrFeatureKilled) {
					writeError(w, http.StatusConflict, "feature is killed for the process lifetime")
					return
				}
				logger.Error("enable feature failed", "feature", feature, "error", err)
				writeError(w, http.StatusInternalServerError, "failed to enable feature")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"ok":      true,
				"feature": feature,
				"state":   "enabled",
			})
		})

		admin.Get("/modules", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"ok":      true,
				"modules": deps.Modules.ListAll(),
			})
		})

		admin.Post("/modules/{name}/disable", func(w http.ResponseWriter, r *http.Request) {
			name := chi.URLParam(r, "name")
			deps.Modules.Disable(name)
			writeJSON(w, http.StatusOK, map[string]any{
				"ok":     true,
				"module": name,
				"state":  "disabled",
			})
		})

		admin.Post("/modules/{name}/enable", func(w http.ResponseWriter, r *http.Request) {
			name := chi.URLParam(r, "name")
			deps.Modules.Enable(name)
			writeJSON(w, http.StatusOK, map[string]any{
				"ok":     true,
				"module": name,
				"state":  "enabled",
			})
		})
	})

	return r
}

// streamChat drives the completion provider for one chat turn and
// records the turn as a learning event afterwards. The event append
// uses a fresh context: the turn happened even if the client is gone.
func streamChat(
	ctx context.Context,
	deps Deps,
	logger *slog.Logger,
	sub *broker.Subscription,
	req completion.Request,
) {
	streamErr := deps.Completions.Stream(ctx, req, func(delta string) error {
		if !sub.Send(broker.Envelope{
			Type:    broker.TypeChatChunk,
			Content: delta,
			Session: req.SessionID,
		}) {
			return errors.New("chat subscriber gone")
		}
		return nil
	})

	if streamErr != nil && !errors.Is(streamErr, context.Canceled) {
		logger.Error("chat stream failed", "session_id", req.SessionID, "error", streamErr)
		sub.Send(broker.Envelope{
			Type:    broker.TypeError,
			Content: "chat stream failed",
			Session: req.SessionID,
		})
	} else {
		sub.Send(broker.Envelope{
			Type:    broker.TypeChatDone,
			Session: req.SessionID,
			TS:      time.Now().UTC().Format(time.RFC3339),
		})
	}
	sub.Drain()

	if streamErr != nil || strings.TrimSpace(req.Prompt) == "" {
		return
	}

	appendCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, err := json.Marshal(map[string]string{"prompt": req.Prompt})
	if err != nil {
		return
	}
	session := req.SessionID
	if _, err := deps.Events.Append(appendCtx, domain.AppendEventParams{
		SessionID: &session,
		EventType: chatEventType,
		Source:    "chat",
		Tags:      []string{"chat"},
		Payload:   payload,
	}); err != nil {
		logger.Warn("chat event append failed", "session_id", req.SessionID, "error", err)
	}
}

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) start() {
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.Header().Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

func (s *sseWriter) write(env broker.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"ok":    false,
		"error": msg,
	})
}

func decodeLogEventRequest(r *http.Request) (logEventRequest, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return logEventRequest{}, errors.New("empty request body")
	}

	var req logEventRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return logEventRequest{}, err
	}

	// Ensure there is only one JSON object.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return logEventRequest{}, errors.New("request body must contain exactly one JSON object")
	}

	return req, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryFloat(r *http.Request, name string, fallback float64) float64 {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
