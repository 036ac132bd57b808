package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vettly/match-explainer/internal/config"
	"github.com/vettly/match-explainer/internal/domain"
	"github.com/vettly/match-explainer/internal/usecase"
)

// maxBodyBytes caps the request body.
const maxBodyBytes = 1 << 20

// stageRequest labels monitor events for requests rejected before the
// explanation service runs.
const stageRequest = "request"

// Explainer generates a match explanation.
type Explainer interface {
	Generate(ctx context.Context, req usecase.GenerateRequest) (usecase.GenerateResult, error)
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Explain    Explainer
	Monitor    domain.Monitor
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
	Now        func() time.Time
}

// NewServer constructs an HTTP server with the explanation service and checks wired.
func NewServer(cfg config.Config, explain Explainer, monitor domain.Monitor, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{
		Cfg:        cfg,
		Explain:    explain,
		Monitor:    monitor,
		DBCheck:    dbCheck,
		RedisCheck: redisCheck,
		Now:        time.Now,
	}
}

type generateRequest struct {
	MatchID   string `json:"matchId" validate:"omitempty,identifier"`
	Member1ID string `json:"member1Id" validate:"omitempty,identifier"`
	Member2ID string `json:"member2Id" validate:"omitempty,identifier"`
}

type generateResponse struct {
	MatchID            string                    `json:"matchId"`
	Member1Explanation string                    `json:"member1Explanation"`
	Member2Explanation string                    `json:"member2Explanation"`
	Member1Points      domain.StructuredPoints   `json:"member1Points"`
	Member2Points      domain.StructuredPoints   `json:"member2Points"`
	Generated          bool                      `json:"generated"`
	DataQualityScore   int                       `json:"dataQualityScore"`
	Metrics            domain.ExplanationMetrics `json:"metrics"`
}

// GenerateExplanationHandler handles POST /api/generate-explanation.
func (s *Server) GenerateExplanationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			details := map[string]any{"reason": "invalid json"}
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				details["reason"] = "body too large"
				details["limit"] = mbe.Limit
			}
			s.reject(w, r, "", domain.NewError(domain.ErrInvalidArgument, "Invalid request body", details))
			return
		}
		req.MatchID = strings.TrimSpace(req.MatchID)
		req.Member1ID = strings.TrimSpace(req.Member1ID)
		req.Member2ID = strings.TrimSpace(req.Member2ID)
		if err := getValidator().Struct(req); err != nil {
			s.reject(w, r, req.MatchID, domain.NewError(domain.ErrInvalidArgument, "Invalid identifier",
				map[string]any{"fields": validationErrors(err)}))
			return
		}

		res, err := s.Explain.Generate(r.Context(), usecase.GenerateRequest{
			MatchID:   req.MatchID,
			Member1ID: req.Member1ID,
			Member2ID: req.Member2ID,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		if res.PersistErr != nil {
			LoggerFrom(r).Warn("explanation returned without being stored",
				slog.String("match_id", res.MatchID),
				slog.Any("error", res.PersistErr))
		}
		writeJSON(w, http.StatusOK, generateResponse{
			MatchID:            res.MatchID,
			Member1Explanation: domain.Text(res.Member1),
			Member2Explanation: domain.Text(res.Member2),
			Member1Points:      domain.PointsOf(res.Member1, usecase.FallbackHeader),
			Member2Points:      domain.PointsOf(res.Member2, usecase.FallbackHeader),
			Generated:          true,
			DataQualityScore:   res.DataQualityScore,
			Metrics:            res.Metrics,
		})
	}
}

// reject reports a request refused before the explanation service runs and
// writes the error reply.
func (s *Server) reject(w http.ResponseWriter, r *http.Request, matchID string, err *domain.Error) {
	if s.Monitor != nil {
		ev := domain.ErrorEvent{
			EventID: uuid.NewString(),
			MatchID: matchID,
			Stage:   stageRequest,
			Code:    domain.Code(err),
			Message: err.Message,
			At:      s.now(),
		}
		if b, mErr := json.Marshal(err.Details); mErr == nil {
			ev.Details = string(b)
		}
		s.Monitor.LogError(r.Context(), ev)
	}
	writeError(w, r, err)
}

func (s *Server) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler probes the document store and, when configured, Redis.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		probes := []struct {
			name string
			fn   func(context.Context) error
		}{
			{"db", s.DBCheck},
			{"redis", s.RedisCheck},
		}
		checks := make([]check, 0, len(probes))
		ok := true
		for _, p := range probes {
			if p.fn == nil {
				continue
			}
			c := check{Name: p.name, OK: true}
			if err := p.fn(ctx); err != nil {
				c.OK = false
				c.Details = err.Error()
				ok = false
			}
			checks = append(checks, c)
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}

// MetricsHandler exposes the Prometheus registry.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.Handler()
}
