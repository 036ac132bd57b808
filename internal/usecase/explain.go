// Package usecase implements the match-explanation pipeline: scoring, profile
// formatting, prompt building, reply parsing and the orchestration around them.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vettly/match-explainer/internal/domain"
)

// Monitoring stages reported on error events.
const (
	StageValidate    = "validate"
	StageCredentials = "credentials"
	StageFetch       = "fetch"
	StageQuality     = "quality"
	StageLLM         = "llm"
	StagePersist     = "persist"
)

const (
	msgMissingParams      = "Missing required parameters"
	msgMissingCredentials = "OpenAI API key not configured"
	msgUsersNotFound      = "One or both users not found"
	msgInsufficientData   = "Insufficient questionnaire data"
	msgGenerationFailed   = "Failed to generate explanation"
	msgFetchFailed        = "Failed to load user profiles"
)

// GenerateRequest identifies the match and its two members.
type GenerateRequest struct {
	MatchID   string
	Member1ID string
	Member2ID string
}

// GenerateResult is the compute-phase output plus the persist-phase report.
type GenerateResult struct {
	MatchID          string
	Member1          domain.Explanation
	Member2          domain.Explanation
	DataQualityScore int
	Metrics          domain.ExplanationMetrics
	ParseOutcome     ParseOutcome
	// PersistErr is set when the match document could not be updated. It
	// never turns a computed explanation into a failed request.
	PersistErr error
}

// ExplainService generates and stores compatibility explanations.
type ExplainService struct {
	Users   domain.UserRepository
	Matches domain.MatchRepository
	Chat    domain.ChatClient
	Monitor domain.Monitor
	// CredentialsConfigured reports whether the LLM API key is present.
	CredentialsConfigured bool
	Now                   func() time.Time
}

// NewExplainService constructs an ExplainService with the given collaborators.
func NewExplainService(users domain.UserRepository, matches domain.MatchRepository, chat domain.ChatClient, monitor domain.Monitor, credentialsConfigured bool) ExplainService {
	return ExplainService{
		Users:                 users,
		Matches:               matches,
		Chat:                  chat,
		Monitor:               monitor,
		CredentialsConfigured: credentialsConfigured,
		Now:                   time.Now,
	}
}

// Generate runs compute then persist. The returned error reflects the compute
// phase only; persistence failures are reported through the monitor and
// GenerateResult.PersistErr.
func (s ExplainService) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	req = normalizeRequest(req)
	res, err := s.Compute(ctx, req)
	if err != nil {
		return GenerateResult{}, err
	}
	res.PersistErr = s.Persist(ctx, res)
	s.Monitor.LogSuccess(ctx, domain.MetricsEvent{
		EventID:          uuid.NewString(),
		MatchID:          req.MatchID,
		Member1ID:        req.Member1ID,
		Member2ID:        req.Member2ID,
		Model:            res.Metrics.Model,
		TokensUsed:       res.Metrics.TokensUsed,
		LatencyMs:        res.Metrics.LatencyMs,
		DataQualityScore: res.DataQualityScore,
		ParseOutcome:     string(res.ParseOutcome),
		Persisted:        res.PersistErr == nil,
		At:               s.now(),
	})
	return res, nil
}

// Compute validates the request, loads both profiles, scores them, calls the
// model once and parses its reply. It has no side effects besides monitoring.
func (s ExplainService) Compute(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	req = normalizeRequest(req)
	if missing := missingParams(req); len(missing) > 0 {
		return GenerateResult{}, s.fail(ctx, req.MatchID, StageValidate,
			domain.NewError(domain.ErrInvalidArgument, msgMissingParams, map[string]any{"missing": missing}))
	}
	if !s.CredentialsConfigured {
		return GenerateResult{}, s.fail(ctx, req.MatchID, StageCredentials,
			domain.NewError(domain.ErrMissingCredentials, msgMissingCredentials, nil))
	}

	p1, p2, err := s.fetchProfiles(ctx, req)
	if err != nil {
		return GenerateResult{}, s.fail(ctx, req.MatchID, StageFetch, err)
	}

	score := DataQualityScore(p1, p2)
	if score < MinDataQualityScore {
		return GenerateResult{}, s.fail(ctx, req.MatchID, StageQuality,
			domain.NewError(domain.ErrInsufficientData, msgInsufficientData, map[string]any{
				"dataQualityScore": score,
				"minimumRequired":  MinDataQualityScore,
				"message":          fmt.Sprintf("Data quality score is %d%%. At least %d%% is required to generate an explanation.", score, MinDataQualityScore),
			}))
	}

	now := s.now()
	prompt := BuildPrompt(FormatProfile(p1, now), FormatProfile(p2, now))
	slog.Debug("requesting match explanation",
		slog.String("match_id", req.MatchID),
		slog.Int("data_quality_score", score),
		slog.Int("prompt_chars", len(prompt)))

	start := time.Now()
	reply, err := s.Chat.Complete(ctx, domain.ChatRequest{
		SystemPrompt: SystemPrompt,
		UserPrompt:   prompt,
		Temperature:  ChatTemperature,
		MaxTokens:    ChatMaxTokens,
	})
	latency := time.Since(start)
	if err != nil {
		return GenerateResult{}, s.fail(ctx, req.MatchID, StageLLM, chatError(err))
	}

	parsed := ParseExplanation(reply.Content)
	if parsed.Outcome != ParseStructured {
		slog.Warn("model reply did not follow the structured contract",
			slog.String("match_id", req.MatchID),
			slog.String("outcome", string(parsed.Outcome)))
	}

	return GenerateResult{
		MatchID:          req.MatchID,
		Member1:          parsed.Member1,
		Member2:          parsed.Member2,
		DataQualityScore: score,
		ParseOutcome:     parsed.Outcome,
		Metrics: domain.ExplanationMetrics{
			TokensUsed:       reply.TotalTokens,
			LatencyMs:        latency.Milliseconds(),
			DataQualityScore: score,
			Model:            reply.Model,
			GeneratedAt:      s.now().UTC(),
		},
	}, nil
}

// Persist writes the computed explanation onto the match document in one
// update. Failures are reported to the monitor and returned.
func (s ExplainService) Persist(ctx context.Context, res GenerateResult) error {
	update := domain.MatchExplanationUpdate{
		Compatibility: domain.PlainText(domain.Text(res.Member1)),
		Member1:       res.Member1,
		Member2:       res.Member2,
		Metrics:       res.Metrics,
	}
	if err := s.Matches.SaveExplanation(ctx, res.MatchID, update); err != nil {
		slog.Error("failed to persist match explanation",
			slog.String("match_id", res.MatchID),
			slog.Any("error", err))
		s.report(ctx, res.MatchID, StagePersist, err)
		return fmt.Errorf("op=explain.persist: %w", err)
	}
	return nil
}

func (s ExplainService) fetchProfiles(ctx context.Context, req GenerateRequest) (domain.UserProfile, domain.UserProfile, error) {
	var (
		p1, p2         domain.UserProfile
		found1, found2 bool
	)
	g, gctx := errgroup.WithContext(ctx)
	load := func(id string, dst *domain.UserProfile, found *bool) func() error {
		return func() error {
			p, err := s.Users.Get(gctx, id)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			*dst, *found = p, true
			return nil
		}
	}
	g.Go(load(req.Member1ID, &p1, &found1))
	g.Go(load(req.Member2ID, &p2, &found2))
	if err := g.Wait(); err != nil {
		return p1, p2, domain.NewError(domain.ErrInternal, msgFetchFailed, err.Error())
	}
	if !found1 || !found2 {
		return p1, p2, domain.NewError(domain.ErrNotFound, msgUsersNotFound, map[string]any{
			"member1Found": found1,
			"member2Found": found2,
		})
	}
	return p1, p2, nil
}

// fail reports err to the monitor and returns it unchanged.
func (s ExplainService) fail(ctx context.Context, matchID, stage string, err error) error {
	slog.Warn("match explanation failed",
		slog.String("match_id", matchID),
		slog.String("stage", stage),
		slog.String("code", domain.Code(err)),
		slog.Any("error", err))
	s.report(ctx, matchID, stage, err)
	return err
}

func (s ExplainService) report(ctx context.Context, matchID, stage string, err error) {
	ev := domain.ErrorEvent{
		EventID: uuid.NewString(),
		MatchID: matchID,
		Stage:   stage,
		Code:    domain.Code(err),
		Message: err.Error(),
		At:      s.now(),
	}
	var de *domain.Error
	if errors.As(err, &de) && de.Details != nil {
		ev.Details = detailsString(de.Details)
	}
	s.Monitor.LogError(ctx, ev)
}

func detailsString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func (s ExplainService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// chatError maps a chat client failure onto the service taxonomy.
func chatError(err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	var ue *domain.UpstreamError
	if errors.As(err, &ue) {
		return domain.NewError(domain.ErrUpstream, ue.Error(), ue.Body)
	}
	if errors.Is(err, domain.ErrUpstream) {
		return domain.NewError(domain.ErrUpstream, err.Error(), nil)
	}
	return domain.NewError(domain.ErrInternal, msgGenerationFailed, err.Error())
}

func normalizeRequest(req GenerateRequest) GenerateRequest {
	return GenerateRequest{
		MatchID:   strings.TrimSpace(req.MatchID),
		Member1ID: strings.TrimSpace(req.Member1ID),
		Member2ID: strings.TrimSpace(req.Member2ID),
	}
}

func missingParams(req GenerateRequest) []string {
	var missing []string
	if req.MatchID == "" {
		missing = append(missing, "matchId")
	}
	if req.Member1ID == "" {
		missing = append(missing, "member1Id")
	}
	if req.Member2ID == "" {
		missing = append(missing, "member2Id")
	}
	return missing
}
