package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/vettly/match-explainer/internal/domain"
)

// Match document fields written by SaveExplanation.
const (
	FieldCompatibilityExplanation = "compatibilityExplanation"
	FieldMember1Explanation       = "member1Explanation"
	FieldMember2Explanation       = "member2Explanation"
	FieldExplanationMetrics       = "explanationMetrics"
	FieldExplanationGeneratedAt   = "explanationGeneratedAt"
)

// MatchRepo mutates match documents in place.
type MatchRepo struct {
	Pool PgxPool
	Now  func() time.Time
}

// NewMatchRepo constructs a MatchRepo with the given pool.
func NewMatchRepo(p PgxPool) *MatchRepo { return &MatchRepo{Pool: p, Now: time.Now} }

var _ domain.MatchRepository = (*MatchRepo)(nil)

// SaveExplanation merges the explanation fields into the match document with
// a single UPDATE. A missing match yields domain.ErrNotFound.
func (r *MatchRepo) SaveExplanation(ctx context.Context, matchID string, u domain.MatchExplanationUpdate) error {
	ctx, span := otel.Tracer("repo.matches").Start(ctx, "matches.SaveExplanation")
	defer span.End()

	patch, err := explanationPatch(u)
	if err != nil {
		return fmt.Errorf("op=match.save_explanation: %w", err)
	}
	q := `UPDATE matches SET doc = doc || $2::jsonb, updated_at = $3 WHERE id = $1`
	tag, err := r.Pool.Exec(ctx, q, matchID, patch, r.now().UTC())
	if err != nil {
		return fmt.Errorf("op=match.save_explanation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=match.save_explanation: %w", domain.ErrNotFound)
	}
	return nil
}

// Get loads a raw match document.
func (r *MatchRepo) Get(ctx context.Context, matchID string) (map[string]any, error) {
	ctx, span := otel.Tracer("repo.matches").Start(ctx, "matches.Get")
	defer span.End()

	var raw []byte
	if err := r.Pool.QueryRow(ctx, `SELECT doc FROM matches WHERE id = $1`, matchID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("op=match.get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("op=match.get: %w", err)
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("op=match.get: %w", err)
	}
	return doc, nil
}

// Upsert replaces a match document.
func (r *MatchRepo) Upsert(ctx context.Context, matchID string, doc map[string]any) error {
	ctx, span := otel.Tracer("repo.matches").Start(ctx, "matches.Upsert")
	defer span.End()

	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("op=match.upsert: %w", err)
	}
	q := `INSERT INTO matches (id, doc, updated_at) VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`
	if _, err := r.Pool.Exec(ctx, q, matchID, string(b), r.now().UTC()); err != nil {
		return fmt.Errorf("op=match.upsert: %w", err)
	}
	return nil
}

func (r *MatchRepo) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func explanationPatch(u domain.MatchExplanationUpdate) (string, error) {
	b, err := json.Marshal(map[string]any{
		FieldCompatibilityExplanation: u.Compatibility,
		FieldMember1Explanation:       u.Member1,
		FieldMember2Explanation:       u.Member2,
		FieldExplanationMetrics:       u.Metrics,
		FieldExplanationGeneratedAt:   u.Metrics.GeneratedAt,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
