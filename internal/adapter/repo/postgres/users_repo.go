package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/vettly/match-explainer/internal/domain"
)

// UserRepo loads user documents.
type UserRepo struct{ Pool PgxPool }

// NewUserRepo constructs a UserRepo with the given pool.
func NewUserRepo(p PgxPool) *UserRepo { return &UserRepo{Pool: p} }

var _ domain.UserRepository = (*UserRepo)(nil)

// Get loads a user document by id.
func (r *UserRepo) Get(ctx context.Context, id string) (domain.UserProfile, error) {
	ctx, span := otel.Tracer("repo.users").Start(ctx, "users.Get")
	defer span.End()

	var raw []byte
	if err := r.Pool.QueryRow(ctx, `SELECT doc FROM users WHERE id = $1`, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserProfile{}, fmt.Errorf("op=user.get: %w", domain.ErrNotFound)
		}
		return domain.UserProfile{}, fmt.Errorf("op=user.get: %w", err)
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("op=user.get: %w", err)
	}
	return domain.NewUserProfile(id, doc), nil
}

// Upsert replaces a user document.
func (r *UserRepo) Upsert(ctx context.Context, id string, doc map[string]any) error {
	ctx, span := otel.Tracer("repo.users").Start(ctx, "users.Upsert")
	defer span.End()

	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("op=user.upsert: %w", err)
	}
	q := `INSERT INTO users (id, doc) VALUES ($1, $2::jsonb) ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`
	if _, err := r.Pool.Exec(ctx, q, id, string(b)); err != nil {
		return fmt.Errorf("op=user.upsert: %w", err)
	}
	return nil
}

// decodeDocument turns a JSONB column into a generic document. SQL null and
// JSON null both decode to an empty document.
func decodeDocument(raw []byte) (map[string]any, error) {
	doc := map[string]any{}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}
