package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vettly/match-explainer/internal/adapter/repo/postgres"
	"github.com/vettly/match-explainer/internal/domain"
)

var saveAt = time.Date(2024, time.June, 16, 9, 30, 0, 0, time.UTC)

func sampleUpdate() domain.MatchExplanationUpdate {
	points := domain.StructuredPoints{{Header: "Shared faith", Explanation: "You both value church."}}
	return domain.MatchExplanationUpdate{
		Compatibility: domain.PlainText(points.Render()),
		Member1:       points,
		Member2:       domain.StructuredPoints{{Header: "Family first", Explanation: "He wants kids too."}},
		Metrics: domain.ExplanationMetrics{
			TokensUsed:       321,
			LatencyMs:        1500,
			DataQualityScore: 88,
			Model:            "gpt-4o-mini",
			GeneratedAt:      saveAt,
		},
	}
}

func TestMatchRepo_SaveExplanation(t *testing.T) {
	pool := newMockPool(t)
	repo := postgres.NewMatchRepo(pool)
	repo.Now = func() time.Time { return saveAt }

	var patch string
	pool.On("Exec", mock.Anything,
		`UPDATE matches SET doc = doc || $2::jsonb, updated_at = $3 WHERE id = $1`,
		"m1", mock.AnythingOfType("string"), saveAt).
		Run(func(args mock.Arguments) { patch = args.String(3) }).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil).Once()

	require.NoError(t, repo.SaveExplanation(context.Background(), "m1", sampleUpdate()))

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(patch), &doc))
	assert.JSONEq(t, `"Shared faith: You both value church."`, string(doc[postgres.FieldCompatibilityExplanation]))
	assert.JSONEq(t, `[{"header":"Shared faith","explanation":"You both value church."}]`, string(doc[postgres.FieldMember1Explanation]))
	assert.JSONEq(t, `[{"header":"Family first","explanation":"He wants kids too."}]`, string(doc[postgres.FieldMember2Explanation]))
	assert.JSONEq(t, `{"tokensUsed":321,"latencyMs":1500,"dataQualityScore":88,"model":"gpt-4o-mini","generatedAt":"2024-06-16T09:30:00Z"}`,
		string(doc[postgres.FieldExplanationMetrics]))
	assert.JSONEq(t, `"2024-06-16T09:30:00Z"`, string(doc[postgres.FieldExplanationGeneratedAt]))

	// Every field decodes back through the tagged union.
	m1, err := domain.DecodeExplanation(doc[postgres.FieldMember1Explanation])
	require.NoError(t, err)
	assert.IsType(t, domain.StructuredPoints{}, m1)
	c, err := domain.DecodeExplanation(doc[postgres.FieldCompatibilityExplanation])
	require.NoError(t, err)
	assert.IsType(t, domain.PlainText(""), c)
}

func TestMatchRepo_SaveExplanation_NotFound(t *testing.T) {
	pool := newMockPool(t)
	repo := postgres.NewMatchRepo(pool)

	pool.On("Exec", mock.Anything, mock.Anything, "gone", mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil).Once()

	err := repo.SaveExplanation(context.Background(), "gone", sampleUpdate())
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "op=match.save_explanation")
}

func TestMatchRepo_SaveExplanation_DBError(t *testing.T) {
	pool := newMockPool(t)
	repo := postgres.NewMatchRepo(pool)

	pool.On("Exec", mock.Anything, mock.Anything, "m1", mock.Anything, mock.Anything).
		Return(pgconn.CommandTag{}, assert.AnError).Once()

	err := repo.SaveExplanation(context.Background(), "m1", sampleUpdate())
	require.ErrorIs(t, err, assert.AnError)
}

func TestMatchRepo_Get(t *testing.T) {
	pool := newMockPool(t)
	repo := postgres.NewMatchRepo(pool)

	pool.On("QueryRow", mock.Anything, mock.Anything, "m1").
		Return(rowStub{doc: []byte(`{"member1Id":"u1","member2Id":"u2"}`)}).Once()
	pool.On("QueryRow", mock.Anything, mock.Anything, "m2").Return(rowStub{err: pgx.ErrNoRows}).Once()

	doc, err := repo.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "u1", doc["member1Id"])

	_, err = repo.Get(context.Background(), "m2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMatchRepo_Upsert(t *testing.T) {
	pool := newMockPool(t)
	repo := postgres.NewMatchRepo(pool)
	repo.Now = func() time.Time { return saveAt }

	pool.On("Exec", mock.Anything, mock.Anything, "m1", `{"member1Id":"u1"}`, saveAt).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()
	require.NoError(t, repo.Upsert(context.Background(), "m1", map[string]any{"member1Id": "u1"}))
}
