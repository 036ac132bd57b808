package seed_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vettly/match-explainer/internal/seed"
)

type writerMock struct{ mock.Mock }

func (m *writerMock) Upsert(ctx context.Context, id string, doc map[string]any) error {
	return m.Called(ctx, id, doc).Error(0)
}

func loadTestdata(t *testing.T) seed.Fixtures {
	t.Helper()
	f, err := seed.LoadFile(filepath.Join("testdata", "fixtures.yaml"))
	require.NoError(t, err)
	return f
}

func TestLoadFile_Testdata(t *testing.T) {
	f := loadTestdata(t)
	require.Len(t, f.Users, 3)
	require.Len(t, f.Matches, 2)
	assert.Equal(t, "u-ada", f.Users[0].ID)
	answers, ok := f.Users[0].Doc["questionnaireAnswers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"hiking", "choir", "chess"}, answers["about_hobbies"])
}

func TestLoadFile_PathRules(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "fixtures.yaml")
	require.NoError(t, os.WriteFile(p, []byte("users:\n  - id: u1\n"), 0o600))

	_, err := seed.LoadFile(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disallowed path")

	t.Setenv(seed.AllowAbsPathsEnv, "1")
	f, err := seed.LoadFile(p)
	require.NoError(t, err)
	require.Len(t, f.Users, 1)
	assert.NotNil(t, f.Users[0].Doc)

	_, err = seed.LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed file not found")
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "users: [", "yaml parse"},
		{"empty", "users: []\n", "no fixtures"},
		{"missing user id", "users:\n  - doc: {firstName: A}\n", "users[0]: id is required"},
		{"duplicate user", "users:\n  - id: u1\n  - id: u1\n", `duplicate id "u1"`},
		{"missing member", "users:\n  - id: u1\nmatches:\n  - id: m1\n    doc: {member1Id: u1}\n", "member2Id is required"},
		{"unknown member", "users:\n  - id: u1\nmatches:\n  - id: m1\n    doc: {member1Id: u1, member2Id: u9}\n", `member2Id "u9" is not a seeded user`},
		{"duplicate match", "users:\n  - id: u1\nmatches:\n  - id: m1\n    doc: {member1Id: u1, member2Id: u1}\n  - id: m1\n    doc: {member1Id: u1, member2Id: u1}\n", `matches[1]: duplicate id "m1"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := seed.Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSummarize_ScoresMatches(t *testing.T) {
	r := seed.Summarize(loadTestdata(t))
	assert.Equal(t, 3, r.Users)
	require.Len(t, r.Matches, 2)
	assert.Equal(t, seed.MatchSummary{
		MatchID:          "m-ada-tunde",
		Member1ID:        "u-ada",
		Member2ID:        "u-tunde",
		DataQualityScore: 81,
		Eligible:         true,
	}, r.Matches[0])
	assert.Equal(t, 35, r.Matches[1].DataQualityScore)
	assert.False(t, r.Matches[1].Eligible)
}

func TestApply_UsersBeforeMatches(t *testing.T) {
	f := loadTestdata(t)
	var order []string
	users := &writerMock{}
	users.On("Upsert", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { order = append(order, "user:"+args.String(1)) }).
		Return(nil).Times(3)
	matches := &writerMock{}
	matches.On("Upsert", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { order = append(order, "match:"+args.String(1)) }).
		Return(nil).Times(2)

	r, err := seed.Apply(context.Background(), f, users, matches)
	require.NoError(t, err)
	assert.Len(t, r.Matches, 2)
	assert.Equal(t, []string{"user:u-ada", "user:u-tunde", "user:u-sparse", "match:m-ada-tunde", "match:m-tunde-sparse"}, order)
	users.AssertExpectations(t)
	matches.AssertExpectations(t)
}

func TestApply_StopsOnError(t *testing.T) {
	f := loadTestdata(t)
	users := &writerMock{}
	users.On("Upsert", mock.Anything, "u-ada", mock.Anything).Return(errors.New("conn reset")).Once()
	matches := &writerMock{}

	_, err := seed.Apply(context.Background(), f, users, matches)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=seed.apply: user u-ada")
	matches.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	r := seed.Summarize(loadTestdata(t))
	r.DryRun = true
	seed.Render(&buf, r)
	out := strings.ToLower(buf.String())
	assert.Contains(t, out, "seed plan (dry run)")
	assert.Contains(t, out, "m-ada-tunde")
	assert.Contains(t, out, "81%")
	assert.Contains(t, out, "1 eligible")
}
