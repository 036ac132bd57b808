//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vettly/match-explainer/internal/adapter/ai/openai"
	httpserver "github.com/vettly/match-explainer/internal/adapter/httpserver"
	"github.com/vettly/match-explainer/internal/adapter/monitor"
	"github.com/vettly/match-explainer/internal/adapter/monitor/redisstream"
	"github.com/vettly/match-explainer/internal/adapter/observability"
	"github.com/vettly/match-explainer/internal/adapter/repo/postgres"
	"github.com/vettly/match-explainer/internal/app"
	"github.com/vettly/match-explainer/internal/config"
	"github.com/vettly/match-explainer/internal/seed"
	"github.com/vettly/match-explainer/internal/usecase"
)

const fixtures = `
users:
  - id: u-ada
    doc:
      firstName: Ada
      lastName: Okafor
      email: ada@example.com
      phone: "+234 801 000 0001"
      dob: "15.06.1992"
      gender: female
      location: Lagos
      maritalStatus: single
      questionnaireAnswers:
        about_occupation: Civil engineer
        about_hobbies: [hiking, choir]
        values_religion: Christian
        values_family: Family comes first
        lifestyle_exercise: 3 times a week
        relationship_goals: Marriage
        relationship_children: true
  - id: u-tunde
    doc:
      firstName: Tunde
      lastName: Bello
      email: tunde@example.com
      dob: "02.11.1989"
      gender: male
      location: Abuja
      maritalStatus: single
      questionnaireAnswers:
        about_occupation: Architect
        about_hobbies: [hiking, photography]
        values_religion: Christian
        values_family: Close to my parents
        lifestyle_exercise: Daily runs
        relationship_goals: Marriage
        relationship_children: true
matches:
  - id: m-ada-tunde
    doc:
      member1Id: u-ada
      member2Id: u-tunde
      status: introduced
`

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "vettly"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(90 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })
	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://postgres:postgres@%s:%s/vettly?sslmode=disable", host, port.Port())
}

func startRedis(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })
	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func fakeOpenAI(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream unavailable"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "gpt-4o-mini-2024-07-18",
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
			"usage":   map[string]any{"total_tokens": 412},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

type stack struct {
	handler http.Handler
	matches *postgres.MatchRepo
	mon     *monitor.Monitor
	rdb     *redis.Client
	cfg     config.Config
}

func buildStack(t *testing.T, ctx context.Context, dbURL, redisURL, llmURL string) stack {
	t.Helper()
	cfg := config.Config{
		AppEnv:              "test",
		DBURL:               dbURL,
		DBConnectMaxElapsed: 30 * time.Second,
		DBMaxConns:          4,
		RedisURL:            redisURL,
		RedisStreamKey:      "vettly:explanation-events",
		RedisStreamMax:      100,
		OpenAIAPIKey:        "sk-test",
		OpenAIBaseURL:       llmURL,
		OpenAIModel:         "gpt-4o-mini",
		OpenAITimeout:       5 * time.Second,
		RequestTimeout:      10 * time.Second,
	}
	observability.InitMetrics()

	pool, err := postgres.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.EnsureSchema(ctx, pool))

	f, err := seed.Parse([]byte(fixtures))
	require.NoError(t, err)
	users := postgres.NewUserRepo(pool)
	matches := postgres.NewMatchRepo(pool)
	_, err = seed.Apply(ctx, f, users, matches)
	require.NoError(t, err)

	pub, err := redisstream.Connect(ctx, cfg.RedisURL, cfg.RedisStreamKey, cfg.RedisStreamMax)
	require.NoError(t, err)
	mon := monitor.New(monitor.DefaultPublishTimeout, pub)

	svc := usecase.NewExplainService(users, matches, openai.New(cfg), mon, cfg.OpenAIConfigured())
	dbCheck, redisCheck := app.BuildReadinessChecks(pool, pub)
	srv := httpserver.NewServer(cfg, svc, mon, dbCheck, redisCheck)

	opt, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	t.Cleanup(func() { _ = rdb.Close() })

	return stack{handler: app.BuildRouter(cfg, srv), matches: matches, mon: mon, rdb: rdb, cfg: cfg}
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/generate-explanation", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

func streamTypes(t *testing.T, ctx context.Context, s stack) []string {
	t.Helper()
	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, s.mon.Close(flushCtx))
	msgs, err := s.rdb.XRange(ctx, s.cfg.RedisStreamKey, "-", "+").Result()
	require.NoError(t, err)
	types := make([]string, 0, len(msgs))
	for _, m := range msgs {
		types = append(types, fmt.Sprint(m.Values["type"]))
	}
	return types
}

func TestGenerateExplanation_EndToEnd(t *testing.T) {
	ctx := context.Background()
	dbURL := startPostgres(t, ctx)
	redisURL := startRedis(t, ctx)
	reply := `{"member1Explanation":[{"header":"Shared faith","explanation":"You both value church."}],` +
		`"member2Explanation":[{"header":"Family first","explanation":"She puts family first too."}]}`
	s := buildStack(t, ctx, dbURL, redisURL, fakeOpenAI(t, http.StatusOK, reply).URL)

	rec := post(s.handler, `{"matchId":"m-ada-tunde","member1Id":"u-ada","member2Id":"u-tunde"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Shared faith: You both value church.", body["member1Explanation"])
	assert.Equal(t, true, body["generated"])

	doc, err := s.matches.Get(ctx, "m-ada-tunde")
	require.NoError(t, err)
	assert.Equal(t, "introduced", doc["status"])
	assert.Equal(t, "Shared faith: You both value church.", doc["compatibilityExplanation"])
	m2, ok := doc["member2Explanation"].([]any)
	require.True(t, ok)
	require.Len(t, m2, 1)
	metrics, ok := doc["explanationMetrics"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 412, metrics["tokensUsed"])
	assert.Equal(t, "gpt-4o-mini-2024-07-18", metrics["model"])
	assert.NotEmpty(t, doc["explanationGeneratedAt"])

	assert.Equal(t, []string{monitor.TypeSuccess}, streamTypes(t, ctx, s))
}

func TestGenerateExplanation_UpstreamFailureLeavesMatchUntouched(t *testing.T) {
	ctx := context.Background()
	dbURL := startPostgres(t, ctx)
	redisURL := startRedis(t, ctx)
	s := buildStack(t, ctx, dbURL, redisURL, fakeOpenAI(t, http.StatusBadGateway, "").URL)

	rec := post(s.handler, `{"matchId":"m-ada-tunde","member1Id":"u-ada","member2Id":"u-tunde"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "API error: 502")
	assert.Contains(t, rec.Body.String(), "upstream unavailable")

	doc, err := s.matches.Get(ctx, "m-ada-tunde")
	require.NoError(t, err)
	assert.NotContains(t, doc, "member1Explanation")
	assert.NotContains(t, doc, "explanationMetrics")

	assert.Equal(t, []string{monitor.TypeError}, streamTypes(t, ctx, s))
}

func TestReadyz_WithContainers(t *testing.T) {
	ctx := context.Background()
	dbURL := startPostgres(t, ctx)
	mr := miniredis.RunT(t)
	s := buildStack(t, ctx, dbURL, "redis://"+mr.Addr()+"/0", fakeOpenAI(t, http.StatusOK, "{}").URL)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"checks":[{"name":"db","ok":true},{"name":"redis","ok":true}]}`, rec.Body.String())
}
