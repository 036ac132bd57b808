// Package domain defines the documents, ports and error taxonomy of the
// match-explanation service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrNotFound           = errors.New("not found")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrUpstream           = errors.New("upstream error")
	ErrInternal           = errors.New("internal error")
)

// Error carries a user-facing message and optional details on top of a
// sentinel kind. errors.Is(err, domain.ErrNotFound) works through it.
type Error struct {
	Kind    error
	Message string
	Details any
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

// NewError builds an *Error of the given kind.
func NewError(kind error, message string, details any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// UpstreamError is a non-2xx reply from the chat-completion provider.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string { return fmt.Sprintf("API error: %d", e.Status) }

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// Code maps an error to its stable machine-readable code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	case errors.Is(err, ErrMissingCredentials):
		return "MISSING_CREDENTIALS"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInsufficientData):
		return "INSUFFICIENT_DATA"
	case errors.Is(err, ErrUpstream):
		return "UPSTREAM_ERROR"
	default:
		return "INTERNAL"
	}
}

// QuestionnaireAnswersField is the document field holding survey answers.
const QuestionnaireAnswersField = "questionnaireAnswers"

// UserProfile is a loosely typed user document. Any field may be absent.
type UserProfile struct {
	ID      string
	Fields  map[string]any
	Answers map[string]any
}

// NewUserProfile splits a raw document into root fields and questionnaire
// answers. A missing or non-object questionnaireAnswers yields an empty map.
func NewUserProfile(id string, doc map[string]any) UserProfile {
	fields := make(map[string]any, len(doc))
	answers := map[string]any{}
	for k, v := range doc {
		if k == QuestionnaireAnswersField {
			if m, ok := v.(map[string]any); ok {
				answers = m
			}
			continue
		}
		fields[k] = v
	}
	return UserProfile{ID: id, Fields: fields, Answers: answers}
}

// Field returns a root-level field or nil.
func (p UserProfile) Field(key string) any {
	if p.Fields == nil {
		return nil
	}
	return p.Fields[key]
}

// Answer returns a questionnaire answer or nil.
func (p UserProfile) Answer(key string) any {
	if p.Answers == nil {
		return nil
	}
	return p.Answers[key]
}

// ExplanationMetrics is stored alongside the generated explanation.
type ExplanationMetrics struct {
	TokensUsed       int       `json:"tokensUsed"`
	LatencyMs        int64     `json:"latencyMs"`
	DataQualityScore int       `json:"dataQualityScore"`
	Model            string    `json:"model"`
	GeneratedAt      time.Time `json:"generatedAt"`
}

// MatchExplanationUpdate is the in-place mutation applied to a match document.
type MatchExplanationUpdate struct {
	Compatibility Explanation
	Member1       Explanation
	Member2       Explanation
	Metrics       ExplanationMetrics
}

// Repositories (ports)

type UserRepository interface {
	Get(ctx context.Context, id string) (UserProfile, error)
}

type MatchRepository interface {
	SaveExplanation(ctx context.Context, matchID string, u MatchExplanationUpdate) error
}

// ChatRequest is a single chat-completion call.
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

// ChatResult is the provider reply plus usage data.
type ChatResult struct {
	Content     string
	Model       string
	TotalTokens int
}

// ChatClient (port)
type ChatClient interface {
	Complete(ctx context.Context, req ChatRequest) (ChatResult, error)
}

// MetricsEvent is reported after a successful generation.
type MetricsEvent struct {
	EventID          string    `json:"eventId"`
	MatchID          string    `json:"matchId"`
	Member1ID        string    `json:"member1Id"`
	Member2ID        string    `json:"member2Id"`
	Model            string    `json:"model"`
	TokensUsed       int       `json:"tokensUsed"`
	LatencyMs        int64     `json:"latencyMs"`
	DataQualityScore int       `json:"dataQualityScore"`
	ParseOutcome     string    `json:"parseOutcome"`
	Persisted        bool      `json:"persisted"`
	At               time.Time `json:"at"`
}

// ErrorEvent is reported for every failed stage.
type ErrorEvent struct {
	EventID string    `json:"eventId"`
	MatchID string    `json:"matchId"`
	Stage   string    `json:"stage"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	At      time.Time `json:"at"`
}

// Monitor (port). Implementations must not block the caller on delivery.
type Monitor interface {
	LogSuccess(ctx context.Context, ev MetricsEvent)
	LogError(ctx context.Context, ev ErrorEvent)
}
