package usecase

import (
	"encoding/json"
	"strings"

	"github.com/vettly/match-explainer/internal/domain"
)

// FallbackHeader titles the single point used when the reply is not structured.
const FallbackHeader = "Why You're Compatible"

// ParseOutcome records which branch of the fallback chain produced the result.
type ParseOutcome string

const (
	ParseStructured  ParseOutcome = "structured"
	ParseWrongShape  ParseOutcome = "wrong_shape"
	ParseInvalidJSON ParseOutcome = "invalid_json"
)

// ParsedExplanation holds one explanation per member.
type ParsedExplanation struct {
	Member1 domain.Explanation
	Member2 domain.Explanation
	Outcome ParseOutcome
}

// ParseExplanation turns the raw model reply into two explanations. A JSON
// object carrying both member keys is used as is, each value being either a
// string or a point array. Anything else becomes a single point holding the
// trimmed text on both sides; Outcome tells the fallbacks apart.
func ParseExplanation(content string) ParsedExplanation {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		if json.Valid([]byte(content)) {
			// Valid JSON that is not an object, e.g. a bare array or string.
			return fallbackExplanation(content, ParseWrongShape)
		}
		return fallbackExplanation(content, ParseInvalidJSON)
	}
	m1, ok1 := decodeMember(doc["member1Explanation"])
	m2, ok2 := decodeMember(doc["member2Explanation"])
	if !ok1 || !ok2 {
		return fallbackExplanation(content, ParseWrongShape)
	}
	return ParsedExplanation{Member1: m1, Member2: m2, Outcome: ParseStructured}
}

// decodeMember rejects absent, null and blank values.
func decodeMember(raw json.RawMessage) (domain.Explanation, bool) {
	e, err := domain.DecodeExplanation(raw)
	if err != nil {
		return nil, false
	}
	if t, ok := e.(domain.PlainText); ok {
		if strings.TrimSpace(string(t)) == "" {
			return nil, false
		}
		return domain.PlainText(strings.TrimSpace(string(t))), true
	}
	return e, true
}

func fallbackExplanation(content string, outcome ParseOutcome) ParsedExplanation {
	text := strings.TrimSpace(content)
	return ParsedExplanation{
		Member1: domain.StructuredPoints{{Header: FallbackHeader, Explanation: text}},
		Member2: domain.StructuredPoints{{Header: FallbackHeader, Explanation: text}},
		Outcome: outcome,
	}
}
