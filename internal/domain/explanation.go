package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ExplanationPoint is one "why you're compatible" bullet.
type ExplanationPoint struct {
	Header      string `json:"header"`
	Explanation string `json:"explanation"`
}

// UnmarshalJSON accepts points whose fields are not strings, keeping the raw
// JSON text of numbers and booleans, and bare strings as header-less points.
func (p *ExplanationPoint) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		*p = ExplanationPoint{}
		return json.Unmarshal(b, &p.Explanation)
	}
	var raw struct {
		Header      json.RawMessage `json:"header"`
		Explanation json.RawMessage `json:"explanation"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p.Header = fieldText(raw.Header)
	p.Explanation = fieldText(raw.Explanation)
	return nil
}

func fieldText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Explanation is either PlainText or StructuredPoints.
type Explanation interface {
	isExplanation()
	// Render returns a plain-text form suitable for display.
	Render() string
}

// PlainText is a free-form explanation.
type PlainText string

// StructuredPoints is an ordered list of explanation points.
type StructuredPoints []ExplanationPoint

func (PlainText) isExplanation()        {}
func (StructuredPoints) isExplanation() {}

func (t PlainText) Render() string { return string(t) }

func (p StructuredPoints) Render() string {
	lines := make([]string, 0, len(p))
	for _, pt := range p {
		switch {
		case pt.Header == "":
			lines = append(lines, pt.Explanation)
		case pt.Explanation == "":
			lines = append(lines, pt.Header)
		default:
			lines = append(lines, pt.Header+": "+pt.Explanation)
		}
	}
	return strings.Join(lines, "\n\n")
}

// Text renders e, treating nil as empty.
func Text(e Explanation) string {
	if e == nil {
		return ""
	}
	return e.Render()
}

// PointsOf returns e as a point list. PlainText becomes one point titled
// header; empty text yields no points.
func PointsOf(e Explanation, header string) StructuredPoints {
	switch v := e.(type) {
	case StructuredPoints:
		if v == nil {
			return StructuredPoints{}
		}
		return v
	case PlainText:
		if strings.TrimSpace(string(v)) == "" {
			return StructuredPoints{}
		}
		return StructuredPoints{{Header: header, Explanation: string(v)}}
	default:
		return StructuredPoints{}
	}
}

// MarshalJSON encodes points as an array, never null.
func (p StructuredPoints) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]ExplanationPoint(p))
}

// DecodeExplanation accepts either a JSON string or an array of points.
func DecodeExplanation(raw json.RawMessage) (Explanation, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: empty explanation", ErrInvalidArgument)
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("op=explanation.decode: %w", err)
		}
		return PlainText(s), nil
	case '[':
		var pts []ExplanationPoint
		if err := json.Unmarshal(trimmed, &pts); err != nil {
			return nil, fmt.Errorf("op=explanation.decode: %w", err)
		}
		return StructuredPoints(pts), nil
	default:
		return nil, fmt.Errorf("%w: explanation must be a string or an array", ErrInvalidArgument)
	}
}
