// Package seed loads user and match fixtures from YAML into the document store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/vettly/match-explainer/internal/domain"
	"github.com/vettly/match-explainer/internal/usecase"
)

// AllowAbsPathsEnv lifts the working-directory restriction on fixture paths.
const AllowAbsPathsEnv = "SEED_ALLOW_ABSPATHS"

// Document is one fixture: a stable id and the stored JSON document.
type Document struct {
	ID  string         `yaml:"id"`
	Doc map[string]any `yaml:"doc"`
}

// Fixtures is the YAML file layout.
type Fixtures struct {
	Users   []Document `yaml:"users"`
	Matches []Document `yaml:"matches"`
}

// DocumentWriter stores a document under an id, replacing any previous one.
type DocumentWriter interface {
	Upsert(ctx context.Context, id string, doc map[string]any) error
}

// MatchSummary describes one seeded match.
type MatchSummary struct {
	MatchID          string
	Member1ID        string
	Member2ID        string
	DataQualityScore int
	Eligible         bool
}

// Report is the outcome of a seed run.
type Report struct {
	Users   int
	Matches []MatchSummary
	DryRun  bool
}

// LoadFile reads and validates a fixtures file. Paths outside the working
// directory are rejected unless SEED_ALLOW_ABSPATHS=1.
func LoadFile(path string) (Fixtures, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Fixtures{}, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return Fixtures{}, err
	}
	abs = filepath.Clean(abs)
	wd = filepath.Clean(wd)
	if os.Getenv(AllowAbsPathsEnv) != "1" {
		if !strings.HasPrefix(abs, wd+string(os.PathSeparator)) && abs != wd {
			return Fixtures{}, fmt.Errorf("disallowed path: %s", abs)
		}
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Fixtures{}, fmt.Errorf("seed file not found: %s", path)
		}
		return Fixtures{}, err
	}
	return Parse(b)
}

// Parse decodes fixtures and checks ids and match member references.
func Parse(b []byte) (Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Fixtures{}, fmt.Errorf("yaml parse: %w", err)
	}
	if len(f.Users) == 0 && len(f.Matches) == 0 {
		return Fixtures{}, errors.New("no fixtures to seed")
	}
	users := make(map[string]struct{}, len(f.Users))
	for i, u := range f.Users {
		id := strings.TrimSpace(u.ID)
		if id == "" {
			return Fixtures{}, fmt.Errorf("users[%d]: id is required", i)
		}
		if _, dup := users[id]; dup {
			return Fixtures{}, fmt.Errorf("users[%d]: duplicate id %q", i, id)
		}
		users[id] = struct{}{}
		f.Users[i].ID = id
		if f.Users[i].Doc == nil {
			f.Users[i].Doc = map[string]any{}
		}
	}
	matches := make(map[string]struct{}, len(f.Matches))
	for i, m := range f.Matches {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return Fixtures{}, fmt.Errorf("matches[%d]: id is required", i)
		}
		if _, dup := matches[id]; dup {
			return Fixtures{}, fmt.Errorf("matches[%d]: duplicate id %q", i, id)
		}
		matches[id] = struct{}{}
		f.Matches[i].ID = id
		for _, key := range []string{"member1Id", "member2Id"} {
			ref, _ := m.Doc[key].(string)
			if ref == "" {
				return Fixtures{}, fmt.Errorf("matches[%d]: %s is required", i, key)
			}
			if _, ok := users[ref]; !ok {
				return Fixtures{}, fmt.Errorf("matches[%d]: %s %q is not a seeded user", i, key, ref)
			}
		}
	}
	return f, nil
}

// Summarize scores every match without touching the store.
func Summarize(f Fixtures) Report {
	profiles := make(map[string]domain.UserProfile, len(f.Users))
	for _, u := range f.Users {
		profiles[u.ID] = domain.NewUserProfile(u.ID, u.Doc)
	}
	r := Report{Users: len(f.Users), Matches: make([]MatchSummary, 0, len(f.Matches))}
	for _, m := range f.Matches {
		m1, _ := m.Doc["member1Id"].(string)
		m2, _ := m.Doc["member2Id"].(string)
		score := usecase.DataQualityScore(profiles[m1], profiles[m2])
		r.Matches = append(r.Matches, MatchSummary{
			MatchID:          m.ID,
			Member1ID:        m1,
			Member2ID:        m2,
			DataQualityScore: score,
			Eligible:         score >= usecase.MinDataQualityScore,
		})
	}
	return r
}

// Apply upserts users first, then matches, and returns the summary.
func Apply(ctx context.Context, f Fixtures, users, matches DocumentWriter) (Report, error) {
	for _, u := range f.Users {
		if err := users.Upsert(ctx, u.ID, u.Doc); err != nil {
			return Report{}, fmt.Errorf("op=seed.apply: user %s: %w", u.ID, err)
		}
	}
	for _, m := range f.Matches {
		if err := matches.Upsert(ctx, m.ID, m.Doc); err != nil {
			return Report{}, fmt.Errorf("op=seed.apply: match %s: %w", m.ID, err)
		}
	}
	return Summarize(f), nil
}

// Render writes the report as a table.
func Render(w io.Writer, r Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if r.DryRun {
		t.SetTitle("Seed plan (dry run)")
	} else {
		t.SetTitle("Seeded fixtures")
	}
	t.AppendHeader(table.Row{"Match", "Member 1", "Member 2", "Data Quality", "Eligible"})
	eligible := 0
	for _, m := range r.Matches {
		mark := "no"
		if m.Eligible {
			mark = "yes"
			eligible++
		}
		t.AppendRow(table.Row{m.MatchID, m.Member1ID, m.Member2ID, fmt.Sprintf("%d%%", m.DataQualityScore), mark})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d users", r.Users), "", "", fmt.Sprintf("%d matches", len(r.Matches)), fmt.Sprintf("%d eligible", eligible)})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	t.Render()
}
