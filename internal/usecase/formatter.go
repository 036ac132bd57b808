package usecase

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vettly/match-explainer/internal/domain"
	"github.com/vettly/match-explainer/pkg/textx"
)

type profileLine struct {
	Label string
	Key   string
}

// ProfileLines is the fixed, ordered set of questionnaire answers rendered with a label.
var ProfileLines = []profileLine{
	{"Occupation", "about_occupation"},
	{"Education", "about_education"},
	{"Hobbies & Interests", "about_hobbies"},
	{"Personality", "about_personality"},
	{"Relationship Goals", "relationship_goals"},
	{"Wants Children", "relationship_children"},
	{"Love Language", "relationship_loveLanguage"},
	{"Religion", "values_religion"},
	{"Political Views", "values_politics"},
	{"Family Values", "values_family"},
	{"Smoking", "lifestyle_smoking"},
	{"Drinking", "lifestyle_drinking"},
	{"Exercise", "lifestyle_exercise"},
	{"Ideal Partner", "partner_idealTraits"},
}

const (
	unknownValue     = "Unknown"
	notSpecified     = "Not specified"
	generalNamespace = "general"
)

// FormatProfile flattens a profile into a prompt-ready text block. Output is
// deterministic for a given profile and clock.
func FormatProfile(p domain.UserProfile, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", displayName(p))
	fmt.Fprintf(&b, "Age: %s\n", DeriveAge(p, now))
	fmt.Fprintf(&b, "Gender: %s\n", orDefault(formatValue(p.Field("gender")), notSpecified))
	fmt.Fprintf(&b, "Marital Status: %s\n", orDefault(formatValue(p.Field("maritalStatus")), notSpecified))

	mapped := make(map[string]struct{}, len(ProfileLines))
	for _, l := range ProfileLines {
		mapped[l.Key] = struct{}{}
		if v := formatValue(p.Answer(l.Key)); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", l.Label, v)
		}
	}

	groups := map[string][]string{}
	for k, raw := range p.Answers {
		if _, ok := mapped[k]; ok {
			continue
		}
		v := formatValue(raw)
		if v == "" {
			continue
		}
		ns, name := splitNamespace(k)
		groups[ns] = append(groups[ns], fmt.Sprintf("- %s: %s", name, v))
	}
	if len(groups) > 0 {
		names := make([]string, 0, len(groups))
		for ns := range groups {
			names = append(names, ns)
		}
		sort.Strings(names)
		b.WriteString("\nAdditional Information:\n")
		for _, ns := range names {
			lines := groups[ns]
			sort.Strings(lines)
			fmt.Fprintf(&b, "%s:\n%s\n", textx.Title(ns), strings.Join(lines, "\n"))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// DeriveAge computes the calendar age from a DD.MM.YYYY dob, falling back to
// the raw age field. Anything else yields "Unknown".
func DeriveAge(p domain.UserProfile, now time.Time) string {
	if s, ok := p.Field("dob").(string); ok {
		if age, ok := ageFromDOB(s, now); ok {
			return strconv.Itoa(age)
		}
	}
	switch v := p.Field("age").(type) {
	case float64:
		if v > 0 {
			return strconv.Itoa(int(v))
		}
	case int:
		if v > 0 {
			return strconv.Itoa(v)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return strconv.Itoa(n)
		}
	}
	return unknownValue
}

func ageFromDOB(s string, now time.Time) (int, bool) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return 0, false
	}
	day, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	dob := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range parts; a round trip rejects 31.02.
	if dob.Day() != day || int(dob.Month()) != month || dob.Year() != year {
		return 0, false
	}
	age := now.Year() - year
	if now.Month() < time.Month(month) || (now.Month() == time.Month(month) && now.Day() < day) {
		age--
	}
	if age < 0 {
		return 0, false
	}
	return age, true
}

func displayName(p domain.UserProfile) string {
	first := formatValue(p.Field("firstName"))
	last := formatValue(p.Field("lastName"))
	if full := strings.TrimSpace(first + " " + last); full != "" {
		return full
	}
	if n := formatValue(p.Field("name")); n != "" {
		return n
	}
	return unknownValue
}

func splitNamespace(key string) (string, string) {
	i := strings.Index(key, "_")
	if i <= 0 || i == len(key)-1 {
		return generalNamespace, key
	}
	return key[:i], key[i+1:]
}

// formatValue renders a loosely typed answer. Empty means "absent".
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return textx.SanitizeText(x)
	case bool:
		if x {
			return "Yes"
		}
		return "No"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case []string:
		return joinValues(x)
	case []any:
		items := make([]string, 0, len(x))
		for _, it := range x {
			items = append(items, formatValue(it))
		}
		return joinValues(items)
	case map[string]any:
		return ""
	default:
		return textx.SanitizeText(fmt.Sprint(x))
	}
}

func joinValues(items []string) string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return strings.Join(out, ", ")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
