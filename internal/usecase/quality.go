package usecase

import (
	"math"
	"reflect"

	"github.com/vettly/match-explainer/internal/domain"
)

// MinDataQualityScore is the lowest score for which an explanation is generated.
const MinDataQualityScore = 40

const (
	questionnaireWeight = 0.7
	rootWeight          = 0.3
)

// QualityQuestionnaireFields are the questionnaire answers expected on a complete profile.
var QualityQuestionnaireFields = []string{
	"about_occupation",
	"about_education",
	"about_hobbies",
	"about_personality",
	"values_religion",
	"values_politics",
	"values_family",
	"lifestyle_smoking",
	"lifestyle_drinking",
	"lifestyle_exercise",
	"relationship_goals",
	"relationship_children",
}

// QualityRootFields are the root document fields expected on a complete profile.
var QualityRootFields = []string{
	"firstName",
	"lastName",
	"email",
	"phone",
	"dob",
	"gender",
	"location",
	"maritalStatus",
}

// DataQualityScore returns the 0..100 completeness of two profiles.
// The result does not depend on argument order.
func DataQualityScore(a, b domain.UserProfile) int {
	avg := (profileCompleteness(a) + profileCompleteness(b)) / 2
	return int(math.Round(avg))
}

// profileCompleteness returns the weighted presence percentage of one profile.
func profileCompleteness(p domain.UserProfile) float64 {
	qHits := 0
	for _, k := range QualityQuestionnaireFields {
		if truthy(p.Answer(k)) {
			qHits++
		}
	}
	rHits := 0
	for _, k := range QualityRootFields {
		if truthy(p.Field(k)) {
			rHits++
		}
	}
	q := float64(qHits) / float64(len(QualityQuestionnaireFields))
	r := float64(rHits) / float64(len(QualityRootFields))
	return (q*questionnaireWeight + r*rootWeight) * 100
}

// truthy follows document-store semantics: nil, false, "", zero and NaN are
// absent, everything else (empty arrays and objects included) is present.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case float32:
		return x != 0 && !math.IsNaN(float64(x))
	case int:
		return x != 0
	case int64:
		return x != 0
	case int32:
		return x != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
