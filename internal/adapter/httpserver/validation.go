package httpserver

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// MaxIdentifierLength bounds user and match ids.
const MaxIdentifierLength = 128

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidateIdentifier checks a document id: bounded length, valid UTF-8 and no
// control characters. Any other character is left to the document store.
// Empty ids pass here; presence is enforced by the explanation service so that
// it is reported like any other failed request.
func ValidateIdentifier(field, id string) ValidationResult {
	if id == "" {
		return ValidationResult{Valid: true}
	}
	if len(id) > MaxIdentifierLength {
		return ValidationResult{
			Valid:  false,
			Errors: []ValidationError{{
				Field:   field,
				Code:    "TOO_LONG",
				Message: "Identifier is too long (max 128 characters)",
			}},
		}
	}
	if !utf8.ValidString(id) || strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return ValidationResult{
			Valid:  false,
			Errors: []ValidationError{{
				Field:   field,
				Code:    "INVALID_FORMAT",
				Message: "Identifier contains invalid characters",
			}},
		}
	}
	return ValidationResult{Valid: true}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

// getValidator returns the shared validator with the "identifier" tag registered.
func getValidator() *validator.Validate {
	vldOnce.Do(func() {
		vld = validator.New(validator.WithRequiredStructEnabled())
		vld.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = vld.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
			return ValidateIdentifier(fl.FieldName(), fl.Field().String()).Valid
		})
	})
	return vld
}

// validationErrors converts validator output into ValidationError entries.
func validationErrors(err error) []ValidationError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []ValidationError{{Code: "INVALID", Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(ve))
	for _, fe := range ve {
		res := ValidateIdentifier(fe.Field(), fmt.Sprint(fe.Value()))
		if len(res.Errors) > 0 {
			out = append(out, res.Errors...)
			continue
		}
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Code:    strings.ToUpper(fe.Tag()),
			Message: "Field failed " + fe.Tag() + " validation",
		})
	}
	return out
}
