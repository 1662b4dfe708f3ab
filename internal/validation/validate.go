package validation

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/expr-lang/expr"

	"mantle/internal/manifest"
)

// FieldError is one field-level constraint violation. Constraints maps the
// failed rule name to its message so a client can render per-rule feedback.
type FieldError struct {
	Property    string            `json:"property"`
	Value       any               `json:"value,omitempty"`
	Constraints map[string]string `json:"constraints"`
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validate checks a candidate entity against its manifest and returns every
// violation found. An empty result means the candidate may be persisted.
// The write path calls this before any write, so a failing candidate never
// touches storage.
func Validate(entity *manifest.EntityManifest, candidate map[string]any, isUpdate bool) []FieldError {
	var errs []FieldError

	for i := range entity.Properties {
		p := &entity.Properties[i]
		value, present := candidate[p.Name]

		constraints := map[string]string{}

		if p.Required && isEmpty(value) {
			constraints["required"] = fmt.Sprintf("%s should not be empty", p.Name)
		}

		if present && !isEmpty(value) {
			checkType(p, value, constraints)
			checkExpression(p, value, candidate, constraints)
		}

		if len(constraints) > 0 {
			errs = append(errs, FieldError{Property: p.Name, Value: value, Constraints: constraints})
		}
	}

	if entity.Authenticable && !isUpdate {
		errs = append(errs, validateCredentials(entity, candidate)...)
	}

	return errs
}

// validateCredentials covers the base email/password columns an authenticable
// entity gets from the schema template when the manifest does not declare them.
func validateCredentials(entity *manifest.EntityManifest, candidate map[string]any) []FieldError {
	var errs []FieldError

	if entity.GetProperty("email") == nil {
		email, _ := candidate["email"].(string)
		if email == "" {
			errs = append(errs, FieldError{
				Property:    "email",
				Constraints: map[string]string{"required": "email should not be empty"},
			})
		} else if !emailRe.MatchString(email) {
			errs = append(errs, FieldError{
				Property:    "email",
				Value:       email,
				Constraints: map[string]string{"isEmail": "email must be a valid email address"},
			})
		}
	}

	if entity.GetProperty("password") == nil {
		password, _ := candidate["password"].(string)
		if password == "" {
			errs = append(errs, FieldError{
				Property:    "password",
				Constraints: map[string]string{"required": "password should not be empty"},
			})
		}
	}

	return errs
}

func checkType(p *manifest.PropertyManifest, value any, constraints map[string]string) {
	switch p.Type {
	case manifest.PropNumber, manifest.PropMoney:
		if !isNumeric(value) {
			constraints["isNumber"] = fmt.Sprintf("%s must be a number", p.Name)
		}
	case manifest.PropBoolean:
		if _, ok := value.(bool); !ok {
			constraints["isBoolean"] = fmt.Sprintf("%s must be a boolean", p.Name)
		}
	case manifest.PropEmail:
		s, ok := value.(string)
		if !ok || !emailRe.MatchString(s) {
			constraints["isEmail"] = fmt.Sprintf("%s must be a valid email address", p.Name)
		}
	case manifest.PropChoice:
		s, ok := value.(string)
		if !ok || !contains(p.Options, s) {
			constraints["isIn"] = fmt.Sprintf("%s must be one of: %v", p.Name, p.Options)
		}
	}
}

// checkExpression evaluates the optional manifest expression against the
// value and the whole candidate record. The expression must yield true.
func checkExpression(p *manifest.PropertyManifest, value any, candidate map[string]any, constraints map[string]string) {
	if p.Expression == "" {
		return
	}
	env := map[string]any{
		"value":  value,
		"record": candidate,
	}
	out, err := expr.Eval(p.Expression, env)
	if err != nil {
		constraints["expression"] = fmt.Sprintf("%s expression failed: %v", p.Name, err)
		return
	}
	if ok, _ := out.(bool); !ok {
		constraints["expression"] = fmt.Sprintf("%s failed constraint %q", p.Name, p.Expression)
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

func isNumeric(v any) bool {
	switch n := v.(type) {
	case int, int32, int64, float32, float64:
		return true
	case string:
		_, err := strconv.ParseFloat(n, 64)
		return err == nil
	default:
		return false
	}
}

func contains(options []string, value string) bool {
	for _, o := range options {
		if o == value {
			return true
		}
	}
	return false
}
