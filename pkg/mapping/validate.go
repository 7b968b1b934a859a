package mapping

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError reports a mapping that cannot be registered.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var allowedTypes = map[Kind]map[MatchType]bool{
	KindPath:   {TypeExact: true, TypeWildcard: true, TypeRegex: true, TypeContains: true},
	KindMethod: {TypeExact: true, TypeWildcard: true, TypeRegex: true},
	KindHeader: {TypeExact: true, TypeWildcard: true, TypeRegex: true, TypeContains: true},
	KindQuery:  {TypeExact: true, TypeWildcard: true, TypeRegex: true, TypeContains: true},
	KindCookie: {TypeExact: true, TypeWildcard: true, TypeRegex: true, TypeContains: true},
	KindBody: {
		TypeExact: true, TypeWildcard: true, TypeRegex: true, TypeContains: true,
		TypeJSONExact: true, TypeJSONPartial: true, TypeJSONPath: true,
		TypeXPath: true, TypeJSONSchema: true, TypeExpression: true,
	},
}

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

func getValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// Validate checks the structural rules of a mapping. Pattern syntax
// (regex, JSONPath, XPath, schema, expression) is checked when the
// mapping is compiled by the store.
func (m *Mapping) Validate() error {
	if m == nil {
		return &ValidationError{Field: "mapping", Message: "mapping is required"}
	}
	if err := getValidator().Struct(m); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fromFieldError(fieldErrs[0])
		}
		return &ValidationError{Field: "mapping", Message: err.Error()}
	}

	for i, matcher := range m.Request.Matchers {
		if err := matcher.validate(); err != nil {
			err.Field = fmt.Sprintf("request.matchers[%d].%s", i, err.Field)
			return err
		}
	}

	if err := m.Response.validate(); err != nil {
		err.Field = "response." + err.Field
		return err
	}

	if m.ScenarioName == "" && (m.RequiredState != "" || m.NewState != "") {
		return &ValidationError{Field: "scenarioName", Message: "scenario states require a scenario name"}
	}
	return nil
}

func (mt Matcher) validate() *ValidationError {
	if !allowedTypes[mt.Kind][mt.Type] {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("type %q is not supported for kind %q", mt.Type, mt.Kind)}
	}

	named := mt.Kind == KindHeader || mt.Kind == KindQuery || mt.Kind == KindCookie
	if named && mt.Name == "" {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("%s matcher requires a name", mt.Kind)}
	}
	if mt.Absent {
		if !named {
			return &ValidationError{Field: "absent", Message: "absent is only valid for header, query and cookie matchers"}
		}
		return nil
	}

	hasPattern := len(mt.AllPatterns()) > 0
	switch mt.Type {
	case TypeJSONExact, TypeJSONPartial, TypeJSONSchema:
		if !hasPattern && mt.Value == nil {
			return &ValidationError{Field: "value", Message: "a pattern or value is required"}
		}
	default:
		if !hasPattern {
			return &ValidationError{Field: "pattern", Message: "a pattern is required"}
		}
	}
	return nil
}

func (r *Response) validate() *ValidationError {
	bodies := 0
	if r.Body != "" {
		bodies++
	}
	if r.JSONBody != nil {
		bodies++
	}
	if r.Base64Body != "" {
		bodies++
	}
	if bodies > 1 {
		return &ValidationError{Field: "body", Message: "only one of body, jsonBody and base64Body may be set"}
	}
	if r.Template && r.Base64Body != "" {
		return &ValidationError{Field: "template", Message: "base64Body cannot be rendered as a template"}
	}
	return nil
}

func fromFieldError(fe validator.FieldError) *ValidationError {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "oneof":
		msg = fmt.Sprintf("must be one of [%s]", fe.Param())
	case "min":
		msg = "must be at least " + fe.Param()
	case "max":
		msg = "must be at most " + fe.Param()
	case "base64":
		msg = "must be valid base64"
	default:
		msg = "failed " + fe.Tag() + " check"
	}
	return &ValidationError{Field: field, Message: msg}
}
