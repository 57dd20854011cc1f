// Package validation wraps go-playground/validator with the custom tags used by
// request DTOs and a conversion into field-level errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DateLayout        = "2006-01-02"
	ClockLayout       = "15:04"
	ClockLayoutSecond = "15:04:05"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// FieldError describes a single rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) Error() string {
	return fmt.Sprintf("%s: %s", f.Field, f.Message)
}

// New returns a validator with the project's custom tags registered and field
// names reported by their json tag.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("isodate", IsISODate)
	_ = v.RegisterValidation("clocktime", IsClockTime)
	_ = v.RegisterValidation("username", IsUsername)
	_ = v.RegisterValidation("notblank", NotBlank)
	return v
}

// IsISODate accepts calendar dates in YYYY-MM-DD form.
func IsISODate(fl validator.FieldLevel) bool {
	_, err := time.Parse(DateLayout, fl.Field().String())
	return err == nil
}

// IsClockTime accepts HH:MM or HH:MM:SS wall clock times.
func IsClockTime(fl validator.FieldLevel) bool {
	_, err := ParseClock(fl.Field().String())
	return err == nil
}

func IsUsername(fl validator.FieldLevel) bool {
	return usernamePattern.MatchString(fl.Field().String())
}

func NotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// ParseClock parses a wall clock time in either supported layout.
func ParseClock(s string) (time.Time, error) {
	if t, err := time.Parse(ClockLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(ClockLayoutSecond, s)
}

// FieldErrors flattens a validator error into FieldErrors. Errors that did not
// come from the validator are returned as a single entry with an empty field.
func FieldErrors(err error) []FieldError {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "isodate":
		return "must be a date formatted as YYYY-MM-DD"
	case "clocktime":
		return "must be a time formatted as HH:MM"
	case "username":
		return "may only contain letters, digits, '.', '_' and '-'"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "nefield":
		return fmt.Sprintf("must differ from %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// Sanitize trims surrounding whitespace from every string field of the struct
// pointed to by o.
func Sanitize(o any) {
	v := reflect.ValueOf(o)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		panic("sanitize: expected pointer to struct")
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		panic("sanitize: expected struct")
	}
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.String && field.CanSet() {
			field.SetString(strings.TrimSpace(field.String()))
		}
	}
}
