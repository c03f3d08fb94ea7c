// Package inputval validates request input. Struct fields carry
// `validate:"..."` rules (github.com/go-playground/validator/v10) and an
// optional `label:"..."` used in user-facing messages.
package inputval

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/dalemusser/stratacomm/internal/domain/models"
	"github.com/go-playground/validator/v10"
)

// FieldError describes one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Result collects the field errors from a Validate call.
type Result struct {
	Errors []FieldError `json:"errors,omitempty"`
}

func (r *Result) HasErrors() bool { return len(r.Errors) > 0 }

// First returns the first message, or "" if there are none.
func (r *Result) First() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// All joins every message with "; ".
func (r *Result) All() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			if l := f.Tag.Get("label"); l != "" {
				return l
			}
			return f.Name
		})
		must(v.RegisterValidation("httpurl", func(fl validator.FieldLevel) bool {
			return IsValidHTTPURL(fl.Field().String())
		}))
		must(v.RegisterValidation("grouptype", func(fl validator.FieldLevel) bool {
			return models.IsValidGroupType(strings.ToLower(strings.TrimSpace(fl.Field().String())))
		}))
		must(v.RegisterValidation("messagetype", func(fl validator.FieldLevel) bool {
			return models.IsValidMessageType(strings.ToLower(strings.TrimSpace(fl.Field().String())))
		}))
		must(v.RegisterValidation("notificationtype", func(fl validator.FieldLevel) bool {
			return models.IsValidNotificationType(strings.ToLower(strings.TrimSpace(fl.Field().String())))
		}))
		must(v.RegisterValidation("action", func(fl validator.FieldLevel) bool {
			_, err := models.ParseAction(fl.Field().String())
			return err == nil
		}))
		validate = v
	})
	return validate
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Validate runs the struct's validate rules. A non-struct input yields a
// single error rather than a panic.
func Validate(s any) *Result {
	res := &Result{}
	err := instance().Struct(s)
	if err == nil {
		return res
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		res.Errors = append(res.Errors, FieldError{Rule: "invalid", Message: "Input could not be validated."})
		return res
	}
	for _, fe := range verrs {
		res.Errors = append(res.Errors, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: message(fe),
		})
	}
	return res
}

func message(fe validator.FieldError) string {
	label := fe.Field()
	switch fe.Tag() {
	case "required":
		return label + " is required."
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at most %s entries.", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s characters.", label, fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at least %s entries.", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s characters.", label, fe.Param())
	case "email":
		return "A valid email address is required."
	case "httpurl":
		return label + " must be an http or https URL."
	case "grouptype":
		return label + " must be one of department, team, project, custom."
	case "messagetype":
		return label + " must be one of text, file, image, task, notification."
	case "notificationtype":
		return label + " must be one of system, task, approval, announcement."
	case "action":
		return label + " must be one of read, write, delete, manage, *."
	case "oneof":
		return fmt.Sprintf("%s must be one of %s.", label, fe.Param())
	default:
		return label + " is invalid."
	}
}

// IsValidEmail reports whether s is a bare addr-spec (no display name) with
// no empty or doubled dots in either part.
func IsValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " <>") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	at := strings.LastIndex(s, "@")
	local, domain := s[:at], s[at+1:]
	for _, part := range []string{local, domain} {
		if part == "" || strings.HasPrefix(part, ".") || strings.HasSuffix(part, ".") || strings.Contains(part, "..") {
			return false
		}
	}
	return true
}

// IsValidHTTPURL reports whether s is an absolute http or https URL with a
// host. Surrounding whitespace is ignored.
func IsValidHTTPURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
