// internal/app/system/inputval/inputval.go
//
// Package inputval validates operator-supplied form values. Validate
// drives struct tags (`validate:"required,max=80,email"` plus a
// human-readable `label`); the individual Is* checks back the tag
// rules and are usable on their own.
package inputval

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dalemusser/ivrhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IsValidEmail checks addr against dot-atom rules: one @, non-empty
// local and domain parts, no leading/trailing/consecutive dots, no
// whitespace or angle brackets. Single-label domains pass so dev
// setups like user@localhost keep working.
func IsValidEmail(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	at := strings.IndexByte(addr, '@')
	if at <= 0 || at != strings.LastIndexByte(addr, '@') {
		return false
	}
	local, domain := addr[:at], addr[at+1:]
	if domain == "" {
		return false
	}
	return validDotAtom(local) && validDotAtom(domain)
}

func validDotAtom(s string) bool {
	if strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") || strings.Contains(s, "..") {
		return false
	}
	return !strings.ContainsAny(s, " \t<>\",;")
}

// IsValidAuthMethod reports whether m names a supported sign-in
// method, ignoring case and surrounding whitespace.
func IsValidAuthMethod(m string) bool {
	m = strings.ToLower(strings.TrimSpace(m))
	for _, a := range models.AuthMethodValues() {
		if m == a {
			return true
		}
	}
	return false
}

// AllowedAuthMethodsList returns the supported sign-in methods in
// display order.
func AllowedAuthMethodsList() []string {
	return models.AuthMethodValues()
}

// IsValidHTTPURL accepts absolute http or https URLs with a host.
func IsValidHTTPURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// IsValidObjectID accepts a 24-character hex Mongo ObjectID.
func IsValidObjectID(id string) bool {
	_, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	return err == nil
}

// FieldError is one failed rule on one field.
type FieldError struct {
	Field   string
	Message string
}

// Result collects the failures from one Validate call.
type Result struct {
	Errors []FieldError
}

func (r *Result) HasErrors() bool { return len(r.Errors) > 0 }

// First returns the first failure message, or "".
func (r *Result) First() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// All joins every failure message with "; ".
func (r *Result) All() string {
	if len(r.Errors) == 0 {
		return ""
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

// Validate runs the tag rules over the string fields of a struct (or
// pointer to struct). Rules: required, max=N, email, authmethod,
// httpurl, objectid. The first failing rule per field wins; fields are
// reported in declaration order. The format rules skip empty values;
// combine with required when a value must also be present.
func Validate(input any) *Result {
	res := &Result{}
	v := reflect.ValueOf(input)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return res
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return res
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("validate")
		if tag == "" || !f.IsExported() || f.Type.Kind() != reflect.String {
			continue
		}
		label := f.Tag.Get("label")
		if label == "" {
			label = f.Name
		}
		value := strings.TrimSpace(v.Field(i).String())
		for _, rule := range strings.Split(tag, ",") {
			msg := applyRule(strings.TrimSpace(rule), label, value)
			if msg != "" {
				res.Errors = append(res.Errors, FieldError{Field: f.Name, Message: msg})
				break
			}
		}
	}
	return res
}

func applyRule(rule, label, value string) string {
	switch {
	case rule == "required":
		if value == "" {
			return label + " is required."
		}
	case strings.HasPrefix(rule, "max="):
		n, err := strconv.Atoi(strings.TrimPrefix(rule, "max="))
		if err == nil && utf8.RuneCountInString(value) > n {
			return fmt.Sprintf("%s must be at most %d characters.", label, n)
		}
	case rule == "email":
		if value != "" && !IsValidEmail(value) {
			return "A valid email address is required."
		}
	case rule == "authmethod":
		if value != "" && !IsValidAuthMethod(value) {
			return label + " is not a supported sign-in method."
		}
	case rule == "httpurl":
		if value != "" && !IsValidHTTPURL(value) {
			return label + " must be an http or https URL."
		}
	case rule == "objectid":
		if value != "" && !IsValidObjectID(value) {
			return label + " is not a valid id."
		}
	}
	return ""
}
