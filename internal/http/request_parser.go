// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Expense submissions arrive either as HTMX form posts or as JSON, so field
// access goes through RequestBodyParser regardless of encoding.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"neovest/internal/core"
)

// maxBodyBytes bounds request bodies read by RequestBodyParser.
const maxBodyBytes = 64 << 10

const dateLayout = "2006-01-02"

// FieldErrors maps form field names to a user facing message.
type FieldErrors map[string]string

func (fe FieldErrors) Add(field, msg string) {
	if _, exists := fe[field]; !exists {
		fe[field] = msg
	}
}

func (fe FieldErrors) Empty() bool { return len(fe) == 0 }

// Summary joins the messages in field order so output is stable.
func (fe FieldErrors) Summary() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, fe[k])
	}
	return strings.Join(msgs, "; ")
}

// ParseExpenseDate reads a YYYY-MM-DD value as midnight in loc. An empty value
// means today in loc.
func ParseExpenseDate(value string, loc *time.Location, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		y, m, d := now.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	return time.ParseInLocation(dateLayout, value, loc)
}

// ParseExpenseInput validates the fields of an expense submission. get returns
// the sanitized value of a field. The returned expense is only meaningful when
// the FieldErrors are empty.
func ParseExpenseInput(get func(string) string, loc *time.Location, now time.Time) (core.NewExpense, FieldErrors) {
	errs := FieldErrors{}
	var ne core.NewExpense

	amountStr := get("amount")
	if amountStr == "" {
		errs.Add("amount", "Amount is required")
	} else if amount, err := core.ParseAmount(amountStr); err != nil {
		errs.Add("amount", "Amount must be a positive number")
	} else {
		ne.Amount = amount
	}

	category, err := core.ParseCategory(get("category"))
	switch {
	case errors.Is(err, core.ErrEmptyCategory):
		errs.Add("category", "Category is required")
	case err != nil:
		errs.Add("category", "Unknown category")
	default:
		ne.Category = category
	}

	ne.Description = get("description")
	switch {
	case ne.Description == "":
		errs.Add("description", "Description is required")
	case len(ne.Description) > core.MaxDescriptionLen:
		errs.Add("description", "Description must be at most 200 characters")
	}

	method, err := core.ParsePaymentMethod(get("payment_method"))
	if err != nil {
		errs.Add("payment_method", "Unknown payment method")
	}
	ne.PaymentMethod = method

	date, err := ParseExpenseDate(get("date"), loc, now)
	if err != nil {
		errs.Add("date", "Date must be in YYYY-MM-DD format")
	}
	ne.Date = date

	ne.Tags = core.ParseTags(get("tags"))

	if errs.Empty() {
		if err := ne.Validate(); err != nil {
			errs.Add("form", err.Error())
		}
	}
	return ne, errs
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}

	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

func (p *RequestBodyParser) GetRaw() []byte {
	return p.body
}

func (p *RequestBodyParser) ContentType() string {
	return p.contentType
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, stringValue(item))
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// ParseFormOrFail parses the request form and returns an error response on failure.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Invalid request format")
	}
	return nil
}
