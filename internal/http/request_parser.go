// Package http provides HTTP server and handler implementations.
//
// This file implements request decoding and validation. Bodies are JSON;
// struct tags drive go-playground/validator and failures are reported per
// JSON field name.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"finledger/internal/core"
	"finledger/internal/ledger"
)

const (
	// UserIDHeader carries the caller identity set by the upstream gateway.
	UserIDHeader = "X-User-ID"

	dateLayout   = "2006-01-02"
	maxBodyBytes = 1 << 20
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type (
	postTransactionRequest struct {
		Amount      json.Number `json:"amount" validate:"required"`
		Type        string      `json:"type" validate:"required"`
		Category    string      `json:"category" validate:"max=100"`
		Description string      `json:"description" validate:"max=500"`
		Date        string      `json:"date" validate:"omitempty,datetime=2006-01-02"`
	}

	reserveRequest struct {
		ReservePercentage *int `json:"reserve_percentage" validate:"required"`
	}

	needRequest struct {
		Category string      `json:"category" validate:"required,max=100"`
		Amount   json.Number `json:"amount" validate:"required"`
	}

	goalRequest struct {
		GoalName     string      `json:"goal_name" validate:"required,max=200"`
		TargetAmount json.Number `json:"target_amount" validate:"required"`
	}

	profileRequest struct {
		Salary    json.Number `json:"salary"`
		SalaryDay int         `json:"salary_day" validate:"gte=0,lte=31"`
		Currency  string      `json:"currency" validate:"omitempty,len=3,alpha"`
	}

	historyParams struct {
		From      string `json:"from" validate:"omitempty,datetime=2006-01-02"`
		To        string `json:"to" validate:"omitempty,datetime=2006-01-02"`
		Period    string `json:"period" validate:"omitempty,oneof=week month 3m 6m year"`
		Category  string `json:"category" validate:"max=100"`
		MinAmount string `json:"min_amount" validate:"omitempty,numeric"`
		MaxAmount string `json:"max_amount" validate:"omitempty,numeric"`
		Search    string `json:"search" validate:"max=200"`
	}

	reportParams struct {
		Period string `json:"period" validate:"omitempty,oneof=week month 3months 6months year all"`
	}
)

// errValidation wraps validator failures keyed by JSON field name.
type errValidation struct {
	fields map[string]string
}

func (e *errValidation) Error() string {
	parts := make([]string, 0, len(e.fields))
	for f, tag := range e.fields {
		parts = append(parts, f+":"+tag)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// validateStruct runs the struct tags on v.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return &errValidation{fields: fields}
}

// decodeJSON reads a JSON body into dst and validates it.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return validateStruct(dst)
}

// writeDecodeError sends 422 for validation failures and 400 otherwise.
func writeDecodeError(w http.ResponseWriter, err error) {
	var verr *errValidation
	if errors.As(err, &verr) {
		ValidationError(verr.fields).Write(w)
		return
	}
	BadRequestError(err.Error()).Write(w)
}

// userID returns the trimmed caller identity, or "" when absent.
func userID(r *http.Request) string {
	return strings.TrimSpace(sanitizeInput(r.Header.Get(UserIDHeader)))
}

// clientKey identifies the caller for rate limiting: the user ID when present,
// otherwise the remote address.
func clientKey(r *http.Request) string {
	if id := userID(r); id != "" {
		return "user:" + id
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return "ip:" + strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return "ip:" + host
}

func parseHistoryParams(q url.Values) (historyParams, error) {
	p := historyParams{
		From:      strings.TrimSpace(q.Get("from")),
		To:        strings.TrimSpace(q.Get("to")),
		Period:    strings.ToLower(strings.TrimSpace(q.Get("period"))),
		Category:  sanitizeInput(q.Get("category")),
		MinAmount: strings.TrimSpace(q.Get("min_amount")),
		MaxAmount: strings.TrimSpace(q.Get("max_amount")),
		Search:    sanitizeInput(q.Get("search")),
	}
	return p, validateStruct(&p)
}

// toQuery converts validated params. To covers the whole day it names.
func (p historyParams) toQuery() (ledger.HistoryQuery, error) {
	q := ledger.HistoryQuery{
		Period:   p.Period,
		Category: p.Category,
		Search:   p.Search,
	}
	var err error
	if p.From != "" {
		if q.From, err = time.Parse(dateLayout, p.From); err != nil {
			return q, err
		}
	}
	if p.To != "" {
		if q.To, err = time.Parse(dateLayout, p.To); err != nil {
			return q, err
		}
		q.To = q.To.Add(24*time.Hour - time.Nanosecond)
	}
	if q.MinAmount, err = optionalAmount(p.MinAmount); err != nil {
		return q, err
	}
	if q.MaxAmount, err = optionalAmount(p.MaxAmount); err != nil {
		return q, err
	}
	return q, nil
}

func optionalAmount(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := core.ParseAmount(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
