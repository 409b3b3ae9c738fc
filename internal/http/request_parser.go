// Package http provides the REST API server and its handlers.
//
// This file implements the parsing of query parameters, path values and
// JSON bodies shared by the handlers.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"

	"fintrack/internal/core"
)

// maxBodyBytes bounds every JSON request body. A full bulk insert of 500
// expenses with maximal notes stays well below it.
const maxBodyBytes = 1 << 20

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month time.Month
}

// ParseMonthParams extracts year and month from the query, defaulting each to
// the month of now. Present but malformed values are errors.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{Year: now.Year(), Month: now.Month()}

	year, ok, err := queryInt(query, "year")
	if err != nil {
		return MonthParams{}, err
	}
	if ok {
		if year < 1 || year > 9999 {
			return MonthParams{}, errBadRequest("year out of range")
		}
		params.Year = year
	}

	month, ok, err := queryInt(query, "month")
	if err != nil {
		return MonthParams{}, err
	}
	if ok {
		if month < 1 || month > 12 {
			return MonthParams{}, core.ErrInvalidMonth
		}
		params.Month = time.Month(month)
	}
	return params, nil
}

// ParseDateRange reads the required inclusive start and end dates.
func ParseDateRange(query url.Values) (civil.Date, civil.Date, error) {
	rawStart, rawEnd := strings.TrimSpace(query.Get("start")), strings.TrimSpace(query.Get("end"))
	if rawStart == "" || rawEnd == "" {
		return civil.Date{}, civil.Date{}, errBadRequest("start and end are required")
	}
	start, err := core.ParseDate(rawStart)
	if err != nil {
		return civil.Date{}, civil.Date{}, err
	}
	end, err := core.ParseDate(rawEnd)
	if err != nil {
		return civil.Date{}, civil.Date{}, err
	}
	if end.Before(start) {
		return civil.Date{}, civil.Date{}, core.ErrInvalidDateRange
	}
	return start, end, nil
}

// ParseOptionalDate reads a date parameter, falling back to def when absent.
func ParseOptionalDate(query url.Values, key string, def civil.Date) (civil.Date, error) {
	raw := strings.TrimSpace(query.Get(key))
	if raw == "" {
		return def, nil
	}
	return core.ParseDate(raw)
}

// PathDate parses the {date} route parameter.
func PathDate(r *http.Request) (civil.Date, error) {
	return core.ParseDate(chi.URLParam(r, "date"))
}

// PathInt64 parses a positive integer route parameter.
func PathInt64(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadRequest(fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}

func queryInt(query url.Values, key string) (int, bool, error) {
	raw := strings.TrimSpace(query.Get(key))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, errBadRequest(fmt.Sprintf("invalid %s", key))
	}
	return v, true, nil
}

// decodeJSON reads exactly one JSON value from the body into dst. Unknown
// fields are ignored so older and newer clients keep working.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return err
		case errors.Is(err, io.EOF):
			return errBadRequest("request body is empty")
		default:
			return errBadRequest("malformed JSON: " + jsonProblem(err))
		}
	}
	if dec.More() {
		return errBadRequest("request body must hold a single JSON value")
	}
	return nil
}

// jsonProblem turns decoder errors into short client-facing text. Domain
// sentinel errors raised by UnmarshalJSON methods keep their message.
func jsonProblem(err error) string {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			return fmt.Sprintf("field %q has the wrong type", typeErr.Field)
		}
		return "wrong value type"
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("syntax error at offset %d", syntaxErr.Offset)
	default:
		return err.Error()
	}
}
