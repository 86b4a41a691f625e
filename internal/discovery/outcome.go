package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrRobotsDisallowed is returned by fetchers when robots.txt forbids the path.
var ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d for %s", e.StatusCode, e.URL)
}

// OutcomeKind tags a FetchOutcome.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeBlocked
	OutcomeTimeout
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// FetchOutcome is the result of one fetch attempt against a source.
type FetchOutcome struct {
	Kind       OutcomeKind
	URL        string
	Records    []RawOpportunity
	StatusCode int
	Reason     string
	Err        error
}

// Succeeded wraps the records extracted from a fetched page.
func Succeeded(url string, records []RawOpportunity) FetchOutcome {
	return FetchOutcome{Kind: OutcomeSuccess, URL: url, Records: records, StatusCode: http.StatusOK}
}

// BlockedBy records a response that refused automated access.
func BlockedBy(url string, status int, reason string) FetchOutcome {
	return FetchOutcome{Kind: OutcomeBlocked, URL: url, StatusCode: status, Reason: reason}
}

// TimedOut records a fetch abandoned at its deadline.
func TimedOut(url string, cause error) FetchOutcome {
	return FetchOutcome{Kind: OutcomeTimeout, URL: url, Reason: "timeout", Err: cause}
}

// Failed records any other failure.
func Failed(url string, cause error) FetchOutcome {
	out := FetchOutcome{Kind: OutcomeError, URL: url, Err: cause}
	if cause != nil {
		out.Reason = cause.Error()
	}
	var se *StatusError
	if errors.As(cause, &se) {
		out.StatusCode = se.StatusCode
	}
	return out
}

// isBlockingStatus reports statuses that mean the site refuses us.
func isBlockingStatus(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return false
}

// classifyFetchError maps a fetcher error onto an outcome.
func classifyFetchError(url string, err error) FetchOutcome {
	var se *StatusError
	switch {
	case errors.Is(err, ErrRobotsDisallowed):
		return BlockedBy(url, 0, "robots.txt")
	case errors.As(err, &se) && isBlockingStatus(se.StatusCode):
		return BlockedBy(url, se.StatusCode, http.StatusText(se.StatusCode))
	case errors.Is(err, context.DeadlineExceeded):
		return TimedOut(url, err)
	case isTimeout(err):
		return TimedOut(url, err)
	default:
		return Failed(url, err)
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// SourceOutcome pairs a source with what happened when it was fetched.
type SourceOutcome struct {
	Source  Source
	Outcome FetchOutcome
}

// Outcomes is the per-source result of a batch, in catalog order.
type Outcomes []SourceOutcome

// Records concatenates the records of every successful source.
func (o Outcomes) Records() []RawOpportunity {
	var out []RawOpportunity
	for _, so := range o {
		if so.Outcome.Kind == OutcomeSuccess {
			out = append(out, so.Outcome.Records...)
		}
	}
	return out
}

// Lookup returns the outcome for the given source id.
func (o Outcomes) Lookup(id string) (FetchOutcome, bool) {
	for _, so := range o {
		if so.Source.ID == id {
			return so.Outcome, true
		}
	}
	return FetchOutcome{}, false
}

// Count returns how many outcomes have the given kind.
func (o Outcomes) Count(kind OutcomeKind) int {
	n := 0
	for _, so := range o {
		if so.Outcome.Kind == kind {
			n++
		}
	}
	return n
}
