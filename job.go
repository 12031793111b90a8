package video_fetcher

import (
	"context"
	"fmt"
	"time"
)

// Method is a way of retrieving a Locator.
type Method string

const (
	MethodDirect    Method = "direct"
	MethodDelegated Method = "delegated"
	MethodBrowser   Method = "browser-cookies"
)

// ProgressFunc observes byte progress of a download. Expected is -1 when the size is unknown.
type ProgressFunc = func(downloaded int64, expected int64)

// ConfirmFunc decides whether an existing file at path may be overwritten. It must respect ctx, so that a pending
// question never outlives the job that asked it.
type ConfirmFunc = func(ctx context.Context, path string) (bool, error)

// AlwaysOverwrite is a ConfirmFunc for non-interactive callers that want existing files replaced.
func AlwaysOverwrite(context.Context, string) (bool, error) {
	return true, nil
}

// NeverOverwrite is a ConfirmFunc for non-interactive callers that want existing files kept.
func NeverOverwrite(context.Context, string) (bool, error) {
	return false, nil
}

// A Job is one Locator to be downloaded into Destination.
type Job struct {
	ID          string
	Locator     Locator
	Destination string
	Quality     Quality
	// CookieOverride is an explicit cookie file path, checked before any of the default locations.
	CookieOverride string
	// Progress is optional.
	Progress ProgressFunc
}

// An Attempt is one try at retrieving a Job's Locator. Err is nil for the successful attempt.
type Attempt struct {
	Method  Method
	Quality Quality
	// Credential describes the cookie source used: a file path, "browser:<name>", or empty for none.
	Credential string
	Err        error
	Duration   time.Duration
}

func (a Attempt) Succeeded() bool {
	return a.Err == nil
}

func (a Attempt) String() string {
	if a.Credential == "" {
		return fmt.Sprintf("%s (%s)", a.Method, a.Quality)
	}
	return fmt.Sprintf("%s (%s, cookies=%s)", a.Method, a.Quality, a.Credential)
}
