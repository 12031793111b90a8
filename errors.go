package video_fetcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrNoLocatorFound means every extraction strategy was tried without finding a media locator.
	ErrNoLocatorFound = errors.New("no video locator found")
	// ErrCancelled marks a job that was stopped by the user (signal, timeout, declined prompt) rather than one that
	// failed by itself.
	ErrCancelled = errors.New("cancelled")
	// ErrOverwriteDeclined is returned when the destination file exists and overwriting it was not confirmed.
	ErrOverwriteDeclined = fmt.Errorf("%w: destination exists and overwrite was declined", ErrCancelled)
)

// Stage names the part of the chain that produced an error.
type Stage string

const (
	StageClassification Stage = "classification"
	StageFetch          Stage = "fetch"
	StageExtraction     Stage = "extraction"
	StageDownload       Stage = "download"
)

// StageError attaches the precipitating Stage to an error.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// AtStage wraps err in a StageError, or returns nil if err is nil.
func AtStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the Stage recorded in err, if there is one.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// NetworkError is a transport or HTTP status failure. StatusCode is 0 if no response was received.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("request to %s failed with HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// DownloadFailedError is the terminal error of a job, carrying every attempt in the order they were made.
type DownloadFailedError struct {
	Attempts []Attempt
}

func (e *DownloadFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return "download failed: no attempts made"
	}
	parts := make([]string, 0, len(e.Attempts))
	for i, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("#%d %s: %v", i+1, a, a.Err))
	}
	return fmt.Sprintf("download failed after %d attempt(s): %s", len(e.Attempts), strings.Join(parts, "; "))
}

// Unwrap exposes the attempt errors so errors.Is/As see through to e.g. ErrCancelled or *NetworkError.
func (e *DownloadFailedError) Unwrap() error {
	var result *multierror.Error
	for _, a := range e.Attempts {
		if a.Err != nil {
			result = multierror.Append(result, multierror.Prefix(a.Err, fmt.Sprintf("[%s]", a.Method)))
		}
	}
	return result.ErrorOrNil()
}

// Cancelled returns true if the job ended because it was cancelled rather than because every method failed.
func (e *DownloadFailedError) Cancelled() bool {
	return errors.Is(e, ErrCancelled)
}

// IsCancelled reports whether err represents a user abort.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
