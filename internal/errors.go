package internal

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes returned by the tablepush binary.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitConfig     = 2
	ExitNotFound   = 3
	ExitRemote     = 4
	ExitMalformed  = 5
	ExitDecode     = 6
	ExitAmbiguous  = 7
	maxBodyInError = 512
)

// ConfigError means the run could not start: a required value is missing or
// the source file cannot be read.
type ConfigError struct {
	Missing []string
	Err     error
}

func (e *ConfigError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required flags: %s", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("configuration: %s", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// DecodeError means the source file is not valid UTF-8 CSV.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("decode source: %s", e.Err)
	}
	return fmt.Sprintf("decode %s: %s", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// RemoteError is a failed API call. Status is zero when no response arrived.
type RemoteError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	body := e.Body
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError] + "..."
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Status, body)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// NotFoundError means the title lookup matched no page.
type NotFoundError struct {
	Title string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no page titled %q", e.Title)
}

// MalformedResponseError means a 2xx response lacked the fields we need.
type MalformedResponseError struct {
	Op     string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Op, e.Reason)
}

// AmbiguousTitleError is returned by strict lookups that match several pages.
type AmbiguousTitleError struct {
	Title string
	Count int
}

func (e *AmbiguousTitleError) Error() string {
	return fmt.Sprintf("%d pages titled %q, pass --space-id to pick one", e.Count, e.Title)
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		configErr    *ConfigError
		decodeErr    *DecodeError
		remoteErr    *RemoteError
		notFoundErr  *NotFoundError
		malformedErr *MalformedResponseError
		ambiguousErr *AmbiguousTitleError
	)
	switch {
	case errors.As(err, &configErr):
		return ExitConfig
	case errors.As(err, &decodeErr):
		return ExitDecode
	case errors.As(err, &notFoundErr):
		return ExitNotFound
	case errors.As(err, &ambiguousErr):
		return ExitAmbiguous
	case errors.As(err, &malformedErr):
		return ExitMalformed
	case errors.As(err, &remoteErr):
		return ExitRemote
	}
	return ExitFailure
}
