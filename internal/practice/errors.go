package practice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/ashureev/designdrill/internal/apiclient"
)

var (
	// ErrNoSession is returned when an operation needs an active session.
	ErrNoSession = errors.New("no active practice session")
	// ErrSessionOpen is returned by Open while a session is already active.
	ErrSessionOpen = errors.New("practice session already open")
	// ErrSurfaceNotReady is returned when the diagram surface cannot be read.
	ErrSurfaceNotReady = errors.New("diagram surface is not ready")
	// ErrBusy is returned when the same action is already pending.
	ErrBusy = errors.New("request already in progress")
	// ErrEmptyDiagram is returned by Submit for a scene with no elements.
	ErrEmptyDiagram = errors.New("diagram is empty; draw your design before submitting")
	// ErrEmptyMessage is returned by Chat for blank text.
	ErrEmptyMessage = errors.New("chat message is empty")
)

// Submit stages.
const (
	StageSave   = "save"
	StageSubmit = "submit"
)

// SubmitError describes a failed submission with likely causes the user can
// act on.
type SubmitError struct {
	Stage  string
	Err    error
	Causes []string
}

func newSubmitError(stage string, err error) *SubmitError {
	return &SubmitError{Stage: stage, Err: err, Causes: likelyCauses(err)}
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit failed during %s: %v", e.Stage, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Detail renders the error with its likely causes, one per line.
func (e *SubmitError) Detail() string {
	var b strings.Builder
	b.WriteString(e.Error())
	if len(e.Causes) > 0 {
		b.WriteString("\nLikely causes:")
		for _, c := range e.Causes {
			b.WriteString("\n  - ")
			b.WriteString(c)
		}
	}
	return b.String()
}

func likelyCauses(err error) []string {
	if errors.Is(err, apiclient.ErrAuthExpired) {
		return []string{"Your login has expired. Log in again and resubmit."}
	}

	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return []string{
				fmt.Sprintf("The backend failed while evaluating the diagram (HTTP %d).", apiErr.StatusCode),
				"The backend's AI evaluation service may be missing its configuration (for example an API key).",
			}
		case apiErr.StatusCode == http.StatusNotFound:
			return []string{"The session no longer exists on the backend. Reopen the problem and try again."}
		default:
			return []string{fmt.Sprintf("The backend rejected the submission (HTTP %d).", apiErr.StatusCode)}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return []string{
			"The backend could not be reached. Check your network connection.",
			"Make sure the backend server is running and the API URL is correct.",
		}
	}

	return []string{
		"The backend could not be reached or returned an unexpected response.",
		"The backend may be missing required configuration.",
	}
}
