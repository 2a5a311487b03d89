package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind classifies why a moderation request could not be completed.
type Kind int

const (
	KindUnknown Kind = iota
	KindLaunch
	KindTimeout
	KindProcess
	KindArtifactUnreadable
	KindArtifactMalformed
	KindArtifactInvalidShape
)

var (
	ErrLaunch               = errors.New("analyzer could not be started")
	ErrTimeout              = errors.New("analyzer deadline exceeded")
	ErrProcess              = errors.New("analyzer exited with an error")
	ErrArtifactUnreadable   = errors.New("result artifact unreadable")
	ErrArtifactMalformed    = errors.New("result artifact malformed")
	ErrArtifactInvalidShape = errors.New("result artifact has invalid shape")
)

var kinds = []struct {
	name     string
	sentinel error
}{
	KindUnknown:              {"Unknown", nil},
	KindLaunch:               {"LaunchFailure", ErrLaunch},
	KindTimeout:              {"TimeoutFailure", ErrTimeout},
	KindProcess:              {"ProcessFailure", ErrProcess},
	KindArtifactUnreadable:   {"ArtifactUnreadable", ErrArtifactUnreadable},
	KindArtifactMalformed:    {"ArtifactMalformed", ErrArtifactMalformed},
	KindArtifactInvalidShape: {"ArtifactInvalidShape", ErrArtifactInvalidShape},
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kinds) {
		return "Kind(" + fmt.Sprint(int(k)) + ")"
	}
	return kinds[k].name
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for i, d := range kinds {
		if d.name == string(text) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown failure kind %q", text)
}

// Sentinel returns the package level error matching kind, nil for KindUnknown.
func (k Kind) Sentinel() error {
	if k < 0 || int(k) >= len(kinds) {
		return nil
	}
	return kinds[k].sentinel
}

// ModerationError is the only error type returned by a detection. Use
// errors.Is with ErrLaunch, ErrTimeout, ... to branch on its Kind.
type ModerationError struct {
	Kind     Kind
	Message  string
	ExitCode int    // valid for KindProcess, -1 when killed by a signal
	Stderr   string // captured analyzer stderr, if any
	Err      error  // underlying cause
}

const maxStderrInError = 512

func (e *ModerationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Kind == KindProcess {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
		if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
			if len(stderr) > maxStderrInError {
				stderr = "..." + tail(stderr, maxStderrInError)
			}
			b.WriteString(": stderr: ")
			b.WriteString(stderr)
		}
	}
	return b.String()
}

// tail returns at most n last bytes of s, never starting inside a rune
func tail(s string, n int) string {
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

func (e *ModerationError) Unwrap() error {
	return e.Err
}

func (e *ModerationError) Is(target error) bool {
	sentinel := e.Kind.Sentinel()
	return sentinel != nil && target == sentinel
}

// ErrorInfo is a serializable form of a failed moderation
type ErrorInfo struct {
	Kind     Kind   `json:"kind"`
	Message  string `json:"message"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// NewErrorInfo converts any error to ErrorInfo. Errors not of type
// *ModerationError get KindUnknown.
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	var merr *ModerationError
	if !errors.As(err, &merr) {
		return &ErrorInfo{Kind: KindUnknown, Message: err.Error()}
	}
	info := &ErrorInfo{
		Kind:    merr.Kind,
		Message: merr.Error(),
		Stderr:  merr.Stderr,
	}
	if merr.Kind == KindProcess {
		code := merr.ExitCode
		info.ExitCode = &code
	}
	return info
}
