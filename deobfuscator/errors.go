package deobfuscator

import (
	"errors"
	"fmt"
)

var (
	// ErrUnrecognized is reported by callers that need an error for a source
	// no scheme claimed. The dispatcher itself does not return it.
	ErrUnrecognized = errors.New("deobfuscator: unrecognized format")
	// ErrMalformed matches every decode failure.
	ErrMalformed        = errors.New("deobfuscator: malformed candidate")
	ErrStructuredOutput = errors.New("deobfuscator: output is a structured container")
)

// MalformedError reports a source that a scheme claimed but could not decode.
type MalformedError struct {
	Scheme string
	Err    error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("deobfuscator: %s: malformed candidate: %v", e.Scheme, e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformed
}

func malformed(scheme string, format string, args ...any) error {
	return &MalformedError{Scheme: scheme, Err: fmt.Errorf(format, args...)}
}
