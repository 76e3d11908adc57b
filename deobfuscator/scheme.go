// Package deobfuscator detects vendor obfuscation schemes applied to UnityFS
// containers and reverses them.
package deobfuscator

import (
	"io"

	"haruki-asset-deobfuscator/utils/bundle"
	harukiLogger "haruki-asset-deobfuscator/utils/logger"
	"haruki-asset-deobfuscator/utils/stream"
)

var logger = harukiLogger.NewLogger("HarukiDeobfuscator", "INFO", nil)

// SetLogLevel adjusts the package logger, e.g. from the CLI --log-level flag.
func SetLogLevel(level string) {
	logger.SetLevel(level)
}

func LogLevel() string {
	return logger.Level()
}

// DefaultPriority is the priority of every scheme that does not need to run
// before or after the others.
const DefaultPriority = 10

// Scheme recognizes and reverses one obfuscation format.
//
// Probe reads src from its start, must not change its content and returns
// with src positioned at its start again. Decode is only called after Probe
// returned true on the same source.
type Scheme interface {
	Name() string
	Priority() int
	ProducesStructuredContainer() bool
	Probe(src io.ReadSeeker, name string) bool
	Decode(src io.ReadSeeker, name string) (*Output, error)
}

// Output is either a canonical container stream (Reader) or, for schemes
// that produce a structured container, the recovered container with its
// entries already read (Bundle). Reader may read through to the source
// handed to Decode, so the source must outlive it.
type Output struct {
	Reader io.ReadSeeker
	Size   int64
	Bundle *bundle.File
}

func (o *Output) Structured() bool {
	return o.Bundle != nil
}

// Bytes reads the whole canonical stream.
func (o *Output) Bytes() ([]byte, error) {
	if o.Reader == nil {
		return nil, ErrStructuredOutput
	}
	return stream.ReadAll(o.Reader)
}

func streamOutput(v stream.View) *Output {
	return &Output{Reader: v, Size: v.Size()}
}

func bytesOutput(b []byte) *Output {
	return streamOutput(stream.NewBytes(b))
}

type schemeInfo struct {
	name       string
	priority   int
	structured bool
}

func (s schemeInfo) Name() string {
	return s.name
}

func (s schemeInfo) Priority() int {
	return s.priority
}

func (s schemeInfo) ProducesStructuredContainer() bool {
	return s.structured
}
