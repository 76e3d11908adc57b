package deobfuscator

import (
	"errors"
	"fmt"
	"io"

	"haruki-asset-deobfuscator/utils"
	"haruki-asset-deobfuscator/utils/obfcrypto"
)

// Result of one dispatch. Scheme is nil when nothing matched.
type Result struct {
	Scheme Scheme
	Output *Output
}

func (r Result) Recognized() bool {
	return r.Scheme != nil
}

func (r Result) SchemeName() string {
	if r.Scheme == nil {
		return ""
	}
	return r.Scheme.Name()
}

type Dispatcher struct {
	catalog *Catalog
}

// NewDispatcher uses catalog, or the default catalog when catalog is nil.
func NewDispatcher(catalog *Catalog) *Dispatcher {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Dispatcher{catalog: catalog}
}

func (d *Dispatcher) Catalog() *Catalog {
	return d.catalog
}

func rewind(src io.Seeker) error {
	_, err := src.Seek(0, io.SeekStart)
	return err
}

// restoreStart is deferred by every probe so the source is back at its
// start whatever the probe read.
func restoreStart(src io.Seeker) {
	_ = rewind(src)
}

// Identify returns the first scheme whose probe accepts src, or nil. The
// source is left at its start.
func (d *Dispatcher) Identify(src io.ReadSeeker, name string) (Scheme, error) {
	length, err := utils.StreamLength(src)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}
	for _, s := range d.catalog.schemes {
		if err := rewind(src); err != nil {
			return nil, err
		}
		ok := probe(s, src, name)
		if err := rewind(src); err != nil {
			return nil, err
		}
		if ok {
			return s, nil
		}
	}
	return nil, nil
}

// Dispatch identifies the scheme of src and decodes it. An unrecognized
// source yields a Result without scheme and a nil error. Decode failures
// are returned as *MalformedError.
func (d *Dispatcher) Dispatch(src io.ReadSeeker, name string) (Result, error) {
	s, err := d.Identify(src, name)
	if err != nil || s == nil {
		return Result{}, err
	}
	logger.Debugf("%s matched %s", name, s.Name())
	out, err := s.Decode(src, name)
	if rerr := rewind(src); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		var me *MalformedError
		if !errors.As(err, &me) {
			err = &MalformedError{Scheme: s.Name(), Err: err}
		}
		return Result{Scheme: s}, err
	}
	return Result{Scheme: s, Output: out}, nil
}

// probe runs one scheme's probe and turns a fault into a non-match.
// Primitive invariant violations are programming errors and propagate.
func probe(s Scheme, src io.ReadSeeker, name string) (ok bool) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if iv, isViolation := r.(*obfcrypto.InvariantViolation); isViolation {
			panic(iv)
		}
		logger.Debugf("Probe %s faulted on %s: %v", s.Name(), name, fmt.Sprint(r))
		ok = false
	}()
	return s.Probe(src, name)
}
