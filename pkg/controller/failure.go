package controller

import (
	"errors"
	"fmt"

	"github.com/cuemby/burrow/pkg/apicallrc"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/types"
)

// FailureKind classifies why a controller operation failed
type FailureKind int

const (
	KindAccessDenied FailureKind = iota + 1
	KindInvalidName
	KindValueOutOfRange
	KindInvalidProperty
	KindAlreadyExists
	KindNotFound
	KindInUse
	KindExhausted
	KindPersistence
	KindInternal
)

func (k FailureKind) String() string {
	switch k {
	case KindAccessDenied:
		return "AccessDenied"
	case KindInvalidName:
		return "InvalidName"
	case KindValueOutOfRange:
		return "ValueOutOfRange"
	case KindInvalidProperty:
		return "InvalidProperty"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindNotFound:
		return "NotFound"
	case KindInUse:
		return "InUse"
	case KindExhausted:
		return "Exhausted"
	case KindPersistence:
		return "Persistence"
	case KindInternal:
		return "Internal"
	}
	return fmt.Sprintf("FailureKind(%d)", int(k))
}

// low returns the low return code bits a kind maps to by default
func (k FailureKind) low() uint64 {
	switch k {
	case KindAccessDenied:
		return apicallrc.FailAccDenied
	case KindInvalidName:
		return apicallrc.FailInvalidName
	case KindValueOutOfRange:
		return apicallrc.FailValueOutOfRange
	case KindInvalidProperty:
		return apicallrc.FailInvalidProperty
	case KindAlreadyExists:
		return apicallrc.FailExists
	case KindInUse:
		return apicallrc.FailInUse
	case KindExhausted:
		return apicallrc.FailPoolExhausted
	case KindPersistence:
		return apicallrc.FailPersistence
	case KindInternal:
		return apicallrc.FailImpl
	}
	return apicallrc.FailUnknown
}

// Failure is the error a handler body returns for an expected failed
// outcome. Code, when set, is the exact return code; otherwise the code is
// composed from the operation, the object kind and Kind.
type Failure struct {
	Kind       FailureKind
	Code       uint64
	Message    string
	Cause      string
	Correction string
	Err        error

	reportID string
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Err)
	}
	return f.Message
}

func (f *Failure) Unwrap() error { return f.Err }

func fail(kind FailureKind, code uint64, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func (f *Failure) withCause(format string, args ...any) *Failure {
	f.Cause = fmt.Sprintf(format, args...)
	return f
}

func (f *Failure) withCorrection(format string, args ...any) *Failure {
	f.Correction = fmt.Sprintf(format, args...)
	return f
}

func (f *Failure) wrap(err error) *Failure {
	f.Err = err
	if f.Cause == "" && err != nil {
		f.Cause = err.Error()
	}
	return f
}

func persistenceFailure(err error) *Failure {
	return fail(KindPersistence, 0, "Database error").wrap(err)
}

// classify converts any error a handler body returned into a Failure
func classify(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	var accErr *security.AccessDeniedError
	if errors.As(err, &accErr) {
		return fail(KindAccessDenied, 0, "Access denied").wrap(err)
	}
	var nameErr *types.InvalidNameError
	if errors.As(err, &nameErr) {
		return fail(KindInvalidName, 0, "Invalid %s name '%s'", nameErr.Kind, nameErr.Name).
			wrap(err).
			withCorrection("Use a valid name")
	}
	var rangeErr *types.ValueOutOfRangeError
	if errors.As(err, &rangeErr) {
		return fail(KindValueOutOfRange, 0, "Invalid %s %d", rangeErr.Kind, rangeErr.Value).wrap(err)
	}
	var keyErr *types.InvalidKeyError
	if errors.As(err, &keyErr) {
		return fail(KindInvalidProperty, 0, "Invalid property").wrap(err)
	}
	return fail(KindInternal, 0, "Internal error").wrap(err)
}

// entry renders a failure as a result record entry for op on obj
func (f *Failure) entry(op, obj uint64) *apicallrc.RcEntry {
	code := f.Code
	if code == 0 {
		code = apicallrc.MaskError | op | obj | f.Kind.low()
	}
	return &apicallrc.RcEntry{
		ReturnCode: code,
		Message:    f.Message,
		Cause:      f.Cause,
		Correction: f.Correction,
	}
}
