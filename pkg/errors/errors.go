package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// New returns an error annotated with the caller stack.
func New(msg string) error {
	return &fundamental{msg: msg, stack: callers()}
}

// Errorf formats an error annotated with the caller stack.
func Errorf(format string, args ...interface{}) error {
	return &fundamental{msg: fmt.Sprintf(format, args...), stack: callers()}
}

// NewWithReport builds the error and hands it to the registered reporters.
func NewWithReport(msg string) error {
	err := New(msg)
	report(err)
	return err
}

// ErrorfAndReport formats the error and hands it to the registered reporters.
func ErrorfAndReport(format string, args ...interface{}) error {
	err := Errorf(format, args...)
	report(err)
	return err
}

// Wrap annotates err with msg and the caller stack. Returns nil when err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &withMessage{cause: err, msg: msg, stack: callers()}
}

// Wrapf annotates err with a formatted message and the caller stack.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &withMessage{cause: err, msg: fmt.Sprintf(format, args...), stack: callers()}
}

// WrapAndReport wraps err and hands it to the registered reporters.
func WrapAndReport(err error, msg string) error {
	wrapped := Wrap(err, msg)
	report(wrapped)
	return wrapped
}

// WithStack annotates err with the caller stack only.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &withMessage{cause: err, stack: callers()}
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

type fundamental struct {
	msg string
	*stack
}

func (f *fundamental) Error() string { return f.msg }

type withMessage struct {
	cause error
	msg   string
	*stack
}

func (w *withMessage) Error() string {
	if w.msg == "" {
		return w.cause.Error()
	}
	return w.msg + ": " + w.cause.Error()
}

func (w *withMessage) Unwrap() error { return w.cause }

type stack []uintptr

func callers() *stack {
	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:])
	var st stack = pcs[0:n]
	return &st
}

// fullStack renders every frame as "function file:line".
func (s *stack) fullStack() []string {
	frames := runtime.CallersFrames(*s)
	var rendered []string
	for {
		frame, more := frames.Next()
		var line strings.Builder
		line.WriteString(frame.Function)
		line.WriteString(" ")
		line.WriteString(frame.File)
		line.WriteString(":")
		line.WriteString(strconv.Itoa(frame.Line))
		rendered = append(rendered, line.String())
		if !more {
			break
		}
	}
	return rendered
}

// StackOf exposes the deepest recorded stack of err for reporting.
func StackOf(err error) []string {
	for err != nil {
		if st, ok := err.(interface{ fullStack() []string }); ok {
			return st.fullStack()
		}
		err = errors.Unwrap(err)
	}
	return nil
}
