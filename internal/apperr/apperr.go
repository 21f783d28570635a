// Package apperr classifies failures into the user-facing kinds shown by
// the CLI.
package apperr

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"time"
)

// Kind is a user-facing error category
type Kind string

const (
	File       Kind = "FILE_ERROR"
	Network    Kind = "NETWORK_ERROR"
	Processing Kind = "PROCESSING_ERROR"
	Validation Kind = "VALIDATION_ERROR"
	Server     Kind = "SERVER_ERROR"
	Unknown    Kind = "UNKNOWN_ERROR"
)

type info struct {
	title   string
	message string
}

var kinds = map[Kind]info{
	File:       {"File Error", "There was an error processing your file"},
	Network:    {"Network Error", "Unable to connect to the server"},
	Processing: {"Processing Error", "Error processing data"},
	Validation: {"Validation Error", "Invalid data format"},
	Server:     {"Server Error", "Server encountered an error"},
	Unknown:    {"Unknown Error", "An unexpected error occurred"},
}

// Title is the heading for k. Unrecognised kinds use the unknown title.
func (k Kind) Title() string {
	if i, ok := kinds[k]; ok {
		return i.title
	}
	return kinds[Unknown].title
}

// DefaultMessage is the message shown when none is given
func (k Kind) DefaultMessage() string {
	if i, ok := kinds[k]; ok {
		return i.message
	}
	return kinds[Unknown].message
}

// Error is a classified error with optional details and cause
type Error struct {
	Kind    Kind
	Message string
	Details string
	Time    time.Time
	cause   error
}

// New creates an error of kind. An empty message uses the kind's default.
func New(kind Kind, message, details string) *Error {
	if message == "" {
		message = kind.DefaultMessage()
	}
	return &Error{Kind: kind, Message: message, Details: details, Time: time.Now()}
}

// Wrap classifies cause as kind. The cause's text becomes the details.
func Wrap(cause error, kind Kind, message string) *Error {
	if cause == nil {
		return nil
	}
	e := New(kind, message, cause.Error())
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf classifies err. A wrapped *Error reports its own kind; file system
// and network errors are recognised; everything else is unknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return File
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Network
	}

	return Unknown
}

// Format renders err the way the CLI prints it: "Title: message (details)".
// custom replaces the message when set.
func Format(err error, custom string) string {
	kind := KindOf(err)

	message := custom
	details := ""

	var ae *Error
	if errors.As(err, &ae) {
		if message == "" {
			message = ae.Message
		}
		details = ae.Details
	} else {
		if message == "" {
			message = kind.DefaultMessage()
		}
		details = err.Error()
	}

	var b strings.Builder
	b.WriteString(kind.Title())
	b.WriteString(": ")
	b.WriteString(message)
	if details != "" && details != message {
		b.WriteString(" (")
		b.WriteString(details)
		b.WriteString(")")
	}
	return b.String()
}
