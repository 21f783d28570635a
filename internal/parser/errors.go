package parser

import (
	"errors"

	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

// Grammar errors. The diagnostic ones are returned before the generic one.
var (
	ErrMissingQuotes  = errors.New("Missing quotation marks in log entry")
	ErrMissingBracket = errors.New("Missing timestamp bracket")
	ErrMissingStatus  = errors.New("Missing or invalid status code")
	ErrInvalidFormat  = errors.New("Invalid log format")
)

// Field validation errors, raised after the grammar matched
var (
	ErrInvalidIP        = errors.New("Invalid IP address format")
	ErrInvalidTimestamp = errors.New("Invalid timestamp format")
)

// Category maps a parse error onto a malformed-entry category.
// Field validation failures are PARSING_ERROR, everything else FORMAT_ERROR.
func Category(err error) types.ErrorCategory {
	if errors.Is(err, ErrInvalidIP) || errors.Is(err, ErrInvalidTimestamp) {
		return types.ParsingError
	}
	return types.FormatError
}

// Malformed builds the malformed entry for a rejected line
func Malformed(lineNumber int, line string, err error) *types.MalformedEntry {
	return &types.MalformedEntry{
		LineNumber: lineNumber,
		Content:    line,
		Error:      err.Error(),
		Type:       Category(err),
	}
}
