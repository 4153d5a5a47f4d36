package lang

import (
	"fmt"
	"strings"
)

// ParseError is a structured syntax error. It carries enough position
// information for callers to render the offending line with a caret.
type ParseError struct {
	File string

	// Line and Column are 1-based and point at the unexpected input.
	Line   int
	Column int

	// Start and End delimit the unexpected token as byte offsets into the
	// source. For errors at end of input both equal len(source).
	Start int
	End   int

	// LineText is the full source line the error occurred on.
	LineText string

	// Expected describes the token classes that would have been valid.
	Expected []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf(
		"syntax error at %s:%d:%d, expected: %s\nat: %s",
		e.File, e.Line, e.Column, strings.Join(e.Expected, ", "), e.LineText,
	)
}

// sourceLine extracts the full line containing byte offset pos.
func sourceLine(src string, pos int) string {
	if pos > len(src) {
		pos = len(src)
	}
	start := strings.LastIndexByte(src[:pos], '\n') + 1
	end := strings.IndexByte(src[pos:], '\n')
	if end < 0 {
		return src[start:]
	}
	return src[start : pos+end]
}
