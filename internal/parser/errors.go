package parser

import (
	"fmt"
	"strings"
)

// ParseError reports malformed query text. Offset is a byte offset into
// Query; Token is the offending source fragment, empty at end of input.
type ParseError struct {
	Query  string
	Offset int
	Token  string
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("parse error at offset %d: %s", e.Offset, e.Msg)
	}
	return fmt.Sprintf("parse error at offset %d near %q: %s", e.Offset, e.Token, e.Msg)
}

// Pointer renders the query with a caret under the offending offset.
func (e *ParseError) Pointer() string {
	q := strings.ReplaceAll(e.Query, "\n", " ")
	off := min(max(e.Offset, 0), len(q))
	return q + "\n" + strings.Repeat(" ", off) + "^"
}
