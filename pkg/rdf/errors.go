package rdf

import (
	"fmt"
	"strings"
)

// ParseError reports where a statement failed to parse
type ParseError struct {
	Format    string // "nquads" when empty
	Line      int    // 1-based line number, 0 if unknown
	Statement string // offending statement
	Err       error
}

func (e *ParseError) Error() string {
	var msg strings.Builder
	if e.Format == "" {
		msg.WriteString("nquads")
	} else {
		msg.WriteString(e.Format)
	}
	if e.Line > 0 {
		fmt.Fprintf(&msg, ":%d", e.Line)
	}
	msg.WriteString(": ")
	msg.WriteString(e.Err.Error())
	if e.Statement != "" {
		statement := e.Statement
		if len(statement) > 80 {
			statement = statement[:77] + "..."
		}
		fmt.Fprintf(&msg, "\n  %s", statement)
	}
	return msg.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
