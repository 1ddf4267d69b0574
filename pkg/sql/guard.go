package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the statement contains more than one SQL statement.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed")
	// ErrNotReadOnly indicates the statement is not a query.
	ErrNotReadOnly = errors.New("only SELECT statements are permitted")
	// ErrEmptyStatement indicates there was nothing to run.
	ErrEmptyStatement = errors.New("empty SQL statement")
)

// writeKeywords may not appear as words anywhere outside literals and
// quoted identifiers, which also catches writable CTEs.
var writeKeywords = map[string]bool{
	"insert": true, "update": true, "delete": true, "merge": true, "upsert": true,
	"drop": true, "create": true, "alter": true, "truncate": true, "rename": true,
	"grant": true, "revoke": true, "replace": true, "attach": true, "detach": true,
	"vacuum": true, "reindex": true, "exec": true, "execute": true, "call": true,
	"into": true, "copy": true, "lock": true, "pragma": true, "set": true,
}

// EnsureReadOnly normalizes a statement (trims whitespace and one trailing
// semicolon) and verifies it is a single SELECT (or WITH ... SELECT) that
// contains no write keywords.
func EnsureReadOnly(statement string) (string, error) {
	normalized := stripTrailingSemicolon(strings.TrimSpace(statement))
	if normalized == "" {
		return "", ErrEmptyStatement
	}

	words, semicolon := scanStatement(normalized)
	if semicolon {
		return "", ErrMultipleStatements
	}
	if len(words) == 0 || (words[0] != "select" && words[0] != "with") {
		return "", ErrNotReadOnly
	}
	for _, w := range words {
		if writeKeywords[w] {
			return "", ErrNotReadOnly
		}
	}
	return normalized, nil
}

// scanStatement lower-cases the bare words of a statement, skipping string
// literals, quoted identifiers and comments, and reports whether a semicolon
// appears outside of them.
func scanStatement(s string) (words []string, semicolon bool) {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateBacktick
		stateBracket
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			words = append(words, strings.ToLower(word.String()))
			word.Reset()
		}
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch state {
		case stateNormal:
			switch {
			case c == ';':
				flush()
				semicolon = true
			case c == '\'':
				flush()
				state = stateSingleQuote
			case c == '"':
				flush()
				state = stateDoubleQuote
			case c == '`':
				flush()
				state = stateBacktick
			case c == '[':
				flush()
				state = stateBracket
			case c == '-' && next == '-':
				flush()
				state = stateLineComment
				i++
			case c == '/' && next == '*':
				flush()
				state = stateBlockComment
				i++
			case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9':
				word.WriteRune(c)
			default:
				flush()
			}
		case stateSingleQuote:
			// '' re-enters the literal on the next quote; \' is MySQL's escape.
			if c == '\\' {
				i++
			} else if c == '\'' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if c == '"' {
				state = stateNormal
			}
		case stateBacktick:
			if c == '`' {
				state = stateNormal
			}
		case stateBracket:
			if c == ']' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}
	flush()
	return words, semicolon
}

// stripTrailingSemicolon removes one trailing semicolon and the whitespace around it.
func stripTrailingSemicolon(s string) string {
	s = strings.TrimRight(s, " \t\n\r")
	if strings.HasSuffix(s, ";") {
		s = strings.TrimRight(strings.TrimSuffix(s, ";"), " \t\n\r")
	}
	return s
}
