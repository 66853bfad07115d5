package config

import (
	"fmt"
	"strings"
)

// Directive is one parsed config statement: a name, its bareword/quoted
// arguments, and — if the statement was a block (`name args { ... }`
// rather than `name args;`) — its nested directives.
//
// The grammar mirrors the original engine's Ragel-driven config
// scanner: whitespace-separated symbols, double- or single-quoted
// strings (backslash-escaped), '#' line comments, ';' terminating a
// plain statement and '{'/'}' delimiting a nested block.
type Directive struct {
	Name     string
	Args     []string
	Children []*Directive
}

type tokenKind int

const (
	tokSymbol tokenKind = iota
	tokBraceOpen
	tokBraceClose
	tokSemicolon
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	data []byte
	pos  int
	line int
}

func newLexer(data []byte) *lexer {
	return &lexer{data: data, line: 1}
}

func (l *lexer) peekByte() (byte, bool) {
	if l.pos >= len(l.data) {
		return 0, false
	}
	return l.data[l.pos], true
}

func (l *lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		switch {
		case c == '\n':
			l.line++
			l.pos++
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
		case c == '#':
			for l.pos < len(l.data) && l.data[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func isSpecial(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '{', '}', ';', '#':
		return true
	}
	return false
}

// next returns the next token, or a tokEOF token once the input is
// exhausted.
func (l *lexer) next() (token, error) {
	l.skipWhitespaceAndComments()
	if l.pos >= len(l.data) {
		return token{kind: tokEOF}, nil
	}

	c := l.data[l.pos]
	switch c {
	case '{':
		l.pos++
		return token{kind: tokBraceOpen, text: "{"}, nil
	case '}':
		l.pos++
		return token{kind: tokBraceClose, text: "}"}, nil
	case ';':
		l.pos++
		return token{kind: tokSemicolon, text: ";"}, nil
	case '"', '\'':
		return l.quotedSymbol(c)
	default:
		return l.barewordSymbol()
	}
}

func (l *lexer) quotedSymbol(quote byte) (token, error) {
	start := l.pos
	l.pos++ // skip opening quote
	var sb strings.Builder
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if c == '\\' && l.pos+1 < len(l.data) {
			sb.WriteByte(l.data[l.pos+1])
			l.pos += 2
			continue
		}
		if c == quote {
			l.pos++
			return token{kind: tokSymbol, text: sb.String()}, nil
		}
		if c == '\n' {
			l.line++
		}
		sb.WriteByte(c)
		l.pos++
	}
	return token{}, fmt.Errorf("config: line %d: unterminated quoted string starting at byte %d", l.line, start)
}

func (l *lexer) barewordSymbol() (token, error) {
	start := l.pos
	for l.pos < len(l.data) && !isSpecial(l.data[l.pos]) {
		l.pos++
	}
	if l.pos == start {
		return token{}, fmt.Errorf("config: line %d: unexpected character %q", l.line, l.data[l.pos])
	}
	return token{kind: tokSymbol, text: string(l.data[start:l.pos])}, nil
}

// Parse tokenizes and parses data into the top-level directive list,
// matching the original parser's start_block/end_block/end_statement
// actions: a run of symbols ending in ';' is a leaf directive, one
// ending in '{' opens a block that accumulates nested directives until
// its matching '}'.
func Parse(data []byte) ([]*Directive, error) {
	l := newLexer(data)
	directives, err := parseBlock(l, false)
	if err != nil {
		return nil, err
	}
	return directives, nil
}

// parseBlock parses directives until EOF (inBlock=false, the document
// root) or until a closing '}' (inBlock=true).
func parseBlock(l *lexer, inBlock bool) ([]*Directive, error) {
	var result []*Directive
	var symbols []string

	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		switch tok.kind {
		case tokEOF:
			if inBlock {
				return nil, fmt.Errorf("config: line %d: unexpected end of input, expected '}'", l.line)
			}
			if len(symbols) > 0 {
				return nil, fmt.Errorf("config: line %d: statement %q missing terminating ';'", l.line, strings.Join(symbols, " "))
			}
			return result, nil

		case tokSymbol:
			symbols = append(symbols, tok.text)

		case tokSemicolon:
			if len(symbols) == 0 {
				return nil, fmt.Errorf("config: line %d: empty statement before ';'", l.line)
			}
			result = append(result, &Directive{Name: symbols[0], Args: symbols[1:]})
			symbols = nil

		case tokBraceOpen:
			if len(symbols) == 0 {
				return nil, fmt.Errorf("config: line %d: block missing a name before '{'", l.line)
			}
			children, err := parseBlock(l, true)
			if err != nil {
				return nil, err
			}
			result = append(result, &Directive{Name: symbols[0], Args: symbols[1:], Children: children})
			symbols = nil

		case tokBraceClose:
			if !inBlock {
				return nil, fmt.Errorf("config: line %d: unexpected '}'", l.line)
			}
			if len(symbols) > 0 {
				return nil, fmt.Errorf("config: line %d: statement %q missing terminating ';'", l.line, strings.Join(symbols, " "))
			}
			return result, nil
		}
	}
}
