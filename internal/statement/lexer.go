package statement

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokQuotedIdent
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind  tokenKind
	text  string // unescaped value for quoted tokens
	start int
	end   int
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

func (t token) isKeyword(kw string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of statement"
	case tokString:
		return fmt.Sprintf("string %q", t.text)
	case tokQuotedIdent:
		return fmt.Sprintf("`%s`", t.text)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

// lex splits text into tokens, skipping whitespace and comments. The final
// token is always tokEOF.
func lex(text string) ([]token, *ParseError) {
	var toks []token
	i := 0
	for i < len(text) {
		ch := text[i]
		switch {
		case isSpace(ch):
			i++
		case ch == '-' && strings.HasPrefix(text[i:], "--"):
			nl := strings.IndexByte(text[i:], '\n')
			if nl < 0 {
				i = len(text)
			} else {
				i += nl + 1
			}
		case ch == '/' && strings.HasPrefix(text[i:], "/*"):
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				return nil, newParseError(text, i, "unterminated block comment")
			}
			i += end + 4
		case ch == '\'' || ch == '"' || ch == '`':
			val, next, ok := scanQuoted(text, i)
			if !ok {
				return nil, newParseError(text, i, "unterminated quoted literal")
			}
			kind := tokString
			if ch == '`' {
				kind = tokQuotedIdent
			}
			toks = append(toks, token{kind: kind, text: val, start: i, end: next})
			i = next
		case isIdentStart(ch):
			j := i + 1
			for j < len(text) && isIdentPart(text[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: text[i:j], start: i, end: j})
			i = j
		case isDigit(ch):
			j := scanNumber(text, i)
			toks = append(toks, token{kind: tokNumber, text: text[i:j], start: i, end: j})
			i = j
		default:
			toks = append(toks, token{kind: tokPunct, text: text[i : i+1], start: i, end: i + 1})
			i++
		}
	}
	toks = append(toks, token{kind: tokEOF, start: len(text), end: len(text)})
	return toks, nil
}

// scanQuoted reads a literal opened by text[start]. A doubled quote
// character inside the literal stands for a single one.
func scanQuoted(text string, start int) (string, int, bool) {
	q := text[start]
	var b strings.Builder
	for i := start + 1; i < len(text); i++ {
		if text[i] != q {
			b.WriteByte(text[i])
			continue
		}
		if i+1 < len(text) && text[i+1] == q {
			b.WriteByte(q)
			i++
			continue
		}
		return b.String(), i + 1, true
	}
	return "", len(text), false
}

func scanNumber(text string, i int) int {
	for i < len(text) && isDigit(text[i]) {
		i++
	}
	if i+1 < len(text) && text[i] == '.' && isDigit(text[i+1]) {
		i++
		for i < len(text) && isDigit(text[i]) {
			i++
		}
	}
	if i < len(text) && (text[i] == 'e' || text[i] == 'E') {
		j := i + 1
		if j < len(text) && (text[j] == '+' || text[j] == '-') {
			j++
		}
		if j < len(text) && isDigit(text[j]) {
			i = j
			for i < len(text) && isDigit(text[i]) {
				i++
			}
		}
	}
	return i
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f'
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch >= 0x80
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '$'
}
