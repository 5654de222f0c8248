package statement

import (
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// Parse parses a single statement. It is pure and safe for concurrent use.
// Every failure, including an internal panic, is reported as a *ParseError.
func Parse(text string) (stmt Statement, err error) {
	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(*ParseError)
			if !ok {
				pe = newParseError(text, 0, fmt.Sprintf("internal parser error: %v", r))
			}
			stmt, err = nil, pe
		}
	}()

	toks, lexErr := lex(text)
	if lexErr != nil {
		return nil, lexErr
	}
	p := &parser{text: text, toks: toks}
	return p.parseStatement(), nil
}

// ParseOrUnparsed parses text and returns an *Unparsed statement instead of
// an error when the text is malformed.
func ParseOrUnparsed(text string) Statement {
	stmt, err := Parse(text)
	if err != nil {
		pe, ok := err.(*ParseError)
		if !ok {
			pe = newParseError(text, 0, err.Error())
		}
		return &Unparsed{Text: strings.TrimSpace(text), Err: pe}
	}
	return stmt
}

type parser struct {
	text string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) fail(t token, format string, args ...any) {
	panic(newParseError(p.text, t.start, fmt.Sprintf(format, args...)))
}

func (p *parser) acceptKeyword(kw string) bool {
	if p.peek().isKeyword(kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectKeyword(kw string) {
	if t := p.next(); !t.isKeyword(kw) {
		p.fail(t, "expected %s, found %s", kw, t)
	}
}

func (p *parser) acceptPunct(c string) bool {
	if p.peek().is(tokPunct, c) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectPunct(c string) {
	if t := p.next(); !t.is(tokPunct, c) {
		p.fail(t, "expected %q, found %s", c, t)
	}
}

// expectEnd accepts an optional trailing terminator followed by the end of
// the text.
func (p *parser) expectEnd() {
	p.acceptPunct(";")
	if t := p.peek(); t.kind != tokEOF {
		p.fail(t, "unexpected %s after statement", t)
	}
}

func (p *parser) parseStatement() Statement {
	text := strings.TrimSpace(p.text)
	t := p.next()
	switch {
	case t.isKeyword("CREATE"):
		return p.parseCreate(text)
	case t.isKeyword("INSERT"):
		return p.parseInsert(text)
	case t.kind == tokEOF:
		p.fail(t, "empty statement")
	default:
		p.fail(t, "expected CREATE or INSERT, found %s", t)
	}
	return nil
}

func (p *parser) parseCreate(text string) Statement {
	t := p.next()
	var kind TableKind
	switch {
	case t.isKeyword("SOURCE"):
		kind = Source
	case t.isKeyword("SINK"):
		kind = Sink
	case t.isKeyword("BATCH"):
		kind = Batch
	case t.isKeyword("VIEW"):
		return p.parseView(text)
	default:
		p.fail(t, "expected SOURCE, SINK, BATCH or VIEW after CREATE, found %s", t)
	}
	p.expectKeyword("TABLE")

	ct := &CreateTable{Kind: kind, Text: text}
	if p.acceptKeyword("IF") {
		p.expectKeyword("NOT")
		p.expectKeyword("EXISTS")
		ct.IfNotExists = true
	}
	ct.Name = p.parseName()

	if p.acceptPunct("(") {
		p.parseTableElements(ct)
	}
	if p.acceptKeyword("COMMENT") {
		ct.Comment = p.expectString()
	}

	with := p.peek()
	if !with.isKeyword("WITH") {
		p.fail(with, "expected WITH clause declaring the connector type, found %s", with)
	}
	p.next()
	options := p.parseOptions()
	p.expectEnd()

	typeKey := ""
	for k := range options {
		if strings.EqualFold(k, "type") {
			typeKey = k
		}
	}
	if typeKey == "" {
		p.fail(with, "table %q has no 'type' option", ct.Name)
	}
	v := options[typeKey]
	if v.Type() != cty.String || v.AsString() == "" {
		p.fail(with, "option 'type' of table %q must be a non-empty string", ct.Name)
	}
	ct.ConnectorType = v.AsString()
	delete(options, typeKey)
	ct.Options = options
	return ct
}

func (p *parser) parseView(text string) Statement {
	name := p.parseName()
	p.expectKeyword("AS")
	query, sources := p.parseQuery()
	return &CreateView{Name: name, Query: query, Sources: sources, Text: text}
}

func (p *parser) parseInsert(text string) Statement {
	p.expectKeyword("INTO")
	ins := &InsertSelect{Text: text}
	ins.Target = p.parseName()

	// A parenthesis opens a column list unless it wraps the query itself.
	if p.peek().is(tokPunct, "(") && !p.peekAt(1).isKeyword("SELECT") {
		p.next()
		for {
			ins.Columns = append(ins.Columns, p.parseIdent())
			if p.acceptPunct(")") {
				break
			}
			p.expectPunct(",")
		}
	}
	ins.Query, ins.Sources = p.parseQuery()
	return ins
}

// parseName reads a possibly dotted, possibly back-quoted object name.
func (p *parser) parseName() string {
	parts := []string{p.parseIdent()}
	for p.acceptPunct(".") {
		parts = append(parts, p.parseIdent())
	}
	return strings.Join(parts, ".")
}

func (p *parser) parseIdent() string {
	t := p.next()
	if t.kind != tokIdent && t.kind != tokQuotedIdent {
		p.fail(t, "expected identifier, found %s", t)
	}
	if t.kind == tokQuotedIdent && t.text == "" {
		p.fail(t, "empty quoted identifier")
	}
	return t.text
}

func (p *parser) expectString() string {
	t := p.next()
	if t.kind != tokString {
		p.fail(t, "expected quoted string, found %s", t)
	}
	return t.text
}

// parseTableElements reads column definitions and an optional watermark up
// to and including the closing parenthesis.
func (p *parser) parseTableElements(ct *CreateTable) {
	seen := make(map[string]bool)
	var wmTok token
	for {
		t := p.peek()
		if t.isKeyword("WATERMARK") {
			p.next()
			if ct.Watermark != nil {
				p.fail(t, "duplicate WATERMARK clause")
			}
			wmTok = t
			p.expectKeyword("FOR")
			col := p.parseIdent()
			p.expectKeyword("AS")
			expr := p.rawUntilSeparator(false)
			if expr == "" {
				p.fail(p.peek(), "missing watermark expression")
			}
			ct.Watermark = &Watermark{Column: col, Expr: expr}
		} else {
			col := Column{Name: p.parseIdent()}
			if seen[strings.ToLower(col.Name)] {
				p.fail(t, "duplicate column %q", col.Name)
			}
			seen[strings.ToLower(col.Name)] = true
			col.Type = p.rawUntilSeparator(true)
			if col.Type == "" {
				p.fail(p.peek(), "missing type for column %q", col.Name)
			}
			if p.acceptKeyword("COMMENT") {
				col.Comment = p.expectString()
			}
			ct.Columns = append(ct.Columns, col)
		}

		if p.acceptPunct(")") {
			break
		}
		p.expectPunct(",")
	}

	if ct.Watermark != nil && !seen[strings.ToLower(ct.Watermark.Column)] {
		p.fail(wmTok, "watermark column %q is not declared", ct.Watermark.Column)
	}
}

// rawUntilSeparator returns the source text up to the next ',' or ')' at
// nesting depth zero. With types set, angle brackets also nest and a
// COMMENT keyword ends the text.
func (p *parser) rawUntilSeparator(types bool) string {
	start := p.peek().start
	end := start
	depth := 0
	for {
		t := p.peek()
		switch {
		case t.kind == tokEOF:
			p.fail(t, "unexpected end of statement inside table definition")
		case depth == 0 && (t.is(tokPunct, ",") || t.is(tokPunct, ")")):
			return strings.TrimSpace(p.text[start:end])
		case depth == 0 && types && t.isKeyword("COMMENT"):
			return strings.TrimSpace(p.text[start:end])
		case t.is(tokPunct, "(") || (types && t.is(tokPunct, "<")):
			depth++
		case t.is(tokPunct, ")") || (types && t.is(tokPunct, ">")):
			depth--
		}
		end = t.end
		p.next()
	}
}

// parseOptions reads '(' key = literal {, key = literal} ')'.
func (p *parser) parseOptions() map[string]cty.Value {
	p.expectPunct("(")
	options := make(map[string]cty.Value)
	for {
		t := p.peek()
		key := p.parseOptionKey()
		if _, dup := options[key]; dup {
			p.fail(t, "duplicate option %q", key)
		}
		p.expectPunct("=")
		options[key] = p.parseLiteral()
		if p.acceptPunct(")") {
			return options
		}
		p.expectPunct(",")
	}
}

func (p *parser) parseOptionKey() string {
	t := p.peek()
	if t.kind == tokString {
		p.next()
		if t.text == "" {
			p.fail(t, "empty option name")
		}
		return t.text
	}
	return p.parseName()
}

func (p *parser) parseLiteral() cty.Value {
	t := p.next()
	switch {
	case t.kind == tokString:
		return cty.StringVal(t.text)
	case t.is(tokPunct, "-") && p.peek().kind == tokNumber:
		return p.number(p.next(), "-")
	case t.kind == tokNumber:
		return p.number(t, "")
	case t.isKeyword("TRUE"):
		return cty.True
	case t.isKeyword("FALSE"):
		return cty.False
	}
	p.fail(t, "expected literal value, found %s", t)
	return cty.NilVal
}

func (p *parser) number(t token, sign string) cty.Value {
	v, err := cty.ParseNumberVal(sign + t.text)
	if err != nil {
		p.fail(t, "invalid number %s: %v", t.text, err)
	}
	return v
}
