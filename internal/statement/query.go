package statement

import (
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// parseQuery consumes the rest of the statement as a SELECT query, validates
// it and returns its text together with the tables it reads.
func (p *parser) parseQuery() (string, []string) {
	first := p.peek()
	if !first.isKeyword("SELECT") && !first.is(tokPunct, "(") {
		p.fail(first, "expected SELECT query, found %s", first)
	}

	last := first
	for t := p.peek(); t.kind != tokEOF; t = p.peek() {
		if t.is(tokPunct, ";") && p.peekAt(1).kind == tokEOF {
			break
		}
		last = t
		p.next()
	}
	p.expectEnd()

	query := p.text[first.start:last.end]
	sources, err := analyzeQuery(query)
	if err != nil {
		p.fail(first, "invalid query: %v", err)
	}
	return query, sources
}

// analyzeQuery parses a SELECT statement and collects the names of the
// tables it reads, including those inside joins, unions and sub-queries.
func analyzeQuery(query string) ([]string, error) {
	parsed, err := sqlparser.Parse(unwrapParens(query))
	if err != nil {
		return nil, err
	}
	if _, ok := parsed.(sqlparser.SelectStatement); !ok {
		return nil, fmt.Errorf("not a SELECT statement")
	}

	var sources []string
	seen := make(map[string]bool)
	err = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		aliased, ok := node.(*sqlparser.AliasedTableExpr)
		if !ok {
			return true, nil
		}
		tn, ok := aliased.Expr.(sqlparser.TableName)
		if !ok || tn.Name.IsEmpty() {
			return true, nil
		}
		name := tn.Name.String()
		if !tn.Qualifier.IsEmpty() {
			name = tn.Qualifier.String() + "." + name
		}
		if strings.EqualFold(name, "dual") {
			return true, nil
		}
		if !seen[name] {
			seen[name] = true
			sources = append(sources, name)
		}
		return true, nil
	}, parsed)
	if err != nil {
		return nil, err
	}
	return sources, nil
}

// unwrapParens strips parentheses that enclose the whole query.
func unwrapParens(query string) string {
	for {
		toks, err := lex(query)
		if err != nil || len(toks) < 3 || !toks[0].is(tokPunct, "(") || !toks[len(toks)-2].is(tokPunct, ")") {
			return query
		}
		depth := 0
		for i, t := range toks[:len(toks)-1] {
			switch {
			case t.is(tokPunct, "("):
				depth++
			case t.is(tokPunct, ")"):
				depth--
			}
			if depth == 0 && i < len(toks)-2 {
				return query
			}
		}
		query = strings.TrimSpace(query[toks[0].end:toks[len(toks)-2].start])
	}
}
