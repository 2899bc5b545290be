// Package parser turns Beancount ledger text into directives.
//
// The parser is a hand-written recursive-descent parser over the zero-copy token
// stream produced by Lexer. It tolerates malformed input: a directive that fails to
// parse is reported as a ParseWarning and skipped, and parsing resumes at the next
// line that starts in column 1.
package parser

import (
	"context"

	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/robinvdvleuten/beancount-mcp/telemetry"
)

// Parser holds the state of a single parse.
type Parser struct {
	source   []byte
	filename string
	tokens   []Token
	pos      int
	line     int // line of the directive being parsed
	interner interner
	tags     []ast.Tag // pushtag stack
	warnings []*ParseWarning
}

// Parse parses source into directives sorted by date (ties keep source order) and
// returns a warning for every line it had to skip.
func Parse(ctx context.Context, filename string, source []byte) (ast.Directives, []*ParseWarning) {
	timer := telemetry.FromContext(ctx).Start("parser.parse")
	defer timer.End()

	lexTimer := timer.Child("parser.lex")
	tokens := NewLexer(source).ScanAll()
	lexTimer.End()

	p := &Parser{
		source:   source,
		filename: filename,
		tokens:   tokens,
		interner: newInterner(len(source)/40 + 64),
	}

	directives := p.parse()
	directives.Sort()

	return directives, p.warnings
}

// ParseString is a convenience wrapper around Parse for in-memory text.
func ParseString(ctx context.Context, source string) (ast.Directives, []*ParseWarning) {
	return Parse(ctx, "", []byte(source))
}

func (p *Parser) parse() ast.Directives {
	var directives ast.Directives

	for !p.isAtEnd() {
		start := p.peek()
		p.line = start.Line

		if start.Column != 1 {
			p.warn(p.errorAtToken(start, "unexpected indented %s outside of a directive", p.describe(start)))
			p.synchronize()
			continue
		}

		directive, err := p.parseEntry()
		if err != nil {
			p.warn(err)
			p.synchronize()
			continue
		}
		if directive != nil {
			directives = append(directives, directive)
		}
	}

	return directives
}

// parseEntry parses one top-level entry. Entries that carry no directive
// (option, plugin, pushtag, ...) return nil without error.
func (p *Parser) parseEntry() (ast.Directive, error) {
	tok := p.peek()

	switch tok.Type {
	case DATE:
		return p.parseDated()
	case OPTION, PLUGIN:
		p.skipEntry()
		return nil, nil
	case INCLUDE:
		p.warn(p.errorAtToken(tok, "include is not supported, the ledger is read as a single file"))
		p.skipEntry()
		return nil, nil
	case PUSHTAG:
		p.advance()
		tag, err := p.expectTag()
		if err != nil {
			return nil, err
		}
		p.tags = append(p.tags, tag)
		return nil, p.expectEndOfLine()
	case POPTAG:
		p.advance()
		tag, err := p.expectTag()
		if err != nil {
			return nil, err
		}
		for i := len(p.tags) - 1; i >= 0; i-- {
			if p.tags[i] == tag {
				p.tags = append(p.tags[:i], p.tags[i+1:]...)
				return nil, p.expectEndOfLine()
			}
		}
		return nil, p.errorAtToken(tok, "poptag #%s without matching pushtag", tag)
	case PUSHMETA, POPMETA:
		p.warn(p.errorAtToken(tok, "%s is not supported and was ignored", tok.Type))
		p.skipEntry()
		return nil, nil
	default:
		return nil, p.errorAtToken(tok, "unexpected %s at start of line", p.describe(tok))
	}
}

// parseDated parses a directive that starts with a date.
func (p *Parser) parseDated() (ast.Directive, error) {
	dateTok := p.peek()
	date, err := p.parseDate()
	if err != nil {
		return nil, err
	}

	pos := p.position(dateTok)
	tok := p.peek()
	if !p.onLine() {
		return nil, p.errorAtToken(dateTok, "expected directive after date")
	}

	switch tok.Type {
	case TXN, ASTERISK, EXCLAIM:
		return p.parseTransaction(pos, date)
	case IDENT:
		if p.isFlag(tok) {
			return p.parseTransaction(pos, date)
		}
	case OPEN:
		return p.parseOpen(pos, date)
	case CLOSE:
		return p.parseClose(pos, date)
	case BALANCE:
		return p.parseBalance(pos, date)
	case PAD:
		return p.parsePad(pos, date)
	case NOTE:
		return p.parseNote(pos, date)
	case DOCUMENT:
		return p.parseDocument(pos, date)
	case PRICE:
		return p.parsePrice(pos, date)
	case CUSTOM:
		return p.parseCustom(pos, date)
	case COMMODITY:
		// Commodity declarations carry no ledger semantics here.
		p.skipEntry()
		return nil, nil
	case EVENT:
		p.warn(p.errorAtToken(tok, "event directives are not supported and were ignored"))
		p.skipEntry()
		return nil, nil
	}

	return nil, p.errorAtToken(tok, "unknown directive %s", p.describe(tok))
}

// synchronize skips tokens until the next line that starts in column 1, after the
// line of the failed directive.
func (p *Parser) synchronize() {
	for !p.isAtEnd() {
		tok := p.peek()
		if tok.Column == 1 && tok.Line > p.line {
			return
		}
		p.advance()
	}
}

// skipEntry skips the current entry including its indented continuation lines.
func (p *Parser) skipEntry() {
	p.synchronize()
}

func (p *Parser) warn(err error) {
	if w, ok := err.(*ParseWarning); ok {
		p.warnings = append(p.warnings, w)
		return
	}
	p.warnings = append(p.warnings, &ParseWarning{
		Pos:     ast.Position{Filename: p.filename, Line: p.line, Column: 1},
		Message: err.Error(),
	})
}
