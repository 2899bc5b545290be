package parser

import (
	"fmt"
	"strings"

	"github.com/robinvdvleuten/beancount-mcp/ast"
)

// Token navigation

func (p *Parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *Parser) peekAhead(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) isAtEnd() bool {
	return p.peek().Type == EOF
}

func (p *Parser) check(typ TokenType) bool {
	return p.onLine() && p.peek().Type == typ
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if !p.isAtEnd() {
		p.pos++
	}
	return tok
}

// onLine reports whether the next token sits on the line currently being parsed.
func (p *Parser) onLine() bool {
	tok := p.peek()
	return tok.Type != EOF && tok.Line == p.line
}

// atContinuation reports whether the next token starts an indented line belonging to
// the current directive. It moves the current line forward when it does.
func (p *Parser) atContinuation() bool {
	tok := p.peek()
	if tok.Type == EOF || tok.Line == p.line || tok.Column == 1 {
		return false
	}
	p.line = tok.Line
	return true
}

func (p *Parser) expect(typ TokenType, what string) (Token, error) {
	if !p.check(typ) {
		return Token{}, p.unexpected(what)
	}
	return p.advance(), nil
}

func (p *Parser) expectEndOfLine() error {
	if p.onLine() {
		tok := p.peek()
		return p.errorAtToken(tok, "unexpected %s", p.describe(tok))
	}
	return nil
}

// Error helpers

func (p *Parser) position(tok Token) ast.Position {
	return ast.Position{
		Filename: p.filename,
		Offset:   tok.Start,
		Line:     tok.Line,
		Column:   tok.Column,
	}
}

func (p *Parser) errorAtToken(tok Token, format string, args ...any) *ParseWarning {
	return &ParseWarning{
		Pos:     p.position(tok),
		Message: fmt.Sprintf(format, args...),
	}
}

func (p *Parser) unexpected(what string) *ParseWarning {
	tok := p.peek()
	if !p.onLine() {
		return p.errorAtToken(tok, "expected %s at end of line", what)
	}
	return p.errorAtToken(tok, "expected %s but got %s", what, p.describe(tok))
}

func (p *Parser) describe(tok Token) string {
	switch tok.Type {
	case EOF:
		return "end of file"
	case ILLEGAL:
		return fmt.Sprintf("invalid text %q", tok.String(p.source))
	}
	if tok.Type.IsKeyword() {
		return fmt.Sprintf("keyword %q", tok.String(p.source))
	}
	return fmt.Sprintf("%s %q", tok.Type, tok.String(p.source))
}

// Value parsers

func (p *Parser) parseDate() (ast.Date, error) {
	tok, err := p.expect(DATE, "date")
	if err != nil {
		return ast.Date{}, err
	}
	date, err := ast.ParseDate(tok.String(p.source))
	if err != nil {
		return ast.Date{}, p.errorAtToken(tok, "%v", err)
	}
	return date, nil
}

// parseAccount parses an ACCOUNT token. Account names are interned.
func (p *Parser) parseAccount() (ast.Account, error) {
	tok, err := p.expect(ACCOUNT, "account")
	if err != nil {
		return "", err
	}
	account, err := ast.ParseAccount(p.interner.bytes(tok.Bytes(p.source)))
	if err != nil {
		return "", p.errorAtToken(tok, "invalid account: %v", err)
	}
	return account, nil
}

func (p *Parser) parseCommodity() (string, error) {
	tok, err := p.expect(IDENT, "commodity")
	if err != nil {
		return "", err
	}
	commodity := p.interner.bytes(tok.Bytes(p.source))
	if !ast.ValidCommodity(commodity) {
		return "", p.errorAtToken(tok, "invalid commodity %q", commodity)
	}
	return commodity, nil
}

// parseAmount parses NUMBER COMMODITY.
func (p *Parser) parseAmount() (ast.Amount, error) {
	numTok, err := p.expect(NUMBER, "number")
	if err != nil {
		return ast.Amount{}, err
	}
	if !p.check(IDENT) {
		return ast.Amount{}, p.errorAtToken(numTok, "amount %s is missing a commodity", numTok.String(p.source))
	}
	commodity, err := p.parseCommodity()
	if err != nil {
		return ast.Amount{}, err
	}
	amount, err := ast.ParseAmount(numTok.String(p.source), commodity)
	if err != nil {
		return ast.Amount{}, p.errorAtToken(numTok, "%v", err)
	}
	return amount, nil
}

func (p *Parser) parseString() (string, error) {
	tok, err := p.expect(STRING, "string")
	if err != nil {
		return "", err
	}
	return unquote(tok.String(p.source)), nil
}

func (p *Parser) expectTag() (ast.Tag, error) {
	tok, err := p.expect(TAG, "tag")
	if err != nil {
		return "", err
	}
	return ast.NewTag(tok.String(p.source)), nil
}

// isFlag reports whether an IDENT token is a single-letter transaction flag such as P.
func (p *Parser) isFlag(tok Token) bool {
	text := tok.Bytes(p.source)
	return tok.Type == IDENT && len(text) == 1 && text[0] >= 'A' && text[0] <= 'Z'
}

// isMetadataKey reports whether the next tokens form "key:" on the current line.
func (p *Parser) isMetadataKey() bool {
	tok := p.peek()
	if tok.Type != IDENT && !tok.Type.IsKeyword() {
		return false
	}
	text := tok.Bytes(p.source)
	if len(text) == 0 || text[0] < 'a' || text[0] > 'z' {
		return false
	}
	next := p.peekAhead(1)
	return next.Type == COLON && next.Line == tok.Line && next.Start == tok.End
}

// parseMetadata parses "key: value" where the value is kept verbatim up to the end
// of the line.
func (p *Parser) parseMetadata() (*ast.Metadata, error) {
	keyTok := p.advance()
	p.advance() // colon

	if !p.onLine() {
		return &ast.Metadata{Key: keyTok.String(p.source)}, nil
	}

	first := p.peek()
	last := first
	for p.onLine() {
		last = p.advance()
		if last.Type == ILLEGAL {
			return nil, p.errorAtToken(last, "invalid metadata value %q", last.String(p.source))
		}
	}

	return &ast.Metadata{
		Key:   keyTok.String(p.source),
		Value: string(p.source[first.Start:last.End]),
	}, nil
}

// parseDirectiveMetadata consumes the indented metadata lines of a non-transaction
// directive.
func (p *Parser) parseDirectiveMetadata() ([]*ast.Metadata, error) {
	var metadata []*ast.Metadata
	for p.atContinuation() {
		if !p.isMetadataKey() {
			return nil, p.unexpected("metadata")
		}
		meta, err := p.parseMetadata()
		if err != nil {
			return nil, err
		}
		metadata = append(metadata, meta)
	}
	return metadata, nil
}

// unquote strips the surrounding quotes of a string token and resolves escapes.
func unquote(raw string) string {
	s := raw[1 : len(raw)-1]
	if !strings.Contains(s, `\`) {
		return s
	}

	var buf strings.Builder
	buf.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			buf.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			buf.WriteByte('\n')
		case 't':
			buf.WriteByte('\t')
		case 'r':
			buf.WriteByte('\r')
		default:
			buf.WriteByte(s[i])
		}
	}
	return buf.String()
}
