package parser

import (
	"github.com/robinvdvleuten/beancount-mcp/ast"
)

// parseOpen parses: DATE open ACCOUNT [COMMODITY{,COMMODITY}] [STRING]
func (p *Parser) parseOpen(pos ast.Position, date ast.Date) (*ast.Open, error) {
	p.advance() // open

	account, err := p.parseAccount()
	if err != nil {
		return nil, err
	}

	open := &ast.Open{Pos: pos, Date: date, Account: account}

	if p.check(IDENT) {
		for {
			commodity, err := p.parseCommodity()
			if err != nil {
				return nil, err
			}
			open.Commodities = append(open.Commodities, commodity)
			if !p.check(COMMA) {
				break
			}
			p.advance()
		}
	}

	if p.check(STRING) {
		if open.BookingMethod, err = p.parseString(); err != nil {
			return nil, err
		}
	}

	if err := p.finishDirective(&open.Metadata); err != nil {
		return nil, err
	}
	return open, nil
}

// parseClose parses: DATE close ACCOUNT
func (p *Parser) parseClose(pos ast.Position, date ast.Date) (*ast.Close, error) {
	p.advance() // close

	account, err := p.parseAccount()
	if err != nil {
		return nil, err
	}

	c := &ast.Close{Pos: pos, Date: date, Account: account}
	if err := p.finishDirective(&c.Metadata); err != nil {
		return nil, err
	}
	return c, nil
}

// parseBalance parses: DATE balance ACCOUNT NUMBER COMMODITY
func (p *Parser) parseBalance(pos ast.Position, date ast.Date) (*ast.Balance, error) {
	p.advance() // balance

	account, err := p.parseAccount()
	if err != nil {
		return nil, err
	}
	amount, err := p.parseAmount()
	if err != nil {
		return nil, err
	}

	b := &ast.Balance{Pos: pos, Date: date, Account: account, Amount: amount}
	if err := p.finishDirective(&b.Metadata); err != nil {
		return nil, err
	}
	return b, nil
}

// parsePad parses: DATE pad ACCOUNT ACCOUNT
func (p *Parser) parsePad(pos ast.Position, date ast.Date) (*ast.Pad, error) {
	p.advance() // pad

	account, err := p.parseAccount()
	if err != nil {
		return nil, err
	}
	source, err := p.parseAccount()
	if err != nil {
		return nil, err
	}

	pad := &ast.Pad{Pos: pos, Date: date, Account: account, Source: source}
	if err := p.finishDirective(&pad.Metadata); err != nil {
		return nil, err
	}
	return pad, nil
}

// parseNote parses: DATE note ACCOUNT STRING
func (p *Parser) parseNote(pos ast.Position, date ast.Date) (*ast.Note, error) {
	p.advance() // note

	account, err := p.parseAccount()
	if err != nil {
		return nil, err
	}
	description, err := p.parseString()
	if err != nil {
		return nil, err
	}

	note := &ast.Note{Pos: pos, Date: date, Account: account, Description: description}
	if err := p.finishDirective(&note.Metadata); err != nil {
		return nil, err
	}
	return note, nil
}

// parseDocument parses: DATE document ACCOUNT STRING
func (p *Parser) parseDocument(pos ast.Position, date ast.Date) (*ast.Document, error) {
	p.advance() // document

	account, err := p.parseAccount()
	if err != nil {
		return nil, err
	}
	path, err := p.parseString()
	if err != nil {
		return nil, err
	}

	doc := &ast.Document{Pos: pos, Date: date, Account: account, PathToDocument: path}
	if err := p.finishDirective(&doc.Metadata); err != nil {
		return nil, err
	}
	return doc, nil
}

// parsePrice parses: DATE price COMMODITY NUMBER COMMODITY
func (p *Parser) parsePrice(pos ast.Position, date ast.Date) (*ast.Price, error) {
	p.advance() // price

	commodity, err := p.parseCommodity()
	if err != nil {
		return nil, err
	}
	amount, err := p.parseAmount()
	if err != nil {
		return nil, err
	}

	price := &ast.Price{Pos: pos, Date: date, Commodity: commodity, Amount: amount}
	if err := p.finishDirective(&price.Metadata); err != nil {
		return nil, err
	}
	return price, nil
}

// parseCustom parses: DATE custom STRING VALUE*
func (p *Parser) parseCustom(pos ast.Position, date ast.Date) (*ast.Custom, error) {
	p.advance() // custom

	typ, err := p.parseString()
	if err != nil {
		return nil, err
	}

	custom := &ast.Custom{Pos: pos, Date: date, Type: typ}
	for p.onLine() {
		tok := p.advance()
		switch tok.Type {
		case STRING, DATE, ACCOUNT, NUMBER, IDENT:
			custom.Values = append(custom.Values, tok.String(p.source))
		default:
			return nil, p.errorAtToken(tok, "unexpected %s in custom directive", p.describe(tok))
		}
	}

	if err := p.finishDirective(&custom.Metadata); err != nil {
		return nil, err
	}
	return custom, nil
}

// finishDirective checks that nothing trails the directive line and consumes its
// metadata lines.
func (p *Parser) finishDirective(metadata *[]*ast.Metadata) error {
	if err := p.expectEndOfLine(); err != nil {
		return err
	}
	meta, err := p.parseDirectiveMetadata()
	if err != nil {
		return err
	}
	*metadata = append(*metadata, meta...)
	return nil
}
