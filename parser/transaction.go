package parser

import (
	"github.com/robinvdvleuten/beancount-mcp/ast"
)

// parseTransaction parses a transaction header and its indented postings:
//
//	DATE FLAG [[PAYEE] NARRATION] [#tag|^link]*
//	  [FLAG] ACCOUNT [NUMBER COMMODITY [{NUMBER COMMODITY}] [@|@@ NUMBER COMMODITY]]
func (p *Parser) parseTransaction(pos ast.Position, date ast.Date) (*ast.Transaction, error) {
	flagTok := p.advance()
	flag := flagTok.String(p.source)
	if flagTok.Type == TXN {
		flag = "*"
	}

	txn := &ast.Transaction{Pos: pos, Date: date, Flag: flag}

	var strs []string
	for p.check(STRING) {
		s, err := p.parseString()
		if err != nil {
			return nil, err
		}
		strs = append(strs, s)
	}
	switch len(strs) {
	case 0:
	case 1:
		txn.Narration = strs[0]
	case 2:
		txn.Payee, txn.Narration = strs[0], strs[1]
	default:
		return nil, p.errorAtToken(flagTok, "too many strings in transaction header")
	}

	for p.onLine() {
		tok := p.advance()
		switch tok.Type {
		case TAG:
			txn.Tags = append(txn.Tags, ast.NewTag(tok.String(p.source)))
		case LINK:
			txn.Links = append(txn.Links, ast.NewLink(tok.String(p.source)))
		default:
			return nil, p.errorAtToken(tok, "unexpected %s in transaction header", p.describe(tok))
		}
	}
	txn.Tags = append(txn.Tags, p.tags...)

	for p.atContinuation() {
		if p.isMetadataKey() {
			meta, err := p.parseMetadata()
			if err != nil {
				return nil, err
			}
			if n := len(txn.Postings); n > 0 {
				txn.Postings[n-1].AddMetadata(meta)
			} else {
				txn.AddMetadata(meta)
			}
			continue
		}

		posting, err := p.parsePosting()
		if err != nil {
			return nil, err
		}
		txn.Postings = append(txn.Postings, posting)
	}

	return txn, nil
}

func (p *Parser) parsePosting() (*ast.Posting, error) {
	posting := &ast.Posting{Pos: p.position(p.peek())}

	if tok := p.peek(); tok.Type == ASTERISK || tok.Type == EXCLAIM || p.isFlag(tok) {
		posting.Flag = p.advance().String(p.source)
	}

	account, err := p.parseAccount()
	if err != nil {
		return nil, err
	}
	posting.Account = account

	if !p.onLine() {
		return posting, nil
	}

	amount, err := p.parseAmount()
	if err != nil {
		return nil, err
	}
	posting.Amount = &amount

	if p.check(LBRACE) {
		cost, err := p.parseCost()
		if err != nil {
			return nil, err
		}
		posting.Cost = cost
	}

	if p.check(AT) || p.check(ATAT) {
		posting.PriceTotal = p.advance().Type == ATAT
		price, err := p.parseAmount()
		if err != nil {
			return nil, err
		}
		posting.Price = &price
	}

	if err := p.expectEndOfLine(); err != nil {
		return nil, err
	}
	return posting, nil
}

// parseCost parses a per-unit cost {NUMBER COMMODITY}. An acquisition date or lot
// label may follow the amount and is ignored. Empty and merge costs carry no amount
// to weigh the posting by and are rejected.
func (p *Parser) parseCost() (*ast.Amount, error) {
	open := p.advance() // {

	if !p.check(NUMBER) {
		return nil, p.errorAtToken(open, "cost must specify a per-unit amount")
	}
	amount, err := p.parseAmount()
	if err != nil {
		return nil, err
	}

	for p.check(COMMA) {
		p.advance()
		if !p.check(DATE) && !p.check(STRING) {
			return nil, p.unexpected("cost date or label")
		}
		p.advance()
	}

	if _, err := p.expect(RBRACE, "}"); err != nil {
		return nil, err
	}
	return &amount, nil
}
