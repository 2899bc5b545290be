package query

// Lexer splits query text into tokens. Whitespace separates tokens and is otherwise
// ignored; "--" starts a comment that runs to the end of the line.
type Lexer struct {
	source string
	pos    int
	tokens []Token
}

// NewLexer creates a lexer for source.
func NewLexer(source string) *Lexer {
	return &Lexer{source: source}
}

// ScanAll lexes the entire source and returns all tokens followed by EOF. Input the
// lexer cannot make sense of becomes an ILLEGAL token; the parser reports it.
func (l *Lexer) ScanAll() []Token {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.source) {
			break
		}
		l.tokens = append(l.tokens, l.scanToken())
	}
	l.tokens = append(l.tokens, Token{Type: EOF, Start: l.pos, End: l.pos})
	return l.tokens
}

func (l *Lexer) scanToken() Token {
	start := l.pos
	ch := l.source[l.pos]
	l.pos++

	switch {
	case isDigit(ch):
		if l.isDatePattern(start) {
			l.pos = start + 10
			return l.token(DATE, start)
		}
		return l.scanNumber(start)
	case ch == '.' && isDigit(l.peek()):
		return l.scanNumber(start)
	case ch == '\'' || ch == '"':
		return l.scanString(start, ch)
	case isIdentStart(ch):
		for l.pos < len(l.source) && isIdentByte(l.source[l.pos]) {
			l.pos++
		}
		return l.token(lookupKeyword(l.source[start:l.pos]), start)
	}

	switch ch {
	case '=':
		return l.token(EQ, start)
	case '!':
		if l.match('=') {
			return l.token(NEQ, start)
		}
	case '<':
		if l.match('=') {
			return l.token(LTE, start)
		}
		if l.match('>') {
			return l.token(NEQ, start)
		}
		return l.token(LT, start)
	case '>':
		if l.match('=') {
			return l.token(GTE, start)
		}
		return l.token(GT, start)
	case '~':
		return l.token(MATCH, start)
	case '+':
		return l.token(PLUS, start)
	case '-':
		return l.token(MINUS, start)
	case '*':
		return l.token(STAR, start)
	case '/':
		return l.token(SLASH, start)
	case ',':
		return l.token(COMMA, start)
	case '(':
		return l.token(LPAREN, start)
	case ')':
		return l.token(RPAREN, start)
	}

	return l.token(ILLEGAL, start)
}

func (l *Lexer) token(typ TokenType, start int) Token {
	return Token{Type: typ, Start: start, End: l.pos, Text: l.source[start:l.pos]}
}

// scanNumber scans digits with an optional fraction. Signs are unary operators.
func (l *Lexer) scanNumber(start int) Token {
	for l.pos < len(l.source) && isDigit(l.source[l.pos]) {
		l.pos++
	}
	if l.peek() == '.' {
		l.pos++
		for l.pos < len(l.source) && isDigit(l.source[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.source) && isIdentStart(l.source[l.pos]) {
		for l.pos < len(l.source) && isIdentByte(l.source[l.pos]) {
			l.pos++
		}
		return l.token(ILLEGAL, start)
	}
	return l.token(NUMBER, start)
}

// scanString scans a string quoted with quote. A doubled quote or a backslash escapes
// the quote character. An unterminated string is ILLEGAL.
func (l *Lexer) scanString(start int, quote byte) Token {
	for l.pos < len(l.source) {
		ch := l.source[l.pos]
		l.pos++
		switch {
		case ch == '\\' && l.pos < len(l.source):
			l.pos++
		case ch == quote && l.peek() == quote:
			l.pos++
		case ch == quote:
			return l.token(STRING, start)
		}
	}
	return l.token(ILLEGAL, start)
}

// isDatePattern reports whether YYYY-MM-DD starts at offset start.
func (l *Lexer) isDatePattern(start int) bool {
	if start+10 > len(l.source) {
		return false
	}
	s := l.source[start : start+10]
	for i := 0; i < 10; i++ {
		switch i {
		case 4, 7:
			if s[i] != '-' {
				return false
			}
		default:
			if !isDigit(s[i]) {
				return false
			}
		}
	}
	return start+10 == len(l.source) || !isIdentByte(l.source[start+10])
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.source) {
		switch ch := l.source[l.pos]; {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			l.pos++
		case ch == '-' && l.pos+1 < len(l.source) && l.source[l.pos+1] == '-':
			for l.pos < len(l.source) && l.source[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.source) {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) match(expected byte) bool {
	if l.peek() != expected {
		return false
	}
	l.pos++
	return true
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_'
}

func isIdentByte(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

// unquoteString strips the quotes of a STRING token and resolves escapes.
func unquoteString(raw string) string {
	quote := raw[0]
	s := raw[1 : len(raw)-1]
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '\\' && i+1 < len(s):
			i++
			switch s[i] {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			default:
				out = append(out, s[i])
			}
		case ch == quote && i+1 < len(s) && s[i+1] == quote:
			i++
			out = append(out, quote)
		default:
			out = append(out, ch)
		}
	}
	return string(out)
}
