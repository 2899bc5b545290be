package parser

// Lexer implements a zero-copy lexer for Beancount files.
//
// Tokens store byte offsets into the source rather than copies of the text.
// Newlines are not tokens: the parser uses each token's line and column to tell
// directive starts (column 1) from indented continuation lines.

// Lexer tokenizes Beancount source code.
type Lexer struct {
	source []byte
	pos    int
	line   int
	column int
	tokens []Token
}

// NewLexer creates a new lexer for the given source.
func NewLexer(source []byte) *Lexer {
	return &Lexer{
		source: source,
		line:   1,
		column: 1,
		tokens: make([]Token, 0, len(source)/20+16),
	}
}

// ScanAll lexes the entire source and returns all tokens followed by EOF.
func (l *Lexer) ScanAll() []Token {
	for l.pos < len(l.source) {
		l.skipWhitespace()

		if l.pos >= len(l.source) {
			break
		}

		// Comments, and org-mode headings used to fold ledgers in editors
		if l.peek() == ';' || (l.column == 1 && l.peek() == '*') {
			l.skipLine()
			continue
		}

		l.tokens = append(l.tokens, l.scanToken())
	}

	l.tokens = append(l.tokens, Token{
		Type:   EOF,
		Start:  l.pos,
		End:    l.pos,
		Line:   l.line,
		Column: l.column,
	})

	return l.tokens
}

func (l *Lexer) scanToken() Token {
	start := l.pos
	startLine := l.line
	startCol := l.column

	ch := l.advance()

	switch {
	case isDigit(ch):
		if l.isDatePattern(start) {
			return l.scanDate(start, startLine, startCol)
		}
		return l.scanNumber(start, startLine, startCol)
	case (ch == '-' || ch == '+') && isDigit(l.peek()):
		return l.scanNumber(start, startLine, startCol)
	case ch == '"':
		return l.scanString(start, startLine, startCol)
	case ch == '#' && isNameByte(l.peek()):
		return l.scanWord(TAG, start, startLine, startCol)
	case ch == '^' && isNameByte(l.peek()):
		return l.scanWord(LINK, start, startLine, startCol)
	case ch >= 'A' && ch <= 'Z' || ch >= 0x80:
		return l.scanAccountOrIdent(start, startLine, startCol)
	case ch >= 'a' && ch <= 'z':
		return l.scanKeywordOrIdent(start, startLine, startCol)
	case ch == '*':
		return Token{ASTERISK, start, l.pos, startLine, startCol}
	case ch == '!':
		return Token{EXCLAIM, start, l.pos, startLine, startCol}
	case ch == ':':
		return Token{COLON, start, l.pos, startLine, startCol}
	case ch == ',':
		return Token{COMMA, start, l.pos, startLine, startCol}
	case ch == '{':
		return Token{LBRACE, start, l.pos, startLine, startCol}
	case ch == '}':
		return Token{RBRACE, start, l.pos, startLine, startCol}
	case ch == '@':
		if l.peek() == '@' {
			l.advance()
			return Token{ATAT, start, l.pos, startLine, startCol}
		}
		return Token{AT, start, l.pos, startLine, startCol}
	default:
		return Token{ILLEGAL, start, l.pos, startLine, startCol}
	}
}

// isDatePattern checks if the position starts a date YYYY-MM-DD or YYYY/MM/DD.
func (l *Lexer) isDatePattern(start int) bool {
	if start+10 > len(l.source) {
		return false
	}

	src := l.source[start:]
	sep := src[4]
	if sep != '-' && sep != '/' {
		return false
	}
	return isDigit(src[0]) && isDigit(src[1]) && isDigit(src[2]) && isDigit(src[3]) &&
		isDigit(src[5]) && isDigit(src[6]) && src[7] == sep &&
		isDigit(src[8]) && isDigit(src[9]) &&
		(start+10 == len(l.source) || !isNameByte(l.source[start+10]))
}

func (l *Lexer) scanDate(start, line, col int) Token {
	for i := 0; i < 9; i++ {
		l.advance()
	}
	return Token{DATE, start, l.pos, line, col}
}

// scanNumber scans [-+]?digits with optional thousands groups and decimal part.
func (l *Lexer) scanNumber(start, line, col int) Token {
	for {
		ch := l.peek()
		switch {
		case isDigit(ch):
			l.advance()
		case ch == ',' && l.isThousandsGroup():
			l.advance()
		case ch == '.' && l.pos+1 < len(l.source) && isDigit(l.source[l.pos+1]):
			l.advance()
			for isDigit(l.peek()) {
				l.advance()
			}
			return Token{NUMBER, start, l.pos, line, col}
		default:
			return Token{NUMBER, start, l.pos, line, col}
		}
	}
}

// isThousandsGroup reports whether the comma at pos is followed by exactly three digits.
func (l *Lexer) isThousandsGroup() bool {
	rest := l.source[l.pos+1:]
	if len(rest) < 3 || !isDigit(rest[0]) || !isDigit(rest[1]) || !isDigit(rest[2]) {
		return false
	}
	return len(rest) == 3 || !isDigit(rest[3])
}

// scanString scans a quoted string. Strings do not span lines; an unterminated
// string becomes ILLEGAL.
func (l *Lexer) scanString(start, line, col int) Token {
	for l.pos < len(l.source) {
		ch := l.peek()
		switch ch {
		case '"':
			l.advance()
			return Token{STRING, start, l.pos, line, col}
		case '\n':
			return Token{ILLEGAL, start, l.pos, line, col}
		case '\\':
			l.advance()
			if l.peek() != '\n' {
				l.advance()
			}
		default:
			l.advance()
		}
	}
	return Token{ILLEGAL, start, l.pos, line, col}
}

func (l *Lexer) scanWord(typ TokenType, start, line, col int) Token {
	for isNameByte(l.peek()) {
		l.advance()
	}
	return Token{typ, start, l.pos, line, col}
}

// scanAccountOrIdent scans an account name (contains a colon) or a commodity/flag
// identifier. Non-ASCII bytes are accepted so account names may use any script.
func (l *Lexer) scanAccountOrIdent(start, line, col int) Token {
	hasColon := false
	for l.pos < len(l.source) {
		ch := l.peek()
		if ch == ':' {
			// A trailing colon (metadata key) is not part of the name.
			if l.pos+1 >= len(l.source) || !isAccountStart(l.source[l.pos+1]) {
				break
			}
			hasColon = true
			l.advance()
			continue
		}
		if !isNameByte(ch) && ch != '.' && ch != '\'' && ch < 0x80 {
			break
		}
		l.advance()
	}

	if hasColon {
		return Token{ACCOUNT, start, l.pos, line, col}
	}
	return Token{IDENT, start, l.pos, line, col}
}

func (l *Lexer) scanKeywordOrIdent(start, line, col int) Token {
	for isNameByte(l.peek()) {
		l.advance()
	}
	if typ, ok := keywords[string(l.source[start:l.pos])]; ok {
		return Token{typ, start, l.pos, line, col}
	}
	return Token{IDENT, start, l.pos, line, col}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.source) {
		switch l.source[l.pos] {
		case ' ', '\t', '\r', '\n':
			l.advance()
		default:
			return
		}
	}
}

func (l *Lexer) skipLine() {
	for l.pos < len(l.source) && l.source[l.pos] != '\n' {
		l.advance()
	}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.source) {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) advance() byte {
	if l.pos >= len(l.source) {
		return 0
	}
	ch := l.source[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return ch
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isNameByte(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || isDigit(ch) || ch == '-' || ch == '_'
}

func isAccountStart(ch byte) bool {
	return ch >= 'A' && ch <= 'Z' || isDigit(ch) || ch >= 0x80
}
