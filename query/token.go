package query

import "strings"

// TokenType represents the type of a query token.
type TokenType uint8

const (
	EOF TokenType = iota
	ILLEGAL

	// Literals
	IDENT  // account, sum
	STRING // 'text' or "text"
	NUMBER // 12.50
	DATE   // 2024-01-01

	// Keywords
	SELECT
	DISTINCT
	FROM
	WHERE
	GROUP
	ORDER
	BY
	ASC
	DESC
	LIMIT
	AS
	AND
	OR
	NOT
	IS
	IN
	NULL
	TRUE
	FALSE

	// Operators and punctuation
	EQ    // =
	NEQ   // != or <>
	LT    // <
	LTE   // <=
	GT    // >
	GTE   // >=
	MATCH // ~
	PLUS
	MINUS
	STAR
	SLASH
	COMMA
	LPAREN
	RPAREN
)

var tokenNames = map[TokenType]string{
	EOF:     "end of query",
	ILLEGAL: "illegal",
	IDENT:   "identifier",
	STRING:  "string",
	NUMBER:  "number",
	DATE:    "date",
	EQ:      "=",
	NEQ:     "!=",
	LT:      "<",
	LTE:     "<=",
	GT:      ">",
	GTE:     ">=",
	MATCH:   "~",
	PLUS:    "+",
	MINUS:   "-",
	STAR:    "*",
	SLASH:   "/",
	COMMA:   ",",
	LPAREN:  "(",
	RPAREN:  ")",
}

var keywords = map[string]TokenType{
	"SELECT":   SELECT,
	"DISTINCT": DISTINCT,
	"FROM":     FROM,
	"WHERE":    WHERE,
	"GROUP":    GROUP,
	"ORDER":    ORDER,
	"BY":       BY,
	"ASC":      ASC,
	"DESC":     DESC,
	"LIMIT":    LIMIT,
	"AS":       AS,
	"AND":      AND,
	"OR":       OR,
	"NOT":      NOT,
	"IS":       IS,
	"IN":       IN,
	"NULL":     NULL,
	"TRUE":     TRUE,
	"FALSE":    FALSE,
}

func init() {
	for word, typ := range keywords {
		tokenNames[typ] = word
	}
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsKeyword reports whether the token type is a reserved word.
func (t TokenType) IsKeyword() bool {
	return t >= SELECT && t <= FALSE
}

// lookupKeyword returns the keyword type for word, matched case-insensitively, or
// IDENT.
func lookupKeyword(word string) TokenType {
	if typ, ok := keywords[strings.ToUpper(word)]; ok {
		return typ
	}
	return IDENT
}

// Token is a lexical token. Start and End are byte offsets into the query text.
type Token struct {
	Type  TokenType
	Start int
	End   int
	Text  string
}
