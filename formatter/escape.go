package formatter

import (
	"strings"
)

// quoteEscaper produces the C-style escapes the parser reads back.
var quoteEscaper = strings.NewReplacer(
	`"`, `\"`,
	`\`, `\\`,
	"\n", `\n`,
	"\t", `\t`,
	"\r", `\r`,
)

func escapeString(s string) string {
	return quoteEscaper.Replace(s)
}

func writeQuoted(s string, buf *strings.Builder) {
	buf.WriteByte('"')
	buf.WriteString(escapeString(s))
	buf.WriteByte('"')
}
