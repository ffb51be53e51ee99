package acroform

import (
	"encoding/hex"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding/unicode"
)

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`(`, `\(`,
	`)`, `\)`,
	"\r", `\r`,
	"\n", `\n`,
	"\t", `\t`,
)

// encodeText renders s as a PDF text string: a literal for printable ASCII,
// otherwise UTF-16BE with a byte order mark
func encodeText(s string) types.Object {
	if isPlainASCII(s) {
		return types.StringLiteral(literalEscaper.Replace(s))
	}
	encoded, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().String(s)
	if err != nil {
		return types.StringLiteral(literalEscaper.Replace(s))
	}
	return types.HexLiteral(hex.EncodeToString([]byte(encoded)))
}

func isPlainASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c > 0x7e || (c < 0x20 && c != '\n' && c != '\r' && c != '\t') {
			return false
		}
	}
	return true
}
