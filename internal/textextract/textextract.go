// Package textextract turns HTML markup into a single line of plain text.
package textextract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	scriptBlock = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleBlock  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	anyTag      = regexp.MustCompile(`<[^>]*>`)
	// ASCII and Unicode space separators, line/paragraph separators and BOM
	whitespace = regexp.MustCompile(`[\s\x0b\p{Zs}\x{2028}\x{2029}\x{FEFF}]+`)
)

// Extract drops script and style blocks, replaces the remaining tags with
// spaces, collapses whitespace runs and trims the result.
//
// Entities are left as-is and no DOM is built; malformed markup is handled
// the same way as well-formed markup.
func Extract(html string) string {
	s := scriptBlock.ReplaceAllString(html, "")
	s = styleBlock.ReplaceAllString(s, "")
	s = anyTag.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.Trim(s, " ")
}

// Len is the character count reported alongside extracted or raw content.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}
