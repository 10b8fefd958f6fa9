package whatsapp

import (
	"regexp"
	"strings"
)

var (
	// Single * not touching another * or _ on either side: markdown italic.
	italicPattern = regexp.MustCompile(`([^*_]|^)\*([^*_]+?)\*([^*_]|$)`)

	headerLinePattern     = regexp.MustCompile(`(?m)^#+ \**_*(.*?)\**_*\n`)
	nestedNumberedPattern = regexp.MustCompile(`^(\s*)(\d+)\. `)
	nestedBulletPattern   = regexp.MustCompile(`^(\s*)[*-] `)
	leadingIndentPattern  = regexp.MustCompile(`^(\s+)`)
	numberedItemPattern   = regexp.MustCompile(`^\s*\d+\.\s`)
	bulletItemPattern     = regexp.MustCompile(`^\s*[*-]\s`)
)

// FormatForWhatsApp converts conventional markdown syntax to WhatsApp's
// markdown syntax: *italic*→_italic_, **bold**→*bold*, # headers→*_header_*,
// and rewrites nested list markers.
func FormatForWhatsApp(msg string) string {
	msg = convertItalicSyntax(msg)
	msg = convertBoldSyntax(msg)
	msg = convertHeaders(msg)
	msg = formatNestedLists(msg)
	return msg
}

func convertItalicSyntax(text string) string {
	// Replace repeatedly: the pattern consumes one boundary character on
	// each side, so adjacent italics need a second pass.
	for {
		converted := italicPattern.ReplaceAllString(text, `${1}_${2}_${3}`)
		if converted == text {
			return converted
		}
		text = converted
	}
}

func convertBoldSyntax(text string) string {
	return strings.ReplaceAll(text, "**", "*")
}

func convertHeaders(text string) string {
	return headerLinePattern.ReplaceAllString(text, "*_${1}_*\n")
}

// formatNestedLists rewrites nested list markers, which WhatsApp renders
// poorly: "  2. item" becomes "  2 - item" and "  - item" becomes "  -- item".
// Top-level list items keep their original markers.
func formatNestedLists(text string) string {
	lines := strings.Split(text, "\n")
	processed := make([]string, 0, len(lines))

	inNested := false
	nestedIndent := 0

	for _, line := range lines {
		indent := 0
		if strings.TrimSpace(line) != "" {
			if m := leadingIndentPattern.FindString(line); m != "" {
				indent = len(m)
			}
		}

		isNumbered := numberedItemPattern.MatchString(line)
		isBullet := bulletItemPattern.MatchString(line)

		switch {
		case (isNumbered || isBullet) && indent > 0:
			if !inNested {
				inNested = true
				nestedIndent = indent
			}
			if isNumbered {
				line = nestedNumberedPattern.ReplaceAllString(line, "${1}${2} - ")
			} else {
				line = nestedBulletPattern.ReplaceAllString(line, "${1}-- ")
			}
		case inNested && indent < nestedIndent:
			inNested = false
		}

		processed = append(processed, line)
	}

	return strings.Join(processed, "\n")
}
