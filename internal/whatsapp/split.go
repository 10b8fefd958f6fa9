package whatsapp

import (
	"regexp"
	"unicode/utf8"
)

// MaxMessageLength is the WhatsApp per-message limit, counted in runes so
// multi-byte scripts such as Arabic get the full allowance.
const MaxMessageLength = 4000

var (
	headerPattern    = regexp.MustCompile(`\*_[^*_]+_\*`)
	boldPattern      = regexp.MustCompile(`\*[^*]+\*`)
	paragraphPattern = regexp.MustCompile(`\n\n+`)
)

// SplitMessage splits a long message into chunks under the WhatsApp limit.
// Splitting prefers formatted header boundaries (*_HEADER_*), then bold text
// (*BOLD*), then paragraphs, and finally falls back to fixed-size chunks.
func SplitMessage(body string) []string {
	if utf8.RuneCountInString(body) <= MaxMessageLength {
		return []string{body}
	}

	if chunks := splitByPattern(body, headerPattern, MaxMessageLength, splitByBold); len(chunks) > 1 {
		return chunks
	}
	return splitByBold(body, MaxMessageLength)
}

func splitByBold(text string, maxLength int) []string {
	if utf8.RuneCountInString(text) <= maxLength {
		return []string{text}
	}
	if chunks := splitByPattern(text, boldPattern, maxLength, splitByParagraphs); len(chunks) > 1 {
		return chunks
	}
	return splitByParagraphs(text, maxLength)
}

// splitByPattern treats each pattern match as a chunk boundary. Text before
// the first match becomes its own chunk; oversized chunks are handed to the
// fallback splitter. Match indices are byte offsets but always land on rune
// boundaries, so slicing at them keeps the text valid UTF-8.
func splitByPattern(text string, pattern *regexp.Regexp, maxLength int, fallback func(string, int) []string) []string {
	matches := pattern.FindAllStringIndex(text, -1)
	if len(matches) <= 1 {
		return []string{text}
	}

	var chunks []string
	for i, match := range matches {
		if i == 0 && match[0] > 0 {
			prefix := text[:match[0]]
			if utf8.RuneCountInString(prefix) <= maxLength {
				chunks = append(chunks, prefix)
			} else {
				chunks = append(chunks, splitByParagraphs(prefix, maxLength)...)
			}
		}

		end := len(text)
		if i < len(matches)-1 {
			end = matches[i+1][0]
		}
		chunk := text[match[0]:end]

		if utf8.RuneCountInString(chunk) <= maxLength {
			chunks = append(chunks, chunk)
		} else {
			chunks = append(chunks, fallback(chunk, maxLength)...)
		}
	}
	return chunks
}

func splitByParagraphs(text string, maxLength int) []string {
	if utf8.RuneCountInString(text) <= maxLength {
		return []string{text}
	}

	paragraphs := paragraphPattern.Split(text, -1)
	if len(paragraphs) <= 1 {
		return splitByFixedChunks(text, maxLength)
	}

	var chunks []string
	current := ""
	currentLen := 0
	for _, para := range paragraphs {
		paraLen := utf8.RuneCountInString(para)

		if current != "" && currentLen+paraLen+2 > maxLength {
			chunks = append(chunks, current)
			current = ""
			currentLen = 0
		}

		if paraLen > maxLength {
			if current != "" {
				chunks = append(chunks, current)
				current = ""
				currentLen = 0
			}
			chunks = append(chunks, splitByFixedChunks(para, maxLength)...)
			continue
		}

		if current != "" {
			current += "\n\n" + para
			currentLen += 2 + paraLen
		} else {
			current = para
			currentLen = paraLen
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

// splitByFixedChunks cuts on rune boundaries so a chunk never ends inside a
// multi-byte sequence.
func splitByFixedChunks(text string, maxLength int) []string {
	if utf8.RuneCountInString(text) <= maxLength {
		return []string{text}
	}

	runes := []rune(text)
	var chunks []string
	for i := 0; i < len(runes); i += maxLength {
		end := i + maxLength
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
