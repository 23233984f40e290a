package tts

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/profai/voice-gateway/internal/config"
)

// SplitText breaks text into ordered pieces sized for fast first-audio
// delivery: a small first chunk capped by both a word count and a byte size,
// larger chunks after that. Splits happen only at whitespace, and the chunks
// are contiguous slices of the input, so their concatenation reproduces it
// exactly.
func SplitText(text string, cfg config.ChunkerConfig) []string {
	if text == "" {
		return nil
	}

	var chunks []string
	rest := text

	first, remainder := cutFirstChunk(rest, cfg.FirstChunkWords, cfg.FirstChunkBytes)
	chunks = append(chunks, first)
	rest = remainder

	for rest != "" {
		chunk, remainder := cutAtBoundary(rest, cfg.ChunkBytes)
		chunks = append(chunks, chunk)
		rest = remainder
	}
	return chunks
}

func cutFirstChunk(text string, maxWords, maxBytes int) (string, string) {
	words := 0
	inWord := false
	cut := 0
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord {
				words++
				inWord = false
				cut = i
				if words >= maxWords {
					break
				}
			}
			continue
		}
		if i >= maxBytes && cut > 0 {
			return text[:cut], text[cut:]
		}
		inWord = true
	}
	if words >= maxWords && cut > 0 {
		return text[:cut], text[cut:]
	}
	// The whole text fits in the first chunk.
	return text, ""
}

func cutAtBoundary(text string, maxBytes int) (string, string) {
	if len(text) <= maxBytes {
		return text, ""
	}
	cut := 0
	for i, r := range text {
		if unicode.IsSpace(r) {
			cut = i
		}
		if i >= maxBytes {
			break
		}
	}
	if cut == 0 {
		// A single word longer than the limit; emit it whole rather than
		// splitting mid-word.
		idx := strings.IndexFunc(text, unicode.IsSpace)
		if idx < 0 {
			return text, ""
		}
		return text[:idx], text[idx:]
	}
	return text[:cut], text[cut:]
}

var (
	markdownChars = regexp.MustCompile("[*#_`\\[\\]{}\\\\]")
	ellipsisRun   = regexp.MustCompile(`\.{3,}`)
	spaceRun      = regexp.MustCompile(`\s+`)
)

// Sanitize strips markup that reads badly when spoken and bounds the text
// length so slow providers cannot stall a stream indefinitely.
func Sanitize(text string, maxLen int) string {
	text = markdownChars.ReplaceAllString(text, " ")
	text = ellipsisRun.ReplaceAllString(text, ".")
	text = spaceRun.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if maxLen > 0 && len(text) > maxLen {
		cut := maxLen
		for cut > 0 && !unicode.IsSpace(rune(text[cut-1])) {
			cut--
		}
		if cut == 0 {
			cut = maxLen
		}
		text = strings.TrimSpace(text[:cut]) + "."
	}
	return text
}
