package voice

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	speechURLPattern      = regexp.MustCompile(`https?://\S+`)
	speechLinkPattern     = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	speechEmphasisPattern = regexp.MustCompile(`[*_~#>|]+`)
)

var speechExpansions = strings.NewReplacer(
	"&", " and ",
	"%", " percent",
	"@", " at ",
	"/", " ",
	"\\", " ",
)

// SpeakableText strips chat formatting from a model reply so it reads
// naturally over a phone line. It returns "" when nothing speakable remains.
func SpeakableText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	raw = speechLinkPattern.ReplaceAllString(raw, "$1")
	raw = speechURLPattern.ReplaceAllString(raw, " ")
	raw = speechEmphasisPattern.ReplaceAllString(raw, " ")
	raw = speechExpansions.Replace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	pendingSpace := false
	for _, r := range raw {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
			continue
		case unicode.IsControl(r), r == '\u200d', r == '\ufe0f':
			continue
		case unicode.In(r, unicode.So, unicode.Sk):
			// emoji
			continue
		case unicode.IsPunct(r) && !keepPunct(r):
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace && !attachesLeft(r) {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func keepPunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ':', ';', '\'', '"', '-', '(', ')', '$':
		return true
	}
	return false
}

func attachesLeft(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ':', ';':
		return true
	}
	return false
}
