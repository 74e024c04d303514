package prompts

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/avvvet/naina-chat/internal/catalog"
	"github.com/avvvet/naina-chat/internal/models"
)

const (
	// DefaultMaxPrice is used when a directive leaves the upper bound out
	DefaultMaxPrice = catalog.DefaultMaxPrice

	// MinReplyLength is the shortest visible reply worth sending
	MinReplyLength = 3

	// FallbackReply replaces empty or near-empty model output
	FallbackReply = "Hey! What can I help with? 😊"
)

var (
	directiveRe = regexp.MustCompile(`(?i)SHOW\[([^\]]+)\]`)

	// every closed marker, empty ones and doubled closing brackets included
	markerRe = regexp.MustCompile(`(?i)SHOW\[[^\]]*\]+`)

	// a marker cut off by the token limit never gets its closing bracket
	truncatedDirectiveRe = regexp.MustCompile(`(?i)SHOW\[[^\]]*$`)

	boundRe = regexp.MustCompile(`^(?:₹|(?i:rs\.?))?\s*(\d[\d,]*)`)
)

// ExtractCommand finds the first SHOW[term|min|max] marker in text.
// It returns the parsed directive, or nil when there is none, and the text
// with every marker removed.
func ExtractCommand(text string) (*models.Directive, string) {
	return ParseDirective(text), StripDirectives(text)
}

// ParseDirective parses the first marker only. Malformed contents never fail:
// missing or unreadable bounds fall back to 0 and DefaultMaxPrice.
func ParseDirective(text string) *models.Directive {
	m := directiveRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	parts := strings.Split(m[1], "|")
	d := &models.Directive{
		Search:   cleanTerm(parts[0]),
		MinPrice: 0,
		MaxPrice: DefaultMaxPrice,
	}
	if len(parts) > 1 {
		if v, ok := parseBound(parts[1]); ok {
			d.MinPrice = v
		}
	}
	if len(parts) > 2 {
		if v, ok := parseBound(parts[2]); ok {
			d.MaxPrice = v
		}
	}
	return d
}

// StripDirectives removes all markers so the shopper never sees them
func StripDirectives(text string) string {
	text = markerRe.ReplaceAllString(text, "")
	text = truncatedDirectiveRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// VisibleReply strips markers and substitutes FallbackReply for replies
// too short to be useful.
func VisibleReply(raw string) string {
	text := StripDirectives(raw)
	if utf8.RuneCountInString(text) < MinReplyLength {
		return FallbackReply
	}
	return text
}

var quoteReplacer = strings.NewReplacer(
	`"`, "", `'`, "", "`", "",
	"\u201c", "", "\u201d", "", "\u2018", "", "\u2019", "",
)

func cleanTerm(s string) string {
	return strings.TrimSpace(quoteReplacer.Replace(s))
}

func parseBound(s string) (int, bool) {
	m := boundRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0, false
	}
	return v, true
}
