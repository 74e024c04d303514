// Package intent classifies free-text shopper messages. It is the only place
// keyword matching drives control flow.
package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind tags a shopper message
type Kind string

const (
	Greeting       Kind = "greeting"
	ShowMore       Kind = "show_more"
	PriceQuery     Kind = "price_query"
	PolicyQuestion Kind = "policy_question"
	ProductQuery   Kind = "product_query"
	Other          Kind = "other"
)

// Policy topics recognised in PolicyQuestion messages
const (
	PolicyCOD      = "cod"
	PolicyReturns  = "returns"
	PolicyDelivery = "delivery"
	PolicySizing   = "sizing"
)

// PriceRange is a budget stated in the message. Max of 0 means no upper bound.
type PriceRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Result is the outcome of Classify
type Result struct {
	Kind   Kind
	Price  *PriceRange
	Policy string
}

var (
	showMoreRe = regexp.MustCompile(`(?i)\b(more|next|another)\b`)

	betweenRe = regexp.MustCompile(`(\d+)\s*(?:to|and|-)\s*(\d+)`)
	underRe   = regexp.MustCompile(`(?:under|below|less than|within)\s*(?:₹|rs\.?)?\s*(\d+)`)
	aboveRe   = regexp.MustCompile(`(?:above|over|greater than|more than)\s*(?:₹|rs\.?)?\s*(\d+)`)
	amountRe  = regexp.MustCompile(`(?:₹|rs\.?)\s*(\d{2,6})|\b(\d{3,6})\b`)

	greetingRe = regexp.MustCompile(`^(hi+|hello|hey+|hiya|namaste|yo|good (morning|afternoon|evening))\b`)

	codRe      = regexp.MustCompile(`\bcod\b|cash on delivery`)
	returnsRe  = regexp.MustCompile(`\breturns?\b|\bexchange\b|\brefund\b`)
	deliveryRe = regexp.MustCompile(`\bdelivery\b|\bshipping\b|\bdeliver\b|\bdays\b`)
	sizingRe   = regexp.MustCompile(`\bsize\b|\bsizing\b|\bfit\b`)

	productRe = regexp.MustCompile(`ring|necklace|pendant|chain|bracelet|bangle|kada|earring|jhumka|stud|anklet|jewel|show|looking for|gift|collection|products?\b|items?\b`)
)

// Classify tags message. The first matching rule wins:
// show-more, price, policy, greeting, product, other.
func Classify(message string) Result {
	msg := strings.ToLower(strings.TrimSpace(message))
	if msg == "" {
		return Result{Kind: Other}
	}

	price := DetectPrice(msg)

	// "more than 500" is a budget, not a continuation
	if showMoreRe.MatchString(msg) && !aboveRe.MatchString(msg) {
		return Result{Kind: ShowMore, Price: price}
	}
	if price != nil {
		return Result{Kind: PriceQuery, Price: price}
	}
	if topic := detectPolicy(msg); topic != "" {
		return Result{Kind: PolicyQuestion, Policy: topic}
	}
	if greetingRe.MatchString(msg) && len(strings.Fields(msg)) <= 4 {
		return Result{Kind: Greeting}
	}
	if productRe.MatchString(msg) {
		return Result{Kind: ProductQuery}
	}
	return Result{Kind: Other}
}

// IsShowMore reports whether message asks for the next page
func IsShowMore(message string) bool {
	return Classify(message).Kind == ShowMore
}

// DetectPrice finds a budget phrase: "between X and Y", "X-Y", "under X",
// "above X", or a bare amount read as an upper bound.
func DetectPrice(message string) *PriceRange {
	msg := strings.ToLower(message)

	if m := betweenRe.FindStringSubmatch(msg); m != nil {
		lo, hi := atoi(m[1]), atoi(m[2])
		if lo > hi {
			lo, hi = hi, lo
		}
		return &PriceRange{Min: lo, Max: hi}
	}
	if m := underRe.FindStringSubmatch(msg); m != nil {
		return &PriceRange{Max: atoi(m[1])}
	}
	if m := aboveRe.FindStringSubmatch(msg); m != nil {
		return &PriceRange{Min: atoi(m[1])}
	}
	if m := amountRe.FindStringSubmatch(msg); m != nil {
		v := m[1]
		if v == "" {
			v = m[2]
		}
		return &PriceRange{Max: atoi(v)}
	}
	return nil
}

func detectPolicy(msg string) string {
	switch {
	case codRe.MatchString(msg):
		return PolicyCOD
	case returnsRe.MatchString(msg):
		return PolicyReturns
	case deliveryRe.MatchString(msg):
		return PolicyDelivery
	case sizingRe.MatchString(msg):
		return PolicySizing
	}
	return ""
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
