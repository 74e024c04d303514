package prompts

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/avvvet/naina-chat/internal/catalog"
)

const SystemPrompt = `You are Naina, a friendly AI assistant at Crook Store jewelry shop.

PRODUCT CATALOG:
%s

HOW TO SHOW PRODUCTS:
Use command: SHOW[keyword|minPrice|maxPrice]

EXAMPLES:

Input: "hi"
Output: "Hey! How's it going? 😊"

Input: "show me rings"
Output: "Here are our rings! SHOW[ring|0|10000]"

Input: "necklace under 1000"
Output: "Perfect! Necklaces under ₹1000: SHOW[necklace|0|1000]"

Input: "products above 1000"
Output: "Check out our premium collection above ₹1000: SHOW[jewelry|1000|10000]"

Input: "skull ring under 500"
Output: "Edgy skull rings under ₹500: SHOW[skull ring|0|500]"

Input: "expensive jewelry"
Output: "Our premium pieces above ₹1500: SHOW[jewelry|1500|10000]"

Input: "show products between 500 and 1000"
Output: "Great range! Here are items ₹500-₹1000: SHOW[jewelry|500|1000]"

RULES:
- Always respond naturally
- For price filters, use format: SHOW[keyword|minPrice|maxPrice]
- If user says "above X" → use minPrice=X, maxPrice=10000
- If user says "under X" → use minPrice=0, maxPrice=X
- If user says "between X and Y" → use minPrice=X, maxPrice=Y
- Use at most one SHOW command per reply
- Keep responses SHORT (1-2 sentences)`

// FallbackDigest stands in for the catalog summary when it cannot be loaded
const FallbackDigest = "Rings, Necklaces, Bracelets, Earrings (₹200-₹2500)"

// DigestSource supplies the per-category catalog summary
type DigestSource interface {
	Summaries(ctx context.Context) ([]catalog.CategorySummary, error)
}

// Builder assembles the system prompt for each turn
type Builder struct {
	digest DigestSource
	logger *zap.Logger
}

func NewBuilder(digest DigestSource, logger *zap.Logger) *Builder {
	return &Builder{digest: digest, logger: logger}
}

// BuildSystemPrompt never fails; a broken digest degrades to FallbackDigest
func (b *Builder) BuildSystemPrompt(ctx context.Context) string {
	return fmt.Sprintf(SystemPrompt, b.catalogSection(ctx))
}

func (b *Builder) catalogSection(ctx context.Context) string {
	if b.digest == nil {
		return FallbackDigest
	}
	summaries, err := b.digest.Summaries(ctx)
	if err != nil {
		b.logger.Warn("⚠️ catalog digest unavailable, using fallback", zap.Error(err))
		return FallbackDigest
	}
	if len(summaries) == 0 {
		return FallbackDigest
	}
	return FormatDigest(summaries)
}

// FormatDigest renders one line per category:
// Ring (4 items, ₹200-₹800): Twist Ring (₹200), ...
func FormatDigest(summaries []catalog.CategorySummary) string {
	var builder strings.Builder

	for i, cat := range summaries {
		if i > 0 {
			builder.WriteString("\n")
		}
		samples := make([]string, 0, len(cat.Samples))
		for _, s := range cat.Samples {
			samples = append(samples, fmt.Sprintf("%s (₹%s)", s.Name, formatPrice(s.Price)))
		}
		builder.WriteString(fmt.Sprintf("%s (%d items, ₹%d-₹%d): %s",
			cat.Category,
			cat.Count,
			int(math.Round(cat.MinPrice)),
			int(math.Round(cat.MaxPrice)),
			strings.Join(samples, ", ")))
	}

	return builder.String()
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
