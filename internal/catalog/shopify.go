package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/avvvet/naina-chat/internal/models"
)

const shopifyPageLimit = 250

// ShopifyConfig holds storefront credentials
type ShopifyConfig struct {
	ShopDomain  string
	AccessToken string
	APIVersion  string
}

// ShopifyProduct is the subset of the Admin REST product we use
type ShopifyProduct struct {
	ID       int64            `json:"id"`
	Title    string           `json:"title"`
	BodyHTML string           `json:"body_html"`
	Handle   string           `json:"handle"`
	Tags     string           `json:"tags"`
	Variants []ShopifyVariant `json:"variants"`
	Image    *ShopifyImage    `json:"image"`
	Images   []ShopifyImage   `json:"images"`
}

type ShopifyVariant struct {
	ID                int64  `json:"id"`
	Title             string `json:"title"`
	Price             string `json:"price"`
	SKU               string `json:"sku"`
	InventoryQuantity int    `json:"inventory_quantity"`
	Available         bool   `json:"available"`
}

type ShopifyImage struct {
	Src string `json:"src"`
}

// ShopifyClient pages through the Admin REST products endpoint
type ShopifyClient struct {
	baseURL     string
	shopDomain  string
	accessToken string
	apiVersion  string
	pageDelay   time.Duration
	httpClient  *http.Client
	logger      *zap.Logger
}

// ShopifyOption configures a ShopifyClient
type ShopifyOption func(*ShopifyClient)

// WithBaseURL overrides https://<shop domain>
func WithBaseURL(u string) ShopifyOption {
	return func(c *ShopifyClient) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithPageDelay sets the pause between page requests
func WithPageDelay(d time.Duration) ShopifyOption {
	return func(c *ShopifyClient) { c.pageDelay = d }
}

// NewShopifyClient creates a new Shopify REST client
func NewShopifyClient(cfg ShopifyConfig, logger *zap.Logger, opts ...ShopifyOption) *ShopifyClient {
	// Normalize shop domain - remove scheme and trailing slashes
	shopDomain := strings.TrimSpace(cfg.ShopDomain)
	shopDomain = strings.TrimPrefix(shopDomain, "https://")
	shopDomain = strings.TrimPrefix(shopDomain, "http://")
	shopDomain = strings.TrimSuffix(shopDomain, "/")

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "2024-01"
	}

	c := &ShopifyClient{
		baseURL:     "https://" + shopDomain,
		shopDomain:  shopDomain,
		accessToken: cfg.AccessToken,
		apiVersion:  apiVersion,
		pageDelay:   500 * time.Millisecond,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ShopDomain returns the normalized storefront domain
func (c *ShopifyClient) ShopDomain() string {
	return c.shopDomain
}

var nextPageRe = regexp.MustCompile(`<[^>]*page_info=([^>&]+)[^>]*>;\s*rel="next"`)

// FetchProducts returns every product, following Link rel="next" cursors
func (c *ShopifyClient) FetchProducts(ctx context.Context) ([]ShopifyProduct, error) {
	var all []ShopifyProduct
	pageInfo := ""

	for {
		page, next, err := c.fetchPage(ctx, pageInfo)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		c.logger.Debug("shopify page fetched", zap.Int("count", len(page)), zap.Int("total", len(all)))

		if next == "" {
			break
		}
		pageInfo = next

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pageDelay):
		}
	}

	c.logger.Info("✅ shopify products fetched", zap.Int("total", len(all)))
	return all, nil
}

func (c *ShopifyClient) fetchPage(ctx context.Context, pageInfo string) ([]ShopifyProduct, string, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(shopifyPageLimit))
	if pageInfo != "" {
		q.Set("page_info", pageInfo)
	}
	endpoint := fmt.Sprintf("%s/admin/api/%s/products.json?%s", c.baseURL, c.apiVersion, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("shopify API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Products []ShopifyProduct `json:"products"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	next := ""
	if m := nextPageRe.FindStringSubmatch(resp.Header.Get("Link")); m != nil {
		next = m[1]
	}
	return payload.Products, next, nil
}

var (
	htmlTagRe = regexp.MustCompile(`<[^>]*>`)

	tagRingRe        = regexp.MustCompile(`\bring\b`)
	tagNotRingRe     = regexp.MustCompile(`necklace|pendant|bracelet|earring`)
	tagNecklaceRe    = regexp.MustCompile(`necklace|pendant|chain`)
	tagBraceletRe    = regexp.MustCompile(`bracelet|bangle`)
	tagEarringRe     = regexp.MustCompile(`earring`)
	titleNecklaceRe  = regexp.MustCompile(`necklace|pendant|locket|chain|haar`)
	titleBraceletRe  = regexp.MustCompile(`bracelet|kada|band|bangle`)
	titleEarringRe   = regexp.MustCompile(`earring|jhumka|bali|earstud|tops`)
	titleRingRe      = regexp.MustCompile(`\bring\b|\brings\b|anguthi`)
	styleMinimalRe   = regexp.MustCompile(`minimal|simple|plain`)
	styleClassicRe   = regexp.MustCompile(`classic|traditional|elegant`)
	styleStatementRe = regexp.MustCompile(`statement|bold|party|fancy`)
)

var colorPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"gold", regexp.MustCompile(`\b(gold|golden)\b`)},
	{"silver", regexp.MustCompile(`\bsilver\b`)},
	{"black", regexp.MustCompile(`\bblack\b`)},
	{"white", regexp.MustCompile(`\b(white|pearl)\b`)},
	{"red", regexp.MustCompile(`\bred\b`)},
	{"multi", regexp.MustCompile(`\b(multi|multicolor)\b`)},
	{"green", regexp.MustCompile(`\bgreen\b`)},
	{"blue", regexp.MustCompile(`\bblue\b`)},
}

// ExtractCategory derives a category from tags first, then the title
func ExtractCategory(title string, tags []string) string {
	name := strings.ToLower(title)
	tagStr := strings.ToLower(strings.Join(tags, " "))

	switch {
	case tagRingRe.MatchString(tagStr) && !tagNotRingRe.MatchString(tagStr):
		return "Ring"
	case tagNecklaceRe.MatchString(tagStr):
		return "Necklace"
	case tagBraceletRe.MatchString(tagStr):
		return "Bracelet"
	case tagEarringRe.MatchString(tagStr):
		return "Earring"
	case titleNecklaceRe.MatchString(name):
		return "Necklace"
	case titleBraceletRe.MatchString(name):
		return "Bracelet"
	case titleEarringRe.MatchString(name):
		return "Earring"
	case titleRingRe.MatchString(name):
		return "Ring"
	}
	return "Uncategorized"
}

func extractColors(title string, tags []string) []string {
	text := strings.ToLower(title + " " + strings.Join(tags, " "))
	var colors []string
	for _, c := range colorPatterns {
		if c.re.MatchString(text) {
			colors = append(colors, c.name)
		}
	}
	return colors
}

func extractStyle(title string, tags []string) string {
	text := strings.ToLower(title + " " + strings.Join(tags, " "))
	switch {
	case styleMinimalRe.MatchString(text):
		return "minimal"
	case styleClassicRe.MatchString(text):
		return "classic"
	case styleStatementRe.MatchString(text):
		return "statement"
	}
	return ""
}

// TransformProduct maps a storefront product onto a catalog item
func TransformProduct(sp ShopifyProduct, shopDomain string) models.Product {
	var tags []string
	for _, t := range strings.Split(sp.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	var price float64
	if len(sp.Variants) > 0 {
		price, _ = strconv.ParseFloat(sp.Variants[0].Price, 64)
	}

	quantity := 0
	available := false
	for _, v := range sp.Variants {
		quantity += v.InventoryQuantity
		available = available || v.Available
	}

	description := strings.TrimSpace(htmlTagRe.ReplaceAllString(sp.BodyHTML, ""))
	if r := []rune(description); len(r) > 500 {
		description = string(r[:500])
	}

	image := ""
	if sp.Image != nil {
		image = sp.Image.Src
	} else if len(sp.Images) > 0 {
		image = sp.Images[0].Src
	}

	return models.Product{
		ID:          strconv.FormatInt(sp.ID, 10),
		Name:        sp.Title,
		Description: description,
		Price:       price,
		Category:    ExtractCategory(sp.Title, tags),
		Tags:        tags,
		Colors:      extractColors(sp.Title, tags),
		Style:       extractStyle(sp.Title, tags),
		InStock:     quantity > 0 || available,
		Quantity:    quantity,
		ImageURL:    image,
		URL:         fmt.Sprintf("https://%s/products/%s", shopDomain, sp.Handle),
		Handle:      sp.Handle,
		SyncedAt:    time.Now().UTC(),
	}
}
