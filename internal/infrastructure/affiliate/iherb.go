package affiliate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"EthnoCards/internal/domain"
	"EthnoCards/internal/ports"
)

const (
	iherbBase      = "https://www.iherb.com"
	browserUA      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123 Safari/537.36"
	DefaultRCode   = "AWS0707"
	vendorName     = "iHerb"
	productPathKey = "/pr/"
)

// PreferredBrands are picked first when several products match.
var PreferredBrands = []string{
	"NOW Foods",
	"Jarrow Formulas",
	"Life Extension",
	"Thorne",
	"California Gold Nutrition",
}

var productAttrs = []string{"href", "data-ga-eec-producturl", "data-eec-producturl", "data-product-url"}

// IHerb finds a search link and, when possible, a direct product link.
type IHerb struct {
	client  *http.Client
	baseURL string
	rcode   string
	logger  *slog.Logger
}

var _ ports.AffiliateFinder = (*IHerb)(nil)

// NewIHerb uses the public site when baseURL is empty.
func NewIHerb(client *http.Client, baseURL, rcode string, log *slog.Logger) *IHerb {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if baseURL == "" {
		baseURL = iherbBase
	}
	if log == nil {
		log = slog.Default()
	}
	return &IHerb{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		rcode:   strings.TrimSpace(rcode),
		logger:  log,
	}
}

// FindAffiliate always returns the search link for a non-empty query; lookup
// failures only cost the product link.
func (h *IHerb) FindAffiliate(ctx context.Context, query string) (*domain.Affiliate, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}

	out := &domain.Affiliate{
		Vendor: vendorName,
		Note:   domain.Text{RU: "Купить на iHerb", EN: "Buy on iHerb"},
		URL:    h.SearchURL(q),
	}

	for _, variant := range []string{q, q + " extract", q + " supplement"} {
		product, err := h.findProduct(ctx, variant)
		if err != nil {
			h.logger.Debug("affiliate lookup failed", "query", variant, "error", err)
			continue
		}
		if product != "" {
			out.ProductURL = h.ensureRCode(product)
			break
		}
	}
	if out.ProductURL == "" {
		out.ProductURL = out.URL
	}
	return out, nil
}

// SearchURL builds the referral search link.
func (h *IHerb) SearchURL(q string) string {
	v := url.Values{}
	v.Set("kw", q)
	if h.rcode != "" {
		v.Set("rcode", h.rcode)
	}
	return h.baseURL + "/search?" + v.Encode()
}

func (h *IHerb) ensureRCode(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || h.rcode == "" {
		return raw
	}
	q := u.Query()
	if q.Get("rcode") == "" {
		q.Set("rcode", h.rcode)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (h *IHerb) findProduct(ctx context.Context, q string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.SearchURL(q), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept-Language", "en-US,en;q=0.7")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request search page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("iherb returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse search page: %w", err)
	}
	return h.pickProduct(doc), nil
}

// pickProduct collects /pr/ paths from links and data attributes, preferring
// known brands, else the first hit.
func (h *IHerb) pickProduct(doc *goquery.Document) string {
	var (
		links []string
		seen  = map[string]struct{}{}
	)
	doc.Find("a[href], [data-ga-eec-producturl], [data-eec-producturl], [data-product-url]").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range productAttrs {
			raw, ok := s.Attr(attr)
			if !ok {
				continue
			}
			path := productPath(raw)
			if path == "" {
				continue
			}
			if _, dup := seen[path]; dup {
				continue
			}
			seen[path] = struct{}{}
			links = append(links, h.baseURL+path)
		}
	})
	if len(links) == 0 {
		return ""
	}

	for _, brand := range PreferredBrands {
		slug := "/pr/" + strings.Join(strings.Fields(strings.ToLower(brand)), "-") + "-"
		for _, l := range links {
			if strings.Contains(strings.ToLower(l), slug) {
				return l
			}
		}
	}
	return links[0]
}

func productPath(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	if !strings.HasPrefix(u.Path, productPathKey) {
		return ""
	}
	return u.Path
}
