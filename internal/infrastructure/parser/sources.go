package parser

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
	"EthnoCards/internal/quality"
	"EthnoCards/internal/vocab"
)

const (
	defaultTitleTimeout = 8 * time.Second
	defaultUserAgent    = "EthnoCards/1.0 (+reference lookup)"
)

// DefaultSearchTemplates are reference search pages; %s is the escaped name.
var DefaultSearchTemplates = []string{
	"https://pubmed.ncbi.nlm.nih.gov/?term=%s",
	"https://www.who.int/search?page=1&pagesize=10&query=%s",
	"https://powo.science.kew.org/?q=%s",
	"https://www.herbmed.org/?s=%s",
	"https://plants.usda.gov/home/names?keyword=%s",
	"https://ods.od.nih.gov/search.aspx?search=%s",
}

// SourceFetcher proposes allowlisted reference pages and labels them with the
// page title.
type SourceFetcher struct {
	client       *http.Client
	catalog      *vocab.Catalog
	templates    []string
	titleTimeout time.Duration
	userAgent    string
	logger       *slog.Logger
}

var _ ports.SourceFetcher = (*SourceFetcher)(nil)

// NewSourceFetcher wires an HTTP client; templates default to the reference sites.
func NewSourceFetcher(client *http.Client, catalog *vocab.Catalog, templates []string, log *slog.Logger) *SourceFetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if len(templates) == 0 {
		templates = DefaultSearchTemplates
	}
	if log == nil {
		log = slog.Default()
	}
	return &SourceFetcher{
		client:       client,
		catalog:      catalog,
		templates:    templates,
		titleTimeout: defaultTitleTimeout,
		userAgent:    defaultUserAgent,
		logger:       log,
	}
}

// FetchSources returns at most maxItems entries. It never fails: an unknown
// host is skipped and an unreachable page is labelled with its hostname.
func (s *SourceFetcher) FetchSources(ctx context.Context, latin string, maxItems int) []domain.Source {
	latin = strings.TrimSpace(latin)
	if latin == "" || maxItems <= 0 {
		return nil
	}

	data, err := s.catalog.Get(ctx)
	if err != nil {
		s.logger.Warn("allowlist unavailable", "latin", latin, "error", err)
		return nil
	}

	q := strings.ReplaceAll(url.QueryEscape(latin), "+", "%20")
	picked := make([]domain.Source, 0, maxItems)
	for _, tmpl := range s.templates {
		pageURL := fmt.Sprintf(tmpl, q)
		host := quality.HostOf(pageURL)
		if !data.Allowlist.Has(host) {
			continue
		}

		title, err := s.fetchTitle(ctx, pageURL)
		if err != nil {
			s.logger.Debug("title lookup failed", "url", pageURL, "error", err)
		}
		if title == "" {
			title = host
		}

		picked = append(picked, domain.Source{
			Title: title,
			URL:   pageURL,
			Type:  GuessType(host),
		})
		if len(picked) >= maxItems {
			break
		}
	}

	s.logger.Debug("sources picked", "latin", latin, "count", len(picked))
	return picked
}

func (s *SourceFetcher) fetchTitle(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.titleTimeout)
	defer cancel()

	doc, err := s.fetchDocument(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.Find("title").First().Text()), nil
}

func (s *SourceFetcher) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", req.URL.Host, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// GuessType maps a reference host to a coarse source type.
func GuessType(host string) string {
	switch {
	case strings.Contains(host, "pubmed"):
		return "review"
	case strings.Contains(host, "cochranelibrary"):
		return "systematic-review"
	case strings.Contains(host, "who.int"):
		return "guideline"
	case strings.Contains(host, "powo.science.kew.org"),
		strings.Contains(host, "plants.usda.gov"),
		strings.Contains(host, "herbmed.org"):
		return "db"
	case strings.Contains(host, "floraofchina.org"):
		return "flora"
	case strings.Contains(host, "mycobank.org"), strings.Contains(host, "indexfungorum.org"):
		return "fungi-db"
	case strings.Contains(host, "ods.od.nih.gov"):
		return "monograph"
	}
	return "web"
}
