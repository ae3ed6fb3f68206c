package images

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

const (
	INaturalistAPI      = "https://api.inaturalist.org/v1"
	INaturalistOpenData = "https://inaturalist-open-data.s3.amazonaws.com"
)

var (
	photoPath = regexp.MustCompile(`(?i)/photos/(\d+)/[^/]+\.(jpe?g|png)$`)
	photoID   = regexp.MustCompile(`photos/(\d+)/`)
)

type inatPhoto struct {
	ID          int64  `json:"id"`
	URL         string `json:"url"`
	LargeURL    string `json:"large_url"`
	MediumURL   string `json:"medium_url"`
	OriginalURL string `json:"original_url"`
	Attribution string `json:"attribution"`
	LicenseCode string `json:"license_code"`
	License     string `json:"license"`
}

// INaturalist resolves the taxon default photo, falling back to the newest
// observation photo, and rewrites it to the open-data large rendition.
type INaturalist struct {
	api      apiClient
	baseURL  string
	openData string
}

var (
	_ Provider   = (*INaturalist)(nil)
	_ Attributor = (*INaturalist)(nil)
)

// NewINaturalist uses the public API when baseURL is empty.
func NewINaturalist(client *http.Client, baseURL, openDataURL, userAgent string) *INaturalist {
	if baseURL == "" {
		baseURL = INaturalistAPI
	}
	if openDataURL == "" {
		openDataURL = INaturalistOpenData
	}
	return &INaturalist{
		api:      newAPIClient(client, userAgent),
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		openData: strings.TrimSuffix(openDataURL, "/"),
	}
}

func (n *INaturalist) Name() string { return "inaturalist" }

// Search returns at most one candidate.
func (n *INaturalist) Search(ctx context.Context, latin string) ([]Candidate, error) {
	q := url.QueryEscape(latin)

	var taxa struct {
		Results []struct {
			DefaultPhoto *inatPhoto `json:"default_photo"`
		} `json:"results"`
	}
	taxaErr := n.api.getJSON(ctx, fmt.Sprintf("%s/taxa?q=%s&per_page=1&locale=en", n.baseURL, q), &taxa)
	if taxaErr == nil && len(taxa.Results) > 0 && taxa.Results[0].DefaultPhoto != nil {
		p := taxa.Results[0].DefaultPhoto
		for _, raw := range []string{p.LargeURL, p.MediumURL, p.URL, p.OriginalURL} {
			if u := n.largeOrSelf(raw); u != "" {
				return []Candidate{{URL: u, Source: "iNaturalist"}}, nil
			}
		}
	}

	var obs struct {
		Results []struct {
			Photos []inatPhoto `json:"photos"`
		} `json:"results"`
	}
	endpoint := fmt.Sprintf("%s/observations?taxon_name=%s&per_page=1&order=desc&order_by=created_at&photos=true", n.baseURL, q)
	if err := n.api.getJSON(ctx, endpoint, &obs); err != nil {
		if taxaErr != nil {
			return nil, fmt.Errorf("inaturalist: taxa: %v; observations: %w", taxaErr, err)
		}
		return nil, fmt.Errorf("inaturalist observations: %w", err)
	}
	if len(obs.Results) > 0 && len(obs.Results[0].Photos) > 0 {
		p := obs.Results[0].Photos[0]
		for _, raw := range []string{p.URL, p.OriginalURL, p.MediumURL} {
			if u := n.largeOrSelf(raw); u != "" {
				return []Candidate{{URL: u, Source: "iNaturalist"}}, nil
			}
		}
	}
	return nil, nil
}

func (n *INaturalist) largeOrSelf(raw string) string {
	if raw == "" {
		return ""
	}
	out := raw
	if large := n.toLarge(raw); large != "" {
		out = large
	}
	if !strings.HasPrefix(out, "http://") && !strings.HasPrefix(out, "https://") {
		return ""
	}
	return out
}

func (n *INaturalist) toLarge(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	m := photoPath.FindStringSubmatch(u.Path)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%s/photos/%s/large.%s", n.openData, m[1], strings.ToLower(m[2]))
}

// Attribute fills credit and license from the photo record, or from the taxon
// default photo when the record carries no license. Failures keep c as is.
func (n *INaturalist) Attribute(ctx context.Context, latin string, c Candidate) Candidate {
	if m := photoID.FindStringSubmatch(c.URL); m != nil {
		var resp struct {
			Results []inatPhoto `json:"results"`
		}
		if err := n.api.getJSON(ctx, fmt.Sprintf("%s/photos/%s", n.baseURL, m[1]), &resp); err == nil && len(resp.Results) > 0 {
			p := resp.Results[0]
			if lic := licenseOf(p); lic != "" {
				c.Credit = p.Attribution
				c.License = lic
				return c
			}
		}
	}

	if latin == "" {
		return c
	}
	var taxa struct {
		Results []struct {
			DefaultPhoto *inatPhoto `json:"default_photo"`
		} `json:"results"`
	}
	endpoint := fmt.Sprintf("%s/taxa?q=%s&per_page=1", n.baseURL, url.QueryEscape(latin))
	if err := n.api.getJSON(ctx, endpoint, &taxa); err != nil || len(taxa.Results) == 0 || taxa.Results[0].DefaultPhoto == nil {
		return c
	}
	p := taxa.Results[0].DefaultPhoto
	c.Credit = p.Attribution
	c.License = licenseOf(*p)
	return c
}

func licenseOf(p inatPhoto) string {
	code := p.LicenseCode
	if code == "" {
		code = p.License
	}
	return LicensePretty(code)
}

// LicensePretty turns "cc-by-nc" into "CC BY NC"; other codes pass through.
func LicensePretty(code string) string {
	if code == "" {
		return ""
	}
	lower := strings.ToLower(code)
	if strings.HasPrefix(lower, "cc-") {
		return strings.ReplaceAll(strings.ToUpper(lower), "-", " ")
	}
	return code
}
