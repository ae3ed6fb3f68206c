package images

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	OpenverseAPI = "https://api.openverse.engineering"
	UnsplashURL  = "https://source.unsplash.com"
	FlickrURL    = "https://www.flickr.com"
)

// Openverse searches commercially licensed open images.
type Openverse struct {
	api     apiClient
	baseURL string
}

// NewOpenverse uses the public API when baseURL is empty.
func NewOpenverse(client *http.Client, baseURL, userAgent string) *Openverse {
	if baseURL == "" {
		baseURL = OpenverseAPI
	}
	return &Openverse{api: newAPIClient(client, userAgent), baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (o *Openverse) Name() string { return "openverse" }

func (o *Openverse) Search(ctx context.Context, latin string) ([]Candidate, error) {
	endpoint := fmt.Sprintf("%s/v1/images/?q=%s&license_type=commercial&format=json&page_size=10",
		o.baseURL, url.QueryEscape(latin))

	var resp struct {
		Results []struct {
			URL         string `json:"url"`
			Attribution string `json:"attribution"`
			Creator     string `json:"creator"`
			License     string `json:"license"`
		} `json:"results"`
	}
	if err := o.api.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("openverse: %w", err)
	}

	out := make([]Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		credit := r.Attribution
		if credit == "" {
			credit = r.Creator
		}
		out = append(out, Candidate{URL: r.URL, Credit: credit, License: r.License, Source: "openverse"})
	}
	return out, nil
}

// Unsplash resolves a keyword redirect; the Location header is the candidate.
type Unsplash struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// NewUnsplash copies client so redirects are never followed.
func NewUnsplash(client *http.Client, baseURL, userAgent string) *Unsplash {
	if baseURL == "" {
		baseURL = UnsplashURL
	}
	c := &http.Client{}
	if client != nil {
		copied := *client
		c = &copied
	}
	c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return &Unsplash{client: c, baseURL: strings.TrimSuffix(baseURL, "/"), userAgent: userAgent}
}

func (u *Unsplash) Name() string { return "unsplash" }

func (u *Unsplash) Search(ctx context.Context, latin string) ([]Candidate, error) {
	endpoint := fmt.Sprintf("%s/800x600/?%s", u.baseURL, url.QueryEscape(latin))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if u.userAgent != "" {
		req.Header.Set("User-Agent", u.userAgent)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unsplash: %w", err)
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, errors.New("unsplash: no redirect target")
	}
	return []Candidate{{URL: location, Source: "unsplash"}}, nil
}

// Flickr reads the public photo feed by tag.
type Flickr struct {
	api     apiClient
	baseURL string
}

// NewFlickr uses the public feed when baseURL is empty.
func NewFlickr(client *http.Client, baseURL, userAgent string) *Flickr {
	if baseURL == "" {
		baseURL = FlickrURL
	}
	return &Flickr{api: newAPIClient(client, userAgent), baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (f *Flickr) Name() string { return "flickr" }

func (f *Flickr) Search(ctx context.Context, latin string) ([]Candidate, error) {
	endpoint := fmt.Sprintf("%s/services/feeds/photos_public.gne?format=json&nojsoncallback=1&tags=%s",
		f.baseURL, url.QueryEscape(latin))

	var resp struct {
		Items []struct {
			Media struct {
				M string `json:"m"`
			} `json:"media"`
			Author string `json:"author"`
		} `json:"items"`
	}
	if err := f.api.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("flickr: %w", err)
	}

	out := make([]Candidate, 0, len(resp.Items))
	for _, it := range resp.Items {
		out = append(out, Candidate{URL: it.Media.M, Credit: it.Author, Source: "flickr"})
	}
	return out, nil
}

// NewDefaultRegistry registers the four built-in providers.
func NewDefaultRegistry(client *http.Client, userAgent string) *Registry {
	reg := NewRegistry()
	reg.Register(NewINaturalist(client, "", "", userAgent))
	reg.Register(NewOpenverse(client, "", userAgent))
	reg.Register(NewUnsplash(client, "", userAgent))
	reg.Register(NewFlickr(client, "", userAgent))
	return reg
}
