package images

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"

	"EthnoCards/internal/domain"
	"EthnoCards/internal/ports"
)

// DefaultOrder is the fallback chain used when none is configured.
var DefaultOrder = []string{"inaturalist", "openverse", "unsplash", "flickr"}

var blockedHosts = regexp.MustCompile(`(?i)wikimedia\.org|wikipedia\.org`)

// Resolver walks the configured providers in order and returns the first
// candidate that passes the liveness probe.
type Resolver struct {
	registry *Registry
	order    []string
	probe    *Prober
	logger   *slog.Logger
}

var _ ports.ImageResolver = (*Resolver)(nil)

// NewResolver validates that every name in order is registered.
func NewResolver(reg *Registry, order []string, probe *Prober, log *slog.Logger) (*Resolver, error) {
	if reg == nil {
		return nil, fmt.Errorf("image registry is not configured")
	}
	if len(order) == 0 {
		order = DefaultOrder
	}
	for _, name := range order {
		if _, err := reg.Resolve(name); err != nil {
			return nil, err
		}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{registry: reg, order: order, probe: probe, logger: log}, nil
}

// Resolve never fails; when nothing passes it returns the explicit missing marker.
func (r *Resolver) Resolve(ctx context.Context, latin string) domain.ImageResult {
	for _, name := range r.order {
		if ctx.Err() != nil {
			break
		}
		provider, err := r.registry.Resolve(name)
		if err != nil {
			continue
		}

		candidates, err := provider.Search(ctx, latin)
		if err != nil {
			r.logger.Debug("provider search failed", "provider", name, "latin", latin, "error", err)
			continue
		}

		for _, c := range candidates {
			if !ValidURL(c.URL) {
				r.logger.Debug("candidate rejected", "provider", name, "url", c.URL)
				continue
			}
			if !r.probe.Check(ctx, c.URL) {
				r.logger.Debug("candidate failed probe", "provider", name, "url", c.URL)
				continue
			}
			if a, ok := provider.(Attributor); ok {
				c = a.Attribute(ctx, latin, c)
			}
			r.logger.Info("image resolved", "provider", name, "latin", latin, "url", c.URL)
			return domain.FlatImage{
				URL:     c.URL,
				Credit:  c.Credit,
				License: c.License,
				Source:  c.Source,
				Status:  domain.ImageOK,
			}
		}
	}

	r.logger.Warn("no image passed the probe", "latin", latin)
	return domain.MissingImage()
}

// ValidURL accepts https URLs outside the wiki media hosts.
func ValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return false
	}
	return !blockedHosts.MatchString(u.Hostname())
}
