package web_fetch

import (
	"context"
	"net/url"

	"github.com/osintlab/robin/internal/helpers"
	"github.com/osintlab/robin/tools/web_fetch/models"
)

// Router dispatches fetches by host: hidden services always go through
// the proxied fetcher, clearnet URLs go through Clearnet when one is
// configured (a rendering fetcher for JavaScript-heavy sources).
// Without a Clearnet fetcher everything stays on the proxied path.
type Router struct {
	Onion    WebFetcher
	Clearnet WebFetcher
}

func (r *Router) Fetch(ctx context.Context, rawURL string) (models.Result, error) {
	if r.Clearnet != nil {
		if u, err := url.Parse(rawURL); err == nil && u.Host != "" && !helpers.IsOnionHost(u.Host) {
			return r.Clearnet.Fetch(ctx, rawURL)
		}
	}
	return r.Onion.Fetch(ctx, rawURL)
}
