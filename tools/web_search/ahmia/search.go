package ahmia

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/osintlab/robin/tools/web_search/models"
)

const Name = "ahmia"

// Search queries Ahmia's clearnet frontend, which indexes onion services.
// https://ahmia.fi
type Search struct {
	Client  *http.Client
	BaseURL string // override for tests, default https://ahmia.fi
}

func (s *Search) Name() string { return Name }

func (s *Search) Search(ctx context.Context, query string, limit int) ([]models.Result, error) {
	base := s.BaseURL
	if base == "" {
		base = "https://ahmia.fi"
	}
	reqURL := fmt.Sprintf("%s/search/?q=%s", base, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ahmia: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	var out []models.Result
	doc.Find("li.result").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if i >= limit {
			return false
		}
		title := strings.TrimSpace(sel.Find("h4 a").Text())
		link := strings.TrimSpace(sel.Find("cite").Text())
		if link == "" {
			if href, ok := sel.Find("h4 a").Attr("href"); ok {
				link = redirectTarget(href)
			}
		}
		if link == "" {
			return true
		}
		out = append(out, models.Result{
			Engine:  Name,
			URL:     link,
			Title:   title,
			Snippet: strings.TrimSpace(sel.Find("p").Text()),
		})
		return true
	})
	return out, nil
}

// redirectTarget unwraps ahmia's /search/redirect?redirect_url=... links.
func redirectTarget(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get("redirect_url")
}
