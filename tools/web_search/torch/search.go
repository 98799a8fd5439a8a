package torch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/osintlab/robin/tools/web_search/models"
)

const Name = "torch"

const defaultBaseURL = "http://torchdeedp3i2jigzjdmfpn5ttjhthh5wbmda2rr3jvqjg5p77c54dqd.onion"

// Search queries the Torch hidden-service index. Requests must go through a
// Tor-capable client.
type Search struct {
	Client  *http.Client
	BaseURL string // override for tests
}

func (s *Search) Name() string { return Name }

func (s *Search) Search(ctx context.Context, query string, limit int) ([]models.Result, error) {
	base := s.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	reqURL := fmt.Sprintf("%s/search?query=%s", base, url.QueryEscape(query))
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
		return nil, fmt.Errorf("torch: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	var out []models.Result
	doc.Find("div.result").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if i >= limit {
			return false
		}
		anchor := sel.Find("h5 a").First()
		link, _ := anchor.Attr("href")
		link = strings.TrimSpace(link)
		if link == "" {
			return true
		}
		out = append(out, models.Result{
			Engine:  Name,
			URL:     link,
			Title:   strings.TrimSpace(anchor.Text()),
			Snippet: strings.TrimSpace(sel.Find("p").Text()),
		})
		return true
	})
	return out, nil
}
