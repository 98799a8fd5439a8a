package onionland

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/osintlab/robin/tools/web_search/models"
)

const Name = "onionland"

const defaultBaseURL = "http://3bbad7fauom4d6sgppalyqddsqbf5u5p56b5k5uk2zxsy3d6ey2jobad.onion"

// Search queries the OnionLand hidden-service index.
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
	reqURL := fmt.Sprintf("%s/search?q=%s", base, url.QueryEscape(query))
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
		return nil, fmt.Errorf("onionland: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	var out []models.Result
	doc.Find("div.result-block").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if i >= limit {
			return false
		}
		anchor := sel.Find(".title a").First()
		link, _ := anchor.Attr("href")
		link = strings.TrimSpace(link)
		if link == "" {
			link = strings.TrimSpace(sel.Find(".link").Text())
		}
		if link == "" {
			return true
		}
		out = append(out, models.Result{
			Engine:  Name,
			URL:     link,
			Title:   strings.TrimSpace(anchor.Text()),
			Snippet: strings.TrimSpace(sel.Find(".description").Text()),
		})
		return true
	})
	return out, nil
}
