package chromedp

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"

	"github.com/osintlab/robin/tools/web_fetch/models"
)

// Fetch renders a page in a headless browser before extraction. Useful for
// clearnet sources that require JavaScript; hidden services go through the
// torhttp fetcher instead.
type Fetch struct {
	Timeout  time.Duration
	MaxChars int
}

func (f *Fetch) Fetch(ctx context.Context, rawURL string) (models.Result, error) {
	if strings.TrimSpace(rawURL) == "" {
		return models.Result{}, errors.New("invalid url")
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()
	t0 := time.Now()

	html, err := fetchHTML(ctx, rawURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.Result{}, &models.FetchError{Kind: models.KindTimeout, URL: rawURL, Err: err}
		}
		return models.Result{}, &models.FetchError{Kind: models.KindHTTPError, URL: rawURL, Err: err}
	}

	article, err := readability.FromReader(strings.NewReader(html), mustParseURL(rawURL))
	if err != nil {
		return models.Result{
			URL:     rawURL,
			Text:    html,
			Status:  200,
			FetchMS: int(time.Since(t0) / time.Millisecond),
		}, nil
	}

	text := article.TextContent
	truncated := false
	if len(text) > f.MaxChars {
		text = text[:f.MaxChars]
		truncated = true
	}

	return models.Result{
		URL:       rawURL,
		Title:     strings.TrimSpace(article.Title),
		Text:      strings.TrimSpace(text),
		Status:    200,
		Truncated: truncated,
		FetchMS:   int(time.Since(t0) / time.Millisecond),
	}, nil
}

func fetchHTML(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
