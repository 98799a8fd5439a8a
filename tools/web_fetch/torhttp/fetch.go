package torhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/proxy"

	"github.com/osintlab/robin/tools/web_fetch/models"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; rv:128.0) Gecko/20100101 Firefox/128.0"

// Fetch retrieves resources over a SOCKS5 proxy (usually a local Tor client).
// Transient failures are retried with exponential backoff; HTTP client errors
// and oversized payloads are not.
type Fetch struct {
	client       *http.Client
	timeout      time.Duration
	retries      int
	backoff      time.Duration
	maxBodyBytes int64
	maxChars     int
}

// Client builds an HTTP client that dials through the SOCKS5 proxy at
// proxyAddr. Onion hosts resolve inside the proxy, never locally.
func Client(proxyAddr string, timeout time.Duration) (*http.Client, error) {
	dialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 dialer for %s: %w", proxyAddr, err)
	}
	ctxDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 dialer for %s does not support contexts", proxyAddr)
	}
	transport := &http.Transport{
		DialContext:           ctxDialer.DialContext,
		DisableKeepAlives:     true,
		ResponseHeaderTimeout: timeout,
	}
	return &http.Client{Transport: transport}, nil
}

func New(proxyAddr string, timeout time.Duration, retries int, backoff time.Duration, maxBodyBytes int64, maxChars int) (*Fetch, error) {
	client, err := Client(proxyAddr, timeout)
	if err != nil {
		return nil, err
	}
	return &Fetch{
		client:       client,
		timeout:      timeout,
		retries:      retries,
		backoff:      backoff,
		maxBodyBytes: maxBodyBytes,
		maxChars:     maxChars,
	}, nil
}

func (f *Fetch) Fetch(ctx context.Context, rawURL string) (models.Result, error) {
	if strings.TrimSpace(rawURL) == "" {
		return models.Result{}, errors.New("invalid url")
	}

	var lastErr error
	tries := f.retries + 1
	for attempt := 0; attempt < tries; attempt++ {
		res, err := f.once(ctx, rawURL)
		if err == nil {
			return res, nil
		}
		lastErr = err

		var fe *models.FetchError
		if !errors.As(err, &fe) || !fe.Retryable() {
			return models.Result{}, err
		}
		if attempt < tries-1 {
			select {
			case <-time.After(f.backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				return models.Result{}, &models.FetchError{Kind: models.KindTimeout, URL: rawURL, Err: ctx.Err()}
			}
		}
	}
	return models.Result{}, lastErr
}

func (f *Fetch) once(ctx context.Context, rawURL string) (models.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	t0 := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return models.Result{}, &models.FetchError{Kind: models.KindHTTPError, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return models.Result{}, classifyTransportError(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return models.Result{}, &models.FetchError{Kind: models.KindHTTPError, URL: rawURL, Status: resp.StatusCode}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !isTextual(ct) {
		return models.Result{}, &models.FetchError{Kind: models.KindBadContent, URL: rawURL, Err: fmt.Errorf("content type %q", ct)}
	}

	// Read one byte past the cap to detect oversized bodies.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return models.Result{}, classifyTransportError(rawURL, err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return models.Result{}, &models.FetchError{Kind: models.KindTooLarge, URL: rawURL}
	}

	title, text := extract(rawURL, resp.Header.Get("Content-Type"), body)
	truncated := false
	if len(text) > f.maxChars {
		text = text[:f.maxChars]
		truncated = true
	}

	return models.Result{
		URL:       rawURL,
		Title:     title,
		Text:      strings.TrimSpace(text),
		Status:    resp.StatusCode,
		Truncated: truncated,
		FetchMS:   int(time.Since(t0) / time.Millisecond),
	}, nil
}

// extract pulls readable text out of an HTML body, falling back to the raw
// body for plain-text responses or unparseable markup.
func extract(rawURL, contentType string, body []byte) (title, text string) {
	if strings.Contains(contentType, "html") || looksLikeHTML(body) {
		article, err := readability.FromReader(strings.NewReader(string(body)), mustParseURL(rawURL))
		if err == nil {
			return strings.TrimSpace(article.Title), article.TextContent
		}
	}
	return "", string(body)
}

func classifyTransportError(rawURL string, err error) *models.FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &models.FetchError{Kind: models.KindTimeout, URL: rawURL, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &models.FetchError{Kind: models.KindTimeout, URL: rawURL, Err: err}
	}
	// Refused dials, circuit teardown and resets all surface as proxy trouble.
	return &models.FetchError{Kind: models.KindProxyUnreachable, URL: rawURL, Err: err}
}

func isTextual(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/") ||
		strings.Contains(ct, "html") ||
		strings.Contains(ct, "json") ||
		strings.Contains(ct, "xml")
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(len(body), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
