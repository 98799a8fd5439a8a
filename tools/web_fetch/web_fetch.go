package web_fetch

import (
	"context"
	"errors"
	"time"

	"github.com/osintlab/robin/tools/web_fetch/chromedp"
	"github.com/osintlab/robin/tools/web_fetch/models"
	"github.com/osintlab/robin/tools/web_fetch/torhttp"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultRetryBackoff = 500 * time.Millisecond
	DefaultMaxBodyBytes = 2 << 20 // 2 MiB raw body cap
	DefaultMaxChars     = 20000
)

// WebFetcher retrieves one resource and extracts its readable text.
type WebFetcher interface {
	Fetch(ctx context.Context, url string) (models.Result, error)
}

type FetcherType string

const (
	TorHTTPFetcherType  FetcherType = "torhttp"
	ChromedpFetcherType FetcherType = "chromedp"
)

// Options configures a fetcher at construction time.
type Options struct {
	ProxyAddress string // SOCKS5 host:port, required for torhttp
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	MaxBodyBytes int64
	MaxChars     int
}

var ErrUnsupportedFetcher = errors.New("unsupported fetcher type")

func NewWebFetcher(fetcherType FetcherType, opts Options) (WebFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	switch fetcherType {
	case TorHTTPFetcherType:
		if opts.ProxyAddress == "" {
			return nil, errors.New("torhttp fetcher requires a proxy address")
		}
		return torhttp.New(opts.ProxyAddress, opts.Timeout, opts.MaxRetries, opts.RetryBackoff, opts.MaxBodyBytes, opts.MaxChars)
	case ChromedpFetcherType:
		return &chromedp.Fetch{Timeout: opts.Timeout, MaxChars: opts.MaxChars}, nil
	default:
		return nil, ErrUnsupportedFetcher
	}
}
