package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"notion-helper/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("notion-helper/lib/scraper")

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

var ErrNotFound = errors.New("page not found")

type FetcherOptions struct {
	UserAgent string
	Timeout   time.Duration
	// an http(s) proxy url, empty connects directly
	Proxy string
	// receives full request/response dumps when set
	Output restyutil.InstrumentOutput
}

type Fetcher struct {
	http *resty.Client
}

func NewFetcher(opts FetcherOptions) (*Fetcher, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("scraper: invalid proxy: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := resty.NewWithClient(&http.Client{
		Transport: cloudflarebp.AddCloudFlareByPass(transport),
	})
	client.SetHeader("user-agent", opts.UserAgent)
	client.SetTimeout(opts.Timeout)
	client.SetLogger(restyutil.SlogLogger{})
	restyutil.InstrumentClient(client, tracer, opts.Output)

	return &Fetcher{http: client}, nil
}

// Get returns the body of a successful GET, a 404 is reported as
// ErrNotFound.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Fetcher:Get")
	defer span.End()
	span.SetAttributes(attribute.String("url", rawURL))

	res, err := f.http.R().
		SetContext(ctx).
		Get(rawURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return nil, err
	}
	if res.StatusCode() == http.StatusNotFound {
		span.SetStatus(codes.Error, "not found")
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	if !res.IsSuccess() {
		err = fmt.Errorf("fetch %s: unexpected status %d", rawURL, res.StatusCode())
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res.Body(), nil
}

// Document fetches rawURL and parses it as html, the document remembers its
// url so relative links can be resolved.
func (f *Fetcher) Document(ctx context.Context, rawURL string) (*goquery.Document, error) {
	body, err := f.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	doc.Url, _ = url.Parse(rawURL)
	return doc, nil
}
