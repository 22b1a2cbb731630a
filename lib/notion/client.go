package notion

import (
	"context"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("notion-helper/lib/notion")

// Client is safe for concurrent use. Every logical call goes through the
// retry layer and then the transport; nothing is shared between calls
// except the connection pool.
type Client struct {
	cfg        ClientConfig
	transport  Transport
	downloader *downloader
	limiter    *rate.Limiter

	// overridable in tests
	newTimer func() backoff.Timer
}

func NewClient(cfg ClientConfig) (*Client, error) {
	cfg = cfg.withDefaults()
	err := cfg.validate()
	if err != nil {
		return nil, err
	}
	agent, err := ResolveProxy(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	socketTimeout := max(cfg.Timeout, cfg.UploadTimeout, cfg.Download.Timeout)
	httpTransport, err := newHTTPTransport(agent, socketTimeout)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{Transport: httpTransport}

	return newClient(
		cfg,
		newRestyTransport(cfg, hc, agent.Proxied()),
		newDownloader(hc, cfg.UserAgent, agent.Proxied()),
	), nil
}

// NewClientWithTransport builds a client that sends every exchange through
// t. Downloads for UploadFromURL still go over a direct connection.
func NewClientWithTransport(cfg ClientConfig, t Transport) (*Client, error) {
	cfg = cfg.withDefaults()
	err := cfg.validate()
	if err != nil {
		return nil, err
	}
	return newClient(cfg, t, newDownloader(&http.Client{}, cfg.UserAgent, false)), nil
}

func newClient(cfg ClientConfig, t Transport, d *downloader) *Client {
	c := &Client{
		cfg:        cfg,
		transport:  t,
		downloader: d,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}
	return c
}

func (c *Client) Config() ClientConfig {
	return c.cfg
}

// Do sends the request through the retry layer.
func (c *Client) Do(ctx context.Context, spec RequestSpec) (Response, error) {
	ctx, span := tracer.Start(ctx, "notion:Do")
	defer span.End()

	span.SetAttributes(
		attribute.String("method", spec.Method),
		attribute.String("path", spec.Path),
	)

	policy := c.cfg.Retry
	if spec.Retry != nil {
		policy = *spec.Retry
	}
	res, attempts, err := c.retry(ctx, policy, spec)
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return Response{}, err
	}
	return res, nil
}

func (c *Client) doJSON(ctx context.Context, spec RequestSpec, out any) error {
	res, err := c.Do(ctx, spec)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return res.Decode(out)
}
