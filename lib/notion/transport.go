package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"notion-helper/lib/restyutil"

	"github.com/go-resty/resty/v2"
)

// RequestSpec is one logical request against the API.
type RequestSpec struct {
	Method string
	// path relative to the base url, e.g. /v1/pages
	Path  string
	Query url.Values
	// Body is encoded as json. It is ignored when RawBody is set.
	Body any
	// RawBody is sent verbatim with ContentType.
	RawBody     []byte
	ContentType string
	// overrides the client's default timeout for this call
	Timeout time.Duration
	// overrides the client's retry policy for this call
	Retry *RetryPolicy
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return errorf(KindDecode, "response body is empty")
	}
	err := json.Unmarshal(r.Body, v)
	if err != nil {
		return &Error{Kind: KindDecode, Status: r.Status, Err: err}
	}
	return nil
}

// Transport performs exactly one exchange per call and never retries.
type Transport interface {
	Send(ctx context.Context, spec RequestSpec) (Response, error)
}

type restyTransport struct {
	http           *resty.Client
	proxied        bool
	defaultTimeout time.Duration
}

func newRestyTransport(cfg ClientConfig, hc *http.Client, proxied bool) *restyTransport {
	// redirects from the api surface as client errors, downloads keep
	// following them on hc
	apiHTTP := *hc
	apiHTTP.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	client := resty.NewWithClient(&apiHTTP)
	client.SetBaseURL(cfg.BaseURL)
	client.SetAuthToken(cfg.Token)
	client.SetHeader("Notion-Version", cfg.Version)
	client.SetHeader("User-Agent", cfg.UserAgent)
	client.SetHeader("Content-Type", "application/json")
	client.SetLogger(restyutil.SlogLogger{})
	restyutil.InstrumentClient(client, tracer, nil)

	return &restyTransport{
		http:           client,
		proxied:        proxied,
		defaultTimeout: cfg.Timeout,
	}
}

func (t *restyTransport) Send(ctx context.Context, spec RequestSpec) (Response, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = t.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := t.http.R().SetContext(callCtx)
	if len(spec.Query) > 0 {
		req.SetQueryParamsFromValues(spec.Query)
	}
	switch {
	case spec.RawBody != nil:
		req.SetBody(spec.RawBody)
		if spec.ContentType != "" {
			req.SetHeader("Content-Type", spec.ContentType)
		}
	case spec.Body != nil:
		body, err := json.Marshal(spec.Body)
		if err != nil {
			return Response{}, &Error{Kind: KindConfiguration, Message: "failed to encode request body", Err: err}
		}
		req.SetBody(body)
	}

	res, err := req.Execute(spec.Method, spec.Path)
	if err != nil {
		return Response{}, networkError(ctx, callCtx, err, t.proxied)
	}

	out := Response{
		Status: res.StatusCode(),
		Header: res.Header(),
		Body:   res.Body(),
	}
	if out.Status < 200 || out.Status > 299 {
		return out, statusError(out.Status, out.Body, t.proxied)
	}
	return out, nil
}
