package imageproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"notion-helper/lib/restyutil"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("notion-helper/lib/imageproxy")

// Cloudinary serves the image through a cloudinary "fetch" delivery url.
func Cloudinary(cloudName string) Service {
	return Service{
		Name: "cloudinary",
		Mode: ModeLocal,
		Local: func(rawURL string) (string, error) {
			if cloudName == "" {
				return "", fmt.Errorf("cloudinary: cloud name is not configured")
			}
			return fmt.Sprintf(
				"https://res.cloudinary.com/%s/image/fetch/%s",
				url.PathEscape(cloudName), url.QueryEscape(rawURL),
			), nil
		},
	}
}

type shortenResponse struct {
	ShortURL string `json:"short_url"`
	URL      string `json:"url"`
}

// RemoteShortener posts {"url": ...} to endpoint and reads "short_url" (or
// "url") from the JSON answer.
func RemoteShortener(endpoint, apiKey string, timeout time.Duration) Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetLogger(restyutil.SlogLogger{})
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	restyutil.InstrumentClient(client, tracer, nil)

	return Service{
		Name: "shortener",
		Mode: ModeRemote,
		Remote: func(ctx context.Context, rawURL string) (string, error) {
			res, err := client.R().
				SetContext(ctx).
				SetHeader("Content-Type", "application/json").
				SetBody(map[string]string{"url": rawURL}).
				Post(endpoint)
			if err != nil {
				return "", err
			}
			if !res.IsSuccess() {
				return "", fmt.Errorf("shortener: unexpected status %d", res.StatusCode())
			}
			var body shortenResponse
			err = json.Unmarshal(res.Body(), &body)
			if err != nil {
				return "", fmt.Errorf("shortener: decode: %w", err)
			}
			if body.ShortURL != "" {
				return body.ShortURL, nil
			}
			if body.URL != "" {
				return body.URL, nil
			}
			return "", fmt.Errorf("shortener: response has no url")
		},
	}
}
