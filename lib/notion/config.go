package notion

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	DefaultBaseURL        = "https://api.notion.com"
	DefaultVersion        = "2022-06-28"
	DefaultUserAgent      = "notion-helper/1.0"
	DefaultTimeout        = 30 * time.Second
	DefaultUploadTimeout  = 60 * time.Second
	DefaultInlineURLLimit = 100
)

type RetryPolicy struct {
	// total attempts including the first one, values below 1 are treated as 1
	MaxAttempts  int
	BaseInterval time.Duration
	Factor       float64
	// jitter is drawn uniformly from [0, JitterBound)
	JitterBound time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		BaseInterval: time.Second,
		Factor:       3,
		JitterBound:  100 * time.Millisecond,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff is the deterministic part of the delay before retry k (k >= 1):
// BaseInterval * Factor^(k-1).
func (p RetryPolicy) Backoff(k int) time.Duration {
	if k < 1 {
		k = 1
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(p.BaseInterval) * math.Pow(factor, float64(k-1))
	if d > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Delay is Backoff(k) plus a random jitter in [0, JitterBound).
func (p RetryPolicy) Delay(k int) time.Duration {
	return p.Backoff(k) + randomJitter(p.JitterBound)
}

func randomJitter(bound time.Duration) time.Duration {
	if bound <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(bound)))
}

type DownloadPolicy struct {
	// maximum number of bytes accepted from the source
	MaxSize int64
	// wall-clock budget for the whole transfer
	Timeout time.Duration
}

func DefaultDownloadPolicy() DownloadPolicy {
	return DownloadPolicy{
		MaxSize: 50 * 1024 * 1024,
		Timeout: 60 * time.Second,
	}
}

type ClientConfig struct {
	BaseURL   string
	Token     string
	Version   string
	UserAgent string
	Proxy     ProxyConfig

	Timeout       time.Duration
	UploadTimeout time.Duration

	Retry    RetryPolicy
	Download DownloadPolicy

	// file references whose url is at most this long are stored inline,
	// longer ones are downloaded and re-uploaded
	InlineURLLimit int
	// requests per second, zero means unlimited
	RateLimit float64
	Burst     int
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = DefaultUploadTimeout
	}
	defaultRetry := DefaultRetryPolicy()
	if c.Retry == (RetryPolicy{}) {
		c.Retry = defaultRetry
	}
	// a partial policy keeps its own jitter, zero included
	if c.Retry.MaxAttempts < 1 {
		c.Retry.MaxAttempts = defaultRetry.MaxAttempts
	}
	if c.Retry.BaseInterval <= 0 {
		c.Retry.BaseInterval = defaultRetry.BaseInterval
	}
	if c.Retry.Factor <= 0 {
		c.Retry.Factor = defaultRetry.Factor
	}
	defaultDownload := DefaultDownloadPolicy()
	if c.Download.MaxSize <= 0 {
		c.Download.MaxSize = defaultDownload.MaxSize
	}
	if c.Download.Timeout <= 0 {
		c.Download.Timeout = defaultDownload.Timeout
	}
	if c.InlineURLLimit <= 0 {
		c.InlineURLLimit = DefaultInlineURLLimit
	}
	if c.RateLimit > 0 && c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

func (c ClientConfig) validate() error {
	if c.Token == "" {
		return errorf(KindConfiguration, "an integration token is required")
	}
	if c.Retry.Factor < 0 || c.Retry.BaseInterval < 0 || c.Retry.JitterBound < 0 {
		return errorf(KindConfiguration, "retry policy values must not be negative")
	}
	return nil
}
