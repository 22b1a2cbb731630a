package commands

import (
	"fmt"
	"os"
	"time"

	"notion-helper/lib/configutil"
	"notion-helper/lib/imageproxy"
	"notion-helper/lib/notion"
	"notion-helper/lib/restyutil"
	"notion-helper/lib/scraper"
	"notion-helper/services/dailypage"
	"notion-helper/services/notionsync"
)

// the environment variable that overrides notion.token
const tokenEnv = "NOTION_KEY"

type RetryConfig struct {
	MaxAttempts    int     `json:"max_attempts"`
	BaseIntervalMs int     `json:"base_interval_ms"`
	Factor         float64 `json:"factor"`
	JitterMs       int     `json:"jitter_ms"`
}

type DownloadConfig struct {
	MaxSizeBytes int64 `json:"max_size_bytes"`
	TimeoutMs    int   `json:"timeout_ms"`
}

type NotionConfig struct {
	Token           string         `json:"token"`
	BaseURL         string         `json:"base_url"`
	Version         string         `json:"version"`
	TimeoutMs       int            `json:"timeout_ms"`
	UploadTimeoutMs int            `json:"upload_timeout_ms"`
	Retry           RetryConfig    `json:"retry"`
	Download        DownloadConfig `json:"download"`
	InlineURLLimit  int            `json:"inline_url_limit"`
	RateLimit       float64        `json:"rate_limit"`
	Burst           int            `json:"burst"`
}

type IGDBConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	// sqlite file the twitch access token is cached in
	TokenCache string `json:"token_cache"`
}

type ScraperConfig struct {
	UserAgent string `json:"user_agent"`
	TimeoutMs int    `json:"timeout_ms"`
	// an http(s) proxy for scraping, defaults to the notion proxy when that
	// is an http proxy
	Proxy string `json:"proxy"`
	// dump every scraped request/response pair here
	DumpDir string `json:"dump_dir"`
}

type ImagesConfig struct {
	// "cloudinary", "shortener" or empty to keep urls as they are
	Service        string `json:"service"`
	Limit          int    `json:"limit"`
	CloudinaryName string `json:"cloudinary_name"`
	ShortenerURL   string `json:"shortener_url"`
	ShortenerKey   string `json:"shortener_key"`
}

type SourceConfig struct {
	// "page" or "json"
	Type  string        `json:"type"`
	URL   string        `json:"url"`
	Rules scraper.Rules `json:"rules"`
	Path  string        `json:"path"`
}

type SyncJobConfig struct {
	DatabaseID  string                    `json:"database_id"`
	Filter      any                       `json:"filter"`
	Sorts       any                       `json:"sorts"`
	PageSize    int                       `json:"page_size"`
	Concurrency int                       `json:"concurrency"`
	KeyProperty string                    `json:"key_property"`
	Source      SourceConfig              `json:"source"`
	Properties  []notionsync.PropertyRule `json:"properties"`
	SinglePage  bool                      `json:"single_page"`
	SnapScore   float64                   `json:"snap_score"`
}

type DailyJobConfig struct {
	DatabaseID     string         `json:"database_id"`
	TitleProperty  string         `json:"title_property"`
	DateProperty   string         `json:"date_property"`
	TitleLayout    string         `json:"title_layout"`
	Offset         int            `json:"offset"`
	Count          int            `json:"count"`
	Extra          map[string]any `json:"extra"`
	CopyBlocksFrom string         `json:"copy_blocks_from"`
}

type TodoConfig struct {
	PageID string `json:"page_id"`
}

type ServerConfig struct {
	Port        int    `json:"port"`
	AccessToken string `json:"access_token"`
	PerfStats   bool   `json:"perf_stats"`
}

type Config struct {
	Debug    bool   `json:"debug"`
	Timezone string `json:"timezone"`
	// a proxy url string or {host, port, auth: {username, password}}
	Proxy   any                       `json:"proxy"`
	Notion  NotionConfig              `json:"notion"`
	IGDB    IGDBConfig                `json:"igdb"`
	Scraper ScraperConfig             `json:"scraper"`
	Images  ImagesConfig              `json:"images"`
	Sync    map[string]SyncJobConfig  `json:"sync"`
	Daily   map[string]DailyJobConfig `json:"daily"`
	Todo    TodoConfig                `json:"todo"`
	Server  ServerConfig              `json:"server"`
}

func loadConfig(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	if token := os.Getenv(tokenEnv); token != "" {
		cfg.Notion.Token = token
	}
	return cfg, nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (c Config) proxy() (notion.ProxyConfig, error) {
	return notion.ParseProxyDescriptor(c.Proxy)
}

func (c Config) notionConfig() (notion.ClientConfig, error) {
	proxy, err := c.proxy()
	if err != nil {
		return notion.ClientConfig{}, err
	}
	n := c.Notion
	return notion.ClientConfig{
		BaseURL:       n.BaseURL,
		Token:         n.Token,
		Version:       n.Version,
		Proxy:         proxy,
		Timeout:       millis(n.TimeoutMs),
		UploadTimeout: millis(n.UploadTimeoutMs),
		Retry: notion.RetryPolicy{
			MaxAttempts:  n.Retry.MaxAttempts,
			BaseInterval: millis(n.Retry.BaseIntervalMs),
			Factor:       n.Retry.Factor,
			JitterBound:  millis(n.Retry.JitterMs),
		},
		Download: notion.DownloadPolicy{
			MaxSize: n.Download.MaxSizeBytes,
			Timeout: millis(n.Download.TimeoutMs),
		},
		InlineURLLimit: n.InlineURLLimit,
		RateLimit:      n.RateLimit,
		Burst:          n.Burst,
	}, nil
}

// scraperProxy falls back to the notion proxy when it is an http proxy,
// the scraper transport does not dial through socks.
func (c Config) scraperProxy() (string, error) {
	if c.Scraper.Proxy != "" {
		return c.Scraper.Proxy, nil
	}
	proxy, err := c.proxy()
	if err != nil {
		return "", err
	}
	agent, err := notion.ResolveProxy(proxy)
	if err != nil {
		return "", err
	}
	if agent.Kind == notion.AgentHTTP {
		return agent.URL.String(), nil
	}
	return "", nil
}

func (c Config) fetcher() (*scraper.Fetcher, error) {
	proxy, err := c.scraperProxy()
	if err != nil {
		return nil, err
	}
	opts := scraper.FetcherOptions{
		UserAgent: c.Scraper.UserAgent,
		Timeout:   millis(c.Scraper.TimeoutMs),
		Proxy:     proxy,
	}
	if c.Scraper.DumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(c.Scraper.DumpDir)
		if err != nil {
			return nil, err
		}
		opts.Output = output
	}
	return scraper.NewFetcher(opts)
}

func (c Config) shortener() (imageproxy.Shortener, error) {
	if c.Images.Service == "" {
		return imageproxy.Shortener{}, nil
	}
	registry := imageproxy.NewRegistry()
	err := registry.Register(imageproxy.Cloudinary(c.Images.CloudinaryName))
	if err != nil {
		return imageproxy.Shortener{}, err
	}
	if c.Images.ShortenerURL != "" {
		err = registry.Register(imageproxy.RemoteShortener(c.Images.ShortenerURL, c.Images.ShortenerKey, 0))
		if err != nil {
			return imageproxy.Shortener{}, err
		}
	}
	limit := c.Images.Limit
	if limit <= 0 {
		limit = notion.DefaultInlineURLLimit
	}
	return registry.Shortener(c.Images.Service, limit)
}

func sourceFor(cfg SourceConfig, fetcher *scraper.Fetcher) (scraper.Source, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("source url is required")
	}
	switch cfg.Type {
	case "", "page":
		return scraper.PageSource{Fetcher: fetcher, URLTemplate: cfg.URL, Rules: cfg.Rules}, nil
	case "json":
		return scraper.JSONSource{Fetcher: fetcher, URLTemplate: cfg.URL, Path: cfg.Path}, nil
	}
	return nil, fmt.Errorf("unknown source type %q", cfg.Type)
}

func (c Config) syncJob(name string, fetcher *scraper.Fetcher) (notionsync.Job, error) {
	job, ok := c.Sync[name]
	if !ok {
		return notionsync.Job{}, fmt.Errorf("%w: sync job %q", errUnknownJob, name)
	}
	source, err := sourceFor(job.Source, fetcher)
	if err != nil {
		return notionsync.Job{}, fmt.Errorf("sync job %s: %w", name, err)
	}
	return notionsync.Job{
		Name:        name,
		DatabaseID:  job.DatabaseID,
		Filter:      job.Filter,
		Sorts:       job.Sorts,
		PageSize:    job.PageSize,
		Concurrency: job.Concurrency,
		KeyProperty: job.KeyProperty,
		Source:      source,
		Properties:  job.Properties,
		SinglePage:  job.SinglePage,
		SnapScore:   job.SnapScore,
	}, nil
}

func (c Config) dailyJob(name string) (dailypage.Job, error) {
	job, ok := c.Daily[name]
	if !ok {
		return dailypage.Job{}, fmt.Errorf("%w: daily job %q", errUnknownJob, name)
	}
	return dailypage.Job{
		Name:           name,
		DatabaseID:     job.DatabaseID,
		TitleProperty:  job.TitleProperty,
		DateProperty:   job.DateProperty,
		TitleLayout:    job.TitleLayout,
		Offset:         job.Offset,
		Count:          job.Count,
		Extra:          job.Extra,
		CopyBlocksFrom: job.CopyBlocksFrom,
	}, nil
}
