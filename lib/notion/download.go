package notion

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"notion-helper/lib/restyutil"

	"github.com/go-resty/resty/v2"
)

const fallbackFilename = "downloaded_file"

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".md":   "text/markdown",
}

// ContentTypeFor infers a media type from the extension of filename.
func ContentTypeFor(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	ct, ok := contentTypes[ext]
	if !ok {
		return "application/octet-stream"
	}
	return ct
}

// FilenameFromURL returns the last segment of the url's path.
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallbackFilename
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return fallbackFilename
	}
	return name
}

type downloader struct {
	http    *resty.Client
	proxied bool
}

func newDownloader(hc *http.Client, userAgent string, proxied bool) *downloader {
	client := resty.NewWithClient(hc)
	client.SetHeader("User-Agent", userAgent)
	client.SetLogger(restyutil.SlogLogger{})
	restyutil.InstrumentClient(client, tracer, nil)
	return &downloader{http: client, proxied: proxied}
}

const downloadChunkSize = 32 * 1024

// fetch streams rawURL into memory, aborting as soon as more than
// policy.MaxSize bytes arrived or policy.Timeout elapsed.
func (d *downloader) fetch(ctx context.Context, rawURL string, policy DownloadPolicy) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
	defer cancel()

	res, err := d.http.R().
		SetContext(callCtx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		return nil, d.downloadError(ctx, callCtx, err)
	}
	body := res.RawBody()
	defer body.Close()

	if res.StatusCode() < 200 || res.StatusCode() > 299 {
		return nil, statusError(res.StatusCode(), nil, d.proxied)
	}
	if res.RawResponse.ContentLength > policy.MaxSize {
		return nil, errorf(
			KindDownloadTooLarge,
			"source declares %d bytes, limit is %d",
			res.RawResponse.ContentLength, policy.MaxSize,
		)
	}

	var out bytes.Buffer
	chunk := make([]byte, downloadChunkSize)
	for {
		n, err := body.Read(chunk)
		if n > 0 {
			if int64(out.Len()+n) > policy.MaxSize {
				return nil, errorf(KindDownloadTooLarge, "source exceeded the limit of %d bytes", policy.MaxSize)
			}
			out.Write(chunk[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, d.downloadError(ctx, callCtx, err)
		}
	}

	if out.Len() == 0 {
		return nil, errorf(KindEmptyDownload, "source %s returned no bytes", rawURL)
	}
	return out.Bytes(), nil
}

func (d *downloader) downloadError(parent, callCtx context.Context, err error) error {
	nerr := networkError(parent, callCtx, err, d.proxied)
	if nerr.Kind == KindTimeout {
		nerr.Kind = KindDownloadTimeout
	}
	return nerr
}
