package notion

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// UploadSession is a server-allocated slot for exactly one file. Once
// SendBytes has been called on it, whether it succeeded or not, a new slot
// must be allocated.
type UploadSession struct {
	ID        string
	UploadURL string
	used      atomic.Bool
}

// FileRef identifies an uploaded file that can be attached to a page.
type FileRef struct {
	ID   string
	Name string
}

// PropertyItem renders the reference as an entry of a files property.
func (f FileRef) PropertyItem() map[string]any {
	return map[string]any{
		"type":        "file_upload",
		"name":        f.Name,
		"file_upload": map[string]any{"id": f.ID},
	}
}

// ExternalFile renders a url as an entry of a files property without
// uploading anything.
func ExternalFile(rawURL, name string) map[string]any {
	if name == "" {
		name = FilenameFromURL(rawURL)
	}
	return map[string]any{
		"type":     "external",
		"name":     name,
		"external": map[string]any{"url": rawURL},
	}
}

type allocationResponse struct {
	ID        string `json:"id"`
	UploadURL string `json:"upload_url"`
	Status    string `json:"status"`
}

func (c *Client) AllocateUploadSlot(ctx context.Context) (*UploadSession, error) {
	var out allocationResponse
	err := c.doJSON(ctx, RequestSpec{
		Method: http.MethodPost,
		Path:   "/v1/file_uploads",
		Body:   map[string]any{},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errorf(KindAllocation, "upload allocation returned no id")
	}
	return &UploadSession{ID: out.ID, UploadURL: out.UploadURL}, nil
}

var sendOnce = RetryPolicy{MaxAttempts: 1}

// SendBytes transmits data into session as a single multipart part. It is
// attempted exactly once.
func (c *Client) SendBytes(ctx context.Context, session *UploadSession, data []byte, filename, contentType string) (FileRef, error) {
	if session == nil || session.ID == "" {
		return FileRef{}, errorf(KindConfiguration, "an allocated upload session is required")
	}
	if !session.used.CompareAndSwap(false, true) {
		return FileRef{}, errorf(KindConfiguration, "upload session %s was already used", session.ID)
	}

	ctx, span := tracer.Start(ctx, "notion:SendBytes")
	defer span.End()
	span.SetAttributes(
		attribute.String("session", session.ID),
		attribute.String("filename", filename),
		attribute.Int("size", len(data)),
	)

	body, formContentType, err := encodeMultipart(data, filename, contentType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode multipart body")
		return FileRef{}, err
	}

	var out allocationResponse
	err = c.doJSON(ctx, RequestSpec{
		Method:      http.MethodPost,
		Path:        "/v1/file_uploads/" + url.PathEscape(session.ID) + "/send",
		RawBody:     body,
		ContentType: formContentType,
		Timeout:     c.cfg.UploadTimeout,
		Retry:       &sendOnce,
	}, &out)
	if err != nil {
		return FileRef{}, err
	}

	id := out.ID
	if id == "" {
		id = session.ID
	}
	return FileRef{ID: id, Name: filename}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeMultipart(data []byte, filename, contentType string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	suffix, err := random.String(16)
	if err == nil {
		// keeps the writer's own random boundary if ours is rejected
		_ = w.SetBoundary("----NotionHelperFormBoundary" + suffix)
	}

	header := make(textproto.MIMEHeader)
	header.Set(
		"Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)),
	)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	_, err = part.Write(data)
	if err != nil {
		return nil, "", err
	}
	err = w.Close()
	if err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// UploadSource is either in-memory bytes or a url to download from.
type UploadSource struct {
	Data []byte
	URL  string
	// inferred from the url or defaulted when empty
	Filename    string
	ContentType string
}

func (c *Client) UploadFromSource(ctx context.Context, src UploadSource) (FileRef, error) {
	switch {
	case src.Data != nil && src.URL != "":
		return FileRef{}, errorf(KindConfiguration, "an upload source is either bytes or a url, not both")
	case src.URL != "":
		return c.UploadFromURL(ctx, src.URL, src.Filename, src.ContentType)
	case src.Data != nil:
		return c.UploadBytes(ctx, src.Data, src.Filename, src.ContentType)
	}
	return FileRef{}, errorf(KindConfiguration, "an upload source needs bytes or a url")
}

func (c *Client) UploadBytes(ctx context.Context, data []byte, filename, contentType string) (FileRef, error) {
	if len(data) == 0 {
		return FileRef{}, errorf(KindConfiguration, "refusing to upload an empty file")
	}
	if filename == "" {
		filename = fallbackFilename
	}
	if contentType == "" {
		contentType = ContentTypeFor(filename)
	}
	session, err := c.AllocateUploadSlot(ctx)
	if err != nil {
		return FileRef{}, err
	}
	return c.SendBytes(ctx, session, data, filename, contentType)
}

// UploadFromURL downloads rawURL and re-uploads its contents.
func (c *Client) UploadFromURL(ctx context.Context, rawURL, filename, contentType string) (FileRef, error) {
	ctx, span := tracer.Start(ctx, "notion:UploadFromURL")
	defer span.End()

	if filename == "" {
		filename = FilenameFromURL(rawURL)
	}
	if contentType == "" {
		contentType = ContentTypeFor(filename)
	}
	span.SetAttributes(
		attribute.String("url", rawURL),
		attribute.String("filename", filename),
		attribute.String("content_type", contentType),
	)

	data, err := c.downloader.fetch(ctx, rawURL, c.cfg.Download)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "download failed")
		return FileRef{}, err
	}
	ref, err := c.UploadBytes(ctx, data, filename, contentType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return FileRef{}, err
	}
	return ref, nil
}

// FileReference returns a files property entry for rawURL: short urls are
// stored inline as external files, longer ones are uploaded.
func (c *Client) FileReference(ctx context.Context, rawURL, name string) (map[string]any, error) {
	if len(rawURL) <= c.cfg.InlineURLLimit {
		return ExternalFile(rawURL, name), nil
	}
	ref, err := c.UploadFromURL(ctx, rawURL, name, "")
	if err != nil {
		return nil, err
	}
	return ref.PropertyItem(), nil
}
