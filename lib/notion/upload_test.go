package notion

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type receivedUpload struct {
	filename      string
	contentType   string
	data          []byte
	contentLength int64
}

// uploadAPI emulates the file upload endpoints of the API.
type uploadAPI struct {
	allocations atomic.Int32
	sends       atomic.Int32
	sendStatus  int
	omitID      bool
	received    chan receivedUpload
}

func newUploadAPI() *uploadAPI {
	return &uploadAPI{sendStatus: http.StatusOK, received: make(chan receivedUpload, 8)}
}

func (u *uploadAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/file_uploads":
		n := u.allocations.Add(1)
		if u.omitID {
			writeJSON(w, http.StatusOK, map[string]any{"object": "file_upload"})
			return
		}
		id := "upload-" + strconv.Itoa(int(n))
		writeJSON(w, http.StatusOK, map[string]any{
			"object":     "file_upload",
			"id":         id,
			"status":     "pending",
			"upload_url": "https://api.notion.com/v1/file_uploads/" + id + "/send",
		})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/send"):
		u.sends.Add(1)
		if u.sendStatus != http.StatusOK {
			w.WriteHeader(u.sendStatus)
			return
		}
		err := r.ParseMultipartForm(1 << 20)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		u.received <- receivedUpload{
			filename:      header.Filename,
			contentType:   header.Header.Get("Content-Type"),
			data:          data,
			contentLength: r.ContentLength,
		}
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/file_uploads/"), "/send")
		writeJSON(w, http.StatusOK, map[string]any{"object": "file_upload", "id": id, "status": "uploaded"})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestUploadRoundTrip(t *testing.T) {
	api := newUploadAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	client := newTestClient(t, ClientConfig{BaseURL: server.URL})
	data := []byte("\x89PNG\r\n\x1a\nnot really a png")

	ref, err := client.UploadBytes(context.Background(), data, "cover.png", "")
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, FileRef{ID: "upload-1", Name: "cover.png"}, ref)

	received := <-api.received
	require.Equal(t, "cover.png", received.filename)
	require.Equal(t, "image/png", received.contentType)
	require.Equal(t, data, received.data)
	require.Greater(t, received.contentLength, int64(len(data)))

	require.Equal(t, map[string]any{
		"type":        "file_upload",
		"name":        "cover.png",
		"file_upload": map[string]any{"id": "upload-1"},
	}, ref.PropertyItem())
}

func TestUploadSessionIsSingleUse(t *testing.T) {
	api := newUploadAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	client := newTestClient(t, ClientConfig{BaseURL: server.URL})
	ctx := context.Background()

	session, err := client.AllocateUploadSlot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.SendBytes(ctx, session, []byte("hello"), "a.txt", "text/plain")
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.SendBytes(ctx, session, []byte("again"), "a.txt", "text/plain")
	require.Equal(t, KindConfiguration, KindOf(err))
	require.Equal(t, int32(1), api.sends.Load())
}

func TestUploadSendIsNotRetried(t *testing.T) {
	api := newUploadAPI()
	api.sendStatus = http.StatusServiceUnavailable
	server := httptest.NewServer(api)
	defer server.Close()

	client := newTestClient(t, ClientConfig{
		BaseURL: server.URL,
		Retry:   RetryPolicy{MaxAttempts: 3, BaseInterval: time.Millisecond, Factor: 1},
	})
	_, err := client.UploadBytes(context.Background(), []byte("data"), "notes.md", "")
	require.Equal(t, KindServer, KindOf(err))
	require.Equal(t, int32(1), api.sends.Load())
	require.Equal(t, int32(1), api.allocations.Load())
}

func TestUploadAllocationWithoutID(t *testing.T) {
	api := newUploadAPI()
	api.omitID = true
	server := httptest.NewServer(api)
	defer server.Close()

	client := newTestClient(t, ClientConfig{BaseURL: server.URL})
	_, err := client.UploadBytes(context.Background(), []byte("data"), "a.bin", "")
	require.Equal(t, KindAllocation, KindOf(err))
	require.Zero(t, api.sends.Load())
}

func TestUploadFromURL(t *testing.T) {
	api := newUploadAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	image := bytes.Repeat([]byte{0xff, 0xd8}, 512)
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// downloads follow redirects, unlike api calls
		if r.URL.Path == "/cdn/poster.JPG" {
			http.Redirect(w, r, "/covers/poster.JPG", http.StatusMovedPermanently)
			return
		}
		w.Write(image)
	}))
	defer source.Close()

	client := newTestClient(t, ClientConfig{BaseURL: server.URL})
	ref, err := client.UploadFromURL(context.Background(), source.URL+"/cdn/poster.JPG", "", "")
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "poster.JPG", ref.Name)

	received := <-api.received
	require.Equal(t, "image/jpeg", received.contentType)
	require.Equal(t, image, received.data)
}

func TestUploadFromSource(t *testing.T) {
	api := newUploadAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	client := newTestClient(t, ClientConfig{BaseURL: server.URL})
	ctx := context.Background()

	ref, err := client.UploadFromSource(ctx, UploadSource{Data: []byte("# notes"), Filename: "notes.md"})
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "notes.md", ref.Name)
	require.Equal(t, "text/markdown", (<-api.received).contentType)

	_, err = client.UploadFromSource(ctx, UploadSource{})
	require.Equal(t, KindConfiguration, KindOf(err))
	_, err = client.UploadFromSource(ctx, UploadSource{Data: []byte("x"), URL: "http://example.com/x"})
	require.Equal(t, KindConfiguration, KindOf(err))
}

func TestDownloadLimits(t *testing.T) {
	api := newUploadAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch path.Dir(r.URL.Path) {
		case "/chunked":
			// no content length is declared when the body is flushed in pieces
			chunk := bytes.Repeat([]byte("a"), 1024)
			for i := 0; i < 4; i++ {
				w.Write(chunk)
				w.(http.Flusher).Flush()
			}
		case "/declared":
			w.Header().Set("Content-Length", "4096")
			w.Write(bytes.Repeat([]byte("b"), 4096))
		case "/empty":
			w.WriteHeader(http.StatusOK)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/slow":
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("partial"))
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}
	}))
	defer source.Close()

	client := newTestClient(t, ClientConfig{
		BaseURL: server.URL,
		Download: DownloadPolicy{
			MaxSize: 2048,
			Timeout: 200 * time.Millisecond,
		},
	})

	cases := []struct {
		path   string
		expect Kind
	}{
		{path: "/chunked/a.png", expect: KindDownloadTooLarge},
		{path: "/declared/b.png", expect: KindDownloadTooLarge},
		{path: "/empty/c.png", expect: KindEmptyDownload},
		{path: "/missing/d.png", expect: KindClient},
		{path: "/slow/e.png", expect: KindDownloadTimeout},
	}
	for _, test := range cases {
		t.Run(test.path, func(t *testing.T) {
			_, err := client.UploadFromURL(context.Background(), source.URL+test.path, "", "")
			require.Equal(t, test.expect, KindOf(err))
		})
	}

	// nothing reaches the upload endpoints when the download fails
	require.Zero(t, api.allocations.Load())
}

func TestFileReference(t *testing.T) {
	api := newUploadAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("gif bytes"))
	}))
	defer source.Close()

	client := newTestClient(t, ClientConfig{BaseURL: server.URL, InlineURLLimit: 60})
	ctx := context.Background()

	short := "https://img.example/a.gif"
	item, err := client.FileReference(ctx, short, "")
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, ExternalFile(short, "a.gif"), item)
	require.Zero(t, api.allocations.Load())

	long := source.URL + "/" + strings.Repeat("x", 60) + "/animation.gif"
	item, err = client.FileReference(ctx, long, "")
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "file_upload", item["type"])
	require.Equal(t, "animation.gif", item["name"])
	require.Equal(t, "image/gif", (<-api.received).contentType)
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"photo.jpg":   "image/jpeg",
		"photo.JPEG":  "image/jpeg",
		"image.png":   "image/png",
		"anim.gif":    "image/gif",
		"pic.webp":    "image/webp",
		"paper.pdf":   "application/pdf",
		"notes.txt":   "text/plain",
		"README.md":   "text/markdown",
		"archive.zip": "application/octet-stream",
		"noextension": "application/octet-stream",
	}
	for name, expect := range cases {
		require.Equal(t, expect, ContentTypeFor(name), name)
	}
}

func TestFilenameFromURL(t *testing.T) {
	cases := map[string]string{
		"https://img.example/covers/poster.png":       "poster.png",
		"https://img.example/covers/poster.png?w=300": "poster.png",
		"https://img.example/a%20b.jpg":               "a b.jpg",
		"https://img.example/":                        "downloaded_file",
		"https://img.example":                         "downloaded_file",
	}
	for raw, expect := range cases {
		require.Equal(t, expect, FilenameFromURL(raw), raw)
	}
}
