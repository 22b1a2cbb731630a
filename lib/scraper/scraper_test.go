package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const bookPage = `<!doctype html>
<html>
<head><title>Book</title></head>
<body>
	<h1 class="title">
		The   Three-Body
		Problem
	</h1>
	<table class="info">
		<tr><th>Author</th><td class="author">Liu Cixin / Ken Liu</td></tr>
		<tr><th>Publisher</th><td class="publisher">Tor Books, Inc.</td></tr>
		<tr><th>Published</th><td class="date">Published: 2014-11-11</td></tr>
		<tr><th>Pages</th><td class="pages">400 pages</td></tr>
	</table>
	<ul class="tags">
		<li>Science Fiction</li>
		<li>China</li>
		<li> </li>
	</ul>
	<img class="cover" src="/covers/3body.jpg">
	<a class="more" href="https://example.org/elsewhere">more</a>
</body>
</html>`

var bookRules = Rules{Fields: []FieldRule{
	{Name: "title", Selector: "h1.title"},
	{Name: "author", Selector: "td.author", Split: []string{"/"}},
	{Name: "publisher", Selector: "td.publisher"},
	{Name: "date", Selector: "td.date", Pattern: `(\d{4}-\d{2}-\d{2})`},
	{Name: "pages", Selector: "td.pages", Pattern: `\d+`},
	{Name: "tags", Selector: "ul.tags li", Multi: true},
	{Name: "tag_line", Selector: "ul.tags li", Multi: true, Join: ", "},
	{Name: "cover", Selector: "img.cover", Attr: "src"},
	{Name: "link", Selector: "a.more", Attr: "href"},
	{Name: "missing", Selector: "div.nothing"},
	{Name: "isbn", Selector: "td.pages", Pattern: `ISBN (\d+)`},
}}

func TestExtract(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(bookPage))
	require.NoError(t, err)

	record, err := Extract(doc, bookRules)
	require.NoError(t, err)

	expect := Record{
		"title":     {"The Three-Body Problem"},
		"author":    {"Liu Cixin", "Ken Liu"},
		"publisher": {"Tor Books, Inc."},
		"date":      {"2014-11-11"},
		"pages":     {"400"},
		"tags":      {"Science Fiction", "China"},
		"tag_line":  {"Science Fiction, China"},
		// no page url to resolve against
		"cover": {"/covers/3body.jpg"},
		"link":  {"https://example.org/elsewhere"},
	}
	if diff := cmp.Diff(expect, record); diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, "", record.First("missing"))
}

func TestExtractInvalidRules(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(bookPage))
	require.NoError(t, err)

	_, err = Extract(doc, Rules{Fields: []FieldRule{{Name: "x", Selector: "h1", Pattern: "("}}})
	require.Error(t, err)

	_, err = Extract(doc, Rules{Fields: []FieldRule{{Name: "x"}}})
	require.Error(t, err)
}

func newSiteServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/books/3body", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(bookPage))
	})
	mux.HandleFunc("/api/books/9780765377067", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"ok": true,
			"data": {
				"book": {
					"title": " The Three-Body Problem ",
					"authors": ["Liu Cixin", "Ken Liu", null],
					"pages": 400,
					"price": 9.99,
					"translated": true,
					"publisher": {"name": "Tor Books"},
					"related": [{"id": 1}],
					"subtitle": null
				}
			}
		}`))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestPageSource(t *testing.T) {
	server := newSiteServer(t)
	fetcher, err := NewFetcher(FetcherOptions{})
	require.NoError(t, err)

	source := PageSource{
		Fetcher:     fetcher,
		URLTemplate: server.URL + "/books/{key}",
		Rules:       bookRules,
	}
	record, err := source.Fetch(context.Background(), "3body")
	require.NoError(t, err)
	require.Equal(t, "The Three-Body Problem", record.First("title"))
	require.Equal(t, server.URL+"/covers/3body.jpg", record.First("cover"))

	// a full url bypasses the template
	record, err = source.Fetch(context.Background(), server.URL+"/books/3body")
	require.NoError(t, err)
	require.Equal(t, []string{"Liu Cixin", "Ken Liu"}, record.Get("author"))

	_, err = source.Fetch(context.Background(), "unknown")
	require.True(t, errors.Is(err, ErrNotFound))

	_, err = fetcher.Get(context.Background(), server.URL+"/broken")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotFound))
}

func TestJSONSource(t *testing.T) {
	server := newSiteServer(t)
	fetcher, err := NewFetcher(FetcherOptions{})
	require.NoError(t, err)

	source := JSONSource{
		Fetcher:     fetcher,
		URLTemplate: server.URL + "/api/books/{key}",
		Path:        "data.book",
	}
	record, err := source.Fetch(context.Background(), "9780765377067")
	require.NoError(t, err)

	expect := Record{
		"title":          {"The Three-Body Problem"},
		"authors":        {"Liu Cixin", "Ken Liu"},
		"pages":          {"400"},
		"price":          {"9.99"},
		"translated":     {"true"},
		"publisher.name": {"Tor Books"},
	}
	if diff := cmp.Diff(expect, record); diff != "" {
		t.Fatal(diff)
	}

	source.Path = "data.missing"
	_, err = source.Fetch(context.Background(), "9780765377067")
	require.Error(t, err)

	source.Path = "ok"
	_, err = source.Fetch(context.Background(), "9780765377067")
	require.Error(t, err)
}

func TestExpandURL(t *testing.T) {
	require.Equal(t, "https://a.example/items/a%20b", expandURL("https://a.example/items/{key}", " a b "))
	require.Equal(t, "https://b.example/x", expandURL("https://a.example/items/{key}", "https://b.example/x"))
}

func TestNewFetcherRejectsBadProxy(t *testing.T) {
	_, err := NewFetcher(FetcherOptions{Proxy: "http://[::1"})
	require.Error(t, err)
}
