package notionsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"notion-helper/lib/imageproxy"
	"notion-helper/lib/notion"
	"notion-helper/lib/scraper"
	"notion-helper/lib/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func titlePage(id, key string) notion.Page {
	props := map[string]json.RawMessage{}
	if key != "" {
		props["ISBN"] = json.RawMessage(fmt.Sprintf(`{"type": "rich_text", "rich_text": [{"plain_text": %q}]}`, key))
	}
	return notion.Page{ID: id, Properties: props}
}

type fakeAPI struct {
	mu      sync.Mutex
	pages   map[string]notion.List[notion.Page]
	cursors []string
	updates map[string]map[string]any
	files   []string
}

func (f *fakeAPI) GetDatabase(ctx context.Context, databaseID string) (notion.Database, error) {
	var db notion.Database
	err := json.Unmarshal([]byte(`{
		"id": "db",
		"properties": {
			"Genre": {"type": "select", "select": {"options": [{"name": "Science Fiction"}]}},
			"Tags": {"type": "multi_select", "multi_select": {"options": [{"name": "Drama"}]}}
		}
	}`), &db)
	return db, err
}

func (f *fakeAPI) QueryDatabase(ctx context.Context, databaseID string, opts notion.QueryOptions) (notion.List[notion.Page], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, opts.StartCursor)
	return f.pages[opts.StartCursor], nil
}

func (f *fakeAPI) UpdatePageProperties(ctx context.Context, pageID string, properties map[string]any) (notion.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[string]map[string]any{}
	}
	f.updates[pageID] = properties
	return notion.Page{ID: pageID}, nil
}

func (f *fakeAPI) FileReference(ctx context.Context, rawURL, name string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, rawURL)
	if strings.Contains(rawURL, "broken") {
		return nil, errors.New("download failed")
	}
	return notion.ExternalFile(rawURL, name), nil
}

type fakeSource map[string]scraper.Record

func (s fakeSource) Fetch(ctx context.Context, key string) (scraper.Record, error) {
	record, ok := s[key]
	if !ok {
		return nil, scraper.ErrNotFound
	}
	return record, nil
}

var bookRules = []PropertyRule{
	{Field: "title", Property: "Name", Type: TypeTitle},
	{Field: "publisher", Property: "Publisher", Type: TypeRichText, Transform: TransformCompany},
	{Field: "pages", Property: "Pages", Type: TypeNumber},
	{Field: "published", Property: "Published", Type: TypeDate, Transform: TransformEarliestDate},
	{Field: "genre", Property: "Genre", Type: TypeSelect},
	{Field: "tags", Property: "Tags", Type: TypeMultiSelect},
	{Field: "link", Property: "Link", Type: TypeURL},
	{Field: "cover", Property: "Cover", Type: TypeFiles},
}

func TestBuildProperties(t *testing.T) {
	api := &fakeAPI{}
	runner := NewRunner(RunnerOptions{API: api})
	job := Job{Properties: bookRules}
	options := map[string][]string{
		"Genre": {"Science Fiction"},
		"Tags":  {"Drama"},
	}

	record := scraper.Record{
		"title":     {"Dune"},
		"publisher": {"Chilton Books, Inc."},
		"pages":     {"1,412 pages"},
		"published": {"1966", "1965-08-01(US)", "garbage"},
		"genre":     {"science fiction"},
		"tags":      {"drama", "DRAMA", "Space, Opera"},
		"link":      {"https://example.com/dune"},
		"cover":     {"https://example.com/dune.jpg"},
	}
	props, err := runner.BuildProperties(context.Background(), job, options, record)
	require.NoError(t, err)

	expect := map[string]any{
		"Name": map[string]any{"title": []map[string]any{{
			"type": "text", "text": map[string]any{"content": "Dune"},
		}}},
		"Publisher": map[string]any{"rich_text": []map[string]any{{
			"type": "text", "text": map[string]any{"content": "Chilton Books"},
		}}},
		"Pages":     map[string]any{"number": 1412.0},
		"Published": map[string]any{"date": map[string]any{"start": "1965-08-01"}},
		"Genre":     map[string]any{"select": map[string]any{"name": "Science Fiction"}},
		"Tags": map[string]any{"multi_select": []map[string]any{
			{"name": "Drama"},
			{"name": "Space Opera"},
		}},
		"Link": map[string]any{"url": "https://example.com/dune"},
		"Cover": map[string]any{"files": []map[string]any{
			notion.ExternalFile("https://example.com/dune.jpg", "dune.jpg"),
		}},
	}
	if diff := cmp.Diff(expect, props); diff != "" {
		t.Fatal(diff)
	}
}

func TestBuildPropertiesSkipsUnusableValues(t *testing.T) {
	runner := NewRunner(RunnerOptions{API: &fakeAPI{}})
	job := Job{Properties: bookRules}

	props, err := runner.BuildProperties(context.Background(), job, nil, scraper.Record{
		"pages":     {"many"},
		"published": {"someday"},
	})
	require.NoError(t, err)
	require.Empty(t, props)

	long := strings.Repeat("é", maxTextLength+10)
	props, err = runner.BuildProperties(context.Background(), job, nil, scraper.Record{"title": {long}})
	require.NoError(t, err)
	content := props["Name"].(map[string]any)["title"].([]map[string]any)[0]["text"].(map[string]any)["content"].(string)
	require.Len(t, []rune(content), maxTextLength)
}

func TestBuildPropertiesShortensImages(t *testing.T) {
	api := &fakeAPI{}
	runner := NewRunner(RunnerOptions{
		API:    api,
		Images: imageproxy.Shortener{Service: imageproxy.Cloudinary("demo"), Limit: 30},
	})
	job := Job{Properties: []PropertyRule{{Field: "cover", Property: "Cover", Type: TypeFiles}}}

	_, err := runner.BuildProperties(context.Background(), job, nil, scraper.Record{
		"cover": {"https://images.example.com/covers/very/long/path/dune.jpg", "https://x.io/a.png"},
	})
	require.NoError(t, err)
	require.Len(t, api.files, 2)
	require.True(t, strings.HasPrefix(api.files[0], "https://res.cloudinary.com/demo/image/fetch/"))
	require.Equal(t, "https://x.io/a.png", api.files[1])

	_, err = runner.BuildProperties(context.Background(), job, nil, scraper.Record{
		"cover": {"https://x.io/broken.png"},
	})
	require.Error(t, err)
}

func TestRun(t *testing.T) {
	_, cleanup := testutil.SetupService(t, testutil.ServiceParams{Name: "notionsync"})
	defer cleanup()

	api := &fakeAPI{pages: map[string]notion.List[notion.Page]{
		"": {
			Results:    []notion.Page{titlePage("p1", "111"), titlePage("p2", "")},
			HasMore:    true,
			NextCursor: "next",
		},
		"next": {
			Results: []notion.Page{titlePage("p3", "333"), titlePage("p4", "404")},
		},
	}}
	source := fakeSource{
		"111": {"title": {"Dune"}, "genre": {"science fiction"}},
		"333": {"title": {"Hyperion"}, "cover": {"https://x.io/broken.png"}},
	}
	runner := NewRunner(RunnerOptions{API: api})

	report, err := runner.Run(context.Background(), Job{
		Name:        "books",
		DatabaseID:  "db",
		KeyProperty: "ISBN",
		Source:      source,
		Properties:  bookRules,
		Concurrency: 2,
	})
	require.NoError(t, err)

	// p2 has no key and is skipped without failing
	require.Equal(t, 2, report.Succeeded)
	ids := []string{}
	for _, f := range report.Failures {
		ids = append(ids, f.ID)
	}
	sort.Strings(ids)
	require.Equal(t, []string{"p3", "p4"}, ids)
	require.ErrorIs(t, report.Err(), scraper.ErrNotFound)

	require.Equal(t, []string{"", "next"}, api.cursors)
	require.Len(t, api.updates, 1)
	require.Equal(t,
		map[string]any{"select": map[string]any{"name": "Science Fiction"}},
		api.updates["p1"]["Genre"],
	)
}

func TestRunSinglePage(t *testing.T) {
	api := &fakeAPI{pages: map[string]notion.List[notion.Page]{
		"":     {Results: []notion.Page{titlePage("p1", "111")}, HasMore: true, NextCursor: "next"},
		"next": {Results: []notion.Page{titlePage("p2", "111")}},
	}}
	runner := NewRunner(RunnerOptions{API: api})

	report, err := runner.Run(context.Background(), Job{
		DatabaseID:  "db",
		KeyProperty: "ISBN",
		Source:      fakeSource{"111": {"title": {"Dune"}}},
		Properties:  []PropertyRule{{Field: "title", Property: "Name", Type: TypeTitle}},
		SinglePage:  true,
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)
	require.Equal(t, []string{""}, api.cursors)
}

func TestJobValidation(t *testing.T) {
	runner := NewRunner(RunnerOptions{API: &fakeAPI{}})
	valid := Job{
		DatabaseID:  "db",
		KeyProperty: "ISBN",
		Source:      fakeSource{},
		Properties:  []PropertyRule{{Field: "a", Property: "A", Type: TypeTitle}},
	}

	broken := []func(j *Job){
		func(j *Job) { j.DatabaseID = "" },
		func(j *Job) { j.KeyProperty = "" },
		func(j *Job) { j.Source = nil },
		func(j *Job) { j.Properties = nil },
		func(j *Job) { j.Properties = []PropertyRule{{Field: "a", Property: "A", Type: "checkbox"}} },
		func(j *Job) { j.Properties = []PropertyRule{{Field: "a", Property: "A", Type: TypeTitle, Transform: "upper"}} },
	}
	for i, breakJob := range broken {
		job := valid
		breakJob(&job)
		_, err := runner.Run(context.Background(), job)
		require.Error(t, err, "case %d", i)
	}
}
