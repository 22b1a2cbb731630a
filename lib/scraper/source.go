package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Source produces the record for one key, usually an id or url read from a
// page in the database being refreshed.
type Source interface {
	Fetch(ctx context.Context, key string) (Record, error)
}

// expandURL substitutes {key} in template. A key that already is an
// absolute url is used as is.
func expandURL(template, key string) string {
	key = strings.TrimSpace(key)
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}
	return strings.ReplaceAll(template, "{key}", url.PathEscape(key))
}

// PageSource scrapes an html page with selector rules.
type PageSource struct {
	Fetcher     *Fetcher
	URLTemplate string
	Rules       Rules
}

func (s PageSource) Fetch(ctx context.Context, key string) (Record, error) {
	doc, err := s.Fetcher.Document(ctx, expandURL(s.URLTemplate, key))
	if err != nil {
		return nil, err
	}
	return Extract(doc, s.Rules)
}

// JSONSource reads an object from a JSON api. Path is a dotted path to the
// object inside the response, nested objects are flattened into dotted
// field names.
type JSONSource struct {
	Fetcher     *Fetcher
	URLTemplate string
	Path        string
}

func (s JSONSource) Fetch(ctx context.Context, key string) (Record, error) {
	body, err := s.Fetcher.Get(ctx, expandURL(s.URLTemplate, key))
	if err != nil {
		return nil, err
	}
	return DecodeJSON(body, s.Path)
}

// DecodeJSON converts the object found at path in body into a record.
func DecodeJSON(body []byte, path string) (Record, error) {
	var root any
	err := json.Unmarshal(body, &root)
	if err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	current := root
	if path != "" {
		for _, segment := range strings.Split(path, ".") {
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("json path %q: %q is not inside an object", path, segment)
			}
			current, ok = obj[segment]
			if !ok {
				return nil, fmt.Errorf("json path %q: missing %q", path, segment)
			}
		}
	}

	obj, ok := current.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("json path %q does not point at an object", path)
	}
	record := Record{}
	flatten(record, "", obj)
	return record, nil
}

func flatten(record Record, prefix string, obj map[string]any) {
	for k, v := range obj {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		switch v := v.(type) {
		case map[string]any:
			flatten(record, name, v)
		case []any:
			for _, item := range v {
				if s, ok := scalar(item); ok {
					record.add(name, s)
				}
			}
		default:
			if s, ok := scalar(v); ok {
				record.add(name, s)
			}
		}
	}
}

func scalar(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return strings.TrimSpace(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}
