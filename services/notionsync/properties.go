package notionsync

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"notion-helper/lib/namematch"
	"notion-helper/lib/notion"
	"notion-helper/lib/scraper"
	"notion-helper/lib/textutil"
)

const (
	TypeTitle       = "title"
	TypeRichText    = "rich_text"
	TypeNumber      = "number"
	TypeDate        = "date"
	TypeSelect      = "select"
	TypeMultiSelect = "multi_select"
	TypeURL         = "url"
	TypeFiles       = "files"
)

const (
	TransformCompany      = "company"
	TransformDate         = "date"
	TransformEarliestDate = "earliest_date"
)

// notion rejects longer text contents
const maxTextLength = 2000

const defaultSnapScore = 0.9

// PropertyRule maps one record field onto one page property.
type PropertyRule struct {
	Field     string `json:"field"`
	Property  string `json:"property"`
	Type      string `json:"type"`
	Transform string `json:"transform"`
}

func (p PropertyRule) validate() error {
	if p.Field == "" || p.Property == "" {
		return fmt.Errorf("property rule needs a field and a property")
	}
	switch p.Type {
	case TypeTitle, TypeRichText, TypeNumber, TypeDate, TypeSelect, TypeMultiSelect, TypeURL, TypeFiles:
	default:
		return fmt.Errorf("property %s: unknown type %q", p.Property, p.Type)
	}
	switch p.Transform {
	case "", TransformCompany, TransformDate, TransformEarliestDate:
	default:
		return fmt.Errorf("property %s: unknown transform %q", p.Property, p.Transform)
	}
	return nil
}

func (r Runner) transform(rule PropertyRule, values []string) []string {
	switch rule.Transform {
	case TransformCompany:
		out := make([]string, 0, len(values))
		for _, v := range values {
			if cleaned := textutil.CleanCompanyName(v, r.companySuffixes); cleaned != "" {
				out = append(out, cleaned)
			}
		}
		return out
	case TransformDate:
		out := make([]string, 0, len(values))
		for _, v := range values {
			if date, ok := textutil.NormalizeDate(v); ok {
				out = append(out, date)
			}
		}
		return out
	case TransformEarliestDate:
		if date, ok := textutil.EarliestDate(values); ok {
			return []string{date}
		}
		return nil
	}
	return values
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func textValue(s string) []map[string]any {
	return notion.RichText(truncate(s, maxTextLength))
}

var numberRegex = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

func parseNumber(s string) (float64, bool) {
	match := numberRegex.FindString(strings.ReplaceAll(s, ",", ""))
	if match == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(match, 64)
	return n, err == nil
}

// select option names may not contain commas
func optionName(s string) string {
	return textutil.CollapseSpace(strings.ReplaceAll(s, ",", " "))
}

// BuildProperties converts a record into a properties payload. Rules whose
// field is missing or unusable are left out so that existing values are not
// cleared.
func (r Runner) BuildProperties(ctx context.Context, job Job, options map[string][]string, record scraper.Record) (map[string]any, error) {
	snapScore := job.SnapScore
	if snapScore <= 0 {
		snapScore = defaultSnapScore
	}

	properties := map[string]any{}
	for _, rule := range job.Properties {
		values := r.transform(rule, record.Get(rule.Field))
		if len(values) == 0 {
			continue
		}

		switch rule.Type {
		case TypeTitle, TypeRichText:
			properties[rule.Property] = map[string]any{
				rule.Type: textValue(strings.Join(values, ", ")),
			}
		case TypeNumber:
			n, ok := parseNumber(values[0])
			if !ok {
				slog.WarnContext(ctx, "value is not a number", "property", rule.Property, "value", values[0])
				continue
			}
			properties[rule.Property] = map[string]any{"number": n}
		case TypeDate:
			date, ok := textutil.NormalizeDate(values[0])
			if !ok {
				slog.WarnContext(ctx, "value is not a date", "property", rule.Property, "value", values[0])
				continue
			}
			properties[rule.Property] = notion.DateProperty(date)
		case TypeSelect:
			snapped := namematch.SnapToOptions(values[:1], options[rule.Property], snapScore)
			properties[rule.Property] = map[string]any{
				"select": map[string]any{"name": optionName(snapped[0])},
			}
		case TypeMultiSelect:
			snapped := namematch.SnapToOptions(values, options[rule.Property], snapScore)
			items := make([]map[string]any, 0, len(snapped))
			seen := map[string]struct{}{}
			for _, v := range snapped {
				name := optionName(v)
				if _, dup := seen[name]; dup || name == "" {
					continue
				}
				seen[name] = struct{}{}
				items = append(items, map[string]any{"name": name})
			}
			properties[rule.Property] = map[string]any{"multi_select": items}
		case TypeURL:
			properties[rule.Property] = map[string]any{"url": values[0]}
		case TypeFiles:
			files := make([]map[string]any, 0, len(values))
			for _, v := range values {
				file, err := r.fileReference(ctx, v)
				if err != nil {
					return nil, fmt.Errorf("property %s: %w", rule.Property, err)
				}
				files = append(files, file)
			}
			properties[rule.Property] = map[string]any{"files": files}
		}
	}
	return properties, nil
}

func (r Runner) fileReference(ctx context.Context, rawURL string) (map[string]any, error) {
	name := truncate(notion.FilenameFromURL(rawURL), 100)
	return r.api.FileReference(ctx, r.images.Process(ctx, rawURL), name)
}
