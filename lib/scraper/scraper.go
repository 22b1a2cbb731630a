// Package scraper turns third-party pages into opaque records. Each source
// is described by configuration (selectors or a JSON path) so that adding a
// site does not need new code:
//
//	input key -> request -> response -> Record
package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"notion-helper/lib/htmlutil"
	"notion-helper/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

// Record is the key/value payload a source hands to the sync jobs. Every
// field may hold several values.
type Record map[string][]string

func (r Record) Get(field string) []string {
	return r[field]
}

// First returns the first value of field or "".
func (r Record) First(field string) string {
	values := r[field]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (r Record) add(field string, values ...string) {
	for _, v := range values {
		if v == "" {
			continue
		}
		r[field] = append(r[field], v)
	}
}

type FieldRule struct {
	// the record field being filled
	Name     string `json:"name"`
	Selector string `json:"selector"`
	// read this attribute instead of the element's text, "href" and "src"
	// are resolved against the page url
	Attr string `json:"attr"`
	// keep only values matching this expression, the first capture group is
	// used when there is one
	Pattern string `json:"pattern"`
	// split every value on these separators
	Split []string `json:"split"`
	// take every matched element instead of the first one
	Multi bool `json:"multi"`
	// join the values into one with this separator
	Join string `json:"join"`
}

type Rules struct {
	Fields []FieldRule `json:"fields"`
}

type compiledRule struct {
	FieldRule
	pattern *regexp.Regexp
}

func compile(rules Rules) ([]compiledRule, error) {
	out := make([]compiledRule, len(rules.Fields))
	for i, rule := range rules.Fields {
		if rule.Name == "" || rule.Selector == "" {
			return nil, fmt.Errorf("field rule %d needs a name and a selector", i)
		}
		out[i].FieldRule = rule
		if rule.Pattern == "" {
			continue
		}
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", rule.Name, err)
		}
		out[i].pattern = pattern
	}
	return out, nil
}

func (r compiledRule) value(doc *goquery.Document, sel *goquery.Selection) (string, bool) {
	if r.Attr == "" {
		return htmlutil.NodeText(sel.Get(0)), true
	}
	v, ok := sel.Attr(r.Attr)
	if !ok {
		return "", false
	}
	switch r.Attr {
	case "href", "src":
		return htmlutil.ResolveURL(doc.Url, v), true
	}
	return htmlutil.CleanText(v), true
}

func (r compiledRule) match(v string) (string, bool) {
	if r.pattern == nil {
		return v, true
	}
	groups := r.pattern.FindStringSubmatch(v)
	if groups == nil {
		return "", false
	}
	if len(groups) > 1 {
		return strings.TrimSpace(groups[1]), true
	}
	return groups[0], true
}

func (r compiledRule) extract(doc *goquery.Document) []string {
	sel := doc.Find(r.Selector)
	if !r.Multi {
		sel = sel.First()
	}

	var values []string
	sel.Each(func(_ int, s *goquery.Selection) {
		v, ok := r.value(doc, s)
		if !ok {
			return
		}
		v, ok = r.match(v)
		if !ok || v == "" {
			return
		}
		if len(r.Split) > 0 {
			values = append(values, textutil.SplitList(v, r.Split...)...)
			return
		}
		values = append(values, v)
	})

	if r.Join != "" && len(values) > 0 {
		return []string{strings.Join(values, r.Join)}
	}
	return values
}

// Extract applies rules to doc. Fields whose selector matches nothing are
// left out of the record.
func Extract(doc *goquery.Document, rules Rules) (Record, error) {
	compiled, err := compile(rules)
	if err != nil {
		return nil, err
	}
	record := Record{}
	for _, rule := range compiled {
		record.add(rule.Name, rule.extract(doc)...)
	}
	return record, nil
}
