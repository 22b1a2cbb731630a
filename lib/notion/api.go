package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

type List[T any] struct {
	Object     string `json:"object"`
	Results    []T    `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

type Parent struct {
	Type       string `json:"type"`
	DatabaseID string `json:"database_id,omitempty"`
	PageID     string `json:"page_id,omitempty"`
}

type Page struct {
	Object         string                     `json:"object"`
	ID             string                     `json:"id"`
	CreatedTime    string                     `json:"created_time"`
	LastEditedTime string                     `json:"last_edited_time"`
	Archived       bool                       `json:"archived"`
	URL            string                     `json:"url"`
	Parent         Parent                     `json:"parent"`
	Properties     map[string]json.RawMessage `json:"properties"`
}

type richText struct {
	PlainText string `json:"plain_text"`
}

type selectValue struct {
	Name string `json:"name"`
}

type dateValue struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

type propertyValue struct {
	Type     string       `json:"type"`
	Title    []richText   `json:"title"`
	RichText []richText   `json:"rich_text"`
	URL      *string      `json:"url"`
	Select   *selectValue `json:"select"`
	Number   *float64     `json:"number"`
	Date     *dateValue   `json:"date"`
}

// PlainText renders a title, rich_text, url, select, number or date
// property as plain text. Missing or empty properties yield "".
func (p Page) PlainText(property string) string {
	raw, ok := p.Properties[property]
	if !ok {
		return ""
	}
	var v propertyValue
	if json.Unmarshal(raw, &v) != nil {
		return ""
	}
	switch v.Type {
	case "title":
		return joinRichText(v.Title)
	case "rich_text":
		return joinRichText(v.RichText)
	case "url":
		if v.URL != nil {
			return *v.URL
		}
	case "select":
		if v.Select != nil {
			return v.Select.Name
		}
	case "number":
		if v.Number != nil {
			return strconv.FormatFloat(*v.Number, 'f', -1, 64)
		}
	case "date":
		if v.Date != nil {
			return v.Date.Start
		}
	}
	return ""
}

func joinRichText(parts []richText) string {
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p.PlainText)
	}
	return sb.String()
}

type Database struct {
	Object     string                     `json:"object"`
	ID         string                     `json:"id"`
	Title      []richText                 `json:"title"`
	Properties map[string]json.RawMessage `json:"properties"`
}

func (d Database) Name() string {
	return joinRichText(d.Title)
}

type selectOptions struct {
	Options []selectValue `json:"options"`
}

type propertySchema struct {
	Type        string         `json:"type"`
	Select      *selectOptions `json:"select"`
	MultiSelect *selectOptions `json:"multi_select"`
	Status      *selectOptions `json:"status"`
}

// Options lists the option names of a select, multi_select or status
// property, nil for any other property.
func (d Database) Options(property string) []string {
	raw, ok := d.Properties[property]
	if !ok {
		return nil
	}
	var schema propertySchema
	if json.Unmarshal(raw, &schema) != nil {
		return nil
	}
	var opts *selectOptions
	switch schema.Type {
	case "select":
		opts = schema.Select
	case "multi_select":
		opts = schema.MultiSelect
	case "status":
		opts = schema.Status
	}
	if opts == nil {
		return nil
	}
	names := make([]string, len(opts.Options))
	for i, o := range opts.Options {
		names[i] = o.Name
	}
	return names
}

// Block is kept as a loosely typed object since block payloads differ per
// block type and are mostly passed through.
type Block map[string]any

func (b Block) ID() string {
	id, _ := b["id"].(string)
	return id
}

func (b Block) Type() string {
	t, _ := b["type"].(string)
	return t
}

func (b Block) HasChildren() bool {
	has, _ := b["has_children"].(bool)
	return has
}

type User struct {
	Object    string `json:"object"`
	ID        string `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type QueryOptions struct {
	Filter      any    `json:"filter,omitempty"`
	Sorts       any    `json:"sorts,omitempty"`
	PageSize    int    `json:"page_size,omitempty"`
	StartCursor string `json:"start_cursor,omitempty"`
}

type SearchOptions struct {
	Query       string `json:"query,omitempty"`
	Filter      any    `json:"filter,omitempty"`
	Sort        any    `json:"sort,omitempty"`
	PageSize    int    `json:"page_size,omitempty"`
	StartCursor string `json:"start_cursor,omitempty"`
}

func requireID(what, id string) error {
	if strings.TrimSpace(id) == "" {
		return errorf(KindConfiguration, "%s id is required", what)
	}
	return nil
}

func (c *Client) GetDatabase(ctx context.Context, databaseID string) (Database, error) {
	var out Database
	if err := requireID("database", databaseID); err != nil {
		return out, err
	}
	err := c.doJSON(ctx, RequestSpec{
		Method: http.MethodGet,
		Path:   "/v1/databases/" + url.PathEscape(databaseID),
	}, &out)
	return out, err
}

func (c *Client) QueryDatabase(ctx context.Context, databaseID string, opts QueryOptions) (List[Page], error) {
	var out List[Page]
	if err := requireID("database", databaseID); err != nil {
		return out, err
	}
	err := c.doJSON(ctx, RequestSpec{
		Method: http.MethodPost,
		Path:   "/v1/databases/" + url.PathEscape(databaseID) + "/query",
		Body:   opts,
	}, &out)
	return out, err
}

func (c *Client) GetPage(ctx context.Context, pageID string) (Page, error) {
	var out Page
	if err := requireID("page", pageID); err != nil {
		return out, err
	}
	err := c.doJSON(ctx, RequestSpec{
		Method: http.MethodGet,
		Path:   "/v1/pages/" + url.PathEscape(pageID),
	}, &out)
	return out, err
}

// CreatePage creates a page from an opaque payload (parent, properties and
// optionally children).
func (c *Client) CreatePage(ctx context.Context, payload map[string]any) (Page, error) {
	var out Page
	if payload["parent"] == nil {
		return out, errorf(KindConfiguration, "a parent is required to create a page")
	}
	err := c.doJSON(ctx, RequestSpec{
		Method: http.MethodPost,
		Path:   "/v1/pages",
		Body:   payload,
	}, &out)
	return out, err
}

func (c *Client) UpdatePage(ctx context.Context, pageID string, payload map[string]any) (Page, error) {
	var out Page
	if err := requireID("page", pageID); err != nil {
		return out, err
	}
	err := c.doJSON(ctx, RequestSpec{
		Method: http.MethodPatch,
		Path:   "/v1/pages/" + url.PathEscape(pageID),
		Body:   payload,
	}, &out)
	return out, err
}

// UpdatePageProperties is UpdatePage with only a properties object.
func (c *Client) UpdatePageProperties(ctx context.Context, pageID string, properties map[string]any) (Page, error) {
	return c.UpdatePage(ctx, pageID, map[string]any{"properties": properties})
}

// DeletePage moves the page to the trash.
func (c *Client) DeletePage(ctx context.Context, pageID string) (Page, error) {
	return c.UpdatePage(ctx, pageID, map[string]any{"archived": true})
}

func (c *Client) GetBlock(ctx context.Context, blockID string) (Block, error) {
	var out Block
	if err := requireID("block", blockID); err != nil {
		return out, err
	}
	err := c.doJSON(ctx, RequestSpec{
		Method: http.MethodGet,
		Path:   "/v1/blocks/" + url.PathEscape(blockID),
	}, &out)
	return out, err
}

func (c *Client) GetBlockChildren(ctx context.Context, blockID string, pageSize int, cursor string) (List[Block], error) {
	var out List[Block]
	if err := requireID("block", blockID); err != nil {
		return out, err
	}
	query := url.Values{}
	if pageSize > 0 {
		query.Set("page_size", strconv.Itoa(pageSize))
	}
	if cursor != "" {
		query.Set("start_cursor", cursor)
	}
	err := c.doJSON(ctx, RequestSpec{
		Method: http.MethodGet,
		Path:   "/v1/blocks/" + url.PathEscape(blockID) + "/children",
		Query:  query,
	}, &out)
	return out, err
}

func (c *Client) AppendBlockChildren(ctx context.Context, blockID string, children []Block) (List[Block], error) {
	var out List[Block]
	if err := requireID("block", blockID); err != nil {
		return out, err
	}
	err := c.doJSON(ctx, RequestSpec{
		Method: http.MethodPatch,
		Path:   "/v1/blocks/" + url.PathEscape(blockID) + "/children",
		Body:   map[string]any{"children": children},
	}, &out)
	return out, err
}

func (c *Client) UpdateBlock(ctx context.Context, blockID string, payload map[string]any) (Block, error) {
	var out Block
	if err := requireID("block", blockID); err != nil {
		return out, err
	}
	err := c.doJSON(ctx, RequestSpec{
		Method: http.MethodPatch,
		Path:   "/v1/blocks/" + url.PathEscape(blockID),
		Body:   payload,
	}, &out)
	return out, err
}

func (c *Client) DeleteBlock(ctx context.Context, blockID string) (Block, error) {
	var out Block
	if err := requireID("block", blockID); err != nil {
		return out, err
	}
	err := c.doJSON(ctx, RequestSpec{
		Method: http.MethodDelete,
		Path:   "/v1/blocks/" + url.PathEscape(blockID),
	}, &out)
	return out, err
}

// Search returns raw result objects since they may be pages or databases.
func (c *Client) Search(ctx context.Context, opts SearchOptions) (List[json.RawMessage], error) {
	var out List[json.RawMessage]
	err := c.doJSON(ctx, RequestSpec{
		Method: http.MethodPost,
		Path:   "/v1/search",
		Body:   opts,
	}, &out)
	return out, err
}

func (c *Client) GetUser(ctx context.Context, userID string) (User, error) {
	var out User
	if err := requireID("user", userID); err != nil {
		return out, err
	}
	err := c.doJSON(ctx, RequestSpec{
		Method: http.MethodGet,
		Path:   "/v1/users/" + url.PathEscape(userID),
	}, &out)
	return out, err
}

func (c *Client) ListUsers(ctx context.Context, pageSize int, cursor string) (List[User], error) {
	var out List[User]
	query := url.Values{}
	if pageSize > 0 {
		query.Set("page_size", strconv.Itoa(pageSize))
	}
	if cursor != "" {
		query.Set("start_cursor", cursor)
	}
	err := c.doJSON(ctx, RequestSpec{
		Method: http.MethodGet,
		Path:   "/v1/users",
		Query:  query,
	}, &out)
	return out, err
}
