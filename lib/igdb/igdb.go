package igdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"notion-helper/lib/namematch"
	"notion-helper/lib/restyutil"
	"notion-helper/lib/tokencache"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("notion-helper/lib/igdb")

var ErrNoMatch = errors.New("no matching game found")

const (
	DefaultTokenURL = "https://id.twitch.tv/oauth2/token"
	DefaultBaseURL  = "https://api.igdb.com/v4"
)

type Options struct {
	ClientID     string
	ClientSecret string
	// where access tokens are cached between runs, defaults to memory
	Tokens   tokencache.Store
	TokenURL string
	BaseURL  string
	Match    namematch.Options
	Timeout  time.Duration
	Now      func() time.Time
}

type Client struct {
	opts Options
	http *resty.Client
}

type AlternativeName struct {
	Name string `json:"name"`
}

type Game struct {
	ID               int64             `json:"id"`
	Name             string            `json:"name"`
	AlternativeNames []AlternativeName `json:"alternative_names"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func NewClient(opts Options) (*Client, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, fmt.Errorf("igdb: client id and secret are required")
	}
	if opts.Tokens == nil {
		opts.Tokens = tokencache.NewMemoryStore()
	}
	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Match == (namematch.Options{}) {
		opts.Match = namematch.DefaultOptions()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetLogger(restyutil.SlogLogger{})
	restyutil.InstrumentClient(client, tracer, nil)

	return &Client{opts: opts, http: client}, nil
}

func (c *Client) scope() string {
	return "igdb:" + c.opts.ClientID
}

func (c *Client) fetchToken(ctx context.Context) (tokencache.Token, error) {
	ctx, span := tracer.Start(ctx, "fetchToken")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"client_id":     c.opts.ClientID,
			"client_secret": c.opts.ClientSecret,
			"grant_type":    "client_credentials",
		}).
		Post(c.opts.TokenURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to request token")
		return tokencache.Token{}, err
	}
	if !res.IsSuccess() {
		err = fmt.Errorf("igdb: token request failed with status %d", res.StatusCode())
		span.SetStatus(codes.Error, err.Error())
		return tokencache.Token{}, err
	}

	var body tokenResponse
	err = json.Unmarshal(res.Body(), &body)
	if err != nil {
		span.SetStatus(codes.Error, "failed to decode token")
		return tokencache.Token{}, fmt.Errorf("igdb: decode token: %w", err)
	}
	if body.AccessToken == "" {
		return tokencache.Token{}, fmt.Errorf("igdb: token response has no access_token")
	}
	return tokencache.Token{
		AccessToken: body.AccessToken,
		ExpiresAt:   c.opts.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	token, err := tokencache.GetOrFetch(ctx, c.opts.Tokens, c.scope(), c.opts.Now, c.fetchToken)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

func searchQuery(name string) string {
	escaped := strings.ReplaceAll(name, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return fmt.Sprintf(`search "%s"; fields name,alternative_names.name; where version_parent = null;`, escaped)
}

// SearchGames runs a full text search. A rejected token is dropped from
// the cache and the search is tried once more with a fresh one.
func (c *Client) SearchGames(ctx context.Context, name string) ([]Game, error) {
	ctx, span := tracer.Start(ctx, "SearchGames")
	defer span.End()
	span.SetAttributes(attribute.String("name", name))

	for attempt := 0; ; attempt++ {
		token, err := c.token(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to get token")
			return nil, err
		}

		res, err := c.http.R().
			SetContext(ctx).
			SetHeader("Client-ID", c.opts.ClientID).
			SetHeader("Content-Type", "text/plain").
			SetAuthToken(token).
			SetBody(searchQuery(name)).
			Post(strings.TrimSuffix(c.opts.BaseURL, "/") + "/games")
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to search")
			return nil, err
		}

		if res.StatusCode() == http.StatusUnauthorized && attempt == 0 {
			err = c.opts.Tokens.Invalidate(ctx, c.scope())
			if err != nil {
				return nil, err
			}
			continue
		}
		if !res.IsSuccess() {
			err = fmt.Errorf("igdb: search failed with status %d", res.StatusCode())
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		var games []Game
		err = json.Unmarshal(res.Body(), &games)
		if err != nil {
			span.SetStatus(codes.Error, "failed to decode games")
			return nil, fmt.Errorf("igdb: decode games: %w", err)
		}
		span.SetAttributes(attribute.Int("results", len(games)))
		return games, nil
	}
}

func Candidates(games []Game) []namematch.Candidate {
	out := make([]namematch.Candidate, len(games))
	for i, g := range games {
		aliases := make([]string, 0, len(g.AlternativeNames))
		for _, alt := range g.AlternativeNames {
			aliases = append(aliases, alt.Name)
		}
		out[i] = namematch.Candidate{
			Key:     fmt.Sprint(g.ID),
			Name:    g.Name,
			Aliases: aliases,
		}
	}
	return out
}

// Rank searches for name and scores every result against it.
func (c *Client) Rank(ctx context.Context, name string) ([]namematch.Scored, error) {
	games, err := c.SearchGames(ctx, name)
	if err != nil {
		return nil, err
	}
	return namematch.Rank(name, Candidates(games), c.opts.Match), nil
}

// EnglishName returns the primary name of the game that best matches name,
// which is usually the localized title found on a store page.
func (c *Client) EnglishName(ctx context.Context, name string) (string, error) {
	games, err := c.SearchGames(ctx, name)
	if err != nil {
		return "", err
	}
	best, ok := namematch.Best(name, Candidates(games), c.opts.Match)
	if !ok {
		return "", ErrNoMatch
	}
	return best.Candidate.Name, nil
}
