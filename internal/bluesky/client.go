package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/blackmichael/bluesky-monitor/internal/domain"
)

const defaultPDS = "https://bsky.social"

// Client is a minimal BlueSky/AT Protocol API client covering session
// creation, keyword search, and author feeds.
type Client struct {
	pds        string
	httpClient *http.Client

	identifier string
	password   string

	// populated after Login
	accessJwt string
	did       string
}

// NewClient creates a new BlueSky API client. If pds is empty, it defaults
// to https://bsky.social. Use an App Password, not the account password.
func NewClient(pds, identifier, password string) *Client {
	if pds == "" {
		pds = defaultPDS
	}
	return &Client{
		pds:        pds,
		identifier: identifier,
		password:   password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Login authenticates with the PDS and stores the session token for the
// current run. A non-success response is fatal: the caller must abort.
func (c *Client) Login(ctx context.Context) error {
	body := map[string]string{
		"identifier": c.identifier,
		"password":   c.password,
	}

	var resp createSessionResponse
	if err := c.post(ctx, "/xrpc/com.atproto.server.createSession", body, &resp); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	c.accessJwt = resp.AccessJwt
	c.did = resp.DID
	return nil
}

// DID returns the authenticated user's DID. Only valid after Login.
func (c *Client) DID() string {
	return c.did
}

// SearchPosts runs an authenticated keyword search across the public
// firehose, newest first, capped at limit results.
func (c *Client) SearchPosts(ctx context.Context, query string, limit int) ([]domain.RawPost, error) {
	if c.accessJwt == "" {
		return nil, fmt.Errorf("not authenticated: call Login first")
	}

	params := url.Values{
		"q":     {query},
		"limit": {fmt.Sprintf("%d", limit)},
		"sort":  {"latest"},
	}

	var resp searchPostsResponse
	if err := c.get(ctx, "/xrpc/app.bsky.feed.searchPosts", params, &resp); err != nil {
		return nil, fmt.Errorf("search posts: %w", err)
	}

	raw := make([]domain.RawPost, 0, len(resp.Posts))
	for _, p := range resp.Posts {
		raw = append(raw, toRawPost(p))
	}
	return raw, nil
}

// AuthorFeed retrieves the given actor's own recent feed, capped at limit
// results.
func (c *Client) AuthorFeed(ctx context.Context, actor string, limit int) ([]domain.RawPost, error) {
	if c.accessJwt == "" {
		return nil, fmt.Errorf("not authenticated: call Login first")
	}

	params := url.Values{
		"actor": {actor},
		"limit": {fmt.Sprintf("%d", limit)},
	}

	var resp authorFeedResponse
	if err := c.get(ctx, "/xrpc/app.bsky.feed.getAuthorFeed", params, &resp); err != nil {
		return nil, fmt.Errorf("fetch author feed: %w", err)
	}

	raw := make([]domain.RawPost, 0, len(resp.Feed))
	for _, item := range resp.Feed {
		raw = append(raw, toRawPost(item.Post))
	}
	return raw, nil
}

func toRawPost(p apiPost) domain.RawPost {
	return domain.RawPost{
		URI:          p.URI,
		CID:          p.CID,
		AuthorHandle: p.Author.Handle,
		Text:         p.Record.Text,
		CreatedAt:    p.Record.CreatedAt,
		Facets:       p.Record.Facets,
	}
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pds+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessJwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessJwt)
	}

	return c.do(req, result)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pds+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessJwt)

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

type createSessionResponse struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
	Handle    string `json:"handle"`
}

// apiPost is the wire shape shared by searchPosts and getAuthorFeed.
type apiPost struct {
	URI    string `json:"uri"`
	CID    string `json:"cid"`
	Author struct {
		Handle string `json:"handle"`
	} `json:"author"`
	Record struct {
		Text      string          `json:"text"`
		CreatedAt string          `json:"createdAt"`
		Facets    json.RawMessage `json:"facets,omitempty"`
	} `json:"record"`
}

type searchPostsResponse struct {
	Posts []apiPost `json:"posts"`
}

type authorFeedResponse struct {
	Feed []struct {
		Post apiPost `json:"post"`
	} `json:"feed"`
}
