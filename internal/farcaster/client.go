package farcaster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/castquest/castquest-backend/internal/config"
)

// ErrNotFound is returned when the provider does not know the requested
// user, cast or channel.
var ErrNotFound = errors.New("farcaster: not found")

// Client talks to a Neynar-style Farcaster API. All queries are read-only.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: config.ProviderTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

type User struct {
	FID           int64  `json:"fid"`
	Username      string `json:"username"`
	FollowerCount int    `json:"follower_count"`
	PowerBadge    bool   `json:"power_badge"`
	ViewerContext struct {
		Following bool `json:"following"`
	} `json:"viewer_context"`
}

type Cast struct {
	Hash          string `json:"hash"`
	AuthorFID     int64  `json:"author_fid"`
	ViewerContext struct {
		Liked    bool `json:"liked"`
		Recasted bool `json:"recasted"`
	} `json:"viewer_context"`
}

type Channel struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ViewerContext struct {
		Member    bool `json:"member"`
		Following bool `json:"following"`
	} `json:"viewer_context"`
}

// UserByUsername resolves a handle. viewerFID may be 0 when no
// relationship context is needed.
func (c *Client) UserByUsername(ctx context.Context, username string, viewerFID int64) (*User, error) {
	q := url.Values{"username": {username}}
	if viewerFID > 0 {
		q.Set("viewer_fid", strconv.FormatInt(viewerFID, 10))
	}

	var out struct {
		User User `json:"user"`
	}
	if err := c.get(ctx, "/user/by_username", q, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) UserByFID(ctx context.Context, fid int64) (*User, error) {
	q := url.Values{"fid": {strconv.FormatInt(fid, 10)}}

	var out struct {
		User User `json:"user"`
	}
	if err := c.get(ctx, "/user", q, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) CastByHash(ctx context.Context, hash string, viewerFID int64) (*Cast, error) {
	q := url.Values{"identifier": {hash}, "type": {"hash"}}
	if viewerFID > 0 {
		q.Set("viewer_fid", strconv.FormatInt(viewerFID, 10))
	}

	var out struct {
		Cast Cast `json:"cast"`
	}
	if err := c.get(ctx, "/cast", q, &out); err != nil {
		return nil, err
	}
	return &out.Cast, nil
}

func (c *Client) ChannelByID(ctx context.Context, id string, viewerFID int64) (*Channel, error) {
	q := url.Values{"id": {id}}
	if viewerFID > 0 {
		q.Set("viewer_fid", strconv.FormatInt(viewerFID, 10))
	}

	var out struct {
		Channel Channel `json:"channel"`
	}
	if err := c.get(ctx, "/channel", q, &out); err != nil {
		return nil, err
	}
	return &out.Channel, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
