package reddit

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"thetagang-wheel/internal/api"
	"thetagang-wheel/internal/logger"
	"thetagang-wheel/internal/types"
)

const (
	DefaultBaseURL  = "https://www.reddit.com"
	DefaultOAuthURL = "https://oauth.reddit.com"

	pageSize = 100
)

type Credentials struct {
	ClientID string
	Secret   string
}

// Client fetches a subreddit's top listing. With credentials it uses the app-only OAuth flow,
// otherwise the public JSON endpoint.
type Client struct {
	http       *api.Client
	baseURL    string
	oauthURL   string
	subreddit  string
	userAgent  string
	windowDays int
	creds      Credentials
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithOAuthURL(u string) Option {
	return func(c *Client) { c.oauthURL = strings.TrimRight(u, "/") }
}

func WithCredentials(creds Credentials) Option {
	return func(c *Client) { c.creds = creds }
}

// WithWindowDays drops posts older than days; 0 keeps everything the listing returns
func WithWindowDays(days int) Option {
	return func(c *Client) { c.windowDays = days }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(httpClient *api.Client, subreddit string, opts ...Option) *Client {
	c := &Client{
		http:       httpClient,
		baseURL:    DefaultBaseURL,
		oauthURL:   DefaultOAuthURL,
		subreddit:  subreddit,
		userAgent:  "thetagang-wheel/0.1",
		windowDays: 7,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type listing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data struct {
				ID         string  `json:"id"`
				Title      string  `json:"title"`
				Selftext   string  `json:"selftext"`
				Author     string  `json:"author"`
				Score      int     `json:"score"`
				Permalink  string  `json:"permalink"`
				CreatedUTC float64 `json:"created_utc"`
				Stickied   bool    `json:"stickied"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// FetchPosts returns up to limit top posts inside the time window, skipping stickied posts
func (c *Client) FetchPosts(ctx context.Context, limit int) ([]types.Post, error) {
	if limit <= 0 {
		return nil, nil
	}
	headers, base, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if c.windowDays > 0 {
		cutoff = c.now().Add(-time.Duration(c.windowDays) * 24 * time.Hour)
	}

	var posts []types.Post
	after := ""
	for len(posts) < limit {
		q := url.Values{}
		q.Set("t", timeFilter(c.windowDays))
		q.Set("limit", fmt.Sprint(min(pageSize, limit-len(posts))))
		q.Set("raw_json", "1")
		if after != "" {
			q.Set("after", after)
		}
		u := fmt.Sprintf("%s/r/%s/top.json?%s", base, url.PathEscape(c.subreddit), q.Encode())

		req := api.NewRequest(http.MethodGet, u).WithContext(ctx)
		for k, v := range headers {
			req.WithHeader(k, v)
		}
		resp, err := c.http.DoWithRetry(req, nil)
		if err != nil {
			return nil, fmt.Errorf("reddit listing: %w", err)
		}
		var l listing
		if err := resp.ParseJSON(&l); err != nil {
			return nil, err
		}

		for _, child := range l.Data.Children {
			d := child.Data
			if d.Stickied {
				continue
			}
			created := fromUnix(d.CreatedUTC)
			if !cutoff.IsZero() && created.Before(cutoff) {
				continue
			}
			posts = append(posts, types.Post{
				ID:        d.ID,
				Title:     d.Title,
				Body:      d.Selftext,
				Author:    d.Author,
				Score:     d.Score,
				URL:       c.baseURL + d.Permalink,
				CreatedAt: created,
			})
			if len(posts) == limit {
				break
			}
		}

		if l.Data.After == "" || len(l.Data.Children) == 0 {
			break
		}
		after = l.Data.After
	}

	logger.Info(ctx, "Reddit posts fetched", "subreddit", c.subreddit, "posts", len(posts), "window_days", c.windowDays)
	return posts, nil
}

func (c *Client) authHeaders(ctx context.Context) (map[string]string, string, error) {
	headers := map[string]string{"User-Agent": c.userAgent}
	if c.creds.ClientID == "" || c.creds.Secret == "" {
		return headers, c.baseURL, nil
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, "", err
	}
	headers["Authorization"] = "Bearer " + token
	return headers, c.oauthURL, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	basic := base64.StdEncoding.EncodeToString([]byte(c.creds.ClientID + ":" + c.creds.Secret))
	resp, err := c.http.POSTForm(ctx, c.baseURL+"/api/v1/access_token",
		url.Values{"grant_type": {"client_credentials"}},
		map[string]string{"Authorization": "Basic " + basic, "User-Agent": c.userAgent})
	if err != nil {
		return "", fmt.Errorf("reddit token: %w", err)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
	}
	if err := resp.ParseJSON(&tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("reddit token: %s", tok.Error)
	}

	c.token = tok.AccessToken
	// refresh a minute early
	c.tokenExpiry = c.now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}

func timeFilter(windowDays int) string {
	switch {
	case windowDays <= 0:
		return "all"
	case windowDays <= 1:
		return "day"
	case windowDays <= 7:
		return "week"
	case windowDays <= 31:
		return "month"
	case windowDays <= 366:
		return "year"
	}
	return "all"
}

func fromUnix(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

// FileSource replays posts saved as a JSON array, for offline runs
type FileSource struct {
	Path string
}

func (f FileSource) FetchPosts(ctx context.Context, limit int) ([]types.Post, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	var posts []types.Post
	if err := json.Unmarshal(b, &posts); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}
