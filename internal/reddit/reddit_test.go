package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thetagang-wheel/internal/api"
	"thetagang-wheel/internal/types"
)

var now = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

type fakePost struct {
	ID       string
	Age      time.Duration
	Stickied bool
}

func listingJSON(after string, posts ...fakePost) string {
	children := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		children = append(children, map[string]any{
			"kind": "t3",
			"data": map[string]any{
				"id":          p.ID,
				"title":       "Sold $AAPL puts",
				"selftext":    "took profit",
				"author":      "wheeler",
				"score":       12,
				"permalink":   "/r/thetagang/comments/" + p.ID + "/",
				"created_utc": float64(now.Add(-p.Age).Unix()),
				"stickied":    p.Stickied,
			},
		})
	}
	b, _ := json.Marshal(map[string]any{
		"kind": "Listing",
		"data": map[string]any{"after": after, "children": children},
	})
	return string(b)
}

func clock() time.Time { return now }

func TestFetchPostsAnonymous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/thetagang/top.json", r.URL.Path)
		assert.Equal(t, "week", r.URL.Query().Get("t"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "wheel-test", r.Header.Get("User-Agent"))
		assert.Empty(t, r.Header.Get("Authorization"))
		fmt.Fprint(w, listingJSON("", fakePost{ID: "a1", Age: time.Hour}, fakePost{ID: "a2", Age: 2 * time.Hour}))
	}))
	defer srv.Close()

	c := NewClient(api.NewClient(), "thetagang",
		WithBaseURL(srv.URL), WithUserAgent("wheel-test"), WithClock(clock))
	posts, err := c.FetchPosts(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, "a1", posts[0].ID)
	assert.Equal(t, "Sold $AAPL puts", posts[0].Title)
	assert.Equal(t, "took profit", posts[0].Body)
	assert.Equal(t, srv.URL+"/r/thetagang/comments/a1/", posts[0].URL)
	assert.True(t, posts[0].CreatedAt.Equal(now.Add(-time.Hour)))
}

func TestFetchPostsFiltersWindowAndStickied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingJSON("",
			fakePost{ID: "mod", Age: time.Hour, Stickied: true},
			fakePost{ID: "fresh", Age: 24 * time.Hour},
			fakePost{ID: "stale", Age: 10 * 24 * time.Hour},
		))
	}))
	defer srv.Close()

	c := NewClient(api.NewClient(), "thetagang", WithBaseURL(srv.URL), WithClock(clock), WithWindowDays(7))
	posts, err := c.FetchPosts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "fresh", posts[0].ID)
}

func TestFetchPostsPaginates(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			assert.Empty(t, r.URL.Query().Get("after"))
			fmt.Fprint(w, listingJSON("t3_p1", fakePost{ID: "p1", Age: time.Hour}))
			return
		}
		assert.Equal(t, "t3_p1", r.URL.Query().Get("after"))
		fmt.Fprint(w, listingJSON("", fakePost{ID: "p2", Age: time.Hour}, fakePost{ID: "p3", Age: time.Hour}))
	}))
	defer srv.Close()

	c := NewClient(api.NewClient(), "thetagang", WithBaseURL(srv.URL), WithClock(clock))
	posts, err := c.FetchPosts(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "p2", posts[1].ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchPostsOAuth(t *testing.T) {
	var tokenCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/access_token":
			atomic.AddInt32(&tokenCalls, 1)
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "id", user)
			assert.Equal(t, "secret", pass)
			fmt.Fprint(w, `{"access_token":"tok","expires_in":3600}`)
		case "/r/thetagang/top.json":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			fmt.Fprint(w, listingJSON("", fakePost{ID: "o1", Age: time.Hour}))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(api.NewClient(), "thetagang",
		WithBaseURL(srv.URL), WithOAuthURL(srv.URL), WithClock(clock),
		WithCredentials(Credentials{ClientID: "id", Secret: "secret"}))

	for range 2 {
		posts, err := c.FetchPosts(context.Background(), 5)
		require.NoError(t, err)
		require.Len(t, posts, 1)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls), "token is reused until expiry")
}

func TestFetchPostsSurfacesClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(api.NewClient(), "thetagang", WithBaseURL(srv.URL), WithClock(clock))
	_, err := c.FetchPosts(context.Background(), 5)
	var se *api.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
}

func TestFetchPostsZeroLimit(t *testing.T) {
	c := NewClient(api.NewClient(), "thetagang", WithBaseURL("http://127.0.0.1:1"))
	posts, err := c.FetchPosts(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestTimeFilter(t *testing.T) {
	assert.Equal(t, "all", timeFilter(0))
	assert.Equal(t, "day", timeFilter(1))
	assert.Equal(t, "week", timeFilter(7))
	assert.Equal(t, "month", timeFilter(30))
	assert.Equal(t, "year", timeFilter(200))
	assert.Equal(t, "all", timeFilter(1000))
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.json")
	posts := []types.Post{
		{ID: "1", Title: "a"},
		{ID: "2", Title: "b"},
		{ID: "3", Title: "c"},
	}
	b, err := json.Marshal(posts)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))

	got, err := FileSource{Path: path}.FetchPosts(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[1].ID)

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing.json")}.FetchPosts(context.Background(), 2)
	assert.Error(t, err)
}
