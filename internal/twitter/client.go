// Package twitter is a small client for the third-party Twitter/X data API.
// It looks up accounts and searches tweets, normalizing the loosely shaped
// responses into domain types.
package twitter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tbourn/engrish-backend/internal/domain"
)

var (
	// ErrNotFound is returned when the upstream reports no such account.
	ErrNotFound = errors.New("twitter: account not found")
	// ErrUnavailable wraps transport failures, timeouts, non-2xx replies and
	// a missing API key.
	ErrUnavailable = errors.New("twitter: upstream unavailable")
)

// maxBody caps how much of an upstream response is read.
const maxBody = 8 << 20

// Client talks to the upstream API with a per-request timeout.
type Client struct {
	base   string
	apiKey string
	http   *http.Client
	now    func() time.Time
}

// NewClient returns a client for base (e.g. "https://api.twitterapi.io").
// A timeout <= 0 defaults to 10s.
func NewClient(base, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

// LookupUser resolves an account by username.
func (c *Client) LookupUser(ctx context.Context, username string) (*domain.SocialAccount, error) {
	q := url.Values{"userName": {username}}
	body, status, err := c.get(ctx, "/twitter/user/info", q)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status/100 != 2 {
		return nil, fmt.Errorf("%w: user info status %d", ErrUnavailable, status)
	}

	root := gjson.ParseBytes(body)
	data := first(root, "data", "user")
	id := first(data, "id", "id_str", "userId").String()
	if id == "" {
		return nil, ErrNotFound
	}
	acct := &domain.SocialAccount{
		ID:              id,
		Username:        first(data, "userName", "screen_name", "username").String(),
		Name:            first(data, "name").String(),
		ProfileImageURL: first(data, "profilePicture", "profile_image_url_https", "profile_image_url").String(),
	}
	if acct.Username == "" {
		acct.Username = username
	}
	return acct, nil
}

// SearchMentions runs query against the latest-tweets search and returns at
// most maxResults normalized tweets.
func (c *Client) SearchMentions(ctx context.Context, query string, maxResults int) ([]domain.Tweet, error) {
	q := url.Values{"query": {query}, "queryType": {"Latest"}}
	if maxResults > 0 {
		q.Set("count", strconv.Itoa(maxResults))
	}
	body, status, err := c.get(ctx, "/twitter/tweet/advanced_search", q)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, fmt.Errorf("%w: search status %d", ErrUnavailable, status)
	}
	tweets := ParseTweets(body, c.now())
	if maxResults > 0 && len(tweets) > maxResults {
		tweets = tweets[:maxResults]
	}
	return tweets, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, int, error) {
	if c.apiKey == "" {
		return nil, 0, fmt.Errorf("%w: api key not configured", ErrUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	return body, resp.StatusCode, nil
}
