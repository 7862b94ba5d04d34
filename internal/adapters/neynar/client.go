// Package neynar is a typed client for the Farcaster social-graph API.
package neynar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/okian/somurie/internal/domain/model"
	"github.com/okian/somurie/pkg/metrics"
)

// Default client configuration constants.
const (
	DefaultBaseURL  = "https://api.neynar.com"
	defaultTimeout  = 15 * time.Second
	maxErrorBody    = 512
	endpointUsers   = "user_bulk"
	endpointCasts   = "user_casts"
	pathUserBulk    = "/v2/farcaster/user/bulk"
	pathCastsOfUser = "/v2/farcaster/feed/user/casts"
)

// Client talks to the Neynar v2 API. One call per method; retries and rate
// limiting belong to the caller.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewClient creates a client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: defaultTimeout},
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiUser struct {
	FID            int64    `json:"fid"`
	Username       string   `json:"username"`
	DisplayName    string   `json:"display_name"`
	PfpURL         string   `json:"pfp_url"`
	FollowerCount  *int     `json:"follower_count"`
	FollowingCount *int     `json:"following_count"`
	PowerBadge     bool     `json:"power_badge"`
	Score          *float64 `json:"score"`
	Experimental   *struct {
		NeynarUserScore *float64 `json:"neynar_user_score"`
	} `json:"experimental"`
}

type userBulkResponse struct {
	Users *[]apiUser `json:"users"`
}

type apiCast struct {
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
	Reactions *struct {
		LikesCount   int `json:"likes_count"`
		RecastsCount int `json:"recasts_count"`
	} `json:"reactions"`
	Replies *struct {
		Count int `json:"count"`
	} `json:"replies"`
}

type castsResponse struct {
	Casts *[]apiCast `json:"casts"`
	Next  *struct {
		Cursor *string `json:"cursor"`
	} `json:"next"`
}

// FetchUserProfile returns the profile of fid.
func (c *Client) FetchUserProfile(ctx context.Context, fid int64) (model.CreatorProfile, error) {
	q := url.Values{}
	q.Set("fids", strconv.FormatInt(fid, 10))

	var body userBulkResponse
	if err := c.get(ctx, endpointUsers, pathUserBulk, q, &body); err != nil {
		return model.CreatorProfile{}, err
	}
	if body.Users == nil {
		return model.CreatorProfile{}, shapeError(endpointUsers, "missing users")
	}

	for _, u := range *body.Users {
		if u.FID != fid {
			continue
		}
		if u.FollowerCount == nil || u.FollowingCount == nil {
			return model.CreatorProfile{}, shapeError(endpointUsers, "missing follower counts")
		}
		return model.CreatorProfile{
			ID:              u.FID,
			Handle:          u.Username,
			DisplayName:     u.DisplayName,
			PfpURL:          u.PfpURL,
			FollowerCount:   *u.FollowerCount,
			FollowingCount:  *u.FollowingCount,
			HasBadge:        u.PowerBadge,
			ReputationScore: u.reputation(),
		}, nil
	}
	return model.CreatorProfile{}, &UpstreamError{Endpoint: endpointUsers, StatusCode: http.StatusOK, Err: ErrUserNotFound}
}

func (u apiUser) reputation() float64 {
	if u.Score != nil {
		return *u.Score
	}
	if u.Experimental != nil && u.Experimental.NeynarUserScore != nil {
		return *u.Experimental.NeynarUserScore
	}
	return 0
}

// FetchPostsPage returns one page of fid's casts starting at cursor.
func (c *Client) FetchPostsPage(ctx context.Context, fid int64, cursor string, limit int) (model.PostsPage, error) {
	q := url.Values{}
	q.Set("fid", strconv.FormatInt(fid, 10))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("include_replies", "true")
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var body castsResponse
	if err := c.get(ctx, endpointCasts, pathCastsOfUser, q, &body); err != nil {
		return model.PostsPage{}, err
	}
	if body.Casts == nil {
		return model.PostsPage{}, shapeError(endpointCasts, "missing casts")
	}

	page := model.PostsPage{Posts: make([]model.PostMetric, 0, len(*body.Casts))}
	for _, cast := range *body.Casts {
		if cast.Timestamp.IsZero() {
			return model.PostsPage{}, shapeError(endpointCasts, "cast without timestamp")
		}
		pm := model.PostMetric{ID: cast.Hash, Timestamp: cast.Timestamp}
		if cast.Reactions != nil {
			pm.LikeCount = cast.Reactions.LikesCount
			pm.RecastCount = cast.Reactions.RecastsCount
		}
		if cast.Replies != nil {
			pm.ReplyCount = cast.Replies.Count
		}
		page.Posts = append(page.Posts, pm)
	}
	if body.Next != nil && body.Next.Cursor != nil {
		page.NextCursor = *body.Next.Cursor
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, q url.Values, out any) error {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.RecordUpstreamRequest(endpoint, status, float64(time.Since(start).Milliseconds()))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", endpoint, err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return &UpstreamError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("status %d: %s", resp.StatusCode, snippet),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func shapeError(endpoint, msg string) error {
	return &UpstreamError{Endpoint: endpoint, StatusCode: http.StatusOK, Err: fmt.Errorf("%w: %s", ErrUnexpectedShape, msg)}
}
