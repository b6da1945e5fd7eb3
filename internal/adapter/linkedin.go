package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/postwave/post-gateway/internal/core"
)

const defaultLinkedInBaseURL = "https://api.linkedin.com"

// LinkedIn publishes UGC posts via the v2 API. AuthorURN is the default
// author (urn:li:person:... or urn:li:organization:...); a post can override
// it through the "linkedin_author" metadata key.
type LinkedIn struct {
	BaseURL   string
	AuthorURN string
	Client    *http.Client

	now func() time.Time
}

func NewLinkedIn(authorURN string) *LinkedIn {
	return &LinkedIn{BaseURL: defaultLinkedInBaseURL, AuthorURN: authorURN, Client: &http.Client{}, now: time.Now}
}

// SetNow overrides the clock. Test hook.
func (l *LinkedIn) SetNow(now func() time.Time) { l.now = now }

func (l *LinkedIn) timeNow() time.Time {
	if l.now == nil {
		return time.Now()
	}
	return l.now()
}

type ugcPostRequest struct {
	Author          string         `json:"author"`
	LifecycleState  string         `json:"lifecycleState"`
	SpecificContent map[string]any `json:"specificContent"`
	Visibility      map[string]any `json:"visibility"`
}

func (l *LinkedIn) Dispatch(ctx context.Context, post core.ScheduledPost, creds core.Credentials) Response {
	author := l.AuthorURN
	if urn, ok := post.Metadata["linkedin_author"]; ok && urn != "" {
		author = urn
	}

	payload, _ := json.Marshal(ugcPostRequest{
		Author:         author,
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]any{"text": composeText(post, 0)},
				"shareMediaCategory": "NONE",
			},
		},
		Visibility: map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.BaseURL+"/v2/ugcPosts", bytes.NewReader(payload))
	if err != nil {
		return Response{Error: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := l.Client.Do(req)
	if err != nil {
		return Response{Error: err.Error()}
	}
	defer resp.Body.Close()

	out := Response{StatusCode: resp.StatusCode}
	out.RateLimitRemaining, out.RateLimitReset = linkedinRateHeaders(resp.Header, l.timeNow())

	if resp.StatusCode == http.StatusCreated {
		id := resp.Header.Get("X-RestLi-Id")
		out.Success = true
		out.ExternalID = id
		if id != "" {
			out.ExternalURL = "https://www.linkedin.com/feed/update/" + id + "/"
		}
		return out
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var apiErr struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &apiErr)
	out.Error = apiErr.Message
	if out.Error == "" {
		out.Error = "linkedin: unexpected status " + strconv.Itoa(resp.StatusCode)
	}
	return out
}

func (l *LinkedIn) Verify(ctx context.Context, creds core.Credentials) ConnStatus {
	if creds.AccessToken == "" {
		return Disconnected
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.BaseURL+"/v2/me", nil)
	if err != nil {
		return StatusError
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := l.Client.Do(req)
	if err != nil {
		return StatusError
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return Connected
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Unauthorized
	default:
		return StatusError
	}
}

// linkedinRateHeaders reads Retry-After (seconds) into a reset time; LinkedIn
// does not expose a remaining-calls header on this endpoint.
func linkedinRateHeaders(h http.Header, now time.Time) (*int, *time.Time) {
	if v := h.Get("Retry-After"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			t := now.Add(time.Duration(sec) * time.Second)
			return nil, &t
		}
	}
	return nil, nil
}
