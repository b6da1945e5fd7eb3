package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/postwave/post-gateway/internal/core"
)

const defaultTwitterBaseURL = "https://api.twitter.com"

// Twitter posts tweets through the v2 API.
type Twitter struct {
	BaseURL string
	Client  *http.Client
}

func NewTwitter() *Twitter {
	return &Twitter{BaseURL: defaultTwitterBaseURL, Client: &http.Client{}}
}

type tweetRequest struct {
	Text string `json:"text"`
}

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

func (t *Twitter) Dispatch(ctx context.Context, post core.ScheduledPost, creds core.Credentials) Response {
	payload, _ := json.Marshal(tweetRequest{Text: composeText(post, 280)})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/2/tweets", bytes.NewReader(payload))
	if err != nil {
		return Response{Error: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		// Network error or timeout: StatusCode 0 marks it transient.
		return Response{Error: err.Error()}
	}
	defer resp.Body.Close()

	out := Response{StatusCode: resp.StatusCode}
	out.RateLimitRemaining, out.RateLimitReset = twitterRateHeaders(resp.Header)

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var tr tweetResponse
	_ = json.Unmarshal(body, &tr)

	if resp.StatusCode == http.StatusCreated && tr.Data.ID != "" {
		out.Success = true
		out.ExternalID = tr.Data.ID
		out.ExternalURL = "https://twitter.com/i/web/status/" + tr.Data.ID
		return out
	}

	out.Error = tr.Detail
	if out.Error == "" {
		out.Error = tr.Title
	}
	if out.Error == "" {
		out.Error = "twitter: unexpected status " + strconv.Itoa(resp.StatusCode)
	}
	return out
}

func (t *Twitter) Verify(ctx context.Context, creds core.Credentials) ConnStatus {
	if creds.AccessToken == "" {
		return Disconnected
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+"/2/users/me", nil)
	if err != nil {
		return StatusError
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := t.Client.Do(req)
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

// twitterRateHeaders reads the x-rate-limit-* response headers.
// Reset is a unix timestamp in seconds.
func twitterRateHeaders(h http.Header) (*int, *time.Time) {
	var remaining *int
	var reset *time.Time
	if v := h.Get("x-rate-limit-remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			remaining = &n
		}
	}
	if v := h.Get("x-rate-limit-reset"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			t := time.Unix(sec, 0)
			reset = &t
		}
	}
	return remaining, reset
}

// composeText joins body and hashtags, trimming to maxLen when the platform
// enforces one (0 means unbounded).
func composeText(post core.ScheduledPost, maxLen int) string {
	text := post.Body
	if len(post.Hashtags) > 0 {
		tags := make([]string, 0, len(post.Hashtags))
		for _, tag := range post.Hashtags {
			if tag == "" {
				continue
			}
			if !strings.HasPrefix(tag, "#") {
				tag = "#" + tag
			}
			tags = append(tags, tag)
		}
		if len(tags) > 0 {
			text = text + "\n\n" + strings.Join(tags, " ")
		}
	}
	if maxLen > 0 {
		if r := []rune(text); len(r) > maxLen {
			text = string(r[:maxLen])
		}
	}
	return text
}
