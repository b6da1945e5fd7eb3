package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/postwave/post-gateway/internal/core"
)

func testLinkedIn(srv *httptest.Server, authorURN string) *LinkedIn {
	return &LinkedIn{BaseURL: srv.URL, AuthorURN: authorURN, Client: srv.Client()}
}

func TestLinkedInDispatchSuccess(t *testing.T) {
	var got ugcPostRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/ugcPosts", r.URL.Path)
		require.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("X-RestLi-Id", "urn:li:share:42")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	post := core.ScheduledPost{Body: "we are hiring"}
	resp := testLinkedIn(srv, "urn:li:person:abc").Dispatch(context.Background(), post, core.Credentials{AccessToken: "tok"})

	require.True(t, resp.Success)
	require.Equal(t, "urn:li:share:42", resp.ExternalID)
	require.Equal(t, "https://www.linkedin.com/feed/update/urn:li:share:42/", resp.ExternalURL)
	require.Equal(t, "urn:li:person:abc", got.Author)
	require.Equal(t, "PUBLISHED", got.LifecycleState)
}

func TestLinkedInAuthorOverride(t *testing.T) {
	var got ugcPostRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("X-RestLi-Id", "urn:li:share:7")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	post := core.ScheduledPost{
		Body:     "org update",
		Metadata: map[string]string{"linkedin_author": "urn:li:organization:99"},
	}
	resp := testLinkedIn(srv, "urn:li:person:abc").Dispatch(context.Background(), post, core.Credentials{AccessToken: "tok"})

	require.True(t, resp.Success)
	require.Equal(t, "urn:li:organization:99", got.Author)
}

func TestLinkedInDispatchAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"throttled"}`))
	}))
	defer srv.Close()

	li := testLinkedIn(srv, "urn:li:person:abc")
	now := time.Now()
	li.SetNow(func() time.Time { return now })
	resp := li.Dispatch(context.Background(), core.ScheduledPost{Body: "x"}, core.Credentials{AccessToken: "tok"})

	require.False(t, resp.Success)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "throttled", resp.Error)
	require.NotNil(t, resp.RateLimitReset)
	require.Equal(t, now.Add(120*time.Second), *resp.RateLimitReset)
}

func TestLinkedInVerify(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/me", r.URL.Path)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	li := testLinkedIn(srv, "")
	ctx := context.Background()

	require.Equal(t, Connected, li.Verify(ctx, core.Credentials{AccessToken: "tok"}))

	status = http.StatusForbidden
	require.Equal(t, Unauthorized, li.Verify(ctx, core.Credentials{AccessToken: "tok"}))

	require.Equal(t, Disconnected, li.Verify(ctx, core.Credentials{}))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	tw := &Twitter{}
	r.Register("twitter", tw)
	r.Register("linkedin", &LinkedIn{})

	a, ok := r.Lookup("twitter")
	require.True(t, ok)
	require.Same(t, tw, a)

	_, ok = r.Lookup("myspace")
	require.False(t, ok)

	require.Equal(t, []string{"linkedin", "twitter"}, r.Channels())
}
