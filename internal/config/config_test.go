package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	require.Equal(t, "0.0.0.0:8080", cfg.ListenAddr)
	require.Equal(t, 60*time.Second, cfg.PollInterval)
	require.Equal(t, 100, cfg.BatchSize)
	require.Equal(t, 30*time.Second, cfg.CallTimeout)
	require.Equal(t, time.Hour, cfg.RateLimitWindow)
	require.Equal(t, 15*time.Minute, cfg.RateLimitCooldown)
	require.Equal(t, 3, cfg.DefaultMaxRetries)
	require.Equal(t, 15, cfg.ChannelLimits["twitter"])
	require.Equal(t, 5, cfg.ChannelLimits["linkedin"])
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "5s")
	t.Setenv("DEFAULT_MAX_RETRIES", "1")
	t.Setenv("CHANNEL_LIMITS", "twitter=20, mastodon=30")

	cfg := Load()
	require.Equal(t, 5*time.Second, cfg.PollInterval)
	require.Equal(t, 1, cfg.DefaultMaxRetries)
	require.Equal(t, 20, cfg.ChannelLimits["twitter"])
	require.Equal(t, 30, cfg.ChannelLimits["mastodon"])
	// Untouched defaults survive a partial override.
	require.Equal(t, 5, cfg.ChannelLimits["linkedin"])
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("BATCH_SIZE", "many")
	t.Setenv("CHANNEL_LIMITS", "nonsense")

	cfg := Load()
	require.Equal(t, 60*time.Second, cfg.PollInterval)
	require.Equal(t, 100, cfg.BatchSize)
	require.Equal(t, 15, cfg.ChannelLimits["twitter"])
}

func TestLoadChannels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
channels:
  - name: twitter
    posts_per_hour: 20
    access_token: tok-tw
  - name: linkedin
    posts_per_hour: 3
    access_token: tok-li
    expires_at: 2027-01-01T00:00:00Z
`), 0o600))

	entries, err := LoadChannels(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "twitter", entries[0].Name)
	require.Equal(t, 20, entries[0].PostsPerHour)
	require.Equal(t, "tok-tw", entries[0].AccessToken)
	require.Nil(t, entries[0].ExpiresAt)
	require.NotNil(t, entries[1].ExpiresAt)
	require.Equal(t, 2027, entries[1].ExpiresAt.Year())
}

func TestLoadChannelsRejectsUnnamedEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	require.NoError(t, os.WriteFile(path, []byte("channels:\n  - posts_per_hour: 5\n"), 0o600))

	_, err := LoadChannels(path)
	require.Error(t, err)
}

func TestLoadChannelsMissingFile(t *testing.T) {
	_, err := LoadChannels(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
