package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"
)

// ChannelEntry is one row of the channels file: a per-channel quota plus the
// credentials supplied by the external refresh collaborator.
type ChannelEntry struct {
	Name         string     `yaml:"name"`
	PostsPerHour int        `yaml:"posts_per_hour"`
	AccessToken  string     `yaml:"access_token"`
	ExpiresAt    *time.Time `yaml:"expires_at"`
}

type channelsFile struct {
	Channels []ChannelEntry `yaml:"channels"`
}

// LoadChannels parses a channels YAML file:
//
//	channels:
//	  - name: twitter
//	    posts_per_hour: 15
//	    access_token: "..."
func LoadChannels(path string) ([]ChannelEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channels file: %w", err)
	}
	var f channelsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse channels file: %w", err)
	}
	for i, c := range f.Channels {
		if c.Name == "" {
			return nil, fmt.Errorf("channels file: entry %d has no name", i)
		}
	}
	return f.Channels, nil
}
