package channels

import (
	"fmt"
	"strings"
)

// Proxy describes an optional outbound proxy for a channel's uploads.
type Proxy struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Channel maps a source channel to a destination account.
type Channel struct {
	Name               string `yaml:"name"`
	ChannelID          string `yaml:"channel_id"`
	DestinationAccount string `yaml:"destination_account"`
	Proxy              *Proxy `yaml:"proxy,omitempty"`
}

type document struct {
	Channels []Channel `yaml:"channels"`
}

// ParseSpec parses a command-line channel spec of the form
// "name,channel_id[,destination_account]".
func ParseSpec(spec string) (Channel, error) {
	parts := strings.Split(spec, ",")
	if len(parts) < 2 {
		return Channel{}, fmt.Errorf("expected 'name,channel_id[,account]', got %q", spec)
	}

	ch := Channel{
		Name:               strings.TrimSpace(parts[0]),
		ChannelID:          strings.TrimSpace(parts[1]),
		DestinationAccount: "default",
	}
	if ch.Name == "" || ch.ChannelID == "" {
		return Channel{}, fmt.Errorf("name and channel_id must not be empty in %q", spec)
	}

	if len(parts) >= 3 {
		if account := strings.TrimSpace(parts[2]); account != "" {
			ch.DestinationAccount = account
		}
	}

	return ch, nil
}
