package upload

import (
	"fmt"
	"net/url"

	"github.com/mkorzh/tube-relay/app/channels"
)

// ProxyConfig is the single explicit proxy representation used by upload
// workers. The zero value means no proxy.
type ProxyConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// ProxyFromChannel converts a channel's optional proxy descriptor. The
// boolean reports whether a proxy is configured at all.
func ProxyFromChannel(ch channels.Channel) (ProxyConfig, bool) {
	if ch.Proxy == nil || ch.Proxy.Host == "" {
		return ProxyConfig{}, false
	}
	return ProxyConfig{
		Host:     ch.Proxy.Host,
		Port:     ch.Proxy.Port,
		Username: ch.Proxy.Username,
		Password: ch.Proxy.Password,
	}, true
}

func (p ProxyConfig) Configured() bool {
	return p.Host != ""
}

// URL renders the proxy as an http proxy URL with credentials when present.
func (p ProxyConfig) URL() string {
	if !p.Configured() {
		return ""
	}
	u := url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u.String()
}
