package progress

import (
	"fmt"
	"net/url"
	"strings"
)

// EndpointPath is where the manager serves progress subscriptions.
const EndpointPath = "/ws/progress"

// EndpointURL derives the progress socket URL from the manager's HTTP base
// URL, upgrading http to ws and https to wss and keeping any base path.
func EndpointURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse manager url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported manager url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("manager url %q has no host", base)
	}
	u.Path = strings.TrimRight(u.Path, "/") + EndpointPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
