package config

import (
	"net/url"
	"strings"
)

// WebSocketURL derives the duplex endpoint from ServerURL: the scheme maps
// http->ws and https->wss, and the path is /ws.
func (c *Config) WebSocketURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return c.ServerURL
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String()
}

// QueryURL derives the SSE streaming endpoint from ServerURL: path /query.
func (c *Config) QueryURL() string {
	return strings.TrimRight(c.ServerURL, "/") + "/query"
}
