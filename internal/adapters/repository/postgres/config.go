package postgres

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

const defaultConnectTimeout = 5 * time.Second

type Config struct {
	Host          string
	Port          string
	Database      string
	User          string
	Password      string
	SSLMode       string
	RetryInterval time.Duration

	// ConnectTimeout bounds each dial so an unreachable host is reported
	// and retried instead of hanging on the OS TCP timeout.
	ConnectTimeout time.Duration
}

// DSN assembles a lib/pq connection URL.
func (c Config) DSN() string {
	port := c.Port
	if port == "" {
		port = "5432"
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	timeout := c.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	// lib/pq takes whole seconds.
	seconds := max(int(timeout/time.Second), 1)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{
			"sslmode":         {sslMode},
			"connect_timeout": {strconv.Itoa(seconds)},
		}.Encode(),
	}
	return u.String()
}
