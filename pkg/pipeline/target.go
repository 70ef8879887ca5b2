package pipeline

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"golang.org/x/net/idna"
)

// Target is the fixed identity of an endpoint.
type Target struct {
	Scheme   string
	Host     string
	Port     int
	Secure   bool
	User     string
	Password string
}

// Address returns host:port for dialing.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// ParseTarget parses rawURL into a Target. Credentials embedded in the
// URL are used unless user or password are not empty, in which case they
// take precedence. A missing port defaults to 443 for https and 80
// otherwise.
func ParseTarget(rawURL, user, password string) (Target, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, fmt.Errorf("pipeline: parse target: %w", err)
	}

	var t Target
	switch u.Scheme {
	case "http":
	case "https":
		t.Secure = true
	default:
		return Target{}, fmt.Errorf("pipeline: unsupported scheme %q", u.Scheme)
	}
	t.Scheme = u.Scheme

	host := u.Hostname()
	if host == "" {
		return Target{}, fmt.Errorf("pipeline: missing host in %q", rawURL)
	}
	if net.ParseIP(host) == nil {
		host, err = idna.Lookup.ToASCII(host)
		if err != nil {
			return Target{}, fmt.Errorf("pipeline: invalid host: %w", err)
		}
	}
	t.Host = host

	switch p := u.Port(); {
	case p != "":
		t.Port, err = strconv.Atoi(p)
		if err != nil || t.Port <= 0 || t.Port > 65535 {
			return Target{}, fmt.Errorf("pipeline: invalid port %q", p)
		}
	case t.Secure:
		t.Port = 443
	default:
		t.Port = 80
	}

	if u.User != nil {
		t.User = u.User.Username()
		t.Password, _ = u.User.Password()
	}
	if user != "" {
		t.User = user
	}
	if password != "" {
		t.Password = password
	}

	return t, nil
}
