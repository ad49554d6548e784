// Package httpclient configures the HTTP client used to call OGC services.
package httpclient

import (
	"net"
	"net/http"
	"net/url"
	"time"
)

// ProxyConfig is the user's proxy setting. It takes effect only when
// Enabled and Host are both set.
type ProxyConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
}

// URL returns the proxy URL, or nil when no proxy applies. Credentials are
// attached only when both user and password are set.
func (p ProxyConfig) URL() *url.URL {
	if !p.Enabled || p.Host == "" {
		return nil
	}
	host := p.Host
	if p.Port != "" {
		host = net.JoinHostPort(p.Host, p.Port)
	}
	u := &url.URL{Scheme: "http", Host: host}
	if p.User != "" && p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u
}

// Hint describes the proxy for connection error messages, "" when disabled.
func (p ProxyConfig) Hint() string {
	if !p.Enabled {
		return ""
	}
	if p.Port != "" {
		return p.Host + ":" + p.Port
	}
	return p.Host
}

// NewOutbound creates the outbound client. A configured proxy is used for
// every request, otherwise the environment proxy settings apply.
//
// timeout bounds connecting and waiting for response headers only. Bodies
// are read for as long as the server keeps sending, so large coverage
// downloads are not cut off; callers bound them with their context.
func NewOutbound(timeout time.Duration, proxy ProxyConfig) *http.Client {
	proxyFunc := http.ProxyFromEnvironment
	if u := proxy.URL(); u != nil {
		proxyFunc = http.ProxyURL(u)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 proxyFunc,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return &http.Client{Transport: transport}
}
