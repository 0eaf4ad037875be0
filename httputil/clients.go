package httputil

import (
	"net/http"
	"net/url"
	"time"
)

type Clients struct {
	API *http.Client // Apify / Perplexity / Postgres-adjacent APIs
	Web *http.Client // lead websites and avatar downloads
}

// NewClients builds the two HTTP clients the daemon uses. proxyURL applies
// only to the Web client; API traffic always goes direct.
func NewClients(proxyURL string) *Clients {
	web := &http.Client{Timeout: 20 * time.Second}

	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			web.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
		}
	}

	return &Clients{
		API: &http.Client{Timeout: 60 * time.Second},
		Web: web,
	}
}
