// Package client implements the transactional HTTP LDP client: a base
// client (C3) providing CRUD, describedby resolution, and Prefer headers,
// and a TransactionClient (C4) wrapping it with transaction lifecycle and
// transparent URI rewriting.
package client

import (
	"net/url"
	"strings"
)

// Endpoint is the conceptual entry point for a repository: its internal
// URL, an optional external (public-facing) URL, and a default container
// path for newly created resources.
type Endpoint struct {
	InternalURL string
	ExternalURL string // empty if there is no distinct public URL
	DefaultPath string
}

// NewEndpoint builds an Endpoint, defaulting DefaultPath to "/" and
// ensuring it has a leading slash.
func NewEndpoint(internalURL, externalURL, defaultPath string) Endpoint {
	if defaultPath == "" {
		defaultPath = "/"
	}
	if !strings.HasPrefix(defaultPath, "/") {
		defaultPath = "/" + defaultPath
	}
	return Endpoint{InternalURL: internalURL, ExternalURL: externalURL, DefaultPath: defaultPath}
}

// URL returns the external URL if set, otherwise the internal URL.
func (e Endpoint) URL() string {
	if e.ExternalURL != "" {
		return e.ExternalURL
	}
	return e.InternalURL
}

// Contains reports whether uri is inside this repository, checking both
// the internal and (if set) external URL as prefixes.
func (e Endpoint) Contains(uri string) bool {
	return strings.HasPrefix(uri, e.InternalURL) || (e.ExternalURL != "" && strings.HasPrefix(uri, e.ExternalURL))
}

// RepoPath returns the path portion of resourceURI with the endpoint's URL
// prefix removed, or "" if resourceURI is empty.
func (e Endpoint) RepoPath(resourceURI string) string {
	if resourceURI == "" {
		return ""
	}
	return strings.Replace(resourceURI, e.URL(), "", 1)
}

// TransactionEndpoint is the URL to POST to in order to create a new
// transaction. Built with plain string concatenation, not path.Join, since
// Join's slash-collapsing would mangle the "//" after the URL scheme.
func (e Endpoint) TransactionEndpoint() string {
	return strings.TrimRight(e.URL(), "/") + "/fcr:tx"
}

// externalHost/externalScheme support the Forwarded-Host/Forwarded-Proto
// header population described in spec §4.3, matching fcrepo's expectation
// of "host:port" in X-Forwarded-Host when a non-default port is present.
func (e Endpoint) externalHostHeader() (string, bool) {
	if e.ExternalURL == "" {
		return "", false
	}
	u, err := url.Parse(e.ExternalURL)
	if err != nil {
		return "", false
	}
	if u.Port() != "" {
		return u.Hostname() + ":" + u.Port(), true
	}
	return u.Hostname(), true
}

func (e Endpoint) externalSchemeHeader() (string, bool) {
	if e.ExternalURL == "" {
		return "", false
	}
	u, err := url.Parse(e.ExternalURL)
	if err != nil {
		return "", false
	}
	return u.Scheme, true
}
