// internal/discovery/scope.go
package discovery

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Scope decides which discovered links the crawl may follow. By default only
// the exact host (port included) of the start URL is in scope; with
// subdomains enabled the registrable domain and everything below it is.
type Scope struct {
	host              string
	rootDomain        string
	includeSubdomains bool
}

// NewScope builds the scope from the start URL.
func NewScope(initialURL string, includeSubdomains bool) (*Scope, error) {
	u, err := url.Parse(initialURL)
	if err != nil {
		return nil, err
	}
	hostname := u.Hostname()
	if hostname == "" {
		return nil, fmt.Errorf("initial URL must have a hostname: %s", initialURL)
	}

	root := hostname
	if includeSubdomains {
		// The public suffix list handles domains like example.co.uk. Hosts
		// without a registrable domain (IPs, localhost) stay exact.
		if domain, err := publicsuffix.EffectiveTLDPlusOne(hostname); err == nil {
			root = domain
		}
	}

	return &Scope{
		host:              strings.ToLower(u.Host),
		rootDomain:        strings.ToLower(root),
		includeSubdomains: includeSubdomains,
	}, nil
}

// IsInScope reports whether u may be crawled.
func (s *Scope) IsInScope(u *url.URL) bool {
	if !s.includeSubdomains {
		return strings.ToLower(u.Host) == s.host
	}
	host := strings.ToLower(u.Hostname())
	return host == s.rootDomain || strings.HasSuffix(host, "."+s.rootDomain)
}

// RootDomain returns the domain defining the scope.
func (s *Scope) RootDomain() string {
	return s.rootDomain
}
