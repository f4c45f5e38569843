// Package urlutil normalizes hosts for blacklist and reliability lookups.
package urlutil

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Host returns the lower-cased host of rawURL without port and without a
// leading "www.". Scheme-less input such as "www.bbc.co.uk/news" is accepted.
func Host(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return NormalizeDomain(u.Hostname())
}

// RegistrableDomain returns the eTLD+1 of rawURL ("nytimes.com" for
// "https://www.nytimes.com/x"). Hosts without a public suffix fall back to Host.
func RegistrableDomain(rawURL string) string {
	host := Host(rawURL)
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// NormalizeDomain lower-cases d and strips a "www." prefix and trailing dot.
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	d = strings.TrimSuffix(d, ".")
	return strings.TrimPrefix(d, "www.")
}

// DomainSet is a set of normalized domains.
type DomainSet map[string]struct{}

func NewDomainSet(domains ...[]string) DomainSet {
	set := make(DomainSet)
	for _, list := range domains {
		for _, d := range list {
			// entries may be given as full URLs
			if strings.Contains(d, "/") {
				d = Host(d)
			}
			if d = NormalizeDomain(d); d != "" {
				set[d] = struct{}{}
			}
		}
	}
	return set
}

// Matches reports whether rawURL's registrable domain or host is in the set.
func (s DomainSet) Matches(rawURL string) bool {
	if len(s) == 0 {
		return false
	}
	if _, ok := s[RegistrableDomain(rawURL)]; ok {
		return true
	}
	_, ok := s[Host(rawURL)]
	return ok
}
