package runtimeprobe

import (
	"fmt"
	"net"
	"net/url"
)

// AllowList decides whether a runtime base URL is permitted to be probed.
// Loopback addresses are always allowed; anything else must appear in the
// operator-configured allow-list. This keeps a misconfigured runtime entry
// from turning the prober into an open SSRF proxy.
type AllowList struct {
	hosts map[string]bool
}

// NewAllowList builds an AllowList from the configured extra hosts.
func NewAllowList(extraHosts []string) *AllowList {
	hosts := make(map[string]bool, len(extraHosts))
	for _, h := range extraHosts {
		hosts[h] = true
	}
	return &AllowList{hosts: hosts}
}

// Check returns an error if baseURL is not permitted.
func (a *AllowList) Check(baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("runtimeprobe: invalid base URL %q: %w", baseURL, err)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("runtimeprobe: base URL %q has no host", baseURL)
	}
	if isLoopback(host) {
		return nil
	}
	if a != nil && a.hosts[host] {
		return nil
	}
	return fmt.Errorf("runtimeprobe: host %q is not loopback and not in the configured allow-list", host)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
