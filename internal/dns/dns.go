package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// PublicDNS are servers to be queried if a local lookup fails
// These are well-known, high-availability public DNS providers
var publicDNS = []string{
	"1.0.0.1",                // Cloudflare
	"1.1.1.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.4.4",                // Google
	"8.8.8.8",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
	"208.67.220.220",         // Cisco OpenDNS
	"208.67.222.222",         // Cisco OpenDNS
}

var ErrNoAddresses = errors.New("no IP addresses found")

// LookupFunc resolves host, optionally through a specific server.
type LookupFunc func(ctx context.Context, host, server string) ([]string, error)

// Resolver looks a host up locally first and falls back to racing public
// DNS servers when the local resolver fails.
type Resolver struct {
	Local         LookupFunc
	Remote        LookupFunc
	Servers       []string
	LocalTimeout  time.Duration
	RemoteTimeout time.Duration
}

// NewResolver returns a resolver backed by the system and public DNS.
func NewResolver() *Resolver {
	return &Resolver{
		Local:         localLookup,
		Remote:        remoteLookup,
		Servers:       publicDNS,
		LocalTimeout:  1 * time.Second,
		RemoteTimeout: 2 * time.Second,
	}
}

// Lookup resolves a hostname to an IP address, preferring IPv4.
// Literal IPs are returned unchanged.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if net.ParseIP(host) != nil {
		return host, nil
	}

	// 1. Try Local/System DNS first
	lctx, cancel := context.WithTimeout(ctx, r.LocalTimeout)
	ips, err := r.Local(lctx, host, "")
	cancel()
	if err == nil {
		if ip, err := preferIPv4(ips); err == nil {
			return ip, nil
		}
	}

	// 2. Fallback to public DNS
	return r.race(ctx, host)
}

// race returns the first answer from any public server.
func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, r.RemoteTimeout)
	defer cancel()

	results := make(chan result, len(r.Servers))
	for _, server := range r.Servers {
		go func() {
			ips, err := r.Remote(ctx, host, server)
			if err != nil {
				results <- result{err: err}
				return
			}
			ip, err := preferIPv4(ips)
			results <- result{ip: ip, err: err}
		}()
	}

	failures := 0
	for range r.Servers {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
			failures++
		case <-ctx.Done():
			return "", fmt.Errorf("DNS lookup for %s timed out during public DNS race", host)
		}
	}
	return "", fmt.Errorf("failed to resolve %s: all %d public DNS servers failed", host, failures)
}

// Dialer returns a dial function that resolves hosts through r.
func (r *Resolver) Dialer() func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ip, err := r.Lookup(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("dns lookup failed: %w", err)
		}
		var d net.Dialer
		return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
	}
}

func preferIPv4(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", ErrNoAddresses
	}
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}

func localLookup(ctx context.Context, host, _ string) ([]string, error) {
	var r net.Resolver
	return r.LookupHost(ctx, host)
}

// remoteLookup queries a specific DNS server for host.
func remoteLookup(ctx context.Context, host, server string) ([]string, error) {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
	return r.LookupHost(ctx, host)
}
