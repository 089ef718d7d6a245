package dns

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fixed(ips []string, err error) LookupFunc {
	return func(context.Context, string, string) ([]string, error) { return ips, err }
}

func testResolver(local, remote LookupFunc) *Resolver {
	return &Resolver{
		Local:         local,
		Remote:        remote,
		Servers:       []string{"a", "b", "c"},
		LocalTimeout:  time.Second,
		RemoteTimeout: time.Second,
	}
}

func TestLookupPrefersLocalIPv4(t *testing.T) {
	r := testResolver(fixed([]string{"::1", "10.0.0.7"}, nil), fixed(nil, errors.New("unused")))

	ip, err := r.Lookup(context.Background(), "example.test")
	if err != nil || ip != "10.0.0.7" {
		t.Fatalf("Lookup = %q, %v", ip, err)
	}
}

func TestLookupLiteralIP(t *testing.T) {
	r := testResolver(fixed(nil, errors.New("must not be called")), fixed(nil, errors.New("must not be called")))

	ip, err := r.Lookup(context.Background(), "127.0.0.1")
	if err != nil || ip != "127.0.0.1" {
		t.Fatalf("Lookup = %q, %v", ip, err)
	}
}

func TestLookupFallsBackToPublic(t *testing.T) {
	remote := func(_ context.Context, _, server string) ([]string, error) {
		if server == "b" {
			return []string{"192.0.2.1"}, nil
		}
		return nil, errors.New("refused")
	}
	r := testResolver(fixed(nil, errors.New("no such host")), remote)

	ip, err := r.Lookup(context.Background(), "example.test")
	if err != nil || ip != "192.0.2.1" {
		t.Fatalf("Lookup = %q, %v", ip, err)
	}
}

func TestLookupAllFail(t *testing.T) {
	r := testResolver(fixed(nil, nil), fixed(nil, errors.New("refused")))

	if _, err := r.Lookup(context.Background(), "example.test"); err == nil {
		t.Fatal("expected an error when every server fails")
	}
}
