package sources

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog/log"
)

var (
	sharedResolver     *dnscache.Resolver
	sharedResolverOnce sync.Once
)

// SharedResolver returns the process-wide caching DNS resolver.
func SharedResolver() *dnscache.Resolver {
	sharedResolverOnce.Do(func() {
		sharedResolver = &dnscache.Resolver{}
	})
	return sharedResolver
}

// RefreshResolver periodically refreshes the cache until ctx is done, so
// remote telemetry hosts that move are picked up.
func RefreshResolver(ctx context.Context, resolver *dnscache.Resolver, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	log.Info().Dur("ttl", ttl).Msg("DNS cache refresh started for remote telemetry sources")

	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resolver.Refresh(true)
			log.Debug().Dur("ttl", ttl).Msg("DNS cache refreshed")
		}
	}
}

func newHTTPClient(resolver *dnscache.Resolver, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialContextWithCache(resolver)
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func dialContextWithCache(resolver *dnscache.Resolver) func(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(address)
		if err != nil {
			return nil, err
		}
		if net.ParseIP(host) != nil {
			return dialer.DialContext(ctx, network, address)
		}

		ips, err := resolver.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}
		if len(ips) == 0 {
			return nil, &net.DNSError{Err: "no IP addresses found", Name: host}
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
	}
}
