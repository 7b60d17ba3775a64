// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package discovery finds QLink bridge services on the local network via
// mDNS (multicast DNS).
//
// Bridges advertise themselves as "_qlink-bridge._tcp" instances. Discovery
// is optional: it supplements a configured bridge URL when none is set, or
// confirms the bridge is reachable before a run. Each discovered endpoint
// resolves to an HTTP base URL the bridge client can target directly.
//
// # Thread Safety
//
// Scanner operations are thread-safe; a read-write lock protects the
// endpoint map so watch-mode rescans can run while earlier results are
// still being read.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/soothill/qlink-enumerator/pkg/logger"
)

// Endpoint is one advertised bridge instance.
type Endpoint struct {
	Name     string
	Address  net.IP
	Port     int
	Hostname string
}

// BaseURL returns the HTTP base URL for the bridge client.
func (e *Endpoint) BaseURL() string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(e.Address.String(), fmt.Sprintf("%d", e.Port)))
}

// Scanner browses for bridge advertisements. Endpoints found across scans
// accumulate, keyed by instance name.
type Scanner struct {
	serviceType string
	domain      string
	endpoints   map[string]*Endpoint
	mu          sync.RWMutex // Protects endpoints map
}

// NewScanner creates a bridge scanner for the given mDNS service type and
// domain (typically "_qlink-bridge._tcp" and "local.").
func NewScanner(serviceType, domain string) *Scanner {
	return &Scanner{
		serviceType: serviceType,
		domain:      domain,
		endpoints:   make(map[string]*Endpoint),
	}
}

// Discover performs one browse for bridge advertisements, returning the
// endpoints found in this scan. The entries channel is buffered so slow
// parsing does not block the resolver during advertisement bursts.
func (s *Scanner) Discover(ctx context.Context, timeout time.Duration) ([]*Endpoint, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 10)
	var found []*Endpoint
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			endpoint := parseServiceEntry(entry)
			if endpoint == nil {
				continue
			}

			s.mu.Lock()
			s.endpoints[endpoint.Name] = endpoint
			s.mu.Unlock()

			found = append(found, endpoint)

			logger.Info().
				Str("name", endpoint.Name).
				Str("url", endpoint.BaseURL()).
				Msg("Discovered bridge")
		}
	}()

	discoverCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := resolver.Browse(discoverCtx, s.serviceType, s.domain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse: %w", err)
	}

	<-discoverCtx.Done()
	wg.Wait()

	return found, nil
}

// Endpoints returns all endpoints seen so far, ordered by instance name.
func (s *Scanner) Endpoints() []*Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Endpoint, 0, len(s.endpoints))
	for _, e := range s.endpoints {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// parseServiceEntry converts a zeroconf service entry to an Endpoint,
// preferring IPv4 addresses.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Endpoint {
	if entry == nil {
		return nil
	}
	if len(entry.AddrIPv4) == 0 && len(entry.AddrIPv6) == 0 {
		return nil
	}

	var addr net.IP
	if len(entry.AddrIPv4) > 0 {
		addr = entry.AddrIPv4[0]
	} else {
		addr = entry.AddrIPv6[0]
	}

	return &Endpoint{
		Name:     entry.Instance,
		Address:  addr,
		Port:     entry.Port,
		Hostname: entry.HostName,
	}
}
