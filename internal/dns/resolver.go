// Package dns provides custom upstream DNS resolution for outbound
// connections, bypassing the system resolver when dedicated servers are
// configured.
package dns

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"

	"egress-gate/internal/config"
	"egress-gate/internal/metrics"
)

// Resolver answers A lookups through the configured upstream servers with
// TTL-based caching and per-server failover.
type Resolver struct {
	servers    []string
	timeout    time.Duration
	cacheTTL   time.Duration
	maxEntries int

	mu    sync.RWMutex
	cache map[string]*cachedRecord

	client *dns.Client
	log    *slog.Logger
}

type cachedRecord struct {
	ips       []net.IP
	expiresAt time.Time
}

// NewResolver creates a resolver from the DNS configuration.
func NewResolver(cfg config.DNSConfig, log *slog.Logger) *Resolver {
	return &Resolver{
		servers:    cfg.Servers,
		timeout:    cfg.QueryTimeout(),
		cacheTTL:   cfg.TTL(),
		maxEntries: cfg.MaxCacheEntries,
		cache:      make(map[string]*cachedRecord),
		client: &dns.Client{
			Net:     "udp",
			Timeout: cfg.QueryTimeout(),
		},
		log: log,
	}
}

// Resolve returns the A records for domain, serving from cache when fresh.
func (r *Resolver) Resolve(ctx context.Context, domain string) ([]net.IP, error) {
	if ips := r.cached(domain); ips != nil {
		metrics.RecordDNSLookup("hit")
		return ips, nil
	}

	ips, err := r.query(ctx, domain)
	if err != nil {
		metrics.RecordDNSLookup("error")
		return nil, err
	}
	metrics.RecordDNSLookup("miss")

	r.store(domain, ips)
	return ips, nil
}

// query tries each upstream server in order until one answers.
func (r *Resolver) query(ctx context.Context, domain string) ([]net.IP, error) {
	var lastErr error
	for _, server := range r.servers {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		ips, err := r.queryServer(domain, server)
		if err != nil {
			lastErr = err
			continue
		}
		if len(ips) > 0 {
			return ips, nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no A records found for %s", domain)
	}
	return nil, fmt.Errorf("resolving %s: %w", domain, lastErr)
}

func (r *Resolver) queryServer(domain, server string) ([]net.IP, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeA)
	msg.RecursionDesired = true

	response, _, err := r.client.Exchange(msg, server)
	if err != nil {
		return nil, fmt.Errorf("query to %s failed: %w", server, err)
	}
	if response.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("query to %s returned rcode %d", server, response.Rcode)
	}

	var ips []net.IP
	for _, answer := range response.Answer {
		if a, ok := answer.(*dns.A); ok {
			ips = append(ips, a.A)
		}
	}
	return ips, nil
}

func (r *Resolver) cached(domain string) []net.IP {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.cache[domain]
	if !ok || time.Now().After(record.expiresAt) {
		return nil
	}
	return record.ips
}

func (r *Resolver) store(domain string, ips []net.IP) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.cache) >= r.maxEntries {
		r.evict()
	}
	r.cache[domain] = &cachedRecord{
		ips:       ips,
		expiresAt: time.Now().Add(r.cacheTTL),
	}
}

// evict drops expired entries, then the oldest quarter if still at capacity.
// Caller holds the write lock.
func (r *Resolver) evict() {
	now := time.Now()
	for domain, record := range r.cache {
		if now.After(record.expiresAt) {
			delete(r.cache, domain)
		}
	}
	if len(r.cache) < r.maxEntries {
		return
	}

	// Map order is arbitrary; dropping a quarter is enough to make room.
	toRemove := r.maxEntries / 4
	if toRemove < 1 {
		toRemove = 1
	}
	for domain := range r.cache {
		delete(r.cache, domain)
		toRemove--
		if toRemove == 0 {
			break
		}
	}
}

// CacheSize returns the number of cached domains.
func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
