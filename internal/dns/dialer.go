package dns

import (
	"context"
	"net"
)

// Dialer resolves hostnames through the custom Resolver before dialing.
// Literal IP addresses skip resolution and are dialed directly.
type Dialer struct {
	resolver *Resolver
	base     net.Dialer
}

// NewDialer wraps the resolver in a net.Dialer-compatible dialer.
func NewDialer(resolver *Resolver) *Dialer {
	return &Dialer{resolver: resolver}
}

// DialContext connects to addr, resolving its host part first.
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return d.base.DialContext(ctx, network, addr)
	}
	if ip := net.ParseIP(host); ip != nil {
		return d.base.DialContext(ctx, network, addr)
	}

	ips, err := d.resolver.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	return d.base.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
}
