package connmgr

import (
	"context"
	"errors"
	"net"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/CreatorDev/creator-wifire-app-sub001/lib"
)

// Resolver is satisfied by *net.Resolver.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// GetHostByName resolves name to an IPv4 address. Lookups are serialized.
// Temporary resolver failures are retried up to DNSAttempts times.
func (m *Manager) GetHostByName(ctx context.Context, name string) (net.IP, error) {
	if ip := net.ParseIP(name); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
		return nil, newError("dns", InvalidHandle, ErrDNSFailure, errors.New("not an ipv4 address"))
	}

	m.dnsMu.Lock()
	defer m.dnsMu.Unlock()

	b := &backoff.Backoff{
		Factor: 2,
		Jitter: true,
		Min:    m.cfg.DNSRetryMin,
		Max:    m.cfg.DNSRetryMax,
	}

	var err error
	for attempt := 1; attempt <= m.cfg.DNSAttempts; attempt++ {
		var ips []net.IP
		ips, err = m.resolver.LookupIP(ctx, "ip4", name)
		if err == nil {
			for _, ip := range ips {
				if ip4 := ip.To4(); ip4 != nil {
					return ip4, nil
				}
			}
			return nil, newError("dns", InvalidHandle, ErrDNSFailure, errors.New("no ipv4 address for "+name))
		}

		if ctx.Err() != nil {
			return nil, newError("dns", InvalidHandle, ErrDNSTimeout, ctx.Err())
		}
		if !temporary(err) {
			return nil, newError("dns", InvalidHandle, ErrDNSFailure, err)
		}
		if attempt == m.cfg.DNSAttempts {
			break
		}

		d := b.Duration()
		m.metrics.dnsRetry()
		m.log.Debug("dns lookup failed, retrying", zap.String("name", name), zap.Int("attempt", attempt), zap.Duration("sleep", d), zap.Error(err))
		if serr := lib.Sleep(ctx, d); serr != nil {
			return nil, newError("dns", InvalidHandle, ErrDNSTimeout, serr)
		}
	}

	m.log.Warn("dns lookup gave up", zap.String("name", name), zap.Int("attempts", m.cfg.DNSAttempts), zap.Error(err))
	return nil, newError("dns", InvalidHandle, ErrDNSTimeout, err)
}

func temporary(err error) bool {
	var de *net.DNSError
	if errors.As(err, &de) {
		return de.IsTemporary || de.IsTimeout
	}
	return false
}
