// Package dnsresolve implements mailcore.DNSService using miekg/dns,
// doing its own recursive-resolver queries instead of relying on the
// standard library's cgo/NSS-dependent resolver, so fast-fail sender
// checks behave identically across platforms.
package dnsresolve

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/miekg/dns"

	"github.com/mailforge/mailcore"
)

// Resolver implements mailcore.DNSService against a configured list of
// upstream recursive resolvers.
type Resolver struct {
	client  *dns.Client
	servers []string
	timeout time.Duration
}

// New creates a Resolver querying the given "host:port" nameservers in
// order, falling back to the next on timeout or SERVFAIL.
func New(servers []string, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if len(servers) == 0 {
		servers = []string{"1.1.1.1:53", "8.8.8.8:53"}
	}
	return &Resolver{
		client:  &dns.Client{Timeout: timeout},
		servers: servers,
		timeout: timeout,
	}
}

// LookupMX implements mailcore.DNSService.
func (r *Resolver) LookupMX(ctx context.Context, domain string) ([]mailcore.MXRecord, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	msg.RecursionDesired = true

	reply, err := r.exchange(ctx, msg)
	if err != nil {
		return nil, &mailcore.TransientBackendError{Backend: "dnsresolve", Cause: err}
	}

	records := make([]mailcore.MXRecord, 0, len(reply.Answer))
	for _, rr := range reply.Answer {
		if mx, ok := rr.(*dns.MX); ok {
			records = append(records, mailcore.MXRecord{Host: mx.Mx, Pref: mx.Preference})
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Pref < records[j].Pref })
	return records, nil
}

// HasAnyRecord implements mailcore.DNSService.
func (r *Resolver) HasAnyRecord(ctx context.Context, domain string) (bool, error) {
	for _, qtype := range []uint16{dns.TypeMX, dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(domain), qtype)
		msg.RecursionDesired = true

		reply, err := r.exchange(ctx, msg)
		if err != nil {
			continue
		}
		if len(reply.Answer) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, error) {
	var lastErr error
	for _, server := range r.servers {
		reply, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		if reply.Rcode == dns.RcodeServerFailure {
			lastErr = fmt.Errorf("dnsresolve: SERVFAIL from %s", server)
			continue
		}
		return reply, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("dnsresolve: no nameservers configured")
	}
	return nil, lastErr
}

var _ mailcore.DNSService = (*Resolver)(nil)
