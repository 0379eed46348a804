// Package enrich resolves registration and DNS context for a scanned
// domain. Every lookup is best-effort: a source that fails leaves its
// fields empty and never fails the scan.
package enrich

import (
	"context"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"github.com/miekg/dns"

	"github.com/apiward/apiward/internal/config"
	"github.com/apiward/apiward/internal/logger"
	"github.com/apiward/apiward/pkg/types"
)

var defaultResolvers = []string{
	"8.8.8.8:53",
	"1.1.1.1:53",
	"9.9.9.9:53",
}

// Enricher performs WHOIS and DNS lookups against public infrastructure.
type Enricher struct {
	log       *logger.Logger
	whois     *whois.Client
	dns       *dns.Client
	resolvers []string
}

func New(cfg config.EnrichConfig, log *logger.Logger) *Enricher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Enricher{
		log:       log.WithComponent("enrich"),
		whois:     whois.NewClient().SetTimeout(timeout),
		dns:       &dns.Client{Timeout: timeout},
		resolvers: defaultResolvers,
	}
}

// Enrich looks up registration and DNS records for domain. It always
// returns a DomainInfo; individual lookup failures only cost their fields.
func (e *Enricher) Enrich(ctx context.Context, domain string) *types.DomainInfo {
	start := time.Now()
	info := &types.DomainInfo{Domain: domain}

	if ctx.Err() != nil {
		return info
	}
	e.lookupWhois(domain, info)

	if ctx.Err() != nil {
		return info
	}
	e.lookupDNS(ctx, domain, info)

	e.log.LogDuration(ctx, "enrich.domain", start,
		"domain", domain,
		"registrar", info.Registrar,
		"addresses", len(info.Addresses),
	)
	return info
}

func (e *Enricher) lookupWhois(domain string, info *types.DomainInfo) {
	raw, err := e.whois.Whois(domain)
	if err != nil {
		e.log.Warnw("WHOIS lookup failed", "domain", domain, "error", err.Error())
		return
	}

	parsed, err := whoisparser.Parse(raw)
	if err != nil {
		e.log.Warnw("WHOIS response unparseable", "domain", domain, "error", err.Error())
		return
	}

	applyWhois(info, parsed)
}

// applyWhois copies parsed registration data. Registries redact or omit
// sections freely, so every pointer is checked.
func applyWhois(info *types.DomainInfo, parsed whoisparser.WhoisInfo) {
	if parsed.Registrar != nil {
		info.Registrar = parsed.Registrar.Name
	}
	if parsed.Registrant != nil {
		info.Org = parsed.Registrant.Organization
		info.Country = parsed.Registrant.Country
	}
	if parsed.Domain != nil {
		info.CreatedDate = parsed.Domain.CreatedDate
		info.ExpiresDate = parsed.Domain.ExpirationDate
		info.NameServers = normalizeHosts(parsed.Domain.NameServers)
	}
}

func (e *Enricher) lookupDNS(ctx context.Context, domain string, info *types.DomainInfo) {
	addresses, cname := e.resolveAddresses(ctx, domain)
	info.Addresses = addresses
	info.CNAME = cname

	// WHOIS name servers win; DNS fills in when the registry gave none.
	if len(info.NameServers) == 0 {
		info.NameServers = e.resolveNameServers(ctx, domain)
	}
}

func (e *Enricher) resolveAddresses(ctx context.Context, domain string) ([]string, string) {
	var addresses []string
	var cname string

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeA)
	for _, resolver := range e.resolvers {
		r, _, err := e.dns.ExchangeContext(ctx, m, resolver)
		if err != nil {
			continue
		}
		for _, ans := range r.Answer {
			switch v := ans.(type) {
			case *dns.A:
				addresses = append(addresses, v.A.String())
			case *dns.CNAME:
				cname = strings.TrimSuffix(v.Target, ".")
			}
		}
		if len(addresses) > 0 || cname != "" {
			break
		}
	}

	m.SetQuestion(dns.Fqdn(domain), dns.TypeAAAA)
	for _, resolver := range e.resolvers {
		r, _, err := e.dns.ExchangeContext(ctx, m, resolver)
		if err != nil {
			continue
		}
		found := false
		for _, ans := range r.Answer {
			if v, ok := ans.(*dns.AAAA); ok {
				addresses = append(addresses, v.AAAA.String())
				found = true
			}
		}
		if found {
			break
		}
	}

	return addresses, cname
}

func (e *Enricher) resolveNameServers(ctx context.Context, domain string) []string {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeNS)

	for _, resolver := range e.resolvers {
		r, _, err := e.dns.ExchangeContext(ctx, m, resolver)
		if err != nil {
			continue
		}
		var servers []string
		for _, ans := range r.Answer {
			if v, ok := ans.(*dns.NS); ok {
				servers = append(servers, strings.TrimSuffix(strings.ToLower(v.Ns), "."))
			}
		}
		if len(servers) > 0 {
			return servers
		}
	}
	return nil
}

// normalizeHosts lowercases hostnames and strips trailing dots so WHOIS and
// DNS sources report the same shape.
func normalizeHosts(hosts []string) []string {
	if len(hosts) == 0 {
		return nil
	}
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}
