package email

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

const imapsPort = "993"

// Well-known IMAP endpoints by mailbox domain
var knownIMAPServers = map[string]string{
	"gmail.com":      "imap.gmail.com",
	"googlemail.com": "imap.gmail.com",
	"outlook.com":    "outlook.office365.com",
	"hotmail.com":    "outlook.office365.com",
	"live.com":       "outlook.office365.com",
	"yahoo.com":      "imap.mail.yahoo.com",
	"icloud.com":     "imap.mail.me.com",
	"me.com":         "imap.mail.me.com",
	"fastmail.com":   "imap.fastmail.com",
	"zoho.com":       "imap.zoho.com",
	"gmx.com":        "imap.gmx.com",
	"yandex.com":     "imap.yandex.com",
	"yandex.ru":      "imap.yandex.ru",
	"mail.ru":        "imap.mail.ru",
}

// Resolver guesses the IMAP server for a mailbox address
type Resolver struct {
	// probe reports whether host:port accepts TCP connections
	probe func(ctx context.Context, addr string) bool
	// lookupMX returns MX hosts for a domain
	lookupMX func(ctx context.Context, domain string) ([]string, error)
}

// NewResolver creates a resolver that probes with real TCP dials and DNS
func NewResolver() *Resolver {
	return &Resolver{
		probe: func(ctx context.Context, addr string) bool {
			d := net.Dialer{Timeout: 3 * time.Second}
			conn, err := d.DialContext(ctx, "tcp", addr)
			if err != nil {
				return false
			}
			conn.Close()
			return true
		},
		lookupMX: func(ctx context.Context, domain string) ([]string, error) {
			records, err := net.DefaultResolver.LookupMX(ctx, domain)
			if err != nil {
				return nil, err
			}
			hosts := make([]string, 0, len(records))
			for _, mx := range records {
				hosts = append(hosts, strings.TrimSuffix(mx.Host, "."))
			}
			return hosts, nil
		},
	}
}

// Resolve returns host:port of the IMAP server for address
func (r *Resolver) Resolve(ctx context.Context, address string) (string, error) {
	domain := DomainOf(address)
	if domain == "" {
		return "", fmt.Errorf("invalid email format: %q", address)
	}

	if host, ok := knownIMAPServers[domain]; ok {
		return net.JoinHostPort(host, imapsPort), nil
	}

	for _, host := range []string{"imap." + domain, "mail." + domain, domain} {
		if addr := net.JoinHostPort(host, imapsPort); r.probe(ctx, addr) {
			return addr, nil
		}
	}

	// mx.example.net -> imap.example.net / mail.example.net
	if hosts, err := r.lookupMX(ctx, domain); err == nil && len(hosts) > 0 {
		if _, base, ok := strings.Cut(hosts[0], "."); ok {
			for _, host := range []string{"imap." + base, "mail." + base} {
				if addr := net.JoinHostPort(host, imapsPort); r.probe(ctx, addr) {
					return addr, nil
				}
			}
		}
	}

	return net.JoinHostPort("imap."+domain, imapsPort), nil
}

// DomainOf extracts the lower-cased domain from an email address
func DomainOf(address string) string {
	local, domain, ok := strings.Cut(address, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return ""
	}
	return strings.ToLower(domain)
}
