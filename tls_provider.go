package mailcore

import (
	"context"
	"crypto/tls"
	"sync"
)

// StaticTLSProvider serves a fixed, caller-built tls.Config. Use it when
// the embedding application already manages its own certificates.
type StaticTLSProvider struct {
	Config *tls.Config
	TLS    TLSPolicy
}

func (p *StaticTLSProvider) GetConfig(ctx context.Context, hello *TLSClientHello) (*tls.Config, error) {
	if p.Config == nil {
		return nil, &TLSError{Phase: TLSErrorPhaseConfig, Message: "no tls.Config installed"}
	}
	return p.Config, nil
}

func (p *StaticTLSProvider) Policy() TLSPolicy { return p.TLS }

// FileTLSProvider loads certificate/key pairs from disk and selects one
// by SNI server name at handshake time, with an optional default pair for
// unmatched names. Reload re-reads every registered pair, for
// SIGHUP-driven certificate rotation; because the served tls.Config
// defers certificate choice to GetCertificate, a reload takes effect on
// the next handshake without racing ones already in flight.
type FileTLSProvider struct {
	policy TLSPolicy

	mu    sync.RWMutex
	pairs map[string]certPair
	certs map[string]*tls.Certificate
}

// certPair remembers where a certificate came from so Reload can re-read it.
type certPair struct {
	certFile string
	keyFile  string
}

// NewFileTLSProvider creates a provider with no certificates registered.
// At least one AddPair or SetDefault call must succeed before the first
// handshake.
func NewFileTLSProvider(policy TLSPolicy) *FileTLSProvider {
	return &FileTLSProvider{
		policy: policy,
		pairs:  make(map[string]certPair),
		certs:  make(map[string]*tls.Certificate),
	}
}

// AddPair registers a certificate/key pair served to clients asking for
// serverName via SNI, loading it immediately so a bad path fails at
// startup rather than mid-handshake.
func (p *FileTLSProvider) AddPair(serverName, certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return &TLSError{Phase: TLSErrorPhaseCertificate, Cause: err, Message: "load certificate for " + displayName(serverName)}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pairs[serverName] = certPair{certFile: certFile, keyFile: keyFile}
	p.certs[serverName] = &cert
	return nil
}

// SetDefault registers the pair served when no SNI name matches (and to
// clients that send no server name at all).
func (p *FileTLSProvider) SetDefault(certFile, keyFile string) error {
	return p.AddPair("", certFile, keyFile)
}

func (p *FileTLSProvider) GetConfig(ctx context.Context, hello *TLSClientHello) (*tls.Config, error) {
	config := SecureTLSConfig()
	config.GetCertificate = p.GetCertificate
	return config, nil
}

func (p *FileTLSProvider) Policy() TLSPolicy { return p.policy }

// GetCertificate implements CertificateProvider: exact SNI match first,
// then the default pair.
func (p *FileTLSProvider) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cert, ok := p.certs[hello.ServerName]; ok {
		return cert, nil
	}
	if cert, ok := p.certs[""]; ok {
		return cert, nil
	}
	return nil, &TLSError{Phase: TLSErrorPhaseCertificate, Message: "no certificate for server name " + displayName(hello.ServerName)}
}

// Reload re-reads every registered pair from disk. On any failure the
// previously loaded certificates stay in service and the error names the
// pair that failed.
func (p *FileTLSProvider) Reload(ctx context.Context) error {
	p.mu.RLock()
	pairs := make(map[string]certPair, len(p.pairs))
	for name, pair := range p.pairs {
		pairs[name] = pair
	}
	p.mu.RUnlock()

	reloaded := make(map[string]*tls.Certificate, len(pairs))
	for name, pair := range pairs {
		cert, err := tls.LoadX509KeyPair(pair.certFile, pair.keyFile)
		if err != nil {
			return &TLSError{Phase: TLSErrorPhaseCertificate, Cause: err, Message: "reload certificate for " + displayName(name)}
		}
		reloaded[name] = &cert
	}

	p.mu.Lock()
	for name, cert := range reloaded {
		p.certs[name] = cert
	}
	p.mu.Unlock()
	return nil
}

func displayName(serverName string) string {
	if serverName == "" {
		return "default"
	}
	return serverName
}

var (
	_ TLSProvider         = (*StaticTLSProvider)(nil)
	_ TLSProvider         = (*FileTLSProvider)(nil)
	_ CertificateReloader = (*FileTLSProvider)(nil)
)
