package mailcore

import (
	"context"
	"crypto/tls"
)

// TLSPolicy is a listener's stance on TLS, consulted when wiring the
// chain (whether to advertise STARTTLS/STLS) and when accepting mail
// (whether to refuse submission until the session has upgraded).
type TLSPolicy int

const (
	// TLSDisabled indicates TLS is not available; STARTTLS is not advertised.
	TLSDisabled TLSPolicy = iota

	// TLSOptional indicates STARTTLS is advertised but not required.
	TLSOptional

	// TLSRequired indicates STARTTLS is advertised and mail submission is
	// refused until the session has upgraded.
	TLSRequired

	// TLSImmediate indicates the listener wraps every accepted connection in
	// TLS before the protocol greeting is sent (SMTPS/POP3S style).
	TLSImmediate
)

// TLSProvider supplies TLS configuration for a connection upgrade,
// optionally varying the certificate by SNI.
type TLSProvider interface {
	GetConfig(ctx context.Context, hello *TLSClientHello) (*tls.Config, error)
	Policy() TLSPolicy
}

// TLSClientHello carries the part of a ClientHello relevant to
// certificate selection.
type TLSClientHello struct {
	ServerName string
}

// TLSConnectionState is the negotiated-session summary a Session records
// after a successful upgrade, kept separate from crypto/tls's full state
// so handlers and logs don't carry certificate chains around.
type TLSConnectionState struct {
	Version          uint16
	CipherSuite      uint16
	ServerName       string
	PeerCertificates bool
	VerifiedChains   bool
}

// NewTLSConnectionState summarizes a completed handshake.
func NewTLSConnectionState(cs tls.ConnectionState) TLSConnectionState {
	return TLSConnectionState{
		Version:          cs.Version,
		CipherSuite:      cs.CipherSuite,
		ServerName:       cs.ServerName,
		PeerCertificates: len(cs.PeerCertificates) > 0,
		VerifiedChains:   len(cs.VerifiedChains) > 0,
	}
}

// VersionString returns the negotiated protocol version for logging.
func (s TLSConnectionState) VersionString() string {
	return tls.VersionName(s.Version)
}

// CipherSuiteString returns the negotiated cipher suite name for logging.
func (s TLSConnectionState) CipherSuiteString() string {
	return tls.CipherSuiteName(s.CipherSuite)
}

// TLSError represents a TLS-related failure, tagged by phase so callers can
// distinguish a configuration mistake from a failed handshake.
type TLSError struct {
	Phase   TLSErrorPhase
	Cause   error
	Message string
}

type TLSErrorPhase = string

const (
	TLSErrorPhaseConfig      TLSErrorPhase = "Config"
	TLSErrorPhaseHandshake   TLSErrorPhase = "Handshake"
	TLSErrorPhaseCertificate TLSErrorPhase = "Certificate"
)

func (e *TLSError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *TLSError) Unwrap() error { return e.Cause }

// CertificateProvider supplies certificates during a TLS handshake.
type CertificateProvider interface {
	GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error)
}

// CertificateReloader extends CertificateProvider with reload-on-demand,
// used to pick up renewed certificates without a restart.
type CertificateReloader interface {
	CertificateProvider
	Reload(ctx context.Context) error
}

// SecureTLSConfig returns a tls.Config with conservative defaults (TLS 1.2
// minimum, AEAD suites only), to be extended with certificates by a
// TLSProvider.
func SecureTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		},
	}
}
