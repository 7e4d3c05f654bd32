// Package tlsconfig builds the crypto/tls.Config used by the AnyTLS client
// and server command-line entrypoints: sane version and cipher-suite
// defaults on top of crypto/tls.
package tlsconfig

import "crypto/tls"

// Recommended SSL/TLS Version Profiles
type VersionProfile struct {
	Min         uint16
	Max         uint16
	Description string
}

var (
	// ProfileModern is TLS 1.3 only.
	ProfileModern = VersionProfile{
		Min:         tls.VersionTLS13,
		Max:         tls.VersionTLS13,
		Description: "TLS 1.3 only - maximum security, modern servers only",
	}

	// ProfileSecure is TLS 1.2 and 1.3, the default for anytls-server/client.
	ProfileSecure = VersionProfile{
		Min:         tls.VersionTLS12,
		Max:         tls.VersionTLS13,
		Description: "TLS 1.2+ - secure and widely compatible",
	}
)

// CipherSuitesTLS12Secure is offered when the negotiated version is 1.2;
// TLS 1.3 manages its own suites and ignores this list.
var CipherSuitesTLS12Secure = []uint16{
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
}

// ApplyVersionProfile sets config's version range from profile.
func ApplyVersionProfile(config *tls.Config, profile VersionProfile) {
	config.MinVersion = profile.Min
	config.MaxVersion = profile.Max
}

// NewClientConfig builds a tls.Config for dialing an AnyTLS server.
// serverName drives both SNI and certificate verification; insecureSkipVerify
// exists for self-signed test deployments and must never be the default.
func NewClientConfig(serverName string, insecureSkipVerify bool) *tls.Config {
	cfg := &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: insecureSkipVerify,
		CipherSuites:       CipherSuitesTLS12Secure,
	}
	ApplyVersionProfile(cfg, ProfileSecure)
	return cfg
}

// NewServerConfig builds a tls.Config for accepting AnyTLS connections
// using certs as the server's certificate chain.
func NewServerConfig(certs ...tls.Certificate) *tls.Config {
	cfg := &tls.Config{
		Certificates: certs,
		CipherSuites: CipherSuitesTLS12Secure,
	}
	ApplyVersionProfile(cfg, ProfileSecure)
	return cfg
}
