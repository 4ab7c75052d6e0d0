// Package ca implements the per-host certificate authority: a long-lived
// root key/certificate pair, loaded or minted once, and short-lived leaf
// certificates minted on demand and cached per hostname.
package ca

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/r3e-network/debugproxy/infrastructure/cache"
	"github.com/r3e-network/debugproxy/infrastructure/errors"
	"github.com/r3e-network/debugproxy/infrastructure/logging"
	"github.com/r3e-network/debugproxy/infrastructure/metrics"
)

const (
	rootKeyBits     = 2048
	rootValidity    = 10 * 365 * 24 * time.Hour
	leafValidity    = 365 * 24 * time.Hour
	leafCacheTTL    = leafValidity
	rootCommonName  = "debugproxy Root CA"
)

// Leaf is a minted per-host certificate, ready to present in a tls.Config's
// GetCertificate callback.
type Leaf struct {
	Host       string
	TLS        *tls.Certificate
	NotAfter   time.Time
}

// Status reports the authority's current root material and a best-effort
// OS trust check.
type Status struct {
	Loaded       bool
	CommonName   string
	NotBefore    time.Time
	NotAfter     time.Time
	CertPath     string
	Trusted      string // "true", "false", or "unknown"
	TrustMessage string
}

// TrustChecker performs the best-effort OS trust-store lookup described in
// the authority's Status contract. The default implementation always
// reports "unknown"; a real OS integration can be substituted.
type TrustChecker interface {
	CheckTrust(ctx context.Context, commonName string) (trusted string, message string)
}

// noopTrustChecker is the default TrustChecker: it never claims to know.
type noopTrustChecker struct{}

func (noopTrustChecker) CheckTrust(ctx context.Context, commonName string) (string, string) {
	return "unknown", "OS trust-store inspection is not wired in this build"
}

// Authority owns the root key material and the leaf cache. It is a
// process-wide singleton by convention: one instance is constructed at
// application start and handed by reference to the proxy engine.
type Authority struct {
	mu sync.Mutex

	rootKey  *rsa.PrivateKey
	rootCert *x509.Certificate
	rootDER  []byte

	store        Store
	leafCache    *cache.TTLCache
	trustChecker TrustChecker
	logger       *logging.Logger
	certPath     string
	metrics      *metrics.Metrics
}

// SetMetrics attaches a Metrics sink. Nil (the default) disables recording.
func (a *Authority) SetMetrics(m *metrics.Metrics) {
	a.metrics = m
}

// New constructs an Authority backed by store. Call Initialize before use.
func New(store Store, logger *logging.Logger) *Authority {
	return &Authority{
		store:        store,
		leafCache:    cache.NewTTLCache(leafCacheTTL),
		trustChecker: noopTrustChecker{},
		logger:       logger,
	}
}

// SetTrustChecker overrides the default no-op trust checker.
func (a *Authority) SetTrustChecker(tc TrustChecker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trustChecker = tc
}

// Initialize loads a persisted root key/certificate pair, or generates and
// persists a new self-signed root if none exists.
func (a *Authority) Initialize(ctx context.Context) error {
	keyPEM, certPEM, err := a.store.Load()
	if err == nil {
		return a.adopt(keyPEM, certPEM, false)
	}
	if err != ErrNotFound {
		return errors.CAUnavailable(err)
	}

	key, certDER, err := generateRoot()
	if err != nil {
		return errors.CAUnavailable(err)
	}
	keyPEM = encodeKeyPEM(key)
	certPEM = encodeCertPEM(certDER)

	if err := a.store.Save(keyPEM, certPEM); err != nil {
		return errors.CAUnavailable(err)
	}
	return a.adopt(keyPEM, certPEM, true)
}

func (a *Authority) adopt(keyPEM, certPEM []byte, generated bool) error {
	key, err := parseRSAPrivateKeyFromPEM(keyPEM)
	if err != nil {
		return errors.CAUnavailable(err)
	}
	cert, err := parseCertificateFromPEM(certPEM)
	if err != nil {
		return errors.CAUnavailable(err)
	}

	a.mu.Lock()
	a.rootKey = key
	a.rootCert = cert
	a.rootDER = cert.Raw
	a.mu.Unlock()

	a.leafCache.InvalidateAll()

	if a.logger != nil {
		action := "loaded"
		if generated {
			action = "generated"
		}
		a.logger.LogStoreOperation(context.Background(), "ca_root", action, 0, nil)
	}
	return nil
}

// generateRoot mints a fresh 2048-bit RSA self-signed root, valid for ten
// years, marked as a CA with key-cert-sign usage.
func generateRoot() (*rsa.PrivateKey, []byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, rootKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("ca: generate root key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("ca: generate root serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: rootCommonName},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(rootValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("ca: create root certificate: %w", err)
	}
	return key, der, nil
}

// CertificateFor returns a cached leaf for host, or mints, caches, and
// returns a new one signed by the root.
func (a *Authority) CertificateFor(ctx context.Context, host string) (*Leaf, error) {
	start := time.Now()

	if cached, ok := a.leafCache.Get(ctx, host); ok {
		leaf := cached.(*Leaf)
		if a.metrics != nil {
			a.metrics.LeafCacheHitsTotal.Inc()
		}
		if a.logger != nil {
			a.logger.LogCertIssuance(ctx, host, true, nil)
		}
		return leaf, nil
	}

	a.mu.Lock()
	rootKey := a.rootKey
	rootCert := a.rootCert
	a.mu.Unlock()

	if rootKey == nil || rootCert == nil {
		err := errors.CAUnavailable(fmt.Errorf("root material not initialized"))
		if a.logger != nil {
			a.logger.LogCertIssuance(ctx, host, false, err)
		}
		return nil, err
	}

	leaf, err := mintLeaf(host, rootKey, rootCert)
	if err != nil {
		wrapped := errors.LeafCertFailed(host, err)
		if a.logger != nil {
			a.logger.LogCertIssuance(ctx, host, false, wrapped)
		}
		return nil, wrapped
	}

	a.leafCache.Set(ctx, host, leaf)
	if a.metrics != nil {
		a.metrics.LeafCertsIssuedTotal.Inc()
	}
	if a.logger != nil {
		a.logger.LogCertIssuance(ctx, host, false, nil)
		a.logger.LogPerformance(ctx, "ca_leaf_issuance", map[string]interface{}{
			"host":        host,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
	return leaf, nil
}

// mintLeaf signs a fresh leaf certificate for host, valid one year, with
// Common Name = host and SAN covering host as DNS (or IP, if host is a
// literal IPv4 address).
func mintLeaf(host string, rootKey *rsa.PrivateKey, rootCert *x509.Certificate) (*Leaf, error) {
	key, err := rsa.GenerateKey(rand.Reader, rootKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate leaf key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate leaf serial: %w", err)
	}

	now := time.Now()
	notAfter := now.Add(leafValidity)
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: host},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
		template.IPAddresses = []net.IP{ip}
	} else {
		template.DNSNames = []string{host}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, rootCert, &key.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("create leaf certificate: %w", err)
	}

	tlsCert := &tls.Certificate{
		Certificate: [][]byte{der, rootCert.Raw},
		PrivateKey:  key,
	}

	return &Leaf{Host: host, TLS: tlsCert, NotAfter: notAfter}, nil
}

// Import replaces the in-memory root pair with externally supplied PEM
// blobs, validating they parse and are usable as a CA signer. It persists
// them through the Store before swapping the in-memory pair under the lock;
// FileStore writes the key file and then the cert file, so the two writes
// are not a single atomic step.
func (a *Authority) Import(keyPEM, certPEM []byte) error {
	key, err := parseRSAPrivateKeyFromPEM(keyPEM)
	if err != nil {
		return errors.CAImportInvalid(err.Error())
	}
	cert, err := parseCertificateFromPEM(certPEM)
	if err != nil {
		return errors.CAImportInvalid(err.Error())
	}
	if !cert.IsCA {
		return errors.CAImportInvalid("certificate is not marked as a CA")
	}
	if cert.PublicKey.(*rsa.PublicKey).N.Cmp(key.PublicKey.N) != 0 {
		return errors.CAImportInvalid("certificate does not match private key")
	}

	if err := a.store.Save(keyPEM, certPEM); err != nil {
		return errors.CAUnavailable(err)
	}

	a.mu.Lock()
	a.rootKey = key
	a.rootCert = cert
	a.rootDER = cert.Raw
	a.mu.Unlock()

	a.leafCache.InvalidateAll()
	return nil
}

// StatusReport returns the authority's current root material summary and a
// best-effort OS trust check.
func (a *Authority) StatusReport(ctx context.Context) Status {
	a.mu.Lock()
	cert := a.rootCert
	a.mu.Unlock()

	if cert == nil {
		return Status{Loaded: false, Trusted: "unknown"}
	}

	trusted, msg := a.trustChecker.CheckTrust(ctx, cert.Subject.CommonName)
	return Status{
		Loaded:       true,
		CommonName:   cert.Subject.CommonName,
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
		CertPath:     a.certPath,
		Trusted:      trusted,
		TrustMessage: msg,
	}
}

// SetCertPath records the durable path of the root certificate for status
// reporting; FileStore-backed authorities set this at construction.
func (a *Authority) SetCertPath(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.certPath = path
}
