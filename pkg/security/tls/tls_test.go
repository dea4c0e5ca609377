package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/saturn/pkg/config"
)

// writeKeyPair writes a self-signed certificate valid from notBefore to
// notAfter and returns the file paths.
func writeKeyPair(t *testing.T, dir string, serial int64, notBefore, notAfter time.Time) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: "saturn.test"},
		DNSNames:     []string{"saturn.test"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func serialOf(t *testing.T, cert *tls.Certificate) int64 {
	t.Helper()
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	return leaf.SerialNumber.Int64()
}

func TestServerConfig(t *testing.T) {
	now := time.Now()
	dir := t.TempDir()
	certFile, keyFile := writeKeyPair(t, dir, 1, now.Add(-time.Hour), now.Add(90*24*time.Hour))

	expiredDir := t.TempDir()
	expiredCert, expiredKey := writeKeyPair(t, expiredDir, 2, now.Add(-48*time.Hour), now.Add(-24*time.Hour))

	tests := []struct {
		name        string
		cfg         *config.TLSConfig
		wantConfig  bool
		wantError   bool
		wantVersion uint16
	}{
		{name: "nil", cfg: nil},
		{name: "disabled", cfg: &config.TLSConfig{CertFile: certFile, KeyFile: keyFile}},
		{
			name:        "tls 1.3 default",
			cfg:         &config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile},
			wantConfig:  true,
			wantVersion: tls.VersionTLS13,
		},
		{
			name: "tls 1.2 with suites",
			cfg: &config.TLSConfig{
				Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.2",
				CipherSuites: []string{"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256"},
			},
			wantConfig:  true,
			wantVersion: tls.VersionTLS12,
		},
		{
			name:      "unknown cipher suite",
			cfg:       &config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, CipherSuites: []string{"TLS_RSA_WITH_RC4_128_SHA"}},
			wantError: true,
		},
		{
			name:      "missing files",
			cfg:       &config.TLSConfig{Enabled: true, CertFile: filepath.Join(dir, "none.pem"), KeyFile: keyFile},
			wantError: true,
		},
		{
			name:      "expired certificate",
			cfg:       &config.TLSConfig{Enabled: true, CertFile: expiredCert, KeyFile: expiredKey},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reloader, err := ServerConfig(tt.cfg)
			if (err != nil) != tt.wantError {
				t.Fatalf("ServerConfig() error = %v, wantError %v", err, tt.wantError)
			}
			if (got != nil) != tt.wantConfig {
				t.Fatalf("ServerConfig() config = %v, want config %v", got, tt.wantConfig)
			}
			if got == nil {
				return
			}
			if got.MinVersion != tt.wantVersion {
				t.Errorf("MinVersion = %x, want %x", got.MinVersion, tt.wantVersion)
			}
			cert, err := got.GetCertificate(&tls.ClientHelloInfo{ServerName: "saturn.test"})
			if err != nil || cert != reloader.Certificate() {
				t.Errorf("GetCertificate() = %v, %v, want the reloader's certificate", cert, err)
			}
		})
	}
}

func TestReloader_PicksUpRenewedPair(t *testing.T) {
	now := time.Now()
	dir := t.TempDir()
	certFile, keyFile := writeKeyPair(t, dir, 1, now.Add(-time.Hour), now.Add(24*time.Hour))

	r := NewReloader(certFile, keyFile, 10*time.Millisecond)
	if err := r.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if r.changed() {
		t.Error("changed() = true right after Load")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Watch(ctx)

	writeKeyPair(t, dir, 7, now.Add(-time.Hour), now.Add(365*24*time.Hour))
	later := now.Add(time.Minute)
	for _, f := range []string{certFile, keyFile} {
		if err := os.Chtimes(f, later, later); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for serialOf(t, r.Certificate()) != 7 {
		if time.Now().After(deadline) {
			t.Fatalf("serial = %d after renewal, want 7", serialOf(t, r.Certificate()))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestReloader_KeepsPairOnBadRenewal(t *testing.T) {
	now := time.Now()
	dir := t.TempDir()
	certFile, keyFile := writeKeyPair(t, dir, 3, now.Add(-time.Hour), now.Add(24*time.Hour))

	r := NewReloader(certFile, keyFile, 0)
	if err := r.Load(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(certFile, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := r.Load(); err == nil {
		t.Fatal("Load() of a corrupt certificate succeeded")
	}
	if got := serialOf(t, r.Certificate()); got != 3 {
		t.Errorf("serial = %d, want previous pair 3", got)
	}
}

func TestGetCertificate_BeforeLoad(t *testing.T) {
	r := NewReloader("cert.pem", "key.pem", time.Minute)
	if _, err := r.GetCertificate(nil); err == nil {
		t.Error("GetCertificate() before Load succeeded")
	}
}
