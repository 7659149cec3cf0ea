package tls

import (
	"crypto/x509"
	"testing"
)

func TestLoadTLSConfig_SelfSigned(t *testing.T) {
	cfg, err := LoadTLSConfig(Config{})
	if err != nil {
		t.Fatalf("Failed to load TLS config: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("Expected 1 certificate, got %d", len(cfg.Certificates))
	}

	leaf, err := x509.ParseCertificate(cfg.Certificates[0].Certificate[0])
	if err != nil {
		t.Fatalf("Failed to parse certificate: %v", err)
	}
	if err := leaf.VerifyHostname("localhost"); err != nil {
		t.Errorf("Expected certificate for localhost, got %v", err)
	}
	if err := leaf.VerifyHostname("127.0.0.1"); err != nil {
		t.Errorf("Expected certificate for 127.0.0.1, got %v", err)
	}
}

func TestLoadTLSConfig_Errors(t *testing.T) {
	if _, err := LoadTLSConfig(Config{CertFile: "cert.pem"}); err == nil {
		t.Error("Expected error when the key file is missing")
	}
	if _, err := LoadTLSConfig(Config{CertFile: "missing.pem", KeyFile: "missing.key"}); err == nil {
		t.Error("Expected error for missing files")
	}
}
