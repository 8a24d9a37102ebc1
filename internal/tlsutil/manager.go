package tlsutil

import (
	"crypto/tls"
	"fmt"

	"go.uber.org/zap"

	"otp-auth-service/internal/util"
)

// Manager resolves the server certificate: configured cert/key files when
// present, otherwise a self-signed certificate generated on disk. The latter
// is only acceptable for development.
type Manager struct {
	certFile string
	keyFile  string
	certDir  string
	logger   *zap.Logger
}

func NewManager(certFile, keyFile, certDir string, logger *zap.Logger) *Manager {
	return &Manager{
		certFile: certFile,
		keyFile:  keyFile,
		certDir:  certDir,
		logger:   logger,
	}
}

func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.certFile != "" && m.keyFile != "" {
		cert, err := tls.LoadX509KeyPair(m.certFile, m.keyFile)
		if err == nil {
			return &cert, nil
		}
		m.logger.Warn("Failed to load configured certificate, falling back to self-signed",
			util.ErrorField(err))
	}
	return m.generateSelfSignedCert()
}

func (m *Manager) generateSelfSignedCert() (*tls.Certificate, error) {
	generator := NewDevCertGenerator(m.certDir, m.logger)
	hosts := []string{"localhost", "127.0.0.1", "::1"}

	cert, err := generator.GenerateCert(hosts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	return &cert, nil
}

func (m *Manager) GetTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}
}
