package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/spf13/afero"
)

// TrustFiles names the PEM files a TLS client session is built from.
type TrustFiles struct {
	CAFiles            []string `yaml:"ca_files"`
	CertFile           string   `yaml:"cert_file"`
	KeyFile            string   `yaml:"key_file"`
	ServerName         string   `yaml:"server_name"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`
	MinVersion         string   `yaml:"min_version"`
}

// TrustMaterial is what a TLS client needs to verify a server and, when the
// server asks for one, to present a certificate of its own.
type TrustMaterial struct {
	RootCAs            *x509.CertPool
	Certificates       []tls.Certificate
	ServerName         string
	InsecureSkipVerify bool
	MinVersion         uint16
}

// LoadTrustMaterial reads the files named in tf from fs. Without CA files the
// system roots are used.
func LoadTrustMaterial(fs afero.Fs, tf TrustFiles) (*TrustMaterial, error) {
	m := &TrustMaterial{
		ServerName:         tf.ServerName,
		InsecureSkipVerify: tf.InsecureSkipVerify,
		MinVersion:         ParseTLSVersion(tf.MinVersion),
	}

	if len(tf.CAFiles) > 0 {
		pool := x509.NewCertPool()
		for _, name := range tf.CAFiles {
			pem, err := afero.ReadFile(fs, name)
			if err != nil {
				return nil, fmt.Errorf("read ca file %s: %w", name, err)
			}
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("parse ca file %s: no certificates found", name)
			}
		}
		m.RootCAs = pool
	}

	if tf.CertFile != "" || tf.KeyFile != "" {
		certPEM, err := afero.ReadFile(fs, tf.CertFile)
		if err != nil {
			return nil, fmt.Errorf("read cert file %s: %w", tf.CertFile, err)
		}
		keyPEM, err := afero.ReadFile(fs, tf.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file %s: %w", tf.KeyFile, err)
		}
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, fmt.Errorf("load key pair: %w", err)
		}
		m.Certificates = []tls.Certificate{cert}
	}

	return m, nil
}

// TLSConfig builds a client config. serverName is used when m does not carry
// one of its own. A nil m gives a config verifying against the system roots.
func (m *TrustMaterial) TLSConfig(serverName string) *tls.Config {
	if m == nil {
		return &tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12}
	}
	cfg := &tls.Config{
		RootCAs:            m.RootCAs,
		Certificates:       m.Certificates,
		ServerName:         m.ServerName,
		InsecureSkipVerify: m.InsecureSkipVerify, //nolint:gosec
		MinVersion:         m.MinVersion,
	}
	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}
	return cfg
}

// ParseTLSVersion maps "1.0" ... "1.3" to a crypto/tls version. Anything else
// gives 0, which TLSConfig turns into TLS 1.2.
func ParseTLSVersion(s string) uint16 {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "tls") {
	case "1.0", "10":
		return tls.VersionTLS10
	case "1.1", "11":
		return tls.VersionTLS11
	case "1.2", "12":
		return tls.VersionTLS12
	case "1.3", "13":
		return tls.VersionTLS13
	}
	return 0
}
