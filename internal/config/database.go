package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// tlsConfigName is the name under which the custom TLS config is registered
// with the mysql driver.
const tlsConfigName = "kairos-pkfinder"

// ConnectionString returns the DSN with the configured password and TLS mode applied.
// mysql DSNs are rewritten through the driver's parser; other drivers accept
// a password only for URL-style DSNs.
func (d *DatabaseConfig) ConnectionString() (string, error) {
	if d.Driver == "mysql" {
		return d.mysqlDSN()
	}
	if d.TLS.Mode != "" {
		return "", fmt.Errorf("database.tls is only supported with the mysql driver, got %q", d.Driver)
	}
	if d.Password == "" {
		return d.DSN, nil
	}

	u, err := url.Parse(d.DSN)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("cannot apply password to non-URL DSN for driver %q", d.Driver)
	}
	user := ""
	if u.User != nil {
		user = u.User.Username()
	}
	u.User = url.UserPassword(user, d.Password)
	return u.String(), nil
}

func (d *DatabaseConfig) mysqlDSN() (string, error) {
	cfg, err := mysql.ParseDSN(d.DSN)
	if err != nil {
		return "", fmt.Errorf("invalid mysql DSN: %w", err)
	}
	if d.Password != "" {
		cfg.Passwd = d.Password
	}
	if param := d.effectiveTLSParam(); param != "" {
		cfg.TLSConfig = param
	}
	return cfg.FormatDSN(), nil
}

// effectiveTLSParam returns the mysql driver tls parameter for the configured mode.
func (d *DatabaseConfig) effectiveTLSParam() string {
	switch d.TLS.Mode {
	case "off":
		return "false"
	case "skip-verify":
		return "skip-verify"
	case "verify-ca", "verify-full":
		return tlsConfigName
	default:
		return ""
	}
}

// RegisterTLS registers the custom TLS config with the mysql driver.
// It is a no-op unless the mode needs a CA or client certificate.
func (d *DatabaseConfig) RegisterTLS() error {
	if d.Driver != "mysql" || d.effectiveTLSParam() != tlsConfigName {
		return nil
	}
	tlsCfg, err := d.buildTLSConfig()
	if err != nil {
		return err
	}
	return mysql.RegisterTLSConfig(tlsConfigName, tlsCfg)
}

// buildTLSConfig creates a tls.Config based on the DatabaseTLSConfig settings.
func (d *DatabaseConfig) buildTLSConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if d.TLS.CAFile != "" {
		caCert, err := os.ReadFile(d.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", d.TLS.CAFile, err)
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", d.TLS.CAFile)
		}
		tlsCfg.RootCAs = certPool
	}

	if d.TLS.CertFile != "" && d.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(d.TLS.CertFile, d.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	} else if d.TLS.CertFile != "" || d.TLS.KeyFile != "" {
		return nil, fmt.Errorf("both cert_file and key_file must be specified for client certificate authentication")
	}

	switch d.TLS.Mode {
	case "verify-ca":
		// Chain is verified against RootCAs without the hostname check.
		tlsCfg.InsecureSkipVerify = true
		tlsCfg.VerifyPeerCertificate = verifyChainOnly(tlsCfg.RootCAs)
	case "verify-full":
		tlsCfg.ServerName = strings.TrimSpace(d.TLS.ServerName)
	}

	return tlsCfg, nil
}

func verifyChainOnly(roots *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("server presented no certificates")
		}
		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return err
			}
			certs = append(certs, cert)
		}
		intermediates := x509.NewCertPool()
		for _, cert := range certs[1:] {
			intermediates.AddCert(cert)
		}
		_, err := certs[0].Verify(x509.VerifyOptions{Roots: roots, Intermediates: intermediates})
		return err
	}
}
