package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"strings"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/aws"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"
)

// buildTLSConfig reads the configured CA and client key pair.
func buildTLSConfig(t *config.TLSConfig) (*tls.Config, error) {
	rootCAs := x509.NewCertPool()
	if t.CAFile != "" {
		b, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, err
		}
		rootCAs.AppendCertsFromPEM(b)
	}

	cfg := &tls.Config{
		RootCAs:            rootCAs,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}
	if t.CertFile != "" && t.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// saslCredentials resolves the username and password, env vars taking precedence.
func saslCredentials(s *config.SASLConfig) (string, string) {
	username, password := s.Username, s.Password
	if s.UsernameEnv != "" {
		if v := os.Getenv(s.UsernameEnv); v != "" {
			username = v
		}
	}
	if s.PasswordEnv != "" {
		if v := os.Getenv(s.PasswordEnv); v != "" {
			password = v
		}
	}
	return username, password
}

// saslMechanismName normalizes spellings like "scram-sha256" to "SCRAM-SHA-256".
func saslMechanismName(s *config.SASLConfig) string {
	m := strings.ToUpper(strings.TrimSpace(s.Mechanism))
	switch m {
	case "SCRAM-SHA256":
		return "SCRAM-SHA-256"
	case "SCRAM-SHA512":
		return "SCRAM-SHA-512"
	case "SCRAM":
		if strings.Contains(s.ScramAlgorithm, "512") {
			return "SCRAM-SHA-512"
		}
		return "SCRAM-SHA-256"
	}
	return m
}

// buildSASLMechanism returns nil for unknown mechanisms.
func buildSASLMechanism(s *config.SASLConfig) (sasl.Mechanism, error) {
	username, password := saslCredentials(s)
	switch saslMechanismName(s) {
	case "PLAIN":
		return plain.Auth{User: username, Pass: password}.AsMechanism(), nil
	case "SCRAM-SHA-256":
		return scram.Auth{User: username, Pass: password}.AsSha256Mechanism(), nil
	case "SCRAM-SHA-512":
		return scram.Auth{User: username, Pass: password}.AsSha512Mechanism(), nil
	default:
		return nil, nil
	}
}

type awsCredentials struct {
	access, secret, session string
}

// resolveAWSCredentials reads the configured env vars, falling back to the
// standard AWS ones.
func resolveAWSCredentials(a *config.AWSConfig) awsCredentials {
	var c awsCredentials
	if a != nil {
		if a.AccessKeyEnv != "" {
			c.access = os.Getenv(a.AccessKeyEnv)
		}
		if a.SecretKeyEnv != "" {
			c.secret = os.Getenv(a.SecretKeyEnv)
		}
		if a.SessionTokenEnv != "" {
			c.session = os.Getenv(a.SessionTokenEnv)
		}
	}
	if c.access == "" {
		c.access = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if c.secret == "" {
		c.secret = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if c.session == "" {
		c.session = os.Getenv("AWS_SESSION_TOKEN")
	}
	return c
}

// buildAWSMechanism returns nil when no credentials are available.
func buildAWSMechanism(a *config.AWSConfig) (sasl.Mechanism, error) {
	c := resolveAWSCredentials(a)
	if c.access == "" || c.secret == "" {
		return nil, nil
	}
	return aws.Auth{
		AccessKey:    c.access,
		SecretKey:    c.secret,
		SessionToken: c.session,
	}.AsManagedStreamingIAMMechanism(), nil
}
