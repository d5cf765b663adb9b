package kafka

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

func testConfig() config.BrokerConfig {
	return config.BrokerConfig{Name: "test", Hostname: "localhost", Port: 9092}
}

// writeCerts writes a CA and a client key pair signed by it into dir.
func writeCerts(t *testing.T, dir string) (caFile, certFile, keyFile string) {
	t.Helper()
	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"Test CA"}},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatal(err)
	}

	clientKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	clientTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{Organization: []string{"Test Client"}},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	clientDER, err := x509.CreateCertificate(rand.Reader, clientTemplate, caTemplate, &clientKey.PublicKey, caKey)
	if err != nil {
		t.Fatal(err)
	}

	write := func(name, typ string, der []byte) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der}), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}
	caFile = write("ca.pem", "CERTIFICATE", caDER)
	certFile = write("client.pem", "CERTIFICATE", clientDER)
	keyFile = write("client-key.pem", "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(clientKey))
	return caFile, certFile, keyFile
}

func TestNewClient(t *testing.T) {
	t.Run("plaintext", func(t *testing.T) {
		cfg := testConfig()
		cfg.ClientID = "test-client"
		client, err := NewClient(cfg)
		if err != nil {
			t.Fatalf("NewClient() error = %v", err)
		}
		defer client.Close()
		if client.Config().ClientID != "test-client" {
			t.Errorf("expected client_id 'test-client', got %q", client.Config().ClientID)
		}
	})

	t.Run("invalid CA file", func(t *testing.T) {
		cfg := testConfig()
		cfg.TLS = &config.TLSConfig{Enabled: true, CAFile: "/nonexistent/ca.pem"}
		if _, err := NewClient(cfg); err == nil {
			t.Error("expected error for invalid CA file")
		}
	})

	t.Run("SASL and TLS", func(t *testing.T) {
		caFile, _, _ := writeCerts(t, t.TempDir())
		cfg := testConfig()
		cfg.TLS = &config.TLSConfig{Enabled: true, CAFile: caFile}
		cfg.SASL = &config.SASLConfig{Mechanism: "SCRAM-SHA-512", Username: "u", Password: "p"}
		client, err := NewClient(cfg)
		if err != nil {
			t.Fatalf("NewClient() error = %v", err)
		}
		client.Close()
	})

	t.Run("close on nil client", func(t *testing.T) {
		var c *Client
		c.Close()
	})
}

func TestFactory_CreateClient(t *testing.T) {
	f := NewFactory()
	c, err := f.CreateClient(testConfig())
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	defer c.Close()
	if got := c.(*Client).Config().ClientID; got != DefaultClientID {
		t.Errorf("expected default client id %q, got %q", DefaultClientID, got)
	}
}

func TestClientPingUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := config.BrokerConfig{Name: "down", Hostname: "127.0.0.1", Port: port}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx); err == nil {
		t.Fatal("expected ping to fail against a closed port")
	}
}

func TestBuildTLSConfig(t *testing.T) {
	caFile, certFile, keyFile := writeCerts(t, t.TempDir())

	tests := []struct {
		name      string
		cfg       config.TLSConfig
		wantErr   bool
		wantCerts int
	}{
		{name: "CA only", cfg: config.TLSConfig{Enabled: true, CAFile: caFile}},
		{name: "mTLS", cfg: config.TLSConfig{Enabled: true, CAFile: caFile, CertFile: certFile, KeyFile: keyFile}, wantCerts: 1},
		{name: "insecure skip verify", cfg: config.TLSConfig{Enabled: true, InsecureSkipVerify: true}},
		{name: "invalid CA file", cfg: config.TLSConfig{Enabled: true, CAFile: "/nonexistent/ca.pem"}, wantErr: true},
		{name: "invalid key pair", cfg: config.TLSConfig{Enabled: true, CertFile: "/nonexistent/c.pem", KeyFile: "/nonexistent/k.pem"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildTLSConfig(&tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildTLSConfig() error = %v", err)
			}
			if got.RootCAs == nil {
				t.Error("expected RootCAs to be set")
			}
			if len(got.Certificates) != tt.wantCerts {
				t.Errorf("expected %d client certificates, got %d", tt.wantCerts, len(got.Certificates))
			}
			if got.InsecureSkipVerify != tt.cfg.InsecureSkipVerify {
				t.Errorf("InsecureSkipVerify = %v", got.InsecureSkipVerify)
			}
		})
	}
}

func TestSASLMechanismName(t *testing.T) {
	tests := map[string]config.SASLConfig{
		"PLAIN":         {Mechanism: "plain"},
		"SCRAM-SHA-256": {Mechanism: "scram-sha256"},
		"SCRAM-SHA-512": {Mechanism: "SCRAM", ScramAlgorithm: "SHA-512"},
		"UNKNOWN":       {Mechanism: " unknown "},
	}
	for want, cfg := range tests {
		if got := saslMechanismName(&cfg); got != want {
			t.Errorf("saslMechanismName(%q) = %q, want %q", cfg.Mechanism, got, want)
		}
	}
}

func TestBuildSASLMechanism(t *testing.T) {
	for _, m := range []string{"PLAIN", "plain", "SCRAM-SHA-256", "scram-sha-512", "SCRAM-SHA256"} {
		mech, err := buildSASLMechanism(&config.SASLConfig{Mechanism: m, Username: "u", Password: "p"})
		if err != nil {
			t.Errorf("buildSASLMechanism(%s) error = %v", m, err)
		}
		if mech == nil {
			t.Errorf("expected non-nil mechanism for %s", m)
		}
	}

	mech, err := buildSASLMechanism(&config.SASLConfig{Mechanism: "UNKNOWN"})
	if err != nil || mech != nil {
		t.Errorf("expected nil mechanism for unknown type, got %v, %v", mech, err)
	}
}

func TestSASLCredentialsFromEnv(t *testing.T) {
	t.Setenv("SASL_USER", "envuser")
	t.Setenv("SASL_PASS", "")

	u, p := saslCredentials(&config.SASLConfig{
		Username:    "inline",
		Password:    "inline-pass",
		UsernameEnv: "SASL_USER",
		PasswordEnv: "SASL_PASS",
	})
	if u != "envuser" {
		t.Errorf("username = %q, want envuser", u)
	}
	if p != "inline-pass" {
		t.Errorf("empty env var should keep inline password, got %q", p)
	}
}

func TestBuildAWSMechanism(t *testing.T) {
	t.Run("default env variables", func(t *testing.T) {
		t.Setenv("AWS_ACCESS_KEY_ID", "test-access")
		t.Setenv("AWS_SECRET_ACCESS_KEY", "test-secret")
		mech, err := buildAWSMechanism(&config.AWSConfig{IAM: true, Region: "us-east-1"})
		if err != nil || mech == nil {
			t.Fatalf("expected mechanism, got %v, %v", mech, err)
		}
	})

	t.Run("custom env variables", func(t *testing.T) {
		t.Setenv("AWS_ACCESS_KEY_ID", "")
		t.Setenv("AWS_SECRET_ACCESS_KEY", "")
		t.Setenv("CUSTOM_ACCESS", "custom-access")
		t.Setenv("CUSTOM_SECRET", "custom-secret")
		c := resolveAWSCredentials(&config.AWSConfig{AccessKeyEnv: "CUSTOM_ACCESS", SecretKeyEnv: "CUSTOM_SECRET"})
		if c.access != "custom-access" || c.secret != "custom-secret" {
			t.Errorf("unexpected credentials %+v", c)
		}
	})

	t.Run("incomplete credentials", func(t *testing.T) {
		t.Setenv("AWS_ACCESS_KEY_ID", "test-access")
		t.Setenv("AWS_SECRET_ACCESS_KEY", "")
		mech, err := buildAWSMechanism(nil)
		if err != nil || mech != nil {
			t.Errorf("expected nil mechanism with incomplete credentials")
		}
	})
}

func TestClassify(t *testing.T) {
	cfg := testConfig()

	if classify("op", cfg, nil) != nil {
		t.Error("nil should stay nil")
	}
	if err := classify("op", cfg, context.DeadlineExceeded); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("context errors pass through, got %v", err)
	}
	if err := classify("op", cfg, kgo.ErrClientClosed); !errors.Is(err, domain.ErrHandleClosed) {
		t.Errorf("closed client maps to ErrHandleClosed, got %v", err)
	}

	err := classify("create topic", cfg, kerr.TopicAlreadyExists)
	var pe *domain.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError, got %T", err)
	}
	if pe.Code != kerr.TopicAlreadyExists.Code || pe.Op != "create topic" {
		t.Errorf("unexpected protocol error %+v", pe)
	}

	err = classify("dial", cfg, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})
	var ce *domain.ConnectivityError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectivityError, got %T", err)
	}
	if ce.Address != "localhost:9092" {
		t.Errorf("address = %q", ce.Address)
	}
	if !domain.IsConnectivity(classify("fetch", cfg, io.EOF)) {
		t.Error("EOF is a connectivity error")
	}
}

func TestFetchError(t *testing.T) {
	cfg := testConfig()

	err := fetchError(cfg, "orders", kerr.UnknownTopicOrPartition)
	if !errors.Is(err, domain.ErrTopicRemoved) {
		t.Fatalf("unknown topic should end the listener as removed, got %v", err)
	}
	if domain.IsProtocol(err) {
		t.Errorf("removed topic must not be reported as a protocol error: %v", err)
	}

	err = fetchError(cfg, "orders", kerr.NotLeaderForPartition)
	if !domain.IsProtocol(err) || errors.Is(err, domain.ErrTopicRemoved) {
		t.Errorf("other broker errors stay protocol errors, got %v", err)
	}
}

func TestMessageFromRecord(t *testing.T) {
	ts := time.Now()
	m := messageFromRecord(&kgo.Record{
		Topic:     "orders",
		Partition: 2,
		Offset:    41,
		Key:       []byte("k"),
		Value:     []byte("v"),
		Timestamp: ts,
		Headers:   []kgo.RecordHeader{{Key: "h", Value: []byte("1")}, {Key: "h", Value: []byte("2")}},
	})
	if m.Topic != "orders" || m.Partition != 2 || m.Offset != 41 || m.Key != "k" || m.Value != "v" {
		t.Errorf("unexpected message %+v", m)
	}
	if len(m.Headers) != 2 || m.Headers[1].Value != "2" {
		t.Errorf("headers must keep order and duplicates, got %+v", m.Headers)
	}
}
