package config

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestReadConfig(t *testing.T) {
	t.Run("valid config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.yml")

		yamlContent := `brokers:
  - name: dev
    hostname: kafka.dev
    port: 9093
    client_id: kmt-dev
  - name: prod
    hostname: kafka1.prod
    tls:
      enabled: true
      ca_file: /path/to/ca.pem
    sasl:
      mechanism: SCRAM-SHA-256
      username: admin
      password: secret
topics:
  - name: orders
    broker: dev
    topic: orders
    partitions: 3
senders:
  - name: order-sender
    broker: dev
    topic: orders
listeners:
  - name: order-listener
    broker: dev
    topic: orders
settings:
  timeouts:
    future_get_ms: 7000
`
		if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
			t.Fatal(err)
		}

		cfg, err := ReadConfig(configPath)
		if err != nil {
			t.Fatalf("ReadConfig() error = %v", err)
		}

		if len(cfg.Brokers) != 2 {
			t.Fatalf("expected 2 brokers, got %d", len(cfg.Brokers))
		}
		if cfg.Brokers[0].Address() != "kafka.dev:9093" {
			t.Errorf("expected address 'kafka.dev:9093', got '%s'", cfg.Brokers[0].Address())
		}
		if cfg.Brokers[0].ClientID != "kmt-dev" {
			t.Errorf("expected client_id 'kmt-dev', got '%s'", cfg.Brokers[0].ClientID)
		}
		if cfg.Brokers[1].Port != DefaultPort {
			t.Errorf("expected default port %d, got %d", DefaultPort, cfg.Brokers[1].Port)
		}
		if cfg.Brokers[1].SASL == nil || cfg.Brokers[1].SASL.Mechanism != "SCRAM-SHA-256" {
			t.Error("expected SCRAM-SHA-256 SASL config")
		}

		if cfg.Topics[0].Partitions != 3 || cfg.Topics[0].ReplicationFactor != DefaultReplication {
			t.Errorf("unexpected topic settings %+v", cfg.Topics[0])
		}
		if cfg.Senders[0].MessageKey != DefaultMessageKey {
			t.Errorf("expected default key, got '%s'", cfg.Senders[0].MessageKey)
		}
		if cfg.Listeners[0].ConsumerGroup != DefaultConsumerGroup {
			t.Errorf("expected default group, got '%s'", cfg.Listeners[0].ConsumerGroup)
		}
		if cfg.Listeners[0].FetchTimeoutMs != DefaultFetchTimeoutMs {
			t.Errorf("expected default fetch timeout, got %d", cfg.Listeners[0].FetchTimeoutMs)
		}
		if got := cfg.Settings.Timeouts.Lookup(FutureGet); got != 7*time.Second {
			t.Errorf("expected overridden future_get 7s, got %s", got)
		}
		if got := cfg.Settings.Timeouts.Lookup(DeleteTopic); got != 2*time.Second {
			t.Errorf("expected default delete_topic 2s, got %s", got)
		}
	})

	t.Run("empty config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "empty.yml")

		if err := os.WriteFile(configPath, []byte(`brokers: []`), 0644); err != nil {
			t.Fatal(err)
		}

		cfg, err := ReadConfig(configPath)
		if err != nil {
			t.Fatalf("ReadConfig() error = %v", err)
		}
		if len(cfg.Brokers) != 0 {
			t.Errorf("expected 0 brokers, got %d", len(cfg.Brokers))
		}
		if cfg.Settings.Workers == 0 {
			t.Error("expected default settings to be filled")
		}
	})

	t.Run("config with AWS IAM", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "aws.yml")

		yamlContent := `brokers:
  - name: msk
    hostname: b-1.msk.amazonaws.com
    port: 9098
    aws:
      iam: true
      region: us-east-1
`
		if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
			t.Fatal(err)
		}

		cfg, err := ReadConfig(configPath)
		if err != nil {
			t.Fatalf("ReadConfig() error = %v", err)
		}
		if cfg.Brokers[0].AWS == nil || !cfg.Brokers[0].AWS.IAM {
			t.Fatal("expected AWS IAM enabled")
		}
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := ReadConfig("/nonexistent/path/config.yml")
		if err == nil {
			t.Error("expected error for non-existent file, got nil")
		}
	})

	t.Run("invalid YAML", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.yml")

		invalidYAML := `brokers:
  - name: dev
    hostname: [invalid yaml structure
`
		if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
			t.Fatal(err)
		}

		_, err := ReadConfig(configPath)
		if err == nil {
			t.Error("expected error for invalid YAML, got nil")
		}
	})
}

func TestWriteConfig(t *testing.T) {
	t.Run("write and read back", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.yml")

		originalCfg := FileConfig{
			Brokers: []BrokerConfig{
				{
					Name:     "test",
					Hostname: "localhost",
					Port:     9092,
					ClientID: "test-client",
					SASL:     &SASLConfig{Mechanism: "PLAIN", Username: "user", Password: "pass"},
					Options:  map[string]string{"key": "value"},
				},
			},
			Senders: []SenderConfig{{Name: "s", Broker: "test", Topic: "t", Headers: map[string]string{"h": "v"}}},
		}

		if err := WriteConfig(configPath, originalCfg); err != nil {
			t.Fatalf("WriteConfig() error = %v", err)
		}

		readCfg, err := ReadConfig(configPath)
		if err != nil {
			t.Fatalf("ReadConfig() error = %v", err)
		}

		broker := readCfg.Brokers[0]
		if broker.Name != "test" || broker.Draft {
			t.Errorf("unexpected broker identity %q draft=%v", broker.Name, broker.Draft)
		}
		if broker.SASL == nil || broker.SASL.Password != "pass" {
			t.Error("expected SASL password to round-trip through YAML")
		}
		if broker.Options["key"] != "value" {
			t.Errorf("expected option key='value', got '%s'", broker.Options["key"])
		}
		if readCfg.Senders[0].Headers["h"] != "v" {
			t.Error("expected sender headers to round-trip")
		}
	})

	t.Run("write to invalid path", func(t *testing.T) {
		err := WriteConfig("/nonexistent/directory/config.yml", FileConfig{})
		if err == nil {
			t.Error("expected error for invalid path, got nil")
		}
	})
}

func TestValidate(t *testing.T) {
	base := FileConfig{
		Brokers:   []BrokerConfig{{Name: "dev"}},
		Topics:    []TopicConfig{{Name: "t", Broker: "dev"}},
		Senders:   []SenderConfig{{Name: "s", Broker: "dev"}},
		Listeners: []ListenerConfig{{Name: "l", Broker: "dev"}},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	dup := base
	dup.Brokers = []BrokerConfig{{Name: "dev"}, {Name: "dev", Hostname: "other"}}
	if err := dup.Validate(); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}

	dangling := base
	dangling.Listeners = []ListenerConfig{{Name: "l", Broker: "missing"}}
	if err := dangling.Validate(); !errors.Is(err, ErrUnknownReference) {
		t.Errorf("expected ErrUnknownReference, got %v", err)
	}
}

func TestGetAuthType(t *testing.T) {
	tests := []struct {
		name     string
		config   BrokerConfig
		expected string
	}{
		{
			name:     "PLAINTEXT - no auth",
			config:   BrokerConfig{},
			expected: "PLAINTEXT",
		},
		{
			name: "TLS only",
			config: BrokerConfig{
				TLS: &TLSConfig{
					Enabled: true,
					CAFile:  "ca.pem",
				},
			},
			expected: "TLS",
		},
		{
			name: "mTLS - with client certs",
			config: BrokerConfig{
				TLS: &TLSConfig{
					Enabled:  true,
					CAFile:   "ca.pem",
					CertFile: "client.pem",
					KeyFile:  "client-key.pem",
				},
			},
			expected: "mTLS",
		},
		{
			name: "SASL/PLAIN",
			config: BrokerConfig{
				SASL: &SASLConfig{
					Mechanism: "PLAIN",
					Username:  "user",
					Password:  "pass",
				},
			},
			expected: "SASL/PLAIN",
		},
		{
			name: "SASL/SCRAM-SHA-256",
			config: BrokerConfig{
				SASL: &SASLConfig{
					Mechanism: "SCRAM-SHA-256",
					Username:  "user",
					Password:  "pass",
				},
			},
			expected: "SASL/SCRAM-SHA-256",
		},
		{
			name: "SASL/PLAIN + TLS",
			config: BrokerConfig{
				TLS: &TLSConfig{
					Enabled: true,
					CAFile:  "ca.pem",
				},
				SASL: &SASLConfig{
					Mechanism: "PLAIN",
					Username:  "user",
					Password:  "pass",
				},
			},
			expected: "SASL/PLAIN + TLS",
		},
		{
			name: "AWS IAM",
			config: BrokerConfig{
				AWS: &AWSConfig{
					IAM: true,
				},
			},
			expected: "AWS IAM",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.config.GetAuthType()
			if result != tt.expected {
				t.Errorf("GetAuthType() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestHasCertificate(t *testing.T) {
	tests := []struct {
		name     string
		config   BrokerConfig
		expected bool
	}{
		{
			name:     "no TLS",
			config:   BrokerConfig{},
			expected: false,
		},
		{
			name: "TLS disabled",
			config: BrokerConfig{
				TLS: &TLSConfig{
					Enabled:  false,
					CertFile: "cert.pem",
				},
			},
			expected: false,
		},
		{
			name: "TLS enabled without cert",
			config: BrokerConfig{
				TLS: &TLSConfig{
					Enabled: true,
				},
			},
			expected: false,
		},
		{
			name: "TLS with cert",
			config: BrokerConfig{
				TLS: &TLSConfig{
					Enabled:  true,
					CertFile: "cert.pem",
				},
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.config.HasCertificate()
			if result != tt.expected {
				t.Errorf("HasCertificate() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestGetCertificateInfo(t *testing.T) {
	// Create a temporary directory for test certificates
	tmpDir := t.TempDir()

	// Helper to create a test certificate
	createTestCert := func(filename string, notBefore, notAfter time.Time) string {
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatal(err)
		}

		template := x509.Certificate{
			SerialNumber: big.NewInt(1),
			Subject: pkix.Name{
				Organization: []string{"Test"},
			},
			NotBefore:             notBefore,
			NotAfter:              notAfter,
			KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
			ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
			BasicConstraintsValid: true,
		}

		derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
		if err != nil {
			t.Fatal(err)
		}

		certPath := filepath.Join(tmpDir, filename)
		certOut, err := os.Create(certPath)
		if err != nil {
			t.Fatal(err)
		}
		defer certOut.Close()

		if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes}); err != nil {
			t.Fatal(err)
		}

		return certPath
	}

	now := time.Now()

	tests := []struct {
		name           string
		certFile       string
		expectedStatus string
	}{
		{
			name:           "valid certificate (90 days)",
			certFile:       createTestCert("valid.pem", now.AddDate(0, 0, -10), now.AddDate(0, 0, 90)),
			expectedStatus: "valid",
		},
		{
			name:           "warning certificate (20 days)",
			certFile:       createTestCert("warning.pem", now.AddDate(0, 0, -10), now.AddDate(0, 0, 20)),
			expectedStatus: "warning",
		},
		{
			name:           "critical certificate (5 days)",
			certFile:       createTestCert("critical.pem", now.AddDate(0, 0, -10), now.AddDate(0, 0, 5)),
			expectedStatus: "critical",
		},
		{
			name:           "expired certificate",
			certFile:       createTestCert("expired.pem", now.AddDate(0, 0, -30), now.AddDate(0, 0, -5)),
			expectedStatus: "expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := BrokerConfig{
				TLS: &TLSConfig{
					Enabled:  true,
					CertFile: tt.certFile,
				},
			}

			info, err := cfg.GetCertificateInfo()
			if err != nil {
				t.Fatalf("GetCertificateInfo() error = %v", err)
			}

			if info == nil {
				t.Fatal("Expected certificate info, got nil")
			}

			if info.Status != tt.expectedStatus {
				t.Errorf("GetCertificateInfo().Status = %v, want %v", info.Status, tt.expectedStatus)
			}
		})
	}
}

func TestGetCertificateInfo_NoCertificate(t *testing.T) {
	tests := []struct {
		name   string
		config BrokerConfig
	}{
		{
			name:   "no TLS config",
			config: BrokerConfig{},
		},
		{
			name: "TLS disabled",
			config: BrokerConfig{
				TLS: &TLSConfig{
					Enabled: false,
				},
			},
		},
		{
			name: "no cert file",
			config: BrokerConfig{
				TLS: &TLSConfig{
					Enabled: true,
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := tt.config.GetCertificateInfo()
			if err != nil {
				t.Errorf("GetCertificateInfo() unexpected error = %v", err)
			}
			if info != nil {
				t.Errorf("GetCertificateInfo() = %v, want nil", info)
			}
		})
	}
}
