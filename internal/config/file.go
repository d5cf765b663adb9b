package config

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrDuplicateName is returned when two records of the same kind share a name.
	ErrDuplicateName = errors.New("duplicate config name")

	// ErrUnknownReference is returned when a record points at a broker or topic that does not exist.
	ErrUnknownReference = errors.New("unknown config reference")
)

// BrokerConfig holds broker connectivity and security configuration.
// Identity binds to Name; Hostname and Port need not be unique.
type BrokerConfig struct {
	Name     string            `yaml:"name" json:"name"`
	Draft    bool              `yaml:"draft,omitempty" json:"draft,omitempty"`
	Hostname string            `yaml:"hostname" json:"hostname"`
	Port     int               `yaml:"port" json:"port"`
	ClientID string            `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	TLS      *TLSConfig        `yaml:"tls,omitempty" json:"tls,omitempty"`
	SASL     *SASLConfig       `yaml:"sasl,omitempty" json:"sasl,omitempty"`
	AWS      *AWSConfig        `yaml:"aws,omitempty" json:"aws,omitempty"`
	Options  map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
}

// TLSConfig holds TLS related fields.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	CAFile             string `yaml:"ca_file,omitempty" json:"ca_file,omitempty"`
	CertFile           string `yaml:"cert_file,omitempty" json:"cert_file,omitempty"`
	KeyFile            string `yaml:"key_file,omitempty" json:"key_file,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty" json:"insecure_skip_verify,omitempty"`
}

// SASLConfig holds SASL configuration. Credentials may be provided inline or via env var names.
type SASLConfig struct {
	Mechanism      string `yaml:"mechanism,omitempty" json:"mechanism,omitempty"` // e.g. PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Username       string `yaml:"username,omitempty" json:"username,omitempty"`
	Password       string `yaml:"password,omitempty" json:"-"`
	UsernameEnv    string `yaml:"username_env,omitempty" json:"username_env,omitempty"`
	PasswordEnv    string `yaml:"password_env,omitempty" json:"password_env,omitempty"`
	ScramAlgorithm string `yaml:"scram_algorithm,omitempty" json:"scram_algorithm,omitempty"`
}

// AWSConfig holds AWS IAM SASL config.
type AWSConfig struct {
	IAM             bool   `yaml:"iam,omitempty" json:"iam,omitempty"`
	Region          string `yaml:"region,omitempty" json:"region,omitempty"`
	AccessKeyEnv    string `yaml:"access_key_env,omitempty" json:"access_key_env,omitempty"`
	SecretKeyEnv    string `yaml:"secret_key_env,omitempty" json:"secret_key_env,omitempty"`
	SessionTokenEnv string `yaml:"session_token_env,omitempty" json:"session_token_env,omitempty"`
}

// TopicConfig describes a topic that is created locally as a draft and
// materialized on the broker by an explicit create.
type TopicConfig struct {
	Name              string            `yaml:"name" json:"name"`
	Draft             bool              `yaml:"draft,omitempty" json:"draft,omitempty"`
	Broker            string            `yaml:"broker" json:"broker"`
	Topic             string            `yaml:"topic" json:"topic"`
	Partitions        int32             `yaml:"partitions,omitempty" json:"partitions,omitempty"`
	ReplicationFactor int16             `yaml:"replication_factor,omitempty" json:"replication_factor,omitempty"`
	Entries           map[string]string `yaml:"entries,omitempty" json:"entries,omitempty"`
}

// SenderConfig is a named producer profile.
type SenderConfig struct {
	Name          string            `yaml:"name" json:"name"`
	Draft         bool              `yaml:"draft,omitempty" json:"draft,omitempty"`
	Broker        string            `yaml:"broker" json:"broker"`
	Topic         string            `yaml:"topic" json:"topic"`
	MessageKey    string            `yaml:"message_key,omitempty" json:"message_key,omitempty"`
	Headers       map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Content       string            `yaml:"content,omitempty" json:"content,omitempty"`
	RepeatCount   int               `yaml:"repeat_count,omitempty" json:"repeat_count,omitempty"`
	RatePerSecond float64           `yaml:"rate_per_second,omitempty" json:"rate_per_second,omitempty"`
	Simulate      bool              `yaml:"simulate,omitempty" json:"simulate,omitempty"` // render and log, never produce
}

// ListenerConfig is a named consumer profile.
type ListenerConfig struct {
	Name           string `yaml:"name" json:"name"`
	Draft          bool   `yaml:"draft,omitempty" json:"draft,omitempty"`
	Broker         string `yaml:"broker" json:"broker"`
	Topic          string `yaml:"topic" json:"topic"`
	ConsumerGroup  string `yaml:"consumer_group,omitempty" json:"consumer_group,omitempty"`
	FetchTimeoutMs int    `yaml:"fetch_timeout_ms,omitempty" json:"fetch_timeout_ms,omitempty"`
	OffsetReset    string `yaml:"offset_reset,omitempty" json:"offset_reset,omitempty"` // earliest | latest
	MaxMessages    int    `yaml:"max_messages,omitempty" json:"max_messages,omitempty"`
}

// FileConfig is the on-disk configuration document.
type FileConfig struct {
	Brokers   []BrokerConfig   `yaml:"brokers" json:"brokers"`
	Topics    []TopicConfig    `yaml:"topics,omitempty" json:"topics,omitempty"`
	Senders   []SenderConfig   `yaml:"senders,omitempty" json:"senders,omitempty"`
	Listeners []ListenerConfig `yaml:"listeners,omitempty" json:"listeners,omitempty"`
	Settings  Settings         `yaml:"settings,omitempty" json:"settings"`
}

func ReadConfig(path string) (FileConfig, error) {
	var cfg FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg.WithDefaults(), nil
}

func WriteConfig(path string, cfg FileConfig) error {
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// WithDefaults fills zero fields of every record with the documented defaults.
func (f FileConfig) WithDefaults() FileConfig {
	out := FileConfig{Settings: f.Settings.WithDefaults()}
	for _, b := range f.Brokers {
		out.Brokers = append(out.Brokers, b.WithDefaults())
	}
	for _, t := range f.Topics {
		out.Topics = append(out.Topics, t.WithDefaults())
	}
	for _, s := range f.Senders {
		out.Senders = append(out.Senders, s.WithDefaults())
	}
	for _, l := range f.Listeners {
		out.Listeners = append(out.Listeners, l.WithDefaults())
	}
	return out
}

// Validate checks name uniqueness per record kind and that references resolve.
func (f FileConfig) Validate() error {
	brokers := make(map[string]struct{}, len(f.Brokers))
	for _, b := range f.Brokers {
		if _, dup := brokers[b.Name]; dup {
			return fmt.Errorf("%w: broker %q", ErrDuplicateName, b.Name)
		}
		brokers[b.Name] = struct{}{}
	}

	seen := map[string]struct{}{}
	for _, t := range f.Topics {
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("%w: topic %q", ErrDuplicateName, t.Name)
		}
		seen[t.Name] = struct{}{}
		if _, ok := brokers[t.Broker]; !ok {
			return fmt.Errorf("%w: topic %q references broker %q", ErrUnknownReference, t.Name, t.Broker)
		}
	}

	seen = map[string]struct{}{}
	for _, s := range f.Senders {
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("%w: sender %q", ErrDuplicateName, s.Name)
		}
		seen[s.Name] = struct{}{}
		if _, ok := brokers[s.Broker]; !ok {
			return fmt.Errorf("%w: sender %q references broker %q", ErrUnknownReference, s.Name, s.Broker)
		}
	}

	seen = map[string]struct{}{}
	for _, l := range f.Listeners {
		if _, dup := seen[l.Name]; dup {
			return fmt.Errorf("%w: listener %q", ErrDuplicateName, l.Name)
		}
		seen[l.Name] = struct{}{}
		if _, ok := brokers[l.Broker]; !ok {
			return fmt.Errorf("%w: listener %q references broker %q", ErrUnknownReference, l.Name, l.Broker)
		}
	}
	return nil
}

// Address returns the host:port bootstrap address.
func (c *BrokerConfig) Address() string {
	return net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port))
}

// GetAuthType returns a human-readable authentication type based on the broker config
func (c *BrokerConfig) GetAuthType() string {
	if c.AWS != nil && c.AWS.IAM {
		return "AWS IAM"
	}

	if c.SASL != nil && c.SASL.Mechanism != "" {
		mechanism := c.SASL.Mechanism
		if c.TLS != nil && c.TLS.Enabled {
			return "SASL/" + mechanism + " + TLS"
		}
		return "SASL/" + mechanism
	}

	if c.TLS != nil && c.TLS.Enabled {
		if c.TLS.CertFile != "" && c.TLS.KeyFile != "" {
			return "mTLS"
		}
		return "TLS"
	}

	return "PLAINTEXT"
}

// CertificateInfo holds certificate validity information
type CertificateInfo struct {
	NotBefore    time.Time `json:"not_before"`
	NotAfter     time.Time `json:"not_after"`
	DaysToExpiry int       `json:"days_to_expiry"`
	Status       string    `json:"status"` // "valid", "warning", "critical", "expired"
}

// GetCertificateInfo reads and parses the client certificate to extract validity information.
func (c *BrokerConfig) GetCertificateInfo() (*CertificateInfo, error) {
	if !c.HasCertificate() {
		return nil, nil
	}

	certPEM, err := os.ReadFile(c.TLS.CertFile)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, nil
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}

	daysToExpiry := int(time.Until(cert.NotAfter).Hours() / 24)

	status := "valid"
	switch {
	case time.Now().After(cert.NotAfter):
		status = "expired"
	case daysToExpiry <= 7:
		status = "critical"
	case daysToExpiry <= 30:
		status = "warning"
	}

	return &CertificateInfo{
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
		DaysToExpiry: daysToExpiry,
		Status:       status,
	}, nil
}

// HasCertificate returns true if the broker uses certificate-based authentication
func (c *BrokerConfig) HasCertificate() bool {
	return c.TLS != nil && c.TLS.Enabled && c.TLS.CertFile != ""
}
