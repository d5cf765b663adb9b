package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/utils"
	kafkago "github.com/segmentio/kafka-go"
	kgsasl "github.com/segmentio/kafka-go/sasl"
	kgplain "github.com/segmentio/kafka-go/sasl/plain"
	kgscram "github.com/segmentio/kafka-go/sasl/scram"
)

// SkipListenerCheckOption disables the advertised listener check for a broker.
const SkipListenerCheckOption = "skip_listener_check"

// ErrNoReachableListener is returned when the bootstrap broker answers but
// none of the listeners it advertises can be dialed.
var ErrNoReachableListener = errors.New("no advertised listener is reachable")

// Prober dials the bootstrap address and every advertised listener with a
// plain kafka-go connection, independently of the franz-go client, so that
// misconfigured advertised listeners are reported before any session starts.
type Prober struct{}

func NewProber() *Prober { return &Prober{} }

// Probe returns the reachable advertised addresses. ctx bounds the whole probe.
func (p *Prober) Probe(ctx context.Context, cfg config.BrokerConfig) ([]string, error) {
	dialer, err := probeDialer(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := dialer.DialContext(ctx, "tcp", cfg.Address())
	if err != nil {
		return nil, classify("dial", cfg, err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	brokers, err := conn.Brokers()
	stop()
	_ = conn.Close()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, classify("metadata", cfg, err)
	}

	if skipListenerCheck(cfg) {
		return []string{cfg.Address()}, nil
	}

	var reachable, unreachable []string
	for _, b := range brokers {
		addr := net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
		c, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			utils.Logger.Warn("advertised listener unreachable", "broker", cfg.Name, "listener", addr, "err", err)
			unreachable = append(unreachable, addr)
			continue
		}
		_ = c.Close()
		reachable = append(reachable, addr)
	}
	if len(reachable) == 0 && len(brokers) > 0 {
		return nil, fmt.Errorf("%w: %s advertises %s", ErrNoReachableListener, cfg.Address(), strings.Join(unreachable, ", "))
	}
	return reachable, nil
}

// skipListenerCheck is true for AWS IAM brokers, whose listeners sit behind
// private endpoints, and when the broker options ask for it.
func skipListenerCheck(cfg config.BrokerConfig) bool {
	if cfg.AWS != nil && cfg.AWS.IAM {
		return true
	}
	v, _ := strconv.ParseBool(cfg.Options[SkipListenerCheckOption])
	return v
}

func probeDialer(cfg config.BrokerConfig) (*kafkago.Dialer, error) {
	d := &kafkago.Dialer{ClientID: cfg.ClientID}
	if d.ClientID == "" {
		d.ClientID = "kmt-probe"
	}
	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsCfg, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		d.TLS = tlsCfg
	}
	if cfg.SASL != nil && cfg.SASL.Mechanism != "" {
		mech, err := probeSASLMechanism(cfg.SASL)
		if err != nil {
			return nil, err
		}
		d.SASLMechanism = mech
	}
	return d, nil
}

// probeSASLMechanism mirrors buildSASLMechanism for kafka-go.
func probeSASLMechanism(s *config.SASLConfig) (kgsasl.Mechanism, error) {
	username, password := saslCredentials(s)
	switch saslMechanismName(s) {
	case "PLAIN":
		return kgplain.Mechanism{Username: username, Password: password}, nil
	case "SCRAM-SHA-256":
		return kgscram.Mechanism(kgscram.SHA256, username, password)
	case "SCRAM-SHA-512":
		return kgscram.Mechanism(kgscram.SHA512, username, password)
	default:
		return nil, nil
	}
}
