package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// classify maps client errors onto the domain error taxonomy.
func classify(op string, cfg config.BrokerConfig, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, kgo.ErrClientClosed) {
		return fmt.Errorf("%s: %w", op, domain.ErrHandleClosed)
	}

	var ke *kerr.Error
	if errors.As(err, &ke) {
		return &domain.ProtocolError{Op: op, Code: ke.Code, Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) {
		return &domain.ConnectivityError{Broker: cfg.Name, Address: cfg.Address(), Cause: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isUnknownTopic reports whether the broker answered that the topic does not exist.
func isUnknownTopic(err error) bool {
	return errors.Is(err, kerr.UnknownTopicOrPartition)
}
