package kafka

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

const dialTimeout = 5 * time.Second

// HealthChecker reports whether the task broker is reachable. It dials raw
// TCP instead of opening a Kafka session: the worker's consumer owns the real
// connection, and readiness only needs to know the brokers answer.
type HealthChecker struct {
	brokers []string
}

// NewHealthChecker takes the comma-separated broker list straight from
// config.
func NewHealthChecker(brokers string) *HealthChecker {
	var list []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			list = append(list, b)
		}
	}
	return &HealthChecker{brokers: list}
}

// Check succeeds when any broker accepts a connection; the cluster can serve
// the task topic as long as one is up.
func (h *HealthChecker) Check(ctx context.Context) error {
	if len(h.brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	var lastErr error
	for _, broker := range h.brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("no kafka brokers reachable: %w", lastErr)
}
