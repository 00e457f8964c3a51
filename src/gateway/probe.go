package gateway

import (
	"context"
	"net"
	"strconv"
	"time"

	logger "github.com/sirupsen/logrus"

	"selftrading/src/broker/ibgw"
)

// SessionProber performs the phase-two readiness check: a full session
// handshake that is immediately torn down. A container can open its port
// well before the session service inside is able to authenticate, so a
// plain transport check alone yields false positives.
type SessionProber interface {
	Probe(ctx context.Context, host string, port, clientID int, timeout time.Duration) error
}

// handshakeProber probes with a real gateway session.
type handshakeProber struct{}

// NewSessionProber returns the production prober.
func NewSessionProber() SessionProber {
	return handshakeProber{}
}

func (handshakeProber) Probe(ctx context.Context, host string, port, clientID int, timeout time.Duration) error {
	client := ibgw.NewClient()
	if err := client.Connect(ctx, host, port, clientID, timeout); err != nil {
		return err
	}
	client.Disconnect()
	return nil
}

// waitReady runs the two-phase readiness probe against a container's
// well-known session port. Both phases retry on a fixed delay up to the
// configured attempt budget; either budget running out fails the probe.
func (m *Manager) waitReady(ctx context.Context, host string) bool {
	addr := net.JoinHostPort(host, strconv.Itoa(m.config.APIPort))
	log := logger.WithFields(map[string]interface{}{
		"component": "gateway.Manager",
		"addr":      addr,
	})

	opened := false
	for attempt := 1; attempt <= m.config.ProbeTries; attempt++ {
		conn, err := m.dial(addr, 2*time.Second)
		if err == nil {
			conn.Close()
			log.WithField("attempt", attempt).Info("Session port open")
			opened = true
			break
		}

		log.WithField("attempt", attempt).Debug("Session port not open yet")
		select {
		case <-ctx.Done():
			return false
		case <-time.After(m.config.ProbeDelay):
		}
	}
	if !opened {
		log.Error("Session port never opened")
		return false
	}

	for attempt := 1; attempt <= m.config.ProbeTries; attempt++ {
		err := m.prober.Probe(ctx, host, m.config.APIPort, probeClientID, m.config.ProbeTimeout)
		if err == nil {
			log.WithField("attempt", attempt).Info("Session handshake passed, gateway ready")
			return true
		}

		log.WithError(err).WithField("attempt", attempt).Debug("Session service not ready yet")
		select {
		case <-ctx.Done():
			return false
		case <-time.After(m.config.ProbeDelay):
		}
	}

	log.Error("Gave up waiting for session handshake")
	return false
}
