package gateway

import (
	"context"
	"fmt"
	"net"
	"time"

	logger "github.com/sirupsen/logrus"

	"selftrading/src/dockerengine"
	"selftrading/src/model"
	"selftrading/src/repository"
	"selftrading/src/security"
)

// Lifecycle states a tenant's container moves through, used in logs.
const (
	StateAbsent           = "absent"
	StateStarting         = "starting"
	StateProbingTransport = "probing_transport"
	StateProbingSession   = "probing_session"
	StateRunning          = "running"
	StateUnhealthy        = "unhealthy"
	StateRemoved          = "removed"
)

// Manager converges the live container set onto the desired set derived
// from the credentialed-user list: one container per user, named after the
// user, removed again when the user's credentials disappear or readiness
// cannot be reached within budget.
type Manager struct {
	engine dockerengine.Engine
	users  *repository.UserRepository
	prober SessionProber
	config Config

	// dial is swappable so tests can drive the transport probe without a
	// real socket.
	dial func(addr string, timeout time.Duration) (net.Conn, error)
}

// NewManager wires the lifecycle manager with its collaborators.
func NewManager(engine dockerengine.Engine, users *repository.UserRepository, prober SessionProber) *Manager {
	return &Manager{
		engine: engine,
		users:  users,
		prober: prober,
		config: GetConfig(),
		dial: func(addr string, timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, timeout)
		},
	}
}

// WithDialer overrides the transport-probe dialer. Useful for tests.
func (m *Manager) WithDialer(dial func(addr string, timeout time.Duration) (net.Conn, error)) *Manager {
	m.dial = dial
	return m
}

// containerEnv builds the launch environment for a user's gateway. The
// stored broker password is decrypted here and nowhere else.
func (m *Manager) containerEnv(user *model.User) (map[string]string, error) {
	password, err := security.DecryptString(user.BrokerPasswordHash)
	if err != nil {
		return nil, fmt.Errorf("decrypt broker password for user %d: %w", user.ID, err)
	}

	return map[string]string{
		"TWS_USERID":          user.BrokerUsername,
		"TWS_PASSWORD":        password,
		"TRADING_MODE":        m.config.TradingMode,
		"READ_ONLY_API":       "no",
		"TIME_ZONE":           m.config.TimeZone,
		"TWS_ACCEPT_INCOMING": "accept",
		"BYPASS_WARNING":      "yes",
		"OVERRIDE_API_PORT":   fmt.Sprintf("%d", m.config.APIPort),
	}, nil
}

// EnsureContainer makes sure a ready gateway container exists for the user:
// create it if absent, restart it if stopped, and in either case block
// until the two-phase readiness probe passes. On probe failure the
// container is force-removed so the next cycle starts over from absent.
func (m *Manager) EnsureContainer(ctx context.Context, user *model.User) error {
	name := ContainerName(user.ID)
	log := logger.WithFields(map[string]interface{}{
		"component": "gateway.Manager",
		"user_id":   user.ID,
		"container": name,
	})

	container, err := m.engine.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", name, err)
	}

	if container != nil {
		if container.Running() {
			log.WithField("state", StateRunning).Debug("Container already running")
			return nil
		}

		log.WithField("state", StateUnhealthy).Warn("Container not running, restarting")
		if err := m.engine.Restart(ctx, container.ID); err != nil {
			return fmt.Errorf("restart %s: %w", name, err)
		}

		if !m.waitReady(ctx, name) {
			log.WithField("state", StateRemoved).Warn("Restarted container failed readiness, removing")
			if err := m.engine.Remove(ctx, container.ID, true); err != nil {
				log.WithError(err).Error("Failed to remove unready container")
			}
			return fmt.Errorf("container %s failed readiness after restart", name)
		}

		log.WithField("state", StateRunning).Info("Container restarted and ready")
		return nil
	}

	log.WithField("state", StateStarting).Info("Container does not exist, creating")

	env, err := m.containerEnv(user)
	if err != nil {
		return err
	}

	container, err = m.engine.Create(ctx, dockerengine.CreateOptions{
		Name:    name,
		Image:   m.config.Image,
		Env:     env,
		Network: m.config.Network,
		Volumes: map[string]string{m.config.SettingsVolume: m.config.SettingsMount},
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}

	// The predictable alias is what the scheduler dials.
	if err := m.engine.ConnectNetwork(ctx, m.config.Network, container.ID, []string{name}); err != nil {
		log.WithError(err).Warn("Failed to attach network alias")
	}

	if !m.waitReady(ctx, name) {
		log.WithField("state", StateRemoved).Warn("New container failed readiness, removing")
		if err := m.engine.Remove(ctx, container.ID, true); err != nil {
			log.WithError(err).Error("Failed to remove unready container")
		}
		return fmt.Errorf("container %s failed readiness", name)
	}

	log.WithField("state", StateRunning).Info("Container ready and reachable")
	return nil
}

// IsRunning reports whether the user's container is currently up. The
// scheduler checks this before attempting a session.
func (m *Manager) IsRunning(ctx context.Context, userID uint) (bool, error) {
	container, err := m.engine.Get(ctx, ContainerName(userID))
	if err != nil {
		return false, err
	}
	return container.Running(), nil
}

// PruneOrphans force-removes every gateway container whose owning user is
// no longer in the credentialed set. Containers outside the naming scheme
// are left alone.
func (m *Manager) PruneOrphans(ctx context.Context, activeIDs map[uint]bool) error {
	containers, err := m.engine.ListByImage(ctx, m.config.Image)
	if err != nil {
		return fmt.Errorf("list gateway containers: %w", err)
	}

	for _, container := range containers {
		userID, ok := ParseUserID(container.Name)
		if !ok {
			continue
		}
		if activeIDs[userID] {
			continue
		}

		logger.WithFields(map[string]interface{}{
			"component": "gateway.Manager",
			"container": container.Name,
			"user_id":   userID,
			"state":     StateRemoved,
		}).Info("Pruning orphan container")

		if err := m.engine.Remove(ctx, container.ID, true); err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"component": "gateway.Manager",
				"container": container.Name,
			}).Error("Failed to remove orphan container")
		}
	}
	return nil
}

// RunCycle converges once: ensure a ready container per credentialed user,
// then prune orphans. One user's engine trouble never blocks the others.
func (m *Manager) RunCycle(ctx context.Context) {
	users, err := m.users.FindWithBrokerCredentials(ctx)
	if err != nil {
		logger.WithError(err).Warn("Credential directory not ready, retrying next cycle")
		return
	}

	logger.WithFields(map[string]interface{}{
		"component": "gateway.Manager",
		"users":     len(users),
	}).Info("Converging gateway containers")

	activeIDs := make(map[uint]bool, len(users))
	for i := range users {
		user := &users[i]
		activeIDs[user.ID] = true

		if err := m.EnsureContainer(ctx, user); err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"component": "gateway.Manager",
				"user_id":   user.ID,
			}).Error("Failed to bring up gateway container, skipping user this cycle")
		}
	}

	if err := m.PruneOrphans(ctx, activeIDs); err != nil {
		logger.WithError(err).Error("Orphan pruning failed")
	}
}

// RunLoop converges on a fixed interval until the context is cancelled.
// The first cycle runs immediately.
func (m *Manager) RunLoop(ctx context.Context) {
	logger.WithFields(map[string]interface{}{
		"component": "gateway.Manager",
		"network":   m.config.Network,
		"interval":  m.config.CheckInterval.String(),
	}).Info("Gateway manager starting")

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	m.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Gateway manager stopped")
			return
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}
