package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"selftrading/src/dockerengine"
	"selftrading/src/model"
	"selftrading/src/repository"
	"selftrading/src/security"
)

// fakeEngine records every call so tests can assert on the exact container
// operations a convergence pass performed.
type fakeEngine struct {
	containers map[string]*dockerengine.Container
	created    []dockerengine.CreateOptions
	restarted  []string
	removed    []string
	aliases    map[string][]string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		containers: map[string]*dockerengine.Container{},
		aliases:    map[string][]string{},
	}
}

func (e *fakeEngine) add(name, state string) *dockerengine.Container {
	c := &dockerengine.Container{ID: "id-" + name, Name: name, Image: "test-image", State: state}
	e.containers[name] = c
	return c
}

func (e *fakeEngine) Create(_ context.Context, opts dockerengine.CreateOptions) (*dockerengine.Container, error) {
	e.created = append(e.created, opts)
	return e.add(opts.Name, dockerengine.StateRunning), nil
}

func (e *fakeEngine) Get(_ context.Context, name string) (*dockerengine.Container, error) {
	return e.containers[name], nil
}

func (e *fakeEngine) Restart(_ context.Context, id string) error {
	e.restarted = append(e.restarted, id)
	for _, c := range e.containers {
		if c.ID == id {
			c.State = dockerengine.StateRunning
		}
	}
	return nil
}

func (e *fakeEngine) Remove(_ context.Context, id string, _ bool) error {
	e.removed = append(e.removed, id)
	for name, c := range e.containers {
		if c.ID == id {
			delete(e.containers, name)
			break
		}
	}
	return nil
}

func (e *fakeEngine) ConnectNetwork(_ context.Context, _, id string, aliases []string) error {
	e.aliases[id] = aliases
	return nil
}

func (e *fakeEngine) ListByImage(_ context.Context, image string) ([]dockerengine.Container, error) {
	var out []dockerengine.Container
	for _, c := range e.containers {
		if c.Image == image {
			out = append(out, *c)
		}
	}
	return out, nil
}

// fakeProber fails the session handshake failCount times, then passes.
type fakeProber struct {
	failCount int
	calls     int
}

func (p *fakeProber) Probe(context.Context, string, int, int, time.Duration) error {
	p.calls++
	if p.calls <= p.failCount {
		return errors.New("handshake refused")
	}
	return nil
}

func setupManagerTest(t *testing.T, engine dockerengine.Engine, prober SessionProber) *Manager {
	t.Helper()

	t.Setenv("BROKER_CREDENTIALS_KEY", base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32)))
	t.Setenv("GATEWAY_IMAGE", "test-image")
	t.Setenv("GATEWAY_PROBE_TRIES", "3")
	t.Setenv("GATEWAY_PROBE_DELAY", "1ms")
	t.Setenv("GATEWAY_PROBE_TIMEOUT", "10ms")

	return NewManager(engine, nil, prober).WithDialer(
		func(string, time.Duration) (net.Conn, error) {
			c1, c2 := net.Pipe()
			c2.Close()
			return c1, nil
		},
	)
}

func credentialedUser(t *testing.T, id uint) *model.User {
	t.Helper()

	encrypted, err := security.EncryptString("plain-broker-password")
	require.NoError(t, err)

	return &model.User{
		ID:                 id,
		Email:              "u@x.com",
		Username:           "u",
		BrokerUsername:     "ibuser",
		BrokerPasswordHash: encrypted,
	}
}

func TestEnsureContainerCreatesWhenAbsent(t *testing.T) {
	engine := newFakeEngine()
	manager := setupManagerTest(t, engine, &fakeProber{})
	user := credentialedUser(t, 5)

	require.NoError(t, manager.EnsureContainer(context.Background(), user))

	require.Len(t, engine.created, 1)
	opts := engine.created[0]
	require.Equal(t, "ib-gateway-5", opts.Name)
	require.Equal(t, "test-image", opts.Image)
	require.Equal(t, "ibuser", opts.Env["TWS_USERID"])
	require.Equal(t, "plain-broker-password", opts.Env["TWS_PASSWORD"])
	require.Equal(t, []string{"ib-gateway-5"}, engine.aliases["id-ib-gateway-5"])

	running, err := manager.IsRunning(context.Background(), 5)
	require.NoError(t, err)
	require.True(t, running)
}

func TestEnsureContainerSkipsWhenAlreadyRunning(t *testing.T) {
	engine := newFakeEngine()
	engine.add("ib-gateway-5", dockerengine.StateRunning)
	prober := &fakeProber{}
	manager := setupManagerTest(t, engine, prober)

	require.NoError(t, manager.EnsureContainer(context.Background(), credentialedUser(t, 5)))

	require.Empty(t, engine.created)
	require.Empty(t, engine.restarted)
	require.Zero(t, prober.calls)
}

func TestEnsureContainerRestartsStopped(t *testing.T) {
	engine := newFakeEngine()
	engine.add("ib-gateway-5", "exited")
	manager := setupManagerTest(t, engine, &fakeProber{})

	require.NoError(t, manager.EnsureContainer(context.Background(), credentialedUser(t, 5)))

	require.Equal(t, []string{"id-ib-gateway-5"}, engine.restarted)
	require.Empty(t, engine.created)
}

func TestEnsureContainerRemovesWhenProbeNeverPasses(t *testing.T) {
	engine := newFakeEngine()
	// More failures than the configured probe budget.
	manager := setupManagerTest(t, engine, &fakeProber{failCount: 100})

	err := manager.EnsureContainer(context.Background(), credentialedUser(t, 5))
	require.Error(t, err)
	require.Equal(t, []string{"id-ib-gateway-5"}, engine.removed)

	running, checkErr := manager.IsRunning(context.Background(), 5)
	require.NoError(t, checkErr)
	require.False(t, running)
}

func TestEnsureContainerToleratesSlowHandshake(t *testing.T) {
	engine := newFakeEngine()
	prober := &fakeProber{failCount: 2}
	manager := setupManagerTest(t, engine, prober)

	require.NoError(t, manager.EnsureContainer(context.Background(), credentialedUser(t, 5)))
	require.Equal(t, 3, prober.calls)
	require.Empty(t, engine.removed)
}

func TestPruneOrphansRemovesOnlyUnownedContainers(t *testing.T) {
	engine := newFakeEngine()
	engine.add("ib-gateway-3", dockerengine.StateRunning)
	engine.add("ib-gateway-7", "exited")
	engine.add("ib-gateway-9", dockerengine.StateRunning)
	engine.add("postgres", dockerengine.StateRunning)
	manager := setupManagerTest(t, engine, &fakeProber{})

	require.NoError(t, manager.PruneOrphans(context.Background(), map[uint]bool{3: true, 7: true}))

	require.Equal(t, []string{"id-ib-gateway-9"}, engine.removed)
	require.Contains(t, engine.containers, "ib-gateway-3")
	require.Contains(t, engine.containers, "ib-gateway-7")
	require.Contains(t, engine.containers, "postgres")
}

func TestRunCycleConvergesCredentialedUsers(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}))

	engine := newFakeEngine()
	engine.add("ib-gateway-99", dockerengine.StateRunning)
	manager := setupManagerTest(t, engine, &fakeProber{})
	manager.users = repository.NewUserRepository().WithDB(db)

	user := credentialedUser(t, 1)
	require.NoError(t, db.Create(user).Error)

	manager.RunCycle(context.Background())

	// The credentialed user got a container; the orphan was pruned.
	require.Contains(t, engine.containers, "ib-gateway-1")
	require.Equal(t, []string{"id-ib-gateway-99"}, engine.removed)
}
