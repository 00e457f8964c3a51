package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"selftrading/src/broker"
	"selftrading/src/broker/ibgw"
	"selftrading/src/gateway"
	"selftrading/src/model"
	"selftrading/src/repository"
)

// Session is what one tenant's pipeline needs from an open gateway
// connection. *broker.Manager is the production implementation; tests
// substitute a fake.
type Session interface {
	Connect(ctx context.Context) error
	Disconnect()
	AccountInformation(ctx context.Context) (broker.AccountInformation, error)
	OpenPositions(ctx context.Context) ([]broker.PositionRow, error)
	Trades(ctx context.Context) ([]broker.TradeRow, error)
	PlaceTestOrder(ctx context.Context, symbol string) (broker.OrderSnapshot, error)
}

// SessionFactory builds a session for one user's gateway. A fresh session
// is built per user per cycle and always disconnected before the next
// user starts, so the deterministic client ids can never collide.
type SessionFactory func(user *model.User) Session

// ContainerCheck reports whether a user's gateway container is running.
type ContainerCheck func(ctx context.Context, userID uint) (bool, error)

// Runner drives the reconciliation cycle over all credentialed users,
// strictly sequentially.
type Runner struct {
	users     *repository.UserRepository
	snapshots *repository.SnapshotRepository
	positions *repository.PositionRepository
	orders    *repository.OrderRepository
	trades    *repository.TradeRepository

	isRunning  ContainerCheck
	newSession SessionFactory
	config     Config
	now        func() time.Time
}

// NewRunner wires the scheduler with its collaborators.
func NewRunner(
	users *repository.UserRepository,
	snapshots *repository.SnapshotRepository,
	positions *repository.PositionRepository,
	orders *repository.OrderRepository,
	trades *repository.TradeRepository,
	isRunning ContainerCheck,
) *Runner {
	config := GetConfig()
	return &Runner{
		users:     users,
		snapshots: snapshots,
		positions: positions,
		orders:    orders,
		trades:    trades,
		isRunning: isRunning,
		config:    config,
		now:       time.Now,
		newSession: func(user *model.User) Session {
			return broker.NewManager(
				ibgw.NewClient(),
				gateway.ContainerName(user.ID),
				config.SessionPort,
				gateway.SessionClientID(user.ID),
			)
		},
	}
}

// WithSessionFactory overrides session construction. Useful for tests.
func (r *Runner) WithSessionFactory(factory SessionFactory) *Runner {
	r.newSession = factory
	return r
}

// WithClock overrides the time source. Useful for tests.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// StartLoop runs reconciliation cycles until the context is cancelled. The
// first cycle runs immediately; afterwards the ticker fires every
// LOOP_PERIOD. A cycle that overruns the period rolls straight into the
// next tick instead of sleeping the full interval again.
func (r *Runner) StartLoop(ctx context.Context) {
	logger.WithFields(map[string]interface{}{
		"component": "scheduler.Runner",
		"period":    r.config.LoopPeriod.String(),
	}).Info("Scheduler booting")

	ticker := time.NewTicker(r.config.LoopPeriod)
	defer ticker.Stop()

	r.ProcessAllUsers(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			r.ProcessAllUsers(ctx)
		}
	}
}

// ProcessAllUsers runs one reconciliation cycle: every credentialed user,
// sequentially, each inside its own failure boundary.
func (r *Runner) ProcessAllUsers(ctx context.Context) {
	cycleLog := logger.WithFields(map[string]interface{}{
		"component": "scheduler.Runner",
		"cycle_id":  uuid.NewString(),
	})

	users, err := r.users.FindWithBrokerCredentials(ctx)
	if err != nil {
		cycleLog.WithError(err).Warn("Credential directory not ready, skipping cycle")
		return
	}
	if len(users) == 0 {
		cycleLog.Warn("No users with broker credentials")
		return
	}

	cycleLog.WithField("users", len(users)).Info("Processing users")
	for i := range users {
		r.handleUser(ctx, cycleLog, &users[i])
	}
	cycleLog.Info("Processed all users")
}

// handleUser runs one user's pipeline. Any error or panic in the pipeline
// is logged with the user id and contained here; the session is always
// disconnected before returning, on every exit path.
func (r *Runner) handleUser(ctx context.Context, cycleLog *logger.Entry, user *model.User) {
	log := cycleLog.WithFields(map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
	})

	defer func() {
		if rec := recover(); rec != nil {
			log.WithError(fmt.Errorf("%+v", rec)).Error("User pipeline panicked")
		}
	}()

	running, err := r.isRunning(ctx, user.ID)
	if err != nil {
		log.WithError(err).Error("Failed to check gateway container, skipping user")
		return
	}
	if !running {
		log.Warn("Gateway container not running, skipping user")
		return
	}

	session := r.newSession(user)
	defer session.Disconnect()

	if err := session.Connect(ctx); err != nil {
		if errors.Is(err, broker.ErrGatewayUnreachable) {
			log.WithError(err).Error("Gateway unreachable this cycle")
		} else {
			log.WithError(err).Error("Failed to open gateway session")
		}
		return
	}

	if err := r.snapshotStep(ctx, log, session, user.ID); err != nil {
		log.WithError(err).Error("Snapshot step failed")
		return
	}

	if err := r.positionsStep(ctx, log, session, user.ID); err != nil {
		log.WithError(err).Error("Positions step failed")
		return
	}

	r.testOrderStep(ctx, log, session, user.ID)

	rows, err := session.Trades(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to fetch trades")
		return
	}

	if err := r.syncOrders(ctx, log, user.ID, rows); err != nil {
		log.WithError(err).Error("Order sync failed")
		return
	}

	if err := r.syncFills(ctx, log, user.ID, rows); err != nil {
		log.WithError(err).Error("Fill sync failed")
		return
	}
}

// snapshotStep stores today's account snapshot unless one already exists
// for this user's calendar day. An empty summary is a soft no-op.
func (r *Runner) snapshotStep(ctx context.Context, log *logger.Entry, session Session, userID uint) error {
	existing, err := r.snapshots.FindToday(ctx, userID, r.now())
	if err != nil {
		return err
	}
	if existing != nil {
		log.Debug("Snapshot already exists for today")
		return nil
	}

	info, err := session.AccountInformation(ctx)
	if err != nil {
		return err
	}
	if info.Empty() {
		log.Warn("No snapshot data, gateway returned empty summary")
		return nil
	}

	if err := r.snapshots.Create(ctx, snapshotFromInfo(userID, info, r.now())); err != nil {
		return err
	}

	log.Info("Snapshot stored")
	return nil
}

// positionsStep full-replaces the user's open-position set with whatever
// the broker reports right now, including the empty set.
func (r *Runner) positionsStep(ctx context.Context, log *logger.Entry, session Session, userID uint) error {
	rows, err := session.OpenPositions(ctx)
	if err != nil {
		return err
	}

	log.WithField("positions", len(rows)).Info("Open positions fetched")
	return r.positions.ReplaceAll(ctx, userID, positionsFromRows(userID, rows, r.now()))
}

// testOrderStep optionally places a marked test order. All of its failure
// modes are soft: the order either shows up with a permanent id on a later
// sync pass or never existed as far as the store is concerned.
func (r *Runner) testOrderStep(ctx context.Context, log *logger.Entry, session Session, userID uint) {
	if !r.config.PlaceTestOrders || len(r.config.TestOrderSymbols) == 0 {
		return
	}

	symbol := r.config.TestOrderSymbols[rand.Intn(len(r.config.TestOrderSymbols))]
	snap, err := session.PlaceTestOrder(ctx, symbol)
	switch {
	case errors.Is(err, broker.ErrNoPermID):
		log.WithField("symbol", symbol).Warn("Test order has no permanent id yet, not persisting")
		return
	case errors.Is(err, broker.ErrPriceUnavailable):
		log.WithField("symbol", symbol).Warn("No reference price, test order skipped")
		return
	case err != nil:
		log.WithError(err).Error("Failed to place test order")
		return
	}

	log.WithFields(map[string]interface{}{
		"symbol":  symbol,
		"perm_id": snap.PermID,
		"status":  snap.Status,
	}).Info("Test order placed")
}

func (r *Runner) syncOrders(ctx context.Context, log *logger.Entry, userID uint, rows []broker.TradeRow) error {
	orders := ordersFromTrades(userID, rows)
	if len(orders) == 0 {
		log.Debug("No orders to synchronize")
		return nil
	}

	if err := r.orders.Upsert(ctx, orders); err != nil {
		return err
	}

	log.WithField("orders", len(orders)).Debug("Orders synchronized")
	return nil
}

func (r *Runner) syncFills(ctx context.Context, log *logger.Entry, userID uint, rows []broker.TradeRow) error {
	fills := fillsFromTrades(userID, rows)
	if len(fills) == 0 {
		log.Debug("No fills to synchronize")
		return nil
	}

	if err := r.trades.Upsert(ctx, fills); err != nil {
		return err
	}

	log.WithField("fills", len(fills)).Debug("Fills synchronized")
	return nil
}
