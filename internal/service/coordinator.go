package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chargehub/internal/models"
	"chargehub/internal/mqtt"
	"chargehub/internal/observability/metrics"
	"chargehub/internal/redisstore"
	"chargehub/internal/repository"
)

// DefaultInactivityTimeout closes a session after this long without a
// positive consumption sample.
const DefaultInactivityTimeout = 60 * time.Second

// Store interfaces are narrowed to what the coordinator consumes so tests can
// substitute fakes.

// PortStore resolves device addressing and persists derived port state.
type PortStore interface {
	Resolve(ctx context.Context, deviceID string, physicalIndex int) (models.PortRef, error)
	UpdateStatus(ctx context.Context, portID int64, status models.PortStatus, occupied bool) error
}

// SessionStore persists session lifecycle and accounting.
type SessionStore interface {
	InsertActive(ctx context.Context, session *models.Session) error
	FindActiveByPort(ctx context.Context, portID int64) (*models.Session, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	TouchActivity(ctx context.Context, id string, at time.Time) error
	AddConsumption(ctx context.Context, id string, energyKWh, chargeMAh float64, at time.Time) error
	Complete(ctx context.Context, id string, endTime time.Time, cost float64) error
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]models.StaleSession, error)
}

// SampleStore persists raw consumption samples.
type SampleStore interface {
	Insert(ctx context.Context, sample *models.ConsumptionSample) error
}

// StatusStore persists status reports and the current-status projection.
type StatusStore interface {
	Insert(ctx context.Context, entry *models.PortStatusLog) error
	UpsertCurrent(ctx context.Context, entry *models.PortStatusLog) error
}

// StationStore reads tariffs and tracks device liveness.
type StationStore interface {
	PricePerKWh(ctx context.Context, stationID string) (*float64, error)
	TouchLastSeen(ctx context.Context, stationID string, at time.Time) error
}

// CommandPublisher sends relay commands to devices.
type CommandPublisher interface {
	PublishControl(ctx context.Context, deviceID string, cmd mqtt.ControlCommand) error
}

// LiveStore mirrors active sessions for external readers.
type LiveStore interface {
	Save(ctx context.Context, key models.SessionKey, session redisstore.ActiveSession) error
	Delete(ctx context.Context, key models.SessionKey) error
}

// Completion triggers, recorded in logs and metrics.
const (
	completedByStop      = "stop"
	completedByTimeout   = "timeout"
	completedByReconcile = "reconciled"
)

// CoordinatorConfig wires the coordinator's collaborators.
type CoordinatorConfig struct {
	Ports             PortStore
	Sessions          SessionStore
	Samples           SampleStore
	StatusLog         StatusStore
	Stations          StationStore
	Publisher         CommandPublisher
	Live              LiveStore
	Logger            *zap.Logger
	InactivityTimeout time.Duration
}

// Coordinator owns the session registry, the per-port inactivity timers and
// every session state transition. All work for one device/port pair runs
// under that pair's cell lock. The store stays authoritative throughout; the
// in-process state is a cache that rebuilds itself from it as traffic
// arrives.
type Coordinator struct {
	ports     PortStore
	sessions  SessionStore
	samples   SampleStore
	statusLog StatusStore
	stations  StationStore
	publisher CommandPublisher
	live      LiveStore
	cost      *CostCalculator
	logger    *zap.Logger

	inactivityTimeout time.Duration

	now   func() time.Time
	newID func() string

	mu       sync.Mutex
	closed   bool
	keys     map[models.SessionKey]*keyState
	inflight sync.WaitGroup
}

// NewCoordinator builds coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	timeout := cfg.InactivityTimeout
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	return &Coordinator{
		ports:             cfg.Ports,
		sessions:          cfg.Sessions,
		samples:           cfg.Samples,
		statusLog:         cfg.StatusLog,
		stations:          cfg.Stations,
		publisher:         cfg.Publisher,
		live:              cfg.Live,
		cost:              NewCostCalculator(cfg.Stations, cfg.Logger),
		logger:            cfg.Logger,
		inactivityTimeout: timeout,
		now:               func() time.Time { return time.Now().UTC() },
		newID:             uuid.NewString,
		keys:              make(map[models.SessionKey]*keyState),
	}
}

// InactivityTimeout reports the configured timeout window.
func (c *Coordinator) InactivityTimeout() time.Duration {
	return c.inactivityTimeout
}

func (c *Coordinator) stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// StartSessionInput is a control request to activate a port.
type StartSessionInput struct {
	DeviceID   string
	PortNumber int
	UserID     int64
	// StationID is advisory; the resolved port's station is authoritative.
	StationID string
}

// StartSession activates a port for a user and returns the session id.
// Starting a port the same user already holds is a resume; a port held by
// someone else fails with ErrPortOccupied and mutates nothing.
func (c *Coordinator) StartSession(ctx context.Context, input StartSessionInput) (string, error) {
	if c.stopped() {
		return "", ErrClosed
	}
	key := models.SessionKey{DeviceID: input.DeviceID, PortNumber: input.PortNumber}
	st := c.state(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	ref, err := c.ports.Resolve(ctx, input.DeviceID, input.PortNumber)
	if err != nil {
		return "", err
	}
	if input.StationID != "" && input.StationID != ref.StationID {
		c.logger.Warn("start request station mismatch, using resolved station",
			zap.String("requested", input.StationID),
			zap.String("resolved", ref.StationID),
		)
	}

	existing, err := c.sessions.FindActiveByPort(ctx, ref.ID)
	if err != nil && !errors.Is(err, repository.ErrNoActiveSession) {
		return "", err
	}
	if existing != nil {
		return c.resumeLocked(ctx, key, st, ref, existing, input.UserID)
	}
	return c.createLocked(ctx, key, st, ref, input.UserID)
}

// resumeLocked handles a start on a port that already has an active session.
func (c *Coordinator) resumeLocked(ctx context.Context, key models.SessionKey, st *keyState, ref models.PortRef, existing *models.Session, userID int64) (string, error) {
	if existing.UserID != userID {
		return "", ErrPortOccupied
	}

	if err := c.sessions.TouchActivity(ctx, existing.ID, c.now()); err != nil && !errors.Is(err, repository.ErrNoActiveSession) {
		return "", err
	}
	c.trackLocked(st, existing.ID)
	c.armTimerLocked(key, st, c.inactivityTimeout)

	status := MapPortStatus(mqtt.StatusOnline, models.ChargerStateOn, ref.IsPremium)
	if err := c.ports.UpdateStatus(ctx, ref.ID, status, status.Occupies()); err != nil {
		c.logger.Error("failed to persist port status",
			zap.Int64("port_id", ref.ID),
			zap.Error(err),
		)
	}

	c.publishCommand(ctx, key, models.ChargerStateOn)
	c.saveLive(ctx, key, existing)
	c.logger.Info("session resumed",
		zap.String("session_id", existing.ID),
		zap.String("device_id", key.DeviceID),
		zap.Int("port_number", key.PortNumber),
		zap.Int64("user_id", userID),
	)
	return existing.ID, nil
}

// createLocked starts a fresh session on a free port. Losing the insert race
// to a concurrent start is folded into the same flow as finding that winner
// up front.
func (c *Coordinator) createLocked(ctx context.Context, key models.SessionKey, st *keyState, ref models.PortRef, userID int64) (string, error) {
	now := c.now()
	session := &models.Session{
		ID:           c.newID(),
		UserID:       userID,
		PortID:       ref.ID,
		StationID:    ref.StationID,
		Status:       models.SessionStatusActive,
		StartTime:    now,
		LastActivity: now,
		IsPremium:    ref.IsPremium,
	}
	if err := c.sessions.InsertActive(ctx, session); err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			winner, ferr := c.sessions.FindActiveByPort(ctx, ref.ID)
			if ferr != nil {
				return "", ferr
			}
			return c.resumeLocked(ctx, key, st, ref, winner, userID)
		}
		return "", err
	}

	c.trackLocked(st, session.ID)
	c.armTimerLocked(key, st, c.inactivityTimeout)

	status := MapPortStatus(mqtt.StatusOnline, models.ChargerStateOn, ref.IsPremium)
	if err := c.ports.UpdateStatus(ctx, ref.ID, status, status.Occupies()); err != nil {
		c.logger.Error("failed to persist port status",
			zap.Int64("port_id", ref.ID),
			zap.Error(err),
		)
	}

	c.publishCommand(ctx, key, models.ChargerStateOn)
	c.saveLive(ctx, key, session)
	metrics.SessionsStartedTotal.Inc()
	c.logger.Info("session started",
		zap.String("session_id", session.ID),
		zap.String("device_id", key.DeviceID),
		zap.Int("port_number", key.PortNumber),
		zap.Int64("user_id", userID),
		zap.Bool("premium", ref.IsPremium),
	)
	return session.ID, nil
}

// StopSessionInput is a control request to deactivate a port.
type StopSessionInput struct {
	DeviceID   string
	PortNumber int
	UserID     int64
}

// StopSession ends the caller's session on a port. Stopping a port with no
// active session still drives the relay off and reports success with an
// empty id; stopping someone else's session fails with ErrNotSessionOwner
// and mutates nothing.
func (c *Coordinator) StopSession(ctx context.Context, input StopSessionInput) (string, error) {
	if c.stopped() {
		return "", ErrClosed
	}
	key := models.SessionKey{DeviceID: input.DeviceID, PortNumber: input.PortNumber}
	st := c.state(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	ref, err := c.ports.Resolve(ctx, input.DeviceID, input.PortNumber)
	if err != nil {
		return "", err
	}

	existing, err := c.sessions.FindActiveByPort(ctx, ref.ID)
	if err != nil && !errors.Is(err, repository.ErrNoActiveSession) {
		return "", err
	}
	if existing == nil {
		c.logger.Info("stop requested with no active session",
			zap.String("device_id", key.DeviceID),
			zap.Int("port_number", key.PortNumber),
		)
		c.clearLocked(st)
		if err := c.ports.UpdateStatus(ctx, ref.ID, models.PortStatusAvailable, false); err != nil {
			c.logger.Error("failed to persist port status",
				zap.Int64("port_id", ref.ID),
				zap.Error(err),
			)
		}
		c.publishCommand(ctx, key, models.ChargerStateOff)
		c.dropLive(ctx, key)
		return "", nil
	}
	if existing.UserID != input.UserID {
		return "", ErrNotSessionOwner
	}

	cost := c.cost.Cost(ctx, existing.StationID, existing.EnergyKWh)
	if err := c.sessions.Complete(ctx, existing.ID, c.now(), cost); err != nil && !errors.Is(err, repository.ErrNoActiveSession) {
		return "", err
	}
	c.clearLocked(st)
	if err := c.ports.UpdateStatus(ctx, ref.ID, models.PortStatusAvailable, false); err != nil {
		c.logger.Error("failed to persist port status",
			zap.Int64("port_id", ref.ID),
			zap.Error(err),
		)
	}
	c.publishCommand(ctx, key, models.ChargerStateOff)
	c.dropLive(ctx, key)
	metrics.SessionsCompletedTotal.WithLabelValues(completedByStop).Inc()
	c.logger.Info("session completed",
		zap.String("session_id", existing.ID),
		zap.String("device_id", key.DeviceID),
		zap.Int("port_number", key.PortNumber),
		zap.String("reason", completedByStop),
		zap.Float64("energy_kwh", existing.EnergyKWh),
		zap.Float64("cost", cost),
	)
	return existing.ID, nil
}

// HandleUsage processes one consumption sample.
func (c *Coordinator) HandleUsage(ctx context.Context, deviceID string, msg mqtt.UsageMessage) {
	if c.stopped() {
		return
	}
	if msg.PortNumber == nil {
		c.logger.Warn("usage message without port number", zap.String("device_id", deviceID))
		metrics.TelemetryMessagesTotal.WithLabelValues("usage", "dropped").Inc()
		return
	}
	if *msg.PortNumber == mqtt.StationWidePort {
		c.logger.Info("station-wide usage message ignored", zap.String("device_id", deviceID))
		metrics.TelemetryMessagesTotal.WithLabelValues("usage", "ignored").Inc()
		return
	}

	key := models.SessionKey{DeviceID: deviceID, PortNumber: *msg.PortNumber}
	st := c.state(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	if msg.State() != models.ChargerStateOn {
		// Samples with the charger off never account energy and never end a
		// session; only the dispatcher, timer or reconciler terminate.
		metrics.TelemetryMessagesTotal.WithLabelValues("usage", "ignored").Inc()
		return
	}

	sessionID, ok := c.trackedSessionLocked(ctx, key, st)
	if !ok {
		metrics.TelemetryMessagesTotal.WithLabelValues("usage", "untracked").Inc()
		return
	}

	watts := ValidateConsumption(float64(msg.Consumption))
	if watts <= 0 {
		// Zero post-validation readings are not persisted and do not keep
		// the session alive.
		metrics.TelemetryMessagesTotal.WithLabelValues("usage", "zero").Inc()
		return
	}

	now := c.now()
	sample := &models.ConsumptionSample{
		SessionID:    sessionID,
		DeviceID:     deviceID,
		Watts:        watts,
		ChargerState: models.ChargerStateOn,
		Timestamp:    msg.SampleTime(now),
	}
	if err := c.samples.Insert(ctx, sample); err != nil {
		c.logger.Error("failed to persist consumption sample",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		metrics.TelemetryMessagesTotal.WithLabelValues("usage", "error").Inc()
		return
	}
	if err := c.sessions.AddConsumption(ctx, sessionID, EnergyIncrementKWh(watts), ChargeIncrementMAh(watts), now); err != nil {
		if errors.Is(err, repository.ErrNoActiveSession) {
			// Completed underneath us; stop tracking it.
			c.clearLocked(st)
			metrics.TelemetryMessagesTotal.WithLabelValues("usage", "untracked").Inc()
			return
		}
		c.logger.Error("failed to accumulate consumption",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		metrics.TelemetryMessagesTotal.WithLabelValues("usage", "error").Inc()
		return
	}

	c.armTimerLocked(key, st, c.inactivityTimeout)
	metrics.TelemetryMessagesTotal.WithLabelValues("usage", "accounted").Inc()
	c.logger.Debug("consumption accounted",
		zap.String("session_id", sessionID),
		zap.Float64("watts", watts),
	)
}

// trackedSessionLocked returns the session id the cell tracks, falling back
// to the store on a miss so tracking rebuilds itself after a restart.
func (c *Coordinator) trackedSessionLocked(ctx context.Context, key models.SessionKey, st *keyState) (string, bool) {
	if st.sessionID != "" {
		return st.sessionID, true
	}

	ref, err := c.ports.Resolve(ctx, key.DeviceID, key.PortNumber)
	if err != nil {
		if errors.Is(err, repository.ErrPortNotFound) {
			c.logger.Warn("usage for unknown port",
				zap.String("device_id", key.DeviceID),
				zap.Int("port_number", key.PortNumber),
			)
		} else {
			c.logger.Error("port resolve failed",
				zap.String("device_id", key.DeviceID),
				zap.Error(err),
			)
		}
		return "", false
	}
	sess, err := c.sessions.FindActiveByPort(ctx, ref.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrNoActiveSession) {
			c.logger.Error("active session lookup failed",
				zap.Int64("port_id", ref.ID),
				zap.Error(err),
			)
		}
		return "", false
	}

	c.trackLocked(st, sess.ID)
	c.armTimerLocked(key, st, c.inactivityTimeout)
	c.saveLive(ctx, key, sess)
	c.logger.Info("adopted active session from store",
		zap.String("session_id", sess.ID),
		zap.String("device_id", key.DeviceID),
		zap.Int("port_number", key.PortNumber),
	)
	return sess.ID, true
}

// HandleStatus processes one status report. This path runs whether or not a
// session is tracked on the port.
func (c *Coordinator) HandleStatus(ctx context.Context, deviceID string, msg mqtt.StatusMessage) {
	if c.stopped() {
		return
	}
	if msg.PortNumber == nil {
		c.logger.Warn("status message without port number", zap.String("device_id", deviceID))
		metrics.TelemetryMessagesTotal.WithLabelValues("status", "dropped").Inc()
		return
	}
	if msg.StationWide() {
		c.logger.Info("station-wide status",
			zap.String("device_id", deviceID),
			zap.String("status", msg.Status),
		)
		metrics.TelemetryMessagesTotal.WithLabelValues("status", "ignored").Inc()
		return
	}

	key := models.SessionKey{DeviceID: deviceID, PortNumber: *msg.PortNumber}
	st := c.state(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	ref, err := c.ports.Resolve(ctx, deviceID, *msg.PortNumber)
	if err != nil {
		if errors.Is(err, repository.ErrPortNotFound) {
			c.logger.Warn("status for unknown port",
				zap.String("device_id", deviceID),
				zap.Int("port_number", *msg.PortNumber),
			)
			metrics.TelemetryMessagesTotal.WithLabelValues("status", "dropped").Inc()
		} else {
			c.logger.Error("port resolve failed",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
			metrics.TelemetryMessagesTotal.WithLabelValues("status", "error").Inc()
		}
		return
	}

	mapped := MapPortStatus(msg.Status, msg.State(), ref.IsPremium)
	entry := &models.PortStatusLog{
		PortID:         ref.ID,
		DeviceID:       deviceID,
		ReportedStatus: msg.Status,
		ChargerState:   msg.State(),
		MappedStatus:   mapped,
		Timestamp:      msg.SampleTime(c.now()),
	}
	if err := c.statusLog.Insert(ctx, entry); err != nil {
		c.logger.Error("failed to append status log", zap.Int64("port_id", ref.ID), zap.Error(err))
		metrics.TelemetryMessagesTotal.WithLabelValues("status", "error").Inc()
		return
	}
	if err := c.statusLog.UpsertCurrent(ctx, entry); err != nil {
		c.logger.Error("failed to upsert current status", zap.Int64("port_id", ref.ID), zap.Error(err))
		metrics.TelemetryMessagesTotal.WithLabelValues("status", "error").Inc()
		return
	}
	if err := c.ports.UpdateStatus(ctx, ref.ID, mapped, mapped.Occupies()); err != nil {
		c.logger.Error("failed to persist port status", zap.Int64("port_id", ref.ID), zap.Error(err))
		metrics.TelemetryMessagesTotal.WithLabelValues("status", "error").Inc()
		return
	}
	if err := c.stations.TouchLastSeen(ctx, ref.StationID, c.now()); err != nil {
		c.logger.Warn("failed to update station last seen",
			zap.String("station_id", ref.StationID),
			zap.Error(err),
		)
	}

	metrics.TelemetryMessagesTotal.WithLabelValues("status", "applied").Inc()
	c.logger.Debug("port status applied",
		zap.String("device_id", deviceID),
		zap.Int("port_number", *msg.PortNumber),
		zap.String("status", string(mapped)),
	)
}

// ReconcileStale force-closes one session the periodic sweep found stale.
// The session is re-read under the cell lock so one revived since the scan
// is left alone.
func (c *Coordinator) ReconcileStale(ctx context.Context, stale models.StaleSession, threshold time.Duration) error {
	key := stale.Key()
	st := c.state(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, err := c.sessions.FindByID(ctx, stale.ID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			if st.sessionID == stale.ID {
				c.clearLocked(st)
			}
			return nil
		}
		return err
	}
	if sess.Status != models.SessionStatusActive {
		if st.sessionID == stale.ID {
			c.clearLocked(st)
		}
		return nil
	}
	if c.now().Sub(sess.LastActivity) < threshold {
		return nil
	}
	return c.closeInactiveLocked(ctx, key, st, sess, completedByReconcile)
}

// closeInactiveLocked finalizes an abandoned session: cost from accumulated
// energy, COMPLETED transition, entry cleanup, OFF command. The store
// transition is authoritative; the publish is fire-and-report.
func (c *Coordinator) closeInactiveLocked(ctx context.Context, key models.SessionKey, st *keyState, sess *models.Session, reason string) error {
	cost := c.cost.Cost(ctx, sess.StationID, sess.EnergyKWh)
	if err := c.sessions.Complete(ctx, sess.ID, c.now(), cost); err != nil && !errors.Is(err, repository.ErrNoActiveSession) {
		return err
	}
	c.clearLocked(st)
	c.publishCommand(ctx, key, models.ChargerStateOff)
	c.dropLive(ctx, key)
	metrics.SessionsCompletedTotal.WithLabelValues(reason).Inc()
	c.logger.Info("session completed",
		zap.String("session_id", sess.ID),
		zap.String("device_id", key.DeviceID),
		zap.Int("port_number", key.PortNumber),
		zap.String("reason", reason),
		zap.Float64("energy_kwh", sess.EnergyKWh),
		zap.Float64("cost", cost),
	)
	return nil
}

// publishCommand sends a relay command. Failures are reported only; the
// state transition that triggered the command stands.
func (c *Coordinator) publishCommand(ctx context.Context, key models.SessionKey, command models.ChargerState) {
	cmd := mqtt.ControlCommand{Command: command, PortNumber: key.PortNumber}
	if err := c.publisher.PublishControl(ctx, key.DeviceID, cmd); err != nil {
		metrics.ControlPublishesTotal.WithLabelValues(string(command), "error").Inc()
		c.logger.Warn("control publish failed",
			zap.String("device_id", key.DeviceID),
			zap.Int("port_number", key.PortNumber),
			zap.String("command", string(command)),
			zap.Error(err),
		)
		return
	}
	metrics.ControlPublishesTotal.WithLabelValues(string(command), "ok").Inc()
}

func (c *Coordinator) saveLive(ctx context.Context, key models.SessionKey, sess *models.Session) {
	if c.live == nil {
		return
	}
	entry := redisstore.ActiveSession{
		SessionID:  sess.ID,
		UserID:     sess.UserID,
		DeviceID:   key.DeviceID,
		PortNumber: key.PortNumber,
		PortID:     sess.PortID,
		StationID:  sess.StationID,
		IsPremium:  sess.IsPremium,
		StartTime:  sess.StartTime,
	}
	if err := c.live.Save(ctx, key, entry); err != nil {
		c.logger.Warn("failed to cache active session", zap.Error(err))
	}
}

func (c *Coordinator) dropLive(ctx context.Context, key models.SessionKey) {
	if c.live == nil {
		return
	}
	if err := c.live.Delete(ctx, key); err != nil && err != redis.Nil {
		c.logger.Warn("failed to delete active session cache", zap.Error(err))
	}
}

// Shutdown cancels every timer and waits for fires already in flight. After
// it returns no further outbound publish is attempted, so the store and the
// transport can be closed behind it.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	states := make([]*keyState, 0, len(c.keys))
	for _, st := range c.keys {
		states = append(states, st)
	}
	c.mu.Unlock()

	for _, st := range states {
		st.mu.Lock()
		c.cancelTimerLocked(st)
		st.mu.Unlock()
	}
	c.inflight.Wait()
	c.logger.Info("coordinator stopped")
}
