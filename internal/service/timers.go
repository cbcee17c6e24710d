package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"chargehub/internal/models"
	"chargehub/internal/observability/metrics"
	"chargehub/internal/repository"
)

// keyState is the coordination cell for one device/port pair: its registry
// entry, its inactivity timer and the mutex serializing every unit of work
// addressed to the pair. Cells are created on first touch and never removed;
// a cleared cell holds no session and no timer.
type keyState struct {
	mu        sync.Mutex
	sessionID string
	timer     *time.Timer
	timerGen  uint64
	lastReset time.Time
}

// state returns the cell for a key, creating it on first touch.
func (c *Coordinator) state(key models.SessionKey) *keyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.keys[key]
	if !ok {
		st = &keyState{}
		c.keys[key] = st
	}
	return st
}

// trackLocked records the session id a cell tracks, keeping the gauge in
// step. Caller holds st.mu.
func (c *Coordinator) trackLocked(st *keyState, sessionID string) {
	if st.sessionID == "" && sessionID != "" {
		metrics.TrackedSessions.Inc()
	}
	if st.sessionID != "" && sessionID == "" {
		metrics.TrackedSessions.Dec()
	}
	st.sessionID = sessionID
}

// armTimerLocked schedules or reschedules the cell's inactivity timer. The
// generation counter keeps a stopped timer's late fire from acting.
func (c *Coordinator) armTimerLocked(key models.SessionKey, st *keyState, d time.Duration) {
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timerGen++
	st.lastReset = c.now()
	gen := st.timerGen
	st.timer = time.AfterFunc(d, func() {
		c.onTimerFire(key, gen)
	})
}

// cancelTimerLocked stops the cell's timer and invalidates any fire already
// in flight.
func (c *Coordinator) cancelTimerLocked(st *keyState) {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.timerGen++
}

// clearLocked drops the cell's registry entry and timer.
func (c *Coordinator) clearLocked(st *keyState) {
	c.trackLocked(st, "")
	c.cancelTimerLocked(st)
}

func (c *Coordinator) onTimerFire(key models.SessionKey, gen uint64) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	st := c.state(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	if gen != st.timerGen || st.sessionID == "" {
		return
	}
	c.expireLocked(context.Background(), key, st)
}

// expireLocked decides what a fired timer means. The persisted last-activity
// timestamp is the authority: a session the store still shows as fresh gets
// its timer re-armed for the remainder instead of being closed, which keeps
// the timeout correct across restarts where only memory was lost.
func (c *Coordinator) expireLocked(ctx context.Context, key models.SessionKey, st *keyState) {
	sess, err := c.sessions.FindByID(ctx, st.sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			c.clearLocked(st)
			return
		}
		c.logger.Error("inactivity check failed, rearming timer",
			zap.String("session_id", st.sessionID),
			zap.Error(err),
		)
		c.armTimerLocked(key, st, c.inactivityTimeout)
		return
	}
	if sess.Status != models.SessionStatusActive {
		c.clearLocked(st)
		return
	}

	idle := c.now().Sub(sess.LastActivity)
	if idle < c.inactivityTimeout {
		c.logger.Debug("timer fired within tolerance, rearming",
			zap.String("session_id", sess.ID),
			zap.Duration("idle", idle),
		)
		c.armTimerLocked(key, st, c.inactivityTimeout-idle)
		return
	}

	if err := c.closeInactiveLocked(ctx, key, st, sess, completedByTimeout); err != nil {
		c.logger.Error("failed to complete inactive session, rearming timer",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
		c.armTimerLocked(key, st, c.inactivityTimeout)
	}
}
