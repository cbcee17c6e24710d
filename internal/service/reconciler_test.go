package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"chargehub/internal/models"
)

func TestSweepClosesStaleSession(t *testing.T) {
	c, f := newTestCoordinator(t, time.Minute)
	price := 0.5
	f.store.addStation("st-1", &price)
	portID := f.store.addPort("dev-1", 1, "st-1", false)

	stale := time.Now().UTC().Add(-10 * time.Minute)
	f.store.addActiveSession("orphan", 7, portID, "st-1", stale)
	if err := f.store.AddConsumption(context.Background(), "orphan", 2.0, 120, stale); err != nil {
		t.Fatalf("seed consumption: %v", err)
	}

	rec := NewReconciler(c, f.store, time.Hour, zap.NewNop())
	rec.Sweep(context.Background())

	sess, _ := f.store.sessionByID("orphan")
	if sess.Status != models.SessionStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", sess.Status)
	}
	if !approx(sess.Cost, 2.0*price) {
		t.Errorf("cost = %v, want %v", sess.Cost, 2.0*price)
	}
	if f.pub.count() != 1 {
		t.Fatalf("publish count = %d, want 1", f.pub.count())
	}
	got := f.pub.at(0)
	if got.deviceID != "dev-1" || got.cmd.Command != models.ChargerStateOff || got.cmd.PortNumber != 1 {
		t.Fatalf("unexpected command: %+v", got)
	}
}

func TestSweepLeavesFreshSession(t *testing.T) {
	c, f := newTestCoordinator(t, time.Minute)
	f.store.addStation("st-1", nil)
	portID := f.store.addPort("dev-1", 1, "st-1", false)

	// Idle for one window but not two; the sweep threshold is double the
	// inactivity timeout.
	f.store.addActiveSession("recent", 7, portID, "st-1", time.Now().UTC().Add(-90*time.Second))

	rec := NewReconciler(c, f.store, time.Hour, zap.NewNop())
	rec.Sweep(context.Background())

	sess, _ := f.store.sessionByID("recent")
	if sess.Status != models.SessionStatusActive {
		t.Fatalf("status = %s, want ACTIVE", sess.Status)
	}
	if f.pub.count() != 0 {
		t.Fatalf("publish count = %d, want 0", f.pub.count())
	}
}

func TestSweepContinuesAfterItemError(t *testing.T) {
	c, f := newTestCoordinator(t, time.Minute)
	f.store.addStation("st-1", nil)
	portA := f.store.addPort("dev-1", 1, "st-1", false)
	portB := f.store.addPort("dev-1", 2, "st-1", false)

	now := time.Now().UTC()
	f.store.addActiveSession("sess-a", 7, portA, "st-1", now.Add(-20*time.Minute))
	f.store.addActiveSession("sess-b", 8, portB, "st-1", now.Add(-10*time.Minute))
	f.store.completeErr["sess-a"] = errors.New("boom")

	rec := NewReconciler(c, f.store, time.Hour, zap.NewNop())
	rec.Sweep(context.Background())

	a, _ := f.store.sessionByID("sess-a")
	if a.Status != models.SessionStatusActive {
		t.Fatalf("sess-a status = %s, want still ACTIVE after its error", a.Status)
	}
	b, _ := f.store.sessionByID("sess-b")
	if b.Status != models.SessionStatusCompleted {
		t.Fatalf("sess-b status = %s, the failed item must not abort the sweep", b.Status)
	}
}

func TestReconcileStaleRevalidates(t *testing.T) {
	c, f := newTestCoordinator(t, time.Minute)
	f.store.addStation("st-1", nil)
	portID := f.store.addPort("dev-1", 1, "st-1", false)

	staleAt := time.Now().UTC().Add(-10 * time.Minute)
	f.store.addActiveSession("revived", 7, portID, "st-1", staleAt)
	snapshot, _ := f.store.sessionByID("revived")
	item := models.StaleSession{Session: snapshot, DeviceID: "dev-1", PhysicalIndex: 1}

	// Activity arrived between the scan and the close.
	f.store.setLastActivity("revived", time.Now().UTC())

	if err := c.ReconcileStale(context.Background(), item, 2*time.Minute); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	sess, _ := f.store.sessionByID("revived")
	if sess.Status != models.SessionStatusActive {
		t.Fatalf("status = %s, want ACTIVE", sess.Status)
	}
	if f.pub.count() != 0 {
		t.Fatalf("publish count = %d, want 0", f.pub.count())
	}
}

func TestReconcileStaleAlreadyCompleted(t *testing.T) {
	c, f := newTestCoordinator(t, time.Minute)
	f.store.addStation("st-1", nil)
	portID := f.store.addPort("dev-1", 1, "st-1", false)

	staleAt := time.Now().UTC().Add(-10 * time.Minute)
	f.store.addActiveSession("done", 7, portID, "st-1", staleAt)
	snapshot, _ := f.store.sessionByID("done")
	item := models.StaleSession{Session: snapshot, DeviceID: "dev-1", PhysicalIndex: 1}

	if err := f.store.Complete(context.Background(), "done", time.Now(), 0); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := c.ReconcileStale(context.Background(), item, 2*time.Minute); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if f.pub.count() != 0 {
		t.Fatalf("publish count = %d, want 0", f.pub.count())
	}
}

func TestRunSweepsImmediately(t *testing.T) {
	c, f := newTestCoordinator(t, time.Minute)
	f.store.addStation("st-1", nil)
	portID := f.store.addPort("dev-1", 1, "st-1", false)
	f.store.addActiveSession("orphan", 7, portID, "st-1", time.Now().UTC().Add(-10*time.Minute))

	rec := NewReconciler(c, f.store, time.Hour, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	// The first sweep runs at startup, not one interval later.
	waitFor(t, 2*time.Second, func() bool {
		sess, _ := f.store.sessionByID("orphan")
		return sess.Status == models.SessionStatusCompleted
	})

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not stop on cancel")
	}
}
