package service

import (
	"context"
	"testing"
	"time"

	"chargehub/internal/models"
	"chargehub/internal/mqtt"
)

func TestInactivityTimeoutClosesSession(t *testing.T) {
	c, f := newTestCoordinator(t, 60*time.Millisecond)
	f.store.addStation("st-1", nil)
	portID := f.store.addPort("dev-1", 1, "st-1", false)

	id, err := c.StartSession(context.Background(), StartSessionInput{DeviceID: "dev-1", PortNumber: 1, UserID: 7})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		sess, _ := f.store.sessionByID(id)
		return sess.Status == models.SessionStatusCompleted
	})

	sess, _ := f.store.sessionByID(id)
	if sess.EndTime == nil {
		t.Error("end time not set")
	}
	last := f.pub.at(f.pub.count() - 1)
	if last.cmd.Command != models.ChargerStateOff || last.cmd.PortNumber != 1 {
		t.Fatalf("last command = %+v, want OFF on port 1", last.cmd)
	}
	if trackedID(c, models.SessionKey{DeviceID: "dev-1", PortNumber: 1}) != "" {
		t.Error("registry entry not cleared")
	}
	// The relay is driven off but the port row is left for the next status
	// report to refresh.
	status, _ := f.store.statusOf(portID)
	if status != models.PortStatusChargingFree {
		t.Errorf("port = %s, want unchanged CHARGING_FREE", status)
	}
}

func TestUsageResetExtendsTimer(t *testing.T) {
	timeout := 100 * time.Millisecond
	c, f := newTestCoordinator(t, timeout)
	f.store.addStation("st-1", nil)
	f.store.addPort("dev-1", 1, "st-1", false)

	id, err := c.StartSession(context.Background(), StartSessionInput{DeviceID: "dev-1", PortNumber: 1, UserID: 7})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(timeout / 2)
	resetAt := time.Now()
	c.HandleUsage(context.Background(), "dev-1", mqtt.UsageMessage{
		PortNumber:   intptr(1),
		Consumption:  mqtt.Watts(150),
		ChargerState: "ON",
	})
	if sess, _ := f.store.sessionByID(id); sess.Status != models.SessionStatusActive {
		t.Fatal("session closed before the window elapsed")
	}

	waitFor(t, 2*time.Second, func() bool {
		sess, _ := f.store.sessionByID(id)
		return sess.Status == models.SessionStatusCompleted
	})
	// The sample moved the deadline: a full window must have passed since it.
	if elapsed := time.Since(resetAt); elapsed < timeout {
		t.Fatalf("closed %s after the last sample, want at least %s", elapsed, timeout)
	}
}

func TestTimerRevalidatesPersistedActivity(t *testing.T) {
	timeout := 100 * time.Millisecond
	c, f := newTestCoordinator(t, timeout)
	f.store.addStation("st-1", nil)
	f.store.addPort("dev-1", 1, "st-1", false)

	id, err := c.StartSession(context.Background(), StartSessionInput{DeviceID: "dev-1", PortNumber: 1, UserID: 7})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Another instance refreshed the row; only the store knows.
	time.Sleep(timeout / 2)
	refreshAt := time.Now()
	f.store.setLastActivity(id, time.Now().UTC())

	waitFor(t, 2*time.Second, func() bool {
		sess, _ := f.store.sessionByID(id)
		return sess.Status == models.SessionStatusCompleted
	})
	if elapsed := time.Since(refreshAt); elapsed < timeout {
		t.Fatalf("closed %s after the store refresh, want at least %s", elapsed, timeout)
	}
}

func TestStopCancelsTimer(t *testing.T) {
	c, f := newTestCoordinator(t, 200*time.Millisecond)
	f.store.addStation("st-1", nil)
	f.store.addPort("dev-1", 1, "st-1", false)

	if _, err := c.StartSession(context.Background(), StartSessionInput{DeviceID: "dev-1", PortNumber: 1, UserID: 7}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := c.StopSession(context.Background(), StopSessionInput{DeviceID: "dev-1", PortNumber: 1, UserID: 7}); err != nil {
		t.Fatalf("stop: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	if f.pub.count() != 2 {
		t.Fatalf("publish count = %d, want 2 (ON and OFF only)", f.pub.count())
	}
}

func TestTimerIgnoresSessionCompletedElsewhere(t *testing.T) {
	c, f := newTestCoordinator(t, 200*time.Millisecond)
	f.store.addStation("st-1", nil)
	f.store.addPort("dev-1", 1, "st-1", false)

	id, err := c.StartSession(context.Background(), StartSessionInput{DeviceID: "dev-1", PortNumber: 1, UserID: 7})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.store.Complete(context.Background(), id, time.Now(), 0); err != nil {
		t.Fatalf("complete: %v", err)
	}

	key := models.SessionKey{DeviceID: "dev-1", PortNumber: 1}
	waitFor(t, 2*time.Second, func() bool {
		return trackedID(c, key) == ""
	})
	if f.pub.count() != 1 {
		t.Fatalf("publish count = %d, want 1 (no OFF for a session closed elsewhere)", f.pub.count())
	}
}

func TestTimerIgnoresVanishedSession(t *testing.T) {
	c, f := newTestCoordinator(t, 200*time.Millisecond)
	f.store.addStation("st-1", nil)
	f.store.addPort("dev-1", 1, "st-1", false)

	id, err := c.StartSession(context.Background(), StartSessionInput{DeviceID: "dev-1", PortNumber: 1, UserID: 7})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	f.store.removeSession(id)

	key := models.SessionKey{DeviceID: "dev-1", PortNumber: 1}
	waitFor(t, 2*time.Second, func() bool {
		return trackedID(c, key) == ""
	})
	if f.pub.count() != 1 {
		t.Fatalf("publish count = %d, want 1", f.pub.count())
	}
}

func TestShutdownStopsTimers(t *testing.T) {
	c, f := newTestCoordinator(t, 200*time.Millisecond)
	f.store.addStation("st-1", nil)
	f.store.addPort("dev-1", 1, "st-1", false)

	id, err := c.StartSession(context.Background(), StartSessionInput{DeviceID: "dev-1", PortNumber: 1, UserID: 7})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	c.Shutdown()

	time.Sleep(300 * time.Millisecond)
	sess, _ := f.store.sessionByID(id)
	if sess.Status != models.SessionStatusActive {
		t.Fatalf("status = %s, shutdown must not expire sessions", sess.Status)
	}
	if f.pub.count() != 1 {
		t.Fatalf("publish count = %d, want 1", f.pub.count())
	}
}
