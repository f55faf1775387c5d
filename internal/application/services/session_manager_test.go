package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bimakw/referral-dashboard/internal/config"
	"github.com/bimakw/referral-dashboard/internal/domain/entities"
	"github.com/bimakw/referral-dashboard/internal/testutil"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func setupSessionManagerTest() (*SessionManager, *testutil.MockHistorySource, *fakeClock) {
	source := testutil.NewMockHistorySource(entities.DataSourceIndexed)
	source.Summary = summaryWithReferrals(testutil.AliceAddress, 1)

	clock := &fakeClock{now: testutil.BaseTime}
	manager := NewSessionManager(source, config.SessionConfig{IdleTTL: 30 * time.Minute, SweepInterval: time.Minute}, zap.NewNop())
	manager.now = clock.Now
	return manager, source, clock
}

func TestSessionManager_CreateAndGet(t *testing.T) {
	manager, _, _ := setupSessionManagerTest()
	defer manager.Stop()

	session := manager.Create()
	if _, err := uuid.Parse(session.ID); err != nil {
		t.Errorf("expected uuid session id, got %q", session.ID)
	}

	got, ok := manager.Get(session.ID)
	if !ok || got != session {
		t.Fatal("expected to find created session")
	}
	if manager.Len() != 1 {
		t.Errorf("expected 1 session, got %d", manager.Len())
	}

	if _, ok := manager.Get("missing"); ok {
		t.Error("expected missing session lookup to fail")
	}
}

func TestSessionManager_SessionsAreIndependent(t *testing.T) {
	manager, _, _ := setupSessionManagerTest()
	defer manager.Stop()

	a := manager.Create()
	b := manager.Create()
	if a.ID == b.ID {
		t.Fatal("expected distinct ids")
	}

	_ = a.Aggregator.SetAddress(testutil.AliceAddress)
	a.Aggregator.Wait()

	if b.Aggregator.Snapshot().Address != "" {
		t.Error("expected second session to be unaffected")
	}
}

func TestSessionManager_Delete(t *testing.T) {
	manager, _, _ := setupSessionManagerTest()
	defer manager.Stop()

	session := manager.Create()
	if !manager.Delete(session.ID) {
		t.Fatal("expected delete to succeed")
	}
	if manager.Delete(session.ID) {
		t.Error("expected second delete to report missing")
	}
	if _, ok := manager.Get(session.ID); ok {
		t.Error("expected session to be gone")
	}
}

func TestSessionManager_SweepEvictsIdle(t *testing.T) {
	manager, _, clock := setupSessionManagerTest()
	defer manager.Stop()

	idle := manager.Create()
	clock.now = clock.now.Add(20 * time.Minute)
	active := manager.Create()

	clock.now = clock.now.Add(15 * time.Minute)
	// Touch the active session
	if _, ok := manager.Get(active.ID); !ok {
		t.Fatal("expected active session")
	}

	if evicted := manager.Sweep(); evicted != 1 {
		t.Errorf("expected 1 eviction, got %d", evicted)
	}
	if _, ok := manager.Get(idle.ID); ok {
		t.Error("expected idle session to be evicted")
	}
	if _, ok := manager.Get(active.ID); !ok {
		t.Error("expected active session to survive")
	}
}

func TestSessionManager_StartStop(t *testing.T) {
	manager, _, _ := setupSessionManagerTest()
	manager.Create()

	manager.Start(context.Background())
	manager.Stop()
	manager.Stop()

	if manager.Len() != 0 {
		t.Errorf("expected sessions closed on stop, got %d", manager.Len())
	}
}
