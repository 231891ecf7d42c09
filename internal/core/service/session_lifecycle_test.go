package service

import (
	"context"
	"testing"
	"time"

	"github.com/yndnr/sessiond/internal/core/domain"
	"github.com/yndnr/sessiond/internal/core/event"
)

func countReasons(events []event.Event) map[domain.RemovalReason]int {
	out := make(map[domain.RemovalReason]int)
	for _, ev := range events {
		out[ev.Reason]++
	}
	return out
}

func TestRemoveSession(t *testing.T) {
	hs := newHarness(t, testConfig())
	ctx := context.Background()
	s := hs.add(t, 7, 1)

	tok, err := hs.h.Tokens().RememberForSession(s.ID, "oauth-state")
	if err != nil {
		t.Fatalf("RememberForSession: %v", err)
	}

	removed, ok, err := hs.h.RemoveSession(ctx, s.ID)
	if err != nil || !ok || removed != s {
		t.Fatalf("RemoveSession = (%v, %v, %v)", removed, ok, err)
	}
	if hs.h.HasUserSessions(7, 1) {
		t.Error("counter not released")
	}
	if _, ok := hs.h.Tokens().Get(tok); ok {
		t.Error("session tokens not dropped")
	}
	if hs.storage.has(s.ID) {
		t.Error("session still in storage")
	}
	pubs := hs.dir.publications()
	if len(pubs) != 1 || pubs[0].Kind != RemoveBySession || pubs[0].SessionID != s.ID {
		t.Errorf("publications = %+v", pubs)
	}

	// Removing again finds nothing locally but still clears storage and
	// the cluster.
	if _, ok, err := hs.h.RemoveSession(ctx, s.ID); ok || err != nil {
		t.Fatalf("second RemoveSession = (%v, %v)", ok, err)
	}

	events := hs.events(t)
	if len(events) != 1 || events[0].Reason != domain.ReasonLogout || events[0].UserID != 7 {
		t.Fatalf("events = %+v, want one logout", events)
	}
	if _, _, err := hs.h.RemoveSession(ctx, ""); !domain.IsDomainError(err, domain.ErrMissingArgument.Code) {
		t.Errorf("empty id error = %v", err)
	}
}

func TestRemoveSession_NotRestoredWhileStorageRemovalRuns(t *testing.T) {
	hs := newHarness(t, testConfig())
	ctx := context.Background()
	s := hs.add(t, 7, 1)

	entered, release := hs.storage.gateRemove()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok, err := hs.h.RemoveSession(ctx, s.ID); !ok || err != nil {
			t.Errorf("RemoveSession = (%v, %v)", ok, err)
		}
	}()

	<-entered
	if _, ok := hs.h.GetSession(ctx, s.ID, false); ok {
		t.Error("session found while its logout was removing it from storage")
	}
	release()
	<-done

	if _, ok := hs.h.GetSession(ctx, s.ID, false); ok {
		t.Error("logged-out session found after logout")
	}
	if hs.h.HasUserSessions(7, 1) {
		t.Error("logged-out session still counted")
	}
	if hs.metrics.restored != 0 {
		t.Errorf("restored = %d, want 0", hs.metrics.restored)
	}
	events := hs.events(t)
	if len(events) != 1 || events[0].Reason != domain.ReasonLogout {
		t.Fatalf("events = %+v, want one logout", events)
	}
}

func TestRotation_TimedOutNotRestoredWhileStorageRemovalRuns(t *testing.T) {
	tests := []struct {
		name     string
		longTerm bool
		reason   domain.RemovalReason
	}{
		{"timeout", false, domain.ReasonTimeout},
		{"eviction", true, domain.ReasonEvicted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig() // 2 short, 2 long
			cfg.LongTermEnabled = tt.longTerm
			hs := newHarness(t, cfg)
			ctx := context.Background()
			s := hs.add(t, 4, 2)

			// Age the session up to its final rotation.
			hs.h.RotateShort(ctx)
			final := func() { hs.h.RotateShort(ctx) }
			if tt.longTerm {
				hs.h.RotateShort(ctx)
				hs.h.RotateLong(ctx)
				final = func() { hs.h.RotateLong(ctx) }
			}

			entered, release := hs.storage.gateRemove()
			done := make(chan struct{})
			go func() {
				defer close(done)
				final()
			}()

			<-entered
			if _, ok := hs.h.GetSession(ctx, s.ID, false); ok {
				t.Error("session found while it was leaving the container")
			}
			release()
			<-done

			// Further rotations must not retire it a second time.
			for i := 0; i < 4; i++ {
				hs.h.RotateShort(ctx)
				hs.h.RotateLong(ctx)
			}
			if hs.h.HasUserSessions(4, 2) || hs.h.HasContextSessions(2) {
				t.Error("counter not released exactly once")
			}
			events := hs.events(t)
			if len(events) != 1 || events[0].Reason != tt.reason || events[0].SessionID != s.ID {
				t.Fatalf("events = %+v, want one %s", events, tt.reason)
			}
		})
	}
}

func TestRemoveUserSessions_RestoredDuringPurge(t *testing.T) {
	hs := newHarness(t, testConfig())
	ctx := context.Background()

	stored, _ := domain.NewSession(1, 1)
	_ = hs.storage.Persist(ctx, stored)

	// A lookup lands after the purge listed storage but before it removed
	// anything.
	hs.storage.afterFind = func() {
		if _, ok := hs.h.GetSession(ctx, stored.ID, false); !ok {
			t.Error("stored session not restored")
		}
	}

	if _, err := hs.h.RemoveUserSessions(ctx, 1, 1); err != nil {
		t.Fatalf("RemoveUserSessions: %v", err)
	}
	hs.storage.afterFind = nil

	if _, ok := hs.h.GetSession(ctx, stored.ID, false); ok {
		t.Error("purged session still reachable")
	}
	if hs.h.HasUserSessions(1, 1) {
		t.Error("purged session still counted")
	}
	if hs.storage.has(stored.ID) {
		t.Error("purged session still in storage")
	}
	reasons := countReasons(hs.events(t))
	if reasons[domain.ReasonAdminRemove] != 1 || len(reasons) != 1 {
		t.Errorf("event reasons = %v, want one admin_remove", reasons)
	}
}

func TestSweep_PrunesRetiredIDs(t *testing.T) {
	cfg := testConfig()
	cfg.ShortTermInterval = time.Millisecond
	hs := newHarness(t, cfg)
	ctx := context.Background()

	s := hs.add(t, 1, 1)
	if _, _, err := hs.h.RemoveSession(ctx, s.ID); err != nil {
		t.Fatalf("RemoveSession: %v", err)
	}
	if !hs.h.retired.Has(s.ID) {
		t.Fatal("removed session ID not retired")
	}

	time.Sleep(5 * time.Millisecond)
	hs.h.Sweep()
	if n := hs.h.retired.Count(); n != 0 {
		t.Errorf("retired IDs after sweep = %d, want 0", n)
	}
}

func TestRemoveUserSessions(t *testing.T) {
	hs := newHarness(t, testConfig())
	ctx := context.Background()

	hs.add(t, 1, 1)
	hs.add(t, 1, 1)
	keep := hs.add(t, 2, 1)
	hs.h.RotateShort(ctx)
	hs.h.RotateShort(ctx) // first two now long-term
	hs.add(t, 1, 1)

	stored, _ := domain.NewSession(1, 1)
	_ = hs.storage.Persist(ctx, stored)

	removed, err := hs.h.RemoveUserSessions(ctx, 1, 1)
	if err != nil {
		t.Fatalf("RemoveUserSessions: %v", err)
	}
	if len(removed) != 3 {
		t.Fatalf("removed %d sessions, want 3", len(removed))
	}
	if hs.h.HasUserSessions(1, 1) {
		t.Error("user still counted")
	}
	if hs.storage.has(stored.ID) {
		t.Error("storage-only session not purged")
	}
	if _, ok := hs.h.GetSession(ctx, keep.ID, true); !ok {
		t.Error("other user's session removed")
	}

	pubs := hs.dir.publications()
	if len(pubs) != 1 || pubs[0].Kind != RemoveByUser || pubs[0].UserID != 1 {
		t.Errorf("publications = %+v", pubs)
	}
	reasons := countReasons(hs.events(t))
	if reasons[domain.ReasonAdminRemove] != 3 || len(reasons) != 1 {
		t.Errorf("event reasons = %v, want 3 admin_remove", reasons)
	}
}

func TestRemoveContextSessions(t *testing.T) {
	hs := newHarness(t, testConfig())
	ctx := context.Background()

	hs.add(t, 1, 5)
	hs.add(t, 2, 5)
	other := hs.add(t, 1, 6)

	removed, err := hs.h.RemoveContextSessions(ctx, 5)
	if err != nil || len(removed) != 2 {
		t.Fatalf("RemoveContextSessions = (%d, %v)", len(removed), err)
	}
	if hs.h.HasContextSessions(5) {
		t.Error("context 5 still counted")
	}
	if !hs.h.HasContextSessions(6) {
		t.Error("context 6 lost")
	}
	if _, ok := hs.h.GetSession(ctx, other.ID, true); !ok {
		t.Error("session of another context removed")
	}
}

func TestRotation_ExactlyOnceEviction(t *testing.T) {
	hs := newHarness(t, testConfig()) // 2 short, 2 long
	ctx := context.Background()
	s := hs.add(t, 4, 2)

	var moved, timedOut int
	for i := 0; i < 2; i++ {
		res := hs.h.RotateShort(ctx)
		moved += len(res.Moved)
		timedOut += len(res.TimedOut)
	}
	if moved != 1 || timedOut != 0 {
		t.Fatalf("moved = %d, timedOut = %d", moved, timedOut)
	}
	if !hs.h.HasUserSessions(4, 2) {
		t.Fatal("moving between tiers released the counter")
	}
	if _, long := hs.h.Counts(); long != 1 {
		t.Fatalf("long-term count = %d, want 1", long)
	}

	evicted := 0
	for i := 0; i < 2; i++ {
		evicted += len(hs.h.RotateLong(ctx))
	}
	if evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if hs.h.HasUserSessions(4, 2) || hs.h.HasContextSessions(2) {
		t.Fatal("counter not released")
	}
	if hs.storage.has(s.ID) {
		t.Error("evicted session still in storage")
	}

	events := hs.events(t)
	if len(events) != 1 || events[0].Reason != domain.ReasonEvicted || events[0].SessionID != s.ID {
		t.Fatalf("events = %+v, want exactly one eviction", events)
	}
}

func TestRotation_TimeoutWithoutLongTerm(t *testing.T) {
	cfg := testConfig()
	cfg.LongTermEnabled = false
	hs := newHarness(t, cfg)
	ctx := context.Background()

	s := hs.add(t, 1, 1)
	if res := hs.h.RotateShort(ctx); len(res.TimedOut) != 0 {
		t.Fatal("timed out too early")
	}
	if _, ok := hs.h.GetSession(ctx, s.ID, true); !ok {
		t.Fatal("session lost before its last short-term bucket")
	}
	res := hs.h.RotateShort(ctx)
	if len(res.TimedOut) != 1 {
		t.Fatalf("TimedOut = %d, want 1", len(res.TimedOut))
	}
	if hs.h.RotateLong(ctx) != nil {
		t.Error("RotateLong should be a no-op without long-term containers")
	}

	events := hs.events(t)
	if len(events) != 1 || events[0].Reason != domain.ReasonTimeout {
		t.Fatalf("events = %+v, want one timeout", events)
	}
}

func TestRemoteRemoval_AppliedWithoutRebroadcast(t *testing.T) {
	hs := newHarness(t, testConfig())
	a := hs.add(t, 1, 1)
	b := hs.add(t, 2, 1)
	c := hs.add(t, 3, 9)

	hs.dir.deliver(RemoteRemoval{Kind: RemoveBySession, SessionID: a.ID, Origin: "node-b"})
	hs.dir.deliver(RemoteRemoval{Kind: RemoveByUser, UserID: 2, ContextID: 1, Origin: "node-b"})
	hs.dir.deliver(RemoteRemoval{Kind: RemoveByContext, ContextID: 9, Origin: "node-b"})
	hs.dir.deliver(RemoteRemoval{Kind: "bogus", Origin: "node-b"})

	for _, s := range []string{a.ID, b.ID, c.ID} {
		if _, ok := hs.h.container.Get(s); ok {
			t.Errorf("session %s survived remote removal", s)
		}
	}
	if len(hs.dir.publications()) != 0 {
		t.Errorf("remote removal was re-broadcast: %+v", hs.dir.publications())
	}
	// The origin owns durable storage cleanup.
	if !hs.storage.has(a.ID) {
		t.Error("remote removal touched durable storage")
	}

	reasons := countReasons(hs.events(t))
	if reasons[domain.ReasonLogout] != 1 || reasons[domain.ReasonAdminRemove] != 2 {
		t.Errorf("event reasons = %v", reasons)
	}
}

func TestDevicesAndRequestTokens(t *testing.T) {
	cfg := testConfig()
	cfg.RegistrationLifetime = 0
	hs := newHarness(t, cfg)

	for _, id := range []string{"d1", "d2", "d3"} {
		if err := hs.h.RegisterDevice(1, 7, domain.Device{ID: id, Kind: "totp"}); err != nil {
			t.Fatalf("RegisterDevice: %v", err)
		}
	}
	if err := hs.h.RegisterDevice(1, 7, domain.Device{}); err == nil {
		t.Fatal("device without id accepted")
	}
	if got := hs.h.Devices(1, 7); len(got) != 3 {
		t.Fatalf("Devices = %d, want 3", len(got))
	}
	if _, ok, err := hs.h.UnregisterDevice(1, 7, "d2"); !ok || err != nil {
		t.Fatalf("UnregisterDevice = (%v, %v)", ok, err)
	}
	if got := hs.h.Devices(1, 7); len(got) != 2 {
		t.Fatalf("Devices = %d, want 2", len(got))
	}
	if _, ok := hs.h.Device(1, 7, "d3"); !ok {
		t.Error("Device(d3) not found")
	}

	if err := hs.h.AddRequestToken("req-1", "nonce", "abc"); err != nil {
		t.Fatalf("AddRequestToken: %v", err)
	}
	if n := hs.h.RequestTokenCount("req-1"); n != 1 {
		t.Fatalf("RequestTokenCount = %d, want 1", n)
	}
	if v, ok := hs.h.RedeemRequestToken("req-1", "nonce"); !ok || v != "abc" {
		t.Fatalf("RedeemRequestToken = (%q, %v)", v, ok)
	}
	if _, ok := hs.h.RedeemRequestToken("req-1", "nonce"); ok {
		t.Fatal("request token redeemed twice")
	}
	if err := hs.h.AddRequestToken("", "k", "v"); err == nil {
		t.Fatal("empty request id accepted")
	}
	if regs, toks := hs.h.Sweep(); regs != 0 || toks != 0 {
		t.Errorf("Sweep = (%d, %d), want nothing expired", regs, toks)
	}
}
