package service

import (
	"context"
	"sync"
	"testing"
)

func TestPartyCreate_Skeleton(t *testing.T) {
	parties, seats := newServices(t)
	party := createParty(t, parties, "host-1")

	snapshot, err := seats.Snapshot(context.Background(), party.ID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snapshot) != 7 {
		t.Fatalf("Snapshot() seats = %d, want 7", len(snapshot))
	}
	for i, seat := range snapshot {
		if seat.SeatNumber != i+1 {
			t.Errorf("seat[%d].SeatNumber = %d, want %d (ascending order)", i, seat.SeatNumber, i+1)
		}
	}
	host := snapshot[0]
	if !host.IsHost || host.UserID == nil || *host.UserID != "host-1" {
		t.Errorf("seat 1 should be pre-seated host, got %+v", host)
	}
	if host.JoinedAt == nil {
		t.Error("host seat JoinedAt should be set")
	}
}

func TestTakeSeat_Basic(t *testing.T) {
	parties, seats := newServices(t)
	party := createParty(t, parties, "host-1")

	seat, err := seats.TakeSeat(context.Background(), party.ID, 2, "user-a", false)
	if err != nil {
		t.Fatalf("TakeSeat() error = %v", err)
	}
	if seat.SeatNumber != 2 || seat.UserID == nil || *seat.UserID != "user-a" {
		t.Fatalf("TakeSeat() seat = %+v", seat)
	}
	if seat.IsMuted {
		t.Error("fresh seat should not be muted")
	}
	if seat.JoinedAt == nil {
		t.Error("JoinedAt should be set on take")
	}
}

func TestTakeSeat_Exclusivity(t *testing.T) {
	parties, seats := newServices(t)
	party := createParty(t, parties, "host-1")

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = seats.TakeSeat(context.Background(), party.ID, 3, userN(n), false)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		se, ok := AsSeatError(err)
		if !ok {
			t.Fatalf("unexpected error: %v", err)
		}
		if se.Code != CodeSeatOccupied && se.Code != CodeSeatLocked {
			t.Fatalf("loser error code = %s", se.Code)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}

func userN(n int) string {
	return "racer-" + string(rune('a'+n))
}

func TestTakeSeat_MovesExistingSeat(t *testing.T) {
	parties, seats := newServices(t)
	party := createParty(t, parties, "host-1")
	ctx := context.Background()

	if _, err := seats.TakeSeat(ctx, party.ID, 2, "user-a", false); err != nil {
		t.Fatalf("TakeSeat(2) error = %v", err)
	}
	if _, err := seats.SetSeatMute(ctx, party.ID, "user-a", true, "user-a", true); err != nil {
		t.Fatalf("SetSeatMute() error = %v", err)
	}
	if _, err := seats.TakeSeat(ctx, party.ID, 5, "user-a", false); err != nil {
		t.Fatalf("TakeSeat(5) error = %v", err)
	}

	old := seatByNumber(t, seats, party.ID, 2)
	if old.UserID != nil {
		t.Error("old seat should be vacated")
	}
	if old.IsMuted || old.JoinedAt != nil {
		t.Error("old seat mute/joinedAt should be reset on vacate")
	}
	cur := seatByNumber(t, seats, party.ID, 5)
	if cur.UserID == nil || *cur.UserID != "user-a" {
		t.Error("user should hold seat 5")
	}
	if cur.IsMuted {
		t.Error("moving seats should reset mute")
	}
}

func TestTakeSeat_LockedAndForce(t *testing.T) {
	parties, seats := newServices(t)
	party := createParty(t, parties, "host-1")
	ctx := context.Background()

	if _, err := seats.SetSeatLock(ctx, party.ID, 4, true, "host-1"); err != nil {
		t.Fatalf("SetSeatLock() error = %v", err)
	}
	_, err := seats.TakeSeat(ctx, party.ID, 4, "user-a", false)
	wantCode(t, err, CodeSeatLocked)

	// force 越过锁定
	if _, err := seats.TakeSeat(ctx, party.ID, 4, "user-a", true); err != nil {
		t.Fatalf("forced TakeSeat() error = %v", err)
	}
}

func TestTakeSeat_ForceDisplacesOccupant(t *testing.T) {
	parties, seats := newServices(t)
	party := createParty(t, parties, "host-1")
	ctx := context.Background()

	if _, err := seats.TakeSeat(ctx, party.ID, 2, "user-a", false); err != nil {
		t.Fatalf("TakeSeat() error = %v", err)
	}
	_, err := seats.TakeSeat(ctx, party.ID, 2, "user-b", false)
	wantCode(t, err, CodeSeatOccupied)

	seat, err := seats.TakeSeat(ctx, party.ID, 2, "user-b", true)
	if err != nil {
		t.Fatalf("forced TakeSeat() error = %v", err)
	}
	if seat.UserID == nil || *seat.UserID != "user-b" {
		t.Fatalf("seat should belong to user-b, got %+v", seat)
	}
	// 被顶掉的人回到无座状态，而不是被挪到别处
	snapshot, _ := seats.Snapshot(ctx, party.ID)
	for _, s := range snapshot {
		if s.UserID != nil && *s.UserID == "user-a" {
			t.Fatalf("displaced user still seated at %d", s.SeatNumber)
		}
	}
}

func TestTakeSeat_SeatNotFound(t *testing.T) {
	parties, seats := newServices(t)
	party := createParty(t, parties, "host-1")

	_, err := seats.TakeSeat(context.Background(), party.ID, 99, "user-a", false)
	wantCode(t, err, CodeSeatNotFound)
}

func TestLeaveSeat_Idempotent(t *testing.T) {
	parties, seats := newServices(t)
	party := createParty(t, parties, "host-1")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		seat, err := seats.LeaveSeat(ctx, party.ID, "never-seated", false)
		if err != nil {
			t.Fatalf("LeaveSeat() error = %v", err)
		}
		if seat != nil {
			t.Fatalf("LeaveSeat() = %+v, want nil", seat)
		}
	}
}

func TestLeaveSeat_HostProtected(t *testing.T) {
	parties, seats := newServices(t)
	party := createParty(t, parties, "host-1")
	ctx := context.Background()

	_, err := seats.LeaveSeat(ctx, party.ID, "host-1", false)
	wantCode(t, err, CodeHostSeatCannotLeave)

	host := seatByNumber(t, seats, party.ID, 1)
	if host.UserID == nil || *host.UserID != "host-1" {
		t.Error("host seat must stay occupied after refused leave")
	}

	seat, err := seats.LeaveSeat(ctx, party.ID, "host-1", true)
	if err != nil {
		t.Fatalf("LeaveSeat(allowHostLeave) error = %v", err)
	}
	if seat == nil || seat.UserID != nil {
		t.Error("host seat should be vacated when explicitly allowed")
	}
}

func TestMuteResetOnVacate(t *testing.T) {
	parties, seats := newServices(t)
	party := createParty(t, parties, "host-1")
	ctx := context.Background()

	if _, err := seats.TakeSeat(ctx, party.ID, 3, "user-a", false); err != nil {
		t.Fatalf("TakeSeat() error = %v", err)
	}
	if _, err := seats.SetSeatMute(ctx, party.ID, "user-a", true, "user-a", true); err != nil {
		t.Fatalf("SetSeatMute() error = %v", err)
	}
	if _, err := seats.LeaveSeat(ctx, party.ID, "user-a", false); err != nil {
		t.Fatalf("LeaveSeat() error = %v", err)
	}

	seat := seatByNumber(t, seats, party.ID, 3)
	if seat.UserID != nil || seat.IsMuted || seat.JoinedAt != nil {
		t.Errorf("vacated seat should be reset, got %+v", seat)
	}
}

func TestSetSeatMute_Authorization(t *testing.T) {
	parties, seats := newServices(t)
	party := createParty(t, parties, "host-1")
	ctx := context.Background()

	if _, err := seats.TakeSeat(ctx, party.ID, 2, "user-a", false); err != nil {
		t.Fatalf("TakeSeat() error = %v", err)
	}

	// 非主持人动别人 → Forbidden，目标行不变
	_, err := seats.SetSeatMute(ctx, party.ID, "host-1", true, "user-a", true)
	wantCode(t, err, CodeForbidden)
	if host := seatByNumber(t, seats, party.ID, 1); host.IsMuted {
		t.Error("host seat must be unchanged after forbidden mute")
	}

	// 主持人动别人 → 生效
	seat, err := seats.SetSeatMute(ctx, party.ID, "user-a", true, "host-1", true)
	if err != nil {
		t.Fatalf("host SetSeatMute() error = %v", err)
	}
	if !seat.IsMuted {
		t.Error("seat should be muted by host")
	}

	// 自己动自己 → 仅改库
	seat, err = seats.SetSeatMute(ctx, party.ID, "user-a", false, "user-a", true)
	if err != nil {
		t.Fatalf("self SetSeatMute() error = %v", err)
	}
	if seat.IsMuted {
		t.Error("self unmute should clear the flag")
	}

	// allowSelf=false 时自我切换被拒
	_, err = seats.SetSeatMute(ctx, party.ID, "user-a", true, "user-a", false)
	wantCode(t, err, CodeForbidden)
}

func TestMuteAll_ExcludesHostByDefault(t *testing.T) {
	parties, seats := newServices(t)
	party := createParty(t, parties, "host-1")
	ctx := context.Background()

	for i, user := range []string{"user-a", "user-b", "user-c"} {
		if _, err := seats.TakeSeat(ctx, party.ID, i+2, user, false); err != nil {
			t.Fatalf("TakeSeat() error = %v", err)
		}
	}

	_, err := seats.MuteAll(ctx, party.ID, "user-a", false)
	wantCode(t, err, CodeForbidden)

	count, err := seats.MuteAll(ctx, party.ID, "host-1", false)
	if err != nil {
		t.Fatalf("MuteAll() error = %v", err)
	}
	if count != 3 {
		t.Fatalf("MuteAll() count = %d, want 3", count)
	}
	if host := seatByNumber(t, seats, party.ID, 1); host.IsMuted {
		t.Error("host seat untouched by default")
	}
	for n := 2; n <= 4; n++ {
		if !seatByNumber(t, seats, party.ID, n).IsMuted {
			t.Errorf("seat %d should be muted", n)
		}
	}

	count, err = seats.UnmuteAll(ctx, party.ID, "host-1", false)
	if err != nil {
		t.Fatalf("UnmuteAll() error = %v", err)
	}
	if count != 3 {
		t.Fatalf("UnmuteAll() count = %d, want 3", count)
	}
}

func TestLockAll(t *testing.T) {
	parties, seats := newServices(t)
	party := createParty(t, parties, "host-1")
	ctx := context.Background()

	count, err := seats.LockAll(ctx, party.ID, "host-1", false)
	if err != nil {
		t.Fatalf("LockAll() error = %v", err)
	}
	if count != 6 {
		t.Fatalf("LockAll() count = %d, want 6 (all but host seat)", count)
	}
	if host := seatByNumber(t, seats, party.ID, 1); host.IsLocked {
		t.Error("host seat should not be locked by default")
	}
	if !seatByNumber(t, seats, party.ID, 2).IsLocked {
		t.Error("seat 2 should be locked")
	}
}

func TestSeatOps_PartyNotFound(t *testing.T) {
	parties, seats := newServices(t)
	_ = parties

	missing := "00000000-0000-0000-0000-000000000000"
	_, err := seats.TakeSeat(context.Background(), missing, 1, "user-a", false)
	wantCode(t, err, CodePartyNotFound)
	_, err = seats.MuteAll(context.Background(), missing, "user-a", false)
	wantCode(t, err, CodePartyNotFound)
}
