package service

import (
	"context"
	"os"
	"testing"

	"github.com/ItzSjDude/hiva-node/internal/db"
	"github.com/ItzSjDude/hiva-node/internal/livekit"
	"github.com/ItzSjDude/hiva-node/internal/models"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost user=postgres password=postgres dbname=hiva_test port=5432 sslmode=disable TimeZone=UTC"
	}
	gdb, err := db.Connect(dsn)
	if err != nil {
		t.Skipf("skip: db not available: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Skipf("skip: migrate failed: %v", err)
	}
	return gdb
}

func newServices(t *testing.T) (*PartyService, *SeatService) {
	gdb := testDB(t)
	return NewPartyService(gdb, livekit.Nop{}, 7), NewSeatService(gdb, livekit.Nop{})
}

func createParty(t *testing.T, parties *PartyService, hostID string) *models.Party {
	t.Helper()
	party, seats, err := parties.Create(context.Background(), hostID, CreatePartyInput{Title: "test party"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(seats) != 7 {
		t.Fatalf("Create() seats = %d, want 7", len(seats))
	}
	t.Cleanup(func() {
		_, _ = parties.Teardown(context.Background(), party.ID, hostID)
	})
	return party
}

func seatByNumber(t *testing.T, seats *SeatService, partyID string, n int) *models.Seat {
	t.Helper()
	snapshot, err := seats.Snapshot(context.Background(), partyID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	for i := range snapshot {
		if snapshot[i].SeatNumber == n {
			return &snapshot[i]
		}
	}
	t.Fatalf("seat %d not found", n)
	return nil
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	se, ok := AsSeatError(err)
	if !ok {
		t.Fatalf("error = %v, want SeatError %s", err, code)
	}
	if se.Code != code {
		t.Fatalf("error code = %s, want %s", se.Code, code)
	}
}
