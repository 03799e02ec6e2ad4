package repository_test

import (
	"errors"
	"testing"
	"time"

	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/repository"
	"github.com/crlx1q/antimat/internal/testutil"
)

func TestUserRepository_CreateDuplicateEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewUserRepository(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user := models.User{Email: "dup@example.com", Name: "A", PenaltyAmount: 100}
	if _, err := repo.Create(ctx, user); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := repo.Create(ctx, user); !errors.Is(err, repository.ErrEmailTaken) {
		t.Fatalf("second create: got %v, want ErrEmailTaken", err)
	}
}

func TestUserRepository_AddWordEnforcesCap(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewUserRepository(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user := fixtures.CreateUser(ctx, "Capped")
	now := time.Now().UTC()
	words := []string{"aa", "bb", "cc"}
	for _, w := range words {
		if _, err := repo.AddWord(ctx, user.ID, w, 3, now); err != nil {
			t.Fatalf("add %q: %v", w, err)
		}
	}

	if _, err := repo.AddWord(ctx, user.ID, "dd", 3, now); !errors.Is(err, repository.ErrWordLimit) {
		t.Fatalf("over cap: got %v, want ErrWordLimit", err)
	}
	if _, err := repo.AddWord(ctx, user.ID, "aa", 4, now); !errors.Is(err, repository.ErrWordExists) {
		t.Fatalf("duplicate: got %v, want ErrWordExists", err)
	}

	updated, err := repo.RemoveWord(ctx, user.ID, "bb")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(updated.BannedWords) != 2 {
		t.Fatalf("expected 2 words after removal, got %d", len(updated.BannedWords))
	}
	if _, err := repo.RemoveWord(ctx, user.ID, "bb"); !errors.Is(err, repository.ErrWordNotFound) {
		t.Fatalf("remove missing: got %v, want ErrWordNotFound", err)
	}
}

func TestUserRepository_AddGroupEnforcesCeiling(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewUserRepository(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user := fixtures.CreateUser(ctx, "Joiner")
	first := fixtures.CreateUser(ctx, "Owner One")
	g1 := fixtures.CreateGroup(ctx, "one", first)
	g2 := fixtures.CreateGroup(ctx, "two", first)
	g3 := fixtures.CreateGroup(ctx, "three", first)

	if err := repo.AddGroup(ctx, user.ID, g1.ID, 2); err != nil {
		t.Fatalf("add g1: %v", err)
	}
	if err := repo.AddGroup(ctx, user.ID, g1.ID, 2); !errors.Is(err, repository.ErrAlreadyInGroup) {
		t.Fatalf("re-add g1: got %v, want ErrAlreadyInGroup", err)
	}
	if err := repo.AddGroup(ctx, user.ID, g2.ID, 2); err != nil {
		t.Fatalf("add g2: %v", err)
	}
	if err := repo.AddGroup(ctx, user.ID, g3.ID, 2); !errors.Is(err, repository.ErrGroupLimit) {
		t.Fatalf("add g3: got %v, want ErrGroupLimit", err)
	}
}

func TestUserRepository_SetPenaltyAmountCooldown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewUserRepository(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user := fixtures.CreateUser(ctx, "Fine")
	now := time.Now().UTC().Truncate(time.Millisecond)

	updated, err := repo.SetPenaltyAmount(ctx, user.ID, 250, now)
	if err != nil {
		t.Fatalf("first change: %v", err)
	}
	if updated.PenaltyAmount != 250 {
		t.Fatalf("PenaltyAmount = %d, want 250", updated.PenaltyAmount)
	}

	if _, err := repo.SetPenaltyAmount(ctx, user.ID, 300, now.Add(24*time.Hour)); !errors.Is(err, repository.ErrPenaltyLocked) {
		t.Fatalf("second change: got %v, want ErrPenaltyLocked", err)
	}
	if _, err := repo.SetPenaltyAmount(ctx, user.ID, 300, now.Add(models.PenaltyAmountCooldown)); err != nil {
		t.Fatalf("change after cooldown: %v", err)
	}
}

func TestUserRepository_HeartbeatReturnsPrevious(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewUserRepository(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user := fixtures.CreateUser(ctx, "Pinger")
	recording := true
	before, err := repo.Heartbeat(ctx, user.ID, time.Now().UTC(), &recording)
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if before.IsRecording {
		t.Fatal("expected previous document to have isRecording=false")
	}
	after := fixtures.Reload(ctx, user.ID)
	if !after.IsRecording || after.LastSeen == nil {
		t.Fatalf("expected recording with lastSeen, got %+v", after)
	}
}

func TestUserRepository_SetDebtIfChecksCurrentValue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewUserRepository(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user := fixtures.CreateUser(ctx, "Debtor")
	if err := repo.IncDebt(ctx, user.ID, 150); err != nil {
		t.Fatalf("inc: %v", err)
	}

	// A caller that read 100 must not overwrite the current 150.
	ok, err := repo.SetDebtIf(ctx, user.ID, 100, 100)
	if err != nil {
		t.Fatalf("stale set: %v", err)
	}
	if ok || fixtures.Reload(ctx, user.ID).TotalDebt != 150 {
		t.Fatalf("stale write applied: ok=%v debt=%d", ok, fixtures.Reload(ctx, user.ID).TotalDebt)
	}

	ok, err = repo.SetDebtIf(ctx, user.ID, 150, 120)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if !ok || fixtures.Reload(ctx, user.ID).TotalDebt != 120 {
		t.Fatalf("write not applied: ok=%v debt=%d", ok, fixtures.Reload(ctx, user.ID).TotalDebt)
	}
}
