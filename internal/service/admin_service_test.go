package service

import (
	"errors"
	"testing"
	"time"

	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/push"
	"github.com/crlx1q/antimat/internal/queue"
	"github.com/crlx1q/antimat/internal/repository"
	"github.com/crlx1q/antimat/internal/security"
	"github.com/crlx1q/antimat/internal/testutil"
)

func TestAdminLogin(t *testing.T) {
	e := newEnv(t)

	if _, err := e.admin.Login("wrong"); !errors.Is(err, ErrInvalidAdminPassword) {
		t.Fatalf("wrong password: got %v, want ErrInvalidAdminPassword", err)
	}
	token, err := e.admin.Login("letmein")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := security.ParseAdminToken(token, "admin-secret")
	if err != nil || !claims.Admin {
		t.Fatalf("unexpected admin token: %+v, %v", claims, err)
	}
	if _, err := security.ParseAccessToken(token, "test-secret"); err == nil {
		t.Fatal("admin token must not verify as a user token")
	}
}

func TestGrantAndRevokePremium(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := e.fixtures.CreateUser(ctx, "Buyer")
	if _, err := e.admin.GrantPremium(ctx, u.ID, "2y"); !errors.Is(err, ErrInvalidPremiumPeriod) {
		t.Fatalf("bad period: got %v, want ErrInvalidPremiumPeriod", err)
	}

	granted, err := e.admin.GrantPremium(ctx, u.ID, "7d")
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !granted.Premium(time.Now()) || !granted.IsPremium {
		t.Fatalf("expected premium user, got %+v", granted)
	}
	first := *granted.PremiumExpiresAt

	extended, err := e.admin.GrantPremium(ctx, u.ID, "7d")
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if got := extended.PremiumExpiresAt.Sub(first); got < 7*24*time.Hour-time.Second {
		t.Fatalf("active premium should be extended, moved by %s", got)
	}

	revoked, err := e.admin.RevokePremium(ctx, u.ID)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked.Premium(time.Now()) || revoked.PremiumExpiresAt != nil {
		t.Fatalf("expected premium removed, got %+v", revoked)
	}
}

func TestClearDebt(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := e.fixtures.CreateUser(ctx, "Debtor")
	e.fixtures.CreatePenalty(ctx, u, nil, "aa", 100, time.Now().UTC())
	e.fixtures.CreatePenalty(ctx, u, nil, "bb", 200, time.Now().UTC())

	if err := e.admin.ClearDebt(ctx, u.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if debt := e.fixtures.Reload(ctx, u.ID).TotalDebt; debt != 0 {
		t.Fatalf("debt = %d, want 0", debt)
	}
	stats, err := e.fixtures.Penalties.Stats(ctx, u.ID, nil)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalCount != 0 {
		t.Fatalf("penalties left: %d", stats.TotalCount)
	}
}

func TestDeleteAccountCascade(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	doomed := e.fixtures.CreateUser(ctx, "Doomed")
	friend := e.fixtures.CreateUser(ctx, "Friend")
	other := e.fixtures.CreateUser(ctx, "Other")

	owned := e.fixtures.CreateGroup(ctx, "owned", doomed, friend)
	joined := e.fixtures.CreateGroup(ctx, "joined", other, doomed)

	if _, err := e.chat.Send(ctx, joined.ID, doomed.ID, "bye"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := e.penalties.RecordViolation(ctx, doomed.ID, ViolationInput{Word: "чёрт", GroupID: joined.ID.Hex()}); err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := e.admin.DeleteAccount(ctx, doomed.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := e.fixtures.Users.GetByID(ctx, doomed.ID); !errors.Is(err, repository.ErrUserNotFound) {
		t.Fatalf("user still exists: %v", err)
	}
	if _, err := e.fixtures.Groups.GetByID(ctx, owned.ID); !errors.Is(err, repository.ErrGroupNotFound) {
		t.Fatalf("owned group still exists: %v", err)
	}
	if e.fixtures.Reload(ctx, friend.ID).InGroup(owned.ID) {
		t.Fatal("friend still references the owned group")
	}
	g, err := e.fixtures.Groups.GetByID(ctx, joined.ID)
	if err != nil {
		t.Fatalf("joined group: %v", err)
	}
	if g.IsMember(doomed.ID) {
		t.Fatal("deleted user still a member")
	}
	msgs, err := e.fixtures.Messages.Latest(ctx, joined.ID, 50)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	for _, m := range msgs {
		if m.Sender != nil && *m.Sender == doomed.ID {
			t.Fatalf("message from deleted user survived: %+v", m)
		}
	}
}

func TestSweepOrphans(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := e.fixtures.CreateUser(ctx, "Owner")
	member := e.fixtures.CreateUser(ctx, "Member")
	ghost := e.fixtures.CreateUser(ctx, "Ghost")

	lost := e.fixtures.CreateGroup(ctx, "lost", owner, member)
	kept := e.fixtures.CreateGroup(ctx, "kept", owner, ghost)

	e.fixtures.CreatePenalty(ctx, member, &lost.ID, "aa", 100, time.Now().UTC())
	e.fixtures.CreatePenalty(ctx, member, nil, "bb", 50, time.Now().UTC())
	if _, err := e.chat.Send(ctx, lost.ID, owner.ID, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Simulate an interrupted cascade: documents vanish without cleanup.
	if err := e.fixtures.Groups.Delete(ctx, lost.ID); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if err := e.fixtures.Users.Delete(ctx, ghost.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	report, err := e.admin.SweepOrphans(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.UserRefsPulled != 2 || report.PenaltiesRemoved != 1 || report.MessagesRemoved != 1 || report.MembershipsPulled != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if debt := e.fixtures.Reload(ctx, member.ID).TotalDebt; debt != 50 {
		t.Fatalf("debt = %d, want 50 after refund", debt)
	}
	g, err := e.fixtures.Groups.GetByID(ctx, kept.ID)
	if err != nil {
		t.Fatalf("kept group: %v", err)
	}
	if g.IsMember(ghost.ID) {
		t.Fatal("deleted user still listed as member")
	}

	again, err := e.admin.SweepOrphans(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again != (SweepReport{}) {
		t.Fatalf("second sweep should find nothing, got %+v", again)
	}
}

func TestPushTest(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := e.admin.PushTest(ctx, "", ""); !errors.Is(err, ErrNoPushTokens) {
		t.Fatalf("no tokens: got %v, want ErrNoPushTokens", err)
	}

	u := e.fixtures.CreateUser(ctx, "Phone")
	if err := e.users.SavePushToken(ctx, u.ID, "device-token"); err != nil {
		t.Fatalf("save token: %v", err)
	}
	res, err := e.admin.PushTest(ctx, "", "")
	if err != nil {
		t.Fatalf("push test: %v", err)
	}
	if res.Tokens != 1 || res.JobID == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	jobs := e.jobs.byType(queue.JobBroadcast)
	if len(jobs) != 1 {
		t.Fatalf("expected one broadcast job, got %d", len(jobs))
	}
	if payload := jobs[0].Payload.(push.BroadcastJob); payload.Title != "Antimat" || payload.Body == "" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestAdminStats(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := e.fixtures.CreateUser(ctx, "A")
	e.fixtures.CreatePremiumUser(ctx, "B")
	e.fixtures.CreateGroup(ctx, "g", a)
	e.fixtures.CreatePenalty(ctx, a, nil, "aa", models.DefaultPenaltyAmount, time.Now().UTC())

	stats, err := e.admin.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalUsers != 2 || stats.TotalGroups != 1 || stats.ActivePremium != 1 ||
		stats.TotalPenalties != 1 || stats.TotalPenaltiesAmount != models.DefaultPenaltyAmount {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
