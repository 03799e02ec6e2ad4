package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/presence"
	"github.com/crlx1q/antimat/internal/push"
	"github.com/crlx1q/antimat/internal/queue"
	"github.com/crlx1q/antimat/internal/security"
	"github.com/crlx1q/antimat/internal/testutil"
)

func TestRegisterAndLogin(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	res, err := e.auth.Register(ctx, RegisterInput{Email: " Kate@Example.com ", Password: "secret1", Name: "Kate"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.User.Email != "kate@example.com" {
		t.Fatalf("email not normalized: %q", res.User.Email)
	}
	if len(res.User.BannedWords) != 2 || res.User.PenaltyAmount != models.DefaultPenaltyAmount {
		t.Fatalf("defaults not seeded: %+v", res.User)
	}
	claims, err := security.ParseAccessToken(res.Token, "test-secret")
	if err != nil || claims.UserID != res.User.ID.Hex() {
		t.Fatalf("bad token: %+v, %v", claims, err)
	}

	if _, err := e.auth.Register(ctx, RegisterInput{Email: "kate@example.com", Password: "secret1", Name: "Kate"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate: got %v, want ErrEmailTaken", err)
	}
	if _, err := e.auth.Register(ctx, RegisterInput{Email: "x@example.com", Password: "123", Name: "X"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("short password: got %v, want ErrInvalidInput", err)
	}

	if _, err := e.auth.Login(ctx, LoginInput{Email: "kate@example.com", Password: "nope"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := e.auth.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "secret1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: got %v, want ErrInvalidCredentials", err)
	}
	logged, err := e.auth.Login(ctx, LoginInput{Email: "KATE@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.User.ID != res.User.ID || logged.Token == "" {
		t.Fatalf("unexpected login result: %+v", logged)
	}
}

func TestWords(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := e.fixtures.CreateUser(ctx, "Wordsmith")

	if _, _, err := e.words.Add(ctx, u.ID, " a "); !errors.Is(err, ErrWordTooShort) {
		t.Fatalf("short word: got %v, want ErrWordTooShort", err)
	}
	word, list, err := e.words.Add(ctx, u.ID, "  БЛИН ")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if word != "блин" || list.Count() != 1 || list.Limit != models.FreeWordLimit || list.IsPremium {
		t.Fatalf("unexpected add result: %q %+v", word, list)
	}
	if _, _, err := e.words.Add(ctx, u.ID, "блин"); !errors.Is(err, ErrWordExists) {
		t.Fatalf("duplicate: got %v, want ErrWordExists", err)
	}

	for i := list.Count(); i < models.FreeWordLimit; i++ {
		if _, _, err := e.words.Add(ctx, u.ID, "слово"+strings.Repeat("х", i)); err != nil {
			t.Fatalf("fill %d: %v", i, err)
		}
	}
	_, _, err = e.words.Add(ctx, u.ID, "лишнее")
	if !errors.Is(err, ErrWordLimit) {
		t.Fatalf("over limit: got %v, want ErrWordLimit", err)
	}

	list, err = e.words.Remove(ctx, u.ID, "БЛИН")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if list.Count() != models.FreeWordLimit-1 {
		t.Fatalf("count after remove = %d", list.Count())
	}
	if _, err := e.words.Remove(ctx, u.ID, "блин"); !errors.Is(err, ErrWordNotFound) {
		t.Fatalf("remove missing: got %v, want ErrWordNotFound", err)
	}
}

func TestWordsPremiumCap(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := e.fixtures.CreateUser(ctx, "Patron")
	if _, err := e.admin.GrantPremium(ctx, u.ID, "1m"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	for i := 0; i < models.PremiumWordLimit; i++ {
		_, list, err := e.words.Add(ctx, u.ID, "слово"+strings.Repeat("х", i))
		if err != nil {
			t.Fatalf("add %d: %v", i+1, err)
		}
		if list.Limit != models.PremiumWordLimit || !list.IsPremium {
			t.Fatalf("add %d: unexpected list %+v", i+1, list)
		}
	}
	if _, _, err := e.words.Add(ctx, u.ID, "лишнее"); !errors.Is(err, ErrWordLimit) {
		t.Fatalf("word %d: got %v, want ErrWordLimit", models.PremiumWordLimit+1, err)
	}
}

func TestWordsFallBackToFreeCapWhenPremiumExpires(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := e.fixtures.CreatePremiumUser(ctx, "Lapsed")
	for i := 0; i < models.FreeWordLimit+2; i++ {
		if _, _, err := e.words.Add(ctx, u.ID, "слово"+strings.Repeat("х", i)); err != nil {
			t.Fatalf("add %d: %v", i+1, err)
		}
	}

	expired := time.Now().UTC().Add(-time.Minute)
	if _, err := e.fixtures.Users.SetPremium(ctx, u.ID, &expired); err != nil {
		t.Fatalf("expire premium: %v", err)
	}

	list, err := e.words.List(ctx, u.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Limit != models.FreeWordLimit || list.IsPremium || list.Count() != models.FreeWordLimit+2 {
		t.Fatalf("unexpected list after expiry: %+v", list)
	}
	if _, _, err := e.words.Add(ctx, u.ID, "лишнее"); !errors.Is(err, ErrWordLimit) {
		t.Fatalf("after expiry: got %v, want ErrWordLimit", err)
	}
}

func TestPenaltyAmountChangeIsLocked(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := e.fixtures.CreateUser(ctx, "Fine")
	amount := int64(250)
	updated, err := e.users.UpdateSettings(ctx, u.ID, SettingsInput{PenaltyAmount: &amount})
	if err != nil {
		t.Fatalf("first change: %v", err)
	}
	if updated.PenaltyAmount != 250 {
		t.Fatalf("PenaltyAmount = %d, want 250", updated.PenaltyAmount)
	}

	// Resubmitting the same value is not a change.
	theme := "light"
	if _, err := e.users.UpdateSettings(ctx, u.ID, SettingsInput{PenaltyAmount: &amount, Theme: &theme}); err != nil {
		t.Fatalf("same amount: %v", err)
	}

	next := int64(500)
	_, err = e.users.UpdateSettings(ctx, u.ID, SettingsInput{PenaltyAmount: &next})
	if !errors.Is(err, ErrPenaltyLocked) {
		t.Fatalf("second change: got %v, want ErrPenaltyLocked", err)
	}
	if !strings.Contains(err.Error(), "после") {
		t.Fatalf("error should name the unlock date: %v", err)
	}
	reloaded := e.fixtures.Reload(ctx, u.ID)
	if reloaded.PenaltyAmount != 250 || reloaded.Settings.Theme != models.ThemeLight {
		t.Fatalf("unexpected stored settings: %+v", reloaded)
	}

	bad := "purple"
	if _, err := e.users.UpdateSettings(ctx, u.ID, SettingsInput{Theme: &bad}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad theme: got %v, want ErrInvalidInput", err)
	}
}

func TestHeartbeatNotifiesOnRecordingFlip(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	me := e.fixtures.CreateUser(ctx, "Me")
	mate := e.fixtures.CreateUser(ctx, "Mate")
	group := e.fixtures.CreateGroup(ctx, "g", me, mate)

	status, err := e.users.Heartbeat(ctx, me.ID, nil)
	if err != nil {
		t.Fatalf("plain heartbeat: %v", err)
	}
	if status != presence.StatusOnline {
		t.Fatalf("status = %s, want online", status)
	}
	if n := len(e.jobs.byType(queue.JobPresence)); n != 0 {
		t.Fatalf("plain heartbeat queued %d presence jobs", n)
	}

	on := true
	status, err = e.users.Heartbeat(ctx, me.ID, &on)
	if err != nil {
		t.Fatalf("recording heartbeat: %v", err)
	}
	if status != presence.StatusRecording {
		t.Fatalf("status = %s, want recording", status)
	}
	jobs := e.jobs.byType(queue.JobPresence)
	if len(jobs) != 1 {
		t.Fatalf("expected one presence job, got %d", len(jobs))
	}
	payload := jobs[0].Payload.(push.PresenceJob)
	if payload.GroupID != group.ID.Hex() || payload.Status != string(presence.StatusRecording) ||
		len(payload.Recipients) != 1 || payload.Recipients[0] != mate.ID.Hex() {
		t.Fatalf("unexpected presence payload: %+v", payload)
	}

	if _, err := e.users.Heartbeat(ctx, me.ID, &on); err != nil {
		t.Fatalf("repeat heartbeat: %v", err)
	}
	if n := len(e.jobs.byType(queue.JobPresence)); n != 1 {
		t.Fatalf("unchanged flag queued another job, total %d", n)
	}
}

func TestProfile(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := e.fixtures.CreateUser(ctx, "Old")
	e.fixtures.CreateGroup(ctx, "mine", u)

	name := "  New  "
	updated, err := e.users.UpdateProfile(ctx, u.ID, ProfileInput{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "New" {
		t.Fatalf("name = %q", updated.Name)
	}
	long := strings.Repeat("я", 65)
	if _, err := e.users.UpdateProfile(ctx, u.ID, ProfileInput{Name: &long}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("long name: got %v, want ErrInvalidInput", err)
	}

	profile, err := e.users.Profile(ctx, u.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if len(profile.Groups) != 1 || profile.Groups[0].Name != "mine" {
		t.Fatalf("unexpected profile groups: %+v", profile.Groups)
	}
}
