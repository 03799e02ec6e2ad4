package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crlx1q/antimat/internal/apperr"
	"github.com/crlx1q/antimat/internal/config"
	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/push"
	"github.com/crlx1q/antimat/internal/queue"
	"github.com/crlx1q/antimat/internal/repository"
	"github.com/crlx1q/antimat/internal/security"
)

var premiumPeriods = map[string]time.Duration{
	"7d":  7 * 24 * time.Hour,
	"14d": 14 * 24 * time.Hour,
	"1m":  30 * 24 * time.Hour,
	"3m":  90 * 24 * time.Hour,
	"6m":  180 * 24 * time.Hour,
	"12m": 365 * 24 * time.Hour,
}

// PremiumExpiry extends an active subscription by the period, otherwise
// starts it at now.
func PremiumExpiry(current *time.Time, period string, now time.Time) (time.Time, error) {
	d, ok := premiumPeriods[period]
	if !ok {
		return time.Time{}, ErrInvalidPremiumPeriod
	}
	if current != nil && current.After(now) {
		return current.Add(d), nil
	}
	return now.Add(d), nil
}

type AdminService struct {
	tx        Transactor
	users     *repository.UserRepository
	groups    *repository.GroupRepository
	penalties *repository.PenaltyRepository
	messages  *repository.MessageRepository
	cascade   cascade
	jobs      JobQueue
	security  config.SecurityConfig
	log       zerolog.Logger
	now       func() time.Time
}

func NewAdminService(
	tx Transactor,
	users *repository.UserRepository,
	groups *repository.GroupRepository,
	penalties *repository.PenaltyRepository,
	messages *repository.MessageRepository,
	jobs JobQueue,
	sec config.SecurityConfig,
	log zerolog.Logger,
) *AdminService {
	return &AdminService{
		tx:        tx,
		users:     users,
		groups:    groups,
		penalties: penalties,
		messages:  messages,
		cascade: cascade{
			users:     users,
			groups:    groups,
			penalties: penalties,
			messages:  messages,
		},
		jobs:     jobs,
		security: sec,
		log:      log,
		now:      time.Now,
	}
}

func (s *AdminService) Login(password string) (string, error) {
	if s.security.AdminPassword == "" {
		return "", ErrAdminNotConfigured
	}
	if password == "" || subtle.ConstantTimeCompare([]byte(password), []byte(s.security.AdminPassword)) != 1 {
		s.log.Warn().Msg("admin login rejected")
		return "", ErrInvalidAdminPassword
	}
	token, err := security.GenerateAdminToken(s.security.AdminSecret, s.security.AdminTTL)
	if err != nil {
		return "", apperr.Internal(err)
	}
	return token, nil
}

type AdminStats struct {
	TotalUsers           int64
	TotalGroups          int64
	ActivePremium        int64
	TotalPenalties       int64
	TotalPenaltiesAmount int64
}

func (s *AdminService) Stats(ctx context.Context) (AdminStats, error) {
	users, err := s.users.Count(ctx)
	if err != nil {
		return AdminStats{}, apperr.Internal(err)
	}
	groups, err := s.groups.Count(ctx)
	if err != nil {
		return AdminStats{}, apperr.Internal(err)
	}
	premium, err := s.users.CountPremium(ctx, s.now().UTC())
	if err != nil {
		return AdminStats{}, apperr.Internal(err)
	}
	totals, err := s.penalties.Totals(ctx)
	if err != nil {
		return AdminStats{}, apperr.Internal(err)
	}
	return AdminStats{
		TotalUsers:           users,
		TotalGroups:          groups,
		ActivePremium:        premium,
		TotalPenalties:       totals.TotalCount,
		TotalPenaltiesAmount: totals.TotalAmount,
	}, nil
}

type UserPage struct {
	Users      []models.User
	Pagination Pagination
}

func (s *AdminService) ListUsers(ctx context.Context, search string, page, limit int) (UserPage, error) {
	if limit < 1 {
		limit = 50
	}
	page, limit = normalizePage(page, limit)
	users, total, err := s.users.List(ctx, search, page, limit)
	if err != nil {
		return UserPage{}, apperr.Internal(err)
	}
	return UserPage{Users: users, Pagination: newPagination(page, limit, total)}, nil
}

func (s *AdminService) GrantPremium(ctx context.Context, userID primitive.ObjectID, period string) (models.User, error) {
	if _, ok := premiumPeriods[period]; !ok {
		return models.User{}, ErrInvalidPremiumPeriod
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.User{}, mapUserErr(err)
	}
	expires, err := PremiumExpiry(user.PremiumExpiresAt, period, s.now().UTC())
	if err != nil {
		return models.User{}, err
	}
	updated, err := s.users.SetPremium(ctx, userID, &expires)
	if err != nil {
		return models.User{}, mapUserErr(err)
	}
	s.log.Info().Str("user_id", userID.Hex()).Str("period", period).Time("expires_at", expires).Msg("premium granted")
	return updated, nil
}

func (s *AdminService) RevokePremium(ctx context.Context, userID primitive.ObjectID) (models.User, error) {
	updated, err := s.users.SetPremium(ctx, userID, nil)
	if err != nil {
		return models.User{}, mapUserErr(err)
	}
	s.log.Info().Str("user_id", userID.Hex()).Msg("premium revoked")
	return updated, nil
}

// ClearDebt deletes every penalty of the user and zeroes the debt.
func (s *AdminService) ClearDebt(ctx context.Context, userID primitive.ObjectID) error {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return mapUserErr(err)
	}
	var deleted int64
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		n, err := s.penalties.DeleteByUser(ctx, userID)
		if err != nil {
			return err
		}
		deleted = n
		return s.users.SetDebt(ctx, userID, 0)
	})
	if err != nil {
		return apperr.Internal(err)
	}
	s.log.Info().Str("user_id", userID.Hex()).Int64("penalties", deleted).Msg("debt cleared")
	return nil
}

// DeleteAccount removes the user and cascades through groups, penalties
// and messages.
func (s *AdminService) DeleteAccount(ctx context.Context, userID primitive.ObjectID) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return mapUserErr(err)
	}
	if err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.cascade.deleteAccount(ctx, user)
	}); err != nil {
		s.log.Error().Err(err).Str("user_id", userID.Hex()).Msg("account delete cascade failed")
		return apperr.Internal(err)
	}
	s.log.Info().Str("user_id", userID.Hex()).Str("email", user.Email).Msg("account deleted")
	return nil
}

type PushTestResult struct {
	JobID  string
	Tokens int
}

// PushTest queues a broadcast to every registered device.
func (s *AdminService) PushTest(ctx context.Context, title, body string) (PushTestResult, error) {
	if title == "" {
		title = "Antimat"
	}
	if body == "" {
		body = "Тестовое уведомление"
	}
	tokens, err := s.users.AllPushTokens(ctx)
	if err != nil {
		return PushTestResult{}, apperr.Internal(err)
	}
	if len(tokens) == 0 {
		return PushTestResult{}, ErrNoPushTokens
	}
	if s.jobs == nil {
		return PushTestResult{}, apperr.Internal(errors.New("job queue not configured"))
	}
	id, err := s.jobs.Enqueue(ctx, queue.JobBroadcast, push.BroadcastJob{Title: title, Body: body})
	if err != nil {
		return PushTestResult{}, apperr.Internal(err)
	}
	return PushTestResult{JobID: id, Tokens: len(tokens)}, nil
}

type SweepReport struct {
	UserRefsPulled    int64
	PenaltiesRemoved  int64
	MessagesRemoved   int64
	MembershipsPulled int64
}

// SweepOrphans removes references to groups and users that no longer
// exist. An interrupted run is simply repeated by the next one.
func (s *AdminService) SweepOrphans(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	refs, err := s.users.GroupRefs(ctx)
	if err != nil {
		return report, fmt.Errorf("user group refs: %w", err)
	}
	missing, err := s.missingGroups(ctx, refs)
	if err != nil {
		return report, err
	}
	if report.UserRefsPulled, err = s.users.PullGroups(ctx, missing); err != nil {
		return report, fmt.Errorf("pull user refs: %w", err)
	}

	refs, err = s.penalties.GroupRefs(ctx)
	if err != nil {
		return report, fmt.Errorf("penalty group refs: %w", err)
	}
	if missing, err = s.missingGroups(ctx, refs); err != nil {
		return report, err
	}
	if report.PenaltiesRemoved, err = s.cascade.dropPenalties(ctx, missing); err != nil {
		return report, fmt.Errorf("orphan penalties: %w", err)
	}

	refs, err = s.messages.GroupRefs(ctx)
	if err != nil {
		return report, fmt.Errorf("message group refs: %w", err)
	}
	if missing, err = s.missingGroups(ctx, refs); err != nil {
		return report, err
	}
	if report.MessagesRemoved, err = s.messages.DeleteByGroups(ctx, missing); err != nil {
		return report, fmt.Errorf("delete orphan messages: %w", err)
	}

	members, err := s.groups.MemberRefs(ctx)
	if err != nil {
		return report, fmt.Errorf("group member refs: %w", err)
	}
	found, err := s.users.ExistingIDs(ctx, members)
	if err != nil {
		return report, fmt.Errorf("check members: %w", err)
	}
	var gone []primitive.ObjectID
	for _, id := range members {
		if !found[id] {
			gone = append(gone, id)
		}
	}
	if report.MembershipsPulled, err = s.groups.RemoveMemberEverywhere(ctx, gone); err != nil {
		return report, fmt.Errorf("pull orphan members: %w", err)
	}

	return report, nil
}

func (s *AdminService) missingGroups(ctx context.Context, refs []primitive.ObjectID) ([]primitive.ObjectID, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	found, err := s.groups.ExistingIDs(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("check groups: %w", err)
	}
	var missing []primitive.ObjectID
	for _, id := range refs {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
