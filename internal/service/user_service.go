package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crlx1q/antimat/internal/apperr"
	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/presence"
	"github.com/crlx1q/antimat/internal/push"
	"github.com/crlx1q/antimat/internal/queue"
	"github.com/crlx1q/antimat/internal/repository"
)

const maxNameLength = 64

type UserService struct {
	users  *repository.UserRepository
	groups *repository.GroupRepository
	jobs   JobQueue
	log    zerolog.Logger
	now    func() time.Time
}

func NewUserService(users *repository.UserRepository, groups *repository.GroupRepository, jobs JobQueue, log zerolog.Logger) *UserService {
	return &UserService{users: users, groups: groups, jobs: jobs, log: log, now: time.Now}
}

// Profile is the user together with the groups it belongs to.
type Profile struct {
	User   models.User
	Groups []models.Group
}

func (s *UserService) Profile(ctx context.Context, userID primitive.ObjectID) (Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return Profile{}, mapUserErr(err)
	}
	groups, err := s.groups.ListByMember(ctx, userID)
	if err != nil {
		return Profile{}, apperr.Internal(err)
	}
	return Profile{User: user, Groups: groups}, nil
}

type ProfileInput struct {
	Name   *string
	Avatar *string
}

func (s *UserService) UpdateProfile(ctx context.Context, userID primitive.ObjectID, input ProfileInput) (models.User, error) {
	upd := repository.ProfileUpdate{Avatar: input.Avatar}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name != "" {
			if len([]rune(name)) > maxNameLength {
				return models.User{}, ErrInvalidInput.WithMessage("Имя не длиннее %d символов", maxNameLength)
			}
			upd.Name = &name
		}
	}
	user, err := s.users.UpdateProfile(ctx, userID, upd)
	if err != nil {
		return models.User{}, mapUserErr(err)
	}
	return user, nil
}

type SettingsInput struct {
	PenaltyAmount        *int64
	Theme                *string
	SoundEnabled         *bool
	NotificationsEnabled *bool
	ContinuousRecording  *bool
}

// UpdateSettings applies the fine change first: when it is locked nothing
// else is written.
func (s *UserService) UpdateSettings(ctx context.Context, userID primitive.ObjectID, input SettingsInput) (models.User, error) {
	upd := repository.SettingsUpdate{
		SoundEnabled:         input.SoundEnabled,
		NotificationsEnabled: input.NotificationsEnabled,
		ContinuousRecording:  input.ContinuousRecording,
	}
	if input.Theme != nil && *input.Theme != "" {
		theme := models.Theme(*input.Theme)
		if theme != models.ThemeDark && theme != models.ThemeLight {
			return models.User{}, ErrInvalidInput.WithMessage("Неизвестная тема")
		}
		upd.Theme = &theme
	}

	if input.PenaltyAmount != nil {
		if err := s.changePenaltyAmount(ctx, userID, *input.PenaltyAmount); err != nil {
			return models.User{}, err
		}
	}

	user, err := s.users.UpdateSettings(ctx, userID, upd)
	if err != nil {
		return models.User{}, mapUserErr(err)
	}
	return user, nil
}

func (s *UserService) changePenaltyAmount(ctx context.Context, userID primitive.ObjectID, requested int64) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return mapUserErr(err)
	}
	amount := models.ClampPenaltyAmount(requested)
	if amount == user.PenaltyAmount {
		return nil
	}

	now := s.now().UTC()
	if !user.CanChangePenaltyAmount(now) {
		return penaltyLockedErr(user.NextPenaltyChange())
	}
	if _, err := s.users.SetPenaltyAmount(ctx, userID, amount, now); err != nil {
		if errors.Is(err, repository.ErrPenaltyLocked) {
			// A concurrent request won; report the date it set.
			if fresh, getErr := s.users.GetByID(ctx, userID); getErr == nil {
				return penaltyLockedErr(fresh.NextPenaltyChange())
			}
			return ErrPenaltyLocked
		}
		return mapUserErr(err)
	}
	s.log.Info().Str("user_id", userID.Hex()).Int64("amount", amount).Msg("penalty amount changed")
	return nil
}

func penaltyLockedErr(next time.Time) error {
	return ErrPenaltyLocked.WithMessage("Изменить сумму штрафа можно после %s", next.Format("02.01.2006"))
}

func (s *UserService) SavePushToken(ctx context.Context, userID primitive.ObjectID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidInput.WithMessage("FCM token is required")
	}
	if err := s.users.SetPushToken(ctx, userID, token); err != nil {
		return mapUserErr(err)
	}
	return nil
}

// Heartbeat records presence. Group members are only notified when the
// recording flag actually flips.
func (s *UserService) Heartbeat(ctx context.Context, userID primitive.ObjectID, recording *bool) (presence.Status, error) {
	now := s.now().UTC()
	before, err := s.users.Heartbeat(ctx, userID, now, recording)
	if err != nil {
		return "", mapUserErr(err)
	}
	status := presence.ForUser(before, now, presence.Overrides{LastSeen: &now, Recording: recording})

	if recording == nil || *recording == before.IsRecording || len(before.Groups) == 0 {
		return status, nil
	}

	groups, err := s.groups.ListByMember(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.Hex()).Msg("load groups for presence push failed")
		return status, nil
	}
	for _, g := range groups {
		recipients := g.OtherMemberIDs(userID)
		if len(recipients) == 0 {
			continue
		}
		enqueue(ctx, s.jobs, s.log, queue.JobPresence, push.PresenceJob{
			Recipients: hexIDs(recipients),
			GroupID:    g.ID.Hex(),
			UserID:     userID.Hex(),
			Status:     string(status),
		})
	}
	return status, nil
}

func mapUserErr(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return apperr.Internal(err)
}
