package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crlx1q/antimat/internal/apperr"
	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/presence"
	"github.com/crlx1q/antimat/internal/repository"
)

const (
	inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	inviteCodeLength   = 5
	inviteCodeAttempts = 10

	minGroupNameLength = 2
	maxGroupNameLength = 64
)

// GenerateInviteCode returns a random code of uppercase letters and digits.
func GenerateInviteCode() (string, error) {
	base := big.NewInt(int64(len(inviteCodeAlphabet)))
	var b strings.Builder
	b.Grow(inviteCodeLength)
	for i := 0; i < inviteCodeLength; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		b.WriteByte(inviteCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

type GroupService struct {
	tx       Transactor
	users    *repository.UserRepository
	groups   *repository.GroupRepository
	cascade  cascade
	chat     chatWriter
	baseURL  string
	log      zerolog.Logger
	now      func() time.Time
	codeFunc func() (string, error)
}

func NewGroupService(
	tx Transactor,
	users *repository.UserRepository,
	groups *repository.GroupRepository,
	penalties *repository.PenaltyRepository,
	messages *repository.MessageRepository,
	publisher ChatPublisher,
	baseURL string,
	log zerolog.Logger,
) *GroupService {
	return &GroupService{
		tx:     tx,
		users:  users,
		groups: groups,
		cascade: cascade{
			users:     users,
			groups:    groups,
			penalties: penalties,
			messages:  messages,
		},
		chat:     chatWriter{messages: messages, publisher: publisher, logger: log},
		baseURL:  strings.TrimRight(baseURL, "/"),
		log:      log,
		now:      time.Now,
		codeFunc: GenerateInviteCode,
	}
}

func (s *GroupService) InviteLink(code string) string {
	return s.baseURL + "/invite/" + code
}

// nextInviteCode draws codes until one is not in use. The unique index
// still decides on insert.
func (s *GroupService) nextInviteCode(ctx context.Context) (string, error) {
	for i := 0; i < inviteCodeAttempts; i++ {
		code, err := s.codeFunc()
		if err != nil {
			return "", err
		}
		exists, err := s.groups.InviteCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free invite code after %d attempts", inviteCodeAttempts)
}

func groupLimitErr(limit int, premium bool) error {
	if premium {
		return ErrGroupLimit.WithMessage("Достигнут лимит групп (%d)", limit)
	}
	return ErrGroupLimit.WithMessage("Достигнут лимит групп (%d). Оформите Premium для увеличения лимита до %d групп", limit, models.PremiumGroupLimit)
}

type CreateGroupInput struct {
	Name        string
	Description string
}

func (s *GroupService) Create(ctx context.Context, ownerID primitive.ObjectID, input CreateGroupInput) (models.Group, error) {
	name := strings.TrimSpace(input.Name)
	if n := len([]rune(name)); n < minGroupNameLength || n > maxGroupNameLength {
		return models.Group{}, ErrGroupNameRequired
	}

	owner, err := s.users.GetByID(ctx, ownerID)
	if err != nil {
		return models.Group{}, mapUserErr(err)
	}
	now := s.now().UTC()
	limit := owner.GroupLimit(now)
	if len(owner.Groups) >= limit {
		return models.Group{}, groupLimitErr(limit, owner.Premium(now))
	}

	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, err := s.nextInviteCode(ctx)
		if err != nil {
			return models.Group{}, apperr.Internal(err)
		}

		var (
			group   models.Group
			created models.ChatMessage
		)
		err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
			g, err := s.groups.Create(ctx, models.Group{
				Name:        name,
				Description: strings.TrimSpace(input.Description),
				InviteCode:  code,
				Owner:       ownerID,
				Members:     []models.GroupMember{{User: ownerID, Role: models.RoleOwner, JoinedAt: now}},
				Settings:    models.DefaultGroupSettings(),
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}
			if err := s.users.AddGroup(ctx, ownerID, g.ID, limit); err != nil {
				return err
			}
			msg, err := s.chat.insert(ctx, models.ChatMessage{
				Group:     g.ID,
				Type:      models.MessageTypeSystem,
				Text:      "Группа создана",
				CreatedAt: now,
			})
			if err != nil {
				return fmt.Errorf("announce group: %w", err)
			}
			group, created = g, msg
			return nil
		})
		switch {
		case err == nil:
			s.chat.notify(ctx, created)
			s.log.Info().Str("group_id", group.ID.Hex()).Str("user_id", ownerID.Hex()).Msg("group created")
			return group, nil
		case errors.Is(err, repository.ErrInviteCodeTaken):
			s.log.Debug().Str("code", code).Msg("invite code collision, retrying")
			continue
		case errors.Is(err, repository.ErrGroupLimit):
			return models.Group{}, groupLimitErr(limit, owner.Premium(now))
		default:
			return models.Group{}, mapUserErr(err)
		}
	}
	return models.Group{}, apperr.Internal(fmt.Errorf("invite code collisions exhausted"))
}

func (s *GroupService) Join(ctx context.Context, userID primitive.ObjectID, code string) (models.Group, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return models.Group{}, ErrInvalidInput.WithMessage("Код приглашения обязателен")
	}

	group, err := s.groups.FindByInviteCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrGroupNotFound) {
			return models.Group{}, ErrInviteCodeInvalid
		}
		return models.Group{}, apperr.Internal(err)
	}
	if group.IsMember(userID) {
		return models.Group{}, ErrAlreadyMember
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.Group{}, mapUserErr(err)
	}
	now := s.now().UTC()
	limit := user.GroupLimit(now)
	if len(user.Groups) >= limit {
		return models.Group{}, groupLimitErr(limit, user.Premium(now))
	}

	var joined models.ChatMessage
	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.AddGroup(ctx, userID, group.ID, limit); err != nil {
			return err
		}
		member := models.GroupMember{User: userID, Role: models.RoleMember, JoinedAt: now}
		if err := s.groups.AddMember(ctx, group.ID, member); err != nil {
			return err
		}
		sender := userID
		msg, err := s.chat.insert(ctx, models.ChatMessage{
			Group:     group.ID,
			Sender:    &sender,
			Type:      models.MessageTypeJoin,
			Text:      fmt.Sprintf("%s присоединился к группе", user.Name),
			CreatedAt: now,
		})
		joined = msg
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyInGroup), errors.Is(err, repository.ErrAlreadyMember):
			return models.Group{}, ErrAlreadyMember
		case errors.Is(err, repository.ErrGroupLimit):
			return models.Group{}, groupLimitErr(limit, user.Premium(now))
		case errors.Is(err, repository.ErrGroupNotFound):
			return models.Group{}, ErrInviteCodeInvalid
		}
		return models.Group{}, apperr.Internal(err)
	}

	s.chat.notify(ctx, joined)
	s.log.Info().Str("group_id", group.ID.Hex()).Str("user_id", userID.Hex()).Msg("user joined group")
	return group, nil
}

func (s *GroupService) Leave(ctx context.Context, groupID, userID primitive.ObjectID) error {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return mapGroupErr(err)
	}
	if group.IsOwner(userID) {
		return ErrOwnerCannotLeave
	}
	if !group.IsMember(userID) {
		return ErrNotMember
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return mapUserErr(err)
	}

	var left models.ChatMessage
	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.groups.RemoveMember(ctx, groupID, userID); err != nil {
			return err
		}
		if err := s.users.PullGroup(ctx, userID, groupID); err != nil {
			return err
		}
		target := userID
		msg, err := s.chat.insert(ctx, models.ChatMessage{
			Group:     groupID,
			Type:      models.MessageTypeLeave,
			Text:      fmt.Sprintf("%s покинул группу", user.Name),
			Metadata:  &models.MessageMetadata{TargetUser: &target},
			CreatedAt: s.now().UTC(),
		})
		left = msg
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotMember) {
			return ErrNotMember
		}
		return apperr.Internal(err)
	}

	s.chat.notify(ctx, left)
	s.log.Info().Str("group_id", groupID.Hex()).Str("user_id", userID.Hex()).Msg("user left group")
	return nil
}

// Delete removes a group and everything attached to it. Owner only.
func (s *GroupService) Delete(ctx context.Context, groupID, userID primitive.ObjectID) error {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return mapGroupErr(err)
	}
	if !group.IsOwner(userID) {
		return ErrNotOwner.WithMessage("Только владелец может удалить группу")
	}
	if err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.cascade.destroyGroup(ctx, groupID)
	}); err != nil {
		s.log.Error().Err(err).Str("group_id", groupID.Hex()).Msg("group delete cascade failed")
		return apperr.Internal(err)
	}
	s.log.Info().Str("group_id", groupID.Hex()).Str("user_id", userID.Hex()).Msg("group deleted")
	return nil
}

type MemberView struct {
	models.GroupMember
	User   models.User
	Status presence.Status
}

type GroupView struct {
	models.Group
	MemberViews []MemberView
}

func (s *GroupService) Get(ctx context.Context, groupID, userID primitive.ObjectID) (GroupView, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return GroupView{}, mapGroupErr(err)
	}
	if !group.IsMember(userID) {
		return GroupView{}, ErrNotMember
	}
	views, err := s.views(ctx, []models.Group{group})
	if err != nil {
		return GroupView{}, err
	}
	return views[0], nil
}

func (s *GroupService) List(ctx context.Context, userID primitive.ObjectID) ([]GroupView, error) {
	groups, err := s.groups.ListByMember(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return s.views(ctx, groups)
}

// views loads every member of the given groups at once and attaches their
// presence.
func (s *GroupService) views(ctx context.Context, groups []models.Group) ([]GroupView, error) {
	seen := map[primitive.ObjectID]bool{}
	var ids []primitive.ObjectID
	for _, g := range groups {
		for _, id := range g.MemberIDs() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	byID := make(map[primitive.ObjectID]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	now := s.now()
	out := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		view := GroupView{Group: g, MemberViews: make([]MemberView, 0, len(g.Members))}
		for _, m := range g.Members {
			u, ok := byID[m.User]
			if !ok {
				continue
			}
			view.MemberViews = append(view.MemberViews, MemberView{
				GroupMember: m,
				User:        u,
				Status:      presence.ForUser(u, now, presence.Overrides{}),
			})
		}
		out = append(out, view)
	}
	return out, nil
}

type GroupSettingsInput struct {
	CanMembersAddWords    *bool
	CanMembersSeeAllStats *bool
	CanMembersForgiveDebt *bool
}

func (s *GroupService) UpdateSettings(ctx context.Context, groupID, userID primitive.ObjectID, input GroupSettingsInput) (models.Group, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return models.Group{}, mapGroupErr(err)
	}
	if !group.IsAdmin(userID) {
		return models.Group{}, ErrNotGroupAdmin
	}

	settings := group.Settings
	if input.CanMembersAddWords != nil {
		settings.CanMembersAddWords = *input.CanMembersAddWords
	}
	if input.CanMembersSeeAllStats != nil {
		settings.CanMembersSeeAllStats = *input.CanMembersSeeAllStats
	}
	if input.CanMembersForgiveDebt != nil {
		settings.CanMembersForgiveDebt = *input.CanMembersForgiveDebt
	}

	updated, err := s.groups.UpdateSettings(ctx, groupID, settings)
	if err != nil {
		return models.Group{}, mapGroupErr(err)
	}
	return updated, nil
}

// TransferOwnership makes another member the owner. The previous owner
// stays as an admin.
func (s *GroupService) TransferOwnership(ctx context.Context, groupID, ownerID primitive.ObjectID, newOwner string) (models.Group, error) {
	targetID, err := ParseID(newOwner)
	if err != nil {
		return models.Group{}, err
	}
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return models.Group{}, mapGroupErr(err)
	}
	if !group.IsOwner(ownerID) {
		return models.Group{}, ErrNotOwner
	}
	if targetID == ownerID || !group.IsMember(targetID) {
		return models.Group{}, ErrTransferTarget
	}

	admins := []primitive.ObjectID{ownerID}
	for _, id := range group.Admins {
		if id != ownerID && id != targetID {
			admins = append(admins, id)
		}
	}

	users, err := s.users.FindByIDs(ctx, []primitive.ObjectID{ownerID, targetID})
	if err != nil {
		return models.Group{}, apperr.Internal(err)
	}
	names := map[primitive.ObjectID]string{}
	for _, u := range users {
		names[u.ID] = u.Name
	}

	var (
		updated   models.Group
		announced models.ChatMessage
	)
	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		g, err := s.groups.TransferOwnership(ctx, groupID, ownerID, targetID, admins)
		if err != nil {
			return err
		}
		target := targetID
		msg, err := s.chat.insert(ctx, models.ChatMessage{
			Group:     groupID,
			Type:      models.MessageTypeSystem,
			Text:      fmt.Sprintf("%s передал права владельца участнику %s", names[ownerID], names[targetID]),
			Metadata:  &models.MessageMetadata{TargetUser: &target},
			CreatedAt: s.now().UTC(),
		})
		updated, announced = g, msg
		return err
	})
	if err != nil {
		return models.Group{}, mapGroupErr(err)
	}

	s.chat.notify(ctx, announced)
	s.log.Info().
		Str("group_id", groupID.Hex()).
		Str("from", ownerID.Hex()).
		Str("to", targetID.Hex()).
		Msg("group ownership transferred")
	return updated, nil
}
