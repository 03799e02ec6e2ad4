package service

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/repository"
)

// cascade removes groups and accounts together with everything that points
// at them. Callers wrap it in a transaction when one is available. Without
// one a failed run may be repeated: a penalty is refunded only by the call
// that deleted it, so a rerun never refunds the same penalty twice.
type cascade struct {
	users     *repository.UserRepository
	groups    *repository.GroupRepository
	penalties *repository.PenaltyRepository
	messages  *repository.MessageRepository
}

// destroyGroup refunds members' unforgiven penalties of the group, then
// deletes its penalties, messages, user references and the group itself.
func (c cascade) destroyGroup(ctx context.Context, groupID primitive.ObjectID) error {
	if _, err := c.dropPenalties(ctx, []primitive.ObjectID{groupID}); err != nil {
		return err
	}
	if _, err := c.messages.DeleteByGroup(ctx, groupID); err != nil {
		return fmt.Errorf("delete group messages: %w", err)
	}
	if _, err := c.users.PullGroups(ctx, []primitive.ObjectID{groupID}); err != nil {
		return fmt.Errorf("pull group references: %w", err)
	}
	if err := c.groups.Delete(ctx, groupID); err != nil && !errors.Is(err, repository.ErrGroupNotFound) {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}

// dropPenalties deletes every penalty of the groups. Each unforgiven one is
// deleted first and its amount refunded right after.
func (c cascade) dropPenalties(ctx context.Context, groupIDs []primitive.ObjectID) (int64, error) {
	if len(groupIDs) == 0 {
		return 0, nil
	}
	var removed int64
	for {
		p, err := c.penalties.TakeUnforgiven(ctx, groupIDs)
		if errors.Is(err, repository.ErrPenaltyNotFound) {
			break
		}
		if err != nil {
			return removed, fmt.Errorf("take penalty: %w", err)
		}
		removed++
		if p.Amount == 0 {
			continue
		}
		if err := c.users.IncDebt(ctx, p.User, -p.Amount); err != nil && !errors.Is(err, repository.ErrUserNotFound) {
			return removed, fmt.Errorf("refund penalty %s of %s: %w", p.ID.Hex(), p.User.Hex(), err)
		}
	}

	forgiven, err := c.penalties.DeleteByGroups(ctx, groupIDs)
	if err != nil {
		return removed, fmt.Errorf("delete group penalties: %w", err)
	}
	return removed + forgiven, nil
}

// deleteAccount destroys owned groups, leaves the others and removes the
// user's penalties, authored messages and the user row.
func (c cascade) deleteAccount(ctx context.Context, user models.User) error {
	groups, err := c.groups.ListByMember(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	for _, g := range groups {
		if g.IsOwner(user.ID) {
			if err := c.destroyGroup(ctx, g.ID); err != nil {
				return fmt.Errorf("destroy group %s: %w", g.ID.Hex(), err)
			}
			continue
		}
		if err := c.groups.RemoveMember(ctx, g.ID, user.ID); err != nil && !errors.Is(err, repository.ErrNotMember) {
			return fmt.Errorf("leave group %s: %w", g.ID.Hex(), err)
		}
	}

	if _, err := c.penalties.DeleteByUser(ctx, user.ID); err != nil {
		return fmt.Errorf("delete penalties: %w", err)
	}
	if _, err := c.messages.DeleteBySender(ctx, user.ID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if err := c.users.Delete(ctx, user.ID); err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
