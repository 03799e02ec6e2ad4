package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crlx1q/antimat/internal/apperr"
	"github.com/crlx1q/antimat/internal/chat"
	"github.com/crlx1q/antimat/internal/config"
	"github.com/crlx1q/antimat/internal/metrics"
	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/push"
	"github.com/crlx1q/antimat/internal/queue"
	"github.com/crlx1q/antimat/internal/repository"
)

const maxMessageLength = 2000

type ChatService struct {
	users    *repository.UserRepository
	groups   *repository.GroupRepository
	messages *repository.MessageRepository
	chat     chatWriter
	poller   *chat.Poller
	jobs     JobQueue
	cfg      config.ChatConfig
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewChatService(
	users *repository.UserRepository,
	groups *repository.GroupRepository,
	messages *repository.MessageRepository,
	publisher ChatPublisher,
	poller *chat.Poller,
	jobs JobQueue,
	cfg config.ChatConfig,
	m *metrics.Metrics,
	log zerolog.Logger,
) *ChatService {
	return &ChatService{
		users:    users,
		groups:   groups,
		messages: messages,
		chat:     chatWriter{messages: messages, publisher: publisher, logger: log},
		poller:   poller,
		jobs:     jobs,
		cfg:      cfg,
		metrics:  m,
		log:      log,
	}
}

// MessageView is a message with its sender resolved for display.
type MessageView struct {
	models.ChatMessage
	SenderName   string
	SenderAvatar *string
}

func (s *ChatService) memberGroup(ctx context.Context, groupID, userID primitive.ObjectID) (models.Group, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return models.Group{}, mapGroupErr(err)
	}
	if !group.IsMember(userID) {
		return models.Group{}, ErrNotMember
	}
	return group, nil
}

func (s *ChatService) Send(ctx context.Context, groupID, senderID primitive.ObjectID, text string) (MessageView, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return MessageView{}, ErrEmptyMessage
	}
	if len([]rune(text)) > maxMessageLength {
		return MessageView{}, ErrMessageLong.WithMessage("Сообщение не длиннее %d символов", maxMessageLength)
	}

	group, err := s.memberGroup(ctx, groupID, senderID)
	if err != nil {
		return MessageView{}, err
	}
	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return MessageView{}, mapUserErr(err)
	}

	from := senderID
	msg, err := s.chat.insert(ctx, models.ChatMessage{
		Group:  groupID,
		Sender: &from,
		Type:   models.MessageTypeMessage,
		Text:   text,
	})
	if err != nil {
		return MessageView{}, apperr.Internal(err)
	}
	s.chat.notify(ctx, msg)

	if recipients := group.OtherMemberIDs(senderID); len(recipients) > 0 {
		enqueue(ctx, s.jobs, s.log, queue.JobChatMessage, push.ChatMessageJob{
			Recipients: hexIDs(recipients),
			GroupID:    groupID.Hex(),
			GroupName:  group.Name,
			SenderName: sender.Name,
			MessageID:  msg.ID.Hex(),
			Text:       msg.Text,
			CreatedAt:  msg.CreatedAt.Format(time.RFC3339Nano),
		})
	}

	return MessageView{ChatMessage: msg, SenderName: sender.Name, SenderAvatar: sender.Avatar}, nil
}

type ChatPage struct {
	Messages   []MessageView
	Pagination Pagination
}

// List returns one page counted from the newest message; the page itself
// is in chronological order.
func (s *ChatService) List(ctx context.Context, groupID, userID primitive.ObjectID, page, limit int) (ChatPage, error) {
	if _, err := s.memberGroup(ctx, groupID, userID); err != nil {
		return ChatPage{}, err
	}
	if limit < 1 {
		limit = s.cfg.HistoryLimit
	}
	page, limit = normalizePage(page, limit)

	messages, total, err := s.messages.Page(ctx, groupID, page, limit)
	if err != nil {
		return ChatPage{}, apperr.Internal(err)
	}
	views, err := s.enrich(ctx, messages)
	if err != nil {
		return ChatPage{}, err
	}
	return ChatPage{Messages: views, Pagination: newPagination(page, limit, total)}, nil
}

type PollView struct {
	Messages       []MessageView
	HasNewMessages bool
}

// Poll holds the request until messages newer than lastMessageID exist or
// the timeout passes. An unknown or foreign lastMessageID behaves like no
// cursor at all. The returned error is ctx.Err() when the client went away.
func (s *ChatService) Poll(ctx context.Context, groupID, userID primitive.ObjectID, lastMessageID string, timeout time.Duration) (PollView, error) {
	if _, err := s.memberGroup(ctx, groupID, userID); err != nil {
		return PollView{}, err
	}

	afterSeq, err := s.cursor(ctx, groupID, lastMessageID)
	if err != nil {
		return PollView{}, err
	}
	timeout = s.clampTimeout(timeout)

	if s.metrics != nil {
		s.metrics.PollsWaiting.Inc()
		defer s.metrics.PollsWaiting.Dec()
	}
	result, err := s.poller.Poll(ctx, groupID, afterSeq, timeout)
	if err != nil {
		if ctx.Err() != nil {
			s.pollOutcome("cancelled")
			return PollView{}, ctx.Err()
		}
		s.pollOutcome("error")
		return PollView{}, apperr.Internal(err)
	}
	if !result.HasNewMessages {
		s.pollOutcome("timeout")
		return PollView{Messages: []MessageView{}}, nil
	}

	s.pollOutcome("messages")
	views, err := s.enrich(ctx, result.Messages)
	if err != nil {
		return PollView{}, err
	}
	return PollView{Messages: views, HasNewMessages: true}, nil
}

func (s *ChatService) cursor(ctx context.Context, groupID primitive.ObjectID, lastMessageID string) (*int64, error) {
	if lastMessageID == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(lastMessageID)
	if err != nil {
		return nil, nil
	}
	last, err := s.messages.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, nil
		}
		return nil, apperr.Internal(err)
	}
	if last.Group != groupID {
		return nil, nil
	}
	seq := last.Seq
	return &seq, nil
}

func (s *ChatService) clampTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return s.cfg.PollTimeout
	}
	if s.cfg.PollMaxTimeout > 0 && timeout > s.cfg.PollMaxTimeout {
		return s.cfg.PollMaxTimeout
	}
	return timeout
}

func (s *ChatService) pollOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.PollOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (s *ChatService) enrich(ctx context.Context, messages []models.ChatMessage) ([]MessageView, error) {
	seen := map[primitive.ObjectID]bool{}
	var ids []primitive.ObjectID
	for _, m := range messages {
		if m.Sender != nil && !seen[*m.Sender] {
			seen[*m.Sender] = true
			ids = append(ids, *m.Sender)
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

	views := make([]MessageView, 0, len(messages))
	for _, m := range messages {
		view := MessageView{ChatMessage: m}
		if m.Sender != nil {
			if u, ok := byID[*m.Sender]; ok {
				view.SenderName = u.Name
				view.SenderAvatar = u.Avatar
			}
		}
		views = append(views, view)
	}
	return views, nil
}
