package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crlx1q/antimat/internal/apperr"
	"github.com/crlx1q/antimat/internal/metrics"
	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/repository"
)

type Period string

const (
	PeriodAll   Period = "all"
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

const (
	userTopWords   = 5
	memberTopWords = 3
	dailyStatsDays = 7
)

var punishments = []string{
	"Сделай 10 приседаний",
	"Выпей стакан воды",
	"Позвони маме и скажи что любишь",
	"Сделай 5 отжиманий",
	"Улыбнись и подумай о хорошем",
	"Сделай комплимент первому встречному",
	"Убери одну вещь на своё место",
	"Напиши благодарность кому-нибудь",
	"Сделай 20 шагов на месте",
	"Задержи дыхание на 30 секунд",
}

type PenaltyService struct {
	tx        Transactor
	users     *repository.UserRepository
	groups    *repository.GroupRepository
	penalties *repository.PenaltyRepository
	chat      chatWriter
	metrics   *metrics.Metrics
	log       zerolog.Logger
	now       func() time.Time
	loc       *time.Location
	pick      func(n int) int
}

func NewPenaltyService(
	tx Transactor,
	users *repository.UserRepository,
	groups *repository.GroupRepository,
	penalties *repository.PenaltyRepository,
	messages *repository.MessageRepository,
	publisher ChatPublisher,
	m *metrics.Metrics,
	log zerolog.Logger,
) *PenaltyService {
	return &PenaltyService{
		tx:        tx,
		users:     users,
		groups:    groups,
		penalties: penalties,
		chat:      chatWriter{messages: messages, publisher: publisher, logger: log},
		metrics:   m,
		log:       log,
		now:       time.Now,
		loc:       time.Local,
		pick:      rand.Intn,
	}
}

type ViolationInput struct {
	Word       string
	GroupID    string
	Context    string
	Confidence *float64
}

type ViolationResult struct {
	Penalty   models.Penalty
	TotalDebt int64
}

// RecordViolation stores a penalty at the user's current fine, raises the
// debt by the same amount and announces it in every group of the user.
func (s *PenaltyService) RecordViolation(ctx context.Context, userID primitive.ObjectID, input ViolationInput) (ViolationResult, error) {
	word := normalizeWord(input.Word)
	if word == "" {
		return ViolationResult{}, ErrEmptyWord
	}

	var groupID *primitive.ObjectID
	if input.GroupID != "" {
		id, err := ParseID(input.GroupID)
		if err != nil {
			return ViolationResult{}, err
		}
		group, err := s.groups.GetByID(ctx, id)
		if err != nil {
			return ViolationResult{}, mapGroupErr(err)
		}
		if !group.IsMember(userID) {
			return ViolationResult{}, ErrNotMember
		}
		groupID = &id
	}

	var (
		result    ViolationResult
		announced []models.ChatMessage
	)
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		announced = announced[:0]
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		penalty, err := s.penalties.Create(ctx, models.Penalty{
			User:         userID,
			Group:        groupID,
			Word:         word,
			Amount:       user.PenaltyAmount,
			AIPunishment: punishments[s.pick(len(punishments))],
			DetectedAt:   s.now().UTC(),
			Metadata:     models.PenaltyMetadata{Context: input.Context, Confidence: input.Confidence},
		})
		if err != nil {
			return fmt.Errorf("create penalty: %w", err)
		}
		if err := s.users.IncDebt(ctx, userID, penalty.Amount); err != nil {
			return fmt.Errorf("increase debt: %w", err)
		}

		groups, err := s.groups.ListByMember(ctx, userID)
		if err != nil {
			return fmt.Errorf("list groups: %w", err)
		}
		for _, g := range groups {
			msg, err := s.chat.insert(ctx, penaltyAnnouncement(g.ID, user, penalty))
			if err != nil {
				return fmt.Errorf("announce penalty: %w", err)
			}
			announced = append(announced, msg)
		}

		result = ViolationResult{Penalty: penalty, TotalDebt: user.TotalDebt + penalty.Amount}
		return nil
	})
	if err != nil {
		return ViolationResult{}, mapUserErr(err)
	}

	s.chat.notify(ctx, announced...)
	if s.metrics != nil {
		s.metrics.Penalties.Inc()
	}
	s.log.Info().
		Str("user_id", userID.Hex()).
		Str("penalty_id", result.Penalty.ID.Hex()).
		Int64("amount", result.Penalty.Amount).
		Int("groups", len(announced)).
		Msg("violation recorded")
	return result, nil
}

func penaltyAnnouncement(groupID primitive.ObjectID, user models.User, p models.Penalty) models.ChatMessage {
	masked := MaskWord(p.Word)
	amount := p.Amount
	penaltyID := p.ID
	sender := user.ID
	return models.ChatMessage{
		Group:  groupID,
		Sender: &sender,
		Type:   models.MessageTypeSystem,
		Text:   fmt.Sprintf("%s получил штраф +%d₸ за слово \"%s\"", user.Name, p.Amount, masked),
		Metadata: &models.MessageMetadata{
			PenaltyID:     &penaltyID,
			PenaltyAmount: &amount,
			Word:          masked,
		},
		CreatedAt: p.DetectedAt,
	}
}

// MaskWord keeps the first character and stars the rest, counting runes.
func MaskWord(word string) string {
	runes := []rune(word)
	if len(runes) == 0 {
		return ""
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-1)
}

// Forgive clears one penalty. The owner of the penalty may always forgive
// it; for group penalties so may group admins, or any member when the
// group allows it.
func (s *PenaltyService) Forgive(ctx context.Context, penaltyID, actorID primitive.ObjectID) (models.Penalty, error) {
	penalty, err := s.penalties.GetByID(ctx, penaltyID)
	if err != nil {
		if errors.Is(err, repository.ErrPenaltyNotFound) {
			return models.Penalty{}, ErrPenaltyNotFound
		}
		return models.Penalty{}, apperr.Internal(err)
	}
	if penalty.IsForgiven {
		return models.Penalty{}, ErrAlreadyForgiven
	}
	if err := s.authorizeForgive(ctx, penalty, actorID); err != nil {
		return models.Penalty{}, err
	}

	var forgiven models.Penalty
	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.penalties.MarkForgiven(ctx, penaltyID, actorID, s.now().UTC())
		if err != nil {
			return err
		}
		if err := s.users.IncDebt(ctx, p.User, -p.Amount); err != nil && !errors.Is(err, repository.ErrUserNotFound) {
			return fmt.Errorf("decrease debt: %w", err)
		}
		forgiven = p
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPenaltyForgiven):
			return models.Penalty{}, ErrAlreadyForgiven
		case errors.Is(err, repository.ErrPenaltyNotFound):
			return models.Penalty{}, ErrPenaltyNotFound
		}
		return models.Penalty{}, apperr.Internal(err)
	}

	s.log.Info().
		Str("penalty_id", penaltyID.Hex()).
		Str("user_id", forgiven.User.Hex()).
		Str("forgiven_by", actorID.Hex()).
		Msg("penalty forgiven")
	return forgiven, nil
}

func (s *PenaltyService) authorizeForgive(ctx context.Context, p models.Penalty, actorID primitive.ObjectID) error {
	if p.User == actorID {
		return nil
	}
	if p.Group == nil {
		return ErrForgiveForbidden
	}
	group, err := s.groups.GetByID(ctx, *p.Group)
	if err != nil {
		return mapGroupErr(err)
	}
	if !group.IsMember(actorID) {
		return ErrForgiveForbidden
	}
	if group.IsAdmin(actorID) || group.Settings.CanMembersForgiveDebt {
		return nil
	}
	return ErrForgiveForbidden
}

// PeriodStart returns the lower bound of a statistics period, nil for all
// time.
func PeriodStart(period Period, now time.Time, loc *time.Location) (*time.Time, error) {
	local := now.In(loc)
	var start time.Time
	switch period {
	case PeriodAll, "":
		return nil, nil
	case PeriodDay:
		start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	case PeriodWeek:
		start = now.Add(-7 * 24 * time.Hour)
	case PeriodMonth:
		start = local.AddDate(0, -1, 0)
	default:
		return nil, ErrInvalidPeriod
	}
	start = start.UTC()
	return &start, nil
}

type UserStats struct {
	models.PenaltyStats
	CurrentDebt   int64
	PenaltyAmount int64
	TopWords      []models.WordCount
	Daily         []models.DailyStat
}

func (s *PenaltyService) Stats(ctx context.Context, userID primitive.ObjectID, period Period) (UserStats, error) {
	now := s.now()
	since, err := PeriodStart(period, now, s.loc)
	if err != nil {
		return UserStats{}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return UserStats{}, mapUserErr(err)
	}
	stats, err := s.penalties.Stats(ctx, userID, since)
	if err != nil {
		return UserStats{}, apperr.Internal(err)
	}
	top, err := s.TopWords(ctx, userID, userTopWords)
	if err != nil {
		return UserStats{}, err
	}
	daily, err := s.Daily(ctx, userID, dailyStatsDays)
	if err != nil {
		return UserStats{}, err
	}
	return UserStats{
		PenaltyStats:  stats,
		CurrentDebt:   user.TotalDebt,
		PenaltyAmount: user.PenaltyAmount,
		TopWords:      top,
		Daily:         daily,
	}, nil
}

func (s *PenaltyService) TopWords(ctx context.Context, userID primitive.ObjectID, limit int) ([]models.WordCount, error) {
	words, err := s.penalties.TopWords(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if words == nil {
		words = []models.WordCount{}
	}
	return words, nil
}

// Daily buckets the last days of penalties by local calendar date. Days
// without penalties are omitted.
func (s *PenaltyService) Daily(ctx context.Context, userID primitive.ObjectID, days int) ([]models.DailyStat, error) {
	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	rows, err := s.penalties.ListSince(ctx, userID, since)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return bucketDaily(rows, s.loc), nil
}

func bucketDaily(rows []models.Penalty, loc *time.Location) []models.DailyStat {
	out := []models.DailyStat{}
	index := map[string]int{}
	for _, p := range rows {
		day := p.DetectedAt.In(loc).Format("2006-01-02")
		i, ok := index[day]
		if !ok {
			i = len(out)
			index[day] = i
			out = append(out, models.DailyStat{Day: day})
		}
		out[i].Count++
		out[i].Amount += p.Amount
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

type HistoryPage struct {
	Penalties  []models.Penalty
	GroupNames map[primitive.ObjectID]string
	Pagination Pagination
}

func (s *PenaltyService) History(ctx context.Context, userID primitive.ObjectID, groupID string, page, limit int) (HistoryPage, error) {
	var gid *primitive.ObjectID
	if groupID != "" {
		id, err := ParseID(groupID)
		if err != nil {
			return HistoryPage{}, err
		}
		gid = &id
	}
	page, limit = normalizePage(page, limit)

	penalties, total, err := s.penalties.History(ctx, userID, gid, page, limit)
	if err != nil {
		return HistoryPage{}, apperr.Internal(err)
	}

	names := map[primitive.ObjectID]string{}
	groups, err := s.groups.ListByMember(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.Hex()).Msg("load group names for history failed")
	}
	for _, g := range groups {
		names[g.ID] = g.Name
	}

	return HistoryPage{
		Penalties:  penalties,
		GroupNames: names,
		Pagination: newPagination(page, limit, total),
	}, nil
}

type GroupStats struct {
	Group   models.Group
	Members []models.MemberStat
	Totals  models.GroupTotals
}

// GroupStats ranks the members of a group by fined amount.
func (s *PenaltyService) GroupStats(ctx context.Context, groupID, actorID primitive.ObjectID) (GroupStats, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return GroupStats{}, mapGroupErr(err)
	}
	if !group.IsMember(actorID) {
		return GroupStats{}, ErrNotMember
	}
	if !group.Settings.CanMembersSeeAllStats && !group.IsAdmin(actorID) {
		return GroupStats{}, ErrStatsHidden
	}

	users, err := s.users.FindByIDs(ctx, group.MemberIDs())
	if err != nil {
		return GroupStats{}, apperr.Internal(err)
	}
	totals, err := s.penalties.MemberTotals(ctx, groupID)
	if err != nil {
		return GroupStats{}, apperr.Internal(err)
	}
	words, err := s.penalties.MemberTopWords(ctx, groupID, memberTopWords)
	if err != nil {
		return GroupStats{}, apperr.Internal(err)
	}

	now := s.now()
	stats := GroupStats{Group: group, Members: make([]models.MemberStat, 0, len(users))}
	for _, u := range users {
		t := totals[u.ID]
		top := words[u.ID]
		if top == nil {
			top = []models.WordCount{}
		}
		stats.Members = append(stats.Members, models.MemberStat{
			UserID:           u.ID,
			Name:             u.Name,
			TotalDebt:        u.TotalDebt,
			PremiumExpiresAt: u.PremiumExpiresAt,
			IsPremium:        u.Premium(now),
			TotalCount:       t.TotalCount,
			TotalAmount:      t.TotalAmount,
			TopWords:         top,
		})
		stats.Totals.TotalCount += t.TotalCount
		stats.Totals.TotalAmount += t.TotalAmount
	}
	sort.SliceStable(stats.Members, func(i, j int) bool {
		a, b := stats.Members[i], stats.Members[j]
		if a.TotalAmount != b.TotalAmount {
			return a.TotalAmount > b.TotalAmount
		}
		return a.Name < b.Name
	})
	return stats, nil
}

// reconcileSettle is how old a user's newest ledger change must be before a
// reconcile without transactions touches that user. A younger change may
// still have its debt update in flight.
const reconcileSettle = time.Minute

// ReconcileDebts rewrites totalDebt wherever it drifted from the sum of the
// user's unforgiven penalties. It returns the number of repaired users.
func (s *PenaltyService) ReconcileDebts(ctx context.Context) (int, error) {
	scanStart := s.now().UTC()
	isolated := isolates(s.tx)

	stored, err := s.users.Debts(ctx)
	if err != nil {
		return 0, fmt.Errorf("load debts: %w", err)
	}

	repaired := 0
	for id := range stored {
		fixed, err := s.reconcileUser(ctx, id, scanStart, isolated)
		if err != nil {
			return repaired, fmt.Errorf("repair debt of %s: %w", id.Hex(), err)
		}
		if fixed {
			repaired++
		}
	}
	return repaired, nil
}

// reconcileUser compares one user's debt with their ledger and writes the
// ledger value only if the debt did not move since it was read.
func (s *PenaltyService) reconcileUser(ctx context.Context, id primitive.ObjectID, scanStart time.Time, isolated bool) (bool, error) {
	var (
		before, after int64
		fixed         bool
	)
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		fixed = false
		user, err := s.users.GetByID(ctx, id)
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ledger, err := s.penalties.LedgerOf(ctx, id)
		if err != nil {
			return err
		}
		if user.TotalDebt == ledger.Amount {
			return nil
		}
		if !isolated && ledger.LastChange.After(scanStart.Add(-reconcileSettle)) {
			s.log.Debug().Str("user_id", id.Hex()).Msg("debt drift left for next run: recent ledger change")
			return nil
		}
		ok, err := s.users.SetDebtIf(ctx, id, user.TotalDebt, ledger.Amount)
		if err != nil {
			return err
		}
		before, after, fixed = user.TotalDebt, ledger.Amount, ok
		return nil
	})
	if err != nil {
		return false, err
	}
	if fixed {
		s.log.Warn().
			Str("user_id", id.Hex()).
			Int64("stored", before).
			Int64("expected", after).
			Msg("debt drift repaired")
	}
	return fixed, nil
}

func mapGroupErr(err error) error {
	if errors.Is(err, repository.ErrGroupNotFound) {
		return ErrGroupNotFound
	}
	return apperr.Internal(err)
}
