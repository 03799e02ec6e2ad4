package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/repository"
)

const minWordLength = 2

type WordService struct {
	users *repository.UserRepository
	log   zerolog.Logger
	now   func() time.Time
}

func NewWordService(users *repository.UserRepository, log zerolog.Logger) *WordService {
	return &WordService{users: users, log: log, now: time.Now}
}

type WordList struct {
	Words     []models.BannedWord
	Limit     int
	IsPremium bool
}

func (l WordList) Count() int {
	return len(l.Words)
}

func (s *WordService) List(ctx context.Context, userID primitive.ObjectID) (WordList, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return WordList{}, mapUserErr(err)
	}
	return s.listOf(user), nil
}

func (s *WordService) listOf(user models.User) WordList {
	now := s.now()
	words := user.BannedWords
	if words == nil {
		words = []models.BannedWord{}
	}
	return WordList{Words: words, Limit: user.WordLimit(now), IsPremium: user.Premium(now)}
}

// Add returns the normalized word and the resulting list.
func (s *WordService) Add(ctx context.Context, userID primitive.ObjectID, word string) (string, WordList, error) {
	word = normalizeWord(word)
	if len([]rune(word)) < minWordLength {
		return "", WordList{}, ErrWordTooShort
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", WordList{}, mapUserErr(err)
	}
	now := s.now().UTC()
	limit := user.WordLimit(now)

	updated, err := s.users.AddWord(ctx, userID, word, limit, now)
	switch {
	case err == nil:
		return word, s.listOf(updated), nil
	case errors.Is(err, repository.ErrWordExists):
		return "", WordList{}, ErrWordExists
	case errors.Is(err, repository.ErrWordLimit):
		return "", WordList{}, wordLimitErr(limit, user.Premium(now))
	default:
		return "", WordList{}, mapUserErr(err)
	}
}

func wordLimitErr(limit int, premium bool) error {
	if premium {
		return ErrWordLimit.WithMessage("Достигнут лимит слов (%d)", limit)
	}
	return ErrWordLimit.WithMessage("Достигнут лимит слов (%d). Оформите Premium для увеличения лимита до %d слов", limit, models.PremiumWordLimit)
}

func (s *WordService) Remove(ctx context.Context, userID primitive.ObjectID, word string) (WordList, error) {
	word = normalizeWord(word)
	if word == "" {
		return WordList{}, ErrWordNotFound
	}
	updated, err := s.users.RemoveWord(ctx, userID, word)
	if err != nil {
		if errors.Is(err, repository.ErrWordNotFound) {
			return WordList{}, ErrWordNotFound
		}
		return WordList{}, mapUserErr(err)
	}
	return s.listOf(updated), nil
}

func normalizeWord(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}
