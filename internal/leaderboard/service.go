package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minhng/codequiz/internal/domain"
	"github.com/minhng/codequiz/internal/event"
)

// DefaultTopN is how many entries the leaderboard view shows.
const DefaultTopN = 10

// durationWeight folds the completion time into the sorted-set score so a
// single ZREVRANGE yields the final order: total score dominates, and among
// equal scores a shorter run ranks higher. Durations must stay below
// durationWeight milliseconds (~11 days) for the encoding to hold.
const durationWeight = 1e9

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service keeps the ranking of finished runs in a redis sorted set. It
// subscribes to quiz.finished and re-publishes leaderboard.updated with the
// fresh top entries.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameQuizFinished, func(ctx context.Context, e event.Event) error {
		return s.Add(ctx, e.(domain.EventQuizFinished))
	})

	return s
}

type storedEntry struct {
	Score      int   `json:"score"`
	DurationMS int64 `json:"duration_ms"`
}

// Add records a finished run. A username is ranked by its first completion
// only; later entries for the same name are ignored.
func (s *Service) Add(ctx context.Context, e domain.EventQuizFinished) error {
	entry := e.Entry

	raw, err := json.Marshal(storedEntry{
		Score:      entry.Score,
		DurationMS: entry.Duration.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("leaderboard: marshal entry: %w", err)
	}

	added, err := s.redis.ZAddNX(ctx, s.rankKey(), redis.Z{
		Score:  rankScore(entry),
		Member: entry.Username,
	}).Result()
	if err != nil {
		return fmt.Errorf("leaderboard: add entry: %w", err)
	}

	if added == 0 {
		return nil
	}

	if err := s.redis.HSetNX(ctx, s.entriesKey(), entry.Username, raw).Err(); err != nil {
		return fmt.Errorf("leaderboard: store entry details: %w", err)
	}

	l, err := s.GetTop(ctx, DefaultTopN)
	if err != nil {
		return err
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{Leaderboard: *l})
	return nil
}

// GetTop returns the best n finished runs in rank order. An empty
// leaderboard yields an empty entry list.
func (s *Service) GetTop(ctx context.Context, n int) (*domain.Leaderboard, error) {
	if n <= 0 {
		n = DefaultTopN
	}

	names, err := s.redis.ZRevRange(ctx, s.rankKey(), 0, int64(n)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard: range: %w", err)
	}

	if len(names) == 0 {
		return &domain.Leaderboard{Entries: []domain.LeaderboardEntry{}}, nil
	}

	raws, err := s.redis.HMGet(ctx, s.entriesKey(), names...).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard: entry details: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(names))
	for i, name := range names {
		raw, ok := raws[i].(string)
		if !ok {
			continue
		}

		var st storedEntry
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, fmt.Errorf("leaderboard: unmarshal entry %s: %w", name, err)
		}

		entries = append(entries, domain.LeaderboardEntry{
			Username: name,
			Score:    st.Score,
			Duration: time.Duration(st.DurationMS) * time.Millisecond,
		})
	}

	return &domain.Leaderboard{Entries: entries}, nil
}

func rankScore(e domain.LeaderboardEntry) float64 {
	return float64(e.Score)*durationWeight - float64(e.Duration.Milliseconds())
}

func (s *Service) rankKey() string {
	return fmt.Sprintf("%s:leaderboard:rank", s.prefix)
}

func (s *Service) entriesKey() string {
	return fmt.Sprintf("%s:leaderboard:entries", s.prefix)
}
