package domain

const (
	EventNameQuizFinished       = "quiz.finished"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventQuizFinished struct {
	Entry LeaderboardEntry
}

func (EventQuizFinished) Name() string { return EventNameQuizFinished }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
