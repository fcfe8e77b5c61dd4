package domain

import "time"

// Question is a single coding exercise. Its ID is its position in the
// question set, assigned at load time and stable for the process lifetime.
type Question struct {
	ID            int
	Text          string
	FunctionStart string
}

// Answer is a recorded submission for one question.
type Answer struct {
	Code  string
	Score int
}

// Session tracks a user's progress through the quiz. Sessions are keyed by
// username and live for the lifetime of the process.
type Session struct {
	Username          string
	StartTime         time.Time
	Answers           map[int]Answer
	CurrentQuestion   int
	QuestionStartTime time.Time
	CurrentCode       string
	CurrentScore      int
	TotalScore        int
	Finished          bool
	Duration          time.Duration
}

// LeaderboardEntry is the immutable summary of one finished run.
type LeaderboardEntry struct {
	Username string        `json:"username"`
	Score    int           `json:"score"`
	Duration time.Duration `json:"duration"`
}

// Leaderboard lists finished runs ranked by score descending, then by
// duration ascending.
type Leaderboard struct {
	Entries []LeaderboardEntry
}
