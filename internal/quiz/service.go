package quiz

import (
	"context"
	"log/slog"
	"time"

	"github.com/minhng/codequiz/internal/domain"
	"github.com/minhng/codequiz/internal/errors"
	"github.com/minhng/codequiz/internal/event"
	"github.com/minhng/codequiz/internal/question"
	"github.com/minhng/codequiz/internal/session"
	"github.com/minhng/codequiz/internal/telemetry"
)

type Config struct {
	Questions *question.Store
	Sessions  *session.Registry
	EventBus  *event.Bus

	// MaxScorePerQuestion caps what a single answer can contribute.
	MaxScorePerQuestion int

	// AutoSubmitDelay is how long a user may sit on a question before the
	// timer submits their in-progress code with a score of 0.
	AutoSubmitDelay time.Duration
}

// Service orchestrates the quiz flow: login, submission, question
// advancement, auto-submit timers and completion.
type Service struct {
	questions *question.Store
	sessions  *session.Registry
	eb        *event.Bus

	maxScore int
	delay    time.Duration
}

func NewService(c Config) *Service {
	return &Service{
		questions: c.Questions,
		sessions:  c.Sessions,
		eb:        c.EventBus,
		maxScore:  c.MaxScorePerQuestion,
		delay:     c.AutoSubmitDelay,
	}
}

// QuestionView is the payload rendered for one question.
type QuestionView struct {
	Username       string
	Question       domain.Question
	QuestionNumber int // 1-based
	TotalQuestions int
}

// ResultView is the payload rendered when a run completes.
type ResultView struct {
	Username         string
	Score            int
	MaxPossibleScore int
	Duration         time.Duration
	TotalQuestions   int
}

type LoginRequest struct {
	Username string
}

type LoginResponse struct {
	// Exactly one of Next and Result is set. Result is only returned when a
	// returning user has already finished the quiz.
	Next   *QuestionView
	Result *ResultView
}

// Login creates the session for username if it does not exist and schedules
// the auto-submit timer for the session's current question. Logging in again
// with an existing username resumes the run in place; it never resets state.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if req.Username == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("username is required"))
	}

	ss, created := s.sessions.GetOrCreate(req.Username)
	if created {
		telemetry.Logins.Inc()
		slog.InfoContext(ctx, "quiz: session created", "username", req.Username)
	}

	if ss.CurrentQuestion >= s.questions.Count() {
		res, err := s.Finish(ctx, FinishRequest{Username: req.Username})
		if err != nil {
			return nil, err
		}
		return &LoginResponse{Result: res}, nil
	}

	s.scheduleAutoSubmit(req.Username, ss.CurrentQuestion)

	return &LoginResponse{Next: s.questionView(req.Username, ss.CurrentQuestion)}, nil
}

type SubmitCodeRequest struct {
	Username   string
	QuestionID int
	Code       string
	Score      int
}

type SubmitCodeResponse struct {
	// Next is the following question, nil when the run just completed.
	Next   *QuestionView
	Result *ResultView
}

// SubmitCode records the answer and advances the session. If questions
// remain it schedules the next auto-submit timer and returns the next
// question; otherwise it completes the run.
func (s *Service) SubmitCode(ctx context.Context, req SubmitCodeRequest) (*SubmitCodeResponse, error) {
	res, err := s.sessions.Advance(req.Username, req.QuestionID, req.Code, req.Score)
	if err != nil {
		return nil, err
	}

	telemetry.Submissions.WithLabelValues("manual").Inc()

	if res.CurrentQuestion < s.questions.Count() {
		s.scheduleAutoSubmit(req.Username, res.CurrentQuestion)
		return &SubmitCodeResponse{Next: s.questionView(req.Username, res.CurrentQuestion)}, nil
	}

	view, err := s.Finish(ctx, FinishRequest{Username: req.Username})
	if err != nil {
		return nil, err
	}

	return &SubmitCodeResponse{Result: view}, nil
}

type FinishRequest struct {
	Username string
}

// Finish freezes the run and returns the results summary. Only the first
// completion publishes the leaderboard entry; repeated calls re-render the
// same frozen summary.
func (s *Service) Finish(ctx context.Context, req FinishRequest) (*ResultView, error) {
	sum, err := s.sessions.Complete(req.Username)
	if err != nil {
		return nil, err
	}

	if sum.First {
		telemetry.QuizzesFinished.Inc()

		s.eb.Publish(ctx, domain.EventQuizFinished{
			Entry: domain.LeaderboardEntry{
				Username: sum.Username,
				Score:    sum.TotalScore,
				Duration: sum.Duration,
			},
		})

		slog.InfoContext(ctx, "quiz: run finished",
			"username", sum.Username,
			"score", sum.TotalScore,
			"duration", sum.Duration,
		)
	}

	return &ResultView{
		Username:         sum.Username,
		Score:            sum.TotalScore,
		MaxPossibleScore: s.questions.Count() * s.maxScore,
		Duration:         sum.Duration,
		TotalQuestions:   s.questions.Count(),
	}, nil
}

type UpdateCurrentCodeRequest struct {
	Username string
	Code     string
	Score    int
}

// UpdateCurrentCode stores a best-effort snapshot of the in-progress code.
// Unknown usernames are ignored.
func (s *Service) UpdateCurrentCode(_ context.Context, req UpdateCurrentCodeRequest) {
	s.sessions.UpdateCurrentCode(req.Username, req.Code, req.Score)
}

// scheduleAutoSubmit arms the one-shot timer for (username, questionIdx).
// The handle is attached to the session so a manual advance stops it; the
// fired callback still re-checks that the session sits on questionIdx, so a
// timer that outlives its question is a no-op either way.
func (s *Service) scheduleAutoSubmit(username string, questionIdx int) {
	t := time.AfterFunc(s.delay, func() {
		s.autoSubmit(username, questionIdx)
	})
	s.sessions.AttachTimer(username, t)
}

func (s *Service) autoSubmit(username string, questionIdx int) {
	ctx := context.Background()

	res, ok := s.sessions.AutoAdvance(username, questionIdx)
	if !ok {
		return
	}

	telemetry.Submissions.WithLabelValues("auto").Inc()
	slog.InfoContext(ctx, "quiz: auto-submitted question",
		"username", username,
		"question", questionIdx,
	)

	if res.CurrentQuestion < s.questions.Count() {
		s.scheduleAutoSubmit(username, res.CurrentQuestion)
		return
	}

	if _, err := s.Finish(ctx, FinishRequest{Username: username}); err != nil {
		slog.ErrorContext(ctx, "quiz: finish after auto-submit failed",
			"username", username,
			"error", err,
		)
	}
}

func (s *Service) questionView(username string, idx int) *QuestionView {
	q, _ := s.questions.Get(idx)

	return &QuestionView{
		Username:       username,
		Question:       q,
		QuestionNumber: idx + 1,
		TotalQuestions: s.questions.Count(),
	}
}
