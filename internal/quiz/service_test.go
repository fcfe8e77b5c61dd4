package quiz_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhng/codequiz/internal/domain"
	"github.com/minhng/codequiz/internal/errors"
	"github.com/minhng/codequiz/internal/event"
	"github.com/minhng/codequiz/internal/question"
	"github.com/minhng/codequiz/internal/quiz"
	"github.com/minhng/codequiz/internal/session"
)

const maxScore = 30

// finishedRecorder collects quiz.finished events published by the service.
type finishedRecorder struct {
	mu      sync.Mutex
	entries []domain.LeaderboardEntry
}

func (r *finishedRecorder) record(_ context.Context, e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e.(domain.EventQuizFinished).Entry)
	return nil
}

func (r *finishedRecorder) all() []domain.LeaderboardEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.LeaderboardEntry(nil), r.entries...)
}

func makeService(t *testing.T, questionCount int, delay time.Duration) (*quiz.Service, *session.Registry, *event.Bus, *finishedRecorder) {
	t.Helper()

	content := "["
	for i := 0; i < questionCount; i++ {
		if i > 0 {
			content += ","
		}
		content += `{"text": "question", "function_start": "func f() {}"}`
	}
	content += "]"

	path := filepath.Join(t.TempDir(), "questions.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	qs, err := question.Load(path)
	require.NoError(t, err)

	eb := event.NewBus()
	rec := &finishedRecorder{}
	eb.Subscribe(domain.EventNameQuizFinished, rec.record)

	sessions := session.NewRegistry(session.Config{MaxScorePerQuestion: maxScore})

	s := quiz.NewService(quiz.Config{
		Questions:           qs,
		Sessions:            sessions,
		EventBus:            eb,
		MaxScorePerQuestion: maxScore,
		AutoSubmitDelay:     delay,
	})

	return s, sessions, eb, rec
}

func TestService_Login(t *testing.T) {
	s, _, _, _ := makeService(t, 2, time.Hour)

	resp, err := s.Login(context.Background(), quiz.LoginRequest{Username: "u1"})
	require.NoError(t, err)
	require.NotNil(t, resp.Next)

	assert.Equal(t, "u1", resp.Next.Username)
	assert.Equal(t, 1, resp.Next.QuestionNumber)
	assert.Equal(t, 2, resp.Next.TotalQuestions)
	assert.Equal(t, 0, resp.Next.Question.ID)
	assert.NotEmpty(t, resp.Next.Question.FunctionStart)
}

func TestService_LoginEmptyUsername(t *testing.T) {
	s, _, _, _ := makeService(t, 2, time.Hour)

	_, err := s.Login(context.Background(), quiz.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidArgument, errors.Convert(err).Code)
}

func TestService_LoginResumes(t *testing.T) {
	s, _, _, _ := makeService(t, 3, time.Hour)

	_, err := s.Login(context.Background(), quiz.LoginRequest{Username: "u1"})
	require.NoError(t, err)

	_, err = s.SubmitCode(context.Background(), quiz.SubmitCodeRequest{
		Username: "u1", QuestionID: 0, Code: "code", Score: 20,
	})
	require.NoError(t, err)

	resp, err := s.Login(context.Background(), quiz.LoginRequest{Username: "u1"})
	require.NoError(t, err)
	require.NotNil(t, resp.Next)
	assert.Equal(t, 2, resp.Next.QuestionNumber, "re-login resumes at the current question")
}

func TestService_EndToEnd(t *testing.T) {
	s, _, eb, rec := makeService(t, 2, time.Hour)

	_, err := s.Login(context.Background(), quiz.LoginRequest{Username: "u1"})
	require.NoError(t, err)

	next, err := s.SubmitCode(context.Background(), quiz.SubmitCodeRequest{
		Username: "u1", QuestionID: 0, Code: "a", Score: 25,
	})
	require.NoError(t, err)
	require.NotNil(t, next.Next)
	assert.Equal(t, 2, next.Next.QuestionNumber)

	final, err := s.SubmitCode(context.Background(), quiz.SubmitCodeRequest{
		Username: "u1", QuestionID: 1, Code: "b", Score: 30,
	})
	require.NoError(t, err)
	require.Nil(t, final.Next)
	require.NotNil(t, final.Result)

	assert.Equal(t, 55, final.Result.Score)
	assert.Equal(t, 60, final.Result.MaxPossibleScore)
	assert.Equal(t, 2, final.Result.TotalQuestions)

	eb.Stop()
	entries := rec.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].Username)
	assert.Equal(t, 55, entries[0].Score)
}

func TestService_SubmitScoreClamped(t *testing.T) {
	s, sessions, _, _ := makeService(t, 2, time.Hour)

	_, err := s.Login(context.Background(), quiz.LoginRequest{Username: "u1"})
	require.NoError(t, err)

	_, err = s.SubmitCode(context.Background(), quiz.SubmitCodeRequest{
		Username: "u1", QuestionID: 0, Code: "a", Score: 999,
	})
	require.NoError(t, err)

	ss, ok := sessions.Get("u1")
	require.True(t, ok)
	assert.Equal(t, maxScore, ss.Answers[0].Score)
	assert.Equal(t, maxScore, ss.TotalScore)
}

func TestService_SubmitNotLoggedIn(t *testing.T) {
	s, _, _, _ := makeService(t, 2, time.Hour)

	_, err := s.SubmitCode(context.Background(), quiz.SubmitCodeRequest{
		Username: "ghost", QuestionID: 0, Code: "a", Score: 10,
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotLoggedIn, errors.Convert(err).Code)

	_, err = s.Finish(context.Background(), quiz.FinishRequest{Username: "ghost"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotLoggedIn, errors.Convert(err).Code)
}

func TestService_FinishIsIdempotent(t *testing.T) {
	s, _, eb, rec := makeService(t, 1, time.Hour)

	_, err := s.Login(context.Background(), quiz.LoginRequest{Username: "u1"})
	require.NoError(t, err)

	_, err = s.SubmitCode(context.Background(), quiz.SubmitCodeRequest{
		Username: "u1", QuestionID: 0, Code: "a", Score: 10,
	})
	require.NoError(t, err)

	again, err := s.Finish(context.Background(), quiz.FinishRequest{Username: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 10, again.Score)

	eb.Stop()
	require.Len(t, rec.all(), 1, "repeated finish must not publish another entry")
}

func TestService_AutoSubmitFires(t *testing.T) {
	s, sessions, _, _ := makeService(t, 2, 30*time.Millisecond)

	_, err := s.Login(context.Background(), quiz.LoginRequest{Username: "u1"})
	require.NoError(t, err)

	s.UpdateCurrentCode(context.Background(), quiz.UpdateCurrentCodeRequest{
		Username: "u1", Code: "in progress", Score: 15,
	})

	require.Eventually(t, func() bool {
		ss, _ := sessions.Get("u1")
		return ss.CurrentQuestion == 1
	}, time.Second, 5*time.Millisecond, "timer should advance the session")

	ss, _ := sessions.Get("u1")
	assert.Equal(t, domain.Answer{Code: "in progress", Score: 0}, ss.Answers[0])
	assert.Equal(t, 0, ss.TotalScore)
}

func TestService_AutoSubmitFinishesLastQuestion(t *testing.T) {
	s, sessions, eb, rec := makeService(t, 1, 30*time.Millisecond)

	_, err := s.Login(context.Background(), quiz.LoginRequest{Username: "u1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ss, _ := sessions.Get("u1")
		return ss.Finished
	}, time.Second, 5*time.Millisecond, "auto-submit on the last question should finish the run")

	eb.Stop()
	entries := rec.all()
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].Score)
}

func TestService_StaleTimerIsNoop(t *testing.T) {
	s, sessions, eb, rec := makeService(t, 1, 50*time.Millisecond)

	_, err := s.Login(context.Background(), quiz.LoginRequest{Username: "u1"})
	require.NoError(t, err)

	// Advance manually before the question-0 timer fires; this completes the
	// single-question run.
	_, err = s.SubmitCode(context.Background(), quiz.SubmitCodeRequest{
		Username: "u1", QuestionID: 0, Code: "a", Score: 25,
	})
	require.NoError(t, err)

	// Wait well past the original deadline: the question-0 timer must not
	// apply anything, even if it fires.
	time.Sleep(120 * time.Millisecond)

	ss, _ := sessions.Get("u1")
	assert.Equal(t, 25, ss.TotalScore, "stale timer must not change the score")

	eb.Stop()
	require.Len(t, rec.all(), 1, "stale timer must not produce a duplicate leaderboard entry")
}
