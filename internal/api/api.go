package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/minhng/codequiz/internal/domain"
	"github.com/minhng/codequiz/internal/errors"
	"github.com/minhng/codequiz/internal/event"
	"github.com/minhng/codequiz/internal/leaderboard"
	"github.com/minhng/codequiz/internal/quiz"
)

type Config struct {
	Engine       *gin.Engine
	EventBus     *event.Bus
	Quiz         *quiz.Service
	Leaderboard  *leaderboard.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	quiz *quiz.Service
	ls   *leaderboard.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		quiz:   c.Quiz,
		ls:     c.Leaderboard,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	e := c.Engine
	e.GET("/", a.Index)
	e.POST("/login", a.Login)
	e.POST("/submit-code", a.SubmitCode)
	e.POST("/finish-quiz", a.FinishQuiz)
	e.GET("/leaderboard-data", a.LeaderboardData)
	e.POST("/update-current-code", a.UpdateCurrentCode)

	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return a
}

func (a *API) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", nil)
}

func (a *API) Login(c *gin.Context) {
	resp, err := a.quiz.Login(c.Request.Context(), quiz.LoginRequest{
		Username: c.PostForm("username"),
	})
	if err != nil {
		a.renderError(c, err)
		return
	}

	if resp.Result != nil {
		c.HTML(http.StatusOK, "results.html", resp.Result)
		return
	}

	c.HTML(http.StatusOK, "question.html", resp.Next)
}

func (a *API) SubmitCode(c *gin.Context) {
	questionID, err := strconv.Atoi(c.PostForm("question_id"))
	if err != nil {
		a.renderError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid question_id: %q", c.PostForm("question_id"))))
		return
	}

	resp, err := a.quiz.SubmitCode(c.Request.Context(), quiz.SubmitCodeRequest{
		Username:   c.PostForm("username"),
		QuestionID: questionID,
		Code:       c.PostForm("code"),
		Score:      formInt(c, "score"),
	})
	if err != nil {
		a.renderError(c, err)
		return
	}

	if resp.Result != nil {
		c.HTML(http.StatusOK, "results.html", resp.Result)
		return
	}

	c.HTML(http.StatusOK, "question.html", resp.Next)
}

func (a *API) FinishQuiz(c *gin.Context) {
	username := c.PostForm("username")
	if username == "" {
		username = c.Query("username")
	}

	view, err := a.quiz.Finish(c.Request.Context(), quiz.FinishRequest{
		Username: username,
	})
	if err != nil {
		a.renderError(c, err)
		return
	}

	c.HTML(http.StatusOK, "results.html", view)
}

func (a *API) LeaderboardData(c *gin.Context) {
	l, err := a.ls.GetTop(c.Request.Context(), leaderboard.DefaultTopN)
	if err != nil {
		a.renderError(c, err)
		return
	}

	c.HTML(http.StatusOK, "leaderboard.html", l)
}

func (a *API) UpdateCurrentCode(c *gin.Context) {
	a.quiz.UpdateCurrentCode(c.Request.Context(), quiz.UpdateCurrentCodeRequest{
		Username: c.PostForm("username"),
		Code:     c.PostForm("code"),
		Score:    formInt(c, "score"),
	})

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) renderError(c *gin.Context, err error) {
	e := errors.Convert(err)

	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.HTML(e.HTTPStatusCode(), "error.html", e)
}

// formInt parses an int form field, treating absent or garbage values as 0.
// Scores are clamped downstream, so rejecting here would only break clients
// that omit the provisional score.
func formInt(c *gin.Context, field string) int {
	n, err := strconv.Atoi(c.PostForm(field))
	if err != nil {
		return 0
	}
	return n
}
