package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/minhng/codequiz/internal/api"
	"github.com/minhng/codequiz/internal/event"
	"github.com/minhng/codequiz/internal/leaderboard"
	"github.com/minhng/codequiz/internal/question"
	"github.com/minhng/codequiz/internal/quiz"
	"github.com/minhng/codequiz/internal/session"
	"github.com/minhng/codequiz/internal/telemetry"
	"github.com/minhng/codequiz/internal/web"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Quiz struct {
		QuestionsFile       string
		MaxScorePerQuestion int
		AutoSubmitDelay     time.Duration
	}

	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}
}

// DefaultConfig carries the quiz constants; the config file can override
// them, but a bare deployment only needs ports and redis addresses.
func DefaultConfig() Config {
	var c Config
	c.Quiz.QuestionsFile = "configs/questions.json"
	c.Quiz.MaxScorePerQuestion = 30
	c.Quiz.AutoSubmitDelay = 30 * time.Second
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}
	}

	questions *question.Store

	service struct {
		sessions    *session.Registry
		quiz        *quiz.Service
		leaderboard *leaderboard.Service
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.loadQuestions(); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("redis: leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("redis: pubsub: %w", err)
	}

	return nil
}

func (s *Server) loadQuestions() (err error) {
	s.questions, err = question.Load(s.c.Quiz.QuestionsFile)
	return err
}

func (s *Server) initService() {
	s.service.sessions = session.NewRegistry(session.Config{
		MaxScorePerQuestion: s.c.Quiz.MaxScorePerQuestion,
	})

	s.service.quiz = quiz.NewService(quiz.Config{
		Questions:           s.questions,
		Sessions:            s.service.sessions,
		EventBus:            s.eb,
		MaxScorePerQuestion: s.c.Quiz.MaxScorePerQuestion,
		AutoSubmitDelay:     s.c.Quiz.AutoSubmitDelay,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), api.RequestLogger())
	e.SetHTMLTemplate(web.Templates())

	api.New(api.Config{
		Engine:       e,
		EventBus:     s.eb,
		Quiz:         s.service.quiz,
		Leaderboard:  s.service.leaderboard,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	slog.InfoContext(ctx, "server: shutdown completed")
}
