package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Logins = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codequiz",
		Name:      "logins_total",
		Help:      "Number of quiz sessions created.",
	})

	// Submissions counts answer submissions, labelled by mode: "manual" for
	// user submissions, "auto" for timer-driven ones.
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codequiz",
		Name:      "submissions_total",
		Help:      "Number of answers recorded.",
	}, []string{"mode"})

	QuizzesFinished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codequiz",
		Name:      "quizzes_finished_total",
		Help:      "Number of completed quiz runs.",
	})
)
