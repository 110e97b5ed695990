package interview

import "github.com/prometheus/client_golang/prometheus"

var (
	metricStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "onboardly_interviews_started_total",
		Help: "Interview sessions started, by mode.",
	}, []string{"mode"})

	metricFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "onboardly_interviews_failed_total",
		Help: "Interview sessions that failed to connect, by failure kind.",
	}, []string{"kind"})

	metricEnded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "onboardly_interviews_ended_total",
		Help: "Interview sessions torn down.",
	})

	metricAdvances = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "onboardly_interview_question_advances_total",
		Help: "Question index advances across all sessions.",
	})
)

func init() {
	prometheus.MustRegister(metricStarted, metricFailed, metricEnded, metricAdvances)
}
