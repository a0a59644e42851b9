package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ChatTurns    *prometheus.CounterVec
	StreamErrors prometheus.Counter
	TitleJobs    prometheus.Counter
	TitleFailed  prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			ChatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mrkrbt",
				Name:      "chat_turns_total",
				Help:      "Completed chat turns by provider",
			}, []string{"provider"}),
			StreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "mrkrbt",
				Name:      "stream_errors_total",
				Help:      "Chat turns that failed mid-stream",
			}),
			TitleJobs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "mrkrbt",
				Name:      "title_jobs_total",
				Help:      "Title generation jobs enqueued",
			}),
			TitleFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "mrkrbt",
				Name:      "title_jobs_failed_total",
				Help:      "Title generation jobs that failed",
			}),
		}
		prometheus.MustRegister(global.ChatTurns, global.StreamErrors, global.TitleJobs, global.TitleFailed)
	})
	return global
}
