package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline collects task and stage measurements. It satisfies core.Metrics.
type Pipeline struct {
	TaskOutcomes       *prometheus.CounterVec
	ConversionAttempts *prometheus.CounterVec
	StageSeconds       *prometheus.HistogramVec
	ActiveTasks        prometheus.Gauge
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		TaskOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "anidl",
				Name:      "task_outcomes_total",
				Help:      "Tasks that reached a terminal outcome.",
			},
			[]string{"outcome"},
		),
		ConversionAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "anidl",
				Name:      "conversion_attempts_total",
				Help:      "Transcode attempts by result.",
			},
			[]string{"result"},
		),
		StageSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "anidl",
				Name:      "stage_duration_seconds",
				Help:      "Time spent in the download and conversion stages.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
			},
			[]string{"stage"},
		),
		ActiveTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "anidl",
				Name:      "active_tasks",
				Help:      "Tasks currently downloading or converting.",
			},
		),
	}
}

// Register adds every collector to reg.
func (p *Pipeline) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{p.TaskOutcomes, p.ConversionAttempts, p.StageSeconds, p.ActiveTasks} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) TaskStarted() {
	p.ActiveTasks.Inc()
}

func (p *Pipeline) TaskDone(outcome string) {
	p.TaskOutcomes.WithLabelValues(outcome).Inc()
	p.ActiveTasks.Dec()
}

func (p *Pipeline) ConversionAttempt(result string) {
	p.ConversionAttempts.WithLabelValues(result).Inc()
}

func (p *Pipeline) StageDuration(stage string, d time.Duration) {
	p.StageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}
