// Package metrics регистрирует счётчики Prometheus для задач сверки.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SweepProcessed — количество записей, успешно обработанных задачами сверки.
	SweepProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_sweep_processed_total",
		Help: "Number of records successfully processed by reconciler sweeps.",
	}, []string{"sweep"})

	// SweepErrors — количество ошибок при обработке отдельных записей.
	SweepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_sweep_errors_total",
		Help: "Number of per-record errors encountered by reconciler sweeps.",
	}, []string{"sweep"})
)
