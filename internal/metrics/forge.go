package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProvisionRuns counts finished provisioning runs by outcome
	// (succeeded, db_failed, rolled_back).
	ProvisionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miniforge_provision_runs_total",
			Help: "Total number of finished provisioning runs",
		},
		[]string{"outcome"},
	)

	// ProvisionRejected counts creation requests turned away because a run
	// was already in flight.
	ProvisionRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "miniforge_provision_rejected_total",
			Help: "Total number of provisioning requests rejected while another run was active",
		},
	)

	// RollbackActions counts executed compensation actions by result.
	RollbackActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miniforge_rollback_actions_total",
			Help: "Total number of executed rollback actions",
		},
		[]string{"result"},
	)

	// ProcessTasks tracks live toolchain processes by kind (build, publish).
	ProcessTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "miniforge_process_tasks",
			Help: "Number of running build and publish tasks",
		},
		[]string{"kind"},
	)

	// PublishRejected counts publish requests rejected because the platform
	// already had a publish in flight.
	PublishRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miniforge_publish_rejected_total",
			Help: "Total number of publish requests rejected because the platform was busy",
		},
		[]string{"platform"},
	)

	// PipelineSteps counts publish pipeline steps by step name and result.
	PipelineSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miniforge_pipeline_steps_total",
			Help: "Total number of executed publish pipeline steps",
		},
		[]string{"step", "result"},
	)
)
