// Package scheduler runs the service's batch jobs on a wall-clock schedule.
//
// The in-process triggers (Trigger) fire a Runner at a daily UTC time or at a
// fixed interval. The Runner is shared with the Lambda job runner: it guards
// each task with an in-process single-flight and a database lock, records job
// history, and reports run metrics.
package scheduler

import (
	"time"

	"agroalerts/internal/pipeline"
)

// TaskType identifies a schedulable job.
type TaskType string

const (
	TaskAlerts            TaskType = pipeline.TaskAlerts
	TaskWeatherArchive    TaskType = pipeline.TaskWeatherArchive
	TaskVegetation        TaskType = pipeline.TaskVegetation
	TaskCurrentConditions TaskType = pipeline.TaskCurrentConditions
)

// Tasks lists every known task.
var Tasks = []TaskType{TaskAlerts, TaskWeatherArchive, TaskVegetation, TaskCurrentConditions}

// hourly reports whether task runs more than once a day, which changes the
// granularity of its lock.
func (t TaskType) hourly() bool {
	return t == TaskCurrentConditions
}

// Payload is the invocation body of the job runner Lambda:
//
//	{
//	  "task": "alerts",
//	  "reference_time": "2026-03-10T03:00:00Z"  // optional
//	}
type Payload struct {
	Task TaskType `json:"task"`
	// ReferenceTime overrides "now" for backfills. If nil, the current time
	// is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
