package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricPipelineRun      = "PipelineRun"
	MetricPipelineDuration = "PipelineDuration"
	MetricAlertsChanged    = "AlertsChanged"

	// Dimension Keys
	DimTask    = "Task"
	DimOutcome = "Outcome"

	// Metric Namespace
	MetricNamespace = "AgroAlerts"
)
