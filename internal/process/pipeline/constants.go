package pipeline

// Step names. They key the checkpoint log, so renaming one invalidates
// checkpoints of runs in flight.
const (
	StepMarkProcessing   = "markProcessing"
	StepLoadEvidence     = "loadEvidence"
	StepSimilaritySearch = "similaritySearch"
	StepGenerateCaseFile = "generateCaseFile"
	StepAssignCluster    = "assignCluster"
	StepPersistResults   = "persistResults"
)

// DefaultSimilarityLimit is the number of similar items fetched per run.
const DefaultSimilarityLimit = 5

// Log field constants
const (
	LogFieldFeedbackID = "feedback_id"
	LogFieldRunID      = "run_id"
	LogFieldClusterID  = "cluster_id"
	LogFieldCategory   = "category"
	LogFieldScore      = "priority_score"
	LogFieldMatches    = "matches"
	LogFieldErrorCode  = "error_code"
)
