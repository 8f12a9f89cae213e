package pipeline

// Stage identifies a step of the job state machine.
type Stage string

const (
	StageQueued      Stage = "queued"
	StageDecomposing Stage = "decomposing"
	StageUpscaling   Stage = "upscaling"
	StageRecomposing Stage = "recomposing"
	StageSucceeded   Stage = "succeeded"
	StageFailed      Stage = "failed"
	StageCancelled   Stage = "cancelled"
)

// Terminal reports whether a stage ends the job.
func (s Stage) Terminal() bool {
	switch s {
	case StageSucceeded, StageFailed, StageCancelled:
		return true
	default:
		return false
	}
}

// validTransition enforces the allowed state machine edges: the pipeline
// advances strictly forward, and Failed/Cancelled are reachable from every
// active stage.
func validTransition(from, to Stage) bool {
	if to == StageFailed || to == StageCancelled {
		return !from.Terminal()
	}
	switch from {
	case StageQueued:
		return to == StageDecomposing
	case StageDecomposing:
		return to == StageUpscaling
	case StageUpscaling:
		return to == StageRecomposing
	case StageRecomposing:
		return to == StageSucceeded
	default:
		return false
	}
}
