package upscale

// BatchStatus tracks one batch through the upscale stage.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchSucceeded BatchStatus = "succeeded"
	BatchFailed    BatchStatus = "failed"
)

// Batch is a contiguous half-open frame index range [Start, End) processed
// by one upscaler invocation.
type Batch struct {
	Index   int
	Start   int
	End     int
	Status  BatchStatus
	Retries int
}

// Size returns the number of frames in the batch.
func (b Batch) Size() int {
	return b.End - b.Start
}

// Partition splits [0, frameCount) into contiguous batches of batchSize
// frames; the last batch may be shorter. The ranges cover the full frame
// range with no gaps or overlaps.
func Partition(frameCount, batchSize int) []Batch {
	if frameCount <= 0 || batchSize <= 0 {
		return nil
	}

	batches := make([]Batch, 0, (frameCount+batchSize-1)/batchSize)
	for start := 0; start < frameCount; start += batchSize {
		end := start + batchSize
		if end > frameCount {
			end = frameCount
		}
		batches = append(batches, Batch{
			Index:  len(batches),
			Start:  start,
			End:    end,
			Status: BatchPending,
		})
	}
	return batches
}
