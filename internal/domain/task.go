package domain

// Task describes one sticker generation request sent to the external
// generation service. A task is immutable once submitted.
type Task struct {
	Prompt     string
	Model      string
	Size       string
	Quality    string
	Background string
	Format     string
}

// CorrelationRecord links a submitted task to the output record that will
// eventually carry its result. Seq is the 1-based position of the task within
// its submission batch; it is preserved so results can be mapped back
// positionally.
type CorrelationRecord struct {
	CorrelationID string
	Seq           int
	Task          Task
}

// SubmissionStatus tracks a registry row through its client-side lifecycle.
type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionCompleted SubmissionStatus = "completed"
	SubmissionFailed    SubmissionStatus = "failed"
)
