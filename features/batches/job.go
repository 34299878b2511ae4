package batches

import (
	"time"

	"hudhud/backend/internal/embedding"
)

// Job is one provider batch tracked locally. ChunkIDs records which chunks
// were submitted so completed results can be matched back and applied.
type Job struct {
	ID         int                  `json:"id"`
	ProviderID string               `json:"provider_id"`
	Status     embedding.BatchState `json:"status"`
	InputCount int                  `json:"input_count"`
	Succeeded  int                  `json:"succeeded"`
	Failed     int                  `json:"failed"`
	ChunkIDs   []int                `json:"chunk_ids,omitempty"`
	OutputFile string               `json:"output_file,omitempty"`
	ErrorFile  string               `json:"error_file,omitempty"`
	AppliedAt  *time.Time           `json:"applied_at,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// Applied reports whether the job's results were already written back.
func (j *Job) Applied() bool {
	return j.AppliedAt != nil
}
