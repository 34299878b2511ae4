package embedding

import "context"

// BatchState mirrors the provider's asynchronous batch lifecycle. The
// subsystem observes transitions by polling; it never drives them.
type BatchState string

const (
	BatchQueued     BatchState = "queued"
	BatchValidating BatchState = "validating"
	BatchInProgress BatchState = "in_progress"
	BatchFinalizing BatchState = "finalizing"
	BatchCompleted  BatchState = "completed"
	BatchFailed     BatchState = "failed"
	BatchExpired    BatchState = "expired"
	BatchCancelled  BatchState = "cancelled"
)

// Terminal reports whether polling can stop for this state.
func (s BatchState) Terminal() bool {
	switch s {
	case BatchCompleted, BatchFailed, BatchExpired, BatchCancelled:
		return true
	}
	return false
}

// Succeeded reports whether results are available for download.
func (s BatchState) Succeeded() bool { return s == BatchCompleted }

// BatchRequest is one chunk queued for offline embedding. ChunkID doubles
// as the provider-side custom id so results can be matched back.
type BatchRequest struct {
	ChunkID int
	Text    string
}

// BatchResult carries one embedded chunk back. A nil Vector marks an item
// the provider rejected; siblings in the same batch are unaffected.
type BatchResult struct {
	ChunkID int
	Vector  []float32
}

// BatchStatus is a point-in-time snapshot of one provider batch.
type BatchStatus struct {
	ProviderID   string
	State        BatchState
	Total        int64
	Completed    int64
	Failed       int64
	OutputFileID string
	ErrorFileID  string
}

// BatchProvider runs embedding jobs through a provider's offline batch API
// at reduced cost, trading latency for throughput.
type BatchProvider interface {
	CreateBatch(ctx context.Context, requests []BatchRequest) (string, error)
	GetBatch(ctx context.Context, providerID string) (*BatchStatus, error)
	// FetchResults downloads and parses the output of a completed batch.
	// Items missing from the output file are returned with a nil vector.
	FetchResults(ctx context.Context, status *BatchStatus, requests []BatchRequest) ([]BatchResult, error)
	CancelBatch(ctx context.Context, providerID string) error
}

// MaxRequestsPerBatch caps one provider batch; larger jobs are partitioned
// into parallel batches.
const MaxRequestsPerBatch = 50000

// PartitionRequests splits a job into provider-sized batches preserving
// order.
func PartitionRequests(requests []BatchRequest) [][]BatchRequest {
	if len(requests) == 0 {
		return nil
	}
	var out [][]BatchRequest
	for start := 0; start < len(requests); start += MaxRequestsPerBatch {
		end := start + MaxRequestsPerBatch
		if end > len(requests) {
			end = len(requests)
		}
		out = append(out, requests[start:end])
	}
	return out
}

// Embedding price per million tokens. The batch API runs at half the
// synchronous rate.
const (
	syncCostPerMillionTokens  = 0.13
	batchCostPerMillionTokens = 0.065
)

// EstimateCost returns the projected USD cost of embedding totalTokens.
func EstimateCost(totalTokens int, batch bool) float64 {
	rate := syncCostPerMillionTokens
	if batch {
		rate = batchCostPerMillionTokens
	}
	return float64(totalTokens) / 1_000_000 * rate
}
