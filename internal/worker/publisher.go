package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"hudhud/backend/internal/config"
	"hudhud/backend/internal/middleware"
)

// Enqueuer fans a bulk chunking run out over the chunk.task topic, one
// message per epigraph.
type Enqueuer struct {
	publisher TaskPublisher
}

func NewEnqueuer(p TaskPublisher) *Enqueuer {
	return &Enqueuer{publisher: p}
}

// EnqueueRun publishes one task per epigraph id and returns the run id
// plus the ids whose publish failed. Publish failures don't stop the
// fan-out; the caller re-enqueues stragglers.
func (e *Enqueuer) EnqueueRun(ctx context.Context, ids []int, force, embed bool) (string, []int, error) {
	if len(ids) == 0 {
		return "", nil, fmt.Errorf("enqueue run: no epigraph ids")
	}

	runID := uuid.New().String()
	correlationID := middleware.GetCorrelationID(ctx)

	var failed []int
	for _, id := range ids {
		body, err := json.Marshal(ChunkTask{
			EpigraphID:    id,
			Force:         force,
			Embed:         embed,
			RunID:         runID,
			Total:         len(ids),
			CorrelationID: correlationID,
		})
		if err != nil {
			failed = append(failed, id)
			continue
		}
		if err := e.publisher.Publish(config.TopicChunkTask, body); err != nil {
			slog.ErrorContext(ctx, "chunk task publish failed", "epigraph_id", id, "error", err)
			failed = append(failed, id)
		}
	}

	slog.InfoContext(ctx, "bulk chunk run enqueued",
		"run_id", runID, "total", len(ids), "failed_publishes", len(failed), "force", force, "embed", embed)
	return runID, failed, nil
}
