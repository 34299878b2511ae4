package config

const (
	// TopicChunkTask carries one chunking task per epigraph. Bulk runs
	// fan out over this topic so an interrupted run resumes where it
	// stopped instead of starting over.
	TopicChunkTask = "chunk.task"
)
