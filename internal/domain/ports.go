package domain

import "context"

// BlobStore is a path-addressed JSON blob store. Get returns false with a nil
// error when the path has no value (including a stored JSON null, which marks
// a deleted blob). Implementations do not serialize writes to the same path;
// that is the calling engine's job.
type BlobStore interface {
	Put(ctx context.Context, path string, value any) error
	Get(ctx context.Context, path string, out any) (bool, error)
}

// ReplyRequest is the context handed to the AI collaborator for one turn.
type ReplyRequest struct {
	Message        string
	JournalContext string
	SelectedTopics []string
	ChatID         ChatID
}

// ReplyClient defines how the core asks the AI collaborator for a reply.
type ReplyClient interface {
	GenerateReply(ctx context.Context, req ReplyRequest) (string, error)
}
