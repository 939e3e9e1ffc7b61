package gmail

import "context"

// Client is the narrow Gmail surface required by gmailpipe.
type Client interface {
	List(ctx context.Context, q Query, pageToken string, pageSize int) (ListPage, error)
	GetMetadata(ctx context.Context, id MessageID) (MessageMeta, error)
	GetMessage(ctx context.Context, id MessageID) (Message, error)
	Trash(ctx context.Context, id MessageID) error
	ListLabels(ctx context.Context) (map[string]LabelID, map[LabelID]string, error)
}
