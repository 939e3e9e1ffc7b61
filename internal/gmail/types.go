package gmail

type MessageID string
type LabelID string

// ListPage is one page of a message listing.
type ListPage struct {
	IDs           []MessageID
	NextPageToken string
}

// MessageMeta is the minimal view of a message that proves it exists.
type MessageMeta struct {
	ID       MessageID
	ThreadID string
}

// Message is a fully fetched message reduced to what the summary needs.
type Message struct {
	ID      MessageID
	Headers map[string]string
	Body    string // first text/plain part, decoded
}

type Query struct {
	Raw      string    // Gmail search string, already formed (e.g. `from:alerts@example.com older_than:30d`)
	LabelIDs []LabelID // optional labelIds restriction
}
