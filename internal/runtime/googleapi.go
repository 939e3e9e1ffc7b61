// internal/runtime/googleapi.go adapts *gmail.Service to our small interface
package runtime

import (
	"context"
	"encoding/base64"
	"strings"

	"google.golang.org/api/gmail/v1"

	gc "github.com/joshsymonds/gmailpipe/internal/gmail"
)

const user = "me"

type googleClient struct{ svc *gmail.Service }

var _ gc.Client = (*googleClient)(nil)

func NewGoogleAPIClient(svc *gmail.Service) *googleClient { return &googleClient{svc} }

func (g *googleClient) List(ctx context.Context, q gc.Query, pageToken string, pageSize int) (gc.ListPage, error) {
	call := g.svc.Users.Messages.List(user).MaxResults(int64(pageSize))
	if q.Raw != "" {
		call = call.Q(q.Raw)
	}
	if len(q.LabelIDs) > 0 {
		call = call.LabelIds(toStringsL(q.LabelIDs)...)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return gc.ListPage{}, classify(err)
	}
	ids := make([]gc.MessageID, 0, len(res.Messages))
	for _, m := range res.Messages {
		ids = append(ids, gc.MessageID(m.Id))
	}
	return gc.ListPage{IDs: ids, NextPageToken: res.NextPageToken}, nil
}

// GetMetadata fetches the minimal format, enough to confirm the message exists.
func (g *googleClient) GetMetadata(ctx context.Context, id gc.MessageID) (gc.MessageMeta, error) {
	msg, err := g.svc.Users.Messages.Get(user, string(id)).Format("minimal").Context(ctx).Do()
	if err != nil {
		return gc.MessageMeta{}, classify(err)
	}
	return gc.MessageMeta{ID: gc.MessageID(msg.Id), ThreadID: msg.ThreadId}, nil
}

func (g *googleClient) GetMessage(ctx context.Context, id gc.MessageID) (gc.Message, error) {
	msg, err := g.svc.Users.Messages.Get(user, string(id)).Format("full").Context(ctx).Do()
	if err != nil {
		return gc.Message{}, classify(err)
	}
	return gc.Message{
		ID:      gc.MessageID(msg.Id),
		Headers: headerMap(msg.Payload),
		Body:    plainText(msg.Payload),
	}, nil
}

func (g *googleClient) Trash(ctx context.Context, id gc.MessageID) error {
	if _, err := g.svc.Users.Messages.Trash(user, string(id)).Context(ctx).Do(); err != nil {
		return classify(err)
	}
	return nil
}

func (g *googleClient) ListLabels(ctx context.Context) (map[string]gc.LabelID, map[gc.LabelID]string, error) {
	lr, err := g.svc.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return nil, nil, classify(err)
	}
	byName := map[string]gc.LabelID{}
	byID := map[gc.LabelID]string{}
	for _, l := range lr.Labels {
		byName[l.Name] = gc.LabelID(l.Id)
		byID[gc.LabelID(l.Id)] = l.Name
	}
	return byName, byID, nil
}

func headerMap(part *gmail.MessagePart) map[string]string {
	h := map[string]string{}
	if part == nil {
		return h
	}
	for _, hd := range part.Headers {
		h[hd.Name] = hd.Value
	}
	return h
}

// plainText returns the first text/plain body found depth first.
func plainText(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(part.MimeType, "text/plain") && part.Body != nil && part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}
	for _, p := range part.Parts {
		if text := plainText(p); text != "" {
			return text
		}
	}
	return ""
}

// decodeBody decodes Gmail's base64url body data, padded or not.
func decodeBody(data string) string {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(raw)
}

func toStringsL(ids []gc.LabelID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
