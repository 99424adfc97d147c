package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"CommentInbox/internal/ports"
)

// Dispatcher posts operator replies as new comments under the target comment.
// Every call is one attempt; repeated calls post repeated replies.
type Dispatcher struct {
	client *Client
}

var _ ports.ReplySender = (*Dispatcher)(nil)

// NewDispatcher builds the reply dispatcher.
func NewDispatcher(client *Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// SendReply posts message under commentID.
func (d *Dispatcher) SendReply(ctx context.Context, commentID, message, pageAccessToken string) error {
	if commentID == "" {
		return fmt.Errorf("reply: comment id is empty")
	}

	form := url.Values{}
	form.Set("message", message)
	form.Set("access_token", pageAccessToken)

	endpoint := d.client.endpoint(url.PathEscape(commentID)+"/comments", nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if _, err := d.client.do(req); err != nil {
		return fmt.Errorf("reply to %s: %w", commentID, err)
	}

	d.client.debug("reply posted", "comment_id", commentID)
	return nil
}
