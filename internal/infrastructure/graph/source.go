package graph

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"

	"CommentInbox/internal/domain"
	"CommentInbox/internal/ports"
)

const postsFields = "comments{message,from},message"

// Source implements ports.CommentSource over the page posts edge.
type Source struct {
	client *Client
}

var _ ports.CommentSource = (*Source)(nil)

// NewSource builds the comment source adapter.
func NewSource(client *Client) *Source {
	return &Source{client: client}
}

// FetchComments returns every comment of every post of pageID, posts first, then comments,
// in the order the API lists them.
func (s *Source) FetchComments(ctx context.Context, pageID, accessToken string) ([]domain.RawComment, error) {
	query := url.Values{}
	query.Set("fields", postsFields)
	query.Set("access_token", accessToken)

	body, err := s.client.get(ctx, url.PathEscape(pageID)+"/posts", query)
	if err != nil {
		return nil, fmt.Errorf("fetch posts of page %s: %w", pageID, err)
	}

	comments, err := parsePostComments(body)
	if err != nil {
		return nil, fmt.Errorf("parse posts of page %s: %w", pageID, err)
	}

	s.client.debug("fetched comments", "page_id", pageID, "count", len(comments))
	return comments, nil
}

func parsePostComments(body []byte) ([]domain.RawComment, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not JSON", domain.ErrMalformedResponse)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: top level is not an object", domain.ErrMalformedResponse)
	}

	comments := make([]domain.RawComment, 0)
	root.Get("data").ForEach(func(_, post gjson.Result) bool {
		post.Get("comments.data").ForEach(func(_, item gjson.Result) bool {
			comments = append(comments, parseComment(item))
			return true
		})
		return true
	})
	return comments, nil
}

func parseComment(item gjson.Result) domain.RawComment {
	author := domain.UnknownAuthor
	if name := item.Get("from.name"); name.Exists() && name.Type == gjson.String {
		author = name.String()
	}
	return domain.RawComment{
		ID:         item.Get("id").String(),
		Text:       item.Get("message").String(),
		AuthorName: author,
	}
}
