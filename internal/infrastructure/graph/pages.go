package graph

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"

	"CommentInbox/internal/domain"
	"CommentInbox/internal/ports"
)

// PageDirectory lists the pages managed by a user token.
type PageDirectory struct {
	client *Client
}

var _ ports.PageDirectory = (*PageDirectory)(nil)

// NewPageDirectory builds the page list adapter.
func NewPageDirectory(client *Client) *PageDirectory {
	return &PageDirectory{client: client}
}

// ListPages returns the user's pages with their page access tokens.
func (p *PageDirectory) ListPages(ctx context.Context, userAccessToken string) ([]domain.ManagedPage, error) {
	query := url.Values{}
	query.Set("fields", "accounts{name,access_token}")
	query.Set("access_token", userAccessToken)

	body, err := p.client.get(ctx, "me", query)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("list pages: %w: body is not JSON", domain.ErrMalformedResponse)
	}

	pages := make([]domain.ManagedPage, 0)
	gjson.GetBytes(body, "accounts.data").ForEach(func(_, page gjson.Result) bool {
		pages = append(pages, domain.ManagedPage{
			ID:          page.Get("id").String(),
			Name:        page.Get("name").String(),
			AccessToken: page.Get("access_token").String(),
		})
		return true
	})
	return pages, nil
}
