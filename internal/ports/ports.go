package ports

import (
	"context"
	"time"

	"CommentInbox/internal/domain"
)

// CommentSource pulls the raw comments of one page from the social graph.
type CommentSource interface {
	FetchComments(ctx context.Context, pageID, accessToken string) ([]domain.RawComment, error)
}

// DiagnosticSink receives per-comment debugging entries (prompt sent, failure detail).
type DiagnosticSink interface {
	RecordDiagnostics(entries map[string]string)
}

// Classifier assigns priority, reason and a drafted reply to one batch of comments.
// It never fails as a whole: problems surface as Error records.
type Classifier interface {
	Classify(ctx context.Context, batch []domain.RawComment, sink DiagnosticSink) []domain.ClassifiedComment
}

// TextGenerator sends a prompt to a generative-text endpoint and returns its text reply.
type TextGenerator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// ReplySender posts a reply under a comment.
type ReplySender interface {
	SendReply(ctx context.Context, commentID, message, pageAccessToken string) error
}

// PageDirectory lists the pages a user token can manage.
type PageDirectory interface {
	ListPages(ctx context.Context, userAccessToken string) ([]domain.ManagedPage, error)
}

// CredentialStore keeps the selected page's id and access token.
type CredentialStore interface {
	PageID(ctx context.Context) (string, error)
	PageToken(ctx context.Context) (string, error)
	SavePageData(ctx context.Context, pageID, token string) error
	ClearToken(ctx context.Context) error
}

// Scheduler controls when recurring jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
