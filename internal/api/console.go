package api

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"CommentInbox/internal/domain"
	"CommentInbox/internal/ports"
	"CommentInbox/internal/render"
	"CommentInbox/internal/usecase"
)

//go:embed templates/*.html
var templates embed.FS

// Inbox is the part of the pipeline the console drives.
type Inbox interface {
	View() usecase.View
	TriggerFetch(pageID, accessToken string) <-chan struct{}
	GoToNext() bool
	GoToPrevious() bool
	GoToPage(n int) bool
	Lookup(commentID string) (domain.ClassifiedComment, string, bool)
	SendReply(commentID, message, accessToken string) <-chan error
	Subscribe() (<-chan usecase.View, func())
}

var _ Inbox = (*usecase.Pipeline)(nil)

// Console serves the operator web UI.
type Console struct {
	inbox       Inbox
	credentials ports.CredentialStore
	logger      *slog.Logger
	page        *template.Template
}

type inboxData struct {
	View         usecase.View
	PageSelected bool
}

// NewConsole parses the embedded templates.
func NewConsole(inbox Inbox, credentials ports.CredentialStore, logger *slog.Logger) (*Console, error) {
	if logger == nil {
		logger = slog.Default()
	}

	page, err := template.New("inbox.html").
		Funcs(template.FuncMap{"priorityClass": priorityClass}).
		ParseFS(templates, "templates/inbox.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	return &Console{
		inbox:       inbox,
		credentials: credentials,
		logger:      logger.With("component", "console"),
		page:        page,
	}, nil
}

func priorityClass(p domain.Priority) string {
	return "priority-" + strings.ToLower(string(p))
}

// Handler builds the chi router.
func (c *Console) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", c.index)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/fetch", c.fetch)
	r.Post("/logout", c.logout)

	r.Route("/pages", func(pages chi.Router) {
		pages.Post("/next", c.navigate(Inbox.GoToNext))
		pages.Post("/prev", c.navigate(Inbox.GoToPrevious))
		pages.Post("/{number}", c.jump)
	})

	r.Route("/comments/{commentID}", func(comment chi.Router) {
		comment.Post("/reply", c.reply)
		comment.Get("/debug", c.debug)
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/view", c.viewJSON)
		api.Get("/events", c.events)
	})

	return r
}

func (c *Console) index(w http.ResponseWriter, r *http.Request) {
	token, err := c.credentials.PageToken(r.Context())
	if err != nil {
		c.logger.Warn("load page token", "error", err)
	}

	data := inboxData{View: c.inbox.View(), PageSelected: token != ""}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.page.Execute(w, data); err != nil {
		c.logger.Error("render inbox", "error", err)
	}
}

func (c *Console) fetch(w http.ResponseWriter, r *http.Request) {
	pageID, token, ok := c.pageCredentials(w, r)
	if !ok {
		return
	}
	c.inbox.TriggerFetch(pageID, token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (c *Console) logout(w http.ResponseWriter, r *http.Request) {
	if err := c.credentials.ClearToken(r.Context()); err != nil {
		c.logger.Error("clear credentials", "error", err)
		http.Error(w, "could not clear credentials", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (c *Console) navigate(move func(Inbox) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		move(c.inbox)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (c *Console) jump(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		http.Error(w, "page number must be an integer", http.StatusBadRequest)
		return
	}
	c.inbox.GoToPage(number - 1)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (c *Console) reply(w http.ResponseWriter, r *http.Request) {
	commentID := chi.URLParam(r, "commentID")
	message := strings.TrimSpace(r.PostFormValue("reply"))
	if message == "" {
		http.Error(w, "reply must not be empty", http.StatusBadRequest)
		return
	}

	token, err := c.credentials.PageToken(r.Context())
	if err != nil || token == "" {
		http.Error(w, "no page access token stored", http.StatusConflict)
		return
	}

	c.inbox.SendReply(commentID, message, token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (c *Console) debug(w http.ResponseWriter, r *http.Request) {
	record, diagnostics, ok := c.inbox.Lookup(chi.URLParam(r, "commentID"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(render.DebugInfo(record, diagnostics)))
}

func (c *Console) viewJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.inbox.View()); err != nil {
		c.logger.Warn("encode view", "error", err)
	}
}

func (c *Console) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	views, unsubscribe := c.inbox.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case view, open := <-views:
			if !open {
				return
			}
			payload, err := json.Marshal(view)
			if err != nil {
				c.logger.Warn("encode view event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: view\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (c *Console) pageCredentials(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	pageID, err := c.credentials.PageID(r.Context())
	if err != nil {
		c.logger.Error("load page id", "error", err)
		http.Error(w, "could not load credentials", http.StatusInternalServerError)
		return "", "", false
	}
	token, err := c.credentials.PageToken(r.Context())
	if err != nil {
		c.logger.Error("load page token", "error", err)
		http.Error(w, "could not load credentials", http.StatusInternalServerError)
		return "", "", false
	}
	if pageID == "" || token == "" {
		http.Error(w, "no page selected", http.StatusConflict)
		return "", "", false
	}
	return pageID, token, true
}
