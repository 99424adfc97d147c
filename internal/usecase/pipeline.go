package usecase

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"CommentInbox/internal/classifier"
	"CommentInbox/internal/domain"
	"CommentInbox/internal/ports"
)

// DefaultPageSize is used when Options.PageSize is not set.
const DefaultPageSize = 20

// FetchStatus tracks the session-level fetch state machine.
type FetchStatus string

const (
	FetchIdle     FetchStatus = "idle"
	FetchFetching FetchStatus = "fetching"
	FetchFailed   FetchStatus = "failed"
	FetchFetched  FetchStatus = "fetched"
)

// PageStatus tracks classification of the currently viewed page.
type PageStatus string

const (
	PageUnclassified PageStatus = "unclassified"
	PageClassifying  PageStatus = "classifying"
	PageClassified   PageStatus = "classified"
)

// View is an immutable snapshot published after every state transition.
type View struct {
	Page        domain.Page       `json:"page"`
	Fetch       FetchStatus       `json:"fetch"`
	FetchError  string            `json:"fetchError,omitempty"`
	PageStatus  PageStatus        `json:"pageStatus"`
	Diagnostics map[string]string `json:"diagnostics"`
}

// Options tunes pagination and classification.
type Options struct {
	PageSize  int
	BatchSize int
	// CancelAbandoned cancels a page's classification once the operator navigates away.
	// Cancelled work is discarded.
	CancelAbandoned bool
}

// PipelineDeps wires the driven adapters into the pipeline.
type PipelineDeps struct {
	Source     ports.CommentSource
	Classifier ports.Classifier
	Replies    ports.ReplySender
	Logger     *slog.Logger
	Options    Options
}

// Pipeline owns the canonical comment state of one session: fetch, lazy per-page
// classification, merge by id and pagination. State lives on a single actor goroutine.
type Pipeline struct {
	source     ports.CommentSource
	classifier ports.Classifier
	replies    ports.ReplySender
	opts       Options
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	cmds   chan func(*state)
	done   chan struct{}
	tasks  sync.WaitGroup
	view   atomic.Pointer[View]

	trackMu   sync.Mutex
	closed    bool
	closeOnce sync.Once
}

type runningTask struct {
	generation uint64
	cancel     context.CancelFunc
}

type state struct {
	raw         []domain.RawComment
	rawIDs      map[string]struct{}
	classified  map[string]domain.ClassifiedComment
	diagnostics map[string]string
	pageIndex   int
	fetch       FetchStatus
	fetchErr    string
	generation  uint64
	nextTaskID  uint64
	running     map[int]map[uint64]runningTask
	subscribers map[uint64]chan View
	nextSubID   uint64
}

type classifyJob struct {
	id         uint64
	generation uint64
	page       int
	comments   []domain.RawComment
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewPipeline starts the actor goroutine. Close releases it.
func NewPipeline(deps PipelineDeps) *Pipeline {
	opts := deps.Options
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = classifier.BatchSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		source:     deps.Source,
		classifier: deps.Classifier,
		replies:    deps.Replies,
		opts:       opts,
		logger:     logger.With("component", "pipeline"),
		ctx:        ctx,
		cancel:     cancel,
		cmds:       make(chan func(*state)),
		done:       make(chan struct{}),
	}

	st := &state{
		rawIDs:      map[string]struct{}{},
		classified:  map[string]domain.ClassifiedComment{},
		diagnostics: map[string]string{},
		fetch:       FetchIdle,
		running:     map[int]map[uint64]runningTask{},
		subscribers: map[uint64]chan View{},
	}
	initial := p.snapshot(st)
	p.view.Store(&initial)

	go p.loop(st)
	return p
}

func (p *Pipeline) loop(st *state) {
	defer close(p.done)
	for {
		select {
		case cmd := <-p.cmds:
			cmd(st)
		case <-p.ctx.Done():
			for _, tasks := range st.running {
				for _, task := range tasks {
					task.cancel()
				}
			}
			for id, ch := range st.subscribers {
				delete(st.subscribers, id)
				close(ch)
			}
			return
		}
	}
}

// exec runs fn on the actor and waits for it. It reports false once the pipeline is closed.
func (p *Pipeline) exec(fn func(*state)) bool {
	finished := make(chan struct{})
	cmd := func(st *state) {
		defer close(finished)
		fn(st)
	}

	select {
	case p.cmds <- cmd:
	case <-p.done:
		return false
	}

	select {
	case <-finished:
		return true
	case <-p.done:
		return false
	}
}

func (p *Pipeline) publish(st *state) {
	view := p.snapshot(st)
	p.view.Store(&view)
	for _, ch := range st.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- view
	}
}

func (p *Pipeline) snapshot(st *state) View {
	page := domain.Project(st.raw, st.classified, domain.PageWindow{Index: st.pageIndex, Size: p.opts.PageSize})

	status := PageUnclassified
	switch {
	case st.inFlight(st.pageIndex):
		status = PageClassifying
	case len(page.Items) > 0 && allClassified(page.Items):
		status = PageClassified
	}

	diagnostics := make(map[string]string, len(st.diagnostics))
	for id, entry := range st.diagnostics {
		diagnostics[id] = entry
	}

	return View{
		Page:        page,
		Fetch:       st.fetch,
		FetchError:  st.fetchErr,
		PageStatus:  status,
		Diagnostics: diagnostics,
	}
}

func allClassified(items []domain.ClassifiedComment) bool {
	for _, item := range items {
		if item.Priority == domain.PriorityPending {
			return false
		}
	}
	return true
}

func (st *state) inFlight(page int) bool {
	for _, task := range st.running[page] {
		if task.generation == st.generation {
			return true
		}
	}
	return false
}

func (st *state) replaceRaw(comments []domain.RawComment) {
	st.raw = comments
	st.rawIDs = make(map[string]struct{}, len(comments))
	for _, comment := range comments {
		st.rawIDs[comment.ID] = struct{}{}
	}
	for id := range st.classified {
		if _, ok := st.rawIDs[id]; !ok {
			delete(st.classified, id)
		}
	}
	st.pageIndex = 0
}

func (st *state) clear() {
	st.raw = nil
	st.rawIDs = map[string]struct{}{}
	st.classified = map[string]domain.ClassifiedComment{}
	st.pageIndex = 0
}

func (st *state) merge(records []domain.ClassifiedComment) int {
	merged := 0
	for _, record := range records {
		if _, ok := st.rawIDs[record.ID]; !ok {
			continue
		}
		st.classified[record.ID] = record
		merged++
	}
	return merged
}

func (st *state) cancelPage(page int) {
	for _, task := range st.running[page] {
		task.cancel()
	}
	delete(st.running, page)
}

// View returns the latest published snapshot.
func (p *Pipeline) View() View {
	return *p.view.Load()
}

// CurrentPageNumber is 1-based.
func (p *Pipeline) CurrentPageNumber() int {
	return p.View().Page.Number
}

// TotalPages derives from the raw comment count.
func (p *Pipeline) TotalPages() int {
	return p.View().Page.TotalPages
}

// TotalComments is the raw comment count.
func (p *Pipeline) TotalComments() int {
	return p.View().Page.TotalComments
}

// Subscribe returns a channel that always holds the most recent view. The channel is
// closed by the returned func or when the pipeline closes.
func (p *Pipeline) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)
	var id uint64

	ok := p.exec(func(st *state) {
		st.nextSubID++
		id = st.nextSubID
		st.subscribers[id] = ch
		ch <- *p.view.Load()
	})
	if !ok {
		close(ch)
		return ch, func() {}
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.exec(func(st *state) {
				if sub, found := st.subscribers[id]; found {
					delete(st.subscribers, id)
					close(sub)
				}
			})
		})
	}
}

// Lookup returns the projected record and diagnostics of one comment of the current fetch.
func (p *Pipeline) Lookup(commentID string) (domain.ClassifiedComment, string, bool) {
	var (
		record domain.ClassifiedComment
		diag   string
		found  bool
	)
	p.exec(func(st *state) {
		diag = st.diagnostics[commentID]
		if classified, ok := st.classified[commentID]; ok {
			record, found = classified, true
			return
		}
		for _, comment := range st.raw {
			if comment.ID == commentID {
				record, found = domain.PendingFrom(comment), true
				return
			}
		}
	})
	return record, diag, found
}

// TriggerFetch replaces the raw collection from the source and classifies page 0.
// The returned channel closes once both steps finish. A newer fetch supersedes this one.
func (p *Pipeline) TriggerFetch(pageID, accessToken string) <-chan struct{} {
	done := make(chan struct{})

	var generation uint64
	if !p.track() {
		close(done)
		return done
	}
	ok := p.exec(func(st *state) {
		st.generation++
		generation = st.generation
		st.fetch = FetchFetching
		st.fetchErr = ""
		p.publish(st)
	})
	if !ok {
		p.tasks.Done()
		close(done)
		return done
	}

	go func() {
		defer p.tasks.Done()
		defer close(done)

		logger := p.logger.With("fetch_id", uuid.NewString(), "page_id", pageID)
		comments, err := p.source.FetchComments(p.ctx, pageID, accessToken)
		if err != nil {
			logger.Warn("comment fetch failed", "error", err)
		}

		var job *classifyJob
		p.exec(func(st *state) {
			if st.generation != generation {
				logger.Debug("fetch superseded", "generation", generation, "current", st.generation)
				return
			}

			switch {
			case err != nil:
				st.clear()
				st.fetch = FetchFailed
				st.fetchErr = err.Error()
			case len(comments) == 0:
				st.clear()
				st.fetch = FetchFetched
			default:
				st.replaceRaw(comments)
				st.fetch = FetchFetched
				job = p.planClassify(st)
			}
			logger.Info("comments fetched", "count", len(st.raw), "status", st.fetch)
			p.publish(st)
		})

		if job != nil {
			p.runClassify(job)
		}
	}()

	return done
}

// ClassifyCurrentPage classifies the viewed page unless it is empty, fully classified or
// already being classified. The returned channel closes when the work is done.
func (p *Pipeline) ClassifyCurrentPage() <-chan struct{} {
	done := make(chan struct{})

	var job *classifyJob
	if !p.track() {
		close(done)
		return done
	}
	p.exec(func(st *state) {
		job = p.planClassify(st)
		if job != nil {
			p.publish(st)
		}
	})
	if job == nil {
		p.tasks.Done()
		close(done)
		return done
	}

	go func() {
		defer p.tasks.Done()
		defer close(done)
		p.runClassify(job)
	}()
	return done
}

// GoToNext moves one page forward. It reports whether the page changed.
func (p *Pipeline) GoToNext() bool {
	return p.move(func(current int) int { return current + 1 })
}

// GoToPrevious moves one page back. It reports whether the page changed.
func (p *Pipeline) GoToPrevious() bool {
	return p.move(func(current int) int { return current - 1 })
}

// GoToPage jumps to the zero-based page index n, clamped to the available pages.
func (p *Pipeline) GoToPage(n int) bool {
	return p.move(func(int) int { return n })
}

func (p *Pipeline) move(target func(current int) int) bool {
	var (
		moved bool
		job   *classifyJob
	)

	if !p.track() {
		return false
	}
	p.exec(func(st *state) {
		total := domain.TotalPages(len(st.raw), p.opts.PageSize)
		next := domain.ClampPage(target(st.pageIndex), total)
		if next == st.pageIndex {
			return
		}

		if p.opts.CancelAbandoned {
			st.cancelPage(st.pageIndex)
		}
		st.pageIndex = next
		moved = true
		job = p.planClassify(st)
		p.publish(st)
	})

	if job == nil {
		p.tasks.Done()
		return moved
	}
	go func() {
		defer p.tasks.Done()
		p.runClassify(job)
	}()
	return moved
}

// planClassify registers a classification of the current window. Runs on the actor.
func (p *Pipeline) planClassify(st *state) *classifyJob {
	start, end := domain.PageWindow{Index: st.pageIndex, Size: p.opts.PageSize}.Bounds(len(st.raw))
	window := st.raw[start:end]
	if len(window) == 0 || st.inFlight(st.pageIndex) {
		return nil
	}

	pending := false
	for _, comment := range window {
		if _, ok := st.classified[comment.ID]; !ok {
			pending = true
			break
		}
	}
	if !pending {
		return nil
	}

	ctx, cancel := context.WithCancel(p.ctx)
	st.nextTaskID++
	job := &classifyJob{
		id:         st.nextTaskID,
		generation: st.generation,
		page:       st.pageIndex,
		comments:   append([]domain.RawComment(nil), window...),
		ctx:        ctx,
		cancel:     cancel,
	}
	if st.running[job.page] == nil {
		st.running[job.page] = map[uint64]runningTask{}
	}
	st.running[job.page][job.id] = runningTask{generation: job.generation, cancel: cancel}
	return job
}

// runClassify sends the job's comments batch by batch, merging after each batch.
// Callers must hold a task count.
func (p *Pipeline) runClassify(job *classifyJob) {
	defer job.cancel()

	logger := p.logger.With("run_id", uuid.NewString(), "page", job.page+1)
	logger.Debug("classifying page", "comments", len(job.comments))

	sink := diagnosticSink(func(entries map[string]string) {
		p.exec(func(st *state) {
			for id, entry := range entries {
				st.diagnostics[id] = entry
			}
			p.publish(st)
		})
	})

	for _, batch := range classifier.Chunk(job.comments, p.opts.BatchSize) {
		if job.ctx.Err() != nil {
			break
		}
		records := p.classifier.Classify(job.ctx, batch, sink)
		if job.ctx.Err() != nil {
			logger.Debug("classification cancelled, dropping batch", "batch", len(batch))
			break
		}
		p.exec(func(st *state) {
			merged := st.merge(records)
			logger.Debug("batch merged", "merged", merged, "of", len(records))
			p.publish(st)
		})
	}

	p.exec(func(st *state) {
		if tasks, ok := st.running[job.page]; ok {
			delete(tasks, job.id)
			if len(tasks) == 0 {
				delete(st.running, job.page)
			}
		}
		p.publish(st)
	})
}

// SendReply posts a reply in the background. The channel yields the outcome once.
// Replies are neither deduplicated nor retried.
func (p *Pipeline) SendReply(commentID, message, accessToken string) <-chan error {
	result := make(chan error, 1)

	if !p.track() {
		result <- context.Canceled
		close(result)
		return result
	}
	go func() {
		defer p.tasks.Done()
		defer close(result)

		logger := p.logger.With("comment_id", commentID)
		err := p.replies.SendReply(p.ctx, commentID, message, accessToken)
		if err != nil {
			logger.Warn("reply failed", "error", err)
		} else {
			logger.Info("reply sent")
		}
		result <- err
	}()
	return result
}

// track registers one background task. It fails once Close has begun so no Add
// races the final Wait.
func (p *Pipeline) track() bool {
	p.trackMu.Lock()
	defer p.trackMu.Unlock()
	if p.closed {
		return false
	}
	p.tasks.Add(1)
	return true
}

// Wait blocks until every in-flight fetch, classification and reply has finished.
func (p *Pipeline) Wait() {
	p.tasks.Wait()
}

// Close cancels all in-flight work, waits for it and closes subscriber channels.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.trackMu.Lock()
		p.closed = true
		p.trackMu.Unlock()

		p.cancel()
		<-p.done
		p.tasks.Wait()
	})
}

type diagnosticSink func(entries map[string]string)

func (f diagnosticSink) RecordDiagnostics(entries map[string]string) {
	f(entries)
}
