package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"CommentInbox/internal/classifier"
	"CommentInbox/internal/domain"
	"CommentInbox/internal/logging"
	"CommentInbox/internal/ports"
)

type sourceResponse struct {
	comments []domain.RawComment
	err      error
	gate     chan struct{}
}

type fakeSource struct {
	mu        sync.Mutex
	responses []sourceResponse
	calls     int
}

func (f *fakeSource) FetchComments(ctx context.Context, _, _ string) ([]domain.RawComment, error) {
	f.mu.Lock()
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	resp := f.responses[idx]
	f.calls++
	f.mu.Unlock()

	if resp.gate != nil {
		select {
		case <-resp.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return resp.comments, resp.err
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeClassifier marks every comment High and can hold a batch (keyed by its first id)
// until the gate is closed. Gates are consumed on first use.
type fakeClassifier struct {
	mu      sync.Mutex
	batches [][]string
	gates   map[string]chan struct{}
}

func (f *fakeClassifier) Classify(ctx context.Context, batch []domain.RawComment, sink ports.DiagnosticSink) []domain.ClassifiedComment {
	ids := make([]string, 0, len(batch))
	entries := make(map[string]string, len(batch))
	for _, comment := range batch {
		ids = append(ids, comment.ID)
		entries[comment.ID] = "Prompt:\n" + comment.ID
	}

	f.mu.Lock()
	f.batches = append(f.batches, ids)
	gate := f.gates[ids[0]]
	delete(f.gates, ids[0])
	f.mu.Unlock()

	sink.RecordDiagnostics(entries)

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			out := make([]domain.ClassifiedComment, 0, len(batch))
			for _, comment := range batch {
				out = append(out, domain.Classified(comment, domain.PriorityError, "cancelled", ""))
			}
			return out
		}
	}

	out := make([]domain.ClassifiedComment, 0, len(batch))
	for _, comment := range batch {
		out = append(out, classifiedFixture(comment))
	}
	return out
}

func (f *fakeClassifier) Batches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batches...)
}

func (f *fakeClassifier) hold(id string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gates == nil {
		f.gates = map[string]chan struct{}{}
	}
	gate := make(chan struct{})
	f.gates[id] = gate
	return gate
}

type sentReply struct {
	commentID, message, token string
}

type fakeReplies struct {
	mu   sync.Mutex
	sent []sentReply
	err  error
}

func (f *fakeReplies) SendReply(_ context.Context, commentID, message, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentReply{commentID, message, token})
	return f.err
}

func (f *fakeReplies) Sent() []sentReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentReply(nil), f.sent...)
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func classifiedFixture(comment domain.RawComment) domain.ClassifiedComment {
	return domain.Classified(comment, domain.PriorityHigh, "reason "+comment.ID, "reply "+comment.ID)
}

func makeComments(n int) []domain.RawComment {
	return makeCommentsFrom(0, n)
}

func makeCommentsFrom(start, n int) []domain.RawComment {
	out := make([]domain.RawComment, 0, n)
	for i := start; i < start+n; i++ {
		out = append(out, domain.RawComment{
			ID:         fmt.Sprintf("c%d", i),
			Text:       fmt.Sprintf("comment %d", i),
			AuthorName: "author",
		})
	}
	return out
}

func newTestPipeline(t *testing.T, source *fakeSource, cls *fakeClassifier, opts Options) *Pipeline {
	t.Helper()
	p := NewPipeline(PipelineDeps{
		Source:     source,
		Classifier: cls,
		Replies:    &fakeReplies{},
		Logger:     logging.Discard(),
		Options:    opts,
	})
	t.Cleanup(p.Close)
	return p
}

func classifiedIDs(p *Pipeline) []string {
	var ids []string
	p.exec(func(st *state) {
		for id := range st.classified {
			ids = append(ids, id)
		}
	})
	sort.Strings(ids)
	return ids
}

func idsOf(comments []domain.RawComment) []string {
	ids := make([]string, 0, len(comments))
	for _, comment := range comments {
		ids = append(ids, comment.ID)
	}
	sort.Strings(ids)
	return ids
}

func TestPipelineFetchClassifiesFirstPage(t *testing.T) {
	raw := makeComments(45)
	cls := &fakeClassifier{}
	p := newTestPipeline(t, &fakeSource{responses: []sourceResponse{{comments: raw}}}, cls, Options{PageSize: 20})

	<-p.TriggerFetch("page", "token")

	view := p.View()
	assert.Equal(t, FetchFetched, view.Fetch)
	assert.Equal(t, PageClassified, view.PageStatus)
	assert.Equal(t, 3, p.TotalPages())
	assert.Equal(t, 45, p.TotalComments())
	assert.Equal(t, 1, p.CurrentPageNumber())

	require.Len(t, view.Page.Items, 20)
	for i, item := range view.Page.Items {
		assert.Equal(t, classifiedFixture(raw[i]), item)
	}
	assert.Equal(t, [][]string{idsOf(raw[0:10]), idsOf(raw[10:20])}, sortedBatches(cls.Batches()))
	assert.Len(t, classifiedIDs(p), 20)
	assert.Len(t, view.Diagnostics, 20)
}

func sortedBatches(batches [][]string) [][]string {
	out := make([][]string, 0, len(batches))
	for _, batch := range batches {
		sorted := append([]string(nil), batch...)
		sort.Strings(sorted)
		out = append(out, sorted)
	}
	return out
}

func TestPipelineNavigationClassifiesLazily(t *testing.T) {
	raw := makeComments(45)
	cls := &fakeClassifier{}
	p := newTestPipeline(t, &fakeSource{responses: []sourceResponse{{comments: raw}}}, cls, Options{PageSize: 20})
	<-p.TriggerFetch("page", "token")

	assert.True(t, p.GoToNext())
	p.Wait()
	assert.Equal(t, 2, p.CurrentPageNumber())
	assert.Len(t, cls.Batches(), 4)

	assert.True(t, p.GoToPage(99))
	p.Wait()
	view := p.View()
	assert.Equal(t, 3, view.Page.Number)
	require.Len(t, view.Page.Items, 5)
	assert.Equal(t, PageClassified, view.PageStatus)
	assert.Len(t, cls.Batches(), 5)
	assert.Len(t, classifiedIDs(p), 45)

	assert.False(t, p.GoToNext())
	assert.True(t, p.GoToPage(-3))
	p.Wait()
	assert.Equal(t, 1, p.CurrentPageNumber())
	assert.Len(t, cls.Batches(), 5, "classified pages are not sent again")

	assert.False(t, p.GoToPrevious())
}

func TestPipelineSamePageDoesNotRetrigger(t *testing.T) {
	cls := &fakeClassifier{}
	p := newTestPipeline(t, &fakeSource{responses: []sourceResponse{{comments: makeComments(45)}}}, cls, Options{PageSize: 20})
	<-p.TriggerFetch("page", "token")
	calls := len(cls.Batches())

	assert.False(t, p.GoToPage(0))
	<-p.ClassifyCurrentPage()
	p.Wait()
	assert.Len(t, cls.Batches(), calls)
}

func TestPipelineBatchCount(t *testing.T) {
	for _, n := range []int{1, 9, 10, 11, 20, 37} {
		for _, b := range []int{1, 3, 10} {
			t.Run(fmt.Sprintf("n=%d/b=%d", n, b), func(t *testing.T) {
				raw := makeComments(n)
				cls := &fakeClassifier{}
				p := newTestPipeline(t, &fakeSource{responses: []sourceResponse{{comments: raw}}}, cls, Options{PageSize: n, BatchSize: b})

				<-p.TriggerFetch("page", "token")

				assert.Len(t, cls.Batches(), (n+b-1)/b)
				assert.Equal(t, idsOf(raw), classifiedIDs(p))
			})
		}
	}
}

func TestPipelineEmptyFetch(t *testing.T) {
	cls := &fakeClassifier{}
	source := &fakeSource{responses: []sourceResponse{{comments: makeComments(5)}, {comments: nil}}}
	p := newTestPipeline(t, source, cls, Options{PageSize: 20})

	<-p.TriggerFetch("page", "token")
	require.Len(t, classifiedIDs(p), 5)

	<-p.TriggerFetch("page", "token")
	view := p.View()
	assert.Equal(t, FetchFetched, view.Fetch)
	assert.Equal(t, 0, view.Page.TotalPages)
	assert.Equal(t, 0, view.Page.TotalComments)
	assert.Empty(t, view.Page.Items)
	assert.Empty(t, classifiedIDs(p))
	assert.False(t, p.GoToNext())
	assert.False(t, p.GoToPage(3))
	assert.Len(t, cls.Batches(), 1)
}

func TestPipelineFetchFailureClears(t *testing.T) {
	source := &fakeSource{responses: []sourceResponse{
		{comments: makeComments(5)},
		{err: fmt.Errorf("graph: %w", domain.ErrTransport)},
	}}
	p := newTestPipeline(t, source, &fakeClassifier{}, Options{PageSize: 20})

	<-p.TriggerFetch("page", "token")
	<-p.TriggerFetch("page", "token")

	view := p.View()
	assert.Equal(t, FetchFailed, view.Fetch)
	assert.Contains(t, view.FetchError, "transport failure")
	assert.Equal(t, 0, p.TotalComments())
	assert.Empty(t, classifiedIDs(p))
	assert.Len(t, view.Diagnostics, 5, "diagnostics survive a failed fetch")
}

func TestPipelineRefetchPrunesVanishedComments(t *testing.T) {
	cls := &fakeClassifier{}
	source := &fakeSource{responses: []sourceResponse{
		{comments: makeCommentsFrom(0, 5)},
		{comments: makeCommentsFrom(3, 5)},
	}}
	p := newTestPipeline(t, source, cls, Options{PageSize: 20})

	<-p.TriggerFetch("page", "token")
	<-p.TriggerFetch("page", "token")

	assert.Equal(t, idsOf(makeCommentsFrom(3, 5)), classifiedIDs(p))
	assert.Len(t, cls.Batches(), 2)
}

func TestPipelineNewerFetchSupersedesOlder(t *testing.T) {
	gate := make(chan struct{})
	source := &fakeSource{responses: []sourceResponse{
		{comments: makeCommentsFrom(100, 3), gate: gate},
		{comments: makeCommentsFrom(0, 4)},
	}}
	p := newTestPipeline(t, source, &fakeClassifier{}, Options{PageSize: 20})

	older := p.TriggerFetch("page", "token")
	require.Eventually(t, func() bool { return source.Calls() == 1 }, time.Second, time.Millisecond)
	<-p.TriggerFetch("page", "token")
	close(gate)
	<-older

	assert.Equal(t, 4, p.TotalComments())
	assert.Equal(t, idsOf(makeComments(4)), classifiedIDs(p))
}

func TestPipelineOutOfOrderCompletion(t *testing.T) {
	raw := makeComments(60)
	cls := &fakeClassifier{}
	p := newTestPipeline(t, &fakeSource{responses: []sourceResponse{{comments: raw}}}, cls, Options{PageSize: 20})
	<-p.TriggerFetch("page", "token")

	second := cls.hold("c20")
	third := cls.hold("c40")

	require.True(t, p.GoToNext())
	require.Eventually(t, func() bool { return p.View().PageStatus == PageClassifying }, time.Second, time.Millisecond)
	require.True(t, p.GoToNext())

	close(third)
	require.Eventually(t, func() bool { return p.View().PageStatus == PageClassified }, time.Second, time.Millisecond)
	close(second)
	p.Wait()

	assert.Equal(t, idsOf(raw), classifiedIDs(p))
	assert.Len(t, cls.Batches(), 6)

	require.True(t, p.GoToPage(1))
	p.Wait()
	view := p.View()
	assert.Equal(t, PageClassified, view.PageStatus)
	for i, item := range view.Page.Items {
		assert.Equal(t, classifiedFixture(raw[20+i]), item)
	}
	assert.Len(t, cls.Batches(), 6)
}

func TestPipelineReturningToInFlightPageDoesNotDuplicate(t *testing.T) {
	cls := &fakeClassifier{}
	p := newTestPipeline(t, &fakeSource{responses: []sourceResponse{{comments: makeComments(40)}}}, cls, Options{PageSize: 20})
	<-p.TriggerFetch("page", "token")

	gate := cls.hold("c20")
	require.True(t, p.GoToNext())
	require.True(t, p.GoToPrevious())
	require.True(t, p.GoToNext())
	assert.Equal(t, PageClassifying, p.View().PageStatus)

	close(gate)
	p.Wait()
	assert.Len(t, cls.Batches(), 4)
}

func TestPipelineCancelAbandoned(t *testing.T) {
	cls := &fakeClassifier{}
	p := newTestPipeline(t, &fakeSource{responses: []sourceResponse{{comments: makeComments(60)}}}, cls, Options{PageSize: 20, CancelAbandoned: true})
	<-p.TriggerFetch("page", "token")

	cls.hold("c20")
	require.True(t, p.GoToNext())
	require.Eventually(t, func() bool { return len(cls.Batches()) == 3 }, time.Second, time.Millisecond)
	require.True(t, p.GoToNext())
	p.Wait()

	classified := classifiedIDs(p)
	assert.NotContains(t, classified, "c20")
	assert.Contains(t, classified, "c40")

	require.True(t, p.GoToPage(1))
	p.Wait()
	assert.Equal(t, PageClassified, p.View().PageStatus)
	assert.Len(t, classifiedIDs(p), 60)
}

func TestPipelineSubscribe(t *testing.T) {
	p := newTestPipeline(t, &fakeSource{responses: []sourceResponse{{comments: makeComments(5)}}}, &fakeClassifier{}, Options{PageSize: 20})

	views, unsubscribe := p.Subscribe()
	initial := <-views
	assert.Equal(t, FetchIdle, initial.Fetch)

	<-p.TriggerFetch("page", "token")

	var latest View
	require.Eventually(t, func() bool {
		select {
		case latest = <-views:
		default:
		}
		return latest.PageStatus == PageClassified
	}, time.Second, time.Millisecond)
	assert.Len(t, latest.Page.Items, 5)

	unsubscribe()
	unsubscribe()
	for range views {
	}

	other, _ := p.Subscribe()
	<-other
	p.Close()
	_, open := <-other
	assert.False(t, open)
}

func TestPipelineLookup(t *testing.T) {
	cls := &fakeClassifier{}
	raw := makeComments(25)
	p := newTestPipeline(t, &fakeSource{responses: []sourceResponse{{comments: raw}}}, cls, Options{PageSize: 20})
	<-p.TriggerFetch("page", "token")

	record, diag, ok := p.Lookup("c3")
	require.True(t, ok)
	assert.Equal(t, classifiedFixture(raw[3]), record)
	assert.Equal(t, "Prompt:\nc3", diag)

	record, diag, ok = p.Lookup("c22")
	require.True(t, ok)
	assert.Equal(t, domain.PriorityPending, record.Priority)
	assert.Empty(t, diag)

	_, _, ok = p.Lookup("missing")
	assert.False(t, ok)
}

func TestPipelineSendReplyIsNotDeduplicated(t *testing.T) {
	replies := &fakeReplies{}
	p := NewPipeline(PipelineDeps{
		Source:     &fakeSource{responses: []sourceResponse{{}}},
		Classifier: &fakeClassifier{},
		Replies:    replies,
		Logger:     logging.Discard(),
	})
	defer p.Close()

	assert.NoError(t, <-p.SendReply("c1", "Thanks!", "token"))
	assert.NoError(t, <-p.SendReply("c1", "Thanks!", "token"))
	assert.Equal(t, []sentReply{{"c1", "Thanks!", "token"}, {"c1", "Thanks!", "token"}}, replies.sent)

	replies.mu.Lock()
	replies.err = errors.New("boom")
	replies.mu.Unlock()
	assert.EqualError(t, <-p.SendReply("c2", "hi", "token"), "boom")
}

func TestPipelineCloseIsIdempotent(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	p := NewPipeline(PipelineDeps{
		Source:     &fakeSource{responses: []sourceResponse{{comments: makeComments(3), gate: gate}}},
		Classifier: &fakeClassifier{},
		Replies:    &fakeReplies{},
		Logger:     logging.Discard(),
	})

	done := p.TriggerFetch("page", "token")
	p.Close()
	p.Close()
	<-done

	<-p.TriggerFetch("page", "token")
	<-p.ClassifyCurrentPage()
	assert.False(t, p.GoToNext())
}

func TestPipelineRejectsWorkDuringClose(t *testing.T) {
	replies := &fakeReplies{}
	p := NewPipeline(PipelineDeps{
		Source:     &fakeSource{responses: []sourceResponse{{comments: makeComments(30)}}},
		Classifier: &fakeClassifier{},
		Replies:    replies,
		Logger:     logging.Discard(),
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-p.TriggerFetch("page", "token")
			p.GoToNext()
			<-p.ClassifyCurrentPage()
			<-p.SendReply("c1", "hi", "token")
		}()
	}
	p.Close()
	wg.Wait()

	before := len(replies.Sent())
	assert.ErrorIs(t, <-p.SendReply("c2", "late", "token"), context.Canceled)
	assert.Len(t, replies.Sent(), before)
}

func newMergeState(raw []domain.RawComment) *state {
	st := &state{classified: map[string]domain.ClassifiedComment{}}
	st.replaceRaw(raw)
	return st
}

func classifiedBatches(raw []domain.RawComment, size int) [][]domain.ClassifiedComment {
	var out [][]domain.ClassifiedComment
	for _, batch := range classifier.Chunk(raw, size) {
		records := make([]domain.ClassifiedComment, 0, len(batch))
		for _, comment := range batch {
			records = append(records, classifiedFixture(comment))
		}
		out = append(out, records)
	}
	return out
}

func TestMergeIsIdempotent(t *testing.T) {
	raw := makeComments(12)
	batch := classifiedBatches(raw, 5)[0]

	st := newMergeState(raw)
	st.merge(batch)
	once := map[string]domain.ClassifiedComment{}
	for id, record := range st.classified {
		once[id] = record
	}
	st.merge(batch)

	assert.Empty(t, cmp.Diff(once, st.classified))
}

func TestMergeIsOrderIndependent(t *testing.T) {
	raw := makeComments(37)
	batches := classifiedBatches(raw, 5)

	reference := newMergeState(raw)
	for _, batch := range batches {
		reference.merge(batch)
	}
	require.Len(t, reference.classified, 37)

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		st := newMergeState(raw)
		for _, i := range rng.Perm(len(batches)) {
			st.merge(batches[i])
		}
		if diff := cmp.Diff(reference.classified, st.classified); diff != "" {
			t.Fatalf("round %d: merge depends on order (-want +got):\n%s", round, diff)
		}
	}
}

func TestMergeDropsUnknownIds(t *testing.T) {
	st := newMergeState(makeComments(2))
	merged := st.merge([]domain.ClassifiedComment{
		{ID: "c1", Priority: domain.PriorityLow},
		{ID: "ghost", Priority: domain.PriorityHigh},
	})

	assert.Equal(t, 1, merged)
	assert.NotContains(t, st.classified, "ghost")
}
