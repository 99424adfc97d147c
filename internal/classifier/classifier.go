package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"CommentInbox/internal/domain"
	"CommentInbox/internal/ports"
)

const (
	// BatchSize bounds the number of comments sent in one prompt.
	BatchSize = 10

	// ReasonRequestFailed is used when the endpoint could not be reached or answered non-2xx.
	ReasonRequestFailed = "AI request failed, see debug info"
	// ReasonUnparseable is used when the model reply is not a JSON array.
	ReasonUnparseable = "failed to parse AI response"
	// ReasonMissing is used when the reply parsed but skipped a comment.
	ReasonMissing = "classification missing from AI"

	defaultReason  = "N/A"
	commentDivider = "\n---\n"
)

const preamble = `You are a professional social media manager for a busy brand. Your task is to analyze the following Facebook comments, classify each one based on urgency and content, and draft a reply.

For each comment provided below, return a JSON object with four fields:
1. "id": The original Comment ID.
2. "priority": "High", "Medium", or "Low" based on the urgency of the comment.
3. "reason": A brief, one-sentence explanation for your classification.
4. "reply": A short, friendly reply to the comment. Emojis are welcome.

Return only a JSON array containing one such object for each comment.

--- Comments to Analyze ---
`

const epilogue = `
--- End of Comments ---`

// Client classifies batches of comments through a text generator.
type Client struct {
	generator ports.TextGenerator
	logger    *slog.Logger
}

var _ ports.Classifier = (*Client)(nil)

// New wires a classification client.
func New(generator ports.TextGenerator, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		generator: generator,
		logger:    logger.With("component", "classifier", "backend", generator.Name()),
	}
}

// Classify sends one batch and returns exactly one record per input comment, in input order.
// Failures never escape: they become Error records with the detail in the diagnostics.
func (c *Client) Classify(ctx context.Context, batch []domain.RawComment, sink ports.DiagnosticSink) []domain.ClassifiedComment {
	if len(batch) == 0 {
		return nil
	}

	prompt := BuildPrompt(batch)
	promptEntry := "Prompt:\n" + prompt
	record(sink, batch, func(domain.RawComment) string { return promptEntry })

	output, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		c.logger.Warn("classification request failed", "batch", len(batch), "error", err)
		return c.fail(batch, sink, promptEntry, ReasonRequestFailed, err.Error())
	}

	parsed, ok := ParseResponse(output)
	if !ok {
		c.logger.Warn("classification reply is not a JSON array", "batch", len(batch), "output_len", len(output))
		return c.fail(batch, sink, promptEntry, ReasonUnparseable, "Model output:\n"+output)
	}

	results := make([]domain.ClassifiedComment, 0, len(batch))
	missing := 0
	for _, comment := range batch {
		item, found := parsed[comment.ID]
		if !found {
			missing++
			results = append(results, domain.Classified(comment, domain.PriorityError, ReasonMissing, ""))
			continue
		}
		results = append(results, domain.Classified(comment, item.Priority, item.Reason, item.Reply))
	}

	c.logger.Debug("batch classified", "batch", len(batch), "missing", missing)
	return results
}

func (c *Client) fail(batch []domain.RawComment, sink ports.DiagnosticSink, promptEntry, reason, detail string) []domain.ClassifiedComment {
	entry := promptEntry + "\n\nFailure:\n" + detail
	record(sink, batch, func(domain.RawComment) string { return entry })

	results := make([]domain.ClassifiedComment, 0, len(batch))
	for _, comment := range batch {
		results = append(results, domain.Classified(comment, domain.PriorityError, reason, ""))
	}
	return results
}

func record(sink ports.DiagnosticSink, batch []domain.RawComment, entry func(domain.RawComment) string) {
	if sink == nil {
		return
	}
	entries := make(map[string]string, len(batch))
	for _, comment := range batch {
		entries[comment.ID] = entry(comment)
	}
	sink.RecordDiagnostics(entries)
}

// BuildPrompt renders the instruction preamble followed by every comment of the batch.
func BuildPrompt(batch []domain.RawComment) string {
	parts := make([]string, 0, len(batch))
	for _, comment := range batch {
		parts = append(parts, fmt.Sprintf("Comment ID: %s\nComment Text: %s", comment.ID, comment.Text))
	}

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString(strings.Join(parts, commentDivider))
	b.WriteString(epilogue)
	return b.String()
}

// Item is one parsed entry of the model reply.
type Item struct {
	Priority domain.Priority
	Reason   string
	Reply    string
}

// ParseResponse strips a code fence and decodes the JSON array keyed by id.
// It reports false when the output is not a JSON array.
func ParseResponse(output string) (map[string]Item, bool) {
	cleaned := StripFence(output)
	if !gjson.Valid(cleaned) {
		return nil, false
	}
	root := gjson.Parse(cleaned)
	if !root.IsArray() {
		return nil, false
	}

	items := make(map[string]Item)
	root.ForEach(func(_, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		id := value.Get("id").String()

		item := Item{
			Priority: domain.PriorityLow,
			Reason:   defaultReason,
			Reply:    value.Get("reply").String(),
		}
		if priority := value.Get("priority"); priority.Exists() {
			item.Priority = domain.ParsePriority(priority.String())
		}
		if reason := value.Get("reason"); reason.Exists() {
			item.Reason = reason.String()
		}
		items[id] = item
		return true
	})
	return items, true
}

// StripFence removes a surrounding ```json or ``` fence.
func StripFence(output string) string {
	cleaned := strings.TrimSpace(output)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimPrefix(cleaned, "json")
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}

// Chunk splits comments into consecutive batches of at most size items.
func Chunk(comments []domain.RawComment, size int) [][]domain.RawComment {
	if size <= 0 {
		size = BatchSize
	}
	batches := make([][]domain.RawComment, 0, (len(comments)+size-1)/size)
	for start := 0; start < len(comments); start += size {
		end := start + size
		if end > len(comments) {
			end = len(comments)
		}
		batches = append(batches, comments[start:end])
	}
	return batches
}
