package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"CommentInbox/internal/domain"
)

var (
	priorityHigh  = lipgloss.Color("#D32F2F")
	priorityLow   = lipgloss.Color("#388E3C")
	priorityError = lipgloss.Color("#9E9E9E")
)

// Styles groups the terminal styles used for the inbox.
type Styles struct {
	Title    lipgloss.Style
	Author   lipgloss.Style
	Body     lipgloss.Style
	Label    lipgloss.Style
	Reason   lipgloss.Style
	Reply    lipgloss.Style
	Footer   lipgloss.Style
	Priority map[domain.Priority]lipgloss.Style
}

// NewStyles returns the default inbox palette.
func NewStyles() Styles {
	bold := lipgloss.NewStyle().Bold(true)
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			MarginBottom(1),
		Author: lipgloss.NewStyle().
			Foreground(priorityError).
			Bold(true),
		Body: lipgloss.NewStyle(),
		Label: bold,
		Reason: lipgloss.NewStyle().
			Italic(true),
		Reply: lipgloss.NewStyle().
			PaddingLeft(2).
			BorderLeft(true).
			BorderStyle(lipgloss.NormalBorder()),
		Footer: lipgloss.NewStyle().
			Foreground(priorityError),
		Priority: map[domain.Priority]lipgloss.Style{
			domain.PriorityHigh:  bold.Foreground(priorityHigh),
			domain.PriorityLow:   bold.Foreground(priorityLow),
			domain.PriorityError: bold.Foreground(priorityError),
		},
	}
}

func (s Styles) priority(p domain.Priority) lipgloss.Style {
	if style, ok := s.Priority[p]; ok {
		return style
	}
	return s.Label
}

// Page renders one inbox page as terminal text.
func Page(page domain.Page, s Styles) string {
	var b strings.Builder

	if page.TotalComments == 0 {
		b.WriteString(s.Footer.Render("No comments."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(s.Title.Render(fmt.Sprintf("Comments %d", page.TotalComments)))
	b.WriteString("\n")

	for _, item := range page.Items {
		b.WriteString(Comment(item, s))
		b.WriteString("\n")
	}

	b.WriteString(s.Footer.Render(PageLabel(page)))
	b.WriteString("\n")
	return b.String()
}

// Comment renders a single comment card.
func Comment(c domain.ClassifiedComment, s Styles) string {
	lines := []string{}
	if c.AuthorName != "" {
		lines = append(lines, s.Author.Render("From: "+c.AuthorName))
	}
	lines = append(lines,
		s.Body.Render(c.Text),
		s.Label.Render("Priority: ")+s.priority(c.Priority).Render(string(c.Priority)),
	)
	if c.Reason != "" && c.Reason != "-" {
		lines = append(lines, s.Label.Render("Reason: ")+s.Reason.Render(c.Reason))
	}
	if c.Reply != "" {
		lines = append(lines, s.Reply.Render(c.Reply))
	}
	lines = append(lines, s.Footer.Render("id "+c.ID))
	return strings.Join(lines, "\n") + "\n"
}

// PageLabel is the "Page n of m" footer.
func PageLabel(page domain.Page) string {
	return fmt.Sprintf("Page %d of %d", page.Number, page.TotalPages)
}

// DebugInfo is the plain-text report an operator copies when a classification looks wrong.
func DebugInfo(c domain.ClassifiedComment, diagnostics string) string {
	info := fmt.Sprintf("Comment ID: %s\nComment Text: %s\nFrom: %s\nPriority: %s\nAI Reason: %s",
		c.ID, c.Text, c.AuthorName, c.Priority, c.Reason)
	if diagnostics != "" {
		info += "\n\n--- Detailed Error Log ---\n" + diagnostics
	}
	return info
}

// Diagnostics renders the entries of the given comments in page order.
func Diagnostics(items []domain.ClassifiedComment, diagnostics map[string]string) string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := diagnostics[item.ID]; ok {
			ids = append(ids, item.ID)
		}
	}
	if len(ids) == 0 {
		return ""
	}

	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "=== %s ===\n%s\n", id, diagnostics[id])
	}
	return b.String()
}

// Pages renders the pages a user token can manage.
func Pages(pages []domain.ManagedPage, s Styles) string {
	sorted := append([]domain.ManagedPage(nil), pages...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var b strings.Builder
	for _, page := range sorted {
		fmt.Fprintf(&b, "%s  %s\n", s.Label.Render(page.ID), page.Name)
	}
	if b.Len() == 0 {
		b.WriteString(s.Footer.Render("No managed pages."))
		b.WriteString("\n")
	}
	return b.String()
}
