package domain

import "strings"

// UnknownAuthor is used when the social graph omits the comment author.
const UnknownAuthor = "Unknown User"

// RawComment is a comment as fetched from the social graph.
type RawComment struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	AuthorName string `json:"authorName"`
}

// Priority enumerates classification outcomes.
type Priority string

const (
	PriorityPending Priority = "Pending"
	PriorityLow     Priority = "Low"
	PriorityMedium  Priority = "Medium"
	PriorityHigh    Priority = "High"
	PriorityError   Priority = "Error"
)

// ParsePriority maps a model-provided label onto High/Medium/Low.
// Anything unrecognised is treated as Low.
func ParsePriority(label string) Priority {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "high":
		return PriorityHigh
	case "medium":
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ClassifiedComment overlays a classification on top of a RawComment.
type ClassifiedComment struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	AuthorName string   `json:"authorName"`
	Priority   Priority `json:"priority"`
	Reason     string   `json:"reason"`
	Reply      string   `json:"reply"`
}

// PendingFrom builds the placeholder record shown until a classification arrives.
func PendingFrom(raw RawComment) ClassifiedComment {
	return ClassifiedComment{
		ID:         raw.ID,
		Text:       raw.Text,
		AuthorName: raw.AuthorName,
		Priority:   PriorityPending,
	}
}

// Classified returns a record for raw with the given outcome.
func Classified(raw RawComment, priority Priority, reason, reply string) ClassifiedComment {
	return ClassifiedComment{
		ID:         raw.ID,
		Text:       raw.Text,
		AuthorName: raw.AuthorName,
		Priority:   priority,
		Reason:     reason,
		Reply:      reply,
	}
}

// ManagedPage is a social-network page the operator can act on behalf of.
type ManagedPage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"accessToken"`
}
