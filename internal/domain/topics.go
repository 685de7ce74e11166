package domain

import "fmt"

// Topic is one of the discussion angles a user can pick before handing a
// journal entry to the assistant.
type Topic struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// MaxTopicSelections caps how many topics can shape a single conversation.
const MaxTopicSelections = 3

// DefaultTopics is the built-in catalog shown on the review screen.
var DefaultTopics = []Topic{
	{ID: "task-breakdown", Label: "Task Breakdown"},
	{ID: "prioritization", Label: "Prioritization"},
	{ID: "anxiety", Label: "Anxiety Perspective"},
	{ID: "self-reflection", Label: "Self-Reflection"},
	{ID: "goals", Label: "Custom Goals"},
	{ID: "empathy", Label: "Empathy and Understanding"},
	{ID: "relationships", Label: "Relationship Advice"},
}

// ValidateTopicSelection checks the count bound and that every label exists
// in the catalog.
func ValidateTopicSelection(labels []string) error {
	if len(labels) > MaxTopicSelections {
		return errTooManyTopics
	}
	for _, l := range labels {
		if !knownTopic(l) {
			return errUnknownTopic(l)
		}
	}
	return nil
}

var errTooManyTopics = fmt.Errorf("at most %d topics can be selected", MaxTopicSelections)

func errUnknownTopic(label string) error {
	return fmt.Errorf("unknown topic %q", label)
}

func knownTopic(label string) bool {
	for _, t := range DefaultTopics {
		if t.Label == label {
			return true
		}
	}
	return false
}
