package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ContextOptions configures context assembly
type ContextOptions struct {
	// IncludeInteractions is how many recent interactions to carry into
	// the assembled context; zero disables the section.
	IncludeInteractions int `json:"include_interactions"`
}

// DefaultContextOptions returns default assembly options
func DefaultContextOptions() *ContextOptions {
	return &ContextOptions{
		IncludeInteractions: 5,
	}
}

// MemoryContext is the bundle retrieved for a query: the entities a
// collaborator selected (say, via FindRelatedEntities), the facts about
// them, and recent session history. It renders to prompt text for
// injection into a downstream model's input.
type MemoryContext struct {
	Entities     []*Entity      `json:"relevant_entities"`
	Facts        []*Fact        `json:"relevant_facts"`
	Interactions []*Interaction `json:"recent_interactions,omitempty"`
	RetrievedAt  time.Time      `json:"retrieval_timestamp"`
}

// BuildContext assembles a MemoryContext for the given entity ids:
// each known entity is included along with every fact about it; unknown
// ids are skipped, not errors. Assembly renders only what the store
// holds and performs no relevance or confidence filtering; selecting and
// filtering ids is the caller's concern.
func BuildContext(ctx context.Context, store Store, entityIDs []string, opts *ContextOptions) (*MemoryContext, error) {
	if opts == nil {
		opts = DefaultContextOptions()
	}

	mc := &MemoryContext{
		Entities:    make([]*Entity, 0, len(entityIDs)),
		Facts:       make([]*Fact, 0),
		RetrievedAt: time.Now().UTC(),
	}

	seenEntities := make(map[string]bool, len(entityIDs))
	seenFacts := make(map[string]bool)

	for _, id := range entityIDs {
		if seenEntities[id] {
			continue
		}
		seenEntities[id] = true

		entity, err := store.GetEntity(ctx, id)
		if err != nil {
			if errors.Is(err, ErrEntityNotFound) {
				continue
			}
			return nil, fmt.Errorf("assembling context: %w", err)
		}
		mc.Entities = append(mc.Entities, entity)

		facts, err := store.FactsAbout(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("assembling context: %w", err)
		}
		for _, fact := range facts {
			if seenFacts[fact.ID] {
				continue
			}
			seenFacts[fact.ID] = true
			mc.Facts = append(mc.Facts, fact)
		}
	}

	if opts.IncludeInteractions > 0 {
		interactions, err := store.RecentInteractions(ctx, opts.IncludeInteractions)
		if err != nil {
			return nil, fmt.Errorf("assembling context: %w", err)
		}
		mc.Interactions = interactions
	}

	return mc, nil
}

// PromptText renders the context as markdown for prompt injection.
// Empty inputs render the bare header; sections appear only when they
// have content.
func (mc *MemoryContext) PromptText() string {
	lines := []string{"## Memory Context", ""}

	if len(mc.Entities) > 0 {
		lines = append(lines, "### Known Entities")
		for _, entity := range mc.Entities {
			lines = append(lines, fmt.Sprintf("- **%s** (%s)", entity.Name, entity.Type))
			if entity.Description != "" {
				lines = append(lines, "  "+entity.Description)
			}
		}
		lines = append(lines, "")
	}

	if len(mc.Facts) > 0 {
		lines = append(lines, "### Relevant Facts")
		for _, fact := range mc.Facts {
			switch {
			case fact.IsRelationship():
				lines = append(lines, fmt.Sprintf("- %s: relates to entity %s", fact.Predicate, fact.ObjectID))
			case fact.Value != nil:
				lines = append(lines, fmt.Sprintf("- %s: %s", fact.Predicate, fact.Value))
			default:
				lines = append(lines, "- "+fact.Predicate)
			}
		}
		lines = append(lines, "")
	}

	if len(mc.Interactions) > 0 {
		lines = append(lines, "### Recent Interactions")
		for _, interaction := range mc.Interactions {
			lines = append(lines, "- user: "+interaction.UserInput)
			lines = append(lines, "  agent: "+interaction.SystemResponse)
		}
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}

// EstimateTokens approximates the token cost of the rendered context
// using the four-characters-per-token heuristic.
func (mc *MemoryContext) EstimateTokens() int {
	return len(mc.PromptText()) / 4
}
