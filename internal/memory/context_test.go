package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedContextGraph(t *testing.T) (*Graph, *Entity, *Entity, *Fact, *Fact) {
	t.Helper()
	g := NewGraph(DefaultConfig(), nil)
	ctx := context.Background()

	user, err := NewEntity(EntityPerson, "Joshua", "Cognitive OS architect")
	require.NoError(t, err)
	project, err := NewEntity(EntityProject, "JACQ", "")
	require.NoError(t, err)
	require.NoError(t, g.AddEntity(ctx, user))
	require.NoError(t, g.AddEntity(ctx, project))

	relationship, err := NewFact(user.ID, "works_on", WithObject(project.ID))
	require.NoError(t, err)
	attribute, err := NewFact(user.ID, "prefers_theme", WithValue(StringValue("dark")))
	require.NoError(t, err)
	require.NoError(t, g.AddFact(ctx, relationship))
	require.NoError(t, g.AddFact(ctx, attribute))

	return g, user, project, relationship, attribute
}

// --- Assembly ---

func TestBuildContext_GathersEntitiesAndFacts(t *testing.T) {
	g, user, project, relationship, attribute := seedContextGraph(t)

	mc, err := BuildContext(context.Background(), g, []string{user.ID, project.ID}, nil)
	require.NoError(t, err)

	require.Len(t, mc.Entities, 2)
	assert.Equal(t, user.ID, mc.Entities[0].ID, "requested order preserved")
	assert.Equal(t, project.ID, mc.Entities[1].ID)

	require.Len(t, mc.Facts, 2)
	ids := []string{mc.Facts[0].ID, mc.Facts[1].ID}
	assert.Contains(t, ids, relationship.ID)
	assert.Contains(t, ids, attribute.ID)
	assert.False(t, mc.RetrievedAt.IsZero())
}

func TestBuildContext_SkipsUnknownIDs(t *testing.T) {
	g, user, _, _, _ := seedContextGraph(t)

	mc, err := BuildContext(context.Background(), g, []string{"missing", user.ID}, nil)
	require.NoError(t, err)
	require.Len(t, mc.Entities, 1)
	assert.Equal(t, user.ID, mc.Entities[0].ID)
}

func TestBuildContext_DeduplicatesRequestedIDs(t *testing.T) {
	g, user, _, _, _ := seedContextGraph(t)

	mc, err := BuildContext(context.Background(), g, []string{user.ID, user.ID, user.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, mc.Entities, 1)
	assert.Len(t, mc.Facts, 2, "facts are not duplicated either")
}

func TestBuildContext_IncludesRecentInteractions(t *testing.T) {
	g, user, _, _, _ := seedContextGraph(t)
	ctx := context.Background()

	interaction, err := NewInteraction("session-1", "what am I working on?", "JACQ.")
	require.NoError(t, err)
	require.NoError(t, g.RecordInteraction(ctx, interaction))

	mc, err := BuildContext(ctx, g, []string{user.ID}, &ContextOptions{IncludeInteractions: 5})
	require.NoError(t, err)
	require.Len(t, mc.Interactions, 1)
	assert.Equal(t, interaction.ID, mc.Interactions[0].ID)

	without, err := BuildContext(ctx, g, []string{user.ID}, &ContextOptions{IncludeInteractions: 0})
	require.NoError(t, err)
	assert.Empty(t, without.Interactions)
}

// --- Rendering ---

func TestMemoryContext_PromptText(t *testing.T) {
	g, user, project, _, _ := seedContextGraph(t)

	mc, err := BuildContext(context.Background(), g, []string{user.ID, project.ID}, &ContextOptions{})
	require.NoError(t, err)

	text := mc.PromptText()
	assert.True(t, strings.HasPrefix(text, "## Memory Context\n"), "header first")
	assert.Contains(t, text, "### Known Entities")
	assert.Contains(t, text, "- **Joshua** (person)")
	assert.Contains(t, text, "  Cognitive OS architect")
	assert.Contains(t, text, "- **JACQ** (project)")
	assert.Contains(t, text, "### Relevant Facts")
	assert.Contains(t, text, "- works_on: relates to entity "+project.ID)
	assert.Contains(t, text, "- prefers_theme: dark")
	assert.NotContains(t, text, "### Recent Interactions")
}

func TestMemoryContext_PromptText_Interactions(t *testing.T) {
	mc := &MemoryContext{
		Interactions: []*Interaction{
			{UserInput: "what's next?", SystemResponse: "Ship the decay sweep."},
		},
	}

	text := mc.PromptText()
	assert.Contains(t, text, "### Recent Interactions")
	assert.Contains(t, text, "- user: what's next?")
	assert.Contains(t, text, "  agent: Ship the decay sweep.")
}

func TestMemoryContext_PromptText_Empty(t *testing.T) {
	mc := &MemoryContext{}
	assert.Equal(t, "## Memory Context\n", mc.PromptText(), "empty context renders the bare header")
}

func TestMemoryContext_PromptText_DegenerateFact(t *testing.T) {
	mc := &MemoryContext{
		Facts: []*Fact{{Predicate: "noted"}},
	}
	assert.Contains(t, mc.PromptText(), "\n- noted\n")
}

func TestMemoryContext_EstimateTokens(t *testing.T) {
	mc := &MemoryContext{}
	text := mc.PromptText()
	assert.Equal(t, len(text)/4, mc.EstimateTokens())
	assert.Greater(t, mc.EstimateTokens(), 0)
}

func TestMemoryContext_RendersOnlySuppliedFacts(t *testing.T) {
	g, user, _, relationship, attribute := seedContextGraph(t)
	_ = attribute

	// The caller filtered down to a single fact; the renderer must not
	// resurrect the rest of the graph.
	entity, err := g.GetEntity(context.Background(), user.ID)
	require.NoError(t, err)
	fact, err := g.GetFact(context.Background(), relationship.ID)
	require.NoError(t, err)

	mc := &MemoryContext{Entities: []*Entity{entity}, Facts: []*Fact{fact}}
	text := mc.PromptText()
	assert.Contains(t, text, "works_on")
	assert.NotContains(t, text, "prefers_theme")
}
