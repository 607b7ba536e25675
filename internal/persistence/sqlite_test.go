package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.helix.recall/internal/memory"
)

func fileConfig(t *testing.T) SnapshotConfig {
	t.Helper()
	return SnapshotConfig{
		Path:          filepath.Join(t.TempDir(), "recall.db"),
		BusyTimeoutMS: 1000,
	}
}

// seedSnapshot builds a populated snapshot through a real graph so the
// stored shapes match what the engine produces.
func seedSnapshot(t *testing.T) *memory.GraphSnapshot {
	t.Helper()
	ctx := context.Background()
	graph := memory.NewGraph(memory.DefaultConfig(), nil)

	person, err := memory.NewEntity(memory.EntityPerson, "Joshua", "Cognitive OS architect")
	require.NoError(t, err)
	person.Metadata["timezone"] = memory.StringValue("UTC+2")
	require.NoError(t, graph.AddEntity(ctx, person))

	project, err := memory.NewEntity(memory.EntityProject, "JACQ", "")
	require.NoError(t, err)
	require.NoError(t, graph.AddEntity(ctx, project))

	relationship, err := memory.NewFact(person.ID, "works_on",
		memory.WithObject(project.ID), memory.WithSource("conversation"))
	require.NoError(t, err)
	require.NoError(t, graph.AddFact(ctx, relationship))

	attribute, err := memory.NewFact(person.ID, "prefers_theme",
		memory.WithValue(memory.StringValue("dark")), memory.WithConfidence(0.9))
	require.NoError(t, err)
	require.NoError(t, graph.AddFact(ctx, attribute))

	// Promote the relationship so lifecycle fields are non-trivial
	for i := 0; i < 3; i++ {
		_, err := graph.TouchFact(ctx, relationship.ID)
		require.NoError(t, err)
	}

	interaction, err := memory.NewInteraction("session-1", "what is Joshua working on?", "JACQ")
	require.NoError(t, err)
	interaction.EntitiesMentioned = []string{person.ID, project.ID}
	interaction.FactsAccessed = []string{relationship.ID}
	require.NoError(t, graph.RecordInteraction(ctx, interaction))

	snapshot, err := graph.Snapshot(ctx)
	require.NoError(t, err)
	return snapshot
}

// TestDefaultSnapshotConfig verifies default values
func TestDefaultSnapshotConfig(t *testing.T) {
	config := DefaultSnapshotConfig()

	assert.Equal(t, "recall.db", config.Path)
	assert.False(t, config.InMemory)
	assert.Equal(t, 5000, config.BusyTimeoutMS)
}

// TestOpen_FileBacked verifies schema bootstrap on a fresh file
func TestOpen_FileBacked(t *testing.T) {
	store, err := Open(context.Background(), fileConfig(t), nil)
	require.NoError(t, err)
	defer store.Close()

	assert.NoError(t, store.Health(context.Background()))
}

// TestOpen_RequiresPath verifies file-based stores need a path
func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), SnapshotConfig{}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

// TestOpen_CreatesParentDirectory verifies nested paths work
func TestOpen_CreatesParentDirectory(t *testing.T) {
	config := SnapshotConfig{
		Path: filepath.Join(t.TempDir(), "nested", "dir", "recall.db"),
	}

	store, err := Open(context.Background(), config, nil)
	require.NoError(t, err)
	defer store.Close()

	assert.NoError(t, store.Health(context.Background()))
}

// TestLoad_EmptyDatabase verifies a fresh store loads an empty snapshot
func TestLoad_EmptyDatabase(t *testing.T) {
	store, err := Open(context.Background(), fileConfig(t), nil)
	require.NoError(t, err)
	defer store.Close()

	snapshot, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.Empty(t, snapshot.Entities)
	assert.Empty(t, snapshot.Facts)
	assert.Empty(t, snapshot.Interactions)
	assert.True(t, snapshot.TakenAt.IsZero())
}

// TestSaveLoad_RoundTrip verifies a snapshot survives a full close and
// reopen of the database file
func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	config := fileConfig(t)
	snapshot := seedSnapshot(t)

	store, err := Open(ctx, config, nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, snapshot))
	require.NoError(t, store.Close())

	// Reopen from disk
	reopened, err := Open(ctx, config, nil)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)

	require.Len(t, loaded.Entities, len(snapshot.Entities))
	require.Len(t, loaded.Facts, len(snapshot.Facts))
	require.Len(t, loaded.Interactions, len(snapshot.Interactions))
	assert.True(t, loaded.TakenAt.Equal(snapshot.TakenAt))

	// Snapshot() sorts by id, Load reads in id order, so rows align
	for i, want := range snapshot.Entities {
		got := loaded.Entities[i]
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, want.Description, got.Description)
		assert.True(t, got.CreatedAt.Equal(want.CreatedAt))
		assert.True(t, got.UpdatedAt.Equal(want.UpdatedAt))
		require.Len(t, got.Metadata, len(want.Metadata))
		for key, value := range want.Metadata {
			assert.True(t, got.Metadata[key].Equal(value), "metadata %s", key)
		}
	}

	for i, want := range snapshot.Facts {
		got := loaded.Facts[i]
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.SubjectID, got.SubjectID)
		assert.Equal(t, want.Predicate, got.Predicate)
		assert.Equal(t, want.ObjectID, got.ObjectID)
		assert.Equal(t, want.Status, got.Status)
		assert.InDelta(t, want.Confidence, got.Confidence, 1e-12)
		assert.InDelta(t, want.Relevance, got.Relevance, 1e-12)
		assert.Equal(t, want.AccessCount, got.AccessCount)
		assert.Equal(t, want.Source, got.Source)
		assert.True(t, got.CreatedAt.Equal(want.CreatedAt))
		assert.True(t, got.LastAccessed.Equal(want.LastAccessed))
		if want.Value == nil {
			assert.Nil(t, got.Value)
		} else {
			require.NotNil(t, got.Value)
			assert.True(t, got.Value.Equal(*want.Value))
		}
	}

	for i, want := range snapshot.Interactions {
		got := loaded.Interactions[i]
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.SessionID, got.SessionID)
		assert.Equal(t, want.UserInput, got.UserInput)
		assert.Equal(t, want.SystemResponse, got.SystemResponse)
		assert.True(t, got.Timestamp.Equal(want.Timestamp))
		assert.Equal(t, want.EntitiesMentioned, got.EntitiesMentioned)
		assert.Equal(t, want.FactsCreated, got.FactsCreated)
		assert.Equal(t, want.FactsAccessed, got.FactsAccessed)
	}
}

// TestSaveLoad_InMemory verifies the in-memory mode on a single open
// store
func TestSaveLoad_InMemory(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, SnapshotConfig{InMemory: true}, nil)
	require.NoError(t, err)
	defer store.Close()

	snapshot := seedSnapshot(t)
	require.NoError(t, store.Save(ctx, snapshot))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded.Entities, len(snapshot.Entities))
	assert.Len(t, loaded.Facts, len(snapshot.Facts))
}

// TestSave_ReplacesPrevious verifies Save is a full replace, not merge
func TestSave_ReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, fileConfig(t), nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(ctx, seedSnapshot(t)))

	smaller := &memory.GraphSnapshot{
		Entities: func() []*memory.Entity {
			entity, err := memory.NewEntity(memory.EntityConcept, "replacement", "")
			require.NoError(t, err)
			return []*memory.Entity{entity}
		}(),
		Facts:        []*memory.Fact{},
		Interactions: []*memory.Interaction{},
		TakenAt:      time.Now().UTC(),
	}
	require.NoError(t, store.Save(ctx, smaller))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Entities, 1)
	assert.Equal(t, "replacement", loaded.Entities[0].Name)
	assert.Empty(t, loaded.Facts)
	assert.Empty(t, loaded.Interactions)
}

// TestSave_NilSnapshot verifies nil input is rejected
func TestSave_NilSnapshot(t *testing.T) {
	store, err := Open(context.Background(), fileConfig(t), nil)
	require.NoError(t, err)
	defer store.Close()

	require.Error(t, store.Save(context.Background(), nil))
}

// TestClosedStore verifies operations fail cleanly after Close
func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, fileConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Close again is a no-op
	require.NoError(t, store.Close())

	assert.Error(t, store.Health(ctx))
	assert.Error(t, store.Save(ctx, seedSnapshot(t)))
	_, err = store.Load(ctx)
	assert.Error(t, err)
}

// TestInteractions_OrderPreserved verifies the log order survives the
// database round trip
func TestInteractions_OrderPreserved(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, fileConfig(t), nil)
	require.NoError(t, err)
	defer store.Close()

	snapshot := &memory.GraphSnapshot{TakenAt: time.Now().UTC()}
	for _, input := range []string{"first", "second", "third"} {
		interaction, err := memory.NewInteraction("session-1", input, "ok")
		require.NoError(t, err)
		snapshot.Interactions = append(snapshot.Interactions, interaction)
	}
	require.NoError(t, store.Save(ctx, snapshot))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Interactions, 3)
	assert.Equal(t, "first", loaded.Interactions[0].UserInput)
	assert.Equal(t, "second", loaded.Interactions[1].UserInput)
	assert.Equal(t, "third", loaded.Interactions[2].UserInput)
}

// TestRoundTrip_RestoresWorkingGraph verifies a loaded snapshot drives
// a fully functional graph
func TestRoundTrip_RestoresWorkingGraph(t *testing.T) {
	ctx := context.Background()
	config := fileConfig(t)

	// Build and persist
	graph := memory.NewGraph(memory.DefaultConfig(), nil)
	user, err := memory.NewEntity(memory.EntityPerson, "Joshua", "")
	require.NoError(t, err)
	project, err := memory.NewEntity(memory.EntityProject, "JACQ", "")
	require.NoError(t, err)
	require.NoError(t, graph.AddEntity(ctx, user))
	require.NoError(t, graph.AddEntity(ctx, project))

	edge, err := memory.NewFact(user.ID, "works_on", memory.WithObject(project.ID))
	require.NoError(t, err)
	require.NoError(t, graph.AddFact(ctx, edge))

	snapshot, err := graph.Snapshot(ctx)
	require.NoError(t, err)

	store, err := Open(ctx, config, nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, snapshot))
	require.NoError(t, store.Close())

	// Load into a fresh graph
	reopened, err := Open(ctx, config, nil)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)

	restored := memory.NewGraph(memory.DefaultConfig(), nil)
	require.NoError(t, restored.Restore(ctx, loaded))

	related, err := restored.FindRelatedEntities(ctx, user.ID, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{user.ID, project.ID}, related)
}
