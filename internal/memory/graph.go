package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Graph is the in-memory implementation of Store: a single-writer,
// multi-reader entity-fact graph guarded by one RWMutex. Readers always
// receive copies, so no caller ever observes a fact mid-mutation.
type Graph struct {
	entities map[string]*Entity
	facts    map[string]*Fact

	// Indexes for lookup and traversal
	subjectIndex map[string][]string // subject entity id -> fact ids, insertion order
	adjacency    map[string][]string // subject entity id -> relationship fact ids

	interactions []*Interaction

	config Config
	logger *logrus.Logger
	mu     sync.RWMutex
}

// NewGraph creates an empty memory graph
func NewGraph(config Config, logger *logrus.Logger) *Graph {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	if config.MaxInteractions <= 0 {
		config.MaxInteractions = DefaultConfig().MaxInteractions
	}

	return &Graph{
		entities:     make(map[string]*Entity),
		facts:        make(map[string]*Fact),
		subjectIndex: make(map[string][]string),
		adjacency:    make(map[string][]string),
		config:       config,
		logger:       logger,
	}
}

// AddEntity inserts the entity, or overwrites it when the id is already
// known. An overwrite keeps the original creation time and advances
// UpdatedAt; referential integrity with existing facts is not checked.
func (g *Graph) AddEntity(ctx context.Context, entity *Entity) error {
	if entity == nil {
		return &ValidationError{Field: "entity", Reason: "must not be nil"}
	}
	if !entity.Type.Valid() {
		return &ValidationError{Field: "entity_type", Reason: "unrecognized type: " + string(entity.Type)}
	}
	if entity.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if entity.ID == "" {
		entity.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	clone := cloneEntity(entity)
	if prev, exists := g.entities[entity.ID]; exists {
		clone.CreatedAt = prev.CreatedAt
		clone.UpdatedAt = now
	} else {
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = now
		}
		if clone.UpdatedAt.IsZero() {
			clone.UpdatedAt = now
		}
	}

	g.entities[clone.ID] = clone
	return nil
}

// GetEntity retrieves a copy of the entity by id
func (g *Graph) GetEntity(ctx context.Context, id string) (*Entity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	entity, exists := g.entities[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}

	return cloneEntity(entity), nil
}

// EntitiesByType returns copies of all entities of the given type,
// sorted by name.
func (g *Graph) EntitiesByType(ctx context.Context, entityType EntityType) ([]*Entity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	results := make([]*Entity, 0)
	for _, entity := range g.entities {
		if entity.Type == entityType {
			results = append(results, cloneEntity(entity))
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Name != results[j].Name {
			return results[i].Name < results[j].Name
		}
		return results[i].ID < results[j].ID
	})

	return results, nil
}

// AddFact appends the fact and indexes it under its subject; relationship
// facts additionally become edges in the adjacency index. The subject and
// object may reference entities the graph has not seen yet (facts can
// arrive before their entities); traversal treats unknown references as
// dead ends.
func (g *Graph) AddFact(ctx context.Context, fact *Fact) error {
	if fact == nil {
		return &ValidationError{Field: "fact", Reason: "must not be nil"}
	}
	if fact.SubjectID == "" {
		return &ValidationError{Field: "subject_id", Reason: "must not be empty"}
	}
	if fact.Predicate == "" {
		return &ValidationError{Field: "predicate", Reason: "must not be empty"}
	}
	if fact.Confidence < 0.0 || fact.Confidence > 1.0 {
		return &ValidationError{Field: "confidence", Reason: "must be within [0.0, 1.0]"}
	}
	if fact.Status != "" && !fact.Status.Valid() {
		return &ValidationError{Field: "status", Reason: "unrecognized status: " + string(fact.Status)}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if fact.ID == "" {
		fact.ID = uuid.New().String()
	}
	if _, exists := g.facts[fact.ID]; exists {
		return fmt.Errorf("fact already exists: %s", fact.ID)
	}

	clone := cloneFact(fact)
	if clone.Status == "" {
		clone.Status = StatusStaged
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	if clone.LastAccessed.IsZero() {
		clone.LastAccessed = clone.CreatedAt
	}

	g.facts[clone.ID] = clone

	// Update indexes
	g.subjectIndex[clone.SubjectID] = append(g.subjectIndex[clone.SubjectID], clone.ID)
	if clone.IsRelationship() {
		g.adjacency[clone.SubjectID] = append(g.adjacency[clone.SubjectID], clone.ID)
	}

	return nil
}

// GetFact retrieves a copy of the fact by id
func (g *Graph) GetFact(ctx context.Context, id string) (*Fact, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	fact, exists := g.facts[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrFactNotFound, id)
	}

	return cloneFact(fact), nil
}

// FactsAbout returns copies of every fact whose subject is the entity,
// in insertion order.
func (g *Graph) FactsAbout(ctx context.Context, entityID string) ([]*Fact, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	factIDs := g.subjectIndex[entityID]
	results := make([]*Fact, 0, len(factIDs))
	for _, id := range factIDs {
		if fact, exists := g.facts[id]; exists {
			results = append(results, cloneFact(fact))
		}
	}

	return results, nil
}

// TouchFact reinforces the fact: the access counter and timestamp advance
// and a staged fact crossing the promotion threshold becomes confirmed.
// Returns a copy of the post-touch state.
func (g *Graph) TouchFact(ctx context.Context, id string) (*Fact, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	fact, exists := g.facts[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrFactNotFound, id)
	}

	*fact = Touched(*fact, time.Now().UTC())
	return cloneFact(fact), nil
}

// SupersedeFact marks the fact as replaced by newer knowledge
func (g *Graph) SupersedeFact(ctx context.Context, id string) error {
	return g.transitionFact(id, StatusSuperseded)
}

// RetractFact explicitly invalidates the fact
func (g *Graph) RetractFact(ctx context.Context, id string) error {
	return g.transitionFact(id, StatusRetracted)
}

func (g *Graph) transitionFact(id string, to FactStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	fact, exists := g.facts[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrFactNotFound, id)
	}
	if fact.Status.Terminal() {
		return fmt.Errorf("fact %s is already %s", id, fact.Status)
	}

	fact.Status = to
	return nil
}

// FindRelatedEntities walks the directed relationship graph breadth-first
// from the start entity and returns every entity id reachable within
// maxHops edges, the start id included, as a sorted set. Attribute facts
// are not edges. An id referencing an unregistered entity still appears
// in the result but is a dead end: its outgoing edges are not followed.
// An unknown start id or a non-positive hop budget yields an empty set.
func (g *Graph) FindRelatedEntities(ctx context.Context, startID string, maxHops int) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if maxHops <= 0 {
		return []string{}, nil
	}
	if _, exists := g.entities[startID]; !exists {
		return []string{}, nil
	}

	visited := map[string]bool{startID: true}
	frontier := []string{startID}

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		next := make([]string, 0)
		for _, id := range frontier {
			if _, known := g.entities[id]; !known {
				continue
			}
			for _, factID := range g.adjacency[id] {
				fact, exists := g.facts[factID]
				if !exists || fact.ObjectID == "" {
					continue
				}
				if !visited[fact.ObjectID] {
					visited[fact.ObjectID] = true
					next = append(next, fact.ObjectID)
				}
			}
		}
		frontier = next
	}

	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids, nil
}

// RunDecayPass decays every fact's relevance for the time elapsed since
// its last access and returns the number of facts left below the cleanup
// threshold. The sweep marks nothing and deletes nothing: a fact that
// stays below the threshold is counted again on the next pass.
func (g *Graph) RunDecayPass(ctx context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	candidates := 0
	for _, fact := range g.facts {
		*fact = Decayed(*fact, now)
		if CleanupCandidate(*fact) {
			candidates++
		}
	}

	g.logger.WithFields(logrus.Fields{
		"facts":              len(g.facts),
		"cleanup_candidates": candidates,
	}).Debug("Decay pass complete")

	return candidates, nil
}

// RecordInteraction appends the interaction to the bounded session log,
// evicting the oldest record once the cap is reached.
func (g *Graph) RecordInteraction(ctx context.Context, interaction *Interaction) error {
	if interaction == nil {
		return &ValidationError{Field: "interaction", Reason: "must not be nil"}
	}
	if interaction.SessionID == "" {
		return &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if interaction.ID == "" {
		interaction.ID = uuid.New().String()
	}
	clone := cloneInteraction(interaction)
	if clone.Timestamp.IsZero() {
		clone.Timestamp = time.Now().UTC()
	}

	g.interactions = append(g.interactions, clone)
	if len(g.interactions) > g.config.MaxInteractions {
		g.interactions = g.interactions[len(g.interactions)-g.config.MaxInteractions:]
	}

	return nil
}

// RecentInteractions returns copies of the last n interactions in
// chronological order.
func (g *Graph) RecentInteractions(ctx context.Context, n int) ([]*Interaction, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if n <= 0 {
		return []*Interaction{}, nil
	}
	if n > len(g.interactions) {
		n = len(g.interactions)
	}

	results := make([]*Interaction, 0, n)
	for _, interaction := range g.interactions[len(g.interactions)-n:] {
		results = append(results, cloneInteraction(interaction))
	}

	return results, nil
}

// Stats summarizes the graph contents
func (g *Graph) Stats(ctx context.Context) (Stats, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := Stats{
		Entities: len(g.entities),
		Facts:    len(g.facts),
		ByStatus: map[FactStatus]int{
			StatusStaged:     0,
			StatusConfirmed:  0,
			StatusSuperseded: 0,
			StatusRetracted:  0,
		},
		Interactions: len(g.interactions),
	}
	for _, fact := range g.facts {
		stats.ByStatus[fact.Status]++
	}

	return stats, nil
}

// Snapshot exports a deep copy of the whole graph. Entities and facts are
// sorted by id so snapshots of the same state are identical.
func (g *Graph) Snapshot(ctx context.Context) (*GraphSnapshot, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snapshot := &GraphSnapshot{
		Entities:     make([]*Entity, 0, len(g.entities)),
		Facts:        make([]*Fact, 0, len(g.facts)),
		Interactions: make([]*Interaction, 0, len(g.interactions)),
		TakenAt:      time.Now().UTC(),
	}

	for _, entity := range g.entities {
		snapshot.Entities = append(snapshot.Entities, cloneEntity(entity))
	}
	sort.Slice(snapshot.Entities, func(i, j int) bool {
		return snapshot.Entities[i].ID < snapshot.Entities[j].ID
	})

	for _, fact := range g.facts {
		snapshot.Facts = append(snapshot.Facts, cloneFact(fact))
	}
	sort.Slice(snapshot.Facts, func(i, j int) bool {
		return snapshot.Facts[i].ID < snapshot.Facts[j].ID
	})

	for _, interaction := range g.interactions {
		snapshot.Interactions = append(snapshot.Interactions, cloneInteraction(interaction))
	}

	return snapshot, nil
}

// Restore replaces the graph contents with the snapshot and rebuilds all
// indexes from the fact list.
func (g *Graph) Restore(ctx context.Context, snapshot *GraphSnapshot) error {
	if snapshot == nil {
		return &ValidationError{Field: "snapshot", Reason: "must not be nil"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.entities = make(map[string]*Entity, len(snapshot.Entities))
	g.facts = make(map[string]*Fact, len(snapshot.Facts))
	g.subjectIndex = make(map[string][]string)
	g.adjacency = make(map[string][]string)
	g.interactions = make([]*Interaction, 0, len(snapshot.Interactions))

	for _, entity := range snapshot.Entities {
		if entity == nil || entity.ID == "" {
			continue
		}
		g.entities[entity.ID] = cloneEntity(entity)
	}

	for _, fact := range snapshot.Facts {
		if fact == nil || fact.ID == "" || fact.SubjectID == "" {
			continue
		}
		clone := cloneFact(fact)
		g.facts[clone.ID] = clone
		g.subjectIndex[clone.SubjectID] = append(g.subjectIndex[clone.SubjectID], clone.ID)
		if clone.IsRelationship() {
			g.adjacency[clone.SubjectID] = append(g.adjacency[clone.SubjectID], clone.ID)
		}
	}

	for _, interaction := range snapshot.Interactions {
		if interaction == nil {
			continue
		}
		g.interactions = append(g.interactions, cloneInteraction(interaction))
	}
	if len(g.interactions) > g.config.MaxInteractions {
		g.interactions = g.interactions[len(g.interactions)-g.config.MaxInteractions:]
	}

	g.logger.WithFields(logrus.Fields{
		"entities":     len(g.entities),
		"facts":        len(g.facts),
		"interactions": len(g.interactions),
	}).Info("Graph restored from snapshot")

	return nil
}

// Copy helpers: the graph hands out and stores copies only, so internal
// state never escapes to callers.

func cloneEntity(e *Entity) *Entity {
	clone := *e
	if e.Metadata != nil {
		clone.Metadata = make(map[string]Value, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

func cloneFact(f *Fact) *Fact {
	clone := *f
	if f.Value != nil {
		v := *f.Value
		clone.Value = &v
	}
	return &clone
}

func cloneInteraction(in *Interaction) *Interaction {
	clone := *in
	clone.EntitiesMentioned = cloneStrings(in.EntitiesMentioned)
	clone.FactsCreated = cloneStrings(in.FactsCreated)
	clone.FactsAccessed = cloneStrings(in.FactsAccessed)
	return &clone
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
