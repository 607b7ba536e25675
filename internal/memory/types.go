// Package memory implements the entity-fact memory graph that gives an
// agent persistent recall across sessions: typed entities, facts that are
// staged until they prove themselves through reuse, relevance decay for
// idle knowledge, and bounded multi-hop traversal around any entity.
package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EntityType categorizes the nodes of the memory graph
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityProject      EntityType = "project"
	EntityConcept      EntityType = "concept"
	EntityDecision     EntityType = "decision"
	EntityPreference   EntityType = "preference"
	EntityFile         EntityType = "file"
	EntityConversation EntityType = "conversation"
)

// Valid reports whether t is a recognized entity type
func (t EntityType) Valid() bool {
	switch t {
	case EntityPerson, EntityProject, EntityConcept, EntityDecision,
		EntityPreference, EntityFile, EntityConversation:
		return true
	}
	return false
}

// FactStatus is the lifecycle state of a fact
type FactStatus string

const (
	StatusStaged     FactStatus = "staged"     // Newly learned, not yet validated
	StatusConfirmed  FactStatus = "confirmed"  // Validated through repeated access
	StatusSuperseded FactStatus = "superseded" // Replaced by a newer fact
	StatusRetracted  FactStatus = "retracted"  // Explicitly invalidated
)

// Valid reports whether s is a recognized fact status
func (s FactStatus) Valid() bool {
	switch s {
	case StatusStaged, StatusConfirmed, StatusSuperseded, StatusRetracted:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions
func (s FactStatus) Terminal() bool {
	return s == StatusSuperseded || s == StatusRetracted
}

// Entity is a node in the memory graph: a person, project, concept,
// decision, preference, file, or conversation the agent remembers.
type Entity struct {
	ID          string           `json:"id"`
	Type        EntityType       `json:"entity_type"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Metadata    map[string]Value `json:"metadata,omitempty"`
}

// NewEntity creates an entity with a fresh id and current timestamps
func NewEntity(entityType EntityType, name, description string) (*Entity, error) {
	if !entityType.Valid() {
		return nil, &ValidationError{Field: "entity_type", Reason: "unrecognized type: " + string(entityType)}
	}
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}

	now := time.Now().UTC()
	return &Entity{
		ID:          uuid.New().String(),
		Type:        entityType,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    make(map[string]Value),
	}, nil
}

// Equal reports identity equality: two entities are the same iff their
// ids match, regardless of every other field.
func (e *Entity) Equal(other *Entity) bool {
	return other != nil && e.ID == other.ID
}

// Fact is an edge or attribute in the memory graph. A fact with an
// object reference is a relationship (subject → predicate → object);
// a fact with a value payload is an attribute of its subject.
type Fact struct {
	ID        string `json:"id"`
	SubjectID string `json:"subject_id"`
	Predicate string `json:"predicate"`
	ObjectID  string `json:"object_id,omitempty"`
	Value     *Value `json:"value,omitempty"`

	Status      FactStatus `json:"status"`
	Confidence  float64    `json:"confidence"`
	Relevance   float64    `json:"relevance"`
	AccessCount int        `json:"access_count"`

	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	Source       string    `json:"source,omitempty"`
}

// FactOption customizes a fact at construction time
type FactOption func(*Fact)

// WithObject makes the fact a relationship pointing at the given entity
func WithObject(objectID string) FactOption {
	return func(f *Fact) {
		f.ObjectID = objectID
	}
}

// WithValue makes the fact an attribute carrying the given payload
func WithValue(v Value) FactOption {
	return func(f *Fact) {
		f.Value = &v
	}
}

// WithConfidence overrides the default confidence of 0.5
func WithConfidence(confidence float64) FactOption {
	return func(f *Fact) {
		f.Confidence = confidence
	}
}

// WithStatus overrides the initial staged status
func WithStatus(status FactStatus) FactOption {
	return func(f *Fact) {
		f.Status = status
	}
}

// WithSource records where the fact was learned
func WithSource(source string) FactOption {
	return func(f *Fact) {
		f.Source = source
	}
}

// NewFact creates a staged fact about the given subject with a fresh id,
// full relevance, and a zero access count.
func NewFact(subjectID, predicate string, opts ...FactOption) (*Fact, error) {
	if subjectID == "" {
		return nil, &ValidationError{Field: "subject_id", Reason: "must not be empty"}
	}
	if predicate == "" {
		return nil, &ValidationError{Field: "predicate", Reason: "must not be empty"}
	}

	now := time.Now().UTC()
	f := &Fact{
		ID:           uuid.New().String(),
		SubjectID:    subjectID,
		Predicate:    predicate,
		Status:       StatusStaged,
		Confidence:   DefaultConfidence,
		Relevance:    1.0,
		AccessCount:  0,
		CreatedAt:    now,
		LastAccessed: now,
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.Confidence < 0.0 || f.Confidence > 1.0 {
		return nil, &ValidationError{Field: "confidence", Reason: "must be within [0.0, 1.0]"}
	}
	if !f.Status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: "unrecognized status: " + string(f.Status)}
	}

	return f, nil
}

// IsRelationship reports whether the fact links two entities
func (f *Fact) IsRelationship() bool {
	return f.ObjectID != ""
}

// IsAttribute reports whether the fact carries a value payload for its
// subject rather than a link to another entity.
func (f *Fact) IsAttribute() bool {
	return f.Value != nil && f.ObjectID == ""
}

// Interaction records one user↔agent exchange. Interactions reinforce
// the facts they touch and surface in assembled context as recent history.
type Interaction struct {
	ID                string    `json:"id"`
	SessionID         string    `json:"session_id"`
	Timestamp         time.Time `json:"timestamp"`
	UserInput         string    `json:"user_input"`
	SystemResponse    string    `json:"system_response"`
	EntitiesMentioned []string  `json:"entities_mentioned,omitempty"`
	FactsCreated      []string  `json:"facts_created,omitempty"`
	FactsAccessed     []string  `json:"facts_accessed,omitempty"`
}

// NewInteraction creates an interaction record with a fresh id and timestamp
func NewInteraction(sessionID, userInput, systemResponse string) (*Interaction, error) {
	if sessionID == "" {
		return nil, &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}

	return &Interaction{
		ID:             uuid.New().String(),
		SessionID:      sessionID,
		Timestamp:      time.Now().UTC(),
		UserInput:      userInput,
		SystemResponse: systemResponse,
	}, nil
}

// Store defines the operations the memory graph offers its collaborators
type Store interface {
	// Entity operations
	AddEntity(ctx context.Context, entity *Entity) error
	GetEntity(ctx context.Context, id string) (*Entity, error)
	EntitiesByType(ctx context.Context, entityType EntityType) ([]*Entity, error)

	// Fact operations
	AddFact(ctx context.Context, fact *Fact) error
	GetFact(ctx context.Context, id string) (*Fact, error)
	FactsAbout(ctx context.Context, entityID string) ([]*Fact, error)
	TouchFact(ctx context.Context, id string) (*Fact, error)
	SupersedeFact(ctx context.Context, id string) error
	RetractFact(ctx context.Context, id string) error

	// Traversal and lifecycle
	FindRelatedEntities(ctx context.Context, startID string, maxHops int) ([]string, error)
	RunDecayPass(ctx context.Context) (int, error)

	// Interaction log
	RecordInteraction(ctx context.Context, interaction *Interaction) error
	RecentInteractions(ctx context.Context, n int) ([]*Interaction, error)

	// Introspection and export
	Stats(ctx context.Context) (Stats, error)
	Snapshot(ctx context.Context) (*GraphSnapshot, error)
	Restore(ctx context.Context, snapshot *GraphSnapshot) error
}

// Stats summarizes the current graph contents
type Stats struct {
	Entities     int                `json:"entities"`
	Facts        int                `json:"facts"`
	ByStatus     map[FactStatus]int `json:"facts_by_status"`
	Interactions int                `json:"interactions"`
}

// GraphSnapshot is a deep-copied export of the whole graph, consumed by
// the persistence layer and by Restore.
type GraphSnapshot struct {
	Entities     []*Entity      `json:"entities"`
	Facts        []*Fact        `json:"facts"`
	Interactions []*Interaction `json:"interactions"`
	TakenAt      time.Time      `json:"taken_at"`
}

// Config configures a Graph instance
type Config struct {
	// MaxInteractions caps the in-process interaction log; the oldest
	// record is evicted once the cap is reached.
	MaxInteractions int `json:"max_interactions" yaml:"max_interactions"`
}

// DefaultConfig returns the default graph configuration
func DefaultConfig() Config {
	return Config{
		MaxInteractions: 100,
	}
}
