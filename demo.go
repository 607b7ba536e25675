package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"dev.helix.recall/internal/memory"
)

// SessionDemo drives a scripted agent session against the memory graph:
// entity ingestion, graph construction with promotion through reuse,
// multi-hop context retrieval, and temporal decay.
type SessionDemo struct {
	graph *memory.Graph

	joshua  *memory.Entity
	jacq    *memory.Entity
	python  *memory.Entity
	lancedb *memory.Entity
	facts   []*memory.Fact
}

// NewSessionDemo creates the demo with a fresh in-process graph
func NewSessionDemo() *SessionDemo {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	return &SessionDemo{
		graph: memory.NewGraph(memory.DefaultConfig(), logger),
	}
}

// Run executes the full session walkthrough
func (d *SessionDemo) Run() {
	ctx := context.Background()

	d.demoIngestion(ctx)
	d.demoGraphConstruction(ctx)
	d.demoContextRetrieval(ctx)
	d.demoDecay(ctx)
}

// demoIngestion learns the session's entities
func (d *SessionDemo) demoIngestion(ctx context.Context) {
	fmt.Println("\n1. Semantic Ingestion")
	fmt.Println("User: \"I'm architecting JACQ using Python and LanceDB.\"")

	d.joshua = d.learnEntity(ctx, memory.EntityPerson, "Joshua", "")
	d.jacq = d.learnEntity(ctx, memory.EntityProject, "JACQ", "Cognitive OS")
	d.python = d.learnEntity(ctx, memory.EntityConcept, "Python", "")
	d.lancedb = d.learnEntity(ctx, memory.EntityProject, "LanceDB", "Vector store")
}

func (d *SessionDemo) learnEntity(ctx context.Context, entityType memory.EntityType, name, description string) *memory.Entity {
	entity, err := memory.NewEntity(entityType, name, description)
	if err != nil {
		log.Fatalf("Failed to create entity %s: %v", name, err)
	}
	if err := d.graph.AddEntity(ctx, entity); err != nil {
		log.Fatalf("Failed to add entity %s: %v", name, err)
	}
	fmt.Printf("  -> Learned entity: %s (%s)\n", entity.Name, entity.Type)
	return entity
}

// demoGraphConstruction links the entities and promotes the links by
// accessing them repeatedly.
func (d *SessionDemo) demoGraphConstruction(ctx context.Context) {
	fmt.Println("\n2. Graph Construction")

	d.facts = []*memory.Fact{
		d.linkEntities(ctx, d.joshua.ID, "architects", d.jacq.ID),
		d.linkEntities(ctx, d.jacq.ID, "built_with", d.python.ID),
		d.linkEntities(ctx, d.jacq.ID, "uses_database", d.lancedb.ID),
	}

	for i, fact := range d.facts {
		var touched *memory.Fact
		var err error
		for j := 0; j < memory.PromotionThreshold; j++ {
			touched, err = d.graph.TouchFact(ctx, fact.ID)
			if err != nil {
				log.Fatalf("Failed to touch fact %s: %v", fact.Predicate, err)
			}
		}
		d.facts[i] = touched
	}

	fmt.Printf("  -> Dependence graph: %s -> %s -> [%s, %s]\n",
		d.joshua.Name, d.jacq.Name, d.python.Name, d.lancedb.Name)
	fmt.Printf("  -> All %d relationships %s after %d accesses each\n",
		len(d.facts), d.facts[0].Status, memory.PromotionThreshold)
}

func (d *SessionDemo) linkEntities(ctx context.Context, subjectID, predicate, objectID string) *memory.Fact {
	fact, err := memory.NewFact(subjectID, predicate, memory.WithObject(objectID))
	if err != nil {
		log.Fatalf("Failed to create fact %s: %v", predicate, err)
	}
	if err := d.graph.AddFact(ctx, fact); err != nil {
		log.Fatalf("Failed to add fact %s: %v", predicate, err)
	}
	return fact
}

// demoContextRetrieval expands two hops out from Joshua and renders the
// assembled context the way it would be injected into a prompt.
func (d *SessionDemo) demoContextRetrieval(ctx context.Context) {
	fmt.Println("\n3. Context Retrieval (2-Hop Expansion)")
	fmt.Println("User asks about \"Joshua\"")
	fmt.Println("System expanding context...")

	relatedIDs, err := d.graph.FindRelatedEntities(ctx, d.joshua.ID, 2)
	if err != nil {
		log.Fatalf("Traversal failed: %v", err)
	}

	memoryContext, err := memory.BuildContext(ctx, d.graph, relatedIDs, nil)
	if err != nil {
		log.Fatalf("Context assembly failed: %v", err)
	}

	fmt.Println("\n" + strings.Repeat("-", 40))
	fmt.Println(memoryContext.PromptText())
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("Estimated context tokens: %d\n", memoryContext.EstimateTokens())
}

// demoDecay shows relevance draining on an idle fact until it becomes a
// cleanup candidate.
func (d *SessionDemo) demoDecay(ctx context.Context) {
	fmt.Println("\n4. Temporal Decay Simulation")
	fmt.Println("Fast-forwarding 18 idle weeks...")

	stale, err := memory.NewFact(d.joshua.ID, "currently_reading",
		memory.WithValue(memory.StringValue("Hacker News")),
		memory.WithStatus(memory.StatusConfirmed))
	if err != nil {
		log.Fatalf("Failed to create fact: %v", err)
	}
	fmt.Printf("  Fact %q relevance: %.2f\n", stale.Predicate, stale.Relevance)

	// Backdate the access clock before the store clones the fact
	stale.LastAccessed = time.Now().UTC().Add(-18 * 7 * 24 * time.Hour)
	if err := d.graph.AddFact(ctx, stale); err != nil {
		log.Fatalf("Failed to add fact: %v", err)
	}

	candidates, err := d.graph.RunDecayPass(ctx)
	if err != nil {
		log.Fatalf("Decay pass failed: %v", err)
	}

	decayed, err := d.graph.GetFact(ctx, stale.ID)
	if err != nil {
		log.Fatalf("Failed to fetch fact: %v", err)
	}

	fmt.Println("  ...decay pass complete.")
	fmt.Printf("  Fact %q new relevance: %.2f\n", decayed.Predicate, decayed.Relevance)
	if memory.CleanupCandidate(*decayed) {
		fmt.Printf("  Result: marked for cleanup, %d candidate(s) below %.2f\n",
			candidates, memory.CleanupThreshold)
	}
}

func main() {
	fmt.Println("Recall Memory Graph Demo")
	fmt.Println(strings.Repeat("=", 60))

	demo := NewSessionDemo()
	demo.Run()

	fmt.Println("\nDemo completed.")
	fmt.Println("\nTo start the daemon:")
	fmt.Println("  go run cmd/recall/main.go")
	fmt.Println("\nTo explore the API:")
	fmt.Println("  curl http://localhost:7080/v1/stats")
}
