package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dev.helix.recall/internal/memory"
	"dev.helix.recall/internal/routing"
)

// writeError maps store errors onto HTTP status codes: validation
// failures become 400, missing records 404, everything else 500.
func (s *Server) writeError(c *gin.Context, err error) {
	var validationErr *memory.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, memory.ErrEntityNotFound), errors.Is(err, memory.ErrFactNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// hopsParam reads the hops query parameter, defaulting to 2
func hopsParam(c *gin.Context) (int, error) {
	return strconv.Atoi(c.DefaultQuery("hops", "2"))
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// CreateEntityRequest represents a request to register an entity
type CreateEntityRequest struct {
	Type        string                  `json:"entity_type" binding:"required"`
	Name        string                  `json:"name" binding:"required"`
	Description string                  `json:"description"`
	Metadata    map[string]memory.Value `json:"metadata"`
}

// handleCreateEntity handles POST /v1/entities
func (s *Server) handleCreateEntity(c *gin.Context) {
	var req CreateEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entity, err := memory.NewEntity(memory.EntityType(req.Type), req.Name, req.Description)
	if err != nil {
		s.writeError(c, err)
		return
	}
	for key, value := range req.Metadata {
		entity.Metadata[key] = value
	}

	if err := s.store.AddEntity(c.Request.Context(), entity); err != nil {
		s.writeError(c, err)
		return
	}
	s.updateGraphGauges(c.Request.Context())

	s.log.WithFields(logrus.Fields{
		"entity_id":   entity.ID,
		"entity_type": entity.Type,
		"name":        entity.Name,
	}).Debug("Entity created")

	c.JSON(http.StatusCreated, entity)
}

// handleGetEntity handles GET /v1/entities/:id
func (s *Server) handleGetEntity(c *gin.Context) {
	entity, err := s.store.GetEntity(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, entity)
}

// EntityFactsResponse lists the facts recorded about one entity
type EntityFactsResponse struct {
	EntityID string         `json:"entity_id"`
	Facts    []*memory.Fact `json:"facts"`
	Count    int            `json:"count"`
}

// handleEntityFacts handles GET /v1/entities/:id/facts
func (s *Server) handleEntityFacts(c *gin.Context) {
	entityID := c.Param("id")

	facts, err := s.store.FactsAbout(c.Request.Context(), entityID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, EntityFactsResponse{
		EntityID: entityID,
		Facts:    facts,
		Count:    len(facts),
	})
}

// RelatedEntitiesResponse carries the result of a graph traversal
type RelatedEntitiesResponse struct {
	EntityID string   `json:"entity_id"`
	Hops     int      `json:"hops"`
	Related  []string `json:"related"`
	Count    int      `json:"count"`
}

// handleRelatedEntities handles GET /v1/entities/:id/related
func (s *Server) handleRelatedEntities(c *gin.Context) {
	entityID := c.Param("id")

	hops, err := hopsParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hops parameter: " + err.Error()})
		return
	}

	start := time.Now()
	related, err := s.store.FindRelatedEntities(c.Request.Context(), entityID, hops)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.observeTraversal(start)

	c.JSON(http.StatusOK, RelatedEntitiesResponse{
		EntityID: entityID,
		Hops:     hops,
		Related:  related,
		Count:    len(related),
	})
}

// CreateFactRequest represents a request to record a fact. A fact with an
// object_id is a relationship edge; one with a value is an attribute.
type CreateFactRequest struct {
	SubjectID  string        `json:"subject_id" binding:"required"`
	Predicate  string        `json:"predicate" binding:"required"`
	ObjectID   string        `json:"object_id"`
	Value      *memory.Value `json:"value"`
	Confidence *float64      `json:"confidence"`
	Source     string        `json:"source"`
}

// handleCreateFact handles POST /v1/facts
func (s *Server) handleCreateFact(c *gin.Context) {
	var req CreateFactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := make([]memory.FactOption, 0, 4)
	if req.ObjectID != "" {
		opts = append(opts, memory.WithObject(req.ObjectID))
	}
	if req.Value != nil {
		opts = append(opts, memory.WithValue(*req.Value))
	}
	if req.Confidence != nil {
		opts = append(opts, memory.WithConfidence(*req.Confidence))
	}
	if req.Source != "" {
		opts = append(opts, memory.WithSource(req.Source))
	}

	fact, err := memory.NewFact(req.SubjectID, req.Predicate, opts...)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.store.AddFact(c.Request.Context(), fact); err != nil {
		s.writeError(c, err)
		return
	}
	s.updateGraphGauges(c.Request.Context())

	s.log.WithFields(logrus.Fields{
		"fact_id":    fact.ID,
		"subject_id": fact.SubjectID,
		"predicate":  fact.Predicate,
	}).Debug("Fact created")

	c.JSON(http.StatusCreated, fact)
}

// handleGetFact handles GET /v1/facts/:id
func (s *Server) handleGetFact(c *gin.Context) {
	fact, err := s.store.GetFact(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, fact)
}

// handleTouchFact handles POST /v1/facts/:id/touch
func (s *Server) handleTouchFact(c *gin.Context) {
	fact, err := s.store.TouchFact(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if s.collector != nil {
		s.collector.FactTouched()
	}

	c.JSON(http.StatusOK, fact)
}

// DecayResponse reports the outcome of a relevance decay sweep
type DecayResponse struct {
	CleanupCandidates int `json:"cleanup_candidates"`
}

// handleDecay handles POST /v1/decay
func (s *Server) handleDecay(c *gin.Context) {
	candidates, err := s.store.RunDecayPass(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if s.collector != nil {
		s.collector.DecayPassCompleted(candidates)
	}

	c.JSON(http.StatusOK, DecayResponse{CleanupCandidates: candidates})
}

// RecordInteractionRequest represents one user/agent exchange to record
type RecordInteractionRequest struct {
	SessionID         string   `json:"session_id" binding:"required"`
	UserInput         string   `json:"user_input"`
	SystemResponse    string   `json:"system_response"`
	EntitiesMentioned []string `json:"entities_mentioned"`
	FactsCreated      []string `json:"facts_created"`
	FactsAccessed     []string `json:"facts_accessed"`
}

// InteractionResponse returns the stored interaction, the routing decision
// for its user input, and how many accessed facts were reinforced.
type InteractionResponse struct {
	Interaction  *memory.Interaction `json:"interaction"`
	Routing      routing.Decision    `json:"routing"`
	FactsTouched int                 `json:"facts_touched"`
}

// handleRecordInteraction handles POST /v1/interactions. Recording an
// exchange reinforces every fact it accessed and routes the user input
// through the intent router so the caller learns which capabilities the
// exchange asked for.
func (s *Server) handleRecordInteraction(c *gin.Context) {
	var req RecordInteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	interaction, err := memory.NewInteraction(req.SessionID, req.UserInput, req.SystemResponse)
	if err != nil {
		s.writeError(c, err)
		return
	}
	interaction.EntitiesMentioned = req.EntitiesMentioned
	interaction.FactsCreated = req.FactsCreated
	interaction.FactsAccessed = req.FactsAccessed

	if err := s.store.RecordInteraction(c.Request.Context(), interaction); err != nil {
		s.writeError(c, err)
		return
	}

	touched := 0
	for _, factID := range req.FactsAccessed {
		if _, err := s.store.TouchFact(c.Request.Context(), factID); err != nil {
			s.log.WithError(err).WithField("fact_id", factID).Warn("Skipping reinforcement of unknown fact")
			continue
		}
		touched++
		if s.collector != nil {
			s.collector.FactTouched()
		}
	}

	decision := s.intent.Route(req.UserInput)

	c.JSON(http.StatusCreated, InteractionResponse{
		Interaction:  interaction,
		Routing:      decision,
		FactsTouched: touched,
	})
}

// ContextResponse carries an assembled memory context and its rendering
type ContextResponse struct {
	EntityID        string                `json:"entity_id"`
	Hops            int                   `json:"hops"`
	Context         *memory.MemoryContext `json:"context"`
	Prompt          string                `json:"prompt"`
	EstimatedTokens int                   `json:"estimated_tokens"`
}

// handleContext handles GET /v1/context: traverse out from the given
// entity, assemble a context from everything reachable, and return the
// rendered prompt text.
func (s *Server) handleContext(c *gin.Context) {
	entityID := c.Query("entity")
	if entityID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entity query parameter is required"})
		return
	}

	hops, err := hopsParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hops parameter: " + err.Error()})
		return
	}

	start := time.Now()
	related, err := s.store.FindRelatedEntities(c.Request.Context(), entityID, hops)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.observeTraversal(start)

	memoryContext, err := memory.BuildContext(c.Request.Context(), s.store, related, nil)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ContextResponse{
		EntityID:        entityID,
		Hops:            hops,
		Context:         memoryContext,
		Prompt:          memoryContext.PromptText(),
		EstimatedTokens: memoryContext.EstimateTokens(),
	})
}

// handleStats handles GET /v1/stats
func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if s.collector != nil {
		s.collector.SetGraphSize(stats.Entities, stats.Facts)
	}

	c.JSON(http.StatusOK, stats)
}
