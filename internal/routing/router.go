// Package routing provides the intent router that decides which
// capability should handle a user message and whether answering it
// needs memory retrieval.
package routing

import (
	"regexp"
	"sort"

	"github.com/sirupsen/logrus"
)

// Capability identifies a specialized handler the orchestrator can invoke
type Capability string

const (
	CapabilityResearch Capability = "research" // Web search, document analysis
	CapabilityWrite    Capability = "write"    // Content creation, editing
	CapabilityCode     Capability = "code"     // Programming, debugging
	CapabilityCreate   Capability = "create"   // Image/media generation
	CapabilityRemember Capability = "remember" // Memory storage/retrieval
	CapabilityReflect  Capability = "reflect"  // Self-analysis, planning
)

// AllCapabilities returns every capability in declaration order; the
// order breaks ties between equally scored capabilities.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityResearch,
		CapabilityWrite,
		CapabilityCode,
		CapabilityCreate,
		CapabilityRemember,
		CapabilityReflect,
	}
}

// Decision is the result of intent analysis
type Decision struct {
	Primary        Capability   `json:"primary_capability"`
	Secondary      []Capability `json:"secondary_capabilities"`
	Confidence     float64      `json:"confidence"`
	IntentSummary  string       `json:"intent_summary"`
	RequiresMemory bool         `json:"requires_memory"`
}

// RouterConfig configures the intent router
type RouterConfig struct {
	// ConfidenceBoost lifts the raw pattern score into a usable
	// confidence value, capped at 1.0.
	ConfidenceBoost float64 `json:"confidence_boost"`
	// MaxSecondary caps how many runner-up capabilities are reported
	MaxSecondary int `json:"max_secondary"`
}

// DefaultRouterConfig returns default configuration
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		ConfidenceBoost: 0.3,
		MaxSecondary:    2,
	}
}

// Pattern-based routing rules (fast path). A capability's score is the
// fraction of its patterns the input matches.
var capabilityPatterns = map[Capability][]string{
	CapabilityResearch: {
		`\b(search|find|look up|research|what is|who is)\b`,
		`\b(latest|news|current|recent)\b`,
	},
	CapabilityWrite: {
		`\b(write|draft|compose|create.*(?:email|doc|post))\b`,
		`\b(edit|revise|rewrite|summarize)\b`,
	},
	CapabilityCode: {
		`\b(code|implement|debug|fix.*(?:bug|error))\b`,
		`\b(function|class|api|test)\b`,
		"```",
	},
	CapabilityCreate: {
		`\b(generate.*image|create.*visual|design)\b`,
		`\b(diagram|chart|illustration)\b`,
	},
	CapabilityRemember: {
		`\b(remember|save|store|note)\b`,
		`\b(don't forget|keep in mind)\b`,
	},
	CapabilityReflect: {
		`\b(plan|think|analyze|strategize)\b`,
		`\b(what should|how should|next steps)\b`,
	},
}

// Inputs that reference past context force memory retrieval regardless
// of the winning capability.
var pastContextPatterns = []string{
	`\b(earlier|before|previously|last time)\b`,
	`\b(we discussed|you said|i mentioned)\b`,
	`\b(continue|resume|pick up where)\b`,
}

var intentSummaries = map[Capability]string{
	CapabilityResearch: "User wants to find or learn information",
	CapabilityWrite:    "User wants to create or edit content",
	CapabilityCode:     "User wants to write or modify code",
	CapabilityCreate:   "User wants to generate visual content",
	CapabilityRemember: "User wants to save information for later",
	CapabilityReflect:  "User wants to plan or analyze",
}

// Router analyzes user input and routes it to the appropriate
// capability using compiled heuristic patterns.
type Router struct {
	patterns map[Capability][]*regexp.Regexp
	pastRefs []*regexp.Regexp
	config   *RouterConfig
	logger   *logrus.Logger
}

// NewRouter creates an intent router with compiled patterns
func NewRouter(config *RouterConfig, logger *logrus.Logger) *Router {
	if config == nil {
		config = DefaultRouterConfig()
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	patterns := make(map[Capability][]*regexp.Regexp, len(capabilityPatterns))
	for capability, raw := range capabilityPatterns {
		compiled := make([]*regexp.Regexp, 0, len(raw))
		for _, p := range raw {
			compiled = append(compiled, regexp.MustCompile(`(?i)`+p))
		}
		patterns[capability] = compiled
	}

	pastRefs := make([]*regexp.Regexp, 0, len(pastContextPatterns))
	for _, p := range pastContextPatterns {
		pastRefs = append(pastRefs, regexp.MustCompile(`(?i)`+p))
	}

	return &Router{
		patterns: patterns,
		pastRefs: pastRefs,
		config:   config,
		logger:   logger,
	}
}

type capabilityScore struct {
	capability Capability
	score      float64
}

// Route scores every capability against the input and returns the
// routing decision: the best capability, up to MaxSecondary runners-up
// that matched anything, a boosted confidence, and whether the request
// needs memory.
func (r *Router) Route(input string) Decision {
	scores := make([]capabilityScore, 0, len(capabilityPatterns))
	for _, capability := range AllCapabilities() {
		scores = append(scores, capabilityScore{
			capability: capability,
			score:      r.scoreCapability(input, capability),
		})
	}

	// Stable sort keeps declaration order between equal scores
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	primary := scores[0]
	secondary := make([]Capability, 0, r.config.MaxSecondary)
	for _, s := range scores[1:] {
		if s.score <= 0 || len(secondary) >= r.config.MaxSecondary {
			break
		}
		secondary = append(secondary, s.capability)
	}

	requiresMemory := primary.capability == CapabilityRemember || r.mentionsPastContext(input)
	for _, capability := range secondary {
		if capability == CapabilityRemember {
			requiresMemory = true
		}
	}

	confidence := primary.score + r.config.ConfidenceBoost
	if confidence > 1.0 {
		confidence = 1.0
	}

	summary, exists := intentSummaries[primary.capability]
	if !exists {
		summary = "Processing user request"
	}

	decision := Decision{
		Primary:        primary.capability,
		Secondary:      secondary,
		Confidence:     confidence,
		IntentSummary:  summary,
		RequiresMemory: requiresMemory,
	}

	r.logger.WithFields(logrus.Fields{
		"capability":      decision.Primary,
		"confidence":      decision.Confidence,
		"requires_memory": decision.RequiresMemory,
	}).Debug("Routed intent")

	return decision
}

// scoreCapability returns the fraction of the capability's patterns
// matched by the input.
func (r *Router) scoreCapability(input string, capability Capability) float64 {
	patterns := r.patterns[capability]
	if len(patterns) == 0 {
		return 0
	}

	matches := 0
	for _, p := range patterns {
		if p.MatchString(input) {
			matches++
		}
	}

	return float64(matches) / float64(len(patterns))
}

// mentionsPastContext reports whether the input references earlier
// conversation history.
func (r *Router) mentionsPastContext(input string) bool {
	for _, p := range r.pastRefs {
		if p.MatchString(input) {
			return true
		}
	}
	return false
}
