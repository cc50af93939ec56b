package research

import (
	"time"

	"github.com/google/uuid"
)

// Citation attributes a claim in the report to a stored source.
type Citation struct {
	// SourceID references an EvidenceItem in the session store.
	SourceID string `json:"source_id" jsonschema:"title=source_id,description=The source_id of the evidence item backing this claim." validate:"required"`
	// Claim is the statement the source supports.
	Claim string `json:"claim,omitempty" jsonschema:"title=claim,description=The claim the source supports."`
}

// Draft is the accumulating report, versioned by iteration.
type Draft struct {
	// Version increments with every synthesis pass.
	Version int `json:"version"`
	// Report is the markdown report text.
	Report string `json:"report"`
	// Citations map claims to source IDs.
	Citations []Citation `json:"citations,omitempty"`
}

// GapAnalysis is the synthesizer's coverage assessment. It drives the loop
// decision: gap-fill queries are planned from MissingAspects while Continue
// holds.
type GapAnalysis struct {
	CoveredAspects []string `json:"covered_aspects,omitempty"`
	MissingAspects []string `json:"missing_aspects,omitempty"`
	Continue       bool     `json:"continue"`
}

// Status of a finished session.
type Status string

const (
	StatusCompleted     Status = "completed"
	StatusFailedPartial Status = "failed-partial"
)

// Result is the session outcome. Even failed sessions carry whatever
// partial report and evidence had accumulated.
type Result struct {
	Topic      string         `json:"topic"`
	Report     string         `json:"report,omitempty"`
	Citations  []Citation     `json:"citations,omitempty"`
	Status     Status         `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	Iterations int            `json:"iterations"`
	Evidence   []EvidenceItem `json:"evidence,omitempty"`
}

// SessionState aggregates everything one session accumulates. It is owned
// and mutated by the Orchestrator alone and passed to collaborators by
// reference.
type SessionState struct {
	// ID identifies the session.
	ID string
	// Topic is the immutable root objective.
	Topic string
	// Queries are all queries issued so far, in issue order.
	Queries []Query
	// Store holds deduplicated evidence.
	Store *EvidenceStore
	// Draft is the current report draft, nil before the first synthesis.
	Draft *Draft
	// Iteration is the current loop round, 1-based.
	Iteration int
	// Reason records why the session terminated.
	Reason    string
	StartedAt time.Time
}

func newSessionState(topic string) *SessionState {
	return &SessionState{
		ID:        uuid.NewString(),
		Topic:     topic,
		Store:     NewEvidenceStore(),
		Iteration: 1,
		StartedAt: time.Now(),
	}
}
