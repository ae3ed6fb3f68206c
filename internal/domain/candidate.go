package domain

import "time"

// CandidateStatus enumerates the persisted candidate states. The locked state
// is transient and represented by LockedAt, not by a status value.
type CandidateStatus string

const (
	CandidateNew     CandidateStatus = "new"
	CandidateHasCard CandidateStatus = "hasCard"
)

// Candidate is a proposed taxonomic name awaiting content generation.
type Candidate struct {
	ID        string
	Latin     string
	Status    CandidateStatus
	LockedAt  *time.Time
	CardRef   string
	UpdatedAt time.Time
}

// Locked reports whether an orchestrator run currently owns the candidate.
func (c Candidate) Locked() bool {
	return c.LockedAt != nil
}

// PickedCandidate is what pickAndLock hands to the orchestrator.
type PickedCandidate struct {
	ID    string
	Latin string
}

// CardRef builds the reference stored on a candidate once its card exists.
func CardRef(slug string) string {
	return "cards/" + slug
}
