package advisory

import (
	"errors"
	"time"
)

// ErrUnavailable is returned by the clients when the remote advisory
// service cannot be reached or answers with a non-2xx status. Callers
// treat it as "no advice", never as a failed save.
var ErrUnavailable = errors.New("advisory service unavailable")

// Suggested actions a continuation detector may return.
const (
	ActionUpdate       = "update"
	ActionNewVariation = "new_variation"
	ActionMerge        = "merge"
	ActionNew          = "new"
)

// Turn is one message of the conversation being evaluated.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Candidate is a compact view of an existing idea offered to the detector
// for comparison. Content is truncated by the caller, not here.
type Candidate struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DetectRequest struct {
	UserID       string      `json:"user_id"`
	Title        string      `json:"title"`
	Content      string      `json:"content"`
	Conversation []Turn      `json:"conversation,omitempty"`
	Candidates   []Candidate `json:"candidates,omitempty"`
	// TimeThresholdHours tells the detector how stale a candidate may be
	// before recency should count against a continuation verdict.
	TimeThresholdHours int `json:"time_threshold_hours,omitempty"`
}

// Continuation is the detector's verdict: which idea the new content
// continues, how sure it is, and what it thinks should happen.
type Continuation struct {
	RelatedIdeaID   string  `json:"related_idea_id"`
	Confidence      float64 `json:"confidence"`
	SuggestedAction string  `json:"suggested_action"`
	Summary         string  `json:"summary"`
}

type MergeRequest struct {
	TargetTitle   string `json:"target_title"`
	TargetContent string `json:"target_content"`
	DonorTitle    string `json:"donor_title"`
	DonorContent  string `json:"donor_content"`
}

// MergeResult carries merged content back to the caller. Fallback is set
// when the merger was unreachable and the content is a plain concatenation;
// Confidence is nil in that case.
type MergeResult struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Summary    string   `json:"summary"`
	Confidence *float64 `json:"confidence,omitempty"`
	Fallback   bool     `json:"fallback,omitempty"`
}
