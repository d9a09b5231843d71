package store

import (
	"errors"
	"time"
)

// ErrCorruptGraph is returned when a branch operation would create (or has
// detected) a cycle in the branched_from chain. It is a fatal integrity
// error, never retried.
var ErrCorruptGraph = errors.New("corrupt branch graph: cycle detected")

// Visibility values for Idea.
const (
	VisibilityPrivate = "private"
	VisibilityShared  = "shared"
	VisibilityPublic  = "public"
)

// History event types.
const (
	EventInitialCreation  = "initial_creation"
	EventRefinement       = "refinement"
	EventContentExpansion = "content_expansion"
	EventMajorRevision    = "major_revision"
	EventContinuation     = "continuation"
	EventBranchCreated    = "branch_created"
)

// Contribution types.
const (
	ContributionOriginal = "original"
	ContributionMerge    = "merge"
	ContributionEdit     = "edit"
)

// Donor disposition policies after a merge.
const (
	DispositionArchive = "archive"
	DispositionDelete  = "delete"
	DispositionKeep    = "keep"
)

type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Idea struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Content          string    `json:"content"`
	Category         string    `json:"category"`
	OwnerID          string    `json:"ownerId"`
	DevelopmentCount int       `json:"developmentCount"`
	Pinned           bool      `json:"pinned"`
	Archived         bool      `json:"archived"`
	Visibility       string    `json:"visibility"`
	BranchedFromID   *string   `json:"branchedFromId"`
	BranchNote       string    `json:"branchNote,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type HistoryEntry struct {
	ID               int64     `json:"id"`
	IdeaID           string    `json:"ideaId"`
	Actor            string    `json:"actor"`
	EventType        string    `json:"eventType"`
	PreviousTitle    string    `json:"previousTitle,omitempty"`
	NewTitle         string    `json:"newTitle"`
	PreviousContent  string    `json:"previousContent,omitempty"`
	NewContent       string    `json:"newContent"`
	PreviousCategory string    `json:"previousCategory,omitempty"`
	NewCategory      string    `json:"newCategory"`
	ChangeSummary    string    `json:"changeSummary,omitempty"`
	ConfidenceScore  *float64  `json:"confidenceScore"`
	CreatedAt        time.Time `json:"createdAt"`
}

// HistoryStats summarizes an idea's development trail.
type HistoryStats struct {
	EntryCount        int      `json:"entryCount"`
	SpanDays          int      `json:"spanDays"`
	AverageConfidence *float64 `json:"averageConfidence"`
}

type Contributor struct {
	IdeaID           string         `json:"ideaId"`
	UserID           string         `json:"userId"`
	DisplayName      string         `json:"displayName"`
	ContributionType string         `json:"contributionType"`
	ContributedAt    time.Time      `json:"contributedAt"`
	Details          map[string]any `json:"details,omitempty"`
}

type ShareLink struct {
	Token          string     `json:"token"`
	IdeaID         string     `json:"ideaId"`
	CreatedBy      string     `json:"createdBy"`
	PasswordHash   *string    `json:"-"`
	ExpiresAt      *time.Time `json:"expiresAt"`
	AccessCount    int        `json:"accessCount"`
	LastAccessedAt *time.Time `json:"lastAccessedAt"`
	CreatedAt      time.Time  `json:"createdAt"`
	RevokedAt      *time.Time `json:"revokedAt"`
}

// IdeaMutation describes a content-mutating update applied under the idea's
// row lock. The previous_* history snapshot is taken from the locked row,
// not from the caller.
type IdeaMutation struct {
	Title         string
	Content       string
	Category      string
	ActorID       string
	EventType     string
	ChangeSummary string
	Confidence    *float64
	RecordEdit    bool // actor is not the owner; upsert an edit contributor row
}

// BranchSpec creates a new idea forked from a parent.
type BranchSpec struct {
	ParentID      string
	Child         Idea
	ChangeSummary string
}

// MergeSpec folds a donor idea into a target idea.
type MergeSpec struct {
	TargetID      string
	DonorID       string
	MergedTitle   string
	MergedContent string
	ActorID       string
	ChangeSummary string
	Confidence    *float64
	Disposition   string
}
