package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"poppy/api/internal/advisory"
	"poppy/api/internal/config"
	"poppy/api/internal/store"
)

type fakeStore struct {
	ensureUserFn          func(context.Context, string, string) (store.User, error)
	getIdeaFn             func(context.Context, string) (store.Idea, error)
	listIdeasFn           func(context.Context, string, bool) ([]store.Idea, error)
	createIdeaFn          func(context.Context, store.Idea, store.HistoryEntry) (store.Idea, error)
	updateIdeaFn          func(context.Context, string, store.IdeaMutation) (store.Idea, error)
	branchIdeaFn          func(context.Context, store.BranchSpec) (store.Idea, error)
	setBranchParentFn     func(context.Context, string, string, string, string) (store.Idea, error)
	mergeIdeasFn          func(context.Context, store.MergeSpec) (store.Idea, error)
	setIdeaDispositionFn  func(context.Context, string, *bool, *bool) (store.Idea, error)
	deleteIdeaFn          func(context.Context, string) error
	listHistoryFn         func(context.Context, string) ([]store.HistoryEntry, error)
	historyStatsFn        func(context.Context, string) (store.HistoryStats, error)
	listContributorsFn    func(context.Context, string) ([]store.Contributor, error)
	listChildrenFn        func(context.Context, string) ([]store.Idea, error)
	ancestorChainFn       func(context.Context, string) ([]store.Idea, error)
	createShareLinkFn     func(context.Context, store.ShareLink) error
	getShareLinkFn        func(context.Context, string) (store.ShareLink, error)
	revokeShareLinkFn     func(context.Context, string, string) (bool, error)
	recordShareAccessFn   func(context.Context, string) error
}

func (f *fakeStore) EnsureUser(ctx context.Context, userID, displayName string) (store.User, error) {
	if f.ensureUserFn != nil {
		return f.ensureUserFn(ctx, userID, displayName)
	}
	return store.User{ID: userID, DisplayName: displayName}, nil
}
func (f *fakeStore) GetIdea(ctx context.Context, ideaID string) (store.Idea, error) {
	if f.getIdeaFn != nil {
		return f.getIdeaFn(ctx, ideaID)
	}
	return store.Idea{}, sql.ErrNoRows
}
func (f *fakeStore) ListIdeas(ctx context.Context, ownerID string, includeArchived bool) ([]store.Idea, error) {
	if f.listIdeasFn != nil {
		return f.listIdeasFn(ctx, ownerID, includeArchived)
	}
	return nil, nil
}
func (f *fakeStore) CreateIdea(ctx context.Context, idea store.Idea, entry store.HistoryEntry) (store.Idea, error) {
	if f.createIdeaFn != nil {
		return f.createIdeaFn(ctx, idea, entry)
	}
	return idea, nil
}
func (f *fakeStore) UpdateIdea(ctx context.Context, ideaID string, m store.IdeaMutation) (store.Idea, error) {
	if f.updateIdeaFn != nil {
		return f.updateIdeaFn(ctx, ideaID, m)
	}
	return store.Idea{}, sql.ErrNoRows
}
func (f *fakeStore) BranchIdea(ctx context.Context, spec store.BranchSpec) (store.Idea, error) {
	if f.branchIdeaFn != nil {
		return f.branchIdeaFn(ctx, spec)
	}
	return spec.Child, nil
}
func (f *fakeStore) SetBranchParent(ctx context.Context, childID, parentID, note, actorID string) (store.Idea, error) {
	if f.setBranchParentFn != nil {
		return f.setBranchParentFn(ctx, childID, parentID, note, actorID)
	}
	return store.Idea{}, sql.ErrNoRows
}
func (f *fakeStore) MergeIdeas(ctx context.Context, spec store.MergeSpec) (store.Idea, error) {
	if f.mergeIdeasFn != nil {
		return f.mergeIdeasFn(ctx, spec)
	}
	return store.Idea{}, sql.ErrNoRows
}
func (f *fakeStore) SetIdeaDisposition(ctx context.Context, ideaID string, pinned, archived *bool) (store.Idea, error) {
	if f.setIdeaDispositionFn != nil {
		return f.setIdeaDispositionFn(ctx, ideaID, pinned, archived)
	}
	return store.Idea{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteIdea(ctx context.Context, ideaID string) error {
	if f.deleteIdeaFn != nil {
		return f.deleteIdeaFn(ctx, ideaID)
	}
	return nil
}
func (f *fakeStore) ListHistory(ctx context.Context, ideaID string) ([]store.HistoryEntry, error) {
	if f.listHistoryFn != nil {
		return f.listHistoryFn(ctx, ideaID)
	}
	return nil, nil
}
func (f *fakeStore) HistoryStats(ctx context.Context, ideaID string) (store.HistoryStats, error) {
	if f.historyStatsFn != nil {
		return f.historyStatsFn(ctx, ideaID)
	}
	return store.HistoryStats{}, nil
}
func (f *fakeStore) ListContributors(ctx context.Context, ideaID string) ([]store.Contributor, error) {
	if f.listContributorsFn != nil {
		return f.listContributorsFn(ctx, ideaID)
	}
	return nil, nil
}
func (f *fakeStore) ListChildren(ctx context.Context, ideaID string) ([]store.Idea, error) {
	if f.listChildrenFn != nil {
		return f.listChildrenFn(ctx, ideaID)
	}
	return nil, nil
}
func (f *fakeStore) AncestorChain(ctx context.Context, ideaID string) ([]store.Idea, error) {
	if f.ancestorChainFn != nil {
		return f.ancestorChainFn(ctx, ideaID)
	}
	return []store.Idea{{ID: ideaID}}, nil
}
func (f *fakeStore) CreateShareLink(ctx context.Context, link store.ShareLink) error {
	if f.createShareLinkFn != nil {
		return f.createShareLinkFn(ctx, link)
	}
	return nil
}
func (f *fakeStore) GetShareLink(ctx context.Context, token string) (store.ShareLink, error) {
	if f.getShareLinkFn != nil {
		return f.getShareLinkFn(ctx, token)
	}
	return store.ShareLink{}, sql.ErrNoRows
}
func (f *fakeStore) RevokeShareLink(ctx context.Context, ideaID, token string) (bool, error) {
	if f.revokeShareLinkFn != nil {
		return f.revokeShareLinkFn(ctx, ideaID, token)
	}
	return false, nil
}
func (f *fakeStore) RecordShareAccess(ctx context.Context, token string) error {
	if f.recordShareAccessFn != nil {
		return f.recordShareAccessFn(ctx, token)
	}
	return nil
}
func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeAdvisor struct {
	detectFn func(context.Context, advisory.DetectRequest) *advisory.Continuation
	mergeFn  func(context.Context, advisory.MergeRequest) advisory.MergeResult
}

func (f *fakeAdvisor) DetectContinuation(ctx context.Context, req advisory.DetectRequest) *advisory.Continuation {
	if f.detectFn != nil {
		return f.detectFn(ctx, req)
	}
	return nil
}
func (f *fakeAdvisor) MergeContent(ctx context.Context, req advisory.MergeRequest) advisory.MergeResult {
	if f.mergeFn != nil {
		return f.mergeFn(ctx, req)
	}
	return advisory.MergeResult{
		Title:    req.TargetTitle,
		Content:  req.TargetContent + "\n\n---\n\n" + req.DonorContent,
		Summary:  "Merged by concatenation",
		Fallback: true,
	}
}

func newTestService(fs *fakeStore, adv *fakeAdvisor) *Service {
	svc := &Service{
		cfg:   config.Config{MergeSeparator: "\n\n---\n\n"},
		store: fs,
	}
	if adv != nil {
		svc.advisor = adv
	}
	return svc
}

func TestSaveWithoutAdvisorCreatesNewIdea(t *testing.T) {
	var created store.Idea
	var entry store.HistoryEntry
	fs := &fakeStore{
		createIdeaFn: func(_ context.Context, idea store.Idea, e store.HistoryEntry) (store.Idea, error) {
			created = idea
			entry = e
			return idea, nil
		},
	}
	svc := newTestService(fs, nil)

	result, err := svc.SaveIdea(context.Background(), "user-1", "Avery", SaveIdeaInput{
		Title:   "Garden planner",
		Content: "An app that plans raised beds by sun exposure.",
	})
	if err != nil {
		t.Fatalf("SaveIdea() error = %v", err)
	}
	if result.SaveType != SaveTypeNew {
		t.Fatalf("expected save type new, got %q", result.SaveType)
	}
	if created.OwnerID != "user-1" {
		t.Fatalf("expected owner user-1, got %q", created.OwnerID)
	}
	if !strings.HasPrefix(created.ID, "idea_") {
		t.Fatalf("expected generated idea id, got %q", created.ID)
	}
	if created.Category != "general" {
		t.Fatalf("expected default category general, got %q", created.Category)
	}
	if entry.EventType != store.EventInitialCreation {
		t.Fatalf("expected initial_creation entry, got %q", entry.EventType)
	}
	if entry.ConfidenceScore != nil {
		t.Fatalf("expected nil confidence on creation, got %v", *entry.ConfidenceScore)
	}
}

func TestSaveRejectsMissingTitleOrContent(t *testing.T) {
	svc := newTestService(&fakeStore{}, nil)

	_, err := svc.SaveIdea(context.Background(), "user-1", "Avery", SaveIdeaInput{Content: "body only"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", domainErr.Code)
	}
}

func TestSaveLowConfidenceVerdictCreatesNewIdea(t *testing.T) {
	createCalls := 0
	fs := &fakeStore{
		createIdeaFn: func(_ context.Context, idea store.Idea, _ store.HistoryEntry) (store.Idea, error) {
			createCalls++
			return idea, nil
		},
		updateIdeaFn: func(context.Context, string, store.IdeaMutation) (store.Idea, error) {
			t.Fatal("update must not be called for a low-confidence verdict")
			return store.Idea{}, nil
		},
	}
	adv := &fakeAdvisor{
		detectFn: func(context.Context, advisory.DetectRequest) *advisory.Continuation {
			return &advisory.Continuation{
				RelatedIdeaID:   "idea_related",
				Confidence:      0.2,
				SuggestedAction: advisory.ActionUpdate,
			}
		},
	}
	svc := newTestService(fs, adv)

	result, err := svc.SaveIdea(context.Background(), "user-1", "Avery", SaveIdeaInput{
		Title:   "Something else",
		Content: "Unrelated new thought.",
	})
	if err != nil {
		t.Fatalf("SaveIdea() error = %v", err)
	}
	if result.SaveType != SaveTypeNew {
		t.Fatalf("expected save type new, got %q", result.SaveType)
	}
	if createCalls != 1 {
		t.Fatalf("expected one CreateIdea call, got %d", createCalls)
	}
}

func TestSaveUpdateVerdictRoutesToRelatedIdea(t *testing.T) {
	var mutation store.IdeaMutation
	fs := &fakeStore{
		getIdeaFn: func(_ context.Context, ideaID string) (store.Idea, error) {
			return store.Idea{ID: ideaID, Title: "Garden planner", Content: "Old content", Category: "apps", OwnerID: "user-1"}, nil
		},
		updateIdeaFn: func(_ context.Context, ideaID string, m store.IdeaMutation) (store.Idea, error) {
			if ideaID != "idea_related" {
				t.Fatalf("expected update of idea_related, got %q", ideaID)
			}
			mutation = m
			return store.Idea{ID: ideaID, Title: m.Title, Content: m.Content, DevelopmentCount: 1}, nil
		},
	}
	adv := &fakeAdvisor{
		detectFn: func(context.Context, advisory.DetectRequest) *advisory.Continuation {
			return &advisory.Continuation{
				RelatedIdeaID:   "idea_related",
				Confidence:      0.85,
				SuggestedAction: advisory.ActionUpdate,
				Summary:         "Continues the garden planner work",
			}
		},
	}
	svc := newTestService(fs, adv)

	result, err := svc.SaveIdea(context.Background(), "user-1", "Avery", SaveIdeaInput{
		Title:   "Garden planner",
		Content: "Old content plus the new watering schedule.",
	})
	if err != nil {
		t.Fatalf("SaveIdea() error = %v", err)
	}
	if result.SaveType != SaveTypeUpdate {
		t.Fatalf("expected save type update, got %q", result.SaveType)
	}
	if mutation.EventType != store.EventContinuation {
		t.Fatalf("expected continuation event, got %q", mutation.EventType)
	}
	if mutation.Confidence == nil || *mutation.Confidence != 0.85 {
		t.Fatalf("expected confidence 0.85, got %v", mutation.Confidence)
	}
	if mutation.ChangeSummary != "Continues the garden planner work" {
		t.Fatalf("unexpected change summary: %q", mutation.ChangeSummary)
	}
}

func TestDetectRequestCarriesRecencyContext(t *testing.T) {
	lastTouched := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	fs := &fakeStore{
		listIdeasFn: func(context.Context, string, bool) ([]store.Idea, error) {
			return []store.Idea{{ID: "idea_1", Title: "Garden planner", Content: "c", UpdatedAt: lastTouched}}, nil
		},
		createIdeaFn: func(_ context.Context, idea store.Idea, _ store.HistoryEntry) (store.Idea, error) {
			return idea, nil
		},
	}
	var req advisory.DetectRequest
	adv := &fakeAdvisor{
		detectFn: func(_ context.Context, r advisory.DetectRequest) *advisory.Continuation {
			req = r
			return nil
		},
	}
	svc := newTestService(fs, adv)
	svc.cfg.ContinuationWindowHours = 36

	if _, err := svc.SaveIdea(context.Background(), "user-1", "Avery", SaveIdeaInput{
		Title:   "Garden planner",
		Content: "more planning",
	}); err != nil {
		t.Fatalf("SaveIdea() error = %v", err)
	}
	if req.TimeThresholdHours != 36 {
		t.Fatalf("expected time threshold 36, got %d", req.TimeThresholdHours)
	}
	if len(req.Candidates) != 1 {
		t.Fatalf("expected one candidate, got %d", len(req.Candidates))
	}
	if !req.Candidates[0].UpdatedAt.Equal(lastTouched) {
		t.Fatalf("expected candidate updated_at %v, got %v", lastTouched, req.Candidates[0].UpdatedAt)
	}
}

func TestExplicitUpdateClassifiesEvents(t *testing.T) {
	previous := store.Idea{
		ID:       "idea_1",
		Title:    "Garden planner",
		Content:  strings.Repeat("x", 100),
		Category: "apps",
		OwnerID:  "user-1",
	}

	cases := []struct {
		name    string
		title   string
		content string
		want    string
	}{
		{"small edit", "Garden planner", strings.Repeat("x", 110), store.EventRefinement},
		{"growth", "Garden planner", strings.Repeat("x", 200), store.EventContentExpansion},
		{"title change", "Garden planner v2", strings.Repeat("x", 100), store.EventMajorRevision},
		{"shrink", "Garden planner", strings.Repeat("x", 40), store.EventMajorRevision},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var mutation store.IdeaMutation
			fs := &fakeStore{
				getIdeaFn: func(context.Context, string) (store.Idea, error) {
					return previous, nil
				},
				updateIdeaFn: func(_ context.Context, _ string, m store.IdeaMutation) (store.Idea, error) {
					mutation = m
					return previous, nil
				},
			}
			svc := newTestService(fs, nil)

			_, err := svc.SaveIdea(context.Background(), "user-1", "Avery", SaveIdeaInput{
				IdeaID:   "idea_1",
				Title:    tc.title,
				Content:  tc.content,
				Category: "apps",
				SaveType: SaveTypeUpdate,
			})
			if err != nil {
				t.Fatalf("SaveIdea() error = %v", err)
			}
			if mutation.EventType != tc.want {
				t.Fatalf("expected event %q, got %q", tc.want, mutation.EventType)
			}
			if mutation.Confidence != nil {
				t.Fatalf("expected nil confidence on explicit update, got %v", *mutation.Confidence)
			}
		})
	}
}

func TestNonOwnerUpdateRequiresSharedVisibility(t *testing.T) {
	fs := &fakeStore{
		getIdeaFn: func(context.Context, string) (store.Idea, error) {
			return store.Idea{ID: "idea_1", Title: "t", Content: "c", OwnerID: "owner-1", Visibility: store.VisibilityPrivate}, nil
		},
	}
	svc := newTestService(fs, nil)

	_, err := svc.SaveIdea(context.Background(), "user-2", "Blake", SaveIdeaInput{
		IdeaID:   "idea_1",
		Title:    "t",
		Content:  "c2",
		SaveType: SaveTypeUpdate,
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != 403 {
		t.Fatalf("expected 403, got %d", domainErr.Status)
	}
}

func TestNonOwnerUpdateOnSharedIdeaRecordsEdit(t *testing.T) {
	var mutation store.IdeaMutation
	fs := &fakeStore{
		getIdeaFn: func(context.Context, string) (store.Idea, error) {
			return store.Idea{ID: "idea_1", Title: "t", Content: "c", OwnerID: "owner-1", Visibility: store.VisibilityShared}, nil
		},
		updateIdeaFn: func(_ context.Context, _ string, m store.IdeaMutation) (store.Idea, error) {
			mutation = m
			return store.Idea{ID: "idea_1"}, nil
		},
	}
	svc := newTestService(fs, nil)

	_, err := svc.SaveIdea(context.Background(), "user-2", "Blake", SaveIdeaInput{
		IdeaID:   "idea_1",
		Title:    "t",
		Content:  "c revised",
		SaveType: SaveTypeUpdate,
	})
	if err != nil {
		t.Fatalf("SaveIdea() error = %v", err)
	}
	if !mutation.RecordEdit {
		t.Fatal("expected RecordEdit for non-owner write on shared idea")
	}
	if mutation.ActorID != "user-2" {
		t.Fatalf("expected actor user-2, got %q", mutation.ActorID)
	}
}

func TestMergeSuggestionFallsBackToConcatenation(t *testing.T) {
	var mutation store.IdeaMutation
	fs := &fakeStore{
		getIdeaFn: func(_ context.Context, ideaID string) (store.Idea, error) {
			return store.Idea{ID: ideaID, Title: "Target", Content: "Content A", OwnerID: "user-1"}, nil
		},
		updateIdeaFn: func(_ context.Context, _ string, m store.IdeaMutation) (store.Idea, error) {
			mutation = m
			return store.Idea{ID: "idea_target", Content: m.Content}, nil
		},
	}
	adv := &fakeAdvisor{
		detectFn: func(context.Context, advisory.DetectRequest) *advisory.Continuation {
			return &advisory.Continuation{
				RelatedIdeaID:   "idea_target",
				Confidence:      0.9,
				SuggestedAction: advisory.ActionMerge,
			}
		},
		// default mergeFn: concatenation fallback
	}
	svc := newTestService(fs, adv)

	result, err := svc.SaveIdea(context.Background(), "user-1", "Avery", SaveIdeaInput{
		Title:   "New thought",
		Content: "Content B",
	})
	if err != nil {
		t.Fatalf("SaveIdea() error = %v", err)
	}
	if !result.MergeFallback {
		t.Fatal("expected merge fallback flag")
	}
	if mutation.Content != "Content A\n\n---\n\nContent B" {
		t.Fatalf("unexpected merged content: %q", mutation.Content)
	}
	if mutation.Confidence != nil {
		t.Fatalf("expected nil confidence on fallback merge, got %v", *mutation.Confidence)
	}
	if mutation.EventType != store.EventContinuation {
		t.Fatalf("expected continuation event, got %q", mutation.EventType)
	}
}

func TestExplicitMergeDeleteRequiresConfirmation(t *testing.T) {
	fs := &fakeStore{
		mergeIdeasFn: func(context.Context, store.MergeSpec) (store.Idea, error) {
			t.Fatal("merge must not run without delete confirmation")
			return store.Idea{}, nil
		},
	}
	svc := newTestService(fs, nil)

	_, err := svc.SaveIdea(context.Background(), "user-1", "Avery", SaveIdeaInput{
		IdeaID:           "idea_donor",
		RelatedIdeaID:    "idea_target",
		Title:            "t",
		Content:          "c",
		SaveType:         SaveTypeMerge,
		MergeDisposition: store.DispositionDelete,
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "CONFIRMATION_REQUIRED" {
		t.Fatalf("expected CONFIRMATION_REQUIRED, got %s", domainErr.Code)
	}
}

func TestExplicitMergeDefaultsToArchiveDisposition(t *testing.T) {
	var spec store.MergeSpec
	fs := &fakeStore{
		getIdeaFn: func(_ context.Context, ideaID string) (store.Idea, error) {
			return store.Idea{ID: ideaID, Title: "Idea " + ideaID, Content: "content of " + ideaID, OwnerID: "user-1"}, nil
		},
		mergeIdeasFn: func(_ context.Context, s store.MergeSpec) (store.Idea, error) {
			spec = s
			return store.Idea{ID: s.TargetID, Content: s.MergedContent}, nil
		},
	}
	svc := newTestService(fs, nil)

	result, err := svc.SaveIdea(context.Background(), "user-1", "Avery", SaveIdeaInput{
		IdeaID:        "idea_donor",
		RelatedIdeaID: "idea_target",
		Title:         "t",
		Content:       "c",
		SaveType:      SaveTypeMerge,
	})
	if err != nil {
		t.Fatalf("SaveIdea() error = %v", err)
	}
	if spec.Disposition != store.DispositionArchive {
		t.Fatalf("expected archive disposition, got %q", spec.Disposition)
	}
	if spec.TargetID != "idea_target" || spec.DonorID != "idea_donor" {
		t.Fatalf("unexpected merge pair: target=%q donor=%q", spec.TargetID, spec.DonorID)
	}
	// no merger configured: content is plain concatenation
	if spec.MergedContent != "content of idea_target\n\n---\n\ncontent of idea_donor" {
		t.Fatalf("unexpected merged content: %q", spec.MergedContent)
	}
	if !result.MergeFallback {
		t.Fatal("expected merge fallback flag without a merger")
	}
}

func TestExplicitMergeKeepNeedsOnlyDonorRead(t *testing.T) {
	// the donor is readable but not editable: public, owned by someone else
	getIdea := func(_ context.Context, ideaID string) (store.Idea, error) {
		if ideaID == "idea_donor" {
			return store.Idea{ID: ideaID, Content: "donor", OwnerID: "user-2", Visibility: store.VisibilityPublic}, nil
		}
		return store.Idea{ID: ideaID, Content: "target", OwnerID: "user-1"}, nil
	}
	fs := &fakeStore{
		getIdeaFn: getIdea,
		mergeIdeasFn: func(_ context.Context, s store.MergeSpec) (store.Idea, error) {
			if s.Disposition != store.DispositionKeep {
				t.Fatalf("expected keep disposition, got %q", s.Disposition)
			}
			return store.Idea{ID: s.TargetID, Content: s.MergedContent}, nil
		},
	}
	svc := newTestService(fs, nil)

	if _, err := svc.SaveIdea(context.Background(), "user-1", "Avery", SaveIdeaInput{
		IdeaID:           "idea_donor",
		RelatedIdeaID:    "idea_target",
		Title:            "t",
		Content:          "c",
		SaveType:         SaveTypeMerge,
		MergeDisposition: store.DispositionKeep,
	}); err != nil {
		t.Fatalf("SaveIdea() error = %v", err)
	}

	// archiving the same donor mutates it and still needs write access
	_, err := svc.SaveIdea(context.Background(), "user-1", "Avery", SaveIdeaInput{
		IdeaID:           "idea_donor",
		RelatedIdeaID:    "idea_target",
		Title:            "t",
		Content:          "c",
		SaveType:         SaveTypeMerge,
		MergeDisposition: store.DispositionArchive,
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != 403 {
		t.Fatalf("expected 403, got %d", domainErr.Status)
	}
}

func TestExplicitMergeRejectsSelfMerge(t *testing.T) {
	svc := newTestService(&fakeStore{}, nil)

	_, err := svc.SaveIdea(context.Background(), "user-1", "Avery", SaveIdeaInput{
		IdeaID:        "idea_1",
		RelatedIdeaID: "idea_1",
		Title:         "t",
		Content:       "c",
		SaveType:      SaveTypeMerge,
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", domainErr.Code)
	}
}

func TestBranchVerdictCreatesChildWithNote(t *testing.T) {
	var spec store.BranchSpec
	fs := &fakeStore{
		getIdeaFn: func(_ context.Context, ideaID string) (store.Idea, error) {
			return store.Idea{ID: ideaID, Title: "Parent", Content: "p", OwnerID: "user-1"}, nil
		},
		branchIdeaFn: func(_ context.Context, s store.BranchSpec) (store.Idea, error) {
			spec = s
			return s.Child, nil
		},
	}
	adv := &fakeAdvisor{
		detectFn: func(context.Context, advisory.DetectRequest) *advisory.Continuation {
			return &advisory.Continuation{
				RelatedIdeaID:   "idea_parent",
				Confidence:      0.7,
				SuggestedAction: advisory.ActionNewVariation,
				Summary:         "Same core idea aimed at schools",
			}
		},
	}
	svc := newTestService(fs, adv)

	result, err := svc.SaveIdea(context.Background(), "user-1", "Avery", SaveIdeaInput{
		Title:   "Garden planner for schools",
		Content: "Classroom-first variant.",
	})
	if err != nil {
		t.Fatalf("SaveIdea() error = %v", err)
	}
	if result.SaveType != SaveTypeBranch {
		t.Fatalf("expected save type branch, got %q", result.SaveType)
	}
	if spec.ParentID != "idea_parent" {
		t.Fatalf("expected parent idea_parent, got %q", spec.ParentID)
	}
	if spec.Child.BranchNote != "Same core idea aimed at schools" {
		t.Fatalf("expected verdict summary as branch note, got %q", spec.Child.BranchNote)
	}
	if spec.Child.OwnerID != "user-1" {
		t.Fatalf("expected child owned by actor, got %q", spec.Child.OwnerID)
	}
}

func TestExplicitBranchDefaultsChangeSummary(t *testing.T) {
	var spec store.BranchSpec
	fs := &fakeStore{
		getIdeaFn: func(_ context.Context, ideaID string) (store.Idea, error) {
			return store.Idea{ID: ideaID, Title: "Parent", Content: "p", OwnerID: "user-1"}, nil
		},
		branchIdeaFn: func(_ context.Context, s store.BranchSpec) (store.Idea, error) {
			spec = s
			return s.Child, nil
		},
	}
	svc := newTestService(fs, nil)

	if _, err := svc.SaveIdea(context.Background(), "user-1", "Avery", SaveIdeaInput{
		RelatedIdeaID: "idea_parent",
		Title:         "Schools variant",
		Content:       "Classroom-first variant.",
		SaveType:      SaveTypeBranch,
	}); err != nil {
		t.Fatalf("SaveIdea() error = %v", err)
	}
	if spec.ChangeSummary != "Branched from idea_parent" {
		t.Fatalf("expected the summary to name the parent, got %q", spec.ChangeSummary)
	}
}

func TestAttachBranchPropagatesCorruptGraph(t *testing.T) {
	fs := &fakeStore{
		getIdeaFn: func(_ context.Context, ideaID string) (store.Idea, error) {
			return store.Idea{ID: ideaID, OwnerID: "user-1"}, nil
		},
		setBranchParentFn: func(context.Context, string, string, string, string) (store.Idea, error) {
			return store.Idea{}, store.ErrCorruptGraph
		},
	}
	svc := newTestService(fs, nil)

	_, err := svc.AttachBranch(context.Background(), "user-1", "idea_child", AttachBranchInput{ParentID: "idea_parent"})
	if !errors.Is(err, store.ErrCorruptGraph) {
		t.Fatalf("expected ErrCorruptGraph, got %v", err)
	}
}

func TestDeleteIdeaOwnerOnly(t *testing.T) {
	fs := &fakeStore{
		getIdeaFn: func(_ context.Context, ideaID string) (store.Idea, error) {
			return store.Idea{ID: ideaID, OwnerID: "owner-1"}, nil
		},
	}
	svc := newTestService(fs, nil)

	err := svc.DeleteIdea(context.Background(), "user-2", "idea_1")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != 403 {
		t.Fatalf("expected 403, got %d", domainErr.Status)
	}
}

func TestGetTreeSeparatesAncestorsAndChildren(t *testing.T) {
	fs := &fakeStore{
		getIdeaFn: func(_ context.Context, ideaID string) (store.Idea, error) {
			return store.Idea{ID: ideaID, OwnerID: "user-1"}, nil
		},
		ancestorChainFn: func(_ context.Context, ideaID string) ([]store.Idea, error) {
			return []store.Idea{{ID: ideaID}, {ID: "idea_parent"}, {ID: "idea_root"}}, nil
		},
		listChildrenFn: func(context.Context, string) ([]store.Idea, error) {
			return []store.Idea{{ID: "idea_child"}}, nil
		},
	}
	svc := newTestService(fs, nil)

	view, err := svc.GetTree(context.Background(), "user-1", "idea_mid")
	if err != nil {
		t.Fatalf("GetTree() error = %v", err)
	}
	if len(view.Ancestors) != 2 || view.Ancestors[0].ID != "idea_parent" {
		t.Fatalf("unexpected ancestors: %+v", view.Ancestors)
	}
	if len(view.Children) != 1 || view.Children[0].ID != "idea_child" {
		t.Fatalf("unexpected children: %+v", view.Children)
	}
}
