package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"poppy/api/internal/advisory"
	"poppy/api/internal/config"
	"poppy/api/internal/export"
	"poppy/api/internal/search"
	"poppy/api/internal/snapshot"
	"poppy/api/internal/store"
	"poppy/api/internal/util"
)

// Save types accepted on the save endpoint. An empty save type defers the
// decision to the continuation detector.
const (
	SaveTypeNew    = "new"
	SaveTypeUpdate = "update"
	SaveTypeBranch = "branch"
	SaveTypeMerge  = "merge"
)

// Detector verdicts below this confidence are discarded and the save falls
// back to creating a new idea.
const minContinuationConfidence = 0.3

// How much of each candidate idea's content is offered to the detector.
const candidatePreviewLen = 500

type SaveIdeaInput struct {
	IdeaID           string          `json:"ideaId"`
	Title            string          `json:"title"`
	Content          string          `json:"content"`
	Category         string          `json:"category"`
	Visibility       string          `json:"visibility"`
	SaveType         string          `json:"saveType"`
	RelatedIdeaID    string          `json:"relatedIdeaId"`
	BranchNote       string          `json:"branchNote"`
	MergeDisposition string          `json:"mergeDisposition"`
	ConfirmDelete    bool            `json:"confirmDelete"`
	ChangeSummary    string          `json:"changeSummary"`
	Conversation     []advisory.Turn `json:"conversation"`
}

type SaveIdeaResult struct {
	Idea          store.Idea             `json:"idea"`
	SaveType      string                 `json:"saveType"`
	Continuation  *advisory.Continuation `json:"continuation,omitempty"`
	MergeFallback bool                   `json:"mergeFallback,omitempty"`
}

type DetectInput struct {
	Title        string          `json:"title"`
	Content      string          `json:"content"`
	Conversation []advisory.Turn `json:"conversation"`
}

type AttachBranchInput struct {
	ParentID string `json:"parentId"`
	Note     string `json:"note"`
}

type DispositionInput struct {
	Pinned   *bool `json:"pinned"`
	Archived *bool `json:"archived"`
}

type CreateShareLinkInput struct {
	Password       string `json:"password"`
	ExpiresInHours int    `json:"expiresInHours"`
}

type HistoryView struct {
	Entries []store.HistoryEntry `json:"entries"`
	Stats   store.HistoryStats   `json:"stats"`
}

type TreeView struct {
	Idea      store.Idea   `json:"idea"`
	Ancestors []store.Idea `json:"ancestors"`
	Children  []store.Idea `json:"children"`
}

type dataStore interface {
	EnsureUser(context.Context, string, string) (store.User, error)
	GetIdea(context.Context, string) (store.Idea, error)
	ListIdeas(context.Context, string, bool) ([]store.Idea, error)
	CreateIdea(context.Context, store.Idea, store.HistoryEntry) (store.Idea, error)
	UpdateIdea(context.Context, string, store.IdeaMutation) (store.Idea, error)
	BranchIdea(context.Context, store.BranchSpec) (store.Idea, error)
	SetBranchParent(context.Context, string, string, string, string) (store.Idea, error)
	MergeIdeas(context.Context, store.MergeSpec) (store.Idea, error)
	SetIdeaDisposition(context.Context, string, *bool, *bool) (store.Idea, error)
	DeleteIdea(context.Context, string) error
	ListHistory(context.Context, string) ([]store.HistoryEntry, error)
	HistoryStats(context.Context, string) (store.HistoryStats, error)
	ListContributors(context.Context, string) ([]store.Contributor, error)
	ListChildren(context.Context, string) ([]store.Idea, error)
	AncestorChain(context.Context, string) ([]store.Idea, error)
	CreateShareLink(context.Context, store.ShareLink) error
	GetShareLink(context.Context, string) (store.ShareLink, error)
	RevokeShareLink(context.Context, string, string) (bool, error)
	RecordShareAccess(context.Context, string) error
	Ping(ctx context.Context) error
}

type advisor interface {
	DetectContinuation(context.Context, advisory.DetectRequest) *advisory.Continuation
	MergeContent(context.Context, advisory.MergeRequest) advisory.MergeResult
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexIdea(rec search.IdeaRecord)
	DeleteIdea(ideaID string)
}

type snapshotService interface {
	CommitContent(ideaID string, content snapshot.Content, actor, message string) (snapshot.CommitInfo, error)
	History(ideaID string, limit int) ([]snapshot.CommitInfo, error)
	GetContentByHash(ideaID, hash string) (snapshot.Content, error)
}

type exporter interface {
	Export(ctx context.Context, ideaID, format string) (export.Result, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	advisor  advisor
	search   searchService
	snaps    snapshotService
	exporter exporter
}

func New(cfg config.Config, dataStore *store.PostgresStore, advisorSvc *advisory.Service, searchSvc *search.Service, snapSvc *snapshot.Service, exportSvc *export.Service) *Service {
	svc := &Service{
		cfg:   cfg,
		store: dataStore,
	}
	if advisorSvc != nil {
		svc.advisor = advisorSvc
	}
	if searchSvc != nil {
		svc.search = searchSvc
	}
	if snapSvc != nil {
		svc.snaps = snapSvc
	}
	if exportSvc != nil {
		svc.exporter = exportSvc
	}
	return svc
}

// SaveIdea is the single entry point for persisting content. The save type
// decides the shape of the write; when none is given the continuation
// detector picks one, and a detector that is silent or unsure means a new
// idea.
func (s *Service) SaveIdea(ctx context.Context, actorID, actorName string, in SaveIdeaInput) (SaveIdeaResult, error) {
	if in.Title == "" || in.Content == "" {
		return SaveIdeaResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title and content are required", nil)
	}
	if in.Category == "" {
		in.Category = "general"
	}

	if _, err := s.store.EnsureUser(ctx, actorID, actorName); err != nil {
		return SaveIdeaResult{}, err
	}

	saveType := in.SaveType
	var verdict *advisory.Continuation
	if saveType == "" {
		saveType, verdict = s.decideSaveType(ctx, actorID, in)
	}

	switch saveType {
	case SaveTypeNew:
		return s.saveNew(ctx, actorID, in)
	case SaveTypeUpdate:
		return s.saveUpdate(ctx, actorID, in, verdict)
	case SaveTypeBranch:
		return s.saveBranch(ctx, actorID, in, verdict)
	case SaveTypeMerge:
		if verdict != nil {
			// Detector-suggested merge folds unsaved content into the
			// related idea; there is no donor row to dispose of.
			return s.saveContinuationMerge(ctx, actorID, in, verdict)
		}
		return s.saveMerge(ctx, actorID, in)
	default:
		return SaveIdeaResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("unknown save type %q", saveType), nil)
	}
}

// decideSaveType consults the detector. No verdict, an unknown action, or
// confidence below the floor all resolve to a brand-new idea.
func (s *Service) decideSaveType(ctx context.Context, actorID string, in SaveIdeaInput) (string, *advisory.Continuation) {
	if s.advisor == nil {
		return SaveTypeNew, nil
	}

	candidates := s.detectCandidates(ctx, actorID)
	verdict := s.advisor.DetectContinuation(ctx, advisory.DetectRequest{
		UserID:             actorID,
		Title:              in.Title,
		Content:            in.Content,
		Conversation:       in.Conversation,
		Candidates:         candidates,
		TimeThresholdHours: s.cfg.ContinuationWindowHours,
	})
	if verdict == nil || verdict.Confidence < minContinuationConfidence {
		return SaveTypeNew, nil
	}

	switch verdict.SuggestedAction {
	case advisory.ActionUpdate:
		return SaveTypeUpdate, verdict
	case advisory.ActionNewVariation:
		return SaveTypeBranch, verdict
	case advisory.ActionMerge:
		return SaveTypeMerge, verdict
	default:
		return SaveTypeNew, nil
	}
}

func (s *Service) detectCandidates(ctx context.Context, actorID string) []advisory.Candidate {
	ideas, err := s.store.ListIdeas(ctx, actorID, false)
	if err != nil {
		log.Printf("save: listing candidate ideas: %v", err)
		return nil
	}
	candidates := make([]advisory.Candidate, 0, len(ideas))
	for _, idea := range ideas {
		content := idea.Content
		if len(content) > candidatePreviewLen {
			content = content[:candidatePreviewLen]
		}
		candidates = append(candidates, advisory.Candidate{
			ID:        idea.ID,
			Title:     idea.Title,
			Category:  idea.Category,
			Content:   content,
			UpdatedAt: idea.UpdatedAt,
		})
	}
	return candidates
}

func (s *Service) saveNew(ctx context.Context, actorID string, in SaveIdeaInput) (SaveIdeaResult, error) {
	idea := store.Idea{
		ID:         util.NewID("idea"),
		Title:      in.Title,
		Content:    in.Content,
		Category:   in.Category,
		OwnerID:    actorID,
		Visibility: in.Visibility,
	}
	created, err := s.store.CreateIdea(ctx, idea, store.HistoryEntry{
		Actor:         actorID,
		EventType:     store.EventInitialCreation,
		ChangeSummary: in.ChangeSummary,
	})
	if err != nil {
		return SaveIdeaResult{}, err
	}
	s.afterWrite(created, "created")
	return SaveIdeaResult{Idea: created, SaveType: SaveTypeNew}, nil
}

func (s *Service) saveUpdate(ctx context.Context, actorID string, in SaveIdeaInput, verdict *advisory.Continuation) (SaveIdeaResult, error) {
	targetID := in.IdeaID
	if targetID == "" && verdict != nil {
		targetID = verdict.RelatedIdeaID
	}
	if targetID == "" {
		targetID = in.RelatedIdeaID
	}
	if targetID == "" {
		return SaveIdeaResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "update requires an idea id", nil)
	}

	previous, err := s.store.GetIdea(ctx, targetID)
	if err != nil {
		return SaveIdeaResult{}, err
	}
	recordEdit, err := checkWrite(previous, actorID)
	if err != nil {
		return SaveIdeaResult{}, err
	}

	mutation := store.IdeaMutation{
		Title:         in.Title,
		Content:       in.Content,
		Category:      in.Category,
		ActorID:       actorID,
		ChangeSummary: in.ChangeSummary,
		RecordEdit:    recordEdit,
	}
	if verdict != nil {
		mutation.EventType = store.EventContinuation
		confidence := verdict.Confidence
		mutation.Confidence = &confidence
		if mutation.ChangeSummary == "" {
			mutation.ChangeSummary = verdict.Summary
		}
	} else {
		mutation.EventType = classifyUpdate(previous, in.Title, in.Content, in.Category)
	}

	updated, err := s.store.UpdateIdea(ctx, targetID, mutation)
	if err != nil {
		return SaveIdeaResult{}, err
	}
	s.afterWrite(updated, "updated")
	return SaveIdeaResult{Idea: updated, SaveType: SaveTypeUpdate, Continuation: verdict}, nil
}

func (s *Service) saveBranch(ctx context.Context, actorID string, in SaveIdeaInput, verdict *advisory.Continuation) (SaveIdeaResult, error) {
	parentID := in.RelatedIdeaID
	if parentID == "" && verdict != nil {
		parentID = verdict.RelatedIdeaID
	}
	if parentID == "" {
		return SaveIdeaResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "branch requires a parent idea id", nil)
	}

	parent, err := s.store.GetIdea(ctx, parentID)
	if err != nil {
		return SaveIdeaResult{}, err
	}
	if err := checkRead(parent, actorID); err != nil {
		return SaveIdeaResult{}, err
	}

	note := in.BranchNote
	if note == "" && verdict != nil {
		note = verdict.Summary
	}
	child := store.Idea{
		ID:         util.NewID("idea"),
		Title:      in.Title,
		Content:    in.Content,
		Category:   in.Category,
		OwnerID:    actorID,
		Visibility: in.Visibility,
		BranchNote: note,
	}
	summary := in.ChangeSummary
	if summary == "" {
		summary = fmt.Sprintf("Branched from %s", parent.ID)
	}
	created, err := s.store.BranchIdea(ctx, store.BranchSpec{
		ParentID:      parentID,
		Child:         child,
		ChangeSummary: summary,
	})
	if err != nil {
		return SaveIdeaResult{}, err
	}
	s.afterWrite(created, "branched")
	return SaveIdeaResult{Idea: created, SaveType: SaveTypeBranch, Continuation: verdict}, nil
}

// saveContinuationMerge handles the detector's merge suggestion: the
// incoming unsaved content is combined with the related idea and written
// back as an update to that idea.
func (s *Service) saveContinuationMerge(ctx context.Context, actorID string, in SaveIdeaInput, verdict *advisory.Continuation) (SaveIdeaResult, error) {
	target, err := s.store.GetIdea(ctx, verdict.RelatedIdeaID)
	if err != nil {
		return SaveIdeaResult{}, err
	}
	recordEdit, err := checkWrite(target, actorID)
	if err != nil {
		return SaveIdeaResult{}, err
	}

	merged := s.advisor.MergeContent(ctx, advisory.MergeRequest{
		TargetTitle:   target.Title,
		TargetContent: target.Content,
		DonorTitle:    in.Title,
		DonorContent:  in.Content,
	})

	mutation := store.IdeaMutation{
		Title:         merged.Title,
		Content:       merged.Content,
		Category:      target.Category,
		ActorID:       actorID,
		EventType:     store.EventContinuation,
		ChangeSummary: merged.Summary,
		RecordEdit:    recordEdit,
	}
	if !merged.Fallback {
		confidence := verdict.Confidence
		mutation.Confidence = &confidence
	}

	updated, err := s.store.UpdateIdea(ctx, target.ID, mutation)
	if err != nil {
		return SaveIdeaResult{}, err
	}
	s.afterWrite(updated, "merged")
	return SaveIdeaResult{Idea: updated, SaveType: SaveTypeMerge, Continuation: verdict, MergeFallback: merged.Fallback}, nil
}

// saveMerge folds one persisted idea (the donor, in.IdeaID) into another
// (the target, in.RelatedIdeaID) and applies the donor disposition.
func (s *Service) saveMerge(ctx context.Context, actorID string, in SaveIdeaInput) (SaveIdeaResult, error) {
	if in.IdeaID == "" || in.RelatedIdeaID == "" {
		return SaveIdeaResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "merge requires a donor and a target idea id", nil)
	}
	if in.IdeaID == in.RelatedIdeaID {
		return SaveIdeaResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "an idea cannot be merged into itself", nil)
	}

	disposition := in.MergeDisposition
	if disposition == "" {
		disposition = store.DispositionArchive
	}
	switch disposition {
	case store.DispositionArchive, store.DispositionKeep:
	case store.DispositionDelete:
		if !in.ConfirmDelete {
			return SaveIdeaResult{}, domainError(http.StatusUnprocessableEntity, "CONFIRMATION_REQUIRED", "deleting the merged idea requires explicit confirmation", nil)
		}
	default:
		return SaveIdeaResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("unknown merge disposition %q", disposition), nil)
	}

	target, err := s.store.GetIdea(ctx, in.RelatedIdeaID)
	if err != nil {
		return SaveIdeaResult{}, err
	}
	donor, err := s.store.GetIdea(ctx, in.IdeaID)
	if err != nil {
		return SaveIdeaResult{}, err
	}
	if _, err := checkWrite(target, actorID); err != nil {
		return SaveIdeaResult{}, err
	}
	// A kept donor is left untouched, so reading it is enough. Archiving
	// or deleting it mutates the donor and needs write access.
	if disposition == store.DispositionKeep {
		if err := checkRead(donor, actorID); err != nil {
			return SaveIdeaResult{}, err
		}
	} else if _, err := checkWrite(donor, actorID); err != nil {
		return SaveIdeaResult{}, err
	}

	merged := s.mergeContent(ctx, target, donor)
	summary := in.ChangeSummary
	if summary == "" {
		summary = fmt.Sprintf("Merged %q into %q", donor.Title, target.Title)
	}

	spec := store.MergeSpec{
		TargetID:      target.ID,
		DonorID:       donor.ID,
		MergedTitle:   merged.Title,
		MergedContent: merged.Content,
		ActorID:       actorID,
		ChangeSummary: summary,
		Disposition:   disposition,
	}
	if !merged.Fallback && merged.Confidence != nil {
		spec.Confidence = merged.Confidence
	}

	updated, err := s.store.MergeIdeas(ctx, spec)
	if err != nil {
		return SaveIdeaResult{}, err
	}
	s.afterWrite(updated, "merged")
	if disposition == store.DispositionDelete && s.search != nil {
		s.search.DeleteIdea(donor.ID)
	}
	return SaveIdeaResult{Idea: updated, SaveType: SaveTypeMerge, MergeFallback: merged.Fallback}, nil
}

func (s *Service) mergeContent(ctx context.Context, target, donor store.Idea) advisory.MergeResult {
	req := advisory.MergeRequest{
		TargetTitle:   target.Title,
		TargetContent: target.Content,
		DonorTitle:    donor.Title,
		DonorContent:  donor.Content,
	}
	if s.advisor != nil {
		return s.advisor.MergeContent(ctx, req)
	}
	first, second := target.Content, donor.Content
	if s.cfg.MergeDonorFirst {
		first, second = second, first
	}
	return advisory.MergeResult{
		Title:    target.Title,
		Content:  first + s.cfg.MergeSeparator + second,
		Summary:  "Merged by concatenation",
		Fallback: true,
	}
}

// afterWrite pushes the idea to the search index and snapshot archive.
// Both are best-effort and must not slow down or fail the request.
func (s *Service) afterWrite(idea store.Idea, action string) {
	if s.search != nil {
		s.search.IndexIdea(search.IdeaRecord{
			ID:         idea.ID,
			Title:      idea.Title,
			Content:    idea.Content,
			Category:   idea.Category,
			OwnerID:    idea.OwnerID,
			Visibility: idea.Visibility,
			Archived:   idea.Archived,
		})
	}
	if s.snaps != nil {
		go func() {
			_, err := s.snaps.CommitContent(idea.ID, snapshot.Content{
				Title:    idea.Title,
				Content:  idea.Content,
				Category: idea.Category,
			}, idea.OwnerID, action)
			if err != nil {
				log.Printf("snapshot: commit for %s: %v", idea.ID, err)
			}
		}()
	}
}

func (s *Service) DetectContinuation(ctx context.Context, actorID string, in DetectInput) (*advisory.Continuation, error) {
	if s.advisor == nil {
		return nil, nil
	}
	verdict := s.advisor.DetectContinuation(ctx, advisory.DetectRequest{
		UserID:             actorID,
		Title:              in.Title,
		Content:            in.Content,
		Conversation:       in.Conversation,
		Candidates:         s.detectCandidates(ctx, actorID),
		TimeThresholdHours: s.cfg.ContinuationWindowHours,
	})
	if verdict != nil && verdict.Confidence < minContinuationConfidence {
		return nil, nil
	}
	return verdict, nil
}

func (s *Service) ListIdeas(ctx context.Context, actorID string, includeArchived bool) ([]store.Idea, error) {
	return s.store.ListIdeas(ctx, actorID, includeArchived)
}

func (s *Service) GetIdea(ctx context.Context, actorID, ideaID string) (store.Idea, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return store.Idea{}, err
	}
	if err := checkRead(idea, actorID); err != nil {
		return store.Idea{}, err
	}
	return idea, nil
}

func (s *Service) GetHistory(ctx context.Context, actorID, ideaID string) (HistoryView, error) {
	if _, err := s.GetIdea(ctx, actorID, ideaID); err != nil {
		return HistoryView{}, err
	}
	entries, err := s.store.ListHistory(ctx, ideaID)
	if err != nil {
		return HistoryView{}, err
	}
	stats, err := s.store.HistoryStats(ctx, ideaID)
	if err != nil {
		return HistoryView{}, err
	}
	return HistoryView{Entries: entries, Stats: stats}, nil
}

func (s *Service) GetTree(ctx context.Context, actorID, ideaID string) (TreeView, error) {
	idea, err := s.GetIdea(ctx, actorID, ideaID)
	if err != nil {
		return TreeView{}, err
	}
	chain, err := s.store.AncestorChain(ctx, ideaID)
	if err != nil {
		return TreeView{}, err
	}
	children, err := s.store.ListChildren(ctx, ideaID)
	if err != nil {
		return TreeView{}, err
	}
	// chain begins with the idea itself
	return TreeView{Idea: idea, Ancestors: chain[1:], Children: children}, nil
}

func (s *Service) ListContributors(ctx context.Context, actorID, ideaID string) ([]store.Contributor, error) {
	if _, err := s.GetIdea(ctx, actorID, ideaID); err != nil {
		return nil, err
	}
	return s.store.ListContributors(ctx, ideaID)
}

func (s *Service) AttachBranch(ctx context.Context, actorID, childID string, in AttachBranchInput) (store.Idea, error) {
	if in.ParentID == "" {
		return store.Idea{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "parentId is required", nil)
	}
	child, err := s.store.GetIdea(ctx, childID)
	if err != nil {
		return store.Idea{}, err
	}
	if _, err := checkWrite(child, actorID); err != nil {
		return store.Idea{}, err
	}
	parent, err := s.store.GetIdea(ctx, in.ParentID)
	if err != nil {
		return store.Idea{}, err
	}
	if err := checkRead(parent, actorID); err != nil {
		return store.Idea{}, err
	}
	return s.store.SetBranchParent(ctx, childID, in.ParentID, in.Note, actorID)
}

func (s *Service) SetDisposition(ctx context.Context, actorID, ideaID string, in DispositionInput) (store.Idea, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return store.Idea{}, err
	}
	if idea.OwnerID != actorID {
		return store.Idea{}, domainError(http.StatusForbidden, "FORBIDDEN", "only the owner can pin or archive an idea", nil)
	}
	return s.store.SetIdeaDisposition(ctx, ideaID, in.Pinned, in.Archived)
}

func (s *Service) DeleteIdea(ctx context.Context, actorID, ideaID string) error {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return err
	}
	if idea.OwnerID != actorID {
		return domainError(http.StatusForbidden, "FORBIDDEN", "only the owner can delete an idea", nil)
	}
	if err := s.store.DeleteIdea(ctx, ideaID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteIdea(ideaID)
	}
	return nil
}

func (s *Service) Search(actorID, query, category string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "search is not configured", nil)
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return s.search.Search(search.Query{
		Text:     query,
		OwnerID:  actorID,
		Category: category,
		Limit:    limit,
		Offset:   offset,
	}), nil
}

func (s *Service) ListSnapshots(ctx context.Context, actorID, ideaID string, limit int) ([]snapshot.CommitInfo, error) {
	if s.snaps == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SNAPSHOTS_UNAVAILABLE", "snapshot archive is not configured", nil)
	}
	if _, err := s.GetIdea(ctx, actorID, ideaID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return s.snaps.History(ideaID, limit)
}

func (s *Service) GetSnapshot(ctx context.Context, actorID, ideaID, hash string) (snapshot.Content, error) {
	if s.snaps == nil {
		return snapshot.Content{}, domainError(http.StatusServiceUnavailable, "SNAPSHOTS_UNAVAILABLE", "snapshot archive is not configured", nil)
	}
	if _, err := s.GetIdea(ctx, actorID, ideaID); err != nil {
		return snapshot.Content{}, err
	}
	return s.snaps.GetContentByHash(ideaID, hash)
}

func (s *Service) Export(ctx context.Context, actorID, ideaID, format string) (export.Result, error) {
	if s.exporter == nil {
		return export.Result{}, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "export is not configured", nil)
	}
	if _, err := s.GetIdea(ctx, actorID, ideaID); err != nil {
		return export.Result{}, err
	}
	return s.exporter.Export(ctx, ideaID, format)
}

func (s *Service) CreateShareLink(ctx context.Context, actorID, ideaID string, in CreateShareLinkInput) (store.ShareLink, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return store.ShareLink{}, err
	}
	if idea.OwnerID != actorID {
		return store.ShareLink{}, domainError(http.StatusForbidden, "FORBIDDEN", "only the owner can share an idea", nil)
	}

	link := store.ShareLink{
		Token:     util.NewID("share"),
		IdeaID:    ideaID,
		CreatedBy: actorID,
	}
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return store.ShareLink{}, fmt.Errorf("hash share password: %w", err)
		}
		hashed := string(hash)
		link.PasswordHash = &hashed
	}
	if in.ExpiresInHours > 0 {
		expires := time.Now().Add(time.Duration(in.ExpiresInHours) * time.Hour)
		link.ExpiresAt = &expires
	}

	if err := s.store.CreateShareLink(ctx, link); err != nil {
		return store.ShareLink{}, err
	}
	return link, nil
}

// ResolveShareLink exchanges a share token (plus password when the link has
// one) for the shared idea, recording the access.
func (s *Service) ResolveShareLink(ctx context.Context, token, password string) (store.Idea, error) {
	link, err := s.store.GetShareLink(ctx, token)
	if err != nil {
		return store.Idea{}, err
	}
	if link.RevokedAt != nil {
		return store.Idea{}, domainError(http.StatusGone, "LINK_REVOKED", "this share link has been revoked", nil)
	}
	if link.ExpiresAt != nil && time.Now().After(*link.ExpiresAt) {
		return store.Idea{}, domainError(http.StatusGone, "LINK_EXPIRED", "this share link has expired", nil)
	}
	if link.PasswordHash != nil {
		if password == "" {
			return store.Idea{}, domainError(http.StatusUnauthorized, "PASSWORD_REQUIRED", "this share link requires a password", nil)
		}
		if err := bcrypt.CompareHashAndPassword([]byte(*link.PasswordHash), []byte(password)); err != nil {
			return store.Idea{}, domainError(http.StatusUnauthorized, "INVALID_PASSWORD", "incorrect share link password", nil)
		}
	}

	idea, err := s.store.GetIdea(ctx, link.IdeaID)
	if err != nil {
		return store.Idea{}, err
	}
	if err := s.store.RecordShareAccess(ctx, token); err != nil {
		log.Printf("share: recording access for %s: %v", token, err)
	}
	return idea, nil
}

func (s *Service) RevokeShareLink(ctx context.Context, actorID, ideaID, token string) error {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return err
	}
	if idea.OwnerID != actorID {
		return domainError(http.StatusForbidden, "FORBIDDEN", "only the owner can revoke a share link", nil)
	}
	revoked, err := s.store.RevokeShareLink(ctx, ideaID, token)
	if err != nil {
		return err
	}
	if !revoked {
		return domainError(http.StatusNotFound, "NOT_FOUND", "share link not found", nil)
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// checkRead allows the owner and anyone else when the idea is not private.
func checkRead(idea store.Idea, actorID string) error {
	if idea.OwnerID == actorID {
		return nil
	}
	if idea.Visibility == store.VisibilityPrivate {
		return domainError(http.StatusForbidden, "FORBIDDEN", "idea is private", nil)
	}
	return nil
}

// checkWrite allows the owner, and non-owners only on shared ideas. The
// returned flag says whether the write should record an edit contributor.
func checkWrite(idea store.Idea, actorID string) (bool, error) {
	if idea.OwnerID == actorID {
		return false, nil
	}
	if idea.Visibility != store.VisibilityShared {
		return false, domainError(http.StatusForbidden, "FORBIDDEN", "idea is not open for edits", nil)
	}
	return true, nil
}

// classifyUpdate names an owner-driven content change by its shape: a new
// title or category is a major revision, substantial growth is expansion,
// substantial shrinkage is a major revision, anything else a refinement.
func classifyUpdate(previous store.Idea, title, content, category string) string {
	if title != previous.Title || category != previous.Category {
		return store.EventMajorRevision
	}
	if len(content) > len(previous.Content)*3/2 {
		return store.EventContentExpansion
	}
	if len(content)*2 < len(previous.Content) {
		return store.EventMajorRevision
	}
	return store.EventRefinement
}
