package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Branch chains deeper than this are treated as corrupt regardless of
// whether an explicit cycle was seen.
const maxAncestorDepth = 64

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) EnsureUser(ctx context.Context, userID, displayName string) (User, error) {
	if displayName == "" {
		displayName = userID
	}
	var user User
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET display_name=CASE WHEN $2 <> '' THEN $2 ELSE users.display_name END
		RETURNING id, display_name, created_at
	`, userID, displayName).Scan(&user.ID, &user.DisplayName, &user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("ensure user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, created_at FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

const ideaColumns = `id, title, content, category, owner_id, development_count, pinned, archived, visibility, branched_from_id, COALESCE(branch_note, ''), created_at, updated_at`

func scanIdea(row interface{ Scan(...any) error }) (Idea, error) {
	var item Idea
	err := row.Scan(
		&item.ID,
		&item.Title,
		&item.Content,
		&item.Category,
		&item.OwnerID,
		&item.DevelopmentCount,
		&item.Pinned,
		&item.Archived,
		&item.Visibility,
		&item.BranchedFromID,
		&item.BranchNote,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) GetIdea(ctx context.Context, ideaID string) (Idea, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id=$1`, ideaID)
	item, err := scanIdea(row)
	if err != nil {
		return Idea{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListIdeas(ctx context.Context, ownerID string, includeArchived bool) ([]Idea, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ideaColumns+`
		FROM ideas
		WHERE ($1='' OR owner_id=$1)
		  AND ($2::boolean OR NOT archived)
		ORDER BY pinned DESC, updated_at DESC
	`, ownerID, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	defer rows.Close()

	items := make([]Idea, 0)
	for rows.Next() {
		item, err := scanIdea(rows)
		if err != nil {
			return nil, fmt.Errorf("scan idea: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ideas: %w", err)
	}
	return items, nil
}

// CreateIdea inserts the idea, its original contributor row, and the
// initial_creation history entry as one transaction.
func (s *PostgresStore) CreateIdea(ctx context.Context, idea Idea, entry HistoryEntry) (Idea, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Idea{}, fmt.Errorf("begin create idea: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	visibility := idea.Visibility
	if visibility == "" {
		visibility = VisibilityPrivate
	}
	row := tx.QueryRowContext(ctx, `
		INSERT INTO ideas (id, title, content, category, owner_id, development_count, visibility, branched_from_id, branch_note)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7, NULLIF($8, ''))
		RETURNING `+ideaColumns+`
	`, idea.ID, idea.Title, idea.Content, idea.Category, idea.OwnerID, visibility, idea.BranchedFromID, idea.BranchNote)
	created, err := scanIdea(row)
	if err != nil {
		return Idea{}, fmt.Errorf("insert idea: %w", err)
	}

	if err := upsertContributorTx(ctx, tx, Contributor{
		IdeaID:           idea.ID,
		UserID:           idea.OwnerID,
		ContributionType: ContributionOriginal,
	}); err != nil {
		return Idea{}, err
	}

	entry.IdeaID = idea.ID
	if entry.EventType == "" {
		entry.EventType = EventInitialCreation
	}
	entry.NewTitle = created.Title
	entry.NewContent = created.Content
	entry.NewCategory = created.Category
	if err := appendHistoryTx(ctx, tx, entry); err != nil {
		return Idea{}, err
	}

	if err := tx.Commit(); err != nil {
		return Idea{}, fmt.Errorf("commit create idea: %w", err)
	}
	return created, nil
}

// UpdateIdea applies a content mutation under the idea's row lock, bumping
// development_count and appending the history entry in the same transaction.
// The history snapshot is taken from the locked row.
func (s *PostgresStore) UpdateIdea(ctx context.Context, ideaID string, m IdeaMutation) (Idea, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Idea{}, fmt.Errorf("begin update idea: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id=$1 FOR UPDATE`, ideaID)
	previous, err := scanIdea(row)
	if err != nil {
		return Idea{}, err
	}

	updated, err := applyUpdateTx(ctx, tx, previous, m)
	if err != nil {
		return Idea{}, err
	}

	if m.RecordEdit {
		if err := upsertContributorTx(ctx, tx, Contributor{
			IdeaID:           ideaID,
			UserID:           m.ActorID,
			ContributionType: ContributionEdit,
		}); err != nil {
			return Idea{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Idea{}, fmt.Errorf("commit update idea: %w", err)
	}
	return updated, nil
}

// BranchIdea creates a child idea forked from a parent. The parent's
// ancestor chain is read inside the transaction so two concurrent branch
// creations cannot race into a cycle.
func (s *PostgresStore) BranchIdea(ctx context.Context, spec BranchSpec) (Idea, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Idea{}, fmt.Errorf("begin branch idea: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id=$1 FOR UPDATE`, spec.ParentID)
	parent, err := scanIdea(row)
	if err != nil {
		return Idea{}, err
	}

	if _, err := ancestorChainTx(ctx, tx, parent, spec.Child.ID); err != nil {
		return Idea{}, err
	}

	child := spec.Child
	child.BranchedFromID = &parent.ID
	crow := tx.QueryRowContext(ctx, `
		INSERT INTO ideas (id, title, content, category, owner_id, development_count, visibility, branched_from_id, branch_note)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7, NULLIF($8, ''))
		RETURNING `+ideaColumns+`
	`, child.ID, child.Title, child.Content, child.Category, child.OwnerID, defaultVisibility(child.Visibility), parent.ID, child.BranchNote)
	created, err := scanIdea(crow)
	if err != nil {
		return Idea{}, fmt.Errorf("insert branch child: %w", err)
	}

	if err := upsertContributorTx(ctx, tx, Contributor{
		IdeaID:           created.ID,
		UserID:           child.OwnerID,
		ContributionType: ContributionOriginal,
		Details:          map[string]any{"branched_from": parent.ID},
	}); err != nil {
		return Idea{}, err
	}

	summary := spec.ChangeSummary
	if summary == "" {
		summary = fmt.Sprintf("Branched from %s", parent.ID)
	}
	if err := appendHistoryTx(ctx, tx, HistoryEntry{
		IdeaID:        created.ID,
		Actor:         child.OwnerID,
		EventType:     EventBranchCreated,
		NewTitle:      created.Title,
		NewContent:    created.Content,
		NewCategory:   created.Category,
		ChangeSummary: summary,
	}); err != nil {
		return Idea{}, err
	}

	if err := tx.Commit(); err != nil {
		return Idea{}, fmt.Errorf("commit branch idea: %w", err)
	}
	return created, nil
}

// SetBranchParent re-parents an existing idea under another. Both rows are
// locked and the new parent's ancestor chain is checked for the child before
// the pointer moves; a chain containing the child means a cycle.
func (s *PostgresStore) SetBranchParent(ctx context.Context, childID, parentID, note, actorID string) (Idea, error) {
	if childID == parentID {
		return Idea{}, ErrCorruptGraph
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Idea{}, fmt.Errorf("begin set branch parent: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	first, second := childID, parentID
	if second < first {
		first, second = second, first
	}
	if _, err := lockIdeaTx(ctx, tx, first); err != nil {
		return Idea{}, err
	}
	if _, err := lockIdeaTx(ctx, tx, second); err != nil {
		return Idea{}, err
	}

	parent, err := getIdeaTx(ctx, tx, parentID)
	if err != nil {
		return Idea{}, err
	}
	if _, err := ancestorChainTx(ctx, tx, parent, childID); err != nil {
		return Idea{}, err
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE ideas
		SET branched_from_id=$2, branch_note=NULLIF($3, ''), updated_at=NOW()
		WHERE id=$1
		RETURNING `+ideaColumns+`
	`, childID, parentID, note)
	child, err := scanIdea(row)
	if err != nil {
		return Idea{}, fmt.Errorf("set branch parent: %w", err)
	}

	if err := appendHistoryTx(ctx, tx, HistoryEntry{
		IdeaID:           childID,
		Actor:            actorID,
		EventType:        EventBranchCreated,
		PreviousTitle:    child.Title,
		NewTitle:         child.Title,
		PreviousContent:  child.Content,
		NewContent:       child.Content,
		PreviousCategory: child.Category,
		NewCategory:      child.Category,
		ChangeSummary:    fmt.Sprintf("Attached as branch of %s: %s", parentID, note),
	}); err != nil {
		return Idea{}, err
	}

	if err := tx.Commit(); err != nil {
		return Idea{}, fmt.Errorf("commit set branch parent: %w", err)
	}
	return child, nil
}

// MergeIdeas folds the donor into the target: merged content is applied to
// the target, the donor's contributors are copied over with original
// remapped to merge, and the donor disposition is applied. Both idea rows
// are locked in ascending id order for the duration of the transaction.
func (s *PostgresStore) MergeIdeas(ctx context.Context, spec MergeSpec) (Idea, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Idea{}, fmt.Errorf("begin merge ideas: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	first, second := spec.TargetID, spec.DonorID
	if second < first {
		first, second = second, first
	}
	if _, err := lockIdeaTx(ctx, tx, first); err != nil {
		return Idea{}, err
	}
	if _, err := lockIdeaTx(ctx, tx, second); err != nil {
		return Idea{}, err
	}

	target, err := getIdeaTx(ctx, tx, spec.TargetID)
	if err != nil {
		return Idea{}, err
	}
	donor, err := getIdeaTx(ctx, tx, spec.DonorID)
	if err != nil {
		return Idea{}, err
	}

	updated, err := applyUpdateTx(ctx, tx, target, IdeaMutation{
		Title:         spec.MergedTitle,
		Content:       spec.MergedContent,
		Category:      target.Category,
		ActorID:       spec.ActorID,
		EventType:     EventMajorRevision,
		ChangeSummary: spec.ChangeSummary,
		Confidence:    spec.Confidence,
	})
	if err != nil {
		return Idea{}, err
	}

	if err := copyContributorsTx(ctx, tx, donor.ID, target.ID); err != nil {
		return Idea{}, err
	}

	switch spec.Disposition {
	case DispositionKeep:
		// donor untouched
	case DispositionDelete:
		// Re-root the donor's children onto the merge target before the
		// donor row (and its history, via cascade) goes away.
		if _, err := tx.ExecContext(ctx, `
			UPDATE ideas SET branched_from_id=$2, updated_at=NOW() WHERE branched_from_id=$1
		`, donor.ID, target.ID); err != nil {
			return Idea{}, fmt.Errorf("re-root donor children: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM ideas WHERE id=$1`, donor.ID); err != nil {
			return Idea{}, fmt.Errorf("delete donor idea: %w", err)
		}
	default: // archive
		if _, err := tx.ExecContext(ctx, `
			UPDATE ideas SET archived=TRUE, updated_at=NOW() WHERE id=$1
		`, donor.ID); err != nil {
			return Idea{}, fmt.Errorf("archive donor idea: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Idea{}, fmt.Errorf("commit merge ideas: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) SetIdeaDisposition(ctx context.Context, ideaID string, pinned, archived *bool) (Idea, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE ideas
		SET pinned=COALESCE($2, pinned), archived=COALESCE($3, archived)
		WHERE id=$1
		RETURNING `+ideaColumns+`
	`, ideaID, pinned, archived)
	item, err := scanIdea(row)
	if err != nil {
		return Idea{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteIdea(ctx context.Context, ideaID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM ideas WHERE id=$1`, ideaID)
	if err != nil {
		return fmt.Errorf("delete idea: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete idea rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, ideaID string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idea_id, actor_id, event_type,
			previous_title, new_title, previous_content, new_content,
			previous_category, new_category, change_summary, confidence_score, created_at
		FROM idea_history
		WHERE idea_id=$1
		ORDER BY created_at DESC, id DESC
	`, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	items := make([]HistoryEntry, 0)
	for rows.Next() {
		var item HistoryEntry
		if err := rows.Scan(
			&item.ID,
			&item.IdeaID,
			&item.Actor,
			&item.EventType,
			&item.PreviousTitle,
			&item.NewTitle,
			&item.PreviousContent,
			&item.NewContent,
			&item.PreviousCategory,
			&item.NewCategory,
			&item.ChangeSummary,
			&item.ConfidenceScore,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) HistoryStats(ctx context.Context, ideaID string) (HistoryStats, error) {
	var stats HistoryStats
	var span sql.NullFloat64
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			EXTRACT(EPOCH FROM (MAX(created_at) - MIN(created_at))) / 86400,
			AVG(confidence_score)
		FROM idea_history
		WHERE idea_id=$1
	`, ideaID).Scan(&stats.EntryCount, &span, &avg)
	if err != nil {
		return HistoryStats{}, fmt.Errorf("history stats: %w", err)
	}
	if span.Valid {
		stats.SpanDays = int(span.Float64)
	}
	if avg.Valid {
		value := avg.Float64
		stats.AverageConfidence = &value
	}
	return stats, nil
}

func (s *PostgresStore) ListContributors(ctx context.Context, ideaID string) ([]Contributor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.idea_id, c.user_id, COALESCE(u.display_name, c.user_id), c.contribution_type, c.contributed_at, COALESCE(c.details::text, '{}')
		FROM contributors c
		LEFT JOIN users u ON u.id = c.user_id
		WHERE c.idea_id=$1
		ORDER BY (c.contribution_type <> 'original') ASC, c.contributed_at ASC
	`, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list contributors: %w", err)
	}
	defer rows.Close()

	items := make([]Contributor, 0)
	for rows.Next() {
		var item Contributor
		var detailsRaw string
		if err := rows.Scan(&item.IdeaID, &item.UserID, &item.DisplayName, &item.ContributionType, &item.ContributedAt, &detailsRaw); err != nil {
			return nil, fmt.Errorf("scan contributor: %w", err)
		}
		_ = json.Unmarshal([]byte(detailsRaw), &item.Details)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contributors: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListChildren(ctx context.Context, ideaID string) ([]Idea, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ideaColumns+`
		FROM ideas
		WHERE branched_from_id=$1
		ORDER BY created_at ASC
	`, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	items := make([]Idea, 0)
	for rows.Next() {
		item, err := scanIdea(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child idea: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate children: %w", err)
	}
	return items, nil
}

// AncestorChain returns the chain from the idea to its root, the idea itself
// first. A cycle or an over-deep chain yields ErrCorruptGraph.
func (s *PostgresStore) AncestorChain(ctx context.Context, ideaID string) ([]Idea, error) {
	start, err := s.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}

	chain := []Idea{start}
	seen := map[string]bool{start.ID: true}
	current := start
	for current.BranchedFromID != nil {
		if len(chain) >= maxAncestorDepth {
			return nil, ErrCorruptGraph
		}
		parent, err := s.GetIdea(ctx, *current.BranchedFromID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// dangling pointer: treat the last resolvable idea as root
				break
			}
			return nil, err
		}
		if seen[parent.ID] {
			return nil, ErrCorruptGraph
		}
		seen[parent.ID] = true
		chain = append(chain, parent)
		current = parent
	}
	return chain, nil
}

func (s *PostgresStore) CreateShareLink(ctx context.Context, link ShareLink) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO share_links (token, idea_id, created_by, password_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, link.Token, link.IdeaID, link.CreatedBy, link.PasswordHash, link.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create share link: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetShareLink(ctx context.Context, token string) (ShareLink, error) {
	var link ShareLink
	err := s.db.QueryRowContext(ctx, `
		SELECT token, idea_id, created_by, password_hash, expires_at, access_count, last_accessed_at, created_at, revoked_at
		FROM share_links
		WHERE token=$1
	`, token).Scan(
		&link.Token,
		&link.IdeaID,
		&link.CreatedBy,
		&link.PasswordHash,
		&link.ExpiresAt,
		&link.AccessCount,
		&link.LastAccessedAt,
		&link.CreatedAt,
		&link.RevokedAt,
	)
	if err != nil {
		return ShareLink{}, err
	}
	return link, nil
}

func (s *PostgresStore) RevokeShareLink(ctx context.Context, ideaID, token string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE share_links SET revoked_at=NOW()
		WHERE token=$1 AND idea_id=$2 AND revoked_at IS NULL
	`, token, ideaID)
	if err != nil {
		return false, fmt.Errorf("revoke share link: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke share link rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) RecordShareAccess(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE share_links SET access_count=access_count+1, last_accessed_at=NOW()
		WHERE token=$1
	`, token)
	if err != nil {
		return fmt.Errorf("record share access: %w", err)
	}
	return nil
}

// --- transaction helpers ---

func lockIdeaTx(ctx context.Context, tx *sql.Tx, ideaID string) (Idea, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id=$1 FOR UPDATE`, ideaID)
	return scanIdea(row)
}

func getIdeaTx(ctx context.Context, tx *sql.Tx, ideaID string) (Idea, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id=$1`, ideaID)
	return scanIdea(row)
}

// applyUpdateTx updates the already-locked previous row and appends the
// matching history entry. development_count moves by exactly one.
func applyUpdateTx(ctx context.Context, tx *sql.Tx, previous Idea, m IdeaMutation) (Idea, error) {
	row := tx.QueryRowContext(ctx, `
		UPDATE ideas
		SET title=$2, content=$3, category=$4, development_count=development_count+1, updated_at=NOW()
		WHERE id=$1
		RETURNING `+ideaColumns+`
	`, previous.ID, m.Title, m.Content, m.Category)
	updated, err := scanIdea(row)
	if err != nil {
		return Idea{}, fmt.Errorf("apply idea update: %w", err)
	}

	if err := appendHistoryTx(ctx, tx, HistoryEntry{
		IdeaID:           previous.ID,
		Actor:            m.ActorID,
		EventType:        m.EventType,
		PreviousTitle:    previous.Title,
		NewTitle:         updated.Title,
		PreviousContent:  previous.Content,
		NewContent:       updated.Content,
		PreviousCategory: previous.Category,
		NewCategory:      updated.Category,
		ChangeSummary:    m.ChangeSummary,
		ConfidenceScore:  m.Confidence,
	}); err != nil {
		return Idea{}, err
	}
	return updated, nil
}

func appendHistoryTx(ctx context.Context, tx *sql.Tx, entry HistoryEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO idea_history (idea_id, actor_id, event_type,
			previous_title, new_title, previous_content, new_content,
			previous_category, new_category, change_summary, confidence_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		entry.IdeaID,
		entry.Actor,
		entry.EventType,
		entry.PreviousTitle,
		entry.NewTitle,
		entry.PreviousContent,
		entry.NewContent,
		entry.PreviousCategory,
		entry.NewCategory,
		entry.ChangeSummary,
		entry.ConfidenceScore,
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func upsertContributorTx(ctx context.Context, tx *sql.Tx, c Contributor) error {
	details := c.Details
	if details == nil {
		details = map[string]any{}
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal contributor details: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO contributors (idea_id, user_id, contribution_type, details)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (idea_id, user_id, contribution_type)
		DO UPDATE SET contributed_at=NOW(), details=EXCLUDED.details
	`, c.IdeaID, c.UserID, c.ContributionType, string(encoded))
	if err != nil {
		return fmt.Errorf("upsert contributor: %w", err)
	}
	return nil
}

// copyContributorsTx folds every donor contributor into the target,
// remapping original to merge. Existing target rows only get their
// timestamp and details refreshed.
func copyContributorsTx(ctx context.Context, tx *sql.Tx, donorID, targetID string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT user_id, contribution_type, COALESCE(details::text, '{}')
		FROM contributors
		WHERE idea_id=$1
	`, donorID)
	if err != nil {
		return fmt.Errorf("read donor contributors: %w", err)
	}

	type donated struct {
		userID           string
		contributionType string
		details          map[string]any
	}
	items := make([]donated, 0)
	for rows.Next() {
		var item donated
		var detailsRaw string
		if err := rows.Scan(&item.userID, &item.contributionType, &detailsRaw); err != nil {
			rows.Close()
			return fmt.Errorf("scan donor contributor: %w", err)
		}
		_ = json.Unmarshal([]byte(detailsRaw), &item.details)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate donor contributors: %w", err)
	}
	rows.Close()

	for _, item := range items {
		contributionType := item.contributionType
		if contributionType == ContributionOriginal {
			contributionType = ContributionMerge
		}
		details := item.details
		if details == nil {
			details = map[string]any{}
		}
		details["merged_from"] = donorID
		if err := upsertContributorTx(ctx, tx, Contributor{
			IdeaID:           targetID,
			UserID:           item.userID,
			ContributionType: contributionType,
			Details:          details,
		}); err != nil {
			return err
		}
	}
	return nil
}

// ancestorChainTx walks the chain from start to the root inside the
// transaction. If forbiddenID appears anywhere in the chain the operation
// would create a cycle.
func ancestorChainTx(ctx context.Context, tx *sql.Tx, start Idea, forbiddenID string) ([]Idea, error) {
	if forbiddenID != "" && start.ID == forbiddenID {
		return nil, ErrCorruptGraph
	}
	chain := []Idea{start}
	seen := map[string]bool{start.ID: true}
	current := start
	for current.BranchedFromID != nil {
		if len(chain) >= maxAncestorDepth {
			return nil, ErrCorruptGraph
		}
		parent, err := getIdeaTx(ctx, tx, *current.BranchedFromID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				break
			}
			return nil, err
		}
		if seen[parent.ID] || (forbiddenID != "" && parent.ID == forbiddenID) {
			return nil, ErrCorruptGraph
		}
		seen[parent.ID] = true
		chain = append(chain, parent)
		current = parent
	}
	return chain, nil
}

func defaultVisibility(v string) string {
	if v == "" {
		return VisibilityPrivate
	}
	return v
}
