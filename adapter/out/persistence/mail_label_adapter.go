package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"mail_server/core/domain"
	"mail_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

// LabelAdapter implements out.LabelRepository using PostgreSQL.
type LabelAdapter struct {
	db *sqlx.DB
}

// NewLabelAdapter creates a new LabelAdapter.
func NewLabelAdapter(db *sqlx.DB) *LabelAdapter {
	return &LabelAdapter{db: db}
}

// labelRow represents the database row for labels.
type labelRow struct {
	ID        int64     `db:"id"`
	AccountID int64     `db:"account_id"`
	LabelID   string    `db:"label_id"`
	Name      string    `db:"name"`
	Type      int       `db:"type"`
	Unread    int       `db:"unread"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *labelRow) toEntity() *domain.Label {
	return &domain.Label{
		ID:        r.ID,
		AccountID: r.AccountID,
		LabelID:   r.LabelID,
		Name:      r.Name,
		Type:      domain.LabelType(r.Type),
		Unread:    r.Unread,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// GetByID retrieves a label by its local ID.
func (a *LabelAdapter) GetByID(id int64) (*domain.Label, error) {
	var row labelRow
	query := `SELECT * FROM labels WHERE id = $1`

	if err := a.db.Get(&row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get label: %w", err)
	}
	return row.toEntity(), nil
}

// GetByRemoteID retrieves a label by (account, remote id).
func (a *LabelAdapter) GetByRemoteID(accountID int64, labelID string) (*domain.Label, error) {
	var row labelRow
	query := `SELECT * FROM labels WHERE account_id = $1 AND label_id = $2`

	if err := a.db.Get(&row, query, accountID, labelID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get label: %w", err)
	}
	return row.toEntity(), nil
}

// ListByAccount retrieves all labels of an account.
func (a *LabelAdapter) ListByAccount(accountID int64) ([]*domain.Label, error) {
	var rows []labelRow
	query := `SELECT * FROM labels WHERE account_id = $1 ORDER BY type, name`

	if err := a.db.Select(&rows, query, accountID); err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}

	labels := make([]*domain.Label, len(rows))
	for i, row := range rows {
		labels[i] = row.toEntity()
	}
	return labels, nil
}

// Create inserts a label row. (account_id, label_id) is unique, so a
// concurrent create of the same label fails here and the caller falls
// back to the winner's row.
func (a *LabelAdapter) Create(label *domain.Label) error {
	query := `
		INSERT INTO labels (account_id, label_id, name, type, unread, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id`

	if err := a.db.Get(&label.ID, query, label.AccountID, label.LabelID, label.Name, int(label.Type), label.Unread); err != nil {
		return fmt.Errorf("failed to create label: %w", err)
	}
	return nil
}

// UpdateName renames a label.
func (a *LabelAdapter) UpdateName(id int64, name string) error {
	query := `UPDATE labels SET name = $2, updated_at = NOW() WHERE id = $1`
	if _, err := a.db.Exec(query, id, name); err != nil {
		return fmt.Errorf("failed to rename label: %w", err)
	}
	return nil
}

// Delete removes a label row; associations cascade.
func (a *LabelAdapter) Delete(id int64) error {
	if _, err := a.db.Exec(`DELETE FROM labels WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete label: %w", err)
	}
	return nil
}

// RecomputeUnread sets unread to the count of the label's unread
// messages in one statement, so concurrent recounts cannot clobber
// each other with stale values.
func (a *LabelAdapter) RecomputeUnread(id int64) error {
	query := `
		UPDATE labels
		SET unread = (
			SELECT COUNT(*) FROM message_labels ml
			JOIN messages m ON m.id = ml.message_id
			WHERE ml.label_id = labels.id AND m.read = false AND m.is_deleted = false
		),
		updated_at = NOW()
		WHERE id = $1`

	if _, err := a.db.Exec(query, id); err != nil {
		return fmt.Errorf("failed to recompute unread count: %w", err)
	}
	return nil
}

// Ensure LabelAdapter implements out.LabelRepository
var _ out.LabelRepository = (*LabelAdapter)(nil)
