package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"mail_server/core/domain"
	"mail_server/core/port/in"
	"mail_server/core/port/out"
	"mail_server/pkg/apperr"
	"mail_server/pkg/logger"

	"google.golang.org/api/googleapi"
)

// ToggleRead flips the read state. The local flag changes first so list
// views update even when the remote call lags or fails; the remote side
// converges through the UNREAD label edit.
func (m *Manager) ToggleRead(ctx context.Context, messageID int64, read bool) error {
	msg, account, provider, err := m.resolveMessage(ctx, messageID)
	if err != nil {
		return err
	}

	if err := m.messages.SetRead(msg.ID, read); err != nil {
		return fmt.Errorf("failed to set read flag: %w", err)
	}

	var add, remove []string
	if read {
		remove = []string{m.cfg.UnreadLabel}
	} else {
		add = []string{m.cfg.UnreadLabel}
	}
	return m.updateLabels(ctx, provider, account, msg, add, remove)
}

// Archive strips every label the message currently carries remotely.
// When UNREAD is among them the message also flips to read; archiving
// an unread message marks it read and that is intended.
func (m *Manager) Archive(ctx context.Context, messageID int64) error {
	msg, account, provider, err := m.resolveMessage(ctx, messageID)
	if err != nil {
		return err
	}

	labelIDs, err := provider.GetMessageLabelList(ctx, msg.MessageID)
	if err != nil {
		return err
	}
	return m.updateLabels(ctx, provider, account, msg, nil, labelIDs)
}

// Trash moves the message to the remote trash and mirrors the returned
// label state.
func (m *Manager) Trash(ctx context.Context, messageID int64) error {
	msg, account, provider, err := m.resolveMessage(ctx, messageID)
	if err != nil {
		return err
	}

	payload, err := provider.TrashMessage(ctx, msg.MessageID)
	if err != nil {
		return err
	}

	if err := m.builder.UpdateMessage(ctx, provider, account, payload); err != nil {
		return err
	}

	m.recountUnread(account)
	return nil
}

// Delete removes the message permanently, remote first.
func (m *Manager) Delete(ctx context.Context, messageID int64) error {
	msg, account, provider, err := m.resolveMessage(ctx, messageID)
	if err != nil {
		return err
	}

	if err := provider.DeleteMessage(ctx, msg.MessageID); err != nil {
		return err
	}

	if err := m.deleteLocal(ctx, account, msg.MessageID); err != nil {
		return err
	}

	m.recountUnread(account)
	return nil
}

// updateLabels pushes a label edit remote-first, then mirrors it
// locally and refreshes unread counters. A remote 400 means the edit
// named a label Gmail will not accept; local state is kept and the
// rejection only logged, matching the remote state on the next sync.
func (m *Manager) updateLabels(ctx context.Context, provider out.EmailProvider, account *domain.Account, msg *domain.Message, add, remove []string) error {
	add = m.filterAddable(account, add)
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}

	if _, err := provider.UpdateLabels(ctx, msg.MessageID, add, remove); err != nil {
		if !isBadRequest(err) {
			return err
		}
		logger.WithAccount(account.ID).WithMessage(msg.MessageID).
			Warn("label update rejected, keeping local state: %v", err)
	}

	for _, labelID := range add {
		if err := m.mirrorLabel(msg, labelID, true); err != nil {
			return err
		}
	}
	for _, labelID := range remove {
		if err := m.mirrorLabel(msg, labelID, false); err != nil {
			return err
		}
	}

	m.recountUnread(account)
	return nil
}

// mirrorLabel applies one add/remove locally. The unread label folds
// into the read flag; labels the replica does not know are skipped.
func (m *Manager) mirrorLabel(msg *domain.Message, labelID string, added bool) error {
	if labelID == m.cfg.UnreadLabel {
		if err := m.messages.SetRead(msg.ID, !added); err != nil {
			return fmt.Errorf("failed to set read flag: %w", err)
		}
		return nil
	}

	label, err := m.labels.GetByRemoteID(msg.AccountID, labelID)
	if err != nil {
		return fmt.Errorf("failed to load label: %w", err)
	}
	if label == nil {
		return nil
	}

	if added {
		err = m.messages.AttachLabel(msg.ID, label.ID)
	} else {
		err = m.messages.DetachLabel(msg.ID, label.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update label %s: %w", labelID, err)
	}
	return nil
}

// filterAddable keeps only labels the replica knows, plus the unread
// label. Adding a label id Gmail has never told us about is always a
// caller bug.
func (m *Manager) filterAddable(account *domain.Account, add []string) []string {
	var known []string
	for _, labelID := range add {
		if labelID == m.cfg.UnreadLabel {
			known = append(known, labelID)
			continue
		}
		label, err := m.labels.GetByRemoteID(account.ID, labelID)
		if err != nil || label == nil {
			logger.WithAccount(account.ID).Warn("dropping unknown label %s from edit", labelID)
			continue
		}
		known = append(known, labelID)
	}
	return known
}

// resolveMessage loads a message row by local id together with its
// account and provider.
func (m *Manager) resolveMessage(ctx context.Context, messageID int64) (*domain.Message, *domain.Account, out.EmailProvider, error) {
	msg, err := m.messages.GetByID(messageID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load message: %w", err)
	}
	if msg == nil {
		return nil, nil, nil, apperr.NotFound("message")
	}

	account, err := m.accounts.GetByID(msg.AccountID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return nil, nil, nil, apperr.NotFound("account")
	}

	provider, err := m.factory.ForAccount(ctx, account)
	if err != nil {
		return nil, nil, nil, err
	}
	return msg, account, provider, nil
}

func isBadRequest(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest
}

// Ensure Manager implements in.MailboxService
var _ in.MailboxService = (*Manager)(nil)
