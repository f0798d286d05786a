package sync

import (
	"context"
	"testing"

	"mail_server/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

func (f *managerFixture) seedMessage(read bool, remoteLabels ...string) *domain.Message {
	msg := f.messages.add(&domain.Message{
		AccountID:    1,
		MessageID:    "m1",
		IsDownloaded: true,
		Read:         read,
	})
	for _, labelID := range remoteLabels {
		label := f.labels.add(&domain.Label{AccountID: 1, LabelID: labelID, Name: labelID})
		_ = f.messages.AttachLabel(msg.ID, label.ID)
	}
	return msg
}

func TestToggleReadMarksLocalFirstAndRemovesUnreadRemotely(t *testing.T) {
	f := newManagerFixture(activeAccount(1))
	msg := f.seedMessage(false, "INBOX")

	require.NoError(t, f.manager.ToggleRead(context.Background(), msg.ID, true))

	assert.True(t, f.messages.rows[msg.ID].Read)
	require.Len(t, f.provider.edits, 1)
	assert.Empty(t, f.provider.edits[0].add)
	assert.Equal(t, []string{"UNREAD"}, f.provider.edits[0].remove)
	assert.NotEmpty(t, f.labels.recounts, "unread counters refresh after a label edit")
}

func TestToggleReadUnreadAddsLabelRemotely(t *testing.T) {
	f := newManagerFixture(activeAccount(1))
	msg := f.seedMessage(true, "INBOX")

	require.NoError(t, f.manager.ToggleRead(context.Background(), msg.ID, false))

	assert.False(t, f.messages.rows[msg.ID].Read)
	require.Len(t, f.provider.edits, 1)
	assert.Equal(t, []string{"UNREAD"}, f.provider.edits[0].add)
}

func TestArchiveStripsAllRemoteLabels(t *testing.T) {
	f := newManagerFixture(activeAccount(1))
	msg := f.seedMessage(false, "INBOX")
	f.provider.labelLists["m1"] = []string{"INBOX", "UNREAD"}

	require.NoError(t, f.manager.Archive(context.Background(), msg.ID))

	require.Len(t, f.provider.edits, 1)
	assert.Equal(t, []string{"INBOX", "UNREAD"}, f.provider.edits[0].remove)

	assert.False(t, f.messages.hasLabel(msg.ID, "INBOX"))
	// UNREAD was among the stripped labels, so the message reads as seen.
	assert.True(t, f.messages.rows[msg.ID].Read)
}

func TestLabelEditRejectionIsSwallowedAndMirroredLocally(t *testing.T) {
	f := newManagerFixture(activeAccount(1))
	msg := f.seedMessage(false, "INBOX")
	f.provider.labelLists["m1"] = []string{"INBOX"}
	f.provider.editErr = &googleapi.Error{Code: 400, Message: "invalidLabel"}

	require.NoError(t, f.manager.Archive(context.Background(), msg.ID))

	assert.False(t, f.messages.hasLabel(msg.ID, "INBOX"))
}

func TestLabelEditServerErrorPropagates(t *testing.T) {
	f := newManagerFixture(activeAccount(1))
	msg := f.seedMessage(false, "INBOX")
	f.provider.labelLists["m1"] = []string{"INBOX"}
	f.provider.editErr = &googleapi.Error{Code: 500}

	require.Error(t, f.manager.Archive(context.Background(), msg.ID))

	// Local state untouched when the remote call failed hard.
	assert.True(t, f.messages.hasLabel(msg.ID, "INBOX"))
}

func TestTrashMirrorsReturnedLabelState(t *testing.T) {
	f := newManagerFixture(activeAccount(1))
	msg := f.seedMessage(false, "INBOX")
	f.labels.add(&domain.Label{AccountID: 1, LabelID: "TRASH", Name: "TRASH", Type: domain.LabelTypeSystem})
	f.provider.minimal["m1"] = &gmail.Message{Id: "m1", ThreadId: "t1", LabelIds: []string{"TRASH"}}

	require.NoError(t, f.manager.Trash(context.Background(), msg.ID))

	assert.Equal(t, []string{"m1"}, f.provider.trashed)
	assert.False(t, f.messages.hasLabel(msg.ID, "INBOX"))
	assert.True(t, f.messages.hasLabel(msg.ID, "TRASH"))
}

func TestDeleteRemovesRemoteThenLocal(t *testing.T) {
	f := newManagerFixture(activeAccount(1))
	msg := f.seedMessage(true, "TRASH")
	require.NoError(t, f.bodies.Upsert(context.Background(), &domain.MessageBody{AccountID: 1, MessageID: "m1"}))

	require.NoError(t, f.manager.Delete(context.Background(), msg.ID))

	assert.Equal(t, []string{"m1"}, f.provider.deleted)
	row, _ := f.messages.GetByRemoteID(1, "m1")
	assert.Nil(t, row)
	body, _ := f.bodies.Get(context.Background(), 1, "m1")
	assert.Nil(t, body)
}

func TestUnknownLabelsAreDroppedFromAdds(t *testing.T) {
	f := newManagerFixture(activeAccount(1))
	account, _ := f.accounts.GetByID(1)

	filtered := f.manager.filterAddable(account, []string{"UNREAD", "Label_unknown"})
	assert.Equal(t, []string{"UNREAD"}, filtered)
}
