package sync

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"mail_server/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
)

func TestStoreMessageInfoParsesFullPayload(t *testing.T) {
	f := newManagerFixture(activeAccount(1))
	account, _ := f.accounts.GetByID(1)
	f.provider.labelInfo["INBOX"] = &gmail.Label{Id: "INBOX", Name: "INBOX", Type: "system"}

	payload := fullPayload("m1", "t1", []string{"INBOX", "UNREAD"})
	payload.Payload.Headers = append(payload.Payload.Headers,
		&gmail.MessagePartHeader{Name: "Cc", Value: "Carol <carol@example.com>"},
		&gmail.MessagePartHeader{Name: "Message-ID", Value: "<abc@mail.example.com>"},
	)

	require.NoError(t, f.manager.Builder().StoreMessageInfo(context.Background(), f.provider, account, payload))

	msg, _ := f.messages.GetByRemoteID(1, "m1")
	require.NotNil(t, msg)
	assert.Equal(t, "greetings", msg.Subject)
	assert.Equal(t, "t1", msg.ThreadID)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), msg.SentDate)
	assert.True(t, msg.IsDownloaded)
	assert.False(t, msg.Read)
	assert.False(t, msg.HasAttachment)
	require.NotNil(t, msg.SenderID)

	body, _ := f.bodies.Get(context.Background(), 1, "m1")
	require.NotNil(t, body)
	assert.Equal(t, "hello there", body.BodyText)
	assert.Equal(t, "<p>hello there</p>", body.BodyHTML)

	// Sender, To and Cc all land as recipient links; Message-ID is
	// archived as a plain header row.
	assert.Len(t, f.messages.links, 3)
	require.Len(t, f.messages.headers, 1)
	assert.Equal(t, "Message-ID", f.messages.headers[0].Name)
	assert.Equal(t, domain.HashHeaderValue("<abc@mail.example.com>"), f.messages.headers[0].ValueHash)
}

func TestStoreMessageInfoSavesAttachment(t *testing.T) {
	f := newManagerFixture(activeAccount(1))
	account, _ := f.accounts.GetByID(1)

	pdf := []byte("%PDF-1.4 fake")
	payload := fullPayload("m1", "t1", nil)
	payload.Payload.Parts = append(payload.Payload.Parts, &gmail.MessagePart{
		PartId:   "2",
		MimeType: "application/pdf",
		Filename: "report.pdf",
		Body:     &gmail.MessagePartBody{AttachmentId: "att-1"},
		Headers: []*gmail.MessagePartHeader{
			{Name: "Content-Type", Value: "application/pdf; name=report.pdf"},
		},
	})
	f.provider.attachments["att-1"] = &gmail.MessagePartBody{
		Data: base64.URLEncoding.EncodeToString(pdf),
	}

	require.NoError(t, f.manager.Builder().StoreMessageInfo(context.Background(), f.provider, account, payload))

	msg, _ := f.messages.GetByRemoteID(1, "m1")
	assert.True(t, msg.HasAttachment)

	attachments, _ := f.attachments.ListByMessage(msg.ID)
	require.Len(t, attachments, 1)
	assert.Equal(t, "report.pdf", attachments[0].Filename)
	assert.Equal(t, "application/pdf", attachments[0].ContentType)
	assert.Equal(t, int64(len(pdf)), attachments[0].Size)
	assert.False(t, attachments[0].Inline)

	stored, err := f.storage.Open(attachments[0].Path)
	require.NoError(t, err)
	assert.Equal(t, pdf, stored)
	assert.True(t, strings.HasPrefix(attachments[0].Path, "downloads/attachments/"))
}

func TestStoreMessageInfoInlineAttachmentKeepsContentID(t *testing.T) {
	f := newManagerFixture(activeAccount(1))
	account, _ := f.accounts.GetByID(1)

	payload := fullPayload("m1", "t1", nil)
	payload.Payload.Parts = append(payload.Payload.Parts, &gmail.MessagePart{
		PartId:   "2",
		MimeType: "image/png",
		Filename: "logo.png",
		Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("png-bytes"))},
		Headers: []*gmail.MessagePartHeader{
			{Name: "Content-Type", Value: "image/png"},
			{Name: "Content-ID", Value: "<logo@mailer>"},
		},
	})

	require.NoError(t, f.manager.Builder().StoreMessageInfo(context.Background(), f.provider, account, payload))

	msg, _ := f.messages.GetByRemoteID(1, "m1")
	attachments, _ := f.attachments.ListByMessage(msg.ID)
	require.Len(t, attachments, 1)
	assert.True(t, attachments[0].Inline)
	assert.Equal(t, "<logo@mailer>", attachments[0].CID)
}

func TestStoreMessageInfoSurvivesAttachmentFetchFailure(t *testing.T) {
	f := newManagerFixture(activeAccount(1))
	account, _ := f.accounts.GetByID(1)

	payload := fullPayload("m1", "t1", nil)
	payload.Payload.Parts = append(payload.Payload.Parts, &gmail.MessagePart{
		PartId:   "2",
		MimeType: "application/pdf",
		Filename: "broken.pdf",
		Body:     &gmail.MessagePartBody{AttachmentId: "gone"},
	})

	require.NoError(t, f.manager.Builder().StoreMessageInfo(context.Background(), f.provider, account, payload))

	msg, _ := f.messages.GetByRemoteID(1, "m1")
	require.NotNil(t, msg)
	assert.True(t, msg.IsDownloaded)
	assert.False(t, msg.HasAttachment)
}

func TestStoreMessageInfoSecondDeliveryDoesNotDuplicate(t *testing.T) {
	f := newManagerFixture(activeAccount(1))
	account, _ := f.accounts.GetByID(1)

	payload := fullPayload("m1", "t1", nil)
	payload.Payload.Parts = append(payload.Payload.Parts, &gmail.MessagePart{
		PartId:   "2",
		MimeType: "image/png",
		Filename: "logo.png",
		Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("png"))},
	})

	require.NoError(t, f.manager.Builder().StoreMessageInfo(context.Background(), f.provider, account, payload))
	require.NoError(t, f.manager.Builder().StoreMessageInfo(context.Background(), f.provider, account, payload))

	msg, _ := f.messages.GetByRemoteID(1, "m1")
	attachments, _ := f.attachments.ListByMessage(msg.ID)
	assert.Len(t, attachments, 1)
	assert.Len(t, f.messages.headers, 0)
	assert.Len(t, f.messages.links, 2)
}

func TestParseRecipients(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{
			name:  "simple pair",
			value: "Alice <alice@example.com>, bob@example.com",
			want:  []string{"alice@example.com", "bob@example.com"},
		},
		{
			name:  "comma inside display name",
			value: `"Doe, John" <john@example.com>, jane@example.com`,
			want:  []string{"john@example.com", "jane@example.com"},
		},
		{
			name:  "bare addresses split on tld comma",
			value: "first@example.com, second@example.org",
			want:  []string{"first@example.com", "second@example.org"},
		},
		{
			name:  "single address",
			value: "Only One <only@example.com>",
			want:  []string{"only@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addresses := parseRecipients(tt.value)
			var got []string
			for _, a := range addresses {
				got = append(got, a.Address)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAttachmentFilename(t *testing.T) {
	msg := &domain.Message{MessageID: "m1"}

	part := &gmail.MessagePart{Filename: `C:\Users\me\report:v2.pdf`, PartId: "3"}
	assert.Equal(t, "reportv2.pdf", attachmentFilename(part, msg, 0, "application/pdf"))

	part = &gmail.MessagePart{Filename: strings.Repeat("x", 201), PartId: "3"}
	assert.Equal(t, "attachment-3.pdf", attachmentFilename(part, msg, 0, "application/pdf"))

	part = &gmail.MessagePart{}
	assert.Equal(t, "attachment-m1-2.txt", attachmentFilename(part, msg, 2, "text/plain"))

	part = &gmail.MessagePart{PartId: "5"}
	assert.Equal(t, "attachment-5.html", attachmentFilename(part, msg, 0, "text/html"))

	part = &gmail.MessagePart{PartId: "6"}
	assert.Equal(t, "attachment-6.bak", attachmentFilename(part, msg, 0, "x-weird/unknown"))
}
