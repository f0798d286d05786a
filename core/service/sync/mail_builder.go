package sync

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"mail_server/config"
	"mail_server/core/domain"
	"mail_server/core/port/out"
	"mail_server/pkg/apperr"
	"mail_server/pkg/logger"

	"google.golang.org/api/gmail/v1"
)

// maxFilenameLength caps stored attachment names; anything longer is
// replaced with a synthesized name.
const maxFilenameLength = 200

// labelResolver is the slice of the manager the builder calls back into
// to resolve label rows while storing a payload.
type labelResolver interface {
	GetLabel(ctx context.Context, provider out.EmailProvider, account *domain.Account, labelID string) (*domain.Label, error)
}

// MessageBuilder translates Gmail payloads into replica rows: message,
// headers, recipients, attachments and the body document.
type MessageBuilder struct {
	cfg         *config.Config
	messages    out.MessageRepository
	attachments out.AttachmentRepository
	bodies      out.BodyRepository
	storage     out.BlobStorage
	resolver    labelResolver
}

func newMessageBuilder(
	cfg *config.Config,
	messages out.MessageRepository,
	attachments out.AttachmentRepository,
	bodies out.BodyRepository,
	storage out.BlobStorage,
	resolver labelResolver,
) *MessageBuilder {
	return &MessageBuilder{
		cfg:         cfg,
		messages:    messages,
		attachments: attachments,
		bodies:      bodies,
		storage:     storage,
		resolver:    resolver,
	}
}

// walkState accumulates bodies and the attachment count while walking a
// payload tree.
type walkState struct {
	html        strings.Builder
	text        strings.Builder
	attachments int
}

// StoreMessageInfo persists a full payload. Body and attachments are
// parsed only on the first download; labels and headers are refreshed
// on every call, so re-delivery of the same payload converges.
func (b *MessageBuilder) StoreMessageInfo(ctx context.Context, provider out.EmailProvider, account *domain.Account, payload *gmail.Message) error {
	if payload == nil || payload.Payload == nil {
		return apperr.InvalidInput("payload", "missing message payload")
	}

	sentDate := time.UnixMilli(payload.InternalDate).UTC()
	msg, err := b.messages.GetOrCreate(account.ID, payload.Id, sentDate)
	if err != nil {
		return fmt.Errorf("failed to resolve message row: %w", err)
	}

	msg.ThreadID = payload.ThreadId
	msg.Snippet = payload.Snippet
	msg.SentDate = sentDate

	if !msg.IsDownloaded {
		state := &walkState{}
		if err := b.walkPart(ctx, provider, account, msg, payload.Payload, state); err != nil {
			return err
		}

		body := &domain.MessageBody{
			AccountID: account.ID,
			MessageID: payload.Id,
			BodyHTML:  state.html.String(),
			BodyText:  state.text.String(),
		}
		if err := b.bodies.Upsert(ctx, body); err != nil {
			return fmt.Errorf("failed to store message body: %w", err)
		}

		msg.HasAttachment = state.attachments > 0
		msg.IsDownloaded = true
	}

	if err := b.storeHeaders(msg, payload.Payload.Headers); err != nil {
		return err
	}
	if err := b.storeLabels(ctx, provider, account, msg, payload.LabelIds); err != nil {
		return err
	}

	return b.messages.Update(msg)
}

// UpdateMessage refreshes thread id and labels from a minimal payload.
func (b *MessageBuilder) UpdateMessage(ctx context.Context, provider out.EmailProvider, account *domain.Account, payload *gmail.Message) error {
	if payload == nil {
		return apperr.InvalidInput("payload", "missing message payload")
	}

	msg, err := b.messages.GetByRemoteID(account.ID, payload.Id)
	if err != nil {
		return fmt.Errorf("failed to load message: %w", err)
	}
	if msg == nil {
		return apperr.NotFound("message")
	}

	msg.ThreadID = payload.ThreadId
	if err := b.storeLabels(ctx, provider, account, msg, payload.LabelIds); err != nil {
		return err
	}

	return b.messages.Update(msg)
}

// storeLabels rebuilds the message's label set. The unread label is
// never attached as a row; it folds into the read flag instead.
func (b *MessageBuilder) storeLabels(ctx context.Context, provider out.EmailProvider, account *domain.Account, msg *domain.Message, labelIDs []string) error {
	if err := b.messages.ClearLabels(msg.ID); err != nil {
		return fmt.Errorf("failed to clear labels: %w", err)
	}

	msg.Read = true
	for _, labelID := range labelIDs {
		if labelID == b.cfg.UnreadLabel {
			msg.Read = false
			continue
		}

		label, err := b.resolver.GetLabel(ctx, provider, account, labelID)
		if err != nil {
			return err
		}
		if err := b.messages.AttachLabel(msg.ID, label.ID); err != nil {
			return fmt.Errorf("failed to attach label %s: %w", labelID, err)
		}
	}

	return nil
}

// storeHeaders routes the well-known headers into columns and recipient
// links, and archives the rest as deduplicated header rows.
func (b *MessageBuilder) storeHeaders(msg *domain.Message, headers []*gmail.MessagePartHeader) error {
	for _, header := range headers {
		if header == nil {
			continue
		}

		var err error
		switch strings.ToLower(header.Name) {
		case "subject":
			msg.Subject = header.Value
		case "from":
			err = b.storeSender(msg, header.Value)
		case "to", "delivered-to":
			err = b.linkRecipients(msg, header.Value, domain.RecipientReceivedBy)
		case "cc":
			err = b.linkRecipients(msg, header.Value, domain.RecipientCc)
		default:
			err = b.messages.AddHeader(&domain.Header{
				MessageID: msg.ID,
				Name:      header.Name,
				Value:     header.Value,
				ValueHash: domain.HashHeaderValue(header.Value),
			})
		}
		if err != nil {
			return fmt.Errorf("failed to store header %s: %w", header.Name, err)
		}
	}
	return nil
}

func (b *MessageBuilder) storeSender(msg *domain.Message, value string) error {
	addresses := parseRecipients(value)
	if len(addresses) == 0 {
		return nil
	}

	recipient, err := b.messages.GetOrCreateRecipient(addresses[0].Name, addresses[0].Address)
	if err != nil {
		return err
	}
	if err := b.messages.SetSender(msg.ID, recipient.ID); err != nil {
		return err
	}
	msg.SenderID = &recipient.ID

	return b.messages.LinkRecipient(msg.ID, recipient.ID, domain.RecipientSender)
}

func (b *MessageBuilder) linkRecipients(msg *domain.Message, value string, kind domain.RecipientKind) error {
	for _, address := range parseRecipients(value) {
		recipient, err := b.messages.GetOrCreateRecipient(address.Name, address.Address)
		if err != nil {
			return err
		}
		if err := b.messages.LinkRecipient(msg.ID, recipient.ID, kind); err != nil {
			return err
		}
	}
	return nil
}

// recipientBoundaryRe marks address boundaries in headers whose commas
// cannot be trusted: a comma following a TLD or a closing bracket ends
// an address, a comma inside a display name does not.
var recipientBoundaryRe = regexp.MustCompile(`(?i)(\.[A-Z]{2,16}|>)(,)`)

// parseRecipients splits a recipient header into addresses. Fragments
// that fail RFC 5322 parsing are kept verbatim as bare addresses.
func parseRecipients(value string) []*mail.Address {
	normalized := recipientBoundaryRe.ReplaceAllString(value, "$1;")

	var addresses []*mail.Address
	for _, fragment := range strings.Split(normalized, "; ") {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}

		address, err := mail.ParseAddress(fragment)
		if err != nil {
			address = &mail.Address{Address: fragment}
		}
		addresses = append(addresses, address)
	}
	return addresses
}

// walkPart recurses through the payload tree. Containers recurse;
// leaves become body fragments, attachments, or are dropped.
func (b *MessageBuilder) walkPart(ctx context.Context, provider out.EmailProvider, account *domain.Account, msg *domain.Message, part *gmail.MessagePart, state *walkState) error {
	if part == nil {
		return nil
	}
	if len(part.Parts) > 0 {
		for _, child := range part.Parts {
			if err := b.walkPart(ctx, provider, account, msg, child, state); err != nil {
				return err
			}
		}
		return nil
	}

	mimeType := strings.ToLower(part.MimeType)
	hasData := part.Body != nil && part.Body.Data != ""

	switch {
	case part.Filename != "" || !hasData || mimeType == "text/css":
		return b.saveAttachment(ctx, provider, account, msg, part, state)
	case mimeType == "text/html":
		state.html.WriteString(b.decodeBody(msg, part))
	case mimeType == "text/plain":
		state.text.WriteString(b.decodeBody(msg, part))
	case mimeType == "text/xml", mimeType == "text/rfc822-headers":
		// dropped on purpose, nobody reads these
	case isBinaryType(mimeType):
		return b.saveAttachment(ctx, provider, account, msg, part, state)
	default:
		logger.WithMessage(msg.MessageID).Warn("unhandled part type %q stored as attachment", part.MimeType)
		return b.saveAttachment(ctx, provider, account, msg, part, state)
	}

	return nil
}

// decodeBody decodes a body part into UTF-8.
func (b *MessageBuilder) decodeBody(msg *domain.Message, part *gmail.MessagePart) string {
	data, err := decodeBase64URL(part.Body.Data)
	if err != nil {
		logger.WithMessage(msg.MessageID).Warn("failed to decode body part %s: %v", part.PartId, err)
		return ""
	}
	return decodeToUTF8(data, partContentType(part))
}

// saveAttachment fetches the part bytes, writes them to the blob store
// and records the metadata row. A failed fetch is logged and skipped so
// one broken attachment does not lose the whole message.
func (b *MessageBuilder) saveAttachment(ctx context.Context, provider out.EmailProvider, account *domain.Account, msg *domain.Message, part *gmail.MessagePart, state *walkState) error {
	data, err := b.attachmentData(ctx, provider, msg, part)
	if err != nil {
		logger.WithAccount(account.ID).WithMessage(msg.MessageID).
			Warn("failed to fetch attachment %q: %v", part.Filename, err)
		return nil
	}
	if data == nil {
		return nil
	}

	contentType := attachmentContentType(part)
	filename := attachmentFilename(part, msg, state.attachments, contentType)
	path := fmt.Sprintf(b.cfg.AttachmentUploadTo, msg.ID, filename)

	if err := b.storage.Save(path, data); err != nil {
		return fmt.Errorf("failed to store attachment %q: %w", filename, err)
	}

	inline, cid := inlineContentID(part)
	attachment := &domain.Attachment{
		MessageID:   msg.ID,
		Filename:    filename,
		Path:        path,
		Size:        int64(len(data)),
		ContentType: contentType,
		Inline:      inline,
		CID:         cid,
	}
	if err := b.attachments.Create(attachment); err != nil {
		return fmt.Errorf("failed to record attachment %q: %w", filename, err)
	}

	state.attachments++
	return nil
}

// attachmentData returns the part bytes, fetching them by attachment id
// when they are not inlined. (nil, nil) means there is nothing to save.
func (b *MessageBuilder) attachmentData(ctx context.Context, provider out.EmailProvider, msg *domain.Message, part *gmail.MessagePart) ([]byte, error) {
	if part.Body == nil {
		return nil, nil
	}
	if part.Body.Data != "" {
		return decodeBase64URL(part.Body.Data)
	}
	if part.Body.AttachmentId == "" {
		return nil, nil
	}

	body, err := provider.GetAttachment(ctx, msg.MessageID, part.Body.AttachmentId)
	if err != nil {
		return nil, err
	}
	return decodeBase64URL(body.Data)
}

// attachmentFilename sanitizes the declared filename and synthesizes
// one when it is unusable.
func attachmentFilename(part *gmail.MessagePart, msg *domain.Message, count int, contentType string) string {
	name := part.Filename
	if i := strings.LastIndex(name, `\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ReplaceAll(name, ":", "")
	if len(name) > maxFilenameLength {
		name = ""
	}
	if name != "" {
		return name
	}

	ext := extensionForType(contentType)
	if part.PartId != "" {
		return fmt.Sprintf("attachment-%s%s", part.PartId, ext)
	}
	return fmt.Sprintf("attachment-%s-%d%s", msg.MessageID, count, ext)
}

// extensionForType picks a file extension for a synthesized filename.
func extensionForType(contentType string) string {
	switch contentType {
	case "text/plain":
		return ".txt"
	case "text/html":
		return ".html"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bak"
}

// inlineContentID reports whether the part is an inline attachment and
// returns its content id.
func inlineContentID(part *gmail.MessagePart) (bool, string) {
	for _, header := range part.Headers {
		if strings.EqualFold(header.Name, "Content-ID") {
			return true, header.Value
		}
	}
	return false, ""
}

// partContentType returns the raw Content-Type header of a part.
func partContentType(part *gmail.MessagePart) string {
	for _, header := range part.Headers {
		if strings.EqualFold(header.Name, "Content-Type") {
			return header.Value
		}
	}
	return ""
}

// attachmentContentType strips parameters off the part's Content-Type,
// falling back to octet-stream.
func attachmentContentType(part *gmail.MessagePart) string {
	value := partContentType(part)
	if value == "" {
		return "application/octet-stream"
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(value, ";")[0])
	}
	if mediaType == "" {
		return "application/octet-stream"
	}
	return strings.ToLower(mediaType)
}

// isBinaryType reports part types stored as attachments without a
// warning.
func isBinaryType(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/") ||
		strings.HasPrefix(mimeType, "audio/") ||
		strings.HasPrefix(mimeType, "video/") ||
		strings.HasPrefix(mimeType, "application/")
}

// decodeBase64URL handles both padded and unpadded url-safe base64, the
// API is not consistent about which it returns.
func decodeBase64URL(data string) ([]byte, error) {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return decoded, nil
	}
	return base64.RawURLEncoding.DecodeString(data)
}
