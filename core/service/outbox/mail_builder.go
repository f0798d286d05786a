// Package outbox assembles and sends user-composed messages.
package outbox

import (
	"bytes"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"mail_server/core/domain"
	"mail_server/core/port/out"
	"mail_server/pkg/logger"

	"github.com/emersion/go-message"
	"github.com/goccy/go-json"
	"github.com/jaytaylor/html2text"
	"golang.org/x/net/html"
)

// Builder turns an outbox row and its staged attachments into a raw
// RFC 822 message ready for upload.
type Builder struct {
	storage out.BlobStorage
}

func NewBuilder(storage out.BlobStorage) *Builder {
	return &Builder{storage: storage}
}

// Build assembles the MIME tree: multipart/related wrapping a
// multipart/alternative (text, html), then inline images, then regular
// attachments. The plain-text part is derived from the composed HTML.
func (b *Builder) Build(ob *domain.OutboxMessage, account *domain.Account, attachments []*domain.OutboxAttachment) ([]byte, error) {
	bodyHTML, inline := rewriteHTML(ob.Body, attachments)
	bodyText, err := html2text.FromString(ob.Body, html2text.Options{OmitLinks: true})
	if err != nil {
		// A text rendering failure must not block the send.
		logger.Warn("failed to derive text body for outbox %d: %v", ob.ID, err)
		bodyText = ""
	}

	var buf bytes.Buffer
	root := rootHeader(ob, account)

	w, err := message.CreateWriter(&buf, root)
	if err != nil {
		return nil, fmt.Errorf("failed to open message writer: %w", err)
	}

	if err := writeAlternative(w, bodyText, bodyHTML); err != nil {
		return nil, err
	}

	inlineIDs := make(map[int64]bool, len(inline))
	for _, att := range inline {
		inlineIDs[att.ID] = true
		if err := b.writeInline(w, att); err != nil {
			return nil, err
		}
	}

	for _, att := range attachments {
		if inlineIDs[att.ID] {
			continue
		}
		if err := b.writeAttachment(w, att); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}

// rootHeader builds the top-level headers: addresses, subject, and any
// extra headers stored with the draft.
func rootHeader(ob *domain.OutboxMessage, account *domain.Account) message.Header {
	var h message.Header
	h.SetContentType("multipart/related", nil)
	h.Set("From", formatFrom(account))
	if to := joinAddresses(ob.To); to != "" {
		h.Set("To", to)
	}
	if cc := joinAddresses(ob.Cc); cc != "" {
		h.Set("Cc", cc)
	}
	if bcc := joinAddresses(ob.Bcc); bcc != "" {
		h.Set("Bcc", bcc)
	}
	h.Set("Subject", ob.Subject)

	if ob.Headers != "" {
		var extra map[string]string
		if err := json.Unmarshal([]byte(ob.Headers), &extra); err == nil {
			for name, value := range extra {
				h.Set(name, value)
			}
		}
	}
	return h
}

// formatFrom renders the sender address with the configured display
// name when there is one.
func formatFrom(account *domain.Account) string {
	if account.FromName == "" {
		return account.EmailAddress
	}
	return fmt.Sprintf("%q <%s>", account.FromName, account.EmailAddress)
}

// joinAddresses flattens a JSON address array into a comma-joined
// header value. A non-array value is passed through as-is.
func joinAddresses(encoded string) string {
	if encoded == "" {
		return ""
	}
	var addresses []string
	if err := json.Unmarshal([]byte(encoded), &addresses); err != nil {
		return encoded
	}
	return strings.Join(addresses, ", ")
}

// writeAlternative emits the multipart/alternative pair. Text goes
// first so clients that stop at the first supported part pick it only
// when they cannot render HTML.
func writeAlternative(w *message.Writer, bodyText, bodyHTML string) error {
	var ah message.Header
	ah.SetContentType("multipart/alternative", nil)

	alt, err := w.CreatePart(ah)
	if err != nil {
		return fmt.Errorf("failed to open alternative part: %w", err)
	}

	if err := writeTextPart(alt, "text/plain", bodyText); err != nil {
		return err
	}
	if err := writeTextPart(alt, "text/html", bodyHTML); err != nil {
		return err
	}
	return alt.Close()
}

func writeTextPart(w *message.Writer, contentType, body string) error {
	var h message.Header
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to open %s part: %w", contentType, err)
	}
	if _, err := part.Write([]byte(body)); err != nil {
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return part.Close()
}

// writeInline emits one referenced image with its content id.
func (b *Builder) writeInline(w *message.Writer, att *domain.OutboxAttachment) error {
	data, err := b.storage.Open(att.Path)
	if err != nil {
		return fmt.Errorf("failed to read inline attachment %q: %w", att.Filename, err)
	}

	var h message.Header
	h.SetContentType(attachmentType(att), nil)
	h.Set("Content-ID", bracketCID(att.CID))
	h.SetContentDisposition("inline", nil)
	h.Set("Content-Transfer-Encoding", "base64")

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to open inline part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write inline part: %w", err)
	}
	return part.Close()
}

// writeAttachment emits one regular attachment.
func (b *Builder) writeAttachment(w *message.Writer, att *domain.OutboxAttachment) error {
	data, err := b.storage.Open(att.Path)
	if err != nil {
		return fmt.Errorf("failed to read attachment %q: %w", att.Filename, err)
	}

	filename := filepath.Base(att.Filename)

	var h message.Header
	h.SetContentType(attachmentType(att), map[string]string{"name": filename})
	h.SetContentDisposition("attachment", map[string]string{"filename": filename})
	h.Set("Content-Transfer-Encoding", "base64")

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to open attachment part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write attachment part: %w", err)
	}
	return part.Close()
}

// attachmentType resolves the attachment content type, guessing from
// the filename when the row does not carry one.
func attachmentType(att *domain.OutboxAttachment) string {
	if att.ContentType != "" {
		return att.ContentType
	}
	if guessed := mime.TypeByExtension(filepath.Ext(att.Filename)); guessed != "" {
		if mediaType, _, err := mime.ParseMediaType(guessed); err == nil {
			return mediaType
		}
	}
	return "application/octet-stream"
}

// rewriteHTML prepares the composed HTML for sending: images that
// reference a staged attachment through a cid attribute get a cid: src
// pointing at the inline part, and every anchor opens in a new tab.
// Returns the rewritten markup and the attachments that went inline.
func rewriteHTML(body string, attachments []*domain.OutboxAttachment) (string, []*domain.OutboxAttachment) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return body, nil
	}

	var inline []*domain.OutboxAttachment
	seen := make(map[int64]bool)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "img":
				if att := matchInline(n, attachments); att != nil && !seen[att.ID] {
					seen[att.ID] = true
					inline = append(inline, att)
				}
			case "a":
				setAttr(n, "target", "_blank")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return body, inline
	}
	return buf.String(), inline
}

// matchInline resolves an img node's cid attribute against the staged
// attachments and rewrites its src on a hit.
func matchInline(n *html.Node, attachments []*domain.OutboxAttachment) *domain.OutboxAttachment {
	cid := getAttr(n, "cid")
	if cid == "" {
		return nil
	}

	for _, att := range attachments {
		if stripCID(att.CID) != stripCID(cid) || att.CID == "" {
			continue
		}
		setAttr(n, "src", "cid:"+stripCID(att.CID))
		removeAttr(n, "cid")
		return att
	}
	return nil
}

// stripCID removes the angle brackets a content id may carry.
func stripCID(cid string) string {
	return strings.Trim(cid, "<>")
}

// bracketCID ensures a content id carries angle brackets.
func bracketCID(cid string) string {
	return "<" + stripCID(cid) + ">"
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, value string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

func removeAttr(n *html.Node, key string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}
