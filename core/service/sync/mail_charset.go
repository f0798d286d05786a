// Package sync is the per-account reconciliation engine: it turns the
// remote mailbox into the local replica and pushes user mutations back.
package sync

import (
	"bytes"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// decodeToUTF8 converts raw body bytes to a UTF-8 string. The declared
// charset from the Content-Type header wins; when it is absent or lies,
// the bytes are sniffed, and as a last resort invalid sequences are
// replaced so a body is never dropped over a bad encoding.
func decodeToUTF8(data []byte, contentType string) string {
	if len(data) == 0 {
		return ""
	}

	if name := charsetParam(contentType); name != "" {
		if decoded, err := decodeCharset(data, name); err == nil {
			return decoded
		}
	}

	if result, err := chardet.NewTextDetector().DetectBest(data); err == nil && result.Charset != "" {
		if decoded, err := decodeCharset(data, result.Charset); err == nil {
			return decoded
		}
	}

	return string(bytes.ToValidUTF8(data, []byte("�")))
}

// charsetParam extracts the charset parameter from a Content-Type
// header value, or "" when there is none.
func charsetParam(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["charset"])
}

// decodeCharset decodes data using the IANA-registered encoding name.
func decodeCharset(data []byte, name string) (string, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return "", fmt.Errorf("unknown charset %q", name)
	}

	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("failed to decode %q body: %w", name, err)
	}
	if !utf8.Valid(decoded) {
		return "", fmt.Errorf("charset %q produced invalid utf-8", name)
	}
	return string(decoded), nil
}
