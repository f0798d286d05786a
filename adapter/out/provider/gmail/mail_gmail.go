// Package gmail provides the Gmail API connector.
package gmail

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"mail_server/core/port/out"
	"mail_server/pkg/apperr"
	"mail_server/pkg/logger"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	// maxAttempts bounds the retry loop of every API call.
	maxAttempts = 6

	// chatsExcluded skips chat transcripts when listing the mailbox.
	chatsExcluded = "!in:chats"
)

// Connector is a per-account Gmail client. All calls run through the
// rate limiter, the circuit breaker and a bounded retry loop with
// exponential backoff on quota and transient server errors.
type Connector struct {
	service   *gmail.Service
	accountID int64
	historyID uint64
	chunkSize int64

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	// Injection points for tests.
	sleep  func(time.Duration)
	jitter func() float64
}

// NewConnector builds a connector over an authenticated HTTP client.
func NewConnector(ctx context.Context, accountID int64, client *http.Client, chunkSize int64) (*Connector, error) {
	service, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, apperr.ConnectorError("create gmail service", err)
	}

	return &Connector{
		service:   service,
		accountID: accountID,
		chunkSize: chunkSize,
		limiter:   rate.NewLimiter(rate.Limit(25), 50),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "gmail",
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 10
			},
		}),
		sleep:  time.Sleep,
		jitter: rand.Float64,
	}, nil
}

// HistoryID returns the mutable watermark advanced by GetHistory.
func (c *Connector) HistoryID() uint64 {
	return c.historyID
}

// SetHistoryID seeds the watermark before an incremental pass.
func (c *Connector) SetHistoryID(id uint64) {
	c.historyID = id
}

// isRetryable classifies a Gmail API error. Quota pushback and transient
// server failures are retried with backoff; everything else surfaces to
// the caller untouched.
func isRetryable(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
		return true
	case http.StatusForbidden:
		for _, e := range apiErr.Errors {
			if e.Reason == "rateLimitExceeded" || e.Reason == "userRateLimitExceeded" {
				return true
			}
		}
	}
	return false
}

// execute runs fn under the limiter, breaker and retry loop. Attempt n
// sleeps 2^n plus a uniform jitter in [0,1) seconds before retrying.
func execute[T any](ctx context.Context, c *Connector, op string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for n := 0; n < maxAttempts; n++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, apperr.ConnectorError(op, err)
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return fn()
		})
		if err == nil {
			return result.(T), nil
		}
		if !isRetryable(err) {
			return zero, err
		}

		lastErr = err
		delay := time.Duration((float64(int64(1)<<n) + c.jitter()) * float64(time.Second))
		logger.WithAccount(c.accountID).Warn("retrying %s after %v (attempt %d): %v", op, delay, n+1, err)
		c.sleep(delay)
	}

	return zero, apperr.FailedRequest(op, lastErr)
}

// GetProfile returns the mailbox profile.
func (c *Connector) GetProfile(ctx context.Context) (*gmail.Profile, error) {
	return execute(ctx, c, "get profile", func() (*gmail.Profile, error) {
		return c.service.Users.GetProfile("me").Context(ctx).Do()
	})
}

// GetAllMessageIDs pages through every message id, skipping chats.
func (c *Connector) GetAllMessageIDs(ctx context.Context) ([]*gmail.Message, error) {
	var messages []*gmail.Message
	pageToken := ""

	for {
		resp, err := execute(ctx, c, "list messages", func() (*gmail.ListMessagesResponse, error) {
			call := c.service.Users.Messages.List("me").Q(chatsExcluded).Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			return call.Do()
		})
		if err != nil {
			return nil, err
		}

		messages = append(messages, resp.Messages...)
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return messages, nil
}

// GetHistory pages through the history feed after startHistoryID. The
// connector watermark advances to the last item's id when greater; an
// empty feed leaves it unchanged.
func (c *Connector) GetHistory(ctx context.Context, startHistoryID uint64) ([]*gmail.History, error) {
	var history []*gmail.History
	pageToken := ""

	for {
		resp, err := execute(ctx, c, "list history", func() (*gmail.ListHistoryResponse, error) {
			call := c.service.Users.History.List("me").StartHistoryId(startHistoryID).Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			return call.Do()
		})
		if err != nil {
			return nil, err
		}

		history = append(history, resp.History...)
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	if len(history) > 0 && c.historyID < history[len(history)-1].Id {
		c.historyID = history[len(history)-1].Id
	}

	return history, nil
}

// GetMessageInfo fetches the full payload.
func (c *Connector) GetMessageInfo(ctx context.Context, messageID string) (*gmail.Message, error) {
	return execute(ctx, c, "get message", func() (*gmail.Message, error) {
		return c.service.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	})
}

// GetMinimalMessageInfo fetches ids and labels only.
func (c *Connector) GetMinimalMessageInfo(ctx context.Context, messageID string) (*gmail.Message, error) {
	return execute(ctx, c, "get minimal message", func() (*gmail.Message, error) {
		return c.service.Users.Messages.Get("me", messageID).Format("minimal").Context(ctx).Do()
	})
}

// GetLabelInfo fetches one label.
func (c *Connector) GetLabelInfo(ctx context.Context, labelID string) (*gmail.Label, error) {
	return execute(ctx, c, "get label", func() (*gmail.Label, error) {
		return c.service.Users.Labels.Get("me", labelID).Context(ctx).Do()
	})
}

// GetAttachment fetches attachment bytes by id.
func (c *Connector) GetAttachment(ctx context.Context, messageID, attachmentID string) (*gmail.MessagePartBody, error) {
	return execute(ctx, c, "get attachment", func() (*gmail.MessagePartBody, error) {
		return c.service.Users.Messages.Attachments.Get("me", messageID, attachmentID).Context(ctx).Do()
	})
}

// UpdateLabels applies a combined add/remove modification.
func (c *Connector) UpdateLabels(ctx context.Context, messageID string, add, remove []string) (*gmail.Message, error) {
	return execute(ctx, c, "update labels", func() (*gmail.Message, error) {
		return c.service.Users.Messages.Modify("me", messageID, &gmail.ModifyMessageRequest{
			AddLabelIds:    add,
			RemoveLabelIds: remove,
		}).Context(ctx).Do()
	})
}

// GetMessageLabelList returns just the label ids of a message.
func (c *Connector) GetMessageLabelList(ctx context.Context, messageID string) ([]string, error) {
	msg, err := execute(ctx, c, "get message labels", func() (*gmail.Message, error) {
		return c.service.Users.Messages.Get("me", messageID).Format("minimal").
			Fields("labelIds").Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	return msg.LabelIds, nil
}

// TrashMessage moves a message to the remote trash.
func (c *Connector) TrashMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	return execute(ctx, c, "trash message", func() (*gmail.Message, error) {
		return c.service.Users.Messages.Trash("me", messageID).Context(ctx).Do()
	})
}

// DeleteMessage removes a message permanently.
func (c *Connector) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := execute(ctx, c, "delete message", func() (struct{}, error) {
		return struct{}{}, c.service.Users.Messages.Delete("me", messageID).Context(ctx).Do()
	})
	return err
}

// SendMessage uploads an RFC-822 message as resumable media. threadID,
// when non-empty, threads the sent copy onto an existing conversation.
func (c *Connector) SendMessage(ctx context.Context, raw []byte, threadID string) (*gmail.Message, error) {
	return execute(ctx, c, "send message", func() (*gmail.Message, error) {
		msg := &gmail.Message{}
		if threadID != "" {
			msg.ThreadId = threadID
		}
		return c.service.Users.Messages.Send("me", msg).
			Media(bytes.NewReader(raw),
				googleapi.ContentType("message/rfc822"),
				googleapi.ChunkSize(int(c.chunkSize))).
			Context(ctx).
			Do()
	})
}

// Ensure Connector implements out.EmailProvider
var _ out.EmailProvider = (*Connector)(nil)
