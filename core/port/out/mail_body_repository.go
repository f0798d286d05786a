package out

import (
	"context"

	"mail_server/core/domain"
)

// BodyRepository stores decoded message bodies in the document store,
// keeping the large html/text blobs out of the relational replica.
type BodyRepository interface {
	Upsert(ctx context.Context, body *domain.MessageBody) error
	Get(ctx context.Context, accountID int64, messageID string) (*domain.MessageBody, error)
	Delete(ctx context.Context, accountID int64, messageID string) error
}
