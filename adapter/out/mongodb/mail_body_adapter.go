// Package mongodb implements MongoDB adapters for the application.
package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"mail_server/core/domain"
	"mail_server/core/port/out"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionMessageBodies = "message_bodies"

	// Bodies smaller than this are stored as-is; gzip overhead would
	// outweigh the savings.
	compressionThreshold = 1024
)

// BodyAdapter implements out.BodyRepository using MongoDB.
type BodyAdapter struct {
	collection *mongo.Collection
}

// NewBodyAdapter creates a new BodyAdapter.
func NewBodyAdapter(db *mongo.Database) *BodyAdapter {
	return &BodyAdapter{collection: db.Collection(collectionMessageBodies)}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *BodyAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "account_id", Value: 1},
				{Key: "message_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// bodyDocument represents the MongoDB document structure.
type bodyDocument struct {
	AccountID int64  `bson:"account_id"`
	MessageID string `bson:"message_id"`

	// Content (potentially compressed)
	HTML         []byte    `bson:"html"`
	Text         []byte    `bson:"text"`
	IsCompressed bool      `bson:"is_compressed"`
	StoredAt     time.Time `bson:"stored_at"`
}

// Upsert stores the decoded bodies of a message, compressing large
// payloads.
func (a *BodyAdapter) Upsert(ctx context.Context, body *domain.MessageBody) error {
	html := []byte(body.BodyHTML)
	text := []byte(body.BodyText)

	compressed := len(html)+len(text) > compressionThreshold
	if compressed {
		var err error
		if html, err = compress(html); err != nil {
			return fmt.Errorf("failed to compress html body: %w", err)
		}
		if text, err = compress(text); err != nil {
			return fmt.Errorf("failed to compress text body: %w", err)
		}
	}

	doc := bodyDocument{
		AccountID:    body.AccountID,
		MessageID:    body.MessageID,
		HTML:         html,
		Text:         text,
		IsCompressed: compressed,
		StoredAt:     time.Now().UTC(),
	}

	filter := bson.M{"account_id": body.AccountID, "message_id": body.MessageID}
	update := bson.M{"$set": doc}

	_, err := a.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert message body: %w", err)
	}
	return nil
}

// Get retrieves the bodies of a message, or nil when none are stored.
func (a *BodyAdapter) Get(ctx context.Context, accountID int64, messageID string) (*domain.MessageBody, error) {
	var doc bodyDocument
	filter := bson.M{"account_id": accountID, "message_id": messageID}

	if err := a.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message body: %w", err)
	}

	html, text := doc.HTML, doc.Text
	if doc.IsCompressed {
		var err error
		if html, err = decompress(html); err != nil {
			return nil, fmt.Errorf("failed to decompress html body: %w", err)
		}
		if text, err = decompress(text); err != nil {
			return nil, fmt.Errorf("failed to decompress text body: %w", err)
		}
	}

	return &domain.MessageBody{
		AccountID: doc.AccountID,
		MessageID: doc.MessageID,
		BodyHTML:  string(html),
		BodyText:  string(text),
	}, nil
}

// Delete removes the body document of a message.
func (a *BodyAdapter) Delete(ctx context.Context, accountID int64, messageID string) error {
	filter := bson.M{"account_id": accountID, "message_id": messageID}
	if _, err := a.collection.DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("failed to delete message body: %w", err)
	}
	return nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Ensure BodyAdapter implements out.BodyRepository
var _ out.BodyRepository = (*BodyAdapter)(nil)
