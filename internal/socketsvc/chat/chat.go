package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/avvvet/electionday-services/internal/db"
)

const Collection = "chats"

var ErrNotFound = errors.New("chat not found")

// HistoryEntry is one message of a chat transcript. Values are stored
// HTML-escaped.
type HistoryEntry struct {
	UserID string `bson:"user_id" json:"userId"`
	User   string `bson:"user" json:"user"`
	Text   string `bson:"text" json:"text"`
	Time   string `bson:"time" json:"time"`
}

// Chat is a conversation between a customer and a staff member of a
// schema.
type Chat struct {
	ID        string         `bson:"_id" json:"id"`
	Schema    string         `bson:"schema" json:"schema"`
	UserID    string         `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Topic     string         `bson:"topic" json:"topic"`
	Active    bool           `bson:"active" json:"active"`
	History   []HistoryEntry `bson:"chat_history" json:"chat_history"`
	ExpiresAt *time.Time     `bson:"expires_at,omitempty" json:"-"`
}

// MongoStore keeps chats in a MongoDB collection. Ended chats expire
// after the retention period.
type MongoStore struct {
	chats     *mongo.Collection
	retention time.Duration
}

func NewMongoStore(database *mongo.Database, retention time.Duration) *MongoStore {
	return &MongoStore{
		chats:     database.Collection(Collection),
		retention: retention,
	}
}

// EnsureIndexes creates the ttl index of ended chats.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	return db.CreateTTLIndexForCollection(ctx, s.chats.Database(), Collection)
}

func (s *MongoStore) Create(ctx context.Context, c *Chat) error {
	if c.History == nil {
		c.History = []HistoryEntry{}
	}
	if _, err := s.chats.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("failed to insert chat: %w", err)
	}
	return nil
}

func (s *MongoStore) ByID(ctx context.Context, schema, id string) (*Chat, error) {
	var c Chat
	err := s.chats.FindOne(ctx, bson.M{"_id": id, "schema": schema}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find chat %s: %w", id, err)
	}
	return &c, nil
}

func (s *MongoStore) AppendHistory(ctx context.Context, schema, id string, entry HistoryEntry) error {
	return s.update(ctx, schema, id, bson.M{"$push": bson.M{"chat_history": entry}})
}

// Deactivate ends the chat.
func (s *MongoStore) Deactivate(ctx context.Context, schema, id string) error {
	set := bson.M{"active": false}
	if s.retention > 0 {
		set["expires_at"] = time.Now().UTC().Add(s.retention)
	}
	return s.update(ctx, schema, id, bson.M{"$set": set})
}

// SetUser assigns the staff member handling the chat.
func (s *MongoStore) SetUser(ctx context.Context, schema, id, userID string) error {
	return s.update(ctx, schema, id, bson.M{"$set": bson.M{"user_id": userID}})
}

func (s *MongoStore) update(ctx context.Context, schema, id string, update bson.M) error {
	res, err := s.chats.UpdateOne(ctx, bson.M{"_id": id, "schema": schema}, update, options.Update())
	if err != nil {
		return fmt.Errorf("failed to update chat %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
