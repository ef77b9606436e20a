package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection = "users"
	dataCollection  = "user_data"
)

type MongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
	data   *mongo.Collection
}

// NewMongoStore connects, pings and makes sure the unique indexes exist.
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(dbName)
	s := &MongoStore{
		client: client,
		users:  db.Collection(usersCollection),
		data:   db.Collection(dataCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return err
	}
	_, err = s.data.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) GetUserByName(ctx context.Context, name string) (*User, error) {
	var user User
	err := s.users.FindOne(ctx, bson.M{"name_key": NameKey(name)}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// CreateUser writes the credential record and then the empty transcript.
// A standalone server has no multi-document transactions, so a failed
// transcript insert removes the user again.
func (s *MongoStore) CreateUser(ctx context.Context, user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.NameKey = NameKey(user.Name)

	if _, err := s.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	transcript := Transcript{UserID: user.UserID, Sessions: []Interaction{}}
	if _, err := s.data.InsertOne(ctx, transcript); err != nil {
		if _, delErr := s.users.DeleteOne(ctx, bson.M{"user_id": user.UserID}); delErr != nil {
			return fmt.Errorf("failed to insert transcript: %w (cleanup failed: %v)", err, delErr)
		}
		return fmt.Errorf("failed to insert transcript: %w", err)
	}
	return nil
}

func (s *MongoStore) AppendInteraction(ctx context.Context, userID string, rec Interaction) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	res, err := s.data.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$push": bson.M{"sessions": rec}},
	)
	if err != nil {
		return fmt.Errorf("failed to append interaction: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) GetTranscript(ctx context.Context, userID string) (*Transcript, error) {
	var transcript Transcript
	err := s.data.FindOne(ctx, bson.M{"user_id": userID}).Decode(&transcript)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	if transcript.Sessions == nil {
		transcript.Sessions = []Interaction{}
	}
	return &transcript, nil
}
