package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"nutrilog/models"
)

const mealEntriesCollection = "meal_entries"

type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects, pings and ensures the diary lookup index.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := &MongoStore{client: client, coll: client.Database(database).Collection(mealEntriesCollection)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user", Value: 1},
			{Key: "date", Value: 1},
			{Key: "meal_type", Value: 1},
			{Key: "created_at", Value: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create meal entry index: %w", err)
	}
	return nil
}

func (s *MongoStore) FindMealEntry(ctx context.Context, user, date string, mealType models.MealType) (*models.MealEntry, error) {
	filter := bson.M{"user": user, "date": date, "meal_type": mealType}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return s.findOne(ctx, filter, opts)
}

func (s *MongoStore) GetMealEntry(ctx context.Context, user, id string) (*models.MealEntry, error) {
	return s.findOne(ctx, bson.M{"_id": id, "user": user})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*models.MealEntry, error) {
	var entry models.MealEntry
	err := s.coll.FindOne(ctx, filter, opts...).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load meal entry: %w", err)
	}
	return &entry, nil
}

func (s *MongoStore) CreateMealEntry(ctx context.Context, entry *models.MealEntry) error {
	if _, err := s.coll.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert meal entry: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateMealEntry(ctx context.Context, entry *models.MealEntry) error {
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": entry.ID, "user": entry.User}, entry)
	if err != nil {
		return fmt.Errorf("failed to update meal entry: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteMealEntry(ctx context.Context, user, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id, "user": user})
	if err != nil {
		return fmt.Errorf("failed to delete meal entry: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListMealEntries(ctx context.Context, user, from, to string) ([]models.MealEntry, error) {
	// YYYY-MM-DD sorts lexically.
	filter := bson.M{"user": user, "date": bson.M{"$gte": from, "$lte": to}}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "created_at", Value: 1}})

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list meal entries: %w", err)
	}
	entries := []models.MealEntry{}
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode meal entries: %w", err)
	}
	return entries, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
