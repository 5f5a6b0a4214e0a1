package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lectura/domain/entities"
	"lectura/domain/repositories"
)

type LectureRepository struct {
	collection *mongo.Collection
}

// NewLectureRepository creates a new MongoDB lecture repository
func NewLectureRepository(db *mongo.Database) repositories.LectureRepository {
	return &LectureRepository{
		collection: db.Collection("lectures"),
	}
}

// Merge implements repositories.LectureRepository. Only fields set on the
// update are written, so concurrently-edited fields such as title or folder
// assignment are preserved. The record is created on first write.
func (r *LectureRepository) Merge(ctx context.Context, userID, sessionID string, update entities.LectureUpdate) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	fields := update.Fields()
	if len(fields) == 0 {
		return nil
	}

	set := bson.M{}
	for key, value := range fields {
		set[key] = value
	}
	set["userId"] = userID
	set["sessionId"] = sessionID

	filter := bson.M{"userId": userID, "sessionId": sessionID}
	_, err := r.collection.UpdateOne(
		ctx,
		filter,
		bson.M{"$set": set},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to merge lecture %s: %w", sessionID, err)
	}
	return nil
}

// Get implements repositories.LectureRepository
func (r *LectureRepository) Get(ctx context.Context, userID, sessionID string) (*entities.Lecture, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	filter := bson.M{"userId": userID, "sessionId": sessionID}

	var lecture entities.Lecture
	err := r.collection.FindOne(ctx, filter).Decode(&lecture)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil // No lecture found, return nil without error
		}
		return nil, fmt.Errorf("failed to get lecture %s: %w", sessionID, err)
	}

	return &lecture, nil
}

// Delete implements repositories.LectureRepository
func (r *LectureRepository) Delete(ctx context.Context, userID, sessionID string) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	filter := bson.M{"userId": userID, "sessionId": sessionID}
	_, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete lecture %s: %w", sessionID, err)
	}
	return nil
}
