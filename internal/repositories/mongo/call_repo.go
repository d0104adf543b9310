package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/callrelay/internal/models"
	"github.com/yoockh/callrelay/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CallRepository interface {
	Insert(ctx context.Context, c *models.CallRecord) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.CallRecord, error)
	ListRecent(ctx context.Context, limit int64) ([]models.CallRecord, error)
}

type callRepo struct {
	col *mongo.Collection
}

func NewCallRepo(db *mongo.Database) CallRepository {
	return &callRepo{col: db.Collection("calls")}
}

func (r *callRepo) Insert(ctx context.Context, c *models.CallRecord) error {
	if c.EndedAt.IsZero() {
		c.EndedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, c)
	return err
}

func (r *callRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.CallRecord, error) {
	var c models.CallRecord
	err := r.col.FindOne(ctx,
		bson.M{"session_id": sessionID},
		options.FindOne().SetSort(bson.D{{Key: "ended_at", Value: -1}}),
	).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &c, err
}

func (r *callRepo) ListRecent(ctx context.Context, limit int64) ([]models.CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	cur, err := r.col.Find(ctx,
		bson.M{},
		options.Find().
			SetSort(bson.D{{Key: "ended_at", Value: -1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.CallRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
