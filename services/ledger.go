package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cadconvert/config"
	"cadconvert/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

var (
	ErrJobNotFound       = errors.New("conversion job not found")
	ErrIllegalTransition = errors.New("illegal status transition")
)

// LedgerService persists one document per conversion job. Every status
// change is a conditional update guarded by the expected predecessor
// status, so a retried or concurrent request cannot rewind a job or
// finalize it twice.
type LedgerService struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

func NewLedgerService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*LedgerService, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	svc := &LedgerService{
		client:     client,
		collection: client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection),
		logger:     logger,
	}
	if err := svc.ensureExpiryIndex(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

// ensureExpiryIndex delegates purging of expired jobs to mongod via a TTL
// index; this service never deletes records itself.
func (l *LedgerService) ensureExpiryIndex(ctx context.Context) error {
	_, err := l.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiryAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("failed to create expiry index: %w", err)
	}
	return nil
}

// Create inserts a new job in status PENDING and returns its identifier.
func (l *LedgerService) Create(ctx context.Context, bucket, organizationID, outputFile string) (string, error) {
	now := time.Now().UTC()
	job := models.ConversionJob{
		S3Bucket:       bucket,
		Status:         models.StatusPending,
		OrganizationID: organizationID,
		OutputFile:     outputFile,
		ExpiryAt:       now.Add(models.JobExpiry),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	result, err := l.collection.InsertOne(ctx, job)
	if err != nil {
		return "", fmt.Errorf("failed to insert conversion job: %w", err)
	}
	id, ok := result.InsertedID.(bson.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", result.InsertedID)
	}
	return id.Hex(), nil
}

// Advance moves a job into a non-terminal status.
func (l *LedgerService) Advance(ctx context.Context, id string, to models.Status) error {
	return l.transition(ctx, id, to, bson.M{"status": to, "updated_at": time.Now().UTC()})
}

// Fail finalizes a job with the failure reason.
func (l *LedgerService) Fail(ctx context.Context, id, reason string) error {
	return l.transition(ctx, id, models.StatusFailed, bson.M{
		"status":     models.StatusFailed,
		"error":      reason,
		"updated_at": time.Now().UTC(),
	})
}

// Complete finalizes a job. A nil link means no upload was requested and
// the stored s3_link stays null.
func (l *LedgerService) Complete(ctx context.Context, id string, link *string) error {
	return l.transition(ctx, id, models.StatusCompleted, bson.M{
		"status":     models.StatusCompleted,
		"s3_link":    link,
		"updated_at": time.Now().UTC(),
	})
}

func (l *LedgerService) transition(ctx context.Context, id string, to models.Status, set bson.M) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	preds := to.Predecessors()
	if len(preds) == 0 {
		return fmt.Errorf("%w: no status may transition to %s", ErrIllegalTransition, to)
	}

	result, err := l.collection.UpdateOne(ctx,
		bson.M{"_id": oid, "status": bson.M{"$in": preds}},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("failed to update conversion job: %w", err)
	}
	if result.MatchedCount == 0 {
		// Distinguish a missing job from one whose current status does
		// not permit this transition.
		current, err := l.Get(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current.Status, to)
	}

	l.logger.Debug("conversion status updated",
		zap.String("conversion_id", id),
		zap.String("status", string(to)))
	return nil
}

// Get returns the job record for polling.
func (l *LedgerService) Get(ctx context.Context, id string) (*models.ConversionJob, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	var job models.ConversionJob
	if err := l.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&job); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to read conversion job: %w", err)
	}
	return &job, nil
}

func (l *LedgerService) Close(ctx context.Context) error {
	return l.client.Disconnect(ctx)
}
