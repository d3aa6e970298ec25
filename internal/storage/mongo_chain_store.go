package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/annel0/portalnet/internal/chain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for MongoDB chain store.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. portalnet
	Collection string // e.g. portal_chains
}

// MongoChainStore implements ChainStore on MongoDB: one document per chain, keyed by chain id.
type MongoChainStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

// NewMongoChainStore establishes connection and returns the store.
func NewMongoChainStore(ctx context.Context, cfg MongoConfig) (*MongoChainStore, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "portalnet"
	}
	if cfg.Collection == "" {
		cfg.Collection = "portal_chains"
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	// ping
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return &MongoChainStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}, nil
}

// Load reads every chain document sorted by id.
func (m *MongoChainStore) Load(ctx context.Context) (chain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	var doc chain.Document
	cur, err := m.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return doc, fmt.Errorf("mongo find: %w", err)
	}
	defer cur.Close(ctx)

	if err := cur.All(ctx, &doc.Chains); err != nil {
		return chain.Document{}, fmt.Errorf("mongo decode: %w", err)
	}
	return doc, nil
}

// Save upserts every chain and deletes the ones that disappeared.
func (m *MongoChainStore) Save(ctx context.Context, doc chain.Document) error {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	ids := make([]int, 0, len(doc.Chains))
	models := make([]mongo.WriteModel, 0, len(doc.Chains)+1)
	for _, rec := range doc.Chains {
		ids = append(ids, rec.ID)
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": rec.ID}).
			SetReplacement(rec).
			SetUpsert(true))
	}
	models = append(models, mongo.NewDeleteManyModel().SetFilter(bson.M{"_id": bson.M{"$nin": ids}}))

	if _, err := m.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("mongo bulk write: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (m *MongoChainStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}
