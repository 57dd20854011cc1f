package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the MongoDB collection holding attachments.
const Collection = "attachments"

// Indexes are created by "migrate up" when the store driver is mongo.
var Indexes = []mongo.IndexModel{
	{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "createdAt", Value: -1}}},
}

type blobDoc struct {
	ID          string    `bson:"_id"`
	Owner       string    `bson:"owner"`
	FileName    string    `bson:"fileName"`
	ContentType string    `bson:"contentType"`
	Size        int64     `bson:"size"`
	Checksum    string    `bson:"checksum"`
	CreatedAt   time.Time `bson:"createdAt"`
	Data        []byte    `bson:"data,omitempty"`
}

func (d blobDoc) metadata() *BlobMetadata {
	return &BlobMetadata{
		ID:          d.ID,
		Owner:       d.Owner,
		FileName:    d.FileName,
		ContentType: d.ContentType,
		Size:        d.Size,
		Checksum:    d.Checksum,
		CreatedAt:   d.CreatedAt,
	}
}

var withoutData = options.FindOne().SetProjection(bson.M{"data": 0})

// MongoStore keeps attachments as documents with a binary data field.
type MongoStore struct {
	coll   *mongo.Collection
	limits Limits
}

func NewMongoStore(db *mongo.Database, limits Limits) *MongoStore {
	return &MongoStore{coll: db.Collection(Collection), limits: limits}
}

func (s *MongoStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := s.limits.prepare(meta, content)
	if err != nil {
		return nil, err
	}
	doc := blobDoc{
		ID:          meta.ID,
		Owner:       meta.Owner,
		FileName:    meta.FileName,
		ContentType: meta.ContentType,
		Size:        meta.Size,
		Checksum:    meta.Checksum,
		CreatedAt:   meta.CreatedAt,
		Data:        data,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert attachment: %w", err)
	}
	return &meta, nil
}

func (s *MongoStore) findOne(ctx context.Context, id string, opts ...*options.FindOneOptions) (*blobDoc, error) {
	var doc blobDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}, opts...).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("find attachment: %w", err)
	}
	return &doc, nil
}

func (s *MongoStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	doc, err := s.findOne(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return io.NopCloser(bytes.NewReader(doc.Data)), doc.metadata(), nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrBlobNotFound
	}
	return nil
}

func (s *MongoStore) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	doc, err := s.findOne(ctx, id, withoutData)
	if err != nil {
		return nil, err
	}
	return doc.metadata(), nil
}

func (s *MongoStore) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*BlobMetadata, int, error) {
	filter := bson.M{"owner": owner}
	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count attachments: %w", err)
	}

	opts := options.Find().
		SetProjection(bson.M{"data": 0}).
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list attachments: %w", err)
	}
	var docs []blobDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode attachments: %w", err)
	}

	items := make([]*BlobMetadata, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.metadata())
	}
	return items, int(total), nil
}
