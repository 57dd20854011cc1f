package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the Mongo collection holding users.
const Collection = "users"

// Indexes enforce case-insensitive uniqueness through the lowered key fields.
var Indexes = []mongo.IndexModel{
	{Keys: bson.D{{Key: "usernameKey", Value: 1}}, Options: options.Index().SetUnique(true).SetName("username_unique")},
	{Keys: bson.D{{Key: "emailKey", Value: 1}}, Options: options.Index().SetUnique(true).SetName("email_unique")},
}

type userDoc struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	UsernameKey  string    `bson:"usernameKey"`
	Email        string    `bson:"email"`
	EmailKey     string    `bson:"emailKey"`
	DisplayName  string    `bson:"displayName,omitempty"`
	PasswordHash string    `bson:"passwordHash"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func (d userDoc) model() (*User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decode user %q: %w", d.ID, err)
	}
	return &User{
		ID: id, Username: d.Username, Email: d.Email, DisplayName: d.DisplayName,
		PasswordHash: d.PasswordHash, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}, nil
}

type userRepoMongo struct{ coll *mongo.Collection }

func NewUserRepoMongo(db *mongo.Database) UserRepository {
	return &userRepoMongo{coll: db.Collection(Collection)}
}

var byUsername = bson.D{{Key: "usernameKey", Value: 1}}

func (r *userRepoMongo) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	_, err := r.coll.InsertOne(ctx, userDoc{
		ID: u.ID.String(), Username: u.Username, UsernameKey: strings.ToLower(u.Username),
		Email: u.Email, EmailKey: strings.ToLower(u.Email), DisplayName: u.DisplayName,
		PasswordHash: u.PasswordHash, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		if strings.Contains(err.Error(), "email_unique") {
			return ErrEmailTaken
		}
		return ErrUsernameTaken
	}
	return err
}

func (r *userRepoMongo) GetByUsername(ctx context.Context, username string) (*User, error) {
	var d userDoc
	err := r.coll.FindOne(ctx, bson.M{"usernameKey": strings.ToLower(username)}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return d.model()
}

func (r *userRepoMongo) Search(ctx context.Context, term string, limit int) ([]*User, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(strings.ToLower(term))}
	filter := bson.M{"$or": bson.A{
		bson.M{"usernameKey": pattern},
		bson.M{"emailKey": pattern},
	}}
	return r.find(ctx, filter, options.Find().SetSort(byUsername).SetLimit(int64(limit)))
}

func (r *userRepoMongo) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	total, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().SetSort(byUsername).SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	items, err := r.find(ctx, bson.M{}, opts)
	return items, int(total), err
}

func (r *userRepoMongo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*User, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]*User, 0, len(docs))
	for _, d := range docs {
		u, err := d.model()
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, nil
}
