package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the Mongo collection holding appointment documents.
const Collection = "appointments"

type apptDoc struct {
	ID              string    `bson:"_id"`
	Title           string    `bson:"title"`
	Description     string    `bson:"description"`
	Date            string    `bson:"appointmentDate"`
	Time            string    `bson:"appointmentTime"`
	Status          string    `bson:"currentStatus"`
	CreatedBy       string    `bson:"createdBy"`
	AppointmentWith string    `bson:"appointmentWith"`
	AppointedTo     string    `bson:"appointedTo,omitempty"`
	Attachment      string    `bson:"voiceNote,omitempty"`
	CreatedAt       time.Time `bson:"createdAt"`
	UpdatedAt       time.Time `bson:"updatedAt"`
}

func toDoc(a *Appointment) apptDoc {
	return apptDoc{
		ID: a.ID.String(), Title: a.Title, Description: a.Description,
		Date: a.Date, Time: a.Time, Status: string(a.Status),
		CreatedBy: a.CreatedBy, AppointmentWith: a.AppointmentWith,
		AppointedTo: a.AppointedTo, Attachment: a.Attachment,
		CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func (d apptDoc) model() (*Appointment, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decode appointment %q: %w", d.ID, err)
	}
	return &Appointment{
		ID: id, Title: d.Title, Description: d.Description,
		Date: d.Date, Time: d.Time, Status: Status(d.Status),
		CreatedBy: d.CreatedBy, AppointmentWith: d.AppointmentWith,
		AppointedTo: d.AppointedTo, Attachment: d.Attachment,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}, nil
}

type repoMongo struct{ coll *mongo.Collection }

func NewRepoMongo(db *mongo.Database) Repository {
	return &repoMongo{coll: db.Collection(Collection)}
}

var scheduleSort = bson.D{
	{Key: "appointmentDate", Value: 1},
	{Key: "appointmentTime", Value: 1},
	{Key: "createdAt", Value: 1},
	{Key: "_id", Value: 1},
}

// Indexes backs the received and scheduled queries.
var Indexes = []mongo.IndexModel{
	{Keys: bson.D{{Key: "appointmentWith", Value: 1}, {Key: "currentStatus", Value: 1}, {Key: "appointmentDate", Value: 1}, {Key: "appointmentTime", Value: 1}}},
	{Keys: bson.D{{Key: "createdBy", Value: 1}, {Key: "currentStatus", Value: 1}, {Key: "appointmentDate", Value: 1}, {Key: "appointmentTime", Value: 1}}},
}

func (r *repoMongo) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	_, err := r.coll.InsertOne(ctx, toDoc(a))
	return err
}

func (r *repoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var d apptDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d.model()
}

func (r *repoMongo) ListReceived(ctx context.Context, participant string) ([]*Appointment, error) {
	return r.find(ctx, bson.M{
		"appointmentWith": participant,
		"currentStatus":   bson.M{"$in": statusStrings(receivedStatuses)},
	})
}

func (r *repoMongo) ListScheduled(ctx context.Context, scheduler string) ([]*Appointment, error) {
	return r.find(ctx, bson.M{
		"createdBy":     scheduler,
		"currentStatus": bson.M{"$nin": statusStrings(hiddenScheduled)},
	})
}

func (r *repoMongo) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status, at time.Time) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id.String(), "currentStatus": string(expected)},
		bson.M{"$set": bson.M{"currentStatus": string(next), "updatedAt": at}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *repoMongo) DeleteIfStatus(ctx context.Context, id uuid.UUID, expected Status) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id.String(), "currentStatus": string(expected)})
	if err != nil {
		return false, err
	}
	return res.DeletedCount == 1, nil
}

func (r *repoMongo) find(ctx context.Context, filter bson.M) ([]*Appointment, error) {
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(scheduleSort))
	if err != nil {
		return nil, err
	}
	var docs []apptDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]*Appointment, 0, len(docs))
	for _, d := range docs {
		a, err := d.model()
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, nil
}
