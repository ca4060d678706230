// Package mongo implements the transaction event archive on MongoDB.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tarancss/soltracker/lib/msg/types"
)

// Database and collection of the archive.
const (
	Database   = "tracker"
	Collection = "events"
)

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c *mgo.Client
}

// Event is an archived transaction event.
type Event struct {
	ID         primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Address    string             `json:"address" bson:"address"`
	ChatIDs    []int64            `json:"chat_ids" bson:"chat_ids"`
	ReceivedAt time.Time          `json:"received_at" bson:"received_at"`
}

// New returns a Mongo client connection to the specified MongoDB database uri.
func New(uri string) (*Mongo, error) {
	// get a client
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}
	// connect client
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	err = c.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	return &Mongo{c: c}, nil
}

// CloseMongo will close a database connection. Must be called at termination time.
func (m *Mongo) CloseMongo() error {
	return m.c.Disconnect(context.Background())
}

func (m *Mongo) events() *mgo.Collection {
	return m.c.Database(Database).Collection(Collection)
}

// SaveEvent archives a transaction event.
func (m *Mongo) SaveEvent(ctx context.Context, ev types.TransactionEvent) error {
	if _, err := m.events().InsertOne(ctx, NewEvent(ev, time.Now().UTC())); err != nil {
		return fmt.Errorf("could not archive event for %s: %w", ev.Address, err)
	}

	return nil
}

// NewEvent returns the archive document for ev.
func NewEvent(ev types.TransactionEvent, at time.Time) Event {
	return Event{Address: ev.Address, ChatIDs: ev.ChatIDs, ReceivedAt: at}
}

// Count returns the number of archived events.
func (m *Mongo) Count(ctx context.Context) (int64, error) {
	return m.events().CountDocuments(ctx, bson.D{})
}
