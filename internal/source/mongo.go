package source

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/andreiashu/pinbed"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoLoader reads pincode documents from a collection. Documents follow
// the API's JSON shape; ids may be ObjectIDs and codes may be numbers.
type MongoLoader struct {
	Collection *mongo.Collection
	Filter     any // default: all documents
}

type mongoSubArea struct {
	ID   any    `bson:"_id"`
	Name string `bson:"name"`
}

type mongoArea struct {
	ID       any            `bson:"_id"`
	Name     string         `bson:"name"`
	SubAreas []mongoSubArea `bson:"subAreas"`
}

type mongoPincode struct {
	ID        any         `bson:"_id"`
	Code      any         `bson:"code"`
	City      string      `bson:"city"`
	State     string      `bson:"state"`
	Areas     []mongoArea `bson:"areas"`
	Latitude  float64     `bson:"latitude,omitempty"`
	Longitude float64     `bson:"longitude,omitempty"`
}

// LoadPincodes reads every matching document in natural order.
func (l MongoLoader) LoadPincodes(ctx context.Context) ([]pinbed.PincodeRecord, error) {
	filter := l.Filter
	if filter == nil {
		filter = bson.D{}
	}

	cur, err := l.Collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("finding pincodes: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoPincode
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding pincodes: %w", err)
	}

	records := make([]pinbed.PincodeRecord, len(docs))
	for i, d := range docs {
		records[i] = d.record()
	}
	return records, nil
}

func (d mongoPincode) record() pinbed.PincodeRecord {
	r := pinbed.PincodeRecord{
		ID:        idString(d.ID),
		Code:      idString(d.Code),
		City:      d.City,
		State:     d.State,
		Latitude:  d.Latitude,
		Longitude: d.Longitude,
		Areas:     make([]pinbed.AreaRecord, len(d.Areas)),
	}
	for i, a := range d.Areas {
		area := pinbed.AreaRecord{
			ID:       idString(a.ID),
			Name:     a.Name,
			SubAreas: make([]pinbed.SubAreaRecord, len(a.SubAreas)),
		}
		for j, s := range a.SubAreas {
			area.SubAreas[j] = pinbed.SubAreaRecord{ID: idString(s.ID), Name: s.Name}
		}
		r.Areas[i] = area
	}
	return r
}

// idString renders the id and code types found in marketplace collections.
func idString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case primitive.ObjectID:
		return t.Hex()
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// ConnectMongo opens a client and returns a loader over database.collection.
// The caller must Disconnect the client.
func ConnectMongo(ctx context.Context, uri, database, collection string) (*mongo.Client, MongoLoader, error) {
	clientOptions := options.Client().ApplyURI(uri).
		SetMaxPoolSize(10).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second).
		SetRetryReads(true).
		SetReadPreference(readpref.PrimaryPreferred())

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, MongoLoader{}, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.PrimaryPreferred()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, MongoLoader{}, fmt.Errorf("pinging MongoDB: %w", err)
	}

	slog.Info("connected to MongoDB", "database", database, "collection", collection)
	return client, MongoLoader{Collection: client.Database(database).Collection(collection)}, nil
}
