package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/fixkme/timerwheel/errs"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoDoc struct {
	Key     string    `bson:"_id"`
	Data    []byte    `bson:"data"`
	Updated time.Time `bson:"updated"`
}

// MongoStore 每个 key 一个文档，按 _id upsert
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

func (s *MongoStore) Save(ctx context.Context, key string, data []byte) error {
	doc := mongoDoc{Key: key, Data: data, Updated: time.Now()}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) Load(ctx context.Context, key string) ([]byte, error) {
	var doc mongoDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.NotFound.Printf("snapshot mongo doc %s", key)
	}
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

func (s *MongoStore) Delete(ctx context.Context, key string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

func (s *MongoStore) Name() string {
	return "mongo:" + s.coll.Database().Name() + "." + s.coll.Name()
}
