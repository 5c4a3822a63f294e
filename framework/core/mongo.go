package core

import (
	"context"
	"errors"
	"time"

	mdb "github.com/fixkme/timerwheel/db/mongo"
	"github.com/fixkme/timerwheel/framework/config"
	"github.com/fixkme/timerwheel/mlog"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var Mongo *MongoImpl

type MongoImpl struct {
	client  *mongo.Client
	monitor *mdb.MongoPoolMonitor
}

// InitMongo 镜像只有一个文档，池子不用太大
func InitMongo(ctx context.Context, conf *config.MongoConfig) error {
	if conf == nil || conf.MongoUri == "" {
		return errors.New("mongo uri is empty")
	}
	rp := readpref.Primary()
	if conf.MongoSecondaryOk {
		rp = readpref.PrimaryPreferred()
	}
	timeout := time.Duration(conf.MongoDialTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	monitor := &mdb.MongoPoolMonitor{}
	opts := options.Client().
		ApplyURI(conf.MongoUri).
		SetReadPreference(rp).
		SetConnectTimeout(timeout).
		SetPoolMonitor(&event.PoolMonitor{Event: monitor.Event})
	if conf.MongoMaxPoolSize > 0 {
		opts.SetMaxPoolSize(uint64(conf.MongoMaxPoolSize))
	}
	if conf.MongoConnIdleMs > 0 {
		opts.SetMaxConnIdleTime(time.Duration(conf.MongoConnIdleMs) * time.Millisecond)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		mlog.Errorf("mongo connect failed: %v, uri: %s", err, conf.MongoUri)
		return err
	}
	if err = client.Ping(ctx, rp); err != nil {
		client.Disconnect(context.Background())
		mlog.Errorf("mongo ping failed: %v, uri: %s", err, conf.MongoUri)
		return err
	}

	Mongo = &MongoImpl{
		client:  client,
		monitor: monitor,
	}
	mlog.Infof("mongo connected, uri: %s, db: %s", conf.MongoUri, conf.MongoDatabase)
	return nil
}

func (m *MongoImpl) Client() *mongo.Client {
	return m.client
}

// Collection 镜像存储用的集合
func (m *MongoImpl) Collection(database, collection string) *mongo.Collection {
	return m.client.Database(database).Collection(collection)
}

func (m *MongoImpl) Stop(ctx context.Context) {
	if err := m.client.Disconnect(ctx); err != nil {
		mlog.Warnf("mongo disconnect failed: %v", err)
	}
}

func (m *MongoImpl) GetActiveConnections() int {
	return m.monitor.GetActiveConnections()
}

func (m *MongoImpl) PoolStats() string {
	return m.monitor.String()
}
