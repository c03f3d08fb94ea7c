// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/stratacomm/internal/app/store/memstore"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
//
// Exactly one of MongoDatabase or Memory is set, depending on store_type.
// Redis and NATS are nil unless configured. Services is allocated by
// ConnectDB and filled by Startup so the hooks that run later share it.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	Memory        *memstore.Store

	Redis *redis.Client
	NATS  *nats.Conn

	Services *Services
}
