// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
type DBDeps struct {
	FlatHubMongoClient   *mongo.Client
	FlatHubMongoDatabase *mongo.Database

	// Redis is nil when no redis_addr is configured.
	Redis goredis.UniversalClient
}
