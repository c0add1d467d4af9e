// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/dikshahub/internal/app/scheduling"
	"github.com/dalemusser/dikshahub/internal/app/store/sqlitestore"
	"github.com/dalemusser/dikshahub/internal/app/system/events"
	"github.com/dalemusser/dikshahub/internal/app/system/ratelimit"
	"github.com/dalemusser/dikshahub/internal/app/system/workers"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app. Exactly one of
// the Mongo pair or SQLite is set, per Backend.
type DBDeps struct {
	Backend string

	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	SQLite *sqlitestore.Store

	// services is filled by Startup. WAFFLE passes DBDeps by value, so the
	// pointer is what BuildHandler and Shutdown share.
	services *services
}

// services are the long-lived objects built on top of the store.
type services struct {
	engine   *scheduling.Engine
	registry *prometheus.Registry
	amqp     *events.AMQPPublisher
	sweeper  *workers.UnlockSweeper
	limiter  *ratelimit.Limiter
}
