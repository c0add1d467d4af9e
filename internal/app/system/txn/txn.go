// Package txn runs MongoDB multi-document transactions, falling back to
// plain session execution on deployments that do not support them
// (standalone servers in development).
package txn

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var warnedFallback atomic.Bool

// Run executes fn inside a transaction on db's client. fn may be re-run by
// the driver on transient transaction errors. When transactions are not
// supported, fn runs once in a session without a transaction and a warning
// is logged the first time.
func Run(ctx context.Context, db *mongo.Database, log *zap.Logger, fn func(sc mongo.SessionContext) error) error {
	sess, err := db.Client().StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	if err == nil || !IsNotSupported(err) {
		return err
	}

	if log != nil && warnedFallback.CompareAndSwap(false, true) {
		log.Warn("mongo transactions unavailable; running without transaction", zap.Error(err))
	}
	return fn(mongo.NewSessionContext(ctx, sess))
}

// IsNotSupported reports whether err means the server cannot run
// transactions (standalone mongod, unsupported topology).
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, 51, 263:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	has := func(s string) bool { return strings.Contains(msg, s) }
	switch {
	case has("transaction") && has("replica set"):
		return true
	case has("session") && has("not supported"):
		return true
	case has("transaction") && has("session"):
		return true
	case has("illegal operation"):
		return true
	}
	return false
}
