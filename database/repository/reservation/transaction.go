package reservationRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const txnTimeout = 10 * time.Second

// withProviderTxn runs fn in a transaction serialized against every other transaction for providerID.
// Two writers bumping the same lock document write-conflict; the driver retries the loser, which then
// observes the winner's commit.
func (repo *MongoReservationRepo) withProviderTxn(ctx context.Context, providerID string, fn func(sc mongo.SessionContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, txnTimeout)
	defer cancel()

	sess, err := repo.client.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if err := repo.lockProvider(sc, providerID); err != nil {
			return nil, err
		}
		return nil, fn(sc)
	}, txnOpts)
	return err
}

func (repo *MongoReservationRepo) lockProvider(sc mongo.SessionContext, providerID string) error {
	filter := bson.M{"_id": providerID}
	update := bson.M{
		"$inc": bson.M{"version": 1},
		"$set": bson.M{"touched_at": time.Now().UTC()},
	}
	if _, err := repo.lockColl.UpdateOne(sc, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("error locking provider %s timeline: %w", providerID, err)
	}
	return nil
}
