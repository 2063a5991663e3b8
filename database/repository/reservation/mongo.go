package reservationRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"escrowbook/models"
	"escrowbook/services/interval"
)

// MongoReservationRepo implements ReservationRepository on MongoDB. Units of work touching a provider run
// in a transaction that first bumps that provider's lock document.
type MongoReservationRepo struct {
	client          *mongo.Client
	bookingColl     *mongo.Collection
	reservationColl *mongo.Collection
	lockColl        *mongo.Collection
}

func NewMongoReservationRepo(db *mongo.Database) *MongoReservationRepo {
	return &MongoReservationRepo{
		client:          db.Client(),
		bookingColl:     db.Collection("bookings"),
		reservationColl: db.Collection("reservations"),
		lockColl:        db.Collection("provider_locks"),
	}
}

func (repo *MongoReservationRepo) TryReserve(ctx context.Context, b *models.Booking, buffer time.Duration) error {
	return repo.withProviderTxn(ctx, b.ProviderID, func(sc mongo.SessionContext) error {
		filter := bson.M{
			"provider_id": b.ProviderID,
			"state":       ReservationHeld,
			"start_time":  bson.M{"$lte": b.EndTime.Add(buffer)},
			"end_time":    bson.M{"$gte": b.StartTime.Add(-buffer)},
		}
		cursor, err := repo.reservationColl.Find(sc, filter)
		if err != nil {
			return fmt.Errorf("error finding held reservations: %w", err)
		}
		var held []Reservation
		if err := cursor.All(sc, &held); err != nil {
			return fmt.Errorf("error decoding held reservations: %w", err)
		}
		for _, res := range held {
			if interval.Conflicts(res.StartTime, res.EndTime, b.StartTime, b.EndTime, buffer) {
				return conflictFor(res, buffer)
			}
		}

		res := Reservation{
			BookingID:  b.ID,
			ProviderID: b.ProviderID,
			StartTime:  b.StartTime,
			EndTime:    b.EndTime,
			State:      ReservationHeld,
			CreatedAt:  time.Now().UTC(),
		}
		if _, err := repo.reservationColl.InsertOne(sc, res); err != nil {
			return fmt.Errorf("insert reservation failed: %w", err)
		}
		if _, err := repo.bookingColl.InsertOne(sc, b); err != nil {
			return fmt.Errorf("insert booking failed: %w", err)
		}
		return nil
	})
}

func (repo *MongoReservationRepo) Release(ctx context.Context, bookingID string) (bool, error) {
	b, err := repo.GetByID(ctx, bookingID)
	if err != nil {
		return false, err
	}
	var released bool
	err = repo.withProviderTxn(ctx, b.ProviderID, func(sc mongo.SessionContext) error {
		var txErr error
		released, txErr = repo.releaseIn(sc, bookingID)
		return txErr
	})
	return released, err
}

func (repo *MongoReservationRepo) releaseIn(sc mongo.SessionContext, bookingID string) (bool, error) {
	filter := bson.M{"booking_id": bookingID, "state": ReservationHeld}
	update := bson.M{"$set": bson.M{"state": ReservationReleased, "released_at": time.Now().UTC()}}
	result, err := repo.reservationColl.UpdateOne(sc, filter, update)
	if err != nil {
		return false, fmt.Errorf("error releasing reservation for booking %s: %w", bookingID, err)
	}
	return result.ModifiedCount == 1, nil
}

func (repo *MongoReservationRepo) Discard(ctx context.Context, bookingID string) error {
	b, err := repo.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	return repo.withProviderTxn(ctx, b.ProviderID, func(sc mongo.SessionContext) error {
		result, err := repo.bookingColl.DeleteOne(sc, bson.M{"id": bookingID, "status": models.BookingPending})
		if err != nil {
			return fmt.Errorf("error deleting booking %s: %w", bookingID, err)
		}
		if result.DeletedCount == 0 {
			return fmt.Errorf("discard booking %s: not pending", bookingID)
		}
		if _, err := repo.reservationColl.DeleteOne(sc, bson.M{"booking_id": bookingID}); err != nil {
			return fmt.Errorf("error deleting reservation %s: %w", bookingID, err)
		}
		return nil
	})
}

func (repo *MongoReservationRepo) Mutate(ctx context.Context, bookingID string, fn MutateFunc) (*models.Booking, error) {
	current, err := repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var out *models.Booking
	err = repo.withProviderTxn(ctx, current.ProviderID, func(sc mongo.SessionContext) error {
		var b models.Booking
		if err := repo.bookingColl.FindOne(sc, bson.M{"id": bookingID}).Decode(&b); err != nil {
			return fmt.Errorf("error reloading booking %s: %w", bookingID, err)
		}
		snapshot := b.Clone()
		effect, err := fn(&b)
		if err != nil {
			return err
		}
		if effect == NoChange {
			out = &snapshot
			return nil
		}
		if _, err := repo.bookingColl.ReplaceOne(sc, bson.M{"id": bookingID}, b); err != nil {
			return fmt.Errorf("error saving booking %s: %w", bookingID, err)
		}
		if effect == SaveAndRelease {
			if _, err := repo.releaseIn(sc, bookingID); err != nil {
				return err
			}
		}
		out = &b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (repo *MongoReservationRepo) GetByID(ctx context.Context, bookingID string) (*models.Booking, error) {
	return repo.findOne(ctx, bson.M{"id": bookingID}, "booking", bookingID)
}

func (repo *MongoReservationRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.Booking, error) {
	return repo.findOne(ctx, bson.M{"payment.session_id": sessionID}, "payment session", sessionID)
}

func (repo *MongoReservationRepo) findOne(ctx context.Context, filter bson.M, resource, id string) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var b models.Booking
	if err := repo.bookingColl.FindOne(ctx, filter).Decode(&b); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFoundError(resource, id)
		}
		return nil, fmt.Errorf("error fetching %s %s: %w", resource, id, err)
	}
	return &b, nil
}

func (repo *MongoReservationRepo) GetReservation(ctx context.Context, bookingID string) (*Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var res Reservation
	if err := repo.reservationColl.FindOne(ctx, bson.M{"booking_id": bookingID}).Decode(&res); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFoundError("reservation", bookingID)
		}
		return nil, fmt.Errorf("error fetching reservation %s: %w", bookingID, err)
	}
	return &res, nil
}

func (repo *MongoReservationRepo) ListByRequester(ctx context.Context, requesterID string, filter models.BookingFilter) ([]models.Booking, error) {
	return repo.find(ctx, withStatuses(bson.M{"requester_id": requesterID}, filter.Statuses), filter.Limit)
}

func (repo *MongoReservationRepo) ListByProvider(ctx context.Context, providerID string, filter models.BookingFilter) ([]models.Booking, error) {
	return repo.find(ctx, withStatuses(bson.M{"provider_id": providerID}, filter.Statuses), filter.Limit)
}

func (repo *MongoReservationRepo) ListByStatusBefore(ctx context.Context, status models.BookingStatus, field TimeField, before time.Time, limit int64) ([]models.Booking, error) {
	filter := bson.M{"status": status, string(field): bson.M{"$lt": before}}
	return repo.find(ctx, filter, limit)
}

func (repo *MongoReservationRepo) find(ctx context.Context, filter bson.M, limit int64) ([]models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := repo.bookingColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := make([]models.Booking, 0)
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("error decoding bookings: %w", err)
	}
	return bookings, nil
}

func withStatuses(filter bson.M, statuses []models.BookingStatus) bson.M {
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	return filter
}
