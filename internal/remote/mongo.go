// Package remote mirrors planner state to MongoDB so other devices can pick
// it up. The local SQLite store stays the source of truth.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/zapponejosh/weekend-planner/internal/database"
)

const (
	daysCollection     = "weekend_days"
	settingsCollection = "settings"
	recurrenceID       = "support_rota"
)

// Mongo is a remote mirror backed by a MongoDB database.
type Mongo struct {
	client   *mongo.Client
	days     *mongo.Collection
	settings *mongo.Collection
	logger   *slog.Logger
}

// Connect dials MongoDB and verifies the connection.
func Connect(ctx context.Context, uri, dbName string, logger *slog.Logger) (*Mongo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(dbName)
	logger.Info("remote mirror connected", slog.String("database", dbName))

	return &Mongo{
		client:   client,
		days:     db.Collection(daysCollection),
		settings: db.Collection(settingsCollection),
		logger:   logger,
	}, nil
}

// Close disconnects from MongoDB.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// dayDoc is the remote shape of a weekend day, keyed by date.
type dayDoc struct {
	Date      string    `bson:"_id"`
	Status    string    `bson:"status"`
	Plan      string    `bson:"plan"`
	Support   bool      `bson:"support"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type recurrenceDoc struct {
	ID            string    `bson:"_id"`
	Enabled       bool      `bson:"enabled"`
	IntervalWeeks int       `bson:"interval_weeks"`
	AnchorDate    string    `bson:"anchor_date"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func toDayDoc(d database.WeekendDay) dayDoc {
	return dayDoc{
		Date:      d.Date,
		Status:    string(d.Status),
		Plan:      d.Plan,
		Support:   d.Support,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func fromDayDoc(doc dayDoc) database.WeekendDay {
	return database.WeekendDay{
		Date:      doc.Date,
		Status:    database.DayStatus(doc.Status),
		Plan:      doc.Plan,
		Support:   doc.Support,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
}

func toRecurrenceDoc(r database.Recurrence) recurrenceDoc {
	return recurrenceDoc{
		ID:            recurrenceID,
		Enabled:       r.Enabled,
		IntervalWeeks: r.IntervalWeeks,
		AnchorDate:    r.AnchorDate,
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func fromRecurrenceDoc(doc recurrenceDoc) database.Recurrence {
	return database.Recurrence{
		Enabled:       doc.Enabled,
		IntervalWeeks: doc.IntervalWeeks,
		AnchorDate:    doc.AnchorDate,
		UpdatedAt:     doc.UpdatedAt.UTC(),
	}
}

// PushDay upserts one day. A cleared day is pushed in its default state
// rather than deleted, so other devices see the newer timestamp.
func (m *Mongo) PushDay(ctx context.Context, day database.WeekendDay) error {
	doc := toDayDoc(day)
	_, err := m.days.ReplaceOne(ctx, bson.M{"_id": doc.Date}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("push day %s: %w", day.Date, err)
	}
	return nil
}

// PullDays returns every mirrored day.
func (m *Mongo) PullDays(ctx context.Context) ([]database.WeekendDay, error) {
	cur, err := m.days.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("pull days: %w", err)
	}

	var docs []dayDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode days: %w", err)
	}

	days := make([]database.WeekendDay, 0, len(docs))
	for _, doc := range docs {
		days = append(days, fromDayDoc(doc))
	}
	return days, nil
}

// PushRecurrence upserts the support rota.
func (m *Mongo) PushRecurrence(ctx context.Context, r database.Recurrence) error {
	doc := toRecurrenceDoc(r)
	_, err := m.settings.ReplaceOne(ctx, bson.M{"_id": recurrenceID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("push recurrence: %w", err)
	}
	return nil
}

// PullRecurrence returns the mirrored rota, or nil if none was pushed yet.
func (m *Mongo) PullRecurrence(ctx context.Context) (*database.Recurrence, error) {
	var doc recurrenceDoc
	err := m.settings.FindOne(ctx, bson.M{"_id": recurrenceID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("pull recurrence: %w", err)
	}
	r := fromRecurrenceDoc(doc)
	return &r, nil
}
