package audit

import (
	"context"
	"time"

	"github.com/ludopro/ludo-services/internal/ludo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const rollCollection = "roll_audits"

// retention window for roll audit documents; after this the TTL index
// reaps them.
const rollRetention = 90 * 24 * time.Hour

// RollStore persists roll audit records to MongoDB. It implements
// ludo.AuditSink so the dice write their trail as a side effect of rolling.
type RollStore struct {
	coll *mongo.Collection
}

func NewRollStore(db *mongo.Database) *RollStore {
	return &RollStore{coll: db.Collection(rollCollection)}
}

type rollDoc struct {
	ludo.RollAudit `bson:",inline"`
	ExpiresAt      time.Time `bson:"expires_at"`
}

func (s *RollStore) RecordRoll(a ludo.RollAudit) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	doc := rollDoc{RollAudit: a, ExpiresAt: a.RolledAt.Add(rollRetention)}
	_, err := s.coll.InsertOne(ctx, doc)
	return err
}

// RollsByMatch returns the full roll trail of a match in turn order,
// for dispute review alongside a revealed seed.
func (s *RollStore) RollsByMatch(ctx context.Context, matchID string) ([]ludo.RollAudit, error) {
	cur, err := s.coll.Find(ctx, bson.M{"match_id": matchID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []ludo.RollAudit
	for cur.Next(ctx) {
		var d rollDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.RollAudit)
	}
	return out, cur.Err()
}
