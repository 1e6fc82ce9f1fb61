// Package service implements the butterfly, user and rating records on
// top of the flat store, including the rating integrity rule.
package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/stevemurr/butterfly-api/store"
)

// Service maps the three record kinds onto a store.DB.
//
// Writes are serialized by a single writer lock, so the reference
// checks in UpsertRating and the write that follows them cannot
// interleave with another writer in the same process.
type Service struct {
	db  *store.DB
	log logrus.FieldLogger

	writeMu sync.Mutex
}

// New returns a Service over db, creating the butterflies, users and
// ratings collections if they do not exist yet.
func New(db *store.DB, log logrus.FieldLogger) (*Service, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := db.Defaults(ButterfliesCollection, UsersCollection, RatingsCollection); err != nil {
		return nil, err
	}
	return &Service{db: db, log: log}, nil
}

// InsertButterfly appends b. The caller assigns b.ID.
func (s *Service) InsertButterfly(ctx context.Context, b Butterfly) (Butterfly, error) {
	if err := s.insert(ctx, ButterfliesCollection, b); err != nil {
		return Butterfly{}, err
	}
	return b, nil
}

// InsertUser appends u. The caller assigns u.ID.
func (s *Service) InsertUser(ctx context.Context, u User) (User, error) {
	if err := s.insert(ctx, UsersCollection, u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Service) insert(ctx context.Context, collection string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := toRecord(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.db.Insert(collection, rec)
	return err
}

// GetButterflies returns every butterfly matching q, in insertion order.
func (s *Service) GetButterflies(_ context.Context, q ButterflyQuery) ([]Butterfly, error) {
	return decodeAll[Butterfly](s.db.Query(ButterfliesCollection, q.fields()))
}

// GetUsers returns every user matching q, in insertion order.
func (s *Service) GetUsers(_ context.Context, q UserQuery) ([]User, error) {
	return decodeAll[User](s.db.Query(UsersCollection, q.fields()))
}

// GetRatings returns the ratings matching q sorted by score, highest
// first unless order is OrderAsc. Ties keep insertion order.
func (s *Service) GetRatings(_ context.Context, q RatingQuery, order Order) ([]Rating, error) {
	ratings, err := decodeAll[Rating](s.db.Filter(RatingsCollection, store.Match(q.fields())))
	if err != nil {
		return nil, err
	}
	if order == OrderAsc {
		sort.SliceStable(ratings, func(i, j int) bool { return ratings[i].Rating < ratings[j].Rating })
	} else {
		sort.SliceStable(ratings, func(i, j int) bool { return ratings[i].Rating > ratings[j].Rating })
	}
	return ratings, nil
}

// UpsertRating writes r, replacing any existing rating for the same
// user and butterfly. The butterfly is checked before the user, and
// both must exist before anything is written.
func (s *Service) UpsertRating(ctx context.Context, r Rating) (Rating, error) {
	if err := ctx.Err(); err != nil {
		return Rating{}, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	butterflyFields := store.Fields{"id": r.ButterflyID}
	if len(s.db.Query(ButterfliesCollection, butterflyFields)) == 0 {
		return Rating{}, s.invalidReference(ButterfliesCollection, butterflyFields)
	}
	userFields := store.Fields{"id": r.UserID}
	if len(s.db.Query(UsersCollection, userFields)) == 0 {
		return Rating{}, s.invalidReference(UsersCollection, userFields)
	}

	rec, err := s.db.Upsert(RatingsCollection, r.key(), r.patch())
	if err != nil {
		return Rating{}, err
	}
	var out Rating
	if err := fromRecord(rec, &out); err != nil {
		return Rating{}, err
	}
	return out, nil
}

func (s *Service) invalidReference(collection string, fields store.Fields) error {
	err := &InvalidReferenceError{Collection: collection, Fields: fields}
	s.log.WithField("collection", collection).Debug(err.Error())
	return err
}

func toRecord(v any) (store.Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rec store.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func fromRecord(rec store.Record, v any) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func decodeAll[T any](records []store.Record) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		var v T
		if err := fromRecord(rec, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
