package service_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/butterfly-api/service"
	"github.com/stevemurr/butterfly-api/store"
)

func seeded() store.Document {
	return store.Document{
		"butterflies": {
			{
				"id":         "wxyz9876",
				"commonName": "test-butterfly",
				"species":    "Testium butterflius",
				"article":    "https://example.com/testium_butterflius",
			},
		},
		"users": {
			{"id": "abcd1234", "username": "test-user"},
		},
		"ratings": {
			{"userId": "abcd1234", "butterflyId": "wxyz9876", "rating": float64(5)},
		},
	}
}

func newService(t *testing.T, doc store.Document) (*service.Service, *store.DB) {
	t.Helper()
	db, err := store.Open(store.NewMemoryStoreWith(doc))
	require.NoError(t, err)
	svc, err := service.New(db, nil)
	require.NoError(t, err)
	return svc, db
}

func TestNewCreatesCollections(t *testing.T) {
	_, db := newService(t, nil)
	assert.Equal(t, []string{"butterflies", "ratings", "users"}, db.Collections())
}

func TestInsertUser(t *testing.T) {
	svc, _ := newService(t, seeded())
	ctx := context.Background()

	u, err := svc.InsertUser(ctx, service.User{ID: "abcd123", Username: "John"})
	require.NoError(t, err)
	assert.Equal(t, service.User{ID: "abcd123", Username: "John"}, u)

	got, err := svc.GetUsers(ctx, service.UserQuery{ID: "abcd123"})
	require.NoError(t, err)
	assert.Equal(t, []service.User{u}, got)

	got, err = svc.GetUsers(ctx, service.UserQuery{Username: "test-user"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "abcd1234", got[0].ID)
}

func TestInsertButterfly(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	b := service.Butterfly{
		ID:         "xRKSdjkBt4",
		CommonName: "Plum Judy",
		Species:    "Abisara echerius",
		Article:    "https://en.wikipedia.org/wiki/Abisara_echerius",
	}
	got, err := svc.InsertButterfly(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	found, err := svc.GetButterflies(ctx, service.ButterflyQuery{ID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, []service.Butterfly{b}, found)

	all, err := svc.GetButterflies(ctx, service.ButterflyQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetByMissingIDIsEmpty(t *testing.T) {
	svc, _ := newService(t, seeded())
	ctx := context.Background()

	users, err := svc.GetUsers(ctx, service.UserQuery{ID: "bad-id"})
	require.NoError(t, err)
	assert.Empty(t, users)

	butterflies, err := svc.GetButterflies(ctx, service.ButterflyQuery{ID: "bad-id"})
	require.NoError(t, err)
	assert.Empty(t, butterflies)
}

func TestUpsertRatingValidReferences(t *testing.T) {
	svc, _ := newService(t, seeded())

	r := service.Rating{UserID: "abcd1234", ButterflyID: "wxyz9876", Rating: 5}
	got, err := svc.UpsertRating(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestUpsertRatingReplaces(t *testing.T) {
	svc, db := newService(t, seeded())
	ctx := context.Background()

	_, err := svc.UpsertRating(ctx, service.Rating{UserID: "abcd1234", ButterflyID: "wxyz9876", Rating: 5})
	require.NoError(t, err)
	got, err := svc.UpsertRating(ctx, service.Rating{UserID: "abcd1234", ButterflyID: "wxyz9876", Rating: 2})
	require.NoError(t, err)
	assert.Equal(t, float64(2), got.Rating)

	ratings, err := svc.GetRatings(ctx, service.RatingQuery{UserID: "abcd1234", ButterflyID: "wxyz9876"}, service.OrderDesc)
	require.NoError(t, err)
	assert.Equal(t, []service.Rating{{UserID: "abcd1234", ButterflyID: "wxyz9876", Rating: 2}}, ratings)
	assert.Equal(t, 1, db.Len("ratings"))
}

func TestUpsertRatingIdempotent(t *testing.T) {
	svc, db := newService(t, seeded())
	ctx := context.Background()
	_, err := svc.InsertUser(ctx, service.User{ID: "u2", Username: "other"})
	require.NoError(t, err)

	r := service.Rating{UserID: "u2", ButterflyID: "wxyz9876", Rating: 3}
	for i := 0; i < 2; i++ {
		got, err := svc.UpsertRating(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}

	ratings, err := svc.GetRatings(ctx, service.RatingQuery{UserID: "u2"}, service.OrderDesc)
	require.NoError(t, err)
	assert.Equal(t, []service.Rating{r}, ratings)
	assert.Equal(t, 2, db.Len("ratings"))
}

func TestUpsertRatingInvalidButterfly(t *testing.T) {
	svc, db := newService(t, seeded())

	_, err := svc.UpsertRating(context.Background(), service.Rating{UserID: "abcd1234", ButterflyID: "1", Rating: 5})
	require.Error(t, err)
	assert.EqualError(t, err, `Invalid field details {"id":"1"}`)
	assert.True(t, errors.Is(err, service.ErrInvalidReference))

	var refErr *service.InvalidReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "butterflies", refErr.Collection)
	assert.Equal(t, 1, db.Len("ratings"))
}

func TestUpsertRatingInvalidUser(t *testing.T) {
	svc, db := newService(t, seeded())

	_, err := svc.UpsertRating(context.Background(), service.Rating{UserID: "missing", ButterflyID: "wxyz9876", Rating: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `{"id":"missing"}`)

	var refErr *service.InvalidReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "users", refErr.Collection)
	assert.Equal(t, 1, db.Len("ratings"))
}

func TestUpsertRatingChecksButterflyFirst(t *testing.T) {
	svc, _ := newService(t, seeded())

	_, err := svc.UpsertRating(context.Background(), service.Rating{UserID: "abcd1235", ButterflyID: "wx9z9876", Rating: 5})
	assert.EqualError(t, err, `Invalid field details {"id":"wx9z9876"}`)
}

func TestUpsertRatingCancelledContext(t *testing.T) {
	svc, db := newService(t, seeded())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.UpsertRating(ctx, service.Rating{UserID: "abcd1234", ButterflyID: "wxyz9876", Rating: 1})
	assert.ErrorIs(t, err, context.Canceled)
	got := db.Query("ratings", store.Fields{})
	assert.Equal(t, float64(5), got[0]["rating"])
}

func TestUpsertRatingRejectsNonJSONScore(t *testing.T) {
	svc, db := newService(t, seeded())
	ctx := context.Background()
	_, err := svc.InsertUser(ctx, service.User{ID: "u2", Username: "other"})
	require.NoError(t, err)

	_, err = svc.UpsertRating(ctx, service.Rating{UserID: "abcd1234", ButterflyID: "wxyz9876", Rating: math.NaN()})
	require.Error(t, err)
	got := db.Query("ratings", store.Fields{})
	require.Len(t, got, 1)
	assert.Equal(t, float64(5), got[0]["rating"])

	_, err = svc.UpsertRating(ctx, service.Rating{UserID: "u2", ButterflyID: "wxyz9876", Rating: math.Inf(1)})
	require.Error(t, err)
	assert.Equal(t, 1, db.Len("ratings"))
	assert.Empty(t, db.Query("ratings", store.Fields{"userId": "u2"}))
}

func TestUpsertRatingConcurrentSamePair(t *testing.T) {
	svc, db := newService(t, seeded())
	ctx := context.Background()
	_, err := svc.InsertUser(ctx, service.User{ID: "u2", Username: "other"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(score int) {
			defer wg.Done()
			_, err := svc.UpsertRating(ctx, service.Rating{UserID: "u2", ButterflyID: "wxyz9876", Rating: float64(score % 6)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 2, db.Len("ratings"))
	ratings, err := svc.GetRatings(ctx, service.RatingQuery{UserID: "u2", ButterflyID: "wxyz9876"}, service.OrderDesc)
	require.NoError(t, err)
	assert.Len(t, ratings, 1)
}

func TestGetRatingsSorted(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	_, err := svc.InsertUser(ctx, service.User{ID: "u", Username: "u"})
	require.NoError(t, err)
	for _, id := range []string{"b1", "b2", "b3"} {
		_, err := svc.InsertButterfly(ctx, service.Butterfly{ID: id})
		require.NoError(t, err)
	}
	for _, r := range []service.Rating{
		{UserID: "u", ButterflyID: "b3", Rating: 1},
		{UserID: "u", ButterflyID: "b1", Rating: 5},
		{UserID: "u", ButterflyID: "b2", Rating: 4},
	} {
		_, err := svc.UpsertRating(ctx, r)
		require.NoError(t, err)
	}

	scores := func(rs []service.Rating) []float64 {
		out := make([]float64, 0, len(rs))
		for _, r := range rs {
			out = append(out, r.Rating)
		}
		return out
	}

	tests := []struct {
		order string
		want  []float64
	}{
		{"", []float64{5, 4, 1}},
		{"desc", []float64{5, 4, 1}},
		{"ascending", []float64{5, 4, 1}},
		{"ASC", []float64{5, 4, 1}},
		{"asc", []float64{1, 4, 5}},
	}
	for _, tc := range tests {
		t.Run("order="+tc.order, func(t *testing.T) {
			got, err := svc.GetRatings(ctx, service.RatingQuery{UserID: "u"}, service.ParseOrder(tc.order))
			require.NoError(t, err)
			assert.Equal(t, tc.want, scores(got))
		})
	}
}

func TestGetRatingsStableTies(t *testing.T) {
	svc, _ := newService(t, store.Document{
		"ratings": {
			{"userId": "u", "butterflyId": "first", "rating": float64(4)},
			{"userId": "u", "butterflyId": "second", "rating": float64(4)},
			{"userId": "u", "butterflyId": "top", "rating": float64(5)},
		},
	})

	got, err := svc.GetRatings(context.Background(), service.RatingQuery{UserID: "u"}, service.OrderDesc)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "top", got[0].ButterflyID)
	assert.Equal(t, "first", got[1].ButterflyID)
	assert.Equal(t, "second", got[2].ButterflyID)
}

func TestGetRatingsEmpty(t *testing.T) {
	svc, _ := newService(t, seeded())

	got, err := svc.GetRatings(context.Background(), service.RatingQuery{UserID: "no-such-user"}, service.OrderDesc)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestEndToEnd(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	_, err := svc.InsertButterfly(ctx, service.Butterfly{ID: "bf1", CommonName: "B"})
	require.NoError(t, err)
	_, err = svc.InsertUser(ctx, service.User{ID: "u1", Username: "U"})
	require.NoError(t, err)

	r := service.Rating{UserID: "u1", ButterflyID: "bf1", Rating: 5}
	got, err := svc.UpsertRating(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = svc.UpsertRating(ctx, service.Rating{UserID: "missing", ButterflyID: "bf1", Rating: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `{"id":"missing"}`)
}

func TestParseOrder(t *testing.T) {
	assert.Equal(t, service.OrderAsc, service.ParseOrder("asc"))
	assert.Equal(t, service.OrderDesc, service.ParseOrder("desc"))
	assert.Equal(t, service.OrderDesc, service.ParseOrder(""))
	assert.Equal(t, service.OrderDesc, service.ParseOrder("Asc"))
}
