package service

import "github.com/stevemurr/butterfly-api/store"

// Collection names inside the document.
const (
	ButterfliesCollection = "butterflies"
	UsersCollection       = "users"
	RatingsCollection     = "ratings"
)

// Butterfly is a catalogued butterfly species.
type Butterfly struct {
	ID         string `json:"id"`
	CommonName string `json:"commonName"`
	Species    string `json:"species"`
	Article    string `json:"article"`
}

// User is someone who can rate butterflies.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Rating is a user's score for a butterfly. The pair (UserID,
// ButterflyID) identifies it; there is no separate id.
type Rating struct {
	UserID      string  `json:"userId"`
	ButterflyID string  `json:"butterflyId"`
	Rating      float64 `json:"rating"`
}

// ButterflyQuery selects butterflies. Empty fields are not constrained.
type ButterflyQuery struct {
	ID string
}

func (q ButterflyQuery) fields() store.Fields {
	f := store.Fields{}
	if q.ID != "" {
		f["id"] = q.ID
	}
	return f
}

// UserQuery selects users. Empty fields are not constrained.
type UserQuery struct {
	ID       string
	Username string
}

func (q UserQuery) fields() store.Fields {
	f := store.Fields{}
	if q.ID != "" {
		f["id"] = q.ID
	}
	if q.Username != "" {
		f["username"] = q.Username
	}
	return f
}

// RatingQuery selects ratings. Empty fields are not constrained.
type RatingQuery struct {
	UserID      string
	ButterflyID string
}

func (q RatingQuery) fields() store.Fields {
	f := store.Fields{}
	if q.UserID != "" {
		f["userId"] = q.UserID
	}
	if q.ButterflyID != "" {
		f["butterflyId"] = q.ButterflyID
	}
	return f
}

// key is the natural key of a rating.
func (r Rating) key() store.Fields {
	return store.Fields{"userId": r.UserID, "butterflyId": r.ButterflyID}
}

// patch lists the fields an upsert may write. Nothing else on the
// stored record is touched.
func (r Rating) patch() store.Record {
	return store.Record{
		"userId":      r.UserID,
		"butterflyId": r.ButterflyID,
		"rating":      r.Rating,
	}
}

// Order is the sort direction for rating listings.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ParseOrder maps the literal "asc" to OrderAsc; anything else,
// including the empty string, is OrderDesc.
func ParseOrder(s string) Order {
	if s == string(OrderAsc) {
		return OrderAsc
	}
	return OrderDesc
}
