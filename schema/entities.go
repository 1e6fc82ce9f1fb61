package schema

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Shape schemas for the three request bodies. Ids are assigned by the
// server for butterflies and users, so they are not accepted here.
var (
	ButterflySchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"commonName": map[string]any{"type": "string"},
			"species":    map[string]any{"type": "string"},
			"article":    map[string]any{"type": "string"},
		},
		"required":             []any{"commonName", "species", "article"},
		"additionalProperties": false,
	}

	UserSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"username": map[string]any{"type": "string"},
		},
		"required":             []any{"username"},
		"additionalProperties": false,
	}

	RatingSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"userId":      map[string]any{"type": "string"},
			"butterflyId": map[string]any{"type": "string"},
			"rating":      map[string]any{"type": "number"},
		},
		"required":             []any{"userId", "butterflyId", "rating"},
		"additionalProperties": false,
	}
)

// Value checks that only make sense once the shape is right.
type butterflyBody struct {
	Article string `json:"article" validate:"url"`
}

type ratingBody struct {
	Rating float64 `json:"rating" validate:"gte=0,lte=5"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func tagValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidateButterfly checks a butterfly request body.
func ValidateButterfly(doc map[string]any) error {
	return validateEntity(ButterflySchema, doc, &butterflyBody{})
}

// ValidateUser checks a user request body.
func ValidateUser(doc map[string]any) error {
	return validateEntity(UserSchema, doc, nil)
}

// ValidateRating checks a rating request body. rating must be a number
// in [0, 5].
func ValidateRating(doc map[string]any) error {
	return validateEntity(RatingSchema, doc, &ratingBody{})
}

func validateEntity(schema map[string]any, doc map[string]any, body any) error {
	if doc == nil {
		return &ValidationError{Problems: []string{"body is required."}}
	}
	if err := Validate(schema, doc); err != nil {
		return err
	}
	if body == nil {
		return nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, body); err != nil {
		return err
	}
	err = tagValidator().Struct(body)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		verr.Problems = append(verr.Problems, describe(fe))
	}
	return verr
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte", "lte":
		return fe.Field() + " must be a number between 0 & 5 (inclusive)."
	case "url":
		return fe.Field() + " must be a valid URL."
	}
	return fe.Field() + " is invalid (" + fe.Tag() + ")."
}
