// Package handler provides the HTTP handlers for the butterfly API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stevemurr/butterfly-api/schema"
	"github.com/stevemurr/butterfly-api/service"
)

// Options configures a Handler. Zero values are replaced by defaults.
type Options struct {
	// NewID generates ids for new butterflies and users.
	NewID func() string
	// AllowedOrigins is the CORS allow list; "*" allows everything.
	// Nil disables CORS headers.
	AllowedOrigins []string
	Logger         logrus.FieldLogger
}

// Handler holds the server dependencies and registers routes.
type Handler struct {
	svc    *service.Service
	router chi.Router
	newID  func() string
	log    logrus.FieldLogger
}

// New creates a Handler and wires up all routes.
func New(svc *service.Service, opts Options) *Handler {
	h := &Handler{
		svc:    svc,
		router: chi.NewRouter(),
		newID:  opts.NewID,
		log:    opts.Logger,
	}
	if h.newID == nil {
		h.newID = uuid.NewString
	}
	if h.log == nil {
		h.log = logrus.StandardLogger()
	}
	h.router.Use(h.requestLogger)
	if opts.AllowedOrigins != nil {
		h.router.Use(CORS(opts.AllowedOrigins))
	}
	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	// Health / status
	h.router.Get("/", h.root)
	h.router.Get("/health", h.health)
	h.router.Get("/metrics", h.writeMetrics)

	h.router.Route("/butterflies", func(r chi.Router) {
		r.Get("/", h.listButterflies)
		r.Post("/", h.createButterfly)
		r.Get("/{id}", h.getButterfly)
	})

	h.router.Route("/users", func(r chi.Router) {
		r.Get("/", h.listUsers)
		r.Post("/", h.createUser)
		r.Get("/{id}", h.getUser)
	})

	h.router.Get("/ratings/{userId}", h.getRatings)
	h.router.Put("/ratings", h.putRating)
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// readBody decodes a JSON object body. An empty body yields a nil map.
func readBody(r *http.Request) (map[string]any, error) {
	defer r.Body.Close()
	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}

// convert copies a validated body into a typed value.
func convert(doc map[string]any, v any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Error("request failed")
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

// ---------- status endpoints ----------

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Server is running!"})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) writeMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WritePrometheus(w, true)
}

// ---------- butterflies ----------

func (h *Handler) listButterflies(w http.ResponseWriter, r *http.Request) {
	butterflies, err := h.svc.GetButterflies(r.Context(), service.ButterflyQuery{})
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, butterflies)
}

func (h *Handler) getButterfly(w http.ResponseWriter, r *http.Request) {
	butterflies, err := h.svc.GetButterflies(r.Context(), service.ButterflyQuery{ID: chi.URLParam(r, "id")})
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if len(butterflies) == 0 {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, butterflies[0])
}

func (h *Handler) createButterfly(w http.ResponseWriter, r *http.Request) {
	doc, err := readBody(r)
	if err == nil {
		err = schema.ValidateButterfly(doc)
	}
	var b service.Butterfly
	if err == nil {
		err = convert(doc, &b)
	}
	if err != nil {
		h.log.WithError(err).Debug("rejected butterfly body")
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	b.ID = h.newID()
	created, err := h.svc.InsertButterfly(r.Context(), b)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

// ---------- users ----------

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.GetUsers(r.Context(), service.UserQuery{})
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.GetUsers(r.Context(), service.UserQuery{ID: chi.URLParam(r, "id")})
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if len(users) == 0 {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, users[0])
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	doc, err := readBody(r)
	if err == nil {
		err = schema.ValidateUser(doc)
	}
	var u service.User
	if err == nil {
		err = convert(doc, &u)
	}
	if err != nil {
		h.log.WithError(err).Debug("rejected user body")
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u.ID = h.newID()
	created, err := h.svc.InsertUser(r.Context(), u)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

// ---------- ratings ----------

func (h *Handler) getRatings(w http.ResponseWriter, r *http.Request) {
	q := service.RatingQuery{UserID: chi.URLParam(r, "userId")}
	order := service.ParseOrder(r.URL.Query().Get("order"))
	ratings, err := h.svc.GetRatings(r.Context(), q, order)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if len(ratings) == 0 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, ratings)
}

func (h *Handler) putRating(w http.ResponseWriter, r *http.Request) {
	doc, err := readBody(r)
	if err == nil {
		err = schema.ValidateRating(doc)
	}
	var rating service.Rating
	if err == nil {
		err = convert(doc, &rating)
	}
	if err != nil {
		h.log.WithError(err).Debug("rejected rating body")
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.svc.UpsertRating(r.Context(), rating); err != nil {
		if errors.Is(err, service.ErrInvalidReference) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "successfully updated"})
}
