package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/plaques/internal/plaque"
	"github.com/onnwee/plaques/internal/validate"
	"github.com/onnwee/plaques/internal/viewmodel"
	"github.com/onnwee/plaques/internal/visit"
)

// StateReporter reports the mutation state of a plaque.
type StateReporter interface {
	State(plaqueID int) visit.State
}

// PlaqueResponse is a single enriched plaque with its current mutation state.
type PlaqueResponse struct {
	plaque.Enriched
	State visit.State `json:"state"`
}

// ListPlaquesResponse is the body of GET /plaques.
type ListPlaquesResponse struct {
	Plaques     []plaque.Enriched `json:"plaques"`
	Summary     plaque.Summary    `json:"summary"`
	Degraded    bool              `json:"degraded"`
	RefreshedAt *time.Time        `json:"refreshed_at,omitempty"`
}

// PlaqueHandlers serves the read side of the catalog.
type PlaqueHandlers struct {
	views  *viewmodel.Store
	states StateReporter
}

// NewPlaqueHandlers creates plaque handlers. states may be nil, in which
// case every plaque is reported idle.
func NewPlaqueHandlers(views *viewmodel.Store, states StateReporter) *PlaqueHandlers {
	return &PlaqueHandlers{views: views, states: states}
}

// List handles GET /plaques?status=&location=&q=.
func (h *PlaqueHandlers) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	status, err := plaque.ParseStatus(query.Get("status"))
	if err != nil {
		writeErrorCode(w, r, ErrCodeInvalidFilter, "status must be one of all, visited, unvisited")
		return
	}
	location, err := plaque.ParseLocation(query.Get("location"))
	if err != nil {
		writeErrorCode(w, r, ErrCodeInvalidFilter, "location must be one of all, city_centre")
		return
	}

	search, err := validate.SearchTerm(query.Get("q"))
	if err != nil {
		writeErrorCode(w, r, ErrCodeInvalidFilter, "q must be printable text of at most 100 characters")
		return
	}

	view := h.views.View(plaque.Filter{
		Status:   status,
		Location: location,
		Search:   search,
	})

	response := ListPlaquesResponse{
		Plaques:  view.Plaques,
		Summary:  view.Summary,
		Degraded: h.views.Degraded(),
	}
	if at := h.views.RefreshedAt(); !at.IsZero() {
		response.RefreshedAt = &at
	}
	writeJSON(w, r, http.StatusOK, response)
}

// Get handles GET /plaques/{id}.
func (h *PlaqueHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, err := plaqueID(r)
	if err != nil {
		writeErrorCode(w, r, ErrCodeValidation, "Plaque id must be a positive integer")
		return
	}

	p, ok := h.views.Get(id)
	if !ok {
		writeErrorCode(w, r, ErrCodeUnknownPlaque, "Plaque not found")
		return
	}
	writeJSON(w, r, http.StatusOK, h.response(p))
}

func (h *PlaqueHandlers) response(p plaque.Enriched) PlaqueResponse {
	state := visit.StateIdle
	if h.states != nil {
		state = h.states.State(p.ID)
	}
	return PlaqueResponse{Enriched: p, State: state}
}

var errInvalidPlaqueID = errors.New("invalid plaque id")

// plaqueID reads the {id} path value.
func plaqueID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, errInvalidPlaqueID
	}
	return id, nil
}
