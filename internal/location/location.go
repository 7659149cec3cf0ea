package location

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"ticket-validation-api/internal/compact"
	"ticket-validation-api/internal/models"
	"ticket-validation-api/internal/records"
)

// ErrUnknownLocation is returned for an id outside the repository.
var ErrUnknownLocation = errors.New("unknown location")

// Repository holds the validation points a terminal may be installed at.
type Repository struct {
	byID map[int]models.Location
}

var defaultLocations = []models.Location{
	{ID: 0, Name: "Bruxelles"},
	{ID: 1, Name: "Konstanz"},
	{ID: 2, Name: "Lisboa"},
	{ID: 3, Name: "Milan"},
	{ID: 4, Name: "Munich"},
	{ID: 5, Name: "Paris"},
	{ID: 6, Name: "Riga"},
	{ID: 7, Name: "Roma"},
	{ID: 8, Name: "Strasbourg"},
	{ID: 9, Name: "Torino"},
	{ID: 10, Name: "Venice"},
	{ID: 11, Name: "Barcelona"},
}

// NewRepository returns a repository over locs, or the built-in network
// when locs is empty.
func NewRepository(locs ...models.Location) *Repository {
	if len(locs) == 0 {
		locs = defaultLocations
	}
	r := &Repository{byID: make(map[int]models.Location, len(locs))}
	for _, l := range locs {
		r.byID[l.ID] = l
	}
	return r
}

// List returns all locations ordered by id.
func (r *Repository) List() []models.Location {
	out := make([]models.Location, 0, len(r.byID))
	for _, l := range r.byID {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the location with the given id.
func (r *Repository) Get(id int) (models.Location, error) {
	l, ok := r.byID[id]
	if !ok {
		return models.Location{}, fmt.Errorf("%w: %d", ErrUnknownLocation, id)
	}
	return l, nil
}

// ValidationData describes a written event for display. Unknown location
// ids are shown by number.
func (r *Repository) ValidationData(ev records.Event, loc *time.Location) *models.ValidationData {
	data := &models.ValidationData{
		LocationID:   int(ev.Location),
		ContractUsed: int(ev.ContractUsed),
	}
	if l, err := r.Get(int(ev.Location)); err == nil {
		data.Location = l.Name
	} else {
		data.Location = fmt.Sprintf("Location %d", ev.Location)
	}
	if ts, ok := compact.Timestamp(ev.DateStamp, ev.TimeStamp, loc); ok {
		data.DateTime = ts
	}
	return data
}
