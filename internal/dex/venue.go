// internal/dex/venue.go
package dex

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NoVenue is reported when no venue has liquidity.
const NoVenue = "none"

// Venue is a constant-product exchange exposing a Uniswap V2 compatible
// factory and router.
type Venue struct {
	ID      string
	Name    string
	Factory common.Address
	Router  common.Address
}

// Registry holds venues in probe order. The order matters: the first venue
// with liquidity wins.
type Registry struct {
	venues []Venue
	byID   map[string]int
}

// NewRegistry validates and indexes the ordered venue list.
func NewRegistry(venues []Venue) (*Registry, error) {
	if len(venues) == 0 {
		return nil, errors.New("at least one venue is required")
	}
	r := &Registry{
		venues: make([]Venue, 0, len(venues)),
		byID:   make(map[string]int, len(venues)),
	}
	for _, v := range venues {
		id := strings.ToLower(strings.TrimSpace(v.ID))
		if id == "" || id == NoVenue {
			return nil, fmt.Errorf("invalid venue id %q", v.ID)
		}
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("duplicate venue id %q", v.ID)
		}
		if v.Factory == (common.Address{}) || v.Router == (common.Address{}) {
			return nil, fmt.Errorf("venue %q: factory and router are required", v.ID)
		}
		v.ID = id
		if v.Name == "" {
			v.Name = id
		}
		r.byID[id] = len(r.venues)
		r.venues = append(r.venues, v)
	}
	return r, nil
}

// Venues returns the venues in probe order.
func (r *Registry) Venues() []Venue {
	out := make([]Venue, len(r.venues))
	copy(out, r.venues)
	return out
}

// Get looks a venue up by id, case-insensitively.
func (r *Registry) Get(id string) (Venue, bool) {
	i, ok := r.byID[strings.ToLower(id)]
	if !ok {
		return Venue{}, false
	}
	return r.venues[i], true
}

// Reference is the venue used for price reads when none is specified.
func (r *Registry) Reference() Venue {
	return r.venues[0]
}
