// Package suggest produces weekend activity suggestions.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// ErrUnavailable is returned when no suggestion could be produced.
var ErrUnavailable = errors.New("suggestion unavailable")

// Request describes the day a suggestion is for.
type Request struct {
	Date       time.Time
	OnSupport  bool     // the user may be paged and should stay close to a laptop
	Busy       bool     // the day is already marked busy
	OtherPlans []string // plans already made for the same weekend
}

// Suggester returns a short activity idea for a day.
type Suggester interface {
	Suggest(ctx context.Context, req Request) (string, error)
}

// Prompt builds the instruction sent to a language model.
func Prompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Suggest one activity for %s, %s.", req.Date.Weekday(), req.Date.Format("January 2, 2006"))

	if req.OnSupport {
		b.WriteString(" I am on support duty that day, so it must be something I can do near home and drop at short notice.")
	}
	if req.Busy {
		b.WriteString(" The day is already partly booked, so keep it short.")
	}
	if len(req.OtherPlans) > 0 {
		fmt.Fprintf(&b, " Other plans this weekend: %s. Do not repeat them.", strings.Join(req.OtherPlans, "; "))
	}

	b.WriteString(" Reply with the activity only, in under 12 words, no quotes.")
	return b.String()
}

// Clean trims model output down to a single plan line.
func Clean(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "\"'` ")
	s = strings.TrimPrefix(s, "- ")
	return strings.TrimSpace(s)
}

var (
	supportIdeas = []string{
		"Bake bread at home",
		"Board games with friends at your place",
		"Walk around the neighbourhood park",
		"Cook a new recipe",
		"Movie marathon on the couch",
		"Repot the house plants",
	}
	freeIdeas = []string{
		"Day hike on a nearby trail",
		"Visit a museum you have not seen",
		"Farmers market and a picnic",
		"Bike ride to a new cafe",
		"Day trip to the coast",
		"Try a climbing gym",
		"Explore a neighbouring town",
	}
)

// Static picks from a fixed list of ideas. It never fails and is used when
// no model is configured or the model call errors.
type Static struct {
	pick func(n int) int
}

// NewStatic returns a Static suggester choosing ideas at random.
func NewStatic() *Static {
	return &Static{pick: rand.Intn}
}

// Suggest returns an idea that fits the day and is not already planned.
func (s *Static) Suggest(ctx context.Context, req Request) (string, error) {
	pool := freeIdeas
	if req.OnSupport {
		pool = supportIdeas
	}

	candidates := make([]string, 0, len(pool))
	for _, idea := range pool {
		if !planned(idea, req.OtherPlans) {
			candidates = append(candidates, idea)
		}
	}
	if len(candidates) == 0 {
		candidates = pool
	}

	return candidates[s.pick(len(candidates))], nil
}

func planned(idea string, plans []string) bool {
	for _, p := range plans {
		if strings.EqualFold(strings.TrimSpace(p), idea) {
			return true
		}
	}
	return false
}

// Fallback tries Primary and falls back to Secondary on error.
type Fallback struct {
	Primary   Suggester
	Secondary Suggester
	OnError   func(err error)
}

// Suggest implements Suggester.
func (f *Fallback) Suggest(ctx context.Context, req Request) (string, error) {
	out, err := f.Primary.Suggest(ctx, req)
	if err == nil && out != "" {
		return out, nil
	}
	if err == nil {
		err = ErrUnavailable
	}
	if f.OnError != nil {
		f.OnError(err)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return f.Secondary.Suggest(ctx, req)
}
