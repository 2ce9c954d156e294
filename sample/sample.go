// Package sample - Temperatur, Top-K und Ziehung ueber Logits
//
// Enthaelt:
// - Distribution: softmax(logits / T), absteigend sortiert, auf K gekuerzt
// - Draw: waehlt einen Kandidaten mit einem gleichverteilten Wert u
//
// Nach dem Kuerzen wird standardmaessig nicht renormiert; die Wahrscheinlichkeiten
// der behaltenen Kandidaten summieren dann zu hoechstens 1.
package sample

import (
	"errors"
	"fmt"
	"math"

	"github.com/emirpasic/gods/v2/trees/binaryheap"

	"github.com/neivs/llmsandbox/ml"
)

var (
	ErrInvalidTemperature = errors.New("temperature must be greater than 0")
	ErrInvalidTopK        = errors.New("invalid top-k")
	ErrEmpty              = errors.New("no candidates")
)

// Candidate ist ein Token mit seiner Wahrscheinlichkeit
type Candidate struct {
	ID          int     `json:"id"`
	Probability float64 `json:"probability"`
}

// byProbability ordnet hoehere Wahrscheinlichkeit zuerst, bei Gleichstand die kleinere ID
func byProbability(a, b Candidate) int {
	switch {
	case a.Probability > b.Probability:
		return -1
	case a.Probability < b.Probability:
		return 1
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}

// Options steuern Distribution
type Options struct {
	Temperature float64
	TopK        int

	// Renormalize normiert die behaltenen Kandidaten auf Summe 1
	Renormalize bool
}

// Distribution teilt logits durch die Temperatur, wendet Softmax an und
// gibt die TopK wahrscheinlichsten Token absteigend zurueck.
func Distribution(logits []float64, opts Options) ([]Candidate, error) {
	if !(opts.Temperature > 0) || math.IsInf(opts.Temperature, 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemperature, opts.Temperature)
	}

	if opts.TopK < 1 || opts.TopK > len(logits) {
		return nil, fmt.Errorf("%w: %d, must be in 1..%d", ErrInvalidTopK, opts.TopK, len(logits))
	}

	scaled := make([]float64, len(logits))
	for i, l := range logits {
		scaled[i] = l / opts.Temperature
	}

	probs, err := ml.Softmax(scaled)
	if err != nil {
		return nil, err
	}

	h := binaryheap.NewWith(byProbability)
	for id, p := range probs {
		h.Push(Candidate{ID: id, Probability: p})
	}

	out := make([]Candidate, 0, opts.TopK)
	for range opts.TopK {
		c, _ := h.Pop()
		out = append(out, c)
	}

	if opts.Renormalize {
		out = Renormalize(out)
	}

	return out, nil
}

// Renormalize gibt eine Kopie zurueck, deren Wahrscheinlichkeiten zu 1 summieren
func Renormalize(cands []Candidate) []Candidate {
	var total float64
	for _, c := range cands {
		total += c.Probability
	}

	out := make([]Candidate, len(cands))
	copy(out, cands)
	if total <= 0 {
		return out
	}

	for i := range out {
		out[i].Probability /= total
	}
	return out
}

// Draw waehlt einen Kandidaten aus der renormierten Verteilung; u liegt in [0, 1)
func Draw(cands []Candidate, u float64) (Candidate, error) {
	if len(cands) == 0 {
		return Candidate{}, ErrEmpty
	}

	var acc float64
	for _, c := range Renormalize(cands) {
		acc += c.Probability
		if u < acc {
			return c, nil
		}
	}

	// Rundungsfehler: u liegt knapp ueber der Summe
	return cands[len(cands)-1], nil
}
