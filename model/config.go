// config.go - Hyperparameter des simulierten Modells
//
// Enthaelt:
// - Hyperparameters: Form des Modells (Breite, Tiefe, Heads)
// - Validate: Prueft Invariante und unterstuetzte Bereiche
// - Resolve: Gleicht die seqLen der Anfrage mit den Hyperparametern ab
package model

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrInvalidHyperparameters wird vor jeder Berechnung zurueckgegeben
var ErrInvalidHyperparameters = errors.New("invalid hyperparameters")

// Unterstuetzte Bereiche
const (
	MaxHeads    = 16
	MaxHeadDim  = 64
	MaxModelDim = 512
	MaxLayers   = 12
	MinSeqLen   = 2
	MaxSeqLen   = 128
	MaxFFNMult  = 8
)

// DefaultSeed ist der Seed der Oberflaeche beim Start
const DefaultSeed = 1337

// Hyperparameters beschreibt die Form des Modells. d_model == n_head * d_head.
type Hyperparameters struct {
	DModel  int `json:"d_model"`
	NHead   int `json:"n_head"`
	DHead   int `json:"d_head"`
	NLayer  int `json:"n_layer"`
	SeqLen  int `json:"seqLen"`
	FFNMult int `json:"ffn_mult"`
}

// DefaultHyperparameters entspricht der Startkonfiguration der Oberflaeche
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		DModel:  64,
		NHead:   4,
		DHead:   16,
		NLayer:  2,
		SeqLen:  32,
		FFNMult: 4,
	}
}

// FFNDim ist die Breite der versteckten Feed-Forward-Schicht
func (hp Hyperparameters) FFNDim() int {
	return hp.DModel * hp.FFNMult
}

func (hp Hyperparameters) String() string {
	return fmt.Sprintf("d%d/h%dx%d/l%d/s%d/f%d", hp.DModel, hp.NHead, hp.DHead, hp.NLayer, hp.SeqLen, hp.FFNMult)
}

// LogValue implementiert slog.LogValuer
func (hp Hyperparameters) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("d_model", hp.DModel),
		slog.Int("n_head", hp.NHead),
		slog.Int("d_head", hp.DHead),
		slog.Int("n_layer", hp.NLayer),
		slog.Int("seq_len", hp.SeqLen),
		slog.Int("ffn_mult", hp.FFNMult),
	)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidHyperparameters, fmt.Sprintf(format, args...))
}

func checkRange(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return invalid("%s = %d, supported range %d..%d", name, v, lo, hi)
	}
	return nil
}

// Validate prueft die Dimensions-Invariante und die unterstuetzten Bereiche
func (hp Hyperparameters) Validate() error {
	if hp.DModel != hp.NHead*hp.DHead {
		return invalid("d_model = %d but n_head * d_head = %d * %d = %d", hp.DModel, hp.NHead, hp.DHead, hp.NHead*hp.DHead)
	}

	for _, c := range []struct {
		name      string
		v, lo, hi int
	}{
		{"n_head", hp.NHead, 1, MaxHeads},
		{"d_head", hp.DHead, 1, MaxHeadDim},
		{"d_model", hp.DModel, 1, MaxModelDim},
		{"n_layer", hp.NLayer, 1, MaxLayers},
		{"seqLen", hp.SeqLen, MinSeqLen, MaxSeqLen},
		{"ffn_mult", hp.FFNMult, 1, MaxFFNMult},
	} {
		if err := checkRange(c.name, c.v, c.lo, c.hi); err != nil {
			return err
		}
	}

	return nil
}

// Resolve gleicht seqLen der Anfrage mit hp.SeqLen ab.
// Ein Nullwert uebernimmt den anderen, zwei verschiedene Werte sind ungueltig.
func (hp Hyperparameters) Resolve(seqLen int) (Hyperparameters, error) {
	switch {
	case seqLen == 0:
	case hp.SeqLen == 0:
		hp.SeqLen = seqLen
	case hp.SeqLen != seqLen:
		return hp, invalid("seqLen = %d but hyperparameters.seqLen = %d", seqLen, hp.SeqLen)
	}

	return hp, hp.Validate()
}
