// artifacts.go - Ergebnis eines Forward-Passes und abgeleitete Sichten
//
// Enthaelt:
// - Artifacts: Token, Eingabe-Embeddings, Attention pro Layer/Head, Logits
// - View: Attention-Matrix eines Layers/Heads
// - AttentionStats: Entropie, Maximum, Mittelwert, Sparsity
// - EstimateFLOPs: Rechenaufwand der Konfiguration
package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Artifacts sind nach der Erzeugung unveraenderlich.
// Embeddings sind die Eingabe-Vektoren (nach Positionen), nicht der letzte Hidden State.
type Artifacts struct {
	Tokens          []int
	Embeddings      [][]float64
	AttnByLayerHead [][][][]float64 // [layer][head][query][key]
	LastLogits      []float64
	Hyperparameters Hyperparameters
}

// View gibt die Attention-Matrix von (layer, head) zurueck, ohne neu zu rechnen
func (a *Artifacts) View(layer, head int) ([][]float64, error) {
	if layer < 0 || layer >= len(a.AttnByLayerHead) {
		return nil, invalid("layerView = %d outside [0, %d)", layer, len(a.AttnByLayerHead))
	}

	heads := a.AttnByLayerHead[layer]
	if head < 0 || head >= len(heads) {
		return nil, invalid("headView = %d outside [0, %d)", head, len(heads))
	}

	return heads[head], nil
}

// Stats fasst eine Attention-Matrix zusammen
type Stats struct {
	Entropy  float64 `json:"entropy"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	Sparsity float64 `json:"sparsity"`
}

// SparseThreshold: Gewichte darunter zaehlen als "aus"
const SparseThreshold = 0.01

// AttentionStats berechnet die Kennzahlen ueber die gesamte Matrix.
// Die Entropie (Bits) wird ueber die auf Summe 1 normierte, flache Matrix berechnet.
func AttentionStats(m [][]float64) Stats {
	var flat []float64
	for _, row := range m {
		flat = append(flat, row...)
	}

	if len(flat) == 0 {
		return Stats{}
	}

	var st Stats
	st.Max = floats.Max(flat)
	total := floats.Sum(flat)
	st.Mean = total / float64(len(flat))

	var sparse int
	for _, v := range flat {
		if v < SparseThreshold {
			sparse++
		}
		if total > 0 && v > 0 {
			p := v / total
			st.Entropy -= p * math.Log2(p)
		}
	}
	st.Sparsity = float64(sparse) / float64(len(flat))

	return st
}

// FLOPs schaetzt den Rechenaufwand eines Passes
type FLOPs struct {
	Attention int64 `json:"attention"`
	FFN       int64 `json:"ffn"`
	Total     int64 `json:"total"`
}

// EstimateFLOPs: Attention seqLen^2*d_model*n_head*n_layer, FFN seqLen*d_model^2*ffn_mult*n_layer
func EstimateFLOPs(hp Hyperparameters) FLOPs {
	seq, d := int64(hp.SeqLen), int64(hp.DModel)
	f := FLOPs{
		Attention: seq * seq * d * int64(hp.NHead) * int64(hp.NLayer),
		FFN:       seq * d * d * int64(hp.FFNMult) * int64(hp.NLayer),
	}
	f.Total = f.Attention + f.FFN
	return f
}
