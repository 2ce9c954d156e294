// weights.go - Deterministische Gewichts-Initialisierung
//
// Die Reihenfolge, in der der Zufallsstrom verbraucht wird, ist Teil des
// Formats. Jede Aenderung veraendert alle reproduzierten Laeufe:
//
//	Embedding [|V| x d_model], Positionen [seqLen x d_model], dann pro Layer
//	Wq, Wk, Wv, Wo, W1, W2, gain1, gain2, bias1, bias2
package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/neivs/llmsandbox/tokenizer"
)

// Layer haelt die Parameter eines Transformer-Blocks.
// Head h besitzt die Spalten h*d_head bis (h+1)*d_head von Wq, Wk und Wv.
type Layer struct {
	Wq, Wk, Wv, Wo *mat.Dense // [d_model x d_model]
	W1             *mat.Dense // [d_model x d_model*ffn_mult]
	W2             *mat.Dense // [d_model*ffn_mult x d_model]

	Gain1, Gain2 []float64
	Bias1, Bias2 []float64
}

// WeightSet ist nach der Konstruktion unveraenderlich
type WeightSet struct {
	Seed            int64
	Hyperparameters Hyperparameters

	Embedding  *mat.Dense // [|V| x d_model]
	Positional *mat.Dense // [seqLen x d_model]
	Layers     []Layer
}

// InitWeights erzeugt das Gewichts-Set fuer (seed, hp)
func InitWeights(seed int64, hp Hyperparameters) (*WeightSet, error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}

	s := NewStream(seed)
	dense := func(r, c int) *mat.Dense {
		return mat.NewDense(r, c, s.fill(r*c, s.Weight))
	}
	gain := func() float64 { return 1 + s.Weight() }

	d := hp.DModel
	ws := &WeightSet{
		Seed:            seed,
		Hyperparameters: hp,
		Embedding:       dense(tokenizer.VocabSize, d),
		Positional:      dense(hp.SeqLen, d),
		Layers:          make([]Layer, hp.NLayer),
	}

	for i := range ws.Layers {
		l := &ws.Layers[i]
		l.Wq = dense(d, d)
		l.Wk = dense(d, d)
		l.Wv = dense(d, d)
		l.Wo = dense(d, d)
		l.W1 = dense(d, hp.FFNDim())
		l.W2 = dense(hp.FFNDim(), d)
		l.Gain1 = s.fill(d, gain)
		l.Gain2 = s.fill(d, gain)
		l.Bias1 = s.fill(d, s.Weight)
		l.Bias2 = s.fill(d, s.Weight)
	}

	return ws, nil
}

// headSlice gibt die Spalten von Head h als Sicht (ohne Kopie) zurueck
func headSlice(w *mat.Dense, h, dHead int) mat.Matrix {
	r, _ := w.Dims()
	return w.Slice(0, r, h*dHead, (h+1)*dHead)
}

// NumParameters zaehlt alle Gewichte des Sets
func (ws *WeightSet) NumParameters() int {
	count := func(m *mat.Dense) int {
		r, c := m.Dims()
		return r * c
	}

	n := count(ws.Embedding) + count(ws.Positional)
	for _, l := range ws.Layers {
		n += count(l.Wq) + count(l.Wk) + count(l.Wv) + count(l.Wo) + count(l.W1) + count(l.W2)
		n += len(l.Gain1) + len(l.Gain2) + len(l.Bias1) + len(l.Bias2)
	}
	return n
}

func (ws *WeightSet) String() string {
	return fmt.Sprintf("weights(seed=%d, %v, %d params)", ws.Seed, ws.Hyperparameters, ws.NumParameters())
}
