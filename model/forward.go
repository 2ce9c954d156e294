// forward.go - Forward-Pass durch n_layer Transformer-Bloecke
//
// Ablauf pro Anfrage:
//  1. X = E[token] + P[position] (optional <mask> an maskIndex)
//  2. pro Layer: Multi-Head-Attention, Wo, Residual, LayerNorm,
//     dann GELU-FFN, Residual, LayerNorm
//  3. Logits der letzten Nicht-<pad>-Position ueber E^T
//
// Alle Attention-Matrizen werden aufgezeichnet. Zwischenergebnisse werden
// nie herausgegeben, ein Fehler liefert keine Teil-Artefakte.
package model

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/neivs/llmsandbox/ml"
	"github.com/neivs/llmsandbox/tokenizer"
)

// Options steuern einen Forward-Pass
type Options struct {
	// MaskIndex ersetzt das Token an dieser Position durch <mask>
	MaskIndex *int

	// Causal maskiert Keys hinter der Query-Position (autoregressiver Modus)
	Causal bool
}

// Forward fuehrt den Pass fuer tokens aus. ctx wird zwischen Heads und Layern geprueft.
func Forward(ctx context.Context, tokens []int, hp Hyperparameters, ws *WeightSet, opts Options) (*Artifacts, error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}

	if ws == nil || ws.Hyperparameters != hp {
		return nil, fmt.Errorf("%w: weights were built for other hyperparameters", ml.ErrDimensionMismatch)
	}

	if len(tokens) != hp.SeqLen {
		return nil, fmt.Errorf("%w: %d tokens for seqLen %d", ml.ErrDimensionMismatch, len(tokens), hp.SeqLen)
	}

	ids := make([]int, len(tokens))
	copy(ids, tokens)
	for i, id := range ids {
		if id < 0 || id >= tokenizer.VocabSize {
			return nil, fmt.Errorf("position %d: %w: %d", i, tokenizer.ErrUnknownToken, id)
		}
	}

	if opts.MaskIndex != nil {
		m := *opts.MaskIndex
		if m < 0 || m >= hp.SeqLen {
			return nil, invalid("maskIndex = %d outside [0, %d)", m, hp.SeqLen)
		}
		ids[m] = tokenizer.MaskID
	}

	x, err := embed(ids, ws)
	if err != nil {
		return nil, err
	}

	embeddings := ml.ToRows(x)
	attention := make([][][][]float64, hp.NLayer)
	for l := range ws.Layers {
		x, attention[l], err = block(ctx, x, &ws.Layers[l], hp, opts.Causal)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", l, err)
		}
	}

	pos := tokenizer.LastContent(ids)
	if pos < 0 {
		return nil, fmt.Errorf("%w: sequence has no content position", ml.ErrDimensionMismatch)
	}

	logits := mat.NewVecDense(tokenizer.VocabSize, nil)
	logits.MulVec(ws.Embedding, x.RowView(pos))
	if err := ml.CheckFinite("logits", logits); err != nil {
		return nil, err
	}

	return &Artifacts{
		Tokens:          ids,
		Embeddings:      embeddings,
		AttnByLayerHead: attention,
		LastLogits:      mat.Col(nil, 0, logits),
		Hyperparameters: hp,
	}, nil
}

// embed bildet X[i] = E[ids[i]] + P[i]
func embed(ids []int, ws *WeightSet) (*mat.Dense, error) {
	_, d := ws.Embedding.Dims()
	x := mat.NewDense(len(ids), d, nil)
	for i, id := range ids {
		row := x.RawRowView(i)
		copy(row, ws.Embedding.RawRowView(id))
		for j, p := range ws.Positional.RawRowView(i) {
			row[j] += p
		}
	}

	return x, ml.CheckFinite("embeddings", x)
}

// block fuehrt einen Transformer-Block aus (Post-Norm)
func block(ctx context.Context, x *mat.Dense, layer *Layer, hp Hyperparameters, causal bool) (*mat.Dense, [][][]float64, error) {
	concat := mat.NewDense(hp.SeqLen, hp.DModel, nil)
	heads := make([][][]float64, hp.NHead)

	for h := range hp.NHead {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		a, o, err := attend(x, layer, h, hp.DHead, causal)
		if err != nil {
			return nil, nil, fmt.Errorf("head %d: %w", h, err)
		}

		heads[h] = ml.ToRows(a)
		concat.Slice(0, hp.SeqLen, h*hp.DHead, (h+1)*hp.DHead).(*mat.Dense).Copy(o)
	}

	proj, err := ml.MatMul(concat, layer.Wo)
	if err != nil {
		return nil, nil, err
	}

	x, err = residualNorm(x, proj, layer.Gain1, layer.Bias1)
	if err != nil {
		return nil, nil, err
	}

	hidden, err := ml.MatMul(x, layer.W1)
	if err != nil {
		return nil, nil, err
	}

	ffn, err := ml.MatMul(ml.ApplyGELU(hidden), layer.W2)
	if err != nil {
		return nil, nil, err
	}

	x, err = residualNorm(x, ffn, layer.Gain2, layer.Bias2)
	if err != nil {
		return nil, nil, err
	}

	return x, heads, nil
}

// attend berechnet A = softmax(Q·K^T / sqrt(d_head)) und O = A·V fuer Head h
func attend(x *mat.Dense, layer *Layer, h, dHead int, causal bool) (a, o *mat.Dense, err error) {
	q, err := ml.MatMul(x, headSlice(layer.Wq, h, dHead))
	if err != nil {
		return nil, nil, err
	}

	k, err := ml.MatMul(x, headSlice(layer.Wk, h, dHead))
	if err != nil {
		return nil, nil, err
	}

	v, err := ml.MatMul(x, headSlice(layer.Wv, h, dHead))
	if err != nil {
		return nil, nil, err
	}

	scores, err := ml.MatMulT(q, k)
	if err != nil {
		return nil, nil, err
	}
	scores.Scale(1/math.Sqrt(float64(dHead)), scores)

	if causal {
		if err := ml.CausalMask(scores); err != nil {
			return nil, nil, err
		}
	}

	a, err = ml.SoftmaxRows(scores)
	if err != nil {
		return nil, nil, err
	}

	o, err = ml.MatMul(a, v)
	if err != nil {
		return nil, nil, err
	}

	return a, o, nil
}

func residualNorm(x, delta *mat.Dense, gain, bias []float64) (*mat.Dense, error) {
	sum, err := ml.Add(x, delta)
	if err != nil {
		return nil, err
	}

	out, err := ml.LayerNorm(sum, gain, bias, ml.LayerNormEpsilon)
	if err != nil {
		return nil, err
	}

	return out, ml.CheckFinite("hidden", out)
}
