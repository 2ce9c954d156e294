// ops.go - Lineare-Algebra-Primitiven fuer den Forward-Pass
//
// Alle Operationen pruefen die Formen vor der Berechnung und liefern
// ErrDimensionMismatch statt still zu broadcasten. Eingaben werden nie veraendert,
// ausser bei CausalMask, das explizit in-place arbeitet.
package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// LayerNormEpsilon verhindert Division durch Null bei konstanten Zeilen
const LayerNormEpsilon = 1e-5

// MatMul berechnet a·b fuer [m×k]·[k×n]
func MatMul(a, b mat.Matrix) (*mat.Dense, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != br {
		return nil, mismatch("matmul", a, b)
	}

	out := mat.NewDense(ar, bc, nil)
	out.Mul(a, b)
	return out, nil
}

// MatMulT berechnet a·bᵀ fuer [m×k]·[n×k]
func MatMulT(a, b mat.Matrix) (*mat.Dense, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != bc {
		return nil, mismatch("matmul-transposed", a, b)
	}

	out := mat.NewDense(ar, br, nil)
	out.Mul(a, b.T())
	return out, nil
}

// Add addiert zwei Matrizen gleicher Form elementweise (Residualverbindung)
func Add(a, b mat.Matrix) (*mat.Dense, error) {
	if ShapeOf(a) != ShapeOf(b) {
		return nil, mismatch("add", a, b)
	}

	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	out.Add(a, b)
	return out, nil
}

// Scale multipliziert alle Elemente mit f
func Scale(f float64, a mat.Matrix) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	out.Scale(f, a)
	return out
}

// CausalMask setzt alle Eintraege oberhalb der Diagonalen (Key > Query) auf -Inf.
// Nach der Softmax sind diese Gewichte exakt 0.
func CausalMask(scores *mat.Dense) error {
	r, c := scores.Dims()
	if r != c {
		return fmt.Errorf("%w: causal mask needs a square matrix, got %v", ErrDimensionMismatch, ShapeOf(scores))
	}

	for i := range r {
		for j := i + 1; j < c; j++ {
			scores.Set(i, j, math.Inf(-1))
		}
	}
	return nil
}

// Softmax normiert v zu einer Wahrscheinlichkeitsverteilung.
// Das Zeilenmaximum wird vor der Exponentiation abgezogen. -Inf ist erlaubt
// (maskierte Eintraege), NaN, +Inf oder eine komplett maskierte Zeile nicht.
func Softmax(v []float64) ([]float64, error) {
	if len(v) == 0 {
		return []float64{}, nil
	}

	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 1) {
			return nil, fmt.Errorf("%w: softmax input[%d] = %v", ErrNumericalInstability, i, x)
		}
	}

	maxVal := floats.Max(v)
	if math.IsInf(maxVal, -1) {
		return nil, fmt.Errorf("%w: softmax over fully masked row", ErrNumericalInstability)
	}

	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Exp(x - maxVal)
	}

	// sum >= 1, da das Maximum exp(0) beitraegt
	floats.Scale(1/floats.Sum(out), out)
	return out, nil
}

// SoftmaxRows wendet Softmax auf jede Zeile an; das Ergebnis ist zeilenstochastisch
func SoftmaxRows(scores mat.Matrix) (*mat.Dense, error) {
	r, c := scores.Dims()
	out := mat.NewDense(r, c, nil)
	row := make([]float64, c)
	for i := range r {
		mat.Row(row, i, scores)
		p, err := Softmax(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out.SetRow(i, p)
	}
	return out, nil
}

// LayerNorm normiert jede Zeile auf Mittelwert 0 und Varianz 1 und
// skaliert/verschiebt sie danach mit gain und bias.
func LayerNorm(x mat.Matrix, gain, bias []float64, eps float64) (*mat.Dense, error) {
	r, c := x.Dims()
	if len(gain) != c || len(bias) != c {
		return nil, fmt.Errorf("%w: layernorm over %d columns with gain %d and bias %d",
			ErrDimensionMismatch, c, len(gain), len(bias))
	}

	out := mat.NewDense(r, c, nil)
	row := make([]float64, c)
	for i := range r {
		mat.Row(row, i, x)
		mean, variance := stat.PopMeanVariance(row, nil)
		inv := 1 / math.Sqrt(variance+eps)
		for j, v := range row {
			row[j] = (v-mean)*inv*gain[j] + bias[j]
		}
		out.SetRow(i, row)
	}
	return out, nil
}

// GELU nutzt die tanh-Approximation 0.5·x·(1+tanh(√(2/π)·(x+0.044715·x³)))
func GELU(x float64) float64 {
	return 0.5 * x * (1 + math.Tanh(math.Sqrt(2/math.Pi)*(x+0.044715*x*x*x)))
}

// ApplyGELU wendet GELU elementweise an
func ApplyGELU(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, _ int, v float64) float64 { return GELU(v) }, m)
	return out
}
