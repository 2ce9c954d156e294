// Package pca - Projektion von Embedding-Vektoren auf zwei Dimensionen
//
// Zentriert die Vektoren, bildet die Stichproben-Kovarianz und projiziert auf
// die zwei Eigenvektoren mit den groessten Eigenwerten. Entartete Eingaben
// (weniger als 2 Vektoren, keine Varianz) liefern den Ursprung fuer jeden Punkt.
package pca

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/neivs/llmsandbox/ml"
)

// minVariance: darunter gilt die Eingabe als varianzfrei
const minVariance = 1e-12

var errEigen = errors.New("eigendecomposition failed")

// Point ist eine projizierte Koordinate
type Point [2]float64

// Project2D projiziert vectors auf ihre zwei Hauptkomponenten.
// Ungleich lange Vektoren sind ein ml.ErrDimensionMismatch.
func Project2D(vectors [][]float64) ([]Point, error) {
	points := make([]Point, len(vectors))
	if len(vectors) < 2 {
		return points, nil
	}

	x, err := ml.FromRows(vectors)
	if err != nil {
		return nil, err
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)

	if mat.Trace(&cov) < minVariance {
		return points, nil
	}

	var eig mat.EigenSym
	if !eig.Factorize(&cov, true) {
		return nil, fmt.Errorf("%w: %w", ml.ErrNumericalInstability, errEigen)
	}

	// Eigenwerte sind aufsteigend sortiert
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	_, d := x.Dims()
	components := []int{d - 1}
	if d > 1 {
		components = append(components, d-2)
	}

	means := make([]float64, d)
	for j := range d {
		means[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}

	centered := make([]float64, d)
	for c, col := range components {
		axis := signNormalized(mat.Col(nil, col, &vecs))
		for i, v := range vectors {
			for j := range d {
				centered[j] = v[j] - means[j]
			}
			points[i][c] = floats.Dot(centered, axis)
		}
	}

	if err := ml.CheckFinite("projection", pointsMatrix(points)); err != nil {
		return nil, err
	}

	return points, nil
}

// signNormalized dreht v so, dass die betragsgroesste Komponente positiv ist
func signNormalized(v []float64) []float64 {
	var big float64
	for _, x := range v {
		if math.Abs(x) > math.Abs(big) {
			big = x
		}
	}

	if big < 0 {
		for i := range v {
			v[i] = -v[i]
		}
	}
	return v
}

func pointsMatrix(points []Point) mat.Matrix {
	data := make([]float64, 0, 2*len(points))
	for _, p := range points {
		data = append(data, p[0], p[1])
	}
	return mat.NewDense(len(points), 2, data)
}
