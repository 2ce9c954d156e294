// tensor.go - Form-Pruefung und Konvertierung fuer dichte Matrizen
//
// Enthaelt:
// - ErrDimensionMismatch, ErrNumericalInstability
// - Shape: Zeilen/Spalten einer Matrix fuer Fehlermeldungen
// - FromRows/ToRows: Umwandlung zwischen verschachtelten Slices und *mat.Dense
// - CheckFinite: Prueft auf NaN/Inf
package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDimensionMismatch signalisiert inkompatible Formen und damit einen Engine-Fehler
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrNumericalInstability signalisiert einen nicht-endlichen Wert
	ErrNumericalInstability = errors.New("numerical instability")
)

// Shape beschreibt eine Matrix als [Zeilen, Spalten]
type Shape [2]int

// ShapeOf gibt die Form von m zurueck
func ShapeOf(m mat.Matrix) Shape {
	r, c := m.Dims()
	return Shape{r, c}
}

func (s Shape) String() string {
	return fmt.Sprintf("[%dx%d]", s[0], s[1])
}

func mismatch(op string, a, b mat.Matrix) error {
	return fmt.Errorf("%w: %s %v and %v", ErrDimensionMismatch, op, ShapeOf(a), ShapeOf(b))
}

// FromRows kopiert rows in eine neue dichte Matrix.
// Leere oder ungleich lange Zeilen sind ein ErrDimensionMismatch.
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty matrix", ErrDimensionMismatch)
	}

	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, expected %d", ErrDimensionMismatch, i, len(row), cols)
		}
		data = append(data, row...)
	}

	return mat.NewDense(len(rows), cols, data), nil
}

// ToRows kopiert m in verschachtelte Slices
func ToRows(m mat.Matrix) [][]float64 {
	r, _ := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, m)
	}
	return rows
}

// CheckFinite gibt ErrNumericalInstability zurueck, sobald m einen NaN- oder Inf-Wert enthaelt
func CheckFinite(name string, m mat.Matrix) error {
	r, c := m.Dims()
	for i := range r {
		for j := range c {
			if v := m.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s[%d][%d] = %v", ErrNumericalInstability, name, i, j, v)
			}
		}
	}
	return nil
}
