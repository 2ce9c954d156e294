// Package export - Export-Dokument eines Laufs
//
// Alle Gleitkommawerte werden auf 4 Nachkommastellen gerundet. Die feste
// Genauigkeit haelt Datei-Diffs zwischen Laeufen reproduzierbar.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/neivs/llmsandbox/api"
	"github.com/neivs/llmsandbox/model"
)

// Decimals ist die feste Genauigkeit des Formats
const Decimals = 4

var scale = math.Pow10(Decimals)

// Round rundet v auf Decimals Nachkommastellen. Halbe Stellen runden nach
// oben (auch bei negativen Werten), -0 wird zu 0.
func Round(v float64) float64 {
	r := math.Floor(float64(v*scale)+0.5) / scale
	if r == 0 {
		return 0
	}
	return r
}

func roundVec(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = Round(x)
	}
	return out
}

func roundMat(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = roundVec(row)
	}
	return out
}

// New baut das Export-Dokument fuer req und seine Artefakte
func New(req *api.ForwardRequest, artifacts *api.Artifacts, now time.Time) (*api.ExportDocument, error) {
	hp, err := model.Hyperparameters(req.Hyperparameters).Resolve(req.SeqLen)
	if err != nil {
		return nil, err
	}

	if len(artifacts.Tokens) != hp.SeqLen {
		return nil, fmt.Errorf("%w: %d tokens for seqLen %d", model.ErrInvalidHyperparameters, len(artifacts.Tokens), hp.SeqLen)
	}

	attention := make([][][][]float64, len(artifacts.AttnByLayerHead))
	for l, heads := range artifacts.AttnByLayerHead {
		attention[l] = make([][][]float64, len(heads))
		for h, m := range heads {
			attention[l][h] = roundMat(m)
		}
	}

	return &api.ExportDocument{
		Timestamp:       now.UTC().Truncate(time.Millisecond),
		Prompt:          req.Text,
		Hyperparameters: api.Hyperparameters(hp),
		Seed:            req.Seed,
		Tokens:          append([]int(nil), artifacts.Tokens...),
		Embeddings:      roundMat(artifacts.Embeddings),
		Attention:       attention,
		Logits:          roundVec(artifacts.LastLogits),
	}, nil
}

// Write schreibt doc eingerueckt nach w
func Write(w io.Writer, doc *api.ExportDocument) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Filename schlaegt einen Dateinamen fuer doc vor
func Filename(doc *api.ExportDocument) string {
	return fmt.Sprintf("llm-sandbox-%s.json", doc.Timestamp.Format("20060102-150405"))
}
