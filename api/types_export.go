// types_export.go - Export-Dokument und Run-Historie
// Enthaelt: ExportRequest, ExportDocument, RunSummary, ListRunsResponse

package api

import (
	"encoding/json"
	"time"
)

// TimestampFormat ist das Zeitformat im Export (UTC, feste Millisekunden)
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// ExportRequest exportiert einen Lauf; Save speichert ihn zusaetzlich in der Historie
type ExportRequest struct {
	Request   ForwardRequest `json:"request"`
	Artifacts Artifacts      `json:"artifacts"`
	Save      bool           `json:"save,omitempty"`
}

// ExportDocument ist das Dateiformat eines exportierten Laufs.
// Alle Gleitkommawerte sind auf 4 Nachkommastellen gerundet.
type ExportDocument struct {
	ID              string          `json:"id,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
	Prompt          string          `json:"prompt"`
	Hyperparameters Hyperparameters `json:"hyperparameters"`
	Seed            int64           `json:"seed"`
	Tokens          []int           `json:"tokens"`
	Embeddings      [][]float64     `json:"embeddings"`
	Attention       [][][][]float64 `json:"attention"`
	Logits          []float64       `json:"logits"`
}

// MarshalJSON schreibt Timestamp immer mit TimestampFormat
func (d ExportDocument) MarshalJSON() ([]byte, error) {
	type document ExportDocument
	return json.Marshal(struct {
		document
		Timestamp string `json:"timestamp"`
	}{document(d), d.Timestamp.UTC().Format(TimestampFormat)})
}

// RunSummary beschreibt einen gespeicherten Lauf
type RunSummary struct {
	ID              string          `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	Prompt          string          `json:"prompt"`
	Seed            int64           `json:"seed"`
	Hyperparameters Hyperparameters `json:"hyperparameters"`
}

type ListRunsResponse struct {
	Runs []RunSummary `json:"runs"`
}
