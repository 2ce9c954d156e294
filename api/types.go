// types.go - Nachrichten-Typen der Sandbox-API
// Enthaelt: StatusError, Kind-Konstanten, Hyperparameters, ForwardRequest/ForwardResponse,
// Artifacts und die abgeleiteten Sichten (Distribution, Projection, Stats)
package api

import (
	"fmt"
	"time"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int    `json:"-"`
	Status       string `json:"-"`
	ErrorMessage string `json:"error"`
	Kind         string `json:"kind,omitempty"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		// this should not happen
		return "something went wrong, please see the sandbox server logs for details"
	}
}

// Stabile Fehlerarten im Feld "kind"
const (
	KindInvalidHyperparameters = "invalid_hyperparameters"
	KindUnsupportedCharacter   = "unsupported_character"
	KindDimensionMismatch      = "dimension_mismatch"
	KindNumericalInstability   = "numerical_instability"
	KindBusy                   = "busy"
	KindNotFound               = "not_found"
	KindInvalidRequest         = "invalid_request"
	KindInternal               = "internal"
)

// Hyperparameters beschreibt die Form des simulierten Modells
type Hyperparameters struct {
	DModel  int `json:"d_model"`
	NHead   int `json:"n_head"`
	DHead   int `json:"d_head"`
	NLayer  int `json:"n_layer"`
	SeqLen  int `json:"seqLen"`
	FFNMult int `json:"ffn_mult"`
}

// ForwardRequest ist die Anfrage an einen Worker
type ForwardRequest struct {
	Text            string          `json:"text"`
	SeqLen          int             `json:"seqLen"`
	Temperature     float64         `json:"temperature"`
	TopK            int             `json:"topK"`
	LayerView       int             `json:"layerView"`
	HeadView        int             `json:"headView"`
	MaskIndex       *int            `json:"maskIndex"`
	Seed            int64           `json:"seed"`
	Hyperparameters Hyperparameters `json:"hyperparameters"`

	// Causal aktiviert die autoregressive Maskierung
	Causal bool `json:"causal,omitempty"`

	// Renormalize normiert die Top-K-Verteilung auf Summe 1
	Renormalize bool `json:"renormalize,omitempty"`
}

// Artifacts sind die Rohdaten eines Forward-Passes
type Artifacts struct {
	Tokens          []int           `json:"tokens"`
	Embeddings      [][]float64     `json:"embeddings"`
	AttnByLayerHead [][][][]float64 `json:"attnByLayerHead"`
	LastLogits      []float64       `json:"lastLogits"`
}

// TokenInfo beschreibt ein Token fuer die Schritt-fuer-Schritt-Anzeige
type TokenInfo struct {
	ID    int    `json:"id"`
	Text  string `json:"text"`
	Class string `json:"class"`
}

// Candidate ist ein moegliches naechstes Token
type Candidate struct {
	ID          int     `json:"id"`
	Token       string  `json:"token"`
	Probability float64 `json:"probability"`
}

// AttentionStats fasst eine Attention-Matrix zusammen
type AttentionStats struct {
	Entropy  float64 `json:"entropy"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	Sparsity float64 `json:"sparsity"`
}

// FLOPs schaetzt den Rechenaufwand einer Konfiguration
type FLOPs struct {
	Attention int64 `json:"attention"`
	FFN       int64 `json:"ffn"`
	Total     int64 `json:"total"`
}

// ForwardResponse enthaelt die Artefakte und die daraus abgeleiteten Sichten
type ForwardResponse struct {
	Artifacts

	TokenText    []TokenInfo    `json:"tokenText"`
	Distribution []Candidate    `json:"distribution"`
	Projection   [][2]float64   `json:"projection"`
	Attention    [][]float64    `json:"attention"`
	Stats        AttentionStats `json:"stats"`
	FLOPs        FLOPs          `json:"flops"`
	Next         *Candidate     `json:"next,omitempty"`

	Duration time.Duration `json:"duration,omitempty"`
}

// ViewRequest waehlt eine andere Sicht auf bereits berechnete Artefakte
type ViewRequest struct {
	Artifacts   Artifacts `json:"artifacts"`
	LayerView   int       `json:"layerView"`
	HeadView    int       `json:"headView"`
	Temperature float64   `json:"temperature"`
	TopK        int       `json:"topK"`
	Renormalize bool      `json:"renormalize,omitempty"`
}

// ViewResponse ist eine Projektion ueber bestehende Artefakte
type ViewResponse struct {
	Attention    [][]float64    `json:"attention"`
	Stats        AttentionStats `json:"stats"`
	Distribution []Candidate    `json:"distribution"`
	Projection   [][2]float64   `json:"projection"`
}

type DistributionRequest struct {
	Logits      []float64 `json:"logits"`
	Temperature float64   `json:"temperature"`
	TopK        int       `json:"topK"`
	Renormalize bool      `json:"renormalize,omitempty"`
}

type DistributionResponse struct {
	Candidates []Candidate `json:"candidates"`
}

type ProjectRequest struct {
	Vectors [][]float64 `json:"vectors"`
}

type ProjectResponse struct {
	Points [][2]float64 `json:"points"`
}

// SessionRequest legt eine Session an; KeepAlive ueberschreibt SANDBOX_KEEP_ALIVE
type SessionRequest struct {
	KeepAlive *Duration `json:"keep_alive,omitempty"`
}

type SessionResponse struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type VersionResponse struct {
	Version string `json:"version"`
}
