// pipeline.go - Eine Anfrage durch Tokenizer, Gewichte, Forward-Pass und Sichten
//
// Enthaelt:
// - Validate: Bereichspruefung der Anfrage vor jeder Berechnung
// - execute: Tokenizer -> Gewichte (Cache) -> Forward -> Sampling/Projektion
// - Derive*: Sichten ueber bestehende Artefakte, ohne neuen Pass
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/neivs/llmsandbox/api"
	"github.com/neivs/llmsandbox/model"
	"github.com/neivs/llmsandbox/pca"
	"github.com/neivs/llmsandbox/sample"
	"github.com/neivs/llmsandbox/tokenizer"
)

// drawSalt trennt den Strom fuer die Ziehung vom Gewichts-Strom
const drawSalt = 0x5DEECE66D

// Hyperparameters loest seqLen der Anfrage auf und prueft die Bereiche
func Hyperparameters(req *api.ForwardRequest) (model.Hyperparameters, error) {
	return model.Hyperparameters(req.Hyperparameters).Resolve(req.SeqLen)
}

// Validate prueft alle Felder der Anfrage, bevor gerechnet wird
func Validate(req *api.ForwardRequest) (model.Hyperparameters, error) {
	hp, err := Hyperparameters(req)
	if err != nil {
		return hp, err
	}

	if err := validateSampling(req.Temperature, req.TopK); err != nil {
		return hp, err
	}

	if req.LayerView < 0 || req.LayerView >= hp.NLayer {
		return hp, fmt.Errorf("%w: layerView = %d outside [0, %d)", model.ErrInvalidHyperparameters, req.LayerView, hp.NLayer)
	}

	if req.HeadView < 0 || req.HeadView >= hp.NHead {
		return hp, fmt.Errorf("%w: headView = %d outside [0, %d)", model.ErrInvalidHyperparameters, req.HeadView, hp.NHead)
	}

	if req.MaskIndex != nil && (*req.MaskIndex < 0 || *req.MaskIndex >= hp.SeqLen) {
		return hp, fmt.Errorf("%w: maskIndex = %d outside [0, %d)", model.ErrInvalidHyperparameters, *req.MaskIndex, hp.SeqLen)
	}

	return hp, nil
}

func validateSampling(temperature float64, topK int) error {
	if !(temperature > 0) {
		return fmt.Errorf("%w: %w: %v", model.ErrInvalidHyperparameters, sample.ErrInvalidTemperature, temperature)
	}

	if topK < 1 || topK > tokenizer.VocabSize {
		return fmt.Errorf("%w: %w: topK = %d, must be in 1..%d", model.ErrInvalidHyperparameters, sample.ErrInvalidTopK, topK, tokenizer.VocabSize)
	}

	return nil
}

// execute fuehrt die gesamte Pipeline fuer req aus.
// Das Ergebnis ist entweder vollstaendig oder ein Fehler, nie beides.
func execute(ctx context.Context, cache *model.WeightCache, req *api.ForwardRequest) (*api.ForwardResponse, error) {
	hp, err := Validate(req)
	if err != nil {
		return nil, err
	}

	tokens, err := tokenizer.Encode(req.Text, hp.SeqLen)
	if err != nil {
		return nil, err
	}

	ws, err := cache.Load(req.Seed, hp)
	if err != nil {
		return nil, err
	}

	artifacts, err := model.Forward(ctx, tokens, hp, ws, model.Options{
		MaskIndex: req.MaskIndex,
		Causal:    req.Causal,
	})
	if err != nil {
		return nil, err
	}

	raw := api.Artifacts{
		Tokens:          artifacts.Tokens,
		Embeddings:      artifacts.Embeddings,
		AttnByLayerHead: artifacts.AttnByLayerHead,
		LastLogits:      artifacts.LastLogits,
	}

	view, err := DeriveView(&api.ViewRequest{
		Artifacts:   raw,
		LayerView:   req.LayerView,
		HeadView:    req.HeadView,
		Temperature: req.Temperature,
		TopK:        req.TopK,
		Renormalize: req.Renormalize,
	})
	if err != nil {
		return nil, err
	}

	trace, err := TokenTrace(artifacts.Tokens)
	if err != nil {
		return nil, err
	}

	resp := &api.ForwardResponse{
		Artifacts:    raw,
		TokenText:    trace,
		Distribution: view.Distribution,
		Projection:   view.Projection,
		Attention:    view.Attention,
		Stats:        view.Stats,
		FLOPs:        api.FLOPs(model.EstimateFLOPs(hp)),
	}

	u := model.NewStream(req.Seed ^ drawSalt).Float64()
	if next, err := sample.Draw(toSample(view.Distribution), u); err == nil {
		c := fromSample([]sample.Candidate{next})[0]
		resp.Next = &c
	}

	return resp, nil
}

// DeriveView berechnet Attention, Statistik, Verteilung und Projektion
// fuer eine Layer/Head-Auswahl ueber bestehende Artefakte.
func DeriveView(req *api.ViewRequest) (*api.ViewResponse, error) {
	artifacts := model.Artifacts{
		Tokens:          req.Artifacts.Tokens,
		Embeddings:      req.Artifacts.Embeddings,
		AttnByLayerHead: req.Artifacts.AttnByLayerHead,
		LastLogits:      req.Artifacts.LastLogits,
	}

	attention, err := artifacts.View(req.LayerView, req.HeadView)
	if err != nil {
		return nil, err
	}

	dist, err := DeriveDistribution(&api.DistributionRequest{
		Logits:      req.Artifacts.LastLogits,
		Temperature: req.Temperature,
		TopK:        req.TopK,
		Renormalize: req.Renormalize,
	})
	if err != nil {
		return nil, err
	}

	proj, err := DeriveProjection(&api.ProjectRequest{Vectors: req.Artifacts.Embeddings})
	if err != nil {
		return nil, err
	}

	return &api.ViewResponse{
		Attention:    attention,
		Stats:        api.AttentionStats(model.AttentionStats(attention)),
		Distribution: dist.Candidates,
		Projection:   proj.Points,
	}, nil
}

// DeriveDistribution wendet Temperatur und Top-K auf Logits an
func DeriveDistribution(req *api.DistributionRequest) (*api.DistributionResponse, error) {
	if err := validateSampling(req.Temperature, req.TopK); err != nil {
		return nil, err
	}

	cands, err := sample.Distribution(req.Logits, sample.Options{
		Temperature: req.Temperature,
		TopK:        req.TopK,
		Renormalize: req.Renormalize,
	})
	if errors.Is(err, sample.ErrInvalidTopK) {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidHyperparameters, err)
	} else if err != nil {
		return nil, err
	}

	return &api.DistributionResponse{Candidates: fromSample(cands)}, nil
}

// DeriveProjection reduziert Vektoren auf zwei Dimensionen
func DeriveProjection(req *api.ProjectRequest) (*api.ProjectResponse, error) {
	points, err := pca.Project2D(req.Vectors)
	if err != nil {
		return nil, err
	}

	out := make([][2]float64, len(points))
	for i, p := range points {
		out[i] = p
	}
	return &api.ProjectResponse{Points: out}, nil
}

// TokenTrace dekodiert Token fuer die Schritt-fuer-Schritt-Anzeige
func TokenTrace(ids []int) ([]api.TokenInfo, error) {
	text, err := tokenizer.DecodeAll(ids)
	if err != nil {
		return nil, err
	}

	out := make([]api.TokenInfo, len(ids))
	for i, id := range ids {
		out[i] = api.TokenInfo{ID: id, Text: text[i], Class: string(tokenizer.Classify(id))}
	}
	return out, nil
}

func fromSample(cands []sample.Candidate) []api.Candidate {
	out := make([]api.Candidate, len(cands))
	for i, c := range cands {
		// Decode ist fuer jede ID der Vokabel total
		text, _ := tokenizer.Decode(c.ID)
		out[i] = api.Candidate{ID: c.ID, Token: text, Probability: c.Probability}
	}
	return out
}

func toSample(cands []api.Candidate) []sample.Candidate {
	out := make([]sample.Candidate, len(cands))
	for i, c := range cands {
		out[i] = sample.Candidate{ID: c.ID, Probability: c.Probability}
	}
	return out
}
