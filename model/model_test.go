package model

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/neivs/llmsandbox/ml"
	"github.com/neivs/llmsandbox/tokenizer"
)

func smallHyperparameters() Hyperparameters {
	return Hyperparameters{DModel: 8, NHead: 2, DHead: 4, NLayer: 1, SeqLen: 8, FFNMult: 2}
}

func run(t *testing.T, text string, seed int64, hp Hyperparameters, opts Options) *Artifacts {
	t.Helper()

	tokens, err := tokenizer.Encode(text, hp.SeqLen)
	require.NoError(t, err)

	ws, err := InitWeights(seed, hp)
	require.NoError(t, err)

	a, err := Forward(context.Background(), tokens, hp, ws, opts)
	require.NoError(t, err)
	return a
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Hyperparameters)
		ok     bool
	}{
		"default":          {func(*Hyperparameters) {}, true},
		"dmodel mismatch":  {func(hp *Hyperparameters) { hp.DModel = 9 }, false},
		"zero heads":       {func(hp *Hyperparameters) { hp.NHead, hp.DModel = 0, 0 }, false},
		"too many layers":  {func(hp *Hyperparameters) { hp.NLayer = MaxLayers + 1 }, false},
		"seqlen too long":  {func(hp *Hyperparameters) { hp.SeqLen = MaxSeqLen + 1 }, false},
		"seqlen too short": {func(hp *Hyperparameters) { hp.SeqLen = 1 }, false},
		"ffn zero":         {func(hp *Hyperparameters) { hp.FFNMult = 0 }, false},
		"too wide":         {func(hp *Hyperparameters) { hp.NHead, hp.DHead, hp.DModel = 16, 64, 1024 }, false},
		"widest":           {func(hp *Hyperparameters) { hp.NHead, hp.DHead, hp.DModel = 8, 64, 512 }, true},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			hp := DefaultHyperparameters()
			tt.mutate(&hp)
			err := hp.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, erwartet nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidHyperparameters) {
				t.Errorf("Validate() = %v, erwartet ErrInvalidHyperparameters", err)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	hp := smallHyperparameters()

	got, err := hp.Resolve(0)
	require.NoError(t, err)
	if got.SeqLen != 8 {
		t.Errorf("Resolve(0).SeqLen = %d, erwartet 8", got.SeqLen)
	}

	got, err = hp.Resolve(8)
	require.NoError(t, err)
	if got != hp {
		t.Errorf("Resolve(8) = %v, erwartet %v", got, hp)
	}

	hp.SeqLen = 0
	got, err = hp.Resolve(16)
	require.NoError(t, err)
	if got.SeqLen != 16 {
		t.Errorf("Resolve(16).SeqLen = %d, erwartet 16", got.SeqLen)
	}

	hp.SeqLen = 8
	if _, err := hp.Resolve(16); !errors.Is(err, ErrInvalidHyperparameters) {
		t.Errorf("Resolve(16) = %v, erwartet ErrInvalidHyperparameters", err)
	}
}

func TestStream(t *testing.T) {
	s := NewStream(1337)
	want := []uint32{339970090, 3449400233, 3849456703}
	for i, w := range want {
		if got := s.Next(); got != w {
			t.Errorf("Next() #%d = %d, erwartet %d", i, got, w)
		}
	}

	if got := NewStream(0).Next(); got != 1359758873 {
		t.Errorf("NewStream(0).Next() = %d, erwartet 1359758873", got)
	}

	// nur die unteren 32 Bit zaehlen
	if NewStream(1<<32+1337).Next() != NewStream(1337).Next() {
		t.Error("Seed wird nicht auf 32 Bit reduziert")
	}

	s = NewStream(42)
	for range 10000 {
		if w := s.Weight(); w < -WeightRange || w >= WeightRange {
			t.Fatalf("Weight() = %v ausserhalb des Bereichs", w)
		}
	}
}

func TestInitWeights(t *testing.T) {
	hp := smallHyperparameters()

	ws, err := InitWeights(1337, hp)
	require.NoError(t, err)

	// das erste Gewicht des Stroms ist E[0][0]
	if got := ws.Embedding.At(0, 0); math.Abs(got-(-0.08416890902444721)) > 1e-15 {
		t.Errorf("Embedding[0][0] = %v", got)
	}

	if r, c := ws.Embedding.Dims(); r != tokenizer.VocabSize || c != 8 {
		t.Errorf("Embedding = [%dx%d]", r, c)
	}
	if r, c := ws.Positional.Dims(); r != 8 || c != 8 {
		t.Errorf("Positional = [%dx%d]", r, c)
	}
	if r, c := ws.Layers[0].W1.Dims(); r != 8 || c != 16 {
		t.Errorf("W1 = [%dx%d]", r, c)
	}

	for _, g := range ws.Layers[0].Gain1 {
		if g < 1-WeightRange || g >= 1+WeightRange {
			t.Errorf("gain %v ausserhalb von 1 +- %v", g, WeightRange)
		}
	}

	// |V|*d + seq*d + 4*d*d + 2*d*2d + 4*d
	if want := 99*8 + 8*8 + 4*64 + 2*128 + 4*8; ws.NumParameters() != want {
		t.Errorf("NumParameters() = %d, erwartet %d", ws.NumParameters(), want)
	}

	again, err := InitWeights(1337, hp)
	require.NoError(t, err)
	if diff := cmp.Diff(ml.ToRows(ws.Layers[0].Wo), ml.ToRows(again.Layers[0].Wo)); diff != "" {
		t.Errorf("Gewichte nicht reproduzierbar (-first +second):\n%s", diff)
	}

	other, err := InitWeights(1338, hp)
	require.NoError(t, err)
	if other.Embedding.At(0, 0) == ws.Embedding.At(0, 0) {
		t.Error("verschiedene Seeds ergeben dieselben Gewichte")
	}

	bad := hp
	bad.DModel = 7
	if _, err := InitWeights(1, bad); !errors.Is(err, ErrInvalidHyperparameters) {
		t.Errorf("InitWeights() = %v, erwartet ErrInvalidHyperparameters", err)
	}
}

func TestForwardScenario(t *testing.T) {
	hp := smallHyperparameters()
	a := run(t, "AI", 1337, hp, Options{})

	wantTokens := []int{tokenizer.BOSID, 37, 45, tokenizer.EOSID, tokenizer.PadID, tokenizer.PadID, tokenizer.PadID, tokenizer.PadID}
	if diff := cmp.Diff(wantTokens, a.Tokens); diff != "" {
		t.Errorf("Tokens (-want +got):\n%s", diff)
	}

	if len(a.AttnByLayerHead) != 1 || len(a.AttnByLayerHead[0]) != 2 {
		t.Fatalf("Attention-Form falsch: %d Layer", len(a.AttnByLayerHead))
	}

	for h, m := range a.AttnByLayerHead[0] {
		if len(m) != 8 {
			t.Fatalf("head %d hat %d Zeilen, erwartet 8", h, len(m))
		}
		for i, row := range m {
			if len(row) != 8 {
				t.Fatalf("head %d Zeile %d hat %d Spalten", h, i, len(row))
			}
			var sum float64
			for _, v := range row {
				sum += v
			}
			if math.Abs(sum-1) > 1e-6 {
				t.Errorf("head %d Zeile %d summiert zu %v", h, i, sum)
			}
		}
	}

	if len(a.Embeddings) != 8 || len(a.Embeddings[0]) != 8 {
		t.Errorf("Embeddings-Form falsch")
	}
	if len(a.LastLogits) != tokenizer.VocabSize {
		t.Errorf("len(LastLogits) = %d, erwartet %d", len(a.LastLogits), tokenizer.VocabSize)
	}

	again := run(t, "AI", 1337, hp, Options{})
	if diff := cmp.Diff(a, again); diff != "" {
		t.Errorf("Forward nicht deterministisch (-first +second):\n%s", diff)
	}
}

func TestForwardEmbeddingsAreInput(t *testing.T) {
	hp := smallHyperparameters()
	a := run(t, "AI", 7, hp, Options{})

	ws, err := InitWeights(7, hp)
	require.NoError(t, err)

	want := ws.Embedding.At(tokenizer.BOSID, 3) + ws.Positional.At(0, 3)
	if a.Embeddings[0][3] != want {
		t.Errorf("Embeddings[0][3] = %v, erwartet %v", a.Embeddings[0][3], want)
	}
}

func TestForwardCausal(t *testing.T) {
	hp := smallHyperparameters()
	hp.NLayer = 2
	a := run(t, "hello", 3, hp, Options{Causal: true})

	for l, heads := range a.AttnByLayerHead {
		for h, m := range heads {
			for i, row := range m {
				for j := i + 1; j < len(row); j++ {
					if row[j] != 0 {
						t.Errorf("layer %d head %d [%d][%d] = %v, erwartet 0", l, h, i, j, row[j])
					}
				}
			}
			if m[0][0] != 1 {
				t.Errorf("layer %d head %d [0][0] = %v, erwartet 1", l, h, m[0][0])
			}
		}
	}

	bidirectional := run(t, "hello", 3, hp, Options{})
	if bidirectional.AttnByLayerHead[0][0][0][1] == 0 {
		t.Error("ohne Causal darf die Attention nach vorne nicht 0 sein")
	}
}

func TestForwardMask(t *testing.T) {
	hp := smallHyperparameters()
	idx := 1
	masked := run(t, "AI", 1337, hp, Options{MaskIndex: &idx})
	plain := run(t, "AI", 1337, hp, Options{})

	if masked.Tokens[1] != tokenizer.MaskID {
		t.Errorf("Tokens[1] = %d, erwartet <mask>", masked.Tokens[1])
	}
	if cmp.Equal(masked.LastLogits, plain.LastLogits) {
		t.Error("Maskierung veraendert die Logits nicht")
	}

	tokens, err := tokenizer.Encode("AI", hp.SeqLen)
	require.NoError(t, err)
	ws, err := InitWeights(1337, hp)
	require.NoError(t, err)

	out := 8
	if _, err := Forward(context.Background(), tokens, hp, ws, Options{MaskIndex: &out}); !errors.Is(err, ErrInvalidHyperparameters) {
		t.Errorf("Forward(maskIndex=8) = %v, erwartet ErrInvalidHyperparameters", err)
	}

	// die Eingabe wird nicht veraendert
	if tokens[1] != 37 {
		t.Errorf("Eingabe-Token veraendert: %d", tokens[1])
	}
}

func TestForwardErrors(t *testing.T) {
	hp := smallHyperparameters()
	ws, err := InitWeights(1, hp)
	require.NoError(t, err)
	tokens, err := tokenizer.Encode("x", hp.SeqLen)
	require.NoError(t, err)

	other := hp
	other.NLayer = 2
	if _, err := Forward(context.Background(), tokens, other, ws, Options{}); !errors.Is(err, ml.ErrDimensionMismatch) {
		t.Errorf("fremde Gewichte: %v, erwartet ErrDimensionMismatch", err)
	}

	if _, err := Forward(context.Background(), tokens[:4], hp, ws, Options{}); !errors.Is(err, ml.ErrDimensionMismatch) {
		t.Errorf("kurze Folge: %v, erwartet ErrDimensionMismatch", err)
	}

	bad := hp
	bad.DHead = 3
	if _, err := Forward(context.Background(), tokens, bad, ws, Options{}); !errors.Is(err, ErrInvalidHyperparameters) {
		t.Errorf("ungueltige Hyperparameter: %v, erwartet ErrInvalidHyperparameters", err)
	}

	unknown := append([]int(nil), tokens...)
	unknown[2] = tokenizer.VocabSize
	if _, err := Forward(context.Background(), unknown, hp, ws, Options{}); !errors.Is(err, tokenizer.ErrUnknownToken) {
		t.Errorf("unbekanntes Token: %v, erwartet ErrUnknownToken", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if a, err := Forward(ctx, tokens, hp, ws, Options{}); !errors.Is(err, context.Canceled) || a != nil {
		t.Errorf("abgebrochen: %v, %v", a, err)
	}
}

func TestView(t *testing.T) {
	hp := smallHyperparameters()
	a := run(t, "AI", 1337, hp, Options{})

	m, err := a.View(0, 1)
	require.NoError(t, err)
	if diff := cmp.Diff(a.AttnByLayerHead[0][1], m); diff != "" {
		t.Errorf("View(0, 1) (-want +got):\n%s", diff)
	}

	for _, lh := range [][2]int{{1, 0}, {-1, 0}, {0, 2}, {0, -1}} {
		if _, err := a.View(lh[0], lh[1]); !errors.Is(err, ErrInvalidHyperparameters) {
			t.Errorf("View(%d, %d) = %v, erwartet ErrInvalidHyperparameters", lh[0], lh[1], err)
		}
	}
}

func TestAttentionStats(t *testing.T) {
	// Einheitsmatrix: 2 von 4 Eintraegen aktiv
	st := AttentionStats([][]float64{{1, 0}, {0, 1}})
	if st.Max != 1 || st.Mean != 0.5 || st.Sparsity != 0.5 {
		t.Errorf("AttentionStats() = %+v", st)
	}
	if math.Abs(st.Entropy-1) > 1e-12 {
		t.Errorf("Entropy = %v, erwartet 1 Bit", st.Entropy)
	}

	uniform := AttentionStats([][]float64{{0.25, 0.25, 0.25, 0.25}, {0.25, 0.25, 0.25, 0.25}})
	if math.Abs(uniform.Entropy-3) > 1e-12 || uniform.Sparsity != 0 {
		t.Errorf("AttentionStats(uniform) = %+v", uniform)
	}

	if st := AttentionStats(nil); st != (Stats{}) {
		t.Errorf("AttentionStats(nil) = %+v", st)
	}
}

func TestEstimateFLOPs(t *testing.T) {
	f := EstimateFLOPs(smallHyperparameters())
	want := FLOPs{
		Attention: 8 * 8 * 8 * 2 * 1,
		FFN:       8 * 8 * 8 * 2 * 1,
		Total:     2 * 1024,
	}
	if diff := cmp.Diff(want, f); diff != "" {
		t.Errorf("EstimateFLOPs() (-want +got):\n%s", diff)
	}
}
