// cmd_run.go - Run Command Handler
// Hauptfunktionen: RunHandler, newRunCmd, requestFromFlags
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/neivs/llmsandbox/api"
	"github.com/neivs/llmsandbox/envconfig"
	"github.com/neivs/llmsandbox/export"
	"github.com/neivs/llmsandbox/model"
	"github.com/neivs/llmsandbox/runner"
	"github.com/neivs/llmsandbox/store"
)

// maxReseed: --reseed waehlt einen Seed aus [0, maxReseed)
const maxReseed = 10000

// runOptions sammelt alles, was ein run-Aufruf ausser der Anfrage braucht
type runOptions struct {
	Request    api.ForwardRequest
	Local      bool
	JSON       bool
	Save       bool
	ExportPath string
}

// newRunCmd - Erstellt den run Command
func newRunCmd() *cobra.Command {
	hp := model.DefaultHyperparameters()

	runCmd := &cobra.Command{
		Use:     "run [PROMPT]",
		Short:   "Run one forward pass and show its artifacts",
		PreRunE: checkServerHeartbeat,
		RunE:    RunHandler,
	}

	runCmd.Flags().Int64("seed", model.DefaultSeed, "Seed of the weight initializer")
	runCmd.Flags().Bool("reseed", false, fmt.Sprintf("Pick a random seed in [0, %d)", maxReseed))
	runCmd.Flags().Int("seq-len", hp.SeqLen, "Sequence length in tokens")
	runCmd.Flags().Int("d-model", hp.DModel, "Model width (must equal n-head * d-head)")
	runCmd.Flags().Int("n-head", hp.NHead, "Attention heads per layer")
	runCmd.Flags().Int("d-head", hp.DHead, "Width of one attention head")
	runCmd.Flags().Int("n-layer", hp.NLayer, "Number of transformer blocks")
	runCmd.Flags().Int("ffn-mult", hp.FFNMult, "Feed-forward expansion factor")
	runCmd.Flags().Float64("temperature", 1.0, "Softmax temperature of the next-token distribution")
	runCmd.Flags().Int("top-k", 5, "Number of candidates kept in the distribution")
	runCmd.Flags().Int("layer", 0, "Layer shown in the attention view")
	runCmd.Flags().Int("head", 0, "Head shown in the attention view")
	runCmd.Flags().Int("mask", -1, "Replace the token at this position with <mask>")
	runCmd.Flags().Bool("causal", false, "Mask attention to future positions")
	runCmd.Flags().Bool("renormalize", false, "Renormalize probabilities over the kept candidates")
	runCmd.Flags().Bool("local", false, "Run the pass in-process instead of on the server")
	runCmd.Flags().Bool("json", false, "Print the full response as JSON")
	runCmd.Flags().String("export", "", "Write the rounded export document to `FILE` (a directory picks the default name)")
	runCmd.Flags().Bool("save", false, "Store the run in the history")

	return runCmd
}

// requestFromFlags - Baut Anfrage und Optionen aus Flags und Prompt
func requestFromFlags(cmd *cobra.Command, prompt string) (runOptions, error) {
	flags := cmd.Flags()
	opts := runOptions{Request: api.ForwardRequest{Text: prompt}}
	req := &opts.Request

	var err error
	ints := []struct {
		name string
		dst  *int
	}{
		{"seq-len", &req.SeqLen},
		{"d-model", &req.Hyperparameters.DModel},
		{"n-head", &req.Hyperparameters.NHead},
		{"d-head", &req.Hyperparameters.DHead},
		{"n-layer", &req.Hyperparameters.NLayer},
		{"ffn-mult", &req.Hyperparameters.FFNMult},
		{"top-k", &req.TopK},
		{"layer", &req.LayerView},
		{"head", &req.HeadView},
	}
	for _, f := range ints {
		if *f.dst, err = flags.GetInt(f.name); err != nil {
			return opts, err
		}
	}
	req.Hyperparameters.SeqLen = req.SeqLen

	if req.Seed, err = flags.GetInt64("seed"); err != nil {
		return opts, err
	}
	if reseed, _ := flags.GetBool("reseed"); reseed {
		req.Seed = rand.Int64N(maxReseed)
	}

	if req.Temperature, err = flags.GetFloat64("temperature"); err != nil {
		return opts, err
	}

	mask, err := flags.GetInt("mask")
	if err != nil {
		return opts, err
	}
	if mask >= 0 {
		req.MaskIndex = &mask
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"causal", &req.Causal},
		{"renormalize", &req.Renormalize},
		{"local", &opts.Local},
		{"json", &opts.JSON},
		{"save", &opts.Save},
	}
	for _, f := range bools {
		if *f.dst, err = flags.GetBool(f.name); err != nil {
			return opts, err
		}
	}

	if opts.ExportPath, err = flags.GetString("export"); err != nil {
		return opts, err
	}

	return opts, nil
}

// RunHandler - Haupthandler fuer den run Command
func RunHandler(cmd *cobra.Command, args []string) error {
	prompt := strings.Join(args, " ")
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		in, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		if s := strings.TrimRight(string(in), "\r\n"); s != "" {
			prompt = strings.TrimSpace(s + " " + prompt)
		}
	}

	opts, err := requestFromFlags(cmd, prompt)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var resp *api.ForwardResponse
	if opts.Local {
		resp, err = runLocal(ctx, &opts.Request)
	} else {
		resp, err = runRemote(ctx, &opts.Request)
	}
	if err != nil {
		return err
	}

	doc, err := exportRun(ctx, &opts, resp)
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	displayRun(os.Stdout, &opts.Request, resp)
	if doc != nil && doc.ID != "" {
		fmt.Fprintf(os.Stdout, "\nsaved as %s\n", doc.ID)
	}
	return nil
}

// runLocal - Fuehrt den Pass in einem eigenen Worker im Prozess aus
func runLocal(ctx context.Context, req *api.ForwardRequest) (*api.ForwardResponse, error) {
	worker := runner.NewWorker(int(envconfig.WeightCache()))
	defer worker.Terminate()

	return worker.Run(ctx, req)
}

// runRemote - Fuehrt den Pass in der Default-Session des Servers aus
func runRemote(ctx context.Context, req *api.ForwardRequest) (*api.ForwardResponse, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, err
	}

	resp, err := client.Forward(ctx, "", req)
	if err != nil {
		var se api.StatusError
		if errors.As(err, &se) && se.Kind != "" {
			return nil, fmt.Errorf("%s: %s", se.Kind, se.ErrorMessage)
		}
		return nil, err
	}
	return resp, nil
}

// exportRun - Schreibt und/oder speichert das Export-Dokument.
// Gibt nil zurueck, wenn weder --export noch --save gesetzt ist.
func exportRun(ctx context.Context, opts *runOptions, resp *api.ForwardResponse) (*api.ExportDocument, error) {
	if opts.ExportPath == "" && !opts.Save {
		return nil, nil
	}

	var doc *api.ExportDocument
	var err error
	switch {
	case opts.Save && !opts.Local:
		client, cerr := api.ClientFromEnvironment()
		if cerr != nil {
			return nil, cerr
		}
		doc, err = client.Export(ctx, &api.ExportRequest{Request: opts.Request, Artifacts: resp.Artifacts, Save: true})
	default:
		doc, err = export.New(&opts.Request, &resp.Artifacts, time.Now())
		if err == nil && opts.Save {
			err = saveLocal(doc)
		}
	}
	if err != nil {
		return nil, err
	}

	if opts.ExportPath != "" {
		if err := writeExport(opts.ExportPath, doc); err != nil {
			return nil, err
		}
	}

	return doc, nil
}

// saveLocal - Speichert doc direkt in der lokalen Historie
func saveLocal(doc *api.ExportDocument) error {
	if envconfig.NoHistory() {
		return errors.New("run history is disabled (SANDBOX_NOHISTORY)")
	}

	s := &store.Store{DBPath: envconfig.History()}
	defer s.Close()

	return s.Save(doc)
}

// writeExport - Schreibt doc nach path; ein Verzeichnis bekommt den Default-Dateinamen
func writeExport(path string, doc *api.ExportDocument) error {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, export.Filename(doc))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := export.Write(f, doc); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "exported to %s\n", path)
	return f.Close()
}
