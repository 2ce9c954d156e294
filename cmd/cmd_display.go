// cmd_display.go - Display und Output-Funktionen
// Hauptfunktionen: displayRun, renderHeatmap, tokenTable, distributionTable
package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/neivs/llmsandbox/api"
	"github.com/neivs/llmsandbox/tokenizer"
)

// shades von schwach nach stark; ein Zeichen pro Attention-Gewicht
const shades = " .:-=+*#%@"

// maxLabelWidth begrenzt die Zeilenbeschriftung der Heatmap
const maxLabelWidth = 8

// displayRun - Zeigt Token, Attention, Verteilung und Kennzahlen eines Passes an
func displayRun(w io.Writer, req *api.ForwardRequest, resp *api.ForwardResponse) {
	fmt.Fprintf(w, "seed %d  causal %v  flops %s  %s\n\n", req.Seed, req.Causal, formatFLOPs(resp.FLOPs), resp.Duration)

	tokenTable(w, resp.TokenText)
	fmt.Fprintln(w)

	// Pad-Positionen am Ende werden nicht gezeichnet
	n := tokenizer.LastContent(resp.Tokens) + 1
	fmt.Fprintf(w, "attention layer %d head %d\n", req.LayerView, req.HeadView)
	renderHeatmap(w, labels(resp.TokenText), resp.Attention, n, heatmapWidth())
	fmt.Fprintf(w, "entropy %.4f bits  max %.4f  mean %.4f  sparsity %.2f%%\n\n",
		resp.Stats.Entropy, resp.Stats.Max, resp.Stats.Mean, resp.Stats.Sparsity*100)

	distributionTable(w, resp.Distribution)
	if resp.Next != nil {
		fmt.Fprintf(w, "\nnext token %q (id %d, p=%.4f)\n", resp.Next.Token, resp.Next.ID, resp.Next.Probability)
	}
}

// formatFLOPs - FLOP-Schaetzung mit Tausender-Trennzeichen
func formatFLOPs(f api.FLOPs) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%d (attention %d, ffn %d)", f.Total, f.Attention, f.FFN)
}

// heatmapWidth - Anzahl der Spalten, die ins Terminal passen
func heatmapWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return tokenizer.VocabSize
	}
	return max(1, width-maxLabelWidth-3)
}

// labels - Kurzform jedes Tokens fuer Achsenbeschriftungen
func labels(trace []api.TokenInfo) []string {
	out := make([]string, len(trace))
	for i, t := range trace {
		switch {
		case t.Text == " ":
			out[i] = "␣"
		default:
			out[i] = t.Text
		}
	}
	return out
}

// shade - Zeichen fuer ein Gewicht aus [0, 1]
func shade(v float64) byte {
	i := int(v * float64(len(shades)))
	i = min(max(i, 0), len(shades)-1)
	return shades[i]
}

// renderHeatmap - Zeichnet die ersten n Zeilen und Spalten von attn.
// Spalten jenseits von width werden abgeschnitten.
func renderHeatmap(w io.Writer, labels []string, attn [][]float64, n, width int) {
	n = min(n, len(attn))
	cols := min(n, width)

	for i := range n {
		label := ""
		if i < len(labels) {
			label = runewidth.Truncate(labels[i], maxLabelWidth, "…")
		}

		var sb strings.Builder
		sb.WriteString(runewidth.FillLeft(label, maxLabelWidth))
		sb.WriteString(" |")
		for j := range cols {
			sb.WriteByte(shade(attn[i][j]))
		}
		if cols < n {
			sb.WriteString("…")
		}
		sb.WriteString("|")
		fmt.Fprintln(w, sb.String())
	}
}

// tokenTable - Tabelle der Token mit Position, Id und Klasse
func tokenTable(w io.Writer, trace []api.TokenInfo) {
	var data [][]string
	for i, t := range trace {
		if t.Text == "<pad>" {
			continue
		}
		data = append(data, []string{strconv.Itoa(i), strconv.Itoa(t.ID), strconv.Quote(t.Text), t.Class})
	}

	table := newTable(w, []string{"POS", "ID", "TOKEN", "CLASS"})
	table.AppendBulk(data)
	table.Render()
}

// distributionTable - Tabelle der Top-K Kandidaten
func distributionTable(w io.Writer, cands []api.Candidate) {
	data := make([][]string, 0, len(cands))
	for i, c := range cands {
		bar := strings.Repeat("█", int(c.Probability*40+0.5))
		data = append(data, []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(c.ID),
			strconv.Quote(c.Token),
			strconv.FormatFloat(c.Probability, 'f', 4, 64),
			bar,
		})
	}

	table := newTable(w, []string{"RANK", "ID", "TOKEN", "PROBABILITY", ""})
	table.AppendBulk(data)
	table.Render()
}

// newTable - Tabelle im Stil von sandbox history
func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}
