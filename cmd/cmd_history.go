// cmd_history.go - History und Show Commands
// Hauptfunktionen: HistoryHandler, ShowHandler, DeleteHandler, closestRun, checkServerHeartbeat
package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/spf13/cobra"

	"github.com/neivs/llmsandbox/api"
	"github.com/neivs/llmsandbox/export"
	"github.com/neivs/llmsandbox/format"
)

// checkServerHeartbeat - Prueft ob der Server erreichbar ist; --local braucht keinen
func checkServerHeartbeat(cmd *cobra.Command, _ []string) error {
	if local, err := cmd.Flags().GetBool("local"); err == nil && local {
		return nil
	}

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}
	if err := client.Heartbeat(cmd.Context()); err != nil {
		if strings.Contains(err.Error(), " refused") || strings.Contains(err.Error(), "could not connect") {
			return fmt.Errorf("sandbox server not responding, start it with 'sandbox serve' or use --local - %w", err)
		}
		return err
	}
	return nil
}

// HistoryHandler - Listet gespeicherte Runs, optional gefiltert nach Id-Praefix
func HistoryHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	runs, err := client.ListRuns(cmd.Context())
	if err != nil {
		return err
	}

	var data [][]string
	for _, r := range runs.Runs {
		if len(args) == 0 || strings.HasPrefix(r.ID, args[0]) {
			hp := r.Hyperparameters
			shape := fmt.Sprintf("%dx%d/%d/%d", hp.NHead, hp.DHead, hp.NLayer, hp.SeqLen)
			data = append(data, []string{r.ID, strconv.Quote(r.Prompt), strconv.FormatInt(r.Seed, 10), shape, format.HumanTime(r.CreatedAt, "Never")})
		}
	}

	table := newTable(os.Stdout, []string{"ID", "PROMPT", "SEED", "SHAPE", "CREATED"})
	table.AppendBulk(data)
	table.Render()

	return nil
}

// ShowHandler - Gibt einen gespeicherten Run als Export-Dokument aus
func ShowHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	doc, err := client.GetRun(cmd.Context(), args[0])
	if err != nil {
		var se api.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			if runs, lerr := client.ListRuns(cmd.Context()); lerr == nil {
				if id := closestRun(args[0], runs.Runs); id != "" {
					return fmt.Errorf("%w, did you mean %s?", err, id)
				}
			}
		}
		return err
	}

	return export.Write(os.Stdout, doc)
}

// DeleteHandler - Entfernt gespeicherte Runs aus der Historie
func DeleteHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	for _, arg := range args {
		if err := client.DeleteRun(cmd.Context(), arg); err != nil {
			return err
		}
		fmt.Printf("deleted '%s'\n", arg)
	}
	return nil
}

// maxSuggestDistance: weiter entfernte Ids werden nicht vorgeschlagen
const maxSuggestDistance = 4

// closestRun - Id mit dem kleinsten Editierabstand zu id, "" wenn keine nah genug ist.
// Verglichen wird mit dem gleich langen Praefix jeder Id.
func closestRun(id string, runs []api.RunSummary) string {
	best, bestDist := "", maxSuggestDistance+1
	for _, r := range runs {
		candidate := r.ID
		if len(candidate) > len(id) {
			candidate = candidate[:len(id)]
		}

		if d := levenshtein.ComputeDistance(id, candidate); d < bestDist {
			best, bestDist = r.ID, d
		}
	}
	return best
}

// newHistoryCmd - Erstellt den history Command
func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "history [PREFIX]",
		Aliases: []string{"ls"},
		Short:   "List stored runs",
		Args:    cobra.MaximumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    HistoryHandler,
	}
}

// newShowCmd - Erstellt den show Command
func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show ID",
		Short:   "Print a stored run",
		Args:    cobra.ExactArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    ShowHandler,
	}
}

// newDeleteCmd - Erstellt den rm Command
func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID [ID...]",
		Short:   "Remove stored runs",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    DeleteHandler,
	}
}
