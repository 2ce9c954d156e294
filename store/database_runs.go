// database_runs.go - Run CRUD Operationen
// Enthaelt: insertRun, listRuns, getRun, findRuns, deleteRun

package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neivs/llmsandbox/api"
)

// insertRun speichert doc unter doc.ID
func (db *database) insertRun(doc *api.ExportDocument, createdAt time.Time) error {
	hp, err := json.Marshal(doc.Hyperparameters)
	if err != nil {
		return fmt.Errorf("marshal hyperparameters: %w", err)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	_, err = db.conn.Exec(
		`INSERT INTO runs (id, created_at, prompt, seed, hyperparameters, document) VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, createdAt.UTC(), doc.Prompt, doc.Seed, string(hp), string(body),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// likeEscaper maskiert die LIKE-Platzhalter eines Praefix
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// listRuns gibt alle Runs mit Id-Praefix prefix zurueck, die neuesten zuerst
func (db *database) listRuns(prefix string) ([]api.RunSummary, error) {
	rows, err := db.conn.Query(
		`SELECT id, created_at, prompt, seed, hyperparameters FROM runs WHERE id LIKE ? ESCAPE '\' ORDER BY created_at DESC, id DESC`,
		likeEscaper.Replace(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []api.RunSummary{}
	for rows.Next() {
		var run api.RunSummary
		var hp string
		if err := rows.Scan(&run.ID, &run.CreatedAt, &run.Prompt, &run.Seed, &hp); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		if err := json.Unmarshal([]byte(hp), &run.Hyperparameters); err != nil {
			return nil, fmt.Errorf("unmarshal hyperparameters of %s: %w", run.ID, err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// getRun laedt das gespeicherte Dokument
func (db *database) getRun(id string) (*api.ExportDocument, error) {
	var body string
	err := db.conn.QueryRow(`SELECT document FROM runs WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	} else if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	var doc api.ExportDocument
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal run %s: %w", id, err)
	}
	return &doc, nil
}

// deleteRun entfernt einen Run
func (db *database) deleteRun(id string) error {
	res, err := db.conn.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
