// Package store - Run-Historie in SQLite
//
// Die Datenbank wird beim ersten Zugriff geoeffnet. Ids sind UUIDv7, damit
// sie zeitlich sortierbar sind und sich mit einem Praefix abkuerzen lassen.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neivs/llmsandbox/api"
	"github.com/neivs/llmsandbox/envconfig"
)

var (
	ErrNotFound  = errors.New("run not found")
	ErrAmbiguous = errors.New("run id prefix is ambiguous")
)

type Store struct {
	// DBPath ueberschreibt SANDBOX_HISTORY (vor allem fuer Tests)
	DBPath string

	// dbMu schuetzt nur die Initialisierung
	dbMu sync.Mutex
	db   *database
}

func (s *Store) ensureDB() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.db != nil {
		return nil
	}

	dbPath := s.DBPath
	if dbPath == "" {
		dbPath = envconfig.History()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	database, err := newDatabase(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	s.db = database
	return nil
}

// Save vergibt eine neue Id, speichert doc und setzt doc.ID
func (s *Store) Save(doc *api.ExportDocument) error {
	if err := s.ensureDB(); err != nil {
		return err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate id: %w", err)
	}

	doc.ID = id.String()
	if err := s.db.insertRun(doc, time.Now()); err != nil {
		doc.ID = ""
		return err
	}
	return nil
}

// List gibt die gespeicherten Runs zurueck, deren Id mit prefix beginnt
func (s *Store) List(prefix string) ([]api.RunSummary, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	return s.db.listRuns(prefix)
}

// Get laedt einen Run ueber seine Id oder ein eindeutiges Praefix
func (s *Store) Get(idOrPrefix string) (*api.ExportDocument, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}

	if _, err := uuid.Parse(idOrPrefix); err == nil {
		return s.db.getRun(idOrPrefix)
	}

	runs, err := s.db.listRuns(idOrPrefix)
	if err != nil {
		return nil, err
	}

	switch len(runs) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, idOrPrefix)
	case 1:
		return s.db.getRun(runs[0].ID)
	default:
		return nil, fmt.Errorf("%w: %s matches %d runs", ErrAmbiguous, idOrPrefix, len(runs))
	}
}

// Delete entfernt einen Run
func (s *Store) Delete(id string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	return s.db.deleteRun(id)
}

// Close schliesst die Datenbank, falls sie geoeffnet wurde
func (s *Store) Close() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	return err
}
