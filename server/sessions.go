// Package server - Session-Verwaltung
//
// Diese Datei enthaelt:
// - Sessions: Registry aller Sessions mit je einem eigenen Worker
// - sessionRef: Referenz auf eine Session mit Keep-Alive-Timer
//
// Eine Session ohne laufende Anfrage wird nach ihrer Keep-Alive-Dauer
// abgebaut; ihr Worker wird beendet und der Cache verworfen.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neivs/llmsandbox/api"
	"github.com/neivs/llmsandbox/runner"
)

// defaultSessionID ist die geteilte Session von POST /api/forward
const defaultSessionID = "default"

var (
	// ErrMaxSessions wird zurueckgegeben, wenn SANDBOX_MAX_SESSIONS erreicht ist
	ErrMaxSessions = errors.New("server busy, maximum number of sessions reached")

	errSessionNotFound = errors.New("session not found")
)

// sessionRef haelt eine Referenz auf eine Session
type sessionRef struct {
	refMu    sync.Mutex
	refCount uint // Verhindert Abbau wenn > 0

	id     string
	worker *runner.Worker

	sessionDuration time.Duration
	expireTimer     *time.Timer
	expiresAt       time.Time
}

// LogValue formatiert die Session fuer Logging
func (ref *sessionRef) LogValue() slog.Value {
	if ref == nil {
		return slog.StringValue("nil")
	}
	return slog.GroupValue(
		slog.String("id", ref.id),
		slog.Duration("keep_alive", ref.sessionDuration),
		slog.Time("expires_at", ref.expiresAt),
	)
}

// Sessions verwaltet alle Sessions des Servers
type Sessions struct {
	mu     sync.Mutex
	loaded map[string]*sessionRef

	maxSessions uint
	cacheSize   int
	keepAlive   time.Duration

	// newWorkerFn wird in Tests ersetzt
	newWorkerFn func(cacheSize int) *runner.Worker
}

// NewSessions erstellt eine leere Registry
func NewSessions(maxSessions uint, cacheSize int, keepAlive time.Duration) *Sessions {
	return &Sessions{
		loaded:      make(map[string]*sessionRef),
		maxSessions: maxSessions,
		cacheSize:   cacheSize,
		keepAlive:   keepAlive,
		newWorkerFn: runner.NewWorker,
	}
}

// Create startet eine neue Session mit eigenem Worker
func (s *Sessions) Create(keepAlive *api.Duration) (*sessionRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, err := s.createLocked(uuid.NewString(), keepAlive)
	if err != nil {
		return nil, err
	}

	ref.refMu.Lock()
	s.scheduleExpiry(ref)
	ref.refMu.Unlock()
	return ref, nil
}

// createLocked legt eine Session an. s.mu muss bereits gehalten werden!
func (s *Sessions) createLocked(id string, keepAlive *api.Duration) (*sessionRef, error) {
	if s.maxSessions > 0 && uint(len(s.loaded)) >= s.maxSessions {
		return nil, fmt.Errorf("%w (%d)", ErrMaxSessions, s.maxSessions)
	}

	ref := &sessionRef{
		id:              id,
		worker:          s.newWorkerFn(s.cacheSize),
		sessionDuration: s.keepAlive,
	}
	if keepAlive != nil {
		ref.sessionDuration = keepAlive.Duration
	}

	s.loaded[id] = ref
	slog.Debug("session created", "session", ref)
	return ref, nil
}

// scheduleExpiry startet den Keep-Alive-Timer. refMu muss bereits gehalten werden!
func (s *Sessions) scheduleExpiry(ref *sessionRef) {
	if ref.expireTimer != nil {
		ref.expireTimer.Stop()
	}

	ref.expiresAt = time.Now().Add(ref.sessionDuration)
	ref.expireTimer = time.AfterFunc(ref.sessionDuration, func() {
		if s.remove(ref.id, ref) {
			slog.Debug("session expired", "session", ref)
		}
	})
}

// acquire liefert die Session id und haelt sie fuer eine Anfrage am Leben.
// Die geteilte Default-Session wird bei Bedarf angelegt. refCount steigt
// unter s.mu; remove prueft ihn unter demselben Lock.
func (s *Sessions) acquire(id string) (*sessionRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.loaded[id]
	if !ok && id == defaultSessionID {
		var err error
		if ref, err = s.createLocked(id, nil); err != nil {
			return nil, err
		}
		ok = true
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", errSessionNotFound, id)
	}

	ref.refMu.Lock()
	defer ref.refMu.Unlock()
	ref.refCount++
	if ref.expireTimer != nil {
		ref.expireTimer.Stop()
		ref.expireTimer = nil
	}
	return ref, nil
}

// release gibt eine Anfrage frei; die letzte startet den Keep-Alive-Timer neu
func (s *Sessions) release(ref *sessionRef) {
	ref.refMu.Lock()
	defer ref.refMu.Unlock()

	ref.refCount--
	if ref.refCount == 0 && !ref.worker.Terminated() {
		s.scheduleExpiry(ref)
	}
}

// Delete baut eine Session sofort ab
func (s *Sessions) Delete(id string) error {
	if !s.remove(id, nil) {
		return fmt.Errorf("%w: %s", errSessionNotFound, id)
	}
	return nil
}

// remove entfernt id, wenn sie (noch) auf want zeigt und keine Anfrage haelt.
// want == nil entfernt immer, auch mit laufender Anfrage.
func (s *Sessions) remove(id string, want *sessionRef) bool {
	s.mu.Lock()
	ref, ok := s.loaded[id]
	if !ok || (want != nil && ref != want) {
		s.mu.Unlock()
		return false
	}

	ref.refMu.Lock()
	if want != nil && ref.refCount > 0 {
		ref.refMu.Unlock()
		s.mu.Unlock()
		return false
	}
	delete(s.loaded, id)
	if ref.expireTimer != nil {
		ref.expireTimer.Stop()
		ref.expireTimer = nil
	}
	ref.refMu.Unlock()
	s.mu.Unlock()

	ref.worker.Terminate()
	slog.Debug("session removed", "session", ref)
	return true
}

// Len gibt die Anzahl aktiver Sessions zurueck
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loaded)
}

// Close beendet alle Sessions
func (s *Sessions) Close() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.loaded))
	for id := range s.loaded {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.remove(id, nil)
	}
}
