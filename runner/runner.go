// Package runner - Isolierter Worker fuer Forward-Paesse
//
// Ein Worker besitzt genau eine Goroutine, einen Gewichts-Cache und einen
// Slot fuer einen laufenden Pass. Anfragen kommen ueber Submit herein, jede
// Anfrage bekommt genau eine Antwort-Nachricht. Laeuft bereits ein Pass, wird
// die neue Anfrage sofort mit ErrBusy abgelehnt; es gibt keine Warteschlange.
//
// Terminate bricht einen laufenden Pass ab. Danach wird keine Nachricht mehr
// zugestellt: offene Antwort-Kanaele werden ohne Wert geschlossen.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/neivs/llmsandbox/api"
	"github.com/neivs/llmsandbox/model"
)

// Result ist die einzige Nachricht zu einer Anfrage: entweder Response oder Err
type Result struct {
	Response *api.ForwardResponse
	Err      error
}

type job struct {
	req    *api.ForwardRequest
	result chan Result
}

// Worker fuehrt hoechstens einen Pass gleichzeitig aus
type Worker struct {
	ctx    context.Context //nolint:containedctx
	cancel context.CancelFunc

	// slot ist der einzige Platz fuer einen laufenden Pass
	slot *semaphore.Weighted
	jobs chan *job
	done chan struct{}

	// mu schuetzt terminated und die Zustellung von Ergebnissen
	mu         sync.Mutex
	terminated bool

	// cache wird nur von der Worker-Goroutine benutzt
	cache *model.WeightCache
}

// NewWorker startet einen Worker mit einem leeren Cache fuer cacheSize Gewichts-Sets
func NewWorker(cacheSize int) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		ctx:    ctx,
		cancel: cancel,
		slot:   semaphore.NewWeighted(1),
		jobs:   make(chan *job, 1),
		done:   make(chan struct{}),
		cache:  model.NewWeightCache(cacheSize),
	}

	go w.loop()
	return w
}

// Submit gibt req an den Worker und kehrt sofort zurueck.
// Der Kanal liefert genau ein Result, ausser der Worker wird vorher beendet;
// dann wird er ohne Wert geschlossen.
func (w *Worker) Submit(req *api.ForwardRequest) <-chan Result {
	result := make(chan Result, 1)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.terminated {
		close(result)
		return result
	}

	if !w.slot.TryAcquire(1) {
		slog.Info("rejecting forward request, worker busy", "seed", req.Seed)
		result <- Result{Err: ErrBusy}
		close(result)
		return result
	}

	// jobs hat Platz fuer genau den einen Slot, das Senden blockiert nie
	w.jobs <- &job{req: req, result: result}
	return result
}

// Run ist Submit mit Warten auf das Ergebnis
func (w *Worker) Run(ctx context.Context, req *api.ForwardRequest) (*api.ForwardResponse, error) {
	select {
	case res, ok := <-w.Submit(req):
		if !ok {
			return nil, ErrTerminated
		}
		return res.Response, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Terminate bricht einen laufenden Pass ab und beendet den Worker.
// Weitere Aufrufe sind wirkungslos.
func (w *Worker) Terminate() {
	w.mu.Lock()
	if w.terminated {
		w.mu.Unlock()
		return
	}
	w.terminated = true
	w.cancel()
	w.mu.Unlock()

	<-w.done
	slog.Debug("worker terminated")
}

// Terminated meldet, ob Terminate aufgerufen wurde
func (w *Worker) Terminated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.terminated
}

func (w *Worker) loop() {
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case j := <-w.jobs:
			w.handle(j)
		}
	}
}

// drain schliesst Kanaele von Anfragen, die nicht mehr gestartet werden
func (w *Worker) drain() {
	for {
		select {
		case j := <-w.jobs:
			close(j.result)
		default:
			return
		}
	}
}

func (w *Worker) handle(j *job) {
	start := time.Now()
	hp := model.Hyperparameters(j.req.Hyperparameters)
	slog.Debug("forward pass started", "seed", j.req.Seed, "hyperparameters", hp, "causal", j.req.Causal)

	resp, err := execute(w.ctx, w.cache, j.req)
	if resp != nil {
		resp.Duration = time.Since(start)
	}

	// der Slot wird vor der Zustellung frei, damit der Empfaenger sofort erneut senden kann
	w.slot.Release(1)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.terminated {
		slog.Debug("dropping result of terminated worker", "seed", j.req.Seed)
		close(j.result)
		return
	}

	if err != nil {
		slog.Debug("forward pass failed", "seed", j.req.Seed, "error", err, "duration", time.Since(start))
		j.result <- Result{Err: err}
	} else {
		hits, misses := w.cache.Stats()
		slog.Debug("forward pass finished", "seed", j.req.Seed, "duration", time.Since(start), "cache_hits", hits, "cache_misses", misses, "cached_sets", w.cache.Len())
		j.result <- Result{Response: resp}
	}
	close(j.result)
}
