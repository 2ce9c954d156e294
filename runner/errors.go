// errors.go - Fehler des Workers und ihre Einordnung
package runner

import (
	"errors"

	"github.com/neivs/llmsandbox/api"
	"github.com/neivs/llmsandbox/ml"
	"github.com/neivs/llmsandbox/model"
	"github.com/neivs/llmsandbox/sample"
	"github.com/neivs/llmsandbox/tokenizer"
)

var (
	// ErrBusy wird sofort zurueckgegeben, wenn bereits ein Pass laeuft
	ErrBusy = errors.New("worker busy, a forward pass is already in flight")

	// ErrTerminated wird von Run zurueckgegeben, wenn der Worker beendet wurde
	ErrTerminated = errors.New("worker terminated")
)

// ErrorKind ordnet err einer stabilen Fehlerart zu (api.Kind*)
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidHyperparameters),
		errors.Is(err, sample.ErrInvalidTemperature),
		errors.Is(err, sample.ErrInvalidTopK),
		errors.Is(err, tokenizer.ErrSequenceTooShort),
		errors.Is(err, tokenizer.ErrUnknownToken):
		return api.KindInvalidHyperparameters
	case errors.Is(err, tokenizer.ErrUnsupportedCharacter):
		return api.KindUnsupportedCharacter
	case errors.Is(err, ml.ErrDimensionMismatch):
		return api.KindDimensionMismatch
	case errors.Is(err, ml.ErrNumericalInstability):
		return api.KindNumericalInstability
	case errors.Is(err, ErrBusy):
		return api.KindBusy
	default:
		return api.KindInternal
	}
}
