// tokenizer.go - Zeichen-Tokenizer
//
// Enthaelt:
// - Encode: Text -> Token-Folge fester Laenge (<bos> ... <eos> <pad>...)
// - Decode/DecodeAll: Token-ID -> Anzeigetext
package tokenizer

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrUnsupportedCharacter wird zurueckgegeben, wenn der Text ein Zeichen ausserhalb der Vokabel enthaelt
	ErrUnsupportedCharacter = errors.New("unsupported character")

	// ErrUnknownToken wird zurueckgegeben, wenn eine ID ausserhalb der Vokabel liegt
	ErrUnknownToken = errors.New("unknown token id")

	// ErrSequenceTooShort wird zurueckgegeben, wenn seqLen keinen Platz fuer <bos> und <eos> laesst
	ErrSequenceTooShort = errors.New("sequence length too short")
)

// Encode wandelt text in genau seqLen Token um.
// Das erste Token ist immer <bos>, danach folgen die ersten seqLen-2 Zeichen,
// dann <eos> und der Rest wird mit <pad> aufgefuellt.
// Jedes Zeichen des Textes wird geprueft, auch wenn es abgeschnitten wird.
func Encode(text string, seqLen int) ([]int, error) {
	if seqLen < 2 {
		return nil, fmt.Errorf("%w: %d, need at least 2", ErrSequenceTooShort, seqLen)
	}

	capacity := seqLen - 2
	tokens := make([]int, 0, seqLen)
	tokens = append(tokens, BOSID)

	for offset, r := range text {
		if r == utf8.RuneError {
			return nil, fmt.Errorf("%w: invalid UTF-8 at byte %d", ErrUnsupportedCharacter, offset)
		}

		id, ok := lookup(r)
		if !ok {
			return nil, fmt.Errorf("%w: %q at byte %d", ErrUnsupportedCharacter, r, offset)
		}

		if len(tokens)-1 < capacity {
			tokens = append(tokens, id)
		}
	}

	tokens = append(tokens, EOSID)
	for len(tokens) < seqLen {
		tokens = append(tokens, PadID)
	}

	return tokens, nil
}

// Decode gibt die Anzeige eines einzelnen Tokens zurueck
func Decode(id int) (string, error) {
	switch {
	case id < 0 || id >= VocabSize:
		return "", fmt.Errorf("%w: %d (vocab size %d)", ErrUnknownToken, id, VocabSize)
	case id < numSpecial:
		return specials[id], nil
	default:
		return string(firstChar + rune(id-numSpecial)), nil
	}
}

// DecodeAll dekodiert eine Token-Folge elementweise
func DecodeAll(ids []int) ([]string, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		s, err := Decode(id)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

// LastContent gibt die Position des letzten Nicht-<pad>-Tokens zurueck, -1 wenn keines existiert
func LastContent(ids []int) int {
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] != PadID {
			return i
		}
	}
	return -1
}
