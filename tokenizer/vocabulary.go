// vocabulary.go - Feste Zeichen-Vokabel
//
// Enthaelt:
// - Spezial-Token (<pad>, <bos>, <eos>, <mask>)
// - Abbildung druckbarer ASCII-Zeichen auf Token-IDs
// - Class: Zeichenklassen fuer die Darstellung
package tokenizer

import "unicode"

// Reservierte IDs, die Reihenfolge ist Teil des Formats
const (
	PadID = iota
	BOSID
	EOSID
	MaskID

	numSpecial
)

const (
	firstChar = ' '
	lastChar  = '~'
)

// VocabSize ist die Groesse der festen Vokabel: 4 Spezial-Token plus ASCII 0x20..0x7E
const VocabSize = numSpecial + int(lastChar-firstChar) + 1

var specials = [numSpecial]string{"<pad>", "<bos>", "<eos>", "<mask>"}

// Class beschreibt die Zeichenklasse eines Tokens
type Class string

const (
	ClassLetter      Class = "letter"
	ClassDigit       Class = "digit"
	ClassPunctuation Class = "punctuation"
	ClassSpace       Class = "space"
	ClassSpecial     Class = "special"
)

// IsSpecial meldet, ob id eines der reservierten Token ist
func IsSpecial(id int) bool {
	return id >= 0 && id < numSpecial
}

// lookup bildet ein Zeichen auf seine ID ab
func lookup(r rune) (int, bool) {
	if r < firstChar || r > lastChar {
		return 0, false
	}
	return numSpecial + int(r-firstChar), true
}

// Classify ordnet ein Token einer Zeichenklasse zu.
// Ungueltige IDs werden wie Spezial-Token behandelt.
func Classify(id int) Class {
	if id < numSpecial || id >= VocabSize {
		return ClassSpecial
	}

	r := firstChar + rune(id-numSpecial)
	switch {
	case r == ' ':
		return ClassSpace
	case unicode.IsLetter(r):
		return ClassLetter
	case unicode.IsDigit(r):
		return ClassDigit
	default:
		return ClassPunctuation
	}
}
