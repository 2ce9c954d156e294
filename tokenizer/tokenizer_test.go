package tokenizer

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestVocabSize(t *testing.T) {
	if VocabSize != 99 {
		t.Fatalf("VocabSize = %d, erwartet 99", VocabSize)
	}
}

func TestEncode(t *testing.T) {
	a, _ := lookup('A')
	i, _ := lookup('I')

	cases := []struct {
		name   string
		text   string
		seqLen int
		want   []int
	}{
		{"leer", "", 4, []int{BOSID, EOSID, PadID, PadID}},
		{"kurz", "AI", 8, []int{BOSID, a, i, EOSID, PadID, PadID, PadID, PadID}},
		{"exakt", "AI", 4, []int{BOSID, a, i, EOSID}},
		{"abgeschnitten", "AIAI", 4, []int{BOSID, a, i, EOSID}},
		{"minimal", "AI", 2, []int{BOSID, EOSID}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.text, tt.seqLen)
			if err != nil {
				t.Fatalf("Encode() Fehler: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Encode() = %v, erwartet %v", got, tt.want)
			}
		})
	}
}

func TestEncodeLengthInvariant(t *testing.T) {
	text := strings.Repeat("The quick brown fox. ", 10)
	for seqLen := 2; seqLen <= 128; seqLen++ {
		got, err := Encode(text, seqLen)
		if err != nil {
			t.Fatalf("seqLen %d: %v", seqLen, err)
		}
		if len(got) != seqLen {
			t.Fatalf("seqLen %d: Laenge %d", seqLen, len(got))
		}
		if got[0] != BOSID {
			t.Errorf("seqLen %d: erstes Token %d, erwartet <bos>", seqLen, got[0])
		}
		if last := LastContent(got); got[last] != EOSID {
			t.Errorf("seqLen %d: letztes Nicht-Pad-Token %d, erwartet <eos>", seqLen, got[last])
		}
	}
}

func TestEncodeUnsupported(t *testing.T) {
	cases := []string{"héllo", "tab\there", "new\nline", "emoji 🙂"}

	for _, text := range cases {
		t.Run(text, func(t *testing.T) {
			_, err := Encode(text, 32)
			if !errors.Is(err, ErrUnsupportedCharacter) {
				t.Errorf("Encode(%q) Fehler = %v, erwartet ErrUnsupportedCharacter", text, err)
			}
		})
	}

	// auch abgeschnittene Zeichen werden geprueft
	if _, err := Encode("abé", 3); !errors.Is(err, ErrUnsupportedCharacter) {
		t.Errorf("abgeschnittenes Zeichen nicht geprueft: %v", err)
	}
}

func TestEncodeTooShort(t *testing.T) {
	for _, n := range []int{-1, 0, 1} {
		if _, err := Encode("x", n); !errors.Is(err, ErrSequenceTooShort) {
			t.Errorf("Encode(seqLen=%d) Fehler = %v, erwartet ErrSequenceTooShort", n, err)
		}
	}
}

func TestDecode(t *testing.T) {
	for id := range VocabSize {
		s, err := Decode(id)
		if err != nil {
			t.Fatalf("Decode(%d): %v", id, err)
		}
		if IsSpecial(id) {
			continue
		}
		back, err := Encode(s, 3)
		if err != nil {
			t.Fatalf("Encode(%q): %v", s, err)
		}
		if back[1] != id {
			t.Errorf("Roundtrip %d -> %q -> %d", id, s, back[1])
		}
	}

	for _, id := range []int{-1, VocabSize} {
		if _, err := Decode(id); !errors.Is(err, ErrUnknownToken) {
			t.Errorf("Decode(%d) Fehler = %v, erwartet ErrUnknownToken", id, err)
		}
	}

	got, err := DecodeAll([]int{BOSID, EOSID, PadID, MaskID})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"<bos>", "<eos>", "<pad>", "<mask>"}; !slices.Equal(got, want) {
		t.Errorf("DecodeAll() = %v, erwartet %v", got, want)
	}
}

func TestClassify(t *testing.T) {
	id := func(r rune) int {
		i, _ := lookup(r)
		return i
	}

	cases := map[int]Class{
		id('a'): ClassLetter,
		id('Z'): ClassLetter,
		id('7'): ClassDigit,
		id('?'): ClassPunctuation,
		id('~'): ClassPunctuation,
		id(' '): ClassSpace,
		BOSID:   ClassSpecial,
		MaskID:  ClassSpecial,
		-3:      ClassSpecial,
	}

	for in, want := range cases {
		if got := Classify(in); got != want {
			t.Errorf("Classify(%d) = %s, erwartet %s", in, got, want)
		}
	}
}
