package core

import (
	"unicode"
	"unicode/utf8"

	"github.com/mtibben/confusables"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/xerrors"
)

// MinIdentifierLength is the minimum codepoint count for a namespace
// or package name.
const MinIdentifierLength = 3

// Codepoints that render as blank but carry letter or symbol categories,
// so the category checks below would not catch them.
var invisibles = map[rune]struct{}{
	0x00AD:  {}, // SOFT HYPHEN
	0x034F:  {}, // COMBINING GRAPHEME JOINER
	0x115F:  {}, // HANGUL CHOSEONG FILLER
	0x1160:  {}, // HANGUL JUNGSEONG FILLER
	0x17B4:  {}, // KHMER VOWEL INHERENT AQ
	0x17B5:  {}, // KHMER VOWEL INHERENT AA
	0x2800:  {}, // BRAILLE PATTERN BLANK
	0x3164:  {}, // HANGUL FILLER
	0xFFA0:  {}, // HALFWIDTH HANGUL FILLER
	0x1D159: {}, // MUSICAL SYMBOL NULL NOTEHEAD
}

// Script mixes tolerated by the single-script restriction. Han combines
// with the scripts listed; every other mix is rejected.
var hanAugmented = map[string]struct{}{
	"Hiragana": {},
	"Katakana": {},
	"Bopomofo": {},
	"Hangul":   {},
}

// ValidateIdentifier checks a candidate namespace or package name
// against the registry naming rules: minimum length, alphabetic first
// codepoint, no control or formatting characters, no punctuation other
// than hyphen, no emoji or invisible codepoints, NFKC-stable codepoints
// only and a single script.
func ValidateIdentifier(s string) error {
	if utf8.RuneCountInString(s) < MinIdentifierLength {
		return xerrors.Errorf("identifier %q: shorter than %d codepoints: %w", s, MinIdentifierLength, ErrBadRequest)
	}

	first := true
	scripts := map[string]struct{}{}
	for _, r := range s {
		if first {
			if !unicode.IsLetter(r) {
				return xerrors.Errorf("identifier %q: first codepoint must be alphabetic: %w", s, ErrBadRequest)
			}
			first = false
		}
		if err := validateRune(s, r); err != nil {
			return err
		}
		if name := scriptOf(r); name != "" {
			scripts[name] = struct{}{}
		}
	}

	if !singleScript(scripts) {
		return xerrors.Errorf("identifier %q: mixed scripts: %w", s, ErrBadRequest)
	}
	return nil
}

func validateRune(s string, r rune) error {
	switch {
	case unicode.IsControl(r):
		return xerrors.Errorf("identifier %q: control character U+%04X: %w", s, r, ErrBadRequest)
	case r == '-':
		return nil
	case r < utf8.RuneSelf && !isASCIIAlnum(r):
		return xerrors.Errorf("identifier %q: punctuation U+%04X: %w", s, r, ErrBadRequest)
	}

	if _, ok := invisibles[r]; ok {
		return xerrors.Errorf("identifier %q: invisible codepoint U+%04X: %w", s, r, ErrBadRequest)
	}

	// Letters, marks and digits only. This removes spaces, symbols
	// (emoji included), punctuation and formatting codepoints.
	if !unicode.IsLetter(r) && !unicode.IsMark(r) && !unicode.IsDigit(r) {
		return xerrors.Errorf("identifier %q: codepoint U+%04X not permitted: %w", s, r, ErrBadRequest)
	}

	// The security profile requires identifiers to be NFKC-stable;
	// compatibility characters such as U+00B5 MICRO SIGN fold to a
	// different codepoint and are rejected.
	if !norm.NFKC.IsNormalString(string(r)) {
		return xerrors.Errorf("identifier %q: codepoint U+%04X is not NFKC-stable: %w", s, r, ErrBadRequest)
	}
	return nil
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// scriptOf resolves the script property of a rune. Common and Inherited
// codepoints return the empty string as they combine with any script.
func scriptOf(r rune) string {
	for name, table := range unicode.Scripts {
		if name == "Common" || name == "Inherited" {
			continue
		}
		if unicode.Is(table, r) {
			return name
		}
	}
	return ""
}

func singleScript(scripts map[string]struct{}) bool {
	if len(scripts) <= 1 {
		return true
	}
	// Allow Han plus its augmenting scripts (Japanese, Chinese and
	// Korean writing systems).
	if _, ok := scripts["Han"]; !ok {
		return false
	}
	for name := range scripts {
		if name == "Han" {
			continue
		}
		if _, ok := hanAugmented[name]; !ok {
			return false
		}
	}
	// Hiragana and Katakana may join Han together, but Bopomofo and
	// Hangul each combine with Han alone.
	_, bopo := scripts["Bopomofo"]
	_, hangul := scripts["Hangul"]
	if bopo && len(scripts) > 2 {
		return false
	}
	if hangul && len(scripts) > 2 {
		return false
	}
	return true
}

// Skeleton computes the Unicode TR39 confusable skeleton of an
// identifier. Database uniqueness constraints are placed on skeletons
// so visually confusable names collide.
func Skeleton(s string) string {
	return confusables.Skeleton(s)
}
