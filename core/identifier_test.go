package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var invisibleSamples = []rune{
	0x0009, // CHARACTER TABULATION
	0x0020, // SPACE
	0x00A0, // NO-BREAK SPACE
	0x00AD, // SOFT HYPHEN
	0x034F, // COMBINING GRAPHEME JOINER
	0x115F, // HANGUL CHOSEONG FILLER
	0x1160, // HANGUL JUNGSEONG FILLER
	0x180E, // MONGOLIAN VOWEL SEPARATOR
	0x200B, // ZERO WIDTH SPACE
	0x200C, // ZERO WIDTH NON-JOINER
	0x200D, // ZERO WIDTH JOINER
	0x200E, // LEFT-TO-RIGHT MARK
	0x202F, // NARROW NO-BREAK SPACE
	0x2060, // WORD JOINER
	0x2063, // INVISIBLE SEPARATOR
	0x2800, // BRAILLE PATTERN BLANK
	0x3000, // IDEOGRAPHIC SPACE
	0x3164, // HANGUL FILLER
	0xFEFF, // ZERO WIDTH NO-BREAK SPACE
	0xFFA0, // HALFWIDTH HANGUL FILLER
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("foo-bar-qux"))
	assert.NoError(t, ValidateIdentifier("mock-namespace"))
	assert.NoError(t, ValidateIdentifier("pkg2"))

	// Unicode letters are fine within a single script.
	assert.NoError(t, ValidateIdentifier("日本語の名前"))

	// Too short.
	assert.Error(t, ValidateIdentifier(""))
	assert.Error(t, ValidateIdentifier("ab"))

	// Must start with a letter.
	assert.Error(t, ValidateIdentifier("0x1fc770ac21067a04f83101ebf19a670db9e3eb21"))
	assert.Error(t, ValidateIdentifier("-abc"))

	// Punctuation denied, except hyphen.
	assert.Error(t, ValidateIdentifier("foo.bar"))
	assert.Error(t, ValidateIdentifier("foo!bar"))
	assert.Error(t, ValidateIdentifier("foo_bar"))

	// Control characters denied.
	assert.Error(t, ValidateIdentifier("foo\rbar"))
	assert.Error(t, ValidateIdentifier("foo\x00bar"))

	// Invisible codepoints denied.
	for _, r := range invisibleSamples {
		assert.Error(t, ValidateIdentifier("foo"+string(r)+"bar"), "U+%04X accepted", r)
	}

	// Emoji denied.
	assert.Error(t, ValidateIdentifier("abc❤️"))
	assert.Error(t, ValidateIdentifier("abc🎉"))

	// NFKC-unstable codepoints denied (micro sign folds to Greek mu).
	assert.Error(t, ValidateIdentifier("abµ"))

	// Mixed scripts denied (Cyrillic С mixed with Latin).
	assert.Error(t, ValidateIdentifier("Сirсlе"))
}

func TestSkeletonConfusables(t *testing.T) {
	// Latin paypal and its Cyrillic-а spoof share a skeleton.
	spoofed := "pаypal"
	require.NotEqual(t, "paypal", spoofed)
	assert.Equal(t, Skeleton("paypal"), Skeleton(spoofed))

	assert.NotEqual(t, Skeleton("paypal"), Skeleton("paypa1-x"))
}
