package utf16le

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodingToSFM(t *testing.T) {
	t.Parallel()

	// Expected values are the UTF-8 hex dump of names created through a
	// Linux cifs mount with 'mapposix' and then listed back.
	testData := []struct {
		scenario    string
		input       string
		expectedHex string
	}{
		{scenario: "double quote", input: `a"b`, expectedHex: "61ef80a062"},
		{scenario: "asterisk", input: `a*b`, expectedHex: "61ef80a162"},
		{scenario: "colon", input: "a:b", expectedHex: "61ef80a262"},
		{scenario: "less than", input: "a<b", expectedHex: "61ef80a362"},
		{scenario: "greater than", input: "a>b", expectedHex: "61ef80a462"},
		{scenario: "question", input: "a?b", expectedHex: "61ef80a562"},
		{scenario: "pipe", input: "a|b", expectedHex: "61ef80a762"},
		{scenario: "ends with period", input: "a.", expectedHex: "61ef80a9"},
		{scenario: "end with space", input: "a ", expectedHex: "61ef80a8"},
		{scenario: "0x01 character", input: "a" + string(rune(0x01)) + "b", expectedHex: "61ef808162"},
		{scenario: "0x1f character", input: "a" + string(rune(0x1f)) + "b", expectedHex: "61ef809f62"},
	}

	for _, td := range testData {
		t.Run(td.scenario, func(t *testing.T) {
			encoded := Encode(td.input, MapCharsSFM)
			require.Len(t, encoded, EncodedLen(td.input))

			// decoding without a mapping exposes the private-use code points
			raw := Decode(encoded, MapCharsNone)
			require.Equal(t, td.expectedHex, hex.EncodeToString([]byte(raw)))
		})
	}
}

func TestSFMRoundtrip(t *testing.T) {
	t.Parallel()

	reserved := []rune{'"', '*', ':', '<', '>', '?', '|', ' ', '.'}
	for i := 1; i <= 0x1F; i++ {
		reserved = append(reserved, rune(i))
	}
	for _, c := range reserved {
		in := "a" + string(c) + ".txt"
		require.Equal(t, in, Decode(Encode(in, MapCharsSFM), MapCharsSFM))
	}

	for _, in := range []string{"file.", "file ", ""} {
		require.Equal(t, in, Decode(Encode(in, MapCharsSFM), MapCharsSFM))
	}
}

func TestSFURoundtrip(t *testing.T) {
	t.Parallel()

	for _, c := range []rune{':', '*', '?', '<', '>', '|'} {
		in := "a" + string(c) + "b.txt"

		buf := make([]byte, EncodedLen(in))
		written := EncodeTo(buf, in, MapCharsSFU)
		require.Equal(t, len(buf), written)
		require.NotEqual(t, in, Decode(buf, MapCharsNone))
		require.Equal(t, in, Decode(buf, MapCharsSFU))
	}

	require.Empty(t, Decode(Encode("", MapCharsSFU), MapCharsSFU))
}

func TestPlainEncoding(t *testing.T) {
	t.Parallel()

	require.Nil(t, Encode("", MapCharsNone))
	require.Equal(t, []byte{'a', 0, 'b', 0}, Encode("ab", MapCharsNone))
	require.Equal(t, "ab", Decode([]byte{'a', 0, 'b', 0, 0, 0}, MapCharsNone))

	// surrogate pairs take four bytes
	require.Equal(t, 4, EncodedLen("\U0001F600"))
	require.Equal(t, "\U0001F600", Decode(Encode("\U0001F600", MapCharsNone), MapCharsNone))

	// reserved characters pass through untouched without a mapping
	require.Equal(t, "a:b", Decode(Encode("a:b", MapCharsNone), MapCharsNone))
}
