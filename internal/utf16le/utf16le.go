// Package utf16le converts between Go strings and the UTF-16LE byte strings
// used for every name on the SMB2 wire, optionally remapping characters that
// are reserved on Windows file systems.
package utf16le

import (
	"encoding/binary"
	"unicode/utf16"
)

var le = binary.LittleEndian

// MapChars selects how reserved characters in file names are remapped.
type MapChars int

const (
	MapCharsNone MapChars = iota
	// Services for Mac, samba's 'mapposix'.
	MapCharsSFM
	// Services for Unix, samba's 'mapchars'.
	MapCharsSFU
)

const (
	SFMDoubleQuote uint16 = 0xF020
	SFMAsterisk    uint16 = 0xF021
	SFMColon       uint16 = 0xF022
	SFMLessThan    uint16 = 0xF023
	SFMGreaterThan uint16 = 0xF024
	SFMQuestion    uint16 = 0xF025
	SFMSlash       uint16 = 0xF026
	SFMPipe        uint16 = 0xF027
	SFMSpace       uint16 = 0xF028
	SFMPeriod      uint16 = 0xF029
)

const sfuBase uint16 = 0xF000

var sfmReserved = map[uint16]uint16{
	'"': SFMDoubleQuote,
	'*': SFMAsterisk,
	':': SFMColon,
	'<': SFMLessThan,
	'>': SFMGreaterThan,
	'?': SFMQuestion,
	'|': SFMPipe,
}

// EncodedLen returns the number of bytes s occupies once encoded.
func EncodedLen(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 && r <= '\U0010FFFF' {
			n += 4
		} else {
			n += 2
		}
	}
	return n
}

// Encode returns s as UTF-16LE, or nil for the empty string.
func Encode(s string, mc MapChars) []byte {
	if len(s) == 0 {
		return nil
	}
	bs := make([]byte, EncodedLen(s))
	EncodeTo(bs, s, mc)
	return bs
}

// EncodeTo writes s into dst, which must hold EncodedLen(s) bytes, and
// returns the number of bytes written.
func EncodeTo(dst []byte, s string, mc MapChars) int {
	ws := utf16.Encode([]rune(s))
	last := len(ws) - 1
	for i, w := range ws {
		switch mc {
		case MapCharsSFM:
			w = toSFM(w, i == last)
		case MapCharsSFU:
			w = toSFU(w)
		}
		le.PutUint16(dst[2*i:], w)
	}
	return 2 * len(ws)
}

// Decode converts bs back into a string, undoing the mapping mc and
// dropping a trailing NUL.
func Decode(bs []byte, mc MapChars) string {
	if len(bs) < 2 {
		return ""
	}
	ws := make([]uint16, len(bs)/2)
	for i := range ws {
		w := le.Uint16(bs[2*i:])
		switch mc {
		case MapCharsSFM:
			w = fromSFM(w)
		case MapCharsSFU:
			w = fromSFU(w)
		}
		ws[i] = w
	}
	if ws[len(ws)-1] == 0 {
		ws = ws[:len(ws)-1]
	}
	return string(utf16.Decode(ws))
}

func toSFM(w uint16, endOfString bool) uint16 {
	if w >= 0x01 && w <= 0x1F {
		return w + sfuBase
	}
	if m, ok := sfmReserved[w]; ok {
		return m
	}
	if endOfString {
		switch w {
		case '.':
			return SFMPeriod
		case ' ':
			return SFMSpace
		}
	}
	return w
}

func fromSFM(w uint16) uint16 {
	if w >= 0xF001 && w <= 0xF01F {
		return w - sfuBase
	}
	switch w {
	case SFMSpace:
		return ' '
	case SFMPeriod:
		return '.'
	}
	for r, m := range sfmReserved {
		if m == w {
			return r
		}
	}
	return w
}

func toSFU(w uint16) uint16 {
	switch w {
	case ':', '*', '?', '<', '>', '|':
		return w + sfuBase
	}
	return w
}

func fromSFU(w uint16) uint16 {
	if w > sfuBase {
		switch r := w - sfuBase; r {
		case ':', '*', '?', '<', '>', '|':
			return r
		}
	}
	return w
}
