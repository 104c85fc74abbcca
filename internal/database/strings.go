package database

import (
	"encoding/binary"
	"fmt"
	"unicode"
	"unicode/utf16"
)

const (
	offStringLength = 0
	offStringChars  = 4
)

// String is a length-prefixed string record. A positive length means one byte
// per character (Latin-1); a negative length means UTF-16 code units.
type String struct {
	db  *Database
	rec Ptr
}

// NewString allocates a string record holding s.
func NewString(db *Database, s string) (*String, error) {
	runes := []rune(s)
	narrow := true
	for _, r := range runes {
		if r > 0xFF {
			narrow = false
			break
		}
	}

	var (
		length int32
		buf    []byte
	)
	if narrow {
		length = int32(len(runes))
		buf = make([]byte, offStringChars+len(runes))
		for i, r := range runes {
			buf[offStringChars+i] = byte(r)
		}
	} else {
		units := utf16.Encode(runes)
		length = -int32(len(units))
		buf = make([]byte, offStringChars+2*len(units))
		for i, u := range units {
			binary.LittleEndian.PutUint16(buf[offStringChars+2*i:], u)
		}
	}
	binary.LittleEndian.PutUint32(buf[offStringLength:], uint32(length))

	rec, err := db.Malloc(len(buf))
	if err != nil {
		return nil, err
	}
	if err := db.PutBytes(rec, buf); err != nil {
		return nil, err
	}
	return &String{db: db, rec: rec}, nil
}

// GetString wraps an existing string record.
func GetString(db *Database, rec Ptr) *String {
	return &String{db: db, rec: rec}
}

// Record returns the string's address.
func (s *String) Record() Ptr { return s.rec }

// String decodes the stored characters.
func (s *String) String() (string, error) {
	length, err := s.db.GetInt(s.rec + offStringLength)
	if err != nil {
		return "", err
	}
	if length >= 0 {
		b, err := s.db.GetBytes(s.rec+offStringChars, int(length))
		if err != nil {
			return "", err
		}
		runes := make([]rune, len(b))
		for i, c := range b {
			runes[i] = rune(c)
		}
		return string(runes), nil
	}
	n := int(-length)
	b, err := s.db.GetBytes(s.rec+offStringChars, 2*n)
	if err != nil {
		return "", err
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(units)), nil
}

// Delete frees the string record.
func (s *String) Delete() error {
	if s.rec == 0 {
		return nil
	}
	if err := s.db.Free(s.rec); err != nil {
		return fmt.Errorf("delete string: %w", err)
	}
	return nil
}

// Compare compares the stored string against other.
func (s *String) Compare(other string, caseSensitive bool) (int, error) {
	v, err := s.String()
	if err != nil {
		return 0, err
	}
	return CompareChars(v, other, caseSensitive), nil
}

// CompareCompatible compares the stored string against other in index order.
func (s *String) CompareCompatible(other string) (int, error) {
	v, err := s.String()
	if err != nil {
		return 0, err
	}
	return CompareCompatible(v, other), nil
}

// CompareChars compares two strings rune by rune, optionally ignoring case.
func CompareChars(a, b string, caseSensitive bool) int {
	ra, rb := []rune(a), []rune(b)
	n := min(len(ra), len(rb))
	for i := 0; i < n; i++ {
		ca, cb := ra[i], rb[i]
		if !caseSensitive {
			ca, cb = unicode.ToLower(ca), unicode.ToLower(cb)
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ra) < len(rb):
		return -1
	case len(ra) > len(rb):
		return 1
	}
	return 0
}

// CompareCompatible orders strings case-insensitively and breaks ties
// case-sensitively. It is the total order used by name indexes: all strings
// that are equal ignoring case sit next to each other.
func CompareCompatible(a, b string) int {
	if c := CompareChars(a, b, false); c != 0 {
		return c
	}
	return CompareChars(a, b, true)
}

// ComparePrefix returns 0 when name starts with prefix (ignoring case) and
// otherwise orders name relative to the prefix range, consistent with
// CompareCompatible.
func ComparePrefix(name, prefix string) int {
	rn, rp := []rune(name), []rune(prefix)
	if len(rn) > len(rp) {
		rn = rn[:len(rp)]
	}
	return CompareChars(string(rn), string(rp), false)
}
