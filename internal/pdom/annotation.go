package pdom

import (
	"fmt"

	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/sema"
)

// AnnotationCodec packs the annotations of a binding into one byte. Bit
// positions are part of the store format: a codec is fixed to the format
// version that introduced it and its offsets never change.
type AnnotationCodec interface {
	Version() uint32
	Encode(a sema.Annotations) byte
	Decode(b byte) sema.Annotations
}

// AnnotationsV1 is the six-bit layout of format version 1. It has no
// no-return flag.
type AnnotationsV1 struct{}

const (
	v1Static   = 0
	v1Extern   = 1
	v1Auto     = 2
	v1Register = 3
	v1Inline   = 4
	v1Varargs  = 5
)

func (AnnotationsV1) Version() uint32 { return database.VersionLegacy }

func (AnnotationsV1) Encode(a sema.Annotations) byte {
	var b byte
	b |= bit(a.Static, v1Static)
	b |= bit(a.Extern, v1Extern)
	b |= bit(a.Auto, v1Auto)
	b |= bit(a.Register, v1Register)
	b |= bit(a.Inline, v1Inline)
	b |= bit(a.Varargs, v1Varargs)
	return b
}

func (AnnotationsV1) Decode(b byte) sema.Annotations {
	return sema.Annotations{
		Static:   isSet(b, v1Static),
		Extern:   isSet(b, v1Extern),
		Auto:     isSet(b, v1Auto),
		Register: isSet(b, v1Register),
		Inline:   isSet(b, v1Inline),
		Varargs:  isSet(b, v1Varargs),
	}
}

// AnnotationsV2 is the seven-bit layout of format version 2.
type AnnotationsV2 struct{}

const (
	v2Extern   = 0
	v2Static   = 1
	v2Inline   = 2
	v2Varargs  = 3
	v2NoReturn = 4
	v2Register = 5
	v2Auto     = 6
)

func (AnnotationsV2) Version() uint32 { return database.CurrentVersion }

func (AnnotationsV2) Encode(a sema.Annotations) byte {
	var b byte
	b |= bit(a.Extern, v2Extern)
	b |= bit(a.Static, v2Static)
	b |= bit(a.Inline, v2Inline)
	b |= bit(a.Varargs, v2Varargs)
	b |= bit(a.NoReturn, v2NoReturn)
	b |= bit(a.Register, v2Register)
	b |= bit(a.Auto, v2Auto)
	return b
}

func (AnnotationsV2) Decode(b byte) sema.Annotations {
	return sema.Annotations{
		Extern:   isSet(b, v2Extern),
		Static:   isSet(b, v2Static),
		Inline:   isSet(b, v2Inline),
		Varargs:  isSet(b, v2Varargs),
		NoReturn: isSet(b, v2NoReturn),
		Register: isSet(b, v2Register),
		Auto:     isSet(b, v2Auto),
	}
}

// AnnotationCodecFor returns the codec used by stores of the given format
// version.
func AnnotationCodecFor(version uint32) (AnnotationCodec, error) {
	switch version {
	case database.VersionLegacy:
		return AnnotationsV1{}, nil
	case database.CurrentVersion:
		return AnnotationsV2{}, nil
	}
	return nil, fmt.Errorf("annotation codec: %w: %d", database.ErrVersionMismatch, version)
}

// CV qualifier bits, shared by every format version.
const (
	cvConst    = 0
	cvVolatile = 1
	cvRestrict = 2
)

// EncodeCV packs const/volatile/restrict qualifiers.
func EncodeCV(isConst, isVolatile, isRestrict bool) byte {
	return bit(isConst, cvConst) | bit(isVolatile, cvVolatile) | bit(isRestrict, cvRestrict)
}

// DecodeCV unpacks EncodeCV.
func DecodeCV(b byte) (isConst, isVolatile, isRestrict bool) {
	return isSet(b, cvConst), isSet(b, cvVolatile), isSet(b, cvRestrict)
}

func bit(v bool, off uint) byte {
	if v {
		return 1 << off
	}
	return 0
}

func isSet(b byte, off uint) bool {
	return b&(1<<off) != 0
}
