package pdom

import (
	"testing"

	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/sema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnotationCodecs_RoundTrip(t *testing.T) {
	t.Parallel()

	all := sema.Annotations{Static: true, Extern: true, Auto: true, Register: true, Inline: true, Varargs: true}
	cases := []sema.Annotations{
		{},
		{Static: true},
		{Extern: true, Inline: true},
		{Register: true, Auto: true},
		all,
	}
	for _, codec := range []AnnotationCodec{AnnotationsV1{}, AnnotationsV2{}} {
		for _, a := range cases {
			assert.Equal(t, a, codec.Decode(codec.Encode(a)), "version %d: %+v", codec.Version(), a)
		}
	}

	withNoReturn := all
	withNoReturn.NoReturn = true
	v2 := AnnotationsV2{}
	assert.Equal(t, withNoReturn, v2.Decode(v2.Encode(withNoReturn)))

	v1 := AnnotationsV1{}
	assert.Equal(t, all, v1.Decode(v1.Encode(withNoReturn)), "version 1 has no no-return bit")
}

func TestAnnotationCodecs_LayoutsDiffer(t *testing.T) {
	t.Parallel()
	static := sema.Annotations{Static: true}
	assert.Equal(t, byte(1<<0), AnnotationsV1{}.Encode(static))
	assert.Equal(t, byte(1<<1), AnnotationsV2{}.Encode(static))

	// An extern byte from a version 1 store reads as static under version 2.
	b := AnnotationsV1{}.Encode(sema.Annotations{Extern: true})
	assert.True(t, AnnotationsV2{}.Decode(b).Static)
	assert.Equal(t, byte(1<<6), AnnotationsV2{}.Encode(sema.Annotations{Auto: true}))
}

func TestAnnotationCodecFor(t *testing.T) {
	t.Parallel()

	c, err := AnnotationCodecFor(database.VersionLegacy)
	require.NoError(t, err)
	assert.IsType(t, AnnotationsV1{}, c)

	c, err = AnnotationCodecFor(database.CurrentVersion)
	require.NoError(t, err)
	assert.Equal(t, database.CurrentVersion, c.Version())

	_, err = AnnotationCodecFor(99)
	assert.ErrorIs(t, err, database.ErrVersionMismatch)
}

func TestCV_RoundTrip(t *testing.T) {
	t.Parallel()
	for i := 0; i < 8; i++ {
		c, v, r := i&1 != 0, i&2 != 0, i&4 != 0
		gc, gv, gr := DecodeCV(EncodeCV(c, v, r))
		assert.Equal(t, []bool{c, v, r}, []bool{gc, gv, gr})
		assert.Equal(t, byte(i), EncodeCV(c, v, r))
	}
}
