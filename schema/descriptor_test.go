package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDescriptor() Descriptor {
	return Descriptor{
		Ploidy:     2,
		NumLoci:    []int{2, 3},
		LociPos:    []float64{1, 2, 1, 2, 3},
		LociNames:  []string{"a1", "a2", "b1", "b2", "b3"},
		MaxAllele:  255,
		InfoFields: []string{"fitness"},
	}
}

func TestDescriptor_Validate(t *testing.T) {
	require.NoError(t, testDescriptor().Validate())

	d := testDescriptor()
	d.Ploidy = 0
	assert.ErrorIs(t, d.Validate(), ErrInvalidDescriptor)

	d = testDescriptor()
	d.NumLoci = nil
	assert.ErrorIs(t, d.Validate(), ErrInvalidDescriptor)

	d = testDescriptor()
	d.LociPos = []float64{1, 2, 3}
	assert.ErrorIs(t, d.Validate(), ErrInvalidDescriptor)

	d = testDescriptor()
	d.LociPos = []float64{1, 2, 3, 2, 1} // not increasing on chromosome 1
	assert.ErrorIs(t, d.Validate(), ErrInvalidDescriptor)

	d = testDescriptor()
	d.InfoFields = []string{"x", "x"}
	assert.ErrorIs(t, d.Validate(), ErrInvalidDescriptor)

	d = testDescriptor()
	d.ChromMap = []int{0} // one entry for two chromosomes
	assert.ErrorIs(t, d.Validate(), ErrInvalidDescriptor)
}

func TestDescriptor_ValidateHaplodiploid(t *testing.T) {
	d := testDescriptor()
	d.Ploidy = Haplodiploid
	require.NoError(t, d.Validate())

	s := newSchema(d)
	// Layout always reserves two sets for haplodiploid species.
	assert.Equal(t, 2, s.LayoutPloidy())
	assert.Equal(t, 10, s.Stride())
}

func TestSchema_Layout(t *testing.T) {
	reg := NewRegistry()
	_, s, err := reg.Intern(testDescriptor())
	require.NoError(t, err)

	assert.Equal(t, 2, s.NumChrom())
	assert.Equal(t, 5, s.TotNumLoci())
	assert.Equal(t, 10, s.Stride())
	assert.Equal(t, 1, s.InfoSize())

	begin, err := s.ChromBegin(1)
	require.NoError(t, err)
	assert.Equal(t, 2, begin)
	end, err := s.ChromEnd(1)
	require.NoError(t, err)
	assert.Equal(t, 5, end)

	ch, loc, err := s.ChromLocusPair(3)
	require.NoError(t, err)
	assert.Equal(t, 1, ch)
	assert.Equal(t, 1, loc)

	abs, err := s.AbsLocusIndex(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, abs)

	_, _, err = s.ChromLocusPair(5)
	var re *RangeError
	assert.ErrorAs(t, err, &re)

	idx, err := s.InfoIndex("fitness")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	_, err = s.InfoIndex("missing")
	assert.ErrorIs(t, err, ErrUnknownInfoField)
}

func TestSchema_LocusNames(t *testing.T) {
	reg := NewRegistry()
	_, s, err := reg.Intern(testDescriptor())
	require.NoError(t, err)

	name, err := s.LocusName(3)
	require.NoError(t, err)
	assert.Equal(t, "b2", name)

	idx, err := s.LocusByName("b2")
	require.NoError(t, err)
	assert.Equal(t, 3, idx)
	_, err = s.LocusByName("zz")
	assert.ErrorIs(t, err, ErrUnknownLocus)

	// Unnamed schemas generate positional names.
	d := testDescriptor()
	d.LociNames = nil
	_, s, err = reg.Intern(d)
	require.NoError(t, err)
	name, err = s.LocusName(4)
	require.NoError(t, err)
	assert.Equal(t, "loc4", name)
}

func TestRegistry_InternDeduplicates(t *testing.T) {
	reg := NewRegistry()
	h1, s1, err := reg.Intern(testDescriptor())
	require.NoError(t, err)
	h2, s2, err := reg.Intern(testDescriptor())
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, reg.Len())

	// ChromMap is distribution metadata, not layout: it never forks an entry.
	d := testDescriptor()
	d.ChromMap = []int{0, 1}
	h3, _, err := reg.Intern(d)
	require.NoError(t, err)
	assert.Equal(t, h1, h3)
	assert.Equal(t, 1, reg.Len())

	d = testDescriptor()
	d.MaxAllele = 1
	h4, _, err := reg.Intern(d)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h4)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_Resolve(t *testing.T) {
	reg := NewRegistry()
	h, s, err := reg.Intern(testDescriptor())
	require.NoError(t, err)

	got, err := reg.Resolve(h)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = reg.Resolve(Unset)
	assert.ErrorIs(t, err, ErrUnsetHandle)

	_, err = reg.Resolve(Handle(99))
	var re *RangeError
	assert.ErrorAs(t, err, &re)
}

func TestDescriptor_CloneIsDeep(t *testing.T) {
	d := testDescriptor()
	c := d.Clone()
	c.NumLoci[0] = 7
	c.InfoFields[0] = "other"
	assert.Equal(t, 2, d.NumLoci[0])
	assert.Equal(t, "fitness", d.InfoFields[0])
}
