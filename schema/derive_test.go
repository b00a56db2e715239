package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyRemap(t *testing.T) {
	// Old layout 3 loci, new layout 4: new locus at index 1 is fresh.
	m := Remap{OldTotLoci: 3, NewTotLoci: 4, Source: []int{0, ZeroFill, 1, 2}}
	src := []uint16{1, 2, 3, 4, 5, 6} // two ploidy sets
	dst := make([]uint16, 8)
	ApplyRemap(m, dst, src, 2)
	assert.Equal(t, []uint16{1, 0, 2, 3, 4, 0, 5, 6}, dst)
	assert.False(t, m.Identity())

	id := Remap{OldTotLoci: 3, NewTotLoci: 3, Source: identitySource(3)}
	assert.True(t, id.Identity())
}

func TestAddChrom(t *testing.T) {
	d := testDescriptor()
	nd, m, err := AddChrom(d, []float64{0.5, 1.5}, []string{"c1", "c2"})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3, 2}, nd.NumLoci)
	assert.Equal(t, []string{"a1", "a2", "b1", "b2", "b3", "c1", "c2"}, nd.LociNames)
	assert.Equal(t, 5, m.OldTotLoci)
	assert.Equal(t, 7, m.NewTotLoci)
	// Appended after the existing chromosomes: existing loci keep their
	// indices, the new ones zero-fill.
	assert.Equal(t, []int{0, 1, 2, 3, 4, ZeroFill, ZeroFill}, m.Source)

	_, _, err = AddChrom(d, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
	_, _, err = AddChrom(d, []float64{2, 1}, []string{"c1", "c2"})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
	_, _, err = AddChrom(d, []float64{1}, []string{"a1"}) // duplicate name
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
	_, _, err = AddChrom(d, []float64{1}, nil) // named schema needs names
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestAddChrom_SexChromStaysLast(t *testing.T) {
	d := testDescriptor()
	d.SexChrom = true
	nd, m, err := AddChrom(d, []float64{1}, []string{"c1"})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 1, 3}, nd.NumLoci)
	assert.True(t, nd.SexChrom)
	// Inserted before the sex chromosome's loci.
	assert.Equal(t, []string{"a1", "a2", "c1", "b1", "b2", "b3"}, nd.LociNames)
	assert.Equal(t, []int{0, 1, ZeroFill, 2, 3, 4}, m.Source)
}

func TestAddLoci(t *testing.T) {
	d := testDescriptor()
	nd, m, idx, err := AddLoci(d, []int{0, 1}, []float64{1.5, 2.5}, []string{"x1", "x2"})
	require.NoError(t, err)

	assert.Equal(t, []int{3, 4}, nd.NumLoci)
	assert.Equal(t, []float64{1, 1.5, 2, 1, 2, 2.5, 3}, nd.LociPos)
	assert.Equal(t, []string{"a1", "x1", "a2", "b1", "b2", "x2", "b3"}, nd.LociNames)
	assert.Equal(t, []int{1, 5}, idx)
	assert.Equal(t, []int{0, ZeroFill, 1, 2, 3, ZeroFill, 4}, m.Source)
}

func TestAddLoci_Errors(t *testing.T) {
	d := testDescriptor()

	_, _, _, err := AddLoci(d, []int{0}, []float64{1, 2}, nil)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	_, _, _, err = AddLoci(d, []int{1, 0}, []float64{1.5, 1.5}, []string{"x", "y"})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	// Occupied position.
	_, _, _, err = AddLoci(d, []int{0}, []float64{2}, []string{"x"})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	_, _, _, err = AddLoci(d, []int{5}, []float64{1}, []string{"x"})
	var re *RangeError
	assert.ErrorAs(t, err, &re)
}

func TestRemoveLoci(t *testing.T) {
	d := testDescriptor()
	nd, m, err := RemoveLoci(d, []int{1, 3}, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, nd.NumLoci)
	assert.Equal(t, []float64{1, 1, 3}, nd.LociPos)
	assert.Equal(t, []string{"a1", "b1", "b3"}, nd.LociNames)
	assert.Equal(t, Remap{OldTotLoci: 5, NewTotLoci: 3, Source: []int{0, 2, 4}}, m)

	// keep is the complement form.
	byKeep, m2, err := RemoveLoci(d, nil, []int{0, 2, 4})
	require.NoError(t, err)
	assert.True(t, nd.Equal(byKeep))
	assert.Equal(t, m, m2)

	_, _, err = RemoveLoci(d, []int{0}, []int{1})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
	_, _, err = RemoveLoci(d, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
	_, _, err = RemoveLoci(d, []int{3, 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestRemoveThenAddBackRoundTrip(t *testing.T) {
	d := testDescriptor()
	nd, _, err := RemoveLoci(d, []int{1, 3}, nil)
	require.NoError(t, err)

	back, _, _, err := AddLoci(nd, []int{0, 1}, []float64{2, 2}, []string{"a2", "b2"})
	require.NoError(t, err)
	assert.True(t, d.Equal(back))
}

func TestInfoFieldDerivations(t *testing.T) {
	d := testDescriptor()

	nd, added, err := AddInfoFields(d, []string{"fitness", "age"})
	require.NoError(t, err)
	assert.Equal(t, []string{"age"}, added)
	assert.Equal(t, []string{"fitness", "age"}, nd.InfoFields)

	nd, err = SetInfoFields(d, []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, nd.InfoFields)
	_, err = SetInfoFields(d, []string{"x", "x"})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	wide, _, err := AddInfoFields(d, []string{"age", "rank"})
	require.NoError(t, err)
	nd, kept, err := RemoveInfoFields(wide, []string{"age"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fitness", "rank"}, nd.InfoFields)
	assert.Equal(t, []int{0, 2}, kept)

	_, _, err = RemoveInfoFields(d, []string{"missing"})
	assert.ErrorIs(t, err, ErrUnknownInfoField)
}

func TestRearrange(t *testing.T) {
	d := testDescriptor()
	nd, err := Rearrange(d, []int{1, 4}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4}, nd.NumLoci)
	assert.Equal(t, d.LociNames, nd.LociNames)

	_, err = Rearrange(d, []int{1, 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
	_, err = Rearrange(d, nil, []float64{1, 2})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestMergeChrom(t *testing.T) {
	a := testDescriptor()
	b := Descriptor{
		Ploidy:    2,
		NumLoci:   []int{1},
		LociPos:   []float64{1},
		LociNames: []string{"c1"},
		MaxAllele: 255,
	}
	nd, err := MergeChrom(a, b)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 1}, nd.NumLoci)
	assert.Equal(t, []string{"a1", "a2", "b1", "b2", "b3", "c1"}, nd.LociNames)
	assert.Equal(t, a.InfoFields, nd.InfoFields)

	b.Ploidy = 4
	_, err = MergeChrom(a, b)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	b.Ploidy = 2
	a.SexChrom = true
	_, err = MergeChrom(a, b)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestMergeLoci(t *testing.T) {
	a := testDescriptor()
	b := Descriptor{
		Ploidy:    2,
		NumLoci:   []int{1, 1},
		LociPos:   []float64{1.5, 2.5},
		LociNames: []string{"x1", "x2"},
		MaxAllele: 255,
	}
	nd, idxA, idxB, err := MergeLoci(a, b)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, nd.NumLoci)
	assert.Equal(t, []string{"a1", "x1", "a2", "b1", "b2", "x2", "b3"}, nd.LociNames)
	assert.Equal(t, []int{0, 2, 3, 4, 6}, idxA)
	assert.Equal(t, []int{1, 5}, idxB)

	// Position collisions are rejected.
	b.LociPos = []float64{1, 2.5}
	_, _, _, err = MergeLoci(a, b)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	b.NumLoci = []int{2}
	_, _, _, err = MergeLoci(a, b)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}
