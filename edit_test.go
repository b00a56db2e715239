package popstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popgene/popstore/resource"
	"github.com/popgene/popstore/schema"
)

func TestAddChrom(t *testing.T) {
	p := newTestPop(t, []int{2}, WithAncestralDepth(2))
	stamp(t, p)
	require.NoError(t, p.PushAndDiscard(nextGen(t, p, []int{2}, 1)))

	require.NoError(t, p.AddChrom([]float64{0.5, 1.5}, []string{"c1", "c2"}))
	assert.Equal(t, []int{2, 3, 2}, p.Schema().NumLoci)
	assert.Equal(t, 14, p.Schema().Stride())

	// Existing values survive on every generation; new loci are zero.
	for gen := 0; gen <= 1; gen++ {
		v, err := p.Ancestor(0, gen)
		require.NoError(t, err)
		set, err := v.ChromSet(0)
		require.NoError(t, err)
		assert.Equal(t, Allele(0), set[5], "generation %d", gen)
		assert.Equal(t, Allele(0), set[6], "generation %d", gen)
	}
	v, err := p.Ancestor(0, 1)
	require.NoError(t, err)
	set, err := v.ChromSet(1)
	require.NoError(t, err)
	// Second ploidy set of archived individual 0: old loci 5..9.
	assert.Equal(t, []Allele{5, 6, 7, 8, 9}, []Allele(set[:5]))
}

func TestAddLoci(t *testing.T) {
	p := newTestPop(t, []int{2})
	stamp(t, p)

	idx, err := p.AddLoci([]int{0}, []float64{1.5}, []string{"x1"})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, idx)
	assert.Equal(t, []int{3, 3}, p.Schema().NumLoci)

	v, err := p.Ind(1)
	require.NoError(t, err)
	set, err := v.ChromSet(0)
	require.NoError(t, err)
	// Old loci 0 and 1 straddle the inserted zero.
	assert.Equal(t, []Allele{100, 0, 101, 102, 103, 104}, []Allele(set))
}

func TestRemoveLoci(t *testing.T) {
	p := newTestPop(t, []int{2})
	stamp(t, p)

	require.NoError(t, p.RemoveLoci([]int{1, 3}, nil))
	assert.Equal(t, []int{1, 2}, p.Schema().NumLoci)
	assert.Equal(t, 6, p.Schema().Stride())

	v, err := p.Ind(1)
	require.NoError(t, err)
	assert.Equal(t, []Allele{100, 102, 104, 105, 107, 109}, []Allele(v.Genotype()))
}

func TestRemoveThenAddBackRoundTrip(t *testing.T) {
	p := newTestPop(t, []int{2, 3})
	stamp(t, p)
	original := p.Schema().Descriptor

	require.NoError(t, p.RemoveLoci([]int{1, 3}, nil))
	_, err := p.AddLoci([]int{0, 1}, []float64{2, 2}, []string{"a2", "b2"})
	require.NoError(t, err)

	// Schema is value-equal to the original and interned as the same entry.
	assert.True(t, original.Equal(p.Schema().Descriptor))
	h, _, err := p.Registry().Intern(original)
	require.NoError(t, err)
	assert.Equal(t, h, p.Handle())

	// Retained offsets keep their values; re-added offsets are zero.
	v, err := p.Ind(1)
	require.NoError(t, err)
	set, err := v.ChromSet(0)
	require.NoError(t, err)
	assert.Equal(t, []Allele{100, 0, 102, 0, 104}, []Allele(set))
}

func TestRearrangeLoci(t *testing.T) {
	p := newTestPop(t, []int{2})
	stamp(t, p)
	before := firstAlleles(t, p)

	require.NoError(t, p.RearrangeLoci([]int{1, 4}, nil))
	assert.Equal(t, []int{1, 4}, p.Schema().NumLoci)
	assert.Equal(t, 10, p.Schema().Stride())
	// No data moved.
	assert.Equal(t, before, firstAlleles(t, p))
}

func TestAddInfoField(t *testing.T) {
	p := newTestPop(t, []int{2, 3})
	stamp(t, p)

	// The documented scenario: 5 individuals, 1 field, add one more.
	assert.Equal(t, 5, len(p.cur.info))
	require.NoError(t, p.AddInfoField("age", 0.0))
	assert.Equal(t, 10, len(p.cur.info))
	assert.Equal(t, 2, p.Schema().InfoSize())

	for i := 0; i < 5; i++ {
		v, err := p.Ind(i)
		require.NoError(t, err)
		first, err := v.InfoAt(0)
		require.NoError(t, err)
		assert.Equal(t, float64(i), first)
		second, err := v.InfoAt(1)
		require.NoError(t, err)
		assert.Equal(t, 0.0, second)
	}
}

func TestAddInfoField_ExistingIsReinitialized(t *testing.T) {
	p := newTestPop(t, []int{3})
	stamp(t, p)

	require.NoError(t, p.AddInfoField("fitness", 1.5))
	assert.Equal(t, 1, p.Schema().InfoSize())
	vals, err := p.IndInfo("fitness")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 1.5, 1.5}, vals)
}

func TestSetInfoFields(t *testing.T) {
	p := newTestPop(t, []int{2})
	stamp(t, p)

	require.NoError(t, p.SetInfoFields([]string{"x", "y"}, 3.0))
	assert.Equal(t, []string{"x", "y"}, p.Schema().InfoFields)
	vals, err := p.IndInfo("x")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3}, vals)
	_, err = p.IndInfo("fitness")
	var pe *PreconditionError
	assert.ErrorAs(t, err, &pe)
}

func TestRemoveInfoFields(t *testing.T) {
	p := newTestPop(t, []int{2})
	stamp(t, p)
	require.NoError(t, p.AddInfoField("age", 7))

	require.NoError(t, p.RemoveInfoFields([]string{"fitness"}))
	assert.Equal(t, []string{"age"}, p.Schema().InfoFields)
	vals, err := p.IndInfo("age")
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 7}, vals)

	var pe *PreconditionError
	assert.ErrorAs(t, p.RemoveInfoFields([]string{"missing"}), &pe)
}

func TestEditMigratesAllGenerations(t *testing.T) {
	p := newTestPop(t, []int{2}, WithAncestralDepth(-1))
	stamp(t, p)
	require.NoError(t, p.PushAndDiscard(nextGen(t, p, []int{3}, 1)))
	require.NoError(t, p.PushAndDiscard(nextGen(t, p, []int{1}, 2)))

	require.NoError(t, p.AddInfoField("age", 4.0))

	for gen := 0; gen <= 2; gen++ {
		require.NoError(t, p.UseAncestralGen(gen))
		vals, err := p.IndInfo("age")
		require.NoError(t, err)
		for _, v := range vals {
			assert.Equal(t, 4.0, v, "generation %d", gen)
		}
	}
	require.NoError(t, p.UseAncestralGen(0))
}

func TestEditFailsAtomicallyOnResourceLimit(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 200})
	p, err := NewPopulation(schema.NewRegistry(), []int{4}, testDescriptor(),
		WithResourceController(rc), WithAncestralDepth(-1))
	require.NoError(t, err)
	stamp(t, p)
	before := p.Clone()
	used := rc.MemoryUsage()

	// Doubling the stride cannot fit in the remaining budget.
	err = p.AddChrom([]float64{1, 2, 3, 4, 5}, []string{"n1", "n2", "n3", "n4", "n5"})
	var rerr *ResourceError
	require.ErrorAs(t, err, &rerr)

	// Nothing migrated, nothing leaked.
	assert.True(t, p.Equal(before))
	assert.Equal(t, 10, p.Schema().Stride())
	assert.Equal(t, used, rc.MemoryUsage())
}

func TestEditGuards(t *testing.T) {
	p := newTestPop(t, []int{4})
	p.SetVirtualSplitter(SexSplitter{})
	require.NoError(t, p.ActivateVirtualSubPop(0, 0, VisibleOnly))

	assert.ErrorIs(t, p.AddChrom([]float64{1}, []string{"c1"}), ErrActivatedVSP)
	assert.ErrorIs(t, p.RemoveLoci([]int{0}, nil), ErrActivatedVSP)

	p.DeactivateVirtualSubPop()
	assert.NoError(t, p.RemoveLoci([]int{0}, nil))
}
