package popstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func firstAlleles(t *testing.T, p *Population) []Allele {
	t.Helper()
	out := make([]Allele, p.PopSize())
	for i := range out {
		v, err := p.Ind(i)
		require.NoError(t, err)
		out[i] = v.Genotype()[0]
	}
	return out
}

func TestRestructureByTag_Stability(t *testing.T) {
	p := newTestPop(t, []int{2, 3})
	stamp(t, p)
	before := firstAlleles(t, p)

	// Identity assignment: every individual keeps its subpopulation.
	require.NoError(t, p.RestructureByTag([]int{0, 0, 1, 1, 1}))
	assert.Equal(t, before, firstAlleles(t, p))
	assert.Equal(t, []int{2, 3}, p.SubPopSizes())
}

func TestRestructureByTag_Reorder(t *testing.T) {
	p := newTestPop(t, []int{2, 3})
	stamp(t, p)

	// Swap the two groups; ties keep prior relative order.
	require.NoError(t, p.RestructureByTag([]int{1, 1, 0, 0, 0}))
	assert.Equal(t, []int{3, 2}, p.SubPopSizes())
	assert.Equal(t, []Allele{200, 300, 400, 0, 100}, firstAlleles(t, p))
	// Records moved but buffers did not.
	assert.False(t, p.Ordered())

	require.NoError(t, p.SortIndividuals(false))
	assert.True(t, p.Ordered())
	assert.Equal(t, []Allele{200, 300, 400, 0, 100}, firstAlleles(t, p))
}

func TestRestructureByTag_NegativeTagsCompact(t *testing.T) {
	p := newTestPop(t, []int{2, 3})
	stamp(t, p)

	require.NoError(t, p.RestructureByTag([]int{0, -1, 0, -1, 1}))
	assert.Equal(t, 3, p.PopSize())
	assert.Equal(t, []int{2, 1}, p.SubPopSizes())
	assert.Equal(t, []Allele{0, 200, 400}, firstAlleles(t, p))
	// Compaction reallocates, so the survivors end up ordered.
	assert.True(t, p.Ordered())
	assert.Equal(t, 30, len(p.cur.genotype))
}

func TestRestructureByTag_PartitionProperty(t *testing.T) {
	p := newTestPop(t, []int{3, 3, 3})
	stamp(t, p)

	require.NoError(t, p.RestructureByTag([]int{2, 0, 1, 2, 0, 1, 2, 0, 1}))

	// Ranges partition the full index space and every individual's tag
	// matches its range.
	total := 0
	for sp := 0; sp < p.NumSubPops(); sp++ {
		begin, err := p.SubPopBegin(sp)
		require.NoError(t, err)
		end, err := p.SubPopEnd(sp)
		require.NoError(t, err)
		assert.Equal(t, total, begin)
		for i := begin; i < end; i++ {
			v, err := p.Ind(i)
			require.NoError(t, err)
			assert.Equal(t, sp, v.Tag())
		}
		total = end
	}
	assert.Equal(t, p.PopSize(), total)
}

func TestRestructureByTag_TagCountMismatch(t *testing.T) {
	p := newTestPop(t, []int{2, 3})
	var pe *PreconditionError
	assert.ErrorAs(t, p.RestructureByTag([]int{0, 1}), &pe)
}

func TestSplitSubPop(t *testing.T) {
	p := newTestPop(t, []int{2, 3})
	stamp(t, p)

	// The documented scenario: [2,3], split subpopulation 0 into [1,1].
	require.NoError(t, p.SplitSubPop(0, []int{1, 1}, nil))
	assert.Equal(t, []int{1, 1, 3}, p.SubPopSizes())
	assert.Equal(t, []Allele{0, 100, 200, 300, 400}, firstAlleles(t, p))
}

func TestSplitSubPop_ExplicitIDs(t *testing.T) {
	p := newTestPop(t, []int{4})
	stamp(t, p)

	require.NoError(t, p.SplitSubPop(0, []int{2, 2}, []int{1, 0}))
	assert.Equal(t, []int{2, 2}, p.SubPopSizes())
	assert.Equal(t, []Allele{200, 300, 0, 100}, firstAlleles(t, p))
}

func TestSplitSubPop_SizeMismatch(t *testing.T) {
	p := newTestPop(t, []int{2, 3})
	var pe *PreconditionError
	assert.ErrorAs(t, p.SplitSubPop(0, []int{1, 2}, nil), &pe)
	assert.ErrorAs(t, p.SplitSubPop(0, []int{1, 1}, []int{0}), &pe)
}

func TestSplitSubPop_EmptySizes(t *testing.T) {
	// No pieces is rejected even for an empty subpopulation, where the sum
	// check alone would pass and the slot would vanish.
	p := newTestPop(t, []int{0, 3})
	var pe *PreconditionError
	assert.ErrorAs(t, p.SplitSubPop(0, nil, nil), &pe)
	assert.Equal(t, []int{0, 3}, p.SubPopSizes())
}

func TestSplitSubPopByProportion(t *testing.T) {
	p := newTestPop(t, []int{10})

	require.NoError(t, p.SplitSubPopByProportion(0, []float64{0.3, 0.7}, nil))
	assert.Equal(t, []int{3, 7}, p.SubPopSizes())

	var pe *PreconditionError
	assert.ErrorAs(t, p.SplitSubPopByProportion(0, []float64{0.5, 0.6}, nil), &pe)
}

func TestMergeSubPops(t *testing.T) {
	p := newTestPop(t, []int{2, 2, 2})
	stamp(t, p)

	require.NoError(t, p.MergeSubPops([]int{0, 2}))
	// Merged into subpopulation 0; slot 2 stays as an empty subpopulation.
	assert.Equal(t, []int{4, 2, 0}, p.SubPopSizes())
	assert.Equal(t, []Allele{0, 100, 400, 500, 200, 300}, firstAlleles(t, p))

	require.NoError(t, p.RemoveEmptySubPops())
	assert.Equal(t, []int{4, 2}, p.SubPopSizes())
}

func TestMergeSubPops_All(t *testing.T) {
	p := newTestPop(t, []int{2, 2, 2})
	require.NoError(t, p.MergeSubPops(nil))
	assert.Equal(t, []int{6}, p.SubPopSizes())
}

func TestRemoveSubPops(t *testing.T) {
	p := newTestPop(t, []int{2, 2, 2})
	stamp(t, p)

	require.NoError(t, p.RemoveSubPops([]int{1}, false, false))
	assert.Equal(t, []int{2, 0, 2}, p.SubPopSizes())
	assert.Equal(t, []Allele{0, 100, 400, 500}, firstAlleles(t, p))
}

func TestRemoveSubPops_ShiftIDs(t *testing.T) {
	p := newTestPop(t, []int{2, 2, 2})
	stamp(t, p)

	require.NoError(t, p.RemoveSubPops([]int{1}, true, false))
	assert.Equal(t, []int{2, 2}, p.SubPopSizes())
	assert.Equal(t, []Allele{0, 100, 400, 500}, firstAlleles(t, p))
}

func TestRemoveIndividuals(t *testing.T) {
	p := newTestPop(t, []int{2, 3})
	stamp(t, p)

	// Relative to subpopulation 1.
	require.NoError(t, p.RemoveIndividuals([]int{0, 2}, 1, false))
	assert.Equal(t, []int{2, 1}, p.SubPopSizes())
	assert.Equal(t, []Allele{0, 100, 300}, firstAlleles(t, p))

	// Absolute indexing.
	require.NoError(t, p.RemoveIndividuals([]int{0}, -1, false))
	assert.Equal(t, []int{1, 1}, p.SubPopSizes())
	assert.Equal(t, []Allele{100, 300}, firstAlleles(t, p))

	var re *RangeError
	assert.ErrorAs(t, p.RemoveIndividuals([]int{5}, -1, false), &re)
}

func TestReorderSubPops(t *testing.T) {
	p := newTestPop(t, []int{1, 2, 3})
	stamp(t, p)

	// order: new id -> old id.
	require.NoError(t, p.ReorderSubPops([]int{2, 0, 1}, nil, false))
	assert.Equal(t, []int{3, 1, 2}, p.SubPopSizes())
	assert.Equal(t, []Allele{300, 400, 500, 0, 100, 200}, firstAlleles(t, p))

	var pe *PreconditionError
	assert.ErrorAs(t, p.ReorderSubPops([]int{0, 1, 2}, []int{0, 1, 2}, false), &pe)
	assert.ErrorAs(t, p.ReorderSubPops(nil, nil, false), &pe)
	assert.ErrorAs(t, p.ReorderSubPops([]int{0, 0, 1}, nil, false), &pe)
}
