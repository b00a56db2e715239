package popstore

import (
	"math"
	"slices"
	"sort"
	"time"
)

// stampTagsWithSubPop sets every individual's tag to its current
// subpopulation id.
func (p *Population) stampTagsWithSubPop() {
	for sp := 0; sp < len(p.cur.subPopSizes); sp++ {
		for i := p.cur.subPopIndex[sp]; i < p.cur.subPopIndex[sp+1]; i++ {
			p.cur.inds[i].tag = sp
		}
	}
}

// RestructureByTag is the single primitive behind split, merge, remove and
// reorder. If tags is non-nil it must hold one tag per individual and is
// stamped first; negative tags mark individuals for removal. Individuals are
// then stably sorted by tag (ties preserve prior relative order), marked
// individuals are compacted out, and the subpopulation sizes and boundaries
// are recomputed from the sorted tag run-lengths.
func (p *Population) RestructureByTag(tags []int) error {
	const op = "popstore.RestructureByTag"
	if err := p.mutable(op); err != nil {
		return err
	}
	if err := p.noVisibleVSP(op); err != nil {
		return err
	}
	if tags != nil && len(tags) != p.cur.size() {
		return precondition(op, "got %d tags for %d individuals", len(tags), p.cur.size())
	}
	if tags != nil {
		for i := range p.cur.inds {
			p.cur.inds[i].tag = tags[i]
		}
	}
	return p.resolveSubPopsByTag(op)
}

// resolveSubPopsByTag sorts, compacts and rebuilds the layout from tags
// already stamped on the individuals.
func (p *Population) resolveSubPopsByTag(op string) error {
	start := time.Now()
	oldSize := p.cur.size()

	sort.SliceStable(p.cur.inds, func(i, j int) bool {
		return p.cur.inds[i].tag < p.cur.inds[j].tag
	})

	// The records moved but their data did not; buffer order matches record
	// order only if every offset still lines up.
	stride := p.sch.Stride()
	is := p.sch.InfoSize()
	p.cur.ordered = true
	for i := range p.cur.inds {
		if p.cur.inds[i].genoOff != i*stride || p.cur.inds[i].infoOff != i*is {
			p.cur.ordered = false
			break
		}
	}

	moved := 0
	if len(p.cur.inds) > 0 && p.cur.inds[0].tag < 0 {
		drop := 0
		for drop < len(p.cur.inds) && p.cur.inds[drop].tag < 0 {
			drop++
		}
		newSize := len(p.cur.inds) - drop

		next := genData{
			inds:    make([]individual, newSize),
			ordered: true,
		}
		newBytes := int64(newSize*stride)*2 + int64(newSize*is)*8
		if err := p.reserve(op, newBytes); err != nil {
			p.metrics.RecordRestructure(time.Since(start), 0, err)
			return err
		}
		next.genotype = make([]Allele, newSize*stride)
		next.info = make([]float64, newSize*is)
		for i := 0; i < newSize; i++ {
			src := &p.cur.inds[drop+i]
			copy(next.genotype[i*stride:(i+1)*stride], p.cur.genotype[src.genoOff:src.genoOff+stride])
			copy(next.info[i*is:(i+1)*is], p.cur.info[src.infoOff:src.infoOff+is])
			next.inds[i] = individual{
				genoOff: i * stride,
				infoOff: i * is,
				tag:     src.tag,
				flags:   src.flags,
				handle:  src.handle,
			}
		}
		p.unreserve(p.cur.bytes())
		p.cur.genotype = next.genotype
		p.cur.info = next.info
		p.cur.inds = next.inds
		p.cur.ordered = true
		moved = newSize
	}

	if len(p.cur.inds) == 0 {
		p.cur.subPopSizes = []int{0}
	} else {
		numSubPop := p.cur.inds[len(p.cur.inds)-1].tag + 1
		sizes := make([]int, numSubPop)
		for i := range p.cur.inds {
			sizes[p.cur.inds[i].tag]++
		}
		p.cur.subPopSizes = sizes
	}
	p.cur.rebuildIndex()

	p.logger.LogRestructure(oldSize, p.cur.size(), len(p.cur.subPopSizes))
	err := p.verify(op)
	p.metrics.RecordRestructure(time.Since(start), moved, err)
	return err
}

// SplitSubPop splits one subpopulation into pieces of the given sizes, which
// must sum to its current size. If ids is non-empty it supplies the new
// subpopulation id of every piece; otherwise the pieces take consecutive ids
// starting at the split subpopulation's and every later subpopulation shifts
// up accordingly.
func (p *Population) SplitSubPop(which int, sizes []int, ids []int) error {
	const op = "popstore.SplitSubPop"
	if err := p.mutable(op); err != nil {
		return err
	}
	if err := p.noVisibleVSP(op); err != nil {
		return err
	}
	spSize, err := p.SubPopSize(which)
	if err != nil {
		return err
	}
	if len(sizes) == 0 {
		return precondition(op, "no piece sizes given")
	}
	total := 0
	for _, sz := range sizes {
		total += sz
	}
	if total != spSize {
		return precondition(op, "piece sizes sum to %d, want subpopulation size %d", total, spSize)
	}
	if len(ids) != 0 && len(ids) != len(sizes) {
		return precondition(op, "got %d ids for %d pieces", len(ids), len(sizes))
	}
	if len(sizes) == 1 {
		return nil
	}

	p.stampTagsWithSubPop()
	begin := p.cur.subPopIndex[which]
	if len(ids) == 0 {
		// The pieces take ids which, which+1, ...; every later
		// subpopulation shifts up to make room.
		shift := len(sizes) - 1
		for i := p.cur.subPopIndex[which+1]; i < p.cur.size(); i++ {
			p.cur.inds[i].tag += shift
		}
	}
	idOf := func(piece int) int {
		if len(ids) != 0 {
			return ids[piece]
		}
		return which + piece
	}
	piece, inPiece := 0, 0
	for i := 0; i < spSize; i++ {
		for inPiece == sizes[piece] {
			piece++
			inPiece = 0
		}
		p.cur.inds[begin+i].tag = idOf(piece)
		inPiece++
	}
	return p.resolveSubPopsByTag(op)
}

// SplitSubPopByProportion splits one subpopulation by proportions, which
// must sum to one. The last piece absorbs rounding.
func (p *Population) SplitSubPopByProportion(which int, proportions []float64, ids []int) error {
	const op = "popstore.SplitSubPopByProportion"
	sum := 0.0
	for _, f := range proportions {
		sum += f
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return precondition(op, "proportions sum to %g, want 1", sum)
	}
	if len(proportions) == 1 {
		return nil
	}
	spSize, err := p.SubPopSize(which)
	if err != nil {
		return err
	}
	sizes := make([]int, len(proportions))
	given := 0
	for i := 0; i < len(proportions)-1; i++ {
		sizes[i] = int(math.Floor(float64(spSize) * proportions[i]))
		given += sizes[i]
	}
	sizes[len(sizes)-1] = spSize - given
	return p.SplitSubPop(which, sizes, ids)
}

// MergeSubPops merges the given subpopulations into the first-listed one.
// An empty list merges everything into a single subpopulation. The original
// subpopulation count is preserved; emptied slots stay as zero-size
// subpopulations.
func (p *Population) MergeSubPops(subPops []int) error {
	const op = "popstore.MergeSubPops"
	if err := p.mutable(op); err != nil {
		return err
	}
	if err := p.noVisibleVSP(op); err != nil {
		return err
	}
	if len(subPops) == 0 {
		return p.setSubPopStru(op, []int{p.cur.size()})
	}
	for _, sp := range subPops {
		if sp < 0 || sp >= len(p.cur.subPopSizes) {
			return &RangeError{What: "subpopulation", Index: sp, Size: len(p.cur.subPopSizes)}
		}
	}
	p.stampTagsWithSubPop()
	target := subPops[0]
	for sp := range p.cur.subPopSizes {
		if slices.Contains(subPops, sp) {
			for i := p.cur.subPopIndex[sp]; i < p.cur.subPopIndex[sp+1]; i++ {
				p.cur.inds[i].tag = target
			}
		}
	}
	oldNum := len(p.cur.subPopSizes)
	if err := p.resolveSubPopsByTag(op); err != nil {
		return err
	}
	if len(p.cur.subPopSizes) != oldNum {
		sizes := slices.Clone(p.cur.subPopSizes)
		for len(sizes) < oldNum {
			sizes = append(sizes, 0)
		}
		return p.setSubPopStru(op, sizes)
	}
	return nil
}

// RemoveSubPops deletes whole subpopulations. When shiftIDs is set the
// remaining subpopulations close ranks; otherwise emptied slots are kept as
// zero-size subpopulations unless removeEmpty is also set.
func (p *Population) RemoveSubPops(subPops []int, shiftIDs, removeEmpty bool) error {
	const op = "popstore.RemoveSubPops"
	if err := p.mutable(op); err != nil {
		return err
	}
	if err := p.noVisibleVSP(op); err != nil {
		return err
	}
	for _, sp := range subPops {
		if sp < 0 || sp >= len(p.cur.subPopSizes) {
			return &RangeError{What: "subpopulation", Index: sp, Size: len(p.cur.subPopSizes)}
		}
	}
	p.stampTagsWithSubPop()
	oldNum := len(p.cur.subPopSizes)
	shift := 0
	for sp := 0; sp < oldNum; sp++ {
		begin, end := p.cur.subPopIndex[sp], p.cur.subPopIndex[sp+1]
		if slices.Contains(subPops, sp) {
			shift++
			for i := begin; i < end; i++ {
				p.cur.inds[i].tag = -1
			}
		} else if shiftIDs {
			for i := begin; i < end; i++ {
				p.cur.inds[i].tag = sp - shift
			}
		}
	}
	if err := p.resolveSubPopsByTag(op); err != nil {
		return err
	}
	if !shiftIDs && !removeEmpty && len(p.cur.subPopSizes) < oldNum {
		sizes := slices.Clone(p.cur.subPopSizes)
		for len(sizes) < oldNum {
			sizes = append(sizes, 0)
		}
		if err := p.setSubPopStru(op, sizes); err != nil {
			return err
		}
	}
	if removeEmpty {
		return p.RemoveEmptySubPops()
	}
	return nil
}

// RemoveIndividuals deletes individuals by index. When subPop is
// non-negative the indices are relative to that subpopulation; otherwise
// they are absolute. Emptied subpopulations are kept as zero-size slots
// unless removeEmpty is set.
func (p *Population) RemoveIndividuals(inds []int, subPop int, removeEmpty bool) error {
	const op = "popstore.RemoveIndividuals"
	if err := p.mutable(op); err != nil {
		return err
	}
	if err := p.noVisibleVSP(op); err != nil {
		return err
	}
	p.stampTagsWithSubPop()
	for _, i := range inds {
		idx := i
		if subPop >= 0 {
			begin, err := p.SubPopBegin(subPop)
			if err != nil {
				return err
			}
			if i < 0 || i >= p.cur.subPopSizes[subPop] {
				return &RangeError{What: "individual", Index: i, Size: p.cur.subPopSizes[subPop]}
			}
			idx = begin + i
		} else if i < 0 || i >= p.cur.size() {
			return &RangeError{What: "individual", Index: i, Size: p.cur.size()}
		}
		p.cur.inds[idx].tag = -1
	}
	oldNum := len(p.cur.subPopSizes)
	if err := p.resolveSubPopsByTag(op); err != nil {
		return err
	}
	if !removeEmpty && len(p.cur.subPopSizes) < oldNum {
		sizes := slices.Clone(p.cur.subPopSizes)
		for len(sizes) < oldNum {
			sizes = append(sizes, 0)
		}
		return p.setSubPopStru(op, sizes)
	}
	if removeEmpty {
		return p.RemoveEmptySubPops()
	}
	return nil
}

// RemoveEmptySubPops drops zero-size subpopulations, shifting the ids of the
// remaining ones left. No data moves.
func (p *Population) RemoveEmptySubPops() error {
	const op = "popstore.RemoveEmptySubPops"
	if err := p.mutable(op); err != nil {
		return err
	}
	sizes := make([]int, 0, len(p.cur.subPopSizes))
	for _, sz := range p.cur.subPopSizes {
		if sz != 0 {
			sizes = append(sizes, sz)
		}
	}
	if len(sizes) == 0 {
		sizes = []int{0}
	}
	return p.setSubPopStru(op, sizes)
}

// ReorderSubPops rearranges subpopulations. Exactly one of order (new id →
// old id) or rank (old id → new id) must be supplied; either must name every
// subpopulation exactly once.
func (p *Population) ReorderSubPops(order, rank []int, removeEmpty bool) error {
	const op = "popstore.ReorderSubPops"
	if err := p.mutable(op); err != nil {
		return err
	}
	if err := p.noVisibleVSP(op); err != nil {
		return err
	}
	if (len(order) == 0) == (len(rank) == 0) {
		return precondition(op, "specify one and only one of order or rank")
	}
	if removeEmpty {
		if err := p.RemoveEmptySubPops(); err != nil {
			return err
		}
	}
	n := len(p.cur.subPopSizes)
	perm := order
	if len(perm) == 0 {
		perm = rank
	}
	if len(perm) != n {
		return precondition(op, "got %d entries for %d subpopulations", len(perm), n)
	}
	seen := make([]bool, n)
	for _, sp := range perm {
		if sp < 0 || sp >= n {
			return &RangeError{What: "subpopulation", Index: sp, Size: n}
		}
		if seen[sp] {
			return precondition(op, "subpopulation %d listed twice", sp)
		}
		seen[sp] = true
	}

	if len(order) != 0 {
		for newID, oldID := range order {
			for i := p.cur.subPopIndex[oldID]; i < p.cur.subPopIndex[oldID+1]; i++ {
				p.cur.inds[i].tag = newID
			}
		}
	} else {
		for oldID, newID := range rank {
			for i := p.cur.subPopIndex[oldID]; i < p.cur.subPopIndex[oldID+1]; i++ {
				p.cur.inds[i].tag = newID
			}
		}
	}
	return p.resolveSubPopsByTag(op)
}
