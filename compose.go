package popstore

import (
	"slices"

	"github.com/popgene/popstore/schema"
)

// AppendIndividuals copies every individual of other into p, across the live
// and every archived generation. Both populations must share the same schema
// handle and the same number of archived generations. other's subpopulations
// are appended after p's, so the partition of both inputs is preserved. Both
// stores are brought into ordered layout first; other's individuals are
// otherwise left alone.
func (p *Population) AppendIndividuals(other *Population) error {
	const op = "popstore.AppendIndividuals"
	if err := p.mutable(op); err != nil {
		return err
	}
	if err := p.noVisibleVSP(op); err != nil {
		return err
	}
	if other.viewing != 0 {
		return &PreconditionError{Op: op, Reason: "source is viewing an ancestral generation", cause: ErrViewingAncestral}
	}
	if p.handle != other.handle {
		return precondition(op, "schema handle mismatch: %d vs %d", p.handle, other.handle)
	}
	if len(p.ancestral) != len(other.ancestral) {
		return precondition(op, "archived generation count mismatch: %d vs %d", len(p.ancestral), len(other.ancestral))
	}
	if err := p.SortIndividuals(false); err != nil {
		return err
	}
	if err := other.SortIndividuals(false); err != nil {
		return err
	}

	mine := p.generations()
	theirs := other.generations()
	for gi := range mine {
		if err := p.appendGen(op, mine[gi], theirs[gi]); err != nil {
			return err
		}
	}
	p.logger.Info("appended individuals", "added", other.PopSize(), "generations", len(mine))
	return p.verify(op)
}

// appendGen concatenates one generation of src onto dst, rewriting both
// buffers in record order.
func (p *Population) appendGen(op string, dst, src *genData) error {
	stride := p.sch.Stride()
	is := p.sch.InfoSize()
	newSize := dst.size() + src.size()

	bytes := int64(newSize*stride)*2 + int64(newSize*is)*8
	if err := p.reserve(op, bytes); err != nil {
		return err
	}

	geno := make([]Allele, newSize*stride)
	info := make([]float64, newSize*is)
	inds := make([]individual, 0, newSize)
	row := 0
	for _, g := range []*genData{dst, src} {
		for i := range g.inds {
			ind := g.inds[i]
			copy(geno[row*stride:(row+1)*stride], g.genotype[ind.genoOff:ind.genoOff+stride])
			copy(info[row*is:(row+1)*is], g.info[ind.infoOff:ind.infoOff+is])
			ind.genoOff = row * stride
			ind.infoOff = row * is
			inds = append(inds, ind)
			row++
		}
	}

	p.unreserve(dst.bytes())
	dst.genotype = geno
	dst.info = info
	dst.inds = inds
	dst.subPopSizes = append(dst.subPopSizes, src.subPopSizes...)
	dst.rebuildIndex()
	dst.ordered = true
	return nil
}

// AppendChrom appends other's chromosomes to p's schema and splices other's
// genotype data after p's on every ploidy set of every individual. The two
// populations must have the same ploidy, the same number of archived
// generations, and the same subpopulation sizes at every generation. p keeps
// its own
// auxiliary fields and subpopulation structure. Both stores are brought into
// ordered layout first; other's individuals are otherwise left alone.
func (p *Population) AppendChrom(other *Population) error {
	const op = "popstore.AppendChrom"
	if err := p.composeGuards(op, other); err != nil {
		return err
	}

	nd, err := schema.MergeChrom(p.sch.Descriptor, other.sch.Descriptor)
	if err != nil {
		return preconditionWrap(op, err)
	}
	handle, sch, err := p.reg.Intern(nd)
	if err != nil {
		return preconditionWrap(op, err)
	}

	aTot := p.sch.TotNumLoci()
	bTot := other.sch.TotNumLoci()
	oldStride := p.sch.Stride()
	splice := func(row, a, b []Allele, ploidy int) {
		newTot := aTot + bTot
		for s := 0; s < ploidy; s++ {
			copy(row[s*newTot:s*newTot+aTot], a[s*aTot:(s+1)*aTot])
			copy(row[s*newTot+aTot:(s+1)*newTot], b[s*bTot:(s+1)*bTot])
		}
	}
	if err := p.spliceGenotype(op, other, handle, sch, splice); err != nil {
		return err
	}
	p.logger.LogEdit("append_chrom", oldStride, sch.Stride(), len(p.ancestral)+1, nil)
	return p.verify(op)
}

// AppendLoci merges other's loci into p's chromosomes by map position and
// fills every individual's ploidy sets from both sources. Chromosome counts
// must match and positions within a chromosome must not collide. Returns the
// absolute indices, in the merged layout, of the loci that came from other.
func (p *Population) AppendLoci(other *Population) ([]int, error) {
	const op = "popstore.AppendLoci"
	if err := p.composeGuards(op, other); err != nil {
		return nil, err
	}

	nd, idxA, idxB, err := schema.MergeLoci(p.sch.Descriptor, other.sch.Descriptor)
	if err != nil {
		return nil, preconditionWrap(op, err)
	}
	handle, sch, err := p.reg.Intern(nd)
	if err != nil {
		return nil, preconditionWrap(op, err)
	}

	aTot := p.sch.TotNumLoci()
	bTot := other.sch.TotNumLoci()
	newTot := sch.TotNumLoci()
	oldStride := p.sch.Stride()
	splice := func(row, a, b []Allele, ploidy int) {
		for s := 0; s < ploidy; s++ {
			set := row[s*newTot : (s+1)*newTot]
			for l, at := range idxA {
				set[at] = a[s*aTot+l]
			}
			for l, at := range idxB {
				set[at] = b[s*bTot+l]
			}
		}
	}
	if err := p.spliceGenotype(op, other, handle, sch, splice); err != nil {
		return nil, err
	}
	p.logger.LogEdit("append_loci", oldStride, sch.Stride(), len(p.ancestral)+1, nil)
	return idxB, p.verify(op)
}

func (p *Population) composeGuards(op string, other *Population) error {
	if err := p.mutable(op); err != nil {
		return err
	}
	if err := p.noVisibleVSP(op); err != nil {
		return err
	}
	if other.viewing != 0 {
		return &PreconditionError{Op: op, Reason: "source is viewing an ancestral generation", cause: ErrViewingAncestral}
	}
	if p.sch.LayoutPloidy() != other.sch.LayoutPloidy() {
		return precondition(op, "ploidy mismatch: %d vs %d", p.sch.Descriptor.Ploidy, other.sch.Descriptor.Ploidy)
	}
	if len(p.ancestral) != len(other.ancestral) {
		return precondition(op, "archived generation count mismatch: %d vs %d", len(p.ancestral), len(other.ancestral))
	}
	mine := p.generations()
	theirs := other.generations()
	for gi := range mine {
		if !slices.Equal(mine[gi].subPopSizes, theirs[gi].subPopSizes) {
			return precondition(op, "subpopulation sizes mismatch at generation %d: %v vs %v", gi, mine[gi].subPopSizes, theirs[gi].subPopSizes)
		}
	}
	if err := p.SortIndividuals(false); err != nil {
		return err
	}
	return other.SortIndividuals(false)
}

// spliceGenotype rewrites every generation's genotype buffer to the merged
// layout, combining each individual's row from p and the same-ranked
// individual of other via the splice callback. All buffers are allocated
// before any generation is swapped.
func (p *Population) spliceGenotype(op string, other *Population, handle schema.Handle, sch *schema.Schema, splice func(row, a, b []Allele, ploidy int)) error {
	mine := p.generations()
	theirs := other.generations()
	ploidy := p.sch.LayoutPloidy()
	oldStride := p.sch.Stride()
	srcStride := other.sch.Stride()
	newStride := sch.Stride()

	fresh := make([][]Allele, len(mine))
	var reserved int64
	for gi, g := range mine {
		bytes := int64(g.size()*newStride) * 2
		if err := p.reserve(op, bytes); err != nil {
			p.unreserve(reserved)
			return err
		}
		reserved += bytes
		fresh[gi] = make([]Allele, g.size()*newStride)
	}

	for gi, g := range mine {
		src := theirs[gi]
		dst := fresh[gi]
		for i := range g.inds {
			a := &g.inds[i]
			b := &src.inds[i]
			splice(dst[i*newStride:(i+1)*newStride],
				g.genotype[a.genoOff:a.genoOff+oldStride],
				src.genotype[b.genoOff:b.genoOff+srcStride],
				ploidy)
			a.genoOff = i * newStride
			a.handle = handle
		}
		p.unreserve(int64(len(g.genotype)) * 2)
		g.genotype = dst
		g.ordered = infoOrdered(g, p.sch.InfoSize())
	}

	p.handle = handle
	p.sch = sch
	return nil
}
