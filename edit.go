package popstore

import (
	"time"

	"github.com/popgene/popstore/schema"
)

// generations returns the live generation followed by every archived one.
func (p *Population) generations() []*genData {
	gens := make([]*genData, 0, len(p.ancestral)+1)
	gens = append(gens, &p.cur)
	for i := range p.ancestral {
		gens = append(gens, &p.ancestral[i])
	}
	return gens
}

// beginEdit validates the common preconditions of every structural edit and
// brings the live generation into ordered layout.
func (p *Population) beginEdit(op string) error {
	if err := p.mutable(op); err != nil {
		return err
	}
	if err := p.noVisibleVSP(op); err != nil {
		return err
	}
	return p.SortIndividuals(false)
}

// migrateGenotype rewrites every retained generation's genotype buffer to
// the layout of newSch using the remap table. Buffers for all generations
// are allocated up front, so the edit either fully migrates or fails before
// any buffer is swapped in.
func (p *Population) migrateGenotype(op string, m schema.Remap, newHandle schema.Handle, newSch *schema.Schema) error {
	gens := p.generations()
	ploidy := p.sch.LayoutPloidy()
	newStride := newSch.Stride()

	fresh := make([][]Allele, len(gens))
	var reserved int64
	for i, g := range gens {
		bytes := int64(g.size()*newStride) * 2
		if err := p.reserve(op, bytes); err != nil {
			p.unreserve(reserved)
			return err
		}
		reserved += bytes
		fresh[i] = make([]Allele, g.size()*newStride)
	}

	for gi, g := range gens {
		dst := fresh[gi]
		for i := range g.inds {
			ind := &g.inds[i]
			schema.ApplyRemap(m,
				dst[i*newStride:(i+1)*newStride],
				g.genotype[ind.genoOff:ind.genoOff+p.sch.Stride()],
				ploidy)
			ind.genoOff = i * newStride
			ind.handle = newHandle
		}
		p.unreserve(int64(len(g.genotype)) * 2)
		g.genotype = dst
		g.ordered = infoOrdered(g, p.sch.InfoSize())
	}

	p.handle = newHandle
	p.sch = newSch
	return nil
}

func infoOrdered(g *genData, infoSize int) bool {
	for i := range g.inds {
		if g.inds[i].infoOff != i*infoSize {
			return false
		}
	}
	return true
}

func genoOrdered(g *genData, stride int) bool {
	for i := range g.inds {
		if g.inds[i].genoOff != i*stride {
			return false
		}
	}
	return true
}

// AddChrom appends a chromosome with the given loci to the schema and
// zero-fills the new loci across the live and every archived generation.
func (p *Population) AddChrom(lociPos []float64, lociNames []string) error {
	const op = "popstore.AddChrom"
	start := time.Now()
	err := p.addChrom(op, lociPos, lociNames)
	p.metrics.RecordEdit(time.Since(start), len(p.ancestral)+1, err)
	return err
}

func (p *Population) addChrom(op string, lociPos []float64, lociNames []string) error {
	if err := p.beginEdit(op); err != nil {
		return err
	}
	oldStride := p.sch.Stride()
	nd, remap, err := schema.AddChrom(p.sch.Descriptor, lociPos, lociNames)
	if err != nil {
		return preconditionWrap(op, err)
	}
	handle, sch, err := p.reg.Intern(nd)
	if err != nil {
		return preconditionWrap(op, err)
	}
	if err := p.migrateGenotype(op, remap, handle, sch); err != nil {
		p.logger.LogEdit("add_chrom", oldStride, sch.Stride(), len(p.ancestral)+1, err)
		return err
	}
	p.logger.LogEdit("add_chrom", oldStride, p.sch.Stride(), len(p.ancestral)+1, nil)
	return p.verify(op)
}

// AddLoci inserts loci into existing chromosomes by map position. The
// (chromosome, position) pairs must be strictly ascending. Returns the
// absolute indices of the inserted loci in the new layout; values at the
// fresh offsets are zero-filled across every generation.
func (p *Population) AddLoci(chroms []int, pos []float64, names []string) ([]int, error) {
	const op = "popstore.AddLoci"
	start := time.Now()
	idx, err := p.addLoci(op, chroms, pos, names)
	p.metrics.RecordEdit(time.Since(start), len(p.ancestral)+1, err)
	return idx, err
}

func (p *Population) addLoci(op string, chroms []int, pos []float64, names []string) ([]int, error) {
	if err := p.beginEdit(op); err != nil {
		return nil, err
	}
	oldStride := p.sch.Stride()
	nd, remap, newIndex, err := schema.AddLoci(p.sch.Descriptor, chroms, pos, names)
	if err != nil {
		return nil, preconditionWrap(op, err)
	}
	handle, sch, err := p.reg.Intern(nd)
	if err != nil {
		return nil, preconditionWrap(op, err)
	}
	if err := p.migrateGenotype(op, remap, handle, sch); err != nil {
		p.logger.LogEdit("add_loci", oldStride, sch.Stride(), len(p.ancestral)+1, err)
		return nil, err
	}
	p.logger.LogEdit("add_loci", oldStride, p.sch.Stride(), len(p.ancestral)+1, nil)
	return newIndex, p.verify(op)
}

// RemoveLoci drops loci from the schema and compacts every generation's
// genotype buffer. Exactly one of remove or keep must be supplied, as
// absolute locus indices in strictly ascending order.
func (p *Population) RemoveLoci(remove, keep []int) error {
	const op = "popstore.RemoveLoci"
	start := time.Now()
	err := p.removeLoci(op, remove, keep)
	p.metrics.RecordEdit(time.Since(start), len(p.ancestral)+1, err)
	return err
}

func (p *Population) removeLoci(op string, remove, keep []int) error {
	if err := p.beginEdit(op); err != nil {
		return err
	}
	oldStride := p.sch.Stride()
	nd, remap, err := schema.RemoveLoci(p.sch.Descriptor, remove, keep)
	if err != nil {
		return preconditionWrap(op, err)
	}
	handle, sch, err := p.reg.Intern(nd)
	if err != nil {
		return preconditionWrap(op, err)
	}
	if err := p.migrateGenotype(op, remap, handle, sch); err != nil {
		p.logger.LogEdit("remove_loci", oldStride, sch.Stride(), len(p.ancestral)+1, err)
		return err
	}
	p.logger.LogEdit("remove_loci", oldStride, p.sch.Stride(), len(p.ancestral)+1, nil)
	return p.verify(op)
}

// RearrangeLoci redistributes loci among chromosomes without moving any
// data. The total locus count must stay unchanged.
func (p *Population) RearrangeLoci(newNumLoci []int, newLociPos []float64) error {
	const op = "popstore.RearrangeLoci"
	if err := p.mutable(op); err != nil {
		return err
	}
	nd, err := schema.Rearrange(p.sch.Descriptor, newNumLoci, newLociPos)
	if err != nil {
		return preconditionWrap(op, err)
	}
	handle, sch, err := p.reg.Intern(nd)
	if err != nil {
		return preconditionWrap(op, err)
	}
	for _, g := range p.generations() {
		for i := range g.inds {
			g.inds[i].handle = handle
		}
	}
	p.handle = handle
	p.sch = sch
	return p.verify(op)
}

// migrateInfo rewrites every generation's info buffer: column j of the new
// layout is sourced from old column source[j], or filled with init when
// source[j] is negative. Two-phase like migrateGenotype.
func (p *Population) migrateInfo(op string, source []int, init float64, newHandle schema.Handle, newSch *schema.Schema) error {
	gens := p.generations()
	oldIS := p.sch.InfoSize()
	newIS := newSch.InfoSize()

	fresh := make([][]float64, len(gens))
	var reserved int64
	for i, g := range gens {
		bytes := int64(g.size()*newIS) * 8
		if err := p.reserve(op, bytes); err != nil {
			p.unreserve(reserved)
			return err
		}
		reserved += bytes
		fresh[i] = make([]float64, g.size()*newIS)
	}

	for gi, g := range gens {
		dst := fresh[gi]
		for i := range g.inds {
			ind := &g.inds[i]
			row := dst[i*newIS : (i+1)*newIS]
			old := g.info[ind.infoOff : ind.infoOff+oldIS]
			for j, from := range source {
				if from < 0 {
					row[j] = init
				} else {
					row[j] = old[from]
				}
			}
			ind.infoOff = i * newIS
			ind.handle = newHandle
		}
		p.unreserve(int64(len(g.info)) * 8)
		g.info = dst
		g.ordered = genoOrdered(g, p.sch.Stride())
	}

	p.handle = newHandle
	p.sch = newSch
	return nil
}

// AddInfoField adds one auxiliary field with the given initial value. If the
// field already exists it is re-initialized across every generation instead.
func (p *Population) AddInfoField(field string, init float64) error {
	return p.AddInfoFields([]string{field}, init)
}

// AddInfoFields adds auxiliary fields with the given initial value. Existing
// fields are re-initialized across every generation; new fields extend the
// info buffer of every generation, preserving existing values.
func (p *Population) AddInfoFields(fields []string, init float64) error {
	const op = "popstore.AddInfoFields"
	start := time.Now()
	err := p.addInfoFields(op, fields, init)
	p.metrics.RecordEdit(time.Since(start), len(p.ancestral)+1, err)
	return err
}

func (p *Population) addInfoFields(op string, fields []string, init float64) error {
	if err := p.mutable(op); err != nil {
		return err
	}
	nd, added, err := schema.AddInfoFields(p.sch.Descriptor, fields)
	if err != nil {
		return preconditionWrap(op, err)
	}

	// Re-initialize the fields that already exist.
	for _, f := range fields {
		idx, err := p.sch.InfoIndex(f)
		if err != nil {
			continue
		}
		for _, g := range p.generations() {
			for i := range g.inds {
				g.info[g.inds[i].infoOff+idx] = init
			}
		}
	}
	if len(added) == 0 {
		return p.verify(op)
	}

	handle, sch, err := p.reg.Intern(nd)
	if err != nil {
		return preconditionWrap(op, err)
	}
	source := make([]int, sch.InfoSize())
	for j := range source {
		if j < p.sch.InfoSize() {
			source[j] = j
		} else {
			source[j] = -1
		}
	}
	if err := p.migrateInfo(op, source, init, handle, sch); err != nil {
		return err
	}
	return p.verify(op)
}

// SetInfoFields replaces the auxiliary field list wholesale; every value of
// every generation is reset to init.
func (p *Population) SetInfoFields(fields []string, init float64) error {
	const op = "popstore.SetInfoFields"
	start := time.Now()
	err := p.setInfoFields(op, fields, init)
	p.metrics.RecordEdit(time.Since(start), len(p.ancestral)+1, err)
	return err
}

func (p *Population) setInfoFields(op string, fields []string, init float64) error {
	if err := p.mutable(op); err != nil {
		return err
	}
	nd, err := schema.SetInfoFields(p.sch.Descriptor, fields)
	if err != nil {
		return preconditionWrap(op, err)
	}
	handle, sch, err := p.reg.Intern(nd)
	if err != nil {
		return preconditionWrap(op, err)
	}
	source := make([]int, sch.InfoSize())
	for j := range source {
		source[j] = -1
	}
	if err := p.migrateInfo(op, source, init, handle, sch); err != nil {
		return err
	}
	return p.verify(op)
}

// RemoveInfoFields drops the named auxiliary fields from the schema and
// compacts every generation's info buffer.
func (p *Population) RemoveInfoFields(fields []string) error {
	const op = "popstore.RemoveInfoFields"
	start := time.Now()
	err := p.removeInfoFields(op, fields)
	p.metrics.RecordEdit(time.Since(start), len(p.ancestral)+1, err)
	return err
}

func (p *Population) removeInfoFields(op string, fields []string) error {
	if err := p.mutable(op); err != nil {
		return err
	}
	nd, kept, err := schema.RemoveInfoFields(p.sch.Descriptor, fields)
	if err != nil {
		return preconditionWrap(op, err)
	}
	handle, sch, err := p.reg.Intern(nd)
	if err != nil {
		return preconditionWrap(op, err)
	}
	if err := p.migrateInfo(op, kept, 0, handle, sch); err != nil {
		return err
	}
	return p.verify(op)
}
