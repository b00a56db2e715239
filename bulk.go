package popstore

// Genotype exposes the live generation's genotype buffer as one flat slice,
// individual-major. The buffers are brought into ordered layout first. The
// returned slice aliases the store; it is invalidated by any operation that
// reallocates or swaps buffers.
func (p *Population) Genotype() ([]Allele, error) {
	const op = "popstore.Genotype"
	if err := p.noVisibleVSP(op); err != nil {
		return nil, err
	}
	if err := p.SortIndividuals(false); err != nil {
		return nil, err
	}
	return p.cur.genotype, nil
}

// SubPopGenotype exposes the genotype buffer of one subpopulation as a flat
// slice. Same aliasing rules as Genotype.
func (p *Population) SubPopGenotype(sp int) ([]Allele, error) {
	const op = "popstore.SubPopGenotype"
	if err := p.noVisibleVSP(op); err != nil {
		return nil, err
	}
	if sp < 0 || sp >= len(p.cur.subPopSizes) {
		return nil, &RangeError{What: "subpopulation", Index: sp, Size: len(p.cur.subPopSizes)}
	}
	if err := p.SortIndividuals(false); err != nil {
		return nil, err
	}
	stride := p.sch.Stride()
	return p.cur.genotype[p.cur.subPopIndex[sp]*stride : p.cur.subPopIndex[sp+1]*stride], nil
}

// SetGenotype fills the live generation's genotype buffer from values,
// repeating them cyclically until every allele is written.
func (p *Population) SetGenotype(values []Allele) error {
	return p.setGenotypeRange("popstore.SetGenotype", values, -1)
}

// SetSubPopGenotype cyclically fills one subpopulation's genotype range.
func (p *Population) SetSubPopGenotype(sp int, values []Allele) error {
	const op = "popstore.SetSubPopGenotype"
	if sp < 0 || sp >= len(p.cur.subPopSizes) {
		return &RangeError{What: "subpopulation", Index: sp, Size: len(p.cur.subPopSizes)}
	}
	return p.setGenotypeRange(op, values, sp)
}

func (p *Population) setGenotypeRange(op string, values []Allele, sp int) error {
	if err := p.mutable(op); err != nil {
		return err
	}
	if err := p.noVisibleVSP(op); err != nil {
		return err
	}
	if len(values) == 0 {
		return precondition(op, "no values supplied")
	}
	if err := p.SortIndividuals(false); err != nil {
		return err
	}
	stride := p.sch.Stride()
	lo, hi := 0, p.cur.size()*stride
	if sp >= 0 {
		lo = p.cur.subPopIndex[sp] * stride
		hi = p.cur.subPopIndex[sp+1] * stride
	}
	for i := lo; i < hi; i++ {
		p.cur.genotype[i] = values[(i-lo)%len(values)]
	}
	return nil
}

// IndInfo gathers one auxiliary field across the live generation, in
// individual order.
func (p *Population) IndInfo(field string) ([]float64, error) {
	const op = "popstore.IndInfo"
	idx, err := p.sch.InfoIndex(field)
	if err != nil {
		return nil, preconditionWrap(op, err)
	}
	out := make([]float64, 0, p.cur.size())
	for i := range p.cur.inds {
		out = append(out, p.cur.info[p.cur.inds[i].infoOff+idx])
	}
	return out, nil
}

// SubPopIndInfo gathers one auxiliary field across subpopulation sp.
func (p *Population) SubPopIndInfo(sp int, field string) ([]float64, error) {
	const op = "popstore.SubPopIndInfo"
	idx, err := p.sch.InfoIndex(field)
	if err != nil {
		return nil, preconditionWrap(op, err)
	}
	if sp < 0 || sp >= len(p.cur.subPopSizes) {
		return nil, &RangeError{What: "subpopulation", Index: sp, Size: len(p.cur.subPopSizes)}
	}
	begin, end := p.cur.subPopIndex[sp], p.cur.subPopIndex[sp+1]
	out := make([]float64, 0, end-begin)
	for i := begin; i < end; i++ {
		out = append(out, p.cur.info[p.cur.inds[i].infoOff+idx])
	}
	return out, nil
}

// SetIndInfo assigns one auxiliary field across the live generation,
// repeating values cyclically.
func (p *Population) SetIndInfo(field string, values []float64) error {
	const op = "popstore.SetIndInfo"
	if err := p.mutable(op); err != nil {
		return err
	}
	idx, err := p.sch.InfoIndex(field)
	if err != nil {
		return preconditionWrap(op, err)
	}
	if len(values) == 0 {
		return precondition(op, "no values supplied")
	}
	for i := range p.cur.inds {
		p.cur.info[p.cur.inds[i].infoOff+idx] = values[i%len(values)]
	}
	return nil
}
