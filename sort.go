package popstore

import "time"

// SortIndividuals resolves the ordered flag by physically migrating each
// individual's data into fresh buffers laid out in record order. A no-op if
// already ordered. With infoOnly set only the auxiliary buffer is migrated,
// for the case where the genotype layout is already known-contiguous (e.g.
// right after a structural edit) but the info columns need resyncing.
func (p *Population) SortIndividuals(infoOnly bool) error {
	const op = "popstore.SortIndividuals"
	if p.cur.ordered {
		return nil
	}
	start := time.Now()
	stride := p.sch.Stride()
	is := p.sch.InfoSize()
	n := p.cur.size()

	if infoOnly {
		if is == 0 {
			p.cur.ordered = true
			return nil
		}
		if err := p.reserve(op, int64(n*is)*8); err != nil {
			return err
		}
		info := make([]float64, n*is)
		for i := range p.cur.inds {
			ind := &p.cur.inds[i]
			copy(info[i*is:(i+1)*is], p.cur.info[ind.infoOff:ind.infoOff+is])
			ind.infoOff = i * is
		}
		p.unreserve(int64(len(p.cur.info)) * 8)
		p.cur.info = info
		p.cur.ordered = true
		p.metrics.RecordSort(time.Since(start), int64(n*is)*8)
		return p.verify(op)
	}

	if err := p.reserve(op, int64(n*stride)*2+int64(n*is)*8); err != nil {
		return err
	}
	genotype := make([]Allele, n*stride)
	info := make([]float64, n*is)
	for i := range p.cur.inds {
		ind := &p.cur.inds[i]
		copy(genotype[i*stride:(i+1)*stride], p.cur.genotype[ind.genoOff:ind.genoOff+stride])
		copy(info[i*is:(i+1)*is], p.cur.info[ind.infoOff:ind.infoOff+is])
		ind.genoOff = i * stride
		ind.infoOff = i * is
	}
	p.unreserve(int64(len(p.cur.genotype))*2 + int64(len(p.cur.info))*8)
	p.cur.genotype = genotype
	p.cur.info = info
	p.cur.ordered = true
	p.metrics.RecordSort(time.Since(start), int64(n*stride)*2+int64(n*is)*8)
	return p.verify(op)
}
