package popstore

import (
	"github.com/popgene/popstore/schema"
)

// View is a lightweight, non-owning window onto one individual's data. It
// stays valid only until the next operation that reallocates or swaps the
// owning buffers; never hold a View across such a call.
type View struct {
	g   *genData
	sch *schema.Schema
	idx int
}

// Index returns the individual's position within its generation.
func (v View) Index() int { return v.idx }

// Handle returns the individual's schema handle.
func (v View) Handle() schema.Handle { return v.g.inds[v.idx].handle }

// Tag returns the individual's signed subpopulation tag. Non-negative values
// are subpopulation membership; negative values mark pending removal.
func (v View) Tag() int { return v.g.inds[v.idx].tag }

// SetTag stamps the subpopulation tag. Only partition-restructuring
// algorithms should call this.
func (v View) SetTag(tag int) { v.g.inds[v.idx].tag = tag }

// Sex returns the individual's sex flag.
func (v View) Sex() Sex {
	if v.g.inds[v.idx].flags&flagFemale != 0 {
		return Female
	}
	return Male
}

// SetSex sets the individual's sex flag.
func (v View) SetSex(s Sex) {
	if s == Female {
		v.g.inds[v.idx].flags |= flagFemale
	} else {
		v.g.inds[v.idx].flags &^= flagFemale
	}
}

// Affected returns the individual's affection status.
func (v View) Affected() bool { return v.g.inds[v.idx].flags&flagAffected != 0 }

// SetAffected sets the individual's affection status.
func (v View) SetAffected(a bool) {
	if a {
		v.g.inds[v.idx].flags |= flagAffected
	} else {
		v.g.inds[v.idx].flags &^= flagAffected
	}
}

// Genotype returns the individual's genotype range as a mutable slice of the
// shared buffer. Zero-copy; invalidated by any reallocating operation.
func (v View) Genotype() []Allele {
	off := v.g.inds[v.idx].genoOff
	return v.g.genotype[off : off+v.sch.Stride()]
}

// ChromSet returns one chromosome set of the individual's genotype.
func (v View) ChromSet(p int) ([]Allele, error) {
	if p < 0 || p >= v.sch.LayoutPloidy() {
		return nil, &RangeError{What: "chromosome set", Index: p, Size: v.sch.LayoutPloidy()}
	}
	off := v.g.inds[v.idx].genoOff + p*v.sch.TotNumLoci()
	return v.g.genotype[off : off+v.sch.TotNumLoci()], nil
}

// Allele returns the allele at the given locus of the given chromosome set.
func (v View) Allele(p, locus int) (Allele, error) {
	set, err := v.ChromSet(p)
	if err != nil {
		return 0, err
	}
	if locus < 0 || locus >= len(set) {
		return 0, &RangeError{What: "locus", Index: locus, Size: len(set)}
	}
	return set[locus], nil
}

// SetAllele writes the allele at the given locus of the given chromosome set.
func (v View) SetAllele(a Allele, p, locus int) error {
	set, err := v.ChromSet(p)
	if err != nil {
		return err
	}
	if locus < 0 || locus >= len(set) {
		return &RangeError{What: "locus", Index: locus, Size: len(set)}
	}
	set[locus] = a
	return nil
}

// Info returns the individual's auxiliary field range as a mutable slice of
// the shared buffer. Zero-copy; invalidated by any reallocating operation.
func (v View) Info() []float64 {
	off := v.g.inds[v.idx].infoOff
	return v.g.info[off : off+v.sch.InfoSize()]
}

// InfoAt returns one auxiliary field value by column index.
func (v View) InfoAt(field int) (float64, error) {
	if field < 0 || field >= v.sch.InfoSize() {
		return 0, &RangeError{What: "info field", Index: field, Size: v.sch.InfoSize()}
	}
	return v.g.info[v.g.inds[v.idx].infoOff+field], nil
}

// SetInfoAt writes one auxiliary field value by column index.
func (v View) SetInfoAt(field int, value float64) error {
	if field < 0 || field >= v.sch.InfoSize() {
		return &RangeError{What: "info field", Index: field, Size: v.sch.InfoSize()}
	}
	v.g.info[v.g.inds[v.idx].infoOff+field] = value
	return nil
}

// CopyFrom deep-copies genotype and auxiliary values (not offsets) from
// another view. The two schemas must agree in stride and field count.
func (v View) CopyFrom(o View) error {
	const op = "popstore.View.CopyFrom"
	if v.sch.Stride() != o.sch.Stride() {
		return precondition(op, "stride mismatch: %d != %d", v.sch.Stride(), o.sch.Stride())
	}
	if v.sch.InfoSize() != o.sch.InfoSize() {
		return precondition(op, "info field count mismatch: %d != %d", v.sch.InfoSize(), o.sch.InfoSize())
	}
	copy(v.Genotype(), o.Genotype())
	copy(v.Info(), o.Info())
	v.g.inds[v.idx].flags = o.g.inds[o.idx].flags
	return nil
}

func (p *Population) view(i int) View { return View{g: &p.cur, sch: p.sch, idx: i} }

// Ind returns a view of individual i of the currently viewed generation.
func (p *Population) Ind(i int) (View, error) {
	if i < 0 || i >= p.cur.size() {
		return View{}, &RangeError{What: "individual", Index: i, Size: p.cur.size()}
	}
	return View{g: &p.cur, sch: p.sch, idx: i}, nil
}

// IndAt returns a view of individual i of subpopulation sp.
func (p *Population) IndAt(sp, i int) (View, error) {
	begin, err := p.SubPopBegin(sp)
	if err != nil {
		return View{}, err
	}
	if i < 0 || i >= p.cur.subPopSizes[sp] {
		return View{}, &RangeError{What: "individual", Index: i, Size: p.cur.subPopSizes[sp]}
	}
	return View{g: &p.cur, sch: p.sch, idx: begin + i}, nil
}

// Ancestor returns a view of individual idx of generation gen without
// navigating the archive. Generation 0 is the currently viewed one.
func (p *Population) Ancestor(idx, gen int) (View, error) {
	if gen < 0 || gen > len(p.ancestral) {
		return View{}, &RangeError{What: "generation", Index: gen, Size: len(p.ancestral) + 1}
	}
	g := &p.cur
	if gen != p.viewing {
		slot := gen - 1
		if gen == 0 {
			slot = p.viewing - 1
		}
		g = &p.ancestral[slot]
	}
	if idx < 0 || idx >= g.size() {
		return View{}, &RangeError{What: "individual", Index: idx, Size: g.size()}
	}
	return View{g: g, sch: p.sch, idx: idx}, nil
}

// EachInd calls fn for every individual of subpopulation sp, honoring an
// active VisibleOnly virtual subpopulation. Iteration stops when fn returns
// false.
func (p *Population) EachInd(sp int, fn func(View) bool) error {
	begin, err := p.SubPopBegin(sp)
	if err != nil {
		return err
	}
	end := p.cur.subPopIndex[sp+1]
	restrict := p.activated != nil && p.activated.mode == VisibleOnly && p.activated.subPop == sp
	for i := begin; i < end; i++ {
		if restrict && !p.activated.mask.ContainsInt(i) {
			continue
		}
		if !fn(View{g: &p.cur, sch: p.sch, idx: i}) {
			return nil
		}
	}
	return nil
}
