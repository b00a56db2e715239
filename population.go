package popstore

import (
	"fmt"
	"slices"

	"github.com/popgene/popstore/codec"
	"github.com/popgene/popstore/resource"
	"github.com/popgene/popstore/schema"
)

// Allele is a single genotype value. The schema's MaxAllele bounds the
// values a locus may carry.
type Allele uint16

// Sex of an individual. Stored in the view's flag bits, not in the genotype
// buffer.
type Sex uint8

const (
	// Male sex.
	Male Sex = iota
	// Female sex.
	Female
)

const (
	flagFemale uint8 = 1 << iota
	flagAffected
)

// individual is the per-individual record: non-owning offsets into the two
// columnar buffers plus identity. Offsets are recomputed whenever the owning
// buffers are reallocated or migrated.
type individual struct {
	genoOff int
	infoOff int
	tag     int
	flags   uint8
	handle  schema.Handle
}

// genData is one generation's worth of columnar state: the two flat buffers,
// the individual records, and the subpopulation layout.
type genData struct {
	genotype    []Allele
	info        []float64
	inds        []individual
	subPopSizes []int
	subPopIndex []int // prefix sums, len(subPopSizes)+1

	// ordered records whether each individual's offsets match its index
	// (individual i at genotype offset i×stride). When false, bulk buffer
	// exports are invalid until SortIndividuals migrates the data.
	ordered bool
}

func (g *genData) size() int { return len(g.inds) }

func (g *genData) bytes() int64 {
	return int64(len(g.genotype))*2 + int64(len(g.info))*8
}

func (g *genData) rebuildIndex() {
	if len(g.subPopSizes) == 0 {
		g.subPopSizes = []int{g.size()}
	}
	g.subPopIndex = slices.Grow(g.subPopIndex[:0], len(g.subPopSizes)+1)
	g.subPopIndex = g.subPopIndex[:len(g.subPopSizes)+1]
	g.subPopIndex[0] = 0
	for i, sz := range g.subPopSizes {
		g.subPopIndex[i+1] = g.subPopIndex[i] + sz
	}
}

// Population owns the live generation's columnar store, the ancestral
// archive, and the virtual subpopulation state. It has a single owner and is
// not safe for concurrent mutation; callers wrapping it for multi-threaded
// use must serialize all mutating calls externally.
type Population struct {
	reg    *schema.Registry
	handle schema.Handle
	sch    *schema.Schema

	cur genData

	// ancestral holds archived generations, most recent first.
	ancestral []genData
	// depth is the retention bound for PushAndDiscard: 0 keeps none,
	// negative keeps all.
	depth int
	// viewing is the generation currently swapped into cur: 0 is live.
	viewing int

	splitter  Splitter
	activated *activation

	logger  *Logger
	metrics MetricsCollector
	res     *resource.Controller
	codec   codec.Codec
	checks  bool
}

// NewPopulation builds a population of the given subpopulation sizes over a
// schema descriptor interned into reg. Genotype and info buffers start
// zero-filled.
func NewPopulation(reg *schema.Registry, subPopSizes []int, d schema.Descriptor, optFns ...Option) (*Population, error) {
	const op = "popstore.NewPopulation"

	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if reg == nil {
		return nil, precondition(op, "nil schema registry")
	}
	handle, sch, err := reg.Intern(d)
	if err != nil {
		return nil, preconditionWrap(op, err)
	}

	p := &Population{
		reg:     reg,
		handle:  handle,
		sch:     sch,
		depth:   opts.depth,
		logger:  opts.logger,
		metrics: opts.metrics,
		res:     opts.controller,
		codec:   opts.codec,
		checks:  opts.invariantChecks,
	}
	if len(subPopSizes) == 0 {
		subPopSizes = []int{0}
	}
	for i, sz := range subPopSizes {
		if sz < 0 {
			return nil, precondition(op, "subpopulation %d has negative size %d", i, sz)
		}
	}
	if err := p.fitSubPopStru(op, subPopSizes); err != nil {
		return nil, err
	}
	return p, p.verify(op)
}

// Schema returns the live generation's schema.
func (p *Population) Schema() *schema.Schema { return p.sch }

// Handle returns the live generation's schema handle.
func (p *Population) Handle() schema.Handle { return p.handle }

// Registry returns the schema registry the population was built against.
func (p *Population) Registry() *schema.Registry { return p.reg }

// PopSize returns the individual count of the currently viewed generation.
func (p *Population) PopSize() int { return p.cur.size() }

// NumSubPops returns the number of subpopulations of the currently viewed
// generation.
func (p *Population) NumSubPops() int { return len(p.cur.subPopSizes) }

// SubPopSizes returns a copy of the subpopulation size list.
func (p *Population) SubPopSizes() []int { return slices.Clone(p.cur.subPopSizes) }

// SubPopSize returns the size of one subpopulation.
func (p *Population) SubPopSize(sp int) (int, error) {
	if sp < 0 || sp >= len(p.cur.subPopSizes) {
		return 0, &RangeError{What: "subpopulation", Index: sp, Size: len(p.cur.subPopSizes)}
	}
	return p.cur.subPopSizes[sp], nil
}

// SubPopBegin returns the index of the first individual of subpopulation sp.
func (p *Population) SubPopBegin(sp int) (int, error) {
	if sp < 0 || sp >= len(p.cur.subPopSizes) {
		return 0, &RangeError{What: "subpopulation", Index: sp, Size: len(p.cur.subPopSizes)}
	}
	return p.cur.subPopIndex[sp], nil
}

// SubPopEnd returns one past the index of the last individual of
// subpopulation sp.
func (p *Population) SubPopEnd(sp int) (int, error) {
	if sp < 0 || sp >= len(p.cur.subPopSizes) {
		return 0, &RangeError{What: "subpopulation", Index: sp, Size: len(p.cur.subPopSizes)}
	}
	return p.cur.subPopIndex[sp+1], nil
}

// Ordered reports whether the currently viewed generation's buffers are laid
// out in individual order.
func (p *Population) Ordered() bool { return p.cur.ordered }

// AncestralGens returns the number of archived generations.
func (p *Population) AncestralGens() int { return len(p.ancestral) }

// AncestralDepth returns the configured retention bound.
func (p *Population) AncestralDepth() int { return p.depth }

// ViewingGen returns the generation currently swapped in: 0 is live.
func (p *Population) ViewingGen() int { return p.viewing }

// mutable guards mutating operations against running while an ancestral
// generation is swapped in.
func (p *Population) mutable(op string) error {
	if p.viewing != 0 {
		return &PreconditionError{Op: op, Reason: fmt.Sprintf("viewing ancestral generation %d", p.viewing), cause: ErrViewingAncestral}
	}
	return nil
}

// noVisibleVSP guards operations that require the full physical layout.
func (p *Population) noVisibleVSP(op string) error {
	if p.activated != nil && p.activated.mode == VisibleOnly {
		return &PreconditionError{Op: op, Reason: "a virtual subpopulation is activated", cause: ErrActivatedVSP}
	}
	return nil
}

// reserve accounts a buffer allocation against the resource controller.
func (p *Population) reserve(op string, bytes int64) error {
	if p.res == nil || bytes <= 0 {
		return nil
	}
	if !p.res.TryAcquireMemory(bytes) {
		return &ResourceError{Op: op, Bytes: bytes}
	}
	return nil
}

func (p *Population) unreserve(bytes int64) {
	if p.res == nil || bytes <= 0 {
		return
	}
	p.res.ReleaseMemory(bytes)
}

// fitSubPopStru resizes the currently viewed generation to the given sizes.
// If the total is unchanged the buffers are reused in place; otherwise both
// buffers and the individual records are reallocated and every offset is
// recomputed sequentially. The info buffer is zero-filled either way.
func (p *Population) fitSubPopStru(op string, sizes []int) error {
	newSize := 0
	for _, sz := range sizes {
		newSize += sz
	}

	if newSize != p.cur.size() {
		stride := p.sch.Stride()
		is := p.sch.InfoSize()

		next := genData{
			genotype: nil,
			info:     nil,
			inds:     make([]individual, newSize),
			ordered:  true,
		}
		newBytes := int64(newSize*stride)*2 + int64(newSize*is)*8
		if err := p.reserve(op, newBytes); err != nil {
			return err
		}
		next.genotype = make([]Allele, newSize*stride)
		next.info = make([]float64, newSize*is)
		for i := range next.inds {
			next.inds[i] = individual{
				genoOff: i * stride,
				infoOff: i * is,
				handle:  p.handle,
			}
		}
		p.unreserve(p.cur.bytes())
		next.subPopSizes = p.cur.subPopSizes
		next.subPopIndex = p.cur.subPopIndex
		p.cur = next
	} else {
		// Zero the info columns for the new structure.
		clear(p.cur.info)
	}

	return p.setSubPopStru(op, sizes)
}

// setSubPopStru replaces the subpopulation boundaries without moving data.
func (p *Population) setSubPopStru(op string, sizes []int) error {
	total := 0
	for _, sz := range sizes {
		total += sz
	}
	if total != p.cur.size() {
		return precondition(op, "subpopulation sizes sum to %d, want population size %d", total, p.cur.size())
	}
	if len(sizes) == 0 {
		sizes = []int{p.cur.size()}
	}
	p.cur.subPopSizes = slices.Clone(sizes)
	p.cur.rebuildIndex()
	return nil
}

// SetSubPopStructure updates only the subpopulation boundaries of the live
// generation. The sizes must sum to the existing individual count exactly;
// this operation never moves data.
func (p *Population) SetSubPopStructure(sizes []int) error {
	const op = "popstore.SetSubPopStructure"
	if err := p.mutable(op); err != nil {
		return err
	}
	if err := p.noVisibleVSP(op); err != nil {
		return err
	}
	for i, sz := range sizes {
		if sz < 0 {
			return precondition(op, "subpopulation %d has negative size %d", i, sz)
		}
	}
	if err := p.setSubPopStru(op, sizes); err != nil {
		return err
	}
	return p.verify(op)
}

// Resize grows or shrinks every subpopulation to the given sizes. When
// propagate is set, existing members are recycled cyclically to fill grown
// subpopulations; otherwise new slots stay zero-filled.
func (p *Population) Resize(newSizes []int, propagate bool) error {
	const op = "popstore.Resize"
	if err := p.mutable(op); err != nil {
		return err
	}
	if err := p.noVisibleVSP(op); err != nil {
		return err
	}
	if len(newSizes) != len(p.cur.subPopSizes) {
		return precondition(op, "got %d sizes for %d subpopulations", len(newSizes), len(p.cur.subPopSizes))
	}
	for i, sz := range newSizes {
		if sz < 0 {
			return precondition(op, "subpopulation %d has negative size %d", i, sz)
		}
	}
	if err := p.SortIndividuals(false); err != nil {
		return err
	}

	newSize := 0
	for _, sz := range newSizes {
		newSize += sz
	}
	stride := p.sch.Stride()
	is := p.sch.InfoSize()

	// Fresh buffers regardless of the total: source and destination ranges
	// may overlap when copying within a reused buffer.
	next := genData{
		inds:    make([]individual, newSize),
		ordered: true,
	}
	newBytes := int64(newSize*stride)*2 + int64(newSize*is)*8
	if err := p.reserve(op, newBytes); err != nil {
		return err
	}
	next.genotype = make([]Allele, newSize*stride)
	next.info = make([]float64, newSize*is)
	for i := range next.inds {
		next.inds[i] = individual{genoOff: i * stride, infoOff: i * is, handle: p.handle}
	}

	old := &p.cur
	start := 0
	for sp, want := range newSizes {
		spSize := old.subPopSizes[sp]
		for i := 0; i < want; i++ {
			if spSize == 0 || (i >= spSize && !propagate) {
				break
			}
			src := &old.inds[old.subPopIndex[sp]+i%spSize]
			dst := start + i
			copy(next.genotype[dst*stride:(dst+1)*stride], old.genotype[src.genoOff:src.genoOff+stride])
			copy(next.info[dst*is:(dst+1)*is], old.info[src.infoOff:src.infoOff+is])
			next.inds[dst].flags = src.flags
		}
		start += want
	}

	p.unreserve(p.cur.bytes())
	p.cur = next
	if err := p.setSubPopStru(op, newSizes); err != nil {
		return err
	}
	return p.verify(op)
}

// verify re-checks the buffer-length and offset-bounds invariants of the
// currently viewed generation. A failure is a defect, not a user error.
func (p *Population) verify(op string) error {
	if !p.checks {
		return nil
	}
	return p.verifyGen(op, &p.cur)
}

func (p *Population) verifyGen(op string, g *genData) error {
	stride := p.sch.Stride()
	is := p.sch.InfoSize()
	if len(g.genotype) != g.size()*stride {
		return &InvariantError{Op: op, Reason: fmt.Sprintf("genotype buffer length %d, want %d", len(g.genotype), g.size()*stride)}
	}
	if len(g.info) != g.size()*is {
		return &InvariantError{Op: op, Reason: fmt.Sprintf("info buffer length %d, want %d", len(g.info), g.size()*is)}
	}
	total := 0
	for _, sz := range g.subPopSizes {
		total += sz
	}
	if total != g.size() {
		return &InvariantError{Op: op, Reason: fmt.Sprintf("subpopulation sizes sum to %d, want %d", total, g.size())}
	}
	for i := range g.inds {
		ind := &g.inds[i]
		if ind.handle != p.handle {
			return &InvariantError{Op: op, Reason: fmt.Sprintf("individual %d holds schema handle %d, want %d", i, ind.handle, p.handle)}
		}
		if stride > 0 && (ind.genoOff < 0 || ind.genoOff+stride > len(g.genotype)) {
			return &InvariantError{Op: op, Reason: fmt.Sprintf("individual %d genotype offset %d out of bounds", i, ind.genoOff)}
		}
		if is > 0 && (ind.infoOff < 0 || ind.infoOff+is > len(g.info)) {
			return &InvariantError{Op: op, Reason: fmt.Sprintf("individual %d info offset %d out of bounds", i, ind.infoOff)}
		}
	}
	return nil
}

// Equal reports whether two populations hold identical live data: same
// schema handle, same subpopulation layout, and the same per-individual
// genotype and info values.
func (p *Population) Equal(o *Population) bool {
	if p.handle != o.handle || p.cur.size() != o.cur.size() {
		return false
	}
	if !slices.Equal(p.cur.subPopSizes, o.cur.subPopSizes) {
		return false
	}
	stride := p.sch.Stride()
	is := p.sch.InfoSize()
	for i := range p.cur.inds {
		a, b := &p.cur.inds[i], &o.cur.inds[i]
		if a.tag != b.tag || a.flags != b.flags {
			return false
		}
		if !slices.Equal(p.cur.genotype[a.genoOff:a.genoOff+stride], o.cur.genotype[b.genoOff:b.genoOff+stride]) {
			return false
		}
		if !slices.Equal(p.cur.info[a.infoOff:a.infoOff+is], o.cur.info[b.infoOff:b.infoOff+is]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the population, including as much retained
// history as the resource budget allows. If an ancestral copy cannot be
// reserved, the clone falls back to zero retained history and the
// degradation is logged.
func (p *Population) Clone() *Population {
	c := &Population{
		reg:     p.reg,
		handle:  p.handle,
		sch:     p.sch,
		depth:   p.depth,
		viewing: p.viewing,
		logger:  p.logger,
		metrics: p.metrics,
		res:     p.res,
		codec:   p.codec,
		checks:  p.checks,
	}
	if err := c.reserve("popstore.Clone", p.cur.bytes()); err != nil {
		p.logger.LogDegradation("popstore.Clone", "live generation exceeds memory budget")
	}
	c.cur = cloneGen(&p.cur)
	for i := range p.ancestral {
		if err := c.reserve("popstore.Clone", p.ancestral[i].bytes()); err != nil {
			for j := range c.ancestral {
				c.unreserve(c.ancestral[j].bytes())
			}
			c.ancestral = nil
			p.logger.LogDegradation("popstore.Clone", fmt.Sprintf("dropped %d ancestral generations: memory budget exhausted", len(p.ancestral)))
			break
		}
		c.ancestral = append(c.ancestral, cloneGen(&p.ancestral[i]))
	}
	return c
}

func cloneGen(g *genData) genData {
	return genData{
		genotype:    slices.Clone(g.genotype),
		info:        slices.Clone(g.info),
		inds:        slices.Clone(g.inds),
		subPopSizes: slices.Clone(g.subPopSizes),
		subPopIndex: slices.Clone(g.subPopIndex),
		ordered:     g.ordered,
	}
}
