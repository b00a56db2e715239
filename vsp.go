package popstore

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
)

// VSPMode selects what an activated virtual subpopulation affects.
type VSPMode int

const (
	// VisibleOnly narrows all iteration over the activated subpopulation to
	// the matching individuals until DeactivateVirtualSubPop is called.
	VisibleOnly VSPMode = iota
	// ComputeOnly marks the matching individuals for downstream computation
	// without restricting iteration.
	ComputeOnly
)

// activation is the single activated virtual subpopulation. At most one
// subpopulation can hold an activation at a time; this mirrors the global
// marker of the upstream design and is kept as documented behavior.
type activation struct {
	subPop int
	vsp    int
	mode   VSPMode
	mask   *roaring.Bitmap
}

// Splitter classifies the individuals of one physical subpopulation into
// virtual subpopulations. Implementations read Views and must not mutate
// the population.
type Splitter interface {
	// NumVirtualSubPops returns how many virtual subpopulations the
	// splitter defines within any one physical subpopulation.
	NumVirtualSubPops() int

	// Name returns a display name for virtual subpopulation vsp.
	Name(vsp int) string

	// Classify adds to mask the absolute indices, within subpopulation
	// sp's range, of the individuals belonging to virtual subpopulation
	// vsp.
	Classify(p *Population, sp, vsp int, mask *roaring.Bitmap) error
}

// SetVirtualSplitter installs (or, with nil, removes) the population's
// splitter. Any active virtual subpopulation is deactivated first.
func (p *Population) SetVirtualSplitter(s Splitter) {
	p.activated = nil
	p.splitter = s
}

// VirtualSplitter returns the installed splitter, or nil.
func (p *Population) VirtualSplitter() Splitter { return p.splitter }

// NumVirtualSubPops returns the number of virtual subpopulations the
// installed splitter defines, or 0 without a splitter.
func (p *Population) NumVirtualSubPops() int {
	if p.splitter == nil {
		return 0
	}
	return p.splitter.NumVirtualSubPops()
}

// VirtualSubPopName returns the display name of virtual subpopulation vsp.
func (p *Population) VirtualSubPopName(vsp int) (string, error) {
	const op = "popstore.VirtualSubPopName"
	if p.splitter == nil {
		return "", &PreconditionError{Op: op, Reason: "no splitter installed", cause: ErrNoSplitter}
	}
	if vsp < 0 || vsp >= p.splitter.NumVirtualSubPops() {
		return "", &RangeError{What: "virtual subpopulation", Index: vsp, Size: p.splitter.NumVirtualSubPops()}
	}
	return p.splitter.Name(vsp), nil
}

// VirtualSubPopSize computes the number of individuals of subpopulation sp
// that fall in virtual subpopulation vsp.
func (p *Population) VirtualSubPopSize(sp, vsp int) (int, error) {
	mask, err := p.classify("popstore.VirtualSubPopSize", sp, vsp)
	if err != nil {
		return 0, err
	}
	return int(mask.GetCardinality()), nil
}

// ActivateVirtualSubPop computes the membership of virtual subpopulation
// (sp, vsp) and records it as the single active virtual subpopulation.
// With VisibleOnly, iteration over sp is narrowed to the members until
// DeactivateVirtualSubPop.
func (p *Population) ActivateVirtualSubPop(sp, vsp int, mode VSPMode) error {
	const op = "popstore.ActivateVirtualSubPop"
	mask, err := p.classify(op, sp, vsp)
	if err != nil {
		return err
	}
	p.activated = &activation{subPop: sp, vsp: vsp, mode: mode, mask: mask}
	p.logger.Debug("activated virtual subpopulation",
		"subpop", sp, "vsp", vsp, "mode", int(mode), "members", mask.GetCardinality())
	return nil
}

// DeactivateVirtualSubPop clears the active virtual subpopulation, if any.
func (p *Population) DeactivateVirtualSubPop() { p.activated = nil }

// HasActivatedVirtualSubPop reports whether a virtual subpopulation is
// active, and for which physical subpopulation.
func (p *Population) HasActivatedVirtualSubPop() (bool, int) {
	if p.activated == nil {
		return false, 0
	}
	return true, p.activated.subPop
}

// ActivatedMembers returns the absolute indices of the members of the
// active virtual subpopulation, ascending. Nil when nothing is active.
func (p *Population) ActivatedMembers() []int {
	if p.activated == nil {
		return nil
	}
	out := make([]int, 0, p.activated.mask.GetCardinality())
	it := p.activated.mask.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}

// EachVirtualInd calls fn with a View of every individual of virtual
// subpopulation (sp, vsp), in physical order. Iteration stops when fn
// returns false.
func (p *Population) EachVirtualInd(sp, vsp int, fn func(v View) bool) error {
	mask, err := p.classify("popstore.EachVirtualInd", sp, vsp)
	if err != nil {
		return err
	}
	it := mask.Iterator()
	for it.HasNext() {
		if !fn(p.view(int(it.Next()))) {
			return nil
		}
	}
	return nil
}

func (p *Population) classify(op string, sp, vsp int) (*roaring.Bitmap, error) {
	if p.splitter == nil {
		return nil, &PreconditionError{Op: op, Reason: "no splitter installed", cause: ErrNoSplitter}
	}
	if sp < 0 || sp >= len(p.cur.subPopSizes) {
		return nil, &RangeError{What: "subpopulation", Index: sp, Size: len(p.cur.subPopSizes)}
	}
	if vsp < 0 || vsp >= p.splitter.NumVirtualSubPops() {
		return nil, &RangeError{What: "virtual subpopulation", Index: vsp, Size: p.splitter.NumVirtualSubPops()}
	}
	mask := roaring.New()
	if err := p.splitter.Classify(p, sp, vsp, mask); err != nil {
		return nil, preconditionWrap(op, err)
	}
	return mask, nil
}

// SexSplitter defines two virtual subpopulations, males then females.
type SexSplitter struct{}

func (SexSplitter) NumVirtualSubPops() int { return 2 }

func (SexSplitter) Name(vsp int) string {
	if vsp == 0 {
		return "Male"
	}
	return "Female"
}

func (SexSplitter) Classify(p *Population, sp, vsp int, mask *roaring.Bitmap) error {
	want := Male
	if vsp == 1 {
		want = Female
	}
	begin, end := p.cur.subPopIndex[sp], p.cur.subPopIndex[sp+1]
	for i := begin; i < end; i++ {
		if p.view(i).Sex() == want {
			mask.AddInt(i)
		}
	}
	return nil
}

// AffectionSplitter defines two virtual subpopulations, unaffected then
// affected.
type AffectionSplitter struct{}

func (AffectionSplitter) NumVirtualSubPops() int { return 2 }

func (AffectionSplitter) Name(vsp int) string {
	if vsp == 0 {
		return "Unaffected"
	}
	return "Affected"
}

func (AffectionSplitter) Classify(p *Population, sp, vsp int, mask *roaring.Bitmap) error {
	want := vsp == 1
	begin, end := p.cur.subPopIndex[sp], p.cur.subPopIndex[sp+1]
	for i := begin; i < end; i++ {
		if p.view(i).Affected() == want {
			mask.AddInt(i)
		}
	}
	return nil
}

// ProportionSplitter splits a subpopulation by rank into consecutive blocks
// of the given proportions. The proportions must sum to one; the last block
// absorbs rounding.
type ProportionSplitter struct {
	Proportions []float64
}

func (s ProportionSplitter) NumVirtualSubPops() int { return len(s.Proportions) }

func (s ProportionSplitter) Name(vsp int) string {
	return fmt.Sprintf("Prop %g", s.Proportions[vsp])
}

func (s ProportionSplitter) Classify(p *Population, sp, vsp int, mask *roaring.Bitmap) error {
	sum := 0.0
	for _, pr := range s.Proportions {
		if pr < 0 {
			return fmt.Errorf("negative proportion %g", pr)
		}
		sum += pr
	}
	if math.Abs(sum-1) > 1e-8 {
		return fmt.Errorf("proportions sum to %g, want 1", sum)
	}
	begin, end := p.cur.subPopIndex[sp], p.cur.subPopIndex[sp+1]
	size := end - begin
	lo := begin
	for k := 0; k < vsp; k++ {
		lo += int(float64(size) * s.Proportions[k])
	}
	hi := lo + int(float64(size)*s.Proportions[vsp])
	if vsp == len(s.Proportions)-1 {
		hi = end
	}
	mask.AddRange(uint64(lo), uint64(hi))
	return nil
}

// RangeSplitter defines one virtual subpopulation per half-open index range,
// relative to the subpopulation's first individual.
type RangeSplitter struct {
	Ranges [][2]int
}

func (s RangeSplitter) NumVirtualSubPops() int { return len(s.Ranges) }

func (s RangeSplitter) Name(vsp int) string {
	r := s.Ranges[vsp]
	return fmt.Sprintf("Range [%d, %d)", r[0], r[1])
}

func (s RangeSplitter) Classify(p *Population, sp, vsp int, mask *roaring.Bitmap) error {
	r := s.Ranges[vsp]
	if r[0] < 0 || r[1] < r[0] {
		return fmt.Errorf("invalid range [%d, %d)", r[0], r[1])
	}
	begin, end := p.cur.subPopIndex[sp], p.cur.subPopIndex[sp+1]
	lo := begin + r[0]
	hi := begin + r[1]
	if lo > end {
		lo = end
	}
	if hi > end {
		hi = end
	}
	if lo < hi {
		mask.AddRange(uint64(lo), uint64(hi))
	}
	return nil
}

// InfoSplitter classifies by an auxiliary field, either into discrete
// Values (one virtual subpopulation per value, exact match) or into
// Cutoffs intervals (len(Cutoffs)+1 virtual subpopulations: below the
// first cutoff, between consecutive cutoffs, at or above the last).
// Exactly one of Values and Cutoffs must be set.
type InfoSplitter struct {
	Field   string
	Values  []float64
	Cutoffs []float64
}

func (s InfoSplitter) NumVirtualSubPops() int {
	if len(s.Values) > 0 {
		return len(s.Values)
	}
	return len(s.Cutoffs) + 1
}

func (s InfoSplitter) Name(vsp int) string {
	if len(s.Values) > 0 {
		return fmt.Sprintf("%s = %g", s.Field, s.Values[vsp])
	}
	switch {
	case vsp == 0:
		return fmt.Sprintf("%s < %g", s.Field, s.Cutoffs[0])
	case vsp == len(s.Cutoffs):
		return fmt.Sprintf("%s >= %g", s.Field, s.Cutoffs[len(s.Cutoffs)-1])
	default:
		return fmt.Sprintf("%g <= %s < %g", s.Cutoffs[vsp-1], s.Field, s.Cutoffs[vsp])
	}
}

func (s InfoSplitter) Classify(p *Population, sp, vsp int, mask *roaring.Bitmap) error {
	if (len(s.Values) > 0) == (len(s.Cutoffs) > 0) {
		return fmt.Errorf("exactly one of values and cutoffs must be set")
	}
	idx, err := p.sch.InfoIndex(s.Field)
	if err != nil {
		return err
	}
	match := func(v float64) bool {
		if len(s.Values) > 0 {
			return v == s.Values[vsp]
		}
		switch {
		case vsp == 0:
			return v < s.Cutoffs[0]
		case vsp == len(s.Cutoffs):
			return v >= s.Cutoffs[len(s.Cutoffs)-1]
		default:
			return v >= s.Cutoffs[vsp-1] && v < s.Cutoffs[vsp]
		}
	}
	begin, end := p.cur.subPopIndex[sp], p.cur.subPopIndex[sp+1]
	for i := begin; i < end; i++ {
		ind := &p.cur.inds[i]
		if match(p.cur.info[ind.infoOff+idx]) {
			mask.AddInt(i)
		}
	}
	return nil
}

// CombinedSplitter concatenates the virtual subpopulations of several
// splitters into one numbering.
type CombinedSplitter struct {
	Splitters []Splitter
}

func (s CombinedSplitter) NumVirtualSubPops() int {
	n := 0
	for _, sub := range s.Splitters {
		n += sub.NumVirtualSubPops()
	}
	return n
}

func (s CombinedSplitter) locate(vsp int) (Splitter, int) {
	for _, sub := range s.Splitters {
		if vsp < sub.NumVirtualSubPops() {
			return sub, vsp
		}
		vsp -= sub.NumVirtualSubPops()
	}
	return nil, 0
}

func (s CombinedSplitter) Name(vsp int) string {
	sub, local := s.locate(vsp)
	if sub == nil {
		return ""
	}
	return sub.Name(local)
}

func (s CombinedSplitter) Classify(p *Population, sp, vsp int, mask *roaring.Bitmap) error {
	sub, local := s.locate(vsp)
	if sub == nil {
		return fmt.Errorf("virtual subpopulation %d out of range", vsp)
	}
	return sub.Classify(p, sp, local, mask)
}
