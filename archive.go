package popstore

import (
	"slices"
	"time"
)

// PushAndDiscard archives the live generation and adopts next's live data as
// the new one, all by buffer swap. The two populations must share a schema
// handle; a generation transition must preserve layout. When the configured
// depth is already full the oldest archived generation is discarded first.
// next ends the call empty but self-consistent.
func (p *Population) PushAndDiscard(next *Population) error {
	const op = "popstore.PushAndDiscard"
	start := time.Now()
	if err := p.mutable(op); err != nil {
		return err
	}
	if err := next.mutable(op); err != nil {
		return err
	}
	if next == p {
		return precondition(op, "cannot push a population onto itself")
	}
	if next.handle != p.handle {
		err := &InvariantError{Op: op, Reason: "generation transition would change the genotypic structure"}
		p.metrics.RecordPush(time.Since(start), err)
		return err
	}

	incoming := next.cur.bytes()
	if err := p.reserve(op, incoming); err != nil {
		p.metrics.RecordPush(time.Since(start), err)
		return err
	}

	if p.depth == 0 {
		p.unreserve(p.cur.bytes())
	} else {
		if p.depth > 0 && len(p.ancestral) == p.depth {
			oldest := p.ancestral[len(p.ancestral)-1]
			p.unreserve(oldest.bytes())
			p.ancestral = p.ancestral[:len(p.ancestral)-1]
		}
		p.ancestral = slices.Insert(p.ancestral, 0, p.cur)
	}

	p.cur = next.cur
	next.unreserve(incoming)
	next.cur = genData{ordered: true, subPopSizes: []int{0}}
	next.cur.rebuildIndex()

	p.logger.LogPush(p.cur.size(), len(p.ancestral))
	if err := p.verify(op); err != nil {
		p.metrics.RecordPush(time.Since(start), err)
		return err
	}
	if err := next.verify(op); err != nil {
		p.metrics.RecordPush(time.Since(start), err)
		return err
	}
	p.metrics.RecordPush(time.Since(start), nil)
	return nil
}

// UseAncestralGen swaps generation k into the live slot. k=0 restores the
// present; k>0 views the (k-1)-th archived snapshot. Mutating the population
// while any k≠0 is active is a caller error guarded by every mutator; return
// to generation 0 first.
func (p *Population) UseAncestralGen(k int) error {
	const op = "popstore.UseAncestralGen"
	if k == p.viewing {
		return nil
	}
	if k < 0 || k > len(p.ancestral) {
		return &RangeError{What: "generation", Index: k, Size: len(p.ancestral) + 1}
	}

	if p.viewing != 0 {
		// Swap the present back in first.
		p.cur, p.ancestral[p.viewing-1] = p.ancestral[p.viewing-1], p.cur
		p.viewing = 0
		if k == 0 {
			p.cur.rebuildIndex()
			return p.verify(op)
		}
	}

	p.cur, p.ancestral[k-1] = p.ancestral[k-1], p.cur
	p.viewing = k
	p.cur.rebuildIndex()
	return p.verify(op)
}

// SetAncestralDepth changes the retention bound. A smaller bound discards
// the oldest archived generations immediately; a larger one only affects
// future pushes. Negative keeps every generation.
func (p *Population) SetAncestralDepth(depth int) error {
	const op = "popstore.SetAncestralDepth"
	if err := p.UseAncestralGen(0); err != nil {
		return err
	}
	if depth >= 0 && len(p.ancestral) > depth {
		for _, g := range p.ancestral[depth:] {
			p.unreserve(g.bytes())
		}
		p.ancestral = p.ancestral[:depth]
	}
	p.depth = depth
	return nil
}
