package schema

import (
	"fmt"
	"slices"
)

// Remap describes how one ploidy set of the new genotype layout is filled
// from the old layout: Source[j] is the old locus index supplying new locus
// j, or ZeroFill for a freshly introduced locus.
//
// Buffer migration applies the same table once per chromosome set.
type Remap struct {
	OldTotLoci int
	NewTotLoci int
	Source     []int
}

// ZeroFill marks a destination locus with no source.
const ZeroFill = -1

// Identity reports whether the remap is a no-op (same layout, every locus
// sourced from itself).
func (m Remap) Identity() bool {
	if m.OldTotLoci != m.NewTotLoci {
		return false
	}
	for j, s := range m.Source {
		if s != j {
			return false
		}
	}
	return true
}

// ApplyRemap copies one individual's genotype from src (old layout) into dst
// (new layout), chromosome set by chromosome set. Destination loci without a
// source are set to the zero value.
func ApplyRemap[T any](m Remap, dst, src []T, ploidy int) {
	var zero T
	for p := 0; p < ploidy; p++ {
		d := dst[p*m.NewTotLoci : (p+1)*m.NewTotLoci]
		s := src[p*m.OldTotLoci : (p+1)*m.OldTotLoci]
		for j, from := range m.Source {
			if from == ZeroFill {
				d[j] = zero
			} else {
				d[j] = s[from]
			}
		}
	}
}

func identitySource(n int) []int {
	src := make([]int, n)
	for i := range src {
		src[i] = i
	}
	return src
}

func (d Descriptor) namesByLocus() map[string]int {
	m := make(map[string]int, len(d.LociNames))
	for i, n := range d.LociNames {
		m[n] = i
	}
	return m
}

// AddChrom derives a descriptor with one additional chromosome holding the
// given loci. The chromosome is appended after the existing autosomes; when
// the schema carries a sex chromosome it stays last, so the new chromosome
// is inserted just before it.
func AddChrom(d Descriptor, lociPos []float64, lociNames []string) (Descriptor, Remap, error) {
	if len(lociPos) == 0 {
		return Descriptor{}, Remap{}, fmt.Errorf("%w: new chromosome needs at least one locus", ErrInvalidDescriptor)
	}
	for i := 1; i < len(lociPos); i++ {
		if lociPos[i] <= lociPos[i-1] {
			return Descriptor{}, Remap{}, fmt.Errorf("%w: new chromosome positions not strictly increasing", ErrInvalidDescriptor)
		}
	}
	if len(d.LociNames) != 0 && len(lociNames) != len(lociPos) {
		return Descriptor{}, Remap{}, fmt.Errorf("%w: a name is required for every new locus", ErrInvalidDescriptor)
	}
	if len(d.LociNames) == 0 && len(lociNames) != 0 {
		return Descriptor{}, Remap{}, fmt.Errorf("%w: existing loci are unnamed, new loci cannot be named", ErrInvalidDescriptor)
	}
	existing := d.namesByLocus()
	for _, n := range lociNames {
		if _, dup := existing[n]; dup {
			return Descriptor{}, Remap{}, fmt.Errorf("%w: locus name %q already in use", ErrInvalidDescriptor, n)
		}
	}

	oldTot := d.totalLoci()
	insertChrom := len(d.NumLoci)
	insertLocus := oldTot
	if d.SexChrom {
		insertChrom--
		insertLocus = oldTot - d.NumLoci[len(d.NumLoci)-1]
	}

	nd := d.Clone()
	nd.NumLoci = slices.Insert(nd.NumLoci, insertChrom, len(lociPos))
	if len(nd.LociPos) != 0 {
		nd.LociPos = slices.Insert(nd.LociPos, insertLocus, lociPos...)
	}
	if len(nd.LociNames) != 0 {
		nd.LociNames = slices.Insert(nd.LociNames, insertLocus, lociNames...)
	}
	if len(nd.ChromMap) != 0 {
		nd.ChromMap = slices.Insert(nd.ChromMap, insertChrom, 0)
	}

	src := make([]int, 0, oldTot+len(lociPos))
	src = append(src, identitySource(insertLocus)...)
	for range lociPos {
		src = append(src, ZeroFill)
	}
	for i := insertLocus; i < oldTot; i++ {
		src = append(src, i)
	}
	return nd, Remap{OldTotLoci: oldTot, NewTotLoci: len(src), Source: src}, nil
}

// AddLoci derives a descriptor with extra loci inserted into existing
// chromosomes. The (chromosome, position) pairs must be supplied in strictly
// ascending order; each new locus is spliced into its chromosome by map
// position via a simultaneous linear scan over old and new locus lists.
//
// The returned index slice gives the absolute index of every inserted locus
// in the new layout, in input order.
func AddLoci(d Descriptor, chroms []int, pos []float64, names []string) (Descriptor, Remap, []int, error) {
	if len(chroms) != len(pos) {
		return Descriptor{}, Remap{}, nil, fmt.Errorf("%w: chromosome and position lists differ in length", ErrInvalidDescriptor)
	}
	if len(chroms) == 0 {
		return Descriptor{}, Remap{}, nil, fmt.Errorf("%w: no loci to add", ErrInvalidDescriptor)
	}
	if len(d.LociNames) != 0 && len(names) != len(pos) {
		return Descriptor{}, Remap{}, nil, fmt.Errorf("%w: a name is required for every new locus", ErrInvalidDescriptor)
	}
	if len(d.LociNames) == 0 && len(names) != 0 {
		return Descriptor{}, Remap{}, nil, fmt.Errorf("%w: existing loci are unnamed, new loci cannot be named", ErrInvalidDescriptor)
	}
	if len(d.LociPos) == 0 {
		return Descriptor{}, Remap{}, nil, fmt.Errorf("%w: schema has no locus positions to insert by", ErrInvalidDescriptor)
	}
	for i := range chroms {
		if chroms[i] < 0 || chroms[i] >= len(d.NumLoci) {
			return Descriptor{}, Remap{}, nil, &RangeError{What: "chromosome", Index: chroms[i], Size: len(d.NumLoci)}
		}
		if i > 0 && (chroms[i] < chroms[i-1] || (chroms[i] == chroms[i-1] && pos[i] <= pos[i-1])) {
			return Descriptor{}, Remap{}, nil, fmt.Errorf("%w: new loci must be in strictly ascending (chromosome, position) order", ErrInvalidDescriptor)
		}
	}
	existing := d.namesByLocus()
	for _, n := range names {
		if _, dup := existing[n]; dup {
			return Descriptor{}, Remap{}, nil, fmt.Errorf("%w: locus name %q already in use", ErrInvalidDescriptor, n)
		}
	}

	oldTot := d.totalLoci()
	nd := d.Clone()
	nd.NumLoci = slices.Clone(d.NumLoci)
	nd.LociPos = nd.LociPos[:0]
	if len(d.LociNames) != 0 {
		nd.LociNames = nd.LociNames[:0]
	}

	src := make([]int, 0, oldTot+len(pos))
	newIndex := make([]int, len(pos))

	oldStart := 0
	ni := 0 // cursor over new loci
	for ch, n := range d.NumLoci {
		count := n
		oi := 0 // cursor over old loci of this chromosome
		for oi < n || (ni < len(chroms) && chroms[ni] == ch) {
			insert := ni < len(chroms) && chroms[ni] == ch &&
				(oi >= n || pos[ni] < d.LociPos[oldStart+oi])
			if insert {
				newIndex[ni] = len(src)
				nd.LociPos = append(nd.LociPos, pos[ni])
				if len(d.LociNames) != 0 {
					nd.LociNames = append(nd.LociNames, names[ni])
				}
				src = append(src, ZeroFill)
				ni++
				count++
				continue
			}
			if ni < len(chroms) && chroms[ni] == ch && oi < n && pos[ni] == d.LociPos[oldStart+oi] {
				return Descriptor{}, Remap{}, nil, fmt.Errorf("%w: position %g already occupied on chromosome %d", ErrInvalidDescriptor, pos[ni], ch)
			}
			nd.LociPos = append(nd.LociPos, d.LociPos[oldStart+oi])
			if len(d.LociNames) != 0 {
				nd.LociNames = append(nd.LociNames, d.LociNames[oldStart+oi])
			}
			src = append(src, oldStart+oi)
			oi++
		}
		nd.NumLoci[ch] = count
		oldStart += n
	}

	return nd, Remap{OldTotLoci: oldTot, NewTotLoci: len(src), Source: src}, newIndex, nil
}

// RemoveLoci derives a descriptor without the given loci. Exactly one of
// remove or keep must be supplied; both are absolute locus indices in
// strictly ascending order. Chromosomes losing all loci are retained with a
// zero locus count.
func RemoveLoci(d Descriptor, remove, keep []int) (Descriptor, Remap, error) {
	if len(remove) != 0 && len(keep) != 0 {
		return Descriptor{}, Remap{}, fmt.Errorf("%w: specify one and only one of remove or keep", ErrInvalidDescriptor)
	}
	if len(remove) == 0 && len(keep) == 0 {
		return Descriptor{}, Remap{}, fmt.Errorf("%w: nothing to remove", ErrInvalidDescriptor)
	}
	tot := d.totalLoci()
	check := remove
	if len(keep) != 0 {
		check = keep
	}
	for i, loc := range check {
		if loc < 0 || loc >= tot {
			return Descriptor{}, Remap{}, &RangeError{What: "locus", Index: loc, Size: tot}
		}
		if i > 0 && loc <= check[i-1] {
			return Descriptor{}, Remap{}, fmt.Errorf("%w: locus indices must be in strictly ascending order", ErrInvalidDescriptor)
		}
	}

	kept := keep
	if len(kept) == 0 {
		kept = make([]int, 0, tot-len(remove))
		ri := 0
		for loc := 0; loc < tot; loc++ {
			if ri < len(remove) && remove[ri] == loc {
				ri++
				continue
			}
			kept = append(kept, loc)
		}
	}

	nd := d.Clone()
	nd.NumLoci = make([]int, len(d.NumLoci))
	if len(d.LociPos) != 0 {
		nd.LociPos = nd.LociPos[:0]
	}
	if len(d.LociNames) != 0 {
		nd.LociNames = nd.LociNames[:0]
	}
	chromEnd := make([]int, len(d.NumLoci))
	sum := 0
	for ch, n := range d.NumLoci {
		sum += n
		chromEnd[ch] = sum
	}
	ch := 0
	for _, loc := range kept {
		for loc >= chromEnd[ch] {
			ch++
		}
		nd.NumLoci[ch]++
		if len(d.LociPos) != 0 {
			nd.LociPos = append(nd.LociPos, d.LociPos[loc])
		}
		if len(d.LociNames) != 0 {
			nd.LociNames = append(nd.LociNames, d.LociNames[loc])
		}
	}

	return nd, Remap{OldTotLoci: tot, NewTotLoci: len(kept), Source: slices.Clone(kept)}, nil
}

// AddInfoFields derives a descriptor with the given auxiliary fields
// appended. Fields already present are skipped; the returned slice holds the
// names actually added, in order.
func AddInfoFields(d Descriptor, fields []string) (Descriptor, []string, error) {
	nd := d.Clone()
	var added []string
	for _, f := range fields {
		if f == "" {
			return Descriptor{}, nil, fmt.Errorf("%w: empty info field name", ErrInvalidDescriptor)
		}
		if slices.Contains(nd.InfoFields, f) {
			continue
		}
		nd.InfoFields = append(nd.InfoFields, f)
		added = append(added, f)
	}
	return nd, added, nil
}

// SetInfoFields derives a descriptor whose auxiliary field list is replaced
// wholesale.
func SetInfoFields(d Descriptor, fields []string) (Descriptor, error) {
	nd := d.Clone()
	nd.InfoFields = slices.Clone(fields)
	if err := nd.Validate(); err != nil {
		return Descriptor{}, err
	}
	return nd, nil
}

// RemoveInfoFields derives a descriptor without the named auxiliary fields.
// Every field must exist. The returned slice holds the retained old column
// indices in ascending order.
func RemoveInfoFields(d Descriptor, fields []string) (Descriptor, []int, error) {
	drop := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if !slices.Contains(d.InfoFields, f) {
			return Descriptor{}, nil, fmt.Errorf("%w: %q", ErrUnknownInfoField, f)
		}
		drop[f] = struct{}{}
	}
	nd := d.Clone()
	nd.InfoFields = nd.InfoFields[:0]
	var kept []int
	for i, f := range d.InfoFields {
		if _, gone := drop[f]; gone {
			continue
		}
		nd.InfoFields = append(nd.InfoFields, f)
		kept = append(kept, i)
	}
	return nd, kept, nil
}

// Rearrange derives a descriptor with loci redistributed among chromosomes
// without changing their total number or stored order. Chromosome names are
// regenerated; locus data needs no migration.
func Rearrange(d Descriptor, newNumLoci []int, newLociPos []float64) (Descriptor, error) {
	tot := d.totalLoci()
	if len(newNumLoci) != 0 {
		sum := 0
		for _, n := range newNumLoci {
			sum += n
		}
		if sum != tot {
			return Descriptor{}, fmt.Errorf("%w: rearranging loci must keep the total locus count (%d != %d)", ErrInvalidDescriptor, sum, tot)
		}
	}
	nd := d.Clone()
	if len(newNumLoci) != 0 {
		nd.NumLoci = slices.Clone(newNumLoci)
		nd.ChromMap = nil
	}
	if len(newLociPos) != 0 {
		if len(newLociPos) != tot {
			return Descriptor{}, fmt.Errorf("%w: %d positions for %d loci", ErrInvalidDescriptor, len(newLociPos), tot)
		}
		nd.LociPos = slices.Clone(newLociPos)
	}
	if err := nd.Validate(); err != nil {
		return Descriptor{}, err
	}
	return nd, nil
}

// MergeChrom derives the schema of a chromosome-append composition: all of
// a's chromosomes followed by all of b's. Both inputs must share ploidy and
// allele semantics; a may not carry a sex chromosome (it must stay last).
// Auxiliary fields come from a.
func MergeChrom(a, b Descriptor) (Descriptor, error) {
	if a.Ploidy != b.Ploidy {
		return Descriptor{}, fmt.Errorf("%w: ploidy differs (%d != %d)", ErrInvalidDescriptor, a.Ploidy, b.Ploidy)
	}
	if a.SexChrom {
		return Descriptor{}, fmt.Errorf("%w: cannot append chromosomes after a sex chromosome", ErrInvalidDescriptor)
	}
	if a.MaxAllele != b.MaxAllele || !slices.Equal(a.AlleleNames, b.AlleleNames) {
		return Descriptor{}, fmt.Errorf("%w: allele tables differ", ErrInvalidDescriptor)
	}
	if (len(a.LociNames) == 0) != (len(b.LociNames) == 0) {
		return Descriptor{}, fmt.Errorf("%w: one input names its loci and the other does not", ErrInvalidDescriptor)
	}
	for _, n := range b.LociNames {
		if slices.Contains(a.LociNames, n) {
			return Descriptor{}, fmt.Errorf("%w: locus name %q present in both inputs", ErrInvalidDescriptor, n)
		}
	}
	nd := a.Clone()
	nd.NumLoci = append(nd.NumLoci, b.NumLoci...)
	nd.SexChrom = b.SexChrom
	if len(a.LociPos) != 0 && len(b.LociPos) != 0 {
		nd.LociPos = append(nd.LociPos, b.LociPos...)
	} else {
		nd.LociPos = nil
	}
	if len(a.LociNames) != 0 {
		nd.LociNames = append(nd.LociNames, b.LociNames...)
	}
	nd.ChromMap = nil
	return nd, nil
}

// MergeLoci derives the schema of a loci-append composition: both inputs
// must have the same chromosome count; each chromosome's loci are merged by
// map position. Both inputs must name their loci. The returned index slices
// give the new absolute index of every locus of a and of b.
func MergeLoci(a, b Descriptor) (Descriptor, []int, []int, error) {
	if a.Ploidy != b.Ploidy {
		return Descriptor{}, nil, nil, fmt.Errorf("%w: ploidy differs (%d != %d)", ErrInvalidDescriptor, a.Ploidy, b.Ploidy)
	}
	if len(a.NumLoci) != len(b.NumLoci) {
		return Descriptor{}, nil, nil, fmt.Errorf("%w: chromosome counts differ (%d != %d)", ErrInvalidDescriptor, len(a.NumLoci), len(b.NumLoci))
	}
	if a.SexChrom != b.SexChrom {
		return Descriptor{}, nil, nil, fmt.Errorf("%w: sex chromosome flags differ", ErrInvalidDescriptor)
	}
	if len(a.LociNames) == 0 || len(b.LociNames) == 0 {
		return Descriptor{}, nil, nil, fmt.Errorf("%w: merging loci requires named loci on both inputs", ErrInvalidDescriptor)
	}
	if len(a.LociPos) == 0 || len(b.LociPos) == 0 {
		return Descriptor{}, nil, nil, fmt.Errorf("%w: merging loci requires locus positions on both inputs", ErrInvalidDescriptor)
	}
	for _, n := range b.LociNames {
		if slices.Contains(a.LociNames, n) {
			return Descriptor{}, nil, nil, fmt.Errorf("%w: locus name %q present in both inputs", ErrInvalidDescriptor, n)
		}
	}

	nd := a.Clone()
	nd.NumLoci = make([]int, len(a.NumLoci))
	nd.LociPos = nd.LociPos[:0]
	nd.LociNames = nd.LociNames[:0]
	nd.ChromMap = nil

	idxA := make([]int, len(a.LociNames))
	idxB := make([]int, len(b.LociNames))

	aStart, bStart := 0, 0
	for ch := range a.NumLoci {
		an, bn := a.NumLoci[ch], b.NumLoci[ch]
		ai, bi := 0, 0
		for ai < an || bi < bn {
			takeA := bi >= bn || (ai < an && a.LociPos[aStart+ai] < b.LociPos[bStart+bi])
			if ai < an && bi < bn && a.LociPos[aStart+ai] == b.LociPos[bStart+bi] {
				return Descriptor{}, nil, nil, fmt.Errorf("%w: position %g occupied in both inputs on chromosome %d", ErrInvalidDescriptor, a.LociPos[aStart+ai], ch)
			}
			if takeA {
				idxA[aStart+ai] = len(nd.LociPos)
				nd.LociPos = append(nd.LociPos, a.LociPos[aStart+ai])
				nd.LociNames = append(nd.LociNames, a.LociNames[aStart+ai])
				ai++
			} else {
				idxB[bStart+bi] = len(nd.LociPos)
				nd.LociPos = append(nd.LociPos, b.LociPos[bStart+bi])
				nd.LociNames = append(nd.LociNames, b.LociNames[bStart+bi])
				bi++
			}
			nd.NumLoci[ch]++
		}
		aStart += an
		bStart += bn
	}
	return nd, idxA, idxB, nil
}
