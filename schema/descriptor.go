// Package schema describes the genetic structure shared by every individual
// of a population: ploidy, chromosome and locus layout, allele and locus
// names, and auxiliary information fields.
//
// Descriptors are immutable once interned into a Registry. A structural
// "change" always derives a new Descriptor and interns it as a new entry;
// existing handles keep resolving to the layout they were created with.
package schema

import (
	"fmt"
	"slices"
)

// Haplodiploid is the ploidy sentinel for species where one sex carries a
// single chromosome set. Buffer layout always reserves two sets; operators
// are expected to ignore the second set for haploid carriers.
const Haplodiploid = -1

// Descriptor is the value form of a genetic structure. It carries no derived
// state; intern it into a Registry to obtain a Schema with layout helpers.
type Descriptor struct {
	// Ploidy is the number of homologous chromosome sets, or Haplodiploid.
	Ploidy int

	// NumLoci holds the locus count of each chromosome, in order.
	NumLoci []int

	// SexChrom marks the last chromosome as the sex chromosome.
	SexChrom bool

	// LociPos holds the genetic map position of every locus (unit cM),
	// concatenated chromosome by chromosome. Positions must be strictly
	// increasing within a chromosome.
	LociPos []float64

	// AlleleNames maps allele value to display name. May be empty.
	AlleleNames []string

	// LociNames holds one name per locus. May be empty.
	LociNames []string

	// MaxAllele is the largest allele value any locus may carry.
	MaxAllele int

	// InfoFields names the auxiliary per-individual fields, in column order.
	InfoFields []string

	// ChromMap assigns each chromosome to an owning process rank for
	// distributed runs. It is layout metadata only: two descriptors that
	// differ solely in ChromMap intern as equal.
	ChromMap []int
}

// Equal reports value equality of two descriptors. ChromMap is deliberately
// excluded so that distribution metadata never forks a schema entry.
func (d Descriptor) Equal(o Descriptor) bool {
	return d.Ploidy == o.Ploidy &&
		slices.Equal(d.NumLoci, o.NumLoci) &&
		d.SexChrom == o.SexChrom &&
		slices.Equal(d.LociPos, o.LociPos) &&
		slices.Equal(d.AlleleNames, o.AlleleNames) &&
		slices.Equal(d.LociNames, o.LociNames) &&
		d.MaxAllele == o.MaxAllele &&
		slices.Equal(d.InfoFields, o.InfoFields)
}

// Clone returns a deep copy of the descriptor.
func (d Descriptor) Clone() Descriptor {
	d.NumLoci = slices.Clone(d.NumLoci)
	d.LociPos = slices.Clone(d.LociPos)
	d.AlleleNames = slices.Clone(d.AlleleNames)
	d.LociNames = slices.Clone(d.LociNames)
	d.InfoFields = slices.Clone(d.InfoFields)
	d.ChromMap = slices.Clone(d.ChromMap)
	return d
}

// totalLoci sums the per-chromosome locus counts.
func (d Descriptor) totalLoci() int {
	n := 0
	for _, c := range d.NumLoci {
		n += c
	}
	return n
}

// layoutPloidy is the number of chromosome sets reserved in the genotype
// buffer. Haplodiploid species reserve two sets.
func (d Descriptor) layoutPloidy() int {
	if d.Ploidy == Haplodiploid {
		return 2
	}
	return d.Ploidy
}

// Validate checks internal consistency of the descriptor.
func (d Descriptor) Validate() error {
	if d.Ploidy != Haplodiploid && d.Ploidy <= 0 {
		return fmt.Errorf("%w: ploidy %d", ErrInvalidDescriptor, d.Ploidy)
	}
	if len(d.NumLoci) == 0 {
		return fmt.Errorf("%w: no chromosomes", ErrInvalidDescriptor)
	}
	for ch, n := range d.NumLoci {
		if n < 0 {
			return fmt.Errorf("%w: chromosome %d has negative locus count", ErrInvalidDescriptor, ch)
		}
	}
	tot := d.totalLoci()
	if len(d.LociPos) != 0 && len(d.LociPos) != tot {
		return fmt.Errorf("%w: %d locus positions for %d loci", ErrInvalidDescriptor, len(d.LociPos), tot)
	}
	if len(d.LociNames) != 0 && len(d.LociNames) != tot {
		return fmt.Errorf("%w: %d locus names for %d loci", ErrInvalidDescriptor, len(d.LociNames), tot)
	}
	if len(d.LociPos) == tot {
		idx := 0
		for ch, n := range d.NumLoci {
			for i := 1; i < n; i++ {
				if d.LociPos[idx+i] <= d.LociPos[idx+i-1] {
					return fmt.Errorf("%w: locus positions on chromosome %d not strictly increasing", ErrInvalidDescriptor, ch)
				}
			}
			idx += n
		}
	}
	if d.MaxAllele < 0 {
		return fmt.Errorf("%w: negative max allele", ErrInvalidDescriptor)
	}
	seen := make(map[string]struct{}, len(d.InfoFields))
	for _, f := range d.InfoFields {
		if f == "" {
			return fmt.Errorf("%w: empty info field name", ErrInvalidDescriptor)
		}
		if _, dup := seen[f]; dup {
			return fmt.Errorf("%w: duplicate info field %q", ErrInvalidDescriptor, f)
		}
		seen[f] = struct{}{}
	}
	if len(d.ChromMap) != 0 && len(d.ChromMap) != len(d.NumLoci) {
		return fmt.Errorf("%w: chromosome map length %d for %d chromosomes", ErrInvalidDescriptor, len(d.ChromMap), len(d.NumLoci))
	}
	return nil
}

// Schema is an interned descriptor plus derived layout values. Read-only;
// shared by every population and view holding its handle.
type Schema struct {
	Descriptor

	totNumLoci int
	stride     int
	chromIndex []int // cumulative locus offsets, len(NumLoci)+1
	infoIndex  map[string]int
}

func newSchema(d Descriptor) *Schema {
	s := &Schema{Descriptor: d.Clone()}
	s.chromIndex = make([]int, len(d.NumLoci)+1)
	for i, n := range d.NumLoci {
		s.chromIndex[i+1] = s.chromIndex[i] + n
	}
	s.totNumLoci = s.chromIndex[len(d.NumLoci)]
	s.stride = s.totNumLoci * d.layoutPloidy()
	s.infoIndex = make(map[string]int, len(d.InfoFields))
	for i, f := range d.InfoFields {
		s.infoIndex[f] = i
	}
	return s
}

// NumChrom returns the number of chromosomes.
func (s *Schema) NumChrom() int { return len(s.NumLoci) }

// TotNumLoci returns the total locus count across chromosomes.
func (s *Schema) TotNumLoci() int { return s.totNumLoci }

// LayoutPloidy returns the number of chromosome sets reserved per individual.
func (s *Schema) LayoutPloidy() int { return s.Descriptor.layoutPloidy() }

// Stride is the per-individual genotype buffer length: TotNumLoci × ploidy.
func (s *Schema) Stride() int { return s.stride }

// InfoSize is the number of auxiliary fields per individual.
func (s *Schema) InfoSize() int { return len(s.InfoFields) }

// ChromBegin returns the absolute index of the first locus of chromosome ch.
func (s *Schema) ChromBegin(ch int) (int, error) {
	if ch < 0 || ch >= len(s.NumLoci) {
		return 0, &RangeError{What: "chromosome", Index: ch, Size: len(s.NumLoci)}
	}
	return s.chromIndex[ch], nil
}

// ChromEnd returns one past the absolute index of the last locus of
// chromosome ch.
func (s *Schema) ChromEnd(ch int) (int, error) {
	if ch < 0 || ch >= len(s.NumLoci) {
		return 0, &RangeError{What: "chromosome", Index: ch, Size: len(s.NumLoci)}
	}
	return s.chromIndex[ch+1], nil
}

// ChromLocusPair splits an absolute locus index into (chromosome, locus).
func (s *Schema) ChromLocusPair(locus int) (int, int, error) {
	if locus < 0 || locus >= s.totNumLoci {
		return 0, 0, &RangeError{What: "locus", Index: locus, Size: s.totNumLoci}
	}
	ch := 0
	for s.chromIndex[ch+1] <= locus {
		ch++
	}
	return ch, locus - s.chromIndex[ch], nil
}

// AbsLocusIndex converts a (chromosome, locus) pair to an absolute index.
func (s *Schema) AbsLocusIndex(ch, locus int) (int, error) {
	if ch < 0 || ch >= len(s.NumLoci) {
		return 0, &RangeError{What: "chromosome", Index: ch, Size: len(s.NumLoci)}
	}
	if locus < 0 || locus >= s.NumLoci[ch] {
		return 0, &RangeError{What: "locus", Index: locus, Size: s.NumLoci[ch]}
	}
	return s.chromIndex[ch] + locus, nil
}

// InfoIndex resolves an auxiliary field name to its column index.
func (s *Schema) InfoIndex(name string) (int, error) {
	idx, ok := s.infoIndex[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownInfoField, name)
	}
	return idx, nil
}

// LocusName returns the name of the locus at the absolute index, or a
// generated "locN" name when the descriptor carries no names.
func (s *Schema) LocusName(locus int) (string, error) {
	if locus < 0 || locus >= s.totNumLoci {
		return "", &RangeError{What: "locus", Index: locus, Size: s.totNumLoci}
	}
	if len(s.LociNames) == 0 {
		return fmt.Sprintf("loc%d", locus), nil
	}
	return s.LociNames[locus], nil
}

// LocusByName finds the absolute index of a named locus.
func (s *Schema) LocusByName(name string) (int, error) {
	for i, n := range s.LociNames {
		if n == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: locus %q", ErrUnknownLocus, name)
}
