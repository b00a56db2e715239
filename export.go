package popstore

import (
	"bytes"
	"context"
	"io"

	"github.com/popgene/popstore/blobstore"
	"github.com/popgene/popstore/persistence"
	"github.com/popgene/popstore/resource"
	"github.com/popgene/popstore/schema"
)

// countingWriter tracks bytes written for snapshot metrics.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// WriteSnapshot serializes the live generation to w. Archived generations
// are never persisted; the population must be viewing the present and have
// no visible virtual subpopulation. The buffers are brought into ordered
// layout first.
func (p *Population) WriteSnapshot(w io.Writer, opts ...persistence.Option) error {
	const op = "popstore.WriteSnapshot"
	cw := &countingWriter{w: w}
	err := p.writeSnapshot(op, cw, opts...)
	p.metrics.RecordSnapshot(cw.n, err)
	return err
}

func (p *Population) writeSnapshot(op string, w io.Writer, opts ...persistence.Option) error {
	if err := p.mutable(op); err != nil {
		return err
	}
	if err := p.noVisibleVSP(op); err != nil {
		return err
	}
	if err := p.SortIndividuals(false); err != nil {
		return err
	}

	s := p.buildSnapshot()
	opts = append([]persistence.Option{persistence.WithCodec(p.codec)}, opts...)
	if err := persistence.Write(w, s, opts...); err != nil {
		return err
	}
	p.logger.Debug("wrote snapshot", "pop_size", p.PopSize(), "subpops", p.NumSubPops())
	return nil
}

func (p *Population) buildSnapshot() *persistence.Snapshot {
	d := p.sch.Descriptor
	s := &persistence.Snapshot{
		Schema: persistence.SchemaSection{
			Ploidy:      d.Ploidy,
			NumLoci:     d.NumLoci,
			SexChrom:    d.SexChrom,
			LociPos:     d.LociPos,
			AlleleNames: d.AlleleNames,
			LociNames:   d.LociNames,
			MaxAllele:   uint16(d.MaxAllele),
			InfoFields:  d.InfoFields,
		},
		SubPopSizes: make([]uint64, len(p.cur.subPopSizes)),
		Flags:       make([]uint8, p.cur.size()),
		Tags:        make([]int64, p.cur.size()),
		Genotype:    make([]uint16, len(p.cur.genotype)),
		Info:        p.cur.info,
	}
	for i, sz := range p.cur.subPopSizes {
		s.SubPopSizes[i] = uint64(sz)
	}
	for i := range p.cur.inds {
		s.Flags[i] = p.cur.inds[i].flags
		s.Tags[i] = int64(p.cur.inds[i].tag)
	}
	for i, a := range p.cur.genotype {
		s.Genotype[i] = uint16(a)
	}
	return s
}

// ReadSnapshot rebuilds a population from a snapshot stream, interning its
// schema into reg.
func ReadSnapshot(r io.Reader, reg *schema.Registry, optFns ...Option) (*Population, error) {
	const op = "popstore.ReadSnapshot"
	s, err := persistence.Read(r)
	if err != nil {
		return nil, preconditionWrap(op, err)
	}
	return fromSnapshot(op, s, reg, optFns...)
}

func fromSnapshot(op string, s *persistence.Snapshot, reg *schema.Registry, optFns ...Option) (*Population, error) {
	d := schema.Descriptor{
		Ploidy:      s.Schema.Ploidy,
		NumLoci:     s.Schema.NumLoci,
		SexChrom:    s.Schema.SexChrom,
		LociPos:     s.Schema.LociPos,
		AlleleNames: s.Schema.AlleleNames,
		LociNames:   s.Schema.LociNames,
		MaxAllele:   int(s.Schema.MaxAllele),
		InfoFields:  s.Schema.InfoFields,
	}
	sizes := make([]int, len(s.SubPopSizes))
	for i, sz := range s.SubPopSizes {
		sizes[i] = int(sz)
	}

	p, err := NewPopulation(reg, sizes, d, optFns...)
	if err != nil {
		return nil, err
	}
	if len(s.Genotype) != len(p.cur.genotype) {
		return nil, precondition(op, "genotype section length %d, want %d", len(s.Genotype), len(p.cur.genotype))
	}
	if len(s.Info) != len(p.cur.info) {
		return nil, precondition(op, "auxiliary section length %d, want %d", len(s.Info), len(p.cur.info))
	}

	for i, a := range s.Genotype {
		p.cur.genotype[i] = Allele(a)
	}
	copy(p.cur.info, s.Info)
	for i := range p.cur.inds {
		p.cur.inds[i].flags = s.Flags[i]
		p.cur.inds[i].tag = int(s.Tags[i])
	}
	return p, p.verify(op)
}

// SaveSnapshot writes the live generation to a file via an atomic rename.
func (p *Population) SaveSnapshot(path string, opts ...persistence.Option) error {
	return persistence.SaveToFile(path, func(w io.Writer) error {
		return p.WriteSnapshot(w, opts...)
	})
}

// LoadSnapshot rebuilds a population from a snapshot file.
func LoadSnapshot(path string, reg *schema.Registry, optFns ...Option) (*Population, error) {
	var p *Population
	err := persistence.LoadFromFile(path, func(r io.Reader) error {
		var rerr error
		p, rerr = ReadSnapshot(r, reg, optFns...)
		return rerr
	})
	return p, err
}

// Export streams the live generation's snapshot to a blob store. Holds one
// of the controller's export slots for the duration, and throttles the
// upload when an IO limit is configured.
func (p *Population) Export(ctx context.Context, store blobstore.BlobStore, name string, opts ...persistence.Option) error {
	if err := p.res.AcquireExport(ctx); err != nil {
		return err
	}
	defer p.res.ReleaseExport()

	w, err := store.Create(ctx, name)
	if err != nil {
		return err
	}
	var dst io.Writer = w
	if p.res != nil {
		dst = resource.NewThrottledWriter(ctx, w, p.res)
	}
	if err := p.WriteSnapshot(dst, opts...); err != nil {
		_ = w.Abort()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	p.logger.Info("exported snapshot", "blob", name, "pop_size", p.PopSize())
	return nil
}

// Import rebuilds a population from a blob store snapshot.
func Import(ctx context.Context, store blobstore.BlobStore, name string, reg *schema.Registry, optFns ...Option) (*Population, error) {
	data, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return nil, err
	}
	return ReadSnapshot(bytes.NewReader(data), reg, optFns...)
}
