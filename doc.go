// Package popstore is a columnar store for population-genetics data.
//
// A Population holds one live generation and an archive of ancestral
// generations. Each generation keeps genotypes and per-individual
// auxiliary fields in flat columnar buffers; individuals are lightweight
// records of offsets into those buffers, exposed through Views. The
// genotype layout (ploidy, chromosomes, loci) is described by an
// immutable schema interned in a shared Registry, so populations with the
// same structure share one descriptor.
//
// Individuals are partitioned into subpopulations. All partition changes
// (splitting, merging, resizing, migration) funnel through a single
// stable-sort restructure primitive driven by per-individual tags, which
// also handles compaction of removed individuals. Subpopulations can be
// further divided into virtual subpopulations by pluggable splitters;
// activating a virtual subpopulation narrows iteration without moving
// any data.
//
// Structural schema edits (adding or removing chromosomes, loci, or
// auxiliary fields) migrate the buffers of every generation to the new
// layout atomically: either all generations move or none do.
//
// Snapshots of the live generation can be written to files or to a
// blobstore.BlobStore, in a compact block-compressed binary format with
// checksum verification.
package popstore
