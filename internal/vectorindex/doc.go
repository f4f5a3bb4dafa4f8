// Package vectorindex provides the nearest-neighbour lookup used for
// near-duplicate detection: an exact in-process Flat index and a Qdrant
// backed index for larger histories.
package vectorindex
