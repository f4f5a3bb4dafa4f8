// Package dedup flags near-duplicate items by cosine similarity of their
// embeddings against items registered inside the dedup horizon.
//
// Embeddings are fetched once per item and persisted. Embedding may run
// concurrently across items; CheckAndRegister is serialized so candidates of
// one run are registered strictly in order and a later candidate is compared
// against every earlier one.
package dedup
