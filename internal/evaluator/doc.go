// Package evaluator sends an item to the model once per persona and turns the
// reply into a schema-checked verdict. Failures stay scoped to the
// (item, persona) pair; the caller decides how to record them.
package evaluator
