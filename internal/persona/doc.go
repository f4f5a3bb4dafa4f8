// Package persona defines evaluation personas: the instructions sent to the
// model, the JSON schema its answer must satisfy, and how a validated answer
// maps onto a verdict. Two personas ship embedded; a YAML file can replace
// them and config overrides can toggle them or change thresholds.
package persona
