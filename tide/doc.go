// Package tide implements the TIDE evaluation engine: it matches object
// detections against ground truth annotations, computes Average Precision,
// and attributes the gap to 100% AP to a fixed taxonomy of error kinds.
//
// The engine is synchronous, side-effect-free and deterministic: two
// evaluations over byte-identical input produce byte-identical errors, AP,
// and fix output. Loading external annotation formats, mask rasterisation,
// plotting and CLI argument parsing are explicitly out of scope; callers
// build a DataSet via the ingestion surface below and call Evaluate.
package tide
