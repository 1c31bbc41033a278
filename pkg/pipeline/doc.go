// Package pipeline runs load → transform → persist batches. Each stage is a
// bounded fan-out with its own concurrency cap; items that fail a stage are
// logged and dropped before the next stage so a single bad input never aborts
// the batch.
package pipeline
