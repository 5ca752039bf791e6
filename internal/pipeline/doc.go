// Package pipeline drives batches of media files through audio conversion
// and document generation.
//
// Conversion is serialized across the whole batch through a one-permit gate
// because the codec engine is a single shared stateful resource. Generation
// fans out one concurrent call per selected prompt and is never constrained
// by the gate. Every file carries a resumable status snapshot: segment-level
// conversion progress and prompt-level generation completions survive
// failures, so an explicit resume only redoes the missing work.
package pipeline
