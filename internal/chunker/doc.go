// Package chunker splits conversation transcripts into bounded,
// overlapping chunks for indexing.
//
// Chunks target TargetChunkChars characters with OverlapChars of trailing
// context carried into the next chunk, keeping retrieval windows coherent
// across boundaries. Chunking is purely deterministic: the same transcript
// always produces the same chunk set, which is what makes content-hash
// change detection sound.
package chunker
