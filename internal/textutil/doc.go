// Package textutil provides the string normalisation, edit distance, and
// sanitisation helpers shared by the matcher, the providers, and the retriever.
//
// Normalisation is Unicode aware: accents are folded away, case is folded, and
// every run of characters that is neither a letter nor a digit collapses to a
// single space, so CJK titles survive and compare meaningfully.
package textutil
