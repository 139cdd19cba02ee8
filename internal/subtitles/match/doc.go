// Package match ranks subtitle candidates against a media descriptor.
//
// Score computes a weighted similarity over language, title, year, episode,
// quality, release group, and resolution factors, omitting factors that do
// not apply to the descriptor so movies are not penalised for lacking
// episode data. Confidence adjusts similarity by source trust and
// popularity. CheckCompatibility is a separate hard gate run before a
// subtitle is applied automatically, and ByFileName ranks candidates when
// only a media file name is known.
package match
