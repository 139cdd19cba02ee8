// Package media describes the media item a subtitle lookup is made for.
//
// A Descriptor is supplied by the caller (a library scanner, a player, the CLI)
// and is never mutated by the engine. ParseFileName recovers title, year,
// season/episode, resolution, and release group from scene-style file names
// when the caller could not supply them, and FileIdentifier derives the stable
// key the subtitle cache indexes candidates under.
package media
