// Package engine wires the subtitle components together from configuration.
//
// An Engine owns one cache, one provider registry, and the search, retrieve,
// and selection components built on them. The CLI and the long-running
// service both construct an Engine and call its methods; nothing here is
// process-global.
package engine
