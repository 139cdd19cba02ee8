// Package main implements the subtrove command-line client.
//
// Commands search providers, select or download subtitles for a media file,
// inspect and maintain the local cache, and run or control the background
// service that exposes the HTTP API.
package main
