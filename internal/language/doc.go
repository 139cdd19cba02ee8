// Package language provides unified language code normalization and mapping.
//
// All language-related conversions used by the subtitle engine live here:
// ISO 639-1/639-2 mapping, the canonical subtitle tags (zh-cn, zh-tw, en, ...),
// display names, inference from subtitle file-name tokens, and content based
// detection for downloaded files whose provider did not report a language.
package language
