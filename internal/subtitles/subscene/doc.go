// Package subscene scrapes the Subscene website.
//
// Search resolves a film or series page through the title search, lists the
// subtitle rows on that page and maps them to records. Downloads follow the
// detail page's download button to a zip archive, from which the best text
// subtitle for the record's language is kept.
package subscene
