// Package ingestion imports parsed AI conversations into the chunk store
// and answers queries over them.
//
// A conversation is identified by the hash of its source, external id and
// title. Importing an already stored conversation is a no-op unless the
// service was built with WithUpdateOnChange, in which case a changed
// message history replaces the stored chunks.
//
// Classification is persisted only in the composite source label
// "SOURCE:app" (or "SOURCE" for general conversations); listing, search and
// summaries split that label back apart.
package ingestion
