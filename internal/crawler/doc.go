// Package crawler defines the core types and contracts shared by the crawl
// pipeline: crawl sources and their status lifecycle, topics, insights, the
// store contract, and the typed errors each pipeline stage can return.
package crawler
