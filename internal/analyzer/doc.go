// Package analyzer turns chunked repositories into searchable summaries.
//
// A Pipeline scans a repository, groups its files into chunks, and sends
// each chunk to a language model through a Runner. Fenced json blocks in
// the reply are decoded into ChunkSummary values and ingested into the
// folder's search engine.
//
// Chunks are processed by a bounded worker pool. A rate-limited model call
// waits out a fixed cooldown and retries the same chunk; any other
// unrecoverable error fails only that chunk, and the batch reports
// success, partial_success or failure.
package analyzer
