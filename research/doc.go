// Package research implements an iterative search-and-synthesize pipeline:
// a planner derives search queries for a topic, a retriever collects web
// results, a fetcher extracts page content, and a synthesizer folds the
// accumulated evidence into a cited markdown report, looping until coverage
// is adequate or the iteration cap is reached.
package research
