// Package scraper defines the domain types and capability interfaces shared by
// the fetcher, extractor, storage backends, and orchestrator of listingwatch.
package scraper
