package models

// Result is a single hit returned by one search engine. Engine records which
// backend produced it; the aggregator keeps the first completed occurrence of
// each canonical URL.
type Result struct {
	Engine  string `json:"engine"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}
