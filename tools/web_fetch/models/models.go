package models

// Result is the outcome of fetching a single resource.
type Result struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Status    int    `json:"status"`
	Truncated bool   `json:"truncated"`
	FetchMS   int    `json:"fetch_ms"`
}
