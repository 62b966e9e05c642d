package types

// SearchResult is one nearest-neighbor hit
type SearchResult struct {
	Score   float32 `json:"score"` // Squared L2 distance, lower is closer
	DocID   string  `json:"id"`
	Content string  `json:"document"`
}

// Stats is a point-in-time snapshot of a search engine
type Stats struct {
	TotalDocuments int `json:"total_documents"` // Vector slots, including tombstones
	Dimension      int `json:"dimension"`
	DocStoreSize   int `json:"doc_store_size"` // Live document entries
}
