package models

// NewsItem is one headline. PublishedAt is unix seconds.
type NewsItem struct {
	Title       string `json:"title"`
	Publisher   string `json:"publisher"`
	Link        string `json:"link"`
	PublishedAt int64  `json:"published_at"`
}

// NewsResult records which tier produced the items.
type NewsResult struct {
	Stock  string     `json:"stock"`
	Source string     `json:"source"`
	News   []NewsItem `json:"news"`
}
