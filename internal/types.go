package internal

// Journal is one configured feed.
type Journal struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Paper is a feed entry with the data needed for a report entry.
type Paper struct {
	ID        string   `json:"id"`
	Journal   string   `json:"journal"`
	Title     string   `json:"title"`
	Link      string   `json:"link"`
	Published string   `json:"published"`
	Abstract  string   `json:"abstract,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
}
