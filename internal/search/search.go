package search

// DiagramRecord is the data we index for a diagram: the display name plus
// the full current source, which is what people actually search for.
type DiagramRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// Searcher resolves a full-text query to matching diagram ids.
type Searcher interface {
	SearchIDs(text string) ([]string, error)
	Healthy() bool
}
