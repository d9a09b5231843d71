package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	Category   string `json:"category"`
	OwnerID    string `json:"ownerId"`
	Visibility string `json:"visibility,omitempty"`
}

// Query describes a search request. OwnerID scopes the results to ideas
// the caller may see: their own plus anything not private.
type Query struct {
	Text     string
	OwnerID  string
	Category string
	Limit    int
	Offset   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push ideas into a search index.
type Indexer interface {
	IndexIdea(rec IdeaRecord) error
	DeleteIdea(id string) error
}

// IdeaRecord is the data we index for an idea.
type IdeaRecord struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Category   string `json:"category"`
	OwnerID    string `json:"ownerId"`
	Visibility string `json:"visibility"`
	Archived   bool   `json:"archived"`
}
