package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID          string `json:"id"`
	DocumentID  string `json:"documentId"`
	Strategy    string `json:"strategy"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	Repo        string `json:"repo"`
	Path        string `json:"path"`
	Outcome     string `json:"outcome"`
	PublishedAt int64  `json:"publishedAt"`
}

// Query describes a search request.
type Query struct {
	Text     string
	Strategy string // empty = blog and ebook
	Limit    int
	Offset   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// PostRecord is what we index for the latest publish of a document.
type PostRecord struct {
	ID          string `json:"id"`
	DocumentID  string `json:"documentId"`
	Strategy    string `json:"strategy"`
	Title       string `json:"title"`
	Repo        string `json:"repo"`
	Path        string `json:"path"`
	Outcome     string `json:"outcome"`
	PublishedAt int64  `json:"publishedAt"`
}

// RecordID derives the index primary key for a document. Meilisearch ids
// allow only ASCII letters, digits, '-' and '_'.
func RecordID(strategy, documentID string) string {
	out := make([]byte, 0, len(strategy)+1+len(documentID))
	for _, part := range []string{strategy, "-", documentID} {
		for i := 0; i < len(part); i++ {
			c := part[i]
			switch {
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
				out = append(out, c)
			default:
				out = append(out, '_')
			}
		}
	}
	return string(out)
}
