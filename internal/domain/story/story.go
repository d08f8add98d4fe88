package story

// Category groups preset stories in the catalog.
type Category string

const (
	CategoryFable   Category = "fable"
	CategoryDaily   Category = "daily"
	CategoryScience Category = "science"
	CategoryFun     Category = "fun"
)

type Item struct {
	ID       string   `json:"id" yaml:"id"`
	Title    string   `json:"title" yaml:"title"`
	Category Category `json:"category" yaml:"category"`
	Content  string   `json:"content" yaml:"content"`
}

// WordToken is one word span over a story's text. The span is the half-open
// byte range [StartIndex, EndIndex) and Text is exactly that substring, so it
// carries the word's trailing whitespace.
type WordToken struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	CleanText  string `json:"clean_text"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// Contains reports whether offset falls inside the token's span.
func (t WordToken) Contains(offset int) bool {
	return t.StartIndex <= offset && offset < t.EndIndex
}
