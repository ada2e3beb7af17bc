package tools

// Name identifies one of the fixed set of tools served.
type Name string

const (
	Add           Name = "add"
	Calculate     Name = "calculate"
	ScrapeWebpage Name = "scrape_webpage"
	AnalyzeURL    Name = "analyze_url"
)

var names = []Name{Add, Calculate, ScrapeWebpage, AnalyzeURL}

// Names returns every tool in registration order.
func Names() []Name {
	return append([]Name(nil), names...)
}

func (n Name) String() string {
	return string(n)
}

// Description is the human readable summary advertised by tools/list.
func (n Name) Description() string {
	switch n {
	case Add:
		return "Add two numbers"
	case Calculate:
		return "Perform a basic arithmetic operation on two numbers"
	case ScrapeWebpage:
		return "Fetch a webpage and return its text content or raw HTML"
	case AnalyzeURL:
		return "Inspect the response headers of a URL with a HEAD request"
	default:
		return ""
	}
}
