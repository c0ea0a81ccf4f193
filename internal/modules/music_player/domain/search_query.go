package domain

import (
	"strconv"
	"strings"
)

// QueryKind classifies what a play query refers to.
type QueryKind int

const (
	// QueryURL is a direct link to a page or stream.
	QueryURL QueryKind = iota
	// QuerySearch is free text resolved to the top search result.
	QuerySearch
	// QueryLocalIndex is a 1-based number into the local music listing.
	QueryLocalIndex
)

// searchPrefix asks yt-dlp for the single best YouTube search result.
const searchPrefix = "ytsearch1:"

// SearchQuery is a parsed play query.
type SearchQuery struct {
	Query string
	Kind  QueryKind
	Index int // set for QueryLocalIndex
}

// NewSearchQuery classifies user input. Integers are local song numbers when a
// local library is configured; otherwise they are searched like any other text.
func NewSearchQuery(input string, localEnabled bool) SearchQuery {
	input = strings.TrimSpace(input)

	if isURL(input) {
		return SearchQuery{Query: input, Kind: QueryURL}
	}

	if localEnabled {
		if index, err := strconv.Atoi(input); err == nil {
			return SearchQuery{Query: input, Kind: QueryLocalIndex, Index: index}
		}
	}

	return SearchQuery{Query: input, Kind: QuerySearch}
}

// NewLocalQuery creates a query for the given local song number.
func NewLocalQuery(index int) SearchQuery {
	return SearchQuery{Query: strconv.Itoa(index), Kind: QueryLocalIndex, Index: index}
}

// IsValid returns true if the query is not empty.
func (q SearchQuery) IsValid() bool {
	return q.Query != ""
}

// IsLocal returns true for local song numbers.
func (q SearchQuery) IsLocal() bool {
	return q.Kind == QueryLocalIndex
}

// ExtractorTarget returns the string handed to the stream extractor: URLs as-is,
// free text with a top-1 search prefix.
func (q SearchQuery) ExtractorTarget() string {
	if q.Kind == QuerySearch {
		return searchPrefix + q.Query
	}
	return q.Query
}

// isURL checks if the input looks like a URL.
func isURL(input string) bool {
	return strings.HasPrefix(input, "http://") ||
		strings.HasPrefix(input, "https://") ||
		strings.HasPrefix(input, "www.")
}
