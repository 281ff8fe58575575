package functions

import (
	"context"
	"encoding/json"
	"fmt"

	"copilots/internal/chat"
	"copilots/internal/findb"
)

// Searcher runs vector searches over filings and transcripts.
type Searcher interface {
	Search(ctx context.Context, q findb.Query) ([]findb.Result, error)
}

type searchArgs struct {
	Query  string `json:"query" jsonschema:"description=Natural language query."`
	Symbol string `json:"symbol" jsonschema:"description=Ticker symbol cut off at its root (BRK.A becomes BRK)."`
}

// SearchDocuments is resolved on the server against the document database.
type SearchDocuments struct {
	searcher Searcher
	schema   map[string]any
}

func NewSearchDocuments(s Searcher) *SearchDocuments {
	return &SearchDocuments{searcher: s, schema: schemaOf(&searchArgs{})}
}

func (s *SearchDocuments) Name() string { return "search_documents" }

func (s *SearchDocuments) Description() string {
	return "Use natural language to query a database containing sec filings and earning transcripts about a symbol."
}

func (s *SearchDocuments) Parameters() map[string]any { return s.schema }

func (s *SearchDocuments) Available(chat.Scope) bool { return true }

func (s *SearchDocuments) Resolve(ctx context.Context, raw map[string]any, _ chat.Scope) (chat.Resolution, error) {
	var args searchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return chat.Resolution{}, fmt.Errorf("%w: search_documents arguments: %v", chat.ErrUpstreamProtocol, err)
	}
	results, err := s.searcher.Search(ctx, findb.Query{Query: args.Query, Symbol: args.Symbol})
	if err != nil {
		return chat.Resolution{}, err
	}
	if results == nil {
		results = []findb.Result{}
	}
	content, err := json.Marshal(results)
	if err != nil {
		return chat.Resolution{}, err
	}
	return chat.Resolution{Content: string(content)}, nil
}
