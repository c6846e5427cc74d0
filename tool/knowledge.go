package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/wikiagent/retrieval"
)

// KnowledgeToolName is the registered name of the knowledge search tool.
const KnowledgeToolName = "wikipedia_search"

// Searcher is the subset of the retriever used by the knowledge tool.
type Searcher interface {
	Query(ctx context.Context, text string, topK int) ([]retrieval.Result, error)
	Count(ctx context.Context) (int, error)
}

// KnowledgeArgs are the wikipedia_search arguments.
type KnowledgeArgs struct {
	Query string `json:"query" description:"Search query describing the information needed."`
	TopK  int    `json:"top_k" description:"Maximum number of passages to return." minimum:"1" maximum:"10" default:"3"`
}

// Passages is the wikipedia_search result.
type Passages []retrieval.Result

func (p Passages) String() string {
	if len(p) == 0 {
		return "No relevant passages found."
	}
	var b strings.Builder
	for i, r := range p {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, r.Title())
		if u := r.URL(); u != "" {
			fmt.Fprintf(&b, " (%s)", u)
		}
		fmt.Fprintf(&b, " score=%.3f\n%s", r.Score, strings.TrimSpace(r.Text))
	}
	return b.String()
}

// KnowledgeTool searches the indexed corpus. It reports itself unavailable
// while the index is empty.
type KnowledgeTool struct {
	*FunctionTool
	searcher Searcher
}

// NewKnowledgeTool returns the knowledge search tool backed by s.
func NewKnowledgeTool(s Searcher) *KnowledgeTool {
	ft := NewTypedTool(KnowledgeToolName,
		"Search the indexed Wikipedia knowledge base for factual information. Returns the most relevant passages with their titles and URLs.",
		func(ctx context.Context, args KnowledgeArgs) (any, error) {
			if strings.TrimSpace(args.Query) == "" {
				return nil, fmt.Errorf("%w: query must not be empty", ErrInvalidArgument)
			}
			results, err := s.Query(ctx, args.Query, args.TopK)
			if err != nil {
				return nil, err
			}
			return Passages(results), nil
		}).WithStateless()
	return &KnowledgeTool{FunctionTool: ft, searcher: s}
}

// Available implements Availability.
func (k *KnowledgeTool) Available(ctx context.Context) bool {
	n, err := k.searcher.Count(ctx)
	return err == nil && n > 0
}

var _ Availability = (*KnowledgeTool)(nil)
