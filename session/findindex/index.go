package findindex

import (
	"sort"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/osintlab/robin/session/session_models"
)

// Index is an in-memory BM25 index over an investigation's findings. It backs
// the bounded-context selection for sub-agent delegations: given a task
// description, the best-matching findings are pulled instead of the full
// parent history.
type Index struct {
	bleve bleve.Index
	docs  map[string]session_models.Finding
	mu    sync.RWMutex
}

func New() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Index{bleve: idx, docs: make(map[string]session_models.Finding)}, nil
}

func (i *Index) Add(f session_models.Finding) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.docs[f.ID] = f
	return i.bleve.Index(f.ID, f)
}

// Search returns up to k findings ranked by BM25 relevance to the query.
// An empty or unmatched query falls back to the most recent findings so a
// delegation always gets some material to work with. Queries are free-form
// task text, so a query-string parse error falls back the same way instead
// of failing the delegation.
func (i *Index) Search(query string, k int) ([]session_models.Finding, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if query != "" {
		q := bleve.NewQueryStringQuery(query)
		req := bleve.NewSearchRequestOptions(q, k, 0, false)
		res, err := i.bleve.Search(req)
		if err == nil && len(res.Hits) > 0 {
			out := make([]session_models.Finding, 0, len(res.Hits))
			for _, hit := range res.Hits {
				if doc, ok := i.docs[hit.ID]; ok {
					out = append(out, doc)
				}
			}
			return out, nil
		}
	}
	return i.recent(k), nil
}

func (i *Index) recent(k int) []session_models.Finding {
	out := make([]session_models.Finding, 0, len(i.docs))
	for _, doc := range i.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].AddedAt.After(out[b].AddedAt) })
	if len(out) > k {
		out = out[:k]
	}
	return out
}
