package web_search

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/osintlab/robin/tools/web_search/ahmia"
	"github.com/osintlab/robin/tools/web_search/models"
	"github.com/osintlab/robin/tools/web_search/onionland"
	"github.com/osintlab/robin/tools/web_search/torch"
)

// Engine is one search backend. Implementations issue a single query and
// return up to limit results; they must honour ctx cancellation.
type Engine interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]models.Result, error)
}

var ErrUnsupportedEngine = errors.New("unsupported search engine")

// NewEngine builds an engine by name. The client should route through the
// anonymizing proxy for hidden-service engines.
func NewEngine(name string, client *http.Client) (Engine, error) {
	switch name {
	case ahmia.Name:
		return &ahmia.Search{Client: client}, nil
	case torch.Name:
		return &torch.Search{Client: client}, nil
	case onionland.Name:
		return &onionland.Search{Client: client}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEngine, name)
	}
}

// NewEngines builds all configured engines, failing on the first unknown name.
func NewEngines(names []string, client *http.Client) ([]Engine, error) {
	engines := make([]Engine, 0, len(names))
	for _, name := range names {
		eng, err := NewEngine(name, client)
		if err != nil {
			return nil, err
		}
		engines = append(engines, eng)
	}
	return engines, nil
}
