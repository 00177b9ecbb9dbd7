package node

import (
	"context"
	"fmt"

	"github.com/viant/outlook-node/graph"
)

// Dispatcher routes a batch of items through the handler matching the
// requested (resource, operation) pair.
type Dispatcher struct {
	registry *registry
}

// Request is one batch execution. Params must resolve per item index;
// ContinueOnFail captures per-item failures as error records instead of
// aborting the batch.
type Request struct {
	Resource       string
	Operation      string
	Items          []Item
	Params         Resolver
	Client         *graph.Client
	ContinueOnFail bool
}

// run is the per-execution state handlers operate on.
type run struct {
	client *graph.Client
	items  []Item
	params Resolver
}

func NewDispatcher() (*Dispatcher, error) {
	reg, err := newRegistry()
	if err != nil {
		return nil, err
	}
	return &Dispatcher{registry: reg}, nil
}

// Execute processes items strictly in index order, one call at a time.
//
// Accumulating operations produce one or more results per item, each tagged
// with the origin index; a handler may short-circuit the batch (bulk
// operations). The two mutating operations instead enrich each item's binary
// map in place and re-emit the input sequence verbatim — under
// ContinueOnFail their failures overwrite the item's JSON with an error
// marker rather than appending, so the item keeps its position and binary
// identity.
func (d *Dispatcher) Execute(ctx context.Context, req *Request) (*Response, error) {
	def, err := d.registry.lookup(req.Resource, req.Operation)
	if err != nil {
		return nil, err
	}
	r := &run{client: req.Client, items: req.Items, params: req.Params}
	if r.params == nil {
		r.params = &Params{}
	}

	if def.mutate != nil {
		for i := range r.items {
			if err := def.mutate(ctx, r, i); err != nil {
				if !req.ContinueOnFail {
					return nil, fmt.Errorf("item %d: %w", i, err)
				}
				r.items[i].JSON = map[string]any{"error": err.Error()}
			}
		}
		return &Response{Items: r.items}, nil
	}

	var results []Result
	for i := range r.items {
		batch, stop, err := def.handle(ctx, r, i)
		if err != nil {
			if !req.ContinueOnFail {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			results = append(results, Result{JSON: map[string]any{"error": err.Error()}, Index: i})
			continue
		}
		results = append(results, batch...)
		if stop {
			break
		}
	}
	return &Response{Results: results}, nil
}
