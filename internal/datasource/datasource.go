// Package datasource defines the Datasource-manager contract (spec.md §6):
// an external collaborator that executes remote STIX queries and loads the
// results into the store. This package only specifies the interface;
// concrete transports live in internal/datasource/httpds (request/response
// over HTTP) and internal/datasource/kafka (async request/response over
// topics).
package datasource

import (
	"context"

	"github.com/raymundl/kestrel-lang/internal/store"
)

// Response is a remote query's result, capable of loading itself into the
// store and reporting the query_id the store assigned it.
type Response interface {
	// LoadToStore persists the response's records into st and returns the
	// query_id that GET/the Prefetch Orchestrator use to scope extraction.
	LoadToStore(ctx context.Context, st store.Store) (queryID string, err error)
}

// Manager is the contract the command executors and Prefetch Orchestrator
// consume to reach a remote STIX datasource.
type Manager interface {
	// Query issues stixPattern against datasourceURI, scoped to sessionID.
	Query(ctx context.Context, datasourceURI, stixPattern, sessionID string) (Response, error)
}
