// Package httpds implements datasource.Manager over plain HTTP
// request/response: one POST per query, carrying the compiled STIX pattern
// and returning a STIX bundle of matching objects.
//
// Grounded on DESIGN.md's grounding ledger: no HTTP client library appears
// in the teacher's stack beyond net/http itself, so this transport is a
// deliberate stdlib component.
package httpds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/raymundl/kestrel-lang/internal/datasource"
	"github.com/raymundl/kestrel-lang/internal/store"
)

// queryRequest is the wire shape POSTed to the remote datasource.
type queryRequest struct {
	Pattern   string `json:"pattern"`
	SessionID string `json:"session_id"`
}

// stixBundle is the minimal STIX bundle shape the response is expected to
// carry: a flat list of typed objects.
type stixBundle struct {
	Objects []map[string]any `json:"objects"`
}

// Manager implements datasource.Manager over HTTP.
type Manager struct {
	client *http.Client
}

// New returns an httpds.Manager using client, or a new http.Client with a
// 30s timeout if client is nil.
func New(client *http.Client) *Manager {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Manager{client: client}
}

// Query POSTs stixPattern to datasourceURI and returns a Response that can
// load the resulting bundle into the store.
func (m *Manager) Query(ctx context.Context, datasourceURI, stixPattern, sessionID string) (datasource.Response, error) {
	body, err := json.Marshal(queryRequest{Pattern: stixPattern, SessionID: sessionID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, datasourceURI, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return nil, fmt.Errorf("httpds: datasource %s returned %d: %s", datasourceURI, resp.StatusCode, respBody)
	}

	var bundle stixBundle
	if err := json.NewDecoder(resp.Body).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("httpds: decoding bundle from %s: %w", datasourceURI, err)
	}

	return &response{bundle: bundle}, nil
}

type response struct {
	bundle stixBundle
}

// LoadToStore inserts the bundle's objects into the store, grouped by their
// "type" field, and returns a freshly generated query_id tying this load to
// the extraction that follows.
func (r *response) LoadToStore(ctx context.Context, st store.Store) (string, error) {
	queryID := uuid.NewString()

	byType := make(map[string][]store.Row)
	for _, obj := range r.bundle.Objects {
		typ, _ := obj["type"].(string)
		if typ == "" {
			continue
		}

		byType[typ] = append(byType[typ], store.Row(obj))
	}

	for typ, rows := range byType {
		view := "_httpds_load_" + queryID + "_" + typ
		if _, _, err := st.Insert(ctx, view, typ, rows); err != nil {
			return "", fmt.Errorf("httpds: loading %s rows: %w", typ, err)
		}
	}

	return queryID, nil
}
