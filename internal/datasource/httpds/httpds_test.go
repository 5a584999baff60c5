package httpds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raymundl/kestrel-lang/internal/store"
)

type recordingStore struct {
	store.Store
	inserts map[string][]store.Row
}

func (s *recordingStore) Insert(_ context.Context, view, typ string, rows []store.Row) (int, int, error) {
	if s.inserts == nil {
		s.inserts = make(map[string][]store.Row)
	}

	s.inserts[typ] = append(s.inserts[typ], rows...)

	return len(rows), len(rows), nil
}

func TestManager_Query_PostsPatternAndSessionID(t *testing.T) {
	var gotPath, gotMethod string

	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"objects": []map[string]any{
				{"type": "process", "id": "process--1"},
			},
		})
	}))
	defer srv.Close()

	m := New(srv.Client())

	resp, err := m.Query(context.Background(), srv.URL+"/query", "[process:pid = 123]", "session-1")
	require.NoError(t, err)
	assert.Equal(t, "/query", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "[process:pid = 123]", gotBody["pattern"])
	assert.Equal(t, "session-1", gotBody["session_id"])

	st := &recordingStore{}
	queryID, err := resp.LoadToStore(context.Background(), st)
	require.NoError(t, err)
	assert.NotEmpty(t, queryID)
	require.Len(t, st.inserts["process"], 1)
	assert.Equal(t, "process--1", st.inserts["process"][0]["id"])
}

func TestManager_Query_NonOKStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	m := New(srv.Client())

	_, err := m.Query(context.Background(), srv.URL, "[process:pid = 1]", "session-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestManager_Query_InvalidBodyReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	m := New(srv.Client())

	_, err := m.Query(context.Background(), srv.URL, "[process:pid = 1]", "session-1")
	assert.Error(t, err)
}

func TestNew_DefaultsClientWhenNil(t *testing.T) {
	m := New(nil)
	require.NotNil(t, m.client)
}
