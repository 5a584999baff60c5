// Package kafka implements datasource.Manager as an asynchronous
// request/response transport over segmentio/kafka-go: a compiled STIX
// pattern is published to a request topic keyed by session id, and the
// matching STIX bundle is read back off a reply topic partitioned the same
// way. Composes behind the same datasource.Manager interface as
// internal/datasource/httpds; a session picks one transport per datasource
// URI.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/raymundl/kestrel-lang/internal/datasource"
	"github.com/raymundl/kestrel-lang/internal/store"
)

// queryRequest is the message value published to the request topic.
type queryRequest struct {
	QueryID   string `json:"query_id"`
	Pattern   string `json:"pattern"`
	SessionID string `json:"session_id"`
	DataURI   string `json:"datasource_uri"`
}

// queryResponse is the message value expected back on the reply topic,
// correlated to a request by QueryID.
type queryResponse struct {
	QueryID string           `json:"query_id"`
	Objects []map[string]any `json:"objects"`
	Error   string           `json:"error,omitempty"`
}

// Manager implements datasource.Manager over a Kafka request/reply pair of
// topics.
type Manager struct {
	writer      *kafka.Writer
	readerAddrs []string
	replyTopic  string
	pollTimeout time.Duration
}

// Config configures a kafka.Manager.
type Config struct {
	// Brokers is the list of bootstrap broker addresses.
	Brokers []string

	// RequestTopic is the topic compiled patterns are published to.
	RequestTopic string

	// ReplyTopic is the topic bundle responses are consumed from.
	ReplyTopic string

	// PollTimeout bounds how long Query waits for a matching reply before
	// giving up. Zero means 30s.
	PollTimeout time.Duration
}

// New constructs a kafka.Manager from cfg.
func New(cfg Config) *Manager {
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}

	return &Manager{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.RequestTopic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		readerAddrs: cfg.Brokers,
		replyTopic:  cfg.ReplyTopic,
		pollTimeout: pollTimeout,
	}
}

// Query publishes stixPattern to the request topic, keyed by sessionID, then
// blocks consuming the reply topic until a message carrying the matching
// query id arrives or PollTimeout elapses.
func (m *Manager) Query(ctx context.Context, datasourceURI, stixPattern, sessionID string) (datasource.Response, error) {
	queryID := uuid.NewString()

	payload, err := json.Marshal(queryRequest{
		QueryID:   queryID,
		Pattern:   stixPattern,
		SessionID: sessionID,
		DataURI:   datasourceURI,
	})
	if err != nil {
		return nil, err
	}

	if err := m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(sessionID),
		Value: payload,
	}); err != nil {
		return nil, fmt.Errorf("kafka: publishing query %s: %w", queryID, err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: m.readerAddrs,
		Topic:   m.replyTopic,
		GroupID: "kestrel-datasource-" + queryID,
	})
	defer func() { _ = reader.Close() }()

	waitCtx, cancel := context.WithTimeout(ctx, m.pollTimeout)
	defer cancel()

	for {
		msg, err := reader.ReadMessage(waitCtx)
		if err != nil {
			return nil, fmt.Errorf("kafka: waiting for reply to query %s: %w", queryID, err)
		}

		var resp queryResponse
		if err := json.Unmarshal(msg.Value, &resp); err != nil {
			continue
		}

		if resp.QueryID != queryID {
			continue
		}

		if resp.Error != "" {
			return nil, fmt.Errorf("kafka: datasource %s reported: %s", datasourceURI, resp.Error)
		}

		return &response{bundle: resp}, nil
	}
}

// Close releases the writer's connections.
func (m *Manager) Close() error {
	return m.writer.Close()
}

type response struct {
	bundle queryResponse
}

// LoadToStore inserts the bundle's objects into the store, grouped by type,
// returning the query id the reply carried.
func (r *response) LoadToStore(ctx context.Context, st store.Store) (string, error) {
	byType := make(map[string][]store.Row)

	for _, obj := range r.bundle.Objects {
		typ, _ := obj["type"].(string)
		if typ == "" {
			continue
		}

		byType[typ] = append(byType[typ], store.Row(obj))
	}

	for typ, rows := range byType {
		view := "_kafka_load_" + r.bundle.QueryID + "_" + typ
		if _, _, err := st.Insert(ctx, view, typ, rows); err != nil {
			return "", fmt.Errorf("kafka: loading %s rows: %w", typ, err)
		}
	}

	return r.bundle.QueryID, nil
}
