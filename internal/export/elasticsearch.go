package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/therealutkarshpriyadarshi/logscope/internal/config"
	"github.com/therealutkarshpriyadarshi/logscope/internal/pool"
	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

// DefaultBulkSize is the number of documents per bulk request
const DefaultBulkSize = 500

// ElasticsearchSink indexes records and malformed entries with the bulk API
type ElasticsearchSink struct {
	client         *elasticsearch.Client
	index          string
	malformedIndex string
	bulkSize       int
}

// recordDoc and malformedDoc add run metadata to indexed documents
type recordDoc struct {
	*types.LogRecord
	RunID  string `json:"runId"`
	Source string `json:"source"`
}

type malformedDoc struct {
	*types.MalformedEntry
	RunID  string `json:"runId"`
	Source string `json:"source"`
}

type bulkItemError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int            `json:"status"`
		Error  *bulkItemError `json:"error,omitempty"`
	} `json:"items"`
}

// NewElasticsearchSink connects and verifies the cluster with an info call
func NewElasticsearchSink(cfg config.ExportConfig) (*ElasticsearchSink, error) {
	ec := cfg.Elasticsearch
	if ec == nil || len(ec.Addresses) == 0 {
		return nil, fmt.Errorf("no addresses specified")
	}
	if ec.Index == "" {
		return nil, fmt.Errorf("no index specified")
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: ec.Addresses,
		Username:  ec.Username,
		Password:  ec.Password,
		APIKey:    ec.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned error: %s", res.Status())
	}

	malformedIndex := ec.MalformedIndex
	if malformedIndex == "" {
		malformedIndex = ec.Index + MalformedTopicSuffix
	}
	bulkSize := ec.BulkSize
	if bulkSize <= 0 {
		bulkSize = DefaultBulkSize
	}

	return &ElasticsearchSink{
		client:         client,
		index:          ec.Index,
		malformedIndex: malformedIndex,
		bulkSize:       bulkSize,
	}, nil
}

// Write sends the payload as one or more bulk requests
func (e *ElasticsearchSink) Write(ctx context.Context, p *Payload) (int64, error) {
	var (
		pending int
		total   int64
	)
	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)

	flush := func() error {
		if pending == 0 {
			return nil
		}
		err := e.bulk(ctx, buf.Bytes(), pending)
		buf.Reset()
		pending = 0
		return err
	}

	add := func(index string, doc interface{}) error {
		meta, err := json.Marshal(map[string]interface{}{
			"index": map[string]interface{}{"_index": index},
		})
		if err != nil {
			return err
		}
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}

		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(body)
		buf.WriteByte('\n')
		total += int64(len(body))

		pending++
		if pending >= e.bulkSize {
			return flush()
		}
		return nil
	}

	for _, r := range p.Records {
		if err := add(e.index, recordDoc{LogRecord: r, RunID: p.RunID, Source: p.Source}); err != nil {
			return 0, err
		}
	}
	for _, m := range p.Malformed {
		if err := add(e.malformedIndex, malformedDoc{MalformedEntry: m, RunID: p.RunID, Source: p.Source}); err != nil {
			return 0, err
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}

	return total, nil
}

func (e *ElasticsearchSink) bulk(ctx context.Context, body []byte, docs int) error {
	res, err := e.client.Bulk(bytes.NewReader(body), e.client.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk request returned error: %s", res.Status())
	}

	var resp bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return fmt.Errorf("failed to parse bulk response: %w", err)
	}
	if !resp.Errors {
		return nil
	}

	var failed int
	var first string
	for _, item := range resp.Items {
		for _, doc := range item {
			if doc.Status >= 400 {
				failed++
				if first == "" && doc.Error != nil {
					first = doc.Error.Type + ": " + doc.Error.Reason
				}
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d out of %d documents failed to index: %s", failed, docs, first)
	}
	return nil
}

// Indices returns the record and malformed index names
func (e *ElasticsearchSink) Indices() (string, string) {
	return e.index, e.malformedIndex
}

// Name returns "elasticsearch"
func (e *ElasticsearchSink) Name() string { return SinkElasticsearch }

// Close is a no-op; the client has no persistent resources
func (e *ElasticsearchSink) Close() error { return nil }
