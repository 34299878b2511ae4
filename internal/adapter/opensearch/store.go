package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	opensearchclient "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"hudhud/backend/internal/epigraph"
	"hudhud/backend/internal/search"
)

const indexName = "epigraphs"

// Store is the OpenSearch-backed lexical index over epigraph documents.
// It implements search.Index.
type Store struct {
	client *opensearchclient.Client
	index  string
}

type Config struct {
	Addresses []string
	Username  string
	Password  string
	Insecure  bool
}

func NewStore(cfg Config) (*Store, error) {
	var transport http.RoundTripper
	if cfg.Insecure {
		transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
	client, err := opensearchclient.NewClient(opensearchclient.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("opensearch client: %w", err)
	}
	return &Store{client: client, index: indexName}, nil
}

// Ping verifies the cluster is reachable.
func (s *Store) Ping(ctx context.Context) error {
	res, err := opensearchapi.InfoRequest{}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("opensearch info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("opensearch info: %s", res.Status())
	}
	return nil
}

// EnsureIndex creates the epigraphs index with its mapping when missing.
func (s *Store) EnsureIndex(ctx context.Context) error {
	exists, err := opensearchapi.IndicesExistsRequest{Index: []string{s.index}}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	defer exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		slog.DebugContext(ctx, "index already exists", "index", s.index)
		return nil
	}

	res, err := opensearchapi.IndicesCreateRequest{
		Index: s.index,
		Body:  strings.NewReader(indexMapping),
	}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("create index: %s: %s", res.Status(), body)
	}
	slog.InfoContext(ctx, "created index", "index", s.index)
	return nil
}

type osHit struct {
	ID        string              `json:"_id"`
	Score     float64             `json:"_score"`
	Source    json.RawMessage     `json:"_source"`
	Highlight map[string][]string `json:"highlight"`
}

type osSearchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []osHit `json:"hits"`
	} `json:"hits"`
}

func (s *Store) Search(ctx context.Context, req search.Request) (*search.Result, error) {
	body, err := json.Marshal(buildSearchBody(req))
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := opensearchapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search: %s: %s", res.Status(), msg)
	}

	var parsed osSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := &search.Result{Engine: search.EngineOpenSearch, Total: parsed.Hits.Total.Value}
	for _, h := range parsed.Hits.Hits {
		id, err := strconv.Atoi(h.ID)
		if err != nil {
			slog.WarnContext(ctx, "skipping hit with non-numeric id", "id", h.ID)
			continue
		}
		var src struct {
			Title string `json:"title"`
		}
		_ = json.Unmarshal(h.Source, &src)
		out.Hits = append(out.Hits, search.Hit{
			EpigraphID: id,
			Title:      src.Title,
			Score:      h.Score,
			Highlights: h.Highlight,
		})
	}
	return out, nil
}

// IndexEpigraph writes one epigraph document, replacing any previous
// version.
func (s *Store) IndexEpigraph(ctx context.Context, e *epigraph.Epigraph) error {
	doc, err := json.Marshal(toDocument(e))
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	res, err := opensearchapi.IndexRequest{
		Index:      s.index,
		DocumentID: strconv.Itoa(e.ID),
		Body:       bytes.NewReader(doc),
		Refresh:    "true",
	}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("index epigraph %d: %w", e.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index epigraph %d: %s: %s", e.ID, res.Status(), msg)
	}
	return nil
}

// BulkIndex writes many documents in one request and reports how many were
// accepted and the ids of rejected documents.
func (s *Store) BulkIndex(ctx context.Context, epigraphs []epigraph.Epigraph) (int, []int, error) {
	if len(epigraphs) == 0 {
		return 0, nil, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range epigraphs {
		if err := enc.Encode(m{"index": m{"_index": s.index, "_id": strconv.Itoa(epigraphs[i].ID)}}); err != nil {
			return 0, nil, err
		}
		if err := enc.Encode(toDocument(&epigraphs[i])); err != nil {
			return 0, nil, err
		}
	}

	res, err := opensearchapi.BulkRequest{Body: &buf, Refresh: "true"}.Do(ctx, s.client)
	if err != nil {
		return 0, nil, fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return 0, nil, fmt.Errorf("bulk index: %s: %s", res.Status(), msg)
	}

	var parsed struct {
		Items []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, nil, fmt.Errorf("decode bulk response: %w", err)
	}

	indexed := 0
	var failed []int
	for _, item := range parsed.Items {
		for _, op := range item {
			if op.Status >= 200 && op.Status < 300 {
				indexed++
			} else if id, err := strconv.Atoi(op.ID); err == nil {
				failed = append(failed, id)
			}
		}
	}
	slog.InfoContext(ctx, "bulk indexed epigraphs", "indexed", indexed, "failed", len(failed))
	return indexed, failed, nil
}

// DeleteEpigraph removes a document; a missing document is not an error.
func (s *Store) DeleteEpigraph(ctx context.Context, id int) error {
	res, err := opensearchapi.DeleteRequest{
		Index:      s.index,
		DocumentID: strconv.Itoa(id),
	}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("delete epigraph %d: %w", id, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		slog.WarnContext(ctx, "epigraph not in index", "epigraph_id", id)
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("delete epigraph %d: %s", id, res.Status())
	}
	return nil
}
