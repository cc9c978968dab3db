package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tessera/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Config describes the card index. An empty URL disables search.
type Config struct {
	URL        string
	Index      string
	Username   string
	Password   string
	MaxRetries int
	Timeout    time.Duration
}

func (c Config) Enabled() bool {
	return c.URL != ""
}

// CardDocument - документ карты в поисковом индексе
type CardDocument struct {
	CardID     string           `json:"card_id"`
	PersonID   string           `json:"person_id"`
	PersonName string           `json:"person_name"`
	Category   models.Category  `json:"category"`
	State      models.CardState `json:"state"`
	ExpiryDate string           `json:"expiry_date"`
	CreatedAt  time.Time        `json:"created_at"`
}

// DocumentFromItem converts a card listing row into an index document.
func DocumentFromItem(it models.CardListItem) CardDocument {
	return CardDocument{
		CardID:     it.CardID,
		PersonID:   it.PersonID,
		PersonName: it.PersonName,
		Category:   it.Category,
		State:      it.State,
		ExpiryDate: it.ExpiryDate,
		CreatedAt:  it.CreatedAt,
	}
}

func (d CardDocument) item() models.CardListItem {
	return models.CardListItem{
		CardID:     d.CardID,
		PersonID:   d.PersonID,
		PersonName: d.PersonName,
		Category:   d.Category,
		State:      d.State,
		ExpiryDate: d.ExpiryDate,
		CreatedAt:  d.CreatedAt,
	}
}

// ElasticsearchClient представляет клиент для работы с Elasticsearch
type ElasticsearchClient struct {
	client *elasticsearch.Client
	config Config
}

// NewElasticsearchClient создает новый клиент Elasticsearch
func NewElasticsearchClient(cfg Config) (*ElasticsearchClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	client := &ElasticsearchClient{
		client: es,
		config: cfg,
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Check connection and create index if needed
	if err := client.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure index exists: %w", err)
	}

	return client, nil
}

// indexMapping: имена участников бывают с диакритикой, поэтому asciifolding
func indexMapping() map[string]interface{} {
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
			"analysis": map[string]interface{}{
				"analyzer": map[string]interface{}{
					"name_analyzer": map[string]interface{}{
						"type":      "custom",
						"tokenizer": "standard",
						"filter":    []string{"lowercase", "asciifolding"},
					},
				},
			},
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"card_id":   map[string]interface{}{"type": "keyword"},
				"person_id": map[string]interface{}{"type": "keyword"},
				"person_name": map[string]interface{}{
					"type":     "text",
					"analyzer": "name_analyzer",
					"fields": map[string]interface{}{
						"keyword": map[string]interface{}{
							"type":         "keyword",
							"ignore_above": 256,
						},
					},
				},
				"category":    map[string]interface{}{"type": "keyword"},
				"state":       map[string]interface{}{"type": "keyword"},
				"expiry_date": map[string]interface{}{"type": "date", "format": "yyyy-MM-dd"},
				"created_at":  map[string]interface{}{"type": "date"},
			},
		},
	}
}

// ensureIndex создает индекс если он не существует
func (c *ElasticsearchClient) ensureIndex(ctx context.Context) error {
	req := esapi.IndicesExistsRequest{
		Index: []string{c.config.Index},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		slog.Info("Elasticsearch index already exists", "index", c.config.Index)
		return nil
	}

	mappingJSON, err := json.Marshal(indexMapping())
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	createReq := esapi.IndicesCreateRequest{
		Index: c.config.Index,
		Body:  bytes.NewReader(mappingJSON),
	}

	createRes, err := createReq.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("failed to create index: %s", createRes.String())
	}

	slog.Info("Created Elasticsearch index", "index", c.config.Index)
	return nil
}

// IndexCard индексирует карту (upsert по card_id)
func (c *ElasticsearchClient) IndexCard(ctx context.Context, doc CardDocument) error {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal card: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.config.Index,
		DocumentID: doc.CardID,
		Body:       bytes.NewReader(docJSON),
		Refresh:    "wait_for",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to index card: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("indexing error: %s", res.String())
	}

	return nil
}

// UpdateCardState меняет только поле state
func (c *ElasticsearchClient) UpdateCardState(ctx context.Context, cardID string, state models.CardState) error {
	body, err := json.Marshal(map[string]interface{}{
		"doc": map[string]interface{}{"state": state},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	req := esapi.UpdateRequest{
		Index:      c.config.Index,
		DocumentID: cardID,
		Body:       bytes.NewReader(body),
		Refresh:    "wait_for",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}
	defer res.Body.Close()

	// Документа может не быть, если индекс наполнялся позже выпуска карты.
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("update error: %s", res.String())
	}

	return nil
}

// SearchCards выполняет поиск карт по имени владельца или идентификатору
func (c *ElasticsearchClient) SearchCards(ctx context.Context, query string, state models.CardState, limit int) ([]models.CardListItem, error) {
	if limit <= 0 {
		limit = 20
	}

	searchRequest := map[string]interface{}{
		"query": buildSearchQuery(query, state),
		"sort":  buildSortQuery(query),
		"size":  limit,
	}

	searchJSON, err := json.Marshal(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{c.config.Index},
		Body:  bytes.NewReader(searchJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Hits []struct {
				Source CardDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	items := make([]models.CardListItem, len(response.Hits.Hits))
	for i, hit := range response.Hits.Hits {
		items[i] = hit.Source.item()
	}

	return items, nil
}

// buildSearchQuery строит поисковый запрос
func buildSearchQuery(query string, state models.CardState) map[string]interface{} {
	var (
		must   []map[string]interface{}
		filter []map[string]interface{}
	)

	if q := strings.TrimSpace(query); q != "" {
		must = append(must, map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []map[string]interface{}{
					{"match": map[string]interface{}{
						"person_name": map[string]interface{}{
							"query":     q,
							"fuzziness": "AUTO",
						},
					}},
					{"term": map[string]interface{}{"card_id": q}},
					{"term": map[string]interface{}{"person_id": q}},
				},
				"minimum_should_match": 1,
			},
		})
	}

	if state != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"state": state},
		})
	}

	if len(must) == 0 && len(filter) == 0 {
		return map[string]interface{}{
			"match_all": map[string]interface{}{},
		}
	}

	boolQuery := map[string]interface{}{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	return map[string]interface{}{"bool": boolQuery}
}

// buildSortQuery строит сортировку
func buildSortQuery(query string) []map[string]interface{} {
	if strings.TrimSpace(query) != "" {
		return []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
			{"person_name.keyword": map[string]interface{}{"order": "asc"}},
		}
	}

	return []map[string]interface{}{
		{"created_at": map[string]interface{}{"order": "desc"}},
	}
}

// HealthCheck проверяет состояние Elasticsearch
func (c *ElasticsearchClient) HealthCheck(ctx context.Context) error {
	req := esapi.ClusterHealthRequest{
		WaitForStatus: "yellow",
		Timeout:       10 * time.Second,
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("health check error: %s", res.String())
	}

	return nil
}
