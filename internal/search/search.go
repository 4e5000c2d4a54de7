// Package search keeps an Elasticsearch index of the catalog and runs
// full-text product queries against it.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"storefront/internal/catalog"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/elastic/go-elasticsearch/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":          {"type": "keyword"},
      "name":        {"type": "text"},
      "description": {"type": "text"},
      "price":       {"type": "scaled_float", "scaling_factor": 100},
      "imageUrl":    {"type": "keyword", "index": false},
      "category":    {"type": "keyword"},
      "stock":       {"type": "integer"},
      "createdAt":   {"type": "date"}
    }
  }
}`

// Index is a product index in Elasticsearch
type Index struct {
	es   *elasticsearch.Client
	name string
}

// Config holds the connection settings
type Config struct {
	URL      string
	Username string
	Password string
	Index    string
}

// NewIndex connects to Elasticsearch and checks that it answers
func NewIndex(cfg Config) (*Index, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to get elasticsearch info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch error %s: %s", res.Status(), body)
	}

	util.GetLogger().Info("Connected to Elasticsearch", zap.String("url", cfg.URL), zap.String("index", cfg.Index))
	return &Index{es: client, name: cfg.Index}, nil
}

// EnsureIndex creates the index with its mapping if it does not exist
func (i *Index) EnsureIndex(ctx context.Context) error {
	res, err := i.es.Indices.Exists([]string{i.name}, i.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = i.es.Indices.Create(i.name,
		i.es.Indices.Create.WithContext(ctx),
		i.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("create index", res.Status(), res.Body)
	}
	return nil
}

// IndexProduct writes or replaces a product document
func (i *Index) IndexProduct(ctx context.Context, p *models.Product) error {
	ctx, span := util.StartSpan(ctx, "Index.IndexProduct", attribute.String("product.id", p.ID))
	defer span.End()

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}

	res, err := i.es.Index(i.name, bytes.NewReader(body),
		i.es.Index.WithContext(ctx),
		i.es.Index.WithDocumentID(p.ID),
	)
	if err != nil {
		util.SearchIndexOpsTotal.WithLabelValues("index", "error").Inc()
		return fmt.Errorf("index product %s: %w", p.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		util.SearchIndexOpsTotal.WithLabelValues("index", "error").Inc()
		return responseError("index product "+p.ID, res.Status(), res.Body)
	}

	util.SearchIndexOpsTotal.WithLabelValues("index", "ok").Inc()
	return nil
}

// DeleteProduct removes a product document. A missing document is not an error.
func (i *Index) DeleteProduct(ctx context.Context, id string) error {
	ctx, span := util.StartSpan(ctx, "Index.DeleteProduct", attribute.String("product.id", id))
	defer span.End()

	res, err := i.es.Delete(i.name, id, i.es.Delete.WithContext(ctx))
	if err != nil {
		util.SearchIndexOpsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		util.SearchIndexOpsTotal.WithLabelValues("delete", "error").Inc()
		return responseError("delete product "+id, res.Status(), res.Body)
	}

	util.SearchIndexOpsTotal.WithLabelValues("delete", "ok").Inc()
	return nil
}

// Reindex writes every product and returns how many were indexed
func (i *Index) Reindex(ctx context.Context, products []models.Product) (int, error) {
	n := 0
	for idx := range products {
		if err := i.IndexProduct(ctx, &products[idx]); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Search runs a full-text query narrowed by the filter's price range and
// categories, returning the total hit count and one page of products
func (i *Index) Search(ctx context.Context, f catalog.Filter, from, size int) (int64, []models.Product, error) {
	ctx, span := util.StartSpan(ctx, "Index.Search")
	defer span.End()

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildSearchQuery(f, from, size)); err != nil {
		return 0, nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	res, err := i.es.Search(
		i.es.Search.WithContext(ctx),
		i.es.Search.WithIndex(i.name),
		i.es.Search.WithBody(&buf),
	)
	if err != nil {
		util.SearchIndexOpsTotal.WithLabelValues("search", "error").Inc()
		util.SpanError(span, err)
		return 0, nil, fmt.Errorf("search error: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		util.SearchIndexOpsTotal.WithLabelValues("search", "error").Inc()
		err := responseError("search", res.Status(), res.Body)
		util.SpanError(span, err)
		return 0, nil, err
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.Product `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	util.SearchIndexOpsTotal.WithLabelValues("search", "ok").Inc()
	products := make([]models.Product, len(r.Hits.Hits))
	for idx, hit := range r.Hits.Hits {
		products[idx] = hit.Source
	}
	return r.Hits.Total.Value, products, nil
}

func buildSearchQuery(f catalog.Filter, from, size int) map[string]interface{} {
	var must []interface{}
	if q := strings.TrimSpace(f.Query); q != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     q,
				"fields":    []string{"name^2", "description"},
				"fuzziness": "AUTO",
			},
		})
	} else {
		must = append(must, map[string]interface{}{"match_all": map[string]interface{}{}})
	}

	var filter []interface{}
	if f.MinPrice != nil || f.MaxPrice != nil {
		bounds := map[string]interface{}{}
		if f.MinPrice != nil {
			bounds["gte"] = f.MinPrice.InexactFloat64()
		}
		if f.MaxPrice != nil {
			bounds["lte"] = f.MaxPrice.InexactFloat64()
		}
		filter = append(filter, map[string]interface{}{"range": map[string]interface{}{"price": bounds}})
	}
	if len(f.Categories) > 0 {
		cats := make([]string, len(f.Categories))
		for idx, c := range f.Categories {
			cats[idx] = string(c)
		}
		filter = append(filter, map[string]interface{}{"terms": map[string]interface{}{"category": cats}})
	}

	boolQuery := map[string]interface{}{"must": must}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"from":  from,
		"size":  size,
	}
	if s := sortClause(f.Sort); s != nil {
		body["sort"] = s
	}
	return body
}

func sortClause(order catalog.SortOrder) []interface{} {
	switch order {
	case catalog.SortPriceAsc:
		return []interface{}{map[string]interface{}{"price": "asc"}}
	case catalog.SortPriceDesc:
		return []interface{}{map[string]interface{}{"price": "desc"}}
	case catalog.SortNewest:
		return []interface{}{map[string]interface{}{"createdAt": "desc"}}
	default:
		return nil
	}
}

func responseError(op, status string, body io.Reader) error {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	return fmt.Errorf("%s: elasticsearch %s: %s", op, status, bytes.TrimSpace(data))
}
