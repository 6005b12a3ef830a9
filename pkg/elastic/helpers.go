package elastic

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v7/esapi"
)

// DatedIndex appends the day of t to name, e.g. "audit_20240131".
func DatedIndex(name string, t time.Time) string {
	return fmt.Sprintf("%s_%s", strings.ToLower(name), t.UTC().Format(TimeLayout))
}

func responseError(res *esapi.Response, msg string) error {
	var e map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
		return fmt.Errorf("%s: [%s] unreadable body: %w", msg, res.Status(), err)
	}
	if em, ok := e["error"].(map[string]interface{}); ok {
		return fmt.Errorf("%s: [%s] %s: %s", msg, res.Status(), em["type"], em["reason"])
	}
	return fmt.Errorf("%s: [%s] %v", msg, res.Status(), e["error"])
}

// Term builds a query matching documents whose field equals value.
func Term(field string, value interface{}, size int) map[string]interface{} {
	return map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				field: value,
			},
		},
		"sort": []map[string]interface{}{
			{"timestamp": map[string]interface{}{"order": "asc"}},
		},
	}
}
