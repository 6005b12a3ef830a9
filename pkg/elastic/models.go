package elastic

import "encoding/json"

type ResultHit struct {
	Index  string          `json:"_index"`
	ID     string          `json:"_id"`
	Score  float64         `json:"_score"`
	Source json.RawMessage `json:"_source"`
}

type ResultTotal struct {
	Value    int    `json:"value"`
	Relation string `json:"relation"`
}

type ResultHits struct {
	Total    ResultTotal `json:"total"`
	MaxScore float64     `json:"max_score"`
	Hits     []ResultHit `json:"hits"`
}

type SearchResult struct {
	Took     int        `json:"took"`
	TimedOut bool       `json:"timed_out"`
	Hits     ResultHits `json:"hits"`
}
