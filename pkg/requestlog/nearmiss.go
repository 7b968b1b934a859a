package requestlog

// NearMissInfo summarizes a mapping that came close to matching.
type NearMissInfo struct {
	MappingID string  `json:"mappingId"`
	Title     string  `json:"title,omitempty"`
	Score     float64 `json:"score"`
}
