// Package progress derives weighted completion metrics from a set of items,
// a checked-state map and per-title weight overrides.
package progress

import (
	"encoding/json"
	"math"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// DefaultSoftCapRatio is the share of capacity past which a day counts as
// "enough".
const DefaultSoftCapRatio = 0.9

type Item struct {
	Id     string
	Title  string
	Weight float64
}

// WeightResolver returns the effective weight of an item. Implementations
// must never return a value below 1.
type WeightResolver interface {
	Resolve(item Item) float64
}

type Progress struct {
	Capacity float64 `json:"capacity"`
	Energy   float64 `json:"energy"`
	Stamina  float64 `json:"stamina"`
	Ratio    float64 `json:"ratio"`
	Done     int     `json:"done"`
	Total    int     `json:"total"`
}

// SafeWeight returns v when it is a finite number >= 1, otherwise fallback.
// An unusable fallback is replaced by 1.
func SafeWeight(v float64, fallback float64) float64 {
	if !usable(fallback) {
		fallback = 1
	}
	if !usable(v) {
		return fallback
	}
	return v
}

func usable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 1
}

// TitleWeights maps an item title to its overriding weight. Items sharing a
// title share the override, across routines and days.
type TitleWeights map[string]float64

func (w TitleWeights) Resolve(item Item) float64 {
	own := SafeWeight(item.Weight, 1)
	if override, ok := w[item.Title]; ok {
		return SafeWeight(override, own)
	}
	return own
}

// UnmarshalJSON keeps readable entries of a persisted override map. Numbers
// stored as strings are converted, anything else is dropped.
func (w *TitleWeights) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		// Not an object at all: treat as no overrides.
		log.Debugf("ignoring unreadable weight overrides: %v", err)
		*w = TitleWeights{}
		return nil
	}
	result := make(TitleWeights, len(raw))
	for title, value := range raw {
		switch v := value.(type) {
		case float64:
			result[title] = v
		case string:
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			result[title] = parsed
		}
	}
	*w = result
	return nil
}

// MarshalJSON drops entries that JSON cannot represent.
func (w TitleWeights) MarshalJSON() ([]byte, error) {
	clean := make(map[string]float64, len(w))
	for title, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		clean[title] = v
	}
	return json.Marshal(clean)
}

// Compute sums effective weights over items. A nil resolver uses each item's
// own weight.
func Compute(items []Item, checked map[string]bool, weights WeightResolver) Progress {
	if weights == nil {
		weights = TitleWeights(nil)
	}
	var p Progress
	for _, item := range items {
		weight := weights.Resolve(item)
		p.Capacity += weight
		if checked[item.Id] {
			p.Energy += weight
		}
	}
	p.Stamina = p.Capacity - p.Energy
	if p.Capacity > 0 {
		p.Ratio = p.Energy / p.Capacity
	}
	for _, v := range checked {
		if v {
			p.Done++
		}
	}
	p.Total = len(items)
	return p
}

// SoftCapReached reports whether the ratio reached the soft cap. An invalid
// cap falls back to DefaultSoftCapRatio.
func SoftCapReached(p Progress, softCapRatio float64) bool {
	if math.IsNaN(softCapRatio) || softCapRatio <= 0 || softCapRatio > 1 {
		softCapRatio = DefaultSoftCapRatio
	}
	return p.Capacity > 0 && p.Ratio >= softCapRatio
}
