package executor

import (
	"errors"
	"sort"
)

// Mock profiles selectable through a transform node's "type" setting
const (
	MockProfileTextGeneration = "text_generation"
	MockProfileImageAnalysis  = "image_analysis"
	MockProfileClassification = "classification"
	MockProfileGeneric        = "generic"
)

// mockResult synthesises a deterministic placeholder result. A non-empty
// "simulate_error" setting makes the mock fail with that message instead.
func mockResult(config map[string]interface{}, ref string, upstream map[string]interface{}) (map[string]interface{}, error) {
	if msg := configString(config, "simulate_error"); msg != "" {
		return nil, errors.New(msg)
	}

	profile := configString(config, "type", "profile")
	var out map[string]interface{}
	switch profile {
	case MockProfileTextGeneration:
		out = map[string]interface{}{
			"text":   "Mock generated text for " + ref,
			"tokens": 42,
			"model":  "mock-text",
		}
	case MockProfileImageAnalysis:
		out = map[string]interface{}{
			"labels":     []interface{}{"object", "scene"},
			"confidence": 0.95,
			"width":      1024,
			"height":     768,
		}
	case MockProfileClassification:
		out = map[string]interface{}{
			"label":   "positive",
			"score":   0.87,
			"classes": []interface{}{"positive", "negative", "neutral"},
		}
	default:
		profile = MockProfileGeneric
		keys := make([]interface{}, 0, len(upstream))
		for _, k := range sortedKeys(upstream) {
			keys = append(keys, k)
		}
		out = map[string]interface{}{
			"result": "Mock result for " + ref,
			"inputs": keys,
		}
	}

	out["mock"] = true
	out["profile"] = profile
	return out, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
