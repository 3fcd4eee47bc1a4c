package config

import (
	"encoding/json"
	"testing"
)

func TestSchema(t *testing.T) {
	data, err := Schema()
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Schema is not valid JSON: %v", err)
	}

	props, ok := doc["properties"].(map[string]any)
	if !ok {
		t.Fatal("Expected top-level properties")
	}
	for _, key := range []string{"logging", "cache", "database", "metadata", "worker", "sources"} {
		if _, ok := props[key]; !ok {
			t.Errorf("Expected property %q in schema", key)
		}
	}
}
