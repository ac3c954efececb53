package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"literature-manager/internal/model"
)

// listFields hold string arrays in the document; a plain value for them is
// read as a comma-separated list.
var listFields = map[string]bool{"authors": true, "keywords": true}

// parseAssignments turns key=value arguments into a patch. Values that parse
// as JSON keep their JSON type; everything else is a string.
func parseAssignments(args []string) (map[string]any, error) {
	patch := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, want key=value", arg)
		}
		if key == "id" {
			return nil, fmt.Errorf("id cannot be changed")
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		if s, isString := value.(string); isString && listFields[key] {
			items := []string{}
			for _, part := range strings.Split(s, ",") {
				if part = strings.TrimSpace(part); part != "" {
					items = append(items, part)
				}
			}
			value = items
		}
		patch[key] = value
	}
	if len(patch) == 0 {
		return nil, fmt.Errorf("nothing to update")
	}
	return patch, nil
}

// nextID is one past the largest id in papers.
func nextID(papers []model.Paper) int {
	maxID := 0
	for _, p := range papers {
		maxID = max(maxID, p.ID)
	}
	return maxID + 1
}
