package models

// CloneData returns a deep copy of JSON-like content.
func CloneData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}

	clone := make(map[string]any, len(data))
	for key, value := range data {
		clone[key] = cloneValue(value)
	}

	return clone
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return CloneData(typed)
	case []any:
		items := make([]any, len(typed))
		for i, item := range typed {
			items[i] = cloneValue(item)
		}

		return items
	default:
		return typed
	}
}
