package facade

import (
	"time"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
)

// The helpers below decode a manage_* params map into typed values,
// centralizing the apperr.Invalid shape every bad-input path returns. The
// Validator already enforces required-ness and type per the JSON schema, so
// these stay permissive about zero values and only fail on real parse errors
// (e.g. a string that isn't a valid UUID).

func paramString(p map[string]interface{}, key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func paramBool(p map[string]interface{}, key string) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return false
}

func paramInt(p map[string]interface{}, key string, def int) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func paramFloat(p map[string]interface{}, key string, def float64) float64 {
	if v, ok := p[key].(float64); ok {
		return v
	}
	return def
}

func paramStringSlice(p map[string]interface{}, key string) []string {
	raw, ok := p[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func paramMap(p map[string]interface{}, key string) map[string]interface{} {
	if v, ok := p[key].(map[string]interface{}); ok {
		return v
	}
	return map[string]interface{}{}
}

func paramUUID(p map[string]interface{}, key string) (uuid.UUID, error) {
	s := paramString(p, key)
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, apperr.New("facade.paramUUID", apperr.Invalid, key+" is not a valid id").
			WithDetails(map[string]any{"field": key, "value": s})
	}
	return id, nil
}

func paramOptUUID(p map[string]interface{}, key string) (*uuid.UUID, error) {
	s := paramString(p, key)
	if s == "" {
		return nil, nil
	}
	id, err := paramUUID(p, key)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func paramTime(p map[string]interface{}, key string) (*time.Time, error) {
	s := paramString(p, key)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, apperr.New("facade.paramTime", apperr.Invalid, key+" is not an RFC3339 timestamp").
			WithDetails(map[string]any{"field": key, "value": s})
	}
	return &t, nil
}

func paramPriority(p map[string]interface{}, key string, def models.Priority) models.Priority {
	s := paramString(p, key)
	if s == "" {
		return def
	}
	return models.Priority(s)
}

func paramLevel(p map[string]interface{}, key string) models.ContextLevel {
	return models.ContextLevel(paramString(p, key))
}
