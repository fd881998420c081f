package publishjob

// Config is the publication-specific subset of a job's configuration: the
// pattern used to derive a resource's public-facing URL from its repository
// URI. The pattern contains the literal substring "{uuid}", replaced with
// the lowercased UUID found in the resource's repository URI.
type Config struct {
	PublicURLPattern string
}

// FromExtra builds a Config from a jobstore.Config's Extra map.
func FromExtra(extra map[string]interface{}) Config {
	get := func(key string) string {
		if v, ok := extra[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	return Config{PublicURLPattern: get("public_url_pattern")}
}

// ToExtra renders a Config back into a jobstore.Config Extra map, the
// inverse of FromExtra.
func (c Config) ToExtra() map[string]interface{} {
	return map[string]interface{}{"public_url_pattern": c.PublicURLPattern}
}
