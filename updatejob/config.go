package updatejob

import "strings"

// Config is the update-specific subset of a job's configuration: the seed
// URIs to start from, the SPARQL Update text to apply, the content model
// (if any) to validate against, the predicates to traverse outward from
// each seed, and whether to wrap each seed's traversal in a transaction.
type Config struct {
	URIs            []string
	SparqlUpdate    string
	Model           string
	Traverse        []string
	UseTransactions bool
}

// FromExtra builds a Config from a jobstore.Config's Extra map. Multi-valued
// fields are stored as comma-joined strings, matching importjob.Config.
func FromExtra(extra map[string]interface{}) Config {
	get := func(key string) string {
		if v, ok := extra[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getBool := func(key string, def bool) bool {
		if v, ok := extra[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return def
	}
	splitList := func(v string) []string {
		if v == "" {
			return nil
		}
		return strings.Split(v, ",")
	}
	return Config{
		URIs:            splitList(get("uris")),
		SparqlUpdate:    get("sparql_update"),
		Model:           get("model"),
		Traverse:        splitList(get("traverse")),
		UseTransactions: getBool("use_transactions", true),
	}
}

// ToExtra renders a Config back into a jobstore.Config Extra map, the
// inverse of FromExtra.
func (c Config) ToExtra() map[string]interface{} {
	extra := map[string]interface{}{
		"sparql_update":    c.SparqlUpdate,
		"model":            c.Model,
		"use_transactions": c.UseTransactions,
	}
	if len(c.URIs) > 0 {
		extra["uris"] = strings.Join(c.URIs, ",")
	}
	if len(c.Traverse) > 0 {
		extra["traverse"] = strings.Join(c.Traverse, ",")
	}
	return extra
}
