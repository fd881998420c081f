// Package importjob implements the bulk create/update engine (C8): it
// streams rows from a job's metadata spreadsheet, validates each one
// against its content model and binary-file references, and creates or
// patches the corresponding repository resource, recording progress and
// resuming via the job's item logs.
package importjob

import "strings"

// Config is the import-specific subset of a job's configuration: the
// content model to bind, the repository container new items are created
// under, the access class and parent collection to stamp on new items, and
// where to resolve FILES/ITEM_FILES references from.
type Config struct {
	Model             string
	Access            string
	MemberOf          string
	Container         string
	BinariesLocation  string
	ExtractTextTypes  []string
	SSHPrivateKeyPath string
	PublicURLPattern  string
}

// FromExtra builds a Config from a jobstore.Config's Extra map, the
// job-kind-specific fields merged into config.yml alongside the common
// job_id field.
func FromExtra(extra map[string]interface{}) Config {
	get := func(key string) string {
		if v, ok := extra[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	var extractTypes []string
	if v := get("extract_text_types"); v != "" {
		extractTypes = strings.Split(v, ",")
	}
	return Config{
		Model:             get("model"),
		Access:            get("access"),
		MemberOf:          get("member_of"),
		Container:         get("container"),
		BinariesLocation:  get("binaries_location"),
		ExtractTextTypes:  extractTypes,
		SSHPrivateKeyPath: get("ssh_private_key"),
		PublicURLPattern:  get("public_url_pattern"),
	}
}

// ToExtra renders a Config back into a jobstore.Config Extra map, the
// inverse of FromExtra, for persisting job configuration changes.
func (c Config) ToExtra() map[string]interface{} {
	extra := map[string]interface{}{
		"model":             c.Model,
		"access":            c.Access,
		"member_of":         c.MemberOf,
		"container":         c.Container,
		"binaries_location": c.BinariesLocation,
	}
	if len(c.ExtractTextTypes) > 0 {
		extra["extract_text_types"] = strings.Join(c.ExtractTextTypes, ",")
	}
	if c.SSHPrivateKeyPath != "" {
		extra["ssh_private_key"] = c.SSHPrivateKeyPath
	}
	if c.PublicURLPattern != "" {
		extra["public_url_pattern"] = c.PublicURLPattern
	}
	return extra
}
