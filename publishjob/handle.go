package publishjob

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Handle is a persistent identifier minted or reused for a published
// resource, in "prefix/suffix" form.
type Handle struct {
	Prefix string
	Suffix string
	URL    string
}

func (h Handle) String() string { return h.Prefix + "/" + h.Suffix }

// HandleClient is the external handle-minting service collaborator named
// in spec §4.8 step 5 and §4.10. Its concrete implementation (HTTP
// transport, authentication, the handle registry's own API shape) is
// outside this module's scope; callers supply whatever HandleClient fits
// their deployment.
type HandleClient interface {
	// FindHandle returns the handle already associated with repoURI, or nil
	// if none exists yet.
	FindHandle(repoURI string) (*Handle, error)
	// CreateHandle mints a new handle for repoURI pointing at publicURL.
	CreateHandle(repoURI, publicURL string) (*Handle, error)
}

var uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// uuidFromURI finds and normalizes the first UUID-shaped path segment in
// uri, mirroring the original's get_uuid_from_uri.
func uuidFromURI(uri string) (string, bool) {
	match := uuidPattern.FindString(uri)
	if match == "" {
		return "", false
	}
	parsed, err := uuid.Parse(match)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

// publicURL renders pattern (containing the literal substring "{uuid}")
// with the lowercased UUID found in repoURI.
func publicURL(pattern, repoURI string) (string, error) {
	id, ok := uuidFromURI(repoURI)
	if !ok {
		return "", fmt.Errorf("cannot construct a public URL: no UUID found in %s", repoURI)
	}
	return strings.ReplaceAll(pattern, "{uuid}", id), nil
}

// MintOrReuseHandle resolves the handle for repoURI via handleClient,
// reusing one already on file or minting a fresh one against publicURLPattern
// otherwise. Shared by the publication engine's processResource and the
// import engine's create path, both of which need the same find-or-create
// behavior whenever a resource is published.
func MintOrReuseHandle(handleClient HandleClient, repoURI, publicURLPattern string) (*Handle, error) {
	if handleClient == nil {
		return nil, nil
	}
	handle, err := handleClient.FindHandle(repoURI)
	if err != nil {
		return nil, err
	}
	if handle != nil {
		return handle, nil
	}
	target, err := publicURL(publicURLPattern, repoURI)
	if err != nil {
		return nil, err
	}
	return handleClient.CreateHandle(repoURI, target)
}
