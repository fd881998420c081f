package importjob

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/umd-lib/plastron-go/binary"
	"github.com/umd-lib/plastron-go/client"
	"github.com/umd-lib/plastron-go/contentmodel"
	"github.com/umd-lib/plastron-go/graph"
	"github.com/umd-lib/plastron-go/internal/perr"
	"github.com/umd-lib/plastron-go/internal/plog"
	"github.com/umd-lib/plastron-go/itemlog"
	"github.com/umd-lib/plastron-go/jobstore"
	"github.com/umd-lib/plastron-go/publishjob"
	"github.com/umd-lib/plastron-go/spreadsheet"
)

// PCDM and ORE vocabulary used to assemble a new resource's page/file/proxy
// structure. No namespaces table exists anywhere in the retrieval pack, so
// these are the well-known vocabulary URIs the predicates belong to.
const (
	pcdmHasMember = "http://pcdm.org/models#hasMember"
	pcdmMemberOf  = "http://pcdm.org/models#memberOf"
	pcdmHasFile   = "http://pcdm.org/models#hasFile"
	pcdmFileOf    = "http://pcdm.org/models#fileOf"
	pcdmObject    = "http://pcdm.org/models#Object"
	pcdmFile      = "http://pcdm.org/models#File"

	oreProxyFor = "http://www.openarchives.org/ore/terms/proxyFor"
	oreProxyIn  = "http://www.openarchives.org/ore/terms/proxyIn"
	oreProxy    = "http://www.openarchives.org/ore/terms/Proxy"

	ianaFirst = "http://www.iana.org/assignments/relation/first"
	ianaLast  = "http://www.iana.org/assignments/relation/last"
	ianaPrev  = "http://www.iana.org/assignments/relation/prev"
	ianaNext  = "http://www.iana.org/assignments/relation/next"

	dctermsTitle               = "http://purl.org/dc/terms/title"
	fabioHasSequenceIdentifier = "http://purl.org/spar/fabio/hasSequenceIdentifier"
	xsdInteger                 = "http://www.w3.org/2001/XMLSchema#integer"

	oaAnnotation      = "http://www.w3.org/ns/oa#Annotation"
	oaHasTarget       = "http://www.w3.org/ns/oa#hasTarget"
	oaHasBody         = "http://www.w3.org/ns/oa#hasBody"
	oaMotivatedBy     = "http://www.w3.org/ns/oa#motivatedBy"
	oaTextualBody     = "http://www.w3.org/ns/oa#TextualBody"
	scPainting        = "http://iiif.io/api/presentation/2#painting"
	rdfValue          = "http://www.w3.org/1999/02/22-rdf-syntax-ns#value"
	dcFormat          = "http://purl.org/dc/elements/1.1/format"
	provDerivedFrom   = "http://www.w3.org/ns/prov#wasDerivedFrom"
	rdfTypePredicate  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	dctermsIdentifier = "http://purl.org/dc/terms/identifier"
)

// ItemStatus records what update(), if any, a valid row's resource
// actually received.
type ItemStatus string

const (
	ItemCreated   ItemStatus = "created"
	ItemModified  ItemStatus = "modified"
	ItemUnchanged ItemStatus = "unchanged"
)

// RunState summarizes how a run ended, mirroring the four terminal states
// of the original import run.
type RunState string

const (
	ValidateSuccess  RunState = "validate_success"
	ValidateFailed   RunState = "validate_failed"
	ImportComplete   RunState = "import_complete"
	ImportIncomplete RunState = "import_incomplete"
)

// Counts tallies a run's progress, mirroring the original's per-run Counter.
type Counts struct {
	Total            int
	Rows             int
	Errors           int
	AlreadyCompleted int
	Valid            int
	Invalid          int
	Created          int
	Updated          int
	Unchanged        int
	Skipped          int
}

// Progress is sent once per processed row (valid or not), so a caller can
// render a running total or drive a progress bar.
type Progress struct {
	Counts  Counts
	Message string
}

// Result is filled in once a Run's channel has closed: the final counts,
// the run's terminal state, and any unrecoverable error that aborted it
// early (as opposed to one row failing, which is recorded in Counts and
// the run's dropped-item logs instead).
type Result struct {
	Counts Counts
	State  RunState
	Err    error
}

// Options configures a single Run.
type Options struct {
	Limit        int
	Percentage   int
	ValidateOnly bool
}

// Engine is the import job's execution context: the repository client
// (already wrapped for transactional create/patch), the job whose metadata
// spreadsheet and logs it is driving, and the content model bound to that
// job's rows.
type Engine struct {
	Client       *client.TransactionClient
	Job          *jobstore.Job
	Model        contentmodel.Model
	Config       Config
	HandleClient publishjob.HandleClient // only consulted when a created row requests publication

	logger *plog.ContextLogger
}

// NewEngine builds an Engine, deriving its Config from the job's own
// config.yml Extra fields. handleClient may be nil if no row in this job
// will ever request publication on create.
func NewEngine(c *client.TransactionClient, job *jobstore.Job, model contentmodel.Model, handleClient publishjob.HandleClient) *Engine {
	return &Engine{
		Client:       c,
		Job:          job,
		Model:        model,
		Config:       FromExtra(job.Config.Extra),
		HandleClient: handleClient,
		logger:       plog.New(nil, map[string]interface{}{"component": "importjob", "job": job.ID}),
	}
}

// Run streams the job's metadata spreadsheet row by row, validating and
// then creating or patching each row's resource, and reports progress on
// the returned channel. The returned Result is populated only after the
// channel is closed.
func (e *Engine) Run(opts Options) (<-chan Progress, *Result) {
	out := make(chan Progress)
	result := &Result{}

	go func() {
		defer close(out)

		run, err := e.Job.NewRun()
		if err != nil {
			result.Err = err
			return
		}

		sheet, err := spreadsheet.Open(e.Job.SourceFilename(), e.Model.HeaderMap(), e.Model.IdentifierHeader())
		if err != nil {
			result.Err = err
			return
		}
		defer sheet.Close()

		if sheet.HasBinaries() && e.Config.BinariesLocation == "" {
			e.logger.Warn("spreadsheet declares FILES/ITEM_FILES but no binaries_location is configured")
		}

		var completed itemlog.AppendableLog = e.Job.CompletedLog
		if opts.ValidateOnly {
			completed = itemlog.NullLog{}
		}
		counts := Counts{Total: sheet.Total(), AlreadyCompleted: completed.Len()}

		rows, rowsErrPtr := sheet.Rows(spreadsheet.RowsOptions{
			Limit:      opts.Limit,
			Percentage: opts.Percentage,
			Completed:  completed,
		})

		for item := range rows {
			counts.Rows++

			if item.Invalid != nil {
				counts.Errors++
				e.dropFailed(run, "", item.Invalid.LineNumber, item.Invalid.Reason)
				out <- Progress{Counts: counts, Message: fmt.Sprintf("line %d: %s", item.Invalid.LineNumber, item.Invalid.Reason)}
				continue
			}

			_, message, err := e.processRow(run, item.Row, sheet.Fields(), opts.ValidateOnly, &counts, completed)
			if err != nil {
				counts.Errors++
				e.dropFailed(run, item.Row.Identifier(), item.Row.Number, err.Error())
				out <- Progress{Counts: counts, Message: err.Error()}
				continue
			}
			out <- Progress{Counts: counts, Message: message}
		}

		if *rowsErrPtr != nil {
			result.Err = *rowsErrPtr
			return
		}

		result.Counts = counts
		result.State = finalState(opts.ValidateOnly, counts)
	}()

	return out, result
}

func finalState(validateOnly bool, c Counts) RunState {
	if validateOnly {
		if c.Invalid > 0 || c.Errors > 0 {
			return ValidateFailed
		}
		return ValidateSuccess
	}
	if c.Invalid > 0 || c.Errors > 0 {
		return ImportIncomplete
	}
	return ImportComplete
}

// processRow validates one row and, unless this is a validate-only run,
// creates or patches its resource.
func (e *Engine) processRow(run *jobstore.Run, row *spreadsheet.Row, fields []spreadsheet.Field, validateOnly bool, counts *Counts, completed itemlog.AppendableLog) (ItemStatus, string, error) {
	subject, isNew := e.subjectFor(row)
	g := contentmodel.Parse(e.Model, subject, row, fields)

	report := e.Model.Validate(g, subject)
	if err := e.validateFiles(row); err != nil {
		report["FILES"] = err.Error()
	}

	if !report.Valid() {
		counts.Invalid++
		e.dropInvalid(run, row, report)
		return "", fmt.Sprintf("row %d: invalid (%d failing propert(y/ies))", row.Number, len(report)), nil
	}
	counts.Valid++

	if validateOnly {
		return "", fmt.Sprintf("row %d: valid", row.Number), nil
	}

	status, resourceURI, err := e.updateRepository(subject, isNew, row, g)
	if err != nil {
		return "", "", err
	}

	switch status {
	case ItemCreated:
		counts.Created++
	case ItemModified:
		counts.Updated++
	case ItemUnchanged:
		counts.Skipped++
	}

	if err := completed.Append(itemlog.Row{
		"id":        row.Identifier(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"title":     row.Get("Title"),
		"uri":       resourceURI,
		"status":    string(status),
	}); err != nil {
		return status, "", err
	}

	return status, fmt.Sprintf("row %d: %s %s", row.Number, status, resourceURI), nil
}

// subjectFor returns the row's existing URI as its subject, or a fresh
// urn:uuid: placeholder for a row that will create a new resource.
func (e *Engine) subjectFor(row *spreadsheet.Row) (graph.Term, bool) {
	if row.HasURI() {
		return graph.URI(row.URI()), false
	}
	return graph.URI("urn:uuid:" + uuid.NewString()), true
}

// validateFiles checks that every file referenced by a row's FILES/
// ITEM_FILES columns actually resolves, requiring binaries_location to be
// configured only when the row actually references files.
func (e *Engine) validateFiles(row *spreadsheet.Row) error {
	if !row.HasFiles() && !row.HasItemFiles() {
		return nil
	}
	if e.Config.BinariesLocation == "" {
		return fmt.Errorf("row references files but no binaries_location is configured")
	}

	var missing []string
	checkLocation := func(name string) {
		src, err := binary.FromLocation(name, e.Config.BinariesLocation, binary.SourceOptions{})
		if err != nil {
			missing = append(missing, fmt.Sprintf("%s (%v)", name, err))
			return
		}
		exists, err := src.Exists()
		if err != nil || !exists {
			missing = append(missing, name)
		}
	}

	for _, group := range row.FileGroups() {
		for _, f := range group.Files {
			checkLocation(f.Name)
		}
	}
	for _, f := range row.ItemFiles() {
		checkLocation(f.Name)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing binary file(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

// updateRepository creates a new resource for a placeholder subject,
// patches an existing one if its description has changed, or does nothing
// (ItemUnchanged) otherwise, all inside a single transaction.
func (e *Engine) updateRepository(subject graph.Term, isNew bool, row *spreadsheet.Row, g *graph.Graph) (ItemStatus, string, error) {
	var status ItemStatus
	var resourceURI string

	err := client.WithTransaction(e.Client, func(tx *client.TransactionClient) error {
		if isNew {
			resource, err := e.createResource(tx, subject, row, g)
			if err != nil {
				return err
			}
			resourceURI = resource.URI
			status = ItemCreated
			return nil
		}

		resourceURI = row.URI()
		existing, err := e.Client.GetGraph(resourceURI, false)
		if err != nil {
			return err
		}

		deletes, inserts := graph.Diff(existing, g)
		if deletes.Len() == 0 && inserts.Len() == 0 {
			status = ItemUnchanged
			return nil
		}

		descURI, err := e.Client.GetDescriptionURI(resourceURI, nil)
		if err != nil {
			return err
		}
		update := graph.BuildSPARQLUpdate(deletes, inserts)
		resp, err := tx.Patch(descURI, map[string]string{"Content-Type": "application/sparql-update"}, strings.NewReader(update))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return perr.NewClientError(descURI, resp.StatusCode, resp.Status)
		}
		status = ItemModified
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return status, resourceURI, nil
}

// createResource POSTs a new resource's own graph under the configured
// container, stamps the job's configured access class and parent
// collection, builds out its page/file/proxy structure from the row's
// FILES and ITEM_FILES columns, runs text extraction over any HTML page
// files, and mints or reuses a handle if the row requests publication.
// Grounded on the original's ImportedItem.create_resource and
// PCDMObjectResource.create_page_sequence/create_file.
func (e *Engine) createResource(tx *client.TransactionClient, subject graph.Term, row *spreadsheet.Row, g *graph.Graph) (client.ResourceURI, error) {
	containerPath := e.Config.Container
	if containerPath == "" {
		containerPath = tx.Client.Endpoint.DefaultPath
	}

	e.applyAccessMarkers(g, subject, row)

	resource, err := e.postChild(tx, tx.Client.Endpoint.URL()+containerPath, g)
	if err != nil {
		return client.ResourceURI{}, err
	}

	containers := newChildContainerCache()

	if row.HasFiles() {
		if err := e.createPageSequence(tx, containers, resource, row); err != nil {
			return client.ResourceURI{}, err
		}
	}
	for _, spec := range row.ItemFiles() {
		if err := e.createFile(tx, containers, resource, resource.URI, spec, false); err != nil {
			return client.ResourceURI{}, err
		}
	}

	if row.Publish() || row.Hidden() {
		if err := e.publishOnCreate(tx, resource.URI, row); err != nil {
			return client.ResourceURI{}, err
		}
	}

	return resource, nil
}

// applyAccessMarkers stamps the job's configured access class and parent
// collection membership onto a new resource's own graph before it is
// POSTed, mirroring ImportedItem.create_resource's
// "self.item.rdf_type.add(self.job.access)" / "self.item.member_of =
// self.job.member_of".
func (e *Engine) applyAccessMarkers(g *graph.Graph, subject graph.Term, row *spreadsheet.Row) {
	if e.Config.Access != "" {
		g.Add(graph.Triple{Subject: subject, Predicate: graph.URI(rdfTypePredicate), Object: graph.URI(e.Config.Access)})
	}
	if e.Config.MemberOf != "" {
		g.Add(graph.Triple{Subject: subject, Predicate: graph.URI(pcdmMemberOf), Object: graph.URI(e.Config.MemberOf)})
	}
	if row.Publish() {
		g.Add(graph.Triple{Subject: subject, Predicate: graph.URI(rdfTypePredicate), Object: graph.URI(publishjob.UMDAccessPublished)})
	}
	if row.Hidden() {
		g.Add(graph.Triple{Subject: subject, Predicate: graph.URI(rdfTypePredicate), Object: graph.URI(publishjob.UMDAccessHidden)})
	}
}

// publishOnCreate mints or reuses a handle for a just-created resource
// that requested publication on import, recording its identifier and
// target URL so the resource carries a public URL from the moment it is
// created rather than only after a later, separate publish run.
func (e *Engine) publishOnCreate(tx *client.TransactionClient, resourceURI string, row *spreadsheet.Row) error {
	if !row.Publish() || e.HandleClient == nil || e.Config.PublicURLPattern == "" {
		return nil
	}
	handle, err := publishjob.MintOrReuseHandle(e.HandleClient, resourceURI, e.Config.PublicURLPattern)
	if err != nil {
		return err
	}
	if handle == nil {
		return nil
	}
	return e.patchInsert(tx, resourceURI, []graph.Triple{
		{Subject: graph.URI(resourceURI), Predicate: graph.URI(dctermsIdentifier), Object: graph.Literal(handle.String())},
	})
}

// childContainerCache lazily creates and remembers the LDP child
// containers ("m", "f", "x", "a") PCDM resource construction relies on, so
// a resource with several pages doesn't try to re-create the same
// container once per page. Grounded on plastron-repo's pcdm.py, where
// each of files_container/members_container/proxies_container/
// annotations_container checks .exists before creating.
type childContainerCache struct {
	created map[string]bool
}

func newChildContainerCache() *childContainerCache {
	return &childContainerCache{created: make(map[string]bool)}
}

// ensure returns parentURI's slug child container URL, creating it first
// if it does not already exist. Existence is checked with tx.Head
// directly, not the promoted Exists helper, since Exists is defined on
// *Client and would bypass the transaction's URL rewriting.
func (c *childContainerCache) ensure(tx *client.TransactionClient, parentURI, slug string) (string, error) {
	url := parentURI + "/" + slug
	if c.created[url] {
		return url, nil
	}
	resp, err := tx.Head(url, nil)
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		createResp, err := tx.Put(url, nil, nil)
		if err != nil {
			return "", err
		}
		defer createResp.Body.Close()
		if createResp.StatusCode >= 400 {
			return "", perr.NewClientError(url, createResp.StatusCode, createResp.Status)
		}
	} else if resp.StatusCode >= 400 {
		return "", perr.NewClientError(url, resp.StatusCode, resp.Status)
	}
	c.created[url] = true
	return url, nil
}

// postChild POSTs g under containerURL and resolves the created
// resource's own URI and description URI, the same create-and-resolve
// sequence createResource used before any PCDM structure existed.
func (e *Engine) postChild(tx *client.TransactionClient, containerURL string, g *graph.Graph) (client.ResourceURI, error) {
	headers := map[string]string{"Content-Type": "application/n-triples"}
	resp, err := tx.Post(containerURL, headers, strings.NewReader(g.SerializeNTriples()))
	if err != nil {
		return client.ResourceURI{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return client.ResourceURI{}, perr.NewClientError(containerURL, resp.StatusCode, resp.Status)
	}
	createdURI := resp.Header.Get("Location")
	descURI, err := tx.GetDescriptionURI(createdURI, resp)
	if err != nil {
		return client.ResourceURI{}, err
	}
	return client.ResourceURI{URI: createdURI, DescriptionURI: descURI}, nil
}

// patchInsert applies an insert-only SPARQL PATCH, used for the
// parent-to-child linking triples that can only be added once the
// child's real URI is known.
func (e *Engine) patchInsert(tx *client.TransactionClient, resourceURI string, triples []graph.Triple) error {
	if len(triples) == 0 {
		return nil
	}
	descURI, err := tx.GetDescriptionURI(resourceURI, nil)
	if err != nil {
		return err
	}
	insert := graph.New()
	for _, t := range triples {
		insert.Add(t)
	}
	update := graph.BuildSPARQLUpdate(graph.New(), insert)
	resp, err := tx.Patch(descURI, map[string]string{"Content-Type": "application/sparql-update"}, strings.NewReader(update))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return perr.NewClientError(descURI, resp.StatusCode, resp.Status)
	}
	return nil
}

// createPageSequence builds one Page per FILES rootname group, in FILES
// column order, and links them into an ordered ORE proxy chain off of
// parent. No create_page_sequence body exists anywhere in the retrieval
// pack (plastron-repo's pcdm.py only defines the lower-level create_page/
// create_file/create_proxy primitives it's assembled from), so this
// orchestration is synthesized from those primitives plus ProxyIterator's
// first/next walk.
func (e *Engine) createPageSequence(tx *client.TransactionClient, containers *childContainerCache, parent client.ResourceURI, row *spreadsheet.Row) error {
	groups := spreadsheet.OrderedGroups(row.FileGroups())
	if len(groups) == 0 {
		return nil
	}

	var proxies []client.ResourceURI
	for i, group := range groups {
		page, err := e.createPage(tx, containers, parent, i+1, group)
		if err != nil {
			return err
		}
		proxy, err := e.createProxy(tx, containers, parent.URI, page.URI)
		if err != nil {
			return err
		}
		proxies = append(proxies, proxy)
	}

	return e.linkProxySequence(tx, parent.URI, proxies)
}

// createPage POSTs a single Page under parent's members container ("m/"),
// links it as pcdm:hasMember/memberOf, and uploads each of the group's
// files onto the new page. Grounded on PCDMObjectResource.create_page.
func (e *Engine) createPage(tx *client.TransactionClient, containers *childContainerCache, parent client.ResourceURI, number int, group *spreadsheet.FileGroup) (client.ResourceURI, error) {
	membersURL, err := containers.ensure(tx, parent.URI, "m")
	if err != nil {
		return client.ResourceURI{}, err
	}

	placeholder := graph.URI("urn:uuid:" + uuid.NewString())
	pageGraph := graph.New()
	pageGraph.Add(graph.Triple{Subject: placeholder, Predicate: graph.URI(rdfTypePredicate), Object: graph.URI(pcdmObject)})
	pageGraph.Add(graph.Triple{Subject: placeholder, Predicate: graph.URI(dctermsTitle), Object: graph.Literal(group.Label)})
	pageGraph.Add(graph.Triple{Subject: placeholder, Predicate: graph.URI(fabioHasSequenceIdentifier), Object: graph.TypedLiteral(strconv.Itoa(number), xsdInteger)})
	pageGraph.Add(graph.Triple{Subject: placeholder, Predicate: graph.URI(pcdmMemberOf), Object: graph.URI(parent.URI)})

	page, err := e.postChild(tx, membersURL, pageGraph)
	if err != nil {
		return client.ResourceURI{}, err
	}

	if err := e.patchInsert(tx, parent.URI, []graph.Triple{
		{Subject: graph.URI(parent.URI), Predicate: graph.URI(pcdmHasMember), Object: graph.URI(page.URI)},
	}); err != nil {
		return client.ResourceURI{}, err
	}

	for _, spec := range group.Files {
		if err := e.createFile(tx, containers, page, page.URI, spec, true); err != nil {
			return client.ResourceURI{}, err
		}
	}

	return page, nil
}

// createFile resolves spec against the job's binaries location, uploads
// the binary as a new file resource under parentURI's files container
// ("f/"), links it as pcdm:hasFile/fileOf, and, for a page file whose
// resolved MIME type is one of the configured extract_text_types, runs
// text extraction over it. Grounded on
// PCDMFileBearingResource.create_file.
func (e *Engine) createFile(tx *client.TransactionClient, containers *childContainerCache, parent client.ResourceURI, parentURI string, spec spreadsheet.FileSpec, isPageFile bool) error {
	src, err := binary.FromLocation(spec.Name, e.Config.BinariesLocation, binary.SourceOptions{})
	if err != nil {
		return err
	}
	mimeType, err := src.MimeType()
	if err != nil {
		return err
	}

	filesURL, err := containers.ensure(tx, parentURI, "f")
	if err != nil {
		return err
	}

	body, err := src.Open()
	if err != nil {
		return err
	}
	defer body.Close()

	headers := map[string]string{"Content-Type": mimeType}
	if digest, err := src.Digest(); err == nil && digest != "" {
		headers["Digest"] = digest
	}
	resp, err := tx.Post(filesURL, headers, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return perr.NewClientError(filesURL, resp.StatusCode, resp.Status)
	}
	fileURI := resp.Header.Get("Location")
	descURI, err := tx.GetDescriptionURI(fileURI, resp)
	if err != nil {
		return err
	}

	if err := e.patchInsert(tx, fileURI, []graph.Triple{
		{Subject: graph.URI(fileURI), Predicate: graph.URI(rdfTypePredicate), Object: graph.URI(pcdmFile)},
		{Subject: graph.URI(fileURI), Predicate: graph.URI(dctermsTitle), Object: graph.Literal(spec.Name)},
		{Subject: graph.URI(fileURI), Predicate: graph.URI(pcdmFileOf), Object: graph.URI(parentURI)},
	}); err != nil {
		return err
	}
	if err := e.patchInsert(tx, parentURI, []graph.Triple{
		{Subject: graph.URI(parentURI), Predicate: graph.URI(pcdmHasFile), Object: graph.URI(fileURI)},
	}); err != nil {
		return err
	}

	if isPageFile && e.extractTextConfigured(mimeType) {
		if err := e.extractText(tx, containers, parentURI, client.ResourceURI{URI: fileURI, DescriptionURI: descURI}, src); err != nil {
			return err
		}
	}

	return nil
}

// extractTextConfigured reports whether mimeType is both one of the job's
// configured extract_text_types and text/html, the only format
// annotate_from_files ever actually extracted text from.
func (e *Engine) extractTextConfigured(mimeType string) bool {
	if mimeType != "text/html" {
		return false
	}
	for _, t := range e.Config.ExtractTextTypes {
		if strings.TrimSpace(t) == mimeType {
			return true
		}
	}
	return false
}

// extractText reads an HTML file's text content and posts it as a Web
// Annotation under pageURI's annotations container ("a/"), targeting the
// page and pointing back at the source file. Grounded on
// annotate_from_files, adapted to run immediately after the page file
// that prompted it is uploaded rather than over an in-memory graph before
// a single later transaction, since this engine persists PCDM resources
// one at a time. A file that cannot be read or parsed as HTML (a bad
// encoding, truncated markup) is skipped rather than failing the row: the
// annotation is an enrichment of the page, not part of its required
// description.
func (e *Engine) extractText(tx *client.TransactionClient, containers *childContainerCache, pageURI string, file client.ResourceURI, src binary.Source) error {
	reader, err := src.Open()
	if err != nil {
		e.logger.Warnf("skipping text extraction for %s: %v", file.URI, err)
		return nil
	}
	defer reader.Close()

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		e.logger.Warnf("skipping text extraction for %s: %v", file.URI, err)
		return nil
	}
	text := strings.TrimSpace(doc.Text())
	if text == "" {
		return nil
	}

	annotationsURL, err := containers.ensure(tx, pageURI, "a")
	if err != nil {
		return err
	}

	placeholder := graph.URI("urn:uuid:" + uuid.NewString())
	body := graph.URI("urn:uuid:" + uuid.NewString())
	annotationGraph := graph.New()
	annotationGraph.Add(graph.Triple{Subject: placeholder, Predicate: graph.URI(rdfTypePredicate), Object: graph.URI(oaAnnotation)})
	annotationGraph.Add(graph.Triple{Subject: placeholder, Predicate: graph.URI(oaMotivatedBy), Object: graph.URI(scPainting)})
	annotationGraph.Add(graph.Triple{Subject: placeholder, Predicate: graph.URI(oaHasTarget), Object: graph.URI(pageURI)})
	annotationGraph.Add(graph.Triple{Subject: placeholder, Predicate: graph.URI(oaHasBody), Object: body})
	annotationGraph.Add(graph.Triple{Subject: placeholder, Predicate: graph.URI(provDerivedFrom), Object: graph.URI(file.URI)})
	annotationGraph.Add(graph.Triple{Subject: body, Predicate: graph.URI(rdfTypePredicate), Object: graph.URI(oaTextualBody)})
	annotationGraph.Add(graph.Triple{Subject: body, Predicate: graph.URI(rdfValue), Object: graph.Literal(text)})
	annotationGraph.Add(graph.Triple{Subject: body, Predicate: graph.URI(dcFormat), Object: graph.Literal("text/plain")})

	_, err = e.postChild(tx, annotationsURL, annotationGraph)
	return err
}

// createProxy POSTs an ORE proxy under parentURI's proxies container
// ("x/"), pointing at target; its prev/next/first/last links are wired
// separately by linkProxySequence once every page's proxy has been
// created. Grounded on AggregationResource.create_proxy.
func (e *Engine) createProxy(tx *client.TransactionClient, containers *childContainerCache, parentURI, target string) (client.ResourceURI, error) {
	proxiesURL, err := containers.ensure(tx, parentURI, "x")
	if err != nil {
		return client.ResourceURI{}, err
	}

	placeholder := graph.URI("urn:uuid:" + uuid.NewString())
	proxyGraph := graph.New()
	proxyGraph.Add(graph.Triple{Subject: placeholder, Predicate: graph.URI(rdfTypePredicate), Object: graph.URI(oreProxy)})
	proxyGraph.Add(graph.Triple{Subject: placeholder, Predicate: graph.URI(oreProxyFor), Object: graph.URI(target)})
	proxyGraph.Add(graph.Triple{Subject: placeholder, Predicate: graph.URI(oreProxyIn), Object: graph.URI(parentURI)})

	return e.postChild(tx, proxiesURL, proxyGraph)
}

// linkProxySequence patches every consecutive pair of proxies with
// iana:next/iana:prev, and stamps parentURI with iana:first/iana:last,
// forming the ordered linked-list walk ProxyIterator consumes.
func (e *Engine) linkProxySequence(tx *client.TransactionClient, parentURI string, proxies []client.ResourceURI) error {
	if len(proxies) == 0 {
		return nil
	}

	if err := e.patchInsert(tx, parentURI, []graph.Triple{
		{Subject: graph.URI(parentURI), Predicate: graph.URI(ianaFirst), Object: graph.URI(proxies[0].URI)},
		{Subject: graph.URI(parentURI), Predicate: graph.URI(ianaLast), Object: graph.URI(proxies[len(proxies)-1].URI)},
	}); err != nil {
		return err
	}

	for i, proxy := range proxies {
		var triples []graph.Triple
		if i > 0 {
			triples = append(triples, graph.Triple{Subject: graph.URI(proxy.URI), Predicate: graph.URI(ianaPrev), Object: graph.URI(proxies[i-1].URI)})
		}
		if i < len(proxies)-1 {
			triples = append(triples, graph.Triple{Subject: graph.URI(proxy.URI), Predicate: graph.URI(ianaNext), Object: graph.URI(proxies[i+1].URI)})
		}
		if err := e.patchInsert(tx, proxy.URI, triples); err != nil {
			return err
		}
	}
	return nil
}

// dropInvalid appends a failing row to the run's dropped-invalid log.
func (e *Engine) dropInvalid(run *jobstore.Run, row *spreadsheet.Row, report contentmodel.ValidationReport) {
	var reasons []string
	for prop, reason := range report {
		reasons = append(reasons, fmt.Sprintf("%s: %s", prop, reason))
	}
	_ = run.InvalidItems.Append(itemlog.Row{
		"id":        row.Identifier(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"title":     row.Get("Title"),
		"uri":       row.URI(),
		"reason":    strings.Join(reasons, "; "),
	})
}

// dropFailed appends a row that raised an unrecoverable error to the run's
// dropped-failed log.
func (e *Engine) dropFailed(run *jobstore.Run, identifier string, lineOrRowNumber int, reason string) {
	_ = run.FailedItems.Append(itemlog.Row{
		"id":        identifier,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"title":     fmt.Sprintf("line %d", lineOrRowNumber),
		"uri":       "",
		"reason":    reason,
	})
}
