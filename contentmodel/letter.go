package contentmodel

import (
	"github.com/umd-lib/plastron-go/graph"
	"github.com/umd-lib/plastron-go/spreadsheet"
)

// letterModel binds the UMD "Letter" content model: a top-level PCDM object
// with embedded author/recipient/place/subject agents and a required
// parent collection.
type letterModel struct {
	vocabularies *VocabularyCache
}

// NewLetterModel builds the Letter content model, using cache for its
// controlled-vocabulary properties (terms of use, presentation set).
func NewLetterModel(cache *VocabularyCache) Model {
	return &letterModel{vocabularies: cache}
}

func (m *letterModel) Name() string { return "Letter" }

func (m *letterModel) IdentifierHeader() string { return "Identifier" }

var letterProperties = map[string]string{
	"title":                  "http://purl.org/dc/terms/title",
	"rights_holder":          "http://purl.org/dc/terms/rightsHolder",
	"extent":                 "http://purl.org/dc/terms/extent",
	"bibliographic_citation": "http://purl.org/dc/terms/bibliographicCitation",
	"description":            "http://purl.org/dc/terms/description",
	"language":               "http://purl.org/dc/elements/1.1/language",
	"date":                   "http://purl.org/dc/elements/1.1/date",
	"type":                   "http://www.europeana.eu/schemas/edm/hasType",
	"rights":                 "http://purl.org/dc/terms/rights",
	"terms_of_use":           "http://purl.org/dc/terms/license",
	"copyright_notice":       "http://schema.org/copyrightNotice",
	"identifier":             "http://purl.org/dc/terms/identifier",
	"part_of":                "http://purl.org/dc/terms/isPartOf",
	"author":                 "http://purl.org/vocab/relationship/aut",
	"recipient":              "http://purl.org/ontology/bibo/recipient",
	"place":                  "http://purl.org/dc/terms/spatial",
	"subject":                "http://purl.org/dc/terms/subject",
	"member_of":              "http://pcdm.org/models#memberOf",
	"has_member":             "http://pcdm.org/models#hasMember",
	"presentation_set":       "http://www.openarchives.org/ore/terms/isAggregatedBy",

	// Sub-properties of the embedded (hash-URI) author/recipient/place/
	// subject/part_of authority records, each carrying just an rdfs:label.
	"subject.label":   "http://www.w3.org/2000/01/rdf-schema#label",
	"place.label":     "http://www.w3.org/2000/01/rdf-schema#label",
	"author.label":    "http://www.w3.org/2000/01/rdf-schema#label",
	"recipient.label": "http://www.w3.org/2000/01/rdf-schema#label",
	"part_of.label":   "http://www.w3.org/2000/01/rdf-schema#label",
}

const umdTermsOfUseVocabulary = "http://vocab.lib.umd.edu/termsOfUse#"
const umdPresentationSetVocabulary = "http://vocab.lib.umd.edu/set#"

func (m *letterModel) rules() []PropertyRules {
	return []PropertyRules{
		{Property: "title", Rules: []Rule{Required(), NonEmpty()}},
		{Property: "rights_holder", Rules: []Rule{Required()}},
		{Property: "extent", Rules: []Rule{Required()}},
		{Property: "bibliographic_citation", Rules: []Rule{Required()}},
		{Property: "description", Rules: []Rule{Required(), PlainText()}},
		{Property: "language", Rules: []Rule{Required()}},
		{Property: "date", Rules: []Rule{EDTFFormatted()}},
		{Property: "type", Rules: []Rule{Required()}},
		{Property: "rights", Rules: []Rule{Required()}},
		{Property: "identifier", Rules: []Rule{Required()}},
		{Property: "part_of", Rules: []Rule{Required(), Exactly(1)}},
		{Property: "terms_of_use", Rules: []Rule{FromVocabulary(m.vocabularies, umdTermsOfUseVocabulary)}},
		{Property: "presentation_set", Rules: []Rule{FromVocabulary(m.vocabularies, umdPresentationSetVocabulary)}},
	}
}

func (m *letterModel) Properties() map[string]string { return letterProperties }

func (m *letterModel) RDFTypes() []string {
	return []string{
		"http://purl.org/ontology/bibo/Letter",
		"http://vocab.lib.umd.edu/model#Letter",
	}
}

func (m *letterModel) Validate(g *graph.Graph, subject graph.Term) ValidationReport {
	return Validate(g, subject, letterProperties, m.rules())
}

func (m *letterModel) HeaderMap() spreadsheet.HeaderMap {
	return spreadsheet.HeaderMap{
		"title":                  "Title",
		"rights_holder":          "Rights Holder",
		"extent":                 "Extent",
		"bibliographic_citation": "Bibliographic Citation",
		"description":            "Description",
		"language":               "Language",
		"date":                   "Date",
		"type":                   "Resource Type",
		"rights":                 "Rights",
		"terms_of_use":           "Terms of Use",
		"copyright_notice":       "Copyright Notice",
		"identifier":             "Identifier",
		"subject": spreadsheet.HeaderMap{
			"label": "Subject",
		},
		"place": spreadsheet.HeaderMap{
			"label": "Place",
		},
		"author": spreadsheet.HeaderMap{
			"label": "Author",
		},
		"recipient": spreadsheet.HeaderMap{
			"label": "Recipient",
		},
		"part_of": spreadsheet.HeaderMap{
			"label": "Collection",
		},
	}
}
