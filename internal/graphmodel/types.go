// Package graphmodel defines the entities and edges of the evidence-anchored
// property graph that the ingestion pipeline builds and the query service
// reads. Values here are immutable once constructed; stages extend a pipeline
// record by returning a new value rather than mutating one in place.
package graphmodel

import "time"

// DocumentKind enumerates the supported document kinds. Parsing each kind
// into {text, heading_tree, page_map, metadata} is an external collaborator;
// this package only models the result.
type DocumentKind string

const (
	DocumentKindPDF      DocumentKind = "pdf"
	DocumentKindMarkdown DocumentKind = "markdown"
	DocumentKindText     DocumentKind = "text"
	DocumentKindWebPage  DocumentKind = "webpage"
)

// DocumentStatus tracks where a document sits in the ingestion job lifecycle.
type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "pending"
	DocumentStatusIngested DocumentStatus = "ingested"
	DocumentStatusFailed   DocumentStatus = "failed"
)

// Document is created once per build and never mutated thereafter.
type Document struct {
	ID        string // stable hash of content
	Checksum  string
	Kind      DocumentKind
	Size      int64
	CreatedAt time.Time
	Status    DocumentStatus
}

// HeadingNode is one node of a document's extracted heading tree, used by
// the chunker to populate SectionPath on each Chunk.
type HeadingNode struct {
	Title    string
	Level    int
	Children []HeadingNode
}

// Sentence is one sentence-splitter output unit, carrying a document-wide
// monotonic sequence number used to build SentenceIDs.
type Sentence struct {
	ID      string // "s{seq}"
	Seq     int
	Text    string
	Section []string // heading path active at this sentence
	Offset  int       // byte offset into the normalized document text
}

// Chunk is a sentence-windowed unit of a document; the smallest unit of
// evidence a Claim can resolve to. Created once per build and never mutated;
// ResolvedText is filled in from the coreference resolver's output on the
// pipeline's own copy of the Chunk value. The resolver's alias map stays on
// coref.Result and is not part of Chunk.
type Chunk struct {
	ID           string // hash(doc_id, window_start, window_end, build_version)
	DocID        string
	Text         string
	ResolvedText string
	SectionPath  []string
	PageNum      int
	SentenceIDs  []string
	WindowStart  int
	WindowEnd    int
	Embedding    []float32
	BuildVersion string
}

// Evidence is the four-level locator that anchors a statement in the source.
type Evidence struct {
	DocID       string
	ChunkID     string
	SectionPath []string
	SentenceIDs []string
}

// Concept is a canonical named entity in the knowledge graph; globally
// unique by Name. It is the atom of entity linking.
type Concept struct {
	ID          string
	Name        string
	Description string
	Domain      string
	Category    string
	Importance  float64
	Tags        []string
	Embedding   []float32
	Source      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Alias maps a surface form to a Concept's canonical name. Append-only;
// resolved by most-recent-confidence wins.
type Alias struct {
	SurfaceForm string
	Canonical   string
	DocID       string // optional: document-local alias
	Confidence  float64
	Negative    bool // from feedback unlink(): this surface no longer resolves in this doc's context
	CreatedAt   time.Time
}

// ClaimType, Modality and Polarity are the closed vocabularies for claims.
type ClaimType string

const (
	ClaimTypeFact       ClaimType = "fact"
	ClaimTypeHypothesis ClaimType = "hypothesis"
	ClaimTypeConclusion ClaimType = "conclusion"
)

type Modality string

const (
	ModalityAssertive   Modality = "assertive"
	ModalityHedged      Modality = "hedged"
	ModalitySpeculative Modality = "speculative"
)

type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
)

// Claim is an extracted atomic proposition with type, modality, polarity,
// certainty and evidence. A non-empty CanonicalID marks a redirect shell;
// the chain length is capped at 1 via eager rewrite (Stage 6).
type Claim struct {
	ID                 string
	Text               string
	NormalizedTextHash string
	CanonicalID        string
	DocID              string
	ChunkID            string
	SentenceIDs        []string
	ClaimType          ClaimType
	Modality           Modality
	Polarity           Polarity
	Certainty          float64
	Confidence         float64
	EvidenceSpan       Evidence
	Embedding          []float32
	BuildVersion       string
}

// ClaimRelationType is the closed set of inter-claim relation types.
type ClaimRelationType string

const (
	RelationSupports     ClaimRelationType = "SUPPORTS"
	RelationContradicts  ClaimRelationType = "CONTRADICTS"
	RelationCauses       ClaimRelationType = "CAUSES"
	RelationComparesWith ClaimRelationType = "COMPARES_WITH"
	RelationConditions   ClaimRelationType = "CONDITIONS"
)

// ClaimRelation is a Claim-[:REL {confidence}]->Claim edge.
type ClaimRelation struct {
	FromClaimID string
	ToClaimID   string
	Type        ClaimRelationType
	Confidence  float64
}

// ThemeLevel distinguishes coarse (whole concept graph) from fine
// (within-coarse-theme) community detection runs.
type ThemeLevel string

const (
	ThemeLevelCoarse ThemeLevel = "coarse"
	ThemeLevelFine   ThemeLevel = "fine"
)

// Theme is a community in the concept/claim graph plus its LLM-generated
// label and summary; the unit of "global" retrieval.
type Theme struct {
	ID          string // deterministic from (sorted member-ID hash, level)
	Label       string
	Summary     string
	Level       ThemeLevel
	Keywords    []string
	CommunityID string
	MemberCount int
	Embedding   []float32
}

// Mention is a MENTIONS edge from a Document or Chunk to a Concept.
type Mention struct {
	ChunkID    string
	ConceptID  string
	Surface    string
	Evidence   string
	Offset     [2]int
	Confidence float64
}

// ConceptRelation is a Concept-[:PREDICATE]->Concept edge; Predicate is
// always a member of the whitelist by the time it reaches the graph store.
type ConceptRelation struct {
	FromConceptID string
	ToConceptID   string
	Predicate     string
	Confidence    float64
}

// BelongsToTheme is a Concept|Claim-[:BELONGS_TO_THEME]->Theme edge.
type BelongsToTheme struct {
	MemberID string // Concept.ID or Claim.ID
	ThemeID  string
}
