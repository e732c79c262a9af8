// Package domain defines the canonical types shared by every store and
// service in the knowledge-graph pipeline: brains, sources, graph
// nodes/edges, vector points, and chat records. Stores convert to/from
// their own wire or row representations at their boundary; nothing above
// the store layer should see a driver-specific type.
package domain

import "time"

// SourceKind enumerates the ingestible document kinds.
type SourceKind string

const (
	SourceKindPDF  SourceKind = "pdf"
	SourceKindTxt  SourceKind = "txt"
	SourceKindMD   SourceKind = "md"
	SourceKindDocx SourceKind = "docx"
	SourceKindMemo SourceKind = "memo"
)

// ExtractionMode selects how the Ingestion Coordinator turns text into
// graph components.
type ExtractionMode string

const (
	ModeRule ExtractionMode = "rule"
	ModeLLM  ExtractionMode = "llm"
)

// LLMBackend selects which LLM Adapter implementation answers a request.
type LLMBackend string

const (
	BackendOpenAI LLMBackend = "openai"
	BackendOllama LLMBackend = "ollama"
)

// Brain is a workspace partition. All graph, vector, and chat data is
// scoped by BrainID.
type Brain struct {
	BrainID    string
	Name       string
	CreatedAt  time.Time
	Important  bool
	DeployMode string
}

// Source is an ingested document or memo.
type Source struct {
	SourceID int64
	BrainID  string
	Kind     SourceKind
	Title    string
	Text     string
	Path     string
}

// DescriptionRecord is one `{description, source_id}` entry on a node.
// Dedup is on exact equality of both fields.
type DescriptionRecord struct {
	Description string `json:"description"`
	SourceID    string `json:"source_id"`
}

// SentenceRecord is one `{original_sentence, source_id, score}` entry.
// Dedup is on OriginalSentence alone.
type SentenceRecord struct {
	OriginalSentence string  `json:"original_sentence"`
	SourceID         string  `json:"source_id"`
	Score            float64 `json:"score"`
}

// Node is identified by (Name, BrainID).
type Node struct {
	Name               string
	BrainID            string
	Label              string
	Descriptions       []DescriptionRecord
	OriginalSentences  []SentenceRecord
}

// Edge is identified by (Source, Target, Relation, BrainID). Directed;
// both endpoints must already exist in the same brain.
type Edge struct {
	Source   string
	Target   string
	Relation string
	BrainID  string
}

// VectorPoint is a single embedded unit persisted in the per-brain
// collection `brain_{BrainID}`.
type VectorPoint struct {
	ID          string
	BrainID     string
	Name        string
	Description string
	SourceID    string
	FormatIndex int
	Vector      []float32
}

// ChatSession groups an ordered log of ChatMessages under one brain.
type ChatSession struct {
	SessionID string
	Name      string
	BrainID   string
	CreatedAt time.Time
}

// ReferencedSource is one source_id entry inside a ChatMessage's
// referenced-node structure.
type ReferencedSource struct {
	ID                string           `json:"id"`
	Title             string           `json:"title"`
	OriginalSentences []SentenceRecord `json:"original_sentences"`
}

// ReferencedNode is one entry of a ChatMessage's referenced_nodes_json.
type ReferencedNode struct {
	Name      string             `json:"name"`
	SourceIDs []ReferencedSource `json:"source_ids"`
}

// ChatMessage is one turn in a ChatSession.
type ChatMessage struct {
	ChatID          int64
	SessionID       string
	IsAI            bool
	Message         string
	ReferencedNodes []ReferencedNode
	Accuracy        float64
}

// SearchHit is a single vector-search result joined with its payload.
type SearchHit struct {
	Name        string
	Description string
	SourceID    string
	Score       float64
}

// SchemaResult is the projection returned by query_schema_by_names.
type SchemaResult struct {
	StartNodes    []Node
	RelatedNodes  []Node
	Relationships []Edge
}

// GraphProjection is the full-graph view used for visualization.
type GraphProjection struct {
	Nodes []GraphNodeRef
	Links []GraphLinkRef
}

type GraphNodeRef struct {
	Name string
}

type GraphLinkRef struct {
	Source   string
	Target   string
	Relation string
}
