package metadatastore

import "time"

// BrainRow is the relational record for a workspace (spec §3 Brain).
type BrainRow struct {
	BrainID    string `gorm:"primaryKey"`
	Name       string
	Important  bool
	DeployMode string
	CreatedAt  time.Time
}

func (BrainRow) TableName() string { return "brains" }

// sourceFields is embedded by every per-kind source table. A single
// monotonic counter (see CounterRow) mints SourceID across all kinds so a
// bare numeric id is always resolvable to exactly one table.
type sourceFields struct {
	SourceID int64 `gorm:"primaryKey;autoIncrement:false"`
	BrainID  string `gorm:"index"`
	Title    string
	Text     string
	Path     string
}

type PdfRow struct {
	sourceFields
}

func (PdfRow) TableName() string { return "pdf_files" }

type TextFileRow struct {
	sourceFields
}

func (TextFileRow) TableName() string { return "text_files" }

type MdFileRow struct {
	sourceFields
}

func (MdFileRow) TableName() string { return "md_files" }

type DocxFileRow struct {
	sourceFields
}

func (DocxFileRow) TableName() string { return "docx_files" }

type MemoRow struct {
	sourceFields
}

func (MemoRow) TableName() string { return "memos" }

// ChatSessionRow is spec §3 ChatSession.
type ChatSessionRow struct {
	SessionID string `gorm:"primaryKey"`
	Name      string
	BrainID   string `gorm:"index"`
	CreatedAt time.Time
}

func (ChatSessionRow) TableName() string { return "chat_sessions" }

// ChatRow is spec §3 ChatMessage; ReferencedNodesJSON holds the
// `{name, source_ids:[...]}` structure serialized as JSON text.
type ChatRow struct {
	ChatID               int64 `gorm:"primaryKey;autoIncrement:false"`
	SessionID            string `gorm:"index"`
	IsAI                 bool
	Message              string
	ReferencedNodesJSON  string
	Accuracy             float64
	CreatedAt            time.Time
}

func (ChatRow) TableName() string { return "chats" }

// CounterRow backs the monotonically incrementing id generators (chat_id,
// source_id); both are incremented inside the same transaction as their
// insert (spec §5).
type CounterRow struct {
	Name  string `gorm:"primaryKey"`
	Value int64
}

func (CounterRow) TableName() string { return "counters" }
