package metadatastore

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/domainerr"
	"github.com/graphbrain/kgqa/internal/pkg/dbctx"
)

const sourceCounterName = "source_id"

var sourceTables = map[domain.SourceKind]string{
	domain.SourceKindPDF:  "pdf_files",
	domain.SourceKindTxt:  "text_files",
	domain.SourceKindMD:   "md_files",
	domain.SourceKindDocx: "docx_files",
	domain.SourceKindMemo: "memos",
}

type SourceRepo interface {
	Create(dbc dbctx.Context, s domain.Source) (domain.Source, error)
	Get(dbc dbctx.Context, kind domain.SourceKind, sourceID int64) (domain.Source, error)
	Delete(dbc dbctx.Context, kind domain.SourceKind, sourceID int64) error
	ListByBrain(dbc dbctx.Context, brainID string, kind domain.SourceKind) ([]domain.Source, error)
	// TitlesByIDs resolves a mixed set of source ids to their titles by
	// scanning every per-kind table, since a bare numeric id alone doesn't
	// say which table it lives in.
	TitlesByIDs(dbc dbctx.Context, ids []int64) (map[int64]string, error)
}

type sourceRepo struct {
	db *gorm.DB
}

func NewSourceRepo(db *gorm.DB) SourceRepo { return &sourceRepo{db: db} }

func (r *sourceRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func tableFor(kind domain.SourceKind) (string, error) {
	t, ok := sourceTables[kind]
	if !ok {
		return "", domainerr.InputValidation("unknown source kind: " + string(kind))
	}
	return t, nil
}

func (r *sourceRepo) Create(dbc dbctx.Context, s domain.Source) (domain.Source, error) {
	table, err := tableFor(s.Kind)
	if err != nil {
		return domain.Source{}, err
	}

	gdb := r.tx(dbc)
	var created domain.Source
	run := func(tx *gorm.DB) error {
		id, err := nextIDInTx(dbc, tx, sourceCounterName)
		if err != nil {
			return domainerr.MetadataStore("mint source_id failed", err)
		}
		s.SourceID = id
		row := map[string]any{
			"source_id": s.SourceID,
			"brain_id":  s.BrainID,
			"title":     s.Title,
			"text":      s.Text,
			"path":      s.Path,
		}
		if err := tx.WithContext(dbc.Ctx).Table(table).Create(row).Error; err != nil {
			return domainerr.MetadataStore("create_source failed", err)
		}
		created = s
		return nil
	}

	if dbc.Tx != nil {
		if err := run(dbc.Tx); err != nil {
			return domain.Source{}, err
		}
		return created, nil
	}
	if err := gdb.Transaction(run); err != nil {
		return domain.Source{}, err
	}
	return created, nil
}

func (r *sourceRepo) Get(dbc dbctx.Context, kind domain.SourceKind, sourceID int64) (domain.Source, error) {
	table, err := tableFor(kind)
	if err != nil {
		return domain.Source{}, err
	}
	var row sourceFields
	err = r.tx(dbc).WithContext(dbc.Ctx).Table(table).Where("source_id = ?", sourceID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return domain.Source{}, domainerr.ResourceNotFound(fmt.Sprintf("source not found: %d", sourceID))
	}
	if err != nil {
		return domain.Source{}, domainerr.MetadataStore("get_source failed", err)
	}
	return domain.Source{SourceID: row.SourceID, BrainID: row.BrainID, Kind: kind, Title: row.Title, Text: row.Text, Path: row.Path}, nil
}

func (r *sourceRepo) Delete(dbc dbctx.Context, kind domain.SourceKind, sourceID int64) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Table(table).Where("source_id = ?", sourceID).Delete(nil).Error; err != nil {
		return domainerr.MetadataStore("delete_source failed", err)
	}
	return nil
}

func (r *sourceRepo) ListByBrain(dbc dbctx.Context, brainID string, kind domain.SourceKind) ([]domain.Source, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	var rows []sourceFields
	if err := r.tx(dbc).WithContext(dbc.Ctx).Table(table).Where("brain_id = ?", brainID).Find(&rows).Error; err != nil {
		return nil, domainerr.MetadataStore("list_sources_by_brain failed", err)
	}
	out := make([]domain.Source, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Source{SourceID: row.SourceID, BrainID: row.BrainID, Kind: kind, Title: row.Title, Text: row.Text, Path: row.Path})
	}
	return out, nil
}

// TitlesByIDs resolves titles via a UNION ALL across every per-kind table,
// since a source id alone doesn't carry its kind.
func (r *sourceRepo) TitlesByIDs(dbc dbctx.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ",")

	parts := make([]string, 0, len(sourceTables))
	unionArgs := make([]interface{}, 0, len(ids)*len(sourceTables))
	for _, table := range sourceTables {
		parts = append(parts, fmt.Sprintf("SELECT source_id, title FROM %s WHERE source_id IN (%s)", table, inClause))
		unionArgs = append(unionArgs, args...)
	}
	query := strings.Join(parts, " UNION ALL ")

	rows, err := r.tx(dbc).WithContext(dbc.Ctx).Raw(query, unionArgs...).Rows()
	if err != nil {
		return nil, domainerr.MetadataStore("get_titles_by_ids failed", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var title string
		if err := rows.Scan(&id, &title); err != nil {
			return nil, domainerr.MetadataStore("get_titles_by_ids scan failed", err)
		}
		out[id] = title
	}
	return out, nil
}
