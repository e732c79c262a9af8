package metadatastore

import (
	"gorm.io/gorm"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/domainerr"
	"github.com/graphbrain/kgqa/internal/pkg/dbctx"
)

type BrainRepo interface {
	Create(dbc dbctx.Context, b domain.Brain) error
	Get(dbc dbctx.Context, brainID string) (domain.Brain, error)
	Delete(dbc dbctx.Context, brainID string) error
}

type brainRepo struct {
	db *gorm.DB
}

func NewBrainRepo(db *gorm.DB) BrainRepo { return &brainRepo{db: db} }

func (r *brainRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *brainRepo) Create(dbc dbctx.Context, b domain.Brain) error {
	row := BrainRow{BrainID: b.BrainID, Name: b.Name, Important: b.Important, DeployMode: b.DeployMode, CreatedAt: b.CreatedAt}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(&row).Error; err != nil {
		return domainerr.MetadataStore("create_brain failed", err)
	}
	return nil
}

func (r *brainRepo) Get(dbc dbctx.Context, brainID string) (domain.Brain, error) {
	var row BrainRow
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("brain_id = ?", brainID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return domain.Brain{}, domainerr.ResourceNotFound("brain not found: " + brainID)
	}
	if err != nil {
		return domain.Brain{}, domainerr.MetadataStore("get_brain failed", err)
	}
	return domain.Brain{BrainID: row.BrainID, Name: row.Name, Important: row.Important, DeployMode: row.DeployMode, CreatedAt: row.CreatedAt}, nil
}

func (r *brainRepo) Delete(dbc dbctx.Context, brainID string) error {
	if err := r.tx(dbc).WithContext(dbc.Ctx).Where("brain_id = ?", brainID).Delete(&BrainRow{}).Error; err != nil {
		return domainerr.MetadataStore("delete_brain failed", err)
	}
	return nil
}
