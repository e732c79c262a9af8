package metadatastore

import (
	"gorm.io/gorm"

	"github.com/graphbrain/kgqa/internal/pkg/dbctx"
)

// nextID increments counter `name` and returns the new value, inside
// whatever transaction dbc carries (or a fresh one it opens and commits
// itself if dbc carries none). The source and chat repos mint their ids by
// calling nextIDInTx directly inside their own insert transaction.
func nextID(dbc dbctx.Context, db *gorm.DB, name string) (int64, error) {
	txx := dbc.Tx
	if txx != nil {
		return nextIDInTx(dbc, txx, name)
	}

	var id int64
	err := db.Transaction(func(tx *gorm.DB) error {
		v, err := nextIDInTx(dbc, tx, name)
		if err != nil {
			return err
		}
		id = v
		return nil
	})
	return id, err
}

func nextIDInTx(dbc dbctx.Context, tx *gorm.DB, name string) (int64, error) {
	var row CounterRow
	err := tx.WithContext(dbc.Ctx).Where("name = ?", name).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		row = CounterRow{Name: name, Value: 0}
		if err := tx.WithContext(dbc.Ctx).Create(&row).Error; err != nil {
			return 0, err
		}
	} else if err != nil {
		return 0, err
	}
	row.Value++
	if err := tx.WithContext(dbc.Ctx).Save(&row).Error; err != nil {
		return 0, err
	}
	return row.Value, nil
}
