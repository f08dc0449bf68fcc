package store

import (
	"context"
	"errors"
	"time"

	"dnd-mplus-bot/models"

	"gorm.io/gorm"
)

// GormStore keeps sheets and rows in Postgres. Renames and removals run in a
// transaction so a sheet never loses rows halfway.
type GormStore struct {
	DB *gorm.DB
}

// NewGormStore migrates the schema and returns the store. Removed rows go to
// their own table rather than a named sheet.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(
		&models.SheetRecord{},
		&models.SignupRecord{},
		&models.RemovedSignupRecord{},
	); err != nil {
		return nil, err
	}
	return &GormStore{DB: db}, nil
}

func (s *GormStore) AppendRow(ctx context.Context, sheet string, r models.Registration) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireSheet(tx, sheet); err != nil {
			return err
		}
		var last int64
		if err := tx.Model(&models.SignupRecord{}).
			Where("sheet_name = ?", sheet).
			Select("COALESCE(MAX(position), 0)").
			Scan(&last).Error; err != nil {
			return err
		}
		row := models.SignupRecord{
			SheetName:    sheet,
			UserID:       r.UserID,
			Position:     last + 1,
			SignupFields: models.NewSignupFields(r),
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return storeErr("append", sheet, r.UserID, err)
	}
	return nil
}

func (s *GormStore) FindRow(ctx context.Context, sheet, userID string) (*models.Registration, error) {
	db := s.DB.WithContext(ctx)
	if err := requireSheet(db, sheet); err != nil {
		return nil, storeErr("find", sheet, userID, err)
	}
	var row models.SignupRecord
	err := db.Where("sheet_name = ? AND user_id = ?", sheet, userID).
		Order("position").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find", sheet, userID, err)
	}
	reg := row.Registration()
	return &reg, nil
}

func (s *GormStore) RemoveRow(ctx context.Context, sheet, userID string, removedAt time.Time) (*models.Registration, error) {
	var removed *models.Registration
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireSheet(tx, sheet); err != nil {
			return err
		}
		var row models.SignupRecord
		err := tx.Where("sheet_name = ? AND user_id = ?", sheet, userID).
			Order("position").
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		archived := models.RemovedSignupRecord{
			SheetName:    sheet,
			UserID:       row.UserID,
			RemovedAt:    removedAt,
			SignupFields: row.SignupFields,
		}
		if err := tx.Create(&archived).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.SignupRecord{}, "id = ?", row.ID).Error; err != nil {
			return err
		}
		reg := row.Registration()
		removed = &reg
		return nil
	})
	if err != nil {
		return nil, storeErr("remove", sheet, userID, err)
	}
	return removed, nil
}

func (s *GormStore) ListRows(ctx context.Context, sheet string) ([]models.Registration, error) {
	db := s.DB.WithContext(ctx)
	if err := requireSheet(db, sheet); err != nil {
		return nil, storeErr("list", sheet, "", err)
	}
	var rows []models.SignupRecord
	if err := db.Where("sheet_name = ?", sheet).Order("position").Find(&rows).Error; err != nil {
		return nil, storeErr("list", sheet, "", err)
	}
	out := make([]models.Registration, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Registration())
	}
	return out, nil
}

func (s *GormStore) UpdateStats(ctx context.Context, sheet, userID string, stats models.ProfileStats) error {
	res := s.DB.WithContext(ctx).Model(&models.SignupRecord{}).
		Where("sheet_name = ? AND user_id = ?", sheet, userID).
		Updates(map[string]interface{}{
			"item_level":  stats.ItemLevel,
			"rating":      stats.Rating,
			"highest_key": stats.HighestKey,
			"stats_known": true,
		})
	if res.Error != nil {
		return storeErr("update stats", sheet, userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return storeErr("update stats", sheet, userID, ErrRowNotFound)
	}
	return nil
}

func (s *GormStore) RenameSheet(ctx context.Context, oldName, newName string) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireSheet(tx, oldName); err != nil {
			return err
		}
		exists, err := sheetExists(tx, newName)
		if err != nil {
			return err
		}
		if exists {
			return ErrSheetExists
		}
		if err := tx.Model(&models.SheetRecord{}).Where("name = ?", oldName).Update("name", newName).Error; err != nil {
			return err
		}
		return tx.Model(&models.SignupRecord{}).Where("sheet_name = ?", oldName).Update("sheet_name", newName).Error
	})
	if err != nil {
		return storeErr("rename", oldName, "", err)
	}
	return nil
}

func (s *GormStore) CreateSheet(ctx context.Context, name string, header []string) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := sheetExists(tx, name)
		if err != nil {
			return err
		}
		if exists {
			return ErrSheetExists
		}
		return tx.Create(&models.SheetRecord{Name: name, Header: append([]string(nil), header...)}).Error
	})
	if err != nil {
		return storeErr("create", name, "", err)
	}
	return nil
}

func (s *GormStore) SheetExists(ctx context.Context, name string) (bool, error) {
	ok, err := sheetExists(s.DB.WithContext(ctx), name)
	if err != nil {
		return false, storeErr("exists", name, "", err)
	}
	return ok, nil
}

func (s *GormStore) Header(ctx context.Context, sheet string) ([]string, error) {
	var rec models.SheetRecord
	err := s.DB.WithContext(ctx).Where("name = ?", sheet).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storeErr("header", sheet, "", ErrSheetNotFound)
	}
	if err != nil {
		return nil, storeErr("header", sheet, "", err)
	}
	return rec.Header, nil
}

func sheetExists(db *gorm.DB, name string) (bool, error) {
	var count int64
	if err := db.Model(&models.SheetRecord{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func requireSheet(db *gorm.DB, name string) error {
	ok, err := sheetExists(db, name)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSheetNotFound
	}
	return nil
}
