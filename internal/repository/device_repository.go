package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lifemap/internal/model"
)

// DeviceRepository is the local key/value storage of this device.
type DeviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Get returns the value of key and whether it exists.
func (r *DeviceRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var entry model.DeviceEntry
	err := r.db.WithContext(ctx).Where("name = ?", key).First(&entry).Error
	switch {
	case err == nil:
		return entry.Value, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("read device key %s: %w", key, err)
	}
}

func (r *DeviceRepository) Set(ctx context.Context, key, value string) error {
	entry := model.DeviceEntry{Name: key, Value: value}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("write device key %s: %w", key, err)
	}
	return nil
}
