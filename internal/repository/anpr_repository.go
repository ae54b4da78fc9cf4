package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"vehicle-anpr/internal/domain/anpr"
)

var ErrNotFound = errors.New("record not found")

type ANPRRepository struct {
	db *gorm.DB
}

func NewANPRRepository(db *gorm.DB) *ANPRRepository {
	return &ANPRRepository{db: db}
}

// RTO is a row of the region code table.
type RTO struct {
	ID       int64  `gorm:"primaryKey"`
	Code     string `gorm:"not null"`
	State    string
	District string
}

func (RTO) TableName() string { return "rto" }

// Detection is a persisted analysis. Seq is the primary key so two writers
// that read the same maximum cannot both insert.
type Detection struct {
	Seq             int64  `gorm:"primaryKey;autoIncrement:false"`
	DetectionID     string `gorm:"not null;uniqueIndex"`
	CarName         string `gorm:"not null"`
	Color           string `gorm:"not null"`
	PlateNumber     string `gorm:"not null;index"`
	RTO             string `gorm:"column:rto;not null"`
	DetectedAt      string `gorm:"not null"`
	PlateConfidence *string
	RawOCR          *string `gorm:"column:raw_ocr"`
	Predictions     datatypes.JSON
	CreatedAt       time.Time
}

func (Detection) TableName() string { return "detections" }

type Admin struct {
	ID           string `gorm:"primaryKey"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

func (Admin) TableName() string { return "admins" }

// Models lists every table for migrations.
func Models() []interface{} {
	return []interface{}{&RTO{}, &Detection{}, &Admin{}}
}

// DetectionExtras holds debug data stored next to a record.
type DetectionExtras struct {
	PlateConfidence anpr.Confidence
	RawOCR          string
	Predictions     []byte
}

// Transaction runs fn against a repository bound to a single transaction.
func (r *ANPRRepository) Transaction(ctx context.Context, fn func(tx *ANPRRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ANPRRepository{db: tx})
	})
}

// rtoRow is the part of a region row the lookup needs. External region
// stores are only guaranteed to carry these three columns.
type rtoRow struct {
	Code     string
	State    string
	District string
}

// ListRTOEntries reads the whole region table. Rows come back in insertion
// order when the table has an id column, otherwise in store order.
func (r *ANPRRepository) ListRTOEntries(ctx context.Context) ([]anpr.RTOEntry, error) {
	db := r.db.WithContext(ctx)
	query := db.Table(RTO{}.TableName()).Select("code", "state", "district")
	if db.Migrator().HasColumn(&RTO{}, "id") {
		query = query.Order("id ASC")
	}

	var rows []rtoRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]anpr.RTOEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, anpr.RTOEntry{Code: row.Code, State: row.State, District: row.District})
	}
	return entries, nil
}

func (r *ANPRRepository) CountRTOEntries(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Table(RTO{}.TableName()).Count(&n).Error
	return n, err
}

func (r *ANPRRepository) CreateRTOEntries(ctx context.Context, entries []anpr.RTOEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]RTO, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, RTO{Code: e.Code, State: e.State, District: e.District})
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// LastDetectionSeq returns the highest stored sequence, or 0 for an empty table.
func (r *ANPRRepository) LastDetectionSeq(ctx context.Context) (int64, error) {
	var rows []Detection
	err := r.db.WithContext(ctx).
		Select("seq").
		Order("seq DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Seq, nil
}

func (r *ANPRRepository) CreateDetection(ctx context.Context, rec *anpr.DetectionRecord, extras DetectionExtras) error {
	row := Detection{
		Seq:         rec.Seq,
		DetectionID: rec.ID,
		CarName:     rec.VehicleClass,
		Color:       rec.ColorClass,
		PlateNumber: rec.PlateText,
		RTO:         rec.Region,
		DetectedAt:  rec.Timestamp,
		CreatedAt:   time.Now(),
	}

	if extras.PlateConfidence != "" {
		c := string(extras.PlateConfidence)
		row.PlateConfidence = &c
	}
	if extras.RawOCR != "" {
		row.RawOCR = &extras.RawOCR
	}
	if len(extras.Predictions) > 0 {
		row.Predictions = datatypes.JSON(extras.Predictions)
	}

	return r.db.WithContext(ctx).Create(&row).Error
}

// FindDetections lists records newest first, optionally filtered by plate text.
func (r *ANPRRepository) FindDetections(ctx context.Context, plate *string, limit, offset int) ([]anpr.DetectionRecord, error) {
	query := r.db.WithContext(ctx).Model(&Detection{})

	if plate != nil {
		query = query.Where("plate_number = ?", *plate)
	}

	query = query.Order("seq DESC")

	if limit > 0 {
		if limit > 100 {
			limit = 100
		}
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []Detection
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]anpr.DetectionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, anpr.DetectionRecord{
			ID:           row.DetectionID,
			Seq:          row.Seq,
			VehicleClass: row.CarName,
			ColorClass:   row.Color,
			PlateText:    row.PlateNumber,
			Region:       row.RTO,
			Timestamp:    row.DetectedAt,
		})
	}
	return records, nil
}

func (r *ANPRRepository) GetAdmin(ctx context.Context, id string) (*Admin, error) {
	var admin Admin
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

func (r *ANPRRepository) CreateAdmin(ctx context.Context, id, passwordHash string) error {
	return r.db.WithContext(ctx).Create(&Admin{
		ID:           id,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}).Error
}
