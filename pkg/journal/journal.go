package journal

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Record struct {
	ID      uint `gorm:"primaryKey"`
	Created time.Time
	Session string `gorm:"size:64;index"`
	Entity  uint32 `gorm:"index"`
	Tick    uint32
}

// Correction is an owner's prediction replaced by the authority's state.
type Correction struct {
	Record
	Error float64
	Dead  bool
}

type Activation struct {
	Record
	Mask string `gorm:"size:16"`
}

type Death struct {
	Record
	// Participant credited with the fatal blow, zero if none.
	Killer uint32
	X      float64
	Y      float64
	Z      float64
}

// Journal appends gameplay events to sqlite for later inspection. A nil
// *Journal accepts every call and records nothing.
type Journal struct {
	db      *gorm.DB
	session string
}

func Open(path string, session string) (*Journal, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}

	err = db.AutoMigrate(&Correction{}, &Activation{}, &Death{})
	if err != nil {
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	return &Journal{db: db, session: session}, nil
}

func (j *Journal) record(entity uint32, tick uint32) Record {
	return Record{
		Created: time.Now(),
		Session: j.session,
		Entity:  entity,
		Tick:    tick,
	}
}

func (j *Journal) Correction(entity uint32, tick uint32, distance float64, dead bool) error {
	if j == nil {
		return nil
	}
	return j.db.Create(&Correction{
		Record: j.record(entity, tick),
		Error:  distance,
		Dead:   dead,
	}).Error
}

func (j *Journal) Activation(entity uint32, tick uint32, mask string) error {
	if j == nil {
		return nil
	}
	return j.db.Create(&Activation{
		Record: j.record(entity, tick),
		Mask:   mask,
	}).Error
}

func (j *Journal) Death(entity uint32, tick uint32, killer uint32, x, y, z float64) error {
	if j == nil {
		return nil
	}
	return j.db.Create(&Death{
		Record: j.record(entity, tick),
		Killer: killer,
		X:      x,
		Y:      y,
		Z:      z,
	}).Error
}

// Counts is the number of each kind of record in this session.
type Counts struct {
	Corrections int64
	Activations int64
	Deaths      int64
}

func (j *Journal) Counts() (Counts, error) {
	var counts Counts
	if j == nil {
		return counts, nil
	}

	for _, count := range []struct {
		model interface{}
		out   *int64
	}{
		{&Correction{}, &counts.Corrections},
		{&Activation{}, &counts.Activations},
		{&Death{}, &counts.Deaths},
	} {
		err := j.db.Model(count.model).Where("session = ?", j.session).Count(count.out).Error
		if err != nil {
			return counts, err
		}
	}

	return counts, nil
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	db, err := j.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
