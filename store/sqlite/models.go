package sqlite

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/credits/store"
)

type recordModel struct {
	grove.BaseModel `grove:"table:credits_kv"`

	Key       string    `grove:"key,pk"`
	Value     string    `grove:"value"`
	Version   int64     `grove:"version"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func fromRecordModel(m *recordModel) *store.Record {
	return &store.Record{
		Key:       m.Key,
		Value:     []byte(m.Value),
		Version:   m.Version,
		UpdatedAt: m.UpdatedAt,
	}
}
