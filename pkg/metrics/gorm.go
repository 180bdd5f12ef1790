package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

const startKey = "metrics:start"

// InstrumentGorm 通过 gorm 回调记录每条语句的耗时，并采集连接池状态
func InstrumentGorm(db *gorm.DB, m *Metrics, dbName string) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(startKey, time.Now())
	}
	after := func(op string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(startKey)
			if !ok {
				return
			}
			start, ok := v.(time.Time)
			if !ok {
				return
			}
			failed := tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound)
			m.RecordDBQuery(op, tx.Statement.Table, time.Since(start), failed)
		}
	}

	cb := db.Callback()
	hooks := []struct {
		op     string
		before error
		after  error
	}{
		{"create",
			cb.Create().Before("gorm:create").Register("metrics:before_create", before),
			cb.Create().After("gorm:create").Register("metrics:after_create", after("create"))},
		{"query",
			cb.Query().Before("gorm:query").Register("metrics:before_query", before),
			cb.Query().After("gorm:query").Register("metrics:after_query", after("query"))},
		{"update",
			cb.Update().Before("gorm:update").Register("metrics:before_update", before),
			cb.Update().After("gorm:update").Register("metrics:after_update", after("update"))},
		{"delete",
			cb.Delete().Before("gorm:delete").Register("metrics:before_delete", before),
			cb.Delete().After("gorm:delete").Register("metrics:after_delete", after("delete"))},
		{"row",
			cb.Row().Before("gorm:row").Register("metrics:before_row", before),
			cb.Row().After("gorm:row").Register("metrics:after_row", after("row"))},
		{"raw",
			cb.Raw().Before("gorm:raw").Register("metrics:before_raw", before),
			cb.Raw().After("gorm:raw").Register("metrics:after_raw", after("raw"))},
	}
	for _, h := range hooks {
		if h.before != nil {
			return h.before
		}
		if h.after != nil {
			return h.after
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return m.registry.Register(collectors.NewDBStatsCollector(sqlDB, dbName))
}
