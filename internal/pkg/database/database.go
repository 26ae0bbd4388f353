package database

import (
	"github.com/glebarez/sqlite"
	"github.com/studiodesk/ffetrack/internal/model"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func InitDB(dbType, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch dbType {
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		// 使用 github.com/glebarez/sqlite 驱动
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if dbType != "mysql" {
		// SQLite 只允许单写者，串行化连接避免 database is locked
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate 自动迁移全部表结构
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.FFETemplate{}, &model.TemplateSection{}, &model.TemplateItem{}); err != nil {
		return err
	}
	if err := db.AutoMigrate(&model.Room{}, &model.RoomInstance{}, &model.InstanceSection{}, &model.InstanceItem{}, &model.ItemComponent{}); err != nil {
		return err
	}
	return db.AutoMigrate(&model.ChangeLog{})
}
