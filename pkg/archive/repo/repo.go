package repo

import (
	"gorm.io/gorm"
)

type IRepo interface {
	Trade() ITrade
	OrderUpdate() IOrderUpdate
}

type Repo struct {
	archiveDB *gorm.DB
}

func NewRepo(archiveDB *gorm.DB) IRepo {
	return &Repo{
		archiveDB: archiveDB,
	}
}

func (r *Repo) Trade() ITrade {
	return NewTradeSQLRepo(r.archiveDB)
}

func (r *Repo) OrderUpdate() IOrderUpdate {
	return NewOrderUpdateSQLRepo(r.archiveDB)
}
