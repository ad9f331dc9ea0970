package models

import (
	"log"

	"bitbucket.org/mmdatafocus/docflow_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Document{},
		&Approval{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
