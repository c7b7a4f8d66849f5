package models

import (
	"log"

	"bitbucket.org/mmdatafocus/bizmanage_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Vendor{}, &Client{}, &Project{},
		&Bill{}, &Invoice{}, &Payment{},
		&Milestone{}, &MilestoneLog{},
		&SyncRecord{}, &ConnectionRecord{},
		&TriggerAuditLog{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
