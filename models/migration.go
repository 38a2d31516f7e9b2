package models

import (
	"bitbucket.org/mmdatafocus/restaurant_backend/config"
)

// MigrateTable creates/updates the schema for every model and seeds the
// reference sequence row so admissions never race on its first insert.
func MigrateTable() error {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Ingredient{},
		&StockMovement{},
		&Dish{},
		&DishIngredient{},
		&DiningTable{},
		&Order{},
		&DishOrder{},
		&OrderReferenceSequence{},
	)
	if err != nil {
		return err
	}
	var seq OrderReferenceSequence
	return db.Where(OrderReferenceSequence{ID: orderReferenceSequenceId}).
		FirstOrCreate(&seq).Error
}
