package models

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/restaurant_backend/config"
	"bitbucket.org/mmdatafocus/restaurant_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DiningTable struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Number    int       `gorm:"not null;uniqueIndex" json:"number" binding:"required"`
	Seats     int       `gorm:"not null;default:4" json:"seats"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewDiningTable struct {
	Number int `json:"number" binding:"required,gt=0"`
	Seats  int `json:"seats" binding:"omitempty,gt=0"`
}

const diningTablesCacheKey = "dining_tables:all"

// SlotsOverlap reports whether two half-open [arrival, departure) slots
// intersect. Back-to-back bookings where one departure equals the next
// arrival do not overlap.
func SlotsOverlap(arrivalA, departureA, arrivalB, departureB time.Time) bool {
	return arrivalA.Before(departureB) && arrivalB.Before(departureA)
}

func CreateDiningTable(ctx context.Context, input *NewDiningTable) (*DiningTable, error) {
	if input == nil {
		return nil, utils.InvalidArgumentf("table must not be nil")
	}
	if input.Number <= 0 {
		return nil, utils.InvalidArgumentf("table number must be positive")
	}
	if err := utils.ValidateUnique[DiningTable](ctx, "number", input.Number, 0); err != nil {
		return nil, err
	}

	seats := input.Seats
	if seats <= 0 {
		seats = 4
	}
	table := DiningTable{Number: input.Number, Seats: seats}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&table).Error; err != nil {
		return nil, err
	}
	config.RemoveRedisKey(diningTablesCacheKey)
	return &table, nil
}

func GetDiningTable(ctx context.Context, id int) (*DiningTable, error) {
	table, err := utils.FetchSingleModel[DiningTable](ctx, id)
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "table", Key: fmt.Sprintf("id=%d", id)}
	}
	return table, nil
}

// GetDiningTables returns the full table list, served from Redis when the
// cache is warm. The table set changes rarely, so a short TTL is plenty.
func GetDiningTables(ctx context.Context) ([]*DiningTable, error) {
	var tables []*DiningTable
	if found, err := config.GetRedisObject(diningTablesCacheKey, &tables); err == nil && found {
		return tables, nil
	}

	tables, err := utils.FetchAllModels[DiningTable](ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Number < tables[j].Number })
	config.SetRedisObject(diningTablesCacheKey, tables, 5*time.Minute)
	return tables, nil
}

// FindAvailableTables returns the ids of tables with no admitted order
// whose slot overlaps the requested [arrival, departure) window.
func FindAvailableTables(ctx context.Context, arrival, departure time.Time) ([]int, error) {
	db := config.GetDB()
	return findAvailableTablesTx(db.WithContext(ctx), arrival, departure, 0)
}

// IsTableAvailable reports whether the table has no admitted order whose
// slot overlaps the requested [arrival, departure) window.
func IsTableAvailable(ctx context.Context, tableId int, arrival, departure time.Time) (bool, error) {
	if arrival.IsZero() || departure.IsZero() {
		return false, utils.InvalidArgumentf("arrival and departure must both be set")
	}
	if !arrival.Before(departure) {
		return false, utils.InvalidArgumentf("arrival must be before departure")
	}
	if _, err := GetDiningTable(ctx, tableId); err != nil {
		return false, err
	}

	db := config.GetDB()
	var booked []Order
	err := db.WithContext(ctx).
		Where("table_id = ? AND arrival_at IS NOT NULL AND departure_at IS NOT NULL", tableId).
		Find(&booked).Error
	if err != nil {
		return false, err
	}
	for _, b := range booked {
		if SlotsOverlap(*b.ArrivalAt, *b.DepartureAt, arrival, departure) {
			return false, nil
		}
	}
	return true, nil
}

// findAvailableTablesTx is the transactional form used inside order
// admission. excludeOrderId ignores an order's own booking so that a
// resubmission does not collide with itself.
func findAvailableTablesTx(tx *gorm.DB, arrival, departure time.Time, excludeOrderId int) ([]int, error) {
	if arrival.IsZero() || departure.IsZero() {
		return nil, utils.InvalidArgumentf("arrival and departure must both be set")
	}
	if !arrival.Before(departure) {
		return nil, utils.InvalidArgumentf("arrival must be before departure")
	}

	sub := tx.Model(&Order{}).
		Select("table_id").
		Where("table_id IS NOT NULL").
		Where("arrival_at < ? AND ? < departure_at", departure, arrival)
	if excludeOrderId > 0 {
		sub = sub.Where("id <> ?", excludeOrderId)
	}

	var ids []int
	err := tx.Model(&DiningTable{}).
		Where("id NOT IN (?)", sub).
		Order("number").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// lockTableByNumberTx locks one table row for the rest of the transaction
// so two concurrent admissions cannot both book it.
func lockTableByNumberTx(tx *gorm.DB, number int) (*DiningTable, error) {
	var table DiningTable
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("number = ?", number).
		First(&table).Error
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "table", Key: fmt.Sprintf("number=%d", number)}
	}
	return &table, nil
}
