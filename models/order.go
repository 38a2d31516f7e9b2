package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/restaurant_backend/config"
	"bitbucket.org/mmdatafocus/restaurant_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Order struct {
	ID          int          `gorm:"primary_key" json:"id"`
	Reference   string       `gorm:"size:20;not null;uniqueIndex" json:"reference"`
	TableId     *int         `gorm:"index" json:"table_id"`
	Table       *DiningTable `gorm:"foreignKey:TableId" json:"table,omitempty"`
	ArrivalAt   *time.Time   `json:"arrival_at"`
	DepartureAt *time.Time   `json:"departure_at"`
	Lines       []DishOrder  `gorm:"foreignKey:OrderId" json:"lines,omitempty"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// DishOrder is one order line.
type DishOrder struct {
	ID       int   `gorm:"primary_key" json:"id"`
	OrderId  int   `gorm:"index;not null" json:"order_id"`
	DishId   int   `gorm:"index;not null" json:"dish_id"`
	Dish     *Dish `gorm:"foreignKey:DishId" json:"dish,omitempty"`
	Quantity int   `gorm:"not null" json:"quantity"`
}

type NewOrder struct {
	// Reference is trusted as an update key only when it already matches the
	// generated format; any other value is replaced by a fresh reference.
	Reference   string         `json:"reference"`
	TableNumber *int           `json:"table_number"`
	ArrivalAt   *time.Time     `json:"arrival_at"`
	DepartureAt *time.Time     `json:"departure_at"`
	CreatedAt   *time.Time     `json:"created_at"`
	Lines       []NewDishOrder `json:"lines" binding:"required,dive"`
}

type NewDishOrder struct {
	DishId   int `json:"dish_id" binding:"required,gt=0"`
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

func (input *NewOrder) validate() error {
	if input == nil {
		return utils.InvalidArgumentf("order must not be nil")
	}
	if len(input.Lines) == 0 {
		return utils.InvalidArgumentf("order must have at least one line")
	}
	for _, line := range input.Lines {
		if line.DishId <= 0 {
			return utils.InvalidArgumentf("order line dish id must be positive")
		}
		if line.Quantity <= 0 {
			return utils.InvalidArgumentf("order line quantity must be positive")
		}
	}
	if input.TableNumber != nil {
		if input.ArrivalAt == nil || input.DepartureAt == nil {
			return utils.InvalidArgumentf("a table booking needs both arrival and departure")
		}
		if !input.ArrivalAt.Before(*input.DepartureAt) {
			return utils.InvalidArgumentf("arrival must be before departure")
		}
	} else if input.ArrivalAt != nil || input.DepartureAt != nil {
		return utils.InvalidArgumentf("arrival and departure are only meaningful with a table number")
	}
	return nil
}

// aggregateDishQuantities merges duplicate dish lines into one quantity per
// dish, ordered by dish id so downstream locking is deterministic.
func aggregateDishQuantities(lines []NewDishOrder) []NewDishOrder {
	byDish := make(map[int]int, len(lines))
	for _, line := range lines {
		byDish[line.DishId] += line.Quantity
	}
	merged := make([]NewDishOrder, 0, len(byDish))
	for dishId, qty := range byDish {
		merged = append(merged, NewDishOrder{DishId: dishId, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].DishId < merged[j].DishId })
	return merged
}

// requiredQuantity is the total amount of one ingredient an order consumes.
type requiredQuantity struct {
	IngredientId int
	Quantity     decimal.Decimal
	Unit         StockUnit
}

// computeRequiredQuantitiesTx multiplies each dish's recipe by the ordered
// quantity and sums per ingredient. Recipe lines for the same ingredient in
// different units are rejected rather than converted.
func computeRequiredQuantitiesTx(tx *gorm.DB, merged []NewDishOrder) ([]requiredQuantity, error) {
	totals := make(map[int]*requiredQuantity)

	for _, line := range merged {
		var dish Dish
		err := tx.Preload("Recipe").First(&dish, line.DishId).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &utils.NotFoundError{Resource: "dish", Key: fmt.Sprintf("id=%d", line.DishId)}
		} else if err != nil {
			return nil, err
		}
		orderedQty := decimal.NewFromInt(int64(line.Quantity))
		for _, recipeLine := range dish.Recipe {
			needed := recipeLine.Quantity.Mul(orderedQty)
			existing, ok := totals[recipeLine.IngredientId]
			if !ok {
				totals[recipeLine.IngredientId] = &requiredQuantity{
					IngredientId: recipeLine.IngredientId,
					Quantity:     needed,
					Unit:         recipeLine.Unit,
				}
				continue
			}
			if existing.Unit != recipeLine.Unit {
				return nil, utils.InvalidArgumentf(
					"recipes mix units %s and %s for ingredient id=%d",
					existing.Unit, recipeLine.Unit, recipeLine.IngredientId)
			}
			existing.Quantity = existing.Quantity.Add(needed)
		}
	}

	required := make([]requiredQuantity, 0, len(totals))
	for _, rq := range totals {
		required = append(required, *rq)
	}
	sort.Slice(required, func(i, j int) bool { return required[i].IngredientId < required[j].IngredientId })
	return required, nil
}

// checkStockTx locks the ingredient rows (sorted, so concurrent admissions
// lock in the same order), replays each ledger at the effective instant and
// at the current instant, and rejects on the first deficit in either.
func checkStockTx(tx *gorm.DB, required []requiredQuantity, instant time.Time) error {
	for _, rq := range required {
		var ingredient Ingredient
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&ingredient, rq.IngredientId).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &utils.NotFoundError{Resource: "ingredient", Key: fmt.Sprintf("id=%d", rq.IngredientId)}
		} else if err != nil {
			return err
		}

		// Locking read: the replay must see the newest committed rows even
		// when the transaction's snapshot predates a concurrent admission.
		err = tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Where("ingredient_id = ?", rq.IngredientId).
			Order("created_at, id").
			Find(&ingredient.Movements).Error
		if err != nil {
			return err
		}

		if unit, ok := ingredient.ledgerUnit(); ok && unit != rq.Unit {
			return utils.InvalidArgumentf(
				"recipe unit %s does not match stock unit %s for ingredient %s",
				rq.Unit, unit, ingredient.Name)
		}

		balance, err := ingredient.StockValueAt(instant)
		if err != nil {
			return err
		}
		// A backdated effective instant excludes consumption rows written
		// after it, so the instant replay alone would let an older order
		// draw stock that is already spent. The row lock is held here, so
		// the balance right now is authoritative: both must cover the draw.
		current, err := ingredient.StockValueAt(time.Now())
		if err != nil {
			return err
		}
		available := balance.Quantity
		if current.Quantity.LessThan(available) {
			available = current.Quantity
		}
		if available.LessThan(rq.Quantity) {
			return &utils.InsufficientStockError{
				IngredientName: ingredient.Name,
				Required:       rq.Quantity,
				Available:      available,
			}
		}
	}
	return nil
}

// SaveOrder admits an order: validation, stock sufficiency, table slot
// availability, reference resolution, header/line writes and stock
// consumption all happen inside one database transaction. On any rejection
// or failure the transaction rolls back, leaving no partial state.
func SaveOrder(ctx context.Context, input *NewOrder) (*Order, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	merged := aggregateDishQuantities(input.Lines)

	// Best effort only; the row locks below are the real guarantee.
	if input.TableNumber != nil {
		release, err := utils.AdmissionLock(ctx, fmt.Sprintf("table:%d", *input.TableNumber), "models", "SaveOrder")
		if err == nil {
			defer release()
		}
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, &utils.TransactionFailure{Op: "begin admission", Err: tx.Error}
	}

	order, err := admitOrderTx(tx, input, merged)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, &utils.TransactionFailure{Op: "commit admission", Err: err}
	}

	config.LogInfo(config.GetLogger(), "models", "SaveOrder", order.Reference, "order admitted")
	// Ops counter only; nothing reads it for correctness.
	config.GetRedisCounter(ctx, "orders:admitted")
	return GetOrder(ctx, order.ID)
}

func admitOrderTx(tx *gorm.DB, input *NewOrder, merged []NewDishOrder) (*Order, error) {
	now := time.Now()
	instant := now
	if input.CreatedAt != nil {
		instant = *input.CreatedAt
	}

	// Resubmission: a well-formed reference that already exists updates the
	// order in place. Its earlier consumption is reversed first so the
	// stock check sees the restored balances.
	var existing *Order
	if IsOrderReference(input.Reference) {
		var found Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("reference = ?", input.Reference).
			First(&found).Error
		if err == nil {
			existing = &found
			if err := reverseOrderStockTx(tx, existing.ID, now); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	required, err := computeRequiredQuantitiesTx(tx, merged)
	if err != nil {
		return nil, err
	}
	if err := checkStockTx(tx, required, instant); err != nil {
		return nil, err
	}

	var tableId *int
	if input.TableNumber != nil {
		table, err := lockTableByNumberTx(tx, *input.TableNumber)
		if err != nil {
			return nil, err
		}

		excludeOrderId := 0
		if existing != nil {
			excludeOrderId = existing.ID
		}

		// Locking read, same reason as the movement read in checkStockTx:
		// the snapshot may predate a booking that committed while we waited
		// on the table row lock.
		var booked []Order
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Where("table_id = ? AND arrival_at IS NOT NULL AND departure_at IS NOT NULL", table.ID).
			Find(&booked).Error; err != nil {
			return nil, err
		}
		for _, b := range booked {
			if b.ID == excludeOrderId {
				continue
			}
			if SlotsOverlap(*b.ArrivalAt, *b.DepartureAt, *input.ArrivalAt, *input.DepartureAt) {
				available, err := findAvailableTablesTx(tx, *input.ArrivalAt, *input.DepartureAt, excludeOrderId)
				if err != nil {
					return nil, err
				}
				return nil, &utils.TableUnavailableError{
					TableNumber:       *input.TableNumber,
					AvailableTableIds: available,
				}
			}
		}
		tableId = &table.ID
	}

	var order Order
	if existing != nil {
		order = *existing
		err := tx.Model(&order).Updates(map[string]interface{}{
			"TableId":     tableId,
			"ArrivalAt":   input.ArrivalAt,
			"DepartureAt": input.DepartureAt,
		}).Error
		if err != nil {
			return nil, err
		}
		if err := tx.Where("order_id = ?", order.ID).Delete(&DishOrder{}).Error; err != nil {
			return nil, err
		}
	} else {
		reference, err := nextOrderReferenceTx(tx)
		if err != nil {
			return nil, err
		}
		order = Order{
			Reference:   reference,
			TableId:     tableId,
			ArrivalAt:   input.ArrivalAt,
			DepartureAt: input.DepartureAt,
			CreatedAt:   instant,
		}
		if err := tx.Create(&order).Error; err != nil {
			return nil, err
		}
	}

	lines := make([]DishOrder, 0, len(merged))
	for _, line := range merged {
		lines = append(lines, DishOrder{
			OrderId:  order.ID,
			DishId:   line.DishId,
			Quantity: line.Quantity,
		})
	}
	if err := tx.Create(&lines).Error; err != nil {
		return nil, err
	}

	// Consumption is part of admission: without these rows a second order
	// could pass the same stock check.
	orderId := order.ID
	for _, rq := range required {
		movement := StockMovement{
			IngredientId: rq.IngredientId,
			Quantity:     rq.Quantity,
			Unit:         rq.Unit,
			Kind:         MovementKindOut,
			OrderId:      &orderId,
			CreatedAt:    now,
		}
		if err := tx.Create(&movement).Error; err != nil {
			return nil, err
		}
	}

	return &order, nil
}

func GetOrder(ctx context.Context, id int) (*Order, error) {
	db := config.GetDB()
	var order Order
	err := db.WithContext(ctx).
		Preload("Lines").Preload("Lines.Dish").Preload("Table").
		First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &utils.NotFoundError{Resource: "order", Key: fmt.Sprintf("id=%d", id)}
	} else if err != nil {
		return nil, err
	}
	return &order, nil
}

func FindOrderByReference(ctx context.Context, reference string) (*Order, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, utils.InvalidArgumentf("reference must not be blank")
	}
	db := config.GetDB()
	var order Order
	err := db.WithContext(ctx).
		Preload("Lines").Preload("Lines.Dish").Preload("Table").
		Where("reference = ?", reference).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &utils.NotFoundError{Resource: "order", Key: "reference=" + reference}
	} else if err != nil {
		return nil, err
	}
	return &order, nil
}

func GetOrders(ctx context.Context, page, size int) ([]*Order, error) {
	limit, offset := utils.PageOffset(page, size)
	db := config.GetDB()
	var orders []*Order
	err := db.WithContext(ctx).
		Preload("Lines").Preload("Lines.Dish").Preload("Table").
		Order("id").
		Limit(limit).Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

var surchargeRate = decimal.NewFromInt(12).Div(decimal.NewFromInt(10))

// TotalExclTax sums price times quantity over the loaded lines. A line
// whose dish has no price makes the total undefined.
func (o *Order) TotalExclTax() (decimal.Decimal, error) {
	total := decimal.Zero
	for _, line := range o.Lines {
		if line.Dish == nil {
			return decimal.Zero, utils.InvalidArgumentf("order line %d has no dish loaded", line.ID)
		}
		if line.Dish.Price == nil {
			return decimal.Zero, &utils.MissingPriceError{DishName: line.Dish.Name}
		}
		total = total.Add(line.Dish.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total, nil
}

// TotalInclTax applies the 20% service surcharge.
func (o *Order) TotalInclTax() (decimal.Decimal, error) {
	excl, err := o.TotalExclTax()
	if err != nil {
		return decimal.Zero, err
	}
	return excl.Mul(surchargeRate), nil
}
