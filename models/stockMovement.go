package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/restaurant_backend/config"
	"bitbucket.org/mmdatafocus/restaurant_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockMovement is one row of an ingredient's append-only ledger.
// There is no cached "current stock" anywhere; balances are always derived
// by replaying movements (see Ingredient.StockValueAt).
type StockMovement struct {
	ID           int             `gorm:"primary_key" json:"id"`
	IngredientId int             `gorm:"index;not null" json:"ingredient_id"`
	Quantity     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Unit         StockUnit       `gorm:"type:enum('KG','G','L','CL','PIECE');not null;default:KG" json:"unit"`
	Kind         MovementKind    `gorm:"type:enum('IN','OUT');not null" json:"kind"`
	// Ledger immutability & reversals (append-only): consumption written by
	// order admission carries the order id; replacing an order's lines
	// appends reversal rows instead of touching the originals.
	OrderId            *int      `gorm:"index" json:"order_id"`
	IsReversal         bool      `gorm:"not null;default:false;index" json:"is_reversal"`
	ReversesMovementId *int      `gorm:"index" json:"reverses_movement_id"`
	CreatedAt          time.Time `gorm:"index;not null" json:"created_at"`
}

// StockValue is a (quantity, unit) pair derived from a ledger replay.
type StockValue struct {
	Quantity decimal.Decimal `json:"quantity"`
	Unit     StockUnit       `json:"unit"`
}

type NewStockMovement struct {
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
	Unit      StockUnit       `json:"unit" binding:"required"`
	Kind      MovementKind    `json:"kind" binding:"required"`
	CreatedAt *time.Time      `json:"created_at"`
}

// BeforeUpdate enforces ledger immutability: movements are never edited.
func (m *StockMovement) BeforeUpdate(*gorm.DB) error {
	return errors.New("stock movements are append-only")
}

// BeforeDelete enforces ledger immutability: movements are never deleted.
func (m *StockMovement) BeforeDelete(*gorm.DB) error {
	return errors.New("stock movements are append-only")
}

func (input *NewStockMovement) validate() error {
	if err := input.Kind.Validate(); err != nil {
		return utils.InvalidArgumentf("%s", err.Error())
	}
	if err := input.Unit.Validate(); err != nil {
		return utils.InvalidArgumentf("%s", err.Error())
	}
	if !input.Quantity.IsPositive() {
		return utils.InvalidArgumentf("movement quantity must be positive")
	}
	return nil
}

// RecordStockMovement appends one movement to an ingredient's ledger.
// The ledger is unit-homogeneous: a movement whose unit differs from the
// ingredient's existing ledger unit is rejected rather than converted.
func RecordStockMovement(ctx context.Context, ingredientId int, input *NewStockMovement) (*StockMovement, error) {
	if input == nil {
		return nil, utils.InvalidArgumentf("movement must not be nil")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()

	ingredient, err := GetIngredient(ctx, ingredientId)
	if err != nil {
		return nil, err
	}
	if unit, ok := ingredient.ledgerUnit(); ok && unit != input.Unit {
		return nil, utils.InvalidArgumentf("ledger for ingredient %s uses unit %s, got %s",
			ingredient.Name, unit, input.Unit)
	}

	createdAt := time.Now()
	if input.CreatedAt != nil {
		createdAt = *input.CreatedAt
	}

	movement := StockMovement{
		IngredientId: ingredientId,
		Quantity:     input.Quantity,
		Unit:         input.Unit,
		Kind:         input.Kind,
		CreatedAt:    createdAt,
	}
	if err := db.WithContext(ctx).Create(&movement).Error; err != nil {
		return nil, err
	}
	return &movement, nil
}

// GetStockMovements returns an ingredient's full ledger, oldest first.
func GetStockMovements(ctx context.Context, ingredientId int) ([]*StockMovement, error) {
	if err := utils.ValidateResourceId[Ingredient](ctx, ingredientId); err != nil {
		return nil, &utils.NotFoundError{Resource: "ingredient", Key: fmt.Sprintf("id=%d", ingredientId)}
	}
	db := config.GetDB()
	var movements []*StockMovement
	err := db.WithContext(ctx).
		Where("ingredient_id = ?", ingredientId).
		Order("created_at, id").
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}

// reverseOrderStockTx appends reversal rows for every non-reversed movement
// the given order wrote earlier. Originals are never deleted.
func reverseOrderStockTx(tx *gorm.DB, orderId int, instant time.Time) error {
	var originals []*StockMovement
	err := tx.Where("order_id = ? AND is_reversal = ?", orderId, false).
		Find(&originals).Error
	if err != nil {
		return err
	}

	var reversed []int
	if err := tx.Model(&StockMovement{}).
		Where("order_id = ? AND is_reversal = ?", orderId, true).
		Pluck("reverses_movement_id", &reversed).Error; err != nil {
		return err
	}
	alreadyReversed := make(map[int]bool, len(reversed))
	for _, id := range reversed {
		alreadyReversed[id] = true
	}

	for _, o := range originals {
		if alreadyReversed[o.ID] {
			continue
		}
		kind := MovementKindIn
		if o.Kind == MovementKindIn {
			kind = MovementKindOut
		}
		originalId := o.ID
		rev := StockMovement{
			IngredientId:       o.IngredientId,
			Quantity:           o.Quantity,
			Unit:               o.Unit,
			Kind:               kind,
			OrderId:            &orderId,
			IsReversal:         true,
			ReversesMovementId: &originalId,
			CreatedAt:          instant,
		}
		if err := tx.Create(&rev).Error; err != nil {
			return err
		}
	}
	return nil
}
