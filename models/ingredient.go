package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/restaurant_backend/config"
	"bitbucket.org/mmdatafocus/restaurant_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Ingredient struct {
	ID        int                `gorm:"primary_key" json:"id"`
	Name      string             `gorm:"size:100;not null;uniqueIndex" json:"name" binding:"required"`
	UnitCost  decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	Category  IngredientCategory `gorm:"type:enum('VEGETABLE','MEAT','FISH','DAIRY','GRAIN','SPICE','BEVERAGE','OTHER');not null" json:"category" binding:"required"`
	Movements []StockMovement    `gorm:"foreignKey:IngredientId" json:"movements,omitempty"`
	CreatedAt time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewIngredient struct {
	Name      string             `json:"name" binding:"required"`
	UnitCost  decimal.Decimal    `json:"unit_cost"`
	Category  IngredientCategory `json:"category" binding:"required"`
	Movements []NewStockMovement `json:"movements"`
}

// IngredientWithQuantity is an ingredient row annotated with the
// quantity-per-dish of the recipe line it was joined through.
type IngredientWithQuantity struct {
	Ingredient
	QuantityRequired decimal.Decimal `json:"quantity_required"`
	Unit             StockUnit       `json:"unit"`
	DishName         string          `json:"dish_name"`
}

func (input *NewIngredient) validate() error {
	if strings.TrimSpace(input.Name) == "" {
		return utils.InvalidArgumentf("ingredient name must not be blank")
	}
	if err := input.Category.Validate(); err != nil {
		return utils.InvalidArgumentf("%s", err.Error())
	}
	if input.UnitCost.IsNegative() {
		return utils.InvalidArgumentf("ingredient unit cost must not be negative")
	}
	return nil
}

// StockValueAt replays the ingredient's loaded movement ledger up to the
// cutoff instant: +quantity for IN, -quantity for OUT. Movements with a
// zero timestamp or a timestamp after the cutoff never contribute. The
// unit is taken from the first contributing movement; an empty ledger
// reports zero at the default unit. Pure, no side effects.
func (ing *Ingredient) StockValueAt(instant time.Time) (StockValue, error) {
	if instant.IsZero() {
		return StockValue{}, utils.InvalidArgumentf("cutoff instant must not be zero")
	}

	total := decimal.Zero
	unit := StockUnit("")

	for _, movement := range ing.Movements {
		if movement.CreatedAt.IsZero() || movement.CreatedAt.After(instant) {
			continue
		}
		if unit == "" {
			unit = movement.Unit
		}
		switch movement.Kind {
		case MovementKindIn:
			total = total.Add(movement.Quantity)
		case MovementKindOut:
			total = total.Sub(movement.Quantity)
		}
	}

	if unit == "" {
		unit = DefaultStockUnit
	}
	return StockValue{Quantity: total, Unit: unit}, nil
}

// ledgerUnit returns the unit the loaded ledger is kept in, false when the
// ledger is empty.
func (ing *Ingredient) ledgerUnit() (StockUnit, bool) {
	for _, movement := range ing.Movements {
		if movement.Unit != "" {
			return movement.Unit, true
		}
	}
	return "", false
}

// GetIngredient fetches an ingredient with its full movement ledger.
func GetIngredient(ctx context.Context, id int) (*Ingredient, error) {
	ingredient, err := utils.FetchSingleModel[Ingredient](ctx, id, "Movements")
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "ingredient", Key: fmt.Sprintf("id=%d", id)}
	}
	return ingredient, nil
}

func GetIngredients(ctx context.Context, page, size int) ([]*Ingredient, error) {
	limit, offset := utils.PageOffset(page, size)
	db := config.GetDB()
	var ingredients []*Ingredient
	err := db.WithContext(ctx).
		Order("id").
		Limit(limit).Offset(offset).
		Find(&ingredients).Error
	if err != nil {
		return nil, err
	}
	return ingredients, nil
}

// SearchIngredients filters by ingredient name, category and/or the name of
// a dish whose recipe uses the ingredient. All filters optional.
func SearchIngredients(ctx context.Context, name *string, category *IngredientCategory, dishName *string, page, size int) ([]*IngredientWithQuantity, error) {
	limit, offset := utils.PageOffset(page, size)
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Model(&Ingredient{}).
		Select("ingredients.*, dish_ingredients.quantity AS quantity_required, dish_ingredients.unit, dishes.name AS dish_name").
		Joins("JOIN dish_ingredients ON dish_ingredients.ingredient_id = ingredients.id").
		Joins("JOIN dishes ON dishes.id = dish_ingredients.dish_id")

	if name != nil && strings.TrimSpace(*name) != "" {
		dbCtx = dbCtx.Where("LOWER(ingredients.name) LIKE LOWER(?)", "%"+*name+"%")
	}
	if category != nil {
		dbCtx = dbCtx.Where("ingredients.category = ?", *category)
	}
	if dishName != nil && strings.TrimSpace(*dishName) != "" {
		dbCtx = dbCtx.Where("LOWER(dishes.name) LIKE LOWER(?)", "%"+*dishName+"%")
	}

	var results []*IngredientWithQuantity
	err := dbCtx.Order("ingredients.id, dishes.id").
		Limit(limit).Offset(offset).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SaveIngredient upserts one ingredient and appends any provided movements
// to its ledger.
func SaveIngredient(ctx context.Context, id int, input *NewIngredient) (*Ingredient, error) {
	if input == nil {
		return nil, utils.InvalidArgumentf("ingredient must not be nil")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Ingredient](ctx, "name", input.Name, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	var ingredient Ingredient
	if id > 0 {
		if err := tx.WithContext(ctx).First(&ingredient, id).Error; err != nil {
			tx.Rollback()
			return nil, &utils.NotFoundError{Resource: "ingredient", Key: fmt.Sprintf("id=%d", id)}
		}
		err := tx.WithContext(ctx).Model(&ingredient).Updates(map[string]interface{}{
			"Name":     input.Name,
			"UnitCost": input.UnitCost,
			"Category": input.Category,
		}).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	} else {
		ingredient = Ingredient{
			Name:     input.Name,
			UnitCost: input.UnitCost,
			Category: input.Category,
		}
		if err := tx.WithContext(ctx).Create(&ingredient).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	for i := range input.Movements {
		movement := &input.Movements[i]
		if err := movement.validate(); err != nil {
			tx.Rollback()
			return nil, err
		}
		createdAt := time.Now()
		if movement.CreatedAt != nil {
			createdAt = *movement.CreatedAt
		}
		row := StockMovement{
			IngredientId: ingredient.ID,
			Quantity:     movement.Quantity,
			Unit:         movement.Unit,
			Kind:         movement.Kind,
			CreatedAt:    createdAt,
		}
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, &utils.TransactionFailure{Op: "save ingredient", Err: err}
	}
	return GetIngredient(ctx, ingredient.ID)
}

// CreateIngredients inserts a batch of new ingredients in one transaction.
// The whole batch is rejected when any name is duplicated, either within
// the list or against the catalog.
func CreateIngredients(ctx context.Context, inputs []*NewIngredient) ([]*Ingredient, error) {
	if len(inputs) == 0 {
		return []*Ingredient{}, nil
	}

	seen := make(map[string]bool, len(inputs))
	for _, input := range inputs {
		if input == nil {
			return nil, utils.InvalidArgumentf("ingredient must not be nil")
		}
		if err := input.validate(); err != nil {
			return nil, err
		}
		key := strings.ToLower(input.Name)
		if seen[key] {
			return nil, utils.InvalidArgumentf("duplicate ingredient in provided list: %s", input.Name)
		}
		seen[key] = true
	}

	db := config.GetDB()
	tx := db.Begin()

	created := make([]*Ingredient, 0, len(inputs))
	for _, input := range inputs {
		var count int64
		if err := tx.WithContext(ctx).Model(&Ingredient{}).
			Where("name = ?", input.Name).Count(&count).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		if count > 0 {
			tx.Rollback()
			return nil, utils.InvalidArgumentf("ingredient already exists: %s", input.Name)
		}
		ingredient := Ingredient{
			Name:     input.Name,
			UnitCost: input.UnitCost,
			Category: input.Category,
		}
		if err := tx.WithContext(ctx).Create(&ingredient).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		created = append(created, &ingredient)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, &utils.TransactionFailure{Op: "create ingredients", Err: err}
	}
	return created, nil
}

// findOrCreateIngredientTx resolves a recipe line's ingredient by name,
// creating it when the catalog does not know it yet.
func findOrCreateIngredientTx(tx *gorm.DB, input *NewIngredient) (int, error) {
	var existing Ingredient
	err := tx.Where("name = ?", input.Name).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if err != gorm.ErrRecordNotFound {
		return 0, err
	}

	if err := input.validate(); err != nil {
		return 0, err
	}
	ingredient := Ingredient{
		Name:     input.Name,
		UnitCost: input.UnitCost,
		Category: input.Category,
	}
	if err := tx.Create(&ingredient).Error; err != nil {
		return 0, err
	}
	return ingredient.ID, nil
}
