package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/restaurant_backend/config"
	"bitbucket.org/mmdatafocus/restaurant_backend/utils"
	"github.com/shopspring/decimal"
)

type Dish struct {
	ID        int              `gorm:"primary_key" json:"id"`
	Name      string           `gorm:"size:100;not null;uniqueIndex" json:"name" binding:"required"`
	Type      DishType         `gorm:"type:enum('STARTER','MAIN','DESSERT','DRINK');not null" json:"type" binding:"required"`
	Price     *decimal.Decimal `gorm:"type:decimal(20,4)" json:"price"`
	Recipe    []DishIngredient `gorm:"foreignKey:DishId" json:"recipe,omitempty"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// DishIngredient is one recipe line: how much of an ingredient one serving
// of the dish consumes.
type DishIngredient struct {
	ID           int             `gorm:"primary_key" json:"id"`
	DishId       int             `gorm:"index;not null" json:"dish_id"`
	IngredientId int             `gorm:"index;not null" json:"ingredient_id"`
	Ingredient   *Ingredient     `gorm:"foreignKey:IngredientId" json:"ingredient,omitempty"`
	Quantity     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Unit         StockUnit       `gorm:"type:enum('KG','G','L','CL','PIECE');not null;default:KG" json:"unit"`
}

type NewDish struct {
	Name   string              `json:"name" binding:"required"`
	Type   DishType            `json:"type" binding:"required"`
	Price  *decimal.Decimal    `json:"price"`
	Recipe []NewDishIngredient `json:"recipe"`
}

type NewDishIngredient struct {
	Ingredient NewIngredient   `json:"ingredient" binding:"required"`
	Quantity   decimal.Decimal `json:"quantity" binding:"required"`
	Unit       StockUnit       `json:"unit" binding:"required"`
}

func (input *NewDish) validate() error {
	if strings.TrimSpace(input.Name) == "" {
		return utils.InvalidArgumentf("dish name must not be blank")
	}
	if err := input.Type.Validate(); err != nil {
		return utils.InvalidArgumentf("%s", err.Error())
	}
	if input.Price != nil && input.Price.IsNegative() {
		return utils.InvalidArgumentf("dish price must not be negative")
	}
	for i := range input.Recipe {
		line := &input.Recipe[i]
		if !line.Quantity.IsPositive() {
			return utils.InvalidArgumentf("recipe quantity for %s must be positive", line.Ingredient.Name)
		}
		if err := line.Unit.Validate(); err != nil {
			return utils.InvalidArgumentf("%s", err.Error())
		}
	}
	return nil
}

// Cost sums quantity * ingredient unit cost over the loaded recipe. Always
// computable: a dish with no recipe costs zero.
func (d *Dish) Cost() decimal.Decimal {
	total := decimal.Zero
	for _, line := range d.Recipe {
		if line.Ingredient == nil {
			continue
		}
		total = total.Add(line.Quantity.Mul(line.Ingredient.UnitCost))
	}
	return total
}

// GrossMargin is selling price minus ingredient cost. A dish without a
// price has no margin.
func (d *Dish) GrossMargin() (decimal.Decimal, error) {
	if d.Price == nil {
		return decimal.Zero, &utils.MissingPriceError{DishName: d.Name}
	}
	return d.Price.Sub(d.Cost()), nil
}

// GetDish fetches a dish with its recipe lines and their ingredients.
func GetDish(ctx context.Context, id int) (*Dish, error) {
	db := config.GetDB()
	var dish Dish
	err := db.WithContext(ctx).
		Preload("Recipe").Preload("Recipe.Ingredient").
		First(&dish, id).Error
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "dish", Key: fmt.Sprintf("id=%d", id)}
	}
	return &dish, nil
}

// GetDishRecipe returns the dish's recipe lines with their ingredients.
func GetDishRecipe(ctx context.Context, dishId int) ([]DishIngredient, error) {
	dish, err := GetDish(ctx, dishId)
	if err != nil {
		return nil, err
	}
	return dish.Recipe, nil
}

func GetDishes(ctx context.Context, page, size int) ([]*Dish, error) {
	limit, offset := utils.PageOffset(page, size)
	db := config.GetDB()
	var dishes []*Dish
	err := db.WithContext(ctx).
		Preload("Recipe").Preload("Recipe.Ingredient").
		Order("id").
		Limit(limit).Offset(offset).
		Find(&dishes).Error
	if err != nil {
		return nil, err
	}
	return dishes, nil
}

// FindDishesByIngredientName returns dishes whose recipe uses an ingredient
// matching the given name fragment.
func FindDishesByIngredientName(ctx context.Context, ingredientName string, page, size int) ([]*Dish, error) {
	limit, offset := utils.PageOffset(page, size)
	db := config.GetDB()
	var dishes []*Dish
	err := db.WithContext(ctx).
		Preload("Recipe").Preload("Recipe.Ingredient").
		Joins("JOIN dish_ingredients ON dish_ingredients.dish_id = dishes.id").
		Joins("JOIN ingredients ON ingredients.id = dish_ingredients.ingredient_id").
		Where("LOWER(ingredients.name) LIKE LOWER(?)", "%"+ingredientName+"%").
		Group("dishes.id").
		Order("dishes.id").
		Limit(limit).Offset(offset).
		Find(&dishes).Error
	if err != nil {
		return nil, err
	}
	return dishes, nil
}

// SaveDish upserts a dish. Recipe lines are replaced wholesale: existing
// lines are deleted and the provided set inserted, resolving each line's
// ingredient by name and creating catalog entries for unknown ones.
func SaveDish(ctx context.Context, id int, input *NewDish) (*Dish, error) {
	if input == nil {
		return nil, utils.InvalidArgumentf("dish must not be nil")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Dish](ctx, "name", input.Name, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	var dish Dish
	if id > 0 {
		if err := tx.WithContext(ctx).First(&dish, id).Error; err != nil {
			tx.Rollback()
			return nil, &utils.NotFoundError{Resource: "dish", Key: fmt.Sprintf("id=%d", id)}
		}
		err := tx.WithContext(ctx).Model(&dish).Updates(map[string]interface{}{
			"Name":  input.Name,
			"Type":  input.Type,
			"Price": input.Price,
		}).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.WithContext(ctx).
			Where("dish_id = ?", dish.ID).
			Delete(&DishIngredient{}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	} else {
		dish = Dish{Name: input.Name, Type: input.Type, Price: input.Price}
		if err := tx.WithContext(ctx).Create(&dish).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if len(input.Recipe) > 0 {
		lines := make([]DishIngredient, 0, len(input.Recipe))
		for i := range input.Recipe {
			recipeLine := &input.Recipe[i]
			ingredientId, err := findOrCreateIngredientTx(tx.WithContext(ctx), &recipeLine.Ingredient)
			if err != nil {
				tx.Rollback()
				return nil, err
			}
			lines = append(lines, DishIngredient{
				DishId:       dish.ID,
				IngredientId: ingredientId,
				Quantity:     recipeLine.Quantity,
				Unit:         recipeLine.Unit,
			})
		}
		if err := tx.WithContext(ctx).Create(&lines).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, &utils.TransactionFailure{Op: "save dish", Err: err}
	}
	return GetDish(ctx, dish.ID)
}
