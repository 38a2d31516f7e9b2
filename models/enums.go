package models

import "errors"

type IngredientCategory string

const (
	IngredientCategoryVegetable IngredientCategory = "VEGETABLE"
	IngredientCategoryMeat      IngredientCategory = "MEAT"
	IngredientCategoryFish      IngredientCategory = "FISH"
	IngredientCategoryDairy     IngredientCategory = "DAIRY"
	IngredientCategoryGrain     IngredientCategory = "GRAIN"
	IngredientCategorySpice     IngredientCategory = "SPICE"
	IngredientCategoryBeverage  IngredientCategory = "BEVERAGE"
	IngredientCategoryOther     IngredientCategory = "OTHER"
)

func (c IngredientCategory) Validate() error {
	switch c {
	case IngredientCategoryVegetable, IngredientCategoryMeat, IngredientCategoryFish,
		IngredientCategoryDairy, IngredientCategoryGrain, IngredientCategorySpice,
		IngredientCategoryBeverage, IngredientCategoryOther:
		return nil
	}
	return errors.New("invalid ingredient category")
}

type DishType string

const (
	DishTypeStarter DishType = "STARTER"
	DishTypeMain    DishType = "MAIN"
	DishTypeDessert DishType = "DESSERT"
	DishTypeDrink   DishType = "DRINK"
)

func (t DishType) Validate() error {
	switch t {
	case DishTypeStarter, DishTypeMain, DishTypeDessert, DishTypeDrink:
		return nil
	}
	return errors.New("invalid dish type")
}

// MovementKind tells whether a stock movement increases (IN) or decreases
// (OUT) an ingredient's ledger balance.
type MovementKind string

const (
	MovementKindIn  MovementKind = "IN"
	MovementKindOut MovementKind = "OUT"
)

func (k MovementKind) Validate() error {
	switch k {
	case MovementKindIn, MovementKindOut:
		return nil
	}
	return errors.New("invalid movement kind")
}

type StockUnit string

const (
	StockUnitKG    StockUnit = "KG"
	StockUnitG     StockUnit = "G"
	StockUnitL     StockUnit = "L"
	StockUnitCL    StockUnit = "CL"
	StockUnitPiece StockUnit = "PIECE"
)

// DefaultStockUnit is reported for an empty ledger.
const DefaultStockUnit = StockUnitKG

func (u StockUnit) Validate() error {
	switch u {
	case StockUnitKG, StockUnitG, StockUnitL, StockUnitCL, StockUnitPiece:
		return nil
	}
	return errors.New("invalid stock unit")
}
