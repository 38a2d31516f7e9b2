package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/restaurant_backend/config"
	"bitbucket.org/mmdatafocus/restaurant_backend/models"
	"bitbucket.org/mmdatafocus/restaurant_backend/utils"
	"github.com/shopspring/decimal"
)

func setupIntegrationEnv(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "restaurant_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}

	ctx := context.Background()
	return utils.SetCorrelationIdInContext(ctx, "itest")
}

func seedIngredient(t *testing.T, ctx context.Context, name string, unitCost string, stockKg int64) *models.Ingredient {
	t.Helper()
	cost, _ := decimal.NewFromString(unitCost)
	created, err := models.CreateIngredients(ctx, []*models.NewIngredient{{
		Name:     name,
		UnitCost: cost,
		Category: models.IngredientCategoryOther,
	}})
	if err != nil {
		t.Fatalf("CreateIngredients(%s): %v", name, err)
	}
	ing := created[0]
	if stockKg > 0 {
		_, err = models.RecordStockMovement(ctx, ing.ID, &models.NewStockMovement{
			Quantity: decimal.NewFromInt(stockKg),
			Unit:     models.StockUnitKG,
			Kind:     models.MovementKindIn,
		})
		if err != nil {
			t.Fatalf("RecordStockMovement(%s): %v", name, err)
		}
	}
	return ing
}

func seedDish(t *testing.T, ctx context.Context, name string, price string, ingredientName string, perServingKg string) *models.Dish {
	t.Helper()
	p, _ := decimal.NewFromString(price)
	qty, _ := decimal.NewFromString(perServingKg)
	dish, err := models.SaveDish(ctx, 0, &models.NewDish{
		Name:  name,
		Type:  models.DishTypeMain,
		Price: &p,
		Recipe: []models.NewDishIngredient{{
			Ingredient: models.NewIngredient{Name: ingredientName, Category: models.IngredientCategoryOther},
			Quantity:   qty,
			Unit:       models.StockUnitKG,
		}},
	})
	if err != nil {
		t.Fatalf("SaveDish(%s): %v", name, err)
	}
	return dish
}

func TestOrderAdmissionLifecycle(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	seedIngredient(t, ctx, "Beef", "12.00", 10)
	dish := seedDish(t, ctx, "Beef Curry", "15.00", "Beef", "0.5")

	// Migration seeds the sequence row; the first admission must never race
	// on its creation.
	var seq models.OrderReferenceSequence
	if err := config.GetDB().First(&seq, 1).Error; err != nil {
		t.Fatalf("sequence row must exist after migration: %v", err)
	}

	recipe, err := models.GetDishRecipe(ctx, dish.ID)
	if err != nil {
		t.Fatalf("GetDishRecipe: %v", err)
	}
	if len(recipe) != 1 || recipe[0].Ingredient == nil || recipe[0].Ingredient.Name != "Beef" {
		t.Fatalf("unexpected recipe: %+v", recipe)
	}

	// First admission mints ORD00001 and consumes stock.
	order, err := models.SaveOrder(ctx, &models.NewOrder{
		Lines: []models.NewDishOrder{{DishId: dish.ID, Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}
	if order.Reference != "ORD00001" {
		t.Fatalf("expected first reference ORD00001, got %s", order.Reference)
	}

	found, err := models.FindOrderByReference(ctx, order.Reference)
	if err != nil {
		t.Fatalf("FindOrderByReference: %v", err)
	}
	if len(found.Lines) != 1 || found.Lines[0].Quantity != 4 {
		t.Fatalf("unexpected lines: %+v", found.Lines)
	}

	// A store failure must stay distinguishable from a missing row.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = models.GetOrder(cancelled, order.ID)
	var notFound *utils.NotFoundError
	if err == nil || errors.As(err, &notFound) {
		t.Fatalf("store failure must not surface as not-found, got %v", err)
	}

	// 10 - 4*0.5 = 8 on the ledger.
	ing := mustIngredientByName(t, ctx, "Beef")
	balance, err := ing.StockValueAt(time.Now())
	if err != nil {
		t.Fatalf("StockValueAt: %v", err)
	}
	if want := decimal.NewFromInt(8); !balance.Quantity.Equal(want) {
		t.Fatalf("expected balance %s after admission, got %s", want, balance.Quantity)
	}

	// Resubmitting the same reference replaces the lines; the net ledger
	// effect reflects only the new quantities.
	updated, err := models.SaveOrder(ctx, &models.NewOrder{
		Reference: order.Reference,
		Lines:     []models.NewDishOrder{{DishId: dish.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("resubmission: %v", err)
	}
	if updated.ID != order.ID {
		t.Fatalf("resubmission must update in place, got new id %d", updated.ID)
	}
	if updated.Reference != order.Reference {
		t.Fatalf("reference must be stable across resubmission, got %s", updated.Reference)
	}

	ing = mustIngredientByName(t, ctx, "Beef")
	balance, err = ing.StockValueAt(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("StockValueAt: %v", err)
	}
	if want := decimal.NewFromInt(9); !balance.Quantity.Equal(want) {
		t.Fatalf("expected balance %s after resubmission, got %s", want, balance.Quantity)
	}

	// A free-text reference is a label, not an update key: it gets replaced
	// with a fresh generated one.
	labeled, err := models.SaveOrder(ctx, &models.NewOrder{
		Reference: "window seat order",
		Lines:     []models.NewDishOrder{{DishId: dish.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("SaveOrder with label: %v", err)
	}
	if !regexp.MustCompile(`^ORD\d{5}$`).MatchString(labeled.Reference) {
		t.Fatalf("expected generated reference, got %s", labeled.Reference)
	}
	if labeled.Reference == order.Reference {
		t.Fatalf("generated reference must be new, got %s twice", labeled.Reference)
	}

	// Draining the rest of the stock must fail atomically: no order row, no
	// lines, no ledger change.
	_, err = models.SaveOrder(ctx, &models.NewOrder{
		Lines: []models.NewDishOrder{{DishId: dish.ID, Quantity: 100}},
	})
	var stockErr *utils.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.IngredientName != "Beef" {
		t.Fatalf("error should name the ingredient, got %q", stockErr.IngredientName)
	}

	ing = mustIngredientByName(t, ctx, "Beef")
	after, err := ing.StockValueAt(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("StockValueAt: %v", err)
	}
	if want := decimal.RequireFromString("8.5"); !after.Quantity.Equal(want) {
		t.Fatalf("rejected admission must not touch the ledger: want %s, got %s", want, after.Quantity)
	}
}

func TestTableSlotAdmission(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	seedIngredient(t, ctx, "Chicken", "6.00", 100)
	dish := seedDish(t, ctx, "Roast Chicken", "11.00", "Chicken", "0.3")

	tableA, err := models.CreateDiningTable(ctx, &models.NewDiningTable{Number: 1})
	if err != nil {
		t.Fatalf("CreateDiningTable: %v", err)
	}
	tableB, err := models.CreateDiningTable(ctx, &models.NewDiningTable{Number: 2})
	if err != nil {
		t.Fatalf("CreateDiningTable: %v", err)
	}

	arrival := time.Date(2026, 9, 10, 19, 0, 0, 0, time.UTC)
	departure := arrival.Add(2 * time.Hour)
	no1, no2 := 1, 2

	first, err := models.SaveOrder(ctx, &models.NewOrder{
		TableNumber: &no1,
		ArrivalAt:   &arrival,
		DepartureAt: &departure,
		Lines:       []models.NewDishOrder{{DishId: dish.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if first.TableId == nil || *first.TableId != tableA.ID {
		t.Fatalf("expected table %d, got %+v", tableA.ID, first.TableId)
	}

	if ok, err := models.IsTableAvailable(ctx, tableA.ID, arrival, departure); err != nil || ok {
		t.Fatalf("booked table must report unavailable: ok=%v err=%v", ok, err)
	}
	if ok, err := models.IsTableAvailable(ctx, tableB.ID, arrival, departure); err != nil || !ok {
		t.Fatalf("free table must report available: ok=%v err=%v", ok, err)
	}

	// Overlapping slot on the same table must be rejected and suggest the
	// free table.
	_, err = models.SaveOrder(ctx, &models.NewOrder{
		TableNumber: &no1,
		ArrivalAt:   &arrival,
		DepartureAt: &departure,
		Lines:       []models.NewDishOrder{{DishId: dish.ID, Quantity: 1}},
	})
	var tableErr *utils.TableUnavailableError
	if !errors.As(err, &tableErr) {
		t.Fatalf("expected TableUnavailableError, got %v", err)
	}
	if len(tableErr.AvailableTableIds) != 1 || tableErr.AvailableTableIds[0] != tableB.ID {
		t.Fatalf("expected suggestion [%d], got %v", tableB.ID, tableErr.AvailableTableIds)
	}

	// Back-to-back on the same table is fine: half-open slots.
	later := departure.Add(2 * time.Hour)
	if _, err := models.SaveOrder(ctx, &models.NewOrder{
		TableNumber: &no1,
		ArrivalAt:   &departure,
		DepartureAt: &later,
		Lines:       []models.NewDishOrder{{DishId: dish.ID, Quantity: 1}},
	}); err != nil {
		t.Fatalf("back-to-back booking must succeed: %v", err)
	}

	// The other table stays bookable in the contested window.
	if _, err := models.SaveOrder(ctx, &models.NewOrder{
		TableNumber: &no2,
		ArrivalAt:   &arrival,
		DepartureAt: &departure,
		Lines:       []models.NewDishOrder{{DishId: dish.ID, Quantity: 1}},
	}); err != nil {
		t.Fatalf("booking the free table must succeed: %v", err)
	}

	// A resubmission must not collide with its own booking.
	if _, err := models.SaveOrder(ctx, &models.NewOrder{
		Reference:   first.Reference,
		TableNumber: &no1,
		ArrivalAt:   &arrival,
		DepartureAt: &departure,
		Lines:       []models.NewDishOrder{{DishId: dish.ID, Quantity: 3}},
	}); err != nil {
		t.Fatalf("resubmission with same slot must succeed: %v", err)
	}

	// Both tables now hold the contested window: the rejection must carry
	// an empty suggestion set.
	_, err = models.SaveOrder(ctx, &models.NewOrder{
		TableNumber: &no1,
		ArrivalAt:   &arrival,
		DepartureAt: &departure,
		Lines:       []models.NewDishOrder{{DishId: dish.ID, Quantity: 1}},
	})
	tableErr = nil
	if !errors.As(err, &tableErr) {
		t.Fatalf("expected TableUnavailableError, got %v", err)
	}
	if len(tableErr.AvailableTableIds) != 0 {
		t.Fatalf("expected no suggestions when every table is taken, got %v", tableErr.AvailableTableIds)
	}
	if !strings.Contains(tableErr.Error(), "No tables are available") {
		t.Fatalf("message must state none are available, got %q", tableErr.Error())
	}
}

func TestBackdatedOrderCannotOverdraw(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	seedIngredient(t, ctx, "Rice", "2.00", 10)
	dish := seedDish(t, ctx, "Rice Bowl", "9.00", "Rice", "2")

	time.Sleep(50 * time.Millisecond)
	backdated := time.Now()
	time.Sleep(50 * time.Millisecond)

	// 10 - 3*2 = 4 left at the current instant.
	if _, err := models.SaveOrder(ctx, &models.NewOrder{
		Lines: []models.NewDishOrder{{DishId: dish.ID, Quantity: 3}},
	}); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}

	// The ledger held 10 at the backdated instant, but only 4 remain now.
	// Admitting this order would drive the balance negative, so the current
	// balance must also cover the draw.
	_, err := models.SaveOrder(ctx, &models.NewOrder{
		CreatedAt: &backdated,
		Lines:     []models.NewDishOrder{{DishId: dish.ID, Quantity: 3}},
	})
	var stockErr *utils.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if want := decimal.NewFromInt(4); !stockErr.Available.Equal(want) {
		t.Fatalf("available must reflect the current balance %s, got %s", want, stockErr.Available)
	}

	// A backdated order the current stock does cover still goes through.
	if _, err := models.SaveOrder(ctx, &models.NewOrder{
		CreatedAt: &backdated,
		Lines:     []models.NewDishOrder{{DishId: dish.ID, Quantity: 2}},
	}); err != nil {
		t.Fatalf("backdated order within current stock: %v", err)
	}

	ing := mustIngredientByName(t, ctx, "Rice")
	balance, err := ing.StockValueAt(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("StockValueAt: %v", err)
	}
	if !balance.Quantity.IsZero() {
		t.Fatalf("expected the ledger drained to zero, got %s", balance.Quantity)
	}
}

func TestConcurrentBookingNeverDoubleBooks(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	seedIngredient(t, ctx, "Duck", "14.00", 100)
	dish := seedDish(t, ctx, "Duck Confit", "21.00", "Duck", "0.4")
	if _, err := models.CreateDiningTable(ctx, &models.NewDiningTable{Number: 1}); err != nil {
		t.Fatalf("CreateDiningTable: %v", err)
	}

	arrival := time.Date(2026, 9, 12, 20, 0, 0, 0, time.UTC)
	departure := arrival.Add(2 * time.Hour)
	no1 := 1

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = models.SaveOrder(ctx, &models.NewOrder{
				TableNumber: &no1,
				ArrivalAt:   &arrival,
				DepartureAt: &departure,
				Lines:       []models.NewDishOrder{{DishId: dish.ID, Quantity: 1}},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var tableErr *utils.TableUnavailableError
		if !errors.As(err, &tableErr) {
			t.Fatalf("loser must fail with TableUnavailableError, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("exactly one concurrent booking must win, got %d", succeeded)
	}

	var booked int64
	err := config.GetDB().WithContext(ctx).
		Model(&models.Order{}).
		Where("table_id IS NOT NULL").
		Count(&booked).Error
	if err != nil {
		t.Fatalf("count reservations: %v", err)
	}
	if booked != 1 {
		t.Fatalf("expected a single reservation on the table, got %d", booked)
	}
}

func TestConcurrentAdmissionNeverOversells(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	// 10kg of stock; each order needs 6kg. Only one can win.
	seedIngredient(t, ctx, "Salmon", "20.00", 10)
	dish := seedDish(t, ctx, "Grilled Salmon", "18.00", "Salmon", "2")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = models.SaveOrder(ctx, &models.NewOrder{
				Lines: []models.NewDishOrder{{DishId: dish.ID, Quantity: 3}},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var stockErr *utils.InsufficientStockError
		if !errors.As(err, &stockErr) {
			t.Fatalf("loser must fail with InsufficientStockError, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("exactly one concurrent admission must win, got %d", succeeded)
	}

	ing := mustIngredientByName(t, ctx, "Salmon")
	balance, err := ing.StockValueAt(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("StockValueAt: %v", err)
	}
	if want := decimal.NewFromInt(4); !balance.Quantity.Equal(want) {
		t.Fatalf("expected %s left on the ledger, got %s", want, balance.Quantity)
	}
}

func mustIngredientByName(t *testing.T, ctx context.Context, name string) *models.Ingredient {
	t.Helper()
	db := config.GetDB()
	var ing models.Ingredient
	if err := db.WithContext(ctx).Where("name = ?", name).First(&ing).Error; err != nil {
		t.Fatalf("ingredient %s: %v", name, err)
	}
	full, err := models.GetIngredient(ctx, ing.ID)
	if err != nil {
		t.Fatalf("GetIngredient(%s): %v", name, err)
	}
	return full
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("restaurant-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("restaurant-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=restaurant_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
