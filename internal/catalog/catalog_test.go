package catalog_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edgard/ohirun/internal/catalog"
	"github.com/edgard/ohirun/internal/database"
)

func newTestService(t *testing.T) *catalog.Service {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return catalog.NewService(database.NewRepository(db, nil), nil)
}

func TestAddStore(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	store, err := svc.AddStore(ctx, "  さくら食堂 ", "和食")
	if err != nil {
		t.Fatalf("AddStore() error = %v", err)
	}
	if store.ID == 0 || store.Name != "さくら食堂" || !store.IsActive {
		t.Errorf("store = %+v", store)
	}

	_, err = svc.AddStore(ctx, "さくら食堂", "定食")
	var vErr *catalog.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("duplicate AddStore() error = %v, want *ValidationError", err)
	}
	if !errors.Is(err, catalog.ErrDuplicate) {
		t.Errorf("duplicate AddStore() error does not match ErrDuplicate: %v", err)
	}
	if !strings.Contains(vErr.Message, "既に登録されています") {
		t.Errorf("message = %q", vErr.Message)
	}
}

func TestAddStore_InvalidInput(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)

	tests := []struct {
		name      string
		storeName string
		genre     string
		wantField string
		wantMsg   string
	}{
		{name: "empty name", storeName: " ", genre: "和食", wantField: "Name", wantMsg: "店舗名は必須です。"},
		{name: "empty genre", storeName: "店", genre: "", wantField: "Genre", wantMsg: "ジャンルは必須です。"},
		{
			name:      "name too long",
			storeName: strings.Repeat("あ", 101),
			genre:     "和食",
			wantField: "Name",
			wantMsg:   "店舗名は100文字以内で入力してください。",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddStore(context.Background(), tt.storeName, tt.genre)
			var vErr *catalog.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("AddStore() error = %v, want *ValidationError", err)
			}
			if vErr.Field != tt.wantField || vErr.Message != tt.wantMsg {
				t.Errorf("ValidationError = {%s %q}, want {%s %q}", vErr.Field, vErr.Message, tt.wantField, tt.wantMsg)
			}
		})
	}

	stores, err := svc.Stores(context.Background())
	if err != nil {
		t.Fatalf("Stores() error = %v", err)
	}
	if len(stores) != 0 {
		t.Errorf("invalid input was persisted: %+v", stores)
	}
}

func TestAddStore_HundredRunesAllowed(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	if _, err := svc.AddStore(context.Background(), strings.Repeat("店", 100), "和食"); err != nil {
		t.Fatalf("AddStore() error = %v", err)
	}
}

func TestAddMeal(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	meal, err := svc.AddMeal(ctx, "ラーメン", 2, "醤油")
	if err != nil {
		t.Fatalf("AddMeal() error = %v", err)
	}
	if meal.ID == 0 || meal.FoodTypeName != "麺" {
		t.Errorf("meal = %+v", meal)
	}

	// The same name under another food type is a different meal.
	if _, err := svc.AddMeal(ctx, "ラーメン", 1, ""); err != nil {
		t.Errorf("AddMeal() with other food type error = %v", err)
	}

	_, err = svc.AddMeal(ctx, "ラーメン", 2, "")
	if !errors.Is(err, catalog.ErrDuplicate) {
		t.Errorf("duplicate AddMeal() error = %v, want ErrDuplicate", err)
	}

	_, err = svc.AddMeal(ctx, "カレー", 9, "")
	var vErr *catalog.ValidationError
	if !errors.As(err, &vErr) || !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("AddMeal() unknown food type error = %v, want not-found ValidationError", err)
	}
	if vErr.Message != "食べ物の種類ID「9」が見つかりません。" {
		t.Errorf("message = %q", vErr.Message)
	}

	_, err = svc.AddMeal(ctx, "パスタ", 2, strings.Repeat("x", 201))
	if !errors.As(err, &vErr) || vErr.Field != "Description" {
		t.Errorf("AddMeal() long description error = %v, want Description ValidationError", err)
	}
}

func TestLinkStoreMeal(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	store, err := svc.AddStore(ctx, "麺屋", "ラーメン")
	if err != nil {
		t.Fatalf("AddStore() error = %v", err)
	}
	meal, err := svc.AddMeal(ctx, "味噌ラーメン", 2, "")
	if err != nil {
		t.Fatalf("AddMeal() error = %v", err)
	}

	price := 900.0
	link, err := svc.LinkStoreMeal(ctx, store.ID, meal.ID, &price)
	if err != nil {
		t.Fatalf("LinkStoreMeal() error = %v", err)
	}
	if link.Store.Name != "麺屋" || link.Meal.Name != "味噌ラーメン" || link.Price == nil || *link.Price != 900 {
		t.Errorf("link = %+v", link)
	}

	if _, err := svc.LinkStoreMeal(ctx, store.ID, meal.ID, nil); !errors.Is(err, catalog.ErrDuplicate) {
		t.Errorf("duplicate LinkStoreMeal() error = %v, want ErrDuplicate", err)
	}

	links, err := svc.Links(ctx)
	if err != nil {
		t.Fatalf("Links() error = %v", err)
	}
	if len(links) != 1 || !links[0].Price.Valid || links[0].Price.Float64 != 900 {
		t.Errorf("links = %+v", links)
	}
}

func TestLinkStoreMeal_Rejects(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	store, err := svc.AddStore(ctx, "パン屋", "ベーカリー")
	if err != nil {
		t.Fatalf("AddStore() error = %v", err)
	}
	meal, err := svc.AddMeal(ctx, "クロワッサン", 3, "")
	if err != nil {
		t.Fatalf("AddMeal() error = %v", err)
	}

	negative := -1.0
	tests := []struct {
		name      string
		storeID   int64
		mealID    int64
		price     *float64
		wantMsg   string
		wantFound bool
	}{
		{name: "unknown store", storeID: 999, mealID: meal.ID, wantMsg: "店舗ID「999」が見つかりません。", wantFound: true},
		{name: "unknown meal", storeID: store.ID, mealID: 999, wantMsg: "食べ物ID「999」が見つかりません。", wantFound: true},
		{name: "negative price", storeID: store.ID, mealID: meal.ID, price: &negative, wantMsg: "価格は0以上で入力してください。"},
		{name: "zero store id", storeID: 0, mealID: meal.ID, wantMsg: "店舗IDは1以上で入力してください。"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.LinkStoreMeal(ctx, tt.storeID, tt.mealID, tt.price)
			var vErr *catalog.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("LinkStoreMeal() error = %v, want *ValidationError", err)
			}
			if vErr.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", vErr.Message, tt.wantMsg)
			}
			if got := errors.Is(err, catalog.ErrNotFound); got != tt.wantFound {
				t.Errorf("errors.Is(ErrNotFound) = %v, want %v", got, tt.wantFound)
			}
		})
	}
}

func TestFoodTypesAndMeals(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	types, err := svc.FoodTypes(ctx)
	if err != nil {
		t.Fatalf("FoodTypes() error = %v", err)
	}
	if len(types) != 3 || types[0].Name != "コメ" || types[2].Name != "パン" {
		t.Errorf("food types = %+v", types)
	}

	if _, err := svc.AddMeal(ctx, "おにぎり", 1, "鮭"); err != nil {
		t.Fatalf("AddMeal() error = %v", err)
	}
	meals, err := svc.Meals(ctx)
	if err != nil {
		t.Fatalf("Meals() error = %v", err)
	}
	if len(meals) != 1 || meals[0].FoodTypeName != "コメ" || meals[0].Description != "鮭" {
		t.Errorf("meals = %+v", meals)
	}
}
