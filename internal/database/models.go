package database

import (
	"database/sql"
	"time"
)

// Store is an eatery that can offer meals. Inactive stores are never selected.
type Store struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	Genre    string `db:"genre"`
	IsActive bool   `db:"is_active"`
}

// FoodType is one of the seeded meal categories (rice, noodle, bread).
type FoodType struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
}

// Meal is a dish of a given food type. FoodTypeName is filled by read queries only.
type Meal struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	Description  string `db:"description"`
	FoodTypeID   int64  `db:"food_type_id"`
	FoodTypeName string `db:"food_type_name"`
}

// StoreMeal links a store to a meal it sells, optionally with a price.
type StoreMeal struct {
	StoreID     int64           `db:"store_id"`
	MealID      int64           `db:"meal_id"`
	Price       sql.NullFloat64 `db:"price"`
	IsAvailable bool            `db:"is_available"`
}

// OfferingKey identifies an offering by its (store, meal) pair.
type OfferingKey struct {
	StoreID int64 `db:"store_id"`
	MealID  int64 `db:"meal_id"`
}

// Offering is a StoreMeal joined with its store, meal and food type.
type Offering struct {
	StoreID         int64           `db:"store_id"`
	MealID          int64           `db:"meal_id"`
	Price           sql.NullFloat64 `db:"price"`
	IsAvailable     bool            `db:"is_available"`
	StoreName       string          `db:"store_name"`
	StoreGenre      string          `db:"store_genre"`
	StoreIsActive   bool            `db:"store_is_active"`
	MealName        string          `db:"meal_name"`
	MealDescription string          `db:"meal_description"`
	FoodTypeID      int64           `db:"food_type_id"`
	FoodTypeName    string          `db:"food_type_name"`
}

// Key returns the (store, meal) pair of the offering.
func (o Offering) Key() OfferingKey {
	return OfferingKey{StoreID: o.StoreID, MealID: o.MealID}
}

// Store returns the store side of the offering.
func (o Offering) Store() Store {
	return Store{ID: o.StoreID, Name: o.StoreName, Genre: o.StoreGenre, IsActive: o.StoreIsActive}
}

// Meal returns the meal side of the offering.
func (o Offering) Meal() Meal {
	return Meal{
		ID:           o.MealID,
		Name:         o.MealName,
		Description:  o.MealDescription,
		FoodTypeID:   o.FoodTypeID,
		FoodTypeName: o.FoodTypeName,
	}
}

// LunchHistory records one suggestion made to a user. Rows are append-only.
type LunchHistory struct {
	ID          int64     `db:"id"`
	StoreID     int64     `db:"store_id"`
	MealID      int64     `db:"meal_id"`
	UserID      string    `db:"user_id"`
	Username    string    `db:"username"`
	SuggestedAt time.Time `db:"suggested_at"`
}

// Chat is a chat the bot has seen or been added to.
type Chat struct {
	ID        int64     `db:"id"`
	Type      string    `db:"type"`
	Title     string    `db:"title"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
