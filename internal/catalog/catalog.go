// Package catalog manages the stores, meals and store-meal links users register through the
// bot. Input is validated before anything is written.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/edgard/ohirun/internal/database"
)

var (
	// ErrNotFound reports a reference to a store, meal or food type that does not exist.
	ErrNotFound = database.ErrNotFound
	// ErrDuplicate reports an entity that is already registered.
	ErrDuplicate = database.ErrDuplicate
)

// ValidationError is a rejected input. Message is suitable for showing to the user.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Repository is the subset of the data access layer the catalog needs.
type Repository interface {
	ListFoodTypes(ctx context.Context) ([]database.FoodType, error)
	ListActiveStores(ctx context.Context) ([]database.Store, error)
	ListMeals(ctx context.Context) ([]database.Meal, error)
	ListLinks(ctx context.Context) ([]database.Offering, error)
	GetStore(ctx context.Context, id int64) (*database.Store, error)
	GetMeal(ctx context.Context, id int64) (*database.Meal, error)
	CreateStore(ctx context.Context, store *database.Store) error
	CreateMeal(ctx context.Context, meal *database.Meal) error
	CreateStoreMeal(ctx context.Context, link *database.StoreMeal) error
}

// Link is a created store-meal link with both sides resolved.
type Link struct {
	Store database.Store
	Meal  database.Meal
	Price *float64
}

type storeInput struct {
	Name  string `label:"店舗名"   validate:"required,max=100"`
	Genre string `label:"ジャンル" validate:"required,max=100"`
}

type mealInput struct {
	Name        string `label:"食べ物の名前" validate:"required,max=100"`
	FoodTypeID  int64  `label:"食べ物の種類" validate:"min=1"`
	Description string `label:"説明"         validate:"max=200"`
}

type linkInput struct {
	StoreID int64    `label:"店舗ID"   validate:"min=1"`
	MealID  int64    `label:"食べ物ID" validate:"min=1"`
	Price   *float64 `label:"価格"     validate:"omitempty,min=0"`
}

// Service validates and persists catalog entries.
type Service struct {
	repo     Repository
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService creates a catalog service over repo.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
		return f.Name
	})

	return &Service{
		repo:     repo,
		validate: v,
		logger:   logger.With("component", "catalog"),
	}
}

// AddStore registers a new active store. Store names are unique.
func (s *Service) AddStore(ctx context.Context, name, genre string) (*database.Store, error) {
	in := storeInput{Name: strings.TrimSpace(name), Genre: strings.TrimSpace(genre)}
	if err := s.check(in); err != nil {
		return nil, err
	}

	store := &database.Store{Name: in.Name, Genre: in.Genre}
	if err := s.repo.CreateStore(ctx, store); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, &ValidationError{
				Field:   "name",
				Message: fmt.Sprintf("店舗「%s」は既に登録されています。", in.Name),
				Err:     err,
			}
		}
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	s.logger.InfoContext(ctx, "Store added", "store_id", store.ID, "name", store.Name, "genre", store.Genre)
	return store, nil
}

// AddMeal registers a new meal of an existing food type. (name, food type) pairs are unique.
func (s *Service) AddMeal(ctx context.Context, name string, foodTypeID int64, description string) (*database.Meal, error) {
	in := mealInput{
		Name:        strings.TrimSpace(name),
		FoodTypeID:  foodTypeID,
		Description: strings.TrimSpace(description),
	}
	if err := s.check(in); err != nil {
		return nil, err
	}

	meal := &database.Meal{Name: in.Name, FoodTypeID: in.FoodTypeID, Description: in.Description}
	if err := s.repo.CreateMeal(ctx, meal); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, &ValidationError{
				Field:   "foodtype",
				Message: fmt.Sprintf("食べ物の種類ID「%d」が見つかりません。", foodTypeID),
				Err:     err,
			}
		case errors.Is(err, ErrDuplicate):
			return nil, &ValidationError{
				Field:   "name",
				Message: fmt.Sprintf("食べ物「%s」は既に登録されています。", in.Name),
				Err:     err,
			}
		}
		return nil, fmt.Errorf("failed to create meal: %w", err)
	}

	s.logger.InfoContext(ctx, "Meal added", "meal_id", meal.ID, "name", meal.Name, "food_type_id", meal.FoodTypeID)
	return meal, nil
}

// LinkStoreMeal records that a store sells a meal, optionally at a price.
func (s *Service) LinkStoreMeal(ctx context.Context, storeID, mealID int64, price *float64) (*Link, error) {
	in := linkInput{StoreID: storeID, MealID: mealID, Price: price}
	if err := s.check(in); err != nil {
		return nil, err
	}

	store, err := s.repo.GetStore(ctx, storeID)
	if err != nil {
		return nil, s.notFound(err, "storeid", fmt.Sprintf("店舗ID「%d」が見つかりません。", storeID))
	}
	meal, err := s.repo.GetMeal(ctx, mealID)
	if err != nil {
		return nil, s.notFound(err, "mealid", fmt.Sprintf("食べ物ID「%d」が見つかりません。", mealID))
	}

	link := &database.StoreMeal{StoreID: storeID, MealID: mealID}
	if price != nil {
		link.Price = sql.NullFloat64{Float64: *price, Valid: true}
	}
	if err := s.repo.CreateStoreMeal(ctx, link); err != nil {
		switch {
		case errors.Is(err, ErrDuplicate):
			return nil, &ValidationError{
				Field:   "mealid",
				Message: "この店舗と食べ物の組み合わせは既に登録されています。",
				Err:     err,
			}
		case errors.Is(err, ErrNotFound):
			return nil, &ValidationError{Field: "storeid", Message: "店舗または食べ物が見つかりません。", Err: err}
		}
		return nil, fmt.Errorf("failed to link store and meal: %w", err)
	}

	s.logger.InfoContext(ctx, "Store and meal linked", "store_id", storeID, "meal_id", mealID, "has_price", price != nil)
	return &Link{Store: *store, Meal: *meal, Price: price}, nil
}

// Stores lists the active stores.
func (s *Service) Stores(ctx context.Context) ([]database.Store, error) {
	return s.repo.ListActiveStores(ctx)
}

// Meals lists every meal with its food type name.
func (s *Service) Meals(ctx context.Context) ([]database.Meal, error) {
	return s.repo.ListMeals(ctx)
}

// Links lists the available store-meal links.
func (s *Service) Links(ctx context.Context) ([]database.Offering, error) {
	return s.repo.ListLinks(ctx)
}

// FoodTypes lists the seeded food types.
func (s *Service) FoodTypes(ctx context.Context) ([]database.FoodType, error) {
	return s.repo.ListFoodTypes(ctx)
}

func (s *Service) notFound(err error, field, msg string) error {
	if errors.Is(err, ErrNotFound) {
		return &ValidationError{Field: field, Message: msg, Err: err}
	}
	return err
}

// check runs struct validation and converts the first failure into a ValidationError.
func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("failed to validate input: %w", err)
	}

	fe := fieldErrs[0]
	return &ValidationError{Field: fe.StructField(), Message: describe(fe), Err: err}
}

func describe(fe validator.FieldError) string {
	label := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%sは必須です。", label)
	case "max":
		return fmt.Sprintf("%sは%s文字以内で入力してください。", label, fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%sは%s文字以上で入力してください。", label, fe.Param())
		}
		return fmt.Sprintf("%sは%s以上で入力してください。", label, fe.Param())
	default:
		return fmt.Sprintf("%sが正しくありません。", label)
	}
}
