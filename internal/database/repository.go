package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert would violate a uniqueness rule.
	ErrDuplicate = errors.New("already exists")
)

// Repository defines the data access operations used by the bot.
// Methods accept context.Context for cancellation and timeouts.
type Repository interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// ListValidOfferings returns available offerings of active stores, ordered by (store, meal).
	ListValidOfferings(ctx context.Context) ([]Offering, error)
	// ListValidOfferingsByFoodType narrows ListValidOfferings to one food type.
	ListValidOfferingsByFoodType(ctx context.Context, foodTypeID int64) ([]Offering, error)
	// ListValidOfferingsByStore narrows ListValidOfferings to one store.
	ListValidOfferingsByStore(ctx context.Context, storeID int64) ([]Offering, error)

	// ListRecentHistory returns the pairs suggested to userID at or after since.
	ListRecentHistory(ctx context.Context, userID string, since time.Time) ([]OfferingKey, error)
	// AppendHistory inserts a lunch history row and sets its ID.
	AppendHistory(ctx context.Context, entry *LunchHistory) error

	ListFoodTypes(ctx context.Context) ([]FoodType, error)
	ListActiveStores(ctx context.Context) ([]Store, error)
	ListMeals(ctx context.Context) ([]Meal, error)
	// ListLinks returns available store-meal links ordered by store name, then meal name.
	ListLinks(ctx context.Context) ([]Offering, error)

	GetStore(ctx context.Context, id int64) (*Store, error)
	GetMeal(ctx context.Context, id int64) (*Meal, error)

	// CreateStore inserts a store; ErrDuplicate if the name is taken.
	CreateStore(ctx context.Context, store *Store) error
	// CreateMeal inserts a meal; ErrNotFound for an unknown food type, ErrDuplicate for a
	// repeated (name, food type) pair.
	CreateMeal(ctx context.Context, meal *Meal) error
	// CreateStoreMeal links a store and a meal; ErrNotFound if either side is missing,
	// ErrDuplicate if the link exists.
	CreateStoreMeal(ctx context.Context, link *StoreMeal) error

	// UpsertChat records a chat as active, refreshing its type and title.
	UpsertChat(ctx context.Context, chat *Chat) error
	// DeactivateChat marks a chat inactive after the bot left it.
	DeactivateChat(ctx context.Context, chatID int64) error
	ListActiveChats(ctx context.Context) ([]Chat, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

const (
	offeringColumns = `
        sm.store_id, sm.meal_id, sm.price, sm.is_available,
        s.name AS store_name, s.genre AS store_genre, s.is_active AS store_is_active,
        m.name AS meal_name, m.description AS meal_description, m.food_type_id,
        ft.name AS food_type_name`

	offeringJoins = `
        FROM store_meals sm
        JOIN stores s ON s.id = sm.store_id
        JOIN meals m ON m.id = sm.meal_id
        JOIN food_types ft ON ft.id = m.food_type_id`

	validOffering = `sm.is_available = 1 AND s.is_active = 1`
)

// sqlxRepository implements Repository using sqlx.
type sqlxRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewRepository creates a Repository backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewRepository(db *sqlx.DB, logger *slog.Logger) Repository {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxRepository{
		db:     db,
		logger: logger.With("component", "repository"),
	}
}

func (r *sqlxRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *sqlxRepository) ListValidOfferings(ctx context.Context) ([]Offering, error) {
	query := `SELECT ` + offeringColumns + offeringJoins + `
        WHERE ` + validOffering + `
        ORDER BY sm.store_id, sm.meal_id;`

	return r.selectOfferings(ctx, "valid offerings", query)
}

func (r *sqlxRepository) ListValidOfferingsByFoodType(ctx context.Context, foodTypeID int64) ([]Offering, error) {
	query := `SELECT ` + offeringColumns + offeringJoins + `
        WHERE ` + validOffering + ` AND m.food_type_id = ?
        ORDER BY sm.store_id, sm.meal_id;`

	return r.selectOfferings(ctx, "valid offerings by food type", query, foodTypeID)
}

func (r *sqlxRepository) ListValidOfferingsByStore(ctx context.Context, storeID int64) ([]Offering, error) {
	query := `SELECT ` + offeringColumns + offeringJoins + `
        WHERE ` + validOffering + ` AND sm.store_id = ?
        ORDER BY sm.store_id, sm.meal_id;`

	return r.selectOfferings(ctx, "valid offerings by store", query, storeID)
}

func (r *sqlxRepository) ListLinks(ctx context.Context) ([]Offering, error) {
	query := `SELECT ` + offeringColumns + offeringJoins + `
        WHERE sm.is_available = 1
        ORDER BY s.name, m.name;`

	return r.selectOfferings(ctx, "links", query)
}

func (r *sqlxRepository) selectOfferings(ctx context.Context, what, query string, args ...any) ([]Offering, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var offerings []Offering
	err := r.db.SelectContext(ctx, &offerings, query, args...)

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		r.logger.WarnContext(ctx, "Context timeout or cancellation while fetching offerings", "query", what, "error", err)
		return nil, err

	case err != nil:
		r.logger.ErrorContext(ctx, "Error fetching offerings", "query", what, "error", err)
		return nil, fmt.Errorf("failed to list %s: %w", what, err)
	}

	r.logger.DebugContext(ctx, "Fetched offerings", "query", what, "count", len(offerings))
	return offerings, nil
}

func (r *sqlxRepository) ListRecentHistory(ctx context.Context, userID string, since time.Time) ([]OfferingKey, error) {
	if userID == "" {
		return nil, errors.New("user_id cannot be empty")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var keys []OfferingKey
	query := `
        SELECT DISTINCT store_id, meal_id
        FROM lunch_history
        WHERE user_id = ? AND suggested_at >= ?;
    `

	err := r.db.SelectContext(ctx, &keys, query, userID, since.UTC())
	if err != nil {
		r.logger.ErrorContext(ctx, "Error fetching recent lunch history", "user_id", userID, "since", since, "error", err)
		return nil, fmt.Errorf("failed to get recent history for user %s: %w", userID, err)
	}

	r.logger.DebugContext(ctx, "Fetched recent lunch history", "user_id", userID, "count", len(keys))
	return keys, nil
}

func (r *sqlxRepository) AppendHistory(ctx context.Context, entry *LunchHistory) error {
	if entry == nil {
		return errors.New("cannot append nil history entry")
	}
	if entry.UserID == "" {
		return errors.New("history entry must have a user_id")
	}
	if entry.SuggestedAt.IsZero() {
		return errors.New("history entry must have a suggested_at timestamp")
	}
	entry.SuggestedAt = entry.SuggestedAt.UTC()

	query := `
        INSERT INTO lunch_history (store_id, meal_id, user_id, username, suggested_at)
        VALUES (:store_id, :meal_id, :user_id, :username, :suggested_at);
    `

	result, err := r.db.NamedExecContext(ctx, query, entry)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error appending lunch history",
			"user_id", entry.UserID, "store_id", entry.StoreID, "meal_id", entry.MealID, "error", err)
		return fmt.Errorf("failed to append lunch history for user %s: %w", entry.UserID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	} else {
		r.logger.WarnContext(ctx, "Could not retrieve last insert ID after appending history",
			"user_id", entry.UserID, "error", err)
	}

	r.logger.DebugContext(ctx, "Lunch history appended",
		"history_id", entry.ID, "user_id", entry.UserID, "store_id", entry.StoreID, "meal_id", entry.MealID)
	return nil
}

func (r *sqlxRepository) ListFoodTypes(ctx context.Context) ([]FoodType, error) {
	var foodTypes []FoodType
	query := `SELECT id, name, description FROM food_types ORDER BY id;`

	if err := r.db.SelectContext(ctx, &foodTypes, query); err != nil {
		r.logger.ErrorContext(ctx, "Error listing food types", "error", err)
		return nil, fmt.Errorf("failed to list food types: %w", err)
	}
	return foodTypes, nil
}

func (r *sqlxRepository) ListActiveStores(ctx context.Context) ([]Store, error) {
	var stores []Store
	query := `SELECT id, name, genre, is_active FROM stores WHERE is_active = 1 ORDER BY name;`

	if err := r.db.SelectContext(ctx, &stores, query); err != nil {
		r.logger.ErrorContext(ctx, "Error listing active stores", "error", err)
		return nil, fmt.Errorf("failed to list active stores: %w", err)
	}
	return stores, nil
}

func (r *sqlxRepository) ListMeals(ctx context.Context) ([]Meal, error) {
	var meals []Meal
	query := `
        SELECT m.id, m.name, m.description, m.food_type_id, ft.name AS food_type_name
        FROM meals m
        JOIN food_types ft ON ft.id = m.food_type_id
        ORDER BY ft.id, m.name;
    `

	if err := r.db.SelectContext(ctx, &meals, query); err != nil {
		r.logger.ErrorContext(ctx, "Error listing meals", "error", err)
		return nil, fmt.Errorf("failed to list meals: %w", err)
	}
	return meals, nil
}

func (r *sqlxRepository) GetStore(ctx context.Context, id int64) (*Store, error) {
	var store Store
	err := r.db.GetContext(ctx, &store, `SELECT id, name, genre, is_active FROM stores WHERE id = ?;`, id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("store %d: %w", id, ErrNotFound)
	case err != nil:
		r.logger.ErrorContext(ctx, "Error getting store", "store_id", id, "error", err)
		return nil, fmt.Errorf("failed to get store %d: %w", id, err)
	}
	return &store, nil
}

func (r *sqlxRepository) GetMeal(ctx context.Context, id int64) (*Meal, error) {
	var meal Meal
	query := `
        SELECT m.id, m.name, m.description, m.food_type_id, ft.name AS food_type_name
        FROM meals m
        JOIN food_types ft ON ft.id = m.food_type_id
        WHERE m.id = ?;
    `
	err := r.db.GetContext(ctx, &meal, query, id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("meal %d: %w", id, ErrNotFound)
	case err != nil:
		r.logger.ErrorContext(ctx, "Error getting meal", "meal_id", id, "error", err)
		return nil, fmt.Errorf("failed to get meal %d: %w", id, err)
	}
	return &meal, nil
}

func (r *sqlxRepository) CreateStore(ctx context.Context, store *Store) error {
	if store == nil {
		return errors.New("cannot create nil store")
	}

	return r.withTx(ctx, "create store", func(tx *sqlx.Tx) error {
		var exists int
		err := tx.GetContext(ctx, &exists, `SELECT COUNT(1) FROM stores WHERE name = ?;`, store.Name)
		if err != nil {
			return fmt.Errorf("failed to check store name: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("store %q: %w", store.Name, ErrDuplicate)
		}

		store.IsActive = true
		result, err := tx.NamedExecContext(ctx,
			`INSERT INTO stores (name, genre, is_active) VALUES (:name, :genre, :is_active);`, store)
		if err != nil {
			return mapConstraintError(fmt.Sprintf("store %q", store.Name), err)
		}
		store.ID, err = result.LastInsertId()
		return err
	})
}

func (r *sqlxRepository) CreateMeal(ctx context.Context, meal *Meal) error {
	if meal == nil {
		return errors.New("cannot create nil meal")
	}

	return r.withTx(ctx, "create meal", func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &meal.FoodTypeName, `SELECT name FROM food_types WHERE id = ?;`, meal.FoodTypeID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("food type %d: %w", meal.FoodTypeID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check food type: %w", err)
		}

		var exists int
		err = tx.GetContext(ctx, &exists,
			`SELECT COUNT(1) FROM meals WHERE name = ? AND food_type_id = ?;`, meal.Name, meal.FoodTypeID)
		if err != nil {
			return fmt.Errorf("failed to check meal name: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("meal %q: %w", meal.Name, ErrDuplicate)
		}

		result, err := tx.NamedExecContext(ctx, `
            INSERT INTO meals (name, description, food_type_id)
            VALUES (:name, :description, :food_type_id);`, meal)
		if err != nil {
			return mapConstraintError(fmt.Sprintf("meal %q", meal.Name), err)
		}
		meal.ID, err = result.LastInsertId()
		return err
	})
}

func (r *sqlxRepository) CreateStoreMeal(ctx context.Context, link *StoreMeal) error {
	if link == nil {
		return errors.New("cannot create nil store meal")
	}

	return r.withTx(ctx, "create store meal", func(tx *sqlx.Tx) error {
		var count int
		if err := tx.GetContext(ctx, &count, `SELECT COUNT(1) FROM stores WHERE id = ?;`, link.StoreID); err != nil {
			return fmt.Errorf("failed to check store: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("store %d: %w", link.StoreID, ErrNotFound)
		}

		if err := tx.GetContext(ctx, &count, `SELECT COUNT(1) FROM meals WHERE id = ?;`, link.MealID); err != nil {
			return fmt.Errorf("failed to check meal: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("meal %d: %w", link.MealID, ErrNotFound)
		}

		err := tx.GetContext(ctx, &count,
			`SELECT COUNT(1) FROM store_meals WHERE store_id = ? AND meal_id = ?;`, link.StoreID, link.MealID)
		if err != nil {
			return fmt.Errorf("failed to check store meal: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("store %d meal %d: %w", link.StoreID, link.MealID, ErrDuplicate)
		}

		link.IsAvailable = true
		_, err = tx.NamedExecContext(ctx, `
            INSERT INTO store_meals (store_id, meal_id, price, is_available)
            VALUES (:store_id, :meal_id, :price, :is_available);`, link)
		if err != nil {
			return mapConstraintError(fmt.Sprintf("store %d meal %d", link.StoreID, link.MealID), err)
		}
		return nil
	})
}

func (r *sqlxRepository) UpsertChat(ctx context.Context, chat *Chat) error {
	if chat == nil || chat.ID == 0 {
		return errors.New("chat must have a non-zero id")
	}

	now := time.Now().UTC()
	chat.IsActive = true
	chat.UpdatedAt = now
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}

	query := `
        INSERT INTO chats (id, type, title, is_active, created_at, updated_at)
        VALUES (:id, :type, :title, :is_active, :created_at, :updated_at)
        ON CONFLICT (id) DO UPDATE SET
            type = excluded.type,
            title = excluded.title,
            is_active = excluded.is_active,
            updated_at = excluded.updated_at;
    `
	if _, err := r.db.NamedExecContext(ctx, query, chat); err != nil {
		r.logger.ErrorContext(ctx, "Error upserting chat", "chat_id", chat.ID, "error", err)
		return fmt.Errorf("failed to upsert chat %d: %w", chat.ID, err)
	}

	r.logger.DebugContext(ctx, "Chat recorded", "chat_id", chat.ID, "type", chat.Type)
	return nil
}

func (r *sqlxRepository) DeactivateChat(ctx context.Context, chatID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chats SET is_active = 0, updated_at = ? WHERE id = ?;`, time.Now().UTC(), chatID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error deactivating chat", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to deactivate chat %d: %w", chatID, err)
	}

	r.logger.InfoContext(ctx, "Chat deactivated", "chat_id", chatID)
	return nil
}

func (r *sqlxRepository) ListActiveChats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	query := `
        SELECT id, type, title, is_active, created_at, updated_at
        FROM chats
        WHERE is_active = 1
        ORDER BY id;
    `
	if err := r.db.SelectContext(ctx, &chats, query); err != nil {
		r.logger.ErrorContext(ctx, "Error listing active chats", "error", err)
		return nil, fmt.Errorf("failed to list active chats: %w", err)
	}
	return chats, nil
}

// RunSQLMaintenance runs VACUUM and refreshes planner statistics.
func (r *sqlxRepository) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		r.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	r.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite
	_, err := r.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		r.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		r.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		r.logger.WarnContext(ctx, "PRAGMA optimize failed", "error", err)
	}

	r.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling back otherwise.
func (r *sqlxRepository) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to begin transaction", "operation", op, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				r.logger.WarnContext(ctx, "Error rolling back transaction", "operation", op, "error", rollbackErr)
			}
		}
	}()

	if err := fn(tx); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) {
			r.logger.DebugContext(ctx, "Rejected write", "operation", op, "reason", err)
		} else {
			r.logger.ErrorContext(ctx, "Write failed", "operation", op, "error", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		r.logger.ErrorContext(ctx, "Failed to commit transaction", "operation", op, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	r.logger.DebugContext(ctx, "Write committed", "operation", op)
	return nil
}

// mapConstraintError turns SQLite uniqueness violations into ErrDuplicate.
func mapConstraintError(subject string, err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w", subject, ErrDuplicate)
		}
	}
	return fmt.Errorf("failed to insert %s: %w", subject, err)
}
