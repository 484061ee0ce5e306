package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/database/models"
)

// menuRepo implements MenuRepository.
type menuRepo struct {
	db *DB
}

// NewMenuRepository creates a new MenuRepository.
func NewMenuRepository(db *DB) MenuRepository {
	return &menuRepo{db: db}
}

// GetMenu returns a menu definition, or nil if absent.
func (r *menuRepo) GetMenu(ctx context.Context, menuID string) (*models.IVRMenu, error) {
	var m models.IVRMenu
	err := r.db.QueryRowContext(ctx,
		`SELECT menu_id, name, welcome_message, greeting_file
		 FROM ivr_menus WHERE menu_id = ?`, menuID,
	).Scan(&m.MenuID, &m.Name, &m.WelcomeMessage, &m.GreetingFile)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning ivr menu: %w", err)
	}
	return &m, nil
}

// GetOption returns the option for (menu, digit), or nil if absent.
func (r *menuRepo) GetOption(ctx context.Context, menuID, digit string) (*models.MenuOption, error) {
	var o models.MenuOption
	err := r.db.QueryRowContext(ctx,
		`SELECT menu_id, digit, action_type, action_value
		 FROM ivr_menu_options WHERE menu_id = ? AND digit = ?`, menuID, digit,
	).Scan(&o.MenuID, &o.Digit, &o.ActionType, &o.ActionValue)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning menu option: %w", err)
	}
	return &o, nil
}

// ListMenus returns all menu definitions.
func (r *menuRepo) ListMenus(ctx context.Context) ([]models.IVRMenu, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT menu_id, name, welcome_message, greeting_file
		 FROM ivr_menus ORDER BY menu_id`)
	if err != nil {
		return nil, fmt.Errorf("listing ivr menus: %w", err)
	}
	defer rows.Close()

	var menus []models.IVRMenu
	for rows.Next() {
		var m models.IVRMenu
		if err := rows.Scan(&m.MenuID, &m.Name, &m.WelcomeMessage, &m.GreetingFile); err != nil {
			return nil, fmt.Errorf("scanning ivr menu row: %w", err)
		}
		menus = append(menus, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ivr menu rows: %w", err)
	}

	return menus, nil
}
