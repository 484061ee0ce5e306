package database

import (
	"context"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/database/models"
)

// CallLogRepository records call history. The call engine only writes;
// reads serve the admin API. Write failures must never surface to a
// caller in progress, so the engine logs and continues on error.
type CallLogRepository interface {
	// Log inserts a new call log row when a call is established.
	Log(ctx context.Context, log *models.CallLog) error

	// Finalize stamps the end time, duration and final status of a call.
	Finalize(ctx context.Context, callID, status string) error

	GetByCallID(ctx context.Context, callID string) (*models.CallLog, error)
	ListRecent(ctx context.Context, limit int) ([]models.CallLog, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
	CountSince(ctx context.Context, since string) (int, error)
}

// MenuRepository provides read-only access to IVR menu configuration.
type MenuRepository interface {
	// GetMenu returns the menu definition, or nil if absent.
	GetMenu(ctx context.Context, menuID string) (*models.IVRMenu, error)

	// GetOption returns the option for (menu, digit), or nil if absent.
	GetOption(ctx context.Context, menuID, digit string) (*models.MenuOption, error)

	ListMenus(ctx context.Context) ([]models.IVRMenu, error)
}

// AgentRepository manages the transfer-destination directory.
type AgentRepository interface {
	List(ctx context.Context) ([]models.Agent, error)
	GetByExtension(ctx context.Context, extension string) (*models.Agent, error)
	SetStatus(ctx context.Context, extension, status string) error
	CountByStatus(ctx context.Context, status string) (int, error)
}
