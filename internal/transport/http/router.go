package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/bloodbank/internal/access"
	"github.com/ErlanBelekov/bloodbank/internal/domain"
	"github.com/ErlanBelekov/bloodbank/internal/health"
	"github.com/ErlanBelekov/bloodbank/internal/transport/http/handler"
	"github.com/ErlanBelekov/bloodbank/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

// Policies per route group.
var (
	adminOnly      = middleware.Require(access.Roles(domain.RoleAdmin), "")
	selfOrAdmin    = middleware.Require(access.SelfOrAdmin(), "id")
	authenticated  = middleware.Require(access.Authenticated(), "")
	stockKeepers   = middleware.Require(access.Roles(domain.RoleAdmin, domain.RoleTechnician, domain.RoleNurse), "")
	dispensers     = middleware.Require(access.Roles(domain.RoleAdmin, domain.RoleDoctor, domain.RoleNurse), "")
	expiryManagers = middleware.Require(access.Roles(domain.RoleAdmin, domain.RoleTechnician), "")
)

type Handlers struct {
	Auth      *handler.AuthHandler
	Users     *handler.UserHandler
	Inventory *handler.InventoryHandler
	Checker   *health.Checker
}

// NewRouter builds the API. authenticate is the access filter; it runs on
// every request and only binds a principal, routes enforce their own policy.
func NewRouter(logger *slog.Logger, authenticate gin.HandlerFunc, h Handlers, hsts bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security(hsts))
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())
	r.Use(authenticate)

	r.GET("/health", handler.Health(h.Checker))

	meta := r.Group("/meta")
	meta.GET("/roles", handler.Roles)
	meta.GET("/blood-types", handler.BloodTypes)

	auth := r.Group("/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/verify", h.Auth.Verify)

	users := r.Group("/users")
	users.GET("", adminOnly, h.Users.List)
	users.GET("/stats", adminOnly, h.Users.Stats)
	users.POST("/bulk-activate", adminOnly, h.Users.BulkActivate)
	users.POST("/bulk-deactivate", adminOnly, h.Users.BulkDeactivate)
	users.PUT("/:id/activate", adminOnly, h.Users.Activate)
	users.PUT("/:id/deactivate", adminOnly, h.Users.Deactivate)
	users.DELETE("/:id", adminOnly, h.Users.Deactivate)

	users.GET("/profile", authenticated, h.Users.Profile)
	users.PUT("/profile", authenticated, h.Users.UpdateProfile)
	users.PUT("/password", authenticated, h.Users.ChangeOwnPassword)
	users.GET("/donors", authenticated, h.Users.Donors)
	users.GET("/donors/:bloodType", authenticated, h.Users.Donors)
	users.GET("/search", authenticated, h.Users.Search)
	users.POST("/search", authenticated, h.Users.SearchAdvanced)
	users.GET("/validate-username/:username", authenticated, h.Users.ValidateUsername)
	users.GET("/validate-email/:email", authenticated, h.Users.ValidateEmail)

	users.GET("/:id", selfOrAdmin, h.Users.Get)
	users.PUT("/:id", selfOrAdmin, h.Users.Update)
	users.PUT("/:id/password", selfOrAdmin, h.Users.ChangePassword)

	inv := r.Group("/inventory")
	inv.GET("", authenticated, h.Inventory.List)
	inv.GET("/available", authenticated, h.Inventory.Available)
	inv.GET("/type/:bloodType", authenticated, h.Inventory.ByType)
	inv.GET("/total/:bloodType", authenticated, h.Inventory.Total)
	inv.GET("/expired", expiryManagers, h.Inventory.Expired)
	inv.POST("/sweep", expiryManagers, h.Inventory.Sweep)
	inv.POST("/add", stockKeepers, h.Inventory.Add)
	inv.GET("/:id", authenticated, h.Inventory.Get)
	inv.PUT("/:id", stockKeepers, h.Inventory.Update)
	inv.POST("/:id/remove", dispensers, h.Inventory.Remove)

	return r
}
