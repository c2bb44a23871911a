package server

import (
	"github.com/gin-contrib/cors"
	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/contexts"
	"github.com/keeldata/trustvault/internal/server/api"
	"github.com/keeldata/trustvault/internal/server/biz"
	"github.com/keeldata/trustvault/internal/server/middleware"
)

type Handlers struct {
	fx.In

	System     *api.SystemHandlers
	Auth       *api.AuthHandlers
	Actor      *api.ActorHandlers
	Session    *api.SessionHandlers
	Entity     *api.EntityHandlers
	Link       *api.LinkHandlers
	Assignment *api.AssignmentHandlers
	Access     *api.AccessHandlers
}

type Services struct {
	fx.In

	SessionService *biz.SessionService
	AccessService  *biz.AccessService
}

func SetupRoutes(server *Server, handlers Handlers, services Services) {
	server.Use(middleware.AccessLog())
	server.Use(middleware.WithLoggingTracing(server.Config.Trace))
	server.Use(middleware.WithMetrics())

	// Setup CORS middleware at server level if enabled
	if server.Config.CORS.Enabled {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = server.Config.CORS.AllowedOrigins
		corsConfig.AllowMethods = server.Config.CORS.AllowedMethods
		corsConfig.AllowHeaders = server.Config.CORS.AllowedHeaders
		corsConfig.ExposeHeaders = server.Config.CORS.ExposedHeaders
		corsConfig.AllowCredentials = server.Config.CORS.AllowCredentials
		corsConfig.MaxAge = server.Config.CORS.MaxAge

		corsHandler := cors.New(corsConfig)
		server.Use(corsHandler)
		server.OPTIONS("*any", corsHandler)
	}

	publicGroup := server.Group("", middleware.WithTimeout(server.Config.RequestTimeout))
	{
		// Health check endpoint - no authentication required
		publicGroup.GET("/health", handlers.System.Health)
	}

	unSecureAdminGroup := server.Group("/admin", middleware.WithTimeout(server.Config.RequestTimeout))
	{
		// System Status and Initialize - DO NOT AUTH
		unSecureAdminGroup.GET("/system/status", handlers.System.GetSystemStatus)
		unSecureAdminGroup.POST("/system/initialize", handlers.System.InitializeSystem)
		// Actor sign-in - DO NOT AUTH
		unSecureAdminGroup.POST("/auth/signin", handlers.Auth.SignIn)
	}

	adminGroup := server.Group("/admin",
		middleware.WithTimeout(server.Config.RequestTimeout),
		middleware.WithSessionAuth(services.SessionService),
	)
	{
		adminGroup.POST("/auth/step-up", handlers.Auth.StepUp)

		adminGroup.POST("/actors", handlers.Actor.RegisterActor)
		adminGroup.GET("/actors", handlers.Actor.LookupActor)
		adminGroup.GET("/actors/:key", handlers.Actor.GetActor)

		adminGroup.POST("/tenants", handlers.Entity.EnsureTenant)
		adminGroup.GET("/tenants/:slug", handlers.Entity.GetTenant)

		adminGroup.GET("/sessions", handlers.Session.ListSessions)
		adminGroup.GET("/sessions/:digest", handlers.Session.GetSession)
		adminGroup.DELETE("/sessions/:digest", handlers.Session.RevokeSession)

		adminGroup.POST("/assignments", handlers.Assignment.GrantAssignment)
		adminGroup.GET("/assignments/:actorKey", handlers.Assignment.GetAssignment)
		adminGroup.DELETE("/assignments/:actorKey", handlers.Assignment.RevokeAssignment)
	}

	dataGroup := server.Group("/data",
		middleware.WithTimeout(server.Config.RequestTimeout),
		middleware.WithSessionAuth(services.SessionService),
		middleware.WithSource(contexts.SourceAPI),
	)

	// Authorize answers without performing, so it bypasses the decision gate.
	dataGroup.POST("/authorize", handlers.Access.Authorize)

	guardedGroup := dataGroup.Group("", middleware.WithDecision(services.AccessService, services.SessionService))
	{
		guardedGroup.POST("/entities", handlers.Entity.EnsureEntity)
		guardedGroup.GET("/entities/:kind/:key", handlers.Entity.GetEntity)
		guardedGroup.PUT("/entities/:kind/:key/payload", handlers.Entity.PutPayload)
		guardedGroup.PATCH("/entities/:kind/:key/payload", handlers.Entity.PatchPayload)
		guardedGroup.GET("/entities/:kind/:key/payload", handlers.Entity.GetPayload)
		guardedGroup.GET("/entities/:kind/:key/history", handlers.Entity.GetHistory)

		guardedGroup.POST("/links", handlers.Link.EnsureLink)
		guardedGroup.GET("/links", handlers.Link.ListLinks)
		guardedGroup.GET("/links/:key", handlers.Link.GetLink)
		guardedGroup.PUT("/links/:key/payload", handlers.Link.PutLinkPayload)
		guardedGroup.GET("/links/:key/payload", handlers.Link.GetLinkPayload)
		guardedGroup.GET("/links/:key/history", handlers.Link.GetLinkHistory)
	}
}
