package api

import (
	"go.uber.org/fx"
)

var Module = fx.Module("api",
	fx.Provide(NewSystemHandlers),
	fx.Provide(NewAuthHandlers),
	fx.Provide(NewActorHandlers),
	fx.Provide(NewSessionHandlers),
	fx.Provide(NewEntityHandlers),
	fx.Provide(NewLinkHandlers),
	fx.Provide(NewAssignmentHandlers),
	fx.Provide(NewAccessHandlers),
)
