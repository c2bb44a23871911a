package biz

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("biz",
	fx.Provide(NewSystemService),
	fx.Provide(NewAuthService),
	fx.Provide(NewActorService),
	fx.Provide(NewSessionService),
	fx.Provide(NewAssignmentService),
	fx.Provide(NewEntityService),
	fx.Provide(NewLinkService),
	fx.Provide(NewAccessService),
	fx.Invoke(func(lc fx.Lifecycle, svc *SystemService) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				svc.Stop()
				return nil
			},
		})
	}),
	fx.Invoke(func(lc fx.Lifecycle, svc *SessionService) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				svc.Stop()
				return nil
			},
		})
	}),
)
