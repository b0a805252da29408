//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/boardsync/internal/config"
)

func InitializeDeployment(cfg *config.Config) (*Deployment, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideHub,
		ProvideAPI,
		ProvideServer,
		wire.Struct(new(Deployment), "*"),
	)
	return nil, nil, nil
}
