//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/Rox-Lvmaohua/qrsignature/internal/app"
	"github.com/Rox-Lvmaohua/qrsignature/internal/service"
)

func InitializeApp() (*app.App, error) {
	panic(wire.Build(
		ConfigSet,
		ObservabilitySet,
		RuntimeInfraSet,
		RepositorySet,
		SecuritySet,
		ServiceSet,
		HTTPSet,
		AppSet,
	))
}

func InitializeSignService() (service.SignServiceInterface, error) {
	panic(wire.Build(
		ConfigSet,
		ObservabilitySet,
		RuntimeInfraSet,
		RepositorySet,
		SecuritySet,
		ServiceSet,
	))
}

func InitializeMigrationRunner() (*MigrationRunner, error) {
	panic(wire.Build(
		ConfigSet,
		ObservabilitySet,
		provideOpenDB,
		NewMigrationRunner,
	))
}
