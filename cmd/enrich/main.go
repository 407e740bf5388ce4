package main

import (
	"github.com/smallbiznis/enrich/internal/clock"
	"github.com/smallbiznis/enrich/internal/config"
	"github.com/smallbiznis/enrich/internal/identifier"
	"github.com/smallbiznis/enrich/internal/migration"
	"github.com/smallbiznis/enrich/internal/observability"
	"github.com/smallbiznis/enrich/internal/scheduler"
	"github.com/smallbiznis/enrich/internal/server"
	"github.com/smallbiznis/enrich/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		identifier.Module,
		migration.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}
