package merchantcache

import (
	"github.com/smallbiznis/enrich/internal/merchantcache/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("merchantcache",
	fx.Provide(repository.Provide),
)
