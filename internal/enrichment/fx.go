package enrichment

import (
	"github.com/smallbiznis/enrich/internal/enrichment/repository"
	"github.com/smallbiznis/enrich/internal/enrichment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("enrichment",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
