package gen

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"rewards-pipeline/pkg/config"
)

var Module = fx.Module("snowflake",
	fx.Provide(NewNode),
)

func NewNode(cfg *config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
