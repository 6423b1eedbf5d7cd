package interfaces

import "vertbot/internal/types"

type GuildStore interface {
	LoadGuildConfigs() (map[string]types.GuildConfig, error)
}
