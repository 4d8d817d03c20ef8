package discord

import (
	"github.com/foxseedlab/rockhype/internal/config"
	discordpkg "github.com/foxseedlab/rockhype/internal/discord"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (discordpkg.Publisher, error) {
		c := do.MustInvoke[*config.Config](i)
		if !c.DiscordEnabled() {
			return NopPublisher{}, nil
		}
		return NewClient(c.DiscordToken, c.DiscordChannelID)
	})
}
