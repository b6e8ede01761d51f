package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Intents the bot needs: guild lifecycle plus message content for prefix
// commands.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent

// Bot owns the gateway session.
type Bot struct {
	Session *discordgo.Session
	log     *zap.SugaredLogger
	remove  []func()
}

// NewBot creates a session for token and registers h's handlers.  The
// session is not opened yet.
func NewBot(token string, h *Handler, log *zap.SugaredLogger) (*Bot, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = Intents

	b := &Bot{Session: s, log: log}
	b.remove = append(b.remove,
		s.AddHandler(h.OnGuildCreate),
		s.AddHandler(h.OnGuildDelete),
		s.AddHandler(h.OnMessageCreate),
		s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			log.Infow("discord session ready", "user", r.User.Username, "guilds", len(r.Guilds))
		}),
	)
	return b, nil
}

// Open connects to the gateway.
func (b *Bot) Open() error {
	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	b.log.Infow("discord session open")
	return nil
}

// Close unregisters handlers and disconnects.
func (b *Bot) Close() error {
	for _, rm := range b.remove {
		rm()
	}
	b.remove = nil
	if err := b.Session.Close(); err != nil {
		return fmt.Errorf("close discord session: %w", err)
	}
	b.log.Infow("discord session closed")
	return nil
}
