// Package discord connects the store to the Discord gateway.
//
// Guild lifecycle events keep the guilds table in step with the servers
// the bot is in, and a small prefix-command layer exposes the stored
// settings.  Handlers take the narrow Session interface instead of
// *discordgo.Session so they run against fakes in tests.
package discord

import (
	"context"
	"iter"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/yanizio/moby/internal/metrics"
	"github.com/yanizio/moby/internal/store"
)

// DefaultTimeout bounds the work done for one gateway event.
const DefaultTimeout = 10 * time.Second

// Session is the outbound half of *discordgo.Session that handlers use.
type Session interface {
	Poster
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
}

// Store is the part of the store the handlers call directly.  Guild
// removal and settings go through Settings so the cache stays in step.
type Store interface {
	GuildInfo(ctx context.Context, guildID uint64) store.GuildRecord
	AddGuild(ctx context.Context, guildID uint64) bool
	AllGuilds(ctx context.Context) iter.Seq[store.GuildRecord]

	UserInfo(ctx context.Context, userID uint64) store.UserRecord
	AddUser(ctx context.Context, userID uint64) bool
	RemoveUser(ctx context.Context, userID uint64) bool
	AddScore(ctx context.Context, userID uint64, delta int64) bool

	PlaylistID(ctx context.Context, guildID uint64, name string) int64
	Playlists(ctx context.Context, guildID uint64) iter.Seq[store.PlaylistRecord]
	PlaylistTracks(ctx context.Context, playlistID int64) iter.Seq[string]
	AddPlaylist(ctx context.Context, guildID uint64, name string) bool
	AddTrackToPlaylist(ctx context.Context, guildID uint64, name, trackURL string) bool
	RemoveTrackFromPlaylist(ctx context.Context, playlistID int64, position int) bool
	RemovePlaylist(ctx context.Context, guildID uint64, name string) bool
	RemoveAllPlaylists(ctx context.Context, guildID uint64) bool

	Ping(ctx context.Context) time.Duration
}

// Settings is the cached guild settings layer.
type Settings interface {
	PrefixOr(ctx context.Context, guildID uint64, def string) string
	SetPrefix(ctx context.Context, guildID uint64, prefix string) bool
	Repeat(ctx context.Context, guildID uint64) bool
	SetRepeat(ctx context.Context, guildID uint64, enabled bool) bool
	RemoveGuild(ctx context.Context, guildID uint64) bool
}

// Facts supplies the fact of the day.
type Facts interface {
	Today(ctx context.Context) (string, error)
}

// Handler reacts to gateway events.  Safe for concurrent use.
type Handler struct {
	store         Store
	settings      Settings
	facts         Facts
	defaultPrefix string
	owner         uint64
	timeout       time.Duration
	log           *zap.SugaredLogger
}

// NewHandler returns a Handler.  facts may be nil, which disables the
// fact command.
func NewHandler(st Store, set Settings, facts Facts, defaultPrefix string, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if defaultPrefix == "" {
		defaultPrefix = "!"
	}
	return &Handler{
		store:         st,
		settings:      set,
		facts:         facts,
		defaultPrefix: defaultPrefix,
		timeout:       DefaultTimeout,
		log:           log,
	}
}

// SetOwner allows userID to run the database admin commands.  Zero, the
// default, disables them.  Call it before the session is opened.
func (h *Handler) SetOwner(userID uint64) { h.owner = userID }

/*──────────────────────────── guild lifecycle ─────────────────────────────*/

// OnGuildCreate records a guild the first time the bot sees it.  The
// gateway replays GuildCreate for every guild on each reconnect, so known
// guilds are left alone.
func (h *Handler) OnGuildCreate(_ *discordgo.Session, e *discordgo.GuildCreate) {
	if e.Guild == nil {
		return
	}
	h.guildCreate(e.Guild)
}

func (h *Handler) guildCreate(g *discordgo.Guild) {
	metrics.DiscordEvents.WithLabelValues("guild_create").Inc()
	if g.Unavailable {
		return
	}
	id, ok := h.snowflake("guild_id", g.ID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if !h.store.GuildInfo(ctx, id).IsEmpty() {
		return
	}
	if h.store.AddGuild(ctx, id) {
		h.log.Infow("guild joined", "guild_id", id, "name", g.Name)
	}
}

// OnGuildDelete forgets a guild the bot was removed from.  Outages also
// arrive as GuildDelete, flagged Unavailable, and are ignored.
func (h *Handler) OnGuildDelete(_ *discordgo.Session, e *discordgo.GuildDelete) {
	if e.Guild == nil {
		return
	}
	h.guildDelete(e.Guild)
}

func (h *Handler) guildDelete(g *discordgo.Guild) {
	metrics.DiscordEvents.WithLabelValues("guild_delete").Inc()
	if g.Unavailable {
		h.log.Warnw("guild unavailable", "guild_id", g.ID)
		return
	}
	id, ok := h.snowflake("guild_id", g.ID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if h.settings.RemoveGuild(ctx, id) {
		h.log.Infow("guild left", "guild_id", id)
	}
}

/*──────────────────────────── messages ────────────────────────────────────*/

// OnMessageCreate dispatches prefix commands.
func (h *Handler) OnMessageCreate(s *discordgo.Session, e *discordgo.MessageCreate) {
	if e.Message == nil {
		return
	}
	h.handleMessage(s, e.Message)
}

func (h *Handler) handleMessage(s Session, m *discordgo.Message) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	gid, ok := h.snowflake("guild_id", m.GuildID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	prefix := h.settings.PrefixOr(ctx, gid, h.defaultPrefix)
	inv, ok := parseInvocation(m.Content, prefix)
	if !ok {
		return
	}
	metrics.DiscordEvents.WithLabelValues("command").Inc()

	reply, outcome := h.run(ctx, s, m, gid, inv)
	// Unknown names are user input; one shared label keeps the series bounded.
	label := inv.name
	if outcome == outcomeUnknown {
		label = outcomeUnknown
	}
	metrics.Commands.WithLabelValues(label, outcome).Inc()
	if reply == "" {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
		h.log.Warnw("failed to send reply", "channel_id", m.ChannelID, "command", inv.name, "err", err)
	}
}

func (h *Handler) snowflake(field, raw string) (uint64, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		h.log.Warnw("malformed snowflake", field, raw, "err", err)
		return 0, false
	}
	return id, true
}
