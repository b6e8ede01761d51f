package discord

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/yanizio/moby/internal/store"
)

// Command outcomes for metrics.Commands.
const (
	outcomeOK      = "ok"
	outcomeDenied  = "denied"
	outcomeInvalid = "invalid"
	outcomeFailed  = "failed"
	outcomeUnknown = "unknown"
)

type invocation struct {
	name string
	args []string
}

// parseInvocation splits "<prefix>name arg..." into its parts.
func parseInvocation(content, prefix string) (invocation, bool) {
	rest, ok := strings.CutPrefix(content, prefix)
	if !ok {
		return invocation{}, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return invocation{}, false
	}
	return invocation{name: strings.ToLower(fields[0]), args: fields[1:]}, true
}

// run executes one command and returns the reply and its outcome label.
func (h *Handler) run(ctx context.Context, s Session, m *discordgo.Message, gid uint64, inv invocation) (string, string) {
	switch inv.name {
	case "ping":
		return h.cmdPing(ctx)
	case "prefix":
		return h.cmdPrefix(ctx, s, m, gid, inv.args)
	case "repeat":
		return h.cmdRepeat(ctx, s, m, gid, inv.args)
	case "score":
		return h.cmdScore(ctx, m)
	case "fact":
		return h.cmdFact(ctx)
	case "playlist":
		return h.cmdPlaylist(ctx, s, m, gid, inv.args)
	}
	if cmd, ok := ownerCommands[inv.name]; ok && h.isOwner(m) {
		return cmd(h, ctx, inv.args)
	}
	return "", outcomeUnknown
}

func (h *Handler) cmdPing(ctx context.Context) (string, string) {
	d := h.store.Ping(ctx)
	if d == store.Unreachable {
		return "Pong! The database is unreachable.", outcomeFailed
	}
	return fmt.Sprintf("Pong! Database answered in %s.", d.Round(100*time.Microsecond)), outcomeOK
}

func (h *Handler) cmdPrefix(ctx context.Context, s Session, m *discordgo.Message, gid uint64, args []string) (string, string) {
	if len(args) == 0 {
		p := h.settings.PrefixOr(ctx, gid, h.defaultPrefix)
		return fmt.Sprintf("The prefix here is `%s`.", p), outcomeOK
	}
	if !h.canManage(s, m) {
		return "You need the Manage Server permission to change the prefix.", outcomeDenied
	}

	value := args[0]
	if strings.EqualFold(value, "reset") {
		value = ""
	} else if _, err := store.NewPrefix(value); err != nil {
		return fmt.Sprintf("A prefix must be %d to %d characters long.", store.MinPrefixLen, store.MaxPrefixLen), outcomeInvalid
	}

	if !h.settings.SetPrefix(ctx, gid, value) {
		return "Could not save the prefix, try again later.", outcomeFailed
	}
	if value == "" {
		return fmt.Sprintf("Prefix reset to `%s`.", h.defaultPrefix), outcomeOK
	}
	return fmt.Sprintf("Prefix set to `%s`.", value), outcomeOK
}

func (h *Handler) cmdRepeat(ctx context.Context, s Session, m *discordgo.Message, gid uint64, args []string) (string, string) {
	if len(args) == 0 {
		return "Repeat is " + onOff(h.settings.Repeat(ctx, gid)) + ".", outcomeOK
	}
	if !h.canManage(s, m) {
		return "You need the Manage Server permission to change repeat.", outcomeDenied
	}

	var enabled bool
	switch strings.ToLower(args[0]) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return "Use `repeat on` or `repeat off`.", outcomeInvalid
	}
	if !h.settings.SetRepeat(ctx, gid, enabled) {
		return "Could not save the repeat setting, try again later.", outcomeFailed
	}
	return "Repeat is now " + onOff(enabled) + ".", outcomeOK
}

func (h *Handler) cmdScore(ctx context.Context, m *discordgo.Message) (string, string) {
	uid, err := strconv.ParseUint(m.Author.ID, 10, 64)
	if err != nil {
		return "", outcomeInvalid
	}
	u := h.store.UserInfo(ctx, uid)
	if u.IsEmpty() {
		return "You have no score yet.", outcomeOK
	}
	return fmt.Sprintf("Your score is %d.", u.Score), outcomeOK
}

func (h *Handler) cmdFact(ctx context.Context) (string, string) {
	if h.facts == nil {
		return "The fact of the day is not configured.", outcomeFailed
	}
	text, err := h.facts.Today(ctx)
	switch {
	case err == nil:
		return "📖 Fact of the day: " + text, outcomeOK
	case text != "":
		h.log.Warnw("serving stale fact of the day", "err", err)
		return "📖 Fact of the day: " + text, outcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return "The fact service is slow right now, try again later.", outcomeFailed
	default:
		h.log.Warnw("fact of the day unavailable", "err", err)
		return "No fact today, try again later.", outcomeFailed
	}
}

// canManage reports whether the author holds Manage Server or
// Administrator in the message's channel.
func (h *Handler) canManage(s Session, m *discordgo.Message) bool {
	perms, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID)
	if err != nil {
		h.log.Warnw("failed to read permissions", "user_id", m.Author.ID, "channel_id", m.ChannelID, "err", err)
		return false
	}
	return perms&(discordgo.PermissionManageGuild|discordgo.PermissionAdministrator) != 0
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
