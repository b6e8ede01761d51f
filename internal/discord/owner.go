package discord

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// maxListedGuilds caps getalldatabaseserver so the reply fits one message.
const maxListedGuilds = 50

type ownerCommand func(h *Handler, ctx context.Context, args []string) (string, string)

// ownerCommands edit the database directly.  Anyone but the configured
// owner gets the same silence as an unknown command.
var ownerCommands = map[string]ownerCommand{
	"addserver":            (*Handler).cmdAddServer,
	"removeserver":         (*Handler).cmdRemoveServer,
	"resetserver":          (*Handler).cmdResetServer,
	"getserver":            (*Handler).cmdGetServer,
	"getalldatabaseserver": (*Handler).cmdAllServers,
	"adduser":              (*Handler).cmdAddUser,
	"removeuser":           (*Handler).cmdRemoveUser,
	"addscore":             (*Handler).cmdAddScore,
	"deductscore":          (*Handler).cmdDeductScore,
}

func (h *Handler) isOwner(m *discordgo.Message) bool {
	if h.owner == 0 || m.Author == nil {
		return false
	}
	id, err := strconv.ParseUint(m.Author.ID, 10, 64)
	return err == nil && id == h.owner
}

// idArg parses args[0] as a snowflake.
func idArg(args []string, what string) (uint64, string, bool) {
	if len(args) == 0 {
		return 0, fmt.Sprintf("Enter a %s id.", what), false
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Sprintf("`%s` is not a %s id.", args[0], what), false
	}
	return id, "", true
}

// scoreArgs parses "<user id> <positive amount>".
func scoreArgs(args []string) (uint64, int64, string, bool) {
	id, msg, ok := idArg(args, "user")
	if !ok {
		return 0, 0, msg, false
	}
	if len(args) < 2 {
		return 0, 0, "Enter the score as well.", false
	}
	n, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || n < 1 {
		return 0, 0, fmt.Sprintf("`%s` is not a positive score.", args[1]), false
	}
	return id, n, "", true
}

/*──────────────────────────── servers ─────────────────────────────────────*/

func (h *Handler) cmdAddServer(ctx context.Context, args []string) (string, string) {
	id, msg, ok := idArg(args, "server")
	if !ok {
		return msg, outcomeInvalid
	}
	if !h.store.GuildInfo(ctx, id).IsEmpty() {
		return fmt.Sprintf("The server %d is already on the database.", id), outcomeInvalid
	}
	if !h.store.AddGuild(ctx, id) {
		return fmt.Sprintf("Could not add the server %d.", id), outcomeFailed
	}
	return fmt.Sprintf("The server %d was added to the database.", id), outcomeOK
}

func (h *Handler) cmdRemoveServer(ctx context.Context, args []string) (string, string) {
	id, msg, ok := idArg(args, "server")
	if !ok {
		return msg, outcomeInvalid
	}
	if h.store.GuildInfo(ctx, id).IsEmpty() {
		return fmt.Sprintf("Couldn't find a server with the id %d.", id), outcomeInvalid
	}
	if !h.settings.RemoveGuild(ctx, id) {
		return fmt.Sprintf("Could not remove the server %d.", id), outcomeFailed
	}
	return fmt.Sprintf("The server %d was removed from the database.", id), outcomeOK
}

func (h *Handler) cmdResetServer(ctx context.Context, args []string) (string, string) {
	id, msg, ok := idArg(args, "server")
	if !ok {
		return msg, outcomeInvalid
	}
	if h.store.GuildInfo(ctx, id).IsEmpty() {
		return fmt.Sprintf("Couldn't find a server with the id %d.", id), outcomeInvalid
	}
	if !h.store.RemoveAllPlaylists(ctx, id) {
		return fmt.Sprintf("Could not reset the server %d.", id), outcomeFailed
	}
	return fmt.Sprintf("The server %d was reset on the database.", id), outcomeOK
}

func (h *Handler) cmdGetServer(ctx context.Context, args []string) (string, string) {
	id, msg, ok := idArg(args, "server")
	if !ok {
		return msg, outcomeInvalid
	}
	g := h.store.GuildInfo(ctx, id)
	if g.IsEmpty() {
		return fmt.Sprintf("Couldn't find a server with the id %d.", id), outcomeInvalid
	}
	prefix := g.Prefix
	if prefix == "" {
		prefix = h.defaultPrefix + " (default)"
	}
	return fmt.Sprintf("Server %d: row %d, prefix `%s`, repeat %s.", g.GuildID, g.ID, prefix, onOff(g.RepeatEnabled)), outcomeOK
}

func (h *Handler) cmdAllServers(ctx context.Context, _ []string) (string, string) {
	var b strings.Builder
	n := 0
	for g := range h.store.AllGuilds(ctx) {
		n++
		if n <= maxListedGuilds {
			fmt.Fprintf(&b, "\n%d", g.GuildID)
		}
	}
	if n == 0 {
		return "There are no servers on the database.", outcomeOK
	}
	if n > maxListedGuilds {
		fmt.Fprintf(&b, "\n...and %d more", n-maxListedGuilds)
	}
	return fmt.Sprintf("Servers on the database (%d):%s", n, b.String()), outcomeOK
}

/*──────────────────────────── users ───────────────────────────────────────*/

func (h *Handler) cmdAddUser(ctx context.Context, args []string) (string, string) {
	id, msg, ok := idArg(args, "user")
	if !ok {
		return msg, outcomeInvalid
	}
	if !h.store.UserInfo(ctx, id).IsEmpty() {
		return fmt.Sprintf("The user %d is already on the database.", id), outcomeInvalid
	}
	if !h.store.AddUser(ctx, id) {
		return fmt.Sprintf("Could not add the user %d.", id), outcomeFailed
	}
	return fmt.Sprintf("The user %d was added to the database.", id), outcomeOK
}

func (h *Handler) cmdRemoveUser(ctx context.Context, args []string) (string, string) {
	id, msg, ok := idArg(args, "user")
	if !ok {
		return msg, outcomeInvalid
	}
	if h.store.UserInfo(ctx, id).IsEmpty() {
		return fmt.Sprintf("Couldn't find a user with the id %d.", id), outcomeInvalid
	}
	if !h.store.RemoveUser(ctx, id) {
		return fmt.Sprintf("Could not remove the user %d.", id), outcomeFailed
	}
	return fmt.Sprintf("The user %d was removed from the database.", id), outcomeOK
}

func (h *Handler) cmdAddScore(ctx context.Context, args []string) (string, string) {
	id, n, msg, ok := scoreArgs(args)
	if !ok {
		return msg, outcomeInvalid
	}
	return h.changeScore(ctx, id, n, fmt.Sprintf("Added %d to", n))
}

func (h *Handler) cmdDeductScore(ctx context.Context, args []string) (string, string) {
	id, n, msg, ok := scoreArgs(args)
	if !ok {
		return msg, outcomeInvalid
	}
	return h.changeScore(ctx, id, -n, fmt.Sprintf("Deducted %d from", n))
}

// changeScore applies delta to a user already on the database.  The store
// saturates instead of wrapping, so the reply shows the stored result.
func (h *Handler) changeScore(ctx context.Context, id uint64, delta int64, verb string) (string, string) {
	if h.store.UserInfo(ctx, id).IsEmpty() {
		return fmt.Sprintf("Couldn't find a user with the id %d.", id), outcomeInvalid
	}
	if !h.store.AddScore(ctx, id, delta) {
		return fmt.Sprintf("Could not change the score of user %d.", id), outcomeFailed
	}
	u := h.store.UserInfo(ctx, id)
	if u.IsEmpty() {
		return fmt.Sprintf("%s the user %d.", verb, id), outcomeOK
	}
	return fmt.Sprintf("%s the user %d, score is now %d.", verb, id, u.Score), outcomeOK
}
