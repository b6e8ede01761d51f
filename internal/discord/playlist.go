package discord

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

const (
	maxPlaylistName = 100 // playlists.name is VARCHAR(100)
	maxTrackURL     = 2048
	maxShownTracks  = 20
)

const playlistUsage = "Use `playlist list`, `playlist show <name>`, `playlist create <name>`, " +
	"`playlist add <name> <url>`, `playlist remove <name> <number>` or `playlist delete <name>`."

// cmdPlaylist manages the guild's saved playlists.  Reading is open to
// everyone; changes need Manage Server.
func (h *Handler) cmdPlaylist(ctx context.Context, s Session, m *discordgo.Message, gid uint64, args []string) (string, string) {
	sub := "list"
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
		args = args[1:]
	}

	switch sub {
	case "list":
		return h.playlistList(ctx, gid)
	case "show":
		return h.playlistShow(ctx, gid, args)
	case "create", "add", "remove", "delete":
	default:
		return playlistUsage, outcomeInvalid
	}

	if !h.canManage(s, m) {
		return "You need the Manage Server permission to change playlists.", outcomeDenied
	}
	switch sub {
	case "create":
		return h.playlistCreate(ctx, gid, args)
	case "add":
		return h.playlistAdd(ctx, gid, args)
	case "remove":
		return h.playlistRemove(ctx, gid, args)
	default:
		return h.playlistDelete(ctx, gid, args)
	}
}

func playlistName(args []string) (string, string, bool) {
	if len(args) == 0 {
		return "", "Enter a playlist name.", false
	}
	if utf8.RuneCountInString(args[0]) > maxPlaylistName {
		return "", fmt.Sprintf("A playlist name can be at most %d characters long.", maxPlaylistName), false
	}
	return args[0], "", true
}

func (h *Handler) playlistList(ctx context.Context, gid uint64) (string, string) {
	var names []string
	for p := range h.store.Playlists(ctx, gid) {
		names = append(names, "`"+p.Name+"`")
	}
	if len(names) == 0 {
		return "This server has no playlists.", outcomeOK
	}
	return "Playlists: " + strings.Join(names, ", "), outcomeOK
}

func (h *Handler) playlistShow(ctx context.Context, gid uint64, args []string) (string, string) {
	name, msg, ok := playlistName(args)
	if !ok {
		return msg, outcomeInvalid
	}
	id := h.store.PlaylistID(ctx, gid, name)
	if id < 0 {
		return fmt.Sprintf("There is no playlist named `%s`.", name), outcomeInvalid
	}

	var b strings.Builder
	n := 0
	for u := range h.store.PlaylistTracks(ctx, id) {
		if n == maxShownTracks {
			b.WriteString("\n...")
			break
		}
		n++
		fmt.Fprintf(&b, "\n%d. <%s>", n, u)
	}
	if n == 0 {
		return fmt.Sprintf("`%s` is empty.", name), outcomeOK
	}
	return fmt.Sprintf("`%s`:%s", name, b.String()), outcomeOK
}

func (h *Handler) playlistCreate(ctx context.Context, gid uint64, args []string) (string, string) {
	name, msg, ok := playlistName(args)
	if !ok {
		return msg, outcomeInvalid
	}
	if h.store.PlaylistID(ctx, gid, name) >= 0 {
		return fmt.Sprintf("A playlist named `%s` already exists.", name), outcomeInvalid
	}
	if !h.store.AddPlaylist(ctx, gid, name) {
		return "Could not create the playlist, try again later.", outcomeFailed
	}
	return fmt.Sprintf("Created playlist `%s`.", name), outcomeOK
}

func (h *Handler) playlistAdd(ctx context.Context, gid uint64, args []string) (string, string) {
	name, msg, ok := playlistName(args)
	if !ok {
		return msg, outcomeInvalid
	}
	if len(args) < 2 || !validTrackURL(args[1]) {
		return "Enter an http or https link to add.", outcomeInvalid
	}
	if h.store.PlaylistID(ctx, gid, name) < 0 {
		return fmt.Sprintf("There is no playlist named `%s`.", name), outcomeInvalid
	}
	if !h.store.AddTrackToPlaylist(ctx, gid, name, args[1]) {
		return "Could not add the track, try again later.", outcomeFailed
	}
	return fmt.Sprintf("Added the track to `%s`.", name), outcomeOK
}

// playlistRemove takes the 1-based number shown by playlist show.
func (h *Handler) playlistRemove(ctx context.Context, gid uint64, args []string) (string, string) {
	name, msg, ok := playlistName(args)
	if !ok {
		return msg, outcomeInvalid
	}
	if len(args) < 2 {
		return "Enter the number of the track to remove.", outcomeInvalid
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 1 {
		return fmt.Sprintf("`%s` is not a track number.", args[1]), outcomeInvalid
	}
	id := h.store.PlaylistID(ctx, gid, name)
	if id < 0 {
		return fmt.Sprintf("There is no playlist named `%s`.", name), outcomeInvalid
	}
	if !h.store.RemoveTrackFromPlaylist(ctx, id, n-1) {
		return fmt.Sprintf("`%s` has no track %d.", name, n), outcomeInvalid
	}
	return fmt.Sprintf("Removed track %d from `%s`.", n, name), outcomeOK
}

func (h *Handler) playlistDelete(ctx context.Context, gid uint64, args []string) (string, string) {
	name, msg, ok := playlistName(args)
	if !ok {
		return msg, outcomeInvalid
	}
	if h.store.PlaylistID(ctx, gid, name) < 0 {
		return fmt.Sprintf("There is no playlist named `%s`.", name), outcomeInvalid
	}
	if !h.store.RemovePlaylist(ctx, gid, name) {
		return "Could not delete the playlist, try again later.", outcomeFailed
	}
	return fmt.Sprintf("Deleted playlist `%s`.", name), outcomeOK
}

func validTrackURL(raw string) bool {
	if len(raw) > maxTrackURL {
		return false
	}
	u, err := url.ParseRequestURI(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
