package discord

import (
	"context"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap/zapcore"

	"github.com/yanizio/moby/internal/logger"
)

const (
	// maxPost keeps a log post under Discord's 2000-character limit once
	// wrapped in a code block.
	maxPost = 1900
	// logQueue is how many posts may wait for the session before new
	// ones are dropped.
	logQueue = 64
)

// Poster sends one message to a channel.  *discordgo.Session satisfies it
// through ChannelMessageSend.
type Poster interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// ChannelCore is a zapcore.Core that mirrors entries to a Discord channel.
// Entries are queued until Run is given a session, and dropped when the
// queue is full so logging never blocks on Discord.
type ChannelCore struct {
	zapcore.LevelEnabler
	enc   zapcore.Encoder
	queue chan string
	drops *dropCounter
}

type dropCounter struct {
	mu sync.Mutex
	n  int
}

func (d *dropCounter) inc() {
	d.mu.Lock()
	d.n++
	d.mu.Unlock()
}

func (d *dropCounter) take() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.n
	d.n = 0
	return n
}

// NewChannelCore returns a core that accepts entries at lvl and above.
func NewChannelCore(lvl zapcore.LevelEnabler) *ChannelCore {
	cfg := logger.EncoderConfig()
	cfg.TimeKey = ""
	cfg.CallerKey = ""
	return &ChannelCore{
		LevelEnabler: lvl,
		enc:          zapcore.NewConsoleEncoder(cfg),
		queue:        make(chan string, logQueue),
		drops:        &dropCounter{},
	}
}

// With implements zapcore.Core.
func (c *ChannelCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.enc = c.enc.Clone()
	for _, f := range fields {
		f.AddTo(clone.enc)
	}
	return &clone
}

// Check implements zapcore.Core.
func (c *ChannelCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write implements zapcore.Core.
func (c *ChannelCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	msg := buf.String()
	buf.Free()

	msg = truncate(msg, maxPost)
	select {
	case c.queue <- "```\n" + msg + "```":
	default:
		c.drops.inc()
	}
	return nil
}

// Sync implements zapcore.Core.
func (c *ChannelCore) Sync() error { return nil }

// Run posts queued entries to channelID until ctx ends.
func (c *ChannelCore) Run(ctx context.Context, p Poster, channelID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.queue:
			if n := c.drops.take(); n > 0 {
				_, _ = p.ChannelMessageSend(channelID, dropNotice(n))
			}
			// Never log here; the entry would come back through this core.
			_, _ = p.ChannelMessageSend(channelID, msg)
		}
	}
}

// truncate cuts s to at most n bytes on a rune boundary and marks the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func dropNotice(n int) string {
	if n == 1 {
		return "(1 log entry dropped)"
	}
	return "(" + strconv.Itoa(n) + " log entries dropped)"
}
