package bot

import (
	"errors"
	"fmt"
	"strings"

	"hatsubai/internal/scheduler"
	"hatsubai/internal/util"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
)

const (
	msgBusy = "⏳ A release check is already running, please wait."
	msgPong = "Pong!"
)

// replier is the part of *discordgo.Session used to answer commands.
type replier interface {
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

func (b *Bot) handleMessage(r replier, m *discordgo.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Printf("%s %s command handler panicked: %v", util.RedBold("!!! ERROR"), util.Cyan("[DISCORD]"), rec)
		}
	}()

	if m == nil || m.Author == nil || m.Author.Bot {
		return
	}
	if b.guildID != "" && m.GuildID != b.guildID {
		return
	}
	command, ok := b.parseCommand(m.Content)
	if !ok {
		return
	}

	switch command {
	case "check":
		b.cmdCheck(r, m)
	case "stats":
		b.reply(r, m, b.statsText())
	case "ping":
		b.reply(r, m, msgPong)
	}
}

// parseCommand returns the lowercased command word after the prefix.
func (b *Bot) parseCommand(content string) (string, bool) {
	if b.prefix == "" || !strings.HasPrefix(content, b.prefix) {
		return "", false
	}
	fields := strings.Fields(strings.TrimPrefix(content, b.prefix))
	if len(fields) == 0 {
		return "", false
	}
	return strings.ToLower(fields[0]), true
}

func (b *Bot) cmdCheck(r replier, m *discordgo.Message) {
	res, err := b.scanner.TriggerManual(b.runContext(), func(artists int) {
		b.reply(r, m, fmt.Sprintf("🔍 Checking %s for new releases...", util.Plural(artists, "artist", "artists")))
	})

	var cooldown *scheduler.CooldownError
	switch {
	case errors.Is(err, scheduler.ErrScanInProgress):
		b.reply(r, m, msgBusy)
	case errors.As(err, &cooldown):
		b.reply(r, m, fmt.Sprintf("⏱️ Please wait %d more second(s) before checking again.", cooldown.Seconds()))
	case err != nil:
		b.logger.Printf("%s %s manual check failed: %v", util.RedBold("!!! ERROR"), util.Cyan("[DISCORD]"), err)
	default:
		b.reply(r, m, fmt.Sprintf("✅ Check complete: %d new release(s) found.", res.Found))
	}
}

func (b *Bot) statsText() string {
	text := fmt.Sprintf("📊 Tracking %s.", util.Plural(b.scanner.ArtistCount(), "artist", "artists"))
	state := b.scanner.Snapshot()
	if state.Scanning {
		text += " A check is running right now."
	}
	if state.LastResult == nil {
		return text + " No check has run yet."
	}
	return fmt.Sprintf("%s Last check %s found %d new release(s).",
		text, humanize.RelTime(state.LastScan, b.now(), "ago", "from now"), state.LastResult.Found)
}

func (b *Bot) reply(r replier, m *discordgo.Message, content string) {
	if _, err := r.ChannelMessageSendReply(m.ChannelID, content, m.Reference(), discordgo.WithContext(b.runContext())); err != nil {
		b.logger.Printf("%s %s could not reply in %s: %v", util.RedBold("!!! ERROR"), util.Cyan("[DISCORD]"), m.ChannelID, err)
	}
}
