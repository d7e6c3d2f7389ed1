// Package notifier announces new releases in the configured Discord channel.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"hatsubai/internal/release"
	"hatsubai/internal/util"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	embedTitle   = "🎵 New Release Alert!"
	embedFooter  = "Spotify Release Tracker"
	spotifyGreen = 0x1DB954
)

var ErrChannelUnavailable = errors.New("notification channel unavailable")

// Notifier sends one announcement per release.
type Notifier interface {
	Notify(ctx context.Context, rec release.Record) error
}

// Sender is the part of *discordgo.Session the notifier needs.
type Sender interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Discord struct {
	sender        Sender
	channelID     string
	mentionUserID string
	logger        *log.Logger
	now           func() time.Time
}

func NewDiscord(sender Sender, channelID, mentionUserID string, logger *log.Logger) *Discord {
	if logger == nil {
		logger = log.Default()
	}
	return &Discord{
		sender:        sender,
		channelID:     channelID,
		mentionUserID: mentionUserID,
		logger:        logger,
		now:           time.Now,
	}
}

// Notify resolves the channel at send time so a channel deleted or hidden
// after startup fails this release only.
func (d *Discord) Notify(ctx context.Context, rec release.Record) error {
	if _, err := d.sender.Channel(d.channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrChannelUnavailable, d.channelID, err)
	}
	msg := BuildMessage(rec, d.mentionUserID, d.now())
	if _, err := d.sender.ChannelMessageSendComplex(d.channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send alert for '%s' by '%s': %w", rec.Title, rec.ArtistName, err)
	}
	d.logger.Printf("  %s Sent %s by %s.", util.Cyan("[NOTIFY]"),
		util.Blue(fmt.Sprintf("'%s'", rec.Title)), util.BlueBold(rec.ArtistName))
	return nil
}

// DryRun logs what would have been sent.
type DryRun struct {
	Logger *log.Logger
}

func (d DryRun) Notify(_ context.Context, rec release.Record) error {
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("  %s Would send %s by %s (%s, %s) %s",
		util.Cyan("[NOTIFY]"),
		util.Blue(fmt.Sprintf("'%s'", rec.Title)), util.BlueBold(rec.ArtistName),
		TypeLabel(rec.Type), rec.ReleaseDate.Format("2006-01-02"),
		util.YellowBold("(DRY RUN)"))
	return nil
}

// TypeLabel capitalises a catalog release type for display.
func TypeLabel(kind string) string {
	if kind == "" {
		return "Release"
	}
	return cases.Title(language.English).String(kind)
}

func BuildMessage(rec release.Record, mentionUserID string, now time.Time) *discordgo.MessageSend {
	content := fmt.Sprintf("🎶 New release from **%s**!", rec.ArtistName)
	msg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{BuildEmbed(rec, now)}}
	if mentionUserID != "" {
		content = fmt.Sprintf("<@%s> %s", mentionUserID, content)
		msg.AllowedMentions = &discordgo.MessageAllowedMentions{Users: []string{mentionUserID}}
	}
	msg.Content = content
	return msg
}

func BuildEmbed(rec release.Record, now time.Time) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: embedTitle,
		URL:   rec.URL,
		Color: spotifyGreen,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Artist", Value: rec.ArtistName, Inline: true},
			{Name: "Release", Value: rec.Title, Inline: true},
			{Name: "Type", Value: TypeLabel(rec.Type), Inline: true},
			{Name: "Release Date", Value: rec.ReleaseDate.Format("January 2, 2006"), Inline: true},
			{Name: "Listen", Value: fmt.Sprintf("[Open in Spotify](%s)", rec.URL)},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: embedFooter},
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if rec.ImageURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: rec.ImageURL}
	}
	return embed
}
