// Package bot owns the Discord gateway session: readiness, presence and the
// text commands that drive manual scans.
package bot

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"hatsubai/internal/scheduler"
	"hatsubai/internal/util"

	"github.com/bwmarrin/discordgo"
)

const intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent

// Scanner is the part of *scheduler.Scanner the commands drive.
type Scanner interface {
	TriggerManual(ctx context.Context, ack func(artists int)) (scheduler.Result, error)
	Snapshot() scheduler.State
	ArtistCount() int
}

type Bot struct {
	session *discordgo.Session
	scanner Scanner
	guildID string
	prefix  string
	logger  *log.Logger
	now     func() time.Time

	ready atomic.Bool

	mu       sync.RWMutex
	ctx      context.Context
	identity string
}

// NewSession prepares a gateway session with the intents the bot needs.
// REST calls work on it before Run opens the gateway.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = intents
	return session, nil
}

func New(session *discordgo.Session, guildID, prefix string, scanner Scanner, logger *log.Logger) *Bot {
	if logger == nil {
		logger = log.Default()
	}
	b := &Bot{
		session: session,
		scanner: scanner,
		guildID: guildID,
		prefix:  prefix,
		logger:  logger,
		now:     time.Now,
		ctx:     context.Background(),
	}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onResumed)
	session.AddHandler(b.onDisconnect)
	session.AddHandler(b.onMessageCreate)
	return b
}

// Run logs in and keeps the gateway open until ctx ends.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	discordTag := util.Cyan("[DISCORD]")
	b.logger.Printf("%s Logging in...", discordTag)
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord login: %w", err)
	}
	<-ctx.Done()
	b.ready.Store(false)
	b.logger.Printf("%s Closing gateway session.", discordTag)
	return b.session.Close()
}

func (b *Bot) Ready() bool {
	return b.ready.Load()
}

// Identity is the logged-in user tag, empty before the first Ready.
func (b *Bot) Identity() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.identity
}

func (b *Bot) ArtistCount() int {
	return b.scanner.ArtistCount()
}

func (b *Bot) GuildCount() int {
	if b.session.State == nil {
		return 0
	}
	b.session.State.RLock()
	defer b.session.State.RUnlock()
	return len(b.session.State.Guilds)
}

func (b *Bot) runContext() context.Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ctx
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	tag := ""
	if r.User != nil {
		tag = r.User.String()
	}
	b.mu.Lock()
	b.identity = tag
	b.mu.Unlock()
	b.ready.Store(true)

	discordTag := util.Cyan("[DISCORD]")
	b.logger.Printf("%s Logged in as %s (%s).", discordTag, util.GreenBold(tag), util.Plural(len(r.Guilds), "server", "servers"))

	artists := b.scanner.ArtistCount()
	err := s.UpdateStatusComplex(discordgo.UpdateStatusData{
		Activities: []*discordgo.Activity{{
			Name: util.Plural(artists, "artist", "artists"),
			Type: discordgo.ActivityTypeWatching,
		}},
		Status: string(discordgo.StatusOnline),
	})
	if err != nil {
		b.logger.Printf("%s %s Could not set presence: %v", util.Yellow("!!! WARN"), discordTag, err)
	}
}

func (b *Bot) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	b.ready.Store(true)
	b.logger.Printf("%s Session resumed.", util.Cyan("[DISCORD]"))
}

func (b *Bot) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	b.ready.Store(false)
	b.logger.Printf("%s %s", util.Cyan("[DISCORD]"), util.Yellow("Gateway disconnected, waiting for reconnect."))
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	b.handleMessage(s, m.Message)
}
