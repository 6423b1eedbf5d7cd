package discord

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"vertbot/internal/format"
	"vertbot/internal/logger"
)

const intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

// Bot connects the command router to a Discord gateway session.
type Bot struct {
	session       *discordgo.Session
	router        *Router
	deleteCommand bool
	timeout       time.Duration

	ctx context.Context

	mu    sync.Mutex
	ready map[string]bool // guilds present at startup; later GuildCreates are joins
}

// NewSession builds a bot-token session without connecting it.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = intents
	return s, nil
}

func NewBot(session *discordgo.Session, router *Router, deleteCommand bool, timeout time.Duration) *Bot {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Bot{
		session:       session,
		router:        router,
		deleteCommand: deleteCommand,
		timeout:       timeout,
		ctx:           context.Background(),
		ready:         make(map[string]bool),
	}
}

// Open registers the event handlers and connects. Handlers derive their
// contexts from ctx.
func (b *Bot) Open(ctx context.Context) error {
	b.ctx = ctx
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildCreate)
	b.session.AddHandler(b.onMessageCreate)
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	return nil
}

func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.mu.Lock()
	for _, g := range r.Guilds {
		b.ready[g.ID] = true
	}
	b.mu.Unlock()
	logger.Info(b.ctx, "Discord session ready", "user", r.User.Username, "guilds", len(r.Guilds))
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	b.mu.Lock()
	known := b.ready[g.ID]
	b.ready[g.ID] = true
	b.mu.Unlock()
	if known {
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	logger.Info(ctx, "Bot joined new guild", "guild", g.Name, "guild_id", g.ID)

	channelID := b.welcomeChannel(s, g.Guild)
	if channelID == "" {
		logger.Warn(ctx, "No writable text channel for welcome message", "guild_id", g.ID)
		return
	}
	if err := NewSender(s).Send(ctx, channelID, format.Welcome(b.router.Prefix())); err != nil {
		logger.ErrorWithErr(ctx, "Failed to send welcome message", err, "guild_id", g.ID)
	}
}

// welcomeChannel picks the first text channel, by position, the bot can post in.
func (b *Bot) welcomeChannel(s *discordgo.Session, g *discordgo.Guild) string {
	channels := make([]*discordgo.Channel, 0, len(g.Channels))
	for _, c := range g.Channels {
		if c.Type == discordgo.ChannelTypeGuildText {
			channels = append(channels, c)
		}
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].Position < channels[j].Position })

	for _, c := range channels {
		perms, err := s.State.UserChannelPermissions(s.State.User.ID, c.ID)
		if err != nil || perms&discordgo.PermissionSendMessages == 0 {
			continue
		}
		return c.ID
	}
	return ""
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	name, args, ok := Parse(m.Content, b.router.Prefix())
	if !ok || !b.router.Known(name) {
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()

	if b.deleteCommand && m.GuildID != "" {
		if err := s.ChannelMessageDelete(m.ChannelID, m.ID, discordgo.WithContext(ctx)); err != nil {
			logger.Debug(ctx, "Could not delete command message", "error", err)
		}
	}

	req := Request{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		AuthorID:  m.Author.ID,
		Author:    m.Author.Username,
		Command:   name,
		Args:      args,
		Admin:     b.isAdmin(ctx, s, m),
	}
	// Errors were already reported to the channel and logged by the router.
	_ = b.router.Handle(ctx, req)
}

func (b *Bot) isAdmin(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) bool {
	if m.GuildID == "" {
		return false
	}
	perms, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID, discordgo.WithContext(ctx))
	if err != nil {
		logger.Warn(ctx, "Permission lookup failed", "user", m.Author.ID, "error", err)
		return false
	}
	return HasManageServer(perms)
}

// HasManageServer reports whether a permission set may change guild settings.
func HasManageServer(perms int64) bool {
	return perms&(discordgo.PermissionManageServer|discordgo.PermissionAdministrator) != 0
}
