package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"vertbot/internal/interfaces"
	"vertbot/internal/types"
)

// ChannelAPI is the slice of *discordgo.Session the sender needs.
type ChannelAPI interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Sender posts messages to Discord channels.
type Sender struct {
	api ChannelAPI
}

var _ interfaces.Sender = (*Sender)(nil)

func NewSender(api ChannelAPI) *Sender {
	return &Sender{api: api}
}

func (s *Sender) Send(ctx context.Context, channelID string, msg types.Message) error {
	if channelID == "" {
		return fmt.Errorf("send: empty channel id")
	}
	if _, err := s.api.ChannelMessageSendComplex(channelID, MessageSend(msg), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send to channel %s: %w", channelID, err)
	}
	return nil
}

// MessageSend converts a message into a Discord payload. A message without a
// title is sent as plain content.
func MessageSend(msg types.Message) *discordgo.MessageSend {
	out := &discordgo.MessageSend{Content: msg.Text}
	if msg.Title == "" && msg.Description == "" && len(msg.Fields) == 0 {
		return out
	}
	out.Embeds = []*discordgo.MessageEmbed{Embed(msg)}
	return out
}

func Embed(msg types.Message) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       msg.Color,
	}
	for _, f := range msg.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	if msg.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: msg.Footer}
	}
	if !msg.Timestamp.IsZero() {
		e.Timestamp = msg.Timestamp.UTC().Format(time.RFC3339)
	}
	return e
}
