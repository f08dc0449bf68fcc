// handlers/discord.go
package handlers

import (
	"context"
	"errors"
	"fmt"

	"dnd-mplus-bot/models"
	"dnd-mplus-bot/services"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Registrations is what the slash commands need from the signup workflow.
type Registrations interface {
	Register(ctx context.Context, conv services.Conversation) services.Outcome
	Remove(ctx context.Context, conv services.Conversation) services.RemovalResult
	Info(ctx context.Context) (services.EventInfo, error)
}

var minKeyChannel = float64(services.FirstTemporaryChannel)

var mplusCommand = &discordgo.ApplicationCommand{
	Name:        "mplus",
	Description: "Mythic+ event signups",
	Options: []*discordgo.ApplicationCommandOption{
		{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "signup", Description: "Sign up for the upcoming M+ event"},
		{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "remove", Description: "Remove your M+ event signup"},
		{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "info", Description: "Show the number of signups for the upcoming event"},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
			Name:        "channels",
			Description: "Manage temporary Key Event voice channels",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Create Mythic Plus voice channels up to a number",
					Options: []*discordgo.ApplicationCommandOption{{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "number",
						Description: "Highest channel number to create",
						Required:    true,
						MinValue:    &minKeyChannel,
						MaxValue:    services.MaxTemporaryChannel,
					}},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "remove", Description: "Delete temporary Mythic Plus voice channels"},
			},
		},
	},
}

// DiscordBot serves the /mplus slash commands.
type DiscordBot struct {
	session       *discordgo.Session
	api           discordAPI
	registrations Registrations
	sessions      *conversationRegistry
	guildID       string
	logger        *zap.Logger

	// ctx bounds every workflow started by an interaction.
	ctx context.Context
}

// NewDiscordBot prepares a gateway session; nothing connects until Open.
func NewDiscordBot(token, guildID string, registrations Registrations, logger *zap.Logger) (*DiscordBot, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds

	b := newDiscordBot(dg, guildID, registrations, logger)
	b.session = dg
	dg.AddHandler(b.onInteraction)
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.logger.Info("🤖 Discord bot connected", zap.String("user", r.User.Username))
	})
	return b, nil
}

func newDiscordBot(api discordAPI, guildID string, registrations Registrations, logger *zap.Logger) *DiscordBot {
	return &DiscordBot{
		api:           api,
		registrations: registrations,
		sessions:      newConversationRegistry(api, SessionTTL, logger.Named("conversation")),
		guildID:       guildID,
		logger:        logger,
		ctx:           context.Background(),
	}
}

// Open connects to the gateway and registers the slash commands. ctx is the
// parent of every workflow the bot starts.
func (b *DiscordBot) Open(ctx context.Context) error {
	b.ctx = ctx
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	if _, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, b.guildID,
		[]*discordgo.ApplicationCommand{mplusCommand}); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	b.logger.Info("✅ Slash commands registered", zap.String("guild_id", b.guildID))
	return nil
}

func (b *DiscordBot) Close() error {
	return b.session.Close()
}

func (b *DiscordBot) onInteraction(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	if err := b.handle(ic.Interaction); err != nil {
		b.logger.Error("Failed to handle interaction", zap.String("interaction_id", ic.ID), zap.Error(err))
	}
}

func (b *DiscordBot) handle(i *discordgo.Interaction) error {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		return b.handleCommand(i)
	case discordgo.InteractionMessageComponent, discordgo.InteractionModalSubmit:
		return b.sessions.route(i)
	}
	return nil
}

func (b *DiscordBot) handleCommand(i *discordgo.Interaction) error {
	data := i.ApplicationCommandData()
	if data.Name != mplusCommand.Name || len(data.Options) == 0 {
		return nil
	}
	sub := data.Options[0]
	switch sub.Name {
	case "signup":
		return b.startWorkflow(i, func(ctx context.Context, conv services.Conversation) {
			out := b.registrations.Register(ctx, conv)
			b.logger.Info("Registration finished", zap.String("user_id", conv.User().ID),
				zap.Stringer("state", out.State), zap.Error(out.Err))
		})
	case "remove":
		return b.startWorkflow(i, func(ctx context.Context, conv services.Conversation) {
			res := b.registrations.Remove(ctx, conv)
			b.logger.Info("Removal finished", zap.String("user_id", conv.User().ID),
				zap.String("sheet", res.Sheet), zap.Bool("removed", res.Removed != nil), zap.Error(res.Err))
		})
	case "info":
		return b.info(i)
	case "channels":
		if len(sub.Options) == 0 {
			return nil
		}
		return b.channels(i, sub.Options[0])
	}
	return nil
}

// startWorkflow acknowledges i and runs fn on a fresh conversation in the
// background.
func (b *DiscordBot) startWorkflow(i *discordgo.Interaction, fn func(ctx context.Context, conv services.Conversation)) error {
	if err := b.api.InteractionRespond(i, deferredEphemeral()); err != nil {
		return fmt.Errorf("defer response: %w", err)
	}
	conv := b.sessions.start(i)
	go func() {
		defer b.sessions.end(conv)
		ctx, cancel := context.WithTimeout(b.ctx, SessionTTL)
		defer cancel()
		fn(ctx, conv)
	}()
	return nil
}

func (b *DiscordBot) info(i *discordgo.Interaction) error {
	info, err := b.registrations.Info(b.ctx)
	if err != nil {
		return b.api.InteractionRespond(i, ephemeral("An error occurred while counting signups. Please try again later."))
	}
	return b.api.InteractionRespond(i, ephemeral(info.Message()))
}

func (b *DiscordBot) channels(i *discordgo.Interaction, cmd *discordgo.ApplicationCommandInteractionDataOption) error {
	allowed, err := b.canManageChannels(i)
	if err != nil {
		b.logger.Error("Failed to resolve member roles", zap.Error(err))
		return b.api.InteractionRespond(i, ephemeral("Could not verify your permissions. Please try again later."))
	}
	if !allowed {
		return b.api.InteractionRespond(i, ephemeral("You don't have permission to use this command."))
	}

	if err := b.api.InteractionRespond(i, deferredEphemeral()); err != nil {
		return fmt.Errorf("defer response: %w", err)
	}

	var msg string
	switch cmd.Name {
	case "add":
		var upTo int
		if len(cmd.Options) > 0 {
			upTo = int(cmd.Options[0].IntValue())
		}
		msg, err = b.addChannels(i.GuildID, upTo)
	case "remove":
		msg, err = b.removeChannels(i.GuildID)
	default:
		return nil
	}
	if err != nil {
		b.logger.Error("Channel command failed", zap.String("command", cmd.Name), zap.Error(err))
		msg = "An error occurred while updating channels."
		if errors.Is(err, models.ErrValidation) {
			msg = "Error: " + err.Error()
		}
	}
	_, err = b.api.FollowupMessageCreate(i, true, &discordgo.WebhookParams{Content: msg, Flags: discordgo.MessageFlagsEphemeral})
	return err
}

func (b *DiscordBot) canManageChannels(i *discordgo.Interaction) (bool, error) {
	if i.Member == nil || i.GuildID == "" {
		return false, nil
	}
	guild, err := b.api.Guild(i.GuildID)
	if err != nil {
		return false, err
	}
	roles, err := b.api.GuildRoles(i.GuildID)
	if err != nil {
		return false, err
	}
	byID := make(map[string]string, len(roles))
	for _, r := range roles {
		byID[r.ID] = r.Name
	}
	var names []string
	for _, id := range i.Member.Roles {
		if name, ok := byID[id]; ok {
			names = append(names, name)
		}
	}
	isOwner := i.Member.User != nil && i.Member.User.ID == guild.OwnerID
	return services.CanManageChannels(names, isOwner), nil
}

func (b *DiscordBot) keyCategory(channels []*discordgo.Channel) *discordgo.Channel {
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory && ch.Name == services.KeyEventCategory {
			return ch
		}
	}
	return nil
}

func (b *DiscordBot) addChannels(guildID string, upTo int) (string, error) {
	channels, err := b.api.GuildChannels(guildID)
	if err != nil {
		return "", fmt.Errorf("list channels: %w", err)
	}
	category := b.keyCategory(channels)
	var voice []string
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildVoice {
			voice = append(voice, ch.Name)
		}
	}

	plan, err := services.PlanChannelAdd(upTo, category != nil, voice)
	if err != nil {
		return "", err
	}
	if plan.CreateCategory {
		category, err = b.api.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
			Name: services.KeyEventCategory,
			Type: discordgo.ChannelTypeGuildCategory,
		})
		if err != nil {
			return "", fmt.Errorf("create category: %w", err)
		}
	}

	var created []string
	for _, name := range plan.Create {
		if _, err := b.api.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
			Name:     name,
			Type:     discordgo.ChannelTypeGuildVoice,
			ParentID: category.ID,
		}); err != nil {
			b.logger.Error("Failed to create channel", zap.String("channel", name), zap.Error(err))
			continue
		}
		created = append(created, name)
	}
	b.logger.Info("Key channels created", zap.Strings("channels", created))
	return services.ChannelSummary("Created", created), nil
}

func (b *DiscordBot) removeChannels(guildID string) (string, error) {
	channels, err := b.api.GuildChannels(guildID)
	if err != nil {
		return "", fmt.Errorf("list channels: %w", err)
	}
	category := b.keyCategory(channels)
	if category == nil {
		return fmt.Sprintf("No category named '%s' found.", services.KeyEventCategory), nil
	}

	ids := make(map[string]string)
	var inCategory []string
	for _, ch := range channels {
		if ch.ParentID == category.ID && ch.Type == discordgo.ChannelTypeGuildVoice {
			ids[ch.Name] = ch.ID
			inCategory = append(inCategory, ch.Name)
		}
	}

	var deleted []string
	for _, name := range services.PlanChannelRemove(inCategory).Delete {
		if _, err := b.api.ChannelDelete(ids[name]); err != nil {
			b.logger.Error("Failed to delete channel", zap.String("channel", name), zap.Error(err))
			continue
		}
		deleted = append(deleted, name)
	}
	b.logger.Info("Key channels deleted", zap.Strings("channels", deleted))
	return services.ChannelSummary("Deleted", deleted), nil
}
