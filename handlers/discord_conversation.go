// handlers/discord_conversation.go
package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"dnd-mplus-bot/models"
	"dnd-mplus-bot/services"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// SessionTTL matches the lifetime of a Discord interaction token. Followups
// after it would be rejected anyway.
const SessionTTL = 15 * time.Minute

const customIDPrefix = "mplus"

type promptKind int

const (
	promptForm promptKind = iota
	promptChoice
	promptConfirm
)

type promptAnswer struct {
	values    map[string]string
	choice    string
	confirmed bool
	cancelled bool
}

type pendingPrompt struct {
	seq     int
	kind    promptKind
	title   string
	fields  []services.Field
	options []string
	answers chan promptAnswer
}

// discordConversation drives one slash command interaction. Prompts go out
// as ephemeral followups whose buttons route back through the registry.
type discordConversation struct {
	id          string
	api         discordAPI
	interaction *discordgo.Interaction
	user        models.UserIdentity
	timeout     time.Duration
	logger      *zap.Logger

	mu        sync.Mutex
	seq       int
	pending   *pendingPrompt
	responded bool
	closed    bool
}

var _ services.Conversation = (*discordConversation)(nil)

func (c *discordConversation) User() models.UserIdentity { return c.user }

func (c *discordConversation) Responded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responded
}

func (c *discordConversation) Notify(ctx context.Context, msg string) error {
	return c.followup(&discordgo.WebhookParams{Content: msg, Flags: discordgo.MessageFlagsEphemeral})
}

func (c *discordConversation) Respond(ctx context.Context, msg string) error {
	c.mu.Lock()
	c.responded = true
	c.mu.Unlock()
	return c.followup(&discordgo.WebhookParams{Content: msg, Flags: discordgo.MessageFlagsEphemeral})
}

func (c *discordConversation) AskForm(ctx context.Context, title string, fields []services.Field) (map[string]string, error) {
	p := c.begin(promptForm, title, fields, nil)
	err := c.followup(&discordgo.WebhookParams{
		Content: fmt.Sprintf("Click below to fill in **%s**.", title),
		Flags:   discordgo.MessageFlagsEphemeral,
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Open form", Style: discordgo.PrimaryButton, CustomID: c.customID(p.seq, "open")},
			discordgo.Button{Label: "Cancel", Style: discordgo.SecondaryButton, CustomID: c.customID(p.seq, "cancel")},
		}}},
	})
	if err != nil {
		c.finish(p)
		return nil, err
	}
	ans, err := c.wait(ctx, p)
	if err != nil {
		return nil, err
	}
	return ans.values, nil
}

func (c *discordConversation) Choose(ctx context.Context, prompt string, options []string) (string, error) {
	p := c.begin(promptChoice, prompt, nil, options)

	var rows []discordgo.MessageComponent
	var row []discordgo.MessageComponent
	for idx, opt := range options {
		row = append(row, discordgo.Button{
			Label:    opt,
			Style:    discordgo.PrimaryButton,
			CustomID: c.customID(p.seq, "opt", strconv.Itoa(idx)),
		})
		if len(row) == 5 {
			rows = append(rows, discordgo.ActionsRow{Components: row})
			row = nil
		}
	}
	row = append(row, discordgo.Button{Label: "Cancel", Style: discordgo.SecondaryButton, CustomID: c.customID(p.seq, "cancel")})
	rows = append(rows, discordgo.ActionsRow{Components: row})

	if err := c.followup(&discordgo.WebhookParams{Content: prompt, Flags: discordgo.MessageFlagsEphemeral, Components: rows}); err != nil {
		c.finish(p)
		return "", err
	}
	ans, err := c.wait(ctx, p)
	if err != nil {
		return "", err
	}
	return ans.choice, nil
}

func (c *discordConversation) Confirm(ctx context.Context, prompt string) (bool, error) {
	p := c.begin(promptConfirm, prompt, nil, nil)
	err := c.followup(&discordgo.WebhookParams{
		Content: prompt,
		Flags:   discordgo.MessageFlagsEphemeral,
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Yes", Style: discordgo.DangerButton, CustomID: c.customID(p.seq, "yes")},
			discordgo.Button{Label: "No", Style: discordgo.SecondaryButton, CustomID: c.customID(p.seq, "no")},
		}}},
	})
	if err != nil {
		c.finish(p)
		return false, err
	}
	ans, err := c.wait(ctx, p)
	if err != nil {
		return false, err
	}
	return ans.confirmed, nil
}

func (c *discordConversation) followup(params *discordgo.WebhookParams) error {
	if _, err := c.api.FollowupMessageCreate(c.interaction, true, params); err != nil {
		return fmt.Errorf("send followup: %w", err)
	}
	return nil
}

func (c *discordConversation) customID(seq int, parts ...string) string {
	return strings.Join(append([]string{customIDPrefix, c.id, strconv.Itoa(seq)}, parts...), ":")
}

func (c *discordConversation) begin(kind promptKind, title string, fields []services.Field, options []string) *pendingPrompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	p := &pendingPrompt{
		seq:     c.seq,
		kind:    kind,
		title:   title,
		fields:  fields,
		options: options,
		answers: make(chan promptAnswer, 1),
	}
	c.pending = p
	return p
}

func (c *discordConversation) finish(p *pendingPrompt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == p {
		c.pending = nil
	}
}

func (c *discordConversation) wait(ctx context.Context, p *pendingPrompt) (promptAnswer, error) {
	defer c.finish(p)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case ans := <-p.answers:
		if ans.cancelled {
			return promptAnswer{}, fmt.Errorf("%w: prompt dismissed", models.ErrCancelled)
		}
		return ans, nil
	case <-timer.C:
		return promptAnswer{}, fmt.Errorf("%w: prompt timed out", models.ErrCancelled)
	case <-ctx.Done():
		return promptAnswer{}, fmt.Errorf("%w: %v", models.ErrCancelled, ctx.Err())
	}
}

// current returns the pending prompt when seq still addresses it.
func (c *discordConversation) current(seq int) *pendingPrompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.pending == nil || c.pending.seq != seq {
		return nil
	}
	return c.pending
}

// deliver hands ans to p at most once.
func (c *discordConversation) deliver(p *pendingPrompt, ans promptAnswer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != p {
		return
	}
	c.pending = nil
	p.answers <- ans
}

// close cancels whatever prompt is still waiting.
func (c *discordConversation) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.pending != nil {
		c.pending.answers <- promptAnswer{cancelled: true}
		c.pending = nil
	}
}

// handle processes a button click or modal submit addressed to prompt seq.
func (c *discordConversation) handle(i *discordgo.Interaction, seq int, action []string) error {
	p := c.current(seq)
	if p == nil {
		return c.api.InteractionRespond(i, ephemeral("This prompt is no longer active."))
	}
	if u := interactionUser(i); u == nil || u.ID != c.user.ID {
		return c.api.InteractionRespond(i, ephemeral("This prompt belongs to someone else."))
	}

	switch {
	case action[0] == "cancel":
		c.deliver(p, promptAnswer{cancelled: true})
		return c.api.InteractionRespond(i, updateMessage("Cancelled."))

	case p.kind == promptForm && action[0] == "open":
		return c.api.InteractionRespond(i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID:   c.customID(seq, "modal"),
				Title:      truncate(p.title, 45),
				Components: modalRows(p.fields),
			},
		})

	case p.kind == promptForm && action[0] == "modal" && i.Type == discordgo.InteractionModalSubmit:
		values := modalValues(i.ModalSubmitData())
		c.deliver(p, promptAnswer{values: values})
		return c.api.InteractionRespond(i, updateMessage("Form received."))

	case p.kind == promptChoice && action[0] == "opt" && len(action) == 2:
		idx, err := strconv.Atoi(action[1])
		if err != nil || idx < 0 || idx >= len(p.options) {
			return c.api.InteractionRespond(i, ephemeral("Unknown option."))
		}
		c.deliver(p, promptAnswer{choice: p.options[idx]})
		return c.api.InteractionRespond(i, updateMessage(fmt.Sprintf("You selected **%s**!", p.options[idx])))

	case p.kind == promptConfirm && (action[0] == "yes" || action[0] == "no"):
		yes := action[0] == "yes"
		c.deliver(p, promptAnswer{confirmed: yes})
		label := "No"
		if yes {
			label = "Yes"
		}
		return c.api.InteractionRespond(i, updateMessage(fmt.Sprintf("You selected **%s**.", label)))
	}
	c.logger.Warn("Unexpected prompt action", zap.Int("seq", seq), zap.Strings("action", action))
	return c.api.InteractionRespond(i, ephemeral("Unknown action."))
}

func updateMessage(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{Content: content, Components: []discordgo.MessageComponent{}},
	}
}

func modalRows(fields []services.Field) []discordgo.MessageComponent {
	rows := make([]discordgo.MessageComponent, 0, len(fields))
	for _, f := range fields {
		style := discordgo.TextInputShort
		if f.Paragraph {
			style = discordgo.TextInputParagraph
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    f.ID,
				Label:       f.Label,
				Style:       style,
				Placeholder: f.Placeholder,
				Value:       f.Value,
				Required:    f.Required,
				MaxLength:   f.MaxLength,
			},
		}})
	}
	return rows
}

func modalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	values := make(map[string]string)
	var walk func(components []discordgo.MessageComponent)
	walk = func(components []discordgo.MessageComponent) {
		for _, comp := range components {
			switch v := comp.(type) {
			case *discordgo.ActionsRow:
				walk(v.Components)
			case discordgo.ActionsRow:
				walk(v.Components)
			case *discordgo.TextInput:
				values[v.CustomID] = v.Value
			case discordgo.TextInput:
				values[v.CustomID] = v.Value
			}
		}
	}
	walk(data.Components)
	return values
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// conversationRegistry tracks live conversations by id. Entries expire with
// the interaction token and expired conversations are cancelled.
type conversationRegistry struct {
	api     discordAPI
	live    *cache.Cache
	timeout time.Duration
	logger  *zap.Logger
}

func newConversationRegistry(api discordAPI, ttl time.Duration, logger *zap.Logger) *conversationRegistry {
	live := cache.New(ttl, time.Minute)
	live.OnEvicted(func(_ string, v interface{}) {
		if conv, ok := v.(*discordConversation); ok {
			conv.close()
		}
	})
	return &conversationRegistry{api: api, live: live, timeout: ttl, logger: logger}
}

// start registers a conversation for the deferred interaction i.
func (r *conversationRegistry) start(i *discordgo.Interaction) *discordConversation {
	u := interactionUser(i)
	user := models.UserIdentity{}
	if u != nil {
		user = models.UserIdentity{ID: u.ID, Name: u.Username}
	}
	conv := &discordConversation{
		id:          uuid.NewString(),
		api:         r.api,
		interaction: i,
		user:        user,
		timeout:     r.timeout,
		logger:      r.logger.With(zap.String("user_id", user.ID)),
	}
	r.live.Set(conv.id, conv, cache.DefaultExpiration)
	return conv
}

// end drops conv and cancels any prompt it still waits on.
func (r *conversationRegistry) end(conv *discordConversation) {
	r.live.Delete(conv.id)
}

// route dispatches a component click or modal submit to its conversation.
func (r *conversationRegistry) route(i *discordgo.Interaction) error {
	var customID string
	switch i.Type {
	case discordgo.InteractionMessageComponent:
		customID = i.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		customID = i.ModalSubmitData().CustomID
	default:
		return nil
	}

	parts := strings.Split(customID, ":")
	if len(parts) < 4 || parts[0] != customIDPrefix {
		return nil
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil {
		return r.api.InteractionRespond(i, ephemeral("Unknown action."))
	}
	v, ok := r.live.Get(parts[1])
	if !ok {
		return r.api.InteractionRespond(i, ephemeral("This session has expired. Please run the command again."))
	}
	return v.(*discordConversation).handle(i, seq, parts[3:])
}
