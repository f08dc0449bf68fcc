package handlers

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
)

type respondCall struct {
	interaction *discordgo.Interaction
	resp        *discordgo.InteractionResponse
}

// fakeDiscord records every API call the bot makes.
type fakeDiscord struct {
	mu        sync.Mutex
	responds  []respondCall
	followups []*discordgo.WebhookParams
	created   []discordgo.GuildChannelCreateData
	deleted   []string

	guild    *discordgo.Guild
	roles    []*discordgo.Role
	channels []*discordgo.Channel
	nextID   int
}

func newFakeDiscord() *fakeDiscord {
	return &fakeDiscord{guild: &discordgo.Guild{ID: "g1", OwnerID: "owner"}}
}

func (f *fakeDiscord) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responds = append(f.responds, respondCall{i, resp})
	return nil
}

func (f *fakeDiscord) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followups = append(f.followups, data)
	return &discordgo.Message{Content: data.Content}, nil
}

func (f *fakeDiscord) Guild(string, ...discordgo.RequestOption) (*discordgo.Guild, error) {
	return f.guild, nil
}

func (f *fakeDiscord) GuildRoles(string, ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	return f.roles, nil
}

func (f *fakeDiscord) GuildChannels(string, ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*discordgo.Channel(nil), f.channels...), nil
}

func (f *fakeDiscord) GuildChannelCreateComplex(_ string, data discordgo.GuildChannelCreateData, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ch := &discordgo.Channel{ID: fmt.Sprintf("new-%d", f.nextID), Name: data.Name, Type: data.Type, ParentID: data.ParentID}
	f.created = append(f.created, data)
	f.channels = append(f.channels, ch)
	return ch, nil
}

func (f *fakeDiscord) ChannelDelete(id string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return &discordgo.Channel{ID: id}, nil
}

func (f *fakeDiscord) followupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.followups)
}

func (f *fakeDiscord) followup(n int) *discordgo.WebhookParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.followups[n]
}

func (f *fakeDiscord) lastRespond() respondCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.responds[len(f.responds)-1]
}

// awaitFollowup blocks until the n-th followup (0-based) was sent.
func (f *fakeDiscord) awaitFollowup(t *testing.T, n int) *discordgo.WebhookParams {
	t.Helper()
	require.Eventually(t, func() bool { return f.followupCount() > n }, 2*time.Second, 5*time.Millisecond)
	return f.followup(n)
}

// buttons flattens the buttons of a followup.
func buttons(p *discordgo.WebhookParams) []discordgo.Button {
	var out []discordgo.Button
	for _, row := range p.Components {
		for _, c := range row.(discordgo.ActionsRow).Components {
			if b, ok := c.(discordgo.Button); ok {
				out = append(out, b)
			}
		}
	}
	return out
}

func buttonID(t *testing.T, p *discordgo.WebhookParams, label string) string {
	t.Helper()
	for _, b := range buttons(p) {
		if b.Label == label {
			return b.CustomID
		}
	}
	t.Fatalf("no button %q in %q", label, p.Content)
	return ""
}

func member(userID string, roles ...string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: userID, Username: "user-" + userID}, Roles: roles}
}

func click(userID, customID string) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type:    discordgo.InteractionMessageComponent,
		GuildID: "g1",
		Member:  member(userID),
		Data:    discordgo.MessageComponentInteractionData{CustomID: customID},
	}
}

func submitModal(userID, customID string, values map[string]string) *discordgo.Interaction {
	var rows []discordgo.MessageComponent
	for id, v := range values {
		rows = append(rows, &discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			&discordgo.TextInput{CustomID: id, Value: v},
		}})
	}
	return &discordgo.Interaction{
		Type:    discordgo.InteractionModalSubmit,
		GuildID: "g1",
		Member:  member(userID),
		Data:    discordgo.ModalSubmitInteractionData{CustomID: customID, Components: rows},
	}
}

func command(userID string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "g1",
		Member:  member(userID),
		Data:    discordgo.ApplicationCommandInteractionData{Name: "mplus", Options: options},
	}
}

func sub(name string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Options: options}
}
