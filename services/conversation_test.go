package services

import (
	"context"
	"fmt"
	"sync"

	"dnd-mplus-bot/models"
)

// scriptedConversation answers prompts from queues and records everything it
// was sent. An empty queue behaves like a dismissed prompt.
type scriptedConversation struct {
	mu sync.Mutex

	user     models.UserIdentity
	forms    []map[string]string
	choices  []string
	confirms []bool

	formTitles []string
	chooses    []string
	asked      []string
	notes      []string
	responses  []string
	responded  bool
}

func newScript(user models.UserIdentity) *scriptedConversation {
	return &scriptedConversation{user: user}
}

func (c *scriptedConversation) withForm(answers map[string]string) *scriptedConversation {
	c.forms = append(c.forms, answers)
	return c
}

func (c *scriptedConversation) withSignupForm(character, realm, requests string) *scriptedConversation {
	return c.withForm(map[string]string{
		fieldCharacter:       character,
		fieldRealm:           realm,
		fieldSpecialRequests: requests,
	})
}

func (c *scriptedConversation) withChoices(choices ...string) *scriptedConversation {
	c.choices = append(c.choices, choices...)
	return c
}

func (c *scriptedConversation) withConfirms(answers ...bool) *scriptedConversation {
	c.confirms = append(c.confirms, answers...)
	return c
}

func (c *scriptedConversation) User() models.UserIdentity { return c.user }

func (c *scriptedConversation) Notify(ctx context.Context, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = append(c.notes, msg)
	return nil
}

func (c *scriptedConversation) AskForm(ctx context.Context, title string, fields []Field) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.formTitles = append(c.formTitles, title)
	if len(c.forms) == 0 {
		return nil, fmt.Errorf("%w: form %q dismissed", models.ErrCancelled, title)
	}
	next := c.forms[0]
	c.forms = c.forms[1:]
	return next, nil
}

func (c *scriptedConversation) Choose(ctx context.Context, prompt string, options []string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chooses = append(c.chooses, prompt)
	if len(c.choices) == 0 {
		return "", fmt.Errorf("%w: choice dismissed", models.ErrCancelled)
	}
	next := c.choices[0]
	c.choices = c.choices[1:]
	return next, nil
}

func (c *scriptedConversation) Confirm(ctx context.Context, prompt string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.asked = append(c.asked, prompt)
	if len(c.confirms) == 0 {
		return false, fmt.Errorf("%w: confirmation dismissed", models.ErrCancelled)
	}
	next := c.confirms[0]
	c.confirms = c.confirms[1:]
	return next, nil
}

func (c *scriptedConversation) Respond(ctx context.Context, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, msg)
	c.responded = true
	return nil
}

func (c *scriptedConversation) Responded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responded
}
