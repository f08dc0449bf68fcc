// services/registration_workflow.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dnd-mplus-bot/models"
	"dnd-mplus-bot/store"

	"go.uber.org/zap"
)

// State is a step of the registration conversation.
type State int

const (
	StateIdle State = iota
	StateCheckingExisting
	StateConfirmingRemoval
	StateCooldown
	StateCollectingFields
	StateValidatingRealm
	StateValidatingProfile
	StateWriting
	StateDone
	StateAborted
)

var stateNames = [...]string{
	"Idle",
	"CheckingExisting",
	"ConfirmingRemoval",
	"Cooldown",
	"CollectingFields",
	"ValidatingRealm",
	"ValidatingProfile",
	"Writing",
	"Done",
	"Aborted",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == StateDone || s == StateAborted }

const (
	fieldCharacter       = "character"
	fieldRealm           = "realm"
	fieldSpecialRequests = "special_requests"
	fieldItemLevel       = "item_level"
	fieldRating          = "rating"
	fieldHighestKey      = "highest_key"

	defaultCooldown    = 2 * time.Second
	defaultMaxNotFound = 3
	maxInvalidForms    = 3
)

// Outcome reports how one registration conversation ended.
type Outcome struct {
	State        State
	History      []State
	Registration *models.Registration // written row, when Done
	Removed      *models.Registration // prior row archived on the way
	Err          error
}

// RegistrationService drives the registration, removal and info interactions.
type RegistrationService struct {
	store    store.Store
	matcher  *RealmMatcher
	profiles ProfileLookup
	cycle    *Cycle
	guard    *CycleGuard
	logger   *zap.Logger

	retry        RetryPolicy
	cooldown     time.Duration
	maxNotFound  int
	eventInfoURL string
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

// RegistrationOption customizes a RegistrationService.
type RegistrationOption func(*RegistrationService)

func WithClock(now func() time.Time) RegistrationOption {
	return func(s *RegistrationService) { s.now = now }
}

// WithSleep replaces the timer used for the cooldown pause.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RegistrationOption {
	return func(s *RegistrationService) { s.sleep = sleep }
}

func WithRetryPolicy(p RetryPolicy) RegistrationOption {
	return func(s *RegistrationService) { s.retry = p }
}

func WithCooldown(d time.Duration) RegistrationOption {
	return func(s *RegistrationService) { s.cooldown = d }
}

// WithMaxNotFound sets how many failed lookups are allowed before stats are
// entered by hand.
func WithMaxNotFound(n int) RegistrationOption {
	return func(s *RegistrationService) { s.maxNotFound = n }
}

func WithEventInfoURL(u string) RegistrationOption {
	return func(s *RegistrationService) { s.eventInfoURL = u }
}

func NewRegistrationService(
	st store.Store,
	matcher *RealmMatcher,
	profiles ProfileLookup,
	cycle *Cycle,
	guard *CycleGuard,
	logger *zap.Logger,
	opts ...RegistrationOption,
) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if guard == nil {
		guard = NewCycleGuard()
	}
	s := &RegistrationService{
		store:       st,
		matcher:     matcher,
		profiles:    profiles,
		cycle:       cycle,
		guard:       guard,
		logger:      logger,
		retry:       DefaultRetryPolicy(),
		cooldown:    defaultCooldown,
		maxNotFound: defaultMaxNotFound,
		now:         time.Now,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// registrationRun is the state of one Register call.
type registrationRun struct {
	svc    *RegistrationService
	conv   Conversation
	user   models.UserIdentity
	reply  *replyOnce
	logger *zap.Logger

	state   State
	history []State

	character       string
	realm           string
	specialRequests string
	role            string
	keyRange        string
	stats           models.ProfileStats
	statsKnown      bool
	followUp        bool
	removed         *models.Registration
}

func (r *registrationRun) enter(s State) {
	r.logger.Debug("Registration state", zap.Stringer("from", r.state), zap.Stringer("to", s))
	r.state = s
	r.history = append(r.history, s)
}

func (r *registrationRun) abort(ctx context.Context, err error, msg string) Outcome {
	r.enter(StateAborted)
	switch {
	case errors.Is(err, models.ErrCancelled):
		r.logger.Info("Registration cancelled")
		registrationsTotal.WithLabelValues("cancelled").Inc()
	default:
		r.logger.Error("Registration failed", zap.Error(err))
		registrationsTotal.WithLabelValues("failed").Inc()
	}
	r.reply.send(ctx, msg)
	return Outcome{State: r.state, History: r.history, Removed: r.removed, Err: err}
}

// Register runs the registration conversation for conv's user. An existing
// row is archived first; the new row is only written once every field is
// known. Exactly one final response is sent.
func (s *RegistrationService) Register(ctx context.Context, conv Conversation) Outcome {
	user := conv.User()
	run := &registrationRun{
		svc:     s,
		conv:    conv,
		user:    user,
		reply:   newReplyOnce(conv, s.logger),
		logger:  s.logger.With(zap.String("user_id", user.ID), zap.String("user_name", user.Name)),
		history: []State{StateIdle},
	}

	unlock := s.guard.LockUser(user.ID)
	defer unlock()

	run.enter(StateCheckingExisting)
	var existing *models.Registration
	err := s.guard.Shared(func() error {
		var err error
		existing, err = s.store.FindRow(ctx, s.cycle.ActiveSheet, user.ID)
		return err
	})
	if err != nil {
		return run.abort(ctx, err, genericFailure)
	}

	if existing != nil {
		run.enter(StateConfirmingRemoval)
		if err := s.guard.Shared(func() error {
			var err error
			run.removed, err = s.store.RemoveRow(ctx, s.cycle.ActiveSheet, user.ID, s.now())
			return err
		}); err != nil {
			return run.abort(ctx, err, "An error occurred while trying to remove your registration. Please try again.")
		}
		if run.removed != nil {
			removalsTotal.WithLabelValues("reregistered").Inc()
			run.logger.Info("Archived prior registration",
				zap.String("character", run.removed.Character), zap.String("realm", run.removed.Realm))
			if err := conv.Notify(ctx, fmt.Sprintf("Your registration for **%s**-**%s** has been successfully removed.",
				run.removed.Character, run.removed.Realm)); err != nil {
				run.logger.Warn("Failed to notify removal", zap.Error(err))
			}
		}

		run.enter(StateCooldown)
		if err := s.sleep(ctx, s.cooldown); err != nil {
			return run.abort(ctx, err, genericFailure)
		}
	}

	if err := run.collectAndValidate(ctx); err != nil {
		msg := genericFailure
		var v *validationAbort
		switch {
		case errors.Is(err, models.ErrCancelled):
			msg = "Registration cancelled. Use the signup command again whenever you're ready."
		case errors.As(err, &v):
			msg = v.msg
		}
		return run.abort(ctx, err, msg)
	}

	run.enter(StateWriting)
	reg := run.assemble()
	if err := s.guard.Shared(func() error { return s.write(ctx, reg, run.logger) }); err != nil {
		return run.abort(ctx, err, genericFailure)
	}

	run.enter(StateDone)
	registrationsTotal.WithLabelValues("completed").Inc()
	run.logger.Info("Registration recorded",
		zap.String("character", reg.Character),
		zap.String("realm", reg.Realm),
		zap.String("filter", reg.Filter),
		zap.Bool("follow_up", reg.FollowUp))
	run.reply.send(ctx, s.confirmation(reg))
	return Outcome{State: run.state, History: run.history, Registration: &reg, Removed: run.removed}
}

const genericFailure = "Something went wrong while saving your registration. Please try again later."

// validationAbort ends a conversation after repeated unusable input.
type validationAbort struct {
	msg string
}

func (v *validationAbort) Error() string { return "validation: " + v.msg }

func (v *validationAbort) Unwrap() error { return models.ErrValidation }

// collectAndValidate loops CollectingFields -> ValidatingRealm ->
// ValidatingProfile until a profile is settled or the user gives up.
func (r *registrationRun) collectAndValidate(ctx context.Context) error {
	s := r.svc
	notFound := 0
	invalid := 0
	firstPass := true

	for {
		r.enter(StateCollectingFields)
		if err := r.askIdentity(ctx); err != nil {
			if !errors.Is(err, models.ErrValidation) {
				return err
			}
			invalid++
			if invalid >= maxInvalidForms {
				return &validationAbort{msg: "Too many incomplete submissions. Please start the registration again."}
			}
			r.notify(ctx, "Character name and realm are both required.")
			continue
		}
		if firstPass {
			if err := r.askChoices(ctx); err != nil {
				return err
			}
			firstPass = false
		}

		r.enter(StateValidatingRealm)
		match := s.matcher.Correct(r.realm)
		switch {
		case s.matcher.Accepts(match):
			if match.Realm != r.realm {
				r.logger.Info("Corrected realm", zap.String("input", r.realm),
					zap.String("realm", match.Realm), zap.Int("score", match.Score))
			}
			r.realm = match.Realm
		case match.Realm == "":
			r.notify(ctx, fmt.Sprintf("I couldn't find a realm called **%s**. Please double check your realm.", r.realm))
			continue
		default:
			ok, err := r.conv.Confirm(ctx, fmt.Sprintf("I couldn't find **%s**. Did you mean **%s**?", r.realm, match.Realm))
			if err != nil {
				return err
			}
			if !ok {
				r.notify(ctx, "Okay, please enter your realm again.")
				continue
			}
			r.realm = match.Realm
		}

		r.enter(StateValidatingProfile)
		stats, err := LookupWithRetry(ctx, s.profiles, r.character, r.realm, s.retry)
		switch {
		case err == nil:
			r.stats, r.statsKnown = stats, true
			return nil
		case errors.Is(err, models.ErrNotFound):
			notFound++
			r.logger.Info("Character not found", zap.String("character", r.character),
				zap.String("realm", r.realm), zap.Int("attempt", notFound))
			if notFound < s.maxNotFound {
				r.notify(ctx, fmt.Sprintf("I couldn't find **%s**-**%s**. Please check the spelling and try again (%d/%d).",
					NormalizeCharacter(r.character), r.realm, notFound, s.maxNotFound))
				continue
			}
			return r.askManualStats(ctx)
		case errors.Is(err, models.ErrService):
			r.logger.Warn("Profile service unavailable, registering without stats",
				zap.String("character", r.character), zap.String("realm", r.realm), zap.Error(err))
			r.followUp = true
			r.notify(ctx, "The profile service is not responding right now. Your signup will be saved and an organizer will check your stats.")
			return nil
		default:
			return err
		}
	}
}

func (r *registrationRun) askIdentity(ctx context.Context) error {
	answers, err := r.conv.AskForm(ctx, "M+ Event Registration", []Field{
		{ID: fieldCharacter, Label: "Character Name", Value: r.character, Required: true, MaxLength: 12},
		{ID: fieldRealm, Label: "Realm (double check your realm!)", Value: r.realm, Required: true, MaxLength: 40},
		{ID: fieldSpecialRequests, Label: "Special Requests", Value: r.specialRequests, Paragraph: true, MaxLength: 300},
	})
	if err != nil {
		return err
	}
	r.character = strings.TrimSpace(answers[fieldCharacter])
	r.realm = strings.TrimSpace(answers[fieldRealm])
	r.specialRequests = strings.TrimSpace(answers[fieldSpecialRequests])
	if r.character == "" || r.realm == "" {
		return fmt.Errorf("%w: character and realm are required", models.ErrValidation)
	}
	return nil
}

func (r *registrationRun) askChoices(ctx context.Context) error {
	role, err := r.conv.Choose(ctx, "Next, please select your role.", models.Roles)
	if err != nil {
		return err
	}
	keyRange, err := r.conv.Choose(ctx, "Which key range would you like to run?", models.KeyRanges)
	if err != nil {
		return err
	}
	if !models.ValidChoice(role, models.Roles) || !models.ValidChoice(keyRange, models.KeyRanges) {
		return &validationAbort{msg: "That selection isn't available. Please start the registration again."}
	}
	r.role, r.keyRange = role, keyRange
	return nil
}

// askManualStats lets the user type their stats after repeated failed
// lookups. The row is flagged for an organizer to verify.
func (r *registrationRun) askManualStats(ctx context.Context) error {
	r.notify(ctx, "I still couldn't find your character. Please enter your stats manually; an organizer will verify them.")
	answers, err := r.conv.AskForm(ctx, "Character Stats", []Field{
		{ID: fieldItemLevel, Label: "Item Level", Placeholder: "e.g. 480", Required: true, MaxLength: 4},
		{ID: fieldRating, Label: "Mythic+ Rating", Placeholder: "e.g. 2150", MaxLength: 8},
		{ID: fieldHighestKey, Label: "Highest Key Timed", Placeholder: "e.g. 12", MaxLength: 3},
	})
	if err != nil {
		return err
	}

	r.followUp = true
	stats, ok := parseManualStats(answers)
	if !ok {
		r.logger.Info("Unusable manual stats, registering without stats", zap.Any("answers", answers))
		return nil
	}
	r.stats, r.statsKnown = stats, true
	return nil
}

func parseManualStats(answers map[string]string) (models.ProfileStats, bool) {
	var stats models.ProfileStats
	ilvl, err := strconv.Atoi(strings.TrimSpace(answers[fieldItemLevel]))
	if err != nil || ilvl <= 0 {
		return stats, false
	}
	stats.ItemLevel = ilvl
	if v := strings.TrimSpace(answers[fieldRating]); v != "" {
		if rating, err := strconv.ParseFloat(v, 64); err == nil && rating >= 0 {
			stats.Rating = rating
		}
	}
	if v := strings.TrimSpace(answers[fieldHighestKey]); v != "" {
		if key, err := strconv.Atoi(strings.TrimPrefix(v, "+")); err == nil && key > 0 {
			stats.HighestKey = key
		}
	}
	return stats, true
}

func (r *registrationRun) notify(ctx context.Context, msg string) {
	if err := r.conv.Notify(ctx, msg); err != nil {
		r.logger.Warn("Failed to send message", zap.Error(err))
	}
}

func (r *registrationRun) assemble() models.Registration {
	reg := models.Registration{
		UserID:          r.user.ID,
		UserName:        r.user.Name,
		Character:       NormalizeCharacter(r.character),
		Class:           r.stats.Class,
		Realm:           r.realm,
		Role:            r.role,
		KeyRange:        r.keyRange,
		Filter:          models.FilterTag(r.keyRange, r.role),
		SpecialRequests: r.specialRequests,
		RegisteredAt:    r.svc.now().In(r.svc.cycle.Loc).Truncate(time.Second),
		FollowUp:        r.followUp,
	}
	if r.statsKnown {
		reg.ApplyStats(r.stats)
	}
	return reg
}

// write appends reg, first archiving any row another process slipped in for
// the same user.
func (s *RegistrationService) write(ctx context.Context, reg models.Registration, logger *zap.Logger) error {
	sheet := s.cycle.ActiveSheet
	dup, err := s.store.FindRow(ctx, sheet, reg.UserID)
	if err != nil {
		return err
	}
	if dup != nil {
		logger.Warn("Resolving duplicate active registration",
			zap.Error(fmt.Errorf("%w: user %s already has a row", models.ErrConflict, reg.UserID)))
		if _, err := s.store.RemoveRow(ctx, sheet, reg.UserID, s.now()); err != nil {
			return err
		}
	}
	return s.store.AppendRow(ctx, sheet, reg)
}

func (s *RegistrationService) confirmation(reg models.Registration) string {
	class := reg.Class
	if class == "" {
		class = models.NotAvailable
	}
	msg := fmt.Sprintf("Thank you, %s! **%s**-**%s** (%s) is signed up as **%s** for **%s** on %s.",
		reg.UserName, reg.Character, reg.Realm, class, reg.Role, reg.KeyRange,
		s.cycle.EventDate(s.now()).Format("Monday, January 2"))
	if reg.FollowUp {
		msg += " An organizer will double check your stats before the event."
	}
	return msg
}

// RemovalResult reports a user initiated removal.
type RemovalResult struct {
	Sheet   string
	Removed *models.Registration
	Err     error
}

// Remove asks conv's user to confirm and archives their signup. Between
// cutoff and reopen the closed cycle's sheet is searched instead of the
// active one.
func (s *RegistrationService) Remove(ctx context.Context, conv Conversation) RemovalResult {
	user := conv.User()
	logger := s.logger.With(zap.String("user_id", user.ID), zap.String("user_name", user.Name))
	reply := newReplyOnce(conv, logger)

	unlock := s.guard.LockUser(user.ID)
	defer unlock()

	sheet, reg, err := s.locateForRemoval(ctx, user.ID, logger)
	if err != nil {
		logger.Error("Removal lookup failed", zap.Error(err))
		removalsTotal.WithLabelValues("failed").Inc()
		reply.send(ctx, "An error occurred while looking up your registration. Please try again.")
		return RemovalResult{Sheet: sheet, Err: err}
	}
	if reg == nil {
		removalsTotal.WithLabelValues("not_found").Inc()
		reply.send(ctx, "No registration found for you.")
		return RemovalResult{Sheet: sheet}
	}

	ok, err := conv.Confirm(ctx, fmt.Sprintf("You are currently signed up with %s-%s, do you want to remove this registration?",
		reg.Character, reg.Realm))
	if err != nil || !ok {
		removalsTotal.WithLabelValues("kept").Inc()
		reply.send(ctx, "Your registration has not been removed.")
		if errors.Is(err, models.ErrCancelled) {
			err = nil
		}
		return RemovalResult{Sheet: sheet, Err: err}
	}

	// The cutoff may have passed while the user was deciding.
	var removed *models.Registration
	err = s.guard.Shared(func() error {
		var err error
		sheet, reg, err = s.findRemovalRow(ctx, user.ID, logger)
		if err != nil || reg == nil {
			return err
		}
		removed, err = s.store.RemoveRow(ctx, sheet, user.ID, s.now())
		return err
	})
	switch {
	case err != nil:
		logger.Error("Removal failed", zap.String("sheet", sheet), zap.Error(err))
		removalsTotal.WithLabelValues("failed").Inc()
		reply.send(ctx, "An error occurred while trying to remove your registration. Please try again.")
		return RemovalResult{Sheet: sheet, Err: err}
	case removed == nil:
		removalsTotal.WithLabelValues("not_found").Inc()
		reply.send(ctx, "No registration found for you.")
		return RemovalResult{Sheet: sheet}
	}

	removalsTotal.WithLabelValues("removed").Inc()
	logger.Info("Registration removed", zap.String("sheet", sheet),
		zap.String("character", removed.Character), zap.String("realm", removed.Realm))
	reply.send(ctx, fmt.Sprintf("Your registration for **%s**-**%s** has been removed.", removed.Character, removed.Realm))
	return RemovalResult{Sheet: sheet, Removed: removed}
}

func (s *RegistrationService) locateForRemoval(ctx context.Context, userID string, logger *zap.Logger) (sheet string, reg *models.Registration, err error) {
	err = s.guard.Shared(func() error {
		var err error
		sheet, reg, err = s.findRemovalRow(ctx, userID, logger)
		return err
	})
	return sheet, reg, err
}

// findRemovalRow must run under the shared cycle lock.
func (s *RegistrationService) findRemovalRow(ctx context.Context, userID string, logger *zap.Logger) (string, *models.Registration, error) {
	primary, fallback := s.cycle.RemovalSheets(s.now())
	reg, err := s.store.FindRow(ctx, primary, userID)
	if errors.Is(err, store.ErrSheetNotFound) && fallback != "" {
		logger.Warn("Expected cutoff sheet not found for removal",
			zap.String("sheet", primary), zap.String("fallback", fallback))
		reg, err = s.store.FindRow(ctx, fallback, userID)
		return fallback, reg, err
	}
	return primary, reg, err
}

// EventInfo is the summary shown by the info command.
type EventInfo struct {
	Signups   int
	EventDate time.Time
	Link      string
}

// Signups lists the rows of the active sheet.
func (s *RegistrationService) Signups(ctx context.Context) ([]models.Registration, error) {
	var rows []models.Registration
	err := s.guard.Shared(func() error {
		var err error
		rows, err = s.store.ListRows(ctx, s.cycle.ActiveSheet)
		return err
	})
	return rows, err
}

// Info counts the signups of the active sheet.
func (s *RegistrationService) Info(ctx context.Context) (EventInfo, error) {
	rows, err := s.Signups(ctx)
	if err != nil {
		s.logger.Error("Failed to count signups", zap.Error(err))
		return EventInfo{}, err
	}
	return EventInfo{
		Signups:   len(rows),
		EventDate: s.cycle.EventDate(s.now()),
		Link:      s.eventInfoURL,
	}, nil
}

// Message renders the info reply.
func (i EventInfo) Message() string {
	msg := fmt.Sprintf("The number of people who have signed up for the %s event: %d",
		i.EventDate.Format("January 2"), i.Signups)
	if i.Link != "" {
		msg += "\nFor more information, visit this post: " + i.Link
	}
	return msg
}
