// Package moderation implements the per-message decision pipeline (C7):
// lexicon match, then sampled AI classification, then the §4.7.2 punishment
// sequence. Grounded on the teacher's nlp package for the filter-chain shape
// (ordered, short-circuiting checks feeding a single action) and on
// internal/ruriko/audit for the admin-facing notice format.
package moderation

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/bdobrica/wardbot/common/clock"
	"github.com/bdobrica/wardbot/internal/wardbot/audit"
	"github.com/bdobrica/wardbot/internal/wardbot/classifier"
	"github.com/bdobrica/wardbot/internal/wardbot/config"
	"github.com/bdobrica/wardbot/internal/wardbot/lexicon"
	"github.com/bdobrica/wardbot/internal/wardbot/platform"
	"github.com/bdobrica/wardbot/internal/wardbot/store"
)

// Pipeline evaluates group messages against the lexicon and, when sampled,
// an external classifier, and carries out the punishment sequence for any
// accepted decision.
type Pipeline struct {
	store      *store.Store
	lexicon    *lexicon.Cache
	classifier *classifier.Client
	platform   platform.Client
	clock      clock.Clock
	runtime    *config.Runtime
	throttle   *Throttle
	notifier   audit.Notifier
	draw       func() float64
}

// Option customizes a Pipeline at construction.
type Option func(*Pipeline)

// WithSampler overrides the uniform [0,1) draw used for AI sampling,
// for deterministic tests.
func WithSampler(f func() float64) Option {
	return func(p *Pipeline) { p.draw = f }
}

// New returns a Pipeline. notifier may be audit.Noop{} when admin-card
// notifications are disabled.
func New(db *store.Store, lex *lexicon.Cache, cls *classifier.Client, plat platform.Client,
	clk clock.Clock, rt *config.Runtime, throttle *Throttle, notifier audit.Notifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      db,
		lexicon:    lex,
		classifier: cls,
		platform:   plat,
		clock:      clk,
		runtime:    rt,
		throttle:   throttle,
		notifier:   notifier,
		draw:       rand.New(rand.NewSource(time.Now().UnixNano())).Float64,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// decision is the internal result of filters 1-6, before punishment.
type decision struct {
	reasonType  store.ReasonType
	matchedWord string
	aiLabel     string
	aiConf      float64
	aiReason    string
}

// HandleMessage runs the §4.7 filter chain against a group message and, on
// an accepted decision, executes the punishment sequence. groupID is the
// configured group; msg.ChatID is assumed to already equal it (the caller —
// the event dispatcher — enforces the group-id-match guard).
func (p *Pipeline) HandleMessage(ctx context.Context, msg platform.MessageEnvelope) error {
	member, err := p.platform.GetChatMember(ctx, p.runtime.Base().GroupID, msg.UserID)
	if err != nil {
		return fmt.Errorf("moderation: get chat member: %w", err)
	}
	if member.IsPrivileged() {
		return nil
	}

	approved, err := p.store.IsApproved(ctx, p.runtime.Base().GroupID, msg.UserID)
	if err != nil {
		return fmt.Errorf("moderation: is approved: %w", err)
	}
	if !approved {
		return nil
	}

	if entry, ok := p.lexicon.Match(msg.Text); ok {
		d := &decision{reasonType: store.ReasonKeyword, matchedWord: entry.Original}
		return p.punish(ctx, msg, d)
	}

	d, err := p.sampleAI(ctx, msg)
	if err != nil {
		return err
	}
	if d == nil {
		return nil
	}
	return p.punish(ctx, msg, d)
}

// sampleAI runs filters 4-6 and returns a non-nil decision only when the AI
// call happened and its result should be accepted.
func (p *Pipeline) sampleAI(ctx context.Context, msg platform.MessageEnvelope) (*decision, error) {
	base := p.runtime.Base()
	now := p.clock.Now()

	if !p.runtime.AIModerationEnabled(ctx) {
		return nil, nil
	}
	if len(msg.Text) < base.AIModerationMinChars {
		return nil, nil
	}
	if p.draw() >= base.AIModerationSampleRate {
		return nil, nil
	}

	profile, err := p.store.GetProfile(ctx, msg.UserID)
	if err != nil && err != store.ErrNotFound {
		return nil, fmt.Errorf("moderation: get profile: %w", err)
	}
	if profile != nil && profile.LastAICheckAt.Valid {
		elapsed := now.Sub(profile.LastAICheckAt.Time)
		if elapsed < time.Duration(base.AIModerationCooldownSec)*time.Second {
			return nil, nil
		}
	}

	// Stamped before the call so the cooldown holds even if the call fails
	// or the caller is racing another message from the same user (§4.7 step 5).
	if err := p.store.StampAICheck(ctx, msg.UserID, now); err != nil {
		return nil, fmt.Errorf("moderation: stamp ai check: %w", err)
	}

	result := p.classifier.Classify(ctx, msg.Text, base.AIProhibitedLabels)
	if result == nil || !result.IsProhibited {
		return nil, nil
	}
	if result.Confidence < base.AIConfidenceThreshold {
		return nil, nil
	}
	if !containsLabel(base.AIProhibitedLabels, result.Label) {
		return nil, nil
	}

	return &decision{
		reasonType: store.ReasonAI,
		aiLabel:    result.Label,
		aiConf:     result.Confidence,
		aiReason:   result.Reason,
	}, nil
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
