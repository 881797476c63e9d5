package slaybot

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

// ConfirmOutcome is the result of a yes/no confirmation prompt.
type ConfirmOutcome int

const (
	// ConfirmDenied is the zero value. A prompt that expires or errors
	// is treated the same as an explicit denial.
	ConfirmDenied ConfirmOutcome = iota

	// ConfirmAccepted means the original requester pressed Confirm
	ConfirmAccepted

	// ConfirmTimedOut means the prompt expired with no response
	ConfirmTimedOut
)

func (c ConfirmOutcome) String() string {
	switch c {
	case ConfirmAccepted:
		return "confirmed"
	case ConfirmTimedOut:
		return "timed_out"
	default:
		return "denied"
	}
}

// Accepted collapses the three-way outcome to the boolean callers act on:
// only an explicit confirmation proceeds.
func (c ConfirmOutcome) Accepted() bool {
	return c == ConfirmAccepted
}

// Custom ID prefixes for the ephemeral confirm/deny buttons. The full
// custom ID is "<prefix>:<nonce>" where nonce is unique per prompt, so
// stale button presses from an expired prompt never resolve a new one.
const (
	customIDConfirmPrefix = "confirm"
	customIDDenyPrefix    = "deny"
)

// confirmPrompt tracks one in-flight confirmation. The first button press
// wins: resolve is guarded by a sync.Once, and later presses (or the
// timeout) are no-ops.
type confirmPrompt struct {
	nonce   string
	userID  string
	once    sync.Once
	outcome chan ConfirmOutcome
}

func newConfirmPrompt(userID string) *confirmPrompt {
	return &confirmPrompt{
		nonce:   uuid.NewString(),
		userID:  userID,
		outcome: make(chan ConfirmOutcome, 1),
	}
}

// resolve records the outcome if the prompt is still open. Safe to call
// any number of times from any goroutine.
func (p *confirmPrompt) resolve(outcome ConfirmOutcome) {
	p.once.Do(func() {
		p.outcome <- outcome
	})
}

// Await blocks until the prompt is resolved, the timeout elapses, or ctx
// is cancelled. Timeout and cancellation resolve the prompt as timed out,
// so a button press racing the deadline still only produces one outcome.
func (p *confirmPrompt) Await(
	ctx context.Context,
	timeout time.Duration,
) ConfirmOutcome {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case outcome := <-p.outcome:
		return outcome
	case <-timer.C:
		p.resolve(ConfirmTimedOut)
		return <-p.outcome
	case <-ctx.Done():
		p.resolve(ConfirmTimedOut)
		return <-p.outcome
	}
}

// components returns the Confirm/Deny button row for this prompt.
func (p *confirmPrompt) components() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Confirm",
					Style:    discordgo.SuccessButton,
					CustomID: customIDConfirmPrefix + ":" + p.nonce,
				},
				discordgo.Button{
					Label:    "Deny",
					Style:    discordgo.DangerButton,
					CustomID: customIDDenyPrefix + ":" + p.nonce,
				},
			},
		},
	}
}
