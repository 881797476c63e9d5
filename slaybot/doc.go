// Package slaybot implements a Discord bot that keeps a per-guild tally of
// unironic uses of the word 'slay', alongside a handful of novelty slash
// commands.
//
// The tally is displayed in a pinned embed message with attached +1/-1
// buttons. The displayed value is backed by a sqlite database so that the
// count, and the buttons controlling it, survive restarts. When the display
// message is deleted or becomes inaccessible, the counter is deactivated
// (the count itself is preserved) until an operator re-initializes it with
// the /init_counter command.
//
// Key components of the package include:
//
//   - SlayBot: The main struct tying together configuration, persistence,
//     the Discord session and the status API.
//   - CountTracker: Orchestrates counter initialization, override
//     confirmation and the increment/decrement button flow.
//   - Discord: Wraps the discordgo session behind a mockable interface.
//   - A small read-only HTTP status API (health check and counter listing).
//
// Supported commands:
//
//   - /init_counter: Creates (or, after confirmation, overrides) the
//     guild's counter display message.
//   - /roll, /choose, /turtle, /r8, /how, /clap, /mock, /box: Novelty
//     commands that respond immediately and keep no state.
package slaybot
