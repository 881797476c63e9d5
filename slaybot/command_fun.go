package slaybot

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// Command and option names for the joke commands.
const (
	commandRoll   = "roll"
	commandChoose = "choose"
	commandTurtle = "turtle"
	commandR8     = "r8"
	commandHow    = "how"
	commandBox    = "box"
	commandClap   = "clap"
	commandMock   = "mock"

	optionDice     = "dice"
	optionChoices  = "choices"
	optionInput    = "input"
	optionSentence = "sentence"
)

const (
	rollFormatNotice  = "Format has to be in NdN!"
	rollLengthNotice  = "Maximum length of bot text is 2000 characters"
	chooseEmptyNotice = "Give me something to choose from!"
	howUsageNotice    = "```Input must have the \"adjective is/are/was/were subject\" syntax```"
	boxEmptyNotice    = "Give me a sentence to box!"
)

var turtleOutcomes = []string{
	"🌊🐢🐢 A turtle made it to the water!",
	" 🦀🐢🦀 The cycle of life can be cruel...",
}

// FunCommands implements the joke slash commands. All randomness goes
// through a single mutex-guarded source, so tests can seed it.
type FunCommands struct {
	session DiscordSessionHandler
	logger  *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func newFunCommands(
	session DiscordSessionHandler,
	logger *slog.Logger,
) *FunCommands {
	if logger == nil {
		logger = slog.Default()
	}
	return &FunCommands{
		session: session,
		logger:  logger.With(loggerNameKey, "fun"),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// handle responds to one of the joke commands. Replies are public, to
// match the conversational nature of the commands.
func (f *FunCommands) handle(i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	options := discordInteractionOptions(i)
	optionString := func(name string) string {
		if opt, ok := options[name]; ok {
			return opt.StringValue()
		}
		return ""
	}

	f.mu.Lock()
	var content string
	switch data.Name {
	case commandRoll:
		content = rollDice(f.rng, optionString(optionDice))
	case commandChoose:
		content = chooseOption(f.rng, strings.Fields(optionString(optionChoices)))
	case commandTurtle:
		content = turtleOutcome(f.rng)
	case commandR8:
		content = r8(f.rng, optionString(optionInput))
	case commandHow:
		content = howMeasure(f.rng, optionString(optionInput))
	case commandMock:
		content = mockSentence(f.rng, optionString(optionSentence))
	case commandBox:
		content = boxArt(optionString(optionSentence))
	case commandClap:
		content = clapSentence(optionString(optionSentence))
	}
	f.mu.Unlock()

	if content == "" {
		content = "I have nothing to say to that."
	}
	f.reply(i, content)
}

func (f *FunCommands) reply(i *discordgo.InteractionCreate, content string) {
	err := f.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: truncate(content, discordMaxMessageLength),
			},
		},
	)
	if err != nil {
		f.logger.Warn(
			"unable to respond to interaction",
			tint.Err(err),
			"command", i.ApplicationCommandData().Name,
		)
	}
}

// rollDice rolls dice given in NdM form ("3d6"), returning the individual
// rolls as a comma-separated list.
func rollDice(rng *rand.Rand, dice string) string {
	parts := strings.Split(dice, "d")
	if len(parts) != 2 {
		return rollFormatNotice
	}
	rolls, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return rollFormatNotice
	}
	limit, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return rollFormatNotice
	}
	if rolls < 1 || limit < 1 {
		return rollFormatNotice
	}

	results := make([]string, rolls)
	for i := 0; i < rolls; i++ {
		results[i] = strconv.Itoa(1 + rng.Intn(limit))
	}
	result := strings.Join(results, ", ")
	if len(result) > discordMaxMessageLength {
		return rollLengthNotice
	}
	return result
}

// chooseOption settles the score some other way.
func chooseOption(rng *rand.Rand, choices []string) string {
	if len(choices) == 0 {
		return chooseEmptyNotice
	}
	return choices[rng.Intn(len(choices))]
}

// turtleOutcome reports on one turtle's journey. Global ecologies depend
// on this.
func turtleOutcome(rng *rand.Rand) string {
	return turtleOutcomes[rng.Intn(len(turtleOutcomes))]
}

// r8 r8s something out of 8, m8.
func r8(rng *rand.Rand, input string) string {
	return fmt.Sprintf("i r8 %s %d/8 m8", input, rng.Intn(9))
}

// howMeasure determines how great or terrible something is. Input must
// look like "adjective is/are/was/were subject"; the reply flips it into
// "subject is N% adjective" with a questionably distributed N.
func howMeasure(rng *rand.Rand, input string) string {
	splitters := []string{" is ", " are ", " was ", " were "}

	// Later entries in the scan take precedence, so " is " wins when
	// several forms appear.
	splitter := ""
	for idx := len(splitters) - 1; idx >= 0; idx-- {
		if strings.Contains(input, splitters[idx]) {
			splitter = splitters[idx]
		}
	}
	if splitter == "" {
		return howUsageNotice
	}

	pos := strings.Index(input, splitter)
	adjective := input[:pos]
	subject := input[pos+len(splitter):]

	// "how cool is the name of that band" keeps "of that band" with the
	// adjective, so the reply reads naturally.
	for _, secondary := range []string{" to ", " of "} {
		if idx := strings.Index(subject, secondary); idx >= 0 {
			adjective += secondary + subject[idx+len(secondary):]
			subject = subject[:idx]
		}
	}

	percent := -1
	for percent < 0 || percent > 120 {
		percent = int(rng.NormFloat64()*70 + 50)
	}
	if percent > 110 {
		percent = 110 + rng.Intn(191)
	}
	percentStr := strconv.Itoa(percent)
	if percent == 69 {
		percentStr = ":six::nine:"
	}
	sign := ""
	if rng.Intn(10) <= 2 {
		sign = "-"
	}
	return fmt.Sprintf(
		"%s%s%s%s%% %s",
		subject,
		splitter,
		sign,
		percentStr,
		adjective,
	)
}

// clapSentence claps 👏 because 👏 they 👏 are 👏 necessary 👏.
func clapSentence(sentence string) string {
	words := strings.Fields(sentence)
	if len(words) == 0 {
		return " 👏"
	}
	return strings.Join(words, " 👏 ") + " 👏"
}

// mockSentence rewrites a sentence wITh RAndOm cAPItaLIzaTIon.
func mockSentence(rng *rand.Rand, sentence string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(sentence) {
		if rng.Intn(2) == 1 {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// boxArt draws a sentence as the edges of a cube in a monospace block:
// the text runs along the top, bottom and both sides, shifted copies form
// the rear face, and diagonal struts connect the corners.
func boxArt(sentence string) string {
	runes := []rune(sentence)
	n := len(runes)
	if n < 2 {
		return boxEmptyNotice
	}

	var diags int
	if n%2 == 1 {
		diags = n / 2 / 2
	} else {
		diags = n/2 - 2
	}
	if diags < 0 {
		diags = 0
	}
	size := n + diags + 1

	grid := make([][]rune, size)
	for row := range grid {
		grid[row] = make([]rune, size)
		for col := range grid[row] {
			grid[row][col] = ' '
		}
	}

	drawFace := func(offset int) {
		for idx, r := range runes {
			grid[offset][offset+idx] = r
			grid[offset+idx][offset] = r
			grid[offset+n-1][offset+idx] = runes[n-1-idx]
			grid[offset+idx][offset+n-1] = runes[n-1-idx]
		}
	}

	// Rear face first (shifted toward the bottom-right), front face on
	// top, then the diagonal struts between matching corners.
	drawFace(diags + 1)
	drawFace(0)
	for d := 0; d < diags; d++ {
		grid[d+1][d+1] = '╲'
		grid[d+1][n+d] = '╲'
		grid[n+d][d+1] = '╲'
		grid[n+d][n+d] = '╲'
	}

	lines := make([]string, size)
	for row := range grid {
		spaced := make([]string, size)
		for col, r := range grid[row] {
			spaced[col] = string(r)
		}
		lines[row] = strings.TrimRight(strings.Join(spaced, " "), " ")
	}
	return fmt.Sprintf("```\n%s\n```", strings.Join(lines, "\n"))
}
