// Package router maps a recognized or typed command to a spoken reply and,
// for some commands, a runtime side effect.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sync/atomic"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/jarvis/internal/audio"
	"github.com/rbright/jarvis/internal/config"
	"github.com/rbright/jarvis/internal/fsm"
)

const (
	lineFallback = "I'm afraid I can't do that, but I can try something else."
	lineGoodbye  = "Goodbye."
	lineTextMode = "Right away. Switching to typing mode."

	defaultFixedThreshold = 400
	defaultThreshold      = 300
	minThreshold          = 50
	maxThreshold          = 1200
	thresholdStep         = 100

	defaultPause      = 1.0
	defaultPhrase     = 12.0
	maxPhraseLimit    = 20.0
	minPhraseLimit    = 5.0
	minPause          = 0.5
	micPreviewEntries = 5
)

var (
	exitPattern       = regexp.MustCompile(`\b(exit|quit|goodbye|good bye)\b`)
	timePattern       = regexp.MustCompile(`\b(what(?:'s| is) the time|what time is it|tell me the time)\b`)
	datePattern       = regexp.MustCompile(`\b(what is the date|what's the date|today's date|todays date|date)\b`)
	timerPattern      = regexp.MustCompile(`set timer for\s+(.+)$`)
	remindPattern     = regexp.MustCompile(`remind me to\s+(.+)\s+in\s+(.+)$`)
	durationPattern   = regexp.MustCompile(`^(\d+)\s*(seconds|second|minutes|minute|hours|hour)\b`)
	fixedPattern      = regexp.MustCompile(`use\s+fixed\s+(?:sensitivity|threshold)\s*(\d+)?`)
	microphonePattern = regexp.MustCompile(`use\s+(?:microphone|mic)\s*(?:number|index)?\s*(\d+)`)
	recorderPattern   = regexp.MustCompile(`use\s+(?:recorder|sounddevice)\s*(?:number|index)?\s*(\d+)`)
	spacePattern      = regexp.MustCompile(`\s+`)
)

var (
	cancelTimerPhrases = []string{"cancel timers", "cancel timer", "cancel all timers", "stop timers"}
	autoSensPhrases    = []string{"use automatic sensitivity", "use auto sensitivity", "automatic sensitivity", "auto sensitivity"}
	moreSensPhrases    = []string{"increase sensitivity", "more sensitive"}
	lessSensPhrases    = []string{"decrease sensitivity", "less sensitive", "reduce sensitivity"}
	longerPhrases      = []string{"don't cut me off", "do not cut me off", "give me more time", "longer listening", "extend listening", "listen longer"}
	fasterPhrases      = []string{"be faster", "shorter listening", "cut quicker", "listen less"}
	robustPhrases      = []string{"use robust speech", "force speech fallback", "reset speech", "reset tts"}
	normalPhrases      = []string{"use normal speech", "use default speech", "stop robust speech"}
	textModePhrases    = []string{"switch to typing", "switch to text mode", "go to text mode", "typing mode", "text mode", "stop listening"}
	listMicPhrases     = []string{"list microphones", "list mics"}
	defaultMicPhrases  = []string{"use default microphone", "use normal microphone"}
	identityPhrases    = []string{"what is your name", "what's your name", "who are you"}
	howAreYouPhrases   = []string{"how are you", "how's it going", "how is it going"}
	thanksPhrases      = []string{"thank you", "thanks", "appreciate it"}
	creatorPhrases     = []string{"who created you", "who made you", "who built you"}
	abilityPhrases     = []string{"what can you do", "what are your abilities", "help me", "what do you do"}
	testSpeechPhrases  = []string{"test tts", "test speech", "speak test"}
	hearMePhrases      = []string{"can you hear me", "are you listening", "do you hear me"}
	greetingPhrases    = []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening"}
)

// Runtime is the slice of runtime configuration commands may change.
// *runtimecfg.Runtime satisfies it.
type Runtime interface {
	SetDynamicEnergy(enabled bool)
	SetEnergyThreshold(value int)
	ClearEnergyThreshold()
	EnergyThresholdOverride() (int, bool)
	SetPauseThreshold(seconds float64)
	PauseThresholdOverride() (float64, bool)
	SetPhraseTimeLimit(seconds float64)
	PhraseTimeLimitOverride() (float64, bool)
	SetForceFallback(enabled bool)
	SetBackend(backend string)
	SetPrimaryDevice(index int)
	ClearPrimaryDevice()
	SetAlternateDevice(index int)
	RequestMode(mode fsm.Mode)
}

// Timers schedules and cancels spoken timers.
type Timers interface {
	After(delay time.Duration, label string, fn func()) uuid.UUID
	CancelAll() int
}

// Store persists reminders and notes.
type Store interface {
	AddReminder(ctx context.Context, text string, due time.Time) (int64, error)
	AddNote(ctx context.Context, content string) (int64, error)
}

type Speaker interface {
	Say(text string)
}

// DeviceLister enumerates capture sources.
type DeviceLister func(ctx context.Context) ([]audio.Device, error)

// Deps are the collaborators a Router acts through. Devices and Logger may be nil.
type Deps struct {
	Identity config.AssistantConfig
	Runtime  Runtime
	Timers   Timers
	Store    Store
	Speaker  Speaker
	Devices  DeviceLister
	Logger   *slog.Logger
}

type Router struct {
	deps  Deps
	now   func() time.Time
	jokes atomic.Uint32
}

func New(deps Deps) *Router {
	return &Router{deps: deps, now: time.Now}
}

// Greeting is the startup salutation for the given local time.
func Greeting(now time.Time, assistant, user string) string {
	return fmt.Sprintf("%s, %s. I am %s.", salutation(now), user, assistant)
}

func salutation(now time.Time) string {
	switch hour := now.Hour(); {
	case hour < 12:
		return "Good morning"
	case hour < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

// Normalize lowercases, straightens typographic quotes, and collapses whitespace.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.NewReplacer("’", "'", "‘", "'", "“", `"`, "”", `"`).Replace(text)
	return spacePattern.ReplaceAllString(text, " ")
}

// Handle runs the first matching rule and reports whether the assistant should exit.
func (r *Router) Handle(ctx context.Context, text string) bool {
	c := Normalize(text)
	if c == "" {
		return false
	}

	switch {
	case exitPattern.MatchString(c):
		r.say(lineGoodbye)
		return true

	case timePattern.MatchString(c) || c == "time":
		r.say("The time is " + r.now().Format("3:04 PM") + ".")

	case datePattern.MatchString(c):
		r.say("Today is " + r.now().Format("Monday, January 02, 2006") + ".")

	case timerPattern.MatchString(c):
		r.setTimer(timerPattern.FindStringSubmatch(c)[1])

	case containsAny(c, cancelTimerPhrases):
		r.cancelTimers()

	case remindPattern.MatchString(c):
		m := remindPattern.FindStringSubmatch(c)
		r.remind(ctx, strings.TrimSpace(m[1]), m[2])

	case strings.Contains(c, "take a note") || strings.HasPrefix(c, "note ") || strings.HasPrefix(c, "note:"):
		r.note(ctx, c)

	case containsAny(c, autoSensPhrases):
		r.deps.Runtime.SetDynamicEnergy(true)
		r.deps.Runtime.ClearEnergyThreshold()
		r.say("Okay. I'll automatically adjust to the room noise.")

	case fixedPattern.MatchString(c):
		r.fixedSensitivity(fixedPattern.FindStringSubmatch(c)[1])

	case containsAny(c, moreSensPhrases):
		value := max(minThreshold, r.currentThreshold()-thresholdStep)
		r.deps.Runtime.SetDynamicEnergy(false)
		r.deps.Runtime.SetEnergyThreshold(value)
		r.say(fmt.Sprintf("Increased sensitivity. Threshold is now %d.", value))

	case containsAny(c, lessSensPhrases):
		value := min(maxThreshold, r.currentThreshold()+thresholdStep)
		r.deps.Runtime.SetDynamicEnergy(false)
		r.deps.Runtime.SetEnergyThreshold(value)
		r.say(fmt.Sprintf("Decreased sensitivity. Threshold is now %d.", value))

	case containsAny(c, longerPhrases):
		pause, phrase := r.currentTiming()
		r.deps.Runtime.SetPauseThreshold(pause + 0.3)
		r.deps.Runtime.SetPhraseTimeLimit(min(maxPhraseLimit, phrase+4))
		r.say("Okay. I'll give you a bit more time to speak.")

	case containsAny(c, fasterPhrases):
		pause, phrase := r.currentTiming()
		r.deps.Runtime.SetPauseThreshold(max(minPause, pause-0.2))
		r.deps.Runtime.SetPhraseTimeLimit(max(minPhraseLimit, phrase-3))
		r.say("Okay. I'll be a bit quicker.")

	case containsAny(c, robustPhrases):
		r.deps.Runtime.SetForceFallback(true)
		r.say("Understood. I'll use a more robust speech system for now.")

	case containsAny(c, normalPhrases):
		r.deps.Runtime.SetForceFallback(false)
		r.say("Okay. I'll use the default speech system.")

	case containsAny(c, textModePhrases):
		r.say(lineTextMode)
		r.deps.Runtime.RequestMode(fsm.ModeText)

	case containsAny(c, listMicPhrases):
		r.listMicrophones(ctx)

	case microphonePattern.MatchString(c):
		index, _ := strconv.Atoi(microphonePattern.FindStringSubmatch(c)[1])
		r.deps.Runtime.SetPrimaryDevice(index)
		r.deps.Runtime.SetBackend(config.BackendPrimary)
		r.say(fmt.Sprintf("I'll use microphone number %d.", index))

	case recorderPattern.MatchString(c):
		index, _ := strconv.Atoi(recorderPattern.FindStringSubmatch(c)[1])
		r.deps.Runtime.SetAlternateDevice(index)
		r.deps.Runtime.SetBackend(config.BackendAlternate)
		r.say(fmt.Sprintf("I'll use alternative recorder number %d.", index))

	case containsAny(c, defaultMicPhrases):
		r.deps.Runtime.ClearPrimaryDevice()
		r.deps.Runtime.SetBackend(config.BackendPrimary)
		r.say("I'll use the default microphone.")

	default:
		r.say(r.reply(c))
	}
	return false
}

// reply covers small talk, jokes, arithmetic, and temperature conversion,
// falling back to the apology line.
func (r *Router) reply(c string) string {
	if line, ok := r.canned(c); ok {
		return line
	}
	if strings.Contains(c, "joke") {
		return jokes[int(r.jokes.Add(1)-1)%len(jokes)]
	}
	if line, ok := arithmeticReply(c); ok {
		return line
	}
	if line, ok := temperatureReply(c); ok {
		return line
	}
	if isGreeting(c) {
		id := r.deps.Identity
		return Greeting(r.now(), id.Name, id.UserName)
	}
	return lineFallback
}

func (r *Router) canned(c string) (string, bool) {
	id := r.deps.Identity
	switch {
	case containsAny(c, identityPhrases):
		return fmt.Sprintf("%s. I am %s, your personal assistant, here to help you, %s.", salutation(r.now()), id.Name, id.UserName), true
	case containsAny(c, howAreYouPhrases):
		return "I'm functioning at peak efficiency and ready to assist. How can I help you?", true
	case containsAny(c, thanksPhrases):
		return "You're welcome. Always happy to help.", true
	case containsAny(c, creatorPhrases):
		return fmt.Sprintf("I was assembled right here to assist you, %s.", id.UserName), true
	case containsAny(c, abilityPhrases):
		return "I can tell the time and date, set timers and reminders, take notes, do quick math, convert temperatures, and tune how I listen and speak. What would you like?", true
	case containsAny(c, testSpeechPhrases):
		return "This is a test of my speech system. If you can hear me clearly, everything is working.", true
	case containsAny(c, hearMePhrases):
		return "Loud and clear. Go ahead.", true
	default:
		return "", false
	}
}

func (r *Router) setTimer(raw string) {
	d, desc, ok := parseDuration(raw)
	if !ok {
		r.say("Please specify a valid duration.")
		return
	}
	r.say("Timer set for " + desc + ".")
	done := fmt.Sprintf("Time's up, %s.", r.deps.Identity.UserName)
	r.deps.Timers.After(d, "timer "+desc, func() { r.say(done) })
}

func (r *Router) cancelTimers() {
	switch n := r.deps.Timers.CancelAll(); n {
	case 0:
		r.say("There are no timers running.")
	case 1:
		r.say("Cancelled 1 timer.")
	default:
		r.say(fmt.Sprintf("Cancelled %d timers.", n))
	}
}

func (r *Router) remind(ctx context.Context, task string, raw string) {
	d, desc, ok := parseDuration(raw)
	if !ok || task == "" {
		r.say("Please specify a valid reminder time.")
		return
	}
	if _, err := r.deps.Store.AddReminder(ctx, task, r.now().Add(d)); err != nil {
		r.logError("save reminder", err)
		r.say("I couldn't save that reminder.")
		return
	}
	r.say("Reminder set for " + desc + ".")
}

func (r *Router) note(ctx context.Context, c string) {
	var content string
	if i := strings.Index(c, "take a note"); i >= 0 {
		content = c[i+len("take a note"):]
	} else {
		content = strings.TrimPrefix(c, "note")
	}
	content = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(content), ":,"))
	if content == "" {
		r.say("What would you like me to note?")
		return
	}
	if _, err := r.deps.Store.AddNote(ctx, content); err != nil {
		r.logError("save note", err)
		r.say("I couldn't save that note.")
		return
	}
	r.say("Noted.")
}

func (r *Router) fixedSensitivity(raw string) {
	r.deps.Runtime.SetDynamicEnergy(false)
	if raw == "" {
		r.deps.Runtime.SetEnergyThreshold(defaultFixedThreshold)
		r.say("Understood. Using a fixed threshold suitable for noisy rooms.")
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		r.say("I couldn't change the sensitivity right now.")
		return
	}
	r.deps.Runtime.SetEnergyThreshold(value)
	r.say(fmt.Sprintf("Understood. Fixed threshold set to %d.", value))
}

func (r *Router) listMicrophones(ctx context.Context) {
	if r.deps.Devices == nil {
		r.say("I couldn't access the microphone list.")
		return
	}
	devices, err := r.deps.Devices(ctx)
	if err != nil {
		r.logError("list microphones", err)
		r.say("I couldn't access the microphone list.")
		return
	}
	if len(devices) == 0 {
		r.say("I couldn't find any microphones.")
		return
	}

	preview := make([]string, 0, micPreviewEntries)
	for _, d := range devices[:min(micPreviewEntries, len(devices))] {
		name := d.Description
		if name == "" {
			name = d.ID
		}
		preview = append(preview, fmt.Sprintf("%d: %s", d.Index, name))
	}
	r.say(fmt.Sprintf("I found %d microphones. For example: %s.", len(devices), strings.Join(preview, ", ")))
}

func (r *Router) currentThreshold() int {
	if v, ok := r.deps.Runtime.EnergyThresholdOverride(); ok {
		return v
	}
	return defaultThreshold
}

func (r *Router) currentTiming() (pause float64, phrase float64) {
	pause, phrase = defaultPause, defaultPhrase
	if v, ok := r.deps.Runtime.PauseThresholdOverride(); ok {
		pause = v
	}
	if v, ok := r.deps.Runtime.PhraseTimeLimitOverride(); ok {
		phrase = v
	}
	return pause, phrase
}

func (r *Router) say(text string) {
	r.deps.Speaker.Say(text)
}

func (r *Router) logError(action string, err error) {
	if r.deps.Logger == nil {
		return
	}
	r.deps.Logger.Error("command failed", "action", action, "error", err.Error())
}

// parseDuration reads "N second(s)|minute(s)|hour(s)" and echoes it back for replies.
func parseDuration(raw string) (time.Duration, string, bool) {
	m := durationPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, "", false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, "", false
	}
	unit := time.Second
	switch {
	case strings.HasPrefix(m[2], "minute"):
		unit = time.Minute
	case strings.HasPrefix(m[2], "hour"):
		unit = time.Hour
	}
	if n > math.MaxInt64/int64(unit) {
		return 0, "", false
	}
	return time.Duration(n) * unit, m[1] + " " + m[2], true
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func isGreeting(c string) bool {
	c = strings.Trim(c, " .!?,")
	for _, p := range greetingPhrases {
		if c == p || strings.HasPrefix(c, p+" ") {
			return true
		}
	}
	return false
}
