// Package bot implements the Telegram surface of the coaching service.
//
// Commands cover onboarding (/start), WHOOP account linking (/linkwhoop),
// stored daily reports (/report) and live sleep lookups (/sleep). Any other
// text is answered by the GenAI coach with the user's recent history and the
// day's metrics as context.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v3"

	"pulsecoach/internal/models"
	"pulsecoach/internal/report"
	"pulsecoach/internal/store"
	"pulsecoach/internal/whoop"
)

// Defaults for bot configuration.
const (
	DefaultPollerTimeout = 10 * time.Second
	DefaultHistoryLimit  = 100
	defaultCoachTimeout  = 60 * time.Second
)

// Linker is the slice of the WHOOP client used for account linking and live
// sleep lookups.
type Linker interface {
	BeginLink(userID string) (string, error)
	FetchSleep(ctx context.Context, userID string, q whoop.Query) ([]models.SleepRecord, error)
}

// Coach generates conversational replies.
type Coach interface {
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Opts holds configuration options for the bot.
type Opts struct {
	Token         string
	PollerTimeout time.Duration
	Location      *time.Location
	HistoryLimit  int
}

// Option defines a configuration option for the bot.
type Option func(*Opts)

// WithToken sets the Telegram bot token.
func WithToken(token string) Option {
	return func(o *Opts) {
		o.Token = token
	}
}

// WithPollerTimeout sets the long poller timeout.
func WithPollerTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.PollerTimeout = d
	}
}

// WithLocation sets the time zone used for default report dates.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) {
		o.Location = loc
	}
}

// WithHistoryLimit caps how many chat turns feed the coach prompt.
func WithHistoryLimit(n int) Option {
	return func(o *Opts) {
		o.HistoryLimit = n
	}
}

// Bot wires Telegram updates to the store, the WHOOP client and the coach.
type Bot struct {
	bot          *tele.Bot
	store        store.Store
	whoop        Linker
	coach        Coach
	loc          *time.Location
	historyLimit int
}

// NewBot creates a bot from the given dependencies. The Telegram token is
// required.
func NewBot(st store.Store, linker Linker, coach Coach, opts ...Option) (*Bot, error) {
	cfg := Opts{PollerTimeout: DefaultPollerTimeout, Location: time.UTC, HistoryLimit: DefaultHistoryLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token not set")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollerTimeout},
	}
	tb, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	b := &Bot{
		bot:          tb,
		store:        st,
		whoop:        linker,
		coach:        coach,
		loc:          cfg.Location,
		historyLimit: cfg.HistoryLimit,
	}
	b.registerHandlers()
	slog.Debug("Bot created", "pollerTimeout", cfg.PollerTimeout, "location", cfg.Location.String())
	return b, nil
}

// Start begins long polling. It blocks until Stop is called.
func (b *Bot) Start() {
	slog.Info("Bot.Start: polling for updates")
	b.bot.Start()
}

// Stop halts the poller.
func (b *Bot) Stop() {
	b.bot.Stop()
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/linkwhoop", b.handleLinkWhoop)
	b.bot.Handle("/report", b.handleReport)
	b.bot.Handle("/sleep", b.handleSleep)
	b.bot.Handle(tele.OnText, b.handleChat)
}

func (b *Bot) handleStart(c tele.Context) error {
	userID := strconv.FormatInt(c.Sender().ID, 10)
	existing, err := b.store.GetUser(userID)
	if err != nil {
		slog.Error("Bot.handleStart: user lookup failed", "error", err, "userID", userID)
		return c.Send(msgTryLater)
	}
	if existing == nil {
		user := models.User{ID: userID, Name: c.Sender().FirstName, JoinedAt: time.Now().UTC()}
		if err := b.store.SaveUser(user); err != nil {
			slog.Error("Bot.handleStart: user save failed", "error", err, "userID", userID)
			return c.Send(msgTryLater)
		}
		slog.Info("Bot.handleStart: new user registered", "userID", userID)
	}
	return c.Send(startText)
}

func (b *Bot) handleLinkWhoop(c tele.Context) error {
	userID := strconv.FormatInt(c.Sender().ID, 10)
	authURL, err := b.whoop.BeginLink(userID)
	if err != nil {
		slog.Error("Bot.handleLinkWhoop: begin link failed", "error", err, "userID", userID)
		return c.Send(msgTryLater)
	}
	msg := fmt.Sprintf(linkPromptFormat, authURL)
	return c.Send(msg, &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true})
}

func (b *Bot) handleReport(c tele.Context) error {
	userID := strconv.FormatInt(c.Sender().ID, 10)
	user, err := b.store.GetUser(userID)
	if err != nil {
		slog.Error("Bot.handleReport: user lookup failed", "error", err, "userID", userID)
		return c.Send(msgTryLater)
	}
	if user == nil {
		return c.Send(msgStartFirst)
	}

	date := strings.TrimSpace(c.Message().Payload)
	if date == "" {
		date = time.Now().In(b.loc).Format(models.DateLayout)
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return c.Send(msgInvalidDate)
	}

	metrics, err := b.store.GetDailyMetrics(userID, date)
	if err != nil {
		slog.Error("Bot.handleReport: metrics lookup failed", "error", err, "userID", userID, "date", date)
		return c.Send(msgTryLater)
	}
	if metrics == nil || metrics.Empty() {
		return c.Send(fmt.Sprintf(noDataFormat, date))
	}

	reportText := report.Daily(metrics)
	analysis := b.analyzeMetrics(metrics)
	final := fmt.Sprintf("%s\n<b>Analysis</b>\n%s", reportText, analysis)

	b.recordExchange(userID, c.Message().Text, final)
	return c.Send(final, &tele.SendOptions{ParseMode: tele.ModeHTML})
}

// analyzeMetrics asks the coach for a short commentary on the raw records.
func (b *Bot) analyzeMetrics(m *models.DailyMetrics) string {
	sleepJSON, _ := json.Marshal(m.SleepRecords)
	recoveryJSON, _ := json.Marshal(m.RecoveryRecords)
	workoutJSON, _ := json.Marshal(m.WorkoutRecords)
	prompt := fmt.Sprintf(healthReportPrompt, m.Date, sleepJSON, recoveryJSON, workoutJSON)

	ctx, cancel := context.WithTimeout(context.Background(), defaultCoachTimeout)
	defer cancel()
	analysis, err := b.coach.GeneratePrompt(ctx, prompt, "Analyze my health data.")
	if err != nil {
		slog.Warn("Bot.analyzeMetrics: analysis generation failed", "error", err, "userID", m.UserID)
		return "No analysis available."
	}
	return report.ConvertMarkdownBold(strings.TrimSpace(analysis))
}

func (b *Bot) handleSleep(c tele.Context) error {
	userID := strconv.FormatInt(c.Sender().ID, 10)
	user, err := b.store.GetUser(userID)
	if err != nil {
		slog.Error("Bot.handleSleep: user lookup failed", "error", err, "userID", userID)
		return c.Send(msgTryLater)
	}
	if user == nil {
		return c.Send(msgStartFirst)
	}

	date := strings.TrimSpace(c.Message().Payload)
	if date == "" {
		date = time.Now().In(b.loc).AddDate(0, 0, -1).Format(models.DateLayout)
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return c.Send(msgInvalidDate)
	}

	ctx, cancel := context.WithTimeout(context.Background(), whoop.DefaultTimeout)
	defer cancel()
	records, err := b.whoop.FetchSleep(ctx, userID, whoop.Query{StartDate: date, Limit: 1})
	if err != nil {
		return c.Send(b.whoopErrorMessage(err, userID))
	}
	if len(records) == 0 {
		return c.Send(fmt.Sprintf(noSleepDataFormat, date))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🛏️ Sleep Report for %s:\n\n", date)
	for _, rec := range records {
		stages := rec.Score.StageSummary
		slowWave := stages.TotalSlowWaveSleepTimeMilli
		rem := stages.TotalRemSleepTimeMilli
		fmt.Fprintf(&sb, "* Slow wave sleep: %s\n", report.FormatDuration(slowWave))
		fmt.Fprintf(&sb, "* REM sleep: %s\n", report.FormatDuration(rem))
		fmt.Fprintf(&sb, "* Sum: %s\n", report.FormatDuration(slowWave+rem))
	}
	return c.Send(sb.String())
}

// whoopErrorMessage maps client error kinds onto user-facing wording.
func (b *Bot) whoopErrorMessage(err error, userID string) string {
	switch whoop.KindOf(err) {
	case whoop.KindNotLinked:
		return msgLinkFirst
	case whoop.KindAuthExpired:
		return msgRelink
	default:
		slog.Error("Bot.whoopErrorMessage: upstream fetch failed", "error", err, "userID", userID)
		return msgWhoopTryLater
	}
}

func (b *Bot) handleChat(c tele.Context) error {
	userID := strconv.FormatInt(c.Sender().ID, 10)
	userMessage := c.Message().Text

	history, err := b.store.GetChatHistory(userID, b.historyLimit)
	if err != nil {
		slog.Error("Bot.handleChat: history lookup failed", "error", err, "userID", userID)
		return c.Send(msgTryLater)
	}

	today := time.Now().In(b.loc).Format(models.DateLayout)
	metrics, err := b.store.GetDailyMetrics(userID, today)
	if err != nil {
		slog.Warn("Bot.handleChat: metrics lookup failed", "error", err, "userID", userID, "date", today)
	}

	prompt := fmt.Sprintf(systemInstructions,
		c.Sender().FirstName, report.OneLine(metrics), renderHistory(history), userMessage)

	ctx, cancel := context.WithTimeout(context.Background(), defaultCoachTimeout)
	defer cancel()
	reply, err := b.coach.GeneratePrompt(ctx, prompt, userMessage)
	if err != nil {
		slog.Error("Bot.handleChat: generation failed", "error", err, "userID", userID)
		return c.Send(msgTryLater)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return c.Send(msgNoReply)
	}
	reply = report.ConvertMarkdownBold(reply)

	b.recordExchange(userID, userMessage, reply)
	return c.Send(reply, &tele.SendOptions{ParseMode: tele.ModeHTML})
}

// recordExchange persists both sides of one conversational turn. Persistence
// failures are logged and swallowed so the user still gets the reply.
func (b *Bot) recordExchange(userID, userMessage, reply string) {
	now := time.Now().UTC()
	userMsg := models.ChatMessage{
		ID: uuid.NewString(), UserID: userID, Role: models.ChatRoleUser,
		Content: userMessage, Timestamp: now,
	}
	if err := b.store.AddChatMessage(userMsg); err != nil {
		slog.Warn("Bot.recordExchange: failed to store user message", "error", err, "userID", userID)
	}
	botMsg := models.ChatMessage{
		ID: uuid.NewString(), UserID: userID, Role: models.ChatRoleAssistant,
		Content: reply, Timestamp: now.Add(time.Millisecond),
	}
	if err := b.store.AddChatMessage(botMsg); err != nil {
		slog.Warn("Bot.recordExchange: failed to store assistant message", "error", err, "userID", userID)
	}
}

// renderHistory flattens chat turns into prompt context.
func renderHistory(history []models.ChatMessage) string {
	if len(history) == 0 {
		return "No history"
	}
	var sb strings.Builder
	for _, m := range history {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}
	return sb.String()
}

// NotifyLinked tells a user their WHOOP account was connected. Called from the
// OAuth callback after CompleteLink succeeds.
func (b *Bot) NotifyLinked(userID string) error {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram user id %q: %w", userID, err)
	}
	if _, err := b.bot.Send(tele.ChatID(id), msgLinked); err != nil {
		slog.Error("Bot.NotifyLinked: send failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to notify user %s: %w", userID, err)
	}
	slog.Info("Bot.NotifyLinked: user notified", "userID", userID)
	return nil
}

// CheckInAll sends a proactive coaching message to each user the coach deems
// receptive. One user's failure never stops the sweep.
func (b *Bot) CheckInAll(ctx context.Context) error {
	users, err := b.store.ListUsers()
	if err != nil {
		slog.Error("Bot.CheckInAll: listing users failed", "error", err)
		return fmt.Errorf("failed to list users: %w", err)
	}
	today := time.Now().In(b.loc).Format(models.DateLayout)

	for _, user := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := b.checkIn(ctx, user, today); err != nil {
			slog.Warn("Bot.CheckInAll: check-in failed", "error", err, "userID", user.ID)
		}
	}
	slog.Info("Bot.CheckInAll: sweep complete", "users", len(users))
	return nil
}

func (b *Bot) checkIn(ctx context.Context, user models.User, date string) error {
	history, err := b.store.GetChatHistory(user.ID, b.historyLimit)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	decision, err := b.coach.GeneratePrompt(ctx,
		fmt.Sprintf(shouldSendMessagePrompt, renderHistory(history)), "Decide.")
	if err != nil {
		return fmt.Errorf("failed to decide on check-in: %w", err)
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(decision)), "yes") {
		slog.Debug("Bot.checkIn: skipping user", "userID", user.ID)
		return nil
	}

	metrics, err := b.store.GetDailyMetrics(user.ID, date)
	if err != nil {
		return fmt.Errorf("failed to load metrics: %w", err)
	}
	prompt := fmt.Sprintf(systemInstructions,
		user.Name, report.OneLine(metrics), renderHistory(history), "")
	message, err := b.coach.GeneratePrompt(ctx, prompt,
		"Write a short proactive check-in message for the user.")
	if err != nil {
		return fmt.Errorf("failed to generate check-in: %w", err)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil
	}
	message = report.ConvertMarkdownBold(message)

	id, err := strconv.ParseInt(user.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram user id %q: %w", user.ID, err)
	}
	if _, err := b.bot.Send(tele.ChatID(id), message, &tele.SendOptions{ParseMode: tele.ModeHTML}); err != nil {
		return fmt.Errorf("failed to send check-in: %w", err)
	}
	botMsg := models.ChatMessage{
		ID: uuid.NewString(), UserID: user.ID, Role: models.ChatRoleAssistant,
		Content: message, Timestamp: time.Now().UTC(),
	}
	if err := b.store.AddChatMessage(botMsg); err != nil {
		slog.Warn("Bot.checkIn: failed to store check-in message", "error", err, "userID", user.ID)
	}
	return nil
}
