package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ObiAU/newssearch/internal/logging"
	"github.com/ObiAU/newssearch/internal/models"
)

const (
	maxSummaryLen = 2500
	maxPointLen   = 300
	maxResults    = 5
	searchTimeout = 3 * time.Minute
)

type Searcher interface {
	Search(ctx context.Context, q models.Query) (*models.QueryResult, error)
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api        *tgbotapi.BotAPI
	send       sender
	webhookURL string
	searcher   Searcher
	log        *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	draining bool
	wg       sync.WaitGroup
}

func NewBot(token, webhookURL string, searcher Searcher) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Bot{
		api:        api,
		send:       api,
		webhookURL: webhookURL,
		searcher:   searcher,
		log:        logging.New("telegram"),
		ctx:        context.Background(),
	}, nil
}

// Start registers the webhook when a URL is configured and otherwise polls
// for updates until ctx is done. Webhook updates arrive through ServeHTTP.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	if b.webhookURL == "" {
		return b.poll(ctx)
	}

	webhook, err := tgbotapi.NewWebhook(b.webhookURL)
	if err != nil {
		return err
	}
	if _, err := b.api.Request(webhook); err != nil {
		return err
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return err
	}
	if info.LastErrorDate != 0 {
		b.log.Warn("telegram webhook last error", "message", info.LastErrorMessage)
	}
	b.log.Info("telegram webhook registered", "url", b.webhookURL)
	return nil
}

func (b *Bot) poll(ctx context.Context) error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("clearing telegram webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram polling started", "bot", b.api.Self.UserName)

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()
	go func() {
		for update := range updates {
			b.dispatch(ctx, update)
		}
	}()
	return nil
}

// ServeHTTP accepts webhook updates.
func (b *Bot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		b.log.Warn("bad telegram update", "error", err)
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()

	if !b.dispatch(ctx, *update) {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Wait stops accepting updates and blocks until in-flight searches have
// replied.
func (b *Bot) Wait() {
	b.mu.Lock()
	b.draining = true
	b.mu.Unlock()
	b.wg.Wait()
}

// dispatch handles update in the background. It reports false once the bot
// is draining or ctx is done.
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) bool {
	b.mu.Lock()
	if b.draining || ctx.Err() != nil {
		b.mu.Unlock()
		return false
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		b.handleUpdate(ctx, update)
	}()
	return true
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil {
		return
	}

	chatID := update.Message.Chat.ID
	text := strings.TrimSpace(update.Message.Text)

	switch {
	case strings.HasPrefix(text, "/start"):
		b.handleStart(chatID)
	case strings.HasPrefix(text, "/search"):
		b.handleSearch(ctx, chatID, strings.TrimSpace(strings.TrimPrefix(text, "/search")))
	case strings.HasPrefix(text, "/help"):
		b.handleHelp(chatID)
	case strings.HasPrefix(text, "/"):
		b.handleUnknownCommand(chatID)
	default:
		b.handleSearch(ctx, chatID, text)
	}
}

func (b *Bot) handleStart(chatID int64) {
	b.sendMessage(chatID, `Welcome to NewsSearch! 📰

Send me a topic and I'll find recent coverage, read the articles and summarize them for you.

Commands:
/search central bank rate decision
/help - Show this help message`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.sendMessage(chatID, `NewsSearch Help 📖

Commands:
/start - Welcome message
/search [topic] - Search and summarize news
/help - Show this help

Plain messages are treated as searches.

Examples:
/search elections
/search wildfire evacuation california`)
}

func (b *Bot) handleUnknownCommand(chatID int64) {
	b.sendMessage(chatID, "Unknown command. Use /help for available commands.")
}

func (b *Bot) handleSearch(ctx context.Context, chatID int64, query string) {
	if query == "" {
		b.sendMessage(chatID, "What should I search for? Try: /search elections")
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("🔎 Searching for <b>%s</b>...", html.EscapeString(query)))

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	result, err := b.searcher.Search(ctx, models.Query{
		Text:    query,
		Limit:   maxResults * 2,
		Session: "telegram:" + strconv.FormatInt(chatID, 10),
	})
	switch {
	case errors.Is(err, models.ErrNoCandidates):
		b.sendMessage(chatID, "No articles found. Try different keywords.")
		return
	case errors.Is(err, models.ErrCancelled):
		b.sendMessage(chatID, "Search was interrupted by a newer one.")
		return
	case err != nil:
		b.log.Error("search failed", "query", query, "error", err)
		b.sendMessage(chatID, "Search failed, please try again later.")
		return
	}

	summaries := result.Summaries()
	if len(summaries) == 0 {
		b.sendMessage(chatID, fmt.Sprintf("Found %d articles but could not summarize any of them.", len(result.Results)))
		return
	}
	if len(summaries) > maxResults {
		summaries = summaries[:maxResults]
	}
	for _, r := range summaries {
		b.sendMessage(chatID, formatResultMessage(r))
	}
}

func formatResultMessage(r models.ArticleResult) string {
	title := r.Candidate.Title
	link := r.Candidate.URL
	source := r.Candidate.Source
	if r.Article != nil {
		if r.Article.Title != "" {
			title = r.Article.Title
		}
		link = r.Article.URL
		source = r.Article.Domain
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📰 <b>%s</b>\n\n", html.EscapeString(title))
	fmt.Fprintf(&sb, "📝 %s\n", html.EscapeString(clip(r.Summary.Summary, maxSummaryLen)))
	if len(r.Summary.KeyPoints) > 0 {
		sb.WriteString("\n")
		for _, p := range r.Summary.KeyPoints {
			fmt.Fprintf(&sb, "• %s\n", html.EscapeString(clip(p, maxPointLen)))
		}
	}
	if r.Summary.Risk != "" {
		fmt.Fprintf(&sb, "\n⚠️ Verification risk: %s\n", riskLabel(r.Summary.Risk))
	}
	fmt.Fprintf(&sb, "\n🔗 <a href=\"%s\">Read more</a>\nSource: %s", html.EscapeString(link), html.EscapeString(source))

	return sb.String()
}

func riskLabel(risk string) string {
	switch risk {
	case "LOW":
		return "🟢 low"
	case "MEDIUM":
		return "🟡 medium"
	case "HIGH":
		return "🔴 high"
	default:
		return risk
	}
}

// clip bounds text so a formatted message stays under Telegram's 4096
// character limit.
func clip(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n-1]) + "…"
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true

	if _, err := b.send.Send(msg); err != nil {
		b.log.Warn("failed to send telegram message", "chat", chatID, "error", err)
	}
}
