package telegram

import (
	"context"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ObiAU/newssearch/internal/logging"
	"github.com/ObiAU/newssearch/internal/models"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

type fakeSearcher struct {
	query  models.Query
	result *models.QueryResult
	err    error
}

func (s *fakeSearcher) Search(ctx context.Context, q models.Query) (*models.QueryResult, error) {
	s.query = q
	return s.result, s.err
}

func newTestBot(searcher Searcher) (*Bot, *fakeSender) {
	sender := &fakeSender{}
	return &Bot{send: sender, searcher: searcher, log: logging.New("telegram"), ctx: context.Background()}, sender
}

func message(text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Text: text, Chat: &tgbotapi.Chat{ID: 42}}}
}

func TestSearchCommandSendsSummaries(t *testing.T) {
	searcher := &fakeSearcher{result: &models.QueryResult{Results: []models.ArticleResult{
		{
			Index:     0,
			Candidate: models.Candidate{URL: "https://planet.test/a", Title: "Candidate title"},
			Article:   &models.Article{URL: "https://planet.test/a", Title: "Turnout <record>", Domain: "planet.test"},
			Summary:   &models.SummaryResult{Summary: "Record turnout.", KeyPoints: []string{"queues"}, Risk: "HIGH"},
		},
		{Index: 1, Err: models.ErrExtraction},
	}}}
	bot, sender := newTestBot(searcher)

	bot.handleUpdate(context.Background(), message("/search elections"))

	if searcher.query.Text != "elections" {
		t.Errorf("query = %q", searcher.query.Text)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("sent %d messages, want progress + 1 result", len(sender.sent))
	}
	msg := sender.sent[1]
	if msg.ChatID != 42 || msg.ParseMode != "HTML" {
		t.Errorf("unexpected message config %+v", msg)
	}
	for _, want := range []string{"Turnout &lt;record&gt;", "Record turnout.", "• queues", "🔴 high", `href="https://planet.test/a"`} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("message missing %q:\n%s", want, msg.Text)
		}
	}
}

func TestPlainTextIsSearch(t *testing.T) {
	searcher := &fakeSearcher{err: models.ErrNoCandidates}
	bot, sender := newTestBot(searcher)

	bot.handleUpdate(context.Background(), message("wildfire evacuation"))

	if searcher.query.Text != "wildfire evacuation" {
		t.Errorf("query = %q", searcher.query.Text)
	}
	if searcher.query.Session != "telegram:42" {
		t.Errorf("session = %q, want per-chat session", searcher.query.Session)
	}
	last := sender.sent[len(sender.sent)-1].Text
	if !strings.Contains(last, "No articles found") {
		t.Errorf("last message = %q", last)
	}
}

func TestCommands(t *testing.T) {
	tests := map[string]string{
		"/start":   "Welcome to NewsSearch",
		"/help":    "NewsSearch Help",
		"/bogus":   "Unknown command",
		"/search ": "What should I search for?",
	}
	for text, want := range tests {
		bot, sender := newTestBot(&fakeSearcher{})
		bot.handleUpdate(context.Background(), message(text))
		if len(sender.sent) != 1 || !strings.Contains(sender.sent[0].Text, want) {
			t.Errorf("%q: sent %+v, want %q", text, sender.sent, want)
		}
	}
}

func TestClip(t *testing.T) {
	if got := clip("héllo", 10); got != "héllo" {
		t.Errorf("clip short = %q", got)
	}
	if got := clip("héllo wörld", 5); got != "héll…" {
		t.Errorf("clip long = %q", got)
	}
}

func TestDispatchStopsAfterWait(t *testing.T) {
	searcher := &fakeSearcher{err: models.ErrNoCandidates}
	bot, sender := newTestBot(searcher)

	if !bot.dispatch(context.Background(), message("harbour strike")) {
		t.Fatal("dispatch rejected an update before shutdown")
	}
	bot.Wait()
	if searcher.query.Text != "harbour strike" {
		t.Errorf("in-flight update not finished by Wait, query = %q", searcher.query.Text)
	}

	sentBefore := len(sender.sent)
	if bot.dispatch(context.Background(), message("late arrival")) {
		t.Error("dispatch accepted an update after Wait")
	}
	if len(sender.sent) != sentBefore || searcher.query.Text != "harbour strike" {
		t.Error("late update was handled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	other, _ := newTestBot(searcher)
	if other.dispatch(ctx, message("x")) {
		t.Error("dispatch accepted an update with a cancelled context")
	}
}
