// Package slack receives Slack Events API callbacks.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	goslack "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/joescharf/nest/internal/models"
	"github.com/joescharf/nest/internal/store"
)

const (
	maxBodyBytes = 1 << 20
	maxResults   = 10
	replyTimeout = 10 * time.Second
)

var mentionPattern = regexp.MustCompile(`<@[^>]+>`)

// Config holds the Slack app credentials.
type Config struct {
	BotToken      string
	SigningSecret string
	RedisAddr     string
	DedupTTL      time.Duration
}

// Enabled reports whether the events endpoint should be served.
func Enabled(cfg Config) bool {
	return cfg.BotToken != "" && cfg.SigningSecret != ""
}

// NewDeduper returns a Redis-backed deduper when cfg.RedisAddr is set and an
// in-memory one otherwise.
func NewDeduper(cfg Config) Deduper {
	if cfg.RedisAddr == "" {
		return NewMemoryDeduper(cfg.DedupTTL)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return NewRedisDeduper(client, cfg.DedupTTL)
}

// Poster sends chat messages.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...goslack.MsgOption) (string, string, error)
}

// Handler serves the Slack events endpoint.
type Handler struct {
	secret string
	store  store.Store
	poster Poster
	dedup  Deduper
	logger *slog.Logger
}

// NewHandler creates a Handler that replies through the Slack Web API.
func NewHandler(cfg Config, s store.Store, dedup Deduper, logger *slog.Logger) *Handler {
	return NewHandlerWithPoster(cfg, s, goslack.New(cfg.BotToken), dedup, logger)
}

// NewHandlerWithPoster creates a Handler that replies through p.
func NewHandlerWithPoster(cfg Config, s store.Store, p Poster, dedup Deduper, logger *slog.Logger) *Handler {
	if dedup == nil {
		dedup = NewMemoryDeduper(cfg.DedupTTL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{secret: cfg.SigningSecret, store: s, poster: p, dedup: dedup, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	sv, err := goslack.NewSecretsVerifier(r.Header, h.secret)
	if err != nil {
		h.logger.Warn("slack request rejected", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	if _, err := sv.Write(body); err != nil {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	if err := sv.Ensure(); err != nil {
		h.logger.Warn("slack request rejected", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "invalid challenge", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challenge.Challenge))
	case slackevents.CallbackEvent:
		h.handleCallback(r.Context(), event)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) handleCallback(ctx context.Context, event slackevents.EventsAPIEvent) {
	if cb, ok := event.Data.(*slackevents.EventsAPICallbackEvent); ok && cb.EventID != "" {
		seen, err := h.dedup.Seen(ctx, cb.EventID)
		if err != nil {
			h.logger.Error("slack event dedup failed", "event_id", cb.EventID, "error", err)
		}
		if seen {
			h.logger.Debug("slack event already handled", "event_id", cb.EventID)
			return
		}
	}

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
		defer cancel()
		if err := h.replyToMention(ctx, ev); err != nil {
			h.logger.Error("slack reply failed", "channel", ev.Channel, "error", err)
		}
	default:
		h.logger.Debug("slack event ignored", "type", event.InnerEvent.Type)
	}
}

func (h *Handler) replyToMention(ctx context.Context, ev *slackevents.AppMentionEvent) error {
	query := strings.TrimSpace(mentionPattern.ReplaceAllString(ev.Text, ""))

	var text string
	if query == "" {
		text = "Mention me with a project name or tag to search the OWASP project catalogue."
	} else {
		projects, err := h.search(ctx, query)
		if err != nil {
			return err
		}
		text = formatResults(query, projects)
	}

	opts := []goslack.MsgOption{goslack.MsgOptionText(text, false)}
	if ev.ThreadTimeStamp != "" {
		opts = append(opts, goslack.MsgOptionTS(ev.ThreadTimeStamp))
	}
	if _, _, err := h.poster.PostMessageContext(ctx, ev.Channel, opts...); err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	return nil
}

// search returns projects whose name, key or tags contain query.
func (h *Handler) search(ctx context.Context, query string) ([]*models.Project, error) {
	all, err := h.store.ListProjects(ctx, store.ProjectListFilter{})
	if err != nil {
		return nil, err
	}

	var matches []*models.Project
	for _, p := range all {
		if p.Matches(query) {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

func formatResults(query string, projects []*models.Project) string {
	if len(projects) == 0 {
		return fmt.Sprintf("No OWASP projects found for %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d OWASP project(s) for %q:\n", len(projects), query)
	for i, p := range projects {
		if i == maxResults {
			fmt.Fprintf(&b, "…and %d more.\n", len(projects)-maxResults)
			break
		}
		fmt.Fprintf(&b, "• *%s* (%s, %s)\n", p.Name, p.Level, p.Type)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
