// Package bot answers the Telegram commands of the configured chat.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gradewatch/internal/assert"
	"gradewatch/internal/diff"
	"gradewatch/internal/format"
	"gradewatch/internal/grades"
	"gradewatch/internal/history"
	"gradewatch/internal/pipeline"
	"gradewatch/internal/telegram"
	"gradewatch/internal/telemetry"

	"github.com/antzucaro/matchr"
)

const (
	report_poll    = "poll"
	report_reply   = "reply"
	report_check   = "check"
	report_history = "history"
	report_foreign = "foreign-chat"
)

const (
	pollTimeout   = 30 * time.Second
	retryInterval = 5 * time.Second
	historyLimit  = 10
	// minSimilarity is the Jaro-Winkler score a subject name must reach to
	// answer /note.
	minSimilarity = 0.8
)

// Client is the part of the Telegram client the bot uses.
type Client interface {
	SendMessage(ctx context.Context, chatID, text string) error
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

type Snapshots interface {
	Load(ctx context.Context) grades.Snapshot
}

type Checker interface {
	RunCycle(ctx context.Context) (pipeline.Report, error)
}

type History interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

type Options struct {
	// History is optional, /historique is disabled without it.
	History History
}

type Bot struct {
	client    Client
	chatID    string
	snapshots Snapshots
	checker   Checker
	history   History
	tel       telemetry.API
}

func NewBot(client Client, chatID string, snapshots Snapshots, checker Checker, tel telemetry.API, opts Options) Bot {
	assert.NotNil(client, "client")
	assert.NotEmptyStr(chatID, "chat id")
	assert.NotNil(snapshots, "snapshots")
	assert.NotNil(checker, "checker")
	assert.NotNil(tel, "tel")

	return Bot{
		client:    client,
		chatID:    chatID,
		snapshots: snapshots,
		checker:   checker,
		history:   opts.History,
		tel:       telemetry.NewScopedAPI("bot", tel),
	}
}

// Run polls for updates until ctx is done.
func (b Bot) Run(ctx context.Context) {
	var offset int64
	for {
		updates, err := b.client.GetUpdates(ctx, offset, pollTimeout)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			b.tel.ReportWarning(report_poll, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryInterval):
			}
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			if update.Message == nil {
				continue
			}
			b.Handle(ctx, *update.Message)
		}
	}
}

// Handle answers a single message, messages from other chats are ignored.
func (b Bot) Handle(ctx context.Context, msg telegram.Message) {
	if strconv.FormatInt(msg.Chat.ID, 10) != b.chatID {
		b.tel.ReportDebug("ignoring message from another chat", msg.Chat.ID)
		b.tel.ReportCount(report_foreign, 1)
		return
	}

	b.Respond(ctx, msg.Text, func(text string) {
		err := b.client.SendMessage(ctx, b.chatID, text)
		if err != nil {
			b.tel.ReportWarning(report_reply, err)
		}
	})
}

// parseCommand splits "/note@gradewatch_bot analyse" into "note" and "analyse".
func parseCommand(text string) (command, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	command, args, _ = strings.Cut(text[1:], " ")
	command, _, _ = strings.Cut(command, "@")
	return strings.ToLower(command), strings.TrimSpace(args), true
}

// Respond computes the replies to text and passes them to reply in order.
func (b Bot) Respond(ctx context.Context, text string, reply func(string)) {
	command, args, ok := parseCommand(text)
	if !ok {
		reply(unknownMessage)
		return
	}

	switch command {
	case "start":
		reply(startMessage)
	case "help", "aide":
		reply(helpMessage)
	case "notes":
		reply(format.Listing(b.snapshots.Load(ctx)))
	case "stats":
		reply(format.Stats(b.snapshots.Load(ctx)))
	case "attente":
		reply(format.Pending(b.snapshots.Load(ctx)))
	case "ue":
		reply(format.Units(b.snapshots.Load(ctx)))
	case "note":
		reply(b.lookup(ctx, args))
	case "historique", "history":
		reply(b.recent(ctx))
	case "check":
		reply("🔄 Vérification en cours...")
		reply(b.check(ctx))
	default:
		reply(unknownMessage)
	}
}

func (b Bot) check(ctx context.Context) string {
	report, err := b.checker.RunCycle(ctx)
	if errors.Is(err, pipeline.ErrCycleInProgress) {
		return "⏳ Une vérification est déjà en cours."
	}
	if err != nil {
		b.tel.ReportWarning(report_check, err)
		return "❌ La vérification a échoué, nouvel essai au prochain passage."
	}
	if report.Strategy == "" {
		return "⚠️ Aucune note trouvée sur la page."
	}
	if len(report.Events) == 0 {
		return "✅ Aucune nouvelle note."
	}
	return fmt.Sprintf("✅ %d nouvelle(s) note(s) détectée(s) !", len(report.Events))
}

// bestMatch finds the entry whose name is closest to query.
func bestMatch(entries []grades.Entry, query string) (grades.Entry, bool) {
	query = strings.ToLower(strings.TrimSpace(query))

	var best grades.Entry
	bestScore := 0.0
	for _, e := range entries {
		name := strings.ToLower(e.Name)
		if name == query {
			return e, true
		}
		score := matchr.JaroWinkler(name, query, false)
		if strings.HasPrefix(name, query) {
			score = 1
		}
		if score > bestScore {
			best = e
			bestScore = score
		}
	}
	return best, bestScore >= minSimilarity
}

func (b Bot) lookup(ctx context.Context, query string) string {
	if query == "" {
		return "Utilisation : /note <matière>"
	}
	snap := b.snapshots.Load(ctx)
	if snap.Empty() {
		return "❌ Aucune note enregistrée."
	}
	e, ok := bestMatch(snap.Entries(), query)
	if !ok {
		return fmt.Sprintf("❓ Aucune matière ne correspond à « %s ».", format.Escape(query))
	}
	return format.Subject(e)
}

func (b Bot) recent(ctx context.Context) string {
	if b.history == nil {
		return "❌ L'historique n'est pas activé."
	}
	entries, err := b.history.Recent(ctx, historyLimit)
	if err != nil {
		b.tel.ReportWarning(report_history, err)
		return "❌ Impossible de lire l'historique."
	}
	if len(entries) == 0 {
		return "📜 Aucun changement enregistré."
	}

	lines := []string{"📜 *HISTORIQUE*", ""}
	for _, e := range entries {
		at := e.At.Format("02/01 15:04")
		name := format.Escape(e.Subject)
		if e.Category == diff.Updated {
			lines = append(lines, fmt.Sprintf("🔄 %s %s : %s → %s", at, name, format.Escape(e.OldGrade), format.Escape(e.NewGrade)))
			continue
		}
		lines = append(lines, fmt.Sprintf("📚 %s %s : %s", at, name, format.Escape(e.NewGrade)))
	}
	return strings.Join(lines, "\n")
}

const startMessage = "🎓 *Bot INSA Notes*\n" +
	"━━━━━━━━━━━━━━━━━━━━\n\n" +
	"📚 /notes - Voir vos notes\n" +
	"📈 /stats - Moyennes par UE\n" +
	"⏳ /attente - Notes en attente\n" +
	"🗂 /ue - Liste des UE\n" +
	"🔎 /note <matière> - Note d'une matière\n" +
	"📜 /historique - Derniers changements\n" +
	"🔄 /check - Forcer une vérification\n" +
	"❓ /help - Aide\n\n" +
	"_Vérification automatique des notes_"

const helpMessage = "🤖 *Aide - Bot INSA Notes*\n" +
	"━━━━━━━━━━━━━━━━━━━━\n\n" +
	"📚 /notes - Liste de vos notes\n" +
	"📈 /stats - Moyennes pondérées par UE\n" +
	"⏳ /attente - Matières sans note\n" +
	"🗂 /ue - Notes regroupées par UE\n" +
	"🔎 /note <matière> - Recherche d'une matière\n" +
	"📜 /historique - Derniers changements notifiés\n" +
	"🔄 /check - Vérifier maintenant\n\n" +
	"_Le bot vérifie automatiquement vos notes_\n" +
	"_et vous prévient à chaque nouvelle note._"

const unknownMessage = "❓ Commande inconnue, envoyez /help pour la liste des commandes."
