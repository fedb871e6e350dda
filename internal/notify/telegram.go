package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/avvvet/bingo-sync/internal/bus"
	"github.com/avvvet/bingo-sync/internal/comm"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// Sender is the part of *tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier tells the operators' chats about bingo claims and confirmed winners.
type TelegramNotifier struct {
	bot     Sender
	chatIDs []int64
	subs    map[string]bus.Subscription
}

func NewTelegramNotifier(botToken string, chatIDs []int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %v", err)
	}
	return NewNotifier(bot, chatIDs), nil
}

func NewNotifier(bot Sender, chatIDs []int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatIDs: chatIDs, subs: make(map[string]bus.Subscription)}
}

// SendNotification sends message to every configured chat.
func (tn *TelegramNotifier) SendNotification(message string) {
	if tn == nil || tn.bot == nil {
		return
	}

	for _, chatID := range tn.chatIDs {
		go func(cid int64) {
			msg := tgbotapi.NewMessage(cid, message)
			msg.ParseMode = tgbotapi.ModeMarkdown
			if _, err := tn.bot.Send(msg); err != nil {
				log.Errorf("Failed to send telegram message to chat %d: %v", cid, err)
			}
		}(chatID)
	}
}

// Attach subscribes the notifier to the winner events on socket.
func (tn *TelegramNotifier) Attach(socket *bus.Socket) {
	tn.subs[comm.TopicBingoWin] = socket.On(comm.TopicBingoWin, func(data json.RawMessage) {
		var ev comm.BingoWin
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Errorf("Error [TelegramNotifier.bingoWin] %s", err)
			return
		}
		// confirmed claims are announced by winnerConfirmed
		if ev.Confirmed {
			return
		}
		tn.SendNotification(BingoMessage(ev))
	})
	tn.subs[comm.TopicWinnerConfirmed] = socket.On(comm.TopicWinnerConfirmed, func(data json.RawMessage) {
		var ev comm.WinnerConfirmed
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Errorf("Error [TelegramNotifier.winnerConfirmed] %s", err)
			return
		}
		tn.SendNotification(WinnerMessage(ev))
	})
}

func (tn *TelegramNotifier) Detach(socket *bus.Socket) {
	for topic, sub := range tn.subs {
		socket.Off(topic, sub)
		delete(tn.subs, topic)
	}
}

// BingoMessage describes a detected, unconfirmed claim.
func BingoMessage(ev comm.BingoWin) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Bingo claim* in round %d\n", ev.RoundNumber)
	fmt.Fprintf(&b, "Player: %s\nCard: #%d\nPattern: %s\n", escape(ev.PlayerName), ev.CardID, ev.Pattern)
	fmt.Fprintf(&b, "Numbers called: %d\n", len(ev.CalledNumbers))
	b.WriteString("Waiting for confirmation.")
	return b.String()
}

// WinnerMessage announces a confirmed winner.
func WinnerMessage(ev comm.WinnerConfirmed) string {
	w := ev.Winner
	return fmt.Sprintf("*Winner confirmed* in round %d\nPlayer: %s\nCard: #%d\nPattern: %s\nAt: %s",
		ev.RoundNumber, escape(w.PlayerName), w.CardID, w.Pattern, w.Timestamp.Format("15:04:05"))
}

// escape keeps player names from breaking the legacy markdown mode.
func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
