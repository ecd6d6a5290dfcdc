// Transcript viewer: follows interview turn and session events on Kafka and
// prints them as a running conversation.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"entrevistas-live-client/internal/config"
	"entrevistas-live-client/internal/models"
)

// envelope holds the fields shared by turn and session events.
type envelope struct {
	EventType string      `json:"eventType"`
	SessionID string      `json:"sessionId"`
	Sequence  int         `json:"sequence"`
	Role      models.Role `json:"role"`
	Text      string      `json:"text"`
	Reason    string      `json:"reason"`
	Timestamp int64       `json:"timestamp"`
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// format renders one event as a terminal line; ok is false for unknown events.
func format(raw []byte, width int) (string, bool) {
	var ev envelope
	if err := json.Unmarshal(raw, &ev); err != nil {
		return "", false
	}
	ts := time.UnixMilli(ev.Timestamp).Format("15:04:05")
	session := truncate(ev.SessionID, 13)

	switch ev.EventType {
	case models.EventTurn:
		return fmt.Sprintf("%s %s #%d %-9s %s", ts, session, ev.Sequence, ev.Role, truncate(ev.Text, width)), true
	case models.EventSessionStarted:
		return fmt.Sprintf("%s %s -- session started", ts, session), true
	case models.EventSessionClosed, models.EventSessionError:
		state := "closed"
		if ev.EventType == models.EventSessionError {
			state = "lost"
		}
		if ev.Reason != "" {
			return fmt.Sprintf("%s %s -- session %s: %s", ts, session, state, ev.Reason), true
		}
		return fmt.Sprintf("%s %s -- session %s", ts, session, state), true
	default:
		return "", false
	}
}

func consume(ctx context.Context, out *sync.Mutex, brokers []string, topic string, since time.Duration, width int) {
	// Use partition reader without consumer group (works better through port-forward)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Printf("Failed to seek %s: %v", topic, err)
	}
	log.Printf("Following %s (last %v)", topic, since)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Kafka read error on %s: %v", topic, err)
			time.Sleep(time.Second)
			continue
		}

		line, ok := format(msg.Value, width)
		if !ok {
			continue
		}
		out.Lock()
		fmt.Println(line)
		out.Unlock()
	}
}

func main() {
	cfg := config.Load()

	brokers := flag.String("brokers", strings.Join(cfg.Kafka.Brokers, ","), "Kafka brokers (comma-separated)")
	topicTurns := flag.String("topic-turns", cfg.Kafka.TopicTurns, "Transcript turn topic")
	topicSessions := flag.String("topic-sessions", cfg.Kafka.TopicSessions, "Session lifecycle topic")
	since := flag.Duration("since", time.Hour, "Replay events newer than this")
	width := flag.Int("width", 120, "Truncate turn text to this many bytes, 0 for no limit")
	flag.Parse()

	if *brokers == "" {
		log.Fatal("No Kafka brokers configured (-brokers or KAFKA_BROKERS)")
	}
	list := strings.Split(*brokers, ",")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var out sync.Mutex
	var wg sync.WaitGroup
	for _, topic := range []string{*topicTurns, *topicSessions} {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			consume(ctx, &out, list, topic, *since, *width)
		}(topic)
	}
	wg.Wait()
}
