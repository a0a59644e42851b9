package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Marker-bit/mrkrbt-chat/internal/ai"
	"github.com/Marker-bit/mrkrbt-chat/internal/chat"
	"github.com/Marker-bit/mrkrbt-chat/internal/config"
	"github.com/Marker-bit/mrkrbt-chat/internal/db"
	"github.com/Marker-bit/mrkrbt-chat/internal/httpapi/handlers"
	"github.com/Marker-bit/mrkrbt-chat/internal/metrics"
	"github.com/Marker-bit/mrkrbt-chat/internal/store/rabbitmq"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	repo := chat.NewRepo(gdb)
	reg := handlers.NewProviderRegistry()
	svc := chat.NewService(repo, reg, nil, nil, chat.ServiceConfig{
		TitleMaxWords: cfg.TitleMaxWords,
	})

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareQueues(ch, cfg.RabbitQueue); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	//  strict concurrency control
	concurrency := workerConcurrency()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var job chat.TitleJob
				if err := json.Unmarshal(d.Body, &job); err != nil || job.ChatID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleJob(ctx, svc, reg, job); err != nil {
					log.Printf("worker=%d job %s failed cost=%s err=%v", workerID, job.JobID, time.Since(start), err)
					metrics.Global().TitleFailed.Inc()
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed job=%s err=%v", workerID, job.JobID, err)
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

// handleJob runs one title completion and writes the result back onto the
// chat. The provider key rides in the job payload since keys never hit the
// database.
func handleJob(ctx context.Context, svc *chat.Service, reg *ai.Registry, job chat.TitleJob) error {
	chatID, err := uuid.Parse(job.ChatID)
	if err != nil {
		return err
	}

	provider, err := reg.Get(job.Provider, ai.Config{
		BaseURL: job.BaseURL,
		APIKey:  job.APIKey,
		Model:   job.Model,
	})
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reply, err := provider.Chat(cctx, ai.Request{
		Messages: []ai.Message{{Role: "user", Content: job.Prompt}},
	})
	if err != nil {
		return err
	}

	title := cleanTitle(reply)
	if title == "" {
		return errors.New("empty title from provider")
	}

	return svc.ApplyTitle(ctx, chatID, title)
}

// cleanTitle strips quotes and newlines models like to wrap titles in.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}
