// mock-gateway speaks the SMS provider's wire protocol for local
// development: single send, bulk send, and the delivery report endpoint.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/gofiber/fiber/v2"
)

type singleRequest struct {
	User    string   `json:"User"`
	Pass    string   `json:"Pass"`
	Message string   `json:"Message"`
	Numbers []string `json:"Numbers"`
}

type bulkRequest struct {
	User     string `json:"User"`
	Pass     string `json:"Pass"`
	Messages []struct {
		Message string `json:"Message"`
		GSM     string `json:"GSM"`
	} `json:"Messages"`
}

type reportRequest struct {
	User      string `json:"User"`
	Pass      string `json:"Pass"`
	MessageID int64  `json:"MessageId"`
}

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	addr := getenv("HTTP_ADDR", ":9090")

	var nextID atomic.Int64
	var mu sync.Mutex
	sentNumbers := make(map[int64]string) // message id -> recipient

	fiberApp := fiber.New(fiber.Config{AppName: "mock-gateway"})

	// POST /sms/send — accepts a single-recipient submission.
	fiberApp.Post("/sms/send", func(c *fiber.Ctx) error {
		var req singleRequest
		if err := c.BodyParser(&req); err != nil || len(req.Numbers) == 0 {
			return c.JSON(fiber.Map{"Status": "InvalidRequest", "MessageId": 0})
		}
		if req.User == "" || req.Pass == "" {
			return c.JSON(fiber.Map{"Status": "AuthFailed", "MessageId": 0})
		}

		id := nextID.Add(1)
		mu.Lock()
		sentNumbers[id] = req.Numbers[0]
		mu.Unlock()

		log.Info("mock gateway accepted message", "to", req.Numbers[0], "message_id", id)
		return c.JSON(fiber.Map{"Status": "OK", "MessageId": id})
	})

	// POST /sms/bulk — accepts a multi-recipient submission and returns
	// one id per recipient.
	fiberApp.Post("/sms/bulk", func(c *fiber.Ctx) error {
		var req bulkRequest
		if err := c.BodyParser(&req); err != nil || len(req.Messages) == 0 {
			return c.JSON(fiber.Map{"Status": "InvalidRequest", "MessageIds": []int64{}})
		}
		if req.User == "" || req.Pass == "" {
			return c.JSON(fiber.Map{"Status": "AuthFailed", "MessageIds": []int64{}})
		}

		ids := make([]int64, 0, len(req.Messages))
		mu.Lock()
		for _, m := range req.Messages {
			id := nextID.Add(1)
			sentNumbers[id] = m.GSM
			ids = append(ids, id)
		}
		mu.Unlock()

		log.Info("mock gateway accepted bulk", "recipients", len(req.Messages))
		return c.JSON(fiber.Map{"Status": "OK", "MessageIds": ids})
	})

	// POST /sms/report — delivery report rows for a message id.
	fiberApp.Post("/sms/report", func(c *fiber.Ctx) error {
		var req reportRequest
		if err := c.BodyParser(&req); err != nil || req.MessageID == 0 {
			// Form-encoded fallback path.
			if v, convErr := strconv.ParseInt(c.FormValue("MessageId"), 10, 64); convErr == nil {
				req.MessageID = v
			}
		}

		mu.Lock()
		number, ok := sentNumbers[req.MessageID]
		mu.Unlock()
		if !ok {
			return c.JSON([]fiber.Map{})
		}

		return c.JSON([]fiber.Map{
			{"GSM": number, "State": "DELIVRD"},
		})
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("mock-gateway listening", "addr", addr)
		if err := fiberApp.Listen(addr); err != nil {
			log.Error("fiber listen", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down mock-gateway")
	_ = fiberApp.Shutdown()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
