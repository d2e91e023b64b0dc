package transport

import (
	"errors"
	"fmt"
	"log/slog"

	"bulk-sms-dispatch/internal/app"
	"bulk-sms-dispatch/internal/domain"

	"github.com/gofiber/fiber/v2"
)

// Handler holds all HTTP handlers for the dispatch service.
type Handler struct {
	svc *app.DispatchService
	log *slog.Logger
}

// NewHandler wires up a Handler with its dependencies.
func NewHandler(svc *app.DispatchService, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Register mounts all routes onto the given Fiber router.
func (h *Handler) Register(router fiber.Router) {
	router.Post("/dispatches", h.SubmitDispatch)
	router.Get("/dispatches/:id/progress", h.GetProgress)
	router.Get("/deliveries/:messageId/status", h.GetDeliveryStatus)
}

// ── Dispatch submission ───────────────────────────────────────────────────────

type submitDispatchRequest struct {
	SenderID   string   `json:"sender_id"`
	Message    string   `json:"message"`
	Recipients []string `json:"recipients"`
}

type outcomeView struct {
	Recipient         string `json:"recipient"`
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	ErrorReason       string `json:"error_reason,omitempty"`
}

type submitDispatchResponse struct {
	Total        int           `json:"total"`
	SuccessCount int           `json:"success_count"`
	FailCount    int           `json:"fail_count"`
	Summary      string        `json:"summary"`
	Outcomes     []outcomeView `json:"outcomes"`
}

type submitAsyncResponse struct {
	JobID string `json:"job_id"`
}

// SubmitDispatch accepts a batch of recipients and one message. Small
// batches answer with per-recipient outcomes; large ones with a job id to
// poll.
//
// POST /dispatches
// Body: { "sender_id": "...", "message": "...", "recipients": ["...", ...] }
func (h *Handler) SubmitDispatch(c *fiber.Ctx) error {
	var req submitDispatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if req.Message == "" || len(req.Recipients) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message and recipients are required"})
	}

	res, err := h.svc.Submit(c.Context(), domain.DispatchRequest{
		SenderID:   req.SenderID,
		Message:    req.Message,
		Recipients: req.Recipients,
	})
	switch {
	case errors.Is(err, domain.ErrEmptyRecipients), errors.Is(err, domain.ErrMessageTooLong):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		h.log.Error("submit dispatch", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	if res.JobID != "" {
		return c.Status(fiber.StatusAccepted).JSON(submitAsyncResponse{JobID: res.JobID})
	}

	views := make([]outcomeView, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		views = append(views, outcomeView{
			Recipient:         string(o.Recipient),
			Success:           o.Success,
			ProviderMessageID: o.ProviderMessageID,
			ErrorReason:       o.ErrorReason,
		})
	}

	return c.JSON(submitDispatchResponse{
		Total:        len(res.Outcomes),
		SuccessCount: res.SuccessCount,
		FailCount:    res.FailCount,
		Summary:      fmt.Sprintf("%d of %d messages sent", res.SuccessCount, len(res.Outcomes)),
		Outcomes:     views,
	})
}

// ── Progress polling ──────────────────────────────────────────────────────────

type progressResponse struct {
	JobID                string `json:"job_id"`
	Total                int    `json:"total"`
	Completed            int    `json:"completed"`
	SuccessCount         int    `json:"success_count"`
	FailCount            int    `json:"fail_count"`
	CurrentBatch         int    `json:"current_batch"`
	TotalBatches         int    `json:"total_batches"`
	Percentage           int    `json:"percentage"`
	Status               string `json:"status"`
	EstimatedRemainingMS int64  `json:"estimated_time_remaining_ms"`
}

// GetProgress returns a snapshot of an asynchronous dispatch job. Pruned or
// unknown jobs answer 404; pollers treat that as "no longer tracked".
//
// GET /dispatches/:id/progress
func (h *Handler) GetProgress(c *fiber.Ctx) error {
	job, err := h.svc.Progress(c.Context(), c.Params("id"))
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	case err != nil:
		h.log.Error("get progress", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.JSON(progressResponse{
		JobID:                job.ID,
		Total:                job.Total,
		Completed:            job.Completed,
		SuccessCount:         job.SuccessCount,
		FailCount:            job.FailCount,
		CurrentBatch:         job.CurrentBatch,
		TotalBatches:         job.TotalBatches,
		Percentage:           job.Percentage,
		Status:               string(job.Status),
		EstimatedRemainingMS: job.EstimatedRemaining.Milliseconds(),
	})
}

// ── Delivery status ───────────────────────────────────────────────────────────

type deliveryStatusResponse struct {
	ProviderMessageID string `json:"provider_message_id"`
	Recipient         string `json:"recipient"`
	State             string `json:"state"`
}

// GetDeliveryStatus asks the gateway for a message's delivery state. Best
// effort: an unreachable reporting endpoint answers pending_report, not an
// error.
//
// GET /deliveries/:messageId/status?recipient=...
func (h *Handler) GetDeliveryStatus(c *fiber.Ctx) error {
	recipient := c.Query("recipient")
	if recipient == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "recipient query parameter is required"})
	}

	state, err := h.svc.DeliveryStatus(c.Context(), c.Params("messageId"), recipient)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(deliveryStatusResponse{
		ProviderMessageID: c.Params("messageId"),
		Recipient:         recipient,
		State:             string(state),
	})
}
