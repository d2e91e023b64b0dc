// loadgen submits one large dispatch to a running dispatch-api and polls
// its job until a terminal status, printing progress along the way.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

type dispatchRequest struct {
	SenderID   string   `json:"sender_id"`
	Message    string   `json:"message"`
	Recipients []string `json:"recipients"`
}

type asyncResponse struct {
	JobID string `json:"job_id"`
}

type syncResponse struct {
	Total        int    `json:"total"`
	SuccessCount int    `json:"success_count"`
	FailCount    int    `json:"fail_count"`
	Summary      string `json:"summary"`
}

type progressResponse struct {
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

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "dispatch-api base URL")
	count := flag.Int("recipients", 1500, "number of recipients to generate")
	pollEvery := flag.Duration("poll", 2*time.Second, "progress poll interval")
	flag.Parse()

	recipients := make([]string, 0, *count)
	for i := 0; i < *count; i++ {
		recipients = append(recipients, fmt.Sprintf("90555%07d", i))
	}

	payload, _ := json.Marshal(dispatchRequest{
		SenderID:   "loadgen",
		Message:    fmt.Sprintf("Load test message at %s", time.Now().Format(time.RFC3339)),
		Recipients: recipients,
	})

	fmt.Printf("🚀 Submitting dispatch: %d recipients\n", *count)
	fmt.Printf("Target: %s\n", *baseURL)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	start := time.Now()
	resp, err := http.Post(*baseURL+"/api/dispatches", "application/json", bytes.NewReader(payload))
	if err != nil {
		fmt.Printf("❌ Submit failed: %v\n", err)
		os.Exit(1)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	submitLatency := time.Since(start)

	switch resp.StatusCode {
	case http.StatusOK:
		var direct syncResponse
		if err := json.Unmarshal(body, &direct); err != nil {
			fmt.Printf("❌ Bad response: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✅ Synchronous dispatch in %v: %s\n", submitLatency, direct.Summary)
		return

	case http.StatusAccepted:
		// Large batch: fall through to polling.

	default:
		fmt.Printf("❌ HTTP %d: %s\n", resp.StatusCode, string(body))
		os.Exit(1)
	}

	var async asyncResponse
	if err := json.Unmarshal(body, &async); err != nil || async.JobID == "" {
		fmt.Printf("❌ Bad async response: %s\n", string(body))
		os.Exit(1)
	}
	fmt.Printf("✅ Job created in %v: %s\n", submitLatency, async.JobID)

	pollURL := fmt.Sprintf("%s/api/dispatches/%s/progress", *baseURL, async.JobID)
	for {
		time.Sleep(*pollEvery)

		progress, err := poll(pollURL)
		if err != nil {
			// A pruned job means the work finished and the record
			// already expired.
			fmt.Printf("⚠️  Poll failed (%v), assuming completed\n", err)
			return
		}

		fmt.Printf("  %3d%% | batch %d/%d | done %d/%d | ok %d | fail %d | eta %s\n",
			progress.Percentage, progress.CurrentBatch, progress.TotalBatches,
			progress.Completed, progress.Total,
			progress.SuccessCount, progress.FailCount,
			(time.Duration(progress.EstimatedRemainingMS) * time.Millisecond).Round(time.Second))

		if progress.Status == "completed" || progress.Status == "failed" {
			fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			fmt.Printf("🏁 Job %s in %v: %d sent, %d failed of %d\n",
				progress.Status, time.Since(start).Round(time.Millisecond),
				progress.SuccessCount, progress.FailCount, progress.Total)
			if progress.Status == "failed" {
				os.Exit(1)
			}
			return
		}
	}
}

func poll(url string) (progressResponse, error) {
	var progress progressResponse

	resp, err := http.Get(url)
	if err != nil {
		return progress, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return progress, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&progress); err != nil {
		return progress, err
	}
	return progress, nil
}
