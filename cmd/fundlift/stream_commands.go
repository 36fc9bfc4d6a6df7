package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	natspkg "github.com/fundlift/fundlift/service/nats"
)

func streamCommands() *cli.Command {
	return &cli.Command{
		Name:  "stream",
		Usage: "Stream project events via SSE",
		Flags: []cli.Flag{
			serverFlag(),
			jsonFlag(),
		},
		Action: func(c *cli.Context) error {
			serverURL := c.String("server")
			jsonOutput := c.Bool("json")
			url := fmt.Sprintf("%s/api/v1/stream/projects", serverURL)

			// Cancel on interrupt
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "text/event-stream")

			httpClient := &http.Client{
				Timeout: 0, // No timeout for streaming
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d", resp.StatusCode)
			}

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Streaming project events from %s (Ctrl-C to stop)\n", serverURL)
			}

			scanner := bufio.NewScanner(resp.Body)
			for scanner.Scan() {
				line := scanner.Text()
				if !strings.HasPrefix(line, "data: ") {
					continue
				}
				data := strings.TrimPrefix(line, "data: ")

				var event natspkg.ProjectEvent
				if err := json.Unmarshal([]byte(data), &event); err != nil {
					// Connection markers and keepalives are not events.
					continue
				}
				if event.Kind == "" {
					continue
				}

				if jsonOutput {
					fmt.Println(data)
					continue
				}
				printEvent(&event)
			}

			if err := scanner.Err(); err != nil && ctx.Err() == nil {
				return fmt.Errorf("stream read failed: %w", err)
			}
			return nil
		},
	}
}

func printEvent(event *natspkg.ProjectEvent) {
	ts := event.PublishedAt.Local().Format(time.TimeOnly)
	switch event.Kind {
	case natspkg.KindProjectCreated:
		fmt.Printf("[%s] project #%d created: %q by %s (goal %s)\n",
			ts, event.ProjectID, event.Title, event.Creator, event.GoalAmount)
	case natspkg.KindContributionMade:
		fmt.Printf("[%s] project #%d received %s from %s\n",
			ts, event.ProjectID, event.Amount, event.Contributor)
	case natspkg.KindSnapshotUpdated:
		fmt.Printf("[%s] snapshot updated\n", ts)
	case natspkg.KindNotice:
		fmt.Printf("[%s] %s %s: %s\n", ts, event.Intent, event.Outcome, event.Message)
	default:
		fmt.Printf("[%s] %s\n", ts, event.Kind)
	}
}
