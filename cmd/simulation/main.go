package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"tracking-support-be/internal/dto"
	"tracking-support-be/internal/pkg/logger"
	"tracking-support-be/internal/repository/memory"
	"tracking-support-be/internal/service"
	"tracking-support-be/pkg/support/carrier"
	"tracking-support-be/pkg/support/dialogue"

	"github.com/fatih/color"
)

// Scripted conversations exercising the main diagnostic paths
var scenarios = map[string][]string{
	"outdated": {
		"Hi",
		"MSCU7364555 is not updating",
		"I added it 30 hours ago",
		"still not updating",
		"this is useless, still not working",
	},
	"carrier": {
		"MSCU7364555 with MSC is not updating",
		"the carrier for MSCU7364555 is Maersk",
	},
	"format": {
		"MSC1234567 not tracking",
		"sorry, MSCU1234567",
	},
	"batch": {
		"MSCU7364555 and MAEU1234567 have no updates since yesterday",
		"all of my containers are still not updating",
		"ok it's working now",
		"no thanks",
	},
}

type chatClient interface {
	Send(sessionID, text string) (*dto.SendMessageResponse, error)
}

// localClient runs the engine in process with template replies
type localClient struct {
	svc service.ISupportService
}

func newLocalClient() *localClient {
	sessions := memory.NewSessionRepository(time.Hour)
	orch := dialogue.NewOrchestrator(dialogue.Config{Sessions: sessions})
	return &localClient{
		svc: service.NewSupportService(orch, sessions, service.NewTemplateRenderer(), carrier.Default(), nil, logger.NewNopLogger()),
	}
}

func (c *localClient) Send(sessionID, text string) (*dto.SendMessageResponse, error) {
	return c.svc.SendMessage(context.Background(), &dto.SendMessageRequest{SessionId: sessionID, Message: text})
}

// remoteClient talks to a running server
type remoteClient struct {
	baseURL string
	http    *http.Client
}

func (c *remoteClient) Send(sessionID, text string) (*dto.SendMessageResponse, error) {
	body, _ := json.Marshal(dto.SendMessageRequest{SessionId: sessionID, Message: text})
	resp, err := c.http.Post(c.baseURL+"/support/v1/chat", "application/json", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var env struct {
		Message string                  `json:"message"`
		Data    dto.SendMessageResponse `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode response (%s): %w", resp.Status, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &env.Data, fmt.Errorf("%s: %s", resp.Status, env.Message)
	}
	return &env.Data, nil
}

func main() {
	remote := flag.String("remote", "", "base API URL of a running server, e.g. http://localhost:3000/api")
	only := flag.String("scenario", "", "run a single scenario")
	flag.Parse()

	var client chatClient = newLocalClient()
	if *remote != "" {
		client = &remoteClient{baseURL: strings.TrimRight(*remote, "/"), http: &http.Client{Timeout: 30 * time.Second}}
		color.Cyan("🚀 Simulating against %s\n", *remote)
	} else {
		color.Cyan("🚀 Simulating in process\n")
	}

	failed := false
	for _, name := range []string{"outdated", "carrier", "format", "batch"} {
		if *only != "" && *only != name {
			continue
		}
		if !run(client, name, scenarios[name]) {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func run(client chatClient, name string, script []string) bool {
	sessionID := fmt.Sprintf("sim-%s-%d", name, time.Now().UnixNano())
	color.Yellow("\n=== %s (%s) ===", name, sessionID)

	for _, text := range script {
		fmt.Printf("USER: %s\n", text)

		start := time.Now()
		res, err := client.Send(sessionID, text)
		elapsed := time.Since(start)
		if err != nil {
			color.Red("Failed: %v", err)
			return false
		}

		out := res.Outcome
		step := "-"
		if out.Step != nil {
			step = fmt.Sprintf("%s#%d", out.Step.Key, out.Step.Rank)
		}
		color.Green("BOT (%v): %s", elapsed.Round(time.Millisecond), res.Reply)
		fmt.Printf("     intent=%s category=%s phase=%s frustration=%s step=%s",
			out.Intent, out.Issue.Category, out.Phase, out.Frustration, step)
		if out.Clarification != "" {
			fmt.Printf(" ask=%s", out.Clarification)
		}
		if out.Escalated {
			color.New(color.FgMagenta).Print(" ESCALATED")
		}
		fmt.Println()
	}
	return true
}
