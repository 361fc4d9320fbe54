// Command probe is a smoke test against a running server: it stages a
// selection, asks a question about it, asks a follow-up in the same session
// and prints answers, citations and the stored history. With -nats it also
// prints the turn events published while it runs.
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
	"time"

	"rag-agent-be/internal/dto"
	"rag-agent-be/pkg/events"
	pktNats "rag-agent-be/pkg/nats"

	"github.com/fatih/color"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8000", "server base URL")
	selection := flag.String("selection", "The zero moment point is where the net moment of inertial and gravity forces has no horizontal component.", "text to stage as the selection")
	question := flag.String("q", "Explain this", "question asked about the selection")
	followUp := flag.String("followup", "How does a walking controller use it?", "follow-up question in the same session")
	natsURL := flag.String("nats", "", "NATS URL to watch turn events on (optional)")
	flag.Parse()

	client := &http.Client{Timeout: 30 * time.Second}

	if *natsURL != "" {
		sub, err := pktNats.NewSubscriber(*natsURL)
		if err != nil {
			color.Red("Failed to connect to NATS: %v", err)
			os.Exit(1)
		}
		defer sub.Close()
		err = sub.Subscribe(context.Background(), "events."+events.TypeChatTurnCompleted, "", func(ctx context.Context, e events.Event) error {
			color.Magenta("[EVENT] %s %v", e.EventType(), e.Payload())
			return nil
		})
		if err != nil {
			color.Red("Failed to subscribe: %v", err)
			os.Exit(1)
		}
	}

	color.Cyan("🚀 Probing %s\n", *baseURL)

	// 1. Liveness & readiness
	color.Yellow("\n1. Health")
	status, body, err := send(client, "GET", *baseURL+"/health", nil)
	exitOn(err)
	color.Green("Status: %d", status)
	prettyPrint(body)

	// 2. Stage a selection
	color.Yellow("\n2. Submit selection")
	status, body, err = send(client, "POST", *baseURL+"/api/chat/selection", dto.SubmitSelectionRequest{SelectedText: *selection})
	exitOn(err)
	var sel dto.SubmitSelectionResponse
	_ = json.Unmarshal(body, &sel)
	color.Green("Status: %d, session: %s", status, sel.SessionId)

	// 3. Ask about it, then follow up
	sessionID := sel.SessionId
	for i, q := range []string{*question, *followUp} {
		color.Yellow("\n%d. Chat: %q", i+3, q)
		status, body, err = send(client, "POST", *baseURL+"/api/chat", dto.SendChatRequest{Message: q, SessionId: sessionID})
		exitOn(err)
		if status != http.StatusOK {
			color.Red("Status: %d", status)
			prettyPrint(body)
			os.Exit(1)
		}
		var res dto.SendChatResponse
		_ = json.Unmarshal(body, &res)
		sessionID = res.SessionId
		color.Green("Status: %d, outcome: %s", status, res.Outcome)
		fmt.Println(res.Response)
		color.Cyan("Citations: %v", res.Citations)
	}

	// 5. Stored history
	color.Yellow("\n5. History")
	status, body, err = send(client, "GET", *baseURL+"/api/chat/"+sessionID+"/history", nil)
	exitOn(err)
	color.Green("Status: %d", status)
	prettyPrint(body)

	if *natsURL != "" {
		// give the stream a moment to deliver
		time.Sleep(time.Second)
	}
}

func send(client *http.Client, method, url string, payload interface{}) (int, []byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody, err
}

func prettyPrint(raw []byte) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitOn(err error) {
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
}
