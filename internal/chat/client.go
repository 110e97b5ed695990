package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client talks to the assistant agent service. Sessions are created per
// user under /apps/{app}/users/{uid}/sessions/{sid}; messages go to /run.
type Client struct {
	endpoint string
	appName  string
	http     *http.Client
	logger   *log.Logger
}

func NewClient(endpoint, appName string, timeout time.Duration, logger *log.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[CHAT] ", log.LstdFlags)
	}
	return &Client{
		endpoint: endpoint,
		appName:  appName,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Session identifies one assistant conversation.
type Session struct {
	ID      string `json:"id"`
	AppName string `json:"appName"`
	UserID  string `json:"userId"`
}

// CreateSession registers a conversation with the agent service.
func (c *Client) CreateSession(ctx context.Context, userID, sessionID string, state map[string]interface{}) (Session, error) {
	url := fmt.Sprintf("%s/apps/%s/users/%s/sessions/%s", c.endpoint, c.appName, userID, sessionID)
	body, err := json.Marshal(state)
	if err != nil {
		return Session{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("create chat session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return Session{}, fmt.Errorf("create chat session: status %d", resp.StatusCode)
	}

	var s Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return Session{}, fmt.Errorf("decode chat session: %w", err)
	}
	return s, nil
}

type message struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type runRequest struct {
	AppName    string  `json:"appName"`
	UserID     string  `json:"userId"`
	SessionID  string  `json:"sessionId"`
	NewMessage message `json:"newMessage"`
}

// Send delivers one user message and returns the assistant's reply text.
// The agent service answers either with a flat {"reply": ...} or with a
// nested event list whose last text part is the reply; anything else is
// returned raw so the user still sees something.
func (c *Client) Send(ctx context.Context, userID, sessionID, text string) (string, error) {
	payload := runRequest{
		AppName:   c.appName,
		UserID:    userID,
		SessionID: sessionID,
		NewMessage: message{
			Role:  "user",
			Parts: []part{{Text: text}},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/run", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send chat message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("send chat message: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return extractReply(raw), nil
}

func extractReply(raw []byte) string {
	var flat struct {
		Reply string `json:"reply"`
	}
	if err := json.Unmarshal(raw, &flat); err == nil && flat.Reply != "" {
		return flat.Reply
	}

	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if text := lastText(payload); text != "" {
			return text
		}
	}
	return string(raw)
}

// lastText walks the decoded payload and returns the final "text" string
// found, matching how agent event lists carry the reply in their last part.
func lastText(v interface{}) string {
	var last string
	switch t := v.(type) {
	case map[string]interface{}:
		if s, ok := t["text"].(string); ok && s != "" {
			last = s
		}
		for _, k := range []string{"content", "parts", "events", "newMessage"} {
			if child, ok := t[k]; ok {
				if s := lastText(child); s != "" {
					last = s
				}
			}
		}
	case []interface{}:
		for _, child := range t {
			if s := lastText(child); s != "" {
				last = s
			}
		}
	}
	return last
}
