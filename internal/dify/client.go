package dify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/dyike/StockPilot/config"
	"github.com/dyike/StockPilot/internal/logger"
)

const chatMessagesPath = "/v1/chat-messages"

var ErrEmptyAnswer = errors.New("dify returned an empty answer")

// Client sends free-form questions to a Dify chat app in streaming mode.
type Client struct {
	http     *resty.Client
	endpoint string
	user     string
}

type chatRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id"`
	User           string         `json:"user"`
}

type streamEvent struct {
	Event          string `json:"event"`
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Message        string `json:"message"`
	Code           string `json:"code"`
}

type Answer struct {
	Text           string
	ConversationID string
	MessageID      string
}

func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.DifyAPIKey == "" {
		return nil, fmt.Errorf("DIFY_API_KEY is not set")
	}
	if cfg.DifyBaseURL == "" {
		return nil, fmt.Errorf("DIFY_BASE_URL is not set")
	}

	endpoint := strings.TrimRight(cfg.DifyBaseURL, "/")
	if !strings.HasSuffix(endpoint, "/chat-messages") {
		endpoint += chatMessagesPath
	}

	client := resty.New().
		SetTimeout(cfg.Timeout()*4).
		SetAuthToken(cfg.DifyAPIKey).
		SetHeader("Content-Type", "application/json")

	return &Client{http: client, endpoint: endpoint, user: cfg.DifyUser}, nil
}

// Ask streams the answer to query. onChunk, if set, sees each text delta.
func (c *Client) Ask(ctx context.Context, query string, onChunk func(string)) (*Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	op := logger.StartOperation(ctx, "dify_ask", "query_len", len(query))

	resp, err := c.http.R().
		SetContext(op.Context()).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		SetBody(chatRequest{
			Inputs:       map[string]any{},
			Query:        query,
			ResponseMode: "streaming",
			User:         c.user,
		}).
		Post(c.endpoint)
	if err != nil {
		op.EndWithError(err)
		return nil, fmt.Errorf("dify request: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(body, 4096))
		err := fmt.Errorf("dify request: HTTP %d: %s", resp.StatusCode(), strings.TrimSpace(string(detail)))
		op.EndWithError(err)
		return nil, err
	}

	answer, err := readStream(body, onChunk)
	if err != nil {
		op.EndWithError(err)
		return nil, err
	}
	op.End("answer_len", len(answer.Text))
	return answer, nil
}

// readStream consumes "data: {...}" lines until message_end or EOF.
// Lines that are not JSON are skipped.
func readStream(r io.Reader, onChunk func(string)) (*Answer, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var text strings.Builder
	answer := &Answer{}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var evt streamEvent
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			continue
		}
		if evt.ConversationID != "" {
			answer.ConversationID = evt.ConversationID
		}
		if evt.MessageID != "" {
			answer.MessageID = evt.MessageID
		}

		switch evt.Event {
		case "error":
			return nil, fmt.Errorf("dify stream error %s: %s", evt.Code, evt.Message)
		case "message_end":
			answer.Text = text.String()
			return finish(answer)
		}
		if evt.Answer != "" {
			text.WriteString(evt.Answer)
			if onChunk != nil {
				onChunk(evt.Answer)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dify stream: %w", err)
	}
	answer.Text = text.String()
	return finish(answer)
}

func finish(answer *Answer) (*Answer, error) {
	if strings.TrimSpace(answer.Text) == "" {
		return nil, ErrEmptyAnswer
	}
	return answer, nil
}
