package tgclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"telescribe/internal/model"
	"telescribe/internal/throttle"
)

// API is the surface the exporter consumes from the platform.
type API interface {
	ListDialogs(ctx context.Context) ([]model.Conversation, error)
	OpenHistory(conv model.Conversation) Cursor
	ResolveUser(ctx context.Context, id int64) (model.UserProfile, error)
}

// Cursor iterates one conversation's messages newest first. Next returns
// ErrEndOfHistory once the stream is exhausted. When Next fails with a
// Throttled signal the cursor has not advanced: the same call may be
// repeated after the wait without skipping or duplicating items.
type Cursor interface {
	Next(ctx context.Context) (model.Message, error)
}

// ErrEndOfHistory marks normal stream exhaustion.
var ErrEndOfHistory = errors.New("end of history")

// Client talks to a Telegram-gateway HTTP API. The token rides in the URL
// path, bot-API style.
type Client struct {
	apiBase    string
	httpClient *http.Client
	pageSize   int
}

func NewClient(token string) *Client {
	return &Client{
		apiBase:    "https://api.telegram.org/bot" + token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		pageSize:   100,
	}
}

// envelope is the gateway's generic response wrapper.
type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type wireChat struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Type            string `json:"type"`
	LastMessageDate int64  `json:"last_message_date"`
}

type wireUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type wireMessage struct {
	ID      int64     `json:"message_id"`
	Date    int64     `json:"date"`
	Text    string    `json:"text"`
	From    *wireUser `json:"from"`
	ReplyTo *struct {
		MessageID int64 `json:"message_id"`
	} `json:"reply_to_message"`
}

func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	u := c.apiBase + "/" + method
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", method, err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%s: status %d: %w", method, resp.StatusCode, err)
	}
	if !env.OK {
		if env.ErrorCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTooManyRequests {
			retry := time.Second
			if env.Parameters != nil && env.Parameters.RetryAfter > 0 {
				retry = time.Duration(env.Parameters.RetryAfter) * time.Second
			}
			return &throttle.Throttled{RetryAfter: retry}
		}
		return fmt.Errorf("%s: api error %d: %s", method, env.ErrorCode, env.Description)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// ListDialogs fetches the account's conversations, most recent activity
// first.
func (c *Client) ListDialogs(ctx context.Context) ([]model.Conversation, error) {
	var raw []wireChat
	if err := c.call(ctx, "getDialogs", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]model.Conversation, 0, len(raw))
	for _, d := range raw {
		out = append(out, model.Conversation{
			ID:           d.ID,
			Name:         d.Title,
			Kind:         kindOf(d.Type),
			LastActivity: time.Unix(d.LastMessageDate, 0).UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

func kindOf(t string) model.Kind {
	switch strings.ToLower(t) {
	case "private":
		return model.KindPrivate
	case "group", "supergroup":
		return model.KindGroup
	case "channel":
		return model.KindChannel
	default:
		return model.KindUnknown
	}
}

// ResolveUser fetches one user's profile. A Throttled failure is transient;
// anything else (deleted user, no access) is terminal for this id.
func (c *Client) ResolveUser(ctx context.Context, id int64) (model.UserProfile, error) {
	params := url.Values{}
	params.Set("user_id", strconv.FormatInt(id, 10))
	var raw wireUser
	if err := c.call(ctx, "getUser", params, &raw); err != nil {
		return model.UserProfile{}, err
	}
	return model.UserProfile{ID: raw.ID, Username: raw.Username, FirstName: raw.FirstName, LastName: raw.LastName}, nil
}

// getHistory fetches one newest-first page. offsetID 0 starts at the latest
// message; otherwise the page begins strictly below offsetID.
func (c *Client) getHistory(ctx context.Context, chatID, offsetID int64, limit int) ([]model.Message, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("offset_id", strconv.FormatInt(offsetID, 10))
	params.Set("limit", strconv.Itoa(limit))
	var raw []wireMessage
	if err := c.call(ctx, "getHistory", params, &raw); err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(raw))
	for _, m := range raw {
		msg := model.Message{ID: m.ID, Date: time.Unix(m.Date, 0).UTC(), Text: m.Text}
		if m.From != nil {
			msg.FromID = m.From.ID
		}
		if m.ReplyTo != nil {
			msg.ReplyTo = m.ReplyTo.MessageID
		}
		out = append(out, msg)
	}
	return out, nil
}

// OpenHistory returns a cursor over conv's messages, newest first.
func (c *Client) OpenHistory(conv model.Conversation) Cursor {
	return &histCursor{c: c, chatID: conv.ID}
}

// histCursor pages through getHistory. The offset only moves after a page
// arrives intact, so a throttled page fetch can simply be reissued.
type histCursor struct {
	c        *Client
	chatID   int64
	offsetID int64
	buf      []model.Message
	done     bool
}

func (h *histCursor) Next(ctx context.Context) (model.Message, error) {
	if len(h.buf) == 0 {
		if h.done {
			return model.Message{}, ErrEndOfHistory
		}
		page, err := h.c.getHistory(ctx, h.chatID, h.offsetID, h.c.pageSize)
		if err != nil {
			return model.Message{}, err
		}
		if len(page) == 0 {
			h.done = true
			return model.Message{}, ErrEndOfHistory
		}
		if len(page) < h.c.pageSize {
			h.done = true
		}
		h.offsetID = page[len(page)-1].ID
		h.buf = page
	}
	m := h.buf[0]
	h.buf = h.buf[1:]
	return m, nil
}
