// ABOUTME: Mail tool definitions exposed over MCP tools/list and tools/call.
// ABOUTME: Every tool schema carries access_token; handlers delegate to the proxy.

package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2389/mailgate/internal/proxy"
	"github.com/2389/mailgate/internal/store"
)

// ToolDefinition describes a tool with its handler. InputSchema is a raw
// JSON Schema document served verbatim in tools/list.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     func(ctx context.Context, account *store.Account, args json.RawMessage) (any, error)
}

// mailTools returns the full tool set bound to the given proxy service.
func mailTools(svc *proxy.Service) []*ToolDefinition {
	return []*ToolDefinition{
		{
			Name:        "list_messages",
			Description: "List your messages, newest first. Returns summaries with read and starred status.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"access_token": {
						"type": "string",
						"description": "Your mail access token"
					},
					"limit": {
						"type": "integer",
						"description": "Maximum messages to return (default 50, max 500)"
					},
					"offset": {
						"type": "integer",
						"description": "Number of messages to skip"
					}
				},
				"required": ["access_token"]
			}`),
			Handler: func(ctx context.Context, account *store.Account, args json.RawMessage) (any, error) {
				var in struct {
					Limit  int `json:"limit"`
					Offset int `json:"offset"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, invalidArgs(err)
				}
				return svc.List(ctx, account, proxy.ListParams{Limit: in.Limit, Offset: in.Offset})
			},
		},
		{
			Name:        "get_message",
			Description: "Fetch a single message by ID, including its full text and HTML bodies.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"access_token": {
						"type": "string",
						"description": "Your mail access token"
					},
					"id": {
						"type": "string",
						"description": "Message ID"
					}
				},
				"required": ["access_token", "id"]
			}`),
			Handler: func(ctx context.Context, account *store.Account, args json.RawMessage) (any, error) {
				var in struct {
					ID string `json:"id"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, invalidArgs(err)
				}
				return svc.Get(ctx, account, in.ID)
			},
		},
		{
			Name:        "list_attachments",
			Description: "List attachment metadata for one of your messages: filename, content type, and size.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"access_token": {
						"type": "string",
						"description": "Your mail access token"
					},
					"id": {
						"type": "string",
						"description": "Message ID"
					}
				},
				"required": ["access_token", "id"]
			}`),
			Handler: func(ctx context.Context, account *store.Account, args json.RawMessage) (any, error) {
				var in struct {
					ID string `json:"id"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, invalidArgs(err)
				}
				msg, err := svc.Get(ctx, account, in.ID)
				if err != nil {
					return nil, err
				}
				return map[string]any{"attachments": msg.Attachments}, nil
			},
		},
		{
			Name:        "search_messages",
			Description: "Search your messages by subject, body, or sender. Returns matching summaries.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"access_token": {
						"type": "string",
						"description": "Your mail access token"
					},
					"query": {
						"type": "string",
						"description": "Search query"
					},
					"limit": {
						"type": "integer",
						"description": "Maximum messages to return (default 50, max 500)"
					},
					"offset": {
						"type": "integer",
						"description": "Number of messages to skip"
					}
				},
				"required": ["access_token", "query"]
			}`),
			Handler: func(ctx context.Context, account *store.Account, args json.RawMessage) (any, error) {
				var in struct {
					Query  string `json:"query"`
					Limit  int    `json:"limit"`
					Offset int    `json:"offset"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, invalidArgs(err)
				}
				return svc.Search(ctx, account, in.Query, proxy.ListParams{Limit: in.Limit, Offset: in.Offset})
			},
		},
		{
			Name:        "send_email",
			Description: "Send an email from your own address. The sender is always your account address.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"access_token": {
						"type": "string",
						"description": "Your mail access token"
					},
					"to": {
						"type": "array",
						"items": {"type": "string"},
						"description": "Recipient addresses"
					},
					"cc": {
						"type": "array",
						"items": {"type": "string"},
						"description": "Cc addresses"
					},
					"bcc": {
						"type": "array",
						"items": {"type": "string"},
						"description": "Bcc addresses"
					},
					"subject": {
						"type": "string",
						"description": "Message subject"
					},
					"body": {
						"type": "string",
						"description": "Plain text message body"
					}
				},
				"required": ["access_token", "to"]
			}`),
			Handler: func(ctx context.Context, account *store.Account, args json.RawMessage) (any, error) {
				var in struct {
					To      []string `json:"to"`
					Cc      []string `json:"cc"`
					Bcc     []string `json:"bcc"`
					Subject string   `json:"subject"`
					Body    string   `json:"body"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, invalidArgs(err)
				}
				id, err := svc.Send(ctx, account, proxy.SendRequest{
					To:      in.To,
					Cc:      in.Cc,
					Bcc:     in.Bcc,
					Subject: in.Subject,
					Body:    in.Body,
				})
				if err != nil {
					return nil, err
				}
				return map[string]string{"id": id}, nil
			},
		},
		{
			Name:        "send_reply",
			Description: "Reply to one of your messages. The reply goes to the original sender with a quoted body.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"access_token": {
						"type": "string",
						"description": "Your mail access token"
					},
					"id": {
						"type": "string",
						"description": "ID of the message to reply to"
					},
					"body": {
						"type": "string",
						"description": "Plain text reply body"
					}
				},
				"required": ["access_token", "id", "body"]
			}`),
			Handler: func(ctx context.Context, account *store.Account, args json.RawMessage) (any, error) {
				var in struct {
					ID   string `json:"id"`
					Body string `json:"body"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, invalidArgs(err)
				}
				id, err := svc.Reply(ctx, account, in.ID, in.Body)
				if err != nil {
					return nil, err
				}
				return map[string]string{"id": id}, nil
			},
		},
		{
			Name:        "forward_message",
			Description: "Forward one of your messages to new recipients with an optional note above the original.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"access_token": {
						"type": "string",
						"description": "Your mail access token"
					},
					"id": {
						"type": "string",
						"description": "ID of the message to forward"
					},
					"to": {
						"type": "array",
						"items": {"type": "string"},
						"description": "Recipient addresses"
					},
					"body": {
						"type": "string",
						"description": "Note placed above the forwarded message"
					}
				},
				"required": ["access_token", "id", "to"]
			}`),
			Handler: func(ctx context.Context, account *store.Account, args json.RawMessage) (any, error) {
				var in struct {
					ID   string   `json:"id"`
					To   []string `json:"to"`
					Body string   `json:"body"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, invalidArgs(err)
				}
				id, err := svc.Forward(ctx, account, in.ID, in.To, in.Body)
				if err != nil {
					return nil, err
				}
				return map[string]string{"id": id}, nil
			},
		},
		{
			Name:        "delete_messages",
			Description: "Delete messages from your view. Omit ids to delete all of your messages. Other accounts keep their copies.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"access_token": {
						"type": "string",
						"description": "Your mail access token"
					},
					"ids": {
						"type": "array",
						"items": {"type": "string"},
						"description": "Message IDs to delete. Omit to delete all your messages."
					}
				},
				"required": ["access_token"]
			}`),
			Handler: func(ctx context.Context, account *store.Account, args json.RawMessage) (any, error) {
				var in struct {
					IDs []string `json:"ids"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, invalidArgs(err)
				}
				deleted, err := svc.Delete(ctx, account, in.IDs)
				if err != nil {
					return nil, err
				}
				return map[string]int{"deleted": deleted}, nil
			},
		},
		{
			Name:        "mark_read",
			Description: "Mark one of your messages as read or unread.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"access_token": {
						"type": "string",
						"description": "Your mail access token"
					},
					"id": {
						"type": "string",
						"description": "Message ID"
					},
					"read": {
						"type": "boolean",
						"description": "True to mark read, false to mark unread (default true)"
					}
				},
				"required": ["access_token", "id"]
			}`),
			Handler: func(ctx context.Context, account *store.Account, args json.RawMessage) (any, error) {
				in := struct {
					ID   string `json:"id"`
					Read *bool  `json:"read"`
				}{}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, invalidArgs(err)
				}
				read := true
				if in.Read != nil {
					read = *in.Read
				}
				if err := svc.MarkRead(ctx, account, in.ID, read); err != nil {
					return nil, err
				}
				return map[string]bool{"read": read}, nil
			},
		},
		{
			Name:        "toggle_star",
			Description: "Star or unstar one of your messages.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"access_token": {
						"type": "string",
						"description": "Your mail access token"
					},
					"id": {
						"type": "string",
						"description": "Message ID"
					},
					"starred": {
						"type": "boolean",
						"description": "True to star, false to unstar (default true)"
					}
				},
				"required": ["access_token", "id"]
			}`),
			Handler: func(ctx context.Context, account *store.Account, args json.RawMessage) (any, error) {
				in := struct {
					ID      string `json:"id"`
					Starred *bool  `json:"starred"`
				}{}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, invalidArgs(err)
				}
				starred := true
				if in.Starred != nil {
					starred = *in.Starred
				}
				if err := svc.ToggleStar(ctx, account, in.ID, starred); err != nil {
					return nil, err
				}
				return map[string]bool{"starred": starred}, nil
			},
		},
	}
}

func invalidArgs(err error) error {
	return fmt.Errorf("%w: %v", proxy.ErrInvalidArgument, err)
}
