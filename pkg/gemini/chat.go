package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"

	"github.com/haivivi/nova/pkg/history"
)

const (
	// DefaultChatModel answers text chat.
	DefaultChatModel = "gemini-3-flash-preview"

	// ChatSystemInstruction is sent with every chat request.
	ChatSystemInstruction = "You are Nova, an advanced AI assistant. You are helpful, concise, and professional. Use markdown for all responses."

	// FallbackReply replaces an empty model answer.
	FallbackReply = "Sorry, I couldn't generate a response."

	// ErrorNotice is stored as a system message when a chat request fails.
	ErrorNotice = "An error occurred while connecting to Nova's brain. Please try again."

	// DefaultSourceTitle names grounding sources that carry no title.
	DefaultSourceTitle = "Source"

	// defaultAttachmentType is assumed for attachments without a MIME tag.
	defaultAttachmentType = "image/jpeg"
)

// ErrEmptyConversation is returned when no message can be sent.
var ErrEmptyConversation = errors.New("gemini: chat: no messages to send")

// ChatOptions configures a chat request.
type ChatOptions struct {
	// Model overrides DefaultChatModel.
	Model string

	// UseSearch enables Google Search grounding.
	UseSearch bool

	// Schema requests a JSON reply matching the schema.
	Schema *jsonschema.Schema
}

// ChatReply is the model answer.
type ChatReply struct {
	Text    string
	Sources []history.Source

	// Structured is true when Text is the JSON document requested through
	// ChatOptions.Schema.
	Structured bool
}

// Decode unmarshals a structured reply into v, repairing malformed JSON.
func (r *ChatReply) Decode(v any) error {
	if !r.Structured {
		return errors.New("gemini: chat: reply is not structured")
	}
	return unmarshalJSON([]byte(r.Text), v)
}

// Message converts the reply into an assistant history message.
func (r *ChatReply) Message() history.Message {
	return history.NewMessage(history.RoleAssistant, r.Text).WithSources(r.Sources)
}

// Chat sends the conversation and returns the model answer. System
// messages are local notices and are not sent.
func (c *Client) Chat(ctx context.Context, messages []history.Message, opts ChatOptions) (*ChatReply, error) {
	contents, err := chatContents(messages)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, ErrEmptyConversation
	}
	gc, err := c.GenAI(ctx)
	if err != nil {
		return nil, err
	}

	model := opts.Model
	if model == "" {
		model = DefaultChatModel
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(ChatSystemInstruction, genai.RoleUser),
	}
	if opts.UseSearch {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	if opts.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = convSchema(opts.Schema)
	}

	resp, err := gc.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, classify("chat", err)
	}

	reply := &ChatReply{
		Text:       resp.Text(),
		Sources:    groundingSources(resp),
		Structured: opts.Schema != nil,
	}
	if strings.TrimSpace(reply.Text) == "" {
		reply.Text = FallbackReply
		reply.Structured = false
	}
	return reply, nil
}

// chatContents maps history messages onto SDK contents. An attached image
// becomes an inline part ahead of the text.
func chatContents(messages []history.Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		if m.Role == history.RoleSystem {
			continue
		}
		var parts []*genai.Part
		if m.Image != "" {
			mimeType, data, err := ParseDataURI(m.Image)
			if err != nil {
				return nil, fmt.Errorf("gemini: chat: message %s: %w", m.ID, err)
			}
			if mimeType == "" {
				mimeType = defaultAttachmentType
			}
			parts = append(parts, genai.NewPartFromBytes(data, mimeType))
		}
		parts = append(parts, genai.NewPartFromText(m.Content))

		role := genai.Role(genai.RoleUser)
		if m.Role == history.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents, nil
}

// groundingSources reads web sources from the first candidate. Entries
// without a URI are dropped.
func groundingSources(resp *genai.GenerateContentResponse) []history.Source {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	gm := resp.Candidates[0].GroundingMetadata
	if gm == nil {
		return nil
	}
	var sources []history.Source
	for _, chunk := range gm.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		title := chunk.Web.Title
		if title == "" {
			title = DefaultSourceTitle
		}
		sources = append(sources, history.Source{Title: title, URI: chunk.Web.URI})
	}
	return sources
}

// convSchema converts a JSON schema to the SDK schema.
func convSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	enums := make([]string, 0, len(schema.Enum))
	for _, v := range schema.Enum {
		enums = append(enums, fmt.Sprintf("%v", v))
	}

	gs := genai.Schema{
		Format:      schema.Format,
		Title:       schema.Title,
		Description: schema.Description,
		Enum:        enums,
		Items:       convSchema(schema.Items),
		Required:    schema.Required,
	}
	if n := len(schema.Properties); n > 0 {
		gs.Properties = make(map[string]*genai.Schema, n)
		for k, prop := range schema.Properties {
			gs.Properties[k] = convSchema(prop)
		}
	}
	switch schema.Type {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return &gs
}
