package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/spf13/cobra"

	"github.com/haivivi/nova/pkg/cli"
	"github.com/haivivi/nova/pkg/gemini"
	"github.com/haivivi/nova/pkg/history"
	"github.com/haivivi/nova/pkg/voice"
)

var chatFlags struct {
	session string
	search  bool
	image   string
	schema  string
	model   string
	file    string
}

// chatRequest is the -f request file.
type chatRequest struct {
	Message string `json:"message" yaml:"message"`
	Image   string `json:"image,omitempty" yaml:"image,omitempty"`
	Search  bool   `json:"search,omitempty" yaml:"search,omitempty"`
	Session string `json:"session,omitempty" yaml:"session,omitempty"`
}

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with Nova",
	Long: `Send a message and print the answer. Without a message an interactive
loop starts; type /help for its commands.

Every exchange is saved to the history. A failed request is saved as a
system notice and is not sent back to the model.

Examples:
  nova chat "Summarize the Go memory model"
  nova chat --search "Weather in Oslo"
  nova chat --image photo.jpg "What is in this picture?"
  nova chat --schema person.json "Invent a character" -o json -q .name
  nova chat -f request.yaml`,
	RunE: runChat,
}

func init() {
	f := chatCmd.Flags()
	f.StringVar(&chatFlags.session, "session", "", "continue the session with this ID")
	f.BoolVar(&chatFlags.search, "search", false, "ground answers with Google Search")
	f.StringVar(&chatFlags.image, "image", "", "attach an image file")
	f.StringVar(&chatFlags.schema, "schema", "", "JSON schema file (YAML or JSON) for a structured answer")
	f.StringVar(&chatFlags.model, "model", "", "chat model (default: context chat_model or "+gemini.DefaultChatModel+")")
	f.StringVarP(&chatFlags.file, "file", "f", "", "request file (YAML or JSON, - for stdin)")
	rootCmd.AddCommand(chatCmd)
}

// chatter runs exchanges against one history session.
type chatter struct {
	client  *gemini.Client
	store   *history.Store
	session string
	opts    gemini.ChatOptions
	out     io.Writer
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, cctx, err := loadContext()
	if err != nil {
		return err
	}

	req := chatRequest{
		Message: strings.Join(args, " "),
		Image:   chatFlags.image,
		Search:  chatFlags.search,
		Session: chatFlags.session,
	}
	if chatFlags.file != "" {
		if err := cli.LoadRequest(chatFlags.file, &req); err != nil {
			return err
		}
	}

	client, err := newClient(cctx)
	if err != nil {
		if voice.IsMissingCredential(err) {
			return fmt.Errorf("%s: set API_KEY or run 'nova config add-context <name> --api-key KEY'", gemini.MessageMissingCredential)
		}
		return err
	}

	opts := gemini.ChatOptions{
		Model:     chatFlags.model,
		UseSearch: req.Search,
	}
	if opts.Model == "" {
		opts.Model = cctx.GetExtra(cli.KeyChatModel)
	}
	if chatFlags.schema != "" {
		var schema jsonschema.Schema
		if err := cli.LoadRequest(chatFlags.schema, &schema); err != nil {
			return fmt.Errorf("load schema: %w", err)
		}
		opts.Schema = &schema
	}

	store, db, err := openHistory(cfg, cctx)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c := &chatter{client: client, store: store, session: req.Session, opts: opts, out: cmd.OutOrStdout()}
	if c.session == "" {
		sess, err := store.Create(ctx)
		if err != nil {
			return err
		}
		c.session = sess.ID
	} else if _, err := store.Get(ctx, c.session); err != nil {
		return err
	}

	if strings.TrimSpace(req.Message) != "" || req.Image != "" {
		reply, err := c.send(ctx, req.Message, req.Image)
		if err != nil {
			return err
		}
		return c.print(cmd, reply)
	}
	return c.interactive(ctx, cmd)
}

// send stores the user message, asks the model with the whole session and
// stores the answer. A failed request leaves a system notice in the session.
func (c *chatter) send(ctx context.Context, text, imagePath string) (*gemini.ChatReply, error) {
	msg := history.NewMessage(history.RoleUser, text)
	if imagePath != "" {
		uri, err := attachment(imagePath)
		if err != nil {
			return nil, err
		}
		msg = msg.WithImage(uri)
	}
	sess, err := c.store.AppendMessages(ctx, c.session, msg)
	if err != nil {
		return nil, err
	}

	reply, err := c.client.Chat(ctx, sess.Messages, c.opts)
	if err != nil {
		notice := history.NewMessage(history.RoleSystem, gemini.ErrorNotice)
		if _, serr := c.store.AppendMessages(ctx, c.session, notice); serr != nil {
			return nil, errors.Join(err, serr)
		}
		return nil, fmt.Errorf("%s: %w", gemini.ErrorNotice, err)
	}
	if _, err := c.store.AppendMessages(ctx, c.session, reply.Message()); err != nil {
		return nil, err
	}
	return reply, nil
}

// print writes a structured reply through the output formatter and a text
// reply as is, followed by its sources.
func (c *chatter) print(cmd *cobra.Command, reply *gemini.ChatReply) error {
	if reply.Structured {
		var v any
		if err := reply.Decode(&v); err != nil {
			return err
		}
		return printResult(cmd, v)
	}
	fmt.Fprintln(c.out, reply.Text)
	if len(reply.Sources) > 0 {
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, "Sources:")
		for _, s := range reply.Sources {
			fmt.Fprintf(c.out, "  - %s <%s>\n", s.Title, s.URI)
		}
	}
	return nil
}

const chatHelp = `Commands:
  /new      start a new session
  /search   toggle Google Search grounding
  /image F  attach image file F to the next message
  /help     show this help
  /exit     quit`

func (c *chatter) interactive(ctx context.Context, cmd *cobra.Command) error {
	fmt.Fprintf(c.out, "Session %s. Type /help for commands.\n", c.session)
	in := bufio.NewScanner(cmd.InOrStdin())
	in.Buffer(make([]byte, 64*1024), 1024*1024)

	var image string
	for {
		fmt.Fprint(c.out, "> ")
		if !in.Scan() {
			fmt.Fprintln(c.out)
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		switch {
		case line == "":
			continue
		case line == "/exit" || line == "/quit":
			return nil
		case line == "/help":
			fmt.Fprintln(c.out, chatHelp)
			continue
		case line == "/new":
			sess, err := c.store.Create(ctx)
			if err != nil {
				return err
			}
			c.session = sess.ID
			fmt.Fprintf(c.out, "Session %s.\n", c.session)
			continue
		case line == "/search":
			c.opts.UseSearch = !c.opts.UseSearch
			fmt.Fprintf(c.out, "Search grounding %s.\n", onOff(c.opts.UseSearch))
			continue
		case strings.HasPrefix(line, "/image "):
			image = strings.TrimSpace(strings.TrimPrefix(line, "/image "))
			fmt.Fprintf(c.out, "Attached %s.\n", image)
			continue
		case strings.HasPrefix(line, "/"):
			fmt.Fprintf(c.out, "Unknown command %s. Type /help.\n", line)
			continue
		}

		reply, err := c.send(ctx, line, image)
		image = ""
		if err != nil {
			fmt.Fprintln(c.out, err)
			continue
		}
		if err := c.print(cmd, reply); err != nil {
			return err
		}
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// attachment reads an image file as a data URI.
func attachment(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read attachment: %w", err)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("attachment %s is %s, not an image", path, mimeType)
	}
	img := gemini.Image{MIMEType: mimeType, Data: data}
	return img.DataURI(), nil
}
