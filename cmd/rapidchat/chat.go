package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/transport/httpsse"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/transport/wire"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/transport/ws"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/turn"
)

var (
	chatServer    string
	chatToken     string
	chatModel     string
	chatID        string
	chatTransport string
	chatReasoning bool
	chatFiles     []string
)

var reasoningStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("243")).
	Italic(true)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send one message to a running server",
	Long: `Send one message to a running server and print the reply as it streams.
The message is read from stdin when no argument is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.Join(args, " ")
		if message == "" {
			b, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			message = strings.TrimSpace(string(b))
		}
		req := wire.ChatRequest{Message: message, Model: chatModel, ChatID: chatID}
		if req.ChatID == "" {
			req.ChatID = uuid.NewString()
		}
		for _, path := range chatFiles {
			img, err := readAttachment(path)
			if err != nil {
				return err
			}
			req.Images = append(req.Images, img)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		r := &renderer{out: cmd.OutOrStdout(), showReasoning: chatReasoning}
		var err error
		switch chatTransport {
		case "sse":
			err = chatSSE(ctx, req, r)
		case "ws":
			err = chatWS(ctx, req, r)
		default:
			return fmt.Errorf("unknown transport %q", chatTransport)
		}
		r.finish()
		if err == nil {
			fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render("chat id: "+req.ChatID))
		}
		return err
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatServer, "server", "http://localhost:8080", "server base URL")
	chatCmd.Flags().StringVar(&chatToken, "token", os.Getenv("RAPIDCHAT_TOKEN"), "bearer token")
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "scout", "model id")
	chatCmd.Flags().StringVar(&chatID, "chat-id", "", "chat id (generated when empty)")
	chatCmd.Flags().StringVarP(&chatTransport, "transport", "t", "sse", "transport: sse or ws")
	chatCmd.Flags().BoolVar(&chatReasoning, "reasoning", false, "print reasoning text, dimmed")
	chatCmd.Flags().StringSliceVarP(&chatFiles, "file", "f", nil, "attach a file (repeatable)")
	rootCmd.AddCommand(chatCmd)
}

func chatSSE(ctx context.Context, req wire.ChatRequest, r *renderer) error {
	c := &httpsse.Client{BaseURL: chatServer, Token: chatToken}
	_, err := c.Stream(ctx, req, func(ev httpsse.Event) error {
		if ev.Type != httpsse.EventChunk {
			return nil
		}
		var chunk turn.Chunk
		if err := ev.Decode(&chunk); err != nil {
			return err
		}
		r.update(chunk.Content, chunk.Reasoning)
		return nil
	})
	return err
}

func chatWS(ctx context.Context, req wire.ChatRequest, r *renderer) error {
	u, err := wsURL(chatServer)
	if err != nil {
		return err
	}
	frames := make(chan ws.Frame, 64)
	statuses := make(chan ws.Status, 8)
	c, err := ws.Dial(ctx, ws.ClientConfig{
		URL:     u,
		Token:   chatToken,
		OnFrame: func(f ws.Frame) { frames <- f },
		OnStatus: func(s ws.Status) {
			select {
			case statuses <- s:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer c.Close()

	messageID := uuid.NewString()
	if err := c.StartChat(req, messageID); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-statuses:
			if s == ws.StatusDisconnected {
				return ws.ErrDisconnected
			}
		case f := <-frames:
			if f.MessageID != messageID {
				continue
			}
			switch f.Type {
			case ws.TypeChatChunk:
				var chunk turn.Chunk
				if err := f.Decode(&chunk); err != nil {
					return err
				}
				r.update(chunk.Content, chunk.Reasoning)
			case ws.TypeChatComplete:
				return nil
			case ws.TypeChatError:
				var e wire.ErrorData
				f.Decode(&e)
				return errors.New(e.Error)
			}
		}
	}
}

// wsURL maps an http(s) base URL onto the server's WebSocket endpoint.
func wsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server URL %q", base)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

func readAttachment(path string) (wire.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return wire.Image{}, err
	}
	mt := mime.TypeByExtension(filepath.Ext(path))
	if mt == "" {
		mt = http.DetectContentType(data)
	}
	mt, _, _ = strings.Cut(mt, ";")
	return wire.Image{
		MIMEType: mt,
		Data:     base64.StdEncoding.EncodeToString(data),
		Name:     filepath.Base(path),
	}, nil
}

// renderer prints the growing display text incrementally. Each chunk
// carries the full classification so far; only the new suffix is written.
type renderer struct {
	out           io.Writer
	showReasoning bool
	content       string
	reasoning     string
	inReasoning   bool
}

func (r *renderer) update(content, reasoning string) {
	if r.showReasoning && len(reasoning) > len(r.reasoning) && strings.HasPrefix(reasoning, r.reasoning) && content == "" {
		r.inReasoning = true
		fmt.Fprint(r.out, reasoningStyle.Render(reasoning[len(r.reasoning):]))
		r.reasoning = reasoning
	}
	if content == r.content {
		return
	}
	if r.inReasoning {
		fmt.Fprint(r.out, "\n\n")
		r.inReasoning = false
	}
	if strings.HasPrefix(content, r.content) {
		fmt.Fprint(r.out, content[len(r.content):])
	} else {
		// Display text can shrink when a reasoning block opens mid-answer.
		fmt.Fprint(r.out, "\n"+content)
	}
	r.content = content
}

func (r *renderer) finish() {
	if r.content != "" || r.reasoning != "" {
		fmt.Fprintln(r.out)
	}
}
