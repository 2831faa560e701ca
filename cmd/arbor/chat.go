package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/arbor/pkg/chatservice"
	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/events"
	"github.com/go-go-golems/arbor/pkg/session"
)

// chatProfile is the YAML file describing which spans run and against which
// models.
type chatProfile struct {
	Models []session.Model           `yaml:"models"`
	Spans  []conversation.SpanConfig `yaml:"spans"`
}

func loadProfile(path string) (*chatProfile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading profile")
	}
	profile := &chatProfile{}
	if err := yaml.Unmarshal(b, profile); err != nil {
		return nil, errors.Wrap(err, "parsing profile")
	}
	if len(profile.Spans) == 0 {
		return nil, errors.New("profile defines no spans")
	}
	return profile, nil
}

func newChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run a chat, streaming multi-span responses to the terminal",
		RunE:  runChat,
	}
	cmd.Flags().String("chat-id", "", "chat id to attach to")
	cmd.Flags().String("profile", "profile.yaml", "span profile YAML")
	cmd.Flags().String("prompt", "", "submit a single prompt and exit")
	_ = viper.BindPFlags(cmd.Flags())
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	profile, err := loadProfile(viper.GetString("profile"))
	if err != nil {
		return err
	}
	chatID := viper.GetString("chat-id")
	if chatID == "" {
		return errors.New("--chat-id is required")
	}

	client := chatservice.NewClient(
		viper.GetString("api-url"),
		chatservice.WithToken(viper.GetString("token")),
	)
	catalog := session.NewStaticCatalog(profile.Models)
	state := conversation.NewChatState(chatID, profile.Spans)

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer func() {
		_ = pubSub.Close()
	}()
	manager := events.NewPublisherManager()
	manager.SubscribePublisher(events.TopicChatProgress, pubSub)

	sess := session.New(state, client, catalog,
		session.WithLogger(log.Logger),
		session.WithPublisherManager(manager),
	)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	progress, err := pubSub.Subscribe(ctx, events.TopicChatProgress)
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		printProgress(progress)
		return nil
	})
	eg.Go(func() error {
		defer cancel()
		if prompt := viper.GetString("prompt"); prompt != "" {
			return sess.Submit(ctx, []*conversation.ContentPart{conversation.NewTextPart(prompt)})
		}
		return interactiveLoop(ctx, sess)
	})
	return eg.Wait()
}

func printProgress(messages <-chan *message.Message) {
	for msg := range messages {
		var p events.Progress
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			log.Warn().Err(err).Msg("malformed progress payload")
			msg.Ack()
			continue
		}
		switch p.Kind {
		case events.ProgressSegment:
			fmt.Print(p.Delta)
		case events.ProgressSpanFinalized:
			fmt.Printf("\n[span %d done: %s]\n", p.SpanID, p.MessageID)
		case events.ProgressSpanFailed:
			fmt.Printf("\n[span %d failed: %s]\n", p.SpanID, p.Error)
		case events.ProgressTitleChanged:
			fmt.Printf("\n[title: %s]\n", p.Title)
		case events.ProgressCycleDone:
			fmt.Println()
		case events.ProgressCycleFailed:
			fmt.Printf("\n[cycle failed: %s]\n", p.Error)
		}
		msg.Ack()
	}
}

// interactiveLoop reads prompts from stdin. Lines starting with a slash are
// commands; everything else is submitted as a user message.
func interactiveLoop(ctx context.Context, sess *session.Session) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("type a prompt, /regen <span> <model-id> <user-msg-id>, /branch <msg-id>, /stop, or /quit")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := dispatch(ctx, sess, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
		}
	}
}

var errQuit = errors.New("quit")

func dispatch(ctx context.Context, sess *session.Session, line string) error {
	if !strings.HasPrefix(line, "/") {
		return sess.Submit(ctx, []*conversation.ContentPart{conversation.NewTextPart(line)})
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return errQuit
	case "/stop":
		return sess.Stop(ctx)
	case "/branch":
		if len(fields) != 2 {
			return errors.New("usage: /branch <msg-id>")
		}
		return sess.SelectBranch(ctx, conversation.MessageID(fields[1]))
	case "/regen":
		if len(fields) != 4 {
			return errors.New("usage: /regen <span> <model-id> <user-msg-id>")
		}
		spanID, err := strconv.Atoi(fields[1])
		if err != nil {
			return errors.Wrap(err, "span must be a number")
		}
		modelID, err := strconv.Atoi(fields[2])
		if err != nil {
			return errors.Wrap(err, "model id must be a number")
		}
		return sess.Regenerate(ctx, conversation.SpanID(spanID), conversation.MessageID(fields[3]), modelID)
	default:
		return errors.Errorf("unknown command %s", fields[0])
	}
}
