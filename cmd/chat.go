package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"allenchat/internal/chat"
	"allenchat/internal/config"
)

type chatOptions struct {
	system   string
	platform string
	model    string
	image    string
}

func newChatCmd(opts *globalOptions) *cobra.Command {
	co := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session with the configured platform.

Inside the session:
  /image <path> [question]   ask about an image
  /reset                     forget the conversation so far
  /exit                      leave the session`,
		Example: `  $ allenchat chat
  $ allenchat chat --platform openai --model gpt-4o
  $ allenchat chat --image worksheet.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, opts, co)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&co.system, "system", "", "system prompt for the session")
	flags.StringVar(&co.platform, "platform", "", "platform to chat with (allen or openai)")
	flags.StringVarP(&co.model, "model", "m", "", "model to use")
	flags.StringVar(&co.image, "image", "", "image to attach to the first message")
	return cmd
}

func runChat(cmd *cobra.Command, opts *globalOptions, co *chatOptions) error {
	ctx := cmd.Context()
	cfg := opts.cfg
	if co.platform != "" {
		cfg.Client.Platform = co.platform
	}
	if co.model != "" {
		cfg.Model.Model = co.model
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	rt, authCtx, err := signedInRouter(ctx, cfg)
	if err != nil {
		return err
	}
	if authCtx != nil {
		defer authCtx.Close()
		printInfo("Signed in as %s", authCtx.User().Name())
	}

	pool := chat.NewControllerPool()
	session := chat.NewSession(rt, pool, cfg.Model, co.system)
	go func() {
		<-ctx.Done()
		pool.StopAll()
	}()

	printInfo("Chatting with %s (%s). Type /exit to quit.", rt.Platform(), cfg.Model.Model)

	pendingImage := co.image
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		boldColor.Print("\nYou: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())

		var images []string
		switch {
		case input == "":
			continue
		case input == "/exit" || input == "exit":
			return nil
		case input == "/reset":
			session.Reset()
			printSuccess("Conversation cleared")
			continue
		case strings.HasPrefix(input, "/image "):
			path, question, _ := strings.Cut(strings.TrimSpace(strings.TrimPrefix(input, "/image ")), " ")
			pendingImage = path
			input = question
		}

		if pendingImage != "" {
			dataURL, err := imageDataURL(pendingImage)
			pendingImage = ""
			if err != nil {
				printError("%v", err)
				continue
			}
			images = append(images, dataURL)
		}

		if err := sendAndPrint(cmd, session, cfg, input, images); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			printError("%v", err)
		}
	}
	return scanner.Err()
}

func sendAndPrint(cmd *cobra.Command, session *chat.Session, cfg config.Config, input string, images []string) error {
	assistantColor.Printf("\n%s: ", assistantName(cfg.Client.Platform))

	streamed := false
	reply, err := session.Send(cmd.Context(), input, images, func(_, chunk string) {
		streamed = true
		fmt.Print(chunk)
	})
	if err != nil {
		fmt.Println()
		return err
	}
	if !streamed {
		fmt.Print(reply)
	}
	fmt.Println()
	return nil
}

func assistantName(platform string) string {
	if platform == config.PlatformAllen {
		return "Allen"
	}
	return "Assistant"
}
