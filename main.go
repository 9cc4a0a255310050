package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/chatterm/chatterm/transcript"
)

func isInteractive(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatterm",
		Short: "Terminal chat over an OpenAI-compatible completion API",
		Args:  cobra.ArbitraryArgs,
		RunE:  runChat,
	}

	rootCmd.Flags().StringP("model", "m", "", fmt.Sprintf("Model to chat with (%s)", strings.Join(supportedModels, ", ")))
	rootCmd.Flags().Float64P("temperature", "t", 0.1, "Sampling temperature (0.0-1.0, ignored for reasoning models)")
	rootCmd.Flags().IntP("max-tokens", "N", 4096, "Max tokens in the response (100-4096, ignored for reasoning models)")
	rootCmd.Flags().IntP("history-window", "W", 10, "Number of recent messages sent as context (1-20)")
	rootCmd.Flags().StringP("api-key", "k", "", "API key (falls back to OPENAI_API_KEY)")
	rootCmd.Flags().StringP("api-base", "b", "", "API base URL for OpenAI-compatible endpoints")
	rootCmd.Flags().BoolP("chat", "c", false, "Launch the chat TUI")
	rootCmd.Flags().Bool("chat-send", false, "Launch the chat TUI and send the first message right away")
	rootCmd.Flags().String("transcript-dir", "", "Directory for saved transcripts")
	rootCmd.Flags().BoolP("verbose", "v", false, "HTTP request/response logging")

	resumeCmd := &cobra.Command{
		Use:   "resume <transcript.json> [message]",
		Short: "Resume a saved transcript",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := transcript.Load(args[0])
			if err != nil {
				return err
			}
			resumedMessages = fromTranscript(msgs)

			if len(args) > 1 {
				cmd.Flags().Set("chat", "false")
				return runChat(cmd, args[1:])
			}
			cmd.Flags().Set("chat", "true")
			return runChat(cmd, nil)
		},
	}
	resumeCmd.Flags().AddFlagSet(rootCmd.Flags())
	rootCmd.AddCommand(resumeCmd)

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and dependencies",
		Run:   runDoctor,
	}
	rootCmd.AddCommand(doctorCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var resumedMessages []Message

// newSessionFromFlags builds the session with flag > env > config precedence
// for every setting, rejecting out-of-range values up front.
func newSessionFromFlags(cmd *cobra.Command, cfg *ConfigFile) (*ChatSession, error) {
	session := NewChatSession(countTokens)

	if err := applyConfig(cfg, session); err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("model") {
		name, _ := cmd.Flags().GetString("model")
		if err := session.SetModel(name); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("temperature") {
		t, _ := cmd.Flags().GetFloat64("temperature")
		if err := session.SetTemperature(t); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("max-tokens") {
		n, _ := cmd.Flags().GetInt("max-tokens")
		if err := session.SetMaxTokens(n); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("history-window") {
		n, _ := cmd.Flags().GetInt("history-window")
		if err := session.SetHistoryWindow(n); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("api-key") {
		key, _ := cmd.Flags().GetString("api-key")
		if err := session.SetAPIKey(key); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("api-base") {
		base, _ := cmd.Flags().GetString("api-base")
		session.APIBase = base
	}

	// Environment fills whatever is still unset.
	session.APIKey, session.APIBase = resolveAPI(session.APIKey, session.APIBase)

	return session, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	session, err := newSessionFromFlags(cmd, cfg)
	if err != nil {
		return err
	}

	if len(resumedMessages) > 0 {
		if err := session.Replace(resumedMessages); err != nil {
			return err
		}
	}

	dir := transcriptDir(cfg)
	if cmd.Flags().Changed("transcript-dir") {
		dir, _ = cmd.Flags().GetString("transcript-dir")
	}

	chat, _ := cmd.Flags().GetBool("chat")
	chatSend, _ := cmd.Flags().GetBool("chat-send")
	verbose, _ := cmd.Flags().GetBool("verbose")

	usermsg := strings.Join(args, " ")

	if len(usermsg) == 0 || chat || chatSend {
		if len(usermsg) == 0 && !chat && !chatSend && !isInteractive(os.Stdout.Fd()) {
			return fmt.Errorf("nothing to do: no prompt given and stdout is not a terminal")
		}

		p := tea.NewProgram(
			initialChatModel(session, dir, usermsg, chatSend, verbose),
			tea.WithMouseCellMotion(),
		)
		if _, err := p.Run(); err != nil {
			return err
		}
		return nil
	}

	// One-shot: stream the reply to stdout as it arrives.
	start := time.Now()
	replyTokens := 0
	err = completeTurn(context.Background(), session, usermsg, func(fragment, _ string) {
		fmt.Print(fragment)
		replyTokens += estimateTokens(fragment)
	}, verbose)
	if err != nil {
		return err
	}
	fmt.Println()

	if verbose {
		rate := 0.0
		if elapsed := time.Since(start).Seconds(); elapsed > 0 {
			rate = float64(replyTokens) / elapsed
		}
		fmt.Fprintf(os.Stderr, "messages: %d | tokens: %d | ~%.1f tok/s\n",
			len(session.Messages), session.TokenCount, rate)
	}

	return nil
}

func runDoctor(cmd *cobra.Command, args []string) {
	fmt.Println("chatterm doctor")
	fmt.Println("===============")

	if path, err := configPath(); err == nil {
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("✅ Configuration : Found (%s)\n", path)
		} else {
			fmt.Printf("⚠️  Configuration : Missing (%s)\n", path)
		}
	}

	if os.Getenv("OPENAI_API_KEY") != "" {
		fmt.Println("✅ OPENAI_API_KEY: Set")
	} else {
		fmt.Println("⚠️  OPENAI_API_KEY: Not set (check env, config or --api-key)")
	}

	for _, model := range supportedModels {
		fmt.Printf("   %-12s -> %s", model, modelEncoding(model))
		if isReasoningModel(model) {
			fmt.Print(" (non-streaming)")
		}
		fmt.Println()
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("❌ Config parse  : %v\n", err)
		return
	}
	dir := transcriptDir(cfg)
	if files, err := transcript.List(dir); err == nil {
		fmt.Printf("✅ Transcripts   : %d in %s\n", len(files), dir)
	}
}
