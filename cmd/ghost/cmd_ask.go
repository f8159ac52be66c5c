package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ghostbot/internal/system"
	"ghostbot/internal/transport"
	"ghostbot/internal/transport/console"
	"ghostbot/internal/ux"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	askUser     int64
	askTimeout  time.Duration
	askVerbose  bool
	askPhotoDir string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Run one question through the full pipeline and print the answer",
	Long: `Sends the question through classification, research, image generation
or direct generation exactly as the bot would, rendering the streamed answer
to the terminal. Conversation memory is shared with the bot, keyed by --user.

Example:
  ghost ask --user 42 "berapa harga emas hari ini?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().Int64Var(&askUser, "user", 0, "User id whose context is used")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 5*time.Minute, "Overall timeout")
	askCmd.Flags().BoolVar(&askVerbose, "stream", false, "Print interim renders")
	askCmd.Flags().StringVar(&askPhotoDir, "photo-dir", ".", "Where generated images are written")
}

func runAsk(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateCore(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), askTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := system.Boot(ctx, cfg, system.BootOptions{})
	if err != nil {
		return fmt.Errorf("boot failed: %w", err)
	}
	defer svc.Close()

	question := strings.Join(args, " ")
	logger.Info("Asking", zap.Int64("user", askUser), zap.String("question", question))

	out := console.New(console.Options{Out: cmd.OutOrStdout(), PhotoDir: askPhotoDir, Verbose: askVerbose})
	placeholder, err := out.Send(ctx, askUser, transport.PlainText(ux.ThinkingText))
	if err != nil {
		return err
	}
	return svc.Renderer(out).Render(ctx, placeholder, svc.Executor.Respond(ctx, askUser, question))
}
