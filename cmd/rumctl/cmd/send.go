package cmd

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/V4T54L/rumtrack/internal/domain"
	"github.com/V4T54L/rumtrack/internal/usecase"
)

var (
	sendJSON      []string
	sendFile      string
	sendSample    bool
	sendSession   string
	sendURL       string
	sendTitle     string
	sendReferrer  string
	sendUserAgent string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send events to the log backend",
	Long: `Send transforms events into log records and delivers them in order. Events
come from --json flags or from an NDJSON file, one event per line. Failed
records are reported but not retried once the command exits.`,
	Example: `  rumctl send --json '{"type":"custom","name":"checkout"}'
  rumctl send --file events.ndjson --url https://shop.example.com/cart
  rumctl send --dry-run --file events.ndjson`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringArrayVar(&sendJSON, "json", nil, "event as JSON (repeatable)")
	sendCmd.Flags().StringVarP(&sendFile, "file", "f", "", "NDJSON file of events, - for stdin")
	sendCmd.Flags().BoolVar(&sendSample, "sample", false, "apply the configured sampling policy")
	sendCmd.Flags().StringVar(&sendSession, "session", "", "session id (default: generated)")
	addPageFlags(sendCmd, &sendURL, &sendTitle, &sendReferrer, &sendUserAgent)
}

func addPageFlags(c *cobra.Command, u, title, referrer, ua *string) {
	c.Flags().StringVar(u, "url", "", "page URL the events were captured on")
	c.Flags().StringVar(title, "title", "", "page title")
	c.Flags().StringVar(referrer, "referrer", "", "document referrer")
	c.Flags().StringVar(ua, "user-agent", "", "browser user agent")
}

func runSend(cmd *cobra.Command, args []string) error {
	events, err := collectEvents(cmd.InOrStdin(), sendJSON, sendFile)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return errors.New("no events to send: use --json or --file")
	}
	env, err := pageEnv(sendURL, sendTitle, sendReferrer, sendUserAgent)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	p := newPipeline(cmd.OutOrStdout())
	if err := p.Delivery.Init(ctx); err != nil {
		return fmt.Errorf("init delivery: %w", err)
	}
	defer p.Delivery.Destroy()
	if !p.Delivery.Stats().Initialized {
		return errors.New("delivery is disabled: set SLS_ENABLED, SLS_HOST, SLS_PROJECT and SLS_LOGSTORE, or use --dry-run")
	}

	session := sendSession
	if session == "" {
		session = p.Sessions.ID(ctx)
	}
	tc := usecase.TransformContext{Env: env, SessionID: session}

	payloads := make([]domain.LogPayload, 0, len(events))
	skipped := 0
	for _, ev := range events {
		if sendSample && !p.Sampler.ShouldReport(ev) {
			skipped++
			continue
		}
		payloads = append(payloads, usecase.ToLogPayload(ev, p.Transformer.Transform(ev, tc)))
	}

	if env != nil {
		ctx = domain.WithScope(ctx, domain.Scope{Env: env, Session: session})
	}
	failed := 0
	if err := p.Delivery.SendBatch(ctx, payloads); err != nil {
		failed = len(payloads)
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			failed = len(joined.Unwrap())
		}
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "sent %d, failed %d, sampled out %d, not retried %d\n",
		len(payloads)-failed, failed, skipped, p.Delivery.Stats().RetryQueueCount)
	if failed > 0 {
		return fmt.Errorf("%d of %d records failed", failed, len(payloads))
	}
	return nil
}

// collectEvents decodes the --json events followed by those in file.
func collectEvents(stdin io.Reader, inline []string, file string) ([]domain.Event, error) {
	var events []domain.Event
	for i, raw := range inline {
		ev, err := domain.DecodeEvent([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("--json #%d: %w", i+1, err)
		}
		events = append(events, ev)
	}
	if file == "" {
		return events, nil
	}

	r := stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	fromFile, err := readEvents(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return append(events, fromFile...), nil
}

// readEvents decodes one event per non-blank line.
func readEvents(r io.Reader) ([]domain.Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var events []domain.Event
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		ev, err := domain.DecodeEvent(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}
