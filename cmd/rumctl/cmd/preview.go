package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/V4T54L/rumtrack/internal/domain"
	"github.com/V4T54L/rumtrack/internal/usecase"
)

var (
	previewURL       string
	previewTitle     string
	previewReferrer  string
	previewUserAgent string
)

var previewCmd = &cobra.Command{
	Use:   "preview [event-json]",
	Short: "Show how an event is transformed",
	Long: `Preview prints the envelope, the delivery payload and the filtered log record
built from one event, without sending anything. The event is read from the
argument or from stdin.`,
	Example: `  rumctl preview '{"type":"error","message":"boom","api_token":"secret"}'
  echo '{"type":"click","bizId":"checkout"}' | rumctl preview --url https://shop.example.com/cart`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)
	addPageFlags(previewCmd, &previewURL, &previewTitle, &previewReferrer, &previewUserAgent)
}

type previewOutput struct {
	Envelope domain.Envelope   `json:"envelope"`
	Payload  domain.LogPayload `json:"payload"`
	Record   domain.LogRecord  `json:"record,omitempty"`
	Dropped  bool              `json:"dropped,omitempty"`
}

func runPreview(cmd *cobra.Command, args []string) error {
	var raw []byte
	if len(args) == 1 {
		raw = []byte(args[0])
	} else {
		var err error
		if raw, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return err
		}
	}
	if len(raw) == 0 {
		return errors.New("no event given")
	}
	ev, err := domain.DecodeEvent(raw)
	if err != nil {
		return err
	}
	env, err := pageEnv(previewURL, previewTitle, previewReferrer, previewUserAgent)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	p := newPipeline(io.Discard)
	session := p.Sessions.ID(ctx)
	envelope := p.Transformer.Transform(ev, usecase.TransformContext{Env: env, SessionID: session})
	payload := usecase.ToLogPayload(ev, envelope)

	if env != nil {
		ctx = domain.WithScope(ctx, domain.Scope{Env: env, Session: session})
	}
	out := previewOutput{Envelope: envelope, Payload: payload}
	record, ok := p.Delivery.HandleBeforeSend(p.Delivery.TransformLogData(ctx, payload))
	if ok {
		out.Record = record
	} else {
		out.Dropped = true
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
