package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/khushnawaj/scriptSelf-sub001/internal/client"
	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
	"github.com/khushnawaj/scriptSelf-sub001/internal/protocol"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print incoming events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, conn, err := connect(ctx)
		if err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			_ = conn.Close()
		}()

		err = s.Run(ctx, func(env protocol.Envelope) { printEvent(cmd, env) })
		switch {
		case errors.Is(err, client.ErrConnectivity):
			return fmt.Errorf("gave up reconnecting: %w", err)
		case errors.Is(err, context.Canceled):
			return nil
		}
		return err
	},
}

func printEvent(cmd *cobra.Command, env protocol.Envelope) {
	out := cmd.OutOrStdout()
	switch env.Event {
	case protocol.EventPrivateMessage, protocol.EventMessage, protocol.EventMessageUpdated:
		var m domain.Message
		if env.Decode(&m) != nil {
			return
		}
		to := m.Recipient
		if to == "" {
			to = "everyone"
		}
		body := m.Content
		if m.Attachment != nil {
			body += fmt.Sprintf(" [%s %s]", m.Attachment.Kind, m.Attachment.URL)
		}
		fmt.Fprintf(out, "%s %s -> %s: %s (%s)\n", m.CreatedAt.Local().Format("15:04:05"), m.Sender, to, body, m.ID.Hex())
	case protocol.EventStatusUpdate:
		var p protocol.StatusUpdate
		if env.Decode(&p) == nil {
			fmt.Fprintf(out, "  %s is %s\n", p.MessageID, p.Status)
		}
	case protocol.EventMessagesRead:
		var p protocol.MessagesRead
		if env.Decode(&p) == nil {
			fmt.Fprintf(out, "  %s read your messages\n", p.RecipientID)
		}
	case protocol.EventNotification:
		var n domain.Notification
		if env.Decode(&n) == nil {
			fmt.Fprintf(out, "! %s: %s\n", n.Type, n.Message)
		}
	case protocol.EventMessageError:
		var p protocol.MessageError
		if env.Decode(&p) == nil {
			fmt.Fprintf(out, "x %s (%s)\n", p.Error, p.Code)
		}
	}
}
