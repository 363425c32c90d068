package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/khushnawaj/scriptSelf-sub001/internal/client"
	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
	"github.com/khushnawaj/scriptSelf-sub001/internal/protocol"
)

var (
	sendTo      string
	sendFile    string
	sendTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send [text...]",
	Short: "Send one message and wait for the server to confirm it",
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		var att *domain.Attachment
		if sendFile != "" {
			att = &domain.Attachment{URL: sendFile, Name: sendFile[strings.LastIndex(sendFile, "/")+1:], Kind: domain.AttachmentFile}
		}
		if text == "" && att == nil {
			return fmt.Errorf("nothing to send")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
		defer cancel()
		s, conn, err := connect(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		frames := make(chan protocol.Envelope, 16)
		go func() {
			_ = s.Run(ctx, func(env protocol.Envelope) {
				select {
				case frames <- env:
				case <-ctx.Done():
				}
			})
		}()

		token, err := s.Send(text, sendTo, att)
		if err != nil {
			return err
		}
		for {
			select {
			case <-frames:
				e, done := s.Timeline().Lookup(token)
				if !done {
					continue
				}
				if e.State == client.StateFailed {
					return fmt.Errorf("server rejected message %s", token)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent %s (%s)\n", e.Message.ID.Hex(), e.Message.Status)
				return nil
			case <-ctx.Done():
				return fmt.Errorf("no confirmation within %s", sendTimeout)
			}
		}
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "recipient id (empty sends to the global room)")
	sendCmd.Flags().StringVar(&sendFile, "attach", "", "attachment URL returned by POST /v1/attachments")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 10*time.Second, "how long to wait for confirmation")
}
