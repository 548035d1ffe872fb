package main

import (
	"os"

	"github.com/spf13/cobra"

	"meetcap/internal/bootstrap"
	"meetcap/internal/output"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show the server-side processing status of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := bootstrap.BuildBackend(opts.cfg, opts.logger)
			meeting, err := client.SessionStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			link := ""
			if meeting.DriveFileURL != nil {
				link = *meeting.DriveFileURL
			}
			output.NewFormatter(os.Stdout).SessionStatus(meeting.ID.String(), meeting.Title, meeting.Status, link)
			return nil
		},
	}
}
