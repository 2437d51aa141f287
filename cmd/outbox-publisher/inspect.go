package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
)

type deadLetterLister interface {
	Recent(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
}

// printDeadLetters writes the newest dead letters as a table for operators
// deciding what to replay.
func printDeadLetters(ctx context.Context, out io.Writer, src deadLetterLister, limit int) error {
	rows, err := src.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("list dead letters: %w", err)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(out, "no dead letters")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FAILED AT\tEVENT\tTYPE\tAGGREGATE\tREASON\tATTEMPTS\tERROR")
	for _, row := range rows {
		msg := ""
		if row.ErrorMessage != nil {
			msg = *row.ErrorMessage
			if len(msg) > 60 {
				msg = msg[:57] + "..."
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s:%s\t%s\t%d\t%s\n",
			row.FailedAt.UTC().Format(time.RFC3339),
			row.EventID,
			row.EventType,
			row.AggregateType, row.AggregateID,
			row.ErrorReason,
			row.AttemptCount,
			msg,
		)
	}
	return tw.Flush()
}
