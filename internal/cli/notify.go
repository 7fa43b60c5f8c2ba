package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"tradeflow/internal/api"
	"tradeflow/internal/events"
)

type notificationList []api.Notification

func (l notificationList) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTRADE\tAT\tMESSAGE")
	for _, n := range l {
		msg := n.Message
		if n.Dismissed {
			msg = "(dismissed) " + msg
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.ID, n.TradeID, n.CreatedAt.UTC().Format(time.RFC3339), msg)
	}
	return tw.Flush()
}

func notifyCmd(ctx Context, args []string) error {
	if len(args) == 0 {
		return errors.New("notify subcommand required: list|dismiss")
	}
	switch args[0] {
	case "list":
		fs := newFlagSet("notify list")
		tradeID := fs.String("trade", "", "trade filter")
		all := fs.Bool("all", false, "include dismissed")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		items, err := c.ListNotifications(ctx.ctx(), strings.TrimSpace(*tradeID), *all)
		if err != nil {
			return err
		}
		return ctx.write(notificationList(items))

	case "dismiss":
		fs := newFlagSet("notify dismiss")
		id := fs.String("id", "", "notification id")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if strings.TrimSpace(*id) == "" {
			return errors.New("--id required")
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		if err := c.DismissNotification(ctx.ctx(), strings.TrimSpace(*id)); err != nil {
			return err
		}
		return ctx.write(map[string]any{"id": strings.TrimSpace(*id), "dismissed": true})

	default:
		return fmt.Errorf("unknown notify subcommand: %s", args[0])
	}
}

func watchCmd(ctx Context, args []string) error {
	fs := newFlagSet("watch")
	tradeID := fs.String("trade", "", "trade id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*tradeID) == "" {
		return errors.New("--trade required")
	}
	c, err := client(ctx)
	if err != nil {
		return err
	}
	var writeErr error
	err = c.Watch(ctx.ctx(), strings.TrimSpace(*tradeID), func(ev events.Event) {
		if writeErr == nil {
			writeErr = ctx.write(ev)
		}
	})
	if err != nil {
		return err
	}
	return writeErr
}
