package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"tradeflow/internal/api"
	"tradeflow/internal/orchestrator"
	"tradeflow/internal/session"
	"tradeflow/internal/workflow"
)

// tradeOutput is what every trade command prints: the trade and its derived
// statuses.
type tradeOutput struct {
	Trade *workflow.Trade `json:"trade"`
	View  workflow.View   `json:"view"`
}

func (o tradeOutput) WriteText(w io.Writer) error {
	t := o.Trade
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintf(tw, "trade\t%s\t%s\n", t.ID, t.Name)
	fmt.Fprintf(tw, "buyer\t%s\t\n", t.Buyer.ID)
	fmt.Fprintf(tw, "seller\t%s\t\n", t.Seller.ID)
	fmt.Fprintf(tw, "close\t%s\t\n", o.View.CloseStatus)
	fmt.Fprintf(tw, "current stage\t%d\t\n", o.View.CurrentStageIdx)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "#\tSTAGE\tOWNER\tCLOSE\tDELETE\tDOCS")
	for i, s := range t.Stages {
		var docs []string
		if i < len(o.View.Stages) {
			for _, d := range o.View.Stages[i].Docs {
				docs = append(docs, fmt.Sprintf("%s:%s", s.Docs[d.Index].Name, d.EffectiveStatus))
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", i, s.Name, s.Owner, o.View.Stages[i].CloseStatus, o.View.Stages[i].DeleteStatus, strings.Join(docs, " "))
		}
	}
	pending := 0
	for _, r := range t.StageAddReqs {
		if r.Status == workflow.ApprovalPending {
			pending++
		}
	}
	if pending > 0 {
		fmt.Fprintf(tw, "\n%d stage request(s) pending\n", pending)
	}
	return tw.Flush()
}

type tradeList []api.TradeSummary

func (l tradeList) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tBUYER\tSELLER\tCLOSE\tUPDATED")
	for _, t := range l {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Name, t.BuyerID, t.SellerID, t.CloseStatus, t.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

// operate loads the trade fresh, resolves the caller's party on it and runs
// fn through an orchestrator signing with the local key. The resulting trade
// is printed.
func operate(ctx Context, tradeID string, fn func(context.Context, *orchestrator.Orchestrator) error) error {
	if strings.TrimSpace(tradeID) == "" {
		return errors.New("--trade required")
	}
	c, err := client(ctx)
	if err != nil {
		return err
	}
	s, err := signer(ctx)
	if err != nil {
		return err
	}
	detail, err := c.GetTrade(ctx.ctx(), strings.TrimSpace(tradeID))
	if err != nil {
		return err
	}
	me, err := c.Me(ctx.ctx())
	if err != nil {
		return err
	}
	if me.PubKey != "" && !strings.EqualFold(me.PubKey, s.Address()) {
		return fmt.Errorf("signing key %s does not match the address registered for %s", s.Address(), me.ID)
	}

	sc := session.Context{User: me, Moderator: ctx.Moderator}
	m := workflow.NewMachine(detail.Trade, sc.Party(detail.Trade))
	o := &orchestrator.Orchestrator{Machine: m, Signer: s, Remote: c, Logger: ctx.logger()}
	if err := fn(ctx.ctx(), o); err != nil {
		return err
	}
	return ctx.write(tradeOutput{Trade: m.Trade(), View: m.View()})
}

func tradeCmd(ctx Context, args []string) error {
	if len(args) == 0 {
		return errors.New("trade subcommand required: list|show|create|txlogs|close|approve-close|reject-close")
	}
	switch args[0] {
	case "list":
		fs := newFlagSet("trade list")
		open := fs.Bool("open", false, "only trades not yet closed")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		items, err := c.ListTrades(ctx.ctx(), *open)
		if err != nil {
			return err
		}
		return ctx.write(tradeList(items))

	case "show":
		fs := newFlagSet("trade show")
		id := fs.String("trade", "", "trade id")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if strings.TrimSpace(*id) == "" {
			return errors.New("--trade required")
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		detail, err := c.GetTrade(ctx.ctx(), strings.TrimSpace(*id))
		if err != nil {
			return err
		}
		return ctx.write(tradeOutput{Trade: detail.Trade, View: detail.View})

	case "create":
		fs := newFlagSet("trade create")
		name := fs.String("name", "", "trade name")
		desc := fs.String("description", "", "description")
		buyer := fs.String("buyer", "", "buyer user id")
		seller := fs.String("seller", "", "seller user id")
		tpl := fs.String("template", "", "stage template id")
		offer := fs.String("offer", "", "offer id to trade on")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if strings.TrimSpace(*name) == "" {
			return errors.New("usage: tradectl trade create --name <name> --buyer <id> --seller <id> [--template <id>] [--offer <id>]")
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		detail, err := c.CreateTrade(ctx.ctx(), api.CreateTradeRequest{
			Name:        strings.TrimSpace(*name),
			Description: strings.TrimSpace(*desc),
			BuyerID:     strings.TrimSpace(*buyer),
			SellerID:    strings.TrimSpace(*seller),
			TemplateID:  strings.TrimSpace(*tpl),
			OfferID:     strings.TrimSpace(*offer),
		})
		if err != nil {
			return err
		}
		return ctx.write(tradeOutput{Trade: detail.Trade, View: detail.View})

	case "txlogs":
		fs := newFlagSet("trade txlogs")
		id := fs.String("trade", "", "trade id")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if strings.TrimSpace(*id) == "" {
			return errors.New("--trade required")
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		logs, err := c.TxLogs(ctx.ctx(), strings.TrimSpace(*id))
		if err != nil {
			return err
		}
		return ctx.write(logs)

	case "close":
		fs := newFlagSet("trade close")
		id := fs.String("trade", "", "trade id")
		reason := fs.String("reason", "", "request reason")
		noApproval := fs.Bool("no-approval", false, "close without asking the counterparty")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return operate(ctx, *id, func(c context.Context, o *orchestrator.Orchestrator) error {
			return o.RequestTradeClose(c, *reason, !*noApproval)
		})

	case "approve-close":
		fs := newFlagSet("trade approve-close")
		id := fs.String("trade", "", "trade id")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return operate(ctx, *id, func(c context.Context, o *orchestrator.Orchestrator) error {
			return o.ApproveTradeClose(c)
		})

	case "reject-close":
		fs := newFlagSet("trade reject-close")
		id := fs.String("trade", "", "trade id")
		reason := fs.String("reason", "", "reject reason")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return operate(ctx, *id, func(c context.Context, o *orchestrator.Orchestrator) error {
			return o.RejectTradeClose(c, *reason)
		})

	default:
		return fmt.Errorf("unknown trade subcommand: %s", args[0])
	}
}
