package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"tradeflow/internal/api"
	"tradeflow/internal/workflow"
)

type offerList []api.Offer

func (l offerList) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSIDE\tCOMMODITY\tQTY\tPRICE\tTOTAL\tBY")
	for _, o := range l {
		side := "buy"
		if o.IsSell {
			side = "sell"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s\t%s %s\t%s\n",
			o.ID, side, o.Commodity, o.Quantity.String(), o.Unit, o.Price.String(), o.Total.String(), o.Currency, o.CreatedBy)
	}
	return tw.Flush()
}

// stageFlags collects repeated --stage name[:owner[:description]] values.
type stageFlags []workflow.StageTemplate

func (s *stageFlags) String() string {
	names := make([]string, 0, len(*s))
	for _, st := range *s {
		names = append(names, st.Name)
	}
	return strings.Join(names, ",")
}

func (s *stageFlags) Set(v string) error {
	parts := strings.SplitN(v, ":", 3)
	st := workflow.StageTemplate{Name: strings.TrimSpace(parts[0]), Owner: workflow.ActorNone}
	if st.Name == "" {
		return errors.New("stage name is empty")
	}
	if len(parts) > 1 {
		owner, ok := workflow.ParseActor(strings.TrimSpace(parts[1]))
		if !ok {
			return fmt.Errorf("invalid stage owner %q", parts[1])
		}
		st.Owner = owner
	}
	if len(parts) > 2 {
		st.Description = strings.TrimSpace(parts[2])
	}
	*s = append(*s, st)
	return nil
}

func offerCmd(ctx Context, args []string) error {
	if len(args) == 0 {
		return errors.New("offer subcommand required: list|create|close")
	}
	switch args[0] {
	case "list":
		fs := newFlagSet("offer list")
		commodity := fs.String("commodity", "", "commodity filter")
		mine := fs.Bool("mine", false, "only my offers")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		items, err := c.ListOffers(ctx.ctx(), strings.TrimSpace(*commodity), *mine)
		if err != nil {
			return err
		}
		return ctx.write(offerList(items))

	case "create":
		fs := newFlagSet("offer create")
		commodity := fs.String("commodity", "", "commodity")
		desc := fs.String("description", "", "description")
		sell := fs.Bool("sell", false, "sell offer (default buy)")
		price := fs.String("price", "", "unit price")
		qty := fs.String("quantity", "", "quantity")
		unit := fs.String("unit", "", "unit of quantity")
		currency := fs.String("currency", "", "price currency")
		tpl := fs.String("template", "", "stage template for trades on this offer")
		expires := fs.String("expires", "", "RFC3339 or a duration from now")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if strings.TrimSpace(*commodity) == "" || strings.TrimSpace(*price) == "" || strings.TrimSpace(*qty) == "" {
			return errors.New("usage: tradectl offer create --commodity <c> --price <p> --quantity <q> [--sell]")
		}
		req := api.CreateOfferRequest{
			Commodity:   strings.TrimSpace(*commodity),
			Description: strings.TrimSpace(*desc),
			IsSell:      *sell,
			Price:       strings.TrimSpace(*price),
			Quantity:    strings.TrimSpace(*qty),
			Unit:        strings.TrimSpace(*unit),
			Currency:    strings.TrimSpace(*currency),
			TemplateID:  strings.TrimSpace(*tpl),
		}
		exp, err := parseWhen(*expires, time.Now())
		if err != nil {
			return err
		}
		if !exp.IsZero() {
			req.ExpiresAt = &exp
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		o, err := c.CreateOffer(ctx.ctx(), req)
		if err != nil {
			return err
		}
		return ctx.write(o)

	case "close":
		fs := newFlagSet("offer close")
		id := fs.String("id", "", "offer id")
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
		o, err := c.CloseOffer(ctx.ctx(), strings.TrimSpace(*id))
		if err != nil {
			return err
		}
		return ctx.write(o)

	default:
		return fmt.Errorf("unknown offer subcommand: %s", args[0])
	}
}

func templateCmd(ctx Context, args []string) error {
	if len(args) == 0 {
		return errors.New("template subcommand required: list|create")
	}
	switch args[0] {
	case "list":
		c, err := client(ctx)
		if err != nil {
			return err
		}
		items, err := c.ListTemplates(ctx.ctx())
		if err != nil {
			return err
		}
		return ctx.write(items)

	case "create":
		fs := newFlagSet("template create")
		name := fs.String("name", "", "template name")
		desc := fs.String("description", "", "description")
		var stages stageFlags
		fs.Var(&stages, "stage", "stage as name[:owner[:description]], repeatable")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if strings.TrimSpace(*name) == "" || len(stages) == 0 {
			return errors.New("usage: tradectl template create --name <name> --stage <name[:owner]> [--stage ...]")
		}
		c, err := client(ctx)
		if err != nil {
			return err
		}
		tpl, err := c.CreateTemplate(ctx.ctx(), api.CreateTemplateRequest{
			Name:        strings.TrimSpace(*name),
			Description: strings.TrimSpace(*desc),
			Stages:      stages,
		})
		if err != nil {
			return err
		}
		return ctx.write(tpl)

	default:
		return fmt.Errorf("unknown template subcommand: %s", args[0])
	}
}
