package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"tradeflow/internal/orchestrator"
	"tradeflow/internal/workflow"
)

// parseWhen accepts an RFC3339 timestamp or a duration from now.
func parseWhen(v string, now time.Time) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (want RFC3339 or a duration like 72h)", v)
	}
	return now.Add(d).UTC(), nil
}

// fileHash is the content hash a document is registered under.
func fileHash(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return crypto.Keccak256Hash(b).Hex(), nil
}

func stageCmd(ctx Context, args []string) error {
	if len(args) == 0 {
		return errors.New("stage subcommand required: add|approve-add|reject-add|close|approve-close|reject-close|delete|approve-delete|reject-delete|expiry")
	}
	sub := args[0]
	fs := newFlagSet("stage " + sub)
	tradeID := fs.String("trade", "", "trade id")

	switch sub {
	case "add":
		name := fs.String("name", "", "stage name")
		desc := fs.String("description", "", "description")
		owner := fs.String("owner", "n", "stage owner: buyer|seller|none")
		reason := fs.String("reason", "", "request reason")
		noApproval := fs.Bool("no-approval", false, "add without asking the counterparty")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		actor, ok := workflow.ParseActor(strings.TrimSpace(*owner))
		if !ok {
			return fmt.Errorf("invalid --owner %q", *owner)
		}
		if strings.TrimSpace(*name) == "" {
			return errors.New("--name required")
		}
		return operate(ctx, *tradeID, func(c context.Context, o *orchestrator.Orchestrator) error {
			return o.AddStage(c, strings.TrimSpace(*name), strings.TrimSpace(*desc), actor, *reason, !*noApproval)
		})

	case "approve-add", "reject-add":
		req := fs.Int("req", -1, "stage request index")
		reason := fs.String("reason", "", "reject reason")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return operate(ctx, *tradeID, func(c context.Context, o *orchestrator.Orchestrator) error {
			if sub == "approve-add" {
				return o.ApproveStageAdd(c, *req)
			}
			return o.RejectStageAdd(c, *req, *reason)
		})

	case "close", "approve-close", "reject-close", "delete", "approve-delete", "reject-delete":
		stage := fs.Int("stage", -1, "stage index")
		reason := fs.String("reason", "", "request or reject reason")
		noApproval := fs.Bool("no-approval", false, "close without asking the counterparty")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return operate(ctx, *tradeID, func(c context.Context, o *orchestrator.Orchestrator) error {
			switch sub {
			case "close":
				return o.RequestStageClose(c, *stage, *reason, !*noApproval)
			case "approve-close":
				return o.ApproveStageClose(c, *stage)
			case "reject-close":
				return o.RejectStageClose(c, *stage, *reason)
			case "delete":
				return o.RequestStageDelete(c, *stage, *reason)
			case "approve-delete":
				return o.ApproveStageDelete(c, *stage)
			default:
				return o.RejectStageDelete(c, *stage, *reason)
			}
		})

	case "expiry":
		stage := fs.Int("stage", -1, "stage index")
		at := fs.String("at", "", "expiry: RFC3339 or a duration from now")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		when, err := parseWhen(*at, time.Now())
		if err != nil {
			return err
		}
		if when.IsZero() {
			return errors.New("--at required")
		}
		return operate(ctx, *tradeID, func(c context.Context, o *orchestrator.Orchestrator) error {
			return o.SetStageExpiry(c, *stage, when)
		})

	default:
		return fmt.Errorf("unknown stage subcommand: %s", sub)
	}
}

func docCmd(ctx Context, args []string) error {
	if len(args) == 0 {
		return errors.New("doc subcommand required: add|approve|reject")
	}
	sub := args[0]
	fs := newFlagSet("doc " + sub)
	tradeID := fs.String("trade", "", "trade id")
	stage := fs.Int("stage", -1, "stage index")

	switch sub {
	case "add":
		name := fs.String("name", "", "document name (default: file name)")
		file := fs.String("file", "", "file to hash")
		hash := fs.String("hash", "", "content hash, instead of --file")
		note := fs.String("note", "", "note")
		expires := fs.String("expires", "", "approval deadline: RFC3339 or a duration from now")
		noApproval := fs.Bool("no-approval", false, "submit without asking the counterparty")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		doc := workflow.DocumentInput{
			Name: strings.TrimSpace(*name),
			Hash: strings.TrimSpace(*hash),
			Note: strings.TrimSpace(*note),
		}
		if f := strings.TrimSpace(*file); f != "" {
			h, err := fileHash(f)
			if err != nil {
				return err
			}
			doc.Hash = h
			if doc.Name == "" {
				doc.Name = f[strings.LastIndexAny(f, `/\`)+1:]
			}
		}
		if doc.Hash == "" || doc.Name == "" {
			return errors.New("usage: tradectl doc add --trade <id> --stage <n> --file <path> | --name <name> --hash <hash>")
		}
		exp, err := parseWhen(*expires, time.Now())
		if err != nil {
			return err
		}
		doc.ExpiresAt = exp
		return operate(ctx, *tradeID, func(c context.Context, o *orchestrator.Orchestrator) error {
			return o.AddDocument(c, *stage, doc, !*noApproval)
		})

	case "approve", "reject":
		idx := fs.Int("doc", -1, "document index")
		reason := fs.String("reason", "", "reject reason")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return operate(ctx, *tradeID, func(c context.Context, o *orchestrator.Orchestrator) error {
			if sub == "approve" {
				return o.ApproveDocument(c, *stage, *idx)
			}
			return o.RejectDocument(c, *stage, *idx, *reason)
		})

	default:
		return fmt.Errorf("unknown doc subcommand: %s", sub)
	}
}
