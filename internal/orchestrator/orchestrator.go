package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tradeflow/internal/ledger"
	"tradeflow/internal/workflow"
)

// Remote is the persistence collaborator. Submit must return only after the
// mutation has been durably accepted.
type Remote interface {
	Submit(ctx context.Context, mu workflow.Mutation) (workflow.Receipt, error)
}

const (
	StepSign   = "sign"
	StepSubmit = "submit"
)

// RemoteError is a signing or persistence failure. Local state is untouched
// when it is returned.
type RemoteError struct {
	Step string
	Err  error
}

func (e *RemoteError) Error() string { return e.Step + " failed: " + e.Err.Error() }

func (e *RemoteError) Unwrap() error { return e.Err }

func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// Orchestrator runs every operation as check, sign, submit, apply. The local
// machine is only mutated after the remote round trip succeeded.
type Orchestrator struct {
	Machine *workflow.Machine
	Signer  ledger.Signer
	Remote  Remote
	Logger  *zap.Logger
}

func (o *Orchestrator) Run(ctx context.Context, mu workflow.Mutation) (workflow.Receipt, error) {
	if o == nil || o.Machine == nil {
		return workflow.Receipt{}, errors.New("orchestrator is not initialized")
	}
	if mu.Op.IsReject() {
		if err := workflow.ValidateReason(mu.Reason); err != nil {
			return workflow.Receipt{}, &workflow.OpError{Op: mu.Op, Path: mu.Path, Err: err}
		}
	}
	if mu.Op == workflow.OpAddDocument && mu.Document != nil && mu.Document.ID == "" {
		doc := *mu.Document
		doc.ID = uuid.NewString()
		mu.Document = &doc
	}
	if err := o.Machine.Check(mu); err != nil {
		return workflow.Receipt{}, err
	}
	desc, err := ledger.Describe(o.Machine.Trade(), mu)
	if err != nil {
		return workflow.Receipt{}, &workflow.OpError{Op: mu.Op, Path: mu.Path, Err: err}
	}

	start := time.Now()
	o.debug("operation started", mu)

	// the round trip is not cancellable once signing has begun
	rtCtx := context.WithoutCancel(ctx)
	token, err := o.Signer.Sign(rtCtx, desc)
	if err != nil {
		return workflow.Receipt{}, o.fail(mu, StepSign, err)
	}
	mu.Token = token
	receipt, err := o.Remote.Submit(rtCtx, mu)
	if err != nil {
		return workflow.Receipt{}, o.fail(mu, StepSubmit, err)
	}
	if err := o.Machine.Apply(mu, receipt); err != nil {
		if o.Logger != nil {
			o.Logger.Error("confirmed operation could not be applied locally",
				zap.String("op", string(mu.Op)),
				zap.String("path", mu.Path.String()),
				zap.Error(err),
			)
		}
		return receipt, err
	}
	if o.Logger != nil {
		o.Logger.Debug("operation applied",
			zap.String("op", string(mu.Op)),
			zap.String("path", mu.Path.String()),
			zap.String("tx", receipt.Tx),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return receipt, nil
}

func (o *Orchestrator) debug(msg string, mu workflow.Mutation) {
	if o.Logger == nil {
		return
	}
	o.Logger.Debug(msg, zap.String("op", string(mu.Op)), zap.String("path", mu.Path.String()))
}

func (o *Orchestrator) fail(mu workflow.Mutation, step string, err error) error {
	if o.Logger != nil {
		o.Logger.Warn("operation failed",
			zap.String("op", string(mu.Op)),
			zap.String("path", mu.Path.String()),
			zap.String("step", step),
			zap.Error(err),
		)
	}
	return &workflow.OpError{Op: mu.Op, Path: mu.Path, Err: &RemoteError{Step: step, Err: err}}
}

func (o *Orchestrator) tradeID() string {
	return o.Machine.Trade().ID
}

func (o *Orchestrator) AddStage(ctx context.Context, name, description string, owner workflow.Actor, reason string, withApproval bool) error {
	_, err := o.Run(ctx, workflow.AddStage(o.tradeID(), name, description, owner, reason, withApproval))
	return err
}

func (o *Orchestrator) ApproveStageAdd(ctx context.Context, reqIdx int) error {
	_, err := o.Run(ctx, workflow.ApproveStageAdd(o.tradeID(), reqIdx))
	return err
}

func (o *Orchestrator) RejectStageAdd(ctx context.Context, reqIdx int, reason string) error {
	_, err := o.Run(ctx, workflow.RejectStageAdd(o.tradeID(), reqIdx, reason))
	return err
}

func (o *Orchestrator) AddDocument(ctx context.Context, stage int, doc workflow.DocumentInput, withApproval bool) error {
	_, err := o.Run(ctx, workflow.AddDocument(o.tradeID(), stage, doc, withApproval))
	return err
}

// ApproveDocument addresses the document by index and the content hash seen
// locally; the remote side rejects a stale hash.
func (o *Orchestrator) ApproveDocument(ctx context.Context, stage, doc int) error {
	_, err := o.Run(ctx, workflow.ApproveDocument(o.tradeID(), stage, doc, o.docHash(stage, doc)))
	return err
}

func (o *Orchestrator) RejectDocument(ctx context.Context, stage, doc int, reason string) error {
	_, err := o.Run(ctx, workflow.RejectDocument(o.tradeID(), stage, doc, o.docHash(stage, doc), reason))
	return err
}

func (o *Orchestrator) docHash(stage, doc int) string {
	t := o.Machine.Trade()
	if stage < 0 || stage >= len(t.Stages) || doc < 0 || doc >= len(t.Stages[stage].Docs) {
		return ""
	}
	return t.Stages[stage].Docs[doc].Hash
}

func (o *Orchestrator) RequestStageClose(ctx context.Context, stage int, reason string, withApproval bool) error {
	_, err := o.Run(ctx, workflow.RequestStageClose(o.tradeID(), stage, reason, withApproval))
	return err
}

func (o *Orchestrator) ApproveStageClose(ctx context.Context, stage int) error {
	_, err := o.Run(ctx, workflow.ApproveStageClose(o.tradeID(), stage))
	return err
}

func (o *Orchestrator) RejectStageClose(ctx context.Context, stage int, reason string) error {
	_, err := o.Run(ctx, workflow.RejectStageClose(o.tradeID(), stage, reason))
	return err
}

func (o *Orchestrator) RequestStageDelete(ctx context.Context, stage int, reason string) error {
	_, err := o.Run(ctx, workflow.RequestStageDelete(o.tradeID(), stage, reason))
	return err
}

func (o *Orchestrator) ApproveStageDelete(ctx context.Context, stage int) error {
	_, err := o.Run(ctx, workflow.ApproveStageDelete(o.tradeID(), stage))
	return err
}

func (o *Orchestrator) RejectStageDelete(ctx context.Context, stage int, reason string) error {
	_, err := o.Run(ctx, workflow.RejectStageDelete(o.tradeID(), stage, reason))
	return err
}

func (o *Orchestrator) SetStageExpiry(ctx context.Context, stage int, at time.Time) error {
	_, err := o.Run(ctx, workflow.SetStageExpiry(o.tradeID(), stage, at))
	return err
}

func (o *Orchestrator) RequestTradeClose(ctx context.Context, reason string, withApproval bool) error {
	_, err := o.Run(ctx, workflow.RequestTradeClose(o.tradeID(), reason, withApproval))
	return err
}

func (o *Orchestrator) ApproveTradeClose(ctx context.Context) error {
	_, err := o.Run(ctx, workflow.ApproveTradeClose(o.tradeID()))
	return err
}

func (o *Orchestrator) RejectTradeClose(ctx context.Context, reason string) error {
	_, err := o.Run(ctx, workflow.RejectTradeClose(o.tradeID(), reason))
	return err
}
