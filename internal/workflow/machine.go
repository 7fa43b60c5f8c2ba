package workflow

import (
	"strings"
	"time"
)

// Change is reported to OnChange after a mutation has been applied.
type Change struct {
	Op   Op        `json:"op"`
	Path Path      `json:"path"`
	At   time.Time `json:"at"`
}

// Machine owns one trade aggregate and applies operations on behalf of one
// party. It is not safe for concurrent use.
type Machine struct {
	trade *Trade
	party Party

	Now      func() time.Time
	OnChange func(Change)
}

// NewMachine takes a private copy of t.
func NewMachine(t *Trade, p Party) *Machine {
	tc := t.Clone()
	if tc == nil {
		tc = &Trade{}
	}
	Refresh(tc)
	return &Machine{trade: tc, party: p}
}

func (m *Machine) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

// Trade returns a copy of the current aggregate.
func (m *Machine) Trade() *Trade { return m.trade.Clone() }

func (m *Machine) Party() Party { return m.party }

func (m *Machine) View() View { return Derive(m.trade, m.now()) }

func (m *Machine) DocumentStatus(stage, doc int) (Approval, error) {
	d, err := m.doc(stage, doc)
	if err != nil {
		return "", err
	}
	return DocumentStatus(*d, m.now()), nil
}

func (m *Machine) StageDeleteStatus(stage int) (ReqStatus, error) {
	s, err := m.stage(stage)
	if err != nil {
		return "", err
	}
	return StageDeleteStatus(*s), nil
}

func (m *Machine) StageCloseStatus(stage int) (ReqStatus, error) {
	s, err := m.stage(stage)
	if err != nil {
		return "", err
	}
	return StageCloseStatus(*s), nil
}

func (m *Machine) HasPendingNotification(stage int) (bool, error) {
	s, err := m.stage(stage)
	if err != nil {
		return false, err
	}
	return HasPendingNotification(*s, m.now()), nil
}

func (m *Machine) TradeCloseStatus() ReqStatus { return TradeCloseStatus(m.trade) }

func (m *Machine) CurrentStageIndex() int { return CurrentStageIndex(m.trade) }

// Check validates mu against the current state without mutating anything.
func (m *Machine) Check(mu Mutation) error {
	return opErr(mu.Op, mu.Path, m.step(mu, nil))
}

// Apply re-validates mu and, when legal, mutates the aggregate using the
// confirmation in r. Derived fields are refreshed before returning.
func (m *Machine) Apply(mu Mutation, r Receipt) error {
	if r.At.IsZero() {
		r.At = m.now()
	}
	r.At = r.At.UTC()
	if err := m.step(mu, &r); err != nil {
		return opErr(mu.Op, mu.Path, err)
	}
	Refresh(m.trade)
	if m.OnChange != nil {
		m.OnChange(Change{Op: mu.Op, Path: mu.Path, At: r.At})
	}
	return nil
}

func (m *Machine) step(mu Mutation, r *Receipt) error {
	if !m.party.Authorized() {
		return ErrUnauthorized
	}
	if mu.Path.TradeID != "" && mu.Path.TradeID != m.trade.ID {
		return ErrInvalidTrade
	}
	if TradeCloseStatus(m.trade) == ReqApproved {
		return ErrTradeClosed
	}
	switch mu.Op {
	case OpAddStage:
		return m.addStage(mu, r)
	case OpApproveStageAdd, OpRejectStageAdd:
		return m.resolveStageAdd(mu, r)
	case OpAddDocument:
		return m.addDocument(mu, r)
	case OpApproveDocument, OpRejectDocument:
		return m.resolveDocument(mu, r)
	case OpRequestStageClose:
		return m.requestStageClose(mu, r)
	case OpApproveStageClose, OpRejectStageClose:
		return m.resolveStageClose(mu, r)
	case OpRequestStageDelete:
		return m.requestStageDelete(mu, r)
	case OpApproveStageDelete, OpRejectStageDelete:
		return m.resolveStageDelete(mu, r)
	case OpSetStageExpiry:
		return m.setStageExpiry(mu, r)
	case OpRequestTradeClose:
		return m.requestTradeClose(mu, r)
	case OpApproveTradeClose, OpRejectTradeClose:
		return m.resolveTradeClose(mu, r)
	}
	return ErrUnknownOperation
}

// at is the instant time-dependent preconditions are judged against: the
// confirmed time when applying, the local clock when only checking.
func (m *Machine) at(r *Receipt) time.Time {
	if r != nil {
		return r.At
	}
	return m.now()
}

func (m *Machine) stage(i int) (*Stage, error) {
	if i < 0 || i >= len(m.trade.Stages) {
		return nil, ErrStageNotFound
	}
	return &m.trade.Stages[i], nil
}

func (m *Machine) doc(stage, doc int) (*Document, error) {
	s, err := m.stage(stage)
	if err != nil {
		return nil, err
	}
	if doc < 0 || doc >= len(s.Docs) {
		return nil, ErrDocNotFound
	}
	return &s.Docs[doc], nil
}

func (m *Machine) newRequest(reason string, withApproval bool, r *Receipt) ApproveReq {
	req := ApproveReq{
		Status:    ApprovalPending,
		ReqBy:     m.party.User.ID,
		ReqActor:  m.party.ReqActor(),
		ReqAt:     r.At,
		ReqReason: reason,
		ReqTx:     r.Tx,
	}
	if !withApproval {
		req.Status = ApprovalApproved
		req.ApprovedBy = m.party.User.ID
		req.ApprovedAt = r.At
		req.ApprovedTx = r.Tx
	}
	return req
}

// checkResolve validates an approve/reject of req.
func (m *Machine) checkResolve(req *ApproveReq, reject bool, reason string) error {
	if req.ReqBy == m.party.User.ID {
		return ErrSelfApproval
	}
	if reject && strings.TrimSpace(reason) == "" {
		return ErrEmptyReason
	}
	return nil
}

func (m *Machine) resolve(req *ApproveReq, reject bool, reason string, r *Receipt) {
	req.ApprovedBy = m.party.User.ID
	req.ApprovedAt = r.At
	req.ApprovedTx = r.Tx
	if reject {
		req.Status = ApprovalRejected
		req.RejectReason = reason
		return
	}
	req.Status = ApprovalApproved
}

func (m *Machine) addStage(mu Mutation, r *Receipt) error {
	if st := TradeCloseStatus(m.trade); st == ReqPending || st == ReqApproved {
		return ErrTradeClosing
	}
	if strings.TrimSpace(mu.Name) == "" {
		return ErrEmptyName
	}
	owner := mu.Owner
	if owner == "" {
		owner = ActorNone
	}
	if owner != ActorBuyer && owner != ActorSeller && owner != ActorNone {
		return ErrInvalidOwner
	}
	if r == nil {
		return nil
	}
	sr := StageAddReq{
		Name:        mu.Name,
		Description: mu.Description,
		Owner:       owner,
		ApproveReq:  m.newRequest(mu.Reason, mu.WithApproval, r),
	}
	m.trade.StageAddReqs = append(m.trade.StageAddReqs, sr)
	if !mu.WithApproval {
		m.materializeStage(len(m.trade.StageAddReqs) - 1)
	}
	return nil
}

func (m *Machine) materializeStage(reqIdx int) {
	sr := m.trade.StageAddReqs[reqIdx]
	m.trade.Stages = append(m.trade.Stages, NewStage(sr.Name, sr.Description, sr.Owner, reqIdx))
}

func (m *Machine) resolveStageAdd(mu Mutation, r *Receipt) error {
	idx := mu.Path.Stage
	if idx < 0 || idx >= len(m.trade.StageAddReqs) {
		return ErrAddReqNotFound
	}
	sr := &m.trade.StageAddReqs[idx]
	if sr.Status != ApprovalPending {
		return ErrNotPending
	}
	reject := mu.Op == OpRejectStageAdd
	if err := m.checkResolve(&sr.ApproveReq, reject, mu.Reason); err != nil {
		return err
	}
	if r == nil {
		return nil
	}
	m.resolve(&sr.ApproveReq, reject, mu.Reason, r)
	if !reject {
		m.materializeStage(idx)
	}
	return nil
}

func (m *Machine) addDocument(mu Mutation, r *Receipt) error {
	s, err := m.stage(mu.Path.Stage)
	if err != nil {
		return err
	}
	if StageFinished(*s) {
		return ErrStageFinished
	}
	if !m.party.Moderator && s.Owner != ActorNone && s.Owner != m.party.Actor {
		return ErrNotOwner
	}
	in := mu.Document
	if in == nil || strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Hash) == "" {
		return ErrInvalidDocument
	}
	if !in.ExpiresAt.IsZero() && in.ExpiresAt.Before(m.at(r)) {
		return ErrExpiryInPast
	}
	if r == nil {
		return nil
	}
	doc := Document{
		ID:        in.ID,
		Index:     len(s.Docs),
		Name:      in.Name,
		Hash:      in.Hash,
		Note:      in.Note,
		CreatedBy: m.party.User.ID,
		CreatedAt: r.At,
		Status:    ApprovalSubmitted,
		ReqTx:     r.Tx,
		ExpiresAt: in.ExpiresAt,
	}
	if r.DocID != "" {
		doc.ID = r.DocID
	}
	if mu.WithApproval {
		doc.Status = ApprovalPending
		if doc.ExpiresAt.IsZero() {
			doc.ExpiresAt = s.ExpiresAt
		}
	}
	s.Docs = append(s.Docs, doc)
	return nil
}

func (m *Machine) resolveDocument(mu Mutation, r *Receipt) error {
	s, err := m.stage(mu.Path.Stage)
	if err != nil {
		return err
	}
	d, err := m.doc(mu.Path.Stage, mu.Path.Doc)
	if err != nil {
		return err
	}
	if StageFinished(*s) {
		return ErrStageFinished
	}
	if DocumentStatus(*d, m.at(r)) != ApprovalPending {
		return ErrNotPending
	}
	if d.CreatedBy == m.party.User.ID {
		return ErrSelfApproval
	}
	reject := mu.Op == OpRejectDocument
	if reject && strings.TrimSpace(mu.Reason) == "" {
		return ErrEmptyReason
	}
	if r == nil {
		return nil
	}
	d.ApprovedBy = m.party.User.ID
	d.ApprovedAt = r.At
	d.ApprovedTx = r.Tx
	if reject {
		d.Status = ApprovalRejected
		d.RejectReason = mu.Reason
		return nil
	}
	d.Status = ApprovalApproved
	return nil
}

func (m *Machine) requestStageClose(mu Mutation, r *Receipt) error {
	s, err := m.stage(mu.Path.Stage)
	if err != nil {
		return err
	}
	if StageDeleteStatus(*s) == ReqApproved {
		return ErrStageFinished
	}
	if StageCloseStatus(*s) != ReqCan {
		return ErrRequestExists
	}
	if r == nil {
		return nil
	}
	s.CloseReqs = append(s.CloseReqs, m.newRequest(mu.Reason, mu.WithApproval, r))
	return nil
}

func (m *Machine) resolveStageClose(mu Mutation, r *Receipt) error {
	s, err := m.stage(mu.Path.Stage)
	if err != nil {
		return err
	}
	if StageCloseStatus(*s) != ReqPending {
		return ErrNotPending
	}
	last := &s.CloseReqs[len(s.CloseReqs)-1]
	reject := mu.Op == OpRejectStageClose
	if err := m.checkResolve(last, reject, mu.Reason); err != nil {
		return err
	}
	if r == nil {
		return nil
	}
	m.resolve(last, reject, mu.Reason, r)
	return nil
}

func (m *Machine) requestStageDelete(mu Mutation, r *Receipt) error {
	s, err := m.stage(mu.Path.Stage)
	if err != nil {
		return err
	}
	if mu.Path.Stage == 0 {
		return ErrFirstStage
	}
	if len(s.Docs) > 0 {
		return ErrStageHasDocs
	}
	if StageFinished(*s) {
		return ErrStageFinished
	}
	if StageDeleteStatus(*s) != ReqCan {
		return ErrRequestExists
	}
	if r == nil {
		return nil
	}
	s.DelReqs = append(s.DelReqs, m.newRequest(mu.Reason, true, r))
	return nil
}

func (m *Machine) resolveStageDelete(mu Mutation, r *Receipt) error {
	s, err := m.stage(mu.Path.Stage)
	if err != nil {
		return err
	}
	if StageDeleteStatus(*s) != ReqPending {
		return ErrNotPending
	}
	last := &s.DelReqs[len(s.DelReqs)-1]
	reject := mu.Op == OpRejectStageDelete
	if err := m.checkResolve(last, reject, mu.Reason); err != nil {
		return err
	}
	if r == nil {
		return nil
	}
	m.resolve(last, reject, mu.Reason, r)
	return nil
}

func (m *Machine) setStageExpiry(mu Mutation, r *Receipt) error {
	s, err := m.stage(mu.Path.Stage)
	if err != nil {
		return err
	}
	if mu.ExpiresAt.IsZero() || mu.ExpiresAt.Before(m.at(r)) {
		return ErrExpiryInPast
	}
	if StageFinished(*s) {
		return ErrStageFinished
	}
	if r == nil {
		return nil
	}
	s.ExpiresAt = mu.ExpiresAt.UTC()
	return nil
}

func (m *Machine) requestTradeClose(mu Mutation, r *Receipt) error {
	switch TradeCloseStatus(m.trade) {
	case ReqCan:
	case ReqNo:
		return ErrTradeNotFinished
	default:
		return ErrRequestExists
	}
	if r == nil {
		return nil
	}
	m.trade.CloseReqs = append(m.trade.CloseReqs, m.newRequest(mu.Reason, mu.WithApproval, r))
	return nil
}

func (m *Machine) resolveTradeClose(mu Mutation, r *Receipt) error {
	if TradeCloseStatus(m.trade) != ReqPending {
		return ErrNotPending
	}
	last := &m.trade.CloseReqs[len(m.trade.CloseReqs)-1]
	reject := mu.Op == OpRejectTradeClose
	if err := m.checkResolve(last, reject, mu.Reason); err != nil {
		return err
	}
	if r == nil {
		return nil
	}
	m.resolve(last, reject, mu.Reason, r)
	return nil
}
