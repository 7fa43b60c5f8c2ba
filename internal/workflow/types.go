package workflow

import (
	"time"
)

// Approval is the stored status of a request log entry or document.
type Approval string

const (
	ApprovalNil       Approval = "nil"
	ApprovalPending   Approval = "pending"
	ApprovalApproved  Approval = "approved"
	ApprovalRejected  Approval = "rejected"
	ApprovalExpired   Approval = "expired"
	ApprovalSubmitted Approval = "submitted"
)

func (a Approval) Valid() bool {
	switch a {
	case ApprovalNil, ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalExpired, ApprovalSubmitted:
		return true
	}
	return false
}

// ReqStatus is the derived "can make request" status of a request target.
type ReqStatus string

const (
	ReqNo       ReqStatus = "no"
	ReqCan      ReqStatus = "can"
	ReqPending  ReqStatus = "pending"
	ReqApproved ReqStatus = "approved"
)

// Actor is a trade-relative role.
type Actor string

const (
	ActorBuyer     Actor = "b"
	ActorSeller    Actor = "s"
	ActorNone      Actor = "n"
	ActorModerator Actor = "m"
)

func ParseActor(v string) (Actor, bool) {
	switch v {
	case "b", "buyer":
		return ActorBuyer, true
	case "s", "seller":
		return ActorSeller, true
	case "n", "none", "":
		return ActorNone, true
	}
	return "", false
}

func (a Actor) String() string {
	switch a {
	case ActorBuyer:
		return "buyer"
	case ActorSeller:
		return "seller"
	case ActorModerator:
		return "moderator"
	}
	return "none"
}

type User struct {
	ID     string   `json:"id"`
	Name   string   `json:"name,omitempty"`
	PubKey string   `json:"pub_key,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ApproveReq is one entry of a stage-close, stage-delete, stage-add or trade-close log.
type ApproveReq struct {
	Status       Approval  `json:"status"`
	ReqBy        string    `json:"req_by"`
	ReqActor     Actor     `json:"req_actor"`
	ReqAt        time.Time `json:"req_at"`
	ReqReason    string    `json:"req_reason,omitempty"`
	ReqTx        string    `json:"req_tx,omitempty"`
	ApprovedBy   string    `json:"approved_by,omitempty"`
	ApprovedAt   time.Time `json:"approved_at,omitempty"`
	ApprovedTx   string    `json:"approved_tx,omitempty"`
	RejectReason string    `json:"reject_reason,omitempty"`
}

type StageAddReq struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Owner       Actor  `json:"owner"`
	ApproveReq
}

type Document struct {
	ID           string    `json:"id"`
	Index        int       `json:"index"`
	Name         string    `json:"name"`
	Hash         string    `json:"hash"`
	Note         string    `json:"note,omitempty"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	Status       Approval  `json:"status"`
	ReqTx        string    `json:"req_tx,omitempty"`
	ApprovedBy   string    `json:"approved_by,omitempty"`
	ApprovedAt   time.Time `json:"approved_at,omitempty"`
	ApprovedTx   string    `json:"approved_tx,omitempty"`
	RejectReason string    `json:"reject_reason,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

type Stage struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Owner       Actor        `json:"owner"`
	ExpiresAt   time.Time    `json:"expires_at,omitempty"`
	AddReqIdx   int          `json:"add_req_idx"`
	Docs        []Document   `json:"docs"`
	DelReqs     []ApproveReq `json:"del_reqs"`
	CloseReqs   []ApproveReq `json:"close_reqs"`

	// derived, recomputed after every mutation
	DeleteStatus ReqStatus `json:"delete_status"`
	CloseStatus  ReqStatus `json:"close_status"`
}

type Trade struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Buyer        User          `json:"buyer"`
	Seller       User          `json:"seller"`
	CreatedBy    string        `json:"created_by"`
	CreatedAt    time.Time     `json:"created_at"`
	TemplateID   string        `json:"template_id,omitempty"`
	OfferID      string        `json:"offer_id,omitempty"`
	SCAddr       string        `json:"sc_addr,omitempty"`
	Stages       []Stage       `json:"stages"`
	StageAddReqs []StageAddReq `json:"stage_add_reqs"`
	CloseReqs    []ApproveReq  `json:"close_reqs"`

	CloseStatus     ReqStatus `json:"close_status"`
	CurrentStageIdx int       `json:"current_stage_idx"`
}

// Clone returns a deep copy. Callers outside the machine only ever see clones.
func (t *Trade) Clone() *Trade {
	if t == nil {
		return nil
	}
	out := *t
	out.Buyer.Roles = append([]string(nil), t.Buyer.Roles...)
	out.Seller.Roles = append([]string(nil), t.Seller.Roles...)
	out.StageAddReqs = append([]StageAddReq{}, t.StageAddReqs...)
	out.CloseReqs = append([]ApproveReq{}, t.CloseReqs...)
	out.Stages = make([]Stage, len(t.Stages))
	for i, s := range t.Stages {
		s.Docs = append([]Document{}, s.Docs...)
		s.DelReqs = append([]ApproveReq{}, s.DelReqs...)
		s.CloseReqs = append([]ApproveReq{}, s.CloseReqs...)
		out.Stages[i] = s
	}
	return &out
}

// ActorOf returns the trade role of a user id.
func (t *Trade) ActorOf(userID string) Actor {
	switch {
	case userID == "":
		return ActorNone
	case userID == t.Buyer.ID:
		return ActorBuyer
	case userID == t.Seller.ID:
		return ActorSeller
	}
	return ActorNone
}

// Counterparty returns the ids that should hear about an action taken by actor.
func (t *Trade) Counterparty(actor Actor) []string {
	switch actor {
	case ActorBuyer:
		return []string{t.Seller.ID}
	case ActorSeller:
		return []string{t.Buyer.ID}
	}
	return []string{t.Buyer.ID, t.Seller.ID}
}

// Party is the acting user resolved against one trade.
type Party struct {
	User      User
	Actor     Actor
	Moderator bool
}

// ReqActor is the role stamped on requests created by the party.
func (p Party) ReqActor() Actor {
	if p.Actor == ActorNone && p.Moderator {
		return ActorModerator
	}
	return p.Actor
}

func (p Party) Authorized() bool {
	return p.User.ID != "" && (p.Actor == ActorBuyer || p.Actor == ActorSeller || p.Moderator)
}
