package workflow

import (
	"strings"
	"time"
)

// DefaultFirstStage names the stage every trade starts with when no template is used.
const DefaultFirstStage = "trade contract"

const minTradeNameLen = 5

var (
	ErrTradeName    = precondition("trade name must be at least 5 characters long")
	ErrSameParties  = precondition("buyer and seller must be different users")
	ErrCreatorParty = precondition("trade creator must be the buyer or the seller")
)

// NewStage builds an empty stage. addReqIdx is -1 for stages that did not come
// from a stage add request.
func NewStage(name, description string, owner Actor, addReqIdx int) Stage {
	s := Stage{
		Name:        name,
		Description: description,
		Owner:       owner,
		AddReqIdx:   addReqIdx,
		Docs:        []Document{},
		DelReqs:     []ApproveReq{},
		CloseReqs:   []ApproveReq{},
	}
	s.DeleteStatus = StageDeleteStatus(s)
	s.CloseStatus = StageCloseStatus(s)
	return s
}

type StageTemplate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Owner       Actor  `json:"owner"`
}

// BuildStages materializes template stages.
func BuildStages(tpl []StageTemplate) []Stage {
	if len(tpl) == 0 {
		return []Stage{NewStage(DefaultFirstStage, "", ActorNone, -1)}
	}
	out := make([]Stage, 0, len(tpl))
	for _, st := range tpl {
		owner := st.Owner
		if owner == "" {
			owner = ActorNone
		}
		out = append(out, NewStage(st.Name, st.Description, owner, -1))
	}
	return out
}

type NewTradeInput struct {
	ID          string
	Name        string
	Description string
	Buyer       User
	Seller      User
	CreatedBy   string
	TemplateID  string
	OfferID     string
	SCAddr      string
	Stages      []StageTemplate
}

func (in NewTradeInput) Validate() error {
	if len([]rune(strings.TrimSpace(in.Name))) < minTradeNameLen {
		return ErrTradeName
	}
	if in.Buyer.ID == "" || in.Seller.ID == "" || in.Buyer.ID == in.Seller.ID {
		return ErrSameParties
	}
	if in.CreatedBy != in.Buyer.ID && in.CreatedBy != in.Seller.ID {
		return ErrCreatorParty
	}
	return nil
}

func NewTrade(in NewTradeInput, now time.Time) (*Trade, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	t := &Trade{
		ID:              in.ID,
		Name:            strings.TrimSpace(in.Name),
		Description:     in.Description,
		Buyer:           in.Buyer,
		Seller:          in.Seller,
		CreatedBy:       in.CreatedBy,
		CreatedAt:       now.UTC(),
		TemplateID:      in.TemplateID,
		OfferID:         in.OfferID,
		SCAddr:          in.SCAddr,
		Stages:          BuildStages(in.Stages),
		StageAddReqs:    []StageAddReq{},
		CloseReqs:       []ApproveReq{},
		CurrentStageIdx: 0,
	}
	Refresh(t)
	return t, nil
}
