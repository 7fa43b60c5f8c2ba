package workflow

import "time"

// DocumentStatus returns the effective status of doc at now. A pending document
// past its expiry reads as expired; nothing is written.
func DocumentStatus(doc Document, now time.Time) Approval {
	if doc.Status == ApprovalPending && !doc.ExpiresAt.IsZero() && now.After(doc.ExpiresAt) {
		return ApprovalExpired
	}
	return doc.Status
}

// lastReqStatus folds the last entry of a request log. ok is false when the
// log is empty or the last request was rejected.
func lastReqStatus(log []ApproveReq) (ReqStatus, bool) {
	if len(log) == 0 {
		return "", false
	}
	switch log[len(log)-1].Status {
	case ApprovalApproved:
		return ReqApproved, true
	case ApprovalPending:
		return ReqPending, true
	}
	return "", false
}

func StageDeleteStatus(s Stage) ReqStatus {
	if len(s.Docs) > 0 {
		return ReqNo
	}
	if st, ok := lastReqStatus(s.DelReqs); ok {
		return st
	}
	return ReqCan
}

func StageCloseStatus(s Stage) ReqStatus {
	if st, ok := lastReqStatus(s.CloseReqs); ok {
		return st
	}
	for _, d := range s.Docs {
		if d.Status != ApprovalRejected {
			return ReqCan
		}
	}
	return ReqNo
}

// StageFinished reports whether the stage was deleted or closed.
func StageFinished(s Stage) bool {
	return StageDeleteStatus(s) == ReqApproved || StageCloseStatus(s) == ReqApproved
}

func TradeCloseStatus(t *Trade) ReqStatus {
	if st, ok := lastReqStatus(t.CloseReqs); ok {
		return st
	}
	for _, s := range t.Stages {
		if !StageFinished(s) {
			return ReqNo
		}
	}
	return ReqCan
}

// CurrentStageIndex is the first unfinished stage, or -1.
func CurrentStageIndex(t *Trade) int {
	for i, s := range t.Stages {
		if !StageFinished(s) {
			return i
		}
	}
	return -1
}

func HasPendingNotification(s Stage, now time.Time) bool {
	if StageDeleteStatus(s) == ReqPending || StageCloseStatus(s) == ReqPending {
		return true
	}
	for _, d := range s.Docs {
		if DocumentStatus(d, now) == ApprovalPending {
			return true
		}
	}
	return false
}

// Refresh recomputes every derived field of t.
func Refresh(t *Trade) {
	if t == nil {
		return
	}
	for i := range t.Stages {
		t.Stages[i].DeleteStatus = StageDeleteStatus(t.Stages[i])
		t.Stages[i].CloseStatus = StageCloseStatus(t.Stages[i])
	}
	t.CloseStatus = TradeCloseStatus(t)
	t.CurrentStageIdx = CurrentStageIndex(t)
}

type DocumentView struct {
	Index           int      `json:"index"`
	EffectiveStatus Approval `json:"effective_status"`
}

type StageView struct {
	Index               int            `json:"index"`
	DeleteStatus        ReqStatus      `json:"delete_status"`
	CloseStatus         ReqStatus      `json:"close_status"`
	PendingNotification bool           `json:"pending_notification"`
	Docs                []DocumentView `json:"docs"`
}

// View holds every derived value of a trade at one instant.
type View struct {
	TradeID         string      `json:"trade_id"`
	CloseStatus     ReqStatus   `json:"close_status"`
	CurrentStageIdx int         `json:"current_stage_idx"`
	Stages          []StageView `json:"stages"`
}

func Derive(t *Trade, now time.Time) View {
	v := View{
		TradeID:         t.ID,
		CloseStatus:     TradeCloseStatus(t),
		CurrentStageIdx: CurrentStageIndex(t),
		Stages:          make([]StageView, 0, len(t.Stages)),
	}
	for i, s := range t.Stages {
		sv := StageView{
			Index:               i,
			DeleteStatus:        StageDeleteStatus(s),
			CloseStatus:         StageCloseStatus(s),
			PendingNotification: HasPendingNotification(s, now),
			Docs:                make([]DocumentView, 0, len(s.Docs)),
		}
		for j, d := range s.Docs {
			sv.Docs = append(sv.Docs, DocumentView{Index: j, EffectiveStatus: DocumentStatus(d, now)})
		}
		v.Stages = append(v.Stages, sv)
	}
	return v
}
