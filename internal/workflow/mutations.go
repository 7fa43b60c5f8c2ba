package workflow

import "time"

func AddStage(tradeID, name, description string, owner Actor, reason string, withApproval bool) Mutation {
	return Mutation{
		Op:           OpAddStage,
		Path:         TradePath(tradeID),
		Name:         name,
		Description:  description,
		Owner:        owner,
		Reason:       reason,
		WithApproval: withApproval,
	}
}

func ApproveStageAdd(tradeID string, reqIdx int) Mutation {
	return Mutation{Op: OpApproveStageAdd, Path: StagePath(tradeID, reqIdx)}
}

func RejectStageAdd(tradeID string, reqIdx int, reason string) Mutation {
	return Mutation{Op: OpRejectStageAdd, Path: StagePath(tradeID, reqIdx), Reason: reason}
}

func AddDocument(tradeID string, stage int, doc DocumentInput, withApproval bool) Mutation {
	return Mutation{
		Op:           OpAddDocument,
		Path:         DocPath(tradeID, stage, -1, doc.Hash),
		Document:     &doc,
		WithApproval: withApproval,
	}
}

func ApproveDocument(tradeID string, stage, doc int, hash string) Mutation {
	return Mutation{Op: OpApproveDocument, Path: DocPath(tradeID, stage, doc, hash)}
}

func RejectDocument(tradeID string, stage, doc int, hash, reason string) Mutation {
	return Mutation{Op: OpRejectDocument, Path: DocPath(tradeID, stage, doc, hash), Reason: reason}
}

func RequestStageClose(tradeID string, stage int, reason string, withApproval bool) Mutation {
	return Mutation{Op: OpRequestStageClose, Path: StagePath(tradeID, stage), Reason: reason, WithApproval: withApproval}
}

func ApproveStageClose(tradeID string, stage int) Mutation {
	return Mutation{Op: OpApproveStageClose, Path: StagePath(tradeID, stage)}
}

func RejectStageClose(tradeID string, stage int, reason string) Mutation {
	return Mutation{Op: OpRejectStageClose, Path: StagePath(tradeID, stage), Reason: reason}
}

func RequestStageDelete(tradeID string, stage int, reason string) Mutation {
	return Mutation{Op: OpRequestStageDelete, Path: StagePath(tradeID, stage), Reason: reason, WithApproval: true}
}

func ApproveStageDelete(tradeID string, stage int) Mutation {
	return Mutation{Op: OpApproveStageDelete, Path: StagePath(tradeID, stage)}
}

func RejectStageDelete(tradeID string, stage int, reason string) Mutation {
	return Mutation{Op: OpRejectStageDelete, Path: StagePath(tradeID, stage), Reason: reason}
}

func SetStageExpiry(tradeID string, stage int, at time.Time) Mutation {
	return Mutation{Op: OpSetStageExpiry, Path: StagePath(tradeID, stage), ExpiresAt: at}
}

func RequestTradeClose(tradeID, reason string, withApproval bool) Mutation {
	return Mutation{Op: OpRequestTradeClose, Path: TradePath(tradeID), Reason: reason, WithApproval: withApproval}
}

func ApproveTradeClose(tradeID string) Mutation {
	return Mutation{Op: OpApproveTradeClose, Path: TradePath(tradeID)}
}

func RejectTradeClose(tradeID, reason string) Mutation {
	return Mutation{Op: OpRejectTradeClose, Path: TradePath(tradeID), Reason: reason}
}
