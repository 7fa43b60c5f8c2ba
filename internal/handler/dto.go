package handler

import (
	"tradeflow/internal/api"
	"tradeflow/internal/models"
	"tradeflow/internal/workflow"
)

func toTradeSummary(r *models.TradeRecord) api.TradeSummary {
	return api.TradeSummary{
		ID:          r.ID,
		Name:        r.Name,
		BuyerID:     r.BuyerID,
		SellerID:    r.SellerID,
		CloseStatus: workflow.ReqStatus(r.CloseStatus),
		Version:     r.Version,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toTemplate(t *models.TradeTemplate) (api.Template, error) {
	stages, err := t.StageList()
	if err != nil {
		return api.Template{}, err
	}
	return api.Template{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Stages:      stages,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
	}, nil
}

func toOffer(o *models.TradeOffer) api.Offer {
	return api.Offer{
		ID:          o.ID,
		Commodity:   o.Commodity,
		Description: o.Description,
		IsSell:      o.IsSell,
		Price:       o.Price,
		Quantity:    o.Quantity,
		Total:       o.Total(),
		Unit:        o.Unit,
		Currency:    o.Currency,
		TemplateID:  o.TemplateID,
		CreatedBy:   o.CreatedBy,
		ExpiresAt:   o.ExpiresAt,
		ClosedAt:    o.ClosedAt,
		CreatedAt:   o.CreatedAt,
	}
}

func toNotification(n *models.Notification, userID string) api.Notification {
	return api.Notification{
		ID:        n.ID,
		TradeID:   n.TradeID,
		Action:    n.Action,
		Message:   n.Message,
		Ref:       n.Ref,
		CreatedBy: n.CreatedBy,
		Dismissed: n.DismissedBy(userID),
		CreatedAt: n.CreatedAt,
	}
}
