package handler

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"tradeflow/internal/api"
	"tradeflow/internal/workflow"
)

var strictPolicy = bluemonday.StrictPolicy()

// cleanText strips markup from user supplied free text.
func cleanText(s string) string {
	return strings.TrimSpace(strictPolicy.Sanitize(s))
}

// sanitizeMutation cleans the free-text fields of mu. Hashes, indexes and
// tokens are signed material and are left untouched.
func sanitizeMutation(mu *workflow.Mutation) {
	mu.Reason = cleanText(mu.Reason)
	mu.Name = cleanText(mu.Name)
	mu.Description = cleanText(mu.Description)
	if mu.Document != nil {
		doc := *mu.Document
		doc.Name = cleanText(doc.Name)
		doc.Note = cleanText(doc.Note)
		mu.Document = &doc
	}
}

func sanitizeTemplate(req *api.CreateTemplateRequest) {
	req.Name = cleanText(req.Name)
	req.Description = cleanText(req.Description)
	for i := range req.Stages {
		req.Stages[i].Name = cleanText(req.Stages[i].Name)
		req.Stages[i].Description = cleanText(req.Stages[i].Description)
	}
}
