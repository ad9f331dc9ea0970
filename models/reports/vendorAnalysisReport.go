package reports

import (
	"bitbucket.org/mmdatafocus/docflow_backend/models"
)

type VendorAnalysisResponse struct {
	Vendors []VendorTotal `json:"vendors"`
}

func BuildVendorAnalysis(docs []*models.Document) *VendorAnalysisResponse {
	return &VendorAnalysisResponse{Vendors: RankVendors(docs)}
}
