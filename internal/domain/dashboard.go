package domain

import "encoding/json"

// DashboardStats are the headline numbers of the dashboard page.
type DashboardStats struct {
	TotalLeads     int     `json:"total_leads"`
	TotalMessages  int     `json:"total_messages"`
	TotalOrders    int     `json:"total_orders"`
	TotalSpend     float64 `json:"total_spend"`
	ConversionRate float64 `json:"conversion_rate"`
	ROI            float64 `json:"roi"`
}

// DashboardData is the payload of the dashboard page.
// Chart series are passed through untouched.
type DashboardData struct {
	Stats  DashboardStats             `json:"stats"`
	Charts map[string]json.RawMessage `json:"charts"`
}

// Overview holds the counters of the integration overview page.
type Overview struct {
	TotalMessages int `json:"total_messages"`
	TodayMessages int `json:"today_messages"`
	TotalLeads    int `json:"total_leads"`
	UnmappedLeads int `json:"unmapped_leads"`
}

// Account is an integration account (page) usable as an account scope.
type Account struct {
	Name        string `json:"name"`
	AccountName string `json:"account_name"`
}
