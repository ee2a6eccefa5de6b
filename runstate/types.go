package runstate

import "github.com/cowaramupagencies/gas/dispatch"

// RunState is the cached board view of one run.
type RunState struct {
	RunID           string `json:"run_id"`
	DeliveryDate    string `json:"delivery_date"`
	RunNumber       int    `json:"run_number"`
	Status          string `json:"status"`
	Used            int    `json:"used"`
	Limit           int    `json:"limit"`
	Full            bool   `json:"full"`
	Orders          int    `json:"orders"`
	Delivered       int    `json:"delivered"`
	ManifestID      string `json:"manifest_id,omitempty"`
	ManifestVersion int    `json:"manifest_version,omitempty"`
}

// FromDetail flattens a run detail into its cached form.
func FromDetail(d *dispatch.RunDetail) *RunState {
	s := &RunState{
		RunID:        d.Run.ID,
		DeliveryDate: d.Run.DeliveryDate,
		RunNumber:    d.Run.RunNumber,
		Status:       string(d.Run.Status),
		Used:         d.Capacity.Used,
		Limit:        d.Capacity.Limit,
		Full:         d.Capacity.Full,
		Orders:       len(d.Orders),
	}
	for _, o := range d.Orders {
		if o.Delivered {
			s.Delivered++
		}
	}
	if d.Manifest != nil {
		s.ManifestID = d.Manifest.ID
		s.ManifestVersion = d.Manifest.Version
	}
	return s
}
