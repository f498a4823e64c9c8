package menu

import "github.com/samber/lo"

// Enquiry is the read-only export of a room handed to the order workflow.
// It carries only the selected slots.
type Enquiry struct {
	RoomID     string  `json:"roomId"`
	VendorID   string  `json:"vendorId"`
	HostID     string  `json:"hostId"`
	Items      []Slot  `json:"items"`
	Addons     []Addon `json:"addons"`
	TotalPrice float64 `json:"totalPrice"`
	IsLocked   bool    `json:"isLocked"`
}

func (d *Document) SelectedItems() []Slot {
	return lo.Filter(d.Items, func(s Slot, _ int) bool { return s.IsSelected })
}

func NewEnquiry(d *Document) Enquiry {
	c := d.Clone()
	return Enquiry{
		RoomID:     c.RoomID,
		VendorID:   c.VendorID,
		HostID:     c.HostID,
		Items:      c.SelectedItems(),
		Addons:     c.Addons,
		TotalPrice: c.TotalPrice,
		IsLocked:   c.IsLocked,
	}
}
