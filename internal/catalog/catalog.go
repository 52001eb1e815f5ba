// Package catalog lists the roadside services customers can book.
package catalog

import "sort"

type ServiceType struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	BasePrice     float64 `json:"base_price"`
	EstimatedTime string  `json:"estimated_time"`
	Group         string  `json:"group"` // emergency, towing, repair
}

var defaultTypes = []ServiceType{
	{ID: "jumpstart", Name: "Jump Start", Description: "Dead battery? Get a quick jump start", BasePrice: 45, EstimatedTime: "10-15 min", Group: "emergency"},
	{ID: "tire", Name: "Tire Change", Description: "Flat tire replacement or repair", BasePrice: 65, EstimatedTime: "15-25 min", Group: "emergency"},
	{ID: "lockout", Name: "Lockout Service", Description: "Locked out of your car? We can help", BasePrice: 55, EstimatedTime: "10-20 min", Group: "emergency"},
	{ID: "fuel", Name: "Fuel Delivery", Description: "Emergency fuel delivery service", BasePrice: 35, EstimatedTime: "15-30 min", Group: "emergency"},
	{ID: "towing", Name: "Towing Service", Description: "Professional towing to your destination", BasePrice: 125, EstimatedTime: "20-40 min", Group: "towing"},
	{ID: "mechanic", Name: "Mobile Mechanic", Description: "On-site mechanical repairs and diagnostics", BasePrice: 95, EstimatedTime: "30-60 min", Group: "repair"},
	{ID: "battery", Name: "Battery Replacement", Description: "New battery installation service", BasePrice: 85, EstimatedTime: "15-25 min", Group: "repair"},
	{ID: "diagnostics", Name: "Engine Diagnostics", Description: "Professional engine diagnostic service", BasePrice: 75, EstimatedTime: "20-30 min", Group: "repair"},
}

// Catalog is read-only after construction.
type Catalog struct {
	byID  map[string]ServiceType
	order []string
}

func New(types []ServiceType) *Catalog {
	c := &Catalog{byID: make(map[string]ServiceType, len(types))}
	for _, t := range types {
		if _, dup := c.byID[t.ID]; dup {
			continue
		}
		c.byID[t.ID] = t
		c.order = append(c.order, t.ID)
	}
	return c
}

// Default returns the stock roadside catalogue.
func Default() *Catalog { return New(defaultTypes) }

func (c *Catalog) Lookup(id string) (ServiceType, bool) {
	t, ok := c.byID[id]
	return t, ok
}

func (c *Catalog) List() []ServiceType {
	out := make([]ServiceType, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// IDs returns the category ids in sorted order.
func (c *Catalog) IDs() []string {
	ids := append([]string(nil), c.order...)
	sort.Strings(ids)
	return ids
}
