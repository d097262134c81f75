package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/carbonmax/carbonmax/internal/reference"
)

type referenceItem struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Factor decimal.Decimal `json:"factor"`
}

type referenceRegion struct {
	Code string  `json:"code"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

func localize(t reference.Table, l reference.Locale) []referenceItem {
	items := t.Items()
	out := make([]referenceItem, len(items))
	for i, it := range items {
		out[i] = referenceItem{Code: it.Code, Name: it.Names.In(l), Factor: it.Factor}
	}
	return out
}

// RegisterReferenceRoutes serves the lookup tables with names in the requested language (?lang=en|hi).
func RegisterReferenceRoutes(r fiber.Router, tables *reference.Tables) {
	r.Get("/reference", func(c *fiber.Ctx) error {
		l := reference.ParseLocale(c.Query("lang"))
		regions := tables.Regions()
		localRegions := make([]referenceRegion, len(regions))
		for i, rg := range regions {
			localRegions[i] = referenceRegion{Code: rg.Code, Name: rg.Names.In(l), Lat: rg.Lat, Lng: rg.Lng}
		}
		return c.JSON(fiber.Map{
			"lang":               l,
			"credit_types":       localize(tables.CreditTypes, l),
			"crops":              localize(tables.Crops, l),
			"soils":              localize(tables.Soils, l),
			"practices":          localize(tables.Practices, l),
			"residue_methods":    localize(tables.ResidueMethods, l),
			"irrigation_methods": localize(tables.IrrigationMethods, l),
			"regions":            localRegions,
		})
	})
}
