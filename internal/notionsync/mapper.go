package notionsync

import (
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/vendor-insights/internal/bigquery"
	"github.com/jomei/notionapi"
)

// Property names of the vendor labels database.
const (
	propVendor         = "Vendor"
	propKey            = "Key"
	propPAN            = "PAN"
	propLevel          = "Level"
	propBuyer          = "Buyer"
	propBuyerID        = "Buyer ID"
	propWindow         = "Window (months)"
	propFiscalPeriod   = "Fiscal Period"
	propIntakeTier     = "Intake Tier"
	propConversionTier = "Conversion Tier"
	propAsOf           = "As Of"
	propRunID          = "Run ID"
)

// LabelKey identifies a vendor label across runs: vendor, buyer (or "all")
// and window. The run ID is left out so a new run updates the same page.
func LabelKey(row *bq.VendorCategoryRow) string {
	buyer := "all"
	if row.BuyerID.Valid {
		buyer = strconv.FormatInt(row.BuyerID.Int64, 10)
	}
	return fmt.Sprintf("%s/%s/%dm", row.VendorID, buyer, row.WindowMonths)
}

// VendorCategoryToNotionProperties converts a label row to Notion properties.
func VendorCategoryToNotionProperties(row *bq.VendorCategoryRow) notionapi.Properties {
	title := row.VendorName
	if title == "" {
		title = row.VendorID
	}

	props := notionapi.Properties{
		propVendor: notionapi.TitleProperty{
			Title: richText(title),
		},
		propKey: notionapi.RichTextProperty{
			RichText: richText(LabelKey(row)),
		},
		propPAN: notionapi.RichTextProperty{
			RichText: richText(row.VendorID),
		},
		propWindow: notionapi.NumberProperty{
			Number: float64(row.WindowMonths),
		},
		propAsOf: notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: civilDate(row.AsOf),
			},
		},
	}

	if row.Level != "" {
		props[propLevel] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: row.Level},
		}
	}
	if row.FiscalPeriod != "" {
		props[propFiscalPeriod] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: row.FiscalPeriod},
		}
	}
	if row.RunID != "" {
		props[propRunID] = notionapi.RichTextProperty{
			RichText: richText(row.RunID),
		}
	}

	if row.BuyerID.Valid {
		props[propBuyerID] = notionapi.NumberProperty{
			Number: float64(row.BuyerID.Int64),
		}
	}
	if row.BuyerName.Valid && row.BuyerName.StringVal != "" {
		props[propBuyer] = notionapi.RichTextProperty{
			RichText: richText(row.BuyerName.StringVal),
		}
	}

	// Notion rejects empty select options, so unlabelled tiers are omitted.
	if row.IntakeTier.Valid && row.IntakeTier.StringVal != "" {
		props[propIntakeTier] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: row.IntakeTier.StringVal},
		}
	}
	if row.ConversionTier.Valid && row.ConversionTier.StringVal != "" {
		props[propConversionTier] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: row.ConversionTier.StringVal},
		}
	}

	return props
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: content,
			},
		},
	}
}

func civilDate(d civil.Date) *notionapi.Date {
	nd := notionapi.Date(time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC))
	return &nd
}

// extractLabelKey reads the Key property of a page returned by a query.
// Returns empty string if not found.
func extractLabelKey(page notionapi.Page) string {
	if prop, ok := page.Properties[propKey]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok {
			if len(rt.RichText) > 0 {
				return rt.RichText[0].PlainText
			}
		}
	}
	return ""
}
