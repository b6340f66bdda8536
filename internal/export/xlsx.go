// Package export renders charging sessions into downloadable documents.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/tbourn/ev-charging-log/internal/domain"
)

// ContentTypeXLSX is the media type of the workbook produced by SessionsXLSX.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SessionsSheet is the name of the worksheet holding one row per session.
const SessionsSheet = "sessions"

// Header lists the worksheet columns in order. Names match the JSON keys of
// domain.ChargingSession.
var Header = []string{
	"id", "vehicle_id", "license_plate", "start_time", "end_time",
	"kwh", "duration_seconds", "cost_huf", "price_per_kwh", "source",
	"currency", "invoice_id", "notes", "odometer", "provider",
	"city", "location_detail", "ac_or_dc", "kw", "created_at",
}

// SessionsXLSX renders sessions as a single-sheet workbook, keeping the
// order it is given. NULL columns become empty cells and timestamps are
// written as RFC 3339 UTC text.
func SessionsXLSX(sessions []domain.ChargingSession) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SessionsSheet); err != nil {
		return nil, err
	}

	head := make([]any, len(Header))
	for i, h := range Header {
		head[i] = h
	}
	if err := f.SetSheetRow(SessionsSheet, "A1", &head); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(SessionsSheet, 1, 1, bold); err != nil {
		return nil, err
	}
	if err := f.SetPanes(SessionsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, err
	}

	for i := range sessions {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := sessionRow(&sessions[i])
		if err := f.SetSheetRow(SessionsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sessionRow(s *domain.ChargingSession) []any {
	return []any{
		s.ID,
		str(s.VehicleID),
		str(s.LicensePlate),
		ts(s.StartTime),
		ts(s.EndTime),
		num(s.KWh),
		integer(s.DurationSeconds),
		num(s.CostHUF),
		num(s.PricePerKWh),
		str(s.Source),
		str(s.Currency),
		str(s.InvoiceID),
		str(s.Notes),
		num(s.Odometer),
		str(s.Provider),
		str(s.City),
		str(s.LocationDetail),
		str(s.ACOrDC),
		num(s.KW),
		s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// The helpers below return untyped nil for NULL so excelize leaves the cell empty.

func str(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func num(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func integer(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func ts(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC().Format(time.RFC3339)
}
