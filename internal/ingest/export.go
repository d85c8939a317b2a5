package ingest

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
)

var exportHeaders = []string{
	"Date", "N° compte", "Nom", "Libellé", "Débit", "Crédit", "Solde", "Référence", "Pointé",
}

// WriteWorkbook writes entries into a single-sheet xlsx. Reading the result
// back with ReadWorkbook and Builder yields entries with the same signatures.
func WriteWorkbook(w io.Writer, sheet string, entries []entity.LedgerEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Ledger"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A1", &exportHeaders); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, e := range entries {
		justified := ""
		if e.Justified {
			justified = "oui"
		}
		row := []interface{}{
			e.DateString(),
			e.AccountNumber,
			e.CounterpartyName,
			e.Description,
			e.Debit.StringFixed(2),
			e.Credit.StringFixed(2),
			e.Balance.StringFixed(2),
			e.Reference,
			justified,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
