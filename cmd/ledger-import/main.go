// Command ledger-import loads a ledger export into the configured database
// and prints the import report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/garyjia/ledger-backoffice/internal/config"
	"github.com/garyjia/ledger-backoffice/internal/container"
	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
	"github.com/garyjia/ledger-backoffice/internal/ingest"
	"github.com/garyjia/ledger-backoffice/pkg/utils"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to the config file")
		clientID   = flag.String("client", "", "client id (required)")
		variantArg = flag.String("variant", "", "ledger variant: client, supplier or misc (required)")
		file       = flag.String("file", "", "xlsx or csv file to import")
		sheet      = flag.String("sheet", "", "workbook sheet, defaults to the first one")
		clearFirst = flag.Bool("clear", false, "delete the ledger before importing")
		export     = flag.String("export", "", "write the resulting ledger to this xlsx file")
	)
	flag.Parse()

	if err := run(*configPath, *clientID, *variantArg, *file, *sheet, *clearFirst, *export); err != nil {
		fmt.Fprintf(os.Stderr, "ledger-import: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, clientID, variantArg, file, sheet string, clearFirst bool, export string) error {
	if clientID == "" || variantArg == "" {
		flag.Usage()
		return fmt.Errorf("-client and -variant are required")
	}
	variant, err := entity.ParseVariant(variantArg)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Reports go to stdout, logs to stderr
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: "stderr",
		Format:     "console",
		Service:    "ledger-import",
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container close failed", zap.Error(err))
		}
	}()

	services := c.Services()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if clearFirst {
		n, err := services.Import.ClearLedger(ctx, clientID, variant)
		if err != nil {
			return err
		}
		logger.Info("Ledger cleared", zap.Int("deleted", n))
	}

	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()

		report, err := services.Import.ImportFile(ctx, clientID, variant, file, f, sheet)
		if err != nil {
			return err
		}
		if err := enc.Encode(report); err != nil {
			return err
		}
	}

	if export != "" {
		list, err := services.Ledger.ListEntries(ctx, clientID, variant, "")
		if err != nil {
			return err
		}
		entries := make([]entity.LedgerEntry, 0, len(list.Entries))
		for _, v := range list.Entries {
			entries = append(entries, *v.Entry.Entry())
		}

		out, err := os.Create(export)
		if err != nil {
			return err
		}
		defer out.Close()
		if err := ingest.WriteWorkbook(out, string(variant), entries); err != nil {
			return err
		}
		logger.Info("Ledger exported", zap.String("path", export), zap.Int("entries", len(entries)))
	}

	return nil
}
