package artifact

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	defaultMaxBytes = 10 * 1024 * 1024
	defaultMaxCells = 100000
)

// Config caps artifact size to guard against unbounded memory use.
type Config struct {
	MaxBytes int64
	MaxCells int
}

// Loader parses uploaded workbooks into a Representation. It is stateless
// and safe to share across sessions.
type Loader struct {
	cfg    Config
	logger *zap.Logger
}

func NewLoader(cfg Config, logger *zap.Logger) *Loader {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.MaxCells <= 0 {
		cfg.MaxCells = defaultMaxCells
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Loader{cfg: cfg, logger: logger}
}

// Load fetches the blob and parses it according to the declared format.
// Formula text is captured verbatim since deterministic checks inspect
// formula structure, not just computed values.
func (l *Loader) Load(ctx context.Context, blobs BlobStore, ref, format string) (*Representation, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "xlsx", "xlsm", "":
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrUnreadable, format)
	}

	data, err := blobs.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}

	if int64(len(data)) > l.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds ceiling of %d", ErrTooLarge, len(data), l.cfg.MaxBytes)
	}

	rep, err := l.parse(data)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("artifact parsed",
		zap.String("blob_ref", ref),
		zap.Int("sheets", len(rep.Sheets)),
		zap.Int("cells", len(rep.Cells)),
		zap.Int("named_ranges", len(rep.NamedRanges)),
		zap.Int("pivot_sheets", len(rep.PivotSheets)),
	)

	return rep, nil
}

func (l *Loader) parse(data []byte) (*Representation, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer file.Close()

	rep := &Representation{
		Sheets:      file.GetSheetList(),
		Cells:       make(map[string]Cell),
		NamedRanges: make(map[string]string),
	}

	for _, name := range file.GetDefinedName() {
		rep.NamedRanges[name.Name] = name.RefersTo
	}

	for _, sheet := range rep.Sheets {
		pivots, err := file.GetPivotTables(sheet)
		if err != nil {
			return nil, fmt.Errorf("%w: pivot tables on sheet %q: %v", ErrUnreadable, sheet, err)
		}
		if len(pivots) > 0 {
			rep.PivotSheets = append(rep.PivotSheets, sheet)
		}

		rows, err := file.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("%w: reading sheet %q: %v", ErrUnreadable, sheet, err)
		}

		for r, row := range rows {
			for c := range row {
				axis, err := excelize.CoordinatesToCellName(c+1, r+1)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
				}

				cell, ok, err := l.readCell(file, sheet, axis)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}

				rep.Cells[sheet+"!"+axis] = cell
				if len(rep.Cells) > l.cfg.MaxCells {
					return nil, fmt.Errorf("%w: more than %d populated cells", ErrTooLarge, l.cfg.MaxCells)
				}
			}
		}
	}

	return rep, nil
}

func (l *Loader) readCell(file *excelize.File, sheet, axis string) (Cell, bool, error) {
	value, err := file.GetCellValue(sheet, axis)
	if err != nil {
		return Cell{}, false, fmt.Errorf("%w: cell %s!%s: %v", ErrUnreadable, sheet, axis, err)
	}

	formula, err := file.GetCellFormula(sheet, axis)
	if err != nil {
		return Cell{}, false, fmt.Errorf("%w: cell %s!%s: %v", ErrUnreadable, sheet, axis, err)
	}

	if value == "" && formula == "" {
		return Cell{}, false, nil
	}

	// Stored formula text may or may not carry the leading '=' depending on
	// how the workbook was authored; normalize to exactly one.
	if formula != "" {
		formula = "=" + strings.TrimPrefix(formula, "=")
	}

	return Cell{
		Formula: formula,
		Value:   value,
		Type:    classify(value),
	}, true, nil
}

func classify(value string) ValueType {
	if value == "" {
		return ValueEmpty
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return ValueNumber
	}
	switch strings.ToUpper(value) {
	case "TRUE", "FALSE":
		return ValueBool
	}
	return ValueString
}
