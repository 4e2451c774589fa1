// Package parser turns an uploaded group file (CSV or XLSX) into template rows.
//
// Both formats are normalized to the same Row shape. Header names are matched
// case-insensitively and ignoring spaces, dashes and underscores, so "Date of Birth"
// and "date_of_birth" both bind to dateOfBirth. Columns may appear in any order.
package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	dErrors "raceday/pkg/domain-errors"
)

// MaxRows is the hard ceiling on data rows per upload.
const MaxRows = 1000

// maxFileBytes bounds how much of an upload is read into memory.
const maxFileBytes = 10 << 20

// Columns is the template column order.
var Columns = []string{
	"firstName", "lastName", "email", "dateOfBirth", "phone", "gender", "genderIdentity",
	"city", "state", "country", "emergencyContactName", "emergencyContactPhone",
	"distanceId", "distanceLabel", "addOnSelections",
}

var requiredColumns = []string{"firstName", "lastName", "email", "dateOfBirth"}

// Row is one participant line of the template.
type Row struct {
	FirstName             string `json:"firstName"`
	LastName              string `json:"lastName"`
	Email                 string `json:"email"`
	DateOfBirth           string `json:"dateOfBirth"`
	Phone                 string `json:"phone,omitempty"`
	Gender                string `json:"gender,omitempty"`
	GenderIdentity        string `json:"genderIdentity,omitempty"`
	City                  string `json:"city,omitempty"`
	State                 string `json:"state,omitempty"`
	Country               string `json:"country,omitempty"`
	EmergencyContactName  string `json:"emergencyContactName,omitempty"`
	EmergencyContactPhone string `json:"emergencyContactPhone,omitempty"`
	DistanceID            string `json:"distanceId,omitempty"`
	DistanceLabel         string `json:"distanceLabel,omitempty"`
	AddOnSelections       string `json:"addOnSelections,omitempty"`
}

func (r *Row) set(column, value string) {
	value = strings.TrimSpace(value)
	switch column {
	case "firstName":
		r.FirstName = value
	case "lastName":
		r.LastName = value
	case "email":
		r.Email = value
	case "dateOfBirth":
		r.DateOfBirth = value
	case "phone":
		r.Phone = value
	case "gender":
		r.Gender = value
	case "genderIdentity":
		r.GenderIdentity = value
	case "city":
		r.City = value
	case "state":
		r.State = value
	case "country":
		r.Country = value
	case "emergencyContactName":
		r.EmergencyContactName = value
	case "emergencyContactPhone":
		r.EmergencyContactPhone = value
	case "distanceId":
		r.DistanceID = value
	case "distanceLabel":
		r.DistanceLabel = value
	case "addOnSelections":
		r.AddOnSelections = value
	}
}

// Format of an uploaded file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat picks the format from the file name, falling back to the zip magic
// number that every XLSX file starts with.
func DetectFormat(filename string, head []byte) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".csv", ".txt":
		return FormatCSV
	}
	if bytes.HasPrefix(head, []byte("PK\x03\x04")) {
		return FormatXLSX
	}
	return FormatCSV
}

// Parse reads filename's content from r and returns its data rows.
func Parse(filename string, r io.Reader) ([]Row, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxFileBytes+1))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidFile, "failed to read upload")
	}
	if len(data) > maxFileBytes {
		return nil, dErrors.New(dErrors.CodeInvalidFile, "file is too large")
	}

	var records [][]string
	switch DetectFormat(filename, data) {
	case FormatXLSX:
		records, err = readXLSX(data)
	default:
		records, err = readCSV(data)
	}
	if err != nil {
		return nil, err
	}
	return fromRecords(records)
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidFile, "file is not valid CSV")
	}
	return records, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidFile, "file is not a valid spreadsheet")
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidFile, "spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidFile, "failed to read spreadsheet rows")
	}
	if err := normalizeDates(f, sheets[0], rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// normalizeDates rewrites date-of-birth cells stored as Excel serial dates to
// YYYY-MM-DD. GetRows returns such cells in the cell's display format ("01-15-90"),
// so the raw serial is read back and converted instead.
func normalizeDates(f *excelize.File, sheet string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	col := -1
	for i, h := range rows[0] {
		if headerKey(h) == headerKey("dateOfBirth") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil
	}

	props, err := f.GetWorkbookProps()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidFile, "failed to read workbook properties")
	}
	date1904 := props.Date1904 != nil && *props.Date1904

	for i := 1; i < len(rows); i++ {
		if col >= len(rows[i]) || strings.TrimSpace(rows[i][col]) == "" {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(col+1, i+1)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidFile, "failed to address spreadsheet cell")
		}
		raw, err := f.GetCellValue(sheet, cell, excelize.Options{RawCellValue: true})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidFile, "failed to read spreadsheet cell")
		}
		serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			continue
		}
		t, err := excelize.ExcelDateToTime(serial, date1904)
		if err != nil {
			continue
		}
		rows[i][col] = t.Format("2006-01-02")
	}
	return nil
}

// fromRecords binds the header and converts every non-blank record.
func fromRecords(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidHeaders, "file has no header row")
	}
	columns, err := bindHeader(records[0])
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		if len(rows) == MaxRows {
			return nil, dErrors.Newf(dErrors.CodeTooManyRows, "file has more than %d rows", MaxRows)
		}
		var row Row
		for i, value := range rec {
			if i < len(columns) && columns[i] != "" {
				row.set(columns[i], value)
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, dErrors.New(dErrors.CodeNoRows, "file has no data rows")
	}
	return rows, nil
}

// bindHeader maps each header cell to its template column ("" for unknown columns).
func bindHeader(header []string) ([]string, error) {
	known := make(map[string]string, len(Columns))
	for _, c := range Columns {
		known[headerKey(c)] = c
	}

	columns := make([]string, len(header))
	present := map[string]bool{}
	for i, h := range header {
		if c, ok := known[headerKey(h)]; ok {
			columns[i] = c
			present[c] = true
		}
	}

	var missing []string
	for _, c := range requiredColumns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if !present["distanceId"] && !present["distanceLabel"] {
		missing = append(missing, "distanceId or distanceLabel")
	}
	if len(missing) > 0 {
		return nil, dErrors.Newf(dErrors.CodeInvalidHeaders, "missing required columns: %s", strings.Join(missing, ", "))
	}
	return columns, nil
}

func headerKey(h string) string {
	h = strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")
	return strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h))
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Label describes a row for operator-facing messages.
func (r Row) Label(index int) string {
	name := strings.TrimSpace(r.FirstName + " " + r.LastName)
	if name == "" {
		return fmt.Sprintf("row %d", index+1)
	}
	return fmt.Sprintf("row %d (%s)", index+1, name)
}
