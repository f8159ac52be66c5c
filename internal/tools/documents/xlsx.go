package documents

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

type sharedStrings struct {
	Items []struct {
		T    string `xml:"t"`
		Runs []struct {
			T string `xml:"t"`
		} `xml:"r"`
	} `xml:"si"`
}

type worksheet struct {
	Rows []struct {
		Cells []struct {
			Ref    string `xml:"r,attr"`
			Type   string `xml:"t,attr"`
			Value  string `xml:"v"`
			Inline struct {
				T string `xml:"t"`
			} `xml:"is"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

func decodePart(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}

// extractXLSX renders every worksheet as an aligned table, one block per
// sheet.
func extractXLSX(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}

	var shared []string
	for _, f := range zr.File {
		if f.Name != "xl/sharedStrings.xml" {
			continue
		}
		var sst sharedStrings
		if err := decodePart(f, &sst); err != nil {
			return "", fmt.Errorf("read shared strings: %w", err)
		}
		for _, si := range sst.Items {
			text := si.T
			for _, r := range si.Runs {
				text += r.T
			}
			shared = append(shared, text)
		}
	}

	sheets := numberedParts(zr, "xl/worksheets/sheet")
	if len(sheets) == 0 {
		return "", fmt.Errorf("%w: no worksheets", ErrUnsupported)
	}

	var blocks []string
	for i, f := range sheets {
		var ws worksheet
		if err := decodePart(f, &ws); err != nil {
			return "", fmt.Errorf("read %s: %w", f.Name, err)
		}
		var rows [][]string
		for _, row := range ws.Rows {
			var cells []string
			for _, c := range row.Cells {
				col := columnIndex(c.Ref)
				for len(cells) < col {
					cells = append(cells, "")
				}
				var value string
				switch c.Type {
				case "s":
					if idx, err := strconv.Atoi(c.Value); err == nil && idx >= 0 && idx < len(shared) {
						value = shared[idx]
					}
				case "inlineStr":
					value = c.Inline.T
				default:
					value = c.Value
				}
				cells = append(cells, value)
			}
			rows = append(rows, cells)
		}
		if len(rows) == 0 {
			continue
		}
		block := renderTable(rows)
		if len(sheets) > 1 {
			block = fmt.Sprintf("Sheet %d\n%s", i+1, block)
		}
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n"), nil
}

// columnIndex converts the letters of a cell reference like "C7" to a
// zero-based column. An empty reference returns -1.
func columnIndex(ref string) int {
	col := 0
	for _, r := range ref {
		if r < 'A' || r > 'Z' {
			break
		}
		col = col*26 + int(r-'A'+1)
	}
	return col - 1
}
