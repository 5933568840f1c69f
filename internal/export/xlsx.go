package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

var headerCells = []string{"Task", "Description", "Assignee", "Due date", "Sub-tasks"}

// renderXLSX builds the workbook: an overview sheet plus one sheet per group.
func renderXLSX(data workbookData) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const overview = "Overview"
	f.SetSheetName("Sheet1", overview)
	f.SetCellValue(overview, "A1", "Board")
	f.SetCellValue(overview, "B1", data.BoardName)
	f.SetCellValue(overview, "A2", "Workspace")
	f.SetCellValue(overview, "B2", data.WorkspaceName)
	f.SetCellValue(overview, "A3", "Exported")
	f.SetCellValue(overview, "B3", data.ExportedAt.Format("2006-01-02 15:04"))
	f.SetCellValue(overview, "A5", "Group")
	f.SetCellValue(overview, "B5", "Tasks")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, group := range data.Groups {
		sheet := sheetName(group.Name, i)
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("create sheet %q: %w", sheet, err)
		}

		f.SetCellValue(overview, fmt.Sprintf("A%d", 6+i), group.Name)
		f.SetCellValue(overview, fmt.Sprintf("B%d", 6+i), len(group.Tasks))

		for col, title := range headerCells {
			cell, err := excelize.CoordinatesToCellName(col+1, 1)
			if err != nil {
				return nil, fmt.Errorf("header cell: %w", err)
			}
			f.SetCellValue(sheet, cell, title)
		}
		if err := f.SetCellStyle(sheet, "A1", "E1", headerStyle); err != nil {
			return nil, fmt.Errorf("style header: %w", err)
		}
		f.SetColWidth(sheet, "A", "A", 36)
		f.SetColWidth(sheet, "B", "B", 48)
		f.SetColWidth(sheet, "C", "D", 18)

		for row, task := range group.Tasks {
			r := row + 2
			f.SetCellValue(sheet, fmt.Sprintf("A%d", r), task.Name)
			f.SetCellValue(sheet, fmt.Sprintf("B%d", r), task.Description)
			f.SetCellValue(sheet, fmt.Sprintf("C%d", r), task.Assignee)
			if task.DueDate != nil {
				f.SetCellValue(sheet, fmt.Sprintf("D%d", r), task.DueDate.Format("2006-01-02"))
			}
			if task.SubTasksTotal > 0 {
				f.SetCellValue(sheet, fmt.Sprintf("E%d", r),
					fmt.Sprintf("%d/%d", task.SubTasksDone, task.SubTasksTotal))
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetName produces a legal, unique Excel sheet name. Excel caps names at
// 31 chars and forbids a handful of characters.
func sheetName(name string, index int) string {
	replacer := strings.NewReplacer("\\", " ", "/", " ", "?", " ", "*", " ", "[", "(", "]", ")", ":", "-")
	cleaned := strings.TrimSpace(replacer.Replace(name))
	if cleaned == "" {
		cleaned = "Group"
	}
	suffix := fmt.Sprintf(" (%d)", index+1)
	if len(cleaned)+len(suffix) > 31 {
		cleaned = cleaned[:31-len(suffix)]
	}
	return cleaned + suffix
}

func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", " ", "_", ":", "-")
	cleaned := replacer.Replace(strings.TrimSpace(name))
	if cleaned == "" {
		return "board"
	}
	return cleaned
}
