package documents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ghostbot/internal/tools"
)

// ExtractDocumentTool wraps e as a registry tool reading from disk.
func ExtractDocumentTool(e *Extractor) *tools.Tool {
	return &tools.Tool{
		Name:        "extract_document",
		Description: "Extract plain text from a document (txt, csv, pdf, docx, pptx, xlsx)",
		Category:    tools.CategoryDocuments,
		Priority:    50,
		Execute: func(_ context.Context, args map[string]any) (string, error) {
			p := tools.StringArg(args, "path")
			if p == "" {
				return "", fmt.Errorf("path is required")
			}
			info, err := os.Stat(p)
			if err != nil {
				return "", err
			}
			if !e.Allowed(info.Size()) {
				return "", fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, info.Size(), e.MaxBytes())
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return "", err
			}
			return e.Extract(filepath.Base(p), data)
		},
		Schema: tools.ToolSchema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {Type: "string", Description: "Path to the document"},
			},
		},
	}
}

// RegisterAll registers the document tools with the given registry.
func RegisterAll(registry *tools.Registry, e *Extractor) error {
	return registry.Register(ExtractDocumentTool(e))
}
