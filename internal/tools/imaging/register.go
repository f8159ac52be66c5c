package imaging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ghostbot/internal/tools"
)

// GenerateImageTool wraps c as a registry tool that writes the image to disk.
func GenerateImageTool(c *Client) *tools.Tool {
	return &tools.Tool{
		Name:        "generate_image",
		Description: "Generate an image from a prompt and save it to a file",
		Category:    tools.CategoryMedia,
		Priority:    60,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			prompt := tools.StringArg(args, "prompt")
			if prompt == "" {
				return "", fmt.Errorf("prompt is required")
			}
			output := tools.StringArg(args, "output")
			if output == "" {
				output = "image.jpg"
			}
			data, err := c.Generate(ctx, prompt)
			if err != nil {
				return UserMessage(err), err
			}
			if dir := filepath.Dir(output); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return "", fmt.Errorf("failed to create output directory: %w", err)
				}
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return "", fmt.Errorf("failed to write image: %w", err)
			}
			return fmt.Sprintf("Wrote %d bytes to %s", len(data), output), nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"prompt"},
			Properties: map[string]tools.Property{
				"prompt": {Type: "string", Description: "Image prompt"},
				"output": {Type: "string", Description: "Output file path", Default: "image.jpg"},
			},
		},
	}
}

// RegisterAll registers the imaging tools with the given registry.
func RegisterAll(registry *tools.Registry, c *Client) error {
	return registry.Register(GenerateImageTool(c))
}
