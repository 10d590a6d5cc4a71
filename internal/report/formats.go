package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/joshsymonds/certify/pkg/logger"
	"github.com/joshsymonds/certify/pkg/pathutil"
)

// Format represents a report generation strategy.
type Format interface {
	// Generate writes the report to w.
	Generate(w io.Writer, data *Data) error
	// Name returns the format identifier (e.g., "html", "markdown").
	Name() string
	// Description returns a human-readable description of the format.
	Description() string
}

// FormatFactory creates instances of report formats.
type FormatFactory func(log logger.Logger) (Format, error)

var (
	formatRegistry = make(map[string]FormatFactory)
	registryMutex  sync.RWMutex
)

// RegisterFormat registers a new report format factory.
func RegisterFormat(name string, factory FormatFactory) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if factory == nil {
		panic(fmt.Sprintf("report: RegisterFormat factory is nil for format %q", name))
	}
	if _, dup := formatRegistry[name]; dup {
		panic(fmt.Sprintf("report: RegisterFormat called twice for format %q", name))
	}
	formatRegistry[name] = factory
}

// GetFormat creates an instance of the specified report format.
func GetFormat(name string, log logger.Logger) (Format, error) {
	registryMutex.RLock()
	factory, exists := formatRegistry[name]
	registryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown report format: %s", name)
	}

	return factory(log)
}

// ListFormats returns the registered format names in sorted order.
func ListFormats() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	formats := make([]string, 0, len(formatRegistry))
	for name := range formatRegistry {
		formats = append(formats, name)
	}
	slices.Sort(formats)
	return formats
}

// WriteFile renders data with format into outputPath.
func WriteFile(format Format, data *Data, outputPath string) (err error) {
	validOutputPath, err := pathutil.ValidateOutputPath(outputPath)
	if err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}

	file, err := os.Create(validOutputPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing output file: %w", cerr)
		}
	}()

	w := bufio.NewWriter(file)
	if err := format.Generate(w, data); err != nil {
		return err
	}
	return w.Flush()
}

type jsonFormat struct{}

func (jsonFormat) Generate(w io.Writer, data *Data) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encoding json report: %w", err)
	}
	return nil
}

func (jsonFormat) Name() string { return "json" }

func (jsonFormat) Description() string { return "Machine-readable JSON report" }

func init() {
	RegisterFormat("html", func(log logger.Logger) (Format, error) {
		return newHTMLFormat(log)
	})
	RegisterFormat("markdown", func(log logger.Logger) (Format, error) {
		return newMarkdownFormat(log)
	})
	RegisterFormat("json", func(logger.Logger) (Format, error) {
		return jsonFormat{}, nil
	})
}
