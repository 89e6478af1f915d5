package diagnostics

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
)

const header = `<?xml version="1.0" encoding="UTF-8"?>
<Diag xmlns="http://www.wldelft.nl/fews/PI"
xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
xsi:schemaLocation="http://www.wldelft.nl/fews/PI http://fews.wldelft.nl/schemas/version1.0/pi-schemas/pi_diag.xsd" version="1.2">
`

const noIssuesLine = `            <line level="2" description="No errors, warnings or info messages were detected in the EPASWMM output or adapter log."/>` + "\n"

// Write renders diags as a FEWS PI diagnostics document.
func Write(w io.Writer, diags []domain.Diagnostic) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(header)
	if len(diags) == 0 {
		bw.WriteString(noIssuesLine)
	}
	for _, d := range diags {
		bw.WriteString(`            <line level="`)
		bw.WriteString(strconv.Itoa(int(d.Severity)))
		bw.WriteString(`" description="`)
		bw.WriteString(escape(d.Message))
		bw.WriteString("\"/>\n")
	}
	bw.WriteString("</Diag>")
	return bw.Flush()
}

// WriteFile writes the diagnostics document to path, creating its directory.
func WriteFile(path string, diags []domain.Diagnostic) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create diagnostics directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create diagnostics file: %w", err)
	}
	if err := Write(f, diags); err != nil {
		_ = f.Close()
		return fmt.Errorf("write diagnostics file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close diagnostics file: %w", err)
	}
	return nil
}

func escape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
